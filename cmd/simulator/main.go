package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	natsadapter "github.com/samirrijal/bilbowatch/internal/adapters/nats"
	"github.com/samirrijal/bilbowatch/internal/core/domain"
	"github.com/samirrijal/bilbowatch/internal/pkg/config"
)

// Bilbao city hall, roughly the center of the reporting area.
const (
	centerLat = 43.2627
	centerLon = -2.9349
)

var categories = []string{"pavement", "lighting", "flooding", "signage", "trees", "other"}

var streets = []string{
	"Gran Via", "Ledesma", "Ercilla", "Autonomia", "Licenciado Poza",
	"Ribera", "Campo Volantin", "Iparraguirre", "Hurtado de Amezaga",
}

// Publishes synthetic marker events at a fixed cadence, standing in for
// the reports service during local development.
func main() {
	cfg, err := config.Load("bilbowatch-simulator")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	interval := 5 * time.Second
	if len(os.Args) > 1 {
		d, err := time.ParseDuration(os.Args[1])
		if err != nil {
			log.Fatalf("bad interval %q: %v", os.Args[1], err)
		}
		interval = d
	}

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var live []string

	log.Printf("BilboWatch report simulator publishing every %s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("simulator stopped")
			return
		case <-ticker.C:
		}

		ev := nextEvent(rng, &live)
		if ev == nil {
			continue
		}
		if err := pub.PublishMarkerEvent(ctx, ev); err != nil {
			log.Printf("publish %s: %v", ev.Kind, err)
			continue
		}
		log.Printf("published %s marker=%s live=%d", ev.Kind, ev.MarkerID, len(live))
	}
}

// nextEvent rolls a weighted event kind: mostly new reports, some status
// changes, the occasional retraction. live tracks IDs still on the map.
func nextEvent(rng *rand.Rand, live *[]string) *domain.MarkerEvent {
	roll := rng.Float64()
	now := time.Now()

	switch {
	case roll < 0.6 || len(*live) == 0:
		m := randomMarker(rng, now)
		*live = append(*live, m.ID)
		return &domain.MarkerEvent{Kind: domain.MarkerCreated, Marker: m, MarkerID: m.ID, At: now}

	case roll < 0.85:
		id := (*live)[rng.Intn(len(*live))]
		m := randomMarker(rng, now)
		m.ID = id
		// Updates walk the lifecycle forward
		if rng.Float64() < 0.5 {
			m.Status = domain.StatusAcknowledged
		} else {
			m.Status = domain.StatusRecovered
		}
		m.IsPending = false
		return &domain.MarkerEvent{Kind: domain.MarkerUpdated, Marker: m, MarkerID: id, At: now}

	default:
		i := rng.Intn(len(*live))
		id := (*live)[i]
		*live = append((*live)[:i], (*live)[i+1:]...)
		return &domain.MarkerEvent{Kind: domain.MarkerDeleted, MarkerID: id, At: now}
	}
}

func randomMarker(rng *rand.Rand, now time.Time) *domain.Marker {
	cat := categories[rng.Intn(len(categories))]
	street := streets[rng.Intn(len(streets))]

	return &domain.Marker{
		ID: uuid.NewString(),
		Location: domain.GeoPoint{
			// Within roughly 2 km of the center
			Lat: centerLat + (rng.Float64()-0.5)*0.036,
			Lon: centerLon + (rng.Float64()-0.5)*0.05,
		},
		Status:    domain.StatusReported,
		Severity:  1 + rng.Intn(4),
		IsPending: rng.Float64() < 0.2,
		Category:  cat,
		Title:     "Simulated " + cat + " issue on " + street,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
