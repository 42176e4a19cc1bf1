// Package surface drives the client's GL map over a websocket session.
// Every operation is a numbered command frame; the client answers with an
// ack or a result carrying the same sequence number.
package surface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/samirrijal/bilbowatch/internal/core/domain"
	"github.com/samirrijal/bilbowatch/internal/core/ports"
	"github.com/samirrijal/bilbowatch/internal/pkg/metrics"
)

var errSessionClosed = errors.New("surface: session closed")

// wsConn is the part of *websocket.Conn the surface writes through.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
}

// frame is a server-to-client message. Commands and queries carry a
// sequence number the client must echo back; notices carry none.
type frame struct {
	Type    string `json:"type"` // "cmd" | "query" | "notice"
	Seq     int64  `json:"seq,omitempty"`
	Op      string `json:"op,omitempty"`
	Event   string `json:"event,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

type reply struct {
	err     error
	payload json.RawMessage
}

// Remote implements ports.MapSurface against a live map client. The
// session's read loop feeds replies back in through Resolve; Remote never
// reads the connection itself.
type Remote struct {
	conn    wsConn
	timeout time.Duration
	seq     atomic.Int64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan reply
	closed  bool
}

// NewRemote creates a new Remote over an established connection. timeout
// bounds each round trip.
func NewRemote(conn wsConn, timeout time.Duration) *Remote {
	return &Remote{
		conn:    conn,
		timeout: timeout,
		pending: make(map[int64]chan reply),
	}
}

// Resolve completes the operation seq refers to. Replies arriving after a
// timeout or close are dropped.
func (r *Remote) Resolve(seq int64, errMsg, code string, payload json.RawMessage) {
	r.mu.Lock()
	ch, ok := r.pending[seq]
	if ok {
		delete(r.pending, seq)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	var err error
	switch {
	case code == "not_found":
		err = ports.ErrNotFound
	case errMsg != "":
		err = fmt.Errorf("surface: %s", errMsg)
	}
	ch <- reply{err: err, payload: payload}
}

// Notice pushes an out-of-band event to the client. No reply is expected.
func (r *Remote) Notice(event string, payload any) error {
	return r.write(frame{Type: "notice", Event: event, Payload: payload})
}

// Ping writes a websocket control ping. It shares the frame write lock so
// keep-alives never interleave with a command frame.
func (r *Remote) Ping() error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.conn.WriteMessage(websocket.PingMessage, nil)
}

// Close fails every pending operation and rejects new ones. The connection
// itself belongs to the session and is closed there.
func (r *Remote) Close() {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[int64]chan reply)
	r.closed = true
	r.mu.Unlock()

	for _, ch := range pending {
		ch <- reply{err: errSessionClosed}
	}
}

type addSourcePayload struct {
	ID   string                     `json:"id"`
	Data *geojson.FeatureCollection `json:"data"`
	ports.SourceOptions
}

func (r *Remote) AddGeoJSONSource(ctx context.Context, id string, fc *geojson.FeatureCollection, opts ports.SourceOptions) error {
	_, err := r.roundTrip(ctx, "cmd", "add_source", addSourcePayload{ID: id, Data: fc, SourceOptions: opts})
	return err
}

func (r *Remote) RemoveSource(ctx context.Context, id string) error {
	_, err := r.roundTrip(ctx, "cmd", "remove_source", map[string]any{"id": id})
	return err
}

func (r *Remote) AddLayer(ctx context.Context, spec ports.LayerSpec) error {
	_, err := r.roundTrip(ctx, "cmd", "add_layer", spec)
	return err
}

func (r *Remote) RemoveLayer(ctx context.Context, id string) error {
	_, err := r.roundTrip(ctx, "cmd", "remove_layer", map[string]any{"id": id})
	return err
}

func (r *Remote) SetLayerProperty(ctx context.Context, layerID, name string, value any) error {
	_, err := r.roundTrip(ctx, "cmd", "set_layer_property", map[string]any{
		"layer_id": layerID,
		"name":     name,
		"value":    value,
	})
	return err
}

// AddImage asks the client to register one of its bundled pin assets under
// the given name. Re-registering an existing name replaces it.
func (r *Remote) AddImage(ctx context.Context, name string) error {
	_, err := r.roundTrip(ctx, "cmd", "add_image", map[string]any{"name": name})
	return err
}

func (r *Remote) QueryRenderedFeatures(ctx context.Context, pt domain.ScreenPoint, layerIDs []string) ([]ports.QueryHit, error) {
	payload, err := r.roundTrip(ctx, "query", "query_rendered_features", map[string]any{
		"point":  pt,
		"layers": layerIDs,
	})
	if err != nil {
		return nil, err
	}
	var hits []ports.QueryHit
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &hits); err != nil {
			return nil, fmt.Errorf("decode query result: %w", err)
		}
	}
	return hits, nil
}

func (r *Remote) Camera(ctx context.Context) (domain.Camera, error) {
	payload, err := r.roundTrip(ctx, "query", "get_camera", nil)
	if err != nil {
		return domain.Camera{}, err
	}
	var cam domain.Camera
	if err := json.Unmarshal(payload, &cam); err != nil {
		return domain.Camera{}, fmt.Errorf("decode camera: %w", err)
	}
	return cam, nil
}

func (r *Remote) FlyTo(ctx context.Context, to domain.Camera, duration time.Duration) error {
	_, err := r.roundTrip(ctx, "cmd", "fly_to", map[string]any{
		"center":      to.Center,
		"zoom":        to.Zoom,
		"duration_ms": duration.Milliseconds(),
	})
	return err
}

func (r *Remote) roundTrip(ctx context.Context, typ, op string, payload any) (json.RawMessage, error) {
	seq := r.seq.Add(1)
	ch := make(chan reply, 1)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errSessionClosed
	}
	r.pending[seq] = ch
	r.mu.Unlock()

	start := time.Now()
	if err := r.write(frame{Type: typ, Seq: seq, Op: op, Payload: payload}); err != nil {
		r.drop(seq)
		metrics.SurfaceOpErrors.WithLabelValues(op).Inc()
		return nil, fmt.Errorf("send %s: %w", op, err)
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case rep := <-ch:
		metrics.SurfaceOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if rep.err != nil {
			if !errors.Is(rep.err, ports.ErrNotFound) {
				metrics.SurfaceOpErrors.WithLabelValues(op).Inc()
			}
			return nil, rep.err
		}
		return rep.payload, nil
	case <-timer.C:
		r.drop(seq)
		metrics.SurfaceOpErrors.WithLabelValues(op).Inc()
		return nil, fmt.Errorf("%s: no reply within %s", op, r.timeout)
	case <-ctx.Done():
		r.drop(seq)
		return nil, ctx.Err()
	}
}

func (r *Remote) write(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.conn.WriteMessage(websocket.TextMessage, data)
}

func (r *Remote) drop(seq int64) {
	r.mu.Lock()
	delete(r.pending, seq)
	r.mu.Unlock()
}
