package api

import (
	"context"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/idqam/swarmsim/internal/engine"
	"github.com/idqam/swarmsim/internal/world"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait        = 1 * time.Second
	pongWait         = 2 * time.Second
	pingPeriod       = pongWait / 2
	closeGracePeriod = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub broadcasts engine.Snapshot values to any number of subscribed
// websocket clients, generalizing the teacher's single-client
// publishEleUpdates loop (tabular/server/server.go) into a fan-out.
type Hub struct {
	logger zerolog.Logger

	mu       sync.Mutex
	clients  map[chan engine.Snapshot]struct{}
	lastSeen *observableState
}

// NewHub builds an empty broadcast hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:  logger.With().Str("component", "stream").Logger(),
		clients: make(map[chan engine.Snapshot]struct{}),
	}
}

// observableState is the subset of a Snapshot that represents actual
// world change, excluding fields that advance every tick regardless of
// whether anything visible happened (Tick, SimTimeSec, the fire grid's
// own SimTimeSec, and the rolling metrics counters).
type observableState struct {
	Vehicles    []world.Drone
	FireSummary world.FireSummary
	Links       []world.RFLink
}

func observableOf(snap engine.Snapshot) observableState {
	return observableState{
		Vehicles:    snap.Vehicles,
		FireSummary: snap.FireSummary,
		Links:       snap.Links,
	}
}

// Publish fans out a snapshot to every subscribed client, but only when
// it differs observably from the previous tick's snapshot (spec.md §6
// "Streaming surface": "skip push if nothing observable changed",
// mirroring the ETM's own gating at swarm scale). Slow clients are
// dropped from delivery for this tick rather than blocking the tick
// loop (spec.md §5 "outbox readers never block the kernel").
func (h *Hub) Publish(snap engine.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current := observableOf(snap)
	if h.lastSeen != nil && reflect.DeepEqual(*h.lastSeen, current) {
		return
	}
	h.lastSeen = &current

	for ch := range h.clients {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (h *Hub) subscribe() chan engine.Snapshot {
	ch := make(chan engine.Snapshot, 1)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan engine.Snapshot) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

// ServeHTTP upgrades the request to a websocket and streams snapshots
// to it until the client disconnects or the request context ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer closeConn(ws)

	updates := h.subscribe()
	defer h.unsubscribe(updates)

	client := &wsClient{ws: ws, updates: updates, logger: h.logger}
	if err := client.sync(r.Context()); err != nil {
		h.logger.Debug().Err(err).Msg("stream client disconnected")
	}
}

// wsClient drives one subscriber's ping/pong liveness check and
// snapshot publication, grounded on the read-pump/ping-pump/publish
// trio of niceyeti-tabular's fastview.client (tabular/server/fastview/
// client.go), generalized from a single generic-typed update channel
// to engine.Snapshot and run under an errgroup per spec.md §5.
type wsClient struct {
	ws      *websocket.Conn
	updates chan engine.Snapshot
	logger  zerolog.Logger
}

func (c *wsClient) sync(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error { return c.readPump(groupCtx) })
	group.Go(func() error { return c.pingPump(groupCtx) })
	group.Go(func() error { return c.publishPump(groupCtx) })

	return group.Wait()
}

// readPump discards client messages but must run so gorilla/websocket
// dispatches pong control frames to the handler set in pingPump.
func (c *wsClient) readPump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if _, _, err := c.ws.ReadMessage(); err != nil {
				return err
			}
		}
	}
}

func (c *wsClient) pingPump(ctx context.Context) error {
	pong := make(chan struct{}, 1)
	c.ws.SetPongHandler(func(string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	lastPong := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pong:
			lastPong = time.Now()
		case <-ticker.C:
			if time.Since(lastPong) > pongWait {
				return websocket.ErrCloseSent
			}
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		}
	}
}

func (c *wsClient) publishPump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-c.updates:
			if !ok {
				return nil
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return err
			}
			if err := c.ws.WriteJSON(snap); err != nil {
				return err
			}
		}
	}
}

func closeConn(ws *websocket.Conn) {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	time.Sleep(closeGracePeriod)
	_ = ws.Close()
}
