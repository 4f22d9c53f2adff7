// Package api exposes the simulation kernel over HTTP: a gorilla/mux
// REST surface for control/query operations and a gorilla/websocket
// hub streaming snapshots to any number of subscribed clients.
//
// Grounded on the teacher's http.HandleFunc("/", ...) /
// http.HandleFunc("/ws", ...) pairing in
// idqam-fleet-sim-ms (no REST surface of its own — the teacher never
// built a query API), generalized here using niceyeti-tabular's
// gorilla/mux + gorilla/websocket server
// (tabular/server/server.go, tabular/server/fastview/client.go),
// whose single-client prototype is generalized into a broadcast hub.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/idqam/swarmsim/internal/config"
	"github.com/idqam/swarmsim/internal/engine"
	"github.com/idqam/swarmsim/internal/world"
	"github.com/rs/zerolog"
)

// errAlreadyRunning backs the 409 spec.md §6 requires from
// POST /api/v1/simulation/start when the tick loop is already active.
var errAlreadyRunning = errors.New("api: simulation already running")

// Server wires the Engine to the REST router and the streaming hub.
type Server struct {
	eng    *engine.Engine
	hub    *Hub
	logger zerolog.Logger
}

// NewServer builds a Server around eng; callers mount Router() and Hub()
// behind whatever listeners they choose (spec.md §6 uses two separate
// addresses, REST and streaming).
func NewServer(eng *engine.Engine, logger zerolog.Logger) *Server {
	return &Server{
		eng:    eng,
		hub:    NewHub(logger),
		logger: logger.With().Str("component", "api").Logger(),
	}
}

// Hub returns the websocket broadcast hub, which the caller mounts as an
// http.Handler and whose Publish should be fed a Snapshot each tick.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Router builds the REST mux for spec.md §6's control surface.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/simulation/state", s.handleSimulationState).Methods(http.MethodGet)
	v1.HandleFunc("/simulation/start", s.handleSimulationStart).Methods(http.MethodPost)
	v1.HandleFunc("/simulation/stop", s.handleSimulationStop).Methods(http.MethodPost)
	v1.HandleFunc("/drones", s.handleDronesList).Methods(http.MethodGet)
	v1.HandleFunc("/drones/{id}", s.handleDroneByID).Methods(http.MethodGet)
	v1.HandleFunc("/drones/{id}/flight-controller", s.handleDroneFlightController).Methods(http.MethodGet)
	v1.HandleFunc("/fire/ignite", s.handleFireIgnite).Methods(http.MethodPost)
	v1.HandleFunc("/fire/suppress", s.handleFireSuppress).Methods(http.MethodPost)
	v1.HandleFunc("/fire/state", s.handleFireState).Methods(http.MethodGet)
	v1.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	v1.HandleFunc("/config", s.handleConfigGet).Methods(http.MethodGet)
	v1.HandleFunc("/config", s.handleConfigPost).Methods(http.MethodPost)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": s.eng.IsRunning(),
	})
}

func (s *Server) handleSimulationState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.ExportState())
}

func (s *Server) handleSimulationStart(w http.ResponseWriter, r *http.Request) {
	if s.eng.IsRunning() {
		writeError(w, http.StatusConflict, errAlreadyRunning)
		return
	}
	s.eng.Start()
	writeJSON(w, http.StatusAccepted, map[string]any{"running": true})
}

func (s *Server) handleSimulationStop(w http.ResponseWriter, r *http.Request) {
	s.eng.Stop()
	writeJSON(w, http.StatusAccepted, map[string]any{"running": false})
}

func (s *Server) handleDronesList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.ExportState().Vehicles)
}

func (s *Server) handleDroneByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	for _, d := range s.eng.ExportState().Vehicles {
		if d.ID == id {
			writeJSON(w, http.StatusOK, d)
			return
		}
	}
	writeError(w, http.StatusNotFound, world.ErrUnknownDrone)
}

// handleDroneFlightController surfaces the external flight-controller
// port/system-id assignment contract (spec.md §6) for a registered
// drone; the kernel itself never launches or talks to that process,
// only hands out the formula.
func (s *Server) handleDroneFlightController(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	found := false
	for _, d := range s.eng.ExportState().Vehicles {
		if d.ID == id {
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, world.ErrUnknownDrone)
		return
	}
	port, systemID := world.FlightControllerAddr(id)
	writeJSON(w, http.StatusOK, map[string]any{"udp_port": port, "system_id": systemID})
}

type igniteRequest struct {
	X, Y, Intensity float64
}

func (s *Server) handleFireIgnite(w http.ResponseWriter, r *http.Request) {
	var req igniteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.eng.Ignite(req.X, req.Y, req.Intensity); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ignited": true})
}

type suppressRequest struct {
	X, Y, Strength float64
}

func (s *Server) handleFireSuppress(w http.ResponseWriter, r *http.Request) {
	var req suppressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cells, err := s.eng.ApplySuppression(req.X, req.Y, req.Strength)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cells_affected": cells})
}

func (s *Server) handleFireState(w http.ResponseWriter, r *http.Request) {
	state := s.eng.ExportState()
	writeJSON(w, http.StatusOK, map[string]any{
		"grid":    state.Grid,
		"summary": state.FireSummary,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.ExportState().Metrics)
}

func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	cfg := s.eng.Config()
	writeJSON(w, http.StatusOK, map[string]any{
		"detm_eta0":             cfg.Swarm.DETMEta0,
		"detm_lambda":           cfg.Swarm.DETMLambda,
		"rtl_threshold_percent": cfg.Battery.RTLThresholdPercent,
	})
}

func (s *Server) handleConfigPost(w http.ResponseWriter, r *http.Request) {
	var h config.HotReload
	if err := json.NewDecoder(r.Body).Decode(&h); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result := make(chan error, 1)
	s.eng.Inbox() <- engine.ConfigUpdateCommand{HotReload: h, Result: result}
	if err := <-result; err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applied": true})
}

func statusFor(err error) int {
	switch err {
	case world.ErrOutOfBounds, world.ErrUnknownDrone, world.ErrDuplicateID, world.ErrNegativeDt:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func pathInt(r *http.Request, name string) (int, error) {
	return strconv.Atoi(mux.Vars(r)[name])
}
