// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/evannetwork/smartagent/agent"
	"github.com/evannetwork/smartagent/lib/clock"
	"github.com/evannetwork/smartagent/lib/evanauth"
	"github.com/evannetwork/smartagent/lib/metrics"
	"github.com/evannetwork/smartagent/transport"
)

// DefaultMaxQueueLength is the queued-event total above which /status
// reports the node unhealthy.
const DefaultMaxQueueLength = 1000

// AgentLister enumerates running agents. *agent.Registry implements it.
type AgentLister interface {
	List() []*agent.Context
}

// TransportState reports the RPC connection state.
// *transport.Supervisor implements it.
type TransportState interface {
	State() transport.State
}

// ServerConfig configures a Server.
type ServerConfig struct {
	Name    string
	Version string

	Agents    AgentLister
	Transport TransportState

	// Verifier backs ensureEvanAuth.
	Verifier *evanauth.Verifier

	// Metrics is exposed on /metrics. Nil disables the route.
	Metrics *metrics.Metrics

	// MaxQueueLength defaults to DefaultMaxQueueLength.
	MaxQueueLength int

	Clock  clock.Clock
	Logger *slog.Logger
}

// Server routes the agent's HTTP API.
type Server struct {
	Router      *mux.Router
	Middlewares *Middlewares

	name           string
	version        string
	agents         AgentLister
	transport      TransportState
	maxQueueLength int
	clock          clock.Clock
	started        time.Time
	logger         *slog.Logger
}

// NewServer builds the router with the built-in routes and the
// ensureEvanAuth middleware.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Verifier == nil {
		return nil, errors.New("api: server requires a verifier")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxQueueLength := config.MaxQueueLength
	if maxQueueLength <= 0 {
		maxQueueLength = DefaultMaxQueueLength
	}

	server := &Server{
		Router:         mux.NewRouter(),
		Middlewares:    newMiddlewares(logger),
		name:           config.Name,
		version:        config.Version,
		agents:         config.Agents,
		transport:      config.Transport,
		maxQueueLength: maxQueueLength,
		clock:          clk,
		started:        clk.Now(),
		logger:         logger,
	}
	if err := server.Middlewares.Register(EnsureEvanAuth, evanauth.Middleware(config.Verifier)); err != nil {
		return nil, err
	}

	server.Router.Use(server.requestID)
	server.Router.HandleFunc("/status", server.handleStatus).Methods(http.MethodGet)
	server.Handle("/authenticated", http.HandlerFunc(server.handleAuthenticated), EnsureEvanAuth).Methods(http.MethodGet)
	if config.Metrics != nil {
		server.Router.Handle("/metrics", config.Metrics.Handler()).Methods(http.MethodGet)
	}
	server.Router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse("unknown route"))
	})
	return server, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// Handle registers handler at path behind the named middlewares,
// applied in order.
func (s *Server) Handle(path string, handler http.Handler, middlewares ...string) *mux.Route {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = s.Middlewares.Use(middlewares[i])(handler)
	}
	return s.Router.Handle(path, handler)
}

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		started := s.clock.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request handled",
			"request_id", id, "method", r.Method, "path", r.URL.Path,
			"duration", s.clock.Now().Sub(started))
	})
}

// AgentStatus describes one agent in the status response.
type AgentStatus struct {
	Name        string         `json:"name"`
	Account     common.Address `json:"account"`
	Identity    common.Address `json:"identity"`
	QueueLength int            `json:"queueLength"`
	Watermark   uint64         `json:"lastBlock"`
}

// Status is the /status response.
type Status struct {
	NodeStatus       string        `json:"nodeStatus"`
	Problems         []string      `json:"problems"`
	Name             string        `json:"name"`
	Version          string        `json:"version"`
	Uptime           int64         `json:"uptime"`
	Transport        string        `json:"transport"`
	ConsumedMemoryMB float64       `json:"consumedMemoryMB"`
	QueueLength      int           `json:"queueLength"`
	Agents           []AgentStatus `json:"agents"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := Status{
		NodeStatus: "Node Healthy",
		Problems:   []string{},
		Name:       s.name,
		Version:    s.version,
		Uptime:     s.clock.Now().Sub(s.started).Milliseconds(),
		Agents:     []AgentStatus{},
	}

	var memory runtime.MemStats
	runtime.ReadMemStats(&memory)
	status.ConsumedMemoryMB = float64(memory.HeapAlloc*100/(1<<20)) / 100

	if s.transport != nil {
		state := s.transport.State()
		status.Transport = state.String()
		if state != transport.StateOpen {
			status.NodeStatus = "Node Unhealthy"
			status.Problems = append(status.Problems, "RPC connection is "+state.String())
		}
	}
	if s.agents != nil {
		for _, running := range s.agents.List() {
			queued := running.Queue().Len()
			status.QueueLength += queued
			status.Agents = append(status.Agents, AgentStatus{
				Name:        running.Name(),
				Account:     running.Account(),
				Identity:    running.Identity(),
				QueueLength: queued,
				Watermark:   running.Queue().Watermark(),
			})
		}
	}
	if status.QueueLength > s.maxQueueLength {
		status.NodeStatus = "Node Unhealthy"
		status.Problems = append(status.Problems, "event queues hold more than the allowed number of events")
	}

	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleAuthenticated(w http.ResponseWriter, r *http.Request) {
	components := evanauth.FromContext(r.Context())
	if components == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse(evanauth.ErrNotVerified.Error()))
		return
	}
	result := map[string]string{"account": components.Account.Hex()}
	if components.HasIdentity() {
		result["identity"] = components.Identity.Hex()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "result": result})
}

func errorResponse(message string) map[string]string {
	return map[string]string{"status": "error", "error": message}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
