package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"focusguard/internal/core/model"

	"github.com/gorilla/websocket"
)

const requestTimeout = 5 * time.Second

// Server exposes a Backend to websocket clients.
type Server struct {
	backend  Backend
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a websocket handler for backend.
func NewServer(backend Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		backend: backend,
		logger:  logger,
		upgrader: websocket.Upgrader{
			// Clients are local processes, not browsers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and serves one client until it disconnects.
func (server *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := server.upgrader.Upgrade(w, r, nil)
	if err != nil {
		server.logger.Error("failed to upgrade backend connection", "error", err)
		return
	}
	defer conn.Close()
	server.logger.Info("backend client connected", "remote", r.RemoteAddr)

	var writeMu sync.Mutex
	send := func(message frame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(message)
	}

	events, unsubscribe := server.backend.Subscribe(64)
	defer unsubscribe()
	go func() {
		for event := range events {
			event := event
			if err := send(frame{Event: &event}); err != nil {
				server.logger.Warn("failed to push backend event", "error", err)
				return
			}
		}
	}()

	for {
		var req request
		if err := conn.ReadJSON(&req); err != nil {
			server.logger.Info("backend client disconnected", "error", err.Error())
			return
		}
		reply := server.handle(r.Context(), req)
		if err := send(reply); err != nil {
			server.logger.Warn("failed to write backend reply", "error", err)
			return
		}
	}
}

func (server *Server) handle(parent context.Context, req request) frame {
	ctx, cancel := context.WithTimeout(parent, requestTimeout)
	defer cancel()

	result, err := server.dispatch(ctx, req)
	reply := frame{ID: req.ID}
	if err != nil {
		reply.Error = err.Error()
		return reply
	}
	if result != nil {
		encoded, err := json.Marshal(result)
		if err != nil {
			reply.Error = fmt.Sprintf("encode result: %v", err)
			return reply
		}
		reply.Result = encoded
	}
	return reply
}

func (server *Server) dispatch(ctx context.Context, req request) (any, error) {
	switch req.Method {
	case MethodPollState:
		return server.backend.PollState(ctx)
	case MethodCurrentBreak:
		session, err := server.backend.CurrentBreak(ctx)
		if err != nil || session == nil {
			return nil, err
		}
		return session, nil
	case MethodSetEmergencyExit:
		var params emergencyExitParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		return nil, server.backend.SetEmergencyExit(ctx, params.Active)
	case MethodHideLockdown:
		return nil, server.backend.HideLockdown(ctx)
	case MethodRecordBypass:
		var attempt model.BypassAttempt
		if err := json.Unmarshal(req.Params, &attempt); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		return nil, server.backend.RecordBypass(ctx, attempt)
	}
	return nil, fmt.Errorf("unknown method %q", req.Method)
}
