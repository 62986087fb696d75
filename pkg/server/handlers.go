package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/toolwire/pkg/protocol"
)

// handleTool serves the uniform tool contract for the system tool.
func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.shuttingDown() {
		writeEnvelope(w, protocol.Failure(protocol.ErrConnection, "server is shutting down"))
		return
	}

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()

	var req protocol.ToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(protocol.Failure(protocol.ErrParse,
			fmt.Sprintf("malformed request body: %v", err)))
		return
	}

	if req.Action != "exec" {
		writeEnvelope(w, protocol.Failure(protocol.ErrSchema,
			fmt.Sprintf("unknown action %q for tool system", req.Action)))
		return
	}

	raw, err := json.Marshal(req.Args)
	if err != nil {
		writeEnvelope(w, protocol.Failure(protocol.ErrSchema,
			fmt.Sprintf("invalid exec arguments: %v", err)))
		return
	}

	var execArgs protocol.ExecArgs
	if err := json.Unmarshal(raw, &execArgs); err != nil {
		writeEnvelope(w, protocol.Failure(protocol.ErrSchema,
			fmt.Sprintf("invalid exec arguments: %v", err)))
		return
	}
	if execArgs.Cmd == "" {
		writeEnvelope(w, protocol.Failure(protocol.ErrSchema, "exec requires a string cmd argument"))
		return
	}

	s.broadcaster.Broadcast("exec_started", map[string]any{
		"request_id": req.RequestID,
	})

	start := time.Now()
	env := s.sandbox.Execute(r.Context(), req.RequestID, execArgs.Cmd, execArgs.TimeoutSec)

	s.broadcaster.Broadcast("exec_finished", map[string]any{
		"request_id":  req.RequestID,
		"ok":          env.OK,
		"error_type":  env.ErrorType(),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	writeEnvelope(w, env)
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

func writeEnvelope(w http.ResponseWriter, env protocol.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Error().Err(err).Msg("Failed to write envelope")
	}
}
