package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolwire/pkg/protocol"
)

// sequenceServer answers each request with the next envelope and
// records arrival order.
type sequenceServer struct {
	mu        sync.Mutex
	envelopes []protocol.Envelope
	seen      []string
}

func (s *sequenceServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req protocol.ToolRequest
		json.NewDecoder(r.Body).Decode(&req)

		s.mu.Lock()
		s.seen = append(s.seen, req.Action)
		env := protocol.Success(nil)
		if len(s.envelopes) > 0 {
			env = s.envelopes[0]
			s.envelopes = s.envelopes[1:]
		}
		s.mu.Unlock()

		json.NewEncoder(w).Encode(env)
	}
}

func planOf(actions ...protocol.Action) *protocol.Plan {
	return &protocol.Plan{
		ID:        "plan-test",
		Actions:   actions,
		CreatedAt: time.Now(),
	}
}

func TestRunnerPreservesOrderAndLength(t *testing.T) {
	seq := &sequenceServer{}
	server := httptest.NewServer(seq.handler())
	defer server.Close()

	runner := NewRunner(New(Config{Endpoints: map[string]string{"filesystem": server.URL}}), RunnerOptions{})

	plan := planOf(
		protocol.Action{Tool: "filesystem", Name: "write_file", Args: map[string]any{"path": "a", "content": "x"}},
		protocol.Action{Tool: "filesystem", Name: "read_file", Args: map[string]any{"path": "a"}},
		protocol.Action{Tool: "filesystem", Name: "delete_file", Args: map[string]any{"path": "a"}},
	)

	results := runner.Run(context.Background(), plan)

	require.Len(t, results, plan.Len())
	assert.Equal(t, []string{"write_file", "read_file", "delete_file"}, seq.seen,
		"create-then-read ordering must be preserved")
}

func TestRunnerContinuesPastFailures(t *testing.T) {
	seq := &sequenceServer{envelopes: []protocol.Envelope{
		protocol.Success(nil),
		protocol.Failure(protocol.ErrSecurity, "blocked"),
		protocol.Success(nil),
	}}
	server := httptest.NewServer(seq.handler())
	defer server.Close()

	runner := NewRunner(New(Config{Endpoints: map[string]string{"system": server.URL}}), RunnerOptions{})

	plan := planOf(
		protocol.Action{Tool: "system", Name: "exec", Args: map[string]any{"cmd": "echo 1"}},
		protocol.Action{Tool: "system", Name: "exec", Args: map[string]any{"cmd": "rm -rf /"}},
		protocol.Action{Tool: "system", Name: "exec", Args: map[string]any{"cmd": "echo 3"}},
	)

	results := runner.Run(context.Background(), plan)

	require.Len(t, results, 3)
	assert.True(t, results[0].OK)
	assert.Equal(t, protocol.ErrSecurity, results[1].ErrorType())
	assert.True(t, results[2].OK, "steps after a failure must still be attempted")
	assert.Len(t, seq.seen, 3)
}

func TestRunnerFailFast(t *testing.T) {
	seq := &sequenceServer{envelopes: []protocol.Envelope{
		protocol.Failure(protocol.ErrTimeout, "deadline exceeded"),
	}}
	server := httptest.NewServer(seq.handler())
	defer server.Close()

	runner := NewRunner(
		New(Config{Endpoints: map[string]string{"system": server.URL}}),
		RunnerOptions{FailFast: true},
	)

	plan := planOf(
		protocol.Action{Tool: "system", Name: "exec", Args: map[string]any{"cmd": "sleep 99"}},
		protocol.Action{Tool: "system", Name: "exec", Args: map[string]any{"cmd": "echo never"}},
		protocol.Action{Tool: "system", Name: "exec", Args: map[string]any{"cmd": "echo never"}},
	)

	results := runner.Run(context.Background(), plan)

	require.Len(t, results, 3, "output stays index-aligned even when fail-fast stops dispatching")
	assert.Equal(t, protocol.ErrTimeout, results[0].ErrorType())
	assert.False(t, results[1].OK)
	assert.False(t, results[2].OK)
	assert.Len(t, seq.seen, 1, "no dispatch after the failing step")
}

func TestRunnerEmptyPlan(t *testing.T) {
	runner := NewRunner(New(Config{}), RunnerOptions{})

	results := runner.Run(context.Background(), planOf())

	assert.Empty(t, results)
}

func TestRunnerMixedToolsRouteIndependently(t *testing.T) {
	fsSeq := &sequenceServer{}
	fsServer := httptest.NewServer(fsSeq.handler())
	defer fsServer.Close()
	sysSeq := &sequenceServer{}
	sysServer := httptest.NewServer(sysSeq.handler())
	defer sysServer.Close()

	runner := NewRunner(New(Config{Endpoints: map[string]string{
		"filesystem": fsServer.URL,
		"system":     sysServer.URL,
	}}), RunnerOptions{})

	plan := planOf(
		protocol.Action{Tool: "system", Name: "exec", Args: map[string]any{"cmd": "true"}},
		protocol.Action{Tool: "filesystem", Name: "read_file", Args: map[string]any{"path": "a"}},
	)

	results := runner.Run(context.Background(), plan)

	require.Len(t, results, 2)
	assert.Equal(t, []string{"exec"}, sysSeq.seen)
	assert.Equal(t, []string{"read_file"}, fsSeq.seen)
}
