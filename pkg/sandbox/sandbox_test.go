package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolwire/pkg/protocol"
)

func newTestSandbox(t *testing.T) *Sandbox {
	t.Helper()
	return New(DefaultPolicy(), Options{
		WorkDir:        t.TempDir(),
		DefaultTimeout: 10 * time.Second,
	})
}

func TestExecuteEcho(t *testing.T) {
	sb := newTestSandbox(t)

	env := sb.Execute(context.Background(), "req-1", "echo hello", 0)

	require.True(t, env.OK, "error: %+v", env.Error)
	assert.Equal(t, 0, env.Result["exit_code"])
	assert.Contains(t, env.Result["stdout"], "hello")
}

func TestExecuteNonzeroExitIsSuccess(t *testing.T) {
	sb := newTestSandbox(t)

	env := sb.Execute(context.Background(), "req-2", "exit 3", 0)

	require.True(t, env.OK)
	assert.Equal(t, 3, env.Result["exit_code"])
}

func TestExecuteCapturesStderr(t *testing.T) {
	sb := newTestSandbox(t)

	env := sb.Execute(context.Background(), "req-3", "echo oops >&2", 0)

	require.True(t, env.OK)
	assert.Contains(t, env.Result["stderr"], "oops")
}

func TestExecuteBlockedCommand(t *testing.T) {
	sb := newTestSandbox(t)

	marker := filepath.Join(t.TempDir(), "marker")
	env := sb.Execute(context.Background(), "req-4", "rm -rf / ; touch "+marker, 0)

	require.False(t, env.OK)
	require.NotNil(t, env.Error)
	assert.Equal(t, protocol.ErrSecurity, env.Error.Type)

	// Nothing was spawned: the side-effect half of the command never ran.
	_, err := os.Stat(marker)
	assert.True(t, os.IsNotExist(err))
}

func TestExecuteTimeout(t *testing.T) {
	sb := newTestSandbox(t)

	start := time.Now()
	env := sb.Execute(context.Background(), "req-5", "sleep 30", 1)
	elapsed := time.Since(start)

	require.False(t, env.OK)
	require.NotNil(t, env.Error)
	assert.Equal(t, protocol.ErrTimeout, env.Error.Type)
	assert.Less(t, elapsed, 5*time.Second, "deadline must be enforced by forced termination")
}

func TestExecuteTimeoutKillsChildren(t *testing.T) {
	dir := t.TempDir()
	sb := New(DefaultPolicy(), Options{WorkDir: dir, DefaultTimeout: 10 * time.Second})

	// The backgrounded child belongs to the same process group, so the
	// deadline kill must take it down with the shell.
	env := sb.Execute(context.Background(), "req-6", "sleep 30 & echo $! > child.pid; wait", 1)

	require.False(t, env.OK)
	assert.Equal(t, protocol.ErrTimeout, env.Error.Type)

	data, err := os.ReadFile(filepath.Join(dir, "child.pid"))
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)

	// The child must be dead, not merely detached from the pipes: gone
	// entirely, or a zombie awaiting reap.
	assert.Eventually(t, func() bool {
		stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
		if err != nil {
			return true
		}
		fields := strings.Fields(string(stat))
		return len(fields) > 2 && fields[2] == "Z"
	}, 5*time.Second, 50*time.Millisecond, "child process survived the group kill")
}

func TestExecuteCanceledContext(t *testing.T) {
	sb := newTestSandbox(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	env := sb.Execute(ctx, "req-cancel", "sleep 30", 0)
	elapsed := time.Since(start)

	require.False(t, env.OK, "a killed run must not report success")
	require.NotNil(t, env.Error)
	assert.Equal(t, protocol.ErrConnection, env.Error.Type)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestExecuteWorkDir(t *testing.T) {
	dir := t.TempDir()
	sb := New(DefaultPolicy(), Options{WorkDir: dir, DefaultTimeout: 10 * time.Second})

	env := sb.Execute(context.Background(), "req-7", "pwd", 0)

	require.True(t, env.OK)
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Contains(t, env.Result["stdout"], resolved)
}

func TestExecuteConcurrent(t *testing.T) {
	sb := newTestSandbox(t)

	var wg sync.WaitGroup
	results := make([]protocol.Envelope, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = sb.Execute(context.Background(), "req-c", "echo hello", 0)
		}(i)
	}
	wg.Wait()

	for _, env := range results {
		require.True(t, env.OK)
		assert.Equal(t, 0, env.Result["exit_code"])
	}
}

type captureRecorder struct {
	mu      sync.Mutex
	entries []string
}

func (c *captureRecorder) RecordExec(requestID, cmd, verdict string, exitCode int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, verdict)
}

func TestExecuteRecordsInvocations(t *testing.T) {
	sb := newTestSandbox(t)
	rec := &captureRecorder{}
	sb.SetRecorder(rec)

	sb.Execute(context.Background(), "req-8", "echo hi", 0)
	sb.Execute(context.Background(), "req-9", "rm -rf /", 0)

	assert.Equal(t, []string{"completed", "blocked"}, rec.entries)
}

func TestPolicyWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.json")

	writePolicy := func(deny []DenyRule) {
		data, err := json.Marshal(policyFile{Deny: deny})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0644))
	}

	writePolicy(nil)
	initial, err := LoadPolicy(path)
	require.NoError(t, err)

	holder := NewPolicyHolder(initial)
	watcher, err := WatchPolicy(path, holder)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.True(t, holder.Current().Check("echo hi").Allowed)

	writePolicy([]DenyRule{{Name: "no-echo", Contains: "echo", Reason: "test"}})

	assert.Eventually(t, func() bool {
		return !holder.Current().Check("echo hi").Allowed
	}, 5*time.Second, 100*time.Millisecond, "policy was not hot-reloaded")
}
