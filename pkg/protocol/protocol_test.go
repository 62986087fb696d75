package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeConstructors(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		env := Success(map[string]any{"exit_code": 0})
		assert.True(t, env.OK)
		assert.Nil(t, env.Error)
		assert.Equal(t, 0, env.Result["exit_code"])
		assert.Equal(t, "", env.ErrorType())
	})

	t.Run("failure", func(t *testing.T) {
		env := Failure(ErrSecurity, "command blocked")
		assert.False(t, env.OK)
		assert.Nil(t, env.Result)
		require.NotNil(t, env.Error)
		assert.Equal(t, ErrSecurity, env.ErrorType())
		assert.Equal(t, "command blocked", env.Error.Message)
	})
}

func TestEnvelopeWireShape(t *testing.T) {
	t.Run("failure round trip", func(t *testing.T) {
		data, err := json.Marshal(Failure(ErrTimeout, "deadline exceeded after 15s"))
		require.NoError(t, err)

		var decoded Envelope
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.False(t, decoded.OK)
		require.NotNil(t, decoded.Error)
		assert.Equal(t, ErrTimeout, decoded.Error.Type)
	})

	t.Run("null fields present on the wire", func(t *testing.T) {
		data, err := json.Marshal(Failure(ErrConnection, "unreachable"))
		require.NoError(t, err)
		assert.Contains(t, string(data), `"result":null`)

		data, err = json.Marshal(Success(map[string]any{}))
		require.NoError(t, err)
		assert.Contains(t, string(data), `"error":null`)
	})
}

func TestActionJSON(t *testing.T) {
	raw := `{"tool":"system","action":"exec","args":{"cmd":"echo hello"}}`

	var action Action
	require.NoError(t, json.Unmarshal([]byte(raw), &action))
	assert.Equal(t, "system", action.Tool)
	assert.Equal(t, "exec", action.Name)
	assert.Equal(t, "echo hello", action.Args["cmd"])
}

func TestExecResultMap(t *testing.T) {
	res := ExecResult{ExitCode: 2, Stdout: "out", Stderr: "err"}
	m := res.Map()
	assert.Equal(t, 2, m["exit_code"])
	assert.Equal(t, "out", m["stdout"])
	assert.Equal(t, "err", m["stderr"])
}
