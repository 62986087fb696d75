package sandbox

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyBlocks(t *testing.T) {
	policy := DefaultPolicy()

	blocked := []string{
		"rm -rf /",
		"rm -rf / --no-preserve-root",
		"rm -fr /",
		"sudo rm -rf /var",
		"echo hi && sudo apt install foo",
		":(){ :|:& };:",
		"dd if=/dev/zero of=/dev/sda",
		"mkfs.ext4 /dev/sda1",
		"shutdown -h now",
		"reboot",
		"chmod 777 /",
	}

	for _, cmd := range blocked {
		t.Run(cmd, func(t *testing.T) {
			verdict := policy.Check(cmd)
			assert.False(t, verdict.Allowed, "expected %q to be blocked", cmd)
			assert.NotEmpty(t, verdict.Rule)
			assert.NotEmpty(t, verdict.Reason)
		})
	}
}

func TestDefaultPolicyAllows(t *testing.T) {
	policy := DefaultPolicy()

	allowed := []string{
		"echo hello",
		"ls -la /tmp",
		"rm -rf /tmp/build-cache",
		"rm notes.txt",
		"grep -r reboot_count ./docs",
		"cat /etc/hostname",
		"git status",
	}

	for _, cmd := range allowed {
		t.Run(cmd, func(t *testing.T) {
			verdict := policy.Check(cmd)
			assert.True(t, verdict.Allowed, "expected %q to be allowed, blocked by %s", cmd, verdict.Rule)
		})
	}
}

func TestPolicyAllowlistWinsOverDeny(t *testing.T) {
	policy, err := NewPolicy(
		[]DenyRule{{Name: "no-curl", Contains: "curl", Reason: "network fetch disabled"}},
		[]AllowEntry{{Command: "curl https://internal.example/health", Reason: "health probe"}},
	)
	require.NoError(t, err)

	assert.False(t, policy.Check("curl https://example.com").Allowed)

	verdict := policy.Check("curl https://internal.example/health")
	assert.True(t, verdict.Allowed)
	assert.Equal(t, "allowlist", verdict.Rule)
}

func TestPolicyAllowlistGlob(t *testing.T) {
	policy, err := NewPolicy(
		[]DenyRule{{Name: "no-docker", Contains: "docker", Reason: "docker disabled"}},
		[]AllowEntry{{Pattern: "docker ps*"}},
	)
	require.NoError(t, err)

	assert.True(t, policy.Check("docker ps -a").Allowed)
	assert.False(t, policy.Check("docker run alpine").Allowed)
}

func TestNewPolicyRejectsBadRules(t *testing.T) {
	t.Run("empty deny rule", func(t *testing.T) {
		_, err := NewPolicy([]DenyRule{{Name: "empty"}}, nil)
		assert.Error(t, err)
	})

	t.Run("invalid regex", func(t *testing.T) {
		_, err := NewPolicy([]DenyRule{{Name: "bad", Pattern: "([unclosed"}}, nil)
		assert.Error(t, err)
	})

	t.Run("empty allow entry", func(t *testing.T) {
		_, err := NewPolicy(nil, []AllowEntry{{}})
		assert.Error(t, err)
	})
}

func TestLoadPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.json")

	file := policyFile{
		Deny:  []DenyRule{{Name: "no-wget", Contains: "wget", Reason: "network fetch disabled"}},
		Allow: []AllowEntry{{Command: "wget --version"}},
	}
	data, err := json.Marshal(file)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	policy, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.False(t, policy.Check("wget https://example.com").Allowed)
	assert.True(t, policy.Check("wget --version").Allowed)

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPolicy(filepath.Join(dir, "missing.json"))
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
		_, err := LoadPolicy(bad)
		assert.Error(t, err)
	})
}

func TestPolicyHolderSwap(t *testing.T) {
	holder := NewPolicyHolder(DefaultPolicy())
	assert.True(t, holder.Current().Check("echo hi").Allowed)

	strict, err := NewPolicy([]DenyRule{{Name: "all", Pattern: ".*", Reason: "lockdown"}}, nil)
	require.NoError(t, err)
	holder.Replace(strict)

	assert.False(t, holder.Current().Check("echo hi").Allowed)
}
