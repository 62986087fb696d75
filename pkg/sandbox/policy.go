package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Verdict is the outcome of a policy check.
type Verdict struct {
	Allowed bool
	Rule    string // name of the matching rule, "" when nothing matched
	Reason  string
}

// DenyRule blocks commands matching a substring or a regular
// expression. Rules are data, not code: the table can be unit-tested
// exhaustively and extended without touching execution logic.
type DenyRule struct {
	Name     string `json:"name"`
	Contains string `json:"contains,omitempty"`
	Pattern  string `json:"pattern,omitempty"`
	Reason   string `json:"reason"`

	re *regexp.Regexp
}

// AllowEntry exempts an exact command or a glob pattern from the deny
// table. Entries are checked before deny rules.
type AllowEntry struct {
	Command string `json:"command,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Policy is the command security policy: an ordered deny table plus an
// optional allowlist of exemptions. Checking is a pure function with
// no observable side effect; the policy itself is immutable once
// compiled, so concurrent checks need no coordination.
type Policy struct {
	deny  []DenyRule
	allow []AllowEntry
}

// policyFile is the on-disk shape of a policy.
type policyFile struct {
	Deny  []DenyRule   `json:"deny"`
	Allow []AllowEntry `json:"allow"`
}

// NewPolicy compiles a policy from rule tables. Invalid regular
// expressions fail compilation.
func NewPolicy(deny []DenyRule, allow []AllowEntry) (*Policy, error) {
	compiled := make([]DenyRule, len(deny))
	for i, rule := range deny {
		if rule.Contains == "" && rule.Pattern == "" {
			return nil, fmt.Errorf("deny rule %q: either contains or pattern must be set", rule.Name)
		}
		if rule.Pattern != "" {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("deny rule %q: invalid pattern: %w", rule.Name, err)
			}
			rule.re = re
		}
		compiled[i] = rule
	}

	for _, entry := range allow {
		if entry.Command == "" && entry.Pattern == "" {
			return nil, fmt.Errorf("allow entry: either command or pattern must be set")
		}
	}

	return &Policy{deny: compiled, allow: allow}, nil
}

// DefaultPolicy returns the built-in deny table: destructive
// filesystem-wide operations, privilege escalation, fork bombs, raw
// device writes, and host shutdown.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(defaultDenyRules(), nil)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in policy: %v", err))
	}
	return p
}

func defaultDenyRules() []DenyRule {
	return []DenyRule{
		{
			Name:    "recursive-root-delete",
			Pattern: `rm\s+(-[a-zA-Z]*\s+)*-[a-zA-Z]*[rR][a-zA-Z]*\s+(-[a-zA-Z]*\s+)*(/|/\*)(\s|$)`,
			Reason:  "recursive deletion of the filesystem root",
		},
		{
			Name:    "privilege-escalation",
			Pattern: `(^|\s|;|&|\|)sudo\s`,
			Reason:  "privilege escalation is not permitted",
		},
		{
			Name:     "fork-bomb",
			Contains: ":(){ :|:& };:",
			Reason:   "fork bomb",
		},
		{
			Name:    "raw-device-write",
			Pattern: `dd\s+.*of=/dev/`,
			Reason:  "raw write to a block device",
		},
		{
			Name:    "mkfs",
			Pattern: `(^|\s|;|&|\|)mkfs(\.|\s)`,
			Reason:  "filesystem creation over an existing device",
		},
		{
			Name:    "host-shutdown",
			Pattern: `(^|\s|;|&|\|)(shutdown|reboot|halt|poweroff)(\s|$)`,
			Reason:  "host shutdown or reboot",
		},
		{
			Name:    "chmod-root",
			Pattern: `chmod\s+(-[a-zA-Z]*\s+)*[0-7]{3,4}\s+/(\s|$)`,
			Reason:  "permission change on the filesystem root",
		},
	}
}

// LoadPolicy reads and compiles a policy from a JSON file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var file policyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	policy, err := NewPolicy(file.Deny, file.Allow)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("path", path).
		Int("deny_rules", len(file.Deny)).
		Int("allow_entries", len(file.Allow)).
		Msg("Security policy loaded")

	return policy, nil
}

// Check matches a command against the policy. Allow entries win over
// deny rules; with no match the command is allowed.
func (p *Policy) Check(cmd string) Verdict {
	trimmed := strings.TrimSpace(cmd)

	for _, entry := range p.allow {
		if entry.Command != "" && entry.Command == trimmed {
			return Verdict{Allowed: true, Rule: "allowlist", Reason: entry.Reason}
		}
		if entry.Pattern != "" {
			if matched, err := filepath.Match(entry.Pattern, trimmed); err == nil && matched {
				return Verdict{Allowed: true, Rule: "allowlist", Reason: entry.Reason}
			}
		}
	}

	for _, rule := range p.deny {
		if rule.Contains != "" && strings.Contains(trimmed, rule.Contains) {
			return Verdict{Allowed: false, Rule: rule.Name, Reason: rule.Reason}
		}
		if rule.re != nil && rule.re.MatchString(trimmed) {
			return Verdict{Allowed: false, Rule: rule.Name, Reason: rule.Reason}
		}
	}

	return Verdict{Allowed: true}
}

// PolicyHolder is a swappable reference to the current policy, used by
// the sandbox when the policy file is hot-reloaded. Reads are cheap
// and concurrent-safe.
type PolicyHolder struct {
	mu     sync.RWMutex
	policy *Policy
}

// NewPolicyHolder wraps a policy for hot reloading.
func NewPolicyHolder(policy *Policy) *PolicyHolder {
	return &PolicyHolder{policy: policy}
}

// Current returns the active policy.
func (h *PolicyHolder) Current() *Policy {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.policy
}

// Replace swaps in a new policy.
func (h *PolicyHolder) Replace(policy *Policy) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.policy = policy
}
