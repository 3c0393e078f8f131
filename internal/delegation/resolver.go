package delegation

import (
	"fmt"
	"strings"

	"github.com/hollis/envoy-ai-agent/internal/workflow"
)

// Candidate is a delegable sub-agent, derived fresh from workflow
// membership on every resolution. Never cached.
type Candidate struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Role      string `json:"role"`
	Purpose   string `json:"purpose,omitempty"`
}

// candidatesFrom converts workflow members to candidates. Only subagent
// members qualify.
func candidatesFrom(members []workflow.Member) []Candidate {
	var out []Candidate
	for _, m := range members {
		if m.Role != workflow.RoleSubagent {
			continue
		}
		out = append(out, Candidate{
			AgentID:   m.AgentID,
			AgentName: m.Name,
			Role:      m.Role,
			Purpose:   m.Purpose,
		})
	}
	return out
}

// normalizeName lowercases and strips all whitespace so that matching
// is insensitive to case and spacing ("Research  Analyst" == "research analyst").
func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "")
}

// resolveCandidate picks exactly one candidate by id and/or name.
//
// With an id, the candidate must exist; a name given alongside an id
// must match the resolved candidate (guards against a stale id/name
// pair). With only a name, exact matches are tried before substring
// matches; multiple matches at either stage are an ambiguity the caller
// must resolve with agent_id.
func resolveCandidate(candidates []Candidate, agentID, agentName string) (*Candidate, error) {
	if agentID == "" && agentName == "" {
		return nil, fmt.Errorf("either agent_id or agent_name is required")
	}

	if agentID != "" {
		for i := range candidates {
			c := &candidates[i]
			if c.AgentID != agentID {
				continue
			}
			if agentName != "" && normalizeName(agentName) != normalizeName(c.AgentName) {
				return nil, fmt.Errorf("agent_name %q does not match agent %q (id %s)", agentName, c.AgentName, agentID)
			}
			return c, nil
		}
		return nil, fmt.Errorf("no delegable agent with id %q", agentID)
	}

	want := normalizeName(agentName)

	var exact []*Candidate
	for i := range candidates {
		if normalizeName(candidates[i].AgentName) == want {
			exact = append(exact, &candidates[i])
		}
	}
	switch len(exact) {
	case 1:
		return exact[0], nil
	case 0:
		// Fall through to substring matching.
	default:
		return nil, fmt.Errorf("agent name %q is ambiguous: %d exact matches; use agent_id", agentName, len(exact))
	}

	var partial []*Candidate
	for i := range candidates {
		if strings.Contains(normalizeName(candidates[i].AgentName), want) {
			partial = append(partial, &candidates[i])
		}
	}
	switch len(partial) {
	case 1:
		return partial[0], nil
	case 0:
		return nil, fmt.Errorf("no delegable agent matches name %q", agentName)
	default:
		return nil, fmt.Errorf("agent name %q is ambiguous: %d partial matches; use agent_id", agentName, len(partial))
	}
}
