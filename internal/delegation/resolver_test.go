package delegation

import (
	"strings"
	"testing"
)

func testCandidates() []Candidate {
	return []Candidate{
		{AgentID: "a1", AgentName: "Research Analyst", Role: "subagent"},
		{AgentID: "a2", AgentName: "Data Analyst", Role: "subagent"},
		{AgentID: "a3", AgentName: "Copywriter", Role: "subagent"},
	}
}

func TestResolveByID(t *testing.T) {
	c, err := resolveCandidate(testCandidates(), "a2", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if c.AgentName != "Data Analyst" {
		t.Errorf("resolved %q", c.AgentName)
	}

	if _, err := resolveCandidate(testCandidates(), "a9", ""); err == nil {
		t.Error("expected error for unknown id")
	}
}

func TestResolveIDWithNameGuard(t *testing.T) {
	// A matching name (any case/spacing) passes.
	if _, err := resolveCandidate(testCandidates(), "a1", "  research  ANALYST "); err != nil {
		t.Errorf("matching name rejected: %v", err)
	}

	// A stale name paired with the id fails loudly.
	_, err := resolveCandidate(testCandidates(), "a1", "Data Analyst")
	if err == nil || !strings.Contains(err.Error(), "does not match") {
		t.Errorf("expected mismatch error, got %v", err)
	}
}

func TestResolveExactName(t *testing.T) {
	c, err := resolveCandidate(testCandidates(), "", "data analyst")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if c.AgentID != "a2" {
		t.Errorf("resolved %q", c.AgentID)
	}
}

func TestResolveExactBeatsSubstring(t *testing.T) {
	// "Analyst" appears in two names, but an exact "Copywriter" match
	// must never be disturbed by that.
	cands := append(testCandidates(), Candidate{AgentID: "a4", AgentName: "analyst", Role: "subagent"})
	c, err := resolveCandidate(cands, "", "Analyst")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if c.AgentID != "a4" {
		t.Errorf("exact match should win, got %q", c.AgentID)
	}
}

func TestResolveSubstring(t *testing.T) {
	c, err := resolveCandidate(testCandidates(), "", "copy")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if c.AgentID != "a3" {
		t.Errorf("resolved %q", c.AgentID)
	}
}

func TestResolveAmbiguousSubstring(t *testing.T) {
	_, err := resolveCandidate(testCandidates(), "", "Analyst")
	if err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Fatalf("expected ambiguity, got %v", err)
	}
	if !strings.Contains(err.Error(), "2") {
		t.Errorf("error should name the match count: %v", err)
	}
}

func TestResolveAmbiguousExact(t *testing.T) {
	cands := []Candidate{
		{AgentID: "x1", AgentName: "Scout"},
		{AgentID: "x2", AgentName: "scout"},
	}
	_, err := resolveCandidate(cands, "", "SCOUT")
	if err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Errorf("expected exact-match ambiguity, got %v", err)
	}
}

func TestResolveNoMatch(t *testing.T) {
	_, err := resolveCandidate(testCandidates(), "", "Astronomer")
	if err == nil || !strings.Contains(err.Error(), "no delegable agent") {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestResolveRequiresSelector(t *testing.T) {
	_, err := resolveCandidate(testCandidates(), "", "")
	if err == nil || !strings.Contains(err.Error(), "required") {
		t.Errorf("expected selector-required error, got %v", err)
	}
}

func TestNormalizeName(t *testing.T) {
	if normalizeName("  Research\tAnalyst ") != "researchanalyst" {
		t.Errorf("normalize = %q", normalizeName("  Research\tAnalyst "))
	}
}
