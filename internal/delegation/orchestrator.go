package delegation

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hollis/envoy-ai-agent/internal/workflow"
)

const (
	// defaultRetention is how long a settled delegation stays visible
	// before lazy eviction.
	defaultRetention = 10 * time.Minute

	// defaultMaxObserveWait caps the observe wait window.
	defaultMaxObserveWait = 600 * time.Second

	// continueGrace is how long continue waits for an aborted attempt
	// to wind down before restarting.
	continueGrace = 100 * time.Millisecond

	// Earlier-response preview budget: the latest assistant response is
	// returned in full, older ones as a bounded, truncated preview.
	previewCount    = 3
	previewMaxChars = 400
)

// Directory is the read-only workflow lookup the orchestrator consults
// for authorization and candidate discovery.
type Directory interface {
	Membership(agentID string) *workflow.Member
	Members(workflowID string) []workflow.Member
}

// ConversationStore creates the independent conversations that host
// delegate executions.
type ConversationStore interface {
	CreateConversation(title, ownerID string, metadata map[string]string) (string, error)
}

// Options tune the orchestrator. Zero values select defaults.
type Options struct {
	Retention      time.Duration
	MaxObserveWait time.Duration
}

// Orchestrator exposes the five delegation operations. All failures are
// reported in the result structs; no operation returns a Go error
// across this boundary.
type Orchestrator struct {
	logger        *slog.Logger
	directory     Directory
	conversations ConversationStore
	messages      MessageStore
	engine        *Engine
	reg           *registry
	retention     time.Duration
	maxWait       time.Duration
}

// NewOrchestrator wires the orchestrator to its collaborators. It binds
// to the process-wide delegation registry.
func NewOrchestrator(logger *slog.Logger, directory Directory, conversations ConversationStore, messages MessageStore, engine *Engine, opts Options) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.MaxObserveWait <= 0 {
		opts.MaxObserveWait = defaultMaxObserveWait
	}
	return &Orchestrator{
		logger:        logger.With("component", "delegation"),
		directory:     directory,
		conversations: conversations,
		messages:      messages,
		engine:        engine,
		reg:           procRegistry,
		retention:     opts.Retention,
		maxWait:       opts.MaxObserveWait,
	}
}

// StartRequest is the canonical input shape for Start. Boundary aliases
// (runInBackground, resume) are normalized by the tool layer before
// this struct is built.
type StartRequest struct {
	AgentID         string
	AgentName       string
	Task            string
	Context         string
	RunInBackground bool
	WaitSeconds     int
}

// StartResult reports the outcome of Start.
type StartResult struct {
	Success        bool         `json:"success"`
	Error          string       `json:"error,omitempty"`
	DelegationID   string       `json:"delegation_id,omitempty"`
	DelegateName   string       `json:"delegate_name,omitempty"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Candidates     []Candidate  `json:"candidates,omitempty"`
	Observation    *Observation `json:"observation,omitempty"`
}

// Observation reports delegation progress to the delegator.
type Observation struct {
	Success          bool     `json:"success"`
	Error            string   `json:"error,omitempty"`
	DelegationID     string   `json:"delegation_id,omitempty"`
	DelegateName     string   `json:"delegate_name,omitempty"`
	Task             string   `json:"task,omitempty"`
	Running          bool     `json:"running"`
	Completed        bool     `json:"completed"`
	WaitTimedOut     bool     `json:"wait_timed_out,omitempty"`
	ElapsedSeconds   float64  `json:"elapsed_seconds,omitempty"`
	MessageCount     int      `json:"message_count"`
	ToolMessageCount int      `json:"tool_message_count"`
	LastError        string   `json:"last_error,omitempty"`
	LastResponse     string   `json:"last_response,omitempty"`
	EarlierResponses []string `json:"earlier_responses,omitempty"`
}

// ContinueResult reports the outcome of Continue.
type ContinueResult struct {
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	DelegationID string `json:"delegation_id,omitempty"`
	DelegateName string `json:"delegate_name,omitempty"`
}

// StopResult reports the outcome of Stop.
type StopResult struct {
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	DelegationID string `json:"delegation_id,omitempty"`
	DelegateName string `json:"delegate_name,omitempty"`
}

// Summary is one delegation in a List result.
type Summary struct {
	DelegationID   string  `json:"delegation_id"`
	DelegateID     string  `json:"delegate_id"`
	DelegateName   string  `json:"delegate_name"`
	Task           string  `json:"task,omitempty"`
	Running        bool    `json:"running"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	LastError      string  `json:"last_error,omitempty"`
}

// ListResult reports the caller's delegations and the current candidate
// directory for their workflow.
type ListResult struct {
	Success     bool        `json:"success"`
	Error       string      `json:"error,omitempty"`
	Delegations []Summary   `json:"delegations"`
	Candidates  []Candidate `json:"candidates"`
}

// Start resolves a candidate, creates the delegate's conversation, and
// launches execution in the background. With RunInBackground false it
// additionally performs a bounded observe wait before returning.
func (o *Orchestrator) Start(delegatorID string, req StartRequest) StartResult {
	if req.Task == "" {
		return StartResult{Error: "task is required"}
	}

	membership := o.directory.Membership(delegatorID)
	if membership == nil {
		return StartResult{Error: "you are not a member of any workflow"}
	}
	if membership.Role != workflow.RoleInitiator {
		return StartResult{Error: "only workflow initiators may delegate"}
	}

	candidates := candidatesFrom(o.directory.Members(membership.Workflow))

	cand, err := resolveCandidate(candidates, req.AgentID, req.AgentName)
	if err != nil {
		return StartResult{Error: err.Error(), Candidates: candidates}
	}
	if cand.AgentID == delegatorID {
		return StartResult{Error: "self-delegation is not allowed"}
	}

	if existing := o.reg.active(delegatorID, cand.AgentID); existing != nil {
		return StartResult{
			Error:        fmt.Sprintf("Active delegation already exists to %s; observe or continue it instead", cand.AgentName),
			DelegationID: existing.ID,
			DelegateName: cand.AgentName,
		}
	}

	id := newDelegationID()
	convID, err := o.conversations.CreateConversation(
		fmt.Sprintf("Delegation to %s", cand.AgentName),
		cand.AgentID,
		map[string]string{
			"delegation_id": id,
			"delegator_id":  delegatorID,
			"workflow_id":   membership.Workflow,
		},
	)
	if err != nil {
		return StartResult{Error: fmt.Sprintf("create conversation: %v", err)}
	}

	d := &Delegation{
		ID:             id,
		ConversationID: convID,
		DelegatorID:    delegatorID,
		DelegateID:     cand.AgentID,
		DelegateName:   cand.AgentName,
		WorkflowID:     membership.Workflow,
		StartedAt:      time.Now(),
	}

	// Re-check under the registry lock: two concurrent starts to the
	// same delegate must collapse into one entry.
	if conflict := o.reg.insert(d); conflict != nil {
		return StartResult{
			Error:        fmt.Sprintf("Active delegation already exists to %s; observe or continue it instead", cand.AgentName),
			DelegationID: conflict.ID,
			DelegateName: cand.AgentName,
		}
	}

	message := req.Task
	if req.Context != "" {
		message += "\n\nContext: " + req.Context
	}
	o.engine.Execute(d, message)

	o.logger.Info("delegation started",
		"delegationID", d.ID,
		"delegator", delegatorID,
		"delegate", cand.AgentID,
		"workflowID", membership.Workflow,
	)

	result := StartResult{
		Success:        true,
		DelegationID:   d.ID,
		DelegateName:   cand.AgentName,
		ConversationID: convID,
	}

	if !req.RunInBackground {
		wait := req.WaitSeconds
		if wait <= 0 {
			wait = 60
		}
		obs := o.Observe(delegatorID, d.ID, wait)
		result.Observation = &obs
	}
	return result
}

// Observe reports the delegation's state. With waitSeconds > 0 it races
// settlement against a timer (capped at the configured maximum, 600
// seconds by default) and returns whichever resolves first.
func (o *Orchestrator) Observe(delegatorID, delegationID string, waitSeconds int) Observation {
	if delegationID == "" {
		return Observation{Error: "delegation_id is required"}
	}

	d := o.lookup(delegatorID, delegationID)
	if d == nil {
		return Observation{Error: fmt.Sprintf("delegation %s not found", delegationID)}
	}

	waitTimedOut := false
	if !d.Settled() && waitSeconds > 0 {
		wait := time.Duration(waitSeconds) * time.Second
		if wait > o.maxWait {
			wait = o.maxWait
		}
		timer := time.NewTimer(wait)
		select {
		case <-d.Done():
			timer.Stop()
		case <-timer.C:
			waitTimedOut = !d.Settled()
		}
	}

	obs := Observation{
		Success:        true,
		DelegationID:   d.ID,
		DelegateName:   d.DelegateName,
		Task:           d.Task(),
		Running:        !d.Settled(),
		Completed:      d.Settled(),
		WaitTimedOut:   waitTimedOut,
		ElapsedSeconds: time.Since(d.StartedAt).Seconds(),
		LastError:      d.LastError(),
	}

	var responses []string
	for _, m := range o.messages.GetMessages(d.ConversationID) {
		obs.MessageCount++
		switch m.Role {
		case "assistant":
			responses = append(responses, m.Content)
		case "tool":
			obs.ToolMessageCount++
		}
	}
	if len(responses) > 0 {
		obs.LastResponse = responses[len(responses)-1]
		obs.EarlierResponses = previewEarlier(responses[:len(responses)-1])
	}
	return obs
}

// Continue supersedes any in-flight attempt with a follow-up message:
// abort first, wait briefly for the abort to land, then restart. Never
// queue-and-wait.
func (o *Orchestrator) Continue(delegatorID, delegationID, message string) ContinueResult {
	if delegationID == "" {
		return ContinueResult{Error: "delegation_id is required"}
	}
	if message == "" {
		return ContinueResult{Error: "message is required"}
	}

	d := o.lookup(delegatorID, delegationID)
	if d == nil {
		return ContinueResult{Error: fmt.Sprintf("delegation %s not found", delegationID)}
	}

	if !d.Settled() {
		d.abort()
		timer := time.NewTimer(continueGrace)
		select {
		case <-d.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	o.engine.Execute(d, message)

	o.logger.Info("delegation continued",
		"delegationID", d.ID,
		"delegator", delegatorID,
	)
	return ContinueResult{Success: true, DelegationID: d.ID, DelegateName: d.DelegateName}
}

// Stop aborts the delegation and removes it immediately. A stopped
// delegation is gone: a repeat stop reports not found.
func (o *Orchestrator) Stop(delegatorID, delegationID string) StopResult {
	if delegationID == "" {
		return StopResult{Error: "delegation_id is required"}
	}

	d := o.lookup(delegatorID, delegationID)
	if d == nil {
		return StopResult{Error: fmt.Sprintf("delegation %s not found", delegationID)}
	}

	d.abort()
	o.reg.remove(d.ID)

	o.logger.Info("delegation stopped",
		"delegationID", d.ID,
		"delegator", delegatorID,
	)
	return StopResult{Success: true, DelegationID: d.ID, DelegateName: d.DelegateName}
}

// List returns the caller's non-evicted delegations and the candidate
// directory for their workflow. Useful both for discovering delegable
// agents and recovering lost delegation ids.
func (o *Orchestrator) List(delegatorID string) ListResult {
	membership := o.directory.Membership(delegatorID)
	if membership == nil {
		return ListResult{Error: "you are not a member of any workflow"}
	}

	var candidates []Candidate
	for _, c := range candidatesFrom(o.directory.Members(membership.Workflow)) {
		if c.AgentID == delegatorID {
			continue
		}
		candidates = append(candidates, c)
	}

	entries := o.reg.listByDelegator(delegatorID, o.retention)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StartedAt.Before(entries[j].StartedAt)
	})

	summaries := make([]Summary, 0, len(entries))
	for _, d := range entries {
		summaries = append(summaries, Summary{
			DelegationID:   d.ID,
			DelegateID:     d.DelegateID,
			DelegateName:   d.DelegateName,
			Task:           d.Task(),
			Running:        !d.Settled(),
			ElapsedSeconds: time.Since(d.StartedAt).Seconds(),
			LastError:      d.LastError(),
		})
	}

	return ListResult{Success: true, Delegations: summaries, Candidates: candidates}
}

// lookup finds a delegation scoped to its owner, treating expired
// entries as absent. An evicted delegation is indistinguishable from
// one that never existed.
func (o *Orchestrator) lookup(delegatorID, id string) *Delegation {
	d := o.reg.get(id)
	if d == nil || d.DelegatorID != delegatorID {
		return nil
	}
	if d.expired(o.retention, time.Now()) {
		o.reg.remove(id)
		return nil
	}
	return d
}

// previewEarlier keeps the most recent previewCount responses, each
// clipped to previewMaxChars. Full history is deliberately withheld to
// bound the caller's context growth.
func previewEarlier(responses []string) []string {
	if len(responses) > previewCount {
		responses = responses[len(responses)-previewCount:]
	}
	out := make([]string, len(responses))
	for i, r := range responses {
		if runes := []rune(r); len(runes) > previewMaxChars {
			r = string(runes[:previewMaxChars]) + "..."
		}
		out[i] = r
	}
	return out
}
