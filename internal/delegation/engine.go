package delegation

import (
	"context"
	"log/slog"
	"time"

	"github.com/hollis/envoy-ai-agent/internal/completions"
	"github.com/hollis/envoy-ai-agent/internal/memory"
)

// Default convergence-polling budget: 20 attempts at 300ms, max 6s.
const (
	defaultPollAttempts = 20
	defaultPollInterval = 300 * time.Millisecond
)

// MessageStore is the read side of conversation storage the engine
// polls for persisted messages.
type MessageStore interface {
	GetMessages(conversationID string) []memory.Message
}

// Engine runs delegation execution attempts in the background. It is
// the only component that replaces a delegation's cancel handle and
// done channel.
type Engine struct {
	logger       *slog.Logger
	endpoint     completions.Endpoint
	messages     MessageStore
	pollAttempts int
	pollInterval time.Duration
}

// NewEngine creates an execution engine. pollAttempts and pollInterval
// bound the post-stream convergence loop; zero values use the defaults.
func NewEngine(logger *slog.Logger, endpoint completions.Endpoint, messages MessageStore, pollAttempts int, pollInterval time.Duration) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if pollAttempts <= 0 {
		pollAttempts = defaultPollAttempts
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Engine{
		logger:       logger.With("component", "delegation"),
		endpoint:     endpoint,
		messages:     messages,
		pollAttempts: pollAttempts,
		pollInterval: pollInterval,
	}
}

// Execute arms the delegation with a fresh cancel handle and settlement
// channel, then runs the attempt in the background. It returns
// immediately; settlement is observable via the delegation itself.
func (e *Engine) Execute(d *Delegation, message string) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	gen := d.beginAttempt(message, cancel, done)

	go func() {
		defer close(done)
		defer cancel()
		e.run(ctx, d, gen, message)
	}()
}

// run performs one execution attempt: invoke the completion endpoint,
// drain its stream, then poll until the assistant's message is durably
// persisted. Stream completion does not guarantee the persistence write
// has committed, hence the second phase.
func (e *Engine) run(ctx context.Context, d *Delegation, gen uint64, message string) {
	start := time.Now()
	e.logger.Info("delegation attempt started",
		"delegationID", d.ID,
		"delegate", d.DelegateID,
		"conversationID", d.ConversationID,
	)

	stream, err := e.endpoint.Invoke(ctx, d.ConversationID, d.DelegateID, message)
	if err != nil {
		// Transport-level rejection settles the attempt immediately; no retry.
		e.logger.Warn("delegation completion request failed",
			"delegationID", d.ID,
			"error", err,
		)
		d.settle(gen, err.Error())
		return
	}

	if err := completions.Drain(stream); err != nil {
		e.logger.Warn("delegation stream aborted",
			"delegationID", d.ID,
			"error", err,
		)
		d.settle(gen, err.Error())
		return
	}

	if !e.awaitAssistantMessage(d.ConversationID) {
		// Settled without a visible response. Soft edge: observe will
		// report absent content, not a failure.
		e.logger.Warn("delegation settled without persisted assistant message",
			"delegationID", d.ID,
			"conversationID", d.ConversationID,
			"attempts", e.pollAttempts,
		)
	}

	d.settle(gen, "")
	e.logger.Info("delegation attempt settled",
		"delegationID", d.ID,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
}

// awaitAssistantMessage polls the message store until at least one
// assistant-authored message exists for the conversation. The loop is
// bounded by its retry budget and deliberately not cancellable.
func (e *Engine) awaitAssistantMessage(conversationID string) bool {
	for attempt := 0; attempt < e.pollAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(e.pollInterval)
		}
		for _, m := range e.messages.GetMessages(conversationID) {
			if m.Role == "assistant" {
				return true
			}
		}
	}
	return false
}
