package delegation

import (
	"context"
	"encoding/json"

	"github.com/hollis/envoy-ai-agent/internal/tools"
)

// Tool names exposed to the model.
const (
	ToolDelegate = "delegate"
	ToolObserve  = "delegate_check"
	ToolContinue = "delegate_continue"
	ToolStop     = "delegate_stop"
	ToolList     = "delegate_list"
)

// RegisterTools adds the five delegation tools to the registry. Every
// handler returns a JSON result with a success flag; domain failures
// are reported inside the result, never as Go errors, so the calling
// model can branch on them.
func RegisterTools(reg *tools.Registry, o *Orchestrator) {
	reg.Register(&tools.Tool{
		Name:        ToolDelegate,
		Description: "Delegate a task to a sub-agent in your workflow. The sub-agent works asynchronously in its own conversation; use delegate_check to collect results.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task": map[string]any{
					"type":        "string",
					"description": "What the sub-agent should do.",
				},
				"agent_id": map[string]any{
					"type":        "string",
					"description": "Target sub-agent id. Preferred when known.",
				},
				"agent_name": map[string]any{
					"type":        "string",
					"description": "Target sub-agent name. Exact matches win; partial matches must be unambiguous.",
				},
				"context": map[string]any{
					"type":        "string",
					"description": "Optional background the sub-agent needs (ids, constraints, prior findings).",
				},
				"run_in_background": map[string]any{
					"type":        "boolean",
					"default":     true,
					"description": "When false, wait for the result before returning instead of delegating asynchronously.",
				},
				"wait_seconds": map[string]any{
					"type":        "integer",
					"description": "With run_in_background=false, how long to wait for completion. Default: 60.",
				},
			},
			"required": []string{"task"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			req := StartRequest{
				AgentID:         argString(args, "agent_id", "agentId"),
				AgentName:       argString(args, "agent_name", "agentName", "name"),
				Task:            argString(args, "task"),
				Context:         argString(args, "context"),
				RunInBackground: argBool(args, true, "run_in_background", "runInBackground"),
				WaitSeconds:     argInt(args, "wait_seconds", "waitSeconds"),
			}
			return marshalResult(o.Start(tools.AgentIDFromContext(ctx), req))
		},
	})

	reg.Register(&tools.Tool{
		Name:        ToolObserve,
		Description: "Check on a delegation you started. Optionally wait for it to finish. Returns the latest response in full plus a short preview of earlier ones.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"delegation_id": map[string]any{
					"type":        "string",
					"description": "The id returned by delegate.",
				},
				"wait_seconds": map[string]any{
					"type":        "integer",
					"description": "Block up to this many seconds for completion (max 600). Omit for an instant check.",
				},
			},
			"required": []string{"delegation_id"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			id := argString(args, "delegation_id", "delegationId", "resume")
			wait := argInt(args, "wait_seconds", "waitSeconds")
			return marshalResult(o.Observe(tools.AgentIDFromContext(ctx), id, wait))
		},
	})

	reg.Register(&tools.Tool{
		Name:        ToolContinue,
		Description: "Send a follow-up message to a delegation. Aborts any still-running attempt and restarts with the new message.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"delegation_id": map[string]any{
					"type":        "string",
					"description": "The id returned by delegate.",
				},
				"message": map[string]any{
					"type":        "string",
					"description": "The follow-up request.",
				},
			},
			"required": []string{"delegation_id", "message"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			id := argString(args, "delegation_id", "delegationId", "resume")
			message := argString(args, "message", "follow_up_message", "task")
			return marshalResult(o.Continue(tools.AgentIDFromContext(ctx), id, message))
		},
	})

	reg.Register(&tools.Tool{
		Name:        ToolStop,
		Description: "Cancel a delegation and discard it immediately.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"delegation_id": map[string]any{
					"type":        "string",
					"description": "The id returned by delegate.",
				},
			},
			"required": []string{"delegation_id"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			id := argString(args, "delegation_id", "delegationId", "resume")
			return marshalResult(o.Stop(tools.AgentIDFromContext(ctx), id))
		},
	})

	reg.Register(&tools.Tool{
		Name:        ToolList,
		Description: "List your delegations and the sub-agents available for delegation in your workflow.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return marshalResult(o.List(tools.AgentIDFromContext(ctx)))
		},
	})
}

func marshalResult(v any) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// argString returns the first non-empty string among the given keys.
// Multiple keys absorb the camelCase/snake_case aliases some models
// emit; internal code only ever sees the canonical value.
func argString(args map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := args[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func argBool(args map[string]any, def bool, keys ...string) bool {
	for _, k := range keys {
		if b, ok := args[k].(bool); ok {
			return b
		}
	}
	return def
}

func argInt(args map[string]any, keys ...string) int {
	for _, k := range keys {
		if f, ok := args[k].(float64); ok {
			return int(f)
		}
	}
	return 0
}
