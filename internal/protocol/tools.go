package protocol

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/safeoutput"
	"github.com/wardenhq/warden/internal/telemetry"
)

// appender turns accepted tool calls into normalized Intent Records. It is
// the single enforcement point keeping the agent inside the capability set
// the operator opted into: a call whose canonical type is not enabled never
// reaches the store.
type appender struct {
	policy  *policy.Document
	store   safeoutput.RecordStore
	logger  *log.Logger
	metrics *telemetry.Metrics
}

func (a *appender) append(ctx context.Context, toolName string, args map[string]any) (safeoutput.Record, error) {
	t := safeoutput.Canonical(toolName)
	if !a.policy.Enabled(t) {
		return safeoutput.Record{}, fmt.Errorf("output type %s is not enabled for this run", t)
	}
	rec, err := safeoutput.NewRecord(toolName, args)
	if err != nil {
		return safeoutput.Record{}, err
	}
	if err := a.store.Append(ctx, rec); err != nil {
		return safeoutput.Record{}, err
	}
	a.metrics.RecordAppended(string(t))
	a.logger.Printf("recorded %s intent", t)
	return rec, nil
}

// mintTempID creates the ephemeral handle returned to the agent for entities
// that will only exist once the apply phase runs.
func mintTempID() string {
	return "aw-" + strings.Split(uuid.NewString(), "-")[0]
}

func requireString(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// RegisterSafeOutputTools registers one tool per output type the run's
// policy enables. tools/list therefore only ever advertises opted-in
// capabilities.
func RegisterSafeOutputTools(s *Server, pol *policy.Document, store safeoutput.RecordStore, metrics *telemetry.Metrics, logger *log.Logger) error {
	a := &appender{policy: pol, store: store, logger: logger, metrics: metrics}
	tools := catalog(a)
	for _, t := range pol.EnabledTypes() {
		tool, ok := tools[t]
		if !ok {
			return fmt.Errorf("no tool definition for output type %s", t)
		}
		if err := s.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// catalog defines the descriptor and call handler for every safe-output
// kind. Free text is sanitized at apply time, not here; the tool boundary
// only normalizes and persists.
func catalog(a *appender) map[safeoutput.Type]Tool {
	return map[safeoutput.Type]Tool{
		safeoutput.TypeCreateIssue: {
			Name:        string(safeoutput.TypeCreateIssue),
			Description: "Propose opening a new issue.",
			InputSchema: objectSchema(map[string]any{
				"title":  map[string]any{"type": "string"},
				"body":   map[string]any{"type": "string"},
				"labels": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			}, "title", "body"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				if _, err := requireString(args, "title"); err != nil {
					return nil, err
				}
				args = withTempID(args)
				if _, err := a.append(ctx, string(safeoutput.TypeCreateIssue), args); err != nil {
					return nil, err
				}
				return TextResult("issue creation recorded, temporary id %s", args["temp_id"]), nil
			},
		},
		safeoutput.TypeAddComment: {
			Name:        string(safeoutput.TypeAddComment),
			Description: "Propose commenting on an issue or pull request.",
			InputSchema: objectSchema(map[string]any{
				"body":        map[string]any{"type": "string"},
				"item_number": map[string]any{"type": "integer"},
				"temp_id":     map[string]any{"type": "string"},
			}, "body"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				if _, err := requireString(args, "body"); err != nil {
					return nil, err
				}
				if _, err := a.append(ctx, string(safeoutput.TypeAddComment), args); err != nil {
					return nil, err
				}
				return TextResult("comment recorded"), nil
			},
		},
		safeoutput.TypeCreatePullRequest: {
			Name:        string(safeoutput.TypeCreatePullRequest),
			Description: "Propose opening a pull request from an existing branch.",
			InputSchema: objectSchema(map[string]any{
				"title":     map[string]any{"type": "string"},
				"body":      map[string]any{"type": "string"},
				"branch":    map[string]any{"type": "string"},
				"base":      map[string]any{"type": "string"},
				"labels":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"reviewers": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			}, "title", "body", "branch"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				for _, key := range []string{"title", "branch"} {
					if _, err := requireString(args, key); err != nil {
						return nil, err
					}
				}
				args = withTempID(args)
				if _, err := a.append(ctx, string(safeoutput.TypeCreatePullRequest), args); err != nil {
					return nil, err
				}
				return TextResult("pull request recorded, temporary id %s", args["temp_id"]), nil
			},
		},
		safeoutput.TypeAddLabels: {
			Name:        string(safeoutput.TypeAddLabels),
			Description: "Propose labeling an issue or pull request.",
			InputSchema: objectSchema(map[string]any{
				"labels":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"item_number": map[string]any{"type": "integer"},
			}, "labels"),
			Handler: simpleRecorder(a, safeoutput.TypeAddLabels, "labels"),
		},
		safeoutput.TypeAddReviewers: {
			Name:        string(safeoutput.TypeAddReviewers),
			Description: "Propose requesting reviews on a pull request.",
			InputSchema: objectSchema(map[string]any{
				"reviewers":           map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"pull_request_number": map[string]any{"type": "integer"},
				"temp_id":             map[string]any{"type": "string"},
			}, "reviewers"),
			Handler: simpleRecorder(a, safeoutput.TypeAddReviewers, "reviewers"),
		},
		safeoutput.TypeUpdateIssue: {
			Name:        string(safeoutput.TypeUpdateIssue),
			Description: "Propose editing an existing issue.",
			InputSchema: objectSchema(map[string]any{
				"title":       map[string]any{"type": "string"},
				"body":        map[string]any{"type": "string"},
				"status":      map[string]any{"type": "string", "enum": []string{"open", "closed"}},
				"item_number": map[string]any{"type": "integer"},
			}),
			Handler: simpleRecorder(a, safeoutput.TypeUpdateIssue),
		},
		safeoutput.TypeUpdatePullRequest: {
			Name:        string(safeoutput.TypeUpdatePullRequest),
			Description: "Propose editing an existing pull request.",
			InputSchema: objectSchema(map[string]any{
				"title":               map[string]any{"type": "string"},
				"body":                map[string]any{"type": "string"},
				"pull_request_number": map[string]any{"type": "integer"},
				"temp_id":             map[string]any{"type": "string"},
			}),
			Handler: simpleRecorder(a, safeoutput.TypeUpdatePullRequest),
		},
		safeoutput.TypeCloseIssue: {
			Name:        string(safeoutput.TypeCloseIssue),
			Description: "Propose closing an issue, optionally with a final comment.",
			InputSchema: objectSchema(map[string]any{
				"comment":     map[string]any{"type": "string"},
				"item_number": map[string]any{"type": "integer"},
			}),
			Handler: simpleRecorder(a, safeoutput.TypeCloseIssue),
		},
		safeoutput.TypeCloseDiscussion: {
			Name:        string(safeoutput.TypeCloseDiscussion),
			Description: "Propose closing a discussion.",
			InputSchema: objectSchema(map[string]any{
				"discussion_number": map[string]any{"type": "integer"},
				"comment":           map[string]any{"type": "string"},
				"reason":            map[string]any{"type": "string"},
			}),
			Handler: simpleRecorder(a, safeoutput.TypeCloseDiscussion),
		},
		safeoutput.TypeMissingTool: {
			Name:        string(safeoutput.TypeMissingTool),
			Description: "Report a capability the agent needed but was not offered.",
			InputSchema: objectSchema(map[string]any{
				"tool":   map[string]any{"type": "string"},
				"reason": map[string]any{"type": "string"},
			}, "tool"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				if _, err := requireString(args, "tool"); err != nil {
					return nil, err
				}
				if _, err := a.append(ctx, string(safeoutput.TypeMissingTool), args); err != nil {
					return nil, err
				}
				return TextResult("missing tool reported"), nil
			},
		},
		safeoutput.TypeNoOp: {
			Name:        string(safeoutput.TypeNoOp),
			Description: "Record a log-only message.",
			InputSchema: objectSchema(map[string]any{
				"message": map[string]any{"type": "string"},
			}, "message"),
			Handler: simpleRecorder(a, safeoutput.TypeNoOp),
		},
	}
}

// simpleRecorder builds a handler that validates nothing beyond required
// list fields and appends the record as-is.
func simpleRecorder(a *appender, t safeoutput.Type, requiredLists ...string) ToolHandler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		for _, key := range requiredLists {
			items, err := policy.StringList(args[key])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			if len(items) == 0 {
				return nil, fmt.Errorf("%s must not be empty", key)
			}
		}
		if _, err := a.append(ctx, string(t), args); err != nil {
			return nil, err
		}
		return TextResult("%s recorded", t), nil
	}
}

func withTempID(args map[string]any) map[string]any {
	out := make(map[string]any, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	out["temp_id"] = mintTempID()
	return out
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
