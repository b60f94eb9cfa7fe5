// Package safeoutput defines the Intent Record data model: the typed,
// agent-proposed actions accumulated at agent time and applied (or previewed)
// at apply time.
package safeoutput

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Type identifies one safe-output kind. Canonical spelling uses underscores;
// producers using dashes converge on the same key via Canonical.
type Type string

const (
	TypeCreateIssue       Type = "create_issue"
	TypeAddComment        Type = "add_comment"
	TypeCreatePullRequest Type = "create_pull_request"
	TypeAddLabels         Type = "add_labels"
	TypeAddReviewers      Type = "add_reviewers"
	TypeUpdateIssue       Type = "update_issue"
	TypeUpdatePullRequest Type = "update_pull_request"
	TypeCloseIssue        Type = "close_issue"
	TypeCloseDiscussion   Type = "close_discussion"
	TypeMissingTool       Type = "missing_tool"
	TypeNoOp              Type = "noop"
)

// AllTypes lists every recognized safe-output kind, in the order tools are
// advertised and preview sections are rendered.
var AllTypes = []Type{
	TypeCreateIssue,
	TypeAddComment,
	TypeCreatePullRequest,
	TypeAddLabels,
	TypeAddReviewers,
	TypeUpdateIssue,
	TypeUpdatePullRequest,
	TypeCloseIssue,
	TypeCloseDiscussion,
	TypeMissingTool,
	TypeNoOp,
}

// Canonical normalizes a produced type name to the canonical underscore
// spelling. The mapping is one-way: "create-issue" and "create_issue" both
// become "create_issue".
func Canonical(s string) Type {
	return Type(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
}

// Known reports whether t is a recognized safe-output kind.
func Known(t Type) bool {
	for _, k := range AllTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Record is one Intent Record: a tagged envelope whose payload decodes into
// exactly one per-type variant. Raw retains the full original object so the
// envelope round-trips through the newline-delimited store unchanged.
type Record struct {
	Type Type
	Raw  json.RawMessage
}

// NewRecord builds a Record from a tool name and its arguments map.
func NewRecord(toolName string, args map[string]any) (Record, error) {
	t := Canonical(toolName)
	obj := make(map[string]any, len(args)+1)
	for k, v := range args {
		obj[k] = v
	}
	obj["type"] = string(t)
	raw, err := json.Marshal(obj)
	if err != nil {
		return Record{}, fmt.Errorf("encoding %s record: %w", t, err)
	}
	return Record{Type: t, Raw: raw}, nil
}

// MarshalJSON emits the flat record object with its canonical type tag.
func (r Record) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	return json.Marshal(map[string]string{"type": string(r.Type)})
}

// UnmarshalJSON accepts a flat record object and extracts the type tag.
func (r *Record) UnmarshalJSON(b []byte) error {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &tag); err != nil {
		return err
	}
	// A record without a type is still a record; the dispatcher skips
	// unrecognized types one item at a time, so a single stray entry
	// must not reject the surrounding document.
	r.Type = Canonical(tag.Type)
	r.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// Decode unmarshals a record's payload into one typed variant.
func Decode[T any](r Record) (T, error) {
	var v T
	if err := json.Unmarshal(r.Raw, &v); err != nil {
		return v, fmt.Errorf("decoding %s record: %w", r.Type, err)
	}
	return v, nil
}

// Document is the full parsed intent payload for one run.
type Document struct {
	Items []Record `json:"items"`
}

// OfType filters the document to records of one kind, preserving order.
func (d Document) OfType(t Type) []Record {
	var out []Record
	for _, r := range d.Items {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// TargetRef carries the optional explicit-target fields shared by every
// targeted output type. TempID, when set, names an entity created earlier in
// the same batch and resolves through the temporary-ID map.
type TargetRef struct {
	ItemNumber        int    `json:"item_number,omitempty"`
	IssueNumber       int    `json:"issue_number,omitempty"`
	PullRequestNumber int    `json:"pull_request_number,omitempty"`
	TempID            string `json:"temp_id,omitempty"`
}

// CreateIssue proposes opening a new issue. TempID is the ephemeral handle
// handed back to the agent when the intent was recorded, so later records in
// the same batch can reference the issue before it exists.
type CreateIssue struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
	TempID string   `json:"temp_id,omitempty"`
}

// AddComment proposes commenting on an issue or pull request.
type AddComment struct {
	TargetRef
	Body string `json:"body"`
}

// CreatePullRequest proposes opening a pull request from an existing branch.
type CreatePullRequest struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Branch    string   `json:"branch"`
	Base      string   `json:"base,omitempty"`
	Labels    []string `json:"labels,omitempty"`
	Reviewers []string `json:"reviewers,omitempty"`
	TempID    string   `json:"temp_id,omitempty"`
}

// AddLabels proposes labeling an issue or pull request.
type AddLabels struct {
	TargetRef
	Labels []string `json:"labels"`
}

// AddReviewers proposes requesting reviews on a pull request.
type AddReviewers struct {
	TargetRef
	Reviewers []string `json:"reviewers"`
}

// UpdateIssue proposes editing an existing issue. Nil fields stay untouched.
type UpdateIssue struct {
	TargetRef
	Title  *string `json:"title,omitempty"`
	Body   *string `json:"body,omitempty"`
	Status *string `json:"status,omitempty"`
}

// UpdatePullRequest proposes editing an existing pull request.
type UpdatePullRequest struct {
	TargetRef
	Title *string `json:"title,omitempty"`
	Body  *string `json:"body,omitempty"`
}

// CloseIssue proposes closing an issue, optionally with a final comment.
type CloseIssue struct {
	TargetRef
	Comment string `json:"comment,omitempty"`
}

// CloseDiscussion proposes closing a discussion.
type CloseDiscussion struct {
	DiscussionNumber int    `json:"discussion_number,omitempty"`
	Comment          string `json:"comment,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// MissingTool reports a capability the agent needed but was not offered.
// It never reaches the platform; it only surfaces in logs and the summary.
type MissingTool struct {
	Tool   string `json:"tool"`
	Reason string `json:"reason,omitempty"`
}

// NoOp carries a log-only message.
type NoOp struct {
	Message string `json:"message"`
}
