// Package platform is the capability boundary between validated intents and
// the real collaboration platform. Handlers only ever talk to the API
// interface; how the final request bodies are shaped stays deliberately thin
// and out of the mediation core.
package platform

import (
	"context"
	"encoding/json"
)

// Ref addresses an existing entity.
type Ref struct {
	Repo   string
	Number int
}

// Created describes a freshly created entity.
type Created struct {
	Repo   string
	Number int
	URL    string
}

// NewIssue is the validated input for issue creation.
type NewIssue struct {
	Title  string
	Body   string
	Labels []string
}

// NewPullRequest is the validated input for pull request creation.
type NewPullRequest struct {
	Title  string
	Body   string
	Branch string
	Base   string
	Labels []string
}

// IssueChanges carries the fields an update touches; nil means untouched.
type IssueChanges struct {
	Title *string
	Body  *string
	State *string
}

// API is the Platform API capability. Every method except GraphQuery is a
// mutation; GraphQuery is the read side used for lookups such as finding
// older entities to close.
type API interface {
	CreateIssue(ctx context.Context, repo string, issue NewIssue) (Created, error)
	CreatePullRequest(ctx context.Context, repo string, pr NewPullRequest) (Created, error)
	UpdateIssue(ctx context.Context, ref Ref, changes IssueChanges) error
	UpdatePullRequest(ctx context.Context, ref Ref, changes IssueChanges) error
	CloseIssue(ctx context.Context, ref Ref) error
	CloseDiscussion(ctx context.Context, ref Ref, reason string) error
	Comment(ctx context.Context, ref Ref, body string) (string, error)
	AddLabels(ctx context.Context, ref Ref, labels []string) error
	RequestReviewers(ctx context.Context, ref Ref, reviewers []string) error
	GraphQuery(ctx context.Context, query string, vars map[string]any) (json.RawMessage, error)
}
