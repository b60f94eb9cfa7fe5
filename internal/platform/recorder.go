package platform

import (
	"context"
	"encoding/json"
	"fmt"
)

// Call is one recorded capability invocation.
type Call struct {
	Method string
	Repo   string
	Number int
	Detail string
}

// Recorder implements API without touching any platform. It counts mutations
// so staged mode can prove the zero-mutation invariant, and it doubles as
// the dispatcher test fake. Created entities get deterministic ascending
// numbers starting above any realistic triggering number.
type Recorder struct {
	Calls      []Call
	Mutations  int
	Queries    int
	FailOn     string // method name that should return an error, for tests
	GraphReply json.RawMessage

	nextNumber int
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{nextNumber: 1000}
}

func (r *Recorder) mutate(method, repo string, number int, detail string) error {
	r.Mutations++
	r.Calls = append(r.Calls, Call{Method: method, Repo: repo, Number: number, Detail: detail})
	if r.FailOn == method {
		return fmt.Errorf("%s: simulated platform failure", method)
	}
	return nil
}

func (r *Recorder) CreateIssue(ctx context.Context, repo string, issue NewIssue) (Created, error) {
	r.nextNumber++
	if err := r.mutate("CreateIssue", repo, r.nextNumber, issue.Title); err != nil {
		return Created{}, err
	}
	return Created{Repo: repo, Number: r.nextNumber, URL: fmt.Sprintf("https://github.com/%s/issues/%d", repo, r.nextNumber)}, nil
}

func (r *Recorder) CreatePullRequest(ctx context.Context, repo string, pr NewPullRequest) (Created, error) {
	r.nextNumber++
	if err := r.mutate("CreatePullRequest", repo, r.nextNumber, pr.Title); err != nil {
		return Created{}, err
	}
	return Created{Repo: repo, Number: r.nextNumber, URL: fmt.Sprintf("https://github.com/%s/pull/%d", repo, r.nextNumber)}, nil
}

func (r *Recorder) UpdateIssue(ctx context.Context, ref Ref, changes IssueChanges) error {
	return r.mutate("UpdateIssue", ref.Repo, ref.Number, "")
}

func (r *Recorder) UpdatePullRequest(ctx context.Context, ref Ref, changes IssueChanges) error {
	return r.mutate("UpdatePullRequest", ref.Repo, ref.Number, "")
}

func (r *Recorder) CloseIssue(ctx context.Context, ref Ref) error {
	return r.mutate("CloseIssue", ref.Repo, ref.Number, "")
}

func (r *Recorder) CloseDiscussion(ctx context.Context, ref Ref, reason string) error {
	return r.mutate("CloseDiscussion", ref.Repo, ref.Number, reason)
}

func (r *Recorder) Comment(ctx context.Context, ref Ref, body string) (string, error) {
	if err := r.mutate("Comment", ref.Repo, ref.Number, body); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://github.com/%s/issues/%d#comment", ref.Repo, ref.Number), nil
}

func (r *Recorder) AddLabels(ctx context.Context, ref Ref, labels []string) error {
	return r.mutate("AddLabels", ref.Repo, ref.Number, fmt.Sprint(labels))
}

func (r *Recorder) RequestReviewers(ctx context.Context, ref Ref, reviewers []string) error {
	return r.mutate("RequestReviewers", ref.Repo, ref.Number, fmt.Sprint(reviewers))
}

func (r *Recorder) GraphQuery(ctx context.Context, query string, vars map[string]any) (json.RawMessage, error) {
	r.Queries++
	r.Calls = append(r.Calls, Call{Method: "GraphQuery", Detail: query})
	if r.GraphReply != nil {
		return r.GraphReply, nil
	}
	return json.RawMessage(`{}`), nil
}

var _ API = (*Recorder)(nil)
