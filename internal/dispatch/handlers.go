package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wardenhq/warden/internal/platform"
	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/safeoutput"
	"github.com/wardenhq/warden/internal/target"
)

// closeOlderLimit bounds how many older issues one create may close.
const closeOlderLimit = 10

// maxListItems caps incidental lists (labels on creates, reviewers attached
// to a new pull request) that have no dedicated per-type policy cap.
const maxListItems = 10

func (d *Dispatcher) createIssue(ctx context.Context, res Result, rec safeoutput.Record, pol policy.OutputPolicy) Result {
	item, err := safeoutput.Decode[safeoutput.CreateIssue](rec)
	if err != nil {
		res.Err = err
		return res
	}
	title := applyPrefix(d.san.Sanitize(item.Title), pol.TitlePrefix)
	if strings.TrimSpace(title) == "" {
		res.Err = fmt.Errorf("issue title is empty after sanitization")
		return res
	}
	labels, err := d.mergeLabels(item.Labels, pol)
	if err != nil {
		res.Err = err
		return res
	}
	created, err := d.api.CreateIssue(ctx, d.repo, platform.NewIssue{
		Title:  title,
		Body:   d.san.Sanitize(item.Body),
		Labels: labels,
	})
	if err != nil {
		res.Err = err
		return res
	}
	d.bind(item.TempID, created, target.KindIssue)
	res.URL = created.URL
	d.logger.Printf("created issue #%d", created.Number)

	if pol.CloseOlder {
		if err := d.closeOlder(ctx, pol, created); err != nil {
			// The new issue exists; failing the item now would misreport it.
			d.logger.Printf("close-older after issue #%d: %v", created.Number, err)
		}
	}
	return res
}

func (d *Dispatcher) addComment(ctx context.Context, res Result, rec safeoutput.Record, pol policy.OutputPolicy) Result {
	item, err := safeoutput.Decode[safeoutput.AddComment](rec)
	if err != nil {
		res.Err = err
		return res
	}
	r := d.resolveTarget(item.TargetRef, pol, true)
	if r.Skip {
		res.Skipped, res.Reason = true, r.Reason
		return res
	}
	if r.Err != nil {
		res.Err = r.Err
		return res
	}
	body := d.san.Sanitize(item.Body)
	if strings.TrimSpace(body) == "" {
		res.Err = fmt.Errorf("comment body is empty after sanitization")
		return res
	}
	url, err := d.api.Comment(ctx, platform.Ref{Repo: d.repo, Number: r.Number}, body)
	if err != nil {
		res.Err = err
		return res
	}
	res.URL = url
	return res
}

func (d *Dispatcher) createPullRequest(ctx context.Context, res Result, rec safeoutput.Record, pol policy.OutputPolicy) Result {
	item, err := safeoutput.Decode[safeoutput.CreatePullRequest](rec)
	if err != nil {
		res.Err = err
		return res
	}
	if strings.TrimSpace(item.Branch) == "" {
		res.Err = fmt.Errorf("pull request has no source branch")
		return res
	}
	title := applyPrefix(d.san.Sanitize(item.Title), pol.TitlePrefix)
	if strings.TrimSpace(title) == "" {
		res.Err = fmt.Errorf("pull request title is empty after sanitization")
		return res
	}
	labels, err := d.mergeLabels(item.Labels, pol)
	if err != nil {
		res.Err = err
		return res
	}
	created, err := d.api.CreatePullRequest(ctx, d.repo, platform.NewPullRequest{
		Title:  title,
		Body:   d.san.Sanitize(item.Body),
		Branch: item.Branch,
		Base:   item.Base,
		Labels: labels,
	})
	if err != nil {
		res.Err = err
		return res
	}
	d.bind(item.TempID, created, target.KindPullRequest)
	res.URL = created.URL
	d.logger.Printf("created pull request #%d", created.Number)

	if len(item.Reviewers) > 0 {
		reviewers, err := policy.ValidateList(item.Reviewers, pol.Allowed, maxListItems)
		if err == nil {
			err = d.api.RequestReviewers(ctx, platform.Ref{Repo: d.repo, Number: created.Number}, reviewers)
		}
		if err != nil {
			d.logger.Printf("requesting reviewers on #%d: %v", created.Number, err)
		}
	}
	return res
}

func (d *Dispatcher) addLabels(ctx context.Context, res Result, rec safeoutput.Record, pol policy.OutputPolicy) Result {
	item, err := safeoutput.Decode[safeoutput.AddLabels](rec)
	if err != nil {
		res.Err = err
		return res
	}
	labels, err := policy.ValidateList(item.Labels, pol.Allowed, pol.Max)
	if err != nil {
		res.Err = fmt.Errorf("labels: %w", err)
		return res
	}
	r := d.resolveTarget(item.TargetRef, pol, true)
	if r.Skip {
		res.Skipped, res.Reason = true, r.Reason
		return res
	}
	if r.Err != nil {
		res.Err = r.Err
		return res
	}
	if err := d.api.AddLabels(ctx, platform.Ref{Repo: d.repo, Number: r.Number}, labels); err != nil {
		res.Err = err
	}
	return res
}

func (d *Dispatcher) addReviewers(ctx context.Context, res Result, rec safeoutput.Record, pol policy.OutputPolicy) Result {
	item, err := safeoutput.Decode[safeoutput.AddReviewers](rec)
	if err != nil {
		res.Err = err
		return res
	}
	reviewers, err := policy.ValidateList(item.Reviewers, pol.Allowed, pol.Max)
	if err != nil {
		res.Err = fmt.Errorf("reviewers: %w", err)
		return res
	}
	r := d.resolveTarget(item.TargetRef, pol, false)
	if r.Skip {
		res.Skipped, res.Reason = true, r.Reason
		return res
	}
	if r.Err != nil {
		res.Err = r.Err
		return res
	}
	if err := d.api.RequestReviewers(ctx, platform.Ref{Repo: d.repo, Number: r.Number}, reviewers); err != nil {
		res.Err = err
	}
	return res
}

func (d *Dispatcher) updateIssue(ctx context.Context, res Result, rec safeoutput.Record, pol policy.OutputPolicy) Result {
	item, err := safeoutput.Decode[safeoutput.UpdateIssue](rec)
	if err != nil {
		res.Err = err
		return res
	}
	changes, err := d.issueChanges(item.Title, item.Body, item.Status)
	if err != nil {
		res.Err = err
		return res
	}
	r := d.resolveTarget(item.TargetRef, pol, true)
	if r.Skip {
		res.Skipped, res.Reason = true, r.Reason
		return res
	}
	if r.Err != nil {
		res.Err = r.Err
		return res
	}
	if err := d.api.UpdateIssue(ctx, platform.Ref{Repo: d.repo, Number: r.Number}, changes); err != nil {
		res.Err = err
	}
	return res
}

func (d *Dispatcher) updatePullRequest(ctx context.Context, res Result, rec safeoutput.Record, pol policy.OutputPolicy) Result {
	item, err := safeoutput.Decode[safeoutput.UpdatePullRequest](rec)
	if err != nil {
		res.Err = err
		return res
	}
	changes, err := d.issueChanges(item.Title, item.Body, nil)
	if err != nil {
		res.Err = err
		return res
	}
	r := d.resolveTarget(item.TargetRef, pol, false)
	if r.Skip {
		res.Skipped, res.Reason = true, r.Reason
		return res
	}
	if r.Err != nil {
		res.Err = r.Err
		return res
	}
	if err := d.api.UpdatePullRequest(ctx, platform.Ref{Repo: d.repo, Number: r.Number}, changes); err != nil {
		res.Err = err
	}
	return res
}

func (d *Dispatcher) closeIssue(ctx context.Context, res Result, rec safeoutput.Record, pol policy.OutputPolicy) Result {
	item, err := safeoutput.Decode[safeoutput.CloseIssue](rec)
	if err != nil {
		res.Err = err
		return res
	}
	r := d.resolveTarget(item.TargetRef, pol, true)
	if r.Skip {
		res.Skipped, res.Reason = true, r.Reason
		return res
	}
	if r.Err != nil {
		res.Err = r.Err
		return res
	}
	ref := platform.Ref{Repo: d.repo, Number: r.Number}
	if comment := d.san.Sanitize(item.Comment); strings.TrimSpace(comment) != "" {
		if _, err := d.api.Comment(ctx, ref, comment); err != nil {
			res.Err = fmt.Errorf("closing comment: %w", err)
			return res
		}
	}
	if err := d.api.CloseIssue(ctx, ref); err != nil {
		res.Err = err
	}
	return res
}

func (d *Dispatcher) closeDiscussion(ctx context.Context, res Result, rec safeoutput.Record) Result {
	item, err := safeoutput.Decode[safeoutput.CloseDiscussion](rec)
	if err != nil {
		res.Err = err
		return res
	}
	if item.DiscussionNumber <= 0 {
		res.Err = fmt.Errorf("close_discussion requires a positive discussion_number")
		return res
	}
	ref := platform.Ref{Repo: d.repo, Number: item.DiscussionNumber}
	if comment := d.san.Sanitize(item.Comment); strings.TrimSpace(comment) != "" {
		if _, err := d.api.Comment(ctx, ref, comment); err != nil {
			res.Err = fmt.Errorf("closing comment: %w", err)
			return res
		}
	}
	if err := d.api.CloseDiscussion(ctx, ref, item.Reason); err != nil {
		res.Err = err
	}
	return res
}

func (d *Dispatcher) missingTool(res Result, rec safeoutput.Record) Result {
	item, err := safeoutput.Decode[safeoutput.MissingTool](rec)
	if err != nil {
		res.Err = err
		return res
	}
	d.logger.Printf("agent reported missing tool %q: %s", item.Tool, d.san.Sanitize(item.Reason))
	return res
}

func (d *Dispatcher) noop(res Result, rec safeoutput.Record) Result {
	item, err := safeoutput.Decode[safeoutput.NoOp](rec)
	if err != nil {
		res.Err = err
		return res
	}
	d.logger.Printf("noop: %s", d.san.Sanitize(item.Message))
	return res
}

// closeOlder finds older open issues carrying the policy's title prefix and
// closes them with a pointer to the new issue. Spaced out and bounded so a
// busy repository never absorbs a close storm.
func (d *Dispatcher) closeOlder(ctx context.Context, pol policy.OutputPolicy, created platform.Created) error {
	if strings.TrimSpace(pol.TitlePrefix) == "" {
		return fmt.Errorf("close-older requires a title-prefix to scope the search")
	}
	raw, err := d.api.GraphQuery(ctx, olderIssuesQuery, map[string]any{
		"query": fmt.Sprintf(`repo:%s is:issue is:open in:title %q`, d.repo, pol.TitlePrefix),
		"first": closeOlderLimit,
	})
	if err != nil {
		return fmt.Errorf("searching older issues: %w", err)
	}
	var reply struct {
		Search struct {
			Nodes []struct {
				Number int `json:"number"`
			} `json:"nodes"`
		} `json:"search"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("decoding older-issue search: %w", err)
	}
	closed := 0
	for _, node := range reply.Search.Nodes {
		if node.Number == created.Number || node.Number <= 0 {
			continue
		}
		if closed >= closeOlderLimit {
			break
		}
		ref := platform.Ref{Repo: d.repo, Number: node.Number}
		note := fmt.Sprintf("Superseded by #%d.", created.Number)
		if _, err := d.api.Comment(ctx, ref, note); err != nil {
			d.logger.Printf("superseded note on #%d: %v", node.Number, err)
		}
		if err := d.api.CloseIssue(ctx, ref); err != nil {
			d.logger.Printf("closing older issue #%d: %v", node.Number, err)
			continue
		}
		closed++
		d.logger.Printf("closed older issue #%d", node.Number)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.closeOlderDelay):
		}
	}
	return nil
}

const olderIssuesQuery = `query($query: String!, $first: Int!) {
  search(query: $query, type: ISSUE, first: $first) {
    nodes { ... on Issue { number } }
  }
}`

// mergeLabels combines the policy's imposed labels with the item's own,
// validated against the allow-list. Item labels are optional.
func (d *Dispatcher) mergeLabels(itemLabels []string, pol policy.OutputPolicy) ([]string, error) {
	merged := append([]string(nil), pol.Labels...)
	if len(itemLabels) > 0 {
		validated, err := policy.ValidateList(itemLabels, pol.Allowed, maxListItems)
		if err != nil {
			return nil, fmt.Errorf("labels: %w", err)
		}
		merged = append(merged, validated...)
	}
	seen := make(map[string]bool, len(merged))
	out := merged[:0]
	for _, l := range merged {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out, nil
}

// issueChanges sanitizes the optional update fields and validates status.
func (d *Dispatcher) issueChanges(title, body, status *string) (platform.IssueChanges, error) {
	var changes platform.IssueChanges
	if title != nil {
		t := d.san.Sanitize(*title)
		if strings.TrimSpace(t) == "" {
			return changes, fmt.Errorf("updated title is empty after sanitization")
		}
		changes.Title = &t
	}
	if body != nil {
		b := d.san.Sanitize(*body)
		changes.Body = &b
	}
	if status != nil {
		s := strings.ToLower(strings.TrimSpace(*status))
		if s != "open" && s != "closed" {
			return changes, fmt.Errorf("status %q is not one of open, closed", *status)
		}
		changes.State = &s
	}
	if changes.Title == nil && changes.Body == nil && changes.State == nil {
		return changes, fmt.Errorf("update carries no fields to change")
	}
	return changes, nil
}

func applyPrefix(title, prefix string) string {
	if prefix == "" || strings.HasPrefix(title, prefix) {
		return title
	}
	return prefix + title
}
