// Package preview renders the staged-mode report: what the apply phase
// WOULD do, in markdown, without touching the platform. It shares the
// sanitizer, list validation, cap, and target semantics with live dispatch
// so the preview is an honest rehearsal rather than a reformatting of raw
// agent output.
package preview

import (
	"fmt"
	"strings"

	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/safeoutput"
	"github.com/wardenhq/warden/internal/sanitize"
	"github.com/wardenhq/warden/internal/target"
	"github.com/wardenhq/warden/internal/telemetry"
)

// Renderer builds staged previews for one run.
type Renderer struct {
	policy  *policy.Document
	san     *sanitize.Sanitizer
	trigger target.Context
	metrics *telemetry.Metrics
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithMetrics counts suppressed mutations on the shared instrument set.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Renderer) { r.metrics = m }
}

// New builds a Renderer sharing the run's policy and triggering context.
func New(pol *policy.Document, trigger target.Context, opts ...Option) *Renderer {
	var sanOpts []sanitize.Option
	if len(pol.AllowedDomains) > 0 {
		sanOpts = append(sanOpts, sanitize.WithAllowedDomains(
			append(append([]string(nil), sanitize.DefaultAllowedDomains...), pol.AllowedDomains...)))
	}
	r := &Renderer{policy: pol, san: sanitize.New(sanOpts...), trigger: trigger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render produces the full staged report for a document. It performs no
// platform calls of any kind.
func (r *Renderer) Render(doc safeoutput.Document) string {
	var b strings.Builder
	b.WriteString("## Staged Preview\n\n")
	if len(doc.Items) == 0 {
		b.WriteString("No proposed actions were recorded.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%d proposed action(s); no platform mutations were performed.\n", len(doc.Items))
	for _, t := range safeoutput.AllTypes {
		items := doc.OfType(t)
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n### %s (%d)\n\n", t, len(items))
		if !r.policy.Enabled(t) {
			b.WriteString("Not enabled by policy; these items would be rejected.\n")
			continue
		}
		pol, _ := r.policy.For(t)
		for i, rec := range items {
			if recordCapped(t) && i >= pol.Max {
				fmt.Fprintf(&b, "%d. Over the per-run cap of %d %s items; would be skipped\n", i+1, pol.Max, t)
				continue
			}
			if mutates(t) {
				r.metrics.StagedSuppression()
			}
			r.renderItem(&b, i+1, rec)
		}
	}
	return b.String()
}

func (r *Renderer) renderItem(b *strings.Builder, ordinal int, rec safeoutput.Record) {
	switch rec.Type {
	case safeoutput.TypeCreateIssue:
		item, err := safeoutput.Decode[safeoutput.CreateIssue](rec)
		if err != nil {
			renderBroken(b, ordinal, err)
			return
		}
		pol, _ := r.policy.For(rec.Type)
		title := r.san.Sanitize(item.Title)
		if pol.TitlePrefix != "" && !strings.HasPrefix(title, pol.TitlePrefix) {
			title = pol.TitlePrefix + title
		}
		fmt.Fprintf(b, "%d. Would open issue **%s**\n", ordinal, title)
		renderBody(b, r.san.Sanitize(item.Body))
	case safeoutput.TypeAddComment:
		item, err := safeoutput.Decode[safeoutput.AddComment](rec)
		if err != nil {
			renderBroken(b, ordinal, err)
			return
		}
		fmt.Fprintf(b, "%d. Would comment on %s\n", ordinal, r.describeTarget(item.TargetRef, rec.Type, true))
		renderBody(b, r.san.Sanitize(item.Body))
	case safeoutput.TypeCreatePullRequest:
		item, err := safeoutput.Decode[safeoutput.CreatePullRequest](rec)
		if err != nil {
			renderBroken(b, ordinal, err)
			return
		}
		fmt.Fprintf(b, "%d. Would open pull request **%s** from `%s`\n", ordinal, r.san.Sanitize(item.Title), item.Branch)
		renderBody(b, r.san.Sanitize(item.Body))
	case safeoutput.TypeAddLabels:
		item, err := safeoutput.Decode[safeoutput.AddLabels](rec)
		if err != nil {
			renderBroken(b, ordinal, err)
			return
		}
		pol, _ := r.policy.For(rec.Type)
		labels, err := policy.ValidateList(item.Labels, pol.Allowed, pol.Max)
		if err != nil {
			fmt.Fprintf(b, "%d. Labels %v would be rejected: %v\n", ordinal, item.Labels, err)
			return
		}
		fmt.Fprintf(b, "%d. Would add labels %v to %s", ordinal, labels, r.describeTarget(item.TargetRef, rec.Type, true))
		renderFiltered(b, item.Labels, labels)
	case safeoutput.TypeAddReviewers:
		item, err := safeoutput.Decode[safeoutput.AddReviewers](rec)
		if err != nil {
			renderBroken(b, ordinal, err)
			return
		}
		pol, _ := r.policy.For(rec.Type)
		reviewers, err := policy.ValidateList(item.Reviewers, pol.Allowed, pol.Max)
		if err != nil {
			fmt.Fprintf(b, "%d. Reviewers %v would be rejected: %v\n", ordinal, item.Reviewers, err)
			return
		}
		fmt.Fprintf(b, "%d. Would request reviews from %v on %s", ordinal, reviewers, r.describeTarget(item.TargetRef, rec.Type, false))
		renderFiltered(b, item.Reviewers, reviewers)
	case safeoutput.TypeUpdateIssue, safeoutput.TypeUpdatePullRequest:
		fmt.Fprintf(b, "%d. Would apply field updates\n", ordinal)
	case safeoutput.TypeCloseIssue:
		item, err := safeoutput.Decode[safeoutput.CloseIssue](rec)
		if err != nil {
			renderBroken(b, ordinal, err)
			return
		}
		fmt.Fprintf(b, "%d. Would close %s\n", ordinal, r.describeTarget(item.TargetRef, rec.Type, true))
	case safeoutput.TypeCloseDiscussion:
		item, err := safeoutput.Decode[safeoutput.CloseDiscussion](rec)
		if err != nil {
			renderBroken(b, ordinal, err)
			return
		}
		fmt.Fprintf(b, "%d. Would close discussion #%d\n", ordinal, item.DiscussionNumber)
	case safeoutput.TypeMissingTool:
		item, err := safeoutput.Decode[safeoutput.MissingTool](rec)
		if err != nil {
			renderBroken(b, ordinal, err)
			return
		}
		fmt.Fprintf(b, "%d. Agent reported missing tool `%s`: %s\n", ordinal, item.Tool, r.san.Sanitize(item.Reason))
	case safeoutput.TypeNoOp:
		item, err := safeoutput.Decode[safeoutput.NoOp](rec)
		if err != nil {
			renderBroken(b, ordinal, err)
			return
		}
		fmt.Fprintf(b, "%d. %s\n", ordinal, r.san.Sanitize(item.Message))
	}
}

// describeTarget runs the real resolver so the preview reports the same
// entity live dispatch would touch, or the same skip/failure it would hit.
func (r *Renderer) describeTarget(ref safeoutput.TargetRef, t safeoutput.Type, supportsPR bool) string {
	if ref.TempID != "" {
		return fmt.Sprintf("the entity bound to temporary id `%s`", ref.TempID)
	}
	pol, _ := r.policy.For(t)
	res := target.Resolve(target.Input{
		Mode:                pol.Target,
		Item:                ref,
		Context:             r.trigger,
		SupportsPullRequest: supportsPR,
	})
	switch {
	case res.Skip:
		return fmt.Sprintf("(skipped: %s)", res.Reason)
	case res.Err != nil:
		return fmt.Sprintf("(target error: %v)", res.Err)
	default:
		return fmt.Sprintf("%s #%d", res.Kind, res.Number)
	}
}

func renderBody(b *strings.Builder, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	for _, line := range strings.Split(body, "\n") {
		b.WriteString("   > " + line + "\n")
	}
}

// renderFiltered notes how many proposed entries the allow-list, dedupe, or
// length cap removed, so the preview matches what live dispatch would send.
func renderFiltered(b *strings.Builder, proposed, kept []string) {
	if dropped := len(proposed) - len(kept); dropped > 0 {
		fmt.Fprintf(b, " (%d of %d entries filtered by policy)", dropped, len(proposed))
	}
	b.WriteString("\n")
}

// recordCapped mirrors the live per-type record cap. The list types cap
// list length instead, and the non-mutating types are uncapped.
func recordCapped(t safeoutput.Type) bool {
	switch t {
	case safeoutput.TypeAddLabels, safeoutput.TypeAddReviewers,
		safeoutput.TypeMissingTool, safeoutput.TypeNoOp:
		return false
	}
	return true
}

func renderBroken(b *strings.Builder, ordinal int, err error) {
	fmt.Fprintf(b, "%d. Malformed record: %v\n", ordinal, err)
}

// mutates reports whether a live run of this type would call a mutation
// capability.
func mutates(t safeoutput.Type) bool {
	switch t {
	case safeoutput.TypeMissingTool, safeoutput.TypeNoOp:
		return false
	}
	return true
}
