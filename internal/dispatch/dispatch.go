// Package dispatch is the apply phase: it walks a loaded intent document in
// order and turns each record into platform mutations, enforcing policy
// caps, sanitization, and target resolution on the way. Failures are
// per-item; one bad record never blocks the rest of the batch.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/wardenhq/warden/internal/platform"
	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/safeoutput"
	"github.com/wardenhq/warden/internal/sanitize"
	"github.com/wardenhq/warden/internal/target"
	"github.com/wardenhq/warden/internal/telemetry"
)

// Result records the outcome of one intent record.
type Result struct {
	Index   int
	Type    safeoutput.Type
	Skipped bool
	Reason  string
	URL     string
	Err     error
}

// binding ties a temporary ID minted at agent time to the entity the apply
// phase actually created.
type binding struct {
	number int
	kind   target.Kind
	url    string
}

// Dispatcher applies one run's intent document against the platform.
type Dispatcher struct {
	policy  *policy.Document
	api     platform.API
	san     *sanitize.Sanitizer
	repo    string
	trigger target.Context
	logger  *log.Logger
	metrics *telemetry.Metrics

	tempIDs map[string]binding
	counts  map[safeoutput.Type]int

	// closeOlderDelay spaces out bulk close mutations. Tests shrink it.
	closeOlderDelay time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics attaches the shared instrument set.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithCloseOlderDelay overrides the pause between bulk close mutations.
func WithCloseOlderDelay(delay time.Duration) Option {
	return func(d *Dispatcher) { d.closeOlderDelay = delay }
}

// New builds a Dispatcher for one run. The sanitizer inherits the policy's
// extra allowed domains on top of the defaults.
func New(pol *policy.Document, api platform.API, repo string, trigger target.Context, logger *log.Logger, opts ...Option) *Dispatcher {
	var sanOpts []sanitize.Option
	if len(pol.AllowedDomains) > 0 {
		sanOpts = append(sanOpts, sanitize.WithAllowedDomains(
			append(append([]string(nil), sanitize.DefaultAllowedDomains...), pol.AllowedDomains...)))
	}
	d := &Dispatcher{
		policy:          pol,
		api:             api,
		san:             sanitize.New(sanOpts...),
		repo:            repo,
		trigger:         trigger,
		logger:          logger,
		tempIDs:         make(map[string]binding),
		counts:          make(map[safeoutput.Type]int),
		closeOlderDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ProcessAll applies every record in document order. It always returns the
// full result slice; the error slice aggregates the per-item failures for
// callers that want a strict exit code.
func (d *Dispatcher) ProcessAll(ctx context.Context, doc safeoutput.Document) ([]Result, []error) {
	results := make([]Result, 0, len(doc.Items))
	var errs []error
	for i, rec := range doc.Items {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("stopping before item %d: %w", i, err))
			d.logger.Printf("run cancelled with %d of %d items processed", i, len(doc.Items))
			return results, errs
		}
		res := d.processOne(ctx, i, rec)
		results = append(results, res)
		switch {
		case res.Err != nil:
			errs = append(errs, fmt.Errorf("item %d (%s): %w", i, rec.Type, res.Err))
			d.metrics.HandlerResult(string(rec.Type), "error")
			d.logger.Printf("item %d (%s) failed: %v", i, rec.Type, res.Err)
		case res.Skipped:
			d.metrics.HandlerResult(string(rec.Type), "skipped")
			d.logger.Printf("item %d (%s) skipped: %s", i, rec.Type, res.Reason)
		default:
			d.metrics.HandlerResult(string(rec.Type), "ok")
		}
	}
	return results, errs
}

func (d *Dispatcher) processOne(ctx context.Context, index int, rec safeoutput.Record) Result {
	res := Result{Index: index, Type: rec.Type}
	if !safeoutput.Known(rec.Type) {
		res.Skipped = true
		res.Reason = fmt.Sprintf("unknown output type %q", rec.Type)
		return res
	}
	pol, ok := d.policy.For(rec.Type)
	if !ok {
		res.Skipped = true
		res.Reason = fmt.Sprintf("output type %s not enabled by policy", rec.Type)
		return res
	}
	if capped, reason := d.overCap(rec.Type, pol); capped {
		res.Skipped = true
		res.Reason = reason
		return res
	}
	d.counts[rec.Type]++

	switch rec.Type {
	case safeoutput.TypeCreateIssue:
		return d.createIssue(ctx, res, rec, pol)
	case safeoutput.TypeAddComment:
		return d.addComment(ctx, res, rec, pol)
	case safeoutput.TypeCreatePullRequest:
		return d.createPullRequest(ctx, res, rec, pol)
	case safeoutput.TypeAddLabels:
		return d.addLabels(ctx, res, rec, pol)
	case safeoutput.TypeAddReviewers:
		return d.addReviewers(ctx, res, rec, pol)
	case safeoutput.TypeUpdateIssue:
		return d.updateIssue(ctx, res, rec, pol)
	case safeoutput.TypeUpdatePullRequest:
		return d.updatePullRequest(ctx, res, rec, pol)
	case safeoutput.TypeCloseIssue:
		return d.closeIssue(ctx, res, rec, pol)
	case safeoutput.TypeCloseDiscussion:
		return d.closeDiscussion(ctx, res, rec)
	case safeoutput.TypeMissingTool:
		return d.missingTool(res, rec)
	case safeoutput.TypeNoOp:
		return d.noop(res, rec)
	}
	res.Err = fmt.Errorf("no handler for output type %s", rec.Type)
	return res
}

// overCap enforces the per-type record cap for record-counted types. The
// list types are capped on list length instead, inside their handlers.
func (d *Dispatcher) overCap(t safeoutput.Type, pol policy.OutputPolicy) (bool, string) {
	switch t {
	case safeoutput.TypeAddLabels, safeoutput.TypeAddReviewers,
		safeoutput.TypeMissingTool, safeoutput.TypeNoOp:
		return false, ""
	}
	if d.counts[t] >= pol.Max {
		return true, fmt.Sprintf("per-run cap of %d %s items reached", pol.Max, t)
	}
	return false, ""
}

// resolveTarget runs temporary-ID indirection first, then the configured
// targeting mode.
func (d *Dispatcher) resolveTarget(ref safeoutput.TargetRef, pol policy.OutputPolicy, supportsPR bool) target.Resolution {
	if ref.TempID != "" {
		b, ok := d.tempIDs[ref.TempID]
		if !ok {
			return target.Resolution{Err: fmt.Errorf("temporary id %q was never bound in this batch", ref.TempID)}
		}
		return target.Resolution{Number: b.number, Kind: b.kind}
	}
	return target.Resolve(target.Input{
		Mode:                pol.Target,
		Item:                ref,
		Context:             d.trigger,
		SupportsPullRequest: supportsPR,
	})
}

func (d *Dispatcher) bind(tempID string, created platform.Created, kind target.Kind) {
	if tempID == "" {
		return
	}
	d.tempIDs[tempID] = binding{number: created.Number, kind: kind, url: created.URL}
}
