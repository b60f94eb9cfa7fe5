// Package target maps a configured targeting mode plus the triggering
// context onto a concrete entity number. It is pure and shared by live
// dispatch and staged preview so targeting semantics never diverge between
// output types or modes.
package target

import (
	"fmt"
	"strconv"

	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/safeoutput"
)

// Kind classifies the entity a resolution points at.
type Kind string

const (
	KindIssue       Kind = "issue"
	KindPullRequest Kind = "pull_request"
)

// ContextKind classifies the event that started the run.
type ContextKind string

const (
	ContextIssue       ContextKind = "issue"
	ContextPullRequest ContextKind = "pull_request"
	ContextOther       ContextKind = "other"
)

// Context is the read-only triggering context for the run.
type Context struct {
	Kind   ContextKind
	Number int
}

// Input bundles everything one resolution needs.
type Input struct {
	Mode    string
	Item    safeoutput.TargetRef
	Context Context
	// SupportsPullRequest widens "triggering" compatibility and the
	// explicit-field search to PR-kind entities.
	SupportsPullRequest bool
}

// Resolution is exactly one of: a resolved target, a non-fatal skip, or a
// fatal-for-this-item failure.
type Resolution struct {
	Number int
	Kind   Kind
	Skip   bool
	Reason string
	Err    error
}

// Resolve applies the targeting rules in their fixed order.
func Resolve(in Input) Resolution {
	switch in.Mode {
	case policy.TargetTriggering:
		return resolveTriggering(in)
	case policy.TargetAny:
		return resolveExplicitField(in)
	default:
		return resolveExplicitNumber(in)
	}
}

func resolveTriggering(in Input) Resolution {
	compatible := in.Context.Kind == ContextIssue ||
		(in.SupportsPullRequest && in.Context.Kind == ContextPullRequest)
	if !compatible {
		return Resolution{
			Skip:   true,
			Reason: fmt.Sprintf("triggering event kind %q carries no compatible target", in.Context.Kind),
		}
	}
	// Compatible context without a number is a context-consistency bug, not
	// a skippable condition.
	if in.Context.Number <= 0 {
		return Resolution{Err: fmt.Errorf("triggering %s context carries no entity number", in.Context.Kind)}
	}
	kind := KindIssue
	if in.Context.Kind == ContextPullRequest {
		kind = KindPullRequest
	}
	return Resolution{Number: in.Context.Number, Kind: kind}
}

// resolveExplicitField handles target "*": the item itself must say what it
// applies to, with a fixed field priority.
func resolveExplicitField(in Input) Resolution {
	if in.SupportsPullRequest {
		if in.Item.ItemNumber > 0 {
			return Resolution{Number: in.Item.ItemNumber, Kind: contextualKind(in)}
		}
		if in.Item.IssueNumber > 0 {
			return Resolution{Number: in.Item.IssueNumber, Kind: KindIssue}
		}
		if in.Item.PullRequestNumber > 0 {
			return Resolution{Number: in.Item.PullRequestNumber, Kind: KindPullRequest}
		}
	} else if in.Item.PullRequestNumber > 0 {
		return Resolution{Number: in.Item.PullRequestNumber, Kind: KindPullRequest}
	}
	return Resolution{Err: fmt.Errorf("target \"*\" requires an explicit positive entity number on the item")}
}

func resolveExplicitNumber(in Input) Resolution {
	n, err := strconv.Atoi(in.Mode)
	if err != nil || n <= 0 {
		return Resolution{Err: fmt.Errorf("explicit target %q is not a positive entity number", in.Mode)}
	}
	return Resolution{Number: n, Kind: contextualKind(in)}
}

// contextualKind picks the entity kind for numbers that do not say which
// side they live on: PR-kind only when the run's context is PR-like and the
// consumer supports it.
func contextualKind(in Input) Kind {
	if in.SupportsPullRequest && in.Context.Kind == ContextPullRequest {
		return KindPullRequest
	}
	return KindIssue
}
