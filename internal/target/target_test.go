package target

import (
	"testing"

	"github.com/wardenhq/warden/internal/safeoutput"
)

func TestResolveExplicitField(t *testing.T) {
	res := Resolve(Input{
		Mode:                "*",
		Item:                safeoutput.TargetRef{ItemNumber: 42},
		Context:             Context{Kind: ContextIssue, Number: 7},
		SupportsPullRequest: true,
	})
	if res.Skip || res.Err != nil {
		t.Fatalf("unexpected skip/err: %+v", res)
	}
	if res.Number != 42 || res.Kind != KindIssue {
		t.Errorf("got %d/%s, want 42/issue", res.Number, res.Kind)
	}
}

func TestResolveExplicitFieldPriority(t *testing.T) {
	res := Resolve(Input{
		Mode: "*",
		Item: safeoutput.TargetRef{
			ItemNumber:        1,
			IssueNumber:       2,
			PullRequestNumber: 3,
		},
		Context:             Context{Kind: ContextPullRequest, Number: 9},
		SupportsPullRequest: true,
	})
	if res.Number != 1 {
		t.Errorf("item_number must win, got %d", res.Number)
	}
	if res.Kind != KindPullRequest {
		t.Errorf("PR-like context should yield pull_request kind, got %s", res.Kind)
	}

	res = Resolve(Input{
		Mode:                "*",
		Item:                safeoutput.TargetRef{IssueNumber: 2, PullRequestNumber: 3},
		Context:             Context{Kind: ContextIssue, Number: 9},
		SupportsPullRequest: true,
	})
	if res.Number != 2 || res.Kind != KindIssue {
		t.Errorf("issue_number must come before pull_request_number: %+v", res)
	}
}

func TestResolveExplicitFieldPROnly(t *testing.T) {
	res := Resolve(Input{
		Mode:                "*",
		Item:                safeoutput.TargetRef{ItemNumber: 5, PullRequestNumber: 8},
		Context:             Context{Kind: ContextOther},
		SupportsPullRequest: false,
	})
	if res.Number != 8 || res.Kind != KindPullRequest {
		t.Errorf("PR-only consumer must use the PR field only: %+v", res)
	}

	res = Resolve(Input{
		Mode:                "*",
		Item:                safeoutput.TargetRef{IssueNumber: 4},
		SupportsPullRequest: false,
	})
	if res.Err == nil {
		t.Error("missing PR number must fail the item")
	}
}

func TestResolveExplicitFieldMissing(t *testing.T) {
	res := Resolve(Input{
		Mode:                "*",
		Context:             Context{Kind: ContextIssue, Number: 1},
		SupportsPullRequest: true,
	})
	if res.Err == nil || res.Skip {
		t.Errorf("absent explicit number must fail, not skip: %+v", res)
	}
}

func TestResolveTriggering(t *testing.T) {
	res := Resolve(Input{
		Mode:    "triggering",
		Context: Context{Kind: ContextIssue, Number: 17},
	})
	if res.Number != 17 || res.Kind != KindIssue || res.Skip || res.Err != nil {
		t.Errorf("triggering issue context: %+v", res)
	}
}

func TestResolveTriggeringSkips(t *testing.T) {
	res := Resolve(Input{
		Mode:                "triggering",
		Context:             Context{Kind: ContextOther},
		SupportsPullRequest: false,
	})
	if !res.Skip {
		t.Fatalf("push-like context must skip, got %+v", res)
	}
	if res.Err != nil {
		t.Error("skip is non-fatal")
	}

	// PR context is only compatible when the secondary kind is supported.
	res = Resolve(Input{
		Mode:    "triggering",
		Context: Context{Kind: ContextPullRequest, Number: 3},
	})
	if !res.Skip {
		t.Errorf("PR context without secondary-kind support must skip: %+v", res)
	}
	res = Resolve(Input{
		Mode:                "triggering",
		Context:             Context{Kind: ContextPullRequest, Number: 3},
		SupportsPullRequest: true,
	})
	if res.Skip || res.Number != 3 || res.Kind != KindPullRequest {
		t.Errorf("PR context with secondary-kind support: %+v", res)
	}
}

func TestResolveTriggeringMissingNumber(t *testing.T) {
	res := Resolve(Input{
		Mode:    "triggering",
		Context: Context{Kind: ContextIssue},
	})
	if res.Err == nil || res.Skip {
		t.Errorf("compatible context without a number is a consistency bug: %+v", res)
	}
}

func TestResolveExplicitNumber(t *testing.T) {
	res := Resolve(Input{Mode: "123", Context: Context{Kind: ContextIssue}})
	if res.Number != 123 || res.Err != nil {
		t.Errorf("explicit number: %+v", res)
	}
	for _, bad := range []string{"0", "-2", "abc"} {
		if res := Resolve(Input{Mode: bad}); res.Err == nil {
			t.Errorf("mode %q must fail", bad)
		}
	}
}
