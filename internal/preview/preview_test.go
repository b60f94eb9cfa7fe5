package preview

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/safeoutput"
	"github.com/wardenhq/warden/internal/target"
)

func mustDoc(t *testing.T, raws ...string) safeoutput.Document {
	t.Helper()
	var doc safeoutput.Document
	for _, raw := range raws {
		var rec safeoutput.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			t.Fatalf("record %s: %v", raw, err)
		}
		doc.Items = append(doc.Items, rec)
	}
	return doc
}

func TestRenderEmptyDocument(t *testing.T) {
	r := New(policy.Empty(), target.Context{Kind: target.ContextOther})
	out := r.Render(safeoutput.Document{})
	if !strings.Contains(out, "No proposed actions") {
		t.Fatalf("empty render = %q", out)
	}
}

func TestRenderSanitizesAndPrefixes(t *testing.T) {
	pol, err := policy.Parse([]byte(`
outputs:
  create-issue:
    title-prefix: "[scan] "
`))
	if err != nil {
		t.Fatalf("parse policy: %v", err)
	}
	r := New(pol, target.Context{Kind: target.ContextOther})
	doc := mustDoc(t, `{"type":"create_issue","title":"ping @octocat","body":"see http://evil.example/x"}`)
	out := r.Render(doc)
	if !strings.Contains(out, "[scan] ping `@octocat`") {
		t.Fatalf("title not prefixed and sanitized:\n%s", out)
	}
	if strings.Contains(out, "http://evil.example") {
		t.Fatalf("non-https URI survived:\n%s", out)
	}
}

func TestRenderFlagsDisabledTypes(t *testing.T) {
	r := New(policy.Empty(), target.Context{Kind: target.ContextOther})
	doc := mustDoc(t, `{"type":"add_labels","labels":["bug"]}`)
	out := r.Render(doc)
	if !strings.Contains(out, "Not enabled by policy") {
		t.Fatalf("disabled type not flagged:\n%s", out)
	}
}

// The renderer is constructed without any platform capability, so staged
// runs cannot mutate by construction; this pins the conditional voice and
// the suppression notice readers rely on.
func TestRenderStaysConditional(t *testing.T) {
	pol, err := policy.Parse([]byte(`
outputs:
  create-issue: {}
  add-comment: {}
  close-discussion: {}
`))
	if err != nil {
		t.Fatalf("parse policy: %v", err)
	}
	r := New(pol, target.Context{Kind: target.ContextIssue, Number: 3})
	doc := mustDoc(t,
		`{"type":"create_issue","title":"a","body":"b"}`,
		`{"type":"add_comment","body":"c"}`,
		`{"type":"close_discussion","discussion_number":8}`,
	)
	out := r.Render(doc)
	if !strings.Contains(out, "no platform mutations were performed") {
		t.Fatalf("report missing suppression notice:\n%s", out)
	}
	for _, want := range []string{"Would open issue", "Would comment on", "Would close discussion #8"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestRenderValidatesListsLikeDispatch(t *testing.T) {
	pol, err := policy.Parse([]byte(`
outputs:
  add-labels:
    allowed: [bug]
    max: 1
`))
	if err != nil {
		t.Fatalf("parse policy: %v", err)
	}
	r := New(pol, target.Context{Kind: target.ContextIssue, Number: 5})
	doc := mustDoc(t, `{"type":"add_labels","labels":["evil","bug","extra"]}`)
	out := r.Render(doc)
	if !strings.Contains(out, "Would add labels [bug]") {
		t.Fatalf("filtered label list not rendered:\n%s", out)
	}
	if strings.Contains(out, "evil") || strings.Contains(out, "extra") {
		t.Fatalf("disallowed labels leaked into the preview:\n%s", out)
	}
	if !strings.Contains(out, "2 of 3 entries filtered by policy") {
		t.Fatalf("filtering not annotated:\n%s", out)
	}
}

func TestRenderRejectsFullyFilteredList(t *testing.T) {
	pol, err := policy.Parse([]byte(`
outputs:
  add-reviewers:
    allowed: [octocat]
`))
	if err != nil {
		t.Fatalf("parse policy: %v", err)
	}
	r := New(pol, target.Context{Kind: target.ContextPullRequest, Number: 2})
	doc := mustDoc(t, `{"type":"add_reviewers","reviewers":["mallory"]}`)
	out := r.Render(doc)
	if !strings.Contains(out, "would be rejected") {
		t.Fatalf("empty-after-filter list not flagged:\n%s", out)
	}
}

func TestRenderHonorsRecordCap(t *testing.T) {
	pol, err := policy.Parse([]byte(`
outputs:
  create-issue:
    max: 1
`))
	if err != nil {
		t.Fatalf("parse policy: %v", err)
	}
	r := New(pol, target.Context{Kind: target.ContextOther})
	doc := mustDoc(t,
		`{"type":"create_issue","title":"first","body":"b"}`,
		`{"type":"create_issue","title":"second","body":"b"}`,
	)
	out := r.Render(doc)
	if !strings.Contains(out, "Would open issue **first**") {
		t.Fatalf("first item under the cap not rendered:\n%s", out)
	}
	if strings.Contains(out, "second") {
		t.Fatalf("over-cap item rendered as applicable:\n%s", out)
	}
	if !strings.Contains(out, "Over the per-run cap of 1 create_issue items") {
		t.Fatalf("over-cap item not annotated:\n%s", out)
	}
}

func TestRenderReportsResolvedTarget(t *testing.T) {
	pol, err := policy.Parse([]byte(`
outputs:
  add-comment:
    target: triggering
`))
	if err != nil {
		t.Fatalf("parse policy: %v", err)
	}
	r := New(pol, target.Context{Kind: target.ContextIssue, Number: 9})
	doc := mustDoc(t, `{"type":"add_comment","body":"hello"}`)
	out := r.Render(doc)
	if !strings.Contains(out, "issue #9") {
		t.Fatalf("resolved target missing:\n%s", out)
	}
}
