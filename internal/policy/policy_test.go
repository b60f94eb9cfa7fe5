package policy

import (
	"reflect"
	"testing"

	"github.com/wardenhq/warden/internal/safeoutput"
)

func TestParsePolicy(t *testing.T) {
	doc, err := Parse([]byte(`
staged: true
allowed-domains:
  - good.example
outputs:
  create-issue:
    max: 2
    title-prefix: "[agent] "
    labels: [automation]
  add_labels:
    allowed: [bug, docs]
  add-comment:
    target: "*"
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !doc.Staged {
		t.Error("staged flag lost")
	}
	if !doc.Enabled(safeoutput.TypeCreateIssue) || !doc.Enabled(safeoutput.TypeAddLabels) {
		t.Error("dash/underscore spellings must both enable their type")
	}
	if doc.Enabled(safeoutput.TypeCreatePullRequest) {
		t.Error("absent type must stay disabled")
	}

	ci, _ := doc.For(safeoutput.TypeCreateIssue)
	if ci.Max != 2 || ci.TitlePrefix != "[agent]" {
		t.Errorf("create_issue policy wrong: %+v", ci)
	}
	al, _ := doc.For(safeoutput.TypeAddLabels)
	if al.Max != 3 {
		t.Errorf("default max for add_labels = %d, want 3", al.Max)
	}
	if !reflect.DeepEqual(al.Allowed, []string{"bug", "docs"}) {
		t.Errorf("allow-list wrong: %v", al.Allowed)
	}
	ac, _ := doc.For(safeoutput.TypeAddComment)
	if ac.Target != TargetAny {
		t.Errorf("target = %q, want *", ac.Target)
	}
}

func TestParsePolicyRejectsUnknownType(t *testing.T) {
	if _, err := Parse([]byte("outputs:\n  launch-missiles: {}\n")); err == nil {
		t.Fatal("unknown output type must fail policy load")
	}
}

func TestParsePolicyRejectsBadTarget(t *testing.T) {
	if _, err := Parse([]byte("outputs:\n  add-comment:\n    target: \"-4\"\n")); err == nil {
		t.Fatal("non-positive explicit target must fail policy load")
	}
	if _, err := Parse([]byte("outputs:\n  add-comment:\n    target: \"123\"\n")); err != nil {
		t.Fatalf("explicit positive target rejected: %v", err)
	}
}

func TestParsePolicyRejectsDuplicateSpellings(t *testing.T) {
	_, err := Parse([]byte("outputs:\n  add-labels: {}\n  add_labels: {}\n"))
	if err == nil {
		t.Fatal("two spellings of one type must fail policy load")
	}
}

func TestEnabledTypesOrder(t *testing.T) {
	doc, err := Parse([]byte("outputs:\n  noop: {}\n  create-issue: {}\n"))
	if err != nil {
		t.Fatal(err)
	}
	got := doc.EnabledTypes()
	want := []safeoutput.Type{safeoutput.TypeCreateIssue, safeoutput.TypeNoOp}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("EnabledTypes() = %v, want %v", got, want)
	}
}

func TestValidateList(t *testing.T) {
	got, err := ValidateList([]string{"a", "a", "b", "", "  "}, nil, 10)
	if err != nil {
		t.Fatalf("ValidateList: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("dedupe/trim wrong: %v", got)
	}

	got, err = ValidateList([]string{"x", "y", "z"}, []string{"x", "y"}, 1)
	if err != nil {
		t.Fatalf("ValidateList: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("allow+cap wrong: %v", got)
	}

	if _, err := ValidateList([]string{"z"}, []string{"x"}, 5); err == nil {
		t.Error("empty post-filter result must be invalid")
	}
	if _, err := ValidateList(nil, nil, 5); err == nil {
		t.Error("nil input must be invalid")
	}
}

func TestStringList(t *testing.T) {
	got, err := StringList([]any{"a", "a", "b", nil, false, float64(0)})
	if err != nil {
		t.Fatalf("StringList: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a", "a", "b"}) {
		t.Errorf("falsy filtering wrong: %v", got)
	}
	got, err = StringList([]any{"a", true, float64(2)})
	if err != nil {
		t.Fatalf("StringList: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a", "true", "2"}) {
		t.Errorf("truthy scalars must be kept: %v", got)
	}
	if _, err := StringList("not-a-list"); err == nil {
		t.Error("non-array input must be a type error")
	}
	if _, err := StringList(nil); err == nil {
		t.Error("nil input must be a type error")
	}
}
