// Package policy holds the per-run safe-outputs policy: which output types
// the operator opted into, and the per-type constraints (counts, targets,
// allow-lists) the mediation layer enforces.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/internal/safeoutput"
)

// Target modes. Anything else is treated as an explicit entity number.
const (
	TargetTriggering = "triggering"
	TargetAny        = "*"
)

// OutputPolicy constrains one safe-output type for the run. Immutable once
// loaded.
type OutputPolicy struct {
	Max         int      `yaml:"max"`
	Target      string   `yaml:"target"`
	Allowed     []string `yaml:"allowed"`
	Labels      []string `yaml:"labels"`
	TitlePrefix string   `yaml:"title-prefix"`
	CloseOlder  bool     `yaml:"close-older"`
}

// Document is the operator-supplied safe-outputs policy for one run. The
// presence of a type key opts that capability in; everything absent stays
// disabled.
type Document struct {
	Staged         bool                    `yaml:"staged"`
	AllowedDomains []string                `yaml:"allowed-domains"`
	Outputs        map[string]OutputPolicy `yaml:"outputs"`

	// normalized view, canonical type -> policy
	byType map[safeoutput.Type]OutputPolicy
}

// Load reads and validates the policy YAML at path.
func Load(path string) (*Document, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("safe-outputs policy file not configured")
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return Parse(data)
}

// Parse builds a Document from raw policy YAML.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if err := doc.normalize(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Empty returns a policy with no outputs enabled.
func Empty() *Document {
	doc := &Document{Outputs: map[string]OutputPolicy{}}
	_ = doc.normalize()
	return doc
}

func (d *Document) normalize() error {
	d.byType = make(map[safeoutput.Type]OutputPolicy, len(d.Outputs))
	for name, p := range d.Outputs {
		t := safeoutput.Canonical(name)
		if !safeoutput.Known(t) {
			return fmt.Errorf("policy enables unknown output type %q", name)
		}
		if _, dup := d.byType[t]; dup {
			return fmt.Errorf("policy defines output type %q twice", t)
		}
		p.applyDefaults(t)
		if err := p.validate(t); err != nil {
			return err
		}
		d.byType[t] = p
	}
	return nil
}

func (p *OutputPolicy) applyDefaults(t safeoutput.Type) {
	if p.Max <= 0 {
		p.Max = defaultMax(t)
	}
	if strings.TrimSpace(p.Target) == "" {
		p.Target = TargetTriggering
	}
	p.Allowed = trimList(p.Allowed)
	p.Labels = trimList(p.Labels)
	p.TitlePrefix = strings.TrimSpace(p.TitlePrefix)
}

func (p OutputPolicy) validate(t safeoutput.Type) error {
	switch p.Target {
	case TargetTriggering, TargetAny:
	default:
		n, err := strconv.Atoi(p.Target)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s: target must be %q, %q, or a positive entity number, got %q",
				t, TargetTriggering, TargetAny, p.Target)
		}
	}
	return nil
}

// defaultMax is the per-type budget used when the operator does not set one.
// Creation-heavy types default low on purpose.
func defaultMax(t safeoutput.Type) int {
	switch t {
	case safeoutput.TypeCreateIssue, safeoutput.TypeCreatePullRequest, safeoutput.TypeAddComment:
		return 1
	case safeoutput.TypeAddLabels:
		return 3
	default:
		return 10
	}
}

// Enabled reports whether the run opted into the given output type.
func (d *Document) Enabled(t safeoutput.Type) bool {
	_, ok := d.byType[t]
	return ok
}

// For returns the policy for a type. ok=false means the type is disabled.
func (d *Document) For(t safeoutput.Type) (OutputPolicy, bool) {
	p, ok := d.byType[t]
	return p, ok
}

// EnabledTypes lists opted-in types in the catalog's advertised order.
func (d *Document) EnabledTypes() []safeoutput.Type {
	var out []safeoutput.Type
	for _, t := range safeoutput.AllTypes {
		if d.Enabled(t) {
			out = append(out, t)
		}
	}
	return out
}

func trimList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
