// Package sanitize neutralizes injection and exfiltration vectors in
// agent-authored text before it is allowed anywhere near the platform.
//
// The pipeline order is fixed and load-bearing: mention wrapping runs before
// comment stripping so that mentions hidden inside comments are still
// neutralized if a later stage re-exposes them, protocol redaction runs
// before the domain filter so the filter only ever sees https URLs, and
// truncation runs before trigger-phrase neutralization so a trigger split by
// the cut cannot survive half-wrapped.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxLines caps the number of lines kept per text field.
	DefaultMaxLines = 65000
	// DefaultMaxLength caps the total byte length kept per text field.
	DefaultMaxLength = 524288

	lineTruncationNotice   = "[Content truncated due to line count]"
	lengthTruncationNotice = "[Content truncated due to length]"
	redactedToken          = "(redacted)"
)

// DefaultAllowedDomains is the hostname allow-list applied to https URLs when
// the operator supplies no override. A URL survives when its hostname equals
// one of these or is a subdomain of one.
var DefaultAllowedDomains = []string{
	"github.com",
	"github.io",
	"githubusercontent.com",
	"githubassets.com",
	"github.dev",
	"codespaces.new",
}

var (
	// @handle or @org/team, not already preceded by a word char or backtick.
	mentionRe = regexp.MustCompile("(^|[^\\w`])@([A-Za-z0-9][A-Za-z0-9-]*(?:/[A-Za-z0-9._-]+)?)")

	// HTML/XML comments, tolerating the malformed --!> close marker.
	commentRe = regexp.MustCompile(`(?s)<!--.*?(?:-->|--!>)`)

	// ANSI CSI escape sequences.
	ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

	// Non-printable control characters except newline and tab.
	controlRe = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")

	// Any scheme://token; the scheme decides redaction.
	uriRe = regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*)://[^\s<>"'\)\]]+`)

	// Auto-close trigger phrases, not already preceded by a backtick.
	triggerRe = regexp.MustCompile("(^|[^`])((?i:fix(?:es|ed)?|close[sd]?|resolve[sd]?))(\\s+#\\d+)")
)

// Sanitizer applies the full neutralization pipeline with a configured
// domain allow-list and size budget.
type Sanitizer struct {
	allowedDomains []string
	maxLines       int
	maxLength      int
}

// Option tweaks a Sanitizer.
type Option func(*Sanitizer)

// WithAllowedDomains replaces the default https hostname allow-list.
func WithAllowedDomains(domains []string) Option {
	return func(s *Sanitizer) {
		if len(domains) > 0 {
			s.allowedDomains = domains
		}
	}
}

// WithMaxLength overrides the total length budget.
func WithMaxLength(n int) Option {
	return func(s *Sanitizer) {
		if n > 0 {
			s.maxLength = n
		}
	}
}

// WithMaxLines overrides the line-count budget.
func WithMaxLines(n int) Option {
	return func(s *Sanitizer) {
		if n > 0 {
			s.maxLines = n
		}
	}
}

// New builds a Sanitizer with defaults and applies options.
func New(opts ...Option) *Sanitizer {
	s := &Sanitizer{
		allowedDomains: DefaultAllowedDomains,
		maxLines:       DefaultMaxLines,
		maxLength:      DefaultMaxLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sanitize runs the full pipeline over text. It is total: any input string
// produces a string, and running it again over its own output is a no-op.
func (s *Sanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}
	out := neutralizeMentions(text)
	out = commentRe.ReplaceAllString(out, "")
	out = ansiRe.ReplaceAllString(out, "")
	out = controlRe.ReplaceAllString(out, "")
	out = s.filterURIs(out)
	out = s.truncate(out)
	out = neutralizeTriggers(out)
	return strings.TrimSpace(out)
}

// neutralizeMentions wraps @handles in backticks so the platform never
// notifies the named user. Handles already inside backticks are skipped via
// the leading character class.
func neutralizeMentions(text string) string {
	return mentionRe.ReplaceAllString(text, "$1`@$2`")
}

// neutralizeTriggers defuses "fixes #N" style phrases that would otherwise
// auto-close unrelated entities when the text lands in an issue or PR body.
func neutralizeTriggers(text string) string {
	return triggerRe.ReplaceAllString(text, "$1`$2$3`")
}

// filterURIs redacts every non-https URI outright and keeps https URIs only
// when their hostname is covered by the allow-list.
func (s *Sanitizer) filterURIs(text string) string {
	return uriRe.ReplaceAllStringFunc(text, func(token string) string {
		scheme := strings.ToLower(token[:strings.Index(token, "://")])
		if scheme != "https" {
			return redactedToken
		}
		host := token[len("https://"):]
		if i := strings.IndexAny(host, "/:?#"); i >= 0 {
			host = host[:i]
		}
		if s.domainAllowed(host) {
			return token
		}
		return redactedToken
	})
}

func (s *Sanitizer) domainAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, d := range s.allowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// truncate applies the two-tier size budget: line count first, total length
// second. A line-count notice survives a subsequent length truncation.
func (s *Sanitizer) truncate(text string) string {
	body, suffix := text, ""
	lines := strings.Split(text, "\n")
	if len(lines) > s.maxLines {
		body = strings.Join(lines[:s.maxLines], "\n")
		suffix = "\n" + lineTruncationNotice
	}
	if len(body)+len(suffix) > s.maxLength {
		suffix += "\n" + lengthTruncationNotice
		keep := s.maxLength - len(suffix)
		if keep < 0 {
			keep = 0
		}
		for keep > 0 && !utf8.RuneStart(body[keep]) {
			keep--
		}
		body = body[:keep]
	}
	return body + suffix
}

// Describe reports the active budgets, for run logs.
func (s *Sanitizer) Describe() string {
	return fmt.Sprintf("max_lines=%d max_length=%d domains=%d", s.maxLines, s.maxLength, len(s.allowedDomains))
}
