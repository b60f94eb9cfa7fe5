package policy

import (
	"fmt"
	"strings"
)

// ValidateList is the generic filter/dedupe/cap primitive every allow-list
// governed output type goes through. Pipeline: trim entries, drop empties,
// intersect with the allow-list when one is supplied, deduplicate preserving
// first occurrence, cap to max keeping the first entries in original order.
//
// The cap runs last deliberately: an allow-list rejection must not consume
// budget, and a duplicate must not either.
func ValidateList(items []string, allow []string, max int) ([]string, error) {
	if items == nil {
		return nil, fmt.Errorf("expected a list, got nothing")
	}

	allowed := func(string) bool { return true }
	if allow != nil {
		set := make(map[string]struct{}, len(allow))
		for _, a := range allow {
			set[strings.TrimSpace(a)] = struct{}{}
		}
		allowed = func(s string) bool {
			_, ok := set[s]
			return ok
		}
	}

	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if !allowed(item) {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no valid entries after filtering")
	}
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

// StringList coerces the loosely-typed JSON value a tool call carries into a
// string slice, dropping falsy entries (null, false, zero) the way the wire
// format tolerates them; blanks are left for ValidateList to trim. A
// non-array value is a type error.
func StringList(v any) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, fmt.Errorf("expected an array")
	case []string:
		return x, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			switch val := e.(type) {
			case string:
				out = append(out, val)
			case nil:
				// falsy junk, dropped
			case bool:
				if val {
					out = append(out, "true")
				}
			case float64:
				if val != 0 {
					out = append(out, fmt.Sprintf("%v", val))
				}
			default:
				// anything else is dropped rather than failing the item
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected an array, got %T", v)
	}
}
