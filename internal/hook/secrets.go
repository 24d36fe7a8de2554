package hook

import "regexp"

// secretPattern pairs a matcher with its replacement text; replacements
// may reference capture groups (e.g. "${1}[REDACTED_BEARER]") to preserve
// a prefix like "Bearer " while still stripping the token itself.
type secretPattern struct {
	re          *regexp.Regexp
	replacement string
}

// corePatterns are spec.md §4.3's three required patterns, matched
// exactly as specified since S9's testable property binds these three.
var corePatterns = []secretPattern{
	{regexp.MustCompile(`(?:sk-|pk-|token_)[A-Za-z0-9]{20,}`), "***"},
	{regexp.MustCompile(`(Bearer|Basic)\s+\S{20,}`), "${1} ***"},
	{regexp.MustCompile(`(?i)(password|secret|key|token)=\S+`), "${1}=***"},
}

// supplementalPatterns broadens coverage beyond spec.md's three, grounded
// on the original implementation's redact.rs pattern table. Non-goals
// never forbid more thorough redaction, only less, so these run in
// addition to corePatterns rather than instead of them.
var supplementalPatterns = []secretPattern{
	{regexp.MustCompile(`\bsk-ant-[a-zA-Z0-9_-]{20,}`), "[REDACTED_API_KEY]"},
	{regexp.MustCompile(`\bgh[pos]_[a-zA-Z0-9]{36,}|\bghu_[a-zA-Z0-9]{36,}|\bgithub_pat_[a-zA-Z0-9_]{22,}`), "[REDACTED_GITHUB_TOKEN]"},
	{regexp.MustCompile(`\bglpat-[a-zA-Z0-9\-]{20,}`), "[REDACTED_GITLAB_TOKEN]"},
	{regexp.MustCompile(`\bAKIA[A-Z0-9]{16}\b`), "[REDACTED_AWS_KEY]"},
	{regexp.MustCompile(`(?mi)^(export\s+\w*(?:KEY|SECRET|TOKEN|PASSWORD|CREDENTIAL)\w*\s*=\s*)\S+`), "${1}[REDACTED]"},
}

// RedactSecrets replaces every recognized secret pattern in s with a
// placeholder, applied before any event payload reaches the ledger.
func RedactSecrets(s string) string {
	for _, p := range corePatterns {
		s = p.re.ReplaceAllString(s, p.replacement)
	}
	for _, p := range supplementalPatterns {
		s = p.re.ReplaceAllString(s, p.replacement)
	}
	return s
}

// RedactExtra applies RedactSecrets and then a caller-supplied set of
// additional regex patterns (spec.md's wsconfig redaction_extra_patterns),
// each replaced wholesale with "***". An extra pattern that fails to
// compile is skipped rather than aborting the whole redaction pass.
func RedactExtra(s string, extraPatterns []string) string {
	s = RedactSecrets(s)
	for _, pat := range extraPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			continue
		}
		s = re.ReplaceAllString(s, "***")
	}
	return s
}

// RedactPayloadExtra is RedactPayload composed with RedactExtra's
// policy-supplied patterns.
func RedactPayloadExtra(v any, extraPatterns []string) any {
	switch val := v.(type) {
	case string:
		return RedactExtra(val, extraPatterns)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[k] = RedactPayloadExtra(sub, extraPatterns)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = RedactPayloadExtra(sub, extraPatterns)
		}
		return out
	default:
		return val
	}
}

// RedactPayload walks a decoded JSON-like value (map[string]any, []any,
// string, or scalar) and returns a copy with every string leaf redacted.
// Mirrors the original's redact_json_value recursive traversal, applied
// here to a hook event's tool_input/tool_response fields.
func RedactPayload(v any) any {
	switch val := v.(type) {
	case string:
		return RedactSecrets(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[k] = RedactPayload(sub)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = RedactPayload(sub)
		}
		return out
	default:
		return val
	}
}
