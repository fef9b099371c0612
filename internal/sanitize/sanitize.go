// Package sanitize provides the fixed text-cleaning pass applied to chunk
// content before it leaves the process, plus validation for user-provided
// project names that end up in file paths and collection names.
package sanitize

import "strings"

// Rule is a single literal find/replace applied to chunk content.
type Rule struct {
	Find    string
	Replace string
}

// DefaultRules returns the redaction rules in application order. Order
// matters: the email-domain rewrite must run before the bare "@" strip.
func DefaultRules() []Rule {
	return []Rule{
		{Find: "@aexp", Replace: "@aexps"},
		{Find: "@", Replace: ""},
		{Find: "aimid", Replace: ""},
	}
}

// Cleaner applies an ordered rule list to chunk content. The rules redact
// tenant-specific tokens that must never reach the LLM endpoint; this is a
// privacy step, not semantic cleanup.
type Cleaner struct {
	rules []Rule
}

// New returns a Cleaner with the given rules, or the defaults when none
// are provided.
func New(rules ...Rule) *Cleaner {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Cleaner{rules: rules}
}

// Clean applies every rule in order and trims surrounding whitespace.
func (c *Cleaner) Clean(content string) string {
	for _, r := range c.rules {
		content = strings.ReplaceAll(content, r.Find, r.Replace)
	}
	return strings.TrimSpace(content)
}
