// Package detector decides whether a login attempt succeeded by looking at
// the page state left behind after submission.
package detector

import (
	"context"
	"fmt"
	"strings"
)

// Rule names the single success rule a Policy applies.
type Rule string

const (
	RuleSuccessURL     Rule = "success_url"
	RuleSuccessMessage Rule = "success_message"
	RuleLeftLoginPage  Rule = "left_login_page"
)

// PageState is the subset of the browser the detector reads.
type PageState interface {
	CurrentURL(ctx context.Context) (string, error)
	PageContent(ctx context.Context) (string, error)
}

// Policy classifies post-submission pages. Exactly one rule is active,
// chosen once at construction: a success URL prefix, else a success message
// in the page content, else navigation away from the login URL.
type Policy struct {
	rule     Rule
	loginURL string
	expected string
}

// NewPolicy selects the active rule from the configured values.
func NewPolicy(loginURL, successURL, successMessage string) Policy {
	switch {
	case successURL != "":
		return Policy{rule: RuleSuccessURL, loginURL: loginURL, expected: successURL}
	case successMessage != "":
		return Policy{rule: RuleSuccessMessage, loginURL: loginURL, expected: successMessage}
	default:
		return Policy{rule: RuleLeftLoginPage, loginURL: loginURL}
	}
}

// Rule reports which rule the policy applies.
func (p Policy) Rule() Rule { return p.rule }

// Classify reads the page and applies the active rule.
func (p Policy) Classify(ctx context.Context, page PageState) (bool, error) {
	if p.rule == RuleSuccessMessage {
		content, err := page.PageContent(ctx)
		if err != nil {
			return false, fmt.Errorf("reading page content: %w", err)
		}
		return p.Match("", content), nil
	}

	current, err := page.CurrentURL(ctx)
	if err != nil {
		return false, fmt.Errorf("reading current url: %w", err)
	}
	return p.Match(current, ""), nil
}

// Match applies the active rule to an already captured URL and content.
func (p Policy) Match(currentURL, content string) bool {
	switch p.rule {
	case RuleSuccessURL:
		return strings.HasPrefix(currentURL, p.expected)
	case RuleSuccessMessage:
		return strings.Contains(content, p.expected)
	default:
		return !strings.Contains(currentURL, p.loginURL)
	}
}
