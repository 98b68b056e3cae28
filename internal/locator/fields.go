// Package locator finds the credential inputs and the submit control of an
// unknown login page. It works purely on browser descriptors so it can be
// exercised without a browser.
package locator

import (
	"strings"

	"github.com/xkilldash9x/autopass/internal/browser"
)

var usernameKeywords = []string{"user", "email", "login", "account"}

// FieldPair is a username/password field combination. Username is nil for
// password-only forms.
type FieldPair struct {
	Username *browser.InputDescriptor
	Password *browser.InputDescriptor
}

func isPassword(in browser.InputDescriptor) bool {
	return strings.EqualFold(in.Type, "password")
}

func isTextual(in browser.InputDescriptor) bool {
	t := strings.ToLower(in.Type)
	return t == "text" || t == "email"
}

// FindLoginFields picks the first password input in document order and the
// nearest text or email input before it. Both are nil when the page has no
// password input.
func FindLoginFields(inputs []browser.InputDescriptor) (username, password *browser.InputDescriptor) {
	pwdIdx := -1
	for i := range inputs {
		if isPassword(inputs[i]) {
			pwdIdx = i
			break
		}
	}
	if pwdIdx < 0 {
		return nil, nil
	}

	password = &inputs[pwdIdx]
	for j := pwdIdx - 1; j >= 0; j-- {
		if isTextual(inputs[j]) {
			return &inputs[j], password
		}
	}
	return nil, password
}

// LooksLikeUsername reports whether an input is a plausible username or
// email field: a text/email type, or a name, id, placeholder or aria-label
// mentioning one of the username keywords.
func LooksLikeUsername(in browser.InputDescriptor) bool {
	if isTextual(in) {
		return true
	}
	for _, attr := range []string{in.Name, in.ID, in.Placeholder, in.AriaLabel} {
		if containsAny(strings.ToLower(attr), usernameKeywords) {
			return true
		}
	}
	return false
}

// FindFieldCombinations pairs every plausible username input with every
// password input, followed by a password-only pair per password input.
func FindFieldCombinations(inputs []browser.InputDescriptor) []FieldPair {
	var passwords, usernames []int
	for i, in := range inputs {
		if isPassword(in) {
			passwords = append(passwords, i)
		}
		if LooksLikeUsername(in) {
			usernames = append(usernames, i)
		}
	}
	if len(passwords) == 0 {
		return nil
	}

	pairs := make([]FieldPair, 0, len(passwords)*(len(usernames)+1))
	for _, p := range passwords {
		for _, u := range usernames {
			if u == p {
				continue
			}
			pairs = append(pairs, FieldPair{Username: &inputs[u], Password: &inputs[p]})
		}
		pairs = append(pairs, FieldPair{Password: &inputs[p]})
	}
	return pairs
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
