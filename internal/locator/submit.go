package locator

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autopass/internal/browser"
)

var submitKeywords = []string{"submit", "login"}

// isPooled reports whether an element belongs in the submit candidate pool.
func isPooled(el browser.ClickableDescriptor) bool {
	tag := strings.ToLower(el.Tag)
	typ := strings.ToLower(el.Type)
	switch {
	case tag == "button", strings.EqualFold(el.Role, "button"):
		return true
	case tag == "input" && (typ == "submit" || typ == "button"):
		return true
	}
	for _, attr := range []string{el.ID, el.Class, el.AriaLabel, el.Text} {
		if containsAny(strings.ToLower(attr), submitKeywords) {
			return true
		}
	}
	return false
}

// isPreferred reports whether the element's value, aria-label, id, class or
// text mentions submit or login.
func isPreferred(el browser.ClickableDescriptor) bool {
	for _, attr := range []string{el.Value, el.AriaLabel, el.ID, el.Class, el.Text} {
		if containsAny(strings.ToLower(attr), submitKeywords) {
			return true
		}
	}
	return false
}

// SubmitCandidates returns the pooled elements in click order: keyword
// matches first, then the rest, each tier in discovery order. An element
// reference appears at most once.
func SubmitCandidates(clickables []browser.ClickableDescriptor) []browser.ClickableDescriptor {
	seen := make(map[browser.ElementRef]struct{}, len(clickables))
	var preferred, rest []browser.ClickableDescriptor
	for _, el := range clickables {
		if !isPooled(el) {
			continue
		}
		if _, dup := seen[el.Ref]; dup {
			continue
		}
		seen[el.Ref] = struct{}{}
		if isPreferred(el) {
			preferred = append(preferred, el)
		} else {
			rest = append(rest, el)
		}
	}
	return append(preferred, rest...)
}

// SubmitMethod records how a form was submitted.
type SubmitMethod string

const (
	SubmitClick      SubmitMethod = "click"
	SubmitEnterKey   SubmitMethod = "enter_key"
	SubmitFormSubmit SubmitMethod = "form_submit"
)

// Submitter triggers form submission on the current page.
type Submitter struct {
	logger *zap.Logger
	// settle is the pause after the Enter keystroke before checking
	// whether the page reacted.
	settle time.Duration
}

// NewSubmitter creates a Submitter.
func NewSubmitter(logger *zap.Logger, settle time.Duration) *Submitter {
	return &Submitter{logger: logger.Named("submit"), settle: settle}
}

// Submit clicks the best submit candidate, falling back to an Enter
// keystroke in the password field and finally a direct form submit. The
// fallback is best effort: its failures are logged and never returned.
// The only error returned is a context cancellation.
func (s *Submitter) Submit(ctx context.Context, agent browser.Agent, password browser.ElementRef) (SubmitMethod, error) {
	clickables, err := agent.FindClickable(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.logger.Debug("Could not list clickable elements, using fallback.", zap.Error(err))
	}

	for _, el := range SubmitCandidates(clickables) {
		if err := agent.Click(ctx, el.Ref); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			s.logger.Debug("Submit candidate click failed.", zap.String("tag", el.Tag), zap.String("id", el.ID), zap.Error(err))
			continue
		}
		return SubmitClick, nil
	}

	return s.fallback(ctx, agent, password)
}

func (s *Submitter) fallback(ctx context.Context, agent browser.Agent, password browser.ElementRef) (SubmitMethod, error) {
	// Without a starting URL there is nothing to tell an Enter navigation
	// apart from a no-op, so the form is submitted directly.
	before, err := agent.CurrentURL(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.logger.Debug("Reading URL before Enter failed; submitting the form directly.", zap.Error(err))
		return s.submitForm(ctx, agent, password)
	}

	if err := agent.SendKey(ctx, password, browser.KeyEnter); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.logger.Debug("Enter keystroke failed.", zap.Error(err))
	}

	if err := sleepCtx(ctx, s.settle); err != nil {
		return "", err
	}

	after, err := agent.CurrentURL(ctx)
	if err == nil && after != before {
		return SubmitEnterKey, nil
	}
	return s.submitForm(ctx, agent, password)
}

func (s *Submitter) submitForm(ctx context.Context, agent browser.Agent, password browser.ElementRef) (SubmitMethod, error) {
	if err := agent.SubmitForm(ctx, password); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !errors.Is(err, browser.ErrElementNotFound) {
			s.logger.Debug("Direct form submit failed.", zap.Error(err))
		}
	}
	return SubmitFormSubmit, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
