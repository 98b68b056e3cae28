package attempt

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/autopass/internal/browser"
	"github.com/xkilldash9x/autopass/internal/detector"
	"github.com/xkilldash9x/autopass/internal/locator"
)

// Report is what the locators would use on a page, without submitting
// anything.
type Report struct {
	URL          string
	Inputs       []browser.InputDescriptor
	Username     *browser.InputDescriptor
	Password     *browser.InputDescriptor
	Combinations []locator.FieldPair
	Submit       []browser.ClickableDescriptor
	Rule         detector.Rule
}

// Probe loads the login page once and runs both locators against it.
func (d *Driver) Probe(ctx context.Context) (Report, error) {
	rep := Report{URL: d.opts.LoginURL, Rule: d.policy.Rule()}

	if err := d.agent.Navigate(ctx, d.opts.LoginURL); err != nil {
		return rep, fmt.Errorf("navigating to login page: %w", err)
	}
	if err := sleep(ctx, d.opts.LoadWait); err != nil {
		return rep, err
	}

	inputs, err := d.agent.FindInputs(ctx)
	if err != nil {
		return rep, fmt.Errorf("listing inputs: %w", err)
	}
	rep.Inputs = inputs
	rep.Combinations = locator.FindFieldCombinations(inputs)

	rep.Username, rep.Password, err = d.resolveFields(ctx, true)
	if err != nil {
		return rep, err
	}

	clickables, err := d.agent.FindClickable(ctx)
	if err != nil {
		return rep, fmt.Errorf("listing clickable elements: %w", err)
	}
	rep.Submit = locator.SubmitCandidates(clickables)
	return rep, nil
}
