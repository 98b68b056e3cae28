package attempt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autopass/internal/browser"
	"github.com/xkilldash9x/autopass/internal/detector"
	"github.com/xkilldash9x/autopass/internal/locator"
)

// Options tunes a Driver.
type Options struct {
	LoginURL string
	// UsernameSelector and PasswordSelector override automatic field
	// detection when set. Detection still fills in whichever one fails to
	// resolve.
	UsernameSelector string
	PasswordSelector string
	// LoadWait is the pause after navigation before looking for fields.
	LoadWait time.Duration
	// Delay is the pause after submission before classifying the page.
	Delay time.Duration
	// SubmitSettle is the pause between the Enter keystroke fallback and the
	// direct form submit.
	SubmitSettle time.Duration
}

// Driver runs attempts on one agent. It is not safe for concurrent use.
type Driver struct {
	agent     browser.Agent
	policy    detector.Policy
	submitter *locator.Submitter
	opts      Options
	logger    *zap.Logger
}

// NewDriver creates a Driver bound to agent.
func NewDriver(agent browser.Agent, policy detector.Policy, opts Options, logger *zap.Logger) *Driver {
	l := logger.Named("driver")
	return &Driver{
		agent:     agent,
		policy:    policy,
		submitter: locator.NewSubmitter(l, opts.SubmitSettle),
		opts:      opts,
		logger:    l,
	}
}

// Attempt tries one candidate. Errors never escape: they are reported
// through the Outcome status.
func (d *Driver) Attempt(ctx context.Context, c Candidate) Outcome {
	out := Outcome{Candidate: c}

	if err := d.agent.Navigate(ctx, d.opts.LoginURL); err != nil {
		return d.transient(out, fmt.Errorf("navigating to login page: %w", err))
	}
	if err := sleep(ctx, d.opts.LoadWait); err != nil {
		return d.transient(out, err)
	}

	userField, pwdField, err := d.resolveFields(ctx, c.Username != nil)
	if err != nil {
		return d.transient(out, err)
	}
	if pwdField == nil {
		out.Status = StatusNoFieldFound
		out.Err = ErrFieldNotFound
		return out
	}

	if c.Username != nil && userField != nil {
		if err := d.fill(ctx, userField.Ref, *c.Username, true); err != nil {
			return d.transient(out, err)
		}
	}
	if err := d.fill(ctx, pwdField.Ref, c.Password, false); err != nil {
		return d.transient(out, err)
	}

	method, err := d.submitter.Submit(ctx, d.agent, pwdField.Ref)
	if err != nil {
		return d.transient(out, err)
	}
	out.Method = method

	if err := sleep(ctx, d.opts.Delay); err != nil {
		return d.transient(out, err)
	}

	ok, err := d.policy.Classify(ctx, d.agent)
	if err != nil {
		return d.transient(out, err)
	}
	if ok {
		out.Status = StatusSuccess
	} else {
		out.Status = StatusFailure
	}
	return out
}

// resolveFields applies the explicit selectors, then falls back to
// detection for whichever field is still missing.
func (d *Driver) resolveFields(ctx context.Context, wantUsername bool) (user, pwd *browser.InputDescriptor, err error) {
	if d.opts.UsernameSelector != "" && wantUsername {
		if in, qerr := d.agent.Query(ctx, d.opts.UsernameSelector); qerr == nil {
			user = &in
		} else if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
	}
	if d.opts.PasswordSelector != "" {
		if in, qerr := d.agent.Query(ctx, d.opts.PasswordSelector); qerr == nil {
			pwd = &in
		} else if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
	}

	if pwd != nil && (user != nil || !wantUsername) {
		return user, pwd, nil
	}

	inputs, err := d.agent.FindInputs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing inputs: %w", err)
	}

	autoUser, autoPwd := locator.FindLoginFields(inputs)
	if pwd == nil {
		pwd = autoPwd
	}
	if user == nil {
		user = autoUser
	}

	// The nearest-preceding rule misses username inputs with unusual types;
	// the broader keyword match catches those.
	if wantUsername && user == nil && pwd != nil {
		for _, pair := range locator.FindFieldCombinations(inputs) {
			if pair.Username != nil && pair.Password.Ref == pwd.Ref {
				user = pair.Username
				break
			}
		}
	}
	return user, pwd, nil
}

func (d *Driver) fill(ctx context.Context, ref browser.ElementRef, value string, tabOut bool) error {
	// Focus first so frameworks listening for focus events see the input.
	if err := d.agent.Click(ctx, ref); err != nil && ctx.Err() == nil {
		d.logger.Debug("Focus click failed, typing anyway.", zap.Error(err))
	}
	if err := d.agent.SetValue(ctx, ref, value); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrInteraction, err)
	}
	if tabOut {
		if err := d.agent.SendKey(ctx, ref, browser.KeyTab); err != nil && ctx.Err() == nil {
			d.logger.Debug("Tab keystroke failed.", zap.Error(err))
		}
	}
	return ctx.Err()
}

func (d *Driver) transient(out Outcome, err error) Outcome {
	out.Status = StatusTransientError
	out.Err = err
	if !errors.Is(err, context.Canceled) {
		d.logger.Debug("Attempt failed with transient error.", zap.Error(err))
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
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
