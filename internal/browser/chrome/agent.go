package chrome

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopass/internal/browser"
)

const defaultActionTimeout = 5 * time.Second

// Agent is one Chrome tab in its own browser context, so cookies and
// storage are never shared between workers.
type Agent struct {
	worker int
	opts   Options
	logger *zap.Logger

	tabCtx    context.Context
	tabCancel context.CancelFunc

	closeOnce sync.Once
	onClose   func()
}

var _ browser.Agent = (*Agent)(nil)

func newAgent(ctx, browserCtx context.Context, worker int, opts Options, logger *zap.Logger) (*Agent, error) {
	tabCtx, cancel := chromedp.NewContext(browserCtx, chromedp.WithNewBrowserContext())
	a := &Agent{
		worker:    worker,
		opts:      opts,
		logger:    logger.With(zap.String("component", "chrome_agent"), zap.Int("worker", worker)),
		tabCtx:    tabCtx,
		tabCancel: cancel,
	}
	if a.opts.ActionTimeout <= 0 {
		a.opts.ActionTimeout = defaultActionTimeout
	}

	// Alerts and confirms would otherwise block every later command.
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			a.logger.Debug("Dismissing dialog.", zap.String("type", string(e.Type)), zap.String("message", e.Message))
			go func() {
				_ = chromedp.Run(tabCtx, page.HandleJavaScriptDialog(false))
			}()
		}
	})

	// The first Run creates the tab and must use the tab context itself.
	// The caller's cancellation still aborts it by closing the tab.
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(tabCtx, network.SetCacheDisabled(true))
	stop()
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("opening tab for worker %d: %w", worker, err)
	}

	a.logger.Debug("Tab opened.")
	return a, nil
}

// run executes actions on the tab, bounded by ctx and timeout.
func (a *Agent) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(a.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate loads url and waits for the body to be ready.
func (a *Agent) Navigate(ctx context.Context, url string) error {
	var actions []chromedp.Action
	if a.opts.FreshSession {
		actions = append(actions, network.ClearBrowserCookies())
	}
	actions = append(actions,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err := a.run(ctx, a.opts.NavigationTimeout, actions...); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

func (a *Agent) FindInputs(ctx context.Context) ([]browser.InputDescriptor, error) {
	var raw []jsInput
	if err := a.run(ctx, a.opts.ActionTimeout, chromedp.Evaluate(findInputsScript, &raw)); err != nil {
		return nil, fmt.Errorf("listing inputs: %w", err)
	}
	out := make([]browser.InputDescriptor, 0, len(raw))
	for _, in := range raw {
		out = append(out, in.descriptor())
	}
	return out, nil
}

func (a *Agent) FindClickable(ctx context.Context) ([]browser.ClickableDescriptor, error) {
	var raw []jsClickable
	if err := a.run(ctx, a.opts.ActionTimeout, chromedp.Evaluate(findClickableScript, &raw)); err != nil {
		return nil, fmt.Errorf("listing clickable elements: %w", err)
	}
	out := make([]browser.ClickableDescriptor, 0, len(raw))
	for _, c := range raw {
		out = append(out, c.descriptor())
	}
	return out, nil
}

func (a *Agent) Query(ctx context.Context, selector string) (browser.InputDescriptor, error) {
	var in jsInput
	if err := a.run(ctx, a.opts.ActionTimeout, chromedp.Evaluate(queryScript(selector), &in)); err != nil {
		return browser.InputDescriptor{}, fmt.Errorf("querying %q: %w", selector, err)
	}
	if in.Ref == "" {
		return browser.InputDescriptor{}, fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	return in.descriptor(), nil
}

// SetValue replaces the element's value by typing, so key handlers fire.
func (a *Agent) SetValue(ctx context.Context, ref browser.ElementRef, text string) error {
	sel := refSelector(ref)
	err := a.run(ctx, a.opts.ActionTimeout,
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, text, chromedp.ByQuery),
	)
	return a.interactionErr(ctx, "typing into", ref, err)
}

func (a *Agent) Click(ctx context.Context, ref browser.ElementRef) error {
	err := a.run(ctx, a.opts.ActionTimeout,
		chromedp.Click(refSelector(ref), chromedp.ByQuery, chromedp.NodeVisible),
	)
	return a.interactionErr(ctx, "clicking", ref, err)
}

func (a *Agent) SendKey(ctx context.Context, ref browser.ElementRef, key browser.Key) error {
	var keys string
	switch key {
	case browser.KeyEnter:
		keys = kb.Enter
	case browser.KeyTab:
		keys = kb.Tab
	default:
		return fmt.Errorf("unsupported key %q", key)
	}
	err := a.run(ctx, a.opts.ActionTimeout, chromedp.SendKeys(refSelector(ref), keys, chromedp.ByQuery))
	return a.interactionErr(ctx, "sending key to", ref, err)
}

func (a *Agent) SubmitForm(ctx context.Context, ref browser.ElementRef) error {
	var submitted bool
	if err := a.run(ctx, a.opts.ActionTimeout, chromedp.Evaluate(submitFormScript(ref), &submitted)); err != nil {
		return fmt.Errorf("submitting form of %s: %w", ref, err)
	}
	if !submitted {
		return fmt.Errorf("%w: no form owns %s", browser.ErrElementNotFound, ref)
	}
	return nil
}

func (a *Agent) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := a.run(ctx, a.opts.ActionTimeout, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	return url, nil
}

func (a *Agent) PageContent(ctx context.Context) (string, error) {
	var content string
	if err := a.run(ctx, a.opts.ActionTimeout,
		chromedp.Evaluate(`document.documentElement ? document.documentElement.outerHTML : ''`, &content),
	); err != nil {
		return "", fmt.Errorf("reading page content: %w", err)
	}
	return content, nil
}

// Close closes the tab and its browser context. It is safe to call more
// than once; later calls are no-ops.
func (a *Agent) Close(ctx context.Context) error {
	var err error
	a.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(a.tabCtx) }()

		select {
		case cerr := <-done:
			if !errors.Is(cerr, context.Canceled) {
				err = multierr.Append(err, cerr)
			}
		case <-ctx.Done():
			err = multierr.Append(err, fmt.Errorf("waiting for tab to close: %w", ctx.Err()))
		}
		a.tabCancel()

		if a.onClose != nil {
			a.onClose()
		}
		a.logger.Debug("Tab closed.", zap.Error(err))
	})
	return err
}

// interactionErr classifies a failed element action. A timeout means the
// element never became usable.
func (a *Agent) interactionErr(ctx context.Context, verb string, ref browser.ElementRef, err error) error {
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s %s: %w", verb, ref, browser.ErrElementNotFound)
	default:
		return fmt.Errorf("%s %s: %w: %v", verb, ref, browser.ErrNotInteractable, err)
	}
}
