// Package chrome implements browser.Agent on Chrome over the DevTools
// protocol. One Manager owns the browser process; every worker gets its own
// tab.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopass/internal/browser"
)

// Options configures the browser process and its tabs.
type Options struct {
	Headless        bool
	IgnoreTLSErrors bool
	// Proxy is passed through to Chrome's --proxy-server flag untouched.
	Proxy     string
	UserAgent string
	// ExecPath overrides Chrome discovery.
	ExecPath string
	// Args are extra Chrome flags, "--name=value" or "--name".
	Args []string
	// NavigationTimeout bounds a page load.
	NavigationTimeout time.Duration
	// ActionTimeout bounds a single element interaction.
	ActionTimeout time.Duration
	// FreshSession clears cookies before every navigation so each attempt
	// starts logged out.
	FreshSession bool
	// LaunchTimeout bounds the startup probe.
	LaunchTimeout time.Duration
}

// Manager handles the lifecycle of the browser process.
type Manager struct {
	opts   Options
	logger *zap.Logger

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	// browserCtx owns the browser process; tabs are opened beneath it.
	browserCtx    context.Context
	browserCancel context.CancelFunc

	// wg tracks open tabs for a graceful shutdown.
	wg sync.WaitGroup
}

var _ browser.Factory = (*Manager)(nil)

// NewManager launches Chrome and verifies it responds.
func NewManager(ctx context.Context, opts Options, logger *zap.Logger) (*Manager, error) {
	m := &Manager{opts: opts, logger: logger.Named("browser_manager")}
	if err := m.launch(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launch(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...", zap.Bool("headless", m.opts.Headless), zap.Bool("proxy", m.opts.Proxy != ""))

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(m.opts)...)
	m.allocatorCtx = allocCtx
	m.allocatorCancel = cancel

	timeout := m.opts.LaunchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// The first Run starts the process, so it must not carry a deadline of
	// its own. The launch timeout is enforced around it instead.
	m.browserCtx, m.browserCancel = chromedp.NewContext(allocCtx)
	errc := make(chan error, 1)
	go func() {
		errc <- chromedp.Run(m.browserCtx, chromedp.Navigate("about:blank"))
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var err error
	select {
	case err = <-errc:
	case <-timer.C:
		err = fmt.Errorf("no response within %s", timeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// Flags returns the Chrome command line flags for opts, layered over
// chromedp's defaults. A false value removes a default flag.
func Flags(opts Options) map[string]interface{} {
	flags := map[string]interface{}{
		"enable-automation":         false,
		"headless":                  opts.Headless,
		"ignore-certificate-errors": opts.IgnoreTLSErrors,
		"disable-blink-features":    "AutomationControlled",
		"disable-extensions":        true,
		"disable-gpu":               opts.Headless,
		"hide-scrollbars":           opts.Headless,
		"mute-audio":                opts.Headless,
	}
	if opts.Proxy != "" {
		flags["proxy-server"] = opts.Proxy
	}
	if opts.UserAgent != "" {
		flags["user-agent"] = opts.UserAgent
	}

	for _, arg := range opts.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}

	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}
	return flags
}

// AllocatorOptions assembles the exec allocator options for opts.
func AllocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range Flags(opts) {
		out = append(out, chromedp.Flag(name, value))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	return out
}

// NewAgent opens a new tab for worker.
func (m *Manager) NewAgent(ctx context.Context, worker int) (browser.Agent, error) {
	a, err := newAgent(ctx, m.browserCtx, worker, m.opts, m.logger)
	if err != nil {
		return nil, err
	}
	m.wg.Add(1)
	a.onClose = m.wg.Done
	return a, nil
}

// Shutdown waits for open tabs to close, then terminates the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated. Waiting for open tabs to close...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Debug("All tabs closed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	var err error
	if m.browserCtx != nil {
		err = chromedp.Cancel(m.browserCtx)
		m.browserCancel()
	}
	if m.allocatorCancel != nil {
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}
