package coordinator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/xkilldash9x/autopass/internal/browser"
)

const (
	siteLogin = "https://site.test/login"
	siteHome  = "https://site.test/home"
)

// fakeSite is an in-memory login page shared by every agent a test opens.
// It accepts exactly one username/password pair.
type fakeSite struct {
	username string
	password string
	// noForm serves a page without a password field.
	noForm bool

	mu    sync.Mutex
	tried map[int][]string
	// gated workers block in Navigate until their context ends.
	gated map[int]bool

	opened atomic.Int32
	closed atomic.Int32
}

func newFakeSite(username, password string) *fakeSite {
	return &fakeSite{username: username, password: password, tried: map[int][]string{}, gated: map[int]bool{}}
}

func (s *fakeSite) gate(worker int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gated[worker] = true
}

func (s *fakeSite) isGated(worker int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gated[worker]
}

func (s *fakeSite) submit(a *fakeAgent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := a.pass
	if a.user != "" {
		entry = a.user + "/" + a.pass
	}
	s.tried[a.worker] = append(s.tried[a.worker], entry)
	return a.pass == s.password && a.user == s.username
}

// triedBy returns what one worker submitted.
func (s *fakeSite) triedBy(worker int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tried[worker]...)
}

// allTried returns every submission, worker by worker.
func (s *fakeSite) allTried() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for w := 0; w < 16; w++ {
		out = append(out, s.tried[w]...)
	}
	return out
}

func (s *fakeSite) factory() browser.Factory {
	return browser.FactoryFunc(func(ctx context.Context, worker int) (browser.Agent, error) {
		s.opened.Add(1)
		return &fakeAgent{site: s, worker: worker}, nil
	})
}

type fakeAgent struct {
	site   *fakeSite
	worker int
	url    string
	user   string
	pass   string
}

func (a *fakeAgent) Navigate(ctx context.Context, url string) error {
	if a.site.isGated(a.worker) {
		<-ctx.Done()
		return ctx.Err()
	}
	a.url, a.user, a.pass = url, "", ""
	return nil
}

func (a *fakeAgent) FindInputs(context.Context) ([]browser.InputDescriptor, error) {
	if a.site.noForm {
		return []browser.InputDescriptor{{Ref: "q", Type: "search"}}, nil
	}
	return []browser.InputDescriptor{
		{Ref: "user", Type: "text", Name: "username"},
		{Ref: "pass", Type: "password", Name: "password"},
	}, nil
}

func (a *fakeAgent) FindClickable(context.Context) ([]browser.ClickableDescriptor, error) {
	return []browser.ClickableDescriptor{{Ref: "btn", Tag: "button", Text: "Login"}}, nil
}

func (a *fakeAgent) Query(context.Context, string) (browser.InputDescriptor, error) {
	return browser.InputDescriptor{}, browser.ErrElementNotFound
}

func (a *fakeAgent) SetValue(_ context.Context, ref browser.ElementRef, text string) error {
	switch ref {
	case "user":
		a.user = text
	case "pass":
		a.pass = text
	default:
		return browser.ErrElementNotFound
	}
	return nil
}

func (a *fakeAgent) Click(_ context.Context, ref browser.ElementRef) error {
	if ref == "btn" && a.site.submit(a) {
		a.url = siteHome
	}
	return nil
}

func (a *fakeAgent) SendKey(context.Context, browser.ElementRef, browser.Key) error { return nil }
func (a *fakeAgent) SubmitForm(context.Context, browser.ElementRef) error         { return nil }
func (a *fakeAgent) CurrentURL(context.Context) (string, error)                    { return a.url, nil }
func (a *fakeAgent) PageContent(context.Context) (string, error)                   { return "", nil }

func (a *fakeAgent) Close(context.Context) error {
	a.site.closed.Add(1)
	return nil
}
