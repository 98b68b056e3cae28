// Package browser defines the capability set the credential engine needs
// from a browser, independent of how pages are rendered or controlled.
package browser

import (
	"context"
	"errors"
)

var (
	// ErrElementNotFound is returned when a reference or selector no longer
	// resolves to an element on the current page.
	ErrElementNotFound = errors.New("browser: element not found")
	// ErrNotInteractable is returned when an element exists but cannot be
	// clicked or typed into.
	ErrNotInteractable = errors.New("browser: element not interactable")
	// ErrReadOnly is returned by agents that cannot mutate the page.
	ErrReadOnly = errors.New("browser: agent is read-only")
)

// ElementRef is an opaque handle to an element on the current page. It is
// only valid until the next navigation.
type ElementRef string

// Key is a named keystroke.
type Key string

const (
	KeyEnter Key = "Enter"
	KeyTab   Key = "Tab"
)

// InputDescriptor describes an <input> element. Absent attributes are
// empty strings.
type InputDescriptor struct {
	Ref         ElementRef
	Type        string
	Name        string
	ID          string
	Placeholder string
	AriaLabel   string
}

// ClickableDescriptor describes an element that might submit a form.
type ClickableDescriptor struct {
	Ref       ElementRef
	Tag       string
	Type      string
	Role      string
	ID        string
	Class     string
	AriaLabel string
	Text      string
	Value     string
}

// Agent is one isolated browser session. Implementations are not required
// to be safe for concurrent use; each worker owns its own Agent.
type Agent interface {
	Navigate(ctx context.Context, url string) error
	// FindInputs returns every input element in document order.
	FindInputs(ctx context.Context) ([]InputDescriptor, error)
	// FindClickable returns buttons, submit/button inputs, and any element
	// whose id, class, aria-label or text mentions submit or login, in
	// discovery order.
	FindClickable(ctx context.Context) ([]ClickableDescriptor, error)
	// Query resolves an explicit CSS selector to the first matching input.
	Query(ctx context.Context, selector string) (InputDescriptor, error)
	SetValue(ctx context.Context, ref ElementRef, text string) error
	Click(ctx context.Context, ref ElementRef) error
	SendKey(ctx context.Context, ref ElementRef, key Key) error
	// SubmitForm submits the form owning ref. It is best effort and may do
	// nothing when ref has no form.
	SubmitForm(ctx context.Context, ref ElementRef) error
	CurrentURL(ctx context.Context) (string, error)
	PageContent(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// Factory opens a new Agent session. The worker index is passed for
// logging and per-worker profile isolation.
type Factory interface {
	NewAgent(ctx context.Context, worker int) (Agent, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, worker int) (Agent, error)

func (f FactoryFunc) NewAgent(ctx context.Context, worker int) (Agent, error) {
	return f(ctx, worker)
}
