// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/autopass/internal/browser"
)

// -- Browser Agent Mock --

// MockAgent mocks browser.Agent.
type MockAgent struct {
	mock.Mock
}

var _ browser.Agent = (*MockAgent)(nil)

func (m *MockAgent) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockAgent) FindInputs(ctx context.Context) ([]browser.InputDescriptor, error) {
	args := m.Called(ctx)
	var inputs []browser.InputDescriptor
	if v := args.Get(0); v != nil {
		inputs = v.([]browser.InputDescriptor)
	}
	return inputs, args.Error(1)
}

func (m *MockAgent) FindClickable(ctx context.Context) ([]browser.ClickableDescriptor, error) {
	args := m.Called(ctx)
	var els []browser.ClickableDescriptor
	if v := args.Get(0); v != nil {
		els = v.([]browser.ClickableDescriptor)
	}
	return els, args.Error(1)
}

func (m *MockAgent) Query(ctx context.Context, selector string) (browser.InputDescriptor, error) {
	args := m.Called(ctx, selector)
	return args.Get(0).(browser.InputDescriptor), args.Error(1)
}

func (m *MockAgent) SetValue(ctx context.Context, ref browser.ElementRef, text string) error {
	args := m.Called(ctx, ref, text)
	return args.Error(0)
}

func (m *MockAgent) Click(ctx context.Context, ref browser.ElementRef) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *MockAgent) SendKey(ctx context.Context, ref browser.ElementRef, key browser.Key) error {
	args := m.Called(ctx, ref, key)
	return args.Error(0)
}

func (m *MockAgent) SubmitForm(ctx context.Context, ref browser.ElementRef) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *MockAgent) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockAgent) PageContent(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockAgent) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// -- Agent Factory Mock --

// MockFactory mocks browser.Factory.
type MockFactory struct {
	mock.Mock
}

var _ browser.Factory = (*MockFactory)(nil)

func (m *MockFactory) NewAgent(ctx context.Context, worker int) (browser.Agent, error) {
	args := m.Called(ctx, worker)
	var a browser.Agent
	if v := args.Get(0); v != nil {
		a = v.(browser.Agent)
	}
	return a, args.Error(1)
}
