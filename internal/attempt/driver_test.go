package attempt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopass/internal/browser"
	"github.com/xkilldash9x/autopass/internal/detector"
	"github.com/xkilldash9x/autopass/internal/locator"
	"github.com/xkilldash9x/autopass/internal/mocks"
)

const loginURL = "https://target/login"

func loginForm() []browser.InputDescriptor {
	return []browser.InputDescriptor{
		{Ref: "u", Type: "text", Name: "username"},
		{Ref: "p", Type: "password", Name: "password"},
	}
}

// setupAgent wires a mock that accepts a full fill-and-click flow.
func setupAgent(inputs []browser.InputDescriptor, afterURL string) *mocks.MockAgent {
	agent := new(mocks.MockAgent)
	agent.On("Navigate", mock.Anything, loginURL).Return(nil)
	agent.On("FindInputs", mock.Anything).Return(inputs, nil)
	agent.On("Click", mock.Anything, mock.Anything).Return(nil)
	agent.On("SetValue", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	agent.On("SendKey", mock.Anything, mock.Anything, browser.KeyTab).Return(nil)
	agent.On("FindClickable", mock.Anything).Return([]browser.ClickableDescriptor{
		{Ref: "btn", Tag: "button", Text: "Login"},
	}, nil)
	agent.On("CurrentURL", mock.Anything).Return(afterURL, nil)
	return agent
}

func newDriver(agent browser.Agent, opts Options) *Driver {
	opts.LoginURL = loginURL
	return NewDriver(agent, detector.NewPolicy(loginURL, "", ""), opts, zap.NewNop())
}

// -- Candidate Tests --

func TestCandidate(t *testing.T) {
	c := WithUsername("admin", "hunter2")
	require.NotNil(t, c.Username)
	assert.Equal(t, "admin", c.UsernameOr("-"))
	assert.Equal(t, `username="admin" password="hunter2"`, c.String())

	p := PasswordOnly("x")
	assert.Nil(t, p.Username)
	assert.Equal(t, "-", p.UsernameOr("-"))
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "failure", StatusFailure.String())
	assert.Equal(t, "no_field_found", StatusNoFieldFound.String())
	assert.Equal(t, "transient_error", StatusTransientError.String())
}

// -- Driver Tests --

func TestDriver_Attempt(t *testing.T) {
	ctx := context.Background()

	t.Run("success fills both fields and clicks submit", func(t *testing.T) {
		agent := setupAgent(loginForm(), "https://target/home")

		out := newDriver(agent, Options{}).Attempt(ctx, WithUsername("admin", "pw"))

		assert.Equal(t, StatusSuccess, out.Status)
		assert.True(t, out.Succeeded())
		assert.Equal(t, locator.SubmitClick, out.Method)
		assert.NoError(t, out.Err)
		agent.AssertCalled(t, "SetValue", mock.Anything, browser.ElementRef("u"), "admin")
		agent.AssertCalled(t, "SetValue", mock.Anything, browser.ElementRef("p"), "pw")
		agent.AssertCalled(t, "SendKey", mock.Anything, browser.ElementRef("u"), browser.KeyTab)
	})

	t.Run("failure when page stays on login", func(t *testing.T) {
		agent := setupAgent(loginForm(), loginURL+"?error=1")

		out := newDriver(agent, Options{}).Attempt(ctx, WithUsername("admin", "wrong"))
		assert.Equal(t, StatusFailure, out.Status)
		assert.False(t, out.Succeeded())
	})

	t.Run("password only candidate leaves username untouched", func(t *testing.T) {
		agent := setupAgent(loginForm(), loginURL)

		newDriver(agent, Options{}).Attempt(ctx, PasswordOnly("pw"))
		agent.AssertNotCalled(t, "SetValue", mock.Anything, browser.ElementRef("u"), mock.Anything)
		agent.AssertCalled(t, "SetValue", mock.Anything, browser.ElementRef("p"), "pw")
	})

	t.Run("username without a username field fills only the password", func(t *testing.T) {
		agent := setupAgent([]browser.InputDescriptor{{Ref: "p", Type: "password"}}, loginURL)

		out := newDriver(agent, Options{}).Attempt(ctx, WithUsername("admin", "pw"))
		assert.Equal(t, StatusFailure, out.Status)
		agent.AssertNumberOfCalls(t, "SetValue", 1)
	})

	t.Run("no password field", func(t *testing.T) {
		agent := new(mocks.MockAgent)
		agent.On("Navigate", mock.Anything, loginURL).Return(nil)
		agent.On("FindInputs", mock.Anything).Return([]browser.InputDescriptor{{Ref: "q", Type: "search"}}, nil)

		out := newDriver(agent, Options{}).Attempt(ctx, PasswordOnly("pw"))
		assert.Equal(t, StatusNoFieldFound, out.Status)
		assert.ErrorIs(t, out.Err, ErrFieldNotFound)
		agent.AssertNotCalled(t, "SetValue", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("navigation error is transient", func(t *testing.T) {
		agent := new(mocks.MockAgent)
		boom := errors.New("net::ERR_CONNECTION_REFUSED")
		agent.On("Navigate", mock.Anything, loginURL).Return(boom)

		out := newDriver(agent, Options{}).Attempt(ctx, PasswordOnly("pw"))
		assert.Equal(t, StatusTransientError, out.Status)
		assert.ErrorIs(t, out.Err, boom)
	})

	t.Run("fill failure is an interaction error", func(t *testing.T) {
		agent := new(mocks.MockAgent)
		agent.On("Navigate", mock.Anything, loginURL).Return(nil)
		agent.On("FindInputs", mock.Anything).Return(loginForm(), nil)
		agent.On("Click", mock.Anything, mock.Anything).Return(nil)
		agent.On("SetValue", mock.Anything, browser.ElementRef("p"), "pw").Return(browser.ErrReadOnly)

		out := newDriver(agent, Options{}).Attempt(ctx, PasswordOnly("pw"))
		assert.Equal(t, StatusTransientError, out.Status)
		assert.ErrorIs(t, out.Err, ErrInteraction)
		assert.ErrorIs(t, out.Err, browser.ErrReadOnly)
		agent.AssertNotCalled(t, "FindClickable", mock.Anything)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		agent := new(mocks.MockAgent)
		agent.On("Navigate", mock.Anything, loginURL).Return(context.Canceled)

		out := newDriver(agent, Options{}).Attempt(cctx, PasswordOnly("pw"))
		assert.Equal(t, StatusTransientError, out.Status)
		assert.ErrorIs(t, out.Err, context.Canceled)
	})
}

func TestDriver_ResolveFields(t *testing.T) {
	ctx := context.Background()

	t.Run("selectors bypass detection", func(t *testing.T) {
		agent := new(mocks.MockAgent)
		agent.On("Query", mock.Anything, "#user").Return(browser.InputDescriptor{Ref: "su", Type: "text"}, nil)
		agent.On("Query", mock.Anything, "#pass").Return(browser.InputDescriptor{Ref: "sp", Type: "password"}, nil)

		d := newDriver(agent, Options{UsernameSelector: "#user", PasswordSelector: "#pass"})
		user, pwd, err := d.resolveFields(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, browser.ElementRef("su"), user.Ref)
		assert.Equal(t, browser.ElementRef("sp"), pwd.Ref)
		agent.AssertNotCalled(t, "FindInputs", mock.Anything)
	})

	t.Run("unmatched selector falls back to detection", func(t *testing.T) {
		agent := new(mocks.MockAgent)
		agent.On("Query", mock.Anything, "#pass").Return(browser.InputDescriptor{}, browser.ErrElementNotFound)
		agent.On("FindInputs", mock.Anything).Return(loginForm(), nil)

		d := newDriver(agent, Options{PasswordSelector: "#pass"})
		_, pwd, err := d.resolveFields(ctx, false)
		require.NoError(t, err)
		require.NotNil(t, pwd)
		assert.Equal(t, browser.ElementRef("p"), pwd.Ref)
	})

	t.Run("keyword match finds username with unusual type", func(t *testing.T) {
		agent := new(mocks.MockAgent)
		agent.On("FindInputs", mock.Anything).Return([]browser.InputDescriptor{
			{Ref: "acct", Type: "tel", Name: "account"},
			{Ref: "p", Type: "password"},
		}, nil)

		d := newDriver(agent, Options{})
		user, pwd, err := d.resolveFields(ctx, true)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, browser.ElementRef("acct"), user.Ref)
		assert.Equal(t, browser.ElementRef("p"), pwd.Ref)
	})

	t.Run("listing error propagates", func(t *testing.T) {
		agent := new(mocks.MockAgent)
		agent.On("FindInputs", mock.Anything).Return(nil, errors.New("target crashed"))

		_, _, err := newDriver(agent, Options{}).resolveFields(ctx, false)
		assert.Error(t, err)
	})
}
