// Package attempt drives a single login attempt through a browser agent:
// navigate, locate the fields, fill them, submit, and classify the result.
package attempt

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/autopass/internal/locator"
)

var (
	// ErrFieldNotFound means no password field could be located.
	ErrFieldNotFound = errors.New("attempt: password field not found")
	// ErrInteraction means a located field could not be focused or filled.
	ErrInteraction = errors.New("attempt: field interaction failed")
)

// Candidate is one username/password pair. A nil Username means the form
// is filled with the password only.
type Candidate struct {
	Username *string
	Password string
}

// WithUsername builds a candidate that fills both fields.
func WithUsername(username, password string) Candidate {
	return Candidate{Username: &username, Password: password}
}

// PasswordOnly builds a candidate that fills only the password field.
func PasswordOnly(password string) Candidate {
	return Candidate{Password: password}
}

// UsernameOr returns the username, or fallback when none is set.
func (c Candidate) UsernameOr(fallback string) string {
	if c.Username == nil {
		return fallback
	}
	return *c.Username
}

func (c Candidate) String() string {
	return fmt.Sprintf("username=%q password=%q", c.UsernameOr(""), c.Password)
}

// Status tags an Outcome.
type Status int

const (
	StatusFailure Status = iota
	StatusSuccess
	StatusNoFieldFound
	StatusTransientError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNoFieldFound:
		return "no_field_found"
	case StatusTransientError:
		return "transient_error"
	default:
		return "failure"
	}
}

// Outcome is the result of one attempt.
type Outcome struct {
	Status    Status
	Candidate Candidate
	Method    locator.SubmitMethod
	Err       error
}

// Succeeded reports whether the attempt logged in.
func (o Outcome) Succeeded() bool { return o.Status == StatusSuccess }
