package coordinator

import (
	"fmt"

	"github.com/xkilldash9x/autopass/internal/keyspace"
)

const (
	passPriority = "priority"
	passMain     = "main"
)

// phase is one partitioned sweep. Generation passes have one phase per
// length or length pair.
type phase struct {
	pass        string
	usernameLen int
	passwordLen int
	src         source
}

func (p phase) isList() bool {
	_, ok := p.src.(*listSource)
	return ok
}

func (p phase) String() string {
	switch {
	case p.isList():
		return p.pass + " list"
	case p.usernameLen > 0 && p.passwordLen > 0:
		return fmt.Sprintf("%s username length %d, password length %d", p.pass, p.usernameLen, p.passwordLen)
	case p.usernameLen > 0:
		return fmt.Sprintf("%s username length %d", p.pass, p.usernameLen)
	default:
		return fmt.Sprintf("%s password length %d", p.pass, p.passwordLen)
	}
}

// plan lays out every phase of a run in execution order: the priority list
// first when one applies, then the mode's main pass with lengths
// descending from the maximum.
func plan(mode Mode, cfg Config) ([]phase, error) {
	if err := keyspace.ValidateLength(cfg.MaxLength); err != nil && mode != ModeList {
		return nil, err
	}

	var phases []phase
	if p, ok := priorityPhase(mode, cfg); ok {
		phases = append(phases, p)
	}

	switch mode {
	case ModeList:
		phases = append(phases, phase{pass: passMain, src: newListSource([]*string{cfg.Username}, cfg.Passwords)})
	case ModeGenPassword:
		for l := cfg.MaxLength; l >= 1; l-- {
			phases = append(phases, phase{
				pass:        passMain,
				passwordLen: l,
				src:         &passwordSource{username: cfg.Username, charset: cfg.Charset, length: l},
			})
		}
	case ModeGenUsername:
		for l := cfg.MaxLength; l >= 1; l-- {
			phases = append(phases, phase{
				pass:        passMain,
				usernameLen: l,
				src:         &usernameSource{passwords: cfg.Passwords, charset: cfg.Charset, length: l},
			})
		}
	case ModeGenBoth:
		for u := cfg.MaxLength; u >= 1; u-- {
			for p := cfg.MaxLength; p >= 1; p-- {
				phases = append(phases, phase{
					pass:        passMain,
					usernameLen: u,
					passwordLen: p,
					src:         &pairSource{charset: cfg.Charset, usernameLen: u, passwordLen: p},
				})
			}
		}
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	return phases, nil
}

// priorityPhase builds the common-credential list pass. Usernames come from
// the explicit username, else the priority usernames, else (list mode only)
// none at all. Passwords come from the priority passwords, else the
// explicit list.
func priorityPhase(mode Mode, cfg Config) (phase, bool) {
	if len(cfg.PriorityPasswords) == 0 && len(cfg.PriorityUsernames) == 0 {
		return phase{}, false
	}

	var usernames []*string
	switch {
	case cfg.Username != nil:
		usernames = []*string{cfg.Username}
	case len(cfg.PriorityUsernames) > 0 && !cfg.PasswordOnly:
		for _, u := range cfg.PriorityUsernames {
			usernames = append(usernames, &u)
		}
	case mode == ModeList || cfg.PasswordOnly:
		usernames = []*string{nil}
	}

	passwords := cfg.PriorityPasswords
	if len(passwords) == 0 {
		passwords = cfg.Passwords
	}

	if len(usernames) == 0 || len(passwords) == 0 {
		return phase{}, false
	}
	return phase{pass: passPriority, src: newListSource(usernames, passwords)}, true
}
