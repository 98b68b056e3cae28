package coordinator

// State is the coordinator lifecycle.
type State int32

const (
	StateIdle State = iota
	StatePartitioning
	StateRunning
	StateSucceeded
	StateExhausted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePartitioning:
		return "partitioning"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateExhausted || s == StateCancelled
}

// Mode selects how candidates are produced.
type Mode string

const (
	// ModeList tries an explicit password list, with or without a username.
	ModeList Mode = "list"
	// ModeGenPassword generates passwords for a known username.
	ModeGenPassword Mode = "gen-password"
	// ModeGenUsername generates usernames tried against a password list.
	ModeGenUsername Mode = "gen-username"
	// ModeGenBoth generates username and password pairs.
	ModeGenBoth Mode = "gen-both"
)

// SelectMode picks the mode from what the operator supplied. passwordOnly
// targets forms without a username field: the username is never generated.
func SelectMode(username *string, passwords []string, passwordOnly bool) Mode {
	switch {
	case passwordOnly && len(passwords) > 0:
		return ModeList
	case passwordOnly:
		return ModeGenPassword
	case username != nil && len(passwords) > 0:
		return ModeList
	case username != nil:
		return ModeGenPassword
	case len(passwords) > 0:
		return ModeGenUsername
	default:
		return ModeGenBoth
	}
}
