// Package auth implements the per-connection authentication state machine
// and password verification for the two configured tiers.
package auth

import (
	"strings"

	"github.com/yndnr/kvgate-go/internal/core/command"
)

type tier uint8

const (
	tierNone tier = iota
	tierRestricted
	tierAdmin
)

// State is the authentication tier of a connection. Only the three values
// below are representable; the zero value is Unauthenticated.
type State struct {
	t tier
}

var (
	Unauthenticated  = State{t: tierNone}
	RestrictedAuthed = State{t: tierRestricted}
	AdminAuthed      = State{t: tierAdmin}
)

func (s State) String() string {
	switch s.t {
	case tierNone:
		return "unauthenticated"
	case tierRestricted:
		return "restricted"
	case tierAdmin:
		return "admin"
	default:
		return "invalid"
	}
}

// Valid reports whether s is one of the three defined states.
func (s State) Valid() bool {
	return s.t <= tierAdmin
}

// Outcome is what an AUTH attempt reports to the state machine.
type Outcome uint8

const (
	Denied Outcome = iota
	RestrictedGranted
	AdminGranted
)

func (o Outcome) String() string {
	switch o {
	case RestrictedGranted:
		return "restricted"
	case AdminGranted:
		return "admin"
	default:
		return "denied"
	}
}

// Init returns the state a new connection starts in.
func Init(adminConfigured, restrictedConfigured bool) State {
	switch {
	case adminConfigured:
		return Unauthenticated
	case restrictedConfigured:
		return RestrictedAuthed
	default:
		return AdminAuthed
	}
}

// IsAuthorized reports whether a connection in state s may run desc.
// blacklist holds lower-cased command names denied to restricted clients.
func IsAuthorized(s State, desc command.Descriptor, blacklist []string) bool {
	if desc.Name == "auth" {
		return true
	}
	switch s.t {
	case tierNone:
		return false
	case tierAdmin:
		return true
	case tierRestricted:
		if desc.Flags.Has(command.FlagAdminOnly) {
			return false
		}
		for _, name := range blacklist {
			if strings.EqualFold(name, desc.Name) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Apply moves s according to the outcome of an AUTH command. It returns
// false and leaves the state unchanged when the attempt was denied.
func Apply(s State, o Outcome) (State, bool) {
	switch o {
	case AdminGranted:
		return AdminAuthed, true
	case RestrictedGranted:
		return RestrictedAuthed, true
	default:
		return s, false
	}
}
