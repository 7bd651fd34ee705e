package session

import "github.com/jmcleod/taskdesk/api"

// Status is the coarse authentication status of a session.
type Status int

const (
	// StatusUnknown is the status before restoration has finished.
	StatusUnknown Status = iota
	StatusAnonymous
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "invalid"
	}
}

// State is the published session state. Identity is non-nil exactly when
// Status is StatusAuthenticated. Err holds the message of the most recent
// failed login or registration and is empty otherwise.
type State struct {
	Status   Status
	Identity *api.User
	Err      string
	Loading  bool
}

// Authenticated reports whether an identity is present.
func (s State) Authenticated() bool {
	return s.Identity != nil
}
