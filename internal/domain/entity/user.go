package entity

import "time"

// UserRef identifies the signed-in user of a session.
type UserRef struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

type IdentityEventType string

const (
	IdentitySignedIn     IdentityEventType = "signed_in"
	IdentitySignedOut    IdentityEventType = "signed_out"
	IdentityUserSwitched IdentityEventType = "user_switched"
)

// IdentityEvent is emitted by the identity adapter on every session change.
// User is the new user for SignedIn/UserSwitched and the departing one for SignedOut.
type IdentityEvent struct {
	Type   IdentityEventType
	User   UserRef
	Reason string
}

func (e IdentityEvent) IsSignIn() bool {
	return e.Type == IdentitySignedIn || e.Type == IdentityUserSwitched
}
