package domain

import "time"

// Role identifies the author of a conversation turn.
type Role string

// Conversation roles.
const (
	// RoleUser is a turn written by the user.
	RoleUser Role = "user"

	// RoleAssistant is a turn produced by generation.
	RoleAssistant Role = "assistant"
)

// IsValid returns true if the role is recognised.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is a single conversation exchange from one participant.
type Turn struct {
	// Role is who authored the turn.
	Role Role `json:"role"`

	// Content is the turn text.
	Content string `json:"content"`

	// CreatedAt is when the turn was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// Conversation holds the bounded verbatim window of recent turns plus a
// rolling summary of everything older.
//
// Invariant: len(Turns) never exceeds the configured near window after an
// eviction pass. Turns folded into Summary are removed from Turns atomically
// with their inclusion in the condensation request, so no evicted turn is
// summarised twice or re-read verbatim.
type Conversation struct {
	// ID is the unique conversation identifier.
	ID string

	// Turns are the verbatim recent turns, oldest first.
	Turns []Turn

	// Summary condenses all turns evicted from the verbatim window.
	// Empty until the first eviction. Monotonically replaced, never
	// appended without replacement.
	Summary string

	// Pending are turns evicted from the window whose condensation
	// failed. They are retried at the next turn boundary rather than
	// dropped.
	Pending []Turn

	// UpdatedAt is when the conversation last changed.
	UpdatedAt time.Time
}
