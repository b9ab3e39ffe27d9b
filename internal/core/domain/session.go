package domain

import (
	"sync"
	"time"
)

// Session is the per-conversation context passed to every handler. It holds
// the claim draft being assembled and the reference data fetched for it.
// Callers must hold the session lock while mutating the draft.
type Session struct {
	mu sync.Mutex

	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Draft     *ClaimDraft        `json:"draft"`
	Policies  []EligiblePolicy   `json:"policies,omitempty"`
	Checklist []RequiredDocument `json:"checklist,omitempty"`
	Schema    map[string]any     `json:"schema,omitempty"`
	Submitted *SubmissionResult  `json:"submitted,omitempty"`
}

func NewSession(id, clientID string) *Session {
	return &Session{
		ID:        id,
		ClientID:  clientID,
		CreatedAt: time.Now().UTC(),
		Draft:     NewClaimDraft(clientID),
	}
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }
