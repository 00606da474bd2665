package models

import "time"

// Message represents a chat message in a room log.
//
// A message without an ID is provisional: it has been announced to
// subscribers but not yet committed.
type Message struct {
	ID            int64     `json:"id,omitempty"`            // Assigned at commit
	ProvisionalID string    `json:"provisionalId,omitempty"` // Correlates provisional and confirmed copies
	From          string    `json:"from,omitempty"`          // Display name, trusted as given
	Text          string    `json:"text,omitempty"`          // Body
	Date          time.Time `json:"date,omitzero"`           // Commit time, UTC
	Retracted     bool      `json:"retracted,omitempty"`     // Only on retraction broadcasts
}

// IsProvisional reports whether the message has not been committed.
func (m Message) IsProvisional() bool {
	return m.ID == 0
}
