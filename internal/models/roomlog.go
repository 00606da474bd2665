package models

// RoomLog is the durable per-room record: a version counter and the most
// recent messages, oldest first.
type RoomLog struct {
	Room     string    `json:"room"`
	Version  int64     `json:"version"`
	Messages []Message `json:"messages"`
}

// LastID returns the ID of the newest retained message, or 0 if none.
func (l *RoomLog) LastID() int64 {
	if l == nil || len(l.Messages) == 0 {
		return 0
	}
	return l.Messages[len(l.Messages)-1].ID
}

// FirstID returns the ID of the oldest retained message, or 0 if none.
func (l *RoomLog) FirstID() int64 {
	if l == nil || len(l.Messages) == 0 {
		return 0
	}
	return l.Messages[0].ID
}

// Snapshot is the non-streaming view of a room.
type Snapshot struct {
	Messages    []Message `json:"messages"`
	LastEventID int64     `json:"lastEventId"`
}
