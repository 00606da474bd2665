// Package roomlog sequences messages into per-room logs.
//
// Each room is a single record {version, messages} in a store.RoomLogStore.
// Append reads the record, builds the next message with id = version + 1,
// appends it to the retained window (dropping the oldest entries beyond the
// retention size) and writes the record back with a conditional write on the
// version it read. A lost race restarts the whole read-build-write cycle.
//
//	l := roomlog.New(st, roomlog.Options{Retention: 50})
//	msg, err := l.Append(ctx, "lobby", func(version int64, _ []models.Message) models.Message {
//	    return models.Message{From: "alice", Text: "hi"}
//	})
//
// Retries are bounded by RetryPolicy.MaxAttempts with exponential backoff;
// exhausting them returns ErrConflict. Storage errors other than a lost race
// are returned immediately.
package roomlog
