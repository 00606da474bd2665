// Package fanout publishes room messages to stream subscribers.
//
// Every room has two channels: the confirmed channel ("messages-{room}")
// carries committed messages tagged with their id and the id of their
// predecessor, and the provisional channel ("provisional-{room}") carries
// optimistic copies announced before commit plus retractions of copies that
// never committed.
//
// Publishing goes through a Transport. GripPublisher posts items to a GRIP
// proxy's control endpoint (Pushpin or Fanout Cloud), which holds the client
// streams. MemoryBroker and RedisBroker also implement Subscriber so the
// server can hold streams itself.
//
// Publishing is best effort. Publisher logs failures and reports them in a
// Result but never returns an error: the room log is the source of truth and
// clients recover missed messages by resuming from their last id.
package fanout
