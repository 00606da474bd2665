package fanout

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fanout/flychat/internal/models"
)

const (
	confirmedPrefix   = "messages-"
	provisionalPrefix = "provisional-"
)

// Stream event names.
const (
	EventMessage     = "message"
	EventStreamOpen  = "stream-open"
	EventStreamReset = "stream-reset"
	EventKeepAlive   = "keep-alive"
)

// ConfirmedChannel returns the channel carrying a room's committed messages.
func ConfirmedChannel(room string) string {
	return confirmedPrefix + room
}

// ProvisionalChannel returns the channel carrying a room's provisional
// messages and retractions.
func ProvisionalChannel(room string) string {
	return provisionalPrefix + room
}

// FormatEvent frames one stream event. id 0 omits the id line.
func FormatEvent(event string, id int64, data []byte) string {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteString("\n")
	if id > 0 {
		b.WriteString("id: ")
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteString("\n")
	}
	b.WriteString("data: ")
	b.Write(data)
	b.WriteString("\n\n")
	return b.String()
}

// SignalEvent frames a control event with an empty data line.
func SignalEvent(event string) string {
	return FormatEvent(event, 0, nil)
}

// MessageEvent frames a message. Confirmed messages carry their id.
func MessageEvent(msg models.Message) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	return FormatEvent(EventMessage, msg.ID, data), nil
}
