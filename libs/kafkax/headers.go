package kafkax

import (
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
)

// Header keys set by every producer in the system.
const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
)

type EventMeta struct {
	EventID   string
	EventType string
}

// MessageMeta reads the event headers of msg. A message without an event id is
// identified by its log position and one without a type by its topic.
func MessageMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:   header(msg.Headers, HeaderEventID),
		EventType: header(msg.Headers, HeaderEventType),
	}
	if meta.EventID == "" {
		meta.EventID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	return meta
}

func header(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// setHeader replaces key in place when present.
func setHeader(headers []kafka.Header, key, value string) []kafka.Header {
	for i := range headers {
		if headers[i].Key == key {
			headers[i].Value = []byte(value)
			return headers
		}
	}
	return append(headers, kafka.Header{Key: key, Value: []byte(value)})
}

// SplitBrokers parses a comma separated broker list.
func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
