package shadow

import (
	"encoding/json"
	"strings"
)

// Operation identifies one of the two shadow request types.
type Operation string

// Shadow operations.
const (
	OpGet    Operation = "get"
	OpUpdate Operation = "update"
)

// MessageKind classifies an inbound shadow message.
type MessageKind int

// Message kinds. KindUnrecognized covers foreign topics, malformed JSON,
// and payloads that fail to match the expected envelope; such traffic is
// dropped without error so it can never take the session down.
const (
	KindUnrecognized MessageKind = iota
	KindGetAccepted
	KindGetRejected
	KindUpdateAccepted
	KindUpdateRejected
	KindUpdateDelta
)

// String returns a log-friendly name for the message kind.
func (k MessageKind) String() string {
	switch k {
	case KindGetAccepted:
		return "get-accepted"
	case KindGetRejected:
		return "get-rejected"
	case KindUpdateAccepted:
		return "update-accepted"
	case KindUpdateRejected:
		return "update-rejected"
	case KindUpdateDelta:
		return "update-delta"
	default:
		return "unrecognized"
	}
}

// Document is the shadow wire envelope carried by accepted responses.
// It is transient: callers normalize the reported section immediately and
// do not retain the raw form.
type Document struct {
	State     DocumentState `json:"state"`
	Timestamp int64         `json:"timestamp,omitempty"`
	Version   int           `json:"version,omitempty"`
}

// DocumentState holds the reported and desired field sets.
type DocumentState struct {
	Reported map[string]any `json:"reported,omitempty"`
	Desired  map[string]any `json:"desired,omitempty"`
}

// rejection is the payload of get/rejected and update/rejected messages.
type rejection struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// delta is the payload of update/delta messages.
type delta struct {
	State map[string]any `json:"state"`
}

// Message is the result of classifying one inbound (topic, payload) pair.
// Exactly one of Document, Delta, or Rejection is populated, matching Kind.
type Message struct {
	DeviceID  string
	Kind      MessageKind
	Document  *Document
	Delta     map[string]any
	Rejection *RejectionError
}

// Classify pattern-matches an inbound message against the five shadow
// sub-topics and validates its payload shape.
//
// The device ID is extracted from the second topic segment. Anything that
// is not shadow traffic for some device — a foreign topic, a non-JSON
// payload, an envelope missing its state section — classifies as
// KindUnrecognized with no error raised.
//
// Parameters:
//   - topic: the MQTT topic the message arrived on
//   - payload: the raw message payload
//
// Returns:
//   - Message: classification result; Kind is KindUnrecognized on no match
func Classify(topic string, payload []byte) Message {
	unrecognized := Message{Kind: KindUnrecognized}

	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != topicPrefix || parts[2] != "shadow" {
		return unrecognized
	}
	deviceID := parts[1]
	if deviceID == "" {
		return unrecognized
	}

	var (
		op     = parts[3]
		suffix = parts[4]
		kind   MessageKind
	)
	switch {
	case op == "get" && suffix == "accepted":
		kind = KindGetAccepted
	case op == "get" && suffix == "rejected":
		kind = KindGetRejected
	case op == "update" && suffix == "accepted":
		kind = KindUpdateAccepted
	case op == "update" && suffix == "rejected":
		kind = KindUpdateRejected
	case op == "update" && suffix == "delta":
		kind = KindUpdateDelta
	default:
		return unrecognized
	}

	switch kind {
	case KindGetAccepted, KindUpdateAccepted:
		var doc Document
		if err := json.Unmarshal(payload, &doc); err != nil {
			return unrecognized
		}
		if doc.State.Reported == nil && doc.State.Desired == nil {
			return unrecognized
		}
		return Message{DeviceID: deviceID, Kind: kind, Document: &doc}

	case KindGetRejected, KindUpdateRejected:
		var rej rejection
		if err := json.Unmarshal(payload, &rej); err != nil {
			return unrecognized
		}
		operation := OpGet
		if kind == KindUpdateRejected {
			operation = OpUpdate
		}
		return Message{DeviceID: deviceID, Kind: kind, Rejection: &RejectionError{
			DeviceID:  deviceID,
			Operation: operation,
			Code:      rej.Code,
			Message:   rej.Message,
		}}

	default: // KindUpdateDelta
		var d delta
		if err := json.Unmarshal(payload, &d); err != nil {
			return unrecognized
		}
		if d.State == nil {
			return unrecognized
		}
		return Message{DeviceID: deviceID, Kind: kind, Delta: d.State}
	}
}
