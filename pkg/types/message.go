package types

import (
	"fmt"
	"strconv"
	"strings"
)

// kind of coordination message
type MessageKind string

const (
	// asks a peer for permission to enter the critical section
	KindRequest MessageKind = "REQUEST"
	// grants permission to the original requester
	KindGrant MessageKind = "OK"
)

// a single coordination message exchanged between peers
// wire format is one CSV line per message:
//
//	REQUEST,<sender>,<lamport timestamp>
//	OK,<sender>
type Message struct {
	Kind      MessageKind
	SenderID  string
	Timestamp uint64 // lamport timestamp, REQUEST only
}

func (m Message) Encode() string {
	if m.Kind == KindRequest {
		return fmt.Sprintf("%s,%s,%d", m.Kind, m.SenderID, m.Timestamp)
	}
	return fmt.Sprintf("%s,%s", m.Kind, m.SenderID)
}

// parses one wire line into a Message
func ParseMessage(line string) (Message, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")

	switch {
	case len(parts) == 2 && MessageKind(parts[0]) == KindGrant:
		if parts[1] == "" {
			return Message{}, fmt.Errorf("%w: empty sender in %q", ErrMalformedMessage, line)
		}
		return Message{Kind: KindGrant, SenderID: parts[1]}, nil

	case len(parts) == 3 && MessageKind(parts[0]) == KindRequest:
		if parts[1] == "" {
			return Message{}, fmt.Errorf("%w: empty sender in %q", ErrMalformedMessage, line)
		}
		ts, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return Message{}, fmt.Errorf("%w: bad timestamp in %q", ErrMalformedMessage, line)
		}
		return Message{Kind: KindRequest, SenderID: parts[1], Timestamp: ts}, nil

	default:
		return Message{}, fmt.Errorf("%w: %q", ErrMalformedMessage, line)
	}
}
