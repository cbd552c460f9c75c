package fix

import (
	"fmt"
	"strings"
)

// SessionID identifies a session from the local side's point of view. Two
// SessionIDs are equal exactly when their canonical strings are equal.
type SessionID struct {
	BeginString      string
	SenderCompID     string
	SenderSubID      string
	SenderLocationID string
	TargetCompID     string
	TargetSubID      string
	TargetLocationID string
	Qualifier        string
}

// String renders BEGIN:SENDER[/SUB[/LOC]]->TARGET[/SUB[/LOC]][:QUALIFIER].
func (s SessionID) String() string {
	var b strings.Builder
	b.WriteString(s.BeginString)
	b.WriteByte(':')
	b.WriteString(compID(s.SenderCompID, s.SenderSubID, s.SenderLocationID))
	b.WriteString("->")
	b.WriteString(compID(s.TargetCompID, s.TargetSubID, s.TargetLocationID))
	if s.Qualifier != "" {
		b.WriteByte(':')
		b.WriteString(s.Qualifier)
	}
	return b.String()
}

func compID(comp, sub, location string) string {
	switch {
	case location != "":
		return comp + "/" + sub + "/" + location
	case sub != "":
		return comp + "/" + sub
	}
	return comp
}

// Reverse swaps the sender and target sides.
func (s SessionID) Reverse() SessionID {
	return SessionID{
		BeginString:      s.BeginString,
		SenderCompID:     s.TargetCompID,
		SenderSubID:      s.TargetSubID,
		SenderLocationID: s.TargetLocationID,
		TargetCompID:     s.SenderCompID,
		TargetSubID:      s.SenderSubID,
		TargetLocationID: s.SenderLocationID,
		Qualifier:        s.Qualifier,
	}
}

func (s SessionID) IsZero() bool {
	return s == SessionID{}
}

// ParseSessionID is the inverse of SessionID.String.
func ParseSessionID(str string) (SessionID, error) {
	colon := strings.Index(str, ":")
	if colon <= 0 {
		return SessionID{}, fmt.Errorf("invalid session id %q: missing BeginString", str)
	}
	id := SessionID{BeginString: str[:colon]}
	rest := str[colon+1:]

	arrow := strings.Index(rest, "->")
	if arrow <= 0 {
		return SessionID{}, fmt.Errorf("invalid session id %q: missing sender/target separator", str)
	}
	sender, target := rest[:arrow], rest[arrow+2:]
	if q := strings.LastIndex(target, ":"); q >= 0 {
		id.Qualifier = target[q+1:]
		target = target[:q]
	}

	id.SenderCompID, id.SenderSubID, id.SenderLocationID = splitCompID(sender)
	id.TargetCompID, id.TargetSubID, id.TargetLocationID = splitCompID(target)
	if id.SenderCompID == "" || id.TargetCompID == "" {
		return SessionID{}, fmt.Errorf("invalid session id %q: empty CompID", str)
	}
	return id, nil
}

func splitCompID(s string) (comp, sub, location string) {
	parts := strings.SplitN(s, "/", 3)
	comp = parts[0]
	if len(parts) > 1 {
		sub = parts[1]
	}
	if len(parts) > 2 {
		location = parts[2]
	}
	return comp, sub, location
}

// SessionIDFromHeader builds the SessionID of the receiving side of msg,
// i.e. with the message's TargetCompID as our sender.
func SessionIDFromHeader(msg *Message) (SessionID, error) {
	beginString, err := msg.Header.GetString(TagBeginString)
	if err != nil {
		return SessionID{}, err
	}
	sender, err := msg.Header.GetString(TagSenderCompID)
	if err != nil {
		return SessionID{}, err
	}
	target, err := msg.Header.GetString(TagTargetCompID)
	if err != nil {
		return SessionID{}, err
	}
	id := SessionID{
		BeginString:  beginString,
		SenderCompID: target,
		TargetCompID: sender,
	}
	id.SenderSubID, _ = msg.Header.GetString(TagTargetSubID)
	id.SenderLocationID, _ = msg.Header.GetString(TagTargetLocationID)
	id.TargetSubID, _ = msg.Header.GetString(TagSenderSubID)
	id.TargetLocationID, _ = msg.Header.GetString(TagSenderLocationID)
	return id, nil
}
