package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
)

// SequenceTooLowPolicy decides what happens to a message whose MsgSeqNum is
// below the expected one and that is not flagged PossDup.
type SequenceTooLowPolicy int

const (
	// Send a Logout and drop the connection.
	SequenceTooLowDisconnect SequenceTooLowPolicy = iota
	// Log the violation and discard the message.
	SequenceTooLowIgnore
)

func (p SequenceTooLowPolicy) String() string {
	switch p {
	case SequenceTooLowDisconnect:
		return "disconnect"
	case SequenceTooLowIgnore:
		return "ignore"
	}
	return fmt.Sprintf("SequenceTooLowPolicy(%d)", int(p))
}

func ParseSequenceTooLowPolicy(s string) (SequenceTooLowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "disconnect":
		return SequenceTooLowDisconnect, nil
	case "ignore":
		return SequenceTooLowIgnore, nil
	}
	return 0, configError("SequenceTooLowPolicy", "unknown policy %q", s)
}

type Settings struct {
	Initiator bool
	// HeartBtInt is sent on Logon by an initiator. Acceptors adopt the
	// value the counterparty sends.
	HeartBtInt    time.Duration
	LogonTimeout  time.Duration
	LogoutTimeout time.Duration

	ResetOnLogon      bool
	ResetOnLogout     bool
	ResetOnDisconnect bool
	// RefreshOnLogon reloads the counters from the store before logon,
	// for stores shared between processes.
	RefreshOnLogon bool

	CheckCompID             bool
	CheckLatency            bool
	MaxLatency              time.Duration
	RequiresOrigSendingTime bool
	SequenceTooLow          SequenceTooLowPolicy
	// DisconnectOnReject logs out after rejecting an inbound message.
	DisconnectOnReject bool

	// ResendRequestChunkSize splits large gaps into several requests,
	// 0 asks for the whole gap at once.
	ResendRequestChunkSize uint64
	// ClosedResendInterval puts the real end of the gap in EndSeqNo instead
	// of the open ended value.
	ClosedResendInterval        bool
	SendRedundantResendRequests bool
	// PersistMessages=false answers every ResendRequest with a GapFill.
	PersistMessages bool
	// QueueCapacity bounds the out of order buffer, 0 is unbounded.
	QueueCapacity int

	TimestampPrecision fix.TimestampPrecision
	DefaultApplVerID   string
}

func NewSettings() Settings {
	return Settings{
		HeartBtInt:              30 * time.Second,
		LogonTimeout:            10 * time.Second,
		LogoutTimeout:           2 * time.Second,
		CheckCompID:             true,
		CheckLatency:            true,
		MaxLatency:              120 * time.Second,
		RequiresOrigSendingTime: true,
		ClosedResendInterval:    true,
		PersistMessages:         true,
	}
}

func (s Settings) Validate() error {
	if s.HeartBtInt < 0 || s.HeartBtInt%time.Second != 0 {
		return configError("HeartBtInt", "must be a non-negative whole number of seconds, got %s", s.HeartBtInt)
	}
	if s.Initiator && s.HeartBtInt == 0 {
		return configError("HeartBtInt", "initiators must send a heartbeat interval")
	}
	if s.LogonTimeout <= 0 {
		return configError("LogonTimeout", "must be positive")
	}
	if s.LogoutTimeout <= 0 {
		return configError("LogoutTimeout", "must be positive")
	}
	if s.CheckLatency && s.MaxLatency <= 0 {
		return configError("MaxLatency", "must be positive when latency is checked")
	}
	if s.QueueCapacity < 0 {
		return configError("QueueCapacity", "must not be negative")
	}
	if s.SequenceTooLow != SequenceTooLowDisconnect && s.SequenceTooLow != SequenceTooLowIgnore {
		return configError("SequenceTooLowPolicy", "unknown policy %d", int(s.SequenceTooLow))
	}
	if s.TimestampPrecision < fix.Millis || s.TimestampPrecision > fix.Nanos {
		return configError("TimestampPrecision", "unknown precision %d", int(s.TimestampPrecision))
	}
	return nil
}
