package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	"github.com/fr3shw3b/fix-session-engine/pkg/schedule"
	"github.com/fr3shw3b/fix-session-engine/pkg/session"
	"gopkg.in/yaml.v3"
)

const (
	ConnectionAcceptor  = "acceptor"
	ConnectionInitiator = "initiator"
)

// SessionConfig is one entry of the sessions file. Durations are given in
// whole seconds. Pointer fields default to true when left out.
type SessionConfig struct {
	BeginString      string `yaml:"begin_string"`
	SenderCompID     string `yaml:"sender_comp_id"`
	SenderSubID      string `yaml:"sender_sub_id,omitempty"`
	SenderLocationID string `yaml:"sender_location_id,omitempty"`
	TargetCompID     string `yaml:"target_comp_id"`
	TargetSubID      string `yaml:"target_sub_id,omitempty"`
	TargetLocationID string `yaml:"target_location_id,omitempty"`
	Qualifier        string `yaml:"qualifier,omitempty"`

	ConnectionType string `yaml:"connection_type"`
	// tcp or websocket, initiators only.
	Transport string `yaml:"transport,omitempty"`
	Address   string `yaml:"address,omitempty"`

	HeartBtInt    int `yaml:"heartbeat_interval"`
	LogonTimeout  int `yaml:"logon_timeout"`
	LogoutTimeout int `yaml:"logout_timeout"`

	ResetOnLogon      bool `yaml:"reset_on_logon"`
	ResetOnLogout     bool `yaml:"reset_on_logout"`
	ResetOnDisconnect bool `yaml:"reset_on_disconnect"`
	RefreshOnLogon    bool `yaml:"refresh_on_logon"`

	CheckCompID             *bool  `yaml:"check_comp_id"`
	CheckLatency            *bool  `yaml:"check_latency"`
	MaxLatency              int    `yaml:"max_latency"`
	RequiresOrigSendingTime *bool  `yaml:"requires_orig_sending_time"`
	SequenceTooLow          string `yaml:"sequence_too_low"`
	DisconnectOnReject      bool   `yaml:"disconnect_on_reject"`

	ResendRequestChunkSize      uint64 `yaml:"resend_request_chunk_size"`
	ClosedResendInterval        *bool  `yaml:"closed_resend_interval"`
	SendRedundantResendRequests bool   `yaml:"send_redundant_resend_requests"`
	PersistMessages             *bool  `yaml:"persist_messages"`
	QueueCapacity               int    `yaml:"queue_capacity"`

	TimestampPrecision string `yaml:"timestamp_precision"`
	DefaultApplVerID   string `yaml:"default_appl_ver_id,omitempty"`

	NonStop   bool     `yaml:"non_stop"`
	StartTime string   `yaml:"start_time,omitempty"`
	EndTime   string   `yaml:"end_time,omitempty"`
	StartDay  string   `yaml:"start_day,omitempty"`
	EndDay    string   `yaml:"end_day,omitempty"`
	Weekdays  []string `yaml:"weekdays,omitempty"`
	TimeZone  string   `yaml:"time_zone,omitempty"`
}

type sessionsFile struct {
	Default  yaml.Node   `yaml:"default"`
	Sessions []yaml.Node `yaml:"sessions"`
}

func LoadSessions(path string) ([]SessionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sessions file: %w", err)
	}
	return ParseSessions(data)
}

// ParseSessions decodes every entry under sessions on top of the default
// block, so entries only list what differs.
func ParseSessions(data []byte) ([]SessionConfig, error) {
	var file sessionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing sessions file: %w", err)
	}
	if len(file.Sessions) == 0 {
		return nil, fmt.Errorf("sessions file: no sessions defined")
	}

	configs := make([]SessionConfig, 0, len(file.Sessions))
	seen := map[string]bool{}
	for i := range file.Sessions {
		var cfg SessionConfig
		if !file.Default.IsZero() {
			if err := file.Default.Decode(&cfg); err != nil {
				return nil, fmt.Errorf("parsing default session block: %w", err)
			}
		}
		if err := file.Sessions[i].Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parsing session %d: %w", i, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("session %d: %w", i, err)
		}
		id := cfg.SessionID().String()
		if seen[id] {
			return nil, fmt.Errorf("session %d: duplicate session %s", i, id)
		}
		seen[id] = true
		configs = append(configs, cfg)
	}
	return configs, nil
}

func (c *SessionConfig) Validate() error {
	if c.BeginString == "" || c.SenderCompID == "" || c.TargetCompID == "" {
		return fmt.Errorf("begin_string, sender_comp_id and target_comp_id are required")
	}
	switch c.ConnectionType {
	case ConnectionAcceptor:
	case ConnectionInitiator:
		if c.Address == "" {
			return fmt.Errorf("initiator %s has no address", c.SessionID())
		}
	default:
		return fmt.Errorf("connection_type must be %s or %s, got %q",
			ConnectionAcceptor, ConnectionInitiator, c.ConnectionType)
	}
	return nil
}

func (c *SessionConfig) IsInitiator() bool {
	return c.ConnectionType == ConnectionInitiator
}

func (c *SessionConfig) SessionID() fix.SessionID {
	return fix.SessionID{
		BeginString:      c.BeginString,
		SenderCompID:     c.SenderCompID,
		SenderSubID:      c.SenderSubID,
		SenderLocationID: c.SenderLocationID,
		TargetCompID:     c.TargetCompID,
		TargetSubID:      c.TargetSubID,
		TargetLocationID: c.TargetLocationID,
		Qualifier:        c.Qualifier,
	}
}

// Settings overlays the entry on session.NewSettings and validates the
// result.
func (c *SessionConfig) Settings() (session.Settings, error) {
	settings := session.NewSettings()
	settings.Initiator = c.IsInitiator()
	if c.HeartBtInt > 0 {
		settings.HeartBtInt = seconds(c.HeartBtInt)
	}
	if c.LogonTimeout > 0 {
		settings.LogonTimeout = seconds(c.LogonTimeout)
	}
	if c.LogoutTimeout > 0 {
		settings.LogoutTimeout = seconds(c.LogoutTimeout)
	}

	settings.ResetOnLogon = c.ResetOnLogon
	settings.ResetOnLogout = c.ResetOnLogout
	settings.ResetOnDisconnect = c.ResetOnDisconnect
	settings.RefreshOnLogon = c.RefreshOnLogon

	setBool(&settings.CheckCompID, c.CheckCompID)
	setBool(&settings.CheckLatency, c.CheckLatency)
	if c.MaxLatency > 0 {
		settings.MaxLatency = seconds(c.MaxLatency)
	}
	setBool(&settings.RequiresOrigSendingTime, c.RequiresOrigSendingTime)
	if c.SequenceTooLow != "" {
		policy, err := session.ParseSequenceTooLowPolicy(c.SequenceTooLow)
		if err != nil {
			return session.Settings{}, err
		}
		settings.SequenceTooLow = policy
	}
	settings.DisconnectOnReject = c.DisconnectOnReject

	settings.ResendRequestChunkSize = c.ResendRequestChunkSize
	setBool(&settings.ClosedResendInterval, c.ClosedResendInterval)
	settings.SendRedundantResendRequests = c.SendRedundantResendRequests
	setBool(&settings.PersistMessages, c.PersistMessages)
	settings.QueueCapacity = c.QueueCapacity

	if c.TimestampPrecision != "" {
		precision, err := parsePrecision(c.TimestampPrecision)
		if err != nil {
			return session.Settings{}, err
		}
		settings.TimestampPrecision = precision
	}
	settings.DefaultApplVerID = c.DefaultApplVerID

	if err := settings.Validate(); err != nil {
		return session.Settings{}, err
	}
	return settings, nil
}

// Schedule builds the session's schedule. An entry without start and end
// times is non-stop.
func (c *SessionConfig) Schedule() (schedule.Schedule, error) {
	return schedule.New(schedule.Params{
		NonStop:   c.NonStop || (c.StartTime == "" && c.EndTime == ""),
		StartTime: c.StartTime,
		EndTime:   c.EndTime,
		StartDay:  c.StartDay,
		EndDay:    c.EndDay,
		Weekdays:  c.Weekdays,
		TimeZone:  c.TimeZone,
	})
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func setBool(dst *bool, value *bool) {
	if value != nil {
		*dst = *value
	}
}

func parsePrecision(s string) (fix.TimestampPrecision, error) {
	switch strings.ToLower(s) {
	case "seconds":
		return fix.Seconds, nil
	case "millis":
		return fix.Millis, nil
	case "micros":
		return fix.Micros, nil
	case "nanos":
		return fix.Nanos, nil
	}
	return 0, fmt.Errorf("unknown timestamp_precision %q", s)
}
