package events

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSessionID = fix.SessionID{BeginString: fix.BeginStringFIX44, SenderCompID: "A", TargetCompID: "B"}

func createLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type recordingApp struct {
	NopApplication
	calls []string
	reset bool
}

func (a *recordingApp) OnLogon(fix.SessionID)  { a.calls = append(a.calls, "logon") }
func (a *recordingApp) OnLogout(fix.SessionID) { a.calls = append(a.calls, "logout") }
func (a *recordingApp) CanLogon(fix.SessionID) bool {
	return false
}
func (a *recordingApp) OnBeforeSessionReset(fix.SessionID) { a.reset = true }

func Test_notifications_run_in_registration_order(t *testing.T) {
	d := NewDispatcher(createLogger())
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		d.HandleLogon(func(fix.SessionID) { order = append(order, i) })
	}

	d.OnLogon(testSessionID)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func Test_notification_survives_panicking_handler(t *testing.T) {
	d := NewDispatcher(createLogger())
	reached := false
	d.HandleCreate(func(fix.SessionID) { panic("boom") })
	d.HandleCreate(func(fix.SessionID) { reached = true })

	assert.NotPanics(t, func() { d.OnCreate(testSessionID) })
	assert.True(t, reached)
}

func Test_check_hooks_fail_fast(t *testing.T) {
	d := NewDispatcher(createLogger())
	first := fix.IncorrectTagValue(fix.TagMsgType)
	secondCalled := false
	d.HandleFromApp(func(*fix.Message, fix.SessionID) error { return nil })
	d.HandleFromApp(func(*fix.Message, fix.SessionID) error { return first })
	d.HandleFromApp(func(*fix.Message, fix.SessionID) error {
		secondCalled = true
		return nil
	})

	err := d.FromApp(fix.NewMessage(), testSessionID)
	assert.Same(t, first, err)
	assert.False(t, secondCalled)

	d.HandleToApp(func(*fix.Message, fix.SessionID) error { return fix.ErrDoNotSend })
	assert.True(t, errors.Is(d.ToApp(fix.NewMessage(), testSessionID), fix.ErrDoNotSend))
	assert.NoError(t, d.FromAdmin(fix.NewMessage(), testSessionID))
}

func Test_can_logon_is_conjunction(t *testing.T) {
	d := NewDispatcher(createLogger())
	assert.True(t, d.CanLogon(testSessionID), "no predicates accepts the logon")

	calls := 0
	d.HandleCanLogon(func(fix.SessionID) bool { calls++; return true })
	unregister := d.HandleCanLogon(func(fix.SessionID) bool { calls++; return false })
	d.HandleCanLogon(func(fix.SessionID) bool { calls++; return true })

	assert.False(t, d.CanLogon(testSessionID))
	assert.Equal(t, 2, calls, "evaluation stops at the first refusal")

	unregister()
	unregister()
	assert.True(t, d.CanLogon(testSessionID))
}

func Test_add_application(t *testing.T) {
	d := NewDispatcher(createLogger())
	app := &recordingApp{}
	remove := d.AddApplication(app)
	assert.Equal(t, 9, d.Len())

	d.OnLogon(testSessionID)
	d.OnLogout(testSessionID)
	d.OnBeforeSessionReset(testSessionID)
	assert.Equal(t, []string{"logon", "logout"}, app.calls)
	assert.True(t, app.reset)
	assert.False(t, d.CanLogon(testSessionID))

	remove()
	assert.Equal(t, 0, d.Len())
	d.OnLogon(testSessionID)
	assert.Len(t, app.calls, 2)
}

func Test_concurrent_registration_and_dispatch(t *testing.T) {
	d := NewDispatcher(createLogger())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unregister := d.HandleToAdmin(func(*fix.Message, fix.SessionID) {})
			unregister()
		}()
		go func() {
			defer wg.Done()
			d.ToAdmin(fix.NewMessage(), testSessionID)
		}()
	}
	wg.Wait()
	require.Equal(t, 0, d.Len())
}
