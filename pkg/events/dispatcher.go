package events

import (
	"sync/atomic"

	"github.com/fr3shw3b/fix-session-engine/pkg/fix"
	"github.com/sirupsen/logrus"
)

// Dispatcher implements Application, LogonValidator and ResetListener by
// invoking registered handlers in registration order.
//
// FromAdmin, ToApp and FromApp stop at the first handler that returns an
// error and hand that error back. CanLogon is the short-circuiting AND of
// every predicate. The notification hooks always reach every handler; a
// handler that panics is logged and skipped.
type Dispatcher struct {
	logger *logrus.Logger
	nextID atomic.Uint64

	create      hookList[SessionHandler]
	logon       hookList[SessionHandler]
	logout      hookList[SessionHandler]
	beforeReset hookList[SessionHandler]
	toAdmin     hookList[MessageHandler]
	fromAdmin   hookList[MessageCheck]
	toApp       hookList[MessageCheck]
	fromApp     hookList[MessageCheck]
	canLogon    hookList[LogonCheck]
}

func NewDispatcher(logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

func register[T any](d *Dispatcher, list *hookList[T], handler T) func() {
	id := d.nextID.Add(1)
	list.add(id, handler)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			list.remove(id)
		}
	}
}

func (d *Dispatcher) HandleCreate(h SessionHandler) func() { return register(d, &d.create, h) }
func (d *Dispatcher) HandleLogon(h SessionHandler) func()  { return register(d, &d.logon, h) }
func (d *Dispatcher) HandleLogout(h SessionHandler) func() { return register(d, &d.logout, h) }
func (d *Dispatcher) HandleBeforeSessionReset(h SessionHandler) func() {
	return register(d, &d.beforeReset, h)
}
func (d *Dispatcher) HandleToAdmin(h MessageHandler) func() { return register(d, &d.toAdmin, h) }
func (d *Dispatcher) HandleFromAdmin(h MessageCheck) func() { return register(d, &d.fromAdmin, h) }
func (d *Dispatcher) HandleToApp(h MessageCheck) func()     { return register(d, &d.toApp, h) }
func (d *Dispatcher) HandleFromApp(h MessageCheck) func()   { return register(d, &d.fromApp, h) }
func (d *Dispatcher) HandleCanLogon(h LogonCheck) func()    { return register(d, &d.canLogon, h) }

// AddApplication registers every hook of app, plus CanLogon and
// OnBeforeSessionReset when app implements them. The returned function
// removes all of them again.
func (d *Dispatcher) AddApplication(app Application) func() {
	unregister := []func(){
		d.HandleCreate(app.OnCreate),
		d.HandleLogon(app.OnLogon),
		d.HandleLogout(app.OnLogout),
		d.HandleToAdmin(app.ToAdmin),
		d.HandleFromAdmin(app.FromAdmin),
		d.HandleToApp(app.ToApp),
		d.HandleFromApp(app.FromApp),
	}
	if v, ok := app.(LogonValidator); ok {
		unregister = append(unregister, d.HandleCanLogon(v.CanLogon))
	}
	if r, ok := app.(ResetListener); ok {
		unregister = append(unregister, d.HandleBeforeSessionReset(r.OnBeforeSessionReset))
	}
	return func() {
		for _, fn := range unregister {
			fn()
		}
	}
}

func (d *Dispatcher) OnCreate(sessionID fix.SessionID) {
	notify(d, "OnCreate", &d.create, sessionID, func(h SessionHandler) { h(sessionID) })
}

func (d *Dispatcher) OnLogon(sessionID fix.SessionID) {
	notify(d, "OnLogon", &d.logon, sessionID, func(h SessionHandler) { h(sessionID) })
}

func (d *Dispatcher) OnLogout(sessionID fix.SessionID) {
	notify(d, "OnLogout", &d.logout, sessionID, func(h SessionHandler) { h(sessionID) })
}

func (d *Dispatcher) OnBeforeSessionReset(sessionID fix.SessionID) {
	notify(d, "OnBeforeSessionReset", &d.beforeReset, sessionID, func(h SessionHandler) { h(sessionID) })
}

func (d *Dispatcher) ToAdmin(msg *fix.Message, sessionID fix.SessionID) {
	notify(d, "ToAdmin", &d.toAdmin, sessionID, func(h MessageHandler) { h(msg, sessionID) })
}

func (d *Dispatcher) FromAdmin(msg *fix.Message, sessionID fix.SessionID) error {
	return check(&d.fromAdmin, msg, sessionID)
}

func (d *Dispatcher) ToApp(msg *fix.Message, sessionID fix.SessionID) error {
	return check(&d.toApp, msg, sessionID)
}

func (d *Dispatcher) FromApp(msg *fix.Message, sessionID fix.SessionID) error {
	return check(&d.fromApp, msg, sessionID)
}

func (d *Dispatcher) CanLogon(sessionID fix.SessionID) bool {
	for _, e := range d.canLogon.load() {
		if !e.handler(sessionID) {
			return false
		}
	}
	return true
}

// Len reports the number of registered handlers across all hooks.
func (d *Dispatcher) Len() int {
	return d.create.len() + d.logon.len() + d.logout.len() + d.beforeReset.len() +
		d.toAdmin.len() + d.fromAdmin.len() + d.toApp.len() + d.fromApp.len() + d.canLogon.len()
}

func check(list *hookList[MessageCheck], msg *fix.Message, sessionID fix.SessionID) error {
	for _, e := range list.load() {
		if err := e.handler(msg, sessionID); err != nil {
			return err
		}
	}
	return nil
}

func notify[T any](d *Dispatcher, hook string, list *hookList[T], sessionID fix.SessionID, call func(T)) {
	for _, e := range list.load() {
		d.invoke(hook, sessionID, func() { call(e.handler) })
	}
}

func (d *Dispatcher) invoke(hook string, sessionID fix.SessionID, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(logrus.Fields{
				"session_id": sessionID.String(),
				"hook":       hook,
			}).Errorf("handler panicked: %v", r)
		}
	}()
	fn()
}
