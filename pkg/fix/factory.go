package fix

import (
	"fmt"
	"sync"
)

// MessageFactory creates and parses messages for one BeginString.
type MessageFactory interface {
	BeginString() string
	Create(msgType string) *Message
	Parse(raw []byte) (*Message, error)
}

// Registry maps a BeginString to the factory serving it. It is populated at
// startup and then read concurrently.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]MessageFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]MessageFactory{}}
}

// DefaultRegistry serves every supported BeginString with the generic
// tag=value factory.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, bs := range []string{
		BeginStringFIX40, BeginStringFIX41, BeginStringFIX42,
		BeginStringFIX43, BeginStringFIX44, BeginStringFIXT11,
	} {
		r.Register(NewGenericFactory(bs))
	}
	return r
}

func (r *Registry) Register(f MessageFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[f.BeginString()] = f
}

func (r *Registry) Lookup(beginString string) (MessageFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[beginString]
	if !ok {
		return nil, fmt.Errorf("no message factory registered for %s", beginString)
	}
	return f, nil
}

type genericFactory struct {
	beginString string
}

func NewGenericFactory(beginString string) MessageFactory {
	return &genericFactory{beginString: beginString}
}

func (f *genericFactory) BeginString() string {
	return f.beginString
}

func (f *genericFactory) Create(msgType string) *Message {
	m := NewMessage()
	m.Header.SetString(TagBeginString, f.beginString)
	m.Header.SetString(TagMsgType, msgType)
	return m
}

func (f *genericFactory) Parse(raw []byte) (*Message, error) {
	return ParseMessage(raw)
}
