// Package notify delivers user-facing booking outcomes.
package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// Kind is the tone of a message.
type Kind int

const (
	Info Kind = iota
	Success
	Warning
	Failure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Failure:
		return "failure"
	default:
		return "info"
	}
}

// color is the hex accent used by chat integrations.
func (k Kind) color() string {
	switch k {
	case Success:
		return "#2eb67d"
	case Warning:
		return "#ecb22e"
	case Failure:
		return "#e01e5a"
	default:
		return "#36c5f0"
	}
}

// Message is one notification. Recipient is the preference's notifyTo value.
type Message struct {
	Kind      Kind
	Title     string
	Body      string
	Recipient string
}

// Notifier sends messages.
type Notifier interface {
	Send(ctx context.Context, m Message) error
}

// Deliver sends m and logs a failure instead of returning it.
func Deliver(ctx context.Context, n Notifier, m Message) {
	if n == nil {
		return
	}
	if err := n.Send(ctx, m); err != nil {
		log.Error().Err(err).Str("title", m.Title).Str("to", m.Recipient).Msg("notification failed")
	}
}

// Log writes messages to the structured log.
type Log struct{}

func (Log) Send(_ context.Context, m Message) error {
	ev := log.Info()
	switch m.Kind {
	case Warning:
		ev = log.Warn()
	case Failure:
		ev = log.Error()
	}
	ev.Str("kind", m.Kind.String()).Str("to", m.Recipient).Str("title", m.Title).Msg(m.Body)
	return nil
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (mu Multi) Send(ctx context.Context, m Message) error {
	var errs []error
	for _, n := range mu {
		if err := n.Send(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every message it is sent.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *Recorder) Send(_ context.Context, m Message) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
	return nil
}

// Messages returns a copy of what was recorded.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

// Count returns how many recorded messages have kind k.
func (r *Recorder) Count(k Kind) int {
	n := 0
	for _, m := range r.Messages() {
		if m.Kind == k {
			n++
		}
	}
	return n
}
