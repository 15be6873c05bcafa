package engine

import (
	"fmt"
	"log/slog"

	"github.com/seqlab/beamrun/internal/document"
)

// Subscriber receives every document the engine emits, synchronously and
// in emission order. A subscriber error (or panic) never aborts the run:
// it is logged, counted as a strike, and after the configured failure
// limit the subscriber is dropped.
type Subscriber interface {
	OnDocument(kind document.Kind, doc document.Document) error
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(kind document.Kind, doc document.Document) error

func (f SubscriberFunc) OnDocument(kind document.Kind, doc document.Document) error {
	return f(kind, doc)
}

// Token identifies a subscription for later removal.
type Token int

type subscription struct {
	token   Token
	sub     Subscriber
	strikes int
}

// Subscribe registers a subscriber. Safe from any goroutine.
func (e *Engine) Subscribe(sub Subscriber) Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextToken++
	tok := e.nextToken
	e.subs = append(e.subs, &subscription{token: tok, sub: sub})
	return tok
}

// Unsubscribe removes a subscription by token. Unknown tokens are ignored.
// Safe from any goroutine.
func (e *Engine) Unsubscribe(tok Token) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s.token == tok {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return
		}
	}
}

// emit fans a document out to every subscriber in registration order.
// Called only from the interpreter goroutine; the subscriber list is
// copied under the lock so Subscribe/Unsubscribe from callbacks or other
// goroutines cannot corrupt iteration.
func (e *Engine) emit(doc document.Document) {
	e.mu.Lock()
	active := make([]*subscription, len(e.subs))
	copy(active, e.subs)
	e.mu.Unlock()

	kind := doc.Kind()
	for _, s := range active {
		err := e.deliver(s, kind, doc)
		if err == nil {
			s.strikes = 0
			continue
		}

		s.strikes++
		slog.Error("subscriber failed",
			"kind", kind,
			"document", doc.DocumentUID(),
			"strikes", s.strikes,
			"error", err,
		)
		if e.subFailureLimit > 0 && s.strikes >= e.subFailureLimit {
			slog.Warn("unsubscribing failing subscriber",
				"token", s.token,
				"strikes", s.strikes,
			)
			e.Unsubscribe(s.token)
		}
	}
}

// deliver invokes one subscriber, converting panics to errors so a
// misbehaving consumer cannot unwind the interpreter.
func (e *Engine) deliver(s *subscription, kind document.Kind, doc document.Document) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return s.sub.OnDocument(kind, doc)
}
