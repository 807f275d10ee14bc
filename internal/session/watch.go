package session

import (
	"context"
	"log/slog"

	"github.com/florianilch/taplinks-cli/internal/tokenstore"
)

// Watch streams the session state. The current state is sent immediately,
// then again after every change made through this Provider and, when the
// store implements tokenstore.Watcher, after changes made by other processes.
// Consecutive identical states are sent once. The channel is closed when ctx ends.
func (p *Provider) Watch(ctx context.Context) <-chan TokenEvent {
	notify := p.subscribe()

	var external <-chan struct{}
	if w, ok := p.store.(tokenstore.Watcher); ok {
		ch, err := w.Watch(ctx)
		if err != nil {
			slog.WarnContext(ctx, "external session changes will not be observed", "error", err)
		} else {
			external = ch
		}
	}

	events := make(chan TokenEvent)

	go func() {
		defer close(events)
		defer p.unsubscribe(notify)

		var last *TokenEvent
		for {
			token, err := p.Token(ctx)
			if ctx.Err() != nil {
				return
			}

			event := TokenEvent{Token: token, Err: err}
			if last == nil || err != nil || last.Err != nil || last.Token != token {
				select {
				case events <- event:
					last = &event
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-notify:
			case _, ok := <-external:
				if !ok {
					// a nil channel blocks forever, leaving in-process notifications
					external = nil
				}
			}
		}
	}()

	return events
}

// WatchAuthenticated streams whether a session is present, derived from Watch.
// A storage fault is reported as false.
func (p *Provider) WatchAuthenticated(ctx context.Context) <-chan bool {
	tokens := p.Watch(ctx)
	states := make(chan bool)

	go func() {
		defer close(states)

		var last *bool
		for event := range tokens {
			authenticated := event.Err == nil && event.Token.Authenticated()
			if last != nil && *last == authenticated {
				continue
			}
			select {
			case states <- authenticated:
				last = &authenticated
			case <-ctx.Done():
				// keep draining tokens until Watch closes it
			}
		}
	}()

	return states
}

func (p *Provider) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	p.mu.Lock()
	p.subscribers[ch] = struct{}{}
	p.mu.Unlock()
	return ch
}

func (p *Provider) unsubscribe(ch chan struct{}) {
	p.mu.Lock()
	delete(p.subscribers, ch)
	p.mu.Unlock()
}

func (p *Provider) notify() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range p.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
