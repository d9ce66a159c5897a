package collector

import (
	"context"
	"sync"
	"time"

	"github.com/craftlink/craftlink/internal/domain"
	"github.com/craftlink/craftlink/internal/events"
	"github.com/craftlink/craftlink/internal/storage"
)

// Presence accumulates play time for linked users that are online.
// It is a sampling counter: each tick a user is seen adds one interval.
type Presence struct {
	server   GameServer
	registry *storage.Registry
	sink     events.Sink
	interval time.Duration

	mu          sync.Mutex
	last        map[string]bool
	initialized bool
}

// NewPresence creates the presence poller
func NewPresence(server GameServer, registry *storage.Registry, sink events.Sink, interval time.Duration) *Presence {
	return &Presence{
		server:   server,
		registry: registry,
		sink:     sink,
		interval: interval,
		last:     make(map[string]bool),
	}
}

// Task returns the schedulable form of the poller
func (p *Presence) Task() Task {
	return Task{Name: "presence", Interval: p.interval, Tick: p.Tick}
}

// unit is how many seconds one observation counts for
func (p *Presence) unit() int64 {
	u := int64(p.interval / time.Second)
	if u < 1 {
		return 1
	}
	return u
}

// Tick runs one presence poll
func (p *Presence) Tick(ctx context.Context) error {
	online, err := p.server.Online(ctx)
	if err != nil {
		return err
	}

	onlineSet := make(map[string]bool, len(online))
	for _, name := range online {
		onlineSet[name] = true
	}

	linked := make(map[string]string)
	unit := p.unit()
	err = p.registry.UpdateUsers(ctx, func(users []domain.LinkedUser) ([]domain.LinkedUser, bool, error) {
		changed := false
		for i := range users {
			linked[users[i].GameUsername] = users[i].ChatID
			if onlineSet[users[i].GameUsername] {
				users[i].TotalPlaySeconds += unit
				changed = true
			}
		}
		return users, changed, nil
	})
	if err != nil {
		return err
	}

	p.emitTransitions(online, onlineSet, linked)
	return nil
}

// emitTransitions publishes the presence snapshot plus join/leave events
// relative to the previous tick
func (p *Presence) emitTransitions(online []string, onlineSet map[string]bool, linked map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sink == nil {
		p.last = onlineSet
		p.initialized = true
		return
	}

	if p.initialized {
		for _, name := range online {
			if !p.last[name] {
				p.sink.Publish(domain.NewEvent(domain.EventPlayerJoin, domain.PlayerEvent{
					GameUsername: name,
					ChatID:       linked[name],
				}))
			}
		}
		for name := range p.last {
			if !onlineSet[name] {
				p.sink.Publish(domain.NewEvent(domain.EventPlayerLeave, domain.PlayerEvent{
					GameUsername: name,
					ChatID:       linked[name],
				}))
			}
		}
	}

	p.sink.Publish(domain.NewEvent(domain.EventPresence, domain.PresenceEvent{Online: online}))
	p.last = onlineSet
	p.initialized = true
}
