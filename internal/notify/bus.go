package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Novip1906/tasks-live/internal/models"
	"github.com/Novip1906/tasks-live/internal/storage"
)

const channelPrefix = "notifications:"

func Channel(owner string) string {
	return channelPrefix + owner
}

// Notification is one delivery from a subscription. Err is set when the
// payload on the channel could not be decoded into a ChangeEvent.
type Notification struct {
	Event models.ChangeEvent
	Err   error
}

// Bus is a per-user publish/subscribe channel on top of the shared store.
// Delivery is at-most-once with no backlog: subscribers only see events
// published after Subscribe returned.
type Bus struct {
	store storage.Store
	log   *slog.Logger
}

func NewBus(store storage.Store, log *slog.Logger) *Bus {
	return &Bus{store: store, log: log.With(slog.String("component", "notify"))}
}

func (b *Bus) Publish(ctx context.Context, owner string, ev models.ChangeEvent) error {
	payload, err := models.MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if err := b.store.Publish(ctx, Channel(owner), string(payload)); err != nil {
		return err
	}

	b.log.Debug("event published", slog.String("owner", owner), slog.String("type", models.EventType(ev)))
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, owner string) (*Subscription, error) {
	sub, err := b.store.Subscribe(ctx, Channel(owner))
	if err != nil {
		return nil, err
	}

	s := &Subscription{
		sub:    sub,
		events: make(chan Notification),
		done:   make(chan struct{}),
	}
	go s.decode()

	return s, nil
}

type Subscription struct {
	sub    storage.Subscription
	events chan Notification
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *Subscription) decode() {
	defer close(s.events)
	for payload := range s.sub.Messages() {
		ev, err := models.UnmarshalEvent([]byte(payload))
		select {
		case s.events <- Notification{Event: ev, Err: err}:
		case <-s.done:
			return
		}
	}
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan Notification {
	return s.events
}

func (s *Subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.sub.Close()
	})
	return s.err
}
