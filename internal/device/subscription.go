package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// ----------------------------
// Subscription
// ----------------------------

type subscription struct {
	name   string
	char   Characteristic
	active atomic.Bool
}

// ----------------------------
// Subscription Manager
// ----------------------------

// SubscriptionManager tracks the characteristic notifications of one session.
// A stopped subscription's handler is inert even if the platform keeps
// delivering values to it.
type SubscriptionManager struct {
	mu     sync.Mutex
	subs   []*subscription
	logger *logrus.Logger
}

// NewSubscriptionManager creates a new subscription manager
func NewSubscriptionManager(logger *logrus.Logger) *SubscriptionManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &SubscriptionManager{
		subs:   make([]*subscription, 0, 2),
		logger: logger,
	}
}

// Start enables notifications on char and routes values to handler.
func (m *SubscriptionManager) Start(char Characteristic, name string, handler func([]byte)) error {
	if handler == nil {
		return fmt.Errorf("no handler specified for %s notifications", name)
	}
	if !char.CanNotify() {
		return fmt.Errorf("%s (%s): notifications %w", name, ShortenUUID(char.UUID()), ErrUnsupported)
	}

	sub := &subscription{name: name, char: char}
	sub.active.Store(true)

	err := char.StartNotifications(func(data []byte) {
		if !sub.active.Load() {
			return
		}
		m.dispatch(sub, handler, data)
	})
	if err != nil {
		sub.active.Store(false)
		return fmt.Errorf("failed to start %s notifications: %w", name, err)
	}

	m.mu.Lock()
	m.subs = append(m.subs, sub)
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"characteristic": name,
		"char_uuid":      char.UUID(),
	}).Info("Subscribed to characteristic notifications")
	return nil
}

// dispatch invokes handler, recovering from panics so a bad consumer cannot
// take down the platform's delivery goroutine.
func (m *SubscriptionManager) dispatch(sub *subscription, handler func([]byte), data []byte) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithFields(logrus.Fields{
				"characteristic": sub.name,
				"panic":          r,
			}).Error("Notification handler panicked")
		}
	}()
	handler(data)
}

// Active returns the names of live subscriptions in start order.
func (m *SubscriptionManager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.subs))
	for _, sub := range m.subs {
		if sub.active.Load() {
			names = append(names, sub.name)
		}
	}
	return names
}

// StopAll deactivates every subscription and clears the list. When remote is
// set the peripheral is also asked to stop notifying; that is skipped when
// the link is already gone.
func (m *SubscriptionManager) StopAll(remote bool) error {
	m.mu.Lock()
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		sub.active.Store(false)
		if !remote {
			continue
		}
		if err := sub.char.StopNotifications(); err != nil {
			m.logger.WithFields(logrus.Fields{
				"characteristic": sub.name,
				"error":          err,
			}).Warn("Failed to stop characteristic notifications")
			errs = append(errs, fmt.Errorf("%s: %w", sub.name, err))
			continue
		}
		m.logger.WithField("characteristic", sub.name).Debug("Stopped characteristic notifications")
	}
	return errors.Join(errs...)
}
