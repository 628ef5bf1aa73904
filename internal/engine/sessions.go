package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orrn/labelflow/internal/descriptor"
	"github.com/orrn/labelflow/internal/faults"
)

// Session is the stateful counterpart of the web path: one long-lived
// descriptor shared between the caller and a background lookup goroutine.
// The descriptor's own lock guards its maps; the session adds the
// completion channel the print path waits on instead of polling.
type Session struct {
	ID string

	engine  *Engine
	profile string
	d       *descriptor.LabelDescriptor

	mu         sync.Mutex
	resolution chan struct{} // nil when no lookup has fired yet
	lastActive time.Time
}

// SessionManager owns the live sessions and expires idle ones on a
// sweep ticker.
type SessionManager struct {
	engine *Engine

	mu       sync.Mutex
	sessions map[string]*Session

	stopCh chan struct{}
	wg     sync.WaitGroup
	log    *logrus.Entry
}

func newSessionManager(e *Engine) *SessionManager {
	return &SessionManager{
		engine:   e,
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
		log:      e.log.WithField("component", "sessions"),
	}
}

func (m *SessionManager) start() {
	m.wg.Add(1)
	go m.sweepLoop()
}

func (m *SessionManager) stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *SessionManager) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.engine.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *SessionManager) sweep() {
	cutoff := time.Now().Add(-m.engine.opts.SessionTTL)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := s.lastActive.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(m.sessions, id)
			m.log.WithField("session", id).Debug("idle session expired")
		}
	}
}

func (m *SessionManager) Create(profileName string) (*Session, error) {
	p, ok := m.engine.profiles.Get(profileName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown profile %q", faults.ErrArgument, profileName)
	}

	s := &Session{
		ID:         uuid.NewString(),
		engine:     m.engine,
		profile:    p.Name,
		d:          descriptor.New(p.Name, p.SearchFields, p.DataFields, p.EditFields, p.DisplayField),
		lastActive: time.Now(),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return s, nil
}

func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown session %q", faults.ErrArgument, id)
	}
	return s, nil
}

func (m *SessionManager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) Snapshot() descriptor.State {
	return s.d.Snapshot()
}

// EditField routes one field edit. Editing the last search field fires
// the lookup on a background goroutine; its completion channel replaces
// the status polling the desktop UI used to do. A positive label-count
// edit triggers the finalize-and-print sequence.
func (s *Session) EditField(ctx context.Context, name, value string) (descriptor.State, error) {
	s.touch()

	p, ok := s.engine.profiles.Get(s.profile)
	if !ok {
		return s.d.Snapshot(), fmt.Errorf("%w: profile %q no longer configured", faults.ErrConfiguration, s.profile)
	}

	// The edit and the completion-channel assignment happen under one
	// lock: a concurrent Print that observes Pending must also observe
	// the channel, or it would mistake an in-flight lookup for a
	// contract violation.
	s.mu.Lock()
	outcome := s.d.EditField(name, value)
	var done chan struct{}
	if outcome.FiresQuery {
		done = make(chan struct{})
		s.resolution = done
	}
	s.mu.Unlock()

	if !outcome.Known {
		// Unknown field is a message event in this context, not a failure.
		s.engine.log.WithFields(logrus.Fields{
			"session": s.ID,
			"field":   name,
		}).Warn("edit for unconfigured field ignored")
		return s.d.Snapshot(), nil
	}

	if outcome.FiresQuery {
		go func() {
			defer close(done)
			if err := s.engine.resolve(context.Background(), s.d, p); err != nil {
				s.engine.log.WithError(err).WithField("session", s.ID).Warn("background lookup failed")
			}
		}()
	}

	if outcome.FiresPrint {
		if _, err := s.Print(ctx); err != nil {
			return s.d.Snapshot(), err
		}
	}

	return s.d.Snapshot(), nil
}

// Print finalizes the session's descriptor. While a lookup is pending it
// waits on the completion channel up to the configured budget — never
// printing while Pending — and surfaces a timeout once the budget is
// exhausted.
func (s *Session) Print(ctx context.Context) (descriptor.State, error) {
	s.touch()

	if err := s.waitResolved(ctx); err != nil {
		return s.d.Snapshot(), err
	}

	p, ok := s.engine.profiles.Get(s.profile)
	if !ok {
		return s.d.Snapshot(), fmt.Errorf("%w: profile %q no longer configured", faults.ErrConfiguration, s.profile)
	}
	printer, err := s.engine.defaultPrinter(p)
	if err != nil {
		return s.d.Snapshot(), err
	}

	if err := s.engine.printResolved(ctx, s.d, p, printer); err != nil {
		return s.d.Snapshot(), err
	}
	return s.d.Snapshot(), nil
}

func (s *Session) waitResolved(ctx context.Context) error {
	// Status and channel are read under the same lock that EditField
	// assigns them under, so Pending always comes with its channel.
	s.mu.Lock()
	pending := s.d.Status() == descriptor.StatusPending
	done := s.resolution
	s.mu.Unlock()

	if !pending {
		return nil
	}
	if done == nil {
		// Pending without a fired lookup cannot happen through this API.
		return fmt.Errorf("%w: descriptor pending with no lookup in flight", faults.ErrInternal)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", faults.ErrDataQuery, ctx.Err())
	case <-time.After(s.engine.opts.WaitTimeout):
		return ErrResolveTimeout
	}
}

// Clear resets the session's descriptor to its initial state.
func (s *Session) Clear() descriptor.State {
	s.touch()
	s.d.Clear()
	return s.d.Snapshot()
}
