package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/platform/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SavedPropertiesKey is the metadata key holding the saved list.
const SavedPropertiesKey = "savedProperties"

const (
	defaultLoadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

// IdentityAdapter is what the store needs from the identity provider.
type IdentityAdapter interface {
	CurrentUser() *entity.UserRef
	IsLoaded() bool
	IsSignedIn() bool
	ReadMetadata(ctx context.Context, key string) (json.RawMessage, error)
	WriteMetadata(ctx context.Context, key string, value json.RawMessage) error
	Subscribe(fn func(ctx context.Context, ev entity.IdentityEvent)) (unsubscribe func())
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

// SavedStore owns the saved-properties list of the current session.
//
// Mutations are applied to the published view at once and then written to the
// identity provider one at a time, in the order they were accepted. Each
// queued mutation is re-applied to the list the previous write confirmed, so
// no write is built from a stale list. A failed write is dropped and the list
// is reloaded from the provider.
type SavedStore struct {
	identity     IdentityAdapter
	log          logger.Logger
	metrics      Metrics
	events       EventPublisher
	tracer       trace.Tracer
	now          func() time.Time
	loadTimeout  time.Duration
	writeTimeout time.Duration

	mu         sync.Mutex
	state      State
	generation uint64
	userID     string
	confirmed  []entity.Property
	queue      []*mutation
	inflight   *mutation
	draining   bool
	loading    bool
	lastError  error
	subs       []subscriber
	nextSubID  int
	unbind     func()

	// lastWrite is closed when the most recently issued remote write returns.
	// It outlives the session that issued the write.
	lastWrite chan struct{}

	current atomic.Pointer[Snapshot]
}

// Option configures a SavedStore.
type Option func(*SavedStore)

// WithMetrics reports store activity to m. A nil m keeps the no-op recorder.
func WithMetrics(m Metrics) Option {
	return func(s *SavedStore) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithEventPublisher announces every confirmed write through p. A nil p keeps the no-op publisher.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *SavedStore) {
		if p != nil {
			s.events = p
		}
	}
}

// WithClock replaces the clock used for savedAt stamps and sync events.
func WithClock(now func() time.Time) Option {
	return func(s *SavedStore) { s.now = now }
}

// WithTimeouts bounds remote loads and writes. Non-positive values keep the defaults.
func WithTimeouts(load, write time.Duration) Option {
	return func(s *SavedStore) {
		if load > 0 {
			s.loadTimeout = load
		}
		if write > 0 {
			s.writeTimeout = write
		}
	}
}

// NewSavedStore returns an uninitialized store. Call Bind to attach it to the
// identity adapter.
func NewSavedStore(identity IdentityAdapter, log logger.Logger, opts ...Option) *SavedStore {
	s := &SavedStore{
		identity:     identity,
		log:          log.With("component", "saved_store"),
		metrics:      noopMetrics{},
		events:       noopPublisher{},
		tracer:       otel.Tracer("saved-service/store"),
		now:          time.Now,
		loadTimeout:  defaultLoadTimeout,
		writeTimeout: defaultWriteTimeout,
		state:        StateUninitialized,
		confirmed:    []entity.Property{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(newSnapshot(StateUninitialized, nil, false, nil))
	return s
}

// Bind subscribes the store to identity changes. If a user is already signed
// in, the initial load runs before Bind returns.
func (s *SavedStore) Bind(ctx context.Context) {
	unbind := s.identity.Subscribe(s.onIdentityEvent)
	s.mu.Lock()
	s.unbind = unbind
	s.mu.Unlock()

	if s.identity.IsSignedIn() {
		if err := s.Initialize(ctx); err != nil {
			s.log.Warnw("initial load failed", "error", err)
		}
	}
}

// Close detaches the store from the identity adapter.
func (s *SavedStore) Close() {
	s.mu.Lock()
	unbind := s.unbind
	s.unbind = nil
	s.mu.Unlock()
	if unbind != nil {
		unbind()
	}
}

func (s *SavedStore) onIdentityEvent(ctx context.Context, ev entity.IdentityEvent) {
	switch {
	case ev.IsSignIn():
		if err := s.Initialize(ctx); err != nil {
			s.log.Warnw("load after sign-in failed", "user_id", ev.User.ID, "error", err)
		}
	case ev.Type == entity.IdentitySignedOut:
		s.handleSignOut(ev.Reason)
	}
}

// Initialize loads the saved list of the signed-in user. A failed read leaves
// the store usable with an empty list and lastError set.
func (s *SavedStore) Initialize(ctx context.Context) error {
	user := s.identity.CurrentUser()
	if user == nil {
		return ErrNotAuthenticated
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.detachLocked(errSessionChanged)
	s.userID = user.ID
	s.confirmed = []entity.Property{}
	s.lastError = nil
	s.loading = true
	s.state = StateLoading
	s.publishLocked()
	s.mu.Unlock()

	s.log.Debugw("loading saved properties", "user_id", user.ID)
	loadCtx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	if werr := s.awaitLastWrite(loadCtx); werr != nil {
		s.log.Warnw("write of the previous session still running, loading anyway", "user_id", user.ID, "error", werr)
	}
	items, err := s.load(loadCtx, user.ID)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return errSessionChanged
	}
	s.loading = false
	if err != nil {
		s.lastError = err
		s.log.Errorw("failed to load saved properties, continuing with empty list", "user_id", user.ID, "error", err)
	} else {
		s.confirmed = items
		s.log.Infow("saved properties loaded", "user_id", user.ID, "count", len(items))
	}
	s.state = StateReady
	s.startDrainLocked()
	s.publishLocked()
	return err
}

// Toggle saves the property if it is not saved and unsaves it otherwise.
// The returned error is the outcome of the remote write for this toggle;
// on failure the list has already been restored.
func (s *SavedStore) Toggle(ctx context.Context, p entity.Property) (Snapshot, error) {
	if err := p.Validate(); err != nil {
		return s.Snapshot(), err
	}
	return s.submit(ctx, &mutation{kind: mutationToggle, property: p.WithSavedAt(s.now())})
}

// Save adds the property unless it is already saved.
func (s *SavedStore) Save(ctx context.Context, p entity.Property) (Snapshot, error) {
	if err := p.Validate(); err != nil {
		return s.Snapshot(), err
	}
	return s.submit(ctx, &mutation{kind: mutationSave, property: p.WithSavedAt(s.now())})
}

// Unsave removes the property with id if it is saved.
func (s *SavedStore) Unsave(ctx context.Context, id entity.PropertyID) (Snapshot, error) {
	p := entity.Property{ID: id}
	if err := p.Validate(); err != nil {
		return s.Snapshot(), err
	}
	return s.submit(ctx, &mutation{kind: mutationUnsave, property: p})
}

// Clear removes every saved property.
func (s *SavedStore) Clear(ctx context.Context) (Snapshot, error) {
	return s.submit(ctx, &mutation{kind: mutationClear})
}

// IsSaved reports whether id is in the published list, pending mutations included.
func (s *SavedStore) IsSaved(id entity.PropertyID) bool {
	return s.current.Load().IsSaved(id)
}

// Items returns a copy of the published list.
func (s *SavedStore) Items() []entity.Property {
	return slices.Clone(s.current.Load().Items)
}

// Snapshot returns the last published snapshot without locking.
func (s *SavedStore) Snapshot() Snapshot {
	return *s.current.Load()
}

// Subscribe registers fn for every publish and calls it once with the current
// snapshot. fn runs with the store locked: it may read the store but must not
// call Toggle, Save, Unsave or Clear.
func (s *SavedStore) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	fn(*s.current.Load())
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *SavedStore) submit(ctx context.Context, m *mutation) (Snapshot, error) {
	m.done = make(chan error, 1)

	s.mu.Lock()
	if !s.acceptingLocked() {
		snap := *s.current.Load()
		s.mu.Unlock()
		s.log.Warnw("mutation rejected, user is not signed in", "action", m.kind.String())
		return snap, ErrNotAuthenticated
	}

	m.action = m.kind.String()
	if m.kind == mutationToggle {
		m.action = actionFor(s.current.Load(), m.property.ID)
	}
	s.queue = append(s.queue, m)
	s.metrics.MutationAccepted(m.action)
	s.log.Debugw("mutation accepted", "action", m.action, "property_id", m.property.ID, "queued", len(s.queue))
	s.startDrainLocked()
	s.publishLocked()
	s.mu.Unlock()

	select {
	case err := <-m.done:
		return s.Snapshot(), err
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

func (s *SavedStore) acceptingLocked() bool {
	switch s.state {
	case StateLoading, StateReady, StateSyncing:
		return s.identity.IsSignedIn()
	default:
		return false
	}
}

func (s *SavedStore) startDrainLocked() {
	if s.draining || s.loading || len(s.queue) == 0 {
		return
	}
	s.draining = true
	s.state = StateSyncing
	go s.drain(s.generation, s.userID)
}

// drain issues the queued writes one at a time. It stops as soon as the
// session generation moves on; whatever it was doing then no longer touches
// local state.
func (s *SavedStore) drain(gen uint64, userID string) {
	_ = s.awaitLastWrite(context.Background())
	for {
		s.mu.Lock()
		if gen != s.generation {
			s.mu.Unlock()
			return
		}
		if s.idleLocked() {
			s.publishLocked()
			s.mu.Unlock()
			return
		}
		m := s.queue[0]
		next, changed := m.apply(s.confirmed)
		if !changed {
			s.queue = s.queue[1:]
			idle := s.idleLocked()
			s.publishLocked()
			s.mu.Unlock()
			m.complete(nil)
			if idle {
				return
			}
			continue
		}
		s.inflight = m
		written := make(chan struct{})
		s.lastWrite = written
		s.mu.Unlock()

		err := s.write(userID, next)
		close(written)

		s.mu.Lock()
		if gen != s.generation {
			s.mu.Unlock()
			m.complete(err)
			return
		}
		s.queue = s.queue[1:]
		if err == nil {
			s.inflight = nil
			s.confirmed = next
			s.lastError = nil
			idle := s.idleLocked()
			s.publishLocked()
			s.mu.Unlock()

			s.publishSynced(userID, next)
			m.complete(nil)
			if idle {
				return
			}
			continue
		}

		s.lastError = err
		s.mu.Unlock()
		s.log.Errorw("remote write failed, restoring saved list", "user_id", userID, "action", m.action, "error", err)

		restored, rerr := s.reload(userID)

		s.mu.Lock()
		if gen != s.generation {
			s.mu.Unlock()
			m.complete(err)
			return
		}
		s.inflight = nil
		if rerr == nil {
			s.confirmed = restored
		} else {
			s.log.Warnw("reload after failed write failed, keeping last confirmed list", "user_id", userID, "error", rerr)
		}
		s.metrics.Reconciled(rerr == nil)
		idle := s.idleLocked()
		s.publishLocked()
		s.mu.Unlock()
		m.complete(err)
		if idle {
			return
		}
	}
}

// awaitLastWrite blocks until the last issued write has returned, so that a
// new session never writes or reads concurrently with an older session's write.
func (s *SavedStore) awaitLastWrite(ctx context.Context) error {
	s.mu.Lock()
	written := s.lastWrite
	s.mu.Unlock()
	if written == nil {
		return nil
	}
	select {
	case <-written:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// idleLocked ends the drain when nothing is queued. Once it returns true the
// calling drainer must exit; the next submit starts a new one.
func (s *SavedStore) idleLocked() bool {
	if len(s.queue) > 0 {
		return false
	}
	s.draining = false
	s.state = StateReady
	return true
}

func (s *SavedStore) handleSignOut(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.detachLocked(ErrNotAuthenticated)
	s.userID = ""
	s.confirmed = []entity.Property{}
	s.lastError = nil
	s.state = StateEmpty
	s.publishLocked()
	s.log.Infow("saved properties cleared on sign-out", "reason", reason)
}

// detachLocked forgets all pending work of the previous session. The write
// already in flight keeps its waiter; it gets the write's own result.
func (s *SavedStore) detachLocked(cause error) {
	for _, m := range s.queue {
		if m != s.inflight {
			m.complete(cause)
		}
	}
	s.queue = nil
	s.inflight = nil
	s.draining = false
	s.loading = false
}

func (s *SavedStore) load(ctx context.Context, userID string) ([]entity.Property, error) {
	ctx, span := s.tracer.Start(ctx, "SavedStore.load", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	ctx = entity.ContextWithExpectedUser(ctx, userID)
	raw, err := s.identity.ReadMetadata(ctx, SavedPropertiesKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return nil, asRemoteError(err)
	}
	items, skipped, err := entity.DecodeSavedList(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	if skipped > 0 {
		s.log.Warnw("dropped malformed saved entries", "user_id", userID, "skipped", skipped)
	}
	span.SetAttributes(attribute.Int("saved.count", len(items)))
	return items, nil
}

func (s *SavedStore) reload(userID string) ([]entity.Property, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.loadTimeout)
	defer cancel()
	return s.load(ctx, userID)
}

func (s *SavedStore) write(userID string, items []entity.Property) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "SavedStore.write", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int("saved.count", len(items)),
	))
	defer span.End()

	payload, err := entity.EncodeSavedList(items)
	if err != nil {
		return fmt.Errorf("%w: cannot encode saved list: %v", ErrRemoteRejected, err)
	}

	started := time.Now()
	err = s.identity.WriteMetadata(entity.ContextWithExpectedUser(ctx, userID), SavedPropertiesKey, payload)
	err = asRemoteError(err)
	s.metrics.RemoteWrite(time.Since(started), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
	}
	return err
}

func (s *SavedStore) publishSynced(userID string, items []entity.Property) {
	ids := make([]entity.PropertyID, len(items))
	for i, p := range items {
		ids[i] = p.ID
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	err := s.events.PublishSynced(ctx, SyncEvent{UserID: userID, Count: len(items), IDs: ids, SyncedAt: s.now().UTC()})
	if err != nil {
		s.log.Warnw("failed to publish sync event", "user_id", userID, "error", err)
	}
}

// publishLocked builds the view (confirmed list with every pending mutation
// applied in order) and hands it to subscribers.
func (s *SavedStore) publishLocked() {
	view := s.confirmed
	for _, m := range s.queue {
		view, _ = m.apply(view)
	}
	snap := newSnapshot(s.state, view, s.draining || len(s.queue) > 0, s.lastError)
	s.current.Store(snap)
	s.metrics.SavedCount(len(view))
	for _, sub := range s.subs {
		sub.fn(*snap)
	}
}

// asRemoteError keeps the taxonomy closed: anything that is not already one of
// the known kinds is a transient remote failure.
func asRemoteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRemoteUnavailable) || errors.Is(err, ErrRemoteRejected) || errors.Is(err, ErrNotAuthenticated) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
}

func actionFor(snap *Snapshot, id entity.PropertyID) string {
	if snap.IsSaved(id) {
		return ActionUnsave
	}
	return ActionSave
}
