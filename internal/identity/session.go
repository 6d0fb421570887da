package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/repository"
)

// Listener receives session changes. It runs on the goroutine that caused the
// change, after the session lock is released.
type Listener = func(ctx context.Context, ev entity.IdentityEvent)

type listenerEntry struct {
	id int
	fn Listener
}

// Session is the identity adapter for one browser session: who is signed in,
// and that user's metadata blob.
type Session struct {
	verifier TokenVerifier
	repo     repository.MetadataRepository
	log      logger.Logger
	now      func() time.Time

	// notifyMu orders state changes together with their notifications.
	notifyMu sync.Mutex

	mu        sync.RWMutex
	user      *entity.UserRef
	loaded    bool
	expiry    *time.Timer
	listeners []listenerEntry
	nextID    int
}

func NewSession(verifier TokenVerifier, repo repository.MetadataRepository, log logger.Logger) *Session {
	return &Session{
		verifier: verifier,
		repo:     repo,
		log:      log.With("component", "identity"),
		now:      time.Now,
	}
}

func (s *Session) CurrentUser() *entity.UserRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) IsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *Session) IsSignedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// MarkLoaded records that the provider finished restoring and there is no session to restore.
func (s *Session) MarkLoaded() {
	s.mu.Lock()
	s.loaded = true
	s.mu.Unlock()
}

func (s *Session) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// SignIn verifies token and makes its user current. Signing in as the user
// already signed in only refreshes the expiry.
func (s *Session) SignIn(ctx context.Context, token string) (entity.UserRef, error) {
	user, err := s.verifier.Verify(token)
	if err != nil {
		s.log.Warnw("sign-in rejected", "error", err)
		return entity.UserRef{}, err
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	prev := s.user
	s.user = &user
	s.loaded = true
	s.armExpiryLocked(user)
	listeners := s.snapshotListenersLocked()
	s.mu.Unlock()

	var ev entity.IdentityEvent
	switch {
	case prev == nil:
		ev = entity.IdentityEvent{Type: entity.IdentitySignedIn, User: user}
	case prev.ID != user.ID:
		ev = entity.IdentityEvent{Type: entity.IdentityUserSwitched, User: user}
	default:
		s.log.Debugw("session refreshed", "user_id", user.ID, "expires_at", user.ExpiresAt)
		return user, nil
	}

	s.log.Infow("user signed in", "user_id", user.ID, "event", ev.Type)
	notify(ctx, listeners, ev)
	return user, nil
}

// SignOut ends the session. It is a no-op when nobody is signed in.
func (s *Session) SignOut(ctx context.Context, reason string) {
	s.signOutIf(ctx, reason, func(*entity.UserRef) bool { return true })
}

// Revoke signs out only if userID is the current user.
func (s *Session) Revoke(ctx context.Context, userID, reason string) bool {
	return s.signOutIf(ctx, reason, func(u *entity.UserRef) bool { return u.ID == userID })
}

func (s *Session) signOutIf(ctx context.Context, reason string, match func(*entity.UserRef) bool) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.loaded = true
	if s.user == nil || !match(s.user) {
		s.mu.Unlock()
		return false
	}
	prev := *s.user
	s.user = nil
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	listeners := s.snapshotListenersLocked()
	s.mu.Unlock()

	s.log.Infow("user signed out", "user_id", prev.ID, "reason", reason)
	notify(ctx, listeners, entity.IdentityEvent{Type: entity.IdentitySignedOut, User: prev, Reason: reason})
	return true
}

func (s *Session) ReadMetadata(ctx context.Context, key string) (json.RawMessage, error) {
	user, err := s.userFor(ctx)
	if err != nil {
		return nil, err
	}
	val, err := s.repo.Get(ctx, user.ID, key)
	if err != nil {
		return nil, fmt.Errorf("read metadata %q: %w", key, err)
	}
	return val, nil
}

func (s *Session) WriteMetadata(ctx context.Context, key string, value json.RawMessage) error {
	user, err := s.userFor(ctx)
	if err != nil {
		return err
	}
	if !user.ExpiresAt.IsZero() && !s.now().Before(user.ExpiresAt) {
		return fmt.Errorf("write metadata %q: %w: session token expired", key, repository.ErrRemoteRejected)
	}
	if err := s.repo.Set(ctx, user.ID, key, value); err != nil {
		return fmt.Errorf("write metadata %q: %w", key, err)
	}
	return nil
}

// userFor resolves the user a metadata call acts for. A caller that pinned a
// user on ctx never reaches a different one after a switch.
func (s *Session) userFor(ctx context.Context) (*entity.UserRef, error) {
	user := s.CurrentUser()
	if user == nil {
		return nil, entity.ErrNotAuthenticated
	}
	if expected, ok := entity.ExpectedUserFromContext(ctx); ok && expected != user.ID {
		return nil, fmt.Errorf("%w: session now belongs to another user", entity.ErrNotAuthenticated)
	}
	return user, nil
}

// Close stops the expiry timer.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
}

func (s *Session) armExpiryLocked(user entity.UserRef) {
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	if user.ExpiresAt.IsZero() {
		return
	}
	expiresAt := user.ExpiresAt
	s.expiry = time.AfterFunc(expiresAt.Sub(s.now()), func() {
		s.signOutIf(context.Background(), "session expired", func(u *entity.UserRef) bool {
			return u.ID == user.ID && u.ExpiresAt.Equal(expiresAt)
		})
	})
}

func (s *Session) snapshotListenersLocked() []Listener {
	out := make([]Listener, len(s.listeners))
	for i, l := range s.listeners {
		out[i] = l.fn
	}
	return out
}

func notify(ctx context.Context, listeners []Listener, ev entity.IdentityEvent) {
	for _, fn := range listeners {
		fn(ctx, ev)
	}
}
