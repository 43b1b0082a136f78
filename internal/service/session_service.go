package service

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/support-client/internal/api/client"
	"github.com/spec-kit/support-client/internal/domain"
	"github.com/spec-kit/support-client/internal/events"
	"github.com/spec-kit/support-client/internal/repository"
	"github.com/spec-kit/support-client/internal/store"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

// tokenSkew renews tokens slightly before they expire.
const tokenSkew = 30 * time.Second

// SessionManager owns the customer identity and the session lifecycle.
type SessionManager struct {
	api     client.APIClient
	opener  client.SessionOpener
	repo    repository.SessionRepository
	store   *store.Store
	unread  *UnreadTracker
	outbox  *Outbox
	tracker *events.Tracker
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	record domain.SessionRecord
	epoch  uint64
	open   singleflight.Group
}

// SessionDependencies bundles collaborators of the session manager.
type SessionDependencies struct {
	API     client.APIClient
	Opener  client.SessionOpener
	Repo    repository.SessionRepository
	Store   *store.Store
	Unread  *UnreadTracker
	Outbox  *Outbox
	Tracker *events.Tracker
	Logger  *zap.Logger
	Clock   func() time.Time
}

// NewSessionManager builds a manager in the logged out state.
func NewSessionManager(deps SessionDependencies) *SessionManager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Repo == nil {
		deps.Repo = repository.NewMemorySessionRepository()
	}
	return &SessionManager{
		api:     deps.API,
		opener:  deps.Opener,
		repo:    deps.Repo,
		store:   deps.Store,
		unread:  deps.Unread,
		outbox:  deps.Outbox,
		tracker: deps.Tracker,
		logger:  deps.Logger,
		now:     deps.Clock,
		record:  domain.SessionRecord{State: domain.SessionLoggedOut},
	}
}

// Restore loads a persisted session, if any.
func (m *SessionManager) Restore(ctx context.Context) error {
	rec, err := m.repo.Load(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = *rec
	if m.record.State == "" {
		m.record.State = domain.SessionLoggedOut
	}
	return nil
}

// State returns the current session state.
func (m *SessionManager) State() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.State
}

// Record returns a copy of the session record.
func (m *SessionManager) Record() domain.SessionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.record
	if rec.Device != nil {
		d := *rec.Device
		rec.Device = &d
	}
	return rec
}

// Identity reports the customer IDs stamped on analytics events.
func (m *SessionManager) Identity() (customerID, originalCustomerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	customerID = m.record.Customer.ID
	if m.record.Customer.OriginalID != nil {
		originalCustomerID = *m.record.Customer.OriginalID
	}
	return customerID, originalCustomerID
}

// Login enters the anonymous state. The backend session is opened lazily on
// the first request that needs it. Logging in twice is a no-op.
func (m *SessionManager) Login(ctx context.Context) {
	m.mu.Lock()
	if m.record.State != domain.SessionLoggedOut {
		m.mu.Unlock()
		return
	}
	m.record = domain.SessionRecord{
		State:     domain.SessionAnonymous,
		Customer:  domain.Customer{Anonymous: true},
		UpdatedAt: m.now(),
	}
	rec := m.record
	m.mu.Unlock()

	m.persist(ctx, rec)
	m.tracker.Track(ctx, events.EventLogin, nil)
}

// UpdateCustomer sends customer properties and merges them locally. Setting
// a non-empty email or original ID identifies the customer.
func (m *SessionManager) UpdateCustomer(ctx context.Context, email, originalID *string) error {
	if m.State() == domain.SessionLoggedOut {
		return apperrors.NewUnauthorized("not logged in")
	}
	email = trimmed(email)
	originalID = trimmed(originalID)
	if email == nil && originalID == nil {
		return nil
	}
	if err := m.api.UpdateCustomer(ctx, client.CustomerUpdate{Email: email, OriginalID: originalID}); err != nil {
		return err
	}

	m.mu.Lock()
	if m.record.State == domain.SessionLoggedOut {
		m.mu.Unlock()
		return apperrors.NewUnauthorized("logged out during update")
	}
	if email != nil {
		m.record.Customer.Email = email
	}
	if originalID != nil {
		m.record.Customer.OriginalID = originalID
	}
	m.record.State = domain.SessionIdentified
	m.record.Customer.Anonymous = false
	m.record.UpdatedAt = m.now()
	rec := m.record
	m.mu.Unlock()

	m.persist(ctx, rec)
	m.tracker.Track(ctx, events.EventCustomerUpdated, map[string]any{
		"email_set":       email != nil,
		"original_id_set": originalID != nil,
	})
	return nil
}

// RegisterDevice binds a push token to the session. The raw token bytes are
// hex encoded.
func (m *SessionManager) RegisterDevice(ctx context.Context, token []byte, originalID *string) error {
	if m.State() == domain.SessionLoggedOut {
		return apperrors.NewUnauthorized("not logged in")
	}
	if len(token) == 0 {
		return apperrors.NewValidationError("device token required", map[string]any{"device_token": "required"})
	}
	encoded := hex.EncodeToString(token)
	originalID = trimmed(originalID)
	if err := m.api.UpdateDevice(ctx, client.DeviceUpdate{Token: encoded, OriginalID: originalID}); err != nil {
		return err
	}

	m.mu.Lock()
	if m.record.State == domain.SessionLoggedOut {
		m.mu.Unlock()
		return apperrors.NewUnauthorized("logged out during update")
	}
	m.record.Device = &domain.Device{Token: encoded, OriginalID: originalID}
	m.record.UpdatedAt = m.now()
	rec := m.record
	m.mu.Unlock()

	m.persist(ctx, rec)
	m.tracker.Track(ctx, events.EventDeviceRegistered, nil)
	return nil
}

// Logout clears the customer, the device association and every cached
// ticket. It cannot fail; cleanup errors are logged.
func (m *SessionManager) Logout(ctx context.Context) {
	m.tracker.Track(ctx, events.EventLogout, nil)

	m.mu.Lock()
	m.epoch++
	m.record = domain.SessionRecord{State: domain.SessionLoggedOut, UpdatedAt: m.now()}
	m.mu.Unlock()
	m.open.Forget("session")

	if err := m.repo.Clear(ctx); err != nil {
		m.logger.Warn("clear session record", zap.Error(err))
	}
	if m.store != nil {
		m.store.Purge()
	}
	if m.unread != nil {
		m.unread.Reset()
	}
	if m.outbox != nil {
		if err := m.outbox.Clear(ctx); err != nil {
			m.logger.Warn("clear outbox", zap.Error(err))
		}
	}
}

// Token returns a bearer token, opening a backend session when none is
// usable. Concurrent callers share one session request.
func (m *SessionManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	rec := m.record
	epoch := m.epoch
	m.mu.Unlock()

	switch {
	case rec.State == domain.SessionLoggedOut:
		return "", apperrors.NewUnauthorized("not logged in")
	case rec.Token != "" && !m.expired(rec.TokenExpiresAt):
		return rec.Token, nil
	case rec.Token != "" && rec.State == domain.SessionIdentified:
		return "", apperrors.NewUnauthorized("session expired")
	}
	if m.opener == nil {
		return "", apperrors.NewUnauthorized("no session")
	}

	ch := m.open.DoChan("session", func() (any, error) {
		return m.openSession(context.WithoutCancel(ctx), epoch)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", apperrors.NewNetworkError(ctx.Err())
	}
}

func (m *SessionManager) openSession(ctx context.Context, epoch uint64) (string, error) {
	tok, err := m.opener.OpenSession(ctx)
	if err != nil {
		return "", err
	}
	expires := tok.ExpiresAt
	if expires.IsZero() {
		expires = tokenExpiry(tok.Token)
	}

	m.mu.Lock()
	if m.epoch != epoch || m.record.State == domain.SessionLoggedOut {
		m.mu.Unlock()
		return "", apperrors.NewUnauthorized("logged out while opening session")
	}
	m.record.Token = tok.Token
	m.record.TokenExpiresAt = expires
	if tok.CustomerID != "" {
		m.record.Customer.ID = tok.CustomerID
	}
	m.record.UpdatedAt = m.now()
	rec := m.record
	m.mu.Unlock()

	m.persist(ctx, rec)
	m.tracker.Track(ctx, events.EventSessionOpened, nil)
	m.logger.Debug("session opened", zap.String("customer_id", rec.Customer.ID))
	return tok.Token, nil
}

func (m *SessionManager) expired(at time.Time) bool {
	if at.IsZero() {
		return false
	}
	return !m.now().Add(tokenSkew).Before(at)
}

func (m *SessionManager) persist(ctx context.Context, rec domain.SessionRecord) {
	if err := m.repo.Save(ctx, rec); err != nil {
		m.logger.Warn("persist session", zap.Error(err))
	}
}

// tokenExpiry reads exp from a JWT without verifying it; the backend does that.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
