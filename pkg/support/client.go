// Package support is the host-facing entry point of the support chat client.
//
// A Client owns one customer session and everything scoped to it: the
// ticket cache, the unread counter, the in-app notification stream and the
// offline outbox. Hosts observe state through subscriptions and issue
// commands through methods; nothing returned shares memory with the cache.
package support

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-client/internal/api/client"
	"github.com/spec-kit/support-client/internal/config"
	"github.com/spec-kit/support-client/internal/domain"
	"github.com/spec-kit/support-client/internal/events"
	"github.com/spec-kit/support-client/internal/observability"
	"github.com/spec-kit/support-client/internal/persistence"
	"github.com/spec-kit/support-client/internal/repository"
	"github.com/spec-kit/support-client/internal/service"
	"github.com/spec-kit/support-client/internal/store"
	"github.com/spec-kit/support-client/internal/worker"
	apperrors "github.com/spec-kit/support-client/pkg/util"
)

// ErrQueuedAhead means older messages for the ticket are still in the
// outbox; sending now would deliver out of order.
var ErrQueuedAhead = errors.New("support: earlier messages for this ticket are queued")

// receiptTimeout bounds a background read-receipt sync.
const receiptTimeout = 15 * time.Second

// Client is the support SDK instance. It is safe for concurrent use.
type Client struct {
	cfg    config.Config
	logger *zap.Logger
	device domain.DeviceInfo

	api        *client.HTTPClient
	metrics    *observability.Metrics
	store      *store.Store
	sessions   *service.SessionManager
	unread     *service.UnreadTracker
	router     *service.NotificationRouter
	outbox     *service.Outbox
	replay     *worker.OutboxWorker
	syncJob    *worker.SyncJob
	branding   repository.BrandingRepository
	dispatcher events.Dispatcher
	tracker    *events.Tracker

	mu       sync.Mutex
	appState service.AppState
	poller   *worker.Poller
	closers  []func() error
	closed   bool

	background sync.WaitGroup
}

// New builds a client from cfg and restores a persisted session, if any.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	logger := o.logger

	if o.device.Platform == "" {
		o.device.Platform = runtime.GOOS
	}
	c := &Client{cfg: cfg, logger: logger, device: o.device}
	c.dispatcher = events.NewAsyncDispatcher(observability.Component(logger, "events"), 0)
	c.tracker = events.NewTracker(c.dispatcher, cfg.App.SDKVersion)

	sessionRepo, brandingRepo, err := c.openSessionStore(cfg.Session)
	if err != nil {
		c.release()
		return nil, err
	}
	outboxRepo, err := c.openOutbox(ctx, cfg)
	if err != nil {
		c.release()
		return nil, err
	}

	c.metrics = observability.NewMetrics()
	httpOpts := []client.Option{
		client.WithLogger(observability.Component(logger, "api")),
		client.WithMetrics(c.metrics),
		client.WithSDKVersion(cfg.App.SDKVersion),
	}
	if o.httpClient != nil {
		httpOpts = append(httpOpts, client.WithHTTPClient(o.httpClient))
	}
	c.api = client.NewHTTPClient(cfg.API, httpOpts...)

	c.store = store.New(store.Dependencies{
		API:           c.api,
		Logger:        observability.Component(logger, "store"),
		TypingTimeout: cfg.Sync.TypingTimeout(),
		Clock:         o.clock,
	})
	c.unread = service.NewUnreadTracker(c.api, c.tracker, observability.Component(logger, "unread"))
	c.router = service.NewNotificationRouter(cfg.Push, c.tracker, observability.Component(logger, "notifications"))
	c.outbox = service.NewOutbox(outboxRepo, c.store, c.tracker, observability.Component(logger, "outbox"))
	c.replay = worker.NewOutboxWorker(worker.OutboxDependencies{
		Outbox:  c.outbox,
		Policy:  worker.PolicyFromConfig(cfg.Outbox),
		Tracker: c.tracker,
		Logger:  observability.Component(logger, "outbox"),
		Clock:   o.clock,
	})
	c.sessions = service.NewSessionManager(service.SessionDependencies{
		API:     c.api,
		Opener:  c.api,
		Repo:    sessionRepo,
		Store:   c.store,
		Unread:  c.unread,
		Outbox:  c.outbox,
		Tracker: c.tracker,
		Logger:  observability.Component(logger, "session"),
		Clock:   o.clock,
	})
	c.api.SetTokenProvider(c.sessions)
	c.tracker.SetIdentity(c.sessions.Identity)
	c.branding = brandingRepo
	c.syncJob = &worker.SyncJob{
		Store:    c.store,
		Router:   c.router,
		Unread:   c.unread,
		Outbox:   c.replay,
		AppState: c.AppState,
		Logger:   observability.Component(logger, "sync"),
	}

	if err := c.sessions.Restore(ctx); err != nil {
		logger.Warn("restore session", zap.Error(err))
	}
	return c, nil
}

func (c *Client) openSessionStore(cfg config.SessionConfig) (repository.SessionRepository, repository.BrandingRepository, error) {
	if cfg.Store != config.SessionStoreSQLite {
		return repository.NewMemorySessionRepository(), repository.NewMemoryBrandingRepository(), nil
	}
	db, err := persistence.OpenSQLite(cfg.SQLitePath, c.logger)
	if err != nil {
		return nil, nil, err
	}
	c.closers = append(c.closers, func() error { return persistence.CloseSQLite(db) })
	if err := repository.AutoMigrate(db); err != nil {
		return nil, nil, fmt.Errorf("migrate session store: %w", err)
	}
	return repository.NewGormSessionRepository(db), repository.NewGormBrandingRepository(db), nil
}

func (c *Client) openOutbox(ctx context.Context, cfg config.Config) (repository.OutboxRepository, error) {
	switch cfg.Outbox.Backend {
	case config.OutboxBackendRedis:
		r, err := persistence.OpenRedis(ctx, cfg.Redis, cfg.Outbox.RedisKeyPrefix, c.logger)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, r.Close)
		return repository.NewRedisOutboxRepository(r.Client, r.Prefix), nil
	case config.OutboxBackendPostgres:
		pg, err := persistence.OpenPostgres(ctx, cfg.Postgres, c.logger)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, pg.Close)
		return repository.NewPostgresOutboxRepository(pg.Pool()), nil
	default:
		return repository.NewMemoryOutboxRepository(), nil
	}
}

// Login enters the anonymous state; the backend session opens on first use.
func (c *Client) Login(ctx context.Context) {
	c.sessions.Login(ctx)
}

// Logout ends the session and purges every ticket, the unread count and
// the outbox.
func (c *Client) Logout(ctx context.Context) {
	c.sessions.Logout(ctx)
}

// State returns the session state.
func (c *Client) State() SessionState {
	return c.sessions.State()
}

// Session returns a copy of the session record.
func (c *Client) Session() SessionRecord {
	return c.sessions.Record()
}

// UpdateCustomer sends customer properties; a non-empty value identifies
// the customer.
func (c *Client) UpdateCustomer(ctx context.Context, email, originalID *string) error {
	return c.sessions.UpdateCustomer(ctx, email, originalID)
}

// RegisterDevice binds raw push token bytes to the session.
func (c *Client) RegisterDevice(ctx context.Context, token []byte, originalID *string) error {
	return c.sessions.RegisterDevice(ctx, token, originalID)
}

// CreateTicket opens a conversation. An empty channel uses the configured
// one.
func (c *Client) CreateTicket(ctx context.Context, message, channel string, attachments ...Attachment) (Ticket, error) {
	if strings.TrimSpace(channel) == "" {
		channel = c.cfg.API.Channel
	}
	ticket, err := c.store.CreateTicket(ctx, client.CreateTicketInput{
		Message:     message,
		Channel:     channel,
		Device:      c.device,
		Attachments: attachments,
	})
	if err != nil {
		return Ticket{}, err
	}
	c.tracker.Track(ctx, events.EventTicketCreated, map[string]any{
		"ticket_id":   ticket.ID,
		"channel":     channel,
		"attachments": len(attachments),
	})
	return ticket, nil
}

// SendMessage appends the message optimistically and delivers it. Errors
// roll the optimistic message back and are returned unchanged. While older
// messages for the ticket wait in the outbox it fails with a NETWORK_ERROR
// wrapping ErrQueuedAhead instead of overtaking them.
func (c *Client) SendMessage(ctx context.Context, ticketID, text string, attachments ...Attachment) (Message, error) {
	ahead, err := c.outbox.PendingFor(ctx, ticketID)
	if err != nil {
		return Message{}, err
	}
	if len(ahead) > 0 {
		err := apperrors.NewNetworkError(fmt.Errorf("%d pending: %w", len(ahead), ErrQueuedAhead))
		c.tracker.Track(ctx, events.EventMessageSendFailed, map[string]any{
			"ticket_id": ticketID,
			"reason":    apperrors.CodeOf(err),
		})
		return Message{}, err
	}

	msg, err := c.store.Send(ctx, ticketID, text, attachments)
	if err != nil {
		c.tracker.Track(ctx, events.EventMessageSendFailed, map[string]any{
			"ticket_id": ticketID,
			"reason":    apperrors.CodeOf(err),
		})
		return Message{}, err
	}
	c.tracker.Track(ctx, events.EventMessageSent, map[string]any{
		"ticket_id":   ticketID,
		"attachments": len(attachments),
	})
	return msg, nil
}

// SendMessageOrQueue behaves like SendMessage but parks the message in the
// outbox when the network is unavailable. queued reports that case. Queued
// messages for the ticket are replayed first; if any remain the new message
// is queued behind them.
func (c *Client) SendMessageOrQueue(ctx context.Context, ticketID, text string, attachments ...Attachment) (msg *Message, queued bool, err error) {
	ahead, err := c.outbox.PendingFor(ctx, ticketID)
	if err != nil {
		return nil, false, err
	}
	if len(ahead) > 0 {
		if _, err := c.replay.Flush(ctx); err != nil {
			c.logger.Warn("flush outbox before send", zap.String("ticket_id", ticketID), zap.Error(err))
		}
	}
	return c.outbox.SendOrQueue(ctx, ticketID, text, attachments)
}

// PendingOutbox lists messages waiting for replay, oldest first.
func (c *Client) PendingOutbox(ctx context.Context) ([]OutboxEntry, error) {
	return c.outbox.Pending(ctx)
}

// Reconnected replays the outbox. Hosts call it when connectivity returns.
func (c *Client) Reconnected(ctx context.Context) (FlushResult, error) {
	return c.replay.Flush(ctx)
}

// Tickets returns the cached ticket list.
func (c *Client) Tickets() []TicketPreview {
	return c.store.Tickets()
}

// RefreshTickets fetches the ticket list and returns it.
func (c *Client) RefreshTickets(ctx context.Context) ([]TicketPreview, error) {
	if _, err := c.store.RefreshList(ctx); err != nil {
		return nil, err
	}
	return c.store.Tickets(), nil
}

// WatchTickets streams the ticket list, replaying the current value.
func (c *Client) WatchTickets() *Subscription[[]TicketPreview] {
	return c.store.WatchTickets()
}

// OpenList refreshes the ticket list and streams it.
func (c *Client) OpenList(ctx context.Context) (*Subscription[[]TicketPreview], error) {
	sub := c.store.WatchTickets()
	if _, err := c.store.RefreshList(ctx); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

// Open loads a ticket and streams its snapshots. The first value is the
// current snapshot.
func (c *Client) Open(ctx context.Context, ticketID string) (*Subscription[TicketSnapshot], error) {
	if strings.TrimSpace(ticketID) == "" {
		return nil, apperrors.NewValidationError("ticket id required", nil)
	}
	sub := c.store.Watch(ticketID)
	if _, err := c.store.SyncTicket(ctx, ticketID); err != nil {
		sub.Close()
		return nil, err
	}
	c.tracker.Track(ctx, events.EventTicketOpened, map[string]any{"ticket_id": ticketID})
	return sub, nil
}

// Ticket returns the cached snapshot of a ticket.
func (c *Client) Ticket(ticketID string) (TicketSnapshot, bool) {
	return c.store.Snapshot(ticketID)
}

// MarkRead marks the ticket's agent messages read, lowers the unread count
// and syncs the receipt in the background. It returns how many messages
// changed.
func (c *Client) MarkRead(ctx context.Context, ticketID string) int {
	n := c.store.MarkRead(ticketID)
	synced := c.unread.Decrement(n)
	c.tracker.Track(ctx, events.EventTicketRead, map[string]any{"ticket_id": ticketID, "count": n})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		synced()
		return n
	}
	c.background.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.background.Done()
		defer synced()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), receiptTimeout)
		defer cancel()
		if err := c.api.MarkTicketRead(rctx, ticketID); err != nil {
			c.logger.Warn("sync read receipt", zap.String("ticket_id", ticketID), zap.Error(err))
		}
	}()
	return n
}

// UnreadCount returns the last known unread count.
func (c *Client) UnreadCount() int {
	return c.unread.Value()
}

// WatchUnreadCount streams the unread count, replaying the current value.
func (c *Client) WatchUnreadCount() *Subscription[int] {
	return c.unread.Watch()
}

// RefreshUnreadCount fetches the unread count. Concurrent calls share one
// request.
func (c *Client) RefreshUnreadCount(ctx context.Context) (int, error) {
	return c.unread.Refresh(ctx)
}

// Foreground tells the client the host app became active.
func (c *Client) Foreground(ctx context.Context) {
	if c.sessions.State() == domain.SessionLoggedOut {
		return
	}
	c.unread.Foreground(ctx)
}

// Notifications streams in-app notifications: taps and live messages.
// Subscribing also switches owned pushes to sound-only presentation.
func (c *Client) Notifications() *Subscription[Notification] {
	return c.router.Notifications()
}

// IsOwnedPush reports whether a push payload belongs to the support SDK.
func (c *Client) IsOwnedPush(payload map[string]any) bool {
	return c.router.IsOwnedPush(payload)
}

// PresentationPolicy decides how a foreground push is shown given the
// current app state.
func (c *Client) PresentationPolicy(payload map[string]any) Presentation {
	return c.router.PresentationPolicy(payload, c.AppState())
}

// HandleTap turns a tapped push into a deep link on the notification stream.
func (c *Client) HandleTap(ctx context.Context, payload map[string]any) (Notification, error) {
	return c.router.HandleTap(ctx, payload)
}

// SetAppState records what the host UI shows.
func (c *Client) SetAppState(state AppState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appState = state
}

// AppState returns the last state set by the host.
func (c *Client) AppState() AppState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appState
}

// Branding returns the chat branding, using the cached copy when the
// backend reports no change or cannot be reached.
func (c *Client) Branding(ctx context.Context) (Branding, error) {
	cached, err := c.branding.Load(ctx)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		c.logger.Warn("load cached branding", zap.Error(err))
	}
	var since *time.Time
	if cached != nil {
		since = &cached.UpdatedAt
	}

	fresh, err := c.api.GetBranding(ctx, since)
	switch {
	case err != nil && cached != nil && apperrors.IsTransient(err):
		c.logger.Warn("refresh branding", zap.Error(err))
		return *cached, nil
	case err != nil:
		return Branding{}, err
	case fresh == nil && cached != nil:
		return *cached, nil
	case fresh == nil:
		return Branding{}, apperrors.NewServerError(http.StatusNotModified, "branding not modified but nothing cached")
	}
	if err := c.branding.Save(ctx, *fresh); err != nil {
		c.logger.Warn("cache branding", zap.Error(err))
	}
	return *fresh, nil
}

// Metrics returns per-endpoint request and error counts for this client.
func (c *Client) Metrics() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// OnEvent registers an analytics observer for name, or events.EventAny.
// Observers run on a dedicated goroutine and never block the SDK.
func (c *Client) OnEvent(name EventName, handler func(Event)) (unsubscribe func()) {
	return c.dispatcher.Subscribe(name, func(_ context.Context, e events.Event) {
		handler(e)
	})
}

// Poll runs one background sync tick now.
func (c *Client) Poll(ctx context.Context) error {
	if c.sessions.State() == domain.SessionLoggedOut {
		return nil
	}
	return c.syncJob.Run(ctx)
}

// StartPolling runs Poll on the configured schedule until StopPolling,
// Close or ctx cancellation.
func (c *Client) StartPolling(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("support: client closed")
	}
	if c.poller != nil {
		return nil
	}
	p, err := worker.NewPoller(c.cfg.Sync.PollSchedule, c.Poll, observability.Component(c.logger, "poller"))
	if err != nil {
		return err
	}
	p.Start(ctx)
	c.poller = p
	return nil
}

// StopPolling stops scheduled polling and waits for a running tick.
func (c *Client) StopPolling() {
	c.mu.Lock()
	p := c.poller
	c.poller = nil
	c.mu.Unlock()
	if p != nil {
		p.Stop()
	}
}

// Close stops background work and releases storage. The persisted session
// is kept so the next Client restores it.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.StopPolling()
	c.background.Wait()
	c.router.Close()
	c.unread.Close()
	c.store.Close()
	return c.release()
}

func (c *Client) release() error {
	c.dispatcher.Close()
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
