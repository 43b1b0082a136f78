package support

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-client/internal/domain"
)

type options struct {
	logger     *zap.Logger
	httpClient *http.Client
	device     domain.DeviceInfo
	clock      func() time.Time
}

// Option customizes a Client.
type Option func(*options)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHTTPClient replaces the transport used to reach the backend.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithDevice describes the host device sent with new tickets.
func WithDevice(d DeviceInfo) Option {
	return func(o *options) { o.device = d }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}
