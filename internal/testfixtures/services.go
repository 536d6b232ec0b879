package testfixtures

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/example/booking-engine/internal/application"
	"github.com/example/booking-engine/internal/persistence"
)

// SessionHashKey is the signing key used by factory built auth services.
var SessionHashKey = []byte(strings.Repeat("s", 32))

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Location    *time.Location
	Logger      *slog.Logger
	Retry       persistence.RetryConfig
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Location:    time.UTC,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Retry:       persistence.RetryConfig{Attempts: 3, InitialDelay: time.Millisecond},
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) { factory.Clock = clock }
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) { factory.IDGenerator = generator }
}

// WithLogger routes service logs to logger.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) { factory.Logger = logger }
}

// Services bundles every application service over one store.
type Services struct {
	Policies     *application.PolicySource
	Booking      *application.BookingService
	Availability *application.AvailabilityService
	Catalog      *application.CatalogService
	Auth         *application.AuthService
}

// Build wires all services over store.
func (f *ServiceFactory) Build(tb testing.TB, store persistence.Store) Services {
	tb.Helper()

	opts := application.ServiceOptions{Logger: f.Logger, Retry: f.Retry}
	now := f.Clock.NowFunc()
	ids := f.IDGenerator.NextFunc()
	policies := application.NewPolicySource(store, f.Location, time.Minute, now)

	auth, err := application.NewAuthService(store, ids, now, application.AuthOptions{
		HashKey:    SessionHashKey,
		SessionTTL: time.Hour,
		Hasher:     FastPasswordHash,
		Logger:     f.Logger,
	})
	if err != nil {
		tb.Fatalf("build auth service: %v", err)
	}

	return Services{
		Policies:     policies,
		Booking:      application.NewBookingService(store, policies, ids, now, opts),
		Availability: application.NewAvailabilityService(store, policies, now, opts),
		Catalog:      application.NewCatalogService(store, policies, ids, now, opts),
		Auth:         auth,
	}
}

// FastPasswordHash hashes with argon2 parameters small enough for tests.
func FastPasswordHash(password string) (string, error) {
	return application.CreatePasswordHash(password, application.Argon2idParams{
		Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16,
	})
}
