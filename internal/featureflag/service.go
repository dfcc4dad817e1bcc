package featureflag

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long a fetched flag table is reused.
const DefaultCacheTTL = 60 * time.Second

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Store     Store
	Platform  string          // Platform served by this process, defaults to "mobile"
	Overrides map[string]bool // Forced values that bypass the store
	CacheTTL  time.Duration   // Defaults to DefaultCacheTTL
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Service evaluates flags from a Store with a shared in-process cache.
// Thread-safe via RWMutex; concurrent refreshes are collapsed into one.
type Service struct {
	store     Store
	platform  string
	overrides map[string]bool
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time

	refresh singleflight.Group

	mu        sync.RWMutex
	flags     map[string]Flag
	fetchedAt time.Time
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Platform == "" {
		cfg.Platform = "mobile"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	overrides := make(map[string]bool, len(cfg.Overrides))
	for k, v := range cfg.Overrides {
		overrides[k] = v
	}
	return &Service{
		store:     cfg.Store,
		platform:  cfg.Platform,
		overrides: overrides,
		ttl:       cfg.CacheTTL,
		logger:    cfg.Logger,
		now:       cfg.Clock,
	}
}

// IsEnabled reports whether flag is on for identity. Unknown flags are off.
// When the store fails, the last fetched table is used if there is one;
// otherwise the error is returned.
func (s *Service) IsEnabled(ctx context.Context, flag, identity string) (bool, error) {
	if forced, ok := s.overrides[flag]; ok {
		return forced, nil
	}

	flags, err := s.table(ctx)
	if err != nil {
		return false, err
	}

	f, ok := flags[flag]
	if !ok {
		return false, nil
	}
	return f.EnabledFor(identity, s.platform), nil
}

// Invalidate forces the next evaluation to refetch the flag table.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchedAt = time.Time{}
}

func (s *Service) table(ctx context.Context) (map[string]Flag, error) {
	s.mu.RLock()
	flags, fetchedAt := s.flags, s.fetchedAt
	s.mu.RUnlock()

	if flags != nil && !fetchedAt.IsZero() && s.now().Sub(fetchedAt) < s.ttl {
		return flags, nil
	}

	v, err, _ := s.refresh.Do("flags", func() (interface{}, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		if flags != nil {
			s.logger.WarnContext(ctx, "failed to refresh feature flags, using cached values",
				slog.String("error", err.Error()))
			return flags, nil
		}
		return nil, err
	}
	return v.(map[string]Flag), nil
}

func (s *Service) fetch(ctx context.Context) (map[string]Flag, error) {
	if s.store == nil {
		return map[string]Flag{}, nil
	}

	list, err := s.store.ListFlags(ctx)
	if err != nil {
		return nil, err
	}

	flags := make(map[string]Flag, len(list))
	for _, f := range list {
		flags[f.Key] = f
	}

	s.mu.Lock()
	s.flags = flags
	s.fetchedAt = s.now()
	s.mu.Unlock()

	return flags, nil
}
