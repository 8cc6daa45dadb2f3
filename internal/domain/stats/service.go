package stats

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/therapy/clinic/internal/platform/telemetry"
	"github.com/therapy/clinic/pkg/caldate"
)

const cachePrefix = "stats:"

type Service struct {
	repo    Repository
	cache   Cache
	ttl     time.Duration
	metrics *telemetry.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// NewService builds the aggregator. A nil cache or a zero ttl disables
// caching.
func NewService(repo Repository, cache Cache, ttl time.Duration, metrics *telemetry.Metrics, log zerolog.Logger) *Service {
	return &Service{repo: repo, cache: cache, ttl: ttl, metrics: metrics, log: log, now: time.Now}
}

// Summary counts all patients, and the patients registered and visits held
// on or after the first day of the trailing window.
func (s *Service) Summary(ctx context.Context, window string) (*Summary, error) {
	d, err := ParseWindow(window)
	if err != nil {
		return nil, err
	}
	if window == "" {
		window = DefaultWindow
	}
	since := caldate.Of(s.now().UTC().Add(-d))

	var out Summary
	key := cachePrefix + "summary:" + since.String()
	if s.cached(ctx, key, &out) {
		out.Window = window
		return &out, nil
	}

	out = Summary{Window: window, Since: since}
	if out.TotalPatients, err = s.repo.CountPatients(ctx); err != nil {
		return nil, err
	}
	if out.NewPatients, err = s.repo.CountPatientsSince(ctx, since); err != nil {
		return nil, err
	}
	if out.Visits, err = s.repo.CountVisitsSince(ctx, since); err != nil {
		return nil, err
	}
	s.store(ctx, key, out)
	return &out, nil
}

// Monthly counts new patients and visits per month of year. Months without
// activity are reported as zero.
func (s *Service) Monthly(ctx context.Context, year int) (*Monthly, error) {
	if err := validYear(year); err != nil {
		return nil, err
	}

	var out Monthly
	key := cachePrefix + "monthly:" + strconv.Itoa(year)
	if s.cached(ctx, key, &out) {
		return &out, nil
	}

	patients, err := s.repo.PatientsByMonth(ctx, year)
	if err != nil {
		return nil, err
	}
	visits, err := s.repo.VisitsByMonth(ctx, year)
	if err != nil {
		return nil, err
	}

	out = Monthly{Year: year, Months: make([]MonthCount, 12)}
	for i := range out.Months {
		m := i + 1
		out.Months[i] = MonthCount{Month: m, NewPatients: patients[m], Visits: visits[m]}
	}
	s.store(ctx, key, out)
	return &out, nil
}

// Invalidate drops every cached aggregate. Writers call it after commit.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cachePrefix); err != nil {
		s.log.Warn().Err(err).Msg("stats cache invalidation failed")
	}
}

func (s *Service) cached(ctx context.Context, key string, dst interface{}) bool {
	if s.cache == nil || s.ttl <= 0 {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("stats cache read failed")
		return false
	}
	s.metrics.ObserveStatsCache(hit)
	return hit
}

func (s *Service) store(ctx context.Context, key string, v interface{}) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, key, v, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("stats cache write failed")
	}
}
