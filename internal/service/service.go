package service

import (
	"context"
	"strings"
	"time"

	"github.com/sitebeacon/stats-service/internal/domain"
	"github.com/sitebeacon/stats-service/internal/pkg/logger"
)

const (
	defaultListLimit = 200
	maxListLimit     = 1000
)

// StatsService is the ingestion and aggregation core. Each call is an
// independent unit of work; all shared state lives in the repository.
type StatsService struct {
	repo      domain.StatsRepository
	geo       GeoResolver
	cache     domain.SummaryCache   // optional
	publisher domain.EventPublisher // optional
	cacheTTL  time.Duration
	now       func() time.Time
}

func NewStatsService(repo domain.StatsRepository, geo GeoResolver, cache domain.SummaryCache, cacheTTL time.Duration, publisher domain.EventPublisher) *StatsService {
	return &StatsService{
		repo:      repo,
		geo:       geo,
		cache:     cache,
		publisher: publisher,
		cacheTTL:  cacheTTL,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (s *StatsService) WithClock(now func() time.Time) *StatsService {
	s.now = now
	return s
}

// Ingest validates, normalizes and persists one event. Timestamp and date
// are always derived from the server clock, never from client input.
// Validation failures return domain.ErrBadEventType / domain.ErrNoDomain
// with no write performed.
func (s *StatsService) Ingest(ctx context.Context, sub domain.Submission, meta domain.ClientMeta) (domain.Event, error) {
	typ, ok := domain.ParseEventType(sub.Type)
	if !ok {
		return domain.Event{}, domain.ErrBadEventType
	}

	host := domain.NormalizeHost(sub.Domain)
	if host == "" {
		host = domain.NormalizeHost(meta.Origin)
	}
	if host == "" {
		host = domain.NormalizeHost(meta.Referer)
	}
	if host == "" {
		return domain.Event{}, domain.ErrNoDomain
	}

	item := strings.TrimSpace(sub.Path)
	if item == "" {
		item = strings.TrimSpace(sub.URL)
	}

	ip := strings.TrimSpace(meta.IP)
	if ip == "" {
		ip = domain.UnknownValue
	}

	// Second granularity makes duplicate beacon retries collide on the
	// identity key, which is exactly what the conflict-ignore insert wants.
	now := s.now().UTC().Truncate(time.Second)

	geo := s.geo.Resolve(ctx, ip)

	e := domain.Event{
		OccurredAt: now,
		Date:       domain.DateOf(now),
		Domain:     host,
		Type:       typ,
		Item:       item,
		Referrer:   strings.TrimSpace(sub.Referrer),
		IP:         ip,
		Country:    geo.Country,
		UserAgent:  meta.UserAgent,
		UAHash:     domain.FingerprintUA(meta.UserAgent),
	}

	if err := s.repo.InsertEvent(ctx, e); err != nil {
		return domain.Event{}, err
	}

	// Only visits feed the unique-visitor set; clicks and downloads have no
	// side table.
	switch typ {
	case domain.TypeVisit:
		if err := s.repo.InsertUniqueVisit(ctx, domain.UniqueVisit{
			Date:   e.Date,
			Domain: e.Domain,
			IP:     e.IP,
			UAHash: e.UAHash,
		}); err != nil {
			return domain.Event{}, err
		}
	case domain.TypeClick, domain.TypeDownload:
	}

	if s.publisher != nil {
		if err := s.publisher.PublishEvent(ctx, e); err != nil {
			logger.WithCtx(ctx).Warn().Err(err).Str("domain", e.Domain).Msg("event stream publish failed")
		}
	}

	return e, nil
}

// Summary computes per-domain blocks plus the overall rollup. filterCSV is
// a comma-separated host list normalized like ingestion; empty means every
// observed domain.
func (s *StatsService) Summary(ctx context.Context, filterCSV string) (domain.Summary, error) {
	filter := domain.NormalizeHostList(filterCSV)

	key := "all"
	if len(filter) > 0 {
		key = strings.Join(filter, ",")
	}
	if s.cache != nil {
		if sum, err := s.cache.GetSummary(ctx, key); err == nil {
			return sum, nil
		}
		// cache errors fall through to storage
	}

	known, err := s.repo.ListDomains(ctx)
	if err != nil {
		return domain.Summary{}, err
	}

	domains := known
	if len(filter) > 0 {
		wanted := make(map[string]struct{}, len(filter))
		for _, d := range filter {
			wanted[d] = struct{}{}
		}
		domains = domains[:0:0]
		for _, d := range known {
			if _, ok := wanted[d]; ok {
				domains = append(domains, d)
			}
		}
	}

	result := domain.Summary{
		Domains: make(map[string]domain.DomainStats, len(domains)),
		Overall: domain.NewDomainStats(),
	}
	for _, d := range domains {
		block, err := s.repo.StatsForDomain(ctx, d)
		if err != nil {
			return domain.Summary{}, err
		}
		result.Domains[d] = block

		result.Overall.UniqueVisitors += block.UniqueVisitors
		result.Overall.Visits += block.Visits
		result.Overall.Clicks += block.Clicks
		result.Overall.Downloads += block.Downloads
		result.Overall.TopReferrers = domain.MergeCounts(result.Overall.TopReferrers, block.TopReferrers)
		result.Overall.TopCountries = domain.MergeCounts(result.Overall.TopCountries, block.TopCountries)
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.SetSummary(ctx, key, result, s.cacheTTL); err != nil {
			logger.WithCtx(ctx).Warn().Err(err).Msg("summary cache write failed")
		}
	}

	return result, nil
}

// ListEvents returns the most recently inserted events, newest first.
// rawDomain is normalized like the summary filter; empty means all domains.
func (s *StatsService) ListEvents(ctx context.Context, rawDomain string, limit int) ([]domain.Event, error) {
	return s.repo.ListEvents(ctx, domain.NormalizeHost(rawDomain), clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
