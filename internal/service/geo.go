package service

import (
	"context"
	"strings"
	"time"

	"github.com/sitebeacon/stats-service/internal/domain"
	"github.com/sitebeacon/stats-service/internal/pkg/logger"
)

// GeoResolver is what ingestion needs from enrichment.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) domain.GeoInfo
}

// Enricher resolves an IP to a coarse location through the persisted
// per-IP cache, falling back to the external provider on miss or
// staleness. Resolution is best-effort and never returns an error:
// every failure degrades to Unknown.
type Enricher struct {
	cache  domain.GeoCache
	lookup domain.GeoLookup
	now    func() time.Time
}

func NewEnricher(cache domain.GeoCache, lookup domain.GeoLookup) *Enricher {
	return &Enricher{cache: cache, lookup: lookup, now: time.Now}
}

// WithClock overrides the time source. Tests only.
func (e *Enricher) WithClock(now func() time.Time) *Enricher {
	e.now = now
	return e
}

func (e *Enricher) Resolve(ctx context.Context, ip string) domain.GeoInfo {
	if ip == "" || strings.EqualFold(ip, domain.UnknownValue) {
		return domain.GeoInfo{Country: domain.UnknownValue, City: domain.UnknownValue}
	}

	now := e.now().UTC()

	entry, err := e.cache.GetGeo(ctx, ip)
	if err == nil && entry.Fresh(now) {
		// fast path, no network call
		return domain.GeoInfo{
			Country: orUnknown(entry.Country),
			City:    orUnknown(entry.City),
		}
	}
	if err != nil && err != domain.ErrCacheMiss {
		logger.WithCtx(ctx).Warn().Err(err).Str("ip", ip).Msg("geo cache read failed")
	}

	// Miss or stale: one bounded external call. Concurrent misses for a
	// newly-seen IP may each get here; the upsert below converges to the
	// same state whichever call lands last, so no lock is taken.
	info, err := e.lookup.Lookup(ctx, ip)
	if err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Str("ip", ip).Msg("geo lookup failed, falling back to Unknown")
		info = domain.GeoInfo{}
	}
	info.Country = orUnknown(info.Country)
	info.City = orUnknown(info.City)

	// Record the outcome either way so a failing provider is not hammered
	// for this IP until the entry expires again.
	if err := e.cache.UpsertGeo(ctx, domain.GeoEntry{
		IP:        ip,
		Country:   info.Country,
		City:      info.City,
		UpdatedAt: now,
	}); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Str("ip", ip).Msg("geo cache upsert failed")
	}

	return info
}

func orUnknown(s string) string {
	if s == "" {
		return domain.UnknownValue
	}
	return s
}
