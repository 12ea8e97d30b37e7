package domain

import (
	"context"
	"errors"
	"time"
)

// EventType is the closed set of things the collector records.
type EventType string

const (
	TypeVisit    EventType = "visit"
	TypeClick    EventType = "click"
	TypeDownload EventType = "download"
)

// ParseEventType normalizes raw client input to a known type.
func ParseEventType(raw string) (EventType, bool) {
	switch t := EventType(normalizeToken(raw)); t {
	case TypeVisit, TypeClick, TypeDownload:
		return t, true
	default:
		return "", false
	}
}

var (
	ErrBadEventType = errors.New("bad event type")
	ErrNoDomain     = errors.New("no domain")

	ErrCacheMiss = errors.New("cache miss")
)

// Event is an immutable recorded fact. Identity is (OccurredAt, Domain,
// Type, Item); a resubmission with the same key is a no-op.
type Event struct {
	ID         int64
	OccurredAt time.Time // UTC, second granularity
	Date       string    // UTC calendar date, YYYY-MM-DD
	Domain     string    // normalized host, no scheme, no www.
	Type       EventType
	Item       string
	Referrer   string
	IP         string // may be "Unknown"
	Country    string // may be "Unknown"
	UserAgent  string
	UAHash     string // 16 hex chars, see FingerprintUA
}

// UniqueVisit is a daily visitor fingerprint; all four fields form the key.
type UniqueVisit struct {
	Date   string
	Domain string
	IP     string
	UAHash string
}

// GeoInfo is a resolved coarse location.
type GeoInfo struct {
	Country string
	City    string
}

// GeoEntry is the per-IP enrichment cache row, one row per IP.
type GeoEntry struct {
	IP        string
	Country   string
	City      string
	UpdatedAt time.Time
}

// GeoCacheTTL is how long a cached geo entry is served without a refresh.
const GeoCacheTTL = 30 * 24 * time.Hour

// Fresh reports whether the entry is still within its TTL at now.
func (e GeoEntry) Fresh(now time.Time) bool {
	return now.Sub(e.UpdatedAt) < GeoCacheTTL
}

// TopN is how many referrers/countries a summary block ranks.
const TopN = 10

// DomainStats is one per-domain summary block (also the shape of the
// overall rollup).
type DomainStats struct {
	UniqueVisitors int            `json:"unique_visitors"`
	Visits         int            `json:"visits"`
	Clicks         int            `json:"clicks"`
	Downloads      int            `json:"downloads"`
	TopReferrers   map[string]int `json:"top_referrers"`
	TopCountries   map[string]int `json:"top_countries"`
}

type Summary struct {
	Domains map[string]DomainStats `json:"domains"`
	Overall DomainStats            `json:"overall"`
}

// StatsRepository is the persisted event store.
type StatsRepository interface {
	// InsertEvent is conflict-ignore on the event identity key.
	InsertEvent(ctx context.Context, e Event) error
	// InsertUniqueVisit is conflict-ignore on the full fingerprint key.
	InsertUniqueVisit(ctx context.Context, v UniqueVisit) error

	// ListDomains returns every distinct domain observed, any order.
	ListDomains(ctx context.Context) ([]string, error)
	// StatsForDomain computes one per-domain summary block.
	StatsForDomain(ctx context.Context, domain string) (DomainStats, error)
	// ListEvents returns up to limit events, most recently inserted first.
	// Empty domain means all domains.
	ListEvents(ctx context.Context, domain string, limit int) ([]Event, error)
}

// GeoCache is the persisted per-IP enrichment cache.
type GeoCache interface {
	GetGeo(ctx context.Context, ip string) (GeoEntry, error) // ErrCacheMiss when absent
	UpsertGeo(ctx context.Context, e GeoEntry) error         // last writer wins
}

// GeoLookup resolves an IP against the external provider.
type GeoLookup interface {
	Lookup(ctx context.Context, ip string) (GeoInfo, error)
}

// SummaryCache is a best-effort response cache for summary reports.
type SummaryCache interface {
	GetSummary(ctx context.Context, key string) (Summary, error) // ErrCacheMiss when absent
	SetSummary(ctx context.Context, key string, s Summary, ttl time.Duration) error
}

// EventPublisher streams accepted events to downstream consumers.
// Implementations are best-effort; failures must not fail ingestion.
type EventPublisher interface {
	PublishEvent(ctx context.Context, e Event) error
}
