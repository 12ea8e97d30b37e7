package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sitebeacon/stats-service/internal/domain"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertEvent records one event. The identity key (ts, domain, type, item)
// is conflict-ignored at the storage layer so duplicate beacon submissions
// within the same second converge to a single row without locking.
func (r *Repository) InsertEvent(ctx context.Context, e domain.Event) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO stats_events (ts, date, domain, type, item, referrer, ip, country, ua, ua_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (ts, domain, type, item) DO NOTHING
	`, e.OccurredAt, e.Date, e.Domain, string(e.Type), e.Item, e.Referrer, e.IP, e.Country, e.UserAgent, e.UAHash)
	return err
}

// InsertUniqueVisit marks the fingerprint as seen for the day. The full
// tuple is the primary key; re-inserting is a silent no-op.
func (r *Repository) InsertUniqueVisit(ctx context.Context, v domain.UniqueVisit) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO stats_unique (date, domain, ip, ua_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (date, domain, ip, ua_hash) DO NOTHING
	`, v.Date, v.Domain, v.IP, v.UAHash)
	return err
}

func (r *Repository) GetGeo(ctx context.Context, ip string) (domain.GeoEntry, error) {
	e := domain.GeoEntry{IP: ip}
	err := r.pool.QueryRow(ctx, `
		SELECT country, city, updated_at FROM geo_cache WHERE ip = $1
	`, ip).Scan(&e.Country, &e.City, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.GeoEntry{}, domain.ErrCacheMiss
		}
		return domain.GeoEntry{}, err
	}
	return e, nil
}

// UpsertGeo is last-writer-wins: concurrent miss-path writers for the same
// IP each write a complete tuple, so the final state is self-consistent
// whichever lands last.
func (r *Repository) UpsertGeo(ctx context.Context, e domain.GeoEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO geo_cache (ip, country, city, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ip) DO UPDATE
		SET country = EXCLUDED.country,
		    city = EXCLUDED.city,
		    updated_at = EXCLUDED.updated_at
	`, e.IP, e.Country, e.City, e.UpdatedAt)
	return err
}
