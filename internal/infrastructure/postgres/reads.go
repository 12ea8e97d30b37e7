package postgres

import (
	"context"

	"github.com/sitebeacon/stats-service/internal/domain"
)

func (r *Repository) ListDomains(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT domain FROM stats_events ORDER BY domain`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// StatsForDomain computes one summary block. Counts and rankings come
// straight from storage so concurrent summaries see committed state only.
func (r *Repository) StatsForDomain(ctx context.Context, dom string) (domain.DomainStats, error) {
	stats := domain.NewDomainStats()

	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM stats_unique WHERE domain = $1
	`, dom).Scan(&stats.UniqueVisitors)
	if err != nil {
		return domain.DomainStats{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT type, COUNT(*) FROM stats_events WHERE domain = $1 GROUP BY type
	`, dom)
	if err != nil {
		return domain.DomainStats{}, err
	}
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			rows.Close()
			return domain.DomainStats{}, err
		}
		switch domain.EventType(typ) {
		case domain.TypeVisit:
			stats.Visits = n
		case domain.TypeClick:
			stats.Clicks = n
		case domain.TypeDownload:
			stats.Downloads = n
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.DomainStats{}, err
	}

	stats.TopReferrers, err = r.topCounts(ctx, `
		SELECT referrer, COUNT(*) AS c
		FROM stats_events
		WHERE domain = $1 AND referrer <> ''
		GROUP BY referrer
		ORDER BY c DESC, referrer ASC
		LIMIT $2
	`, dom)
	if err != nil {
		return domain.DomainStats{}, err
	}

	stats.TopCountries, err = r.topCounts(ctx, `
		SELECT country, COUNT(*) AS c
		FROM stats_events
		WHERE domain = $1
		GROUP BY country
		ORDER BY c DESC, country ASC
		LIMIT $2
	`, dom)
	if err != nil {
		return domain.DomainStats{}, err
	}

	return stats, nil
}

func (r *Repository) topCounts(ctx context.Context, q, dom string) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, q, dom, domain.TopN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

// ListEvents orders by insertion (serial id), newest first. Event timestamp
// ties within a second make ts ordering ambiguous; id is not.
func (r *Repository) ListEvents(ctx context.Context, dom string, limit int) ([]domain.Event, error) {
	q := `
		SELECT id, ts, date, domain, type, item, referrer, ip, country
		FROM stats_events
		ORDER BY id DESC
		LIMIT $1
	`
	args := []any{limit}
	if dom != "" {
		q = `
			SELECT id, ts, date, domain, type, item, referrer, ip, country
			FROM stats_events
			WHERE domain = $2
			ORDER BY id DESC
			LIMIT $1
		`
		args = append(args, dom)
	}

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		var typ string
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.Date, &e.Domain, &typ, &e.Item, &e.Referrer, &e.IP, &e.Country); err != nil {
			return nil, err
		}
		e.Type = domain.EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
