// Package searchlog keeps an audit trail of completed slot searches.
// It is optional: with no database configured the repo is a no-op and
// the bot runs fully in memory.
package searchlog

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/cowinbot/core/logger"
	"github.com/m3rciful/cowinbot/internal/dialog"

	"log/slog"
)

// Repo writes search records and aggregates usage stats.
type Repo struct {
	db *sqlx.DB
}

// New returns a Repo over db. A nil db yields a disabled repo whose
// methods are safe no-ops.
func New(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// Enabled reports whether the repo has a database behind it.
func (r *Repo) Enabled() bool {
	return r != nil && r.db != nil
}

const insertSearchQuery = `
INSERT INTO searches (user_id, method, state_name, district_name, pincode, centers, chunks)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Record stores one completed search. Failures are logged and swallowed;
// the audit trail never breaks a user-facing reply.
func (r *Repo) Record(ctx context.Context, rec dialog.SearchRecord) {
	if !r.Enabled() {
		return
	}

	start := time.Now()
	_, err := r.db.ExecContext(ctx, insertSearchQuery,
		rec.UserID, rec.Method, rec.StateName, rec.DistrictName, rec.Pincode, rec.Centers, rec.Chunks)
	if err != nil {
		logger.Searches.Warn("record failed",
			slog.String("event", "record"),
			slog.String("method", rec.Method),
			slog.String("err", err.Error()),
		)
		return
	}
	if logger.ShouldSampleDebug() {
		logger.Searches.Debug("record ok",
			slog.String("event", "record"),
			slog.String("method", rec.Method),
			slog.Int("centers", rec.Centers),
			slog.Duration("duration", logger.Took(start)),
		)
	}
}

// Stats aggregates the audit trail for the admin /stats command.
type Stats struct {
	TotalSearches  int `db:"total_searches"`
	UniqueUsers    int `db:"unique_users"`
	SearchesToday  int `db:"searches_today"`
	EmptySearches  int `db:"empty_searches"`
	DistrictMethod int `db:"district_method"`
	PincodeMethod  int `db:"pincode_method"`
	FilteredMethod int `db:"filtered_method"`
}

const statsQuery = `
SELECT
	COUNT(*)                                                        AS total_searches,
	COUNT(DISTINCT user_id)                                         AS unique_users,
	COUNT(*) FILTER (WHERE created_at >= CURRENT_DATE)              AS searches_today,
	COUNT(*) FILTER (WHERE centers = 0)                             AS empty_searches,
	COUNT(*) FILTER (WHERE method = 'district')                     AS district_method,
	COUNT(*) FILTER (WHERE method = 'pincode')                      AS pincode_method,
	COUNT(*) FILTER (WHERE method = 'district_pincode')             AS filtered_method
FROM searches`

// Fetch returns aggregate stats over all recorded searches.
func (r *Repo) Fetch(ctx context.Context) (Stats, error) {
	var s Stats
	if !r.Enabled() {
		return s, nil
	}
	if err := r.db.GetContext(ctx, &s, statsQuery); err != nil {
		return Stats{}, err
	}
	return s, nil
}
