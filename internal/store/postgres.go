package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
)

const upsertJobSQL = `
INSERT INTO jobs (
	user_id, source_type, source_id, title, company, description, location,
	employment_type, experience_level, salary_min, salary_max, salary_currency,
	salary_period, apply_url, posted_at, expires_at, tags, is_job_posting,
	raw_data, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19::jsonb, $20
)
ON CONFLICT (user_id, source_id) DO UPDATE SET
	source_type      = EXCLUDED.source_type,
	title            = EXCLUDED.title,
	company          = EXCLUDED.company,
	description      = EXCLUDED.description,
	location         = EXCLUDED.location,
	employment_type  = EXCLUDED.employment_type,
	experience_level = EXCLUDED.experience_level,
	salary_min       = EXCLUDED.salary_min,
	salary_max       = EXCLUDED.salary_max,
	salary_currency  = EXCLUDED.salary_currency,
	salary_period    = EXCLUDED.salary_period,
	apply_url        = EXCLUDED.apply_url,
	posted_at        = EXCLUDED.posted_at,
	expires_at       = EXCLUDED.expires_at,
	tags             = EXCLUDED.tags,
	is_job_posting   = EXCLUDED.is_job_posting,
	raw_data         = EXCLUDED.raw_data,
	updated_at       = EXCLUDED.updated_at`

const upsertListingSQL = `
INSERT INTO job_listings (
	source_url, source, external_id, title, company, location,
	full_job_description, employment_type, salary_min, salary_max,
	salary_currency, posted_at, expires_at, tags, raw_data, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::jsonb, $16
)
ON CONFLICT (source_url) DO UPDATE SET
	source               = EXCLUDED.source,
	external_id          = EXCLUDED.external_id,
	title                = EXCLUDED.title,
	company              = EXCLUDED.company,
	location             = EXCLUDED.location,
	full_job_description = EXCLUDED.full_job_description,
	employment_type      = EXCLUDED.employment_type,
	salary_min           = EXCLUDED.salary_min,
	salary_max           = EXCLUDED.salary_max,
	salary_currency      = EXCLUDED.salary_currency,
	posted_at            = EXCLUDED.posted_at,
	expires_at           = EXCLUDED.expires_at,
	tags                 = EXCLUDED.tags,
	raw_data             = EXCLUDED.raw_data,
	updated_at           = EXCLUDED.updated_at`

const selectSettingsSQL = `
SELECT user_id, COALESCE(enabled_default_sources, '{}'), COALESCE(allowed_domains, '{}')
FROM job_source_settings
WHERE user_id = $1`

// pgxConn is the subset of *pgxpool.Pool the driver uses
type pgxConn interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Postgres is the pgx driver
type Postgres struct {
	conn pgxConn
	now  func() time.Time
}

// NewPostgres creates and verifies a pgxpool connection pool.
func NewPostgres(ctx context.Context, databaseURL string, maxConns int32) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.ParseConfig: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return &Postgres{conn: pool, now: time.Now}, nil
}

// UpsertJobs sends one batched INSERT ... ON CONFLICT per distinct key.
func (p *Postgres) UpsertJobs(ctx context.Context, jobs []*domain.Job) (int, error) {
	rows := jobRows(jobs, p.now().UTC())
	if len(rows) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(upsertJobSQL,
			r.UserID, r.SourceType, r.SourceID, r.Title, r.Company, r.Description, r.Location,
			r.EmploymentType, r.ExperienceLevel, r.SalaryMin, r.SalaryMax, r.SalaryCurrency,
			r.SalaryPeriod, r.ApplyURL, r.PostedAt, r.ExpiresAt, r.Tags, r.IsJobPosting,
			string(r.RawData), r.UpdatedAt,
		)
	}
	return p.sendBatch(ctx, "upsert jobs", batch)
}

// UpsertListings writes to job_listings keyed by source_url.
func (p *Postgres) UpsertListings(ctx context.Context, jobs []*domain.Job) (int, error) {
	rows := listingRows(jobs, p.now().UTC())
	if len(rows) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(upsertListingSQL,
			r.SourceURL, r.Source, r.ExternalID, r.Title, r.Company, r.Location,
			r.FullJobDescription, r.EmploymentType, r.SalaryMin, r.SalaryMax,
			r.SalaryCurrency, r.PostedAt, r.ExpiresAt, r.Tags, string(r.RawData), r.UpdatedAt,
		)
	}
	return p.sendBatch(ctx, "upsert listings", batch)
}

func (p *Postgres) sendBatch(ctx context.Context, op string, batch *pgx.Batch) (int, error) {
	br := p.conn.SendBatch(ctx, batch)

	count := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return count, storageError(op, err)
		}
		count += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return count, storageError(op, err)
	}
	return count, nil
}

// SourceSettings reads one user's settings row.
func (p *Postgres) SourceSettings(ctx context.Context, userID string) (*domain.SourceSettings, error) {
	var s domain.SourceSettings
	err := p.conn.QueryRow(ctx, selectSettingsSQL, userID).Scan(&s.UserID, &s.EnabledDefaultSources, &s.AllowedDomains)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read source settings: %w", err)
	}
	return &s, nil
}

// Ping checks the pool
func (p *Postgres) Ping(ctx context.Context) error {
	return p.conn.Ping(ctx)
}

// Close closes the pool
func (p *Postgres) Close() {
	p.conn.Close()
}
