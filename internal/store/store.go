// Package store writes normalized jobs to the relational store and reads the
// per-user source settings. Two drivers exist: Postgres over pgx and the
// Supabase REST API over postgrest.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
)

const (
	jobsTable     = "jobs"
	listingsTable = "job_listings"
	settingsTable = "job_source_settings"

	jobsConflict     = "user_id,source_id"
	listingsConflict = "source_url"
)

// Upserter writes jobs with last-write-wins conflict handling
type Upserter interface {
	// UpsertJobs writes to jobs, keyed by (user_id, source_id)
	UpsertJobs(ctx context.Context, jobs []*domain.Job) (int, error)
	// UpsertListings writes to job_listings, keyed by source_url
	UpsertListings(ctx context.Context, jobs []*domain.Job) (int, error)
}

// SettingsReader reads job_source_settings. A user without a row yields
// nil settings and no error.
type SettingsReader interface {
	SourceSettings(ctx context.Context, userID string) (*domain.SourceSettings, error)
}

// Store is a full driver
type Store interface {
	Upserter
	SettingsReader
	Ping(ctx context.Context) error
	Close()
}

// Config selects and configures a driver
type Config struct {
	Driver      string // "postgres" or "supabase"
	DatabaseURL string
	MaxConns    int32
	SupabaseURL string
	SupabaseKey string
}

// Open connects the configured driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.MaxConns)
	case "supabase":
		return NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}
