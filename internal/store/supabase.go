package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	postgrest "github.com/supabase-community/postgrest-go"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
)

// Supabase is the PostgREST driver. It needs the service-role key since it
// writes on behalf of every user.
type Supabase struct {
	client *postgrest.Client
	now    func() time.Time
}

// NewSupabase creates a PostgREST client for supabaseURL/rest/v1.
func NewSupabase(supabaseURL, serviceKey string) (*Supabase, error) {
	if supabaseURL == "" || serviceKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set")
	}

	client := postgrest.NewClient(strings.TrimSuffix(supabaseURL, "/")+"/rest/v1", "", map[string]string{
		"apikey":        serviceKey,
		"Authorization": "Bearer " + serviceKey,
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("init postgrest client: %w", client.ClientError)
	}

	return &Supabase{client: client, now: time.Now}, nil
}

// UpsertJobs upserts with on_conflict=user_id,source_id and merge-duplicates.
func (s *Supabase) UpsertJobs(ctx context.Context, jobs []*domain.Job) (int, error) {
	rows := jobRows(jobs, s.now().UTC())
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.upsert(ctx, jobsTable, jobsConflict, rows); err != nil {
		return 0, storageError("upsert jobs", err)
	}
	return len(rows), nil
}

// UpsertListings upserts with on_conflict=source_url.
func (s *Supabase) UpsertListings(ctx context.Context, jobs []*domain.Job) (int, error) {
	rows := listingRows(jobs, s.now().UTC())
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.upsert(ctx, listingsTable, listingsConflict, rows); err != nil {
		return 0, storageError("upsert listings", err)
	}
	return len(rows), nil
}

// upsert runs the request; postgrest-go has no context support, so ctx is
// only checked before sending.
func (s *Supabase) upsert(ctx context.Context, table, onConflict string, rows any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := s.client.From(table).Upsert(rows, onConflict, "minimal", "").Execute()
	return err
}

type settingsRow struct {
	UserID                string   `json:"user_id"`
	EnabledDefaultSources []string `json:"enabled_default_sources"`
	AllowedDomains        []string `json:"allowed_domains"`
}

// SourceSettings reads one user's settings row.
func (s *Supabase) SourceSettings(ctx context.Context, userID string) (*domain.SourceSettings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []settingsRow
	_, err := s.client.From(settingsTable).
		Select("user_id,enabled_default_sources,allowed_domains", "", false).
		Eq("user_id", userID).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("read source settings: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &domain.SourceSettings{
		UserID:                rows[0].UserID,
		EnabledDefaultSources: rows[0].EnabledDefaultSources,
		AllowedDomains:        rows[0].AllowedDomains,
	}, nil
}

// Ping reads a single settings row
func (s *Supabase) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := s.client.From(settingsTable).Select("user_id", "", false).Limit(1, "").Execute()
	return err
}

// Close is a no-op; the REST client holds no connections of its own.
func (s *Supabase) Close() {}
