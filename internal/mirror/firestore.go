// Package mirror copies ingested listings into a secondary document store.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	firestore "google.golang.org/api/firestore/v1"
	"google.golang.org/api/option"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/normalize"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/store"
)

const (
	datastoreScope = "https://www.googleapis.com/auth/datastore"

	// Firestore rejects commits with more than 500 writes
	maxBatch = 500

	maxDescriptionRunes = 20000
)

// Mirror pushes jobs to a secondary store and reports how many were written
type Mirror interface {
	Push(ctx context.Context, jobs []*domain.Job) (int, error)
}

// Config configures the Firestore mirror
type Config struct {
	ProjectID       string
	Database        string
	Collection      string
	CredentialsJSON []byte
	BatchSize       int
	// Endpoint overrides the API root, used against emulators
	Endpoint string
}

// FirestoreMirror writes one document per listing through the Firestore
// REST API. Documents are keyed by a hash of the listing URL so a re-run
// overwrites instead of duplicating.
type FirestoreMirror struct {
	svc        *firestore.Service
	database   string
	collection string
	batchSize  int
	logger     *zap.Logger
	now        func() time.Time
}

// NewFirestore authenticates with the service-account JSON and builds the
// API client. Without credentials the ambient default credentials are used.
func NewFirestore(ctx context.Context, cfg Config, logger *zap.Logger) (*FirestoreMirror, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("firestore project id is required")
	}

	var opts []option.ClientOption
	if len(cfg.CredentialsJSON) > 0 {
		jwt, err := google.JWTConfigFromJSON(cfg.CredentialsJSON, datastoreScope)
		if err != nil {
			return nil, fmt.Errorf("parse firestore credentials: %w", err)
		}
		opts = append(opts, option.WithHTTPClient(jwt.Client(ctx)))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := firestore.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewService: %w", err)
	}
	return newFirestore(svc, cfg, logger), nil
}

func newFirestore(svc *firestore.Service, cfg Config, logger *zap.Logger) *FirestoreMirror {
	database := cfg.Database
	if database == "" {
		database = "(default)"
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "job_listings"
	}
	batch := cfg.BatchSize
	if batch <= 0 || batch > maxBatch {
		batch = maxBatch
	}
	return &FirestoreMirror{
		svc:        svc,
		database:   fmt.Sprintf("projects/%s/databases/%s", cfg.ProjectID, database),
		collection: collection,
		batchSize:  batch,
		logger:     logger,
		now:        time.Now,
	}
}

// Push commits jobs in batches. A failed batch is logged and skipped; the
// returned error joins every batch failure.
func (m *FirestoreMirror) Push(ctx context.Context, jobs []*domain.Job) (int, error) {
	now := m.now().UTC()

	var (
		writes []*firestore.Write
		pushed int
		errs   []error
	)
	flush := func() {
		if len(writes) == 0 {
			return
		}
		req := &firestore.CommitRequest{Writes: writes}
		if _, err := m.svc.Projects.Databases.Documents.Commit(m.database, req).Context(ctx).Do(); err != nil {
			m.logger.Warn("Firestore commit failed", zap.Int("writes", len(writes)), zap.Error(err))
			errs = append(errs, err)
		} else {
			pushed += len(writes)
		}
		writes = nil
	}

	for _, j := range jobs {
		if j == nil {
			continue
		}
		writes = append(writes, &firestore.Write{Update: m.document(j, now)})
		if len(writes) == m.batchSize {
			flush()
		}
	}
	flush()

	m.logger.Info("Firestore mirror complete", zap.Int("pushed", pushed), zap.Int("batches_failed", len(errs)))
	if len(errs) > 0 {
		return pushed, fmt.Errorf("firestore mirror: %w", errors.Join(errs...))
	}
	return pushed, nil
}

// DocumentID is the stable document key for a job
func DocumentID(j *domain.Job) string {
	return normalize.SyntheticID(store.ListingURL(j))
}

func (m *FirestoreMirror) document(j *domain.Job, now time.Time) *firestore.Document {
	return &firestore.Document{
		Name:   fmt.Sprintf("%s/documents/%s/%s", m.database, m.collection, DocumentID(j)),
		Fields: Fields(j, now),
	}
}

// Fields converts a job into Firestore typed values. Unknown optional
// values are stored as explicit nulls.
func Fields(j *domain.Job, now time.Time) map[string]firestore.Value {
	fields := map[string]firestore.Value{
		"source_url":      stringValue(store.ListingURL(j)),
		"source":          stringValue(string(j.Source)),
		"external_id":     stringValue(j.SourceID),
		"title":           stringValue(j.Title),
		"company":         stringValue(j.Company),
		"location":        stringValue(j.Location),
		"description":     stringValue(normalize.Truncate(j.Description, maxDescriptionRunes)),
		"employment_type": optionalString(j.EmploymentType),
		"salary_min":      intValue(j.SalaryMin),
		"salary_max":      intValue(j.SalaryMax),
		"salary_currency": optionalString(string(j.SalaryCurrency)),
		"salary_period":   optionalString(string(j.SalaryPeriod)),
		"tags":            arrayValue(j.Tags),
		"updated_at":      timeValue(now),
	}
	if j.PostedAt.IsZero() {
		fields["posted_at"] = timeValue(now)
	} else {
		fields["posted_at"] = timeValue(j.PostedAt)
	}
	if j.ExpiresAt != nil {
		fields["expires_at"] = timeValue(*j.ExpiresAt)
	} else {
		fields["expires_at"] = nullValue()
	}
	return fields
}

// an empty string must still be sent as a string, not a typeless value
func stringValue(s string) firestore.Value {
	return firestore.Value{StringValue: s, ForceSendFields: []string{"StringValue"}}
}

func optionalString(s string) firestore.Value {
	if s == "" {
		return nullValue()
	}
	return stringValue(s)
}

func intValue(v *int) firestore.Value {
	if v == nil {
		return nullValue()
	}
	// a zero IntegerValue is dropped by omitempty unless forced
	return firestore.Value{IntegerValue: int64(*v), ForceSendFields: []string{"IntegerValue"}}
}

func timeValue(t time.Time) firestore.Value {
	return firestore.Value{TimestampValue: t.UTC().Format(time.RFC3339Nano)}
}

func arrayValue(items []string) firestore.Value {
	values := make([]*firestore.Value, 0, len(items))
	for _, s := range items {
		v := stringValue(s)
		values = append(values, &v)
	}
	return firestore.Value{ArrayValue: &firestore.ArrayValue{Values: values}}
}

func nullValue() firestore.Value {
	return firestore.Value{NullValue: "NULL_VALUE"}
}
