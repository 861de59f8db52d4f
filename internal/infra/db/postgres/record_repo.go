package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"idealens/internal/domain/analysis"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		return nil, err
	}
	return db, nil
}

type RecordRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Save upserts the record. The ON CONFLICT WHERE clause drops stale
// in_progress writes against terminal rows.
func (r *RecordRepository) Save(ctx context.Context, rec *analysis.Record) error {
	breakdown, err := json.Marshal(rec.Breakdown)
	if err != nil {
		return err
	}
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return err
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	query := r.sb.Insert("analysis_records").
		Columns("id", "kind", "status", "business_idea", "score", "breakdown",
			"confidence", "reasoning", "details", "report_url", "error",
			"created_at", "updated_at").
		Values(rec.ID, rec.Kind, rec.Status, rec.BusinessIdea, rec.Score, string(breakdown),
			rec.Confidence, rec.Reasoning, string(details), rec.ReportURL, rec.Error,
			created, rec.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
 status = EXCLUDED.status,
 score = EXCLUDED.score,
 breakdown = EXCLUDED.breakdown,
 confidence = EXCLUDED.confidence,
 reasoning = EXCLUDED.reasoning,
 details = EXCLUDED.details,
 report_url = EXCLUDED.report_url,
 error = EXCLUDED.error,
 updated_at = EXCLUDED.updated_at
WHERE analysis_records.status NOT IN ('completed','failed')
   OR EXCLUDED.status IN ('completed','failed')`)

	_, err = query.RunWith(r.db).ExecContext(ctx)
	return err
}

func (r *RecordRepository) Get(ctx context.Context, id analysis.ID) (*analysis.Record, error) {
	query := r.sb.Select("id", "kind", "status", "business_idea", "score", "breakdown",
		"confidence", "reasoning", "details", "report_url", "error",
		"created_at", "updated_at").
		From("analysis_records").
		Where(sq.Eq{"id": id}).
		Limit(1)

	var rec analysis.Record
	var breakdown, details string
	err := query.RunWith(r.db).QueryRowContext(ctx).Scan(
		&rec.ID, &rec.Kind, &rec.Status, &rec.BusinessIdea, &rec.Score, &breakdown,
		&rec.Confidence, &rec.Reasoning, &details, &rec.ReportURL, &rec.Error,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, analysis.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if breakdown != "" {
		_ = json.Unmarshal([]byte(breakdown), &rec.Breakdown)
	}
	if details != "" {
		_ = json.Unmarshal([]byte(details), &rec.Details)
	}
	return &rec, nil
}

func (r *RecordRepository) UpdateStatus(ctx context.Context, id analysis.ID, status analysis.Status) error {
	query := r.sb.Update("analysis_records").
		Set("status", status).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id}).
		Where(sq.Expr(
			"NOT (status IN ('completed','failed') AND ? = 'in_progress')", status))

	_, err := query.RunWith(r.db).ExecContext(ctx)
	return err
}

func (r *RecordRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
