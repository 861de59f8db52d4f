package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"idealens/internal/domain/analysis"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
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
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Save insert/update Record. Breakdown dan details disimpan sebagai JSON.
// The status assignment runs last so the other IF conditions still see the
// stored status: a terminal row keeps its columns when a stale in_progress
// write arrives.
func (r *RecordRepository) Save(ctx context.Context, rec *analysis.Record) error {
	breakdown, err := json.Marshal(rec.Breakdown)
	if err != nil {
		return err
	}
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO analysis_records
(id, kind, status, business_idea, score, breakdown, confidence, reasoning,
 details, report_url, error, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 score       = IF(status IN ('completed','failed') AND VALUES(status) = 'in_progress', score, VALUES(score)),
 breakdown   = IF(status IN ('completed','failed') AND VALUES(status) = 'in_progress', breakdown, VALUES(breakdown)),
 confidence  = IF(status IN ('completed','failed') AND VALUES(status) = 'in_progress', confidence, VALUES(confidence)),
 reasoning   = IF(status IN ('completed','failed') AND VALUES(status) = 'in_progress', reasoning, VALUES(reasoning)),
 details     = IF(status IN ('completed','failed') AND VALUES(status) = 'in_progress', details, VALUES(details)),
 report_url  = IF(status IN ('completed','failed') AND VALUES(status) = 'in_progress', report_url, VALUES(report_url)),
 error       = IF(status IN ('completed','failed') AND VALUES(status) = 'in_progress', error, VALUES(error)),
 updated_at  = VALUES(updated_at),
 status      = IF(status IN ('completed','failed') AND VALUES(status) = 'in_progress', status, VALUES(status));
`
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = r.db.ExecContext(ctx, q,
		rec.ID, rec.Kind, rec.Status, rec.BusinessIdea, rec.Score,
		string(breakdown), rec.Confidence, rec.Reasoning,
		string(details), rec.ReportURL, rec.Error, created, rec.UpdatedAt,
	)
	return err
}

func (r *RecordRepository) Get(ctx context.Context, id analysis.ID) (*analysis.Record, error) {
	const q = `
SELECT id, kind, status, business_idea, score, breakdown, confidence, reasoning,
       details, report_url, error, created_at, updated_at
FROM analysis_records
WHERE id=? LIMIT 1;
`
	row := r.db.QueryRowContext(ctx, q, id)

	var rec analysis.Record
	var breakdown, details string
	err := row.Scan(
		&rec.ID, &rec.Kind, &rec.Status, &rec.BusinessIdea, &rec.Score,
		&breakdown, &rec.Confidence, &rec.Reasoning,
		&details, &rec.ReportURL, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt,
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

// UpdateStatus hanya update kolom status; guarded the same way as Save.
func (r *RecordRepository) UpdateStatus(ctx context.Context, id analysis.ID, status analysis.Status) error {
	const q = `
UPDATE analysis_records
SET status = ?, updated_at = ?
WHERE id = ?
  AND NOT (status IN ('completed','failed') AND ? = 'in_progress');`
	_, err := r.db.ExecContext(ctx, q, status, time.Now(), id, status)
	return err
}

func (r *RecordRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
