package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    landing_page_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    winning_variant_id TEXT,
    start_date INTEGER NOT NULL,
    end_date INTEGER,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_experiments_page ON experiments(landing_page_id);
CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_experiments_page_active
    ON experiments(landing_page_id) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS variants (
    experiment_id TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    variant_id TEXT NOT NULL,
    content TEXT NOT NULL,
    impressions INTEGER NOT NULL DEFAULT 0,
    conversions INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (experiment_id, variant_id),
    FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);

CREATE INDEX IF NOT EXISTS idx_variants_experiment ON variants(experiment_id, ordinal);
`

func Open(dbPath string) (*SQLiteStore, error) {
	// busy_timeout rides the DSN so it applies to every pooled connection,
	// not just the one the Exec below happens to run on.
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Writers wait for the write lock instead of failing with SQLITE_BUSY
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, landingPageID string, contents []ContentPayload) (*Experiment, error) {
	if len(contents) < 2 {
		return nil, ErrTooFewVariants
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The partial unique index enforces this too; checking inside the
	// transaction lets us return a clean sentinel instead of a driver error.
	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM experiments WHERE landing_page_id = ? AND status = 'active'`,
		landingPageID,
	).Scan(&active)
	if err != nil {
		return nil, fmt.Errorf("failed to check for active experiment: %w", err)
	}
	if active > 0 {
		return nil, ErrActiveExperimentExists
	}

	id := uuid.NewString()
	now := time.Now().Unix()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO experiments (id, landing_page_id, status, start_date, created_at, updated_at)
		 VALUES (?, ?, 'active', ?, ?, ?)`,
		id, landingPageID, now, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert experiment: %w", err)
	}

	variants := make([]Variant, len(contents))
	for i, content := range contents {
		contentJSON, err := json.Marshal(content)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal variant content: %w", err)
		}

		variantID := VariantID(i)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO variants (experiment_id, ordinal, variant_id, content)
			 VALUES (?, ?, ?, ?)`,
			id, i, variantID, string(contentJSON),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert variant: %w", err)
		}

		variants[i] = Variant{ID: variantID, Content: content}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit experiment: %w", err)
	}

	return &Experiment{
		ID:            id,
		LandingPageID: landingPageID,
		Status:        StatusActive,
		StartDate:     time.Unix(now, 0),
		Variants:      variants,
		CreatedAt:     time.Unix(now, 0),
		UpdatedAt:     time.Unix(now, 0),
	}, nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, experimentID string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, landing_page_id, status, winning_variant_id, start_date, end_date, created_at, updated_at
		 FROM experiments WHERE id = ?`, experimentID,
	)

	exp, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}

	if err := s.loadVariants(ctx, exp); err != nil {
		return nil, err
	}

	return exp, nil
}

func (s *SQLiteStore) GetActiveExperiment(ctx context.Context, landingPageID string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, landing_page_id, status, winning_variant_id, start_date, end_date, created_at, updated_at
		 FROM experiments WHERE landing_page_id = ? AND status = 'active'`, landingPageID,
	)

	exp, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		// No active experiment is a normal outcome.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active experiment: %w", err)
	}

	if err := s.loadVariants(ctx, exp); err != nil {
		return nil, err
	}

	return exp, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	return s.list(ctx,
		`SELECT id, landing_page_id, status, winning_variant_id, start_date, end_date, created_at, updated_at
		 FROM experiments ORDER BY created_at DESC`,
	)
}

func (s *SQLiteStore) ListExperimentsByPage(ctx context.Context, landingPageID string) ([]*Experiment, error) {
	return s.list(ctx,
		`SELECT id, landing_page_id, status, winning_variant_id, start_date, end_date, created_at, updated_at
		 FROM experiments WHERE landing_page_id = ? ORDER BY created_at DESC`,
		landingPageID,
	)
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...any) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		experiments = append(experiments, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}

	for _, exp := range experiments {
		if err := s.loadVariants(ctx, exp); err != nil {
			return nil, err
		}
	}

	return experiments, nil
}

func (s *SQLiteStore) IncrementImpression(ctx context.Context, experimentID, variantID string) error {
	return s.increment(ctx, "impressions", experimentID, variantID)
}

func (s *SQLiteStore) IncrementConversion(ctx context.Context, experimentID, variantID string) error {
	return s.increment(ctx, "conversions", experimentID, variantID)
}

// increment adds 1 to a variant counter in a single guarded UPDATE. The
// read and the write happen inside one statement, so concurrent callers
// can never lose updates, and the active-status guard makes increments
// against completed experiments a silent no-op.
func (s *SQLiteStore) increment(ctx context.Context, column, experimentID, variantID string) error {
	query := fmt.Sprintf(
		`UPDATE variants SET %s = %s + 1
		 WHERE experiment_id = ?1 AND variant_id = ?2
		   AND EXISTS (SELECT 1 FROM experiments WHERE id = ?1 AND status = 'active')`,
		column, column,
	)

	if _, err := s.db.ExecContext(ctx, query, experimentID, variantID); err != nil {
		return fmt.Errorf("failed to increment %s: %w", column, err)
	}

	return nil
}

func (s *SQLiteStore) CompleteExperiment(ctx context.Context, experimentID, winningVariantID string) error {
	now := time.Now().Unix()

	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments
		 SET status = 'completed', winning_variant_id = NULLIF(?, ''), end_date = ?, updated_at = ?
		 WHERE id = ? AND status = 'active'`,
		winningVariantID, now, now, experimentID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete experiment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Either the experiment does not exist or it is already completed.
		var status string
		err := s.db.QueryRowContext(ctx,
			`SELECT status FROM experiments WHERE id = ?`, experimentID,
		).Scan(&status)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check experiment status: %w", err)
		}
		return ErrAlreadyCompleted
	}

	return nil
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*Experiment, error) {
	var exp Experiment
	var winningVariantID sql.NullString
	var startDate, createdAt, updatedAt int64
	var endDate sql.NullInt64

	err := row.Scan(&exp.ID, &exp.LandingPageID, &exp.Status, &winningVariantID,
		&startDate, &endDate, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if winningVariantID.Valid {
		exp.WinningVariantID = winningVariantID.String
	}
	if endDate.Valid {
		t := time.Unix(endDate.Int64, 0)
		exp.EndDate = &t
	}
	exp.StartDate = time.Unix(startDate, 0)
	exp.CreatedAt = time.Unix(createdAt, 0)
	exp.UpdatedAt = time.Unix(updatedAt, 0)

	return &exp, nil
}

func (s *SQLiteStore) loadVariants(ctx context.Context, exp *Experiment) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT variant_id, content, impressions, conversions
		 FROM variants WHERE experiment_id = ? ORDER BY ordinal`,
		exp.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to load variants: %w", err)
	}
	defer rows.Close()

	exp.Variants = nil
	for rows.Next() {
		var v Variant
		var contentJSON string
		if err := rows.Scan(&v.ID, &contentJSON, &v.Impressions, &v.Conversions); err != nil {
			return fmt.Errorf("failed to scan variant: %w", err)
		}
		if err := json.Unmarshal([]byte(contentJSON), &v.Content); err != nil {
			return fmt.Errorf("failed to unmarshal variant content: %w", err)
		}
		// Derived, recomputed on every read so it is never stale.
		v.ConversionRate = v.Rate()
		exp.Variants = append(exp.Variants, v)
	}

	return rows.Err()
}
