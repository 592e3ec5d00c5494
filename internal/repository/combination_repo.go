package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"dailyalchemy/internal/apperr"
	"dailyalchemy/internal/database"
	"dailyalchemy/internal/models"
	"dailyalchemy/internal/normalize"
)

const combinationColumns = `id, combo_key, element_a, element_b, result_name, result_emoji,
	oracle_generated, admin_defined, reserved, discoverer_user_id, use_count, created_at`

var combinationInsertColumns = []string{
	"combo_key", "element_a", "element_b", "result_name", "result_norm", "result_emoji",
	"oracle_generated", "admin_defined", "reserved", "discoverer_user_id", "use_count", "created_at",
}

// InsertOutcome reports whether InsertIfAbsent admitted the record. When
// Inserted is false, Record is the row that already held the key.
type InsertOutcome struct {
	Inserted bool
	Record   *models.CombinationRecord
}

// CombinationRepository is the catalog store for discovered combinations
type CombinationRepository struct {
	db database.DBTX
}

// NewCombinationRepository creates a new combination repository
func NewCombinationRepository(db database.DBTX) *CombinationRepository {
	return &CombinationRepository{db: db}
}

// LookupByKey retrieves a record by its combination key. Returns (nil, nil)
// when the key is unknown.
func (r *CombinationRepository) LookupByKey(ctx context.Context, key normalize.Key) (*models.CombinationRecord, error) {
	query := "SELECT " + combinationColumns + " FROM element_combinations WHERE combo_key = ?"
	rec, err := scanCombination(r.db.QueryRowContext(ctx, query, key.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup combination: %w", err)
	}
	return rec, nil
}

// LookupByResult returns every non-placeholder record whose result matches
// name case-insensitively, oldest first.
func (r *CombinationRepository) LookupByResult(ctx context.Context, name string) ([]models.CombinationRecord, error) {
	return r.lookupByResult(ctx, name, false)
}

// LookupByResultIncludingReserved also returns admin placeholders. Only path
// save needs it.
func (r *CombinationRepository) LookupByResultIncludingReserved(ctx context.Context, name string) ([]models.CombinationRecord, error) {
	return r.lookupByResult(ctx, name, true)
}

func (r *CombinationRepository) lookupByResult(ctx context.Context, name string, includeReserved bool) ([]models.CombinationRecord, error) {
	norm, err := normalize.Name(name)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + combinationColumns + " FROM element_combinations WHERE result_norm = ?"
	if !includeReserved {
		query += " AND reserved = ?"
	}
	query += " ORDER BY created_at ASC, id ASC"

	args := []any{norm}
	if !includeReserved {
		args = append(args, false)
	}
	return r.queryCombinations(ctx, query, args...)
}

// InsertIfAbsent admits rec unless its key already exists. It never
// overwrites: on conflict the stored record is returned instead.
func (r *CombinationRepository) InsertIfAbsent(ctx context.Context, rec *models.CombinationRecord) (InsertOutcome, error) {
	resultNorm, err := validateRecord(rec)
	if err != nil {
		return InsertOutcome{}, err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var discoverer any
	if rec.DiscovererUserID != nil {
		discoverer = *rec.DiscovererUserID
	}

	dialect := r.db.GetDialect()
	query := dialect.InsertIgnore("element_combinations", combinationInsertColumns, []string{"combo_key"})
	result, err := r.db.ExecContext(ctx, query,
		rec.Key,
		rec.ElementA,
		rec.ElementB,
		rec.ResultName,
		resultNorm,
		rec.ResultEmoji,
		rec.Source.OracleGenerated,
		rec.Source.AdminDefined,
		rec.Reserved,
		discoverer,
		rec.UseCount,
		rec.CreatedAt.UTC(),
	)
	inserted := false
	switch {
	case err != nil && dialect.IsUniqueViolation(err):
	case err != nil:
		return InsertOutcome{}, fmt.Errorf("failed to insert combination: %w", err)
	default:
		n, err := result.RowsAffected()
		if err != nil {
			return InsertOutcome{}, fmt.Errorf("failed to read rows affected: %w", err)
		}
		inserted = n > 0
	}

	stored, err := r.LookupByKey(ctx, normalize.Key(rec.Key))
	if err != nil {
		return InsertOutcome{}, err
	}
	if stored == nil {
		return InsertOutcome{}, fmt.Errorf("combination %q missing after insert", rec.Key)
	}
	return InsertOutcome{Inserted: inserted, Record: stored}, nil
}

// IncrementUseCount bumps the counter for key. Missing keys are a no-op.
func (r *CombinationRepository) IncrementUseCount(ctx context.Context, key normalize.Key) error {
	query := "UPDATE element_combinations SET use_count = use_count + 1 WHERE combo_key = ?"
	if _, err := r.db.ExecContext(ctx, query, key.String()); err != nil {
		return fmt.Errorf("failed to increment use count: %w", err)
	}
	return nil
}

// ListTopByUseCount returns the n most used non-placeholder records.
func (r *CombinationRepository) ListTopByUseCount(ctx context.Context, n int) ([]models.CombinationRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	query := "SELECT " + combinationColumns + ` FROM element_combinations
		WHERE reserved = ?
		ORDER BY use_count DESC, created_at ASC, id ASC
		LIMIT ?`
	return r.queryCombinations(ctx, query, false, n)
}

// ListAll returns a snapshot of the catalog, oldest first.
func (r *CombinationRepository) ListAll(ctx context.Context, includeReserved bool) ([]models.CombinationRecord, error) {
	query := "SELECT " + combinationColumns + " FROM element_combinations"
	var args []any
	if !includeReserved {
		query += " WHERE reserved = ?"
		args = append(args, false)
	}
	query += " ORDER BY created_at ASC, id ASC"
	return r.queryCombinations(ctx, query, args...)
}

// Count returns the number of non-placeholder records.
func (r *CombinationRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM element_combinations WHERE reserved = ?", false).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count combinations: %w", err)
	}
	return count, nil
}

// Delete removes the record for key and returns it, or (nil, nil) if absent.
func (r *CombinationRepository) Delete(ctx context.Context, key normalize.Key) (*models.CombinationRecord, error) {
	existing, err := r.LookupByKey(ctx, key)
	if err != nil || existing == nil {
		return nil, err
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM element_combinations WHERE combo_key = ?", key.String()); err != nil {
		return nil, fmt.Errorf("failed to delete combination: %w", err)
	}
	return existing, nil
}

func (r *CombinationRepository) queryCombinations(ctx context.Context, query string, args ...any) ([]models.CombinationRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query combinations: %w", err)
	}
	defer rows.Close()

	var records []models.CombinationRecord
	for rows.Next() {
		rec, err := scanCombination(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan combination: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate combinations: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCombination(row rowScanner) (*models.CombinationRecord, error) {
	rec := &models.CombinationRecord{}
	var discoverer sql.NullString
	err := row.Scan(
		&rec.ID,
		&rec.Key,
		&rec.ElementA,
		&rec.ElementB,
		&rec.ResultName,
		&rec.ResultEmoji,
		&rec.Source.OracleGenerated,
		&rec.Source.AdminDefined,
		&rec.Reserved,
		&discoverer,
		&rec.UseCount,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if discoverer.Valid {
		rec.DiscovererUserID = &discoverer.String
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

// validateRecord enforces the catalog invariants and returns the normalized
// result name.
func validateRecord(rec *models.CombinationRecord) (string, error) {
	if rec.Source.AdminDefined && rec.DiscovererUserID != nil {
		return "", apperr.New(apperr.KindInvalidRequest, "admin records have no discoverer")
	}
	if strings.TrimSpace(rec.ResultEmoji) == "" {
		return "", apperr.New(apperr.KindInvalidRequest, "result emoji is empty")
	}
	resultNorm, err := normalize.Name(rec.ResultName)
	if err != nil {
		return "", err
	}
	if models.IsStarterName(resultNorm) {
		return "", apperr.New(apperr.KindInvalidName, "starter %q cannot be a result", resultNorm)
	}
	if rec.UseCount < 0 {
		return "", apperr.New(apperr.KindInvalidRequest, "use count is negative")
	}

	key := normalize.Key(rec.Key)
	if key.IsReserved() {
		if !rec.Reserved || rec.ElementA != normalize.ReservedOperandA || rec.ElementB != normalize.ReservedOperandB {
			return "", apperr.New(apperr.KindInvalidRequest, "placeholder %q must use reserved operands", rec.Key)
		}
		return resultNorm, nil
	}
	if rec.Reserved {
		return "", apperr.New(apperr.KindInvalidRequest, "only placeholder keys may be reserved")
	}
	derived, err := normalize.Combination(rec.ElementA, rec.ElementB)
	if err != nil {
		return "", err
	}
	if derived != key {
		return "", apperr.New(apperr.KindInvalidRequest, "key %q does not match operands (%s)", rec.Key, derived)
	}
	return resultNorm, nil
}
