package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"SalongDriftSaas/internal/config"
	"SalongDriftSaas/internal/store"
)

// Store is the pgx-backed store.Store. Row scans page through results in
// chunks of config.PageSize; storage enforces a hard page limit so a large
// period can never be fetched in one call.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Numeric columns are read as text and parsed, so money survives the round
// trip without float conversion.
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ---- master data ----

const salonColumns = `id, name, member_number, org_number, active`

func scanSalon(row pgx.Row) (*store.Salon, error) {
	var v store.Salon
	err := row.Scan(&v.ID, &v.Name, &v.MemberNumber, &v.OrgNumber, &v.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) SalonByID(ctx context.Context, id uuid.UUID) (*store.Salon, error) {
	return scanSalon(s.pool.QueryRow(ctx,
		`SELECT `+salonColumns+` FROM salons WHERE id = $1`, id))
}

func (s *Store) SalonByMemberNumber(ctx context.Context, code string) (*store.Salon, error) {
	return scanSalon(s.pool.QueryRow(ctx,
		`SELECT `+salonColumns+` FROM salons WHERE member_number = $1 AND active = true`, code))
}

func (s *Store) SalonByOrgNumber(ctx context.Context, orgNumber string) (*store.Salon, error) {
	return scanSalon(s.pool.QueryRow(ctx,
		`SELECT `+salonColumns+` FROM salons WHERE org_number = $1 AND active = true`, orgNumber))
}

func (s *Store) SupplierByID(ctx context.Context, id uuid.UUID) (*store.Supplier, error) {
	var v store.Supplier
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, active, cumulative_reporting, parser_key, match_by
		 FROM suppliers WHERE id = $1`, id).
		Scan(&v.ID, &v.Name, &v.Active, &v.CumulativeReporting, &v.ParserKey, &v.MatchBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) Suppliers(ctx context.Context, activeOnly bool) ([]store.Supplier, error) {
	q := `SELECT id, name, active, cumulative_reporting, parser_key, match_by FROM suppliers`
	if activeOnly {
		q += ` WHERE active = true`
	}
	q += ` ORDER BY name`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Supplier
	for rows.Next() {
		var v store.Supplier
		if err := rows.Scan(&v.ID, &v.Name, &v.Active, &v.CumulativeReporting, &v.ParserKey, &v.MatchBy); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) BrandsBySupplier(ctx context.Context, supplierID uuid.UUID) ([]store.Brand, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, supplier_id, name FROM brands WHERE supplier_id = $1 ORDER BY name`, supplierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Brand
	for rows.Next() {
		var v store.Brand
		if err := rows.Scan(&v.ID, &v.SupplierID, &v.Name); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) ActiveRules(ctx context.Context, supplierID *uuid.UUID) ([]store.BonusRule, error) {
	q := `SELECT id, supplier_id, brand_id, percentage::text, rule_type, active
	      FROM bonus_rules WHERE active = true`
	args := []interface{}{}
	if supplierID != nil {
		q += ` AND supplier_id = $1`
		args = append(args, *supplierID)
	}
	q += ` ORDER BY id`
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.BonusRule
	for rows.Next() {
		var v store.BonusRule
		var pct string
		if err := rows.Scan(&v.ID, &v.SupplierID, &v.BrandID, &pct, &v.RuleType, &v.Active); err != nil {
			return nil, err
		}
		v.Percentage = parseDecimal(pct)
		out = append(out, v)
	}
	return out, rows.Err()
}

// ---- identifier mappings ----

func (s *Store) MappingsBySupplier(ctx context.Context, supplierID uuid.UUID) ([]store.IdentifierMapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT supplier_id, customer_number, salon_id, mapping_type
		 FROM supplier_identifier_mappings WHERE supplier_id = $1`, supplierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.IdentifierMapping
	for rows.Next() {
		var v store.IdentifierMapping
		if err := rows.Scan(&v.SupplierID, &v.CustomerNumber, &v.SalonID, &v.MappingType); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) ReplaceMapping(ctx context.Context, m store.IdentifierMapping) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin mapping replace: %w", err)
	}
	defer tx.Rollback(ctx)

	// At most one mapping per (supplier, customer number); the old one is
	// removed first so a correction is possible.
	if _, err := tx.Exec(ctx,
		`DELETE FROM supplier_identifier_mappings WHERE supplier_id = $1 AND customer_number = $2`,
		m.SupplierID, m.CustomerNumber); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO supplier_identifier_mappings (supplier_id, customer_number, salon_id, mapping_type)
		 VALUES ($1, $2, $3, $4)`,
		m.SupplierID, m.CustomerNumber, m.SalonID, m.MappingType); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ---- import batches ----

func (s *Store) ReplaceBatch(ctx context.Context, batch store.ImportBatch, rows []store.ImportedRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM imported_sale_rows WHERE batch_id IN
		   (SELECT id FROM import_batches WHERE supplier_id = $1 AND period = $2)`,
		batch.SupplierID, batch.Period); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM import_batches WHERE supplier_id = $1 AND period = $2`,
		batch.SupplierID, batch.Period); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO import_batches
		   (id, supplier_id, period, file_name, file_hash, status, row_count, matched_count, error_count, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		batch.ID, batch.SupplierID, batch.Period, batch.FileName, batch.FileHash,
		batch.Status, batch.RowCount, batch.MatchedCount, batch.ErrorCount, batch.Note, batch.CreatedAt); err != nil {
		return err
	}

	b := &pgx.Batch{}
	insert := `INSERT INTO imported_sale_rows
	   (id, batch_id, supplier_id, period, value, cumulative_value, brand, product_group,
	    raw_identifier, raw_name, salon_id, match_status, match_confidence, match_method)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	for _, r := range rows {
		var cumulative *string
		if r.CumulativeValue != nil {
			v := r.CumulativeValue.String()
			cumulative = &v
		}
		b.Queue(insert, r.ID, r.BatchID, r.SupplierID, r.Period, r.Value.String(), cumulative,
			r.Brand, r.ProductGroup, r.RawIdentifier, r.RawName, r.SalonID,
			r.MatchStatus, r.MatchConfidence, r.MatchMethod)
	}
	br := tx.SendBatch(ctx, b)
	for i := 0; i < len(rows); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert imported row %d/%d: %w", i+1, len(rows), err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) FinalizeBatch(ctx context.Context, batchID uuid.UUID, status string, rowCount, matchedCount, errorCount int, processedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE import_batches
		 SET status = $2, row_count = $3, matched_count = $4, error_count = $5, processed_at = $6
		 WHERE id = $1`,
		batchID, status, rowCount, matchedCount, errorCount, processedAt)
	return err
}

const batchColumns = `id, supplier_id, period, file_name, file_hash, status,
	row_count, matched_count, error_count, note, created_at, processed_at`

func scanBatch(row pgx.Row) (*store.ImportBatch, error) {
	var v store.ImportBatch
	err := row.Scan(&v.ID, &v.SupplierID, &v.Period, &v.FileName, &v.FileHash, &v.Status,
		&v.RowCount, &v.MatchedCount, &v.ErrorCount, &v.Note, &v.CreatedAt, &v.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) BatchByID(ctx context.Context, id uuid.UUID) (*store.ImportBatch, error) {
	return scanBatch(s.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM import_batches WHERE id = $1`, id))
}

func (s *Store) Batches(ctx context.Context, supplierID *uuid.UUID) ([]store.ImportBatch, error) {
	q := `SELECT ` + batchColumns + ` FROM import_batches`
	args := []interface{}{}
	if supplierID != nil {
		q += ` WHERE supplier_id = $1`
		args = append(args, *supplierID)
	}
	q += ` ORDER BY period, created_at`
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBatches(rows)
}

func (s *Store) BatchesWithUnmatchedRows(ctx context.Context) ([]store.ImportBatch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+batchColumns+` FROM import_batches b
		 WHERE EXISTS (SELECT 1 FROM imported_sale_rows r
		               WHERE r.batch_id = b.id AND r.match_status = $1)
		 ORDER BY period, created_at`, store.MatchStatusUnmatched)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBatches(rows)
}

func collectBatches(rows pgx.Rows) ([]store.ImportBatch, error) {
	var out []store.ImportBatch
	for rows.Next() {
		var v store.ImportBatch
		if err := rows.Scan(&v.ID, &v.SupplierID, &v.Period, &v.FileName, &v.FileHash, &v.Status,
			&v.RowCount, &v.MatchedCount, &v.ErrorCount, &v.Note, &v.CreatedAt, &v.ProcessedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) BatchWithFileHash(ctx context.Context, supplierID uuid.UUID, period, fileHash string) (*store.ImportBatch, error) {
	if fileHash == "" {
		return nil, nil
	}
	return scanBatch(s.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM import_batches
		 WHERE supplier_id = $1 AND period = $2 AND file_hash = $3 AND status = $4
		 ORDER BY created_at DESC LIMIT 1`,
		supplierID, period, fileHash, store.BatchStatusCompleted))
}

// ---- imported rows ----

const rowColumns = `id, batch_id, supplier_id, period, value::text, cumulative_value::text,
	brand, product_group, raw_identifier, raw_name, salon_id, match_status, match_confidence, match_method`

func scanImportedRow(rows pgx.Rows) (store.ImportedRow, error) {
	var v store.ImportedRow
	var value string
	var cumulative *string
	err := rows.Scan(&v.ID, &v.BatchID, &v.SupplierID, &v.Period, &value, &cumulative,
		&v.Brand, &v.ProductGroup, &v.RawIdentifier, &v.RawName, &v.SalonID,
		&v.MatchStatus, &v.MatchConfidence, &v.MatchMethod)
	if err != nil {
		return v, err
	}
	v.Value = parseDecimal(value)
	if cumulative != nil {
		d := parseDecimal(*cumulative)
		v.CumulativeValue = &d
	}
	return v, nil
}

func (s *Store) RowByID(ctx context.Context, id uuid.UUID) (*store.ImportedRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+rowColumns+` FROM imported_sale_rows WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	v, err := scanImportedRow(rows)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// pagedRows drains a parameterized query page by page. The source system has
// a hard 1000-row page limit, so the paging is explicit rather than hoping a
// single call returns everything.
func (s *Store) pagedRows(ctx context.Context, q string, args ...interface{}) ([]store.ImportedRow, error) {
	var out []store.ImportedRow
	offset := 0
	for {
		paged := fmt.Sprintf("%s LIMIT %d OFFSET %d", q, config.PageSize, offset)
		rows, err := s.pool.Query(ctx, paged, args...)
		if err != nil {
			return nil, err
		}
		n := 0
		for rows.Next() {
			v, err := scanImportedRow(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, v)
			n++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if n < config.PageSize {
			return out, nil
		}
		offset += config.PageSize
	}
}

func (s *Store) RowsByBatch(ctx context.Context, batchID uuid.UUID) ([]store.ImportedRow, error) {
	return s.pagedRows(ctx,
		`SELECT `+rowColumns+` FROM imported_sale_rows WHERE batch_id = $1 ORDER BY id`, batchID)
}

func (s *Store) RowsByPeriod(ctx context.Context, supplierID uuid.UUID, period string, matchStatuses []string) ([]store.ImportedRow, error) {
	q := `SELECT ` + rowColumns + ` FROM imported_sale_rows WHERE supplier_id = $1 AND period = $2`
	args := []interface{}{supplierID, period}
	if len(matchStatuses) > 0 {
		q += ` AND match_status = ANY($3)`
		args = append(args, matchStatuses)
	}
	q += ` ORDER BY id`
	return s.pagedRows(ctx, q, args...)
}

func (s *Store) UpdateRowMatch(ctx context.Context, rowID uuid.UUID, salonID *uuid.UUID, matchStatus string, confidence int, method string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE imported_sale_rows
		 SET salon_id = $2, match_status = $3, match_confidence = $4, match_method = $5
		 WHERE id = $1`,
		rowID, salonID, matchStatus, confidence, method)
	return err
}

// ---- baselines ----

func (s *Store) Baseline(ctx context.Context, salonID, supplierID uuid.UUID, period string) (*store.CumulativeBaseline, error) {
	var v store.CumulativeBaseline
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT salon_id, supplier_id, period, value::text FROM cumulative_baselines
		 WHERE salon_id = $1 AND supplier_id = $2 AND period = $3`,
		salonID, supplierID, period).
		Scan(&v.SalonID, &v.SupplierID, &v.Period, &value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v.Value = parseDecimal(value)
	return &v, nil
}

func (s *Store) BaselinesForPeriod(ctx context.Context, supplierID uuid.UUID, period string) ([]store.CumulativeBaseline, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT salon_id, supplier_id, period, value::text FROM cumulative_baselines
		 WHERE supplier_id = $1 AND period = $2`, supplierID, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.CumulativeBaseline
	for rows.Next() {
		var v store.CumulativeBaseline
		var value string
		if err := rows.Scan(&v.SalonID, &v.SupplierID, &v.Period, &value); err != nil {
			return nil, err
		}
		v.Value = parseDecimal(value)
		out = append(out, v)
	}
	return out, rows.Err()
}

// ---- calculations ----

func ruleIDStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func (s *Store) UpsertCalculation(ctx context.Context, c store.BonusCalculation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin calculation upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	// Replace, never partially update: the (salon-or-null, supplier, period)
	// key has exactly one record after every recomputation.
	if c.SalonID != nil {
		_, err = tx.Exec(ctx,
			`DELETE FROM bonus_calculations WHERE salon_id = $1 AND supplier_id = $2 AND period = $3`,
			*c.SalonID, c.SupplierID, c.Period)
	} else {
		_, err = tx.Exec(ctx,
			`DELETE FROM bonus_calculations WHERE salon_id IS NULL AND supplier_id = $1 AND period = $2`,
			c.SupplierID, c.Period)
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO bonus_calculations
		   (id, salon_id, supplier_id, period, total_turnover, loyalty_bonus, return_commission,
		    applied_rule_ids, detail, status, calculated_at, calculated_by, approved_at, approved_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, c.SalonID, c.SupplierID, c.Period,
		c.TotalTurnover.String(), c.LoyaltyBonus.String(), c.ReturnCommission.String(),
		ruleIDStrings(c.AppliedRuleIDs), []byte(c.Detail), c.Status,
		c.CalculatedAt, c.CalculatedBy, c.ApprovedAt, c.ApprovedBy); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) PruneCalculations(ctx context.Context, supplierID uuid.UUID, period string, keepSalonIDs []uuid.UUID, keepUnmatched bool) error {
	keep := make([]string, 0, len(keepSalonIDs))
	for _, id := range keepSalonIDs {
		keep = append(keep, id.String())
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM bonus_calculations
		  WHERE supplier_id = $1 AND period = $2
		    AND salon_id IS NOT NULL AND NOT (salon_id::text = ANY($3))`,
		supplierID, period, keep); err != nil {
		return fmt.Errorf("prune calculations: %w", err)
	}
	if keepUnmatched {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM bonus_calculations
		  WHERE supplier_id = $1 AND period = $2 AND salon_id IS NULL`,
		supplierID, period); err != nil {
		return fmt.Errorf("prune unmatched bucket: %w", err)
	}
	return nil
}

const calcColumns = `id, salon_id, supplier_id, period, total_turnover::text, loyalty_bonus::text,
	return_commission::text, applied_rule_ids, detail, status, calculated_at, calculated_by, approved_at, approved_by`

func scanCalculation(rows pgx.Rows) (store.BonusCalculation, error) {
	var v store.BonusCalculation
	var turnover, loyalty, commission string
	var ruleIDs []string
	var detail []byte
	err := rows.Scan(&v.ID, &v.SalonID, &v.SupplierID, &v.Period, &turnover, &loyalty,
		&commission, &ruleIDs, &detail, &v.Status, &v.CalculatedAt, &v.CalculatedBy,
		&v.ApprovedAt, &v.ApprovedBy)
	if err != nil {
		return v, err
	}
	v.TotalTurnover = parseDecimal(turnover)
	v.LoyaltyBonus = parseDecimal(loyalty)
	v.ReturnCommission = parseDecimal(commission)
	v.Detail = detail
	for _, raw := range ruleIDs {
		if id, err := uuid.Parse(raw); err == nil {
			v.AppliedRuleIDs = append(v.AppliedRuleIDs, id)
		}
	}
	return v, nil
}

func (s *Store) CalculationByID(ctx context.Context, id uuid.UUID) (*store.BonusCalculation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+calcColumns+` FROM bonus_calculations WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	v, err := scanCalculation(rows)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) collectCalculations(ctx context.Context, q string, args ...interface{}) ([]store.BonusCalculation, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.BonusCalculation
	for rows.Next() {
		v, err := scanCalculation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) CalculationsForPeriod(ctx context.Context, period string, supplierID *uuid.UUID) ([]store.BonusCalculation, error) {
	q := `SELECT ` + calcColumns + ` FROM bonus_calculations WHERE period = $1`
	args := []interface{}{period}
	if supplierID != nil {
		q += ` AND supplier_id = $2`
		args = append(args, *supplierID)
	}
	q += ` ORDER BY period, id`
	return s.collectCalculations(ctx, q, args...)
}

func (s *Store) CalculationsInRange(ctx context.Context, fromPeriod, toPeriod string, supplierID *uuid.UUID) ([]store.BonusCalculation, error) {
	q := `SELECT ` + calcColumns + ` FROM bonus_calculations WHERE period >= $1 AND period <= $2`
	args := []interface{}{fromPeriod, toPeriod}
	if supplierID != nil {
		q += ` AND supplier_id = $3`
		args = append(args, *supplierID)
	}
	q += ` ORDER BY period, id`
	return s.collectCalculations(ctx, q, args...)
}

func (s *Store) TransitionCalculation(ctx context.Context, id uuid.UUID, from, to, actor string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bonus_calculations
		 SET status = $3, approved_by = $4, approved_at = $5
		 WHERE id = $1 AND status = $2`,
		id, from, to, actor, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
