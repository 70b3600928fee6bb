package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Match statuses for imported sale rows.
const (
	MatchStatusMatched        = "matched"
	MatchStatusUnmatched      = "unmatched"
	MatchStatusManualOverride = "manual_override"
	MatchStatusError          = "error"
)

// Match methods recorded on imported sale rows.
const (
	MatchMethodIdentifier = "identifier"
	MatchMethodManual     = "manual"
	MatchMethodNone       = "none"
)

// Import batch statuses.
const (
	BatchStatusPending   = "pending"
	BatchStatusCompleted = "completed"
	BatchStatusError     = "error"
)

// Identifier mapping types.
const (
	MappingTypeManual = "manual_match"
	MappingTypeAuto   = "auto"
)

// Bonus rule types.
const (
	RuleTypeLoyalty          = "loyalty"
	RuleTypeReturnCommission = "return_commission"
)

// Supplier match strategies, i.e. which salon attribute the raw feed
// identifier refers to.
const (
	MatchByMemberNumber = "member_number"
	MatchByOrgNumber    = "org_number"
)

// Product groups as reported by suppliers. Free text is allowed; these two
// cover the common cases.
const (
	ProductGroupChemistry = "kjemi"
	ProductGroupRetail    = "produkt"
)

type Salon struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	MemberNumber string    `json:"member_number"`
	OrgNumber    string    `json:"org_number"`
	Active       bool      `json:"active"`
}

type Supplier struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	Active              bool      `json:"active"`
	CumulativeReporting bool      `json:"cumulative_reporting"`
	// ParserKey selects the feed adapter for this supplier's report layout.
	ParserKey string `json:"parser_key"`
	// MatchBy selects the direct-lookup strategy when no learned mapping exists.
	MatchBy string `json:"match_by"`
}

type Brand struct {
	ID         uuid.UUID `json:"id"`
	SupplierID uuid.UUID `json:"supplier_id"`
	Name       string    `json:"name"`
}

type ImportBatch struct {
	ID           uuid.UUID  `json:"id"`
	SupplierID   uuid.UUID  `json:"supplier_id"`
	Period       string     `json:"period"` // YYYY-MM
	FileName     string     `json:"file_name"`
	FileHash     string     `json:"file_hash"`
	Status       string     `json:"status"`
	RowCount     int        `json:"row_count"`
	MatchedCount int        `json:"matched_count"`
	ErrorCount   int        `json:"error_count"`
	Note         string     `json:"note,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

type ImportedRow struct {
	ID              uuid.UUID        `json:"id"`
	BatchID         uuid.UUID        `json:"batch_id"`
	SupplierID      uuid.UUID        `json:"supplier_id"`
	Period          string           `json:"period"`
	Value           decimal.Decimal  `json:"value"`
	CumulativeValue *decimal.Decimal `json:"cumulative_value,omitempty"`
	Brand           string           `json:"brand"`
	ProductGroup    string           `json:"product_group"`
	RawIdentifier   string           `json:"raw_identifier"`
	RawName         string           `json:"raw_name"`
	SalonID         *uuid.UUID       `json:"salon_id,omitempty"`
	MatchStatus     string           `json:"match_status"`
	MatchConfidence int              `json:"match_confidence"`
	MatchMethod     string           `json:"match_method"`
}

type IdentifierMapping struct {
	SupplierID     uuid.UUID `json:"supplier_id"`
	CustomerNumber string    `json:"customer_number"`
	SalonID        uuid.UUID `json:"salon_id"`
	MappingType    string    `json:"mapping_type"`
}

type CumulativeBaseline struct {
	SalonID    uuid.UUID       `json:"salon_id"`
	SupplierID uuid.UUID       `json:"supplier_id"`
	Period     string          `json:"period"`
	Value      decimal.Decimal `json:"value"`
}

type BonusRule struct {
	ID         uuid.UUID       `json:"id"`
	SupplierID uuid.UUID       `json:"supplier_id"`
	BrandID    *uuid.UUID      `json:"brand_id,omitempty"` // nil applies to all brands of the supplier
	Percentage decimal.Decimal `json:"percentage"`         // fraction, 0.05 = 5%
	RuleType   string          `json:"rule_type"`
	Active     bool            `json:"active"`
}

type BonusCalculation struct {
	ID               uuid.UUID       `json:"id"`
	SalonID          *uuid.UUID      `json:"salon_id,omitempty"` // nil denotes the unmatched bucket
	SupplierID       uuid.UUID       `json:"supplier_id"`
	Period           string          `json:"period"`
	TotalTurnover    decimal.Decimal `json:"total_turnover"`
	LoyaltyBonus     decimal.Decimal `json:"loyalty_bonus"`
	ReturnCommission decimal.Decimal `json:"return_commission"`
	AppliedRuleIDs   []uuid.UUID     `json:"applied_rule_ids"`
	Detail           json.RawMessage `json:"detail,omitempty"`
	Status           string          `json:"status"`
	CalculatedAt     time.Time       `json:"calculated_at"`
	CalculatedBy     string          `json:"calculated_by"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy       string          `json:"approved_by,omitempty"`
}

// Store is the persistence boundary for the bonus engine. Lookups return
// (nil, nil) when the record does not exist; errors are reserved for storage
// failures.
type Store interface {
	// Master data.
	SalonByID(ctx context.Context, id uuid.UUID) (*Salon, error)
	SalonByMemberNumber(ctx context.Context, code string) (*Salon, error)
	SalonByOrgNumber(ctx context.Context, orgNumber string) (*Salon, error)
	SupplierByID(ctx context.Context, id uuid.UUID) (*Supplier, error)
	Suppliers(ctx context.Context, activeOnly bool) ([]Supplier, error)
	BrandsBySupplier(ctx context.Context, supplierID uuid.UUID) ([]Brand, error)

	// Rule source. supplierID nil returns all active rules.
	ActiveRules(ctx context.Context, supplierID *uuid.UUID) ([]BonusRule, error)

	// Identifier mappings. ReplaceMapping deletes any existing mapping for
	// (supplier, customer number) before inserting, so a correction wins.
	MappingsBySupplier(ctx context.Context, supplierID uuid.UUID) ([]IdentifierMapping, error)
	ReplaceMapping(ctx context.Context, m IdentifierMapping) error

	// Import batches. ReplaceBatch deletes prior batches for the same
	// (supplier, period) and their rows, then inserts the new batch and rows
	// atomically.
	ReplaceBatch(ctx context.Context, batch ImportBatch, rows []ImportedRow) error
	FinalizeBatch(ctx context.Context, batchID uuid.UUID, status string, rowCount, matchedCount, errorCount int, processedAt time.Time) error
	BatchByID(ctx context.Context, id uuid.UUID) (*ImportBatch, error)
	Batches(ctx context.Context, supplierID *uuid.UUID) ([]ImportBatch, error)
	BatchesWithUnmatchedRows(ctx context.Context) ([]ImportBatch, error)
	BatchWithFileHash(ctx context.Context, supplierID uuid.UUID, period, fileHash string) (*ImportBatch, error)

	// Imported sale rows. Scans are paginated internally; callers always get
	// the full result set.
	RowByID(ctx context.Context, id uuid.UUID) (*ImportedRow, error)
	RowsByBatch(ctx context.Context, batchID uuid.UUID) ([]ImportedRow, error)
	RowsByPeriod(ctx context.Context, supplierID uuid.UUID, period string, matchStatuses []string) ([]ImportedRow, error)
	UpdateRowMatch(ctx context.Context, rowID uuid.UUID, salonID *uuid.UUID, matchStatus string, confidence int, method string) error

	// Cumulative baselines.
	Baseline(ctx context.Context, salonID, supplierID uuid.UUID, period string) (*CumulativeBaseline, error)
	BaselinesForPeriod(ctx context.Context, supplierID uuid.UUID, period string) ([]CumulativeBaseline, error)

	// Bonus calculations. Upsert replaces any record with the same
	// (salon-or-nil, supplier, period) key.
	UpsertCalculation(ctx context.Context, c BonusCalculation) error
	// PruneCalculations removes records for (supplier, period) whose salon
	// is not in keepSalonIDs; the nil-salon unmatched bucket goes too unless
	// keepUnmatched is set. A recomputation owns every key of its period.
	PruneCalculations(ctx context.Context, supplierID uuid.UUID, period string, keepSalonIDs []uuid.UUID, keepUnmatched bool) error
	CalculationByID(ctx context.Context, id uuid.UUID) (*BonusCalculation, error)
	CalculationsForPeriod(ctx context.Context, period string, supplierID *uuid.UUID) ([]BonusCalculation, error)
	CalculationsInRange(ctx context.Context, fromPeriod, toPeriod string, supplierID *uuid.UUID) ([]BonusCalculation, error)
	// TransitionCalculation flips status only when the stored status equals
	// from; returns false when the guard fails.
	TransitionCalculation(ctx context.Context, id uuid.UUID, from, to, actor string, at time.Time) (bool, error)
}
