package bonus

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"SalongDriftSaas/api/auth"
	"SalongDriftSaas/api/bonus/calculation"
	"SalongDriftSaas/api/bonus/feed"
	"SalongDriftSaas/api/bonus/importer"
	"SalongDriftSaas/api/bonus/period"
	"SalongDriftSaas/api/constants"
	"SalongDriftSaas/internal/archive"
	"SalongDriftSaas/internal/config"
	"SalongDriftSaas/internal/store"
)

func respondWithError(w http.ResponseWriter, status int, errMsg string) {
	w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errMsg,
	})
}

func respondWithJSON(w http.ResponseWriter, status int, payload map[string]interface{}) {
	w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
	w.WriteHeader(status)
	payload["success"] = true
	json.NewEncoder(w).Encode(payload)
}

// activeSession resolves a user_id from the request against the live
// session table. Every bonus endpoint requires a logged-in user.
func activeSession(userID string) *auth.UserSession {
	if strings.TrimSpace(userID) == "" {
		return nil
	}
	for _, s := range auth.GetActiveSessions() {
		if s.UserID == userID && s.IsLoggedIn {
			return s
		}
	}
	return nil
}

func parseUUID(s, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s", field)
	}
	return id, nil
}

// ImportHandler receives one supplier spreadsheet for a month or a quarter.
// Quarterly files are split into three monthly batches with the values
// divided by three.
func ImportHandler(st store.Store, mgr *importer.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondWithError(w, http.StatusMethodNotAllowed, constants.ErrMethodNotAllowed)
			return
		}
		if err := r.ParseMultipartForm(config.MaxUploadBytes); err != nil {
			respondWithError(w, http.StatusBadRequest, "could not parse multipart form")
			return
		}
		session := activeSession(r.FormValue("user_id"))
		if session == nil {
			respondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}

		supplierID, err := parseUUID(r.FormValue("supplier_id"), "supplier_id")
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		supplier, err := st.SupplierByID(r.Context(), supplierID)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, constants.ErrDB)
			return
		}
		if supplier == nil || !supplier.Active {
			respondWithError(w, http.StatusBadRequest, "supplier not found or inactive")
			return
		}

		// Either a single month or a quarter, never both.
		var periods []period.Period
		quarterly := false
		if q := strings.TrimSpace(r.FormValue("quarter")); q != "" {
			periods, err = period.ParseQuarter(q)
			quarterly = true
		} else {
			var p period.Period
			p, err = period.Parse(r.FormValue("period"))
			periods = []period.Period{p}
		}
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "missing file")
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "could not read file")
			return
		}

		sum := sha256.Sum256(data)
		fileHash := hex.EncodeToString(sum[:])

		if archive.Enabled() {
			key := archive.ReportKey(supplier.Name, fileHash, filepath.Ext(header.Filename))
			if url, err := archive.UploadReport(r.Context(), key, data, archive.DetectContentType(data)); err != nil {
				log.Printf("[ERROR] report archive upload failed: %v", err)
			} else {
				log.Printf("[AUDIT] archived supplier report %s", url)
			}
		}

		wb, err := feed.Load(header.Filename, data)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("could not read spreadsheet: %v", err))
			return
		}
		rows, diagnostic, err := feed.Parse(supplier.ParserKey, wb)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("could not parse report: %v", err))
			return
		}
		if len(rows) == 0 {
			// Not fatal: the operator keeps the dialog open and retries
			// with another file.
			respondWithJSON(w, http.StatusOK, map[string]interface{}{
				"batches": []interface{}{},
				"warning": diagnostic,
			})
			return
		}

		if quarterly {
			rows = importer.SplitQuarterly(rows)
		}

		note := strings.TrimSpace(r.FormValue("note"))
		results := make([]*importer.ImportResult, 0, len(periods))
		for _, p := range periods {
			res, err := mgr.Import(r.Context(), supplier, p, rows, header.Filename, fileHash, note)
			if err != nil {
				respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("import for %s failed: %v", p, err))
				return
			}
			results = append(results, res)
		}

		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"batches": results,
		})
	}
}

// RematchHandler re-resolves the unmatched rows of one batch.
func RematchHandler(mgr *importer.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID  string `json:"user_id"`
			BatchID string `json:"batch_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		if activeSession(req.UserID) == nil {
			respondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		batchID, err := parseUUID(req.BatchID, "batch_id")
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		res, err := mgr.Rematch(r.Context(), batchID)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"result": res})
	}
}

// SyncMatchesHandler rematches every batch that still has unmatched rows.
func SyncMatchesHandler(mgr *importer.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		if activeSession(req.UserID) == nil {
			respondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		report, err := mgr.SyncAll(r.Context())
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"report": report})
	}
}

// ManualMatchHandler assigns a salon to an unmatched row and learns the
// mapping for future imports.
func ManualMatchHandler(mgr *importer.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID  string `json:"user_id"`
			RowID   string `json:"row_id"`
			SalonID string `json:"salon_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		session := activeSession(req.UserID)
		if session == nil {
			respondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		rowID, err := parseUUID(req.RowID, "row_id")
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		salonID, err := parseUUID(req.SalonID, "salon_id")
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		row, err := mgr.ManualMatch(r.Context(), rowID, salonID)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		log.Printf("[AUDIT] %s manually matched row %s to salon %s", session.Email, rowID, salonID)
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"row": row})
	}
}

// BatchesHandler lists import batches, optionally for one supplier.
func BatchesHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if activeSession(r.URL.Query().Get("user_id")) == nil {
			respondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		var supplierID *uuid.UUID
		if s := strings.TrimSpace(r.URL.Query().Get("supplier_id")); s != "" {
			id, err := parseUUID(s, "supplier_id")
			if err != nil {
				respondWithError(w, http.StatusBadRequest, err.Error())
				return
			}
			supplierID = &id
		}
		batches, err := st.Batches(r.Context(), supplierID)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, constants.ErrDB)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"batches": batches})
	}
}

// BatchRowsHandler lists the imported rows of one batch so the operator can
// inspect and manually match them.
func BatchRowsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if activeSession(r.URL.Query().Get("user_id")) == nil {
			respondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		batchID, err := parseUUID(r.URL.Query().Get("batch_id"), "batch_id")
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		rows, err := st.RowsByBatch(r.Context(), batchID)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, constants.ErrDB)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"rows": rows})
	}
}

// CalculateHandler runs bonus calculation over a period range.
func CalculateHandler(runner *calculation.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID     string `json:"user_id"`
			FromPeriod string `json:"from_period"`
			ToPeriod   string `json:"to_period"`
			SupplierID string `json:"supplier_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		session := activeSession(req.UserID)
		if session == nil {
			respondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		from, err := period.Parse(req.FromPeriod)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		to := from
		if strings.TrimSpace(req.ToPeriod) != "" {
			to, err = period.Parse(req.ToPeriod)
			if err != nil {
				respondWithError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		var supplierID *uuid.UUID
		if strings.TrimSpace(req.SupplierID) != "" {
			id, err := parseUUID(req.SupplierID, "supplier_id")
			if err != nil {
				respondWithError(w, http.StatusBadRequest, err.Error())
				return
			}
			supplierID = &id
		}

		report, err := runner.Run(r.Context(), from, to, supplierID, session.Email)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[AUDIT] %s calculated bonuses %s..%s: %d calculated, %d failed",
			session.Email, from, to, report.Calculated, report.Failed)
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"report": report})
	}
}

// ApproveHandler approves one calculated record.
func ApproveHandler(runner *calculation.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID        string `json:"user_id"`
			CalculationID string `json:"calculation_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		session := activeSession(req.UserID)
		if session == nil {
			respondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		id, err := parseUUID(req.CalculationID, "calculation_id")
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		calc, err := runner.Approve(r.Context(), id, session.Email)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[AUDIT] %s approved calculation %s", session.Email, id)
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"calculation": calc})
	}
}

// CalculationsHandler lists stored calculations for one period.
func CalculationsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if activeSession(r.URL.Query().Get("user_id")) == nil {
			respondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		p, err := period.Parse(r.URL.Query().Get("period"))
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		var supplierID *uuid.UUID
		if s := strings.TrimSpace(r.URL.Query().Get("supplier_id")); s != "" {
			id, err := parseUUID(s, "supplier_id")
			if err != nil {
				respondWithError(w, http.StatusBadRequest, err.Error())
				return
			}
			supplierID = &id
		}
		calcs, err := st.CalculationsForPeriod(r.Context(), p.String(), supplierID)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, constants.ErrDB)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"calculations": calcs})
	}
}

// ReportHandler folds calculations over a period range into per-salon
// totals with worst-status aggregation.
func ReportHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if activeSession(r.URL.Query().Get("user_id")) == nil {
			respondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		from, err := period.Parse(r.URL.Query().Get("from"))
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		to, err := period.Parse(r.URL.Query().Get("to"))
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		var supplierID *uuid.UUID
		if s := strings.TrimSpace(r.URL.Query().Get("supplier_id")); s != "" {
			id, err := parseUUID(s, "supplier_id")
			if err != nil {
				respondWithError(w, http.StatusBadRequest, err.Error())
				return
			}
			supplierID = &id
		}

		calcs, err := st.CalculationsInRange(r.Context(), from.String(), to.String(), supplierID)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, constants.ErrDB)
			return
		}

		salonNames := make(map[uuid.UUID]string)
		for _, c := range calcs {
			if c.SalonID == nil {
				continue
			}
			if _, ok := salonNames[*c.SalonID]; ok {
				continue
			}
			salon, err := st.SalonByID(r.Context(), *c.SalonID)
			if err != nil {
				respondWithError(w, http.StatusInternalServerError, constants.ErrDB)
				return
			}
			if salon != nil {
				salonNames[*c.SalonID] = salon.Name
			}
		}
		supplierNames := make(map[uuid.UUID]string)
		suppliers, err := st.Suppliers(r.Context(), false)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, constants.ErrDB)
			return
		}
		for _, s := range suppliers {
			supplierNames[s.ID] = s.Name
		}

		rows := calculation.FoldReport(calcs, salonNames, supplierNames)
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"rows": rows})
	}
}

// MissingRulesHandler extracts the missing-rule warnings recorded on the
// calculation details in a period range, grouped by supplier and brand.
func MissingRulesHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if activeSession(r.URL.Query().Get("user_id")) == nil {
			respondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		from, err := period.Parse(r.URL.Query().Get("from"))
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		to, err := period.Parse(r.URL.Query().Get("to"))
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		calcs, err := st.CalculationsInRange(r.Context(), from.String(), to.String(), nil)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, constants.ErrDB)
			return
		}

		type key struct {
			supplier uuid.UUID
			brand    string
		}
		totals := make(map[key]decimal.Decimal)
		var order []key
		for _, c := range calcs {
			if len(c.Detail) == 0 {
				continue
			}
			var detail calculation.Detail
			if err := json.Unmarshal(c.Detail, &detail); err != nil {
				continue
			}
			for _, m := range detail.MissingRules {
				k := key{supplier: c.SupplierID, brand: strings.ToLower(m.Brand)}
				if _, ok := totals[k]; !ok {
					order = append(order, k)
				}
				totals[k] = totals[k].Add(m.Turnover)
			}
		}

		out := make([]map[string]interface{}, 0, len(order))
		for _, k := range order {
			out = append(out, map[string]interface{}{
				"supplier_id": k.supplier,
				"brand":       k.brand,
				"turnover":    totals[k],
			})
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"missing_rules": out})
	}
}
