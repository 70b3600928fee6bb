package salon

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/lib/pq"

	"SalongDriftSaas/api/auth"
	"SalongDriftSaas/api/constants"
	"SalongDriftSaas/api/utils"
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

func pqUserFriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return err.Error()
	}
	switch pqErr.Code {
	case "23505":
		switch pqErr.Constraint {
		case "salons_member_number_key":
			return "A salon with this member number already exists."
		case "salons_org_number_key":
			return "A salon with this organization number already exists."
		default:
			return "A record with the same unique value already exists."
		}
	case "23503":
		return "Some referenced data was not found (please refresh and try again)."
	case "23514":
		return "Some fields have invalid values. Please check and try again."
	default:
		return "Database error while processing the request. Please try again."
	}
}

func sessionOK(userID string) bool {
	if strings.TrimSpace(userID) == "" {
		return false
	}
	for _, s := range auth.GetActiveSessions() {
		if s.UserID == userID && s.IsLoggedIn {
			return true
		}
	}
	return false
}

// LookupSalon finds a salon by member number or organization number, the
// same lookups the identifier resolver uses.
func LookupSalon(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !sessionOK(r.URL.Query().Get("user_id")) {
			respondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		memberNumber := strings.TrimSpace(r.URL.Query().Get("member_number"))
		orgNumber := strings.TrimSpace(r.URL.Query().Get("org_number"))
		if memberNumber == "" && orgNumber == "" {
			respondWithError(w, http.StatusBadRequest, "member_number or org_number required")
			return
		}

		query := `SELECT id, name, member_number, org_number, active FROM salons WHERE member_number = $1`
		arg := memberNumber
		if memberNumber == "" {
			query = `SELECT id, name, member_number, org_number, active FROM salons WHERE regexp_replace(org_number, '\s', '', 'g') = $1`
			arg = strings.ReplaceAll(orgNumber, " ", "")
		}

		var id, name string
		var member, org sql.NullString
		var active bool
		err := db.QueryRow(query, arg).Scan(&id, &name, &member, &org, &active)
		if err == sql.ErrNoRows {
			respondWithJSON(w, http.StatusOK, map[string]interface{}{"salon": nil})
			return
		}
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"salon": map[string]interface{}{
				"id":            id,
				"name":          name,
				"member_number": member.String,
				"org_number":    org.String,
				"active":        active,
			},
		})
	}
}

// GetAllSalons lists salons, paginated, for the match and report screens.
func GetAllSalons(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !sessionOK(r.URL.Query().Get("user_id")) {
			respondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		params, err := utils.ExtractPagination(r)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		total, err := utils.CountTotal(db, `SELECT count(*) FROM salons`)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		params.SetPaginationStats(total)

		rows, err := db.Query(
			`SELECT id, name, member_number, org_number, active FROM salons ORDER BY name LIMIT $1 OFFSET $2`,
			params.Limit, params.Offset)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		defer rows.Close()

		var salons []map[string]interface{}
		for rows.Next() {
			var id, name string
			var member, org sql.NullString
			var active bool
			if err := rows.Scan(&id, &name, &member, &org, &active); err != nil {
				respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
				return
			}
			salons = append(salons, map[string]interface{}{
				"id":            id,
				"name":          name,
				"member_number": member.String,
				"org_number":    org.String,
				"active":        active,
			})
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"salons":     salons,
			"pagination": params,
		})
	}
}

// CreateSalon registers a new member salon.
func CreateSalon(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID       string `json:"user_id"`
			Name         string `json:"name"`
			MemberNumber string `json:"member_number"`
			OrgNumber    string `json:"org_number"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		if !sessionOK(req.UserID) {
			respondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			respondWithError(w, http.StatusBadRequest, "name is required")
			return
		}

		var id string
		err := db.QueryRow(`
			INSERT INTO salons (id, name, member_number, org_number, active)
			VALUES (gen_random_uuid(), $1, $2, $3, true)
			RETURNING id`,
			strings.TrimSpace(req.Name),
			strings.TrimSpace(req.MemberNumber),
			strings.ReplaceAll(strings.TrimSpace(req.OrgNumber), " ", ""),
		).Scan(&id)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"id": id})
	}
}

// GetSuppliers lists suppliers with their parser and matching configuration.
func GetSuppliers(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !sessionOK(r.URL.Query().Get("user_id")) {
			respondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		rows, err := db.Query(`
			SELECT id, name, active, cumulative_reporting, parser_key, match_by
			FROM suppliers ORDER BY name`)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		defer rows.Close()

		var suppliers []map[string]interface{}
		for rows.Next() {
			var id, name, parserKey, matchBy string
			var active, cumulative bool
			if err := rows.Scan(&id, &name, &active, &cumulative, &parserKey, &matchBy); err != nil {
				respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
				return
			}
			suppliers = append(suppliers, map[string]interface{}{
				"id":                   id,
				"name":                 name,
				"active":               active,
				"cumulative_reporting": cumulative,
				"parser_key":           parserKey,
				"match_by":             matchBy,
			})
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"suppliers": suppliers})
	}
}

// GetBrands lists the brands of one supplier.
func GetBrands(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !sessionOK(r.URL.Query().Get("user_id")) {
			respondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		supplierID := strings.TrimSpace(r.URL.Query().Get("supplier_id"))
		if supplierID == "" {
			respondWithError(w, http.StatusBadRequest, "supplier_id required")
			return
		}
		rows, err := db.Query(`SELECT id, name FROM brands WHERE supplier_id = $1 ORDER BY name`, supplierID)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		defer rows.Close()

		var brands []map[string]interface{}
		for rows.Next() {
			var id, name string
			if err := rows.Scan(&id, &name); err != nil {
				respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
				return
			}
			brands = append(brands, map[string]interface{}{"id": id, "name": name})
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"brands": brands})
	}
}

// GetRules lists bonus rules, optionally for one supplier.
func GetRules(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !sessionOK(r.URL.Query().Get("user_id")) {
			respondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		query := `
			SELECT r.id, r.supplier_id, r.brand_id, r.percentage::text, r.rule_type, r.active, s.name
			FROM bonus_rules r
			JOIN suppliers s ON s.id = r.supplier_id`
		var args []interface{}
		if supplierID := strings.TrimSpace(r.URL.Query().Get("supplier_id")); supplierID != "" {
			query += ` WHERE r.supplier_id = $1`
			args = append(args, supplierID)
		}
		query += ` ORDER BY s.name, r.rule_type`

		rows, err := db.Query(query, args...)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		defer rows.Close()

		var rules []map[string]interface{}
		for rows.Next() {
			var id, supplierID, percentage, ruleType, supplierName string
			var brandID sql.NullString
			var active bool
			if err := rows.Scan(&id, &supplierID, &brandID, &percentage, &ruleType, &active, &supplierName); err != nil {
				respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
				return
			}
			rule := map[string]interface{}{
				"id":            id,
				"supplier_id":   supplierID,
				"supplier_name": supplierName,
				"percentage":    percentage,
				"rule_type":     ruleType,
				"active":        active,
			}
			if brandID.Valid {
				rule["brand_id"] = brandID.String
			}
			rules = append(rules, rule)
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
	}
}

// CreateRule registers a percentage rule for a supplier, optionally scoped
// to one brand.
func CreateRule(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID     string `json:"user_id"`
			SupplierID string `json:"supplier_id"`
			BrandID    string `json:"brand_id"`
			Percentage string `json:"percentage"`
			RuleType   string `json:"rule_type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		if !sessionOK(req.UserID) {
			respondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		if req.RuleType != "loyalty" && req.RuleType != "return_commission" {
			respondWithError(w, http.StatusBadRequest, "rule_type must be loyalty or return_commission")
			return
		}

		var brandID interface{}
		if strings.TrimSpace(req.BrandID) != "" {
			brandID = strings.TrimSpace(req.BrandID)
		}
		var id string
		err := db.QueryRow(`
			INSERT INTO bonus_rules (id, supplier_id, brand_id, percentage, rule_type, active)
			VALUES (gen_random_uuid(), $1, $2, $3::numeric, $4, true)
			RETURNING id`,
			strings.TrimSpace(req.SupplierID), brandID, strings.TrimSpace(req.Percentage), req.RuleType,
		).Scan(&id)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"id": id})
	}
}

// UpsertBaseline records a manual cumulative baseline used to patch months
// with missing or corrupt prior-period data.
func UpsertBaseline(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID     string `json:"user_id"`
			SalonID    string `json:"salon_id"`
			SupplierID string `json:"supplier_id"`
			Period     string `json:"period"`
			Value      string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		if !sessionOK(req.UserID) {
			respondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		_, err := db.Exec(`
			INSERT INTO cumulative_baselines (salon_id, supplier_id, period, value)
			VALUES ($1, $2, $3, $4::numeric)
			ON CONFLICT (salon_id, supplier_id, period) DO UPDATE SET value = EXCLUDED.value`,
			strings.TrimSpace(req.SalonID), strings.TrimSpace(req.SupplierID),
			strings.TrimSpace(req.Period), strings.TrimSpace(req.Value),
		)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{})
	}
}

func StartSalonService(db *sql.DB) {
	mux := http.NewServeMux()
	mux.HandleFunc("/salon/lookup", LookupSalon(db))
	mux.HandleFunc("/salon/all", GetAllSalons(db))
	mux.HandleFunc("/salon/create", CreateSalon(db))
	mux.HandleFunc("/salon/suppliers", GetSuppliers(db))
	mux.HandleFunc("/salon/brands", GetBrands(db))
	mux.HandleFunc("/salon/rules", GetRules(db))
	mux.HandleFunc("/salon/rules/create", CreateRule(db))
	mux.HandleFunc("/salon/baseline", UpsertBaseline(db))

	log.Println("Salon Service started on :7244")
	if err := http.ListenAndServe(":7244", mux); err != nil {
		log.Fatalf("Salon Service failed: %v", err)
	}
}
