package bonus

import (
	"log"
	"net/http"

	"SalongDriftSaas/api"
	"SalongDriftSaas/api/bonus/calculation"
	"SalongDriftSaas/api/bonus/importer"
	"SalongDriftSaas/internal/store"
	"SalongDriftSaas/pkg/keylock"
)

// StartBonusService serves the bonus endpoints. locks is the process-wide
// per-(supplier, period) lock set, shared with the cron rematch so the
// nightly sync never interleaves with an import or calculation run.
func StartBonusService(st store.Store, locks *keylock.KeyLock) {
	mgr := importer.NewManager(st, locks)
	runner := calculation.NewRunner(st, locks)

	mux := http.NewServeMux()
	mux.HandleFunc("/bonus/import", ImportHandler(st, mgr))
	mux.HandleFunc("/bonus/rematch", RematchHandler(mgr))
	mux.HandleFunc("/bonus/sync-matches", SyncMatchesHandler(mgr))
	mux.HandleFunc("/bonus/manual-match", ManualMatchHandler(mgr))
	mux.HandleFunc("/bonus/batches", BatchesHandler(st))
	mux.HandleFunc("/bonus/batch-rows", BatchRowsHandler(st))
	mux.HandleFunc("/bonus/calculate", CalculateHandler(runner))
	mux.HandleFunc("/bonus/approve", ApproveHandler(runner))
	mux.HandleFunc("/bonus/calculations", CalculationsHandler(st))
	mux.HandleFunc("/bonus/report", ReportHandler(st))
	mux.HandleFunc("/bonus/missing-rules", MissingRulesHandler(st))

	log.Println("Bonus Service started on :7243")
	if err := http.ListenAndServe(":7243", api.WithSessionValidation(mux)); err != nil {
		log.Fatalf("Bonus Service failed: %v", err)
	}
}
