// Command sweep runs one reconciliation pass: repair database records the
// chain already knows about, then register whatever is still eligible. Run it
// from cron or by hand after a chain outage.
package main

import (
	"context"
	"flag"
	"time"

	"landledger/internal/chain"
	parcelstore "landledger/internal/parcel/store"
	"landledger/internal/platform/config"
	"landledger/internal/platform/logger"
	"landledger/internal/platform/postgres"
	"landledger/internal/registration"
	registrationmetrics "landledger/internal/registration/metrics"
	transferstore "landledger/internal/transfer/store"
	"landledger/pkg/platform/audit"
	auditpostgres "landledger/pkg/platform/audit/store/postgres"
)

func main() {
	repairOnly := flag.Bool("repair-only", false, "repair drift without registering new parcels")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall pass deadline")
	flag.Parse()

	cfg := config.FromEnv()
	log := logger.New()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	chainClient, err := chain.NewEthereumClient(cfg.Chain, log)
	if err != nil {
		log.Fatalf("bind chain client: %v", err)
	}
	defer chainClient.Close()

	parcels := parcelstore.NewPostgres(db)
	transfers := transferstore.NewPostgres(db)
	auditor := audit.NewService(auditpostgres.NewStore(db), log)
	metrics := registrationmetrics.New()

	registrar, err := registration.NewService(parcels, chainClient, auditor, metrics, log)
	if err != nil {
		log.Fatalf("build registration service: %v", err)
	}
	reconciler, err := registration.NewReconciler(parcels, transfers, chainClient, registrar, auditor, metrics, log)
	if err != nil {
		log.Fatalf("build reconciler: %v", err)
	}

	var report *registration.Report
	if *repairOnly {
		report, err = reconciler.RepairDrift(ctx)
	} else {
		report, err = reconciler.Run(ctx)
	}
	if err != nil {
		log.Fatalf("reconciliation pass failed: %v", err)
	}

	log.Printf("reconciliation done: %d scanned, %d registered, %d repaired, %d failed",
		report.Scanned, len(report.Registered), len(report.Repaired), len(report.Failures))
	for _, failure := range report.Failures {
		log.Printf("  parcel %s: %v", failure.ParcelID, failure.Err)
	}
	for _, failure := range report.Unreadable {
		log.Printf("  token %d unreadable: %v", failure.TokenID, failure.Err)
	}
	for _, parcelID := range report.Missing {
		log.Printf("  parcel %s registered but token absent on-chain", parcelID)
	}
	for _, drift := range report.OwnerDrift {
		log.Printf("  token %d (parcel %s) held by %s, not the service signer",
			drift.TokenID, drift.ParcelID, drift.ChainOwner)
	}
	for _, stuck := range report.Stuck {
		log.Printf("  transfer %s stuck in processing (parcel %s, on-chain confirmed=%t)",
			stuck.TransferID, stuck.ParcelID, stuck.ConfirmedOnChain)
	}
}
