package registration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"landledger/internal/chain"
	"landledger/internal/parcel/models"
	parcelstore "landledger/internal/parcel/store"
	"landledger/internal/registration/metrics"
	transfermodels "landledger/internal/transfer/models"
	transferstore "landledger/internal/transfer/store"
	id "landledger/pkg/domain"
	dErrors "landledger/pkg/domain-errors"
	"landledger/pkg/platform/audit"
	"landledger/pkg/platform/sentinel"
)

const defaultSweepConcurrency = 4

// Failure records one parcel the sweep could not process.
type Failure struct {
	ParcelID id.ParcelID
	Err      error
}

// TokenFailure records one minted token whose on-chain record could not be
// read back. The token is skipped for this pass and retried on the next.
type TokenFailure struct {
	TokenID id.TokenID
	Err     error
}

// OwnerMismatch records a registered parcel whose token is held by an address
// other than the service signer. Under the backend-custody model the signer
// owns every token it minted, so a mismatch means the token moved outside the
// transfer workflow and needs operator attention.
type OwnerMismatch struct {
	ParcelID   id.ParcelID
	TokenID    id.TokenID
	ChainOwner id.WalletAddress
}

// StuckTransfer records a transfer found in the processing state, the window
// between the on-chain submission and the database commit. ConfirmedOnChain is
// true when the token already belongs to the recipient wallet: the on-chain
// leg completed but the completion commit was lost.
type StuckTransfer struct {
	TransferID       id.TransferID
	ParcelID         id.ParcelID
	ConfirmedOnChain bool
}

// Report summarizes one reconciliation pass.
type Report struct {
	Scanned    int
	Registered []id.ParcelID
	Repaired   []id.ParcelID

	// Missing lists parcels the database records as registered whose token
	// could not be found on-chain. Tokens are never burned, so a missing
	// token points at a corrupted record.
	Missing []id.ParcelID

	Unreadable []TokenFailure
	OwnerDrift []OwnerMismatch
	Stuck      []StuckTransfer
	Failures   []Failure
}

func (r *Report) merge(other *Report) {
	r.Scanned += other.Scanned
	r.Registered = append(r.Registered, other.Registered...)
	r.Repaired = append(r.Repaired, other.Repaired...)
	r.Missing = append(r.Missing, other.Missing...)
	r.Unreadable = append(r.Unreadable, other.Unreadable...)
	r.OwnerDrift = append(r.OwnerDrift, other.OwnerDrift...)
	r.Stuck = append(r.Stuck, other.Stuck...)
	r.Failures = append(r.Failures, other.Failures...)
}

// Reconciler converges the database toward chain state. It repairs records
// the chain already knows about, registers eligible parcels the chain does
// not, and reports the discrepancies it cannot repair: unreadable tokens,
// missing tokens, custody drift, and transfers stuck mid-completion. Repair is
// strictly one-way: a record is only ever promoted to registered, never
// cleared, because the chain is the source of truth for registration and
// tokens are never burned.
type Reconciler struct {
	parcels     parcelstore.Store
	transfers   transferstore.Store
	chain       chain.Client
	registrar   *Service
	audit       *audit.Service
	metrics     *metrics.Metrics
	log         *log.Logger
	concurrency int
}

func NewReconciler(parcels parcelstore.Store, transfers transferstore.Store, chainClient chain.Client, registrar *Service, auditor *audit.Service, m *metrics.Metrics, logger *log.Logger) (*Reconciler, error) {
	if parcels == nil || transfers == nil || chainClient == nil || registrar == nil || logger == nil {
		return nil, errors.New("reconciler: missing dependency")
	}
	return &Reconciler{
		parcels:     parcels,
		transfers:   transfers,
		chain:       chainClient,
		registrar:   registrar,
		audit:       auditor,
		metrics:     m,
		log:         logger,
		concurrency: defaultSweepConcurrency,
	}, nil
}

// Run performs a full pass: repair drift first so already-minted parcels are
// not minted twice, then register whatever remains eligible.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	defer func() { r.metrics.ObserveSweepDuration(time.Since(start)) }()

	report, err := r.RepairDrift(ctx)
	if err != nil {
		return report, err
	}

	registered, err := r.RegisterEligible(ctx)
	if registered != nil {
		report.merge(registered)
	}
	return report, err
}

// RegisterEligible submits every verified, unregistered parcel for on-chain
// registration. Failures are collected per parcel, never aborting the batch;
// a parcel that cannot register today is retried on the next sweep.
func (r *Reconciler) RegisterEligible(ctx context.Context) (*Report, error) {
	eligible, err := r.parcels.ListEligibleForRegistration(ctx)
	if err != nil {
		return nil, fmt.Errorf("list eligible parcels: %w", err)
	}

	report := &Report{Scanned: len(eligible)}
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)
	for _, parcel := range eligible {
		group.Go(func() error {
			_, err := r.registrar.RegisterIfEligible(groupCtx, parcel.ID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Registered = append(report.Registered, parcel.ID)
			case dErrors.IsCode(err, dErrors.CodeAlreadyRegistered):
				// Repaired by a concurrent pass; nothing to do.
			default:
				report.Failures = append(report.Failures, Failure{ParcelID: parcel.ID, Err: err})
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return report, err
	}

	r.log.Printf("registration sweep: %d scanned, %d registered, %d failed",
		report.Scanned, len(report.Registered), len(report.Failures))
	return report, nil
}

// RepairDrift promotes database records the chain already knows about and
// collects the discrepancies it can only observe. A parcel the database
// believes is unregistered but whose property id exists on-chain gets its
// token id recorded; the transaction hash is unknown at this point and stays
// empty. The inverse direction is never repaired.
func (r *Reconciler) RepairDrift(ctx context.Context) (*Report, error) {
	if !r.chain.IsReachable(ctx) {
		return nil, chain.Unavailable(errors.New("reconciliation requires a reachable ledger"))
	}

	byProperty, byToken, unreadable, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	eligible, err := r.parcels.ListEligibleForRegistration(ctx)
	if err != nil {
		return nil, fmt.Errorf("list eligible parcels: %w", err)
	}

	report := &Report{Scanned: len(eligible), Unreadable: unreadable}
	for _, failure := range unreadable {
		r.log.Printf("drift sweep: token %d unreadable, skipping: %v", failure.TokenID, failure.Err)
	}

	for _, parcel := range eligible {
		record, ok := byProperty[parcel.PropertyID]
		if !ok {
			continue
		}

		facts := models.RegistrationFacts{TokenID: record.TokenID}
		if err := r.parcels.MarkRegistered(ctx, parcel.ID, facts); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				continue
			}
			report.Failures = append(report.Failures, Failure{ParcelID: parcel.ID, Err: err})
			continue
		}

		report.Repaired = append(report.Repaired, parcel.ID)
		r.metrics.IncrementDriftRepair()
		r.audit.RecordAsync(ctx, audit.Event{
			Action:   audit.ActionRegistrationRepair,
			ParcelID: parcel.ID.String(),
			Detail:   fmt.Sprintf("token %d found on-chain", record.TokenID),
		})
		r.log.Printf("drift repair: parcel %s already on-chain as token %d", parcel.ID, record.TokenID)
	}

	if err := r.observeStuckTransfers(ctx, byToken, report); err != nil {
		return report, err
	}
	if err := r.observeCustody(ctx, byToken, unreadable, report); err != nil {
		return report, err
	}
	return report, nil
}

// observeStuckTransfers flags transfers left in processing, the state between
// the chain submission and the completion commit. When the token already
// belongs to the recipient the on-chain leg succeeded and only the database
// write was lost; either way the row needs operator resolution, so the sweep
// reports it rather than guessing.
func (r *Reconciler) observeStuckTransfers(ctx context.Context, byToken map[id.TokenID]chain.ParcelRecord, report *Report) error {
	processing, err := r.transfers.ListByStatus(ctx, transfermodels.StatusProcessing)
	if err != nil {
		return fmt.Errorf("list processing transfers: %w", err)
	}

	for _, transfer := range processing {
		stuck := StuckTransfer{TransferID: transfer.ID, ParcelID: transfer.ParcelID}
		if parcel, err := r.parcels.Get(ctx, transfer.ParcelID); err == nil && parcel.OnChain() {
			if record, ok := byToken[parcel.TokenID]; ok {
				stuck.ConfirmedOnChain = record.Owner.Equal(transfer.ToWallet)
			}
		}
		report.Stuck = append(report.Stuck, stuck)
		r.log.Printf("drift sweep: transfer %s stuck in processing (parcel %s, on-chain confirmed=%t)",
			transfer.ID, transfer.ParcelID, stuck.ConfirmedOnChain)
	}
	return nil
}

// observeCustody checks every registered parcel against the snapshot: a token
// absent from the chain is reported missing, a token held by an address other
// than the signer is reported as custody drift. Parcels with a stuck transfer
// are excluded, their drift is already explained by the stuck entry.
func (r *Reconciler) observeCustody(ctx context.Context, byToken map[id.TokenID]chain.ParcelRecord, unreadable []TokenFailure, report *Report) error {
	registered, err := r.parcels.ListRegistered(ctx)
	if err != nil {
		return fmt.Errorf("list registered parcels: %w", err)
	}

	skippedTokens := make(map[id.TokenID]bool, len(unreadable))
	for _, failure := range unreadable {
		skippedTokens[failure.TokenID] = true
	}
	stuckParcels := make(map[id.ParcelID]bool, len(report.Stuck))
	for _, stuck := range report.Stuck {
		stuckParcels[stuck.ParcelID] = true
	}

	signer := r.chain.SignerAddress()
	for _, parcel := range registered {
		if stuckParcels[parcel.ID] || skippedTokens[parcel.TokenID] {
			continue
		}
		record, ok := byToken[parcel.TokenID]
		if !ok {
			report.Missing = append(report.Missing, parcel.ID)
			r.log.Printf("drift sweep: parcel %s registered as token %d but absent on-chain", parcel.ID, parcel.TokenID)
			continue
		}
		if !record.Owner.Equal(signer) {
			report.OwnerDrift = append(report.OwnerDrift, OwnerMismatch{
				ParcelID:   parcel.ID,
				TokenID:    parcel.TokenID,
				ChainOwner: record.Owner,
			})
			r.log.Printf("drift sweep: token %d held by %s, not the service signer", parcel.TokenID, record.Owner)
		}
	}
	return nil
}

// snapshot reads every minted token and indexes the records by property id and
// token id. A token that cannot be read is recorded and skipped; one bad read
// must not blind the sweep to the rest of the registry.
func (r *Reconciler) snapshot(ctx context.Context) (map[id.PropertyID]chain.ParcelRecord, map[id.TokenID]chain.ParcelRecord, []TokenFailure, error) {
	total, err := r.chain.TotalRegistered(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read registry size: %w", err)
	}

	byProperty := make(map[id.PropertyID]chain.ParcelRecord, total)
	byToken := make(map[id.TokenID]chain.ParcelRecord, total)
	var unreadable []TokenFailure
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)
	for tokenID := id.TokenID(1); int64(tokenID) <= total; tokenID++ {
		group.Go(func() error {
			record, err := r.chain.RegisteredParcel(groupCtx, tokenID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				unreadable = append(unreadable, TokenFailure{TokenID: tokenID, Err: err})
				return nil
			}
			byProperty[record.PropertyID] = record
			byToken[record.TokenID] = record
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return byProperty, byToken, unreadable, nil
}
