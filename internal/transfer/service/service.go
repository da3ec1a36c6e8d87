// Package service implements the two-phase transfer state machine. A parcel's
// logical owner initiates a request, then explicitly executes or cancels it;
// nothing touches the chain until execution, and cancellation never does.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"landledger/internal/authz"
	"landledger/internal/chain"
	"landledger/internal/identity"
	"landledger/internal/notify"
	parcelmodels "landledger/internal/parcel/models"
	parcelstore "landledger/internal/parcel/store"
	"landledger/internal/transfer/metrics"
	"landledger/internal/transfer/models"
	"landledger/internal/transfer/store"
	id "landledger/pkg/domain"
	dErrors "landledger/pkg/domain-errors"
	"landledger/pkg/platform/audit"
	"landledger/pkg/platform/sentinel"
	"landledger/pkg/requestcontext"
)

// AuthorizationResolver answers whether the signing key may move a token.
type AuthorizationResolver interface {
	Resolve(ctx context.Context, tokenID id.TokenID, expectedOwner id.WalletAddress) (authz.Result, error)
}

// Service runs the transfer lifecycle. All mutations of transfer records flow
// through here; stores only persist.
type Service struct {
	transfers store.Store
	parcels   parcelstore.Store
	directory identity.Directory
	resolver  AuthorizationResolver
	chain     chain.Client
	notifier  notify.Dispatcher
	audit     *audit.Service
	atomic    Atomic
	metrics   *metrics.Metrics
	log       *log.Logger
}

func NewService(
	transfers store.Store,
	parcels parcelstore.Store,
	directory identity.Directory,
	resolver AuthorizationResolver,
	chainClient chain.Client,
	notifier notify.Dispatcher,
	auditor *audit.Service,
	atomic Atomic,
	m *metrics.Metrics,
	logger *log.Logger,
) (*Service, error) {
	if transfers == nil || parcels == nil || directory == nil || resolver == nil ||
		chainClient == nil || atomic == nil || logger == nil {
		return nil, errors.New("transfer service: missing dependency")
	}
	return &Service{
		transfers: transfers,
		parcels:   parcels,
		directory: directory,
		resolver:  resolver,
		chain:     chainClient,
		notifier:  notifier,
		audit:     auditor,
		atomic:    atomic,
		metrics:   m,
		log:       logger,
	}, nil
}

// InitiateRequest is the owner's ask: move this parcel to that person.
// Recipient is a username, email address, or wallet address.
type InitiateRequest struct {
	ParcelID  id.ParcelID
	Recipient string
	Price     float64
	Kind      models.Kind
}

// Initiate validates the request and creates a pending transfer. No chain
// interaction happens here; whether the signer can actually move the token is
// checked at execution time.
func (s *Service) Initiate(ctx context.Context, callerID id.UserID, req InitiateRequest) (*models.TransferRequest, error) {
	transfer, err := s.initiate(ctx, callerID, req)
	s.metrics.IncrementOutcome("initiate", outcomeLabel(err))
	return transfer, err
}

func (s *Service) initiate(ctx context.Context, callerID id.UserID, req InitiateRequest) (*models.TransferRequest, error) {
	if req.Recipient == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "recipient is required")
	}
	if req.Price < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "price must not be negative")
	}
	kind := req.Kind
	if kind == "" {
		kind = models.KindSale
	}

	initiator, err := s.directory.Get(ctx, callerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "initiating user not found")
		}
		return nil, fmt.Errorf("resolve initiator: %w", err)
	}

	parcel, err := s.parcels.Get(ctx, req.ParcelID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "parcel not found")
		}
		return nil, fmt.Errorf("load parcel: %w", err)
	}

	if parcel.OwnerID != initiator.ID {
		return nil, dErrors.New(dErrors.CodeNotOwner, "caller does not own this parcel")
	}
	if !parcel.OnChain() {
		return nil, dErrors.New(dErrors.CodeNotOnChain, "parcel is not registered on-chain")
	}

	recipient, err := s.directory.Lookup(ctx, req.Recipient)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeRecipientNotFound, "recipient not found")
		}
		return nil, fmt.Errorf("resolve recipient: %w", err)
	}
	if recipient.ID == initiator.ID {
		return nil, dErrors.New(dErrors.CodeSelfTransfer, "cannot transfer a parcel to yourself")
	}
	if recipient.Wallet.IsZero() {
		return nil, dErrors.New(dErrors.CodeRecipientMissingWallet, "recipient has no wallet address")
	}

	// Pre-check for a friendly error; the store's uniqueness guarantee is
	// what actually holds the invariant under concurrency.
	if _, err := s.transfers.FindPendingByParcel(ctx, req.ParcelID); err == nil {
		return nil, dErrors.New(dErrors.CodeTransferAlreadyPending, "a transfer is already pending for this parcel")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("check pending transfers: %w", err)
	}

	transfer := &models.TransferRequest{
		ID:          id.NewTransferID(),
		ParcelID:    parcel.ID,
		FromUserID:  initiator.ID,
		ToUserID:    recipient.ID,
		FromWallet:  parcel.WalletAddress,
		ToWallet:    recipient.Wallet,
		Price:       req.Price,
		Kind:        kind,
		Status:      models.StatusPending,
		InitiatedAt: requestcontext.Now(ctx).UTC(),
	}

	if err := s.transfers.Create(ctx, transfer); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeTransferAlreadyPending, "a transfer is already pending for this parcel")
		}
		return nil, fmt.Errorf("create transfer: %w", err)
	}

	s.audit.RecordAsync(ctx, audit.Event{
		Action:     audit.ActionTransferInitiated,
		ParcelID:   parcel.ID.String(),
		TransferID: transfer.ID.String(),
		ActorID:    initiator.ID.String(),
	})
	s.dispatch(ctx, notify.EventTransferInitiated, transfer, parcel, initiator, recipient)

	return transfer, nil
}

// Execute drives a pending transfer through the chain. The status moves to
// processing before any chain call so a concurrent execute loses cleanly, and
// the completed state commits together with the parcel's new ownership. A
// failed on-chain submission finalizes the transfer as failed and leaves the
// parcel untouched.
func (s *Service) Execute(ctx context.Context, callerID id.UserID, transferID id.TransferID) (*models.TransferRequest, error) {
	start := time.Now()
	transfer, err := s.execute(ctx, callerID, transferID)
	s.metrics.IncrementOutcome("execute", outcomeLabel(err))
	s.metrics.ObserveExecuteLatency(time.Since(start))
	return transfer, err
}

func (s *Service) execute(ctx context.Context, callerID id.UserID, transferID id.TransferID) (*models.TransferRequest, error) {
	transfer, err := s.transfers.Get(ctx, transferID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "transfer not found")
		}
		return nil, fmt.Errorf("load transfer: %w", err)
	}

	if transfer.Status != models.StatusPending {
		return nil, dErrors.New(dErrors.CodeNotPending,
			fmt.Sprintf("transfer is %s, only pending transfers can be executed", transfer.Status))
	}
	if transfer.FromUserID != callerID {
		return nil, dErrors.New(dErrors.CodeNotInitiator, "only the initiator can execute this transfer")
	}

	parcel, err := s.parcels.Get(ctx, transfer.ParcelID)
	if err != nil {
		return nil, fmt.Errorf("load parcel: %w", err)
	}
	if !parcel.OnChain() {
		return nil, dErrors.New(dErrors.CodeNotOnChain, "parcel is not registered on-chain")
	}

	// Live authorization check. A chain read failure propagates retryably and
	// the transfer stays pending; a definite "not approved" also keeps it
	// pending so the owner can grant approval and retry.
	auth, err := s.resolver.Resolve(ctx, parcel.TokenID, parcel.WalletAddress)
	if err != nil {
		return nil, err
	}
	if !auth.CanTransfer {
		return nil, dErrors.New(dErrors.CodeNotAuthorizedOnChain, "service signer is not authorized to move this token").
			WithDetail("current_owner", auth.OnChainOwner.String()).
			WithDetail("signer_address", auth.SignerAddress.String()).
			WithDetail("required_action", "current owner must approve the signer address for this token")
	}

	// Claim the transfer before touching the chain. Losing this race means
	// someone else is already processing (or cancelled) it.
	if err := s.transfers.CompareAndSetStatus(ctx, transfer.ID, models.StatusPending, models.StatusProcessing); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeNotPending, "transfer was claimed or cancelled concurrently")
		}
		return nil, fmt.Errorf("claim transfer: %w", err)
	}
	transfer.Status = models.StatusProcessing

	txHash, chainErr := s.chain.SubmitTransfer(ctx, parcel.TokenID, auth.OnChainOwner, transfer.ToWallet, transfer.Price)
	completedAt := time.Now().UTC()

	if chainErr != nil {
		if err := s.transfers.Finalize(ctx, transfer.ID, models.StatusFailed, "", completedAt); err != nil {
			s.log.Printf("transfer %s: finalize failed state: %v (chain error: %v)", transfer.ID, err, chainErr)
		}
		transfer.Status = models.StatusFailed
		transfer.CompletedAt = &completedAt
		s.audit.RecordAsync(ctx, audit.Event{
			Action:     audit.ActionTransferFailed,
			ParcelID:   parcel.ID.String(),
			TransferID: transfer.ID.String(),
			ActorID:    callerID.String(),
			Detail:     chainErr.Error(),
		})
		return nil, chainErr
	}

	err = s.atomic.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.transfers.Finalize(ctx, transfer.ID, models.StatusCompleted, txHash, completedAt); err != nil {
			return fmt.Errorf("finalize transfer: %w", err)
		}
		if err := s.parcels.UpdateOwnership(ctx, transfer.ParcelID, transfer.ToUserID, transfer.ToWallet); err != nil {
			return fmt.Errorf("update parcel ownership: %w", err)
		}
		return s.audit.Record(ctx, audit.Event{
			Action:     audit.ActionTransferCompleted,
			ParcelID:   parcel.ID.String(),
			TransferID: transfer.ID.String(),
			ActorID:    callerID.String(),
			TxHash:     txHash,
		})
	})
	if err != nil {
		// The chain already moved the token. The record stays processing and
		// the reconciliation sweep repairs the database from chain state.
		s.log.Printf("transfer %s: on-chain transfer %s confirmed but database commit failed: %v", transfer.ID, txHash, err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "transfer confirmed on-chain but not recorded")
	}

	transfer.Status = models.StatusCompleted
	transfer.TxHash = txHash
	transfer.CompletedAt = &completedAt

	s.notifyByIDs(ctx, notify.EventTransferCompleted, transfer, parcel)
	return transfer, nil
}

// Cancel abandons a pending transfer. Either party may cancel; the chain is
// never consulted.
func (s *Service) Cancel(ctx context.Context, callerID id.UserID, transferID id.TransferID) (*models.TransferRequest, error) {
	transfer, err := s.cancel(ctx, callerID, transferID)
	s.metrics.IncrementOutcome("cancel", outcomeLabel(err))
	return transfer, err
}

func (s *Service) cancel(ctx context.Context, callerID id.UserID, transferID id.TransferID) (*models.TransferRequest, error) {
	transfer, err := s.transfers.Get(ctx, transferID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "transfer not found")
		}
		return nil, fmt.Errorf("load transfer: %w", err)
	}

	if callerID != transfer.FromUserID && callerID != transfer.ToUserID {
		return nil, dErrors.New(dErrors.CodeNotAuthorized, "only the transfer parties can cancel it")
	}
	if transfer.Status != models.StatusPending {
		return nil, dErrors.New(dErrors.CodeNotPending,
			fmt.Sprintf("transfer is %s, only pending transfers can be cancelled", transfer.Status))
	}

	if err := s.transfers.CompareAndSetStatus(ctx, transfer.ID, models.StatusPending, models.StatusCancelled); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeNotPending, "transfer was claimed or cancelled concurrently")
		}
		return nil, fmt.Errorf("cancel transfer: %w", err)
	}

	cancelledAt := requestcontext.Now(ctx).UTC()
	if err := s.transfers.Finalize(ctx, transfer.ID, models.StatusCancelled, "", cancelledAt); err != nil {
		s.log.Printf("transfer %s: record cancellation time: %v", transfer.ID, err)
	}
	transfer.Status = models.StatusCancelled
	transfer.CompletedAt = &cancelledAt

	s.audit.RecordAsync(ctx, audit.Event{
		Action:     audit.ActionTransferCancelled,
		ParcelID:   transfer.ParcelID.String(),
		TransferID: transfer.ID.String(),
		ActorID:    callerID.String(),
	})

	if parcel, err := s.parcels.Get(ctx, transfer.ParcelID); err == nil {
		s.notifyByIDs(ctx, notify.EventTransferCancelled, transfer, parcel)
	}

	return transfer, nil
}

// Get returns a transfer visible to the caller: a party to it, or an admin.
func (s *Service) Get(ctx context.Context, callerID id.UserID, transferID id.TransferID) (*models.TransferRequest, error) {
	transfer, err := s.transfers.Get(ctx, transferID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "transfer not found")
		}
		return nil, fmt.Errorf("load transfer: %w", err)
	}
	if callerID != transfer.FromUserID && callerID != transfer.ToUserID &&
		requestcontext.CallerRole(ctx) != requestcontext.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeNotAuthorized, "transfer is not visible to this user")
	}
	return transfer, nil
}

// ListForUser returns every transfer where the user is a party.
func (s *Service) ListForUser(ctx context.Context, userID id.UserID) ([]*models.TransferRequest, error) {
	transfers, err := s.transfers.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	return transfers, nil
}

func (s *Service) dispatch(ctx context.Context, kind notify.EventKind, transfer *models.TransferRequest, parcel *parcelmodels.Parcel, from, to *identity.User) {
	if s.notifier == nil {
		return
	}
	s.notifier.Dispatch(ctx, kind, transfer, parcel, from, to)
}

func (s *Service) notifyByIDs(ctx context.Context, kind notify.EventKind, transfer *models.TransferRequest, parcel *parcelmodels.Parcel) {
	if s.notifier == nil {
		return
	}
	from, err := s.directory.Get(ctx, transfer.FromUserID)
	if err != nil {
		s.log.Printf("notify %s: resolve sender: %v", kind, err)
		return
	}
	to, err := s.directory.Get(ctx, transfer.ToUserID)
	if err != nil {
		s.log.Printf("notify %s: resolve recipient: %v", kind, err)
		return
	}
	s.notifier.Dispatch(ctx, kind, transfer, parcel, from, to)
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	return string(dErrors.CodeOf(err))
}
