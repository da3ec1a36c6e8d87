package registration

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"landledger/internal/chain"
	"landledger/internal/chain/chaintest"
	"landledger/internal/parcel/models"
	parcelstore "landledger/internal/parcel/store"
	transfermodels "landledger/internal/transfer/models"
	transferstore "landledger/internal/transfer/store"
	id "landledger/pkg/domain"
	dErrors "landledger/pkg/domain-errors"
	"landledger/pkg/platform/audit"
	auditmemory "landledger/pkg/platform/audit/store/memory"
)

const (
	signerAddr = id.WalletAddress("0x00000000000000000000000000000000000000aa")
	ownerAddr  = id.WalletAddress("0x00000000000000000000000000000000000000a1")
)

type RegistrationSuite struct {
	suite.Suite

	ctx       context.Context
	parcels   *parcelstore.InMemoryStore
	transfers *transferstore.InMemoryStore
	fake      *chaintest.Fake
	auditLog  *auditmemory.InMemoryStore
	svc       *Service
	sweeper   *Reconciler
}

func TestRegistrationSuite(t *testing.T) {
	suite.Run(t, new(RegistrationSuite))
}

func (s *RegistrationSuite) SetupTest() {
	s.ctx = context.Background()
	s.parcels = parcelstore.NewMemory()
	s.transfers = transferstore.NewMemory()
	s.fake = chaintest.NewFake(signerAddr)
	s.auditLog = auditmemory.NewInMemoryStore()

	logger := log.New(io.Discard, "", 0)
	auditor := audit.NewService(s.auditLog, logger)

	svc, err := NewService(s.parcels, s.fake, auditor, nil, logger)
	s.Require().NoError(err)
	s.svc = svc

	sweeper, err := NewReconciler(s.parcels, s.transfers, s.fake, svc, auditor, nil, logger)
	s.Require().NoError(err)
	s.sweeper = sweeper
}

func (s *RegistrationSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *RegistrationSuite) seedParcel(propertyID id.PropertyID, status models.Status) *models.Parcel {
	parcel := &models.Parcel{
		ID:            id.NewParcelID(),
		PropertyID:    propertyID,
		OwnerID:       id.NewUserID(),
		WalletAddress: ownerAddr,
		Title:         "Test Parcel",
		Location:      "Lot 4, North District",
		Area:          1200,
		PropertyType:  "residential",
		Status:        status,
	}
	s.Require().NoError(s.parcels.Create(s.ctx, parcel))
	return parcel
}

func (s *RegistrationSuite) seedRegistered(propertyID id.PropertyID, tokenID id.TokenID) *models.Parcel {
	parcel := s.seedParcel(propertyID, models.StatusVerified)
	facts := models.RegistrationFacts{TokenID: tokenID, TxHash: "0xseed", BlockNumber: 1}
	s.Require().NoError(s.parcels.MarkRegistered(s.ctx, parcel.ID, facts))
	s.fake.Total = max(s.fake.Total, int64(tokenID))
	return parcel
}

func (s *RegistrationSuite) TestRegisterIfEligible() {
	s.Run("registers a verified parcel with all facts", func() {
		parcel := s.seedParcel("PROP-100", models.StatusVerified)

		registered, err := s.svc.RegisterIfEligible(s.ctx, parcel.ID)
		s.Require().NoError(err)

		s.True(registered.IsRegistered)
		s.NotZero(registered.TokenID)
		s.NotEmpty(registered.TxHash)
		s.NotZero(registered.BlockNumber)

		stored, err := s.parcels.Get(s.ctx, parcel.ID)
		s.Require().NoError(err)
		s.True(stored.IsRegistered)
		s.Equal(registered.TokenID, stored.TokenID)
		s.Equal(registered.TxHash, stored.TxHash)
		s.Equal(1, s.fake.RegistrationCalls)
	})

	s.Run("rejects pending parcel", func() {
		parcel := s.seedParcel("PROP-101", models.StatusPending)

		_, err := s.svc.RegisterIfEligible(s.ctx, parcel.ID)
		s.True(dErrors.IsCode(err, dErrors.CodeNotVerified))
		s.Zero(s.fake.RegistrationCalls)
	})

	s.Run("rejects rejected parcel", func() {
		parcel := s.seedParcel("PROP-102", models.StatusRejected)

		_, err := s.svc.RegisterIfEligible(s.ctx, parcel.ID)
		s.True(dErrors.IsCode(err, dErrors.CodeNotVerified))
	})

	s.Run("rejects already registered parcel without a chain call", func() {
		parcel := s.seedParcel("PROP-103", models.StatusVerified)
		_, err := s.svc.RegisterIfEligible(s.ctx, parcel.ID)
		s.Require().NoError(err)
		calls := s.fake.RegistrationCalls

		_, err = s.svc.RegisterIfEligible(s.ctx, parcel.ID)
		s.True(dErrors.IsCode(err, dErrors.CodeAlreadyRegistered))
		s.Equal(calls, s.fake.RegistrationCalls)
	})

	s.Run("rejects parcel without wallet", func() {
		parcel := s.seedParcel("PROP-104", models.StatusVerified)
		parcel.WalletAddress = ""
		s.parcels = parcelstore.NewMemory()
		s.Require().NoError(s.parcels.Create(s.ctx, parcel))
		logger := log.New(io.Discard, "", 0)
		svc, err := NewService(s.parcels, s.fake, nil, nil, logger)
		s.Require().NoError(err)

		_, err = svc.RegisterIfEligible(s.ctx, parcel.ID)
		s.True(dErrors.IsCode(err, dErrors.CodeMissingWallet))
	})

	s.Run("chain failure leaves the record untouched", func() {
		parcel := s.seedParcel("PROP-105", models.StatusVerified)
		s.fake.RegisterFn = func(chain.Registration) (chain.RegistrationResult, error) {
			return chain.RegistrationResult{}, chain.Timeout(errors.New("no receipt"))
		}

		_, err := s.svc.RegisterIfEligible(s.ctx, parcel.ID)
		s.True(dErrors.IsCode(err, dErrors.CodeChainTimeout))
		s.True(dErrors.IsRetryable(err))

		stored, getErr := s.parcels.Get(s.ctx, parcel.ID)
		s.Require().NoError(getErr)
		s.False(stored.IsRegistered)
		s.Zero(stored.TokenID)
		s.Empty(stored.TxHash)
	})

	s.Run("unknown parcel", func() {
		_, err := s.svc.RegisterIfEligible(s.ctx, id.NewParcelID())
		s.True(dErrors.IsCode(err, dErrors.CodeNotFound))
	})
}

func (s *RegistrationSuite) TestRegisterEligibleBatch() {
	s.seedParcel("PROP-200", models.StatusVerified)
	s.seedParcel("PROP-201", models.StatusVerified)
	s.seedParcel("PROP-202", models.StatusPending)

	report, err := s.sweeper.RegisterEligible(s.ctx)
	s.Require().NoError(err)

	s.Equal(2, report.Scanned)
	s.Len(report.Registered, 2)
	s.Empty(report.Failures)
	s.Equal(2, s.fake.RegistrationCalls)
}

func (s *RegistrationSuite) TestRegisterEligibleCollectsFailures() {
	good := s.seedParcel("PROP-210", models.StatusVerified)
	bad := s.seedParcel("PROP-211", models.StatusVerified)

	var minted atomic.Int64
	s.fake.RegisterFn = func(reg chain.Registration) (chain.RegistrationResult, error) {
		if reg.PropertyID == bad.PropertyID {
			return chain.RegistrationResult{}, chain.Rejected("duplicate property id")
		}
		tokenID := id.TokenID(minted.Add(1))
		return chain.RegistrationResult{TxHash: "0xok", TokenID: tokenID, BlockNumber: 1}, nil
	}

	report, err := s.sweeper.RegisterEligible(s.ctx)
	s.Require().NoError(err)

	s.Len(report.Registered, 1)
	s.Equal(good.ID, report.Registered[0])
	s.Require().Len(report.Failures, 1)
	s.Equal(bad.ID, report.Failures[0].ParcelID)
	s.True(dErrors.IsCode(report.Failures[0].Err, dErrors.CodeChainRejected))
}

func (s *RegistrationSuite) TestRepairDrift() {
	// On-chain state knows PROP-300 as token 1, the database does not.
	drifted := s.seedParcel("PROP-300", models.StatusVerified)
	fresh := s.seedParcel("PROP-301", models.StatusVerified)

	s.fake.Total = 1
	s.fake.Owners[1] = signerAddr
	s.fake.Parcels[1] = chain.ParcelRecord{TokenID: 1, PropertyID: drifted.PropertyID, Owner: signerAddr}

	report, err := s.sweeper.RepairDrift(s.ctx)
	s.Require().NoError(err)

	s.Require().Len(report.Repaired, 1)
	s.Equal(drifted.ID, report.Repaired[0])
	s.Zero(s.fake.RegistrationCalls, "repair must never mint")

	repaired, err := s.parcels.Get(s.ctx, drifted.ID)
	s.Require().NoError(err)
	s.True(repaired.IsRegistered)
	s.Equal(id.TokenID(1), repaired.TokenID)

	untouched, err := s.parcels.Get(s.ctx, fresh.ID)
	s.Require().NoError(err)
	s.False(untouched.IsRegistered)
}

func (s *RegistrationSuite) TestRepairDriftUnreachableChain() {
	s.seedParcel("PROP-310", models.StatusVerified)
	s.fake.Reachable = false

	_, err := s.sweeper.RepairDrift(s.ctx)
	s.True(dErrors.IsCode(err, dErrors.CodeChainUnavailable))
}

func (s *RegistrationSuite) TestRunRepairsBeforeRegistering() {
	// PROP-320 is already minted as token 1; a full pass must repair it, not
	// mint it again, and then mint only PROP-321.
	minted := s.seedParcel("PROP-320", models.StatusVerified)
	missing := s.seedParcel("PROP-321", models.StatusVerified)

	s.fake.Total = 1
	s.fake.Owners[1] = signerAddr
	s.fake.Parcels[1] = chain.ParcelRecord{TokenID: 1, PropertyID: minted.PropertyID, Owner: signerAddr}

	report, err := s.sweeper.Run(s.ctx)
	s.Require().NoError(err)

	s.Len(report.Repaired, 1)
	s.Len(report.Registered, 1)
	s.Equal(missing.ID, report.Registered[0])
	s.Equal(1, s.fake.RegistrationCalls)
}

func (s *RegistrationSuite) TestRepairDriftSkipsUnreadableToken() {
	// Token 1 cannot be read back; token 2 matches a drifted record. The
	// unreadable token must be reported and skipped, not abort the pass.
	drifted := s.seedParcel("PROP-330", models.StatusVerified)

	s.fake.Total = 2
	s.fake.Owners[2] = signerAddr
	s.fake.Parcels[2] = chain.ParcelRecord{TokenID: 2, PropertyID: drifted.PropertyID, Owner: signerAddr}

	report, err := s.sweeper.RepairDrift(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(report)

	s.Require().Len(report.Repaired, 1)
	s.Equal(drifted.ID, report.Repaired[0])
	s.Require().Len(report.Unreadable, 1)
	s.Equal(id.TokenID(1), report.Unreadable[0].TokenID)
	s.True(dErrors.IsCode(report.Unreadable[0].Err, dErrors.CodeChainUnavailable))

	repaired, err := s.parcels.Get(s.ctx, drifted.ID)
	s.Require().NoError(err)
	s.True(repaired.IsRegistered)
	s.Equal(id.TokenID(2), repaired.TokenID)
}

func (s *RegistrationSuite) TestRunContinuesPastUnreadableToken() {
	// A full pass with one bad token still registers eligible parcels.
	fresh := s.seedParcel("PROP-340", models.StatusVerified)
	s.fake.Total = 1

	report, err := s.sweeper.Run(s.ctx)
	s.Require().NoError(err)

	s.Require().Len(report.Unreadable, 1)
	s.Equal(id.TokenID(1), report.Unreadable[0].TokenID)
	s.Len(report.Registered, 1)
	s.Equal(fresh.ID, report.Registered[0])
	s.Equal(1, s.fake.RegistrationCalls)
}

func (s *RegistrationSuite) TestSweepFlagsStuckTransfer() {
	recipient := id.WalletAddress("0x00000000000000000000000000000000000000b2")

	parcel := s.seedRegistered("PROP-350", 1)
	s.fake.Parcels[1] = chain.ParcelRecord{TokenID: 1, PropertyID: parcel.PropertyID, Owner: recipient}

	transfer := &transfermodels.TransferRequest{
		ID:          id.NewTransferID(),
		ParcelID:    parcel.ID,
		FromUserID:  parcel.OwnerID,
		ToUserID:    id.NewUserID(),
		FromWallet:  parcel.WalletAddress,
		ToWallet:    recipient,
		Kind:        transfermodels.KindSale,
		Status:      transfermodels.StatusProcessing,
		InitiatedAt: time.Now(),
	}
	s.Require().NoError(s.transfers.Create(s.ctx, transfer))

	report, err := s.sweeper.RepairDrift(s.ctx)
	s.Require().NoError(err)

	s.Require().Len(report.Stuck, 1)
	s.Equal(transfer.ID, report.Stuck[0].TransferID)
	s.Equal(parcel.ID, report.Stuck[0].ParcelID)
	s.True(report.Stuck[0].ConfirmedOnChain, "token already with the recipient means the chain leg completed")
	s.Empty(report.OwnerDrift, "stuck transfer already explains the custody mismatch")
}

func (s *RegistrationSuite) TestSweepFlagsUnconfirmedStuckTransfer() {
	recipient := id.WalletAddress("0x00000000000000000000000000000000000000b2")

	parcel := s.seedRegistered("PROP-351", 1)
	s.fake.Parcels[1] = chain.ParcelRecord{TokenID: 1, PropertyID: parcel.PropertyID, Owner: signerAddr}

	transfer := &transfermodels.TransferRequest{
		ID:          id.NewTransferID(),
		ParcelID:    parcel.ID,
		FromUserID:  parcel.OwnerID,
		ToUserID:    id.NewUserID(),
		FromWallet:  parcel.WalletAddress,
		ToWallet:    recipient,
		Kind:        transfermodels.KindSale,
		Status:      transfermodels.StatusProcessing,
		InitiatedAt: time.Now(),
	}
	s.Require().NoError(s.transfers.Create(s.ctx, transfer))

	report, err := s.sweeper.RepairDrift(s.ctx)
	s.Require().NoError(err)

	s.Require().Len(report.Stuck, 1)
	s.False(report.Stuck[0].ConfirmedOnChain, "token still with the signer means the chain leg never landed")
}

func (s *RegistrationSuite) TestSweepObservesCustodyDrift() {
	stranger := id.WalletAddress("0x00000000000000000000000000000000000000c3")

	held := s.seedRegistered("PROP-360", 1)
	s.fake.Parcels[1] = chain.ParcelRecord{TokenID: 1, PropertyID: held.PropertyID, Owner: signerAddr}

	moved := s.seedRegistered("PROP-361", 2)
	s.fake.Parcels[2] = chain.ParcelRecord{TokenID: 2, PropertyID: moved.PropertyID, Owner: stranger}

	report, err := s.sweeper.RepairDrift(s.ctx)
	s.Require().NoError(err)

	s.Require().Len(report.OwnerDrift, 1)
	s.Equal(moved.ID, report.OwnerDrift[0].ParcelID)
	s.Equal(id.TokenID(2), report.OwnerDrift[0].TokenID)
	s.Equal(stranger, report.OwnerDrift[0].ChainOwner)
	s.Empty(report.Missing)
}

func (s *RegistrationSuite) TestSweepReportsMissingToken() {
	// The database says token 3 exists, the chain says only two were minted.
	orphan := s.seedRegistered("PROP-370", 3)
	s.fake.Total = 2
	s.fake.Parcels[1] = chain.ParcelRecord{TokenID: 1, PropertyID: "PROP-371", Owner: signerAddr}
	s.fake.Parcels[2] = chain.ParcelRecord{TokenID: 2, PropertyID: "PROP-372", Owner: signerAddr}

	report, err := s.sweeper.RepairDrift(s.ctx)
	s.Require().NoError(err)

	s.Require().Len(report.Missing, 1)
	s.Equal(orphan.ID, report.Missing[0])
}
