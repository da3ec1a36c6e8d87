package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"landledger/internal/chain"
	"landledger/internal/chain/chaintest"
	id "landledger/pkg/domain"
	dErrors "landledger/pkg/domain-errors"
)

const (
	signerAddr = id.WalletAddress("0xbbbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB")
	ownerAddr  = id.WalletAddress("0xaAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa")
)

type ResolverSuite struct {
	suite.Suite
	fake     *chaintest.Fake
	resolver *Resolver
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.fake = chaintest.NewFake(signerAddr)
	s.resolver = NewResolver(s.fake)
}

// SetupSubTest resets the fake between s.Run subtests so operator grants and
// read errors scripted in one scenario do not leak into the next.
func (s *ResolverSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *ResolverSuite) TestResolve() {
	ctx := context.Background()

	s.Run("signer owns token directly", func() {
		s.fake.Owners[1] = signerAddr

		result, err := s.resolver.Resolve(ctx, 1, signerAddr)
		s.NoError(err)
		s.True(result.CanTransfer)
		s.Equal(ReasonOwnsDirectly, result.Reason)
	})

	s.Run("token-specific approval names signer", func() {
		s.fake.Owners[2] = ownerAddr
		s.fake.Approvals[2] = signerAddr

		result, err := s.resolver.Resolve(ctx, 2, ownerAddr)
		s.NoError(err)
		s.True(result.CanTransfer)
		s.Equal(ReasonApprovedSingleToken, result.Reason)
		s.Equal(ownerAddr, result.OnChainOwner)
	})

	s.Run("blanket operator delegation", func() {
		s.fake.Owners[3] = ownerAddr
		s.fake.GrantOperator(ownerAddr, signerAddr)

		result, err := s.resolver.Resolve(ctx, 3, ownerAddr)
		s.NoError(err)
		s.True(result.CanTransfer)
		s.Equal(ReasonApprovedForAll, result.Reason)
	})

	s.Run("no approval carries both addresses", func() {
		s.fake.Owners[4] = ownerAddr

		result, err := s.resolver.Resolve(ctx, 4, ownerAddr)
		s.NoError(err)
		s.False(result.CanTransfer)
		s.Equal(ReasonNotApproved, result.Reason)
		s.Equal(signerAddr, result.SignerAddress)
		s.Equal(ownerAddr, result.OnChainOwner)
	})

	s.Run("approval for different operator is not enough", func() {
		s.fake.Owners[5] = ownerAddr
		s.fake.Approvals[5] = id.WalletAddress("0xcCcCCCcCcccCcCCCcCcccccCCCcCcCcccCcCcCCC")

		result, err := s.resolver.Resolve(ctx, 5, ownerAddr)
		s.NoError(err)
		s.False(result.CanTransfer)
		s.Equal(ReasonNotApproved, result.Reason)
	})

	s.Run("failed read propagates as retryable, not false negative", func() {
		s.fake.Owners[6] = ownerAddr
		s.fake.ReadErr = chain.Unavailable(errors.New("rpc down"))

		_, err := s.resolver.Resolve(ctx, 6, ownerAddr)
		s.Error(err)
		s.Equal(dErrors.CodeChainUnavailable, dErrors.CodeOf(err))
		s.True(dErrors.IsRetryable(err))
	})
}

func (s *ResolverSuite) TestResolveCaseInsensitiveAddresses() {
	ctx := context.Background()

	// Same address, different checksum casing.
	s.fake.Owners[7] = id.WalletAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
	s.fake.Signer = id.WalletAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	result, err := s.resolver.Resolve(ctx, 7, s.fake.Signer)
	s.NoError(err)
	s.True(result.CanTransfer)
	s.Equal(ReasonOwnsDirectly, result.Reason)
}
