package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"landledger/internal/authz"
	"landledger/internal/chain/cache"
	"landledger/internal/chain/chaintest"
	"landledger/internal/identity"
	parcelservice "landledger/internal/parcel/service"
	parcelstore "landledger/internal/parcel/store"
	"landledger/internal/registration"
	transferservice "landledger/internal/transfer/service"
	transferstore "landledger/internal/transfer/store"
	id "landledger/pkg/domain"
	"landledger/pkg/requestcontext"
)

var signingKey = []byte("test-signing-key")

const (
	signerAddr = id.WalletAddress("0x00000000000000000000000000000000000000aa")
	aliceAddr  = id.WalletAddress("0x00000000000000000000000000000000000000a1")
	bobAddr    = id.WalletAddress("0x00000000000000000000000000000000000000b2")
)

type APISuite struct {
	suite.Suite

	server *httptest.Server
	fake   *chaintest.Fake

	alice *identity.User
	bob   *identity.User
	admin *identity.User
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	s.alice = &identity.User{ID: id.NewUserID(), Username: "alice", Email: "alice@example.com", Wallet: aliceAddr}
	s.bob = &identity.User{ID: id.NewUserID(), Username: "bob", Email: "bob@example.com", Wallet: bobAddr}
	s.admin = &identity.User{ID: id.NewUserID(), Username: "registrar", Email: "registrar@example.com"}
	directory := identity.NewInMemoryDirectory(s.alice, s.bob, s.admin)

	s.fake = chaintest.NewFake(signerAddr)
	parcels := parcelstore.NewMemory()
	transfers := transferstore.NewMemory()
	logger := log.New(io.Discard, "", 0)

	registrar, err := registration.NewService(parcels, s.fake, nil, nil, logger)
	s.Require().NoError(err)

	parcelSvc, err := parcelservice.NewService(parcels, directory, registrar, nil, logger)
	s.Require().NoError(err)

	transferSvc, err := transferservice.NewService(
		transfers, parcels, directory,
		authz.NewResolver(s.fake), s.fake,
		nil, nil, transferservice.NewMemoryAtomic(), nil, logger,
	)
	s.Require().NoError(err)

	handler := NewHandler(parcelSvc, transferSvc, s.fake, cache.New(s.fake, nil, time.Minute), nil, nil, logger)
	s.server = httptest.NewServer(NewRouter(handler, signingKey))
}

func (s *APISuite) TearDownTest() {
	s.server.Close()
}

func (s *APISuite) token(user *identity.User, role requestcontext.Role) string {
	claims := jwt.MapClaims{
		"sub": user.ID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if role == requestcontext.RoleAdmin {
		claims["role"] = string(requestcontext.RoleAdmin)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	s.Require().NoError(err)
	return signed
}

func (s *APISuite) request(method, path, token string, body any) (*http.Response, map[string]any) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, s.server.URL+path, payload)
	s.Require().NoError(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

// submitAndVerify drives a parcel through intake and registration, returning
// its id.
func (s *APISuite) submitAndVerify() string {
	resp, body := s.request(http.MethodPost, "/api/v1/parcels", s.token(s.alice, requestcontext.RoleUser), map[string]any{
		"property_id":   "PROP-001",
		"title":         "Family Plot",
		"location":      "Lot 4, North District",
		"area":          1200.0,
		"property_type": "residential",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	parcelID := body["id"].(string)

	resp, body = s.request(http.MethodPost, fmt.Sprintf("/api/v1/parcels/%s/review", parcelID),
		s.token(s.admin, requestcontext.RoleAdmin), map[string]any{"approve": true})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal(true, body["is_registered"])

	return parcelID
}

func (s *APISuite) TestUnauthenticated() {
	resp, _ := s.request(http.MethodGet, "/api/v1/parcels", "", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.request(http.MethodGet, "/api/v1/parcels", "not-a-token", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *APISuite) TestHealthz() {
	resp, body := s.request(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("ok", body["chain"])
	s.Equal("disabled", body["redis"], "no cache configured in this suite")
}

func (s *APISuite) TestSubmitRejectsBadPropertyID() {
	submit := func(propertyID string) int {
		resp, _ := s.request(http.MethodPost, "/api/v1/parcels", s.token(s.alice, requestcontext.RoleUser), map[string]any{
			"property_id":   propertyID,
			"title":         "Family Plot",
			"location":      "Lot 4, North District",
			"area":          1200.0,
			"property_type": "residential",
		})
		return resp.StatusCode
	}

	s.Equal(http.StatusBadRequest, submit(""))
	s.Equal(http.StatusBadRequest, submit(strings.Repeat("P", 51)))
}

func (s *APISuite) TestParcelLifecycle() {
	parcelID := s.submitAndVerify()

	resp, body := s.request(http.MethodGet, "/api/v1/parcels/"+parcelID, s.token(s.alice, requestcontext.RoleUser), nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("verified", body["status"])
	s.Equal(true, body["is_registered"])

	resp, body = s.request(http.MethodGet, "/api/v1/parcels/"+parcelID+"/chain", s.token(s.alice, requestcontext.RoleUser), nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("PROP-001", body["property_id"])
	s.Equal(signerAddr.String(), body["owner"])
}

func (s *APISuite) TestReviewRequiresAdmin() {
	resp, body := s.request(http.MethodPost, "/api/v1/parcels", s.token(s.alice, requestcontext.RoleUser), map[string]any{
		"property_id":   "PROP-002",
		"title":         "Plot",
		"location":      "Somewhere",
		"area":          100.0,
		"property_type": "residential",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	resp, _ = s.request(http.MethodPost, fmt.Sprintf("/api/v1/parcels/%s/review", body["id"]),
		s.token(s.alice, requestcontext.RoleUser), map[string]any{"approve": true})
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *APISuite) TestTransferLifecycle() {
	parcelID := s.submitAndVerify()

	resp, body := s.request(http.MethodPost, "/api/v1/transfers", s.token(s.alice, requestcontext.RoleUser), map[string]any{
		"parcel_id": parcelID,
		"recipient": "bob",
		"price":     2.5,
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.Equal("pending", body["status"])
	transferID := body["id"].(string)

	// Second initiation conflicts.
	resp, _ = s.request(http.MethodPost, "/api/v1/transfers", s.token(s.alice, requestcontext.RoleUser), map[string]any{
		"parcel_id": parcelID,
		"recipient": "bob",
	})
	s.Equal(http.StatusConflict, resp.StatusCode)

	// Only the initiator may execute.
	resp, _ = s.request(http.MethodPost, "/api/v1/transfers/"+transferID+"/execute", s.token(s.bob, requestcontext.RoleUser), nil)
	s.Equal(http.StatusForbidden, resp.StatusCode)

	resp, body = s.request(http.MethodPost, "/api/v1/transfers/"+transferID+"/execute", s.token(s.alice, requestcontext.RoleUser), nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("completed", body["status"])
	s.NotEmpty(body["tx_hash"])

	resp, body = s.request(http.MethodGet, "/api/v1/parcels/"+parcelID, s.token(s.bob, requestcontext.RoleUser), nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(s.bob.ID.String(), body["owner_id"])
}

func (s *APISuite) TestCancelTransfer() {
	parcelID := s.submitAndVerify()

	resp, body := s.request(http.MethodPost, "/api/v1/transfers", s.token(s.alice, requestcontext.RoleUser), map[string]any{
		"parcel_id": parcelID,
		"recipient": "bob",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	transferID := body["id"].(string)

	resp, body = s.request(http.MethodPost, "/api/v1/transfers/"+transferID+"/cancel", s.token(s.bob, requestcontext.RoleUser), nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("cancelled", body["status"])
	s.Zero(s.fake.TransferCalls)

	resp, _ = s.request(http.MethodPost, "/api/v1/transfers/"+transferID+"/execute", s.token(s.alice, requestcontext.RoleUser), nil)
	s.Equal(http.StatusConflict, resp.StatusCode)
}

func (s *APISuite) TestNotAuthorizedOnChainDetails() {
	parcelID := s.submitAndVerify()

	// Move the token away from the custodial signer.
	other := id.WalletAddress("0x00000000000000000000000000000000000000cc")
	s.fake.Owners[1] = other

	resp, body := s.request(http.MethodPost, "/api/v1/transfers", s.token(s.alice, requestcontext.RoleUser), map[string]any{
		"parcel_id": parcelID,
		"recipient": "bob",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	transferID := body["id"].(string)

	resp, body = s.request(http.MethodPost, "/api/v1/transfers/"+transferID+"/execute", s.token(s.alice, requestcontext.RoleUser), nil)
	s.Equal(http.StatusForbidden, resp.StatusCode)
	s.Equal("NOT_AUTHORIZED_ON_CHAIN", body["code"])

	details := body["details"].(map[string]any)
	s.Equal(other.String(), details["current_owner"])
	s.Equal(signerAddr.String(), details["signer_address"])
}
