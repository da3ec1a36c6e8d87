// Package http exposes the registry over a small JSON API. Handlers decode,
// delegate to services, and translate domain error codes to HTTP statuses;
// no business rules live here.
package http

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"landledger/internal/chain"
	"landledger/internal/chain/cache"
	parcelmodels "landledger/internal/parcel/models"
	parcelservice "landledger/internal/parcel/service"
	redisplatform "landledger/internal/platform/redis"
	transfermodels "landledger/internal/transfer/models"
	transferservice "landledger/internal/transfer/service"
	id "landledger/pkg/domain"
	dErrors "landledger/pkg/domain-errors"
	"landledger/pkg/requestcontext"
)

type Handler struct {
	parcels   *parcelservice.Service
	transfers *transferservice.Service
	chain     chain.Client
	reads     *cache.ReadCache
	db        *sql.DB
	redis     *redisplatform.Client
	log       *log.Logger
}

func NewHandler(parcels *parcelservice.Service, transfers *transferservice.Service, chainClient chain.Client, reads *cache.ReadCache, db *sql.DB, redisClient *redisplatform.Client, logger *log.Logger) *Handler {
	return &Handler{parcels: parcels, transfers: transfers, chain: chainClient, reads: reads, db: db, redis: redisClient, log: logger}
}

type parcelResponse struct {
	ID           string  `json:"id"`
	PropertyID   string  `json:"property_id"`
	OwnerID      string  `json:"owner_id"`
	Wallet       string  `json:"wallet_address,omitempty"`
	Title        string  `json:"title"`
	Location     string  `json:"location"`
	Area         float64 `json:"area"`
	PropertyType string  `json:"property_type"`
	Status       string  `json:"status"`
	IsRegistered bool    `json:"is_registered"`
	TokenID      int64   `json:"token_id,omitempty"`
	TxHash       string  `json:"tx_hash,omitempty"`
	BlockNumber  int64   `json:"block_number,omitempty"`
}

func toParcelResponse(p *parcelmodels.Parcel) parcelResponse {
	return parcelResponse{
		ID:           p.ID.String(),
		PropertyID:   p.PropertyID.String(),
		OwnerID:      p.OwnerID.String(),
		Wallet:       p.WalletAddress.String(),
		Title:        p.Title,
		Location:     p.Location,
		Area:         p.Area,
		PropertyType: p.PropertyType,
		Status:       string(p.Status),
		IsRegistered: p.IsRegistered,
		TokenID:      int64(p.TokenID),
		TxHash:       p.TxHash,
		BlockNumber:  p.BlockNumber,
	}
}

type transferResponse struct {
	ID          string     `json:"id"`
	ParcelID    string     `json:"parcel_id"`
	FromUserID  string     `json:"from_user_id"`
	ToUserID    string     `json:"to_user_id"`
	ToWallet    string     `json:"to_wallet"`
	Price       float64    `json:"price"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	TxHash      string     `json:"tx_hash,omitempty"`
	InitiatedAt time.Time  `json:"initiated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func toTransferResponse(t *transfermodels.TransferRequest) transferResponse {
	return transferResponse{
		ID:          t.ID.String(),
		ParcelID:    t.ParcelID.String(),
		FromUserID:  t.FromUserID.String(),
		ToUserID:    t.ToUserID.String(),
		ToWallet:    t.ToWallet.String(),
		Price:       t.Price,
		Kind:        string(t.Kind),
		Status:      string(t.Status),
		TxHash:      t.TxHash,
		InitiatedAt: t.InitiatedAt,
		CompletedAt: t.CompletedAt,
	}
}

type submitParcelRequest struct {
	PropertyID   string  `json:"property_id"`
	Title        string  `json:"title"`
	Location     string  `json:"location"`
	Area         float64 `json:"area"`
	PropertyType string  `json:"property_type"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	DocumentHash string  `json:"document_hash"`
}

func (h *Handler) submitParcel(w http.ResponseWriter, r *http.Request) {
	var req submitParcelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed request body"))
		return
	}

	propertyID, err := id.ParsePropertyID(req.PropertyID)
	if err != nil {
		writeError(w, err)
		return
	}

	parcel, err := h.parcels.Submit(r.Context(), requestcontext.UserID(r.Context()), parcelmodels.Submission{
		PropertyID:   propertyID,
		Title:        req.Title,
		Location:     req.Location,
		Area:         req.Area,
		PropertyType: req.PropertyType,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		DocumentHash: req.DocumentHash,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toParcelResponse(parcel))
}

func (h *Handler) listParcels(w http.ResponseWriter, r *http.Request) {
	parcels, err := h.parcels.ListOwned(r.Context(), requestcontext.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]parcelResponse, 0, len(parcels))
	for _, p := range parcels {
		out = append(out, toParcelResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getParcel(w http.ResponseWriter, r *http.Request) {
	parcelID, err := id.ParseParcelID(chi.URLParam(r, "parcelID"))
	if err != nil {
		writeError(w, err)
		return
	}
	parcel, err := h.parcels.Get(r.Context(), requestcontext.UserID(r.Context()), parcelID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toParcelResponse(parcel))
}

type reviewRequest struct {
	Approve bool `json:"approve"`
}

func (h *Handler) reviewParcel(w http.ResponseWriter, r *http.Request) {
	parcelID, err := id.ParseParcelID(chi.URLParam(r, "parcelID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed request body"))
		return
	}
	parcel, err := h.parcels.Review(r.Context(), parcelID, req.Approve)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toParcelResponse(parcel))
}

type chainRecordResponse struct {
	TokenID    int64  `json:"token_id"`
	PropertyID string `json:"property_id"`
	Owner      string `json:"owner"`
}

// getParcelChainRecord reads the parcel's live on-chain record through the
// TTL cache. Visibility follows the parcel itself.
func (h *Handler) getParcelChainRecord(w http.ResponseWriter, r *http.Request) {
	parcelID, err := id.ParseParcelID(chi.URLParam(r, "parcelID"))
	if err != nil {
		writeError(w, err)
		return
	}
	parcel, err := h.parcels.Get(r.Context(), requestcontext.UserID(r.Context()), parcelID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !parcel.OnChain() {
		writeError(w, dErrors.New(dErrors.CodeNotOnChain, "parcel is not registered on-chain"))
		return
	}

	record, err := h.reads.RegisteredParcel(r.Context(), parcel.TokenID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chainRecordResponse{
		TokenID:    int64(record.TokenID),
		PropertyID: record.PropertyID.String(),
		Owner:      record.Owner.String(),
	})
}

type initiateTransferRequest struct {
	ParcelID  string  `json:"parcel_id"`
	Recipient string  `json:"recipient"`
	Price     float64 `json:"price"`
	Kind      string  `json:"kind"`
}

func (h *Handler) initiateTransfer(w http.ResponseWriter, r *http.Request) {
	var req initiateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed request body"))
		return
	}
	parcelID, err := id.ParseParcelID(req.ParcelID)
	if err != nil {
		writeError(w, err)
		return
	}

	transfer, err := h.transfers.Initiate(r.Context(), requestcontext.UserID(r.Context()), transferservice.InitiateRequest{
		ParcelID:  parcelID,
		Recipient: req.Recipient,
		Price:     req.Price,
		Kind:      transfermodels.Kind(req.Kind),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransferResponse(transfer))
}

func (h *Handler) listTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.transfers.ListForUser(r.Context(), requestcontext.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]transferResponse, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, toTransferResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getTransfer(w http.ResponseWriter, r *http.Request) {
	transferID, err := id.ParseTransferID(chi.URLParam(r, "transferID"))
	if err != nil {
		writeError(w, err)
		return
	}
	transfer, err := h.transfers.Get(r.Context(), requestcontext.UserID(r.Context()), transferID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransferResponse(transfer))
}

func (h *Handler) executeTransfer(w http.ResponseWriter, r *http.Request) {
	transferID, err := id.ParseTransferID(chi.URLParam(r, "transferID"))
	if err != nil {
		writeError(w, err)
		return
	}
	transfer, err := h.transfers.Execute(r.Context(), requestcontext.UserID(r.Context()), transferID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransferResponse(transfer))
}

func (h *Handler) cancelTransfer(w http.ResponseWriter, r *http.Request) {
	transferID, err := id.ParseTransferID(chi.URLParam(r, "transferID"))
	if err != nil {
		writeError(w, err)
		return
	}
	transfer, err := h.transfers.Cancel(r.Context(), requestcontext.UserID(r.Context()), transferID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransferResponse(transfer))
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"database": "ok", "chain": "ok"}
	healthy := true

	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			status["database"] = "unreachable"
			healthy = false
		}
	}
	if h.chain != nil && !h.chain.IsReachable(r.Context()) {
		// Degraded, not down: reads and intake still work without the chain.
		status["chain"] = "unreachable"
	}
	if h.redis != nil {
		status["redis"] = "ok"
		if err := h.redis.Health(r.Context()); err != nil {
			// Degraded, not down: the cache is an optimization.
			status["redis"] = "unreachable"
		}
	} else {
		status["redis"] = "disabled"
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
