package http

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "landledger/pkg/domain-errors"
)

type errorBody struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain error codes onto HTTP statuses. Unrecognized errors
// surface as 500 without leaking internals.
func writeError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error: "internal error",
			Code:  string(dErrors.CodeInternal),
		})
		return
	}

	writeJSON(w, statusFor(domainErr.Code), errorBody{
		Error:   domainErr.Message,
		Code:    string(domainErr.Code),
		Details: domainErr.Details,
	})
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeSelfTransfer, dErrors.CodeNotOnChain,
		dErrors.CodeNotVerified, dErrors.CodeMissingWallet, dErrors.CodeRecipientMissingWallet:
		return http.StatusBadRequest
	case dErrors.CodeNotFound, dErrors.CodeRecipientNotFound:
		return http.StatusNotFound
	case dErrors.CodeNotOwner, dErrors.CodeNotInitiator, dErrors.CodeNotAuthorized,
		dErrors.CodeNotAuthorizedOnChain:
		return http.StatusForbidden
	case dErrors.CodeNotPending, dErrors.CodeTransferAlreadyPending, dErrors.CodeAlreadyRegistered:
		return http.StatusConflict
	case dErrors.CodeChainUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeChainTimeout, dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeChainRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
