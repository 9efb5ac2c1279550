package api

import (
	"errors"
	"net/http"

	"github.com/xraph/tenure"
)

// Error codes returned in the "code" field of error responses.
const (
	CodeInvalidInput       = "invalid_input"
	CodeInvalidVoucher     = "invalid_voucher"
	CodeMissingCaller      = "missing_caller"
	CodeMalformedSignature = "malformed_signature"
	CodeUnauthorizedSigner = "unauthorized_signer"
	CodeInvalidDuration    = "invalid_duration"
	CodeReplayedSignature  = "replayed_signature"
	CodeVoucherExpired     = "voucher_expired"
	CodePaymentMismatch    = "payment_mismatch"
	CodePayoutFailed       = "payout_failed"
	CodeNotAuthorized      = "not_authorized"
	CodeNotRenewable       = "not_renewable"
	CodeSystemPaused       = "system_paused"
	CodeNotFound           = "not_found"
	CodeBusy               = "busy"
	CodeInternal           = "internal"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{tenure.ErrSystemPaused, http.StatusServiceUnavailable, CodeSystemPaused},
	{tenure.ErrMalformedSignature, http.StatusBadRequest, CodeMalformedSignature},
	{tenure.ErrInvalidVoucher, http.StatusBadRequest, CodeInvalidVoucher},
	{tenure.ErrInvalidInput, http.StatusBadRequest, CodeInvalidInput},
	{tenure.ErrUnauthorizedSigner, http.StatusUnauthorized, CodeUnauthorizedSigner},
	{tenure.ErrPaymentMismatch, http.StatusPaymentRequired, CodePaymentMismatch},
	{tenure.ErrNotAuthorized, http.StatusForbidden, CodeNotAuthorized},
	{tenure.ErrAssetNotFound, http.StatusNotFound, CodeNotFound},
	{tenure.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{tenure.ErrReplayedSignature, http.StatusConflict, CodeReplayedSignature},
	{tenure.ErrVoucherExpired, http.StatusGone, CodeVoucherExpired},
	{tenure.ErrInvalidDuration, http.StatusUnprocessableEntity, CodeInvalidDuration},
	{tenure.ErrNotRenewable, http.StatusPreconditionFailed, CodeNotRenewable},
	{tenure.ErrPayoutFailed, http.StatusBadGateway, CodePayoutFailed},
	{tenure.ErrLockNotAcquired, http.StatusTooManyRequests, CodeBusy},
}

// classify returns the status and code for err. Order matters: the first
// matching sentinel wins, so wrapped validation causes keep their own code.
func classify(err error) (int, string) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}
