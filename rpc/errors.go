package rpc

import (
	"errors"
	"net/http"

	"peershield/core"
	"peershield/native/coverage"
)

const (
	codeCoverageUnauthorized     = -32031
	codeCoverageNotFound         = -32032
	codeCoverageAlreadyInUse     = -32033
	codeCoverageEmptyBalance     = -32034
	codeCoverageNotInWhitelist   = -32035
	codeCoverageExpired          = -32036
	codeCoverageRecipientNotSet  = -32037
	codeCoverageInsufficientPool = -32038
	codeCoverageInvalidInput     = -32039
)

type errorMapping struct {
	target error
	status int
	code   int
}

var coverageErrors = []errorMapping{
	{coverage.ErrUnauthorized, http.StatusForbidden, codeCoverageUnauthorized},
	{coverage.ErrNotFound, http.StatusNotFound, codeCoverageNotFound},
	{coverage.ErrAlreadyInUse, http.StatusConflict, codeCoverageAlreadyInUse},
	{coverage.ErrEmptyBalance, http.StatusBadRequest, codeCoverageEmptyBalance},
	{coverage.ErrNotInWhitelist, http.StatusBadRequest, codeCoverageNotInWhitelist},
	{coverage.ErrExpired, http.StatusConflict, codeCoverageExpired},
	{coverage.ErrRecipientNotSet, http.StatusConflict, codeCoverageRecipientNotSet},
	{coverage.ErrInsufficientCover, http.StatusConflict, codeCoverageInsufficientPool},
	{coverage.ErrInvalidAddress, http.StatusBadRequest, codeCoverageInvalidInput},
	{coverage.ErrInvalidID, http.StatusBadRequest, codeCoverageInvalidInput},
	{core.ErrUnexpectedFunds, http.StatusBadRequest, codeInvalidParams},
	{core.ErrUnsupportedMsg, http.StatusBadRequest, codeInvalidParams},
}

// writeAppError maps an application error onto a JSON-RPC error. Unknown
// errors are reported as server errors.
func writeAppError(w http.ResponseWriter, id interface{}, err error) {
	for _, m := range coverageErrors {
		if errors.Is(err, m.target) {
			writeError(w, m.status, id, m.code, err.Error(), nil)
			return
		}
	}
	writeError(w, http.StatusInternalServerError, id, codeServerError, err.Error(), nil)
}
