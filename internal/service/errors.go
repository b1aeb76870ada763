package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"connectrpc.com/connect"

	"github.com/CristhianDaza/finControl/internal/access"
	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/store"
)

// Response headers.
const (
	ErrorCodeHeader    = "Fincontrol-Error-Code"
	AttemptsLeftHeader = "Fincontrol-Attempts-Left"
	BlockedUntilHeader = "Fincontrol-Blocked-Until"
	ReadOnlyHeader     = "Fincontrol-Read-Only"
)

// toConnectError maps engine errors onto connect codes and echoes the
// stable kind in ErrorCodeHeader.
func toConnectError(err error) *connect.Error {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr
	}

	if re, ok := access.IsRedeemError(err); ok {
		code := connect.CodeFailedPrecondition
		switch re.Reason {
		case access.ReasonNotFound:
			code = connect.CodeNotFound
		case access.ReasonBlocked:
			code = connect.CodeResourceExhausted
		}
		cerr = connect.NewError(code, err)
		cerr.Meta().Set(ErrorCodeHeader, "redeem."+string(re.Reason))
		cerr.Meta().Set(AttemptsLeftHeader, strconv.Itoa(re.AttemptsLeft))
		if re.BlockedUntil != nil {
			cerr.Meta().Set(BlockedUntilHeader, re.BlockedUntil.UTC().Format(time.RFC3339))
		}
		return cerr
	}

	if code := errs.CodeOf(err); code != "" {
		cerr = connect.NewError(connectCode(code), err)
		cerr.Meta().Set(ErrorCodeHeader, string(code))
		return cerr
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		cerr = connect.NewError(connect.CodeNotFound, err)
		cerr.Meta().Set(ErrorCodeHeader, string(errs.NotFound))
		return cerr
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

func connectCode(code errs.Code) connect.Code {
	switch {
	case code == errs.Unauthorized:
		return connect.CodeUnauthenticated
	case code == errs.Forbidden:
		return connect.CodePermissionDenied
	case code == errs.AccountInUse, code == errs.DebtHasPayments,
		code == errs.BalanceNegative, code == errs.DebtRemainingNegative:
		return connect.CodeFailedPrecondition
	case code == errs.SameAccount, code == errs.InvalidRate, errs.IsValidation(code):
		return connect.CodeInvalidArgument
	case errs.IsReferential(code):
		return connect.CodeNotFound
	}
	return connect.CodeUnknown
}
