package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/CristhianDaza/finControl/internal/access"
	"github.com/CristhianDaza/finControl/internal/currency"
	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/export"
	"github.com/CristhianDaza/finControl/internal/ledger"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/recurring"
	"github.com/CristhianDaza/finControl/internal/search"
	"github.com/CristhianDaza/finControl/internal/store"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func createAccount(t *testing.T, ts *testServer, uid, opening string) *model.Account {
	t.Helper()
	res, err := call[CreateAccountRequest, AccountResponse](t, ts, "CreateAccount", uid, &CreateAccountRequest{
		ledger.AccountInput{Name: "Wallet", OpeningBalance: dec(opening), Currency: "COP"},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Msg.Account)
	return res.Msg.Account
}

func errorMeta(t *testing.T, err error) (connect.Code, string) {
	t.Helper()
	var cerr *connect.Error
	require.True(t, errors.As(err, &cerr), "expected a connect error, got %v", err)
	return cerr.Code(), cerr.Meta().Get(ErrorCodeHeader)
}

func TestTransactionRoundTrip(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.grantPlan(t, "user-1")
	acc := createAccount(t, ts, "user-1", "1000")
	assert.Equal(t, int64(100000), acc.BalanceCents)

	created, err := call[CreateTransactionRequest, TransactionResponse](t, ts, "CreateTransaction", "user-1", &CreateTransactionRequest{
		ledger.TransactionInput{Type: model.TypeExpense, Amount: dec("250.50"), AccountID: acc.ID, Date: "2026-10-15", Note: "Groceries"},
	})
	require.NoError(t, err)
	assert.False(t, created.Msg.ReadOnly)
	assert.Equal(t, int64(25050), created.Msg.Transaction.AmountCents)

	got, err := call[IDRequest, AccountResponse](t, ts, "GetAccount", "user-1", &IDRequest{ID: acc.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(74950), got.Msg.Account.BalanceCents)

	list, err := call[ListTransactionsRequest, ListTransactionsResponse](t, ts, "ListTransactions", "user-1", &ListTransactionsRequest{AccountID: acc.ID})
	require.NoError(t, err)
	require.Len(t, list.Msg.Transactions, 1)

	_, err = call[IDRequest, DeleteResponse](t, ts, "DeleteTransaction", "user-1", &IDRequest{ID: created.Msg.Transaction.ID})
	require.NoError(t, err)

	rec, err := call[IDRequest, ReconcileResponse](t, ts, "ReconcileAccount", "user-1", &IDRequest{ID: acc.ID})
	require.NoError(t, err)
	assert.True(t, rec.Msg.Balanced)
	assert.Equal(t, int64(100000), rec.Msg.Reconciliation.StoredCents)
}

func TestReadOnlyWriteIsSoftSuccess(t *testing.T) {
	ts := newTestServer(t, nil)

	res, err := call[CreateAccountRequest, AccountResponse](t, ts, "CreateAccount", "user-1", &CreateAccountRequest{
		ledger.AccountInput{Name: "Wallet", OpeningBalance: dec("10"), Currency: "COP"},
	})
	require.NoError(t, err)
	assert.True(t, res.Msg.ReadOnly)
	assert.Nil(t, res.Msg.Account)
	assert.Equal(t, "true", res.Header().Get(ReadOnlyHeader))

	accounts, err := ts.store.ListAccounts(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, accounts)

	notes, _, err := ts.store.ListNotifications(context.Background(), "user-1", false, 0, "")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, model.NotifyReadOnly, notes[0].Kind)
}

func TestErrorsCarryStableCode(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.grantPlan(t, "user-1")
	acc := createAccount(t, ts, "user-1", "10")

	_, err := call[CreateTransactionRequest, TransactionResponse](t, ts, "CreateTransaction", "user-1", &CreateTransactionRequest{
		ledger.TransactionInput{Type: model.TypeExpense, Amount: dec("0"), AccountID: acc.ID},
	})
	code, kind := errorMeta(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, code)
	assert.Equal(t, string(errs.InvalidAmount), kind)

	_, err = call[CreateTransactionRequest, TransactionResponse](t, ts, "CreateTransaction", "user-1", &CreateTransactionRequest{
		ledger.TransactionInput{Type: model.TypeExpense, Amount: dec("50"), AccountID: acc.ID},
	})
	code, kind = errorMeta(t, err)
	assert.Equal(t, connect.CodeFailedPrecondition, code)
	assert.Equal(t, string(errs.BalanceNegative), kind)

	_, err = call[IDRequest, AccountResponse](t, ts, "GetAccount", "user-1", &IDRequest{ID: "missing"})
	code, kind = errorMeta(t, err)
	assert.Equal(t, connect.CodeNotFound, code)
	assert.Equal(t, string(errs.AccountNotFound), kind)

	_, err = call[Empty, ListAccountsResponse](t, ts, "ListAccounts", "", &Empty{})
	code, _ = errorMeta(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, code)
}

func TestAccountsAreScopedToCaller(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.grantPlan(t, "user-1")
	acc := createAccount(t, ts, "user-1", "10")

	_, err := call[IDRequest, AccountResponse](t, ts, "GetAccount", "user-2", &IDRequest{ID: acc.ID})
	code, _ := errorMeta(t, err)
	assert.Equal(t, connect.CodeNotFound, code)
}

func TestRedeemRejectionHeaders(t *testing.T) {
	ts := newTestServer(t, nil)

	_, err := call[CodeRequest, RedeemResponse](t, ts, "RedeemInviteCode", "user-1", &CodeRequest{Code: "NOPE-NOPE"})
	var cerr *connect.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, connect.CodeNotFound, cerr.Code())
	assert.Equal(t, "redeem.not_found", cerr.Meta().Get(ErrorCodeHeader))
	assert.Equal(t, fmt.Sprint(access.MaxRedeemAttempts-1), cerr.Meta().Get(AttemptsLeftHeader))
}

func TestValidateInviteCode_CountsAttempts(t *testing.T) {
	ts := newTestServer(t, nil)

	_, err := call[CodeRequest, ValidateInviteCodeResponse](t, ts, "ValidateInviteCode", "user-1", &CodeRequest{Code: "NOPE-NOPE"})
	code, _ := errorMeta(t, err)
	assert.Equal(t, connect.CodeNotFound, code)

	_, err = call[CodeRequest, RedeemResponse](t, ts, "RedeemInviteCode", "user-1", &CodeRequest{Code: "NOPE-NOPE"})
	var cerr *connect.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, fmt.Sprint(access.MaxRedeemAttempts-2), cerr.Meta().Get(AttemptsLeftHeader))
}

func TestProcessAllRecurring_RequiresSchedulerToken(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.grantPlan(t, "user-1")
	acc := createAccount(t, ts, "user-1", "0")

	_, err := call[CreateTemplateRequest, TemplateResponse](t, ts, "CreateRecurringTemplate", "user-1", &CreateTemplateRequest{
		recurring.TemplateInput{
			Name:       "Salary",
			Type:       model.TypeIncome,
			Amount:     dec("100"),
			AccountID:  acc.ID,
			Frequency:  model.Monthly,
			FirstRunAt: "2026-10-01",
		},
	})
	require.NoError(t, err)

	_, err = call[ProcessAllRecurringRequest, ProcessAllRecurringResponse](t, ts, "ProcessAllRecurring", "", &ProcessAllRecurringRequest{})
	code, _ := errorMeta(t, err)
	assert.Equal(t, connect.CodePermissionDenied, code)

	req := connect.NewRequest(&ProcessAllRecurringRequest{Today: "2026-10-17"})
	req.Header().Set(SchedulerTokenHeader, testSchedulerToken)
	res, err := connect.NewClient[ProcessAllRecurringRequest, ProcessAllRecurringResponse](
		http.DefaultClient, ts.url+"/"+ServiceName+"/ProcessAllRecurring", connect.WithCodec(Codec()),
	).CallUnary(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res.Msg.Summary)
	assert.Equal(t, 1, res.Msg.Summary.Users)
	assert.Equal(t, 1, res.Msg.Summary.Processed)

	a, err := ts.store.GetAccount(context.Background(), "user-1", acc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), a.BalanceCents)
}

func TestLedgerWritesAreIndexed(t *testing.T) {
	ctrl := gomock.NewController(t)
	indexer := search.NewMockIndexer(ctrl)
	ts := newTestServer(t, indexer)
	ts.grantPlan(t, "user-1")
	acc := createAccount(t, ts, "user-1", "100")

	var indexed *model.Transaction
	indexer.EXPECT().Index(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, tr *model.Transaction) error {
		indexed = tr
		return nil
	})
	created, err := call[CreateTransactionRequest, TransactionResponse](t, ts, "CreateTransaction", "user-1", &CreateTransactionRequest{
		ledger.TransactionInput{Type: model.TypeExpense, Amount: dec("12"), AccountID: acc.ID, Note: "Coffee beans"},
	})
	require.NoError(t, err)
	require.NotNil(t, indexed)
	assert.Equal(t, created.Msg.Transaction.ID, indexed.ID)

	indexer.EXPECT().Remove(gomock.Any(), "user-1", created.Msg.Transaction.ID).Return(nil)
	_, err = call[IDRequest, DeleteResponse](t, ts, "DeleteTransaction", "user-1", &IDRequest{ID: created.Msg.Transaction.ID})
	require.NoError(t, err)
}

func TestSearchTransactions(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.grantPlan(t, "user-1")
	acc := createAccount(t, ts, "user-1", "100")
	for _, note := range []string{"Coffee beans", "Rent"} {
		_, err := call[CreateTransactionRequest, TransactionResponse](t, ts, "CreateTransaction", "user-1", &CreateTransactionRequest{
			ledger.TransactionInput{Type: model.TypeExpense, Amount: dec("5"), AccountID: acc.ID, Note: note},
		})
		require.NoError(t, err)
	}

	res, err := call[SearchRequest, SearchResponse](t, ts, "SearchTransactions", "user-1", &SearchRequest{search.Params{Query: "coffee"}})
	require.NoError(t, err)
	require.NotNil(t, res.Msg.Response)
	require.Len(t, res.Msg.Results, 1)
	assert.Equal(t, "Coffee beans", res.Msg.Results[0].Note)

	res, err = call[SearchRequest, SearchResponse](t, ts, "SearchTransactions", "user-2", &SearchRequest{search.Params{Query: "coffee"}})
	require.NoError(t, err)
	assert.Empty(t, res.Msg.Results)
}

func TestExportData(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.grantPlan(t, "user-1")
	createAccount(t, ts, "user-1", "100")

	res, err := call[ExportRequest, ExportResponse](t, ts, "ExportData", "user-1", &ExportRequest{})
	require.NoError(t, err)
	require.NotNil(t, res.Msg.Backup)
	assert.Equal(t, 1, res.Msg.Backup.Version)
	assert.Len(t, res.Msg.Backup.Collections.Accounts, 1)

	_, err = call[ExportRequest, ExportToBucketResponse](t, ts, "ExportToBucket", "user-1", &ExportRequest{})
	code, _ := errorMeta(t, err)
	assert.Equal(t, connect.CodeFailedPrecondition, code)
}

func TestImportData_RestoresBackup(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.grantPlan(t, "user-1")
	acc := createAccount(t, ts, "user-1", "100")

	exported, err := call[ExportRequest, ExportResponse](t, ts, "ExportData", "user-1", &ExportRequest{})
	require.NoError(t, err)

	deleted, err := call[Empty, ImportResponse](t, ts, "DeleteAllData", "user-1", &Empty{})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted.Msg.Counts["accounts"])
	accounts, err := ts.store.ListAccounts(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, accounts)

	restored, err := call[ImportRequest, ImportResponse](t, ts, "ImportData", "user-1", &ImportRequest{
		Backup: exported.Msg.Backup, Mode: "replace",
	})
	require.NoError(t, err)
	assert.Equal(t, export.ModeReplace, restored.Msg.Mode)
	got, err := call[IDRequest, AccountResponse](t, ts, "GetAccount", "user-1", &IDRequest{ID: acc.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), got.Msg.Account.BalanceCents)

	_, err = call[ImportRequest, ImportResponse](t, ts, "ImportData", "user-1", &ImportRequest{
		Backup: exported.Msg.Backup, Mode: "overwrite",
	})
	code, _ := errorMeta(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, code)

	// Without a plan both writes are soft successes that change nothing.
	ro, err := call[ImportRequest, ImportResponse](t, ts, "ImportData", "user-2", &ImportRequest{Backup: exported.Msg.Backup})
	require.NoError(t, err)
	assert.True(t, ro.Msg.ReadOnly)
	ro, err = call[Empty, ImportResponse](t, ts, "DeleteAllData", "user-2", &Empty{})
	require.NoError(t, err)
	assert.True(t, ro.Msg.ReadOnly)
	other, err := ts.store.ListAccounts(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestCurrencies(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.grantPlan(t, "user-1")

	list, err := call[Empty, ListCurrenciesResponse](t, ts, "ListCurrencies", "user-1", &Empty{})
	require.NoError(t, err)
	assert.Empty(t, list.Msg.Currencies)
	assert.Equal(t, model.DefaultCurrency, list.Msg.Default)

	seeded, err := call[Empty, ListCurrenciesResponse](t, ts, "EnsureDefaultCurrency", "user-1", &Empty{})
	require.NoError(t, err)
	require.Len(t, seeded.Msg.Currencies, 1)
	assert.True(t, seeded.Msg.Currencies[0].IsDefault)

	usd, err := call[CreateCurrencyRequest, CurrencyResponse](t, ts, "CreateCurrency", "user-1", &CreateCurrencyRequest{
		currency.Input{Code: "usd", Name: "Dollar"},
	})
	require.NoError(t, err)
	assert.Equal(t, "USD", usd.Msg.Currency.Code)

	_, err = call[IDRequest, CurrencyResponse](t, ts, "SetDefaultCurrency", "user-1", &IDRequest{ID: usd.Msg.Currency.ID})
	require.NoError(t, err)

	acc, err := call[CreateAccountRequest, AccountResponse](t, ts, "CreateAccount", "user-1", &CreateAccountRequest{
		ledger.AccountInput{Name: "Savings", OpeningBalance: dec("5")},
	})
	require.NoError(t, err)
	assert.Equal(t, "USD", acc.Msg.Account.Currency)

	_, err = call[IDRequest, DeleteResponse](t, ts, "DeleteCurrency", "user-1", &IDRequest{ID: usd.Msg.Currency.ID})
	code, _ := errorMeta(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, code)

	_, err = call[IDRequest, DeleteResponse](t, ts, "DeleteCurrency", "user-1", &IDRequest{ID: "missing"})
	code, meta := errorMeta(t, err)
	assert.Equal(t, connect.CodeNotFound, code)
	assert.Equal(t, string(errs.CurrencyNotFound), meta)

	_, err = call[IDRequest, DeleteResponse](t, ts, "DeleteCurrency", "user-1", &IDRequest{ID: seeded.Msg.Currencies[0].ID})
	require.NoError(t, err)
	list, err = call[Empty, ListCurrenciesResponse](t, ts, "ListCurrencies", "user-1", &Empty{})
	require.NoError(t, err)
	require.Len(t, list.Msg.Currencies, 1)
	assert.Equal(t, "USD", list.Msg.Default)
}

func TestToConnectError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code connect.Code
		kind string
	}{
		{"validation", errs.New(errs.NameRequired), connect.CodeInvalidArgument, "NameRequired"},
		{"same account", errs.New(errs.SameAccount), connect.CodeInvalidArgument, "SameAccount"},
		{"referential", fmt.Errorf("load: %w", errs.New(errs.DebtNotFound)), connect.CodeNotFound, "DebtNotFound"},
		{"in use", errs.New(errs.AccountInUse), connect.CodeFailedPrecondition, "AccountInUse"},
		{"forbidden", errs.New(errs.Forbidden), connect.CodePermissionDenied, "Forbidden"},
		{"store miss", fmt.Errorf("get: %w", store.ErrNotFound), connect.CodeNotFound, "NotFound"},
		{"blocked", &access.RedeemError{Reason: access.ReasonBlocked}, connect.CodeResourceExhausted, "redeem.blocked"},
		{"expired code", &access.RedeemError{Reason: access.ReasonExpired, AttemptsLeft: 2}, connect.CodeFailedPrecondition, "redeem.expired"},
		{"canceled", context.Canceled, connect.CodeCanceled, ""},
		{"unknown", errors.New("boom"), connect.CodeInternal, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cerr := toConnectError(tt.err)
			assert.Equal(t, tt.code, cerr.Code())
			assert.Equal(t, tt.kind, cerr.Meta().Get(ErrorCodeHeader))
		})
	}
}

func TestNotificationsFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	// An ungated write attempt leaves an access.readOnly notification.
	_, err := call[CreateAccountRequest, AccountResponse](t, ts, "CreateAccount", "user-1", &CreateAccountRequest{
		ledger.AccountInput{Name: "Wallet", Currency: "COP"},
	})
	require.NoError(t, err)

	count, err := call[Empty, CountResponse](t, ts, "GetUnreadNotificationCount", "user-1", &Empty{})
	require.NoError(t, err)
	assert.Equal(t, 1, count.Msg.Count)

	list, err := call[ListNotificationsRequest, ListNotificationsResponse](t, ts, "ListNotifications", "user-1", &ListNotificationsRequest{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, list.Msg.Notifications, 1)

	_, err = call[IDRequest, UpdatedResponse](t, ts, "MarkNotificationRead", "user-1", &IDRequest{ID: list.Msg.Notifications[0].ID})
	require.NoError(t, err)

	count, err = call[Empty, CountResponse](t, ts, "GetUnreadNotificationCount", "user-1", &Empty{})
	require.NoError(t, err)
	assert.Equal(t, 0, count.Msg.Count)
}

func TestGetAccess_Direct(t *testing.T) {
	ts := newTestServer(t, nil)
	svc := NewFinanceService(ts.deps)
	ctx := testContextWithUser("user-1")

	res, err := svc.GetAccess(ctx, connect.NewRequest(&Empty{}))
	require.NoError(t, err)
	assert.Equal(t, "user-1", res.Msg.Access.UserID)
	assert.False(t, res.Msg.Access.CanWrite)

	ts.grantPlan(t, "user-1")
	res, err = svc.GetAccess(ctx, connect.NewRequest(&Empty{}))
	require.NoError(t, err)
	assert.True(t, res.Msg.Access.CanWrite)
	assert.Equal(t, model.PlanMonthly, res.Msg.Access.Plan)
}
