package service

import (
	"context"

	"connectrpc.com/connect"

	"github.com/CristhianDaza/finControl/internal/store"
)

func (s *FinanceService) registerLedger(r *router) {
	handle(r, "CreateAccount", s.CreateAccount)
	handle(r, "RenameAccount", s.RenameAccount)
	handle(r, "DeleteAccount", s.DeleteAccount)
	handle(r, "GetAccount", s.GetAccount)
	handle(r, "ListAccounts", s.ListAccounts)
	handle(r, "ReconcileAccount", s.ReconcileAccount)

	handle(r, "CreateTransaction", s.CreateTransaction)
	handle(r, "UpdateTransaction", s.UpdateTransaction)
	handle(r, "DeleteTransaction", s.DeleteTransaction)
	handle(r, "GetTransaction", s.GetTransaction)
	handle(r, "ListTransactions", s.ListTransactions)

	handle(r, "CreateTransfer", s.CreateTransfer)
	handle(r, "UpdateTransfer", s.UpdateTransfer)
	handle(r, "DeleteTransfer", s.DeleteTransfer)
	handle(r, "GetTransfer", s.GetTransfer)

	handle(r, "CreateDebt", s.CreateDebt)
	handle(r, "UpdateDebt", s.UpdateDebt)
	handle(r, "DeleteDebt", s.DeleteDebt)
	handle(r, "GetDebt", s.GetDebt)
	handle(r, "ListDebts", s.ListDebts)
}

// CreateAccount creates an account with an opening balance
func (s *FinanceService) CreateAccount(ctx context.Context, req *connect.Request[CreateAccountRequest]) (*connect.Response[AccountResponse], error) {
	a, err := s.ledger.CreateAccount(ctx, req.Msg.AccountInput)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&AccountResponse{Account: a}), nil
}

func (s *FinanceService) RenameAccount(ctx context.Context, req *connect.Request[RenameAccountRequest]) (*connect.Response[AccountResponse], error) {
	a, err := s.ledger.RenameAccount(ctx, req.Msg.ID, req.Msg.Name)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&AccountResponse{Account: a}), nil
}

// DeleteAccount deletes an account that no transaction references
func (s *FinanceService) DeleteAccount(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[DeleteResponse], error) {
	if err := s.ledger.DeleteAccount(ctx, req.Msg.ID); err != nil {
		return nil, err
	}
	return connect.NewResponse(&DeleteResponse{}), nil
}

func (s *FinanceService) GetAccount(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[AccountResponse], error) {
	a, err := s.ledger.GetAccount(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&AccountResponse{Account: a}), nil
}

func (s *FinanceService) ListAccounts(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[ListAccountsResponse], error) {
	accounts, err := s.ledger.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ListAccountsResponse{Accounts: accounts}), nil
}

// ReconcileAccount reports drift between the stored balance and the
// transactions on the account
func (s *FinanceService) ReconcileAccount(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[ReconcileResponse], error) {
	rec, err := s.ledger.Reconcile(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ReconcileResponse{Reconciliation: rec, Balanced: rec.Balanced()}), nil
}

// CreateTransaction posts an income, expense or debt payment
func (s *FinanceService) CreateTransaction(ctx context.Context, req *connect.Request[CreateTransactionRequest]) (*connect.Response[TransactionResponse], error) {
	t, err := s.ledger.Create(ctx, req.Msg.TransactionInput)
	if err != nil {
		return nil, err
	}
	s.indexTransactions(ctx, t)
	return connect.NewResponse(&TransactionResponse{Transaction: t}), nil
}

func (s *FinanceService) UpdateTransaction(ctx context.Context, req *connect.Request[UpdateTransactionRequest]) (*connect.Response[TransactionResponse], error) {
	t, err := s.ledger.Update(ctx, req.Msg.ID, req.Msg.TransactionPatch)
	if err != nil {
		return nil, err
	}
	s.indexTransactions(ctx, t)
	return connect.NewResponse(&TransactionResponse{Transaction: t}), nil
}

func (s *FinanceService) DeleteTransaction(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[DeleteResponse], error) {
	if err := s.ledger.Delete(ctx, req.Msg.ID); err != nil {
		return nil, err
	}
	s.unindexTransactions(ctx, req.Msg.ID)
	return connect.NewResponse(&DeleteResponse{}), nil
}

func (s *FinanceService) GetTransaction(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[TransactionResponse], error) {
	t, err := s.ledger.Get(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&TransactionResponse{Transaction: t}), nil
}

// ListTransactions lists transactions newest first, one page at a time
func (s *FinanceService) ListTransactions(ctx context.Context, req *connect.Request[ListTransactionsRequest]) (*connect.Response[ListTransactionsResponse], error) {
	m := req.Msg
	txs, next, err := s.ledger.ListTransactions(ctx, store.TransactionFilter{
		Type:       m.Type,
		AccountID:  m.AccountID,
		DebtID:     m.DebtID,
		CategoryID: m.CategoryID,
		GoalID:     m.GoalID,
		DateFrom:   m.DateFrom,
		DateTo:     m.DateTo,
		PageSize:   m.PageSize,
		PageToken:  m.PageToken,
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ListTransactionsResponse{Transactions: txs, NextPageToken: next}), nil
}

// CreateTransfer moves money between two accounts, converting when the
// currencies differ
func (s *FinanceService) CreateTransfer(ctx context.Context, req *connect.Request[CreateTransferRequest]) (*connect.Response[TransferResponse], error) {
	tr, err := s.ledger.CreateTransfer(ctx, req.Msg.TransferInput)
	if err != nil {
		return nil, err
	}
	s.indexTransactions(ctx, tr.Out, tr.In)
	return connect.NewResponse(&TransferResponse{Transfer: tr}), nil
}

func (s *FinanceService) UpdateTransfer(ctx context.Context, req *connect.Request[UpdateTransferRequest]) (*connect.Response[TransferResponse], error) {
	tr, err := s.ledger.UpdateTransfer(ctx, req.Msg.TransferID, req.Msg.TransferPatch)
	if err != nil {
		return nil, err
	}
	s.indexTransactions(ctx, tr.Out, tr.In)
	return connect.NewResponse(&TransferResponse{Transfer: tr}), nil
}

func (s *FinanceService) DeleteTransfer(ctx context.Context, req *connect.Request[TransferIDRequest]) (*connect.Response[DeleteResponse], error) {
	// Read the legs first so their ids can be dropped from the index.
	var legs []string
	if s.search != nil && s.search.Indexed() {
		if tr, err := s.ledger.GetTransfer(ctx, req.Msg.TransferID); err == nil {
			legs = []string{tr.Out.ID, tr.In.ID}
		}
	}
	if err := s.ledger.DeleteTransfer(ctx, req.Msg.TransferID); err != nil {
		return nil, err
	}
	s.unindexTransactions(ctx, legs...)
	return connect.NewResponse(&DeleteResponse{}), nil
}

func (s *FinanceService) GetTransfer(ctx context.Context, req *connect.Request[TransferIDRequest]) (*connect.Response[TransferResponse], error) {
	tr, err := s.ledger.GetTransfer(ctx, req.Msg.TransferID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&TransferResponse{Transfer: tr}), nil
}

func (s *FinanceService) CreateDebt(ctx context.Context, req *connect.Request[CreateDebtRequest]) (*connect.Response[DebtResponse], error) {
	d, err := s.ledger.CreateDebt(ctx, req.Msg.DebtInput)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&DebtResponse{Debt: d}), nil
}

func (s *FinanceService) UpdateDebt(ctx context.Context, req *connect.Request[UpdateDebtRequest]) (*connect.Response[DebtResponse], error) {
	d, err := s.ledger.UpdateDebt(ctx, req.Msg.ID, req.Msg.DebtPatch)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&DebtResponse{Debt: d}), nil
}

func (s *FinanceService) DeleteDebt(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[DeleteResponse], error) {
	if err := s.ledger.DeleteDebt(ctx, req.Msg.ID); err != nil {
		return nil, err
	}
	return connect.NewResponse(&DeleteResponse{}), nil
}

func (s *FinanceService) GetDebt(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[DebtResponse], error) {
	d, err := s.ledger.GetDebt(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&DebtResponse{Debt: d}), nil
}

func (s *FinanceService) ListDebts(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[ListDebtsResponse], error) {
	debts, err := s.ledger.ListDebts(ctx)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ListDebtsResponse{Debts: debts}), nil
}
