package service

import (
	"github.com/CristhianDaza/finControl/internal/access"
	"github.com/CristhianDaza/finControl/internal/aggregate"
	"github.com/CristhianDaza/finControl/internal/currency"
	"github.com/CristhianDaza/finControl/internal/export"
	"github.com/CristhianDaza/finControl/internal/ledger"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/recurring"
	"github.com/CristhianDaza/finControl/internal/search"
)

// Request and response messages. Requests embed the engine payloads; their
// fields decode from camelCase JSON because encoding/json matches names
// case-insensitively.

// Status is embedded in every response.
type Status struct {
	// ReadOnly is set when a write was refused because the user's access
	// lapsed. Nothing was written.
	ReadOnly bool `json:"readOnly,omitempty"`
}

func (s *Status) markReadOnly() { s.ReadOnly = true }

type Empty struct{}

type IDRequest struct {
	ID string `json:"id"`
}

type DeleteResponse struct {
	Status
}

// Accounts

type CreateAccountRequest struct {
	ledger.AccountInput
}

type RenameAccountRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type AccountResponse struct {
	Status
	Account *model.Account `json:"account,omitempty"`
}

type ListAccountsResponse struct {
	Status
	Accounts []*model.Account `json:"accounts"`
}

type ReconcileResponse struct {
	Status
	Reconciliation *ledger.Reconciliation `json:"reconciliation,omitempty"`
	Balanced       bool                   `json:"balanced"`
}

// Transactions

type CreateTransactionRequest struct {
	ledger.TransactionInput
}

type UpdateTransactionRequest struct {
	ID string `json:"id"`
	ledger.TransactionPatch
}

type TransactionResponse struct {
	Status
	Transaction *model.Transaction `json:"transaction,omitempty"`
}

type ListTransactionsRequest struct {
	Type       model.TransactionType `json:"type"`
	AccountID  string                `json:"accountId"`
	DebtID     string                `json:"debtId"`
	CategoryID string                `json:"categoryId"`
	GoalID     string                `json:"goalId"`
	DateFrom   string                `json:"dateFrom"`
	DateTo     string                `json:"dateTo"`
	PageSize   int32                 `json:"pageSize"`
	PageToken  string                `json:"pageToken"`
}

type ListTransactionsResponse struct {
	Status
	Transactions  []*model.Transaction `json:"transactions"`
	NextPageToken string               `json:"nextPageToken,omitempty"`
}

// Transfers

type CreateTransferRequest struct {
	ledger.TransferInput
}

type UpdateTransferRequest struct {
	TransferID string `json:"transferId"`
	ledger.TransferPatch
}

type TransferIDRequest struct {
	TransferID string `json:"transferId"`
}

type TransferResponse struct {
	Status
	Transfer *ledger.Transfer `json:"transfer,omitempty"`
}

// Debts

type CreateDebtRequest struct {
	ledger.DebtInput
}

type UpdateDebtRequest struct {
	ID string `json:"id"`
	ledger.DebtPatch
}

type DebtResponse struct {
	Status
	Debt *model.Debt `json:"debt,omitempty"`
}

type ListDebtsResponse struct {
	Status
	Debts []*model.Debt `json:"debts"`
}

// Recurring

type CreateTemplateRequest struct {
	recurring.TemplateInput
}

type UpdateTemplateRequest struct {
	ID string `json:"id"`
	recurring.TemplatePatch
}

type TemplateResponse struct {
	Status
	Template *model.RecurringTemplate `json:"template,omitempty"`
}

type ListTemplatesResponse struct {
	Status
	Templates []*model.RecurringTemplate `json:"templates"`
}

type ListRunsResponse struct {
	Status
	Runs []*model.RecurringRun `json:"runs"`
}

type ProcessDueResponse struct {
	Status
	Result *recurring.Result `json:"result,omitempty"`
}

type ProcessAllRecurringRequest struct {
	// Today overrides the processing date (YYYY-MM-DD). Empty means now.
	Today string `json:"today"`
}

type ProcessAllRecurringResponse struct {
	Status
	Summary *recurring.Summary `json:"summary,omitempty"`
}

// Access

type AccessResponse struct {
	Status
	Access *access.Summary `json:"access,omitempty"`
}

type CodeRequest struct {
	Code string `json:"code"`
}

type RedeemResponse struct {
	Status
	Redemption *access.Redemption `json:"redemption,omitempty"`
}

type ValidateInviteCodeResponse struct {
	Status
	Plan  model.Plan `json:"plan,omitempty"`
	Valid bool       `json:"valid"`
}

type CreateInviteCodeRequest struct {
	Plan model.Plan `json:"plan"`
}

type InviteCodeResponse struct {
	Status
	InviteCode *model.InviteCode `json:"inviteCode,omitempty"`
}

type ListInviteCodesRequest struct {
	Status    model.InviteStatus `json:"status"`
	CreatedBy string             `json:"createdBy"`
	Limit     int                `json:"limit"`
}

type ListInviteCodesResponse struct {
	Status
	InviteCodes []*model.InviteCode `json:"inviteCodes"`
}

type UserRequest struct {
	UserID string `json:"userId"`
}

type SetUserActiveRequest struct {
	UserID string `json:"userId"`
	Active bool   `json:"active"`
}

// Budgets and goals

type CreateBudgetRequest struct {
	aggregate.BudgetInput
}

type UpdateBudgetRequest struct {
	ID string `json:"id"`
	aggregate.BudgetPatch
}

type BudgetResponse struct {
	Status
	Budget *model.Budget `json:"budget,omitempty"`
}

type ListBudgetsRequest struct {
	IncludeInactive bool `json:"includeInactive"`
}

type ListBudgetsResponse struct {
	Status
	Budgets []*model.Budget `json:"budgets"`
}

// PeriodRequest selects a month. Year 0 means the current month.
type PeriodRequest struct {
	ID    string `json:"id"`
	Year  int    `json:"year"`
	Month int    `json:"month"`
}

type BudgetProgressResponse struct {
	Status
	Progress *aggregate.Progress `json:"progress,omitempty"`
}

type MonthProgressResponse struct {
	Status
	Progress []*aggregate.Progress `json:"progress"`
}

type CreateGoalRequest struct {
	aggregate.GoalInput
}

type UpdateGoalRequest struct {
	ID string `json:"id"`
	aggregate.GoalPatch
}

type GoalResponse struct {
	Status
	Goal *model.Goal `json:"goal,omitempty"`
}

type ListGoalsResponse struct {
	Status
	Goals []*model.Goal `json:"goals"`
}

type GoalProgressResponse struct {
	Status
	Progress *aggregate.GoalStatus `json:"progress,omitempty"`
}

// Notifications

type ListNotificationsRequest struct {
	UnreadOnly bool   `json:"unreadOnly"`
	PageSize   int32  `json:"pageSize"`
	PageToken  string `json:"pageToken"`
}

type ListNotificationsResponse struct {
	Status
	Notifications []*model.Notification `json:"notifications"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

type CountResponse struct {
	Status
	Count int `json:"count"`
}

type PushTokenRequest struct {
	Token string `json:"token"`
}

type BudgetAlertsRequest struct {
	Enabled bool `json:"enabled"`
}

type UpdatedResponse struct {
	Status
}

// Search and export

type SearchRequest struct {
	search.Params
}

type SearchResponse struct {
	Status
	*search.Response
}

type ExportRequest struct {
	// Format is json (default) or zip. Only ExportToBucket accepts zip.
	Format string `json:"format"`
}

type ExportResponse struct {
	Status
	Backup *export.Backup `json:"backup,omitempty"`
}

type ExportToBucketResponse struct {
	Status
	Object string `json:"object"`
}

type ImportRequest struct {
	Backup *export.Backup `json:"backup"`
	// Mode is merge (default) or replace.
	Mode string `json:"mode"`
}

type ImportResponse struct {
	Status
	*export.Result
}

// Currencies

type CreateCurrencyRequest struct {
	currency.Input
}

type UpdateCurrencyRequest struct {
	ID string `json:"id"`
	currency.Patch
}

type CurrencyResponse struct {
	Status
	Currency *model.Currency `json:"currency,omitempty"`
}

type ListCurrenciesResponse struct {
	Status
	Currencies []*model.Currency `json:"currencies"`
	// Default is the code new accounts get when they name none.
	Default string `json:"default"`
}
