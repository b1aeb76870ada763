package store

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"time"

	"github.com/CristhianDaza/finControl/internal/model"
)

// ErrNotFound is returned by every typed read when the document is missing.
var ErrNotFound = errors.New("store: document not found")

// ErrConflict is returned by RunTransaction when the body could not be
// committed within the retry budget.
var ErrConflict = errors.New("store: transaction conflict")

// ErrReadAfterWrite is returned when a transaction body reads after it has
// already queued a write. Firestore rejects this ordering and so do we.
var ErrReadAfterWrite = errors.New("store: read after write in transaction")

// TxFunc is the body of an atomic transaction. It may run more than once, so
// it must only touch documents through tx and must reset any outer result
// variables at the top of each attempt.
type TxFunc func(ctx context.Context, tx Tx) error

// Store defines the document operations used by the engines. Every write to
// a balance-bearing document goes through RunTransaction.
type Store interface {
	RunTransaction(ctx context.Context, fn TxFunc) error

	// Accounts
	GetAccount(ctx context.Context, userID, accountID string) (*model.Account, error)
	ListAccounts(ctx context.Context, userID string) ([]*model.Account, error)

	// Transactions
	GetTransaction(ctx context.Context, userID, txID string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, userID string, filter TransactionFilter) ([]*model.Transaction, string, error)

	// Debts
	GetDebt(ctx context.Context, userID, debtID string) (*model.Debt, error)
	ListDebts(ctx context.Context, userID string) ([]*model.Debt, error)

	// Recurring templates and run locks
	GetTemplate(ctx context.Context, userID, templateID string) (*model.RecurringTemplate, error)
	ListTemplates(ctx context.Context, userID string) ([]*model.RecurringTemplate, error)
	ListDueTemplates(ctx context.Context, userID, today string) ([]*model.RecurringTemplate, error)
	ListDueTemplatesAllUsers(ctx context.Context, today string) ([]*model.RecurringTemplate, error)
	GetRun(ctx context.Context, userID, runID string) (*model.RecurringRun, error)
	ListRuns(ctx context.Context, userID string) ([]*model.RecurringRun, error)

	// Profiles and invite codes
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	GetInviteCode(ctx context.Context, code string) (*model.InviteCode, error)
	ListInviteCodes(ctx context.Context, filter InviteCodeFilter) ([]*model.InviteCode, error)

	// Budgets and goals
	GetBudget(ctx context.Context, userID, budgetID string) (*model.Budget, error)
	ListBudgets(ctx context.Context, userID string, includeInactive bool) ([]*model.Budget, error)
	GetGoal(ctx context.Context, userID, goalID string) (*model.Goal, error)
	ListGoals(ctx context.Context, userID string) ([]*model.Goal, error)

	// Currencies
	ListCurrencies(ctx context.Context, userID string) ([]*model.Currency, error)

	// Notifications
	CreateNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, pageSize int32, pageToken string) ([]*model.Notification, string, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) error
	HasNotification(ctx context.Context, userID string, kind model.NotificationKind, referenceID, metadataKey, metadataValue string, withinHours int) (bool, error)
}

// Tx is the document surface available inside RunTransaction. All reads must
// happen before the first write.
type Tx interface {
	GetAccount(userID, accountID string) (*model.Account, error)
	SetAccount(a *model.Account) error
	DeleteAccount(userID, accountID string) error

	GetDebt(userID, debtID string) (*model.Debt, error)
	SetDebt(d *model.Debt) error
	DeleteDebt(userID, debtID string) error

	GetTransaction(userID, txID string) (*model.Transaction, error)
	SetTransaction(t *model.Transaction) error
	DeleteTransaction(userID, txID string) error
	// ListTransactions runs a filtered query inside the transaction. Limit is
	// honoured, pagination is not.
	ListTransactions(userID string, filter TransactionFilter) ([]*model.Transaction, error)

	GetTemplate(userID, templateID string) (*model.RecurringTemplate, error)
	SetTemplate(t *model.RecurringTemplate) error
	DeleteTemplate(userID, templateID string) error

	GetRun(userID, runID string) (*model.RecurringRun, error)
	SetRun(r *model.RecurringRun) error
	DeleteRun(userID, runID string) error

	GetInviteCode(code string) (*model.InviteCode, error)
	SetInviteCode(c *model.InviteCode) error

	GetProfile(userID string) (*model.Profile, error)
	SetProfile(p *model.Profile) error

	GetBudget(userID, budgetID string) (*model.Budget, error)
	SetBudget(b *model.Budget) error
	DeleteBudget(userID, budgetID string) error

	GetGoal(userID, goalID string) (*model.Goal, error)
	SetGoal(g *model.Goal) error
	DeleteGoal(userID, goalID string) error

	// ListCurrencies reads every currency of the user inside the transaction.
	ListCurrencies(userID string) ([]*model.Currency, error)
	SetCurrency(c *model.Currency) error
	DeleteCurrency(userID, currencyID string) error
}

// TransactionFilter narrows ListTransactions. Zero fields are ignored.
// Results are ordered by date desc, then createdAt desc.
type TransactionFilter struct {
	Type       model.TransactionType
	AccountID  string
	DebtID     string
	CategoryID string
	GoalID     string
	TransferID string
	DateFrom   string
	DateTo     string
	Limit      int
	PageSize   int32
	PageToken  string
}

// InviteCodeFilter narrows ListInviteCodes.
type InviteCodeFilter struct {
	Status    model.InviteStatus
	CreatedBy string
	Limit     int
}

// Collection names.
const (
	colUsers         = "users"
	colAccounts      = "accounts"
	colTransactions  = "transactions"
	colDebts         = "debts"
	colTemplates     = "recurringTemplates"
	colRuns          = "recurringRuns"
	colBudgets       = "budgets"
	colGoals         = "goals"
	colCurrencies    = "currencies"
	colNotifications = "notifications"
	colInviteCodes   = "inviteCodes"
)

func userPath(userID string) string {
	return colUsers + "/" + userID
}

func userCollection(userID, collection string) string {
	return userPath(userID) + "/" + collection
}

func userDoc(userID, collection, id string) string {
	return userCollection(userID, collection) + "/" + id
}

func inviteCodePath(code string) string {
	return colInviteCodes + "/" + code
}

// EncodePageToken encodes a document ID into a page token.
func EncodePageToken(docID string) string {
	if docID == "" {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(docID))
}

// DecodePageToken decodes a page token back to a document ID.
func DecodePageToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// sortCurrencies puts the default first, then orders by code.
func sortCurrencies(cs []*model.Currency) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].IsDefault != cs[j].IsDefault {
			return cs[i].IsDefault
		}
		return cs[i].Code < cs[j].Code
	})
}

// NormalizePageSize returns a valid page size (default 100, max 1000).
func NormalizePageSize(pageSize int32) int32 {
	if pageSize <= 0 {
		return 100
	}
	if pageSize > 1000 {
		return 1000
	}
	return pageSize
}

// matches applies the equality and date-range parts of f.
func (f TransactionFilter) matches(t *model.Transaction) bool {
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.AccountID != "" && t.AccountID != f.AccountID {
		return false
	}
	if f.DebtID != "" && t.DebtID != f.DebtID {
		return false
	}
	if f.CategoryID != "" && t.CategoryID != f.CategoryID {
		return false
	}
	if f.GoalID != "" && t.GoalID != f.GoalID {
		return false
	}
	if f.TransferID != "" && t.TransferID != f.TransferID {
		return false
	}
	if f.DateFrom != "" && t.Date < f.DateFrom {
		return false
	}
	if f.DateTo != "" && t.Date > f.DateTo {
		return false
	}
	return true
}

// transactionLess orders by date desc, createdAt desc, id asc.
func transactionLess(a, b *model.Transaction) bool {
	if a.Date != b.Date {
		return a.Date > b.Date
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

func within(t, now time.Time, hours int) bool {
	if hours <= 0 {
		return true
	}
	return now.Sub(t) <= time.Duration(hours)*time.Hour
}
