// Package model holds the documents persisted by the store. Money fields are
// int64 minor units (cents); dates without a time component are ISO
// YYYY-MM-DD strings so that lexicographic order equals calendar order.
package model

import "time"

// TransactionType enumerates the kinds of ledger movements.
type TransactionType string

const (
	TypeIncome      TransactionType = "income"
	TypeExpense     TransactionType = "expense"
	TypeDebtPayment TransactionType = "debtPayment"
	TypeTransferOut TransactionType = "transfer-out"
	TypeTransferIn  TransactionType = "transfer-in"
)

// IsTransfer reports whether t is one leg of a two-leg transfer.
func (t TransactionType) IsTransfer() bool {
	return t == TypeTransferOut || t == TypeTransferIn
}

// IsSimple reports whether t can be posted through the single-document
// ledger operations.
func (t TransactionType) IsSimple() bool {
	return t == TypeIncome || t == TypeExpense || t == TypeDebtPayment
}

// DebtStatus is derived from RemainingAmountCents.
type DebtStatus string

const (
	DebtActive DebtStatus = "active"
	DebtPaid   DebtStatus = "paid"
)

// Frequency of a recurring template.
type Frequency string

const (
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
	Yearly   Frequency = "yearly"
)

// RunStatus is the state of a recurring run lock.
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunDone    RunStatus = "done"
	RunError   RunStatus = "error"
)

// InviteStatus is the lifecycle state of an invite code.
type InviteStatus string

const (
	InviteUnused  InviteStatus = "unused"
	InviteUsed    InviteStatus = "used"
	InviteExpired InviteStatus = "expired"
)

// Plan is the subscription length granted by an invite code.
type Plan string

const (
	PlanMonthly    Plan = "monthly"
	PlanSemiannual Plan = "semiannual"
	PlanAnnual     Plan = "annual"
)

// RoleAdmin marks profiles allowed to manage invite codes.
const RoleAdmin = "admin"

// DefaultCurrency is used when neither the request nor the account carries one.
const DefaultCurrency = "COP"

// Account is a user-owned balance holder.
type Account struct {
	ID                  string    `firestore:"-" json:"id"`
	OwnerID             string    `firestore:"ownerId" json:"ownerId"`
	Name                string    `firestore:"name" json:"name"`
	BalanceCents        int64     `firestore:"balanceCents" json:"balanceCents"`
	OpeningBalanceCents int64     `firestore:"openingBalanceCents" json:"openingBalanceCents"`
	Currency            string    `firestore:"currency" json:"currency"`
	CreatedAt           time.Time `firestore:"createdAt,serverTimestamp" json:"createdAt"`
	UpdatedAt           time.Time `firestore:"updatedAt" json:"updatedAt"`
}

// RecurringMeta links a transaction back to the template occurrence that
// posted it.
type RecurringMeta struct {
	TemplateID string `firestore:"templateId" json:"templateId"`
	PeriodKey  string `firestore:"periodKey" json:"periodKey"`
}

// Transaction is a single ledger movement. Transfer legs fill the transfer
// block; simple transactions leave it zero.
type Transaction struct {
	ID          string          `firestore:"-" json:"id"`
	OwnerID     string          `firestore:"ownerId" json:"ownerId"`
	Type        TransactionType `firestore:"type" json:"type"`
	AmountCents int64           `firestore:"amountCents" json:"amountCents"`
	Currency    string          `firestore:"currency" json:"currency"`
	AccountID   string          `firestore:"accountId" json:"accountId"`
	DebtID      string          `firestore:"debtId,omitempty" json:"debtId,omitempty"`
	CategoryID  string          `firestore:"categoryId,omitempty" json:"categoryId,omitempty"`
	GoalID      string          `firestore:"goalId,omitempty" json:"goalId,omitempty"`
	Date        string          `firestore:"date" json:"date"`
	Note        string          `firestore:"note" json:"note"`
	IsRefund    bool            `firestore:"isRefund,omitempty" json:"isRefund,omitempty"`
	Recurring   *RecurringMeta  `firestore:"recurring,omitempty" json:"recurring,omitempty"`

	IsTransfer      bool    `firestore:"isTransfer,omitempty" json:"isTransfer,omitempty"`
	TransferID      string  `firestore:"transferId,omitempty" json:"transferId,omitempty"`
	PairID          string  `firestore:"pairId,omitempty" json:"pairId,omitempty"`
	FromAccountID   string  `firestore:"fromAccountId,omitempty" json:"fromAccountId,omitempty"`
	ToAccountID     string  `firestore:"toAccountId,omitempty" json:"toAccountId,omitempty"`
	AmountFromCents int64   `firestore:"amountFromCents,omitempty" json:"amountFromCents,omitempty"`
	AmountToCents   int64   `firestore:"amountToCents,omitempty" json:"amountToCents,omitempty"`
	CurrencyFrom    string  `firestore:"currencyFrom,omitempty" json:"currencyFrom,omitempty"`
	CurrencyTo      string  `firestore:"currencyTo,omitempty" json:"currencyTo,omitempty"`
	Rate            *string `firestore:"rate" json:"rate"`

	CreatedAt time.Time `firestore:"createdAt,serverTimestamp" json:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt" json:"updatedAt"`
}

// Debt tracks an amount owed and how much of it remains.
type Debt struct {
	ID                   string     `firestore:"-" json:"id"`
	OwnerID              string     `firestore:"ownerId" json:"ownerId"`
	Name                 string     `firestore:"name" json:"name"`
	OriginalAmountCents  int64      `firestore:"originalAmountCents" json:"originalAmountCents"`
	RemainingAmountCents int64      `firestore:"remainingAmountCents" json:"remainingAmountCents"`
	Status               DebtStatus `firestore:"status" json:"status"`
	DueDate              string     `firestore:"dueDate,omitempty" json:"dueDate,omitempty"`
	Currency             string     `firestore:"currency" json:"currency"`
	CreatedAt            time.Time  `firestore:"createdAt,serverTimestamp" json:"createdAt"`
	UpdatedAt            time.Time  `firestore:"updatedAt" json:"updatedAt"`
}

// RecurringTemplate describes a transaction that repeats on a schedule.
type RecurringTemplate struct {
	ID             string          `firestore:"-" json:"id"`
	OwnerID        string          `firestore:"ownerId" json:"ownerId"`
	Name           string          `firestore:"name" json:"name"`
	Type           TransactionType `firestore:"type" json:"type"`
	AmountCents    int64           `firestore:"amountCents" json:"amountCents"`
	Currency       string          `firestore:"currency,omitempty" json:"currency,omitempty"`
	AccountID      string          `firestore:"accountId" json:"accountId"`
	DebtID         string          `firestore:"debtId,omitempty" json:"debtId,omitempty"`
	CategoryID     string          `firestore:"categoryId,omitempty" json:"categoryId,omitempty"`
	Note           string          `firestore:"note" json:"note"`
	Frequency      Frequency       `firestore:"frequency" json:"frequency"`
	NextRunAt      string          `firestore:"nextRunAt" json:"nextRunAt"`
	LastRunAt      string          `firestore:"lastRunAt,omitempty" json:"lastRunAt,omitempty"`
	Paused         bool            `firestore:"paused" json:"paused"`
	PartialCatchUp bool            `firestore:"partialCatchUp" json:"partialCatchUp"`
	CreatedAt      time.Time       `firestore:"createdAt,serverTimestamp" json:"createdAt"`
	UpdatedAt      time.Time       `firestore:"updatedAt" json:"updatedAt"`
}

// RecurringRun is the idempotency lock for one (template, period) pair.
type RecurringRun struct {
	ID         string    `firestore:"-" json:"id"`
	OwnerID    string    `firestore:"ownerId" json:"ownerId"`
	TemplateID string    `firestore:"templateId" json:"templateId"`
	PeriodKey  string    `firestore:"periodKey" json:"periodKey"`
	Status     RunStatus `firestore:"status" json:"status"`
	TxID       string    `firestore:"txId,omitempty" json:"txId,omitempty"`
	Error      string    `firestore:"error,omitempty" json:"error,omitempty"`
	CreatedAt  time.Time `firestore:"createdAt,serverTimestamp" json:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt" json:"updatedAt"`
}

// RunID returns the deterministic lock id for a template occurrence.
func RunID(templateID, periodKey string) string {
	return templateID + "__" + periodKey
}

// InviteCode grants a plan when redeemed. The document id is the code.
type InviteCode struct {
	Code           string       `firestore:"code" json:"code"`
	Status         InviteStatus `firestore:"status" json:"status"`
	Plan           Plan         `firestore:"plan" json:"plan"`
	CreatedBy      string       `firestore:"createdBy" json:"createdBy"`
	ExpiresAt      time.Time    `firestore:"expiresAt" json:"expiresAt"`
	GraceExpiresAt time.Time    `firestore:"graceExpiresAt" json:"graceExpiresAt"`
	UsedBy         string       `firestore:"usedBy,omitempty" json:"usedBy,omitempty"`
	UsedAt         *time.Time   `firestore:"usedAt,omitempty" json:"usedAt,omitempty"`
	CreatedAt      time.Time    `firestore:"createdAt,serverTimestamp" json:"createdAt"`
}

// Profile is the per-user document at users/{uid}.
type Profile struct {
	ID                     string     `firestore:"-" json:"id"`
	Email                  string     `firestore:"email,omitempty" json:"email,omitempty"`
	Role                   string     `firestore:"role,omitempty" json:"role,omitempty"`
	IsActive               *bool      `firestore:"isActive,omitempty" json:"isActive,omitempty"`
	Plan                   Plan       `firestore:"plan,omitempty" json:"plan,omitempty"`
	PlanExpiresAt          *time.Time `firestore:"planExpiresAt,omitempty" json:"planExpiresAt,omitempty"`
	CodeRedeemAttempts     int        `firestore:"codeRedeemAttempts" json:"codeRedeemAttempts"`
	CodeRedeemBlockedUntil *time.Time `firestore:"codeRedeemBlockedUntil,omitempty" json:"codeRedeemBlockedUntil,omitempty"`
	PushToken              string     `firestore:"pushToken,omitempty" json:"pushToken,omitempty"`
	BudgetAlerts           bool       `firestore:"budgetAlerts" json:"budgetAlerts"`
	CreatedAt              time.Time  `firestore:"createdAt,serverTimestamp" json:"createdAt"`
	UpdatedAt              time.Time  `firestore:"updatedAt" json:"updatedAt"`
}

// Budget caps spending over a period, optionally carrying the leftover
// forward.
type Budget struct {
	ID                    string             `firestore:"-" json:"id"`
	OwnerID               string             `firestore:"ownerId" json:"ownerId"`
	Name                  string             `firestore:"name" json:"name"`
	TargetAmountCents     int64              `firestore:"targetAmountCents" json:"targetAmountCents"`
	Currency              string             `firestore:"currency" json:"currency"`
	PeriodType            string             `firestore:"periodType" json:"periodType"`
	PeriodFrom            string             `firestore:"periodFrom,omitempty" json:"periodFrom,omitempty"`
	PeriodTo              string             `firestore:"periodTo,omitempty" json:"periodTo,omitempty"`
	Categories            []string           `firestore:"categories" json:"categories"`
	ExcludeAccounts       []string           `firestore:"excludeAccounts" json:"excludeAccounts"`
	AlertThresholdPct     float64            `firestore:"alertThresholdPct" json:"alertThresholdPct"`
	Carryover             bool               `firestore:"carryover" json:"carryover"`
	CarryoverBalanceCents int64              `firestore:"carryoverBalanceCents" json:"carryoverBalanceCents"`
	LastClosedPeriodKey   string             `firestore:"lastClosedPeriodKey,omitempty" json:"lastClosedPeriodKey,omitempty"`
	CurrencyRates         map[string]float64 `firestore:"currencyRates" json:"currencyRates"`
	Active                bool               `firestore:"active" json:"active"`
	CreatedAt             time.Time          `firestore:"createdAt,serverTimestamp" json:"createdAt"`
	UpdatedAt             time.Time          `firestore:"updatedAt" json:"updatedAt"`
}

// Budget period types.
const (
	PeriodMonthly = "monthly"
	PeriodCustom  = "custom"
)

// Goal is a savings target fed by transactions tagged with its id.
type Goal struct {
	ID                string    `firestore:"-" json:"id"`
	OwnerID           string    `firestore:"ownerId" json:"ownerId"`
	Name              string    `firestore:"name" json:"name"`
	TargetAmountCents int64     `firestore:"targetAmountCents" json:"targetAmountCents"`
	Currency          string    `firestore:"currency" json:"currency"`
	DueDate           string    `firestore:"dueDate,omitempty" json:"dueDate,omitempty"`
	AccountID         string    `firestore:"accountId,omitempty" json:"accountId,omitempty"`
	Note              string    `firestore:"note" json:"note"`
	Paused            bool      `firestore:"paused" json:"paused"`
	CreatedAt         time.Time `firestore:"createdAt,serverTimestamp" json:"createdAt"`
	UpdatedAt         time.Time `firestore:"updatedAt" json:"updatedAt"`
}

// Currency is one of a user's configured currencies. Exactly one is the
// default once any exist.
type Currency struct {
	ID        string    `firestore:"-" json:"id"`
	OwnerID   string    `firestore:"ownerId" json:"ownerId"`
	Code      string    `firestore:"code" json:"code"`
	Symbol    string    `firestore:"symbol" json:"symbol"`
	Name      string    `firestore:"name" json:"name"`
	IsDefault bool      `firestore:"isDefault" json:"isDefault"`
	CreatedAt time.Time `firestore:"createdAt,serverTimestamp" json:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt" json:"updatedAt"`
}

// NotificationKind identifies the event behind a notification.
type NotificationKind string

const (
	NotifyReadOnly        NotificationKind = "access.readOnly"
	NotifyPartialCatchUp  NotificationKind = "recurring.partialCatchUp"
	NotifyRecurringPosted NotificationKind = "recurring.processed"
	NotifyBudgetThreshold NotificationKind = "budgets.threshold"
	NotifyGoalCompleted   NotificationKind = "goals.completed"
	NotifyInviteRedeemed  NotificationKind = "invite.redeemed"
)

// Notification is a user-facing message stored for the client to render.
type Notification struct {
	ID          string            `firestore:"-" json:"id"`
	OwnerID     string            `firestore:"ownerId" json:"ownerId"`
	Kind        NotificationKind  `firestore:"kind" json:"kind"`
	Title       string            `firestore:"title" json:"title"`
	Message     string            `firestore:"message" json:"message"`
	ReferenceID string            `firestore:"referenceId" json:"referenceId,omitempty"`
	Metadata    map[string]string `firestore:"metadata,omitempty" json:"metadata,omitempty"`
	IsRead      bool              `firestore:"isRead" json:"isRead"`
	CreatedAt   time.Time         `firestore:"createdAt" json:"createdAt"`
}
