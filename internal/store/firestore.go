package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/CristhianDaza/finControl/internal/model"
)

// FirestoreStore implements the Store interface using Firestore
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a new Firestore-backed store
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{
		client: client,
	}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func setAccountID(a *model.Account, id string) { a.ID = id }
func setTransactionID(t *model.Transaction, id string) { t.ID = id }
func setDebtID(d *model.Debt, id string) { d.ID = id }
func setTemplateID(t *model.RecurringTemplate, id string) { t.ID = id }
func setRunID(r *model.RecurringRun, id string) { r.ID = id }
func setProfileID(p *model.Profile, id string) { p.ID = id }
func setBudgetID(b *model.Budget, id string) { b.ID = id }
func setGoalID(g *model.Goal, id string) { g.ID = id }
func setCurrencyID(c *model.Currency, id string) { c.ID = id }
func setNotificationID(n *model.Notification, id string) { n.ID = id }
func setInviteCodeID(c *model.InviteCode, id string) { c.Code = id }

func fromSnapshot[T any](snap *firestore.DocumentSnapshot, setID func(*T, string)) (*T, error) {
	var v T
	if err := snap.DataTo(&v); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", snap.Ref.Path, err)
	}
	setID(&v, snap.Ref.ID)
	return &v, nil
}

func fromSnapshots[T any](snaps []*firestore.DocumentSnapshot, setID func(*T, string)) ([]*T, error) {
	out := make([]*T, 0, len(snaps))
	for _, snap := range snaps {
		v, err := fromSnapshot(snap, setID)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func fsGet[T any](ctx context.Context, ref *firestore.DocumentRef, setID func(*T, string)) (*T, error) {
	snap, err := ref.Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", ref.Path, err)
	}
	return fromSnapshot(snap, setID)
}

func fsList[T any](ctx context.Context, q firestore.Query, setID func(*T, string)) ([]*T, error) {
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	return fromSnapshots(snaps, setID)
}

// RunTransaction wraps client.RunTransaction. The Firestore client re-runs fn
// on contention, which is the behaviour the engines rely on.
func (s *FirestoreStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &firestoreTx{client: s.client, tx: tx})
	})
}

type firestoreTx struct {
	client *firestore.Client
	tx     *firestore.Transaction
}

func fsTxGet[T any](t *firestoreTx, path string, setID func(*T, string)) (*T, error) {
	snap, err := t.tx.Get(t.client.Doc(path))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", path, err)
	}
	return fromSnapshot(snap, setID)
}

func (t *firestoreTx) set(path string, v any) error {
	return t.tx.Set(t.client.Doc(path), v)
}

func (t *firestoreTx) delete(path string) error {
	return t.tx.Delete(t.client.Doc(path))
}

func (t *firestoreTx) GetAccount(userID, accountID string) (*model.Account, error) {
	return fsTxGet(t, userDoc(userID, colAccounts, accountID), setAccountID)
}

func (t *firestoreTx) SetAccount(a *model.Account) error {
	return t.set(userDoc(a.OwnerID, colAccounts, a.ID), a)
}

func (t *firestoreTx) DeleteAccount(userID, accountID string) error {
	return t.delete(userDoc(userID, colAccounts, accountID))
}

func (t *firestoreTx) GetDebt(userID, debtID string) (*model.Debt, error) {
	return fsTxGet(t, userDoc(userID, colDebts, debtID), setDebtID)
}

func (t *firestoreTx) SetDebt(d *model.Debt) error {
	return t.set(userDoc(d.OwnerID, colDebts, d.ID), d)
}

func (t *firestoreTx) DeleteDebt(userID, debtID string) error {
	return t.delete(userDoc(userID, colDebts, debtID))
}

func (t *firestoreTx) GetTransaction(userID, txID string) (*model.Transaction, error) {
	return fsTxGet(t, userDoc(userID, colTransactions, txID), setTransactionID)
}

func (t *firestoreTx) SetTransaction(tr *model.Transaction) error {
	return t.set(userDoc(tr.OwnerID, colTransactions, tr.ID), tr)
}

func (t *firestoreTx) DeleteTransaction(userID, txID string) error {
	return t.delete(userDoc(userID, colTransactions, txID))
}

func (t *firestoreTx) ListTransactions(userID string, filter TransactionFilter) ([]*model.Transaction, error) {
	q := transactionQuery(t.client, userID, filter)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	snaps, err := t.tx.Documents(q).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return fromSnapshots(snaps, setTransactionID)
}

func (t *firestoreTx) GetTemplate(userID, templateID string) (*model.RecurringTemplate, error) {
	return fsTxGet(t, userDoc(userID, colTemplates, templateID), setTemplateID)
}

func (t *firestoreTx) SetTemplate(tpl *model.RecurringTemplate) error {
	return t.set(userDoc(tpl.OwnerID, colTemplates, tpl.ID), tpl)
}

func (t *firestoreTx) DeleteTemplate(userID, templateID string) error {
	return t.delete(userDoc(userID, colTemplates, templateID))
}

func (t *firestoreTx) GetRun(userID, runID string) (*model.RecurringRun, error) {
	return fsTxGet(t, userDoc(userID, colRuns, runID), setRunID)
}

func (t *firestoreTx) SetRun(r *model.RecurringRun) error {
	return t.set(userDoc(r.OwnerID, colRuns, r.ID), r)
}

func (t *firestoreTx) DeleteRun(userID, runID string) error {
	return t.delete(userDoc(userID, colRuns, runID))
}

func (t *firestoreTx) GetInviteCode(code string) (*model.InviteCode, error) {
	return fsTxGet(t, inviteCodePath(code), setInviteCodeID)
}

func (t *firestoreTx) SetInviteCode(c *model.InviteCode) error {
	return t.set(inviteCodePath(c.Code), c)
}

func (t *firestoreTx) GetProfile(userID string) (*model.Profile, error) {
	return fsTxGet(t, userPath(userID), setProfileID)
}

func (t *firestoreTx) SetProfile(p *model.Profile) error {
	return t.set(userPath(p.ID), p)
}

func (t *firestoreTx) GetBudget(userID, budgetID string) (*model.Budget, error) {
	return fsTxGet(t, userDoc(userID, colBudgets, budgetID), setBudgetID)
}

func (t *firestoreTx) SetBudget(b *model.Budget) error {
	return t.set(userDoc(b.OwnerID, colBudgets, b.ID), b)
}

func (t *firestoreTx) DeleteBudget(userID, budgetID string) error {
	return t.delete(userDoc(userID, colBudgets, budgetID))
}

func (t *firestoreTx) GetGoal(userID, goalID string) (*model.Goal, error) {
	return fsTxGet(t, userDoc(userID, colGoals, goalID), setGoalID)
}

func (t *firestoreTx) SetGoal(g *model.Goal) error {
	return t.set(userDoc(g.OwnerID, colGoals, g.ID), g)
}

func (t *firestoreTx) DeleteGoal(userID, goalID string) error {
	return t.delete(userDoc(userID, colGoals, goalID))
}

func (t *firestoreTx) ListCurrencies(userID string) ([]*model.Currency, error) {
	snaps, err := t.tx.Documents(t.client.Collection(userCollection(userID, colCurrencies))).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query currencies: %w", err)
	}
	out, err := fromSnapshots(snaps, setCurrencyID)
	if err != nil {
		return nil, err
	}
	sortCurrencies(out)
	return out, nil
}

func (t *firestoreTx) SetCurrency(c *model.Currency) error {
	return t.set(userDoc(c.OwnerID, colCurrencies, c.ID), c)
}

func (t *firestoreTx) DeleteCurrency(userID, currencyID string) error {
	return t.delete(userDoc(userID, colCurrencies, currencyID))
}

// Account operations

func (s *FirestoreStore) GetAccount(ctx context.Context, userID, accountID string) (*model.Account, error) {
	return fsGet(ctx, s.client.Doc(userDoc(userID, colAccounts, accountID)), setAccountID)
}

func (s *FirestoreStore) ListAccounts(ctx context.Context, userID string) ([]*model.Account, error) {
	q := s.client.Collection(userCollection(userID, colAccounts)).OrderBy("name", firestore.Asc)
	return fsList(ctx, q, setAccountID)
}

// Transaction operations

func (s *FirestoreStore) GetTransaction(ctx context.Context, userID, txID string) (*model.Transaction, error) {
	return fsGet(ctx, s.client.Doc(userDoc(userID, colTransactions, txID)), setTransactionID)
}

// transactionQuery builds the filtered query. Date range filters share the
// "date" field with the first OrderBy, which Firestore requires.
func transactionQuery(client *firestore.Client, userID string, f TransactionFilter) firestore.Query {
	q := client.Collection(userCollection(userID, colTransactions)).Query
	if f.Type != "" {
		q = q.Where("type", "==", string(f.Type))
	}
	if f.AccountID != "" {
		q = q.Where("accountId", "==", f.AccountID)
	}
	if f.DebtID != "" {
		q = q.Where("debtId", "==", f.DebtID)
	}
	if f.CategoryID != "" {
		q = q.Where("categoryId", "==", f.CategoryID)
	}
	if f.GoalID != "" {
		q = q.Where("goalId", "==", f.GoalID)
	}
	if f.TransferID != "" {
		q = q.Where("transferId", "==", f.TransferID)
	}
	if f.DateFrom != "" {
		q = q.Where("date", ">=", f.DateFrom)
	}
	if f.DateTo != "" {
		q = q.Where("date", "<=", f.DateTo)
	}
	return q.OrderBy("date", firestore.Desc).OrderBy("createdAt", firestore.Desc)
}

func (s *FirestoreStore) ListTransactions(ctx context.Context, userID string, filter TransactionFilter) ([]*model.Transaction, string, error) {
	q := transactionQuery(s.client, userID, filter)

	if filter.PageToken != "" {
		cursorID, err := DecodePageToken(filter.PageToken)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
		// Composite ordering needs the cursor document itself, not just its id.
		cursor, err := s.client.Doc(userDoc(userID, colTransactions, cursorID)).Get(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("failed to fetch cursor document: %w", err)
		}
		q = q.StartAfter(cursor)
	}

	switch {
	case filter.PageSize > 0:
		q = q.Limit(int(filter.PageSize) + 1)
	case filter.Limit > 0:
		q = q.Limit(filter.Limit)
	}

	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list transactions: %w", err)
	}

	var nextPageToken string
	if filter.PageSize > 0 && len(snaps) > int(filter.PageSize) {
		snaps = snaps[:filter.PageSize]
		nextPageToken = EncodePageToken(snaps[filter.PageSize-1].Ref.ID)
	}

	txs, err := fromSnapshots(snaps, setTransactionID)
	if err != nil {
		return nil, "", err
	}
	return txs, nextPageToken, nil
}

// Debt operations

func (s *FirestoreStore) GetDebt(ctx context.Context, userID, debtID string) (*model.Debt, error) {
	return fsGet(ctx, s.client.Doc(userDoc(userID, colDebts, debtID)), setDebtID)
}

func (s *FirestoreStore) ListDebts(ctx context.Context, userID string) ([]*model.Debt, error) {
	q := s.client.Collection(userCollection(userID, colDebts)).OrderBy("createdAt", firestore.Desc)
	return fsList(ctx, q, setDebtID)
}

// Recurring operations

func (s *FirestoreStore) GetTemplate(ctx context.Context, userID, templateID string) (*model.RecurringTemplate, error) {
	return fsGet(ctx, s.client.Doc(userDoc(userID, colTemplates, templateID)), setTemplateID)
}

func (s *FirestoreStore) ListTemplates(ctx context.Context, userID string) ([]*model.RecurringTemplate, error) {
	q := s.client.Collection(userCollection(userID, colTemplates)).OrderBy("createdAt", firestore.Desc)
	return fsList(ctx, q, setTemplateID)
}

func (s *FirestoreStore) ListDueTemplates(ctx context.Context, userID, today string) ([]*model.RecurringTemplate, error) {
	q := s.client.Collection(userCollection(userID, colTemplates)).
		Where("paused", "==", false).
		Where("nextRunAt", "<=", today).
		OrderBy("nextRunAt", firestore.Asc)
	return fsList(ctx, q, setTemplateID)
}

// ListDueTemplatesAllUsers uses a collection-group query so the system pass
// does not have to enumerate users first.
func (s *FirestoreStore) ListDueTemplatesAllUsers(ctx context.Context, today string) ([]*model.RecurringTemplate, error) {
	q := s.client.CollectionGroup(colTemplates).
		Where("paused", "==", false).
		Where("nextRunAt", "<=", today).
		OrderBy("nextRunAt", firestore.Asc)
	return fsList(ctx, q, setTemplateID)
}

func (s *FirestoreStore) GetRun(ctx context.Context, userID, runID string) (*model.RecurringRun, error) {
	return fsGet(ctx, s.client.Doc(userDoc(userID, colRuns, runID)), setRunID)
}

func (s *FirestoreStore) ListRuns(ctx context.Context, userID string) ([]*model.RecurringRun, error) {
	return fsList(ctx, s.client.Collection(userCollection(userID, colRuns)).Query, setRunID)
}

// Profile and invite code operations

func (s *FirestoreStore) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	return fsGet(ctx, s.client.Doc(userPath(userID)), setProfileID)
}

func (s *FirestoreStore) GetInviteCode(ctx context.Context, code string) (*model.InviteCode, error) {
	return fsGet(ctx, s.client.Doc(inviteCodePath(code)), setInviteCodeID)
}

func (s *FirestoreStore) ListInviteCodes(ctx context.Context, filter InviteCodeFilter) ([]*model.InviteCode, error) {
	q := s.client.Collection(colInviteCodes).Query
	if filter.Status != "" {
		q = q.Where("status", "==", string(filter.Status))
	}
	if filter.CreatedBy != "" {
		q = q.Where("createdBy", "==", filter.CreatedBy)
	}
	q = q.OrderBy("createdAt", firestore.Desc)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	return fsList(ctx, q, setInviteCodeID)
}

// Budget and goal operations

func (s *FirestoreStore) GetBudget(ctx context.Context, userID, budgetID string) (*model.Budget, error) {
	return fsGet(ctx, s.client.Doc(userDoc(userID, colBudgets, budgetID)), setBudgetID)
}

func (s *FirestoreStore) ListBudgets(ctx context.Context, userID string, includeInactive bool) ([]*model.Budget, error) {
	q := s.client.Collection(userCollection(userID, colBudgets)).Query
	if !includeInactive {
		q = q.Where("active", "==", true)
	}
	return fsList(ctx, q.OrderBy("name", firestore.Asc), setBudgetID)
}

func (s *FirestoreStore) GetGoal(ctx context.Context, userID, goalID string) (*model.Goal, error) {
	return fsGet(ctx, s.client.Doc(userDoc(userID, colGoals, goalID)), setGoalID)
}

func (s *FirestoreStore) ListGoals(ctx context.Context, userID string) ([]*model.Goal, error) {
	q := s.client.Collection(userCollection(userID, colGoals)).OrderBy("createdAt", firestore.Desc)
	return fsList(ctx, q, setGoalID)
}

func (s *FirestoreStore) ListCurrencies(ctx context.Context, userID string) ([]*model.Currency, error) {
	out, err := fsList(ctx, s.client.Collection(userCollection(userID, colCurrencies)).Query, setCurrencyID)
	if err != nil {
		return nil, err
	}
	sortCurrencies(out)
	return out, nil
}

// Notification operations

func (s *FirestoreStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := s.client.Doc(userDoc(n.OwnerID, colNotifications, n.ID)).Set(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (s *FirestoreStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, pageSize int32, pageToken string) ([]*model.Notification, string, error) {
	coll := userCollection(userID, colNotifications)
	q := s.client.Collection(coll).Query
	if unreadOnly {
		q = q.Where("isRead", "==", false)
	}
	q = q.OrderBy("createdAt", firestore.Desc)

	if pageToken != "" {
		cursorID, err := DecodePageToken(pageToken)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
		cursor, err := s.client.Doc(coll + "/" + cursorID).Get(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("failed to fetch cursor document: %w", err)
		}
		q = q.StartAfter(cursor)
	}

	pageSize = NormalizePageSize(pageSize)
	snaps, err := q.Limit(int(pageSize) + 1).Documents(ctx).GetAll()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list notifications: %w", err)
	}

	var nextPageToken string
	if len(snaps) > int(pageSize) {
		snaps = snaps[:pageSize]
		nextPageToken = EncodePageToken(snaps[pageSize-1].Ref.ID)
	}
	out, err := fromSnapshots(snaps, setNotificationID)
	if err != nil {
		return nil, "", err
	}
	return out, nextPageToken, nil
}

func (s *FirestoreStore) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	_, err := s.client.Doc(userDoc(userID, colNotifications, notificationID)).Update(ctx, []firestore.Update{
		{Path: "isRead", Value: true},
	})
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

func (s *FirestoreStore) HasNotification(ctx context.Context, userID string, kind model.NotificationKind, referenceID, metadataKey, metadataValue string, withinHours int) (bool, error) {
	q := s.client.Collection(userCollection(userID, colNotifications)).
		Where("kind", "==", string(kind)).
		Where("referenceId", "==", referenceID)
	if metadataKey != "" {
		q = q.Where("metadata."+metadataKey, "==", metadataValue)
	}
	if withinHours > 0 {
		q = q.Where("createdAt", ">=", time.Now().Add(-time.Duration(withinHours)*time.Hour))
	}
	snaps, err := q.Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return false, fmt.Errorf("failed to query notifications: %w", err)
	}
	return len(snaps) > 0, nil
}

var (
	_ Store = (*FirestoreStore)(nil)
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*firestoreTx)(nil)
	_ Tx    = (*memTx)(nil)
)
