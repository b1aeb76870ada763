package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CristhianDaza/finControl/internal/model"
)

const defaultMaxAttempts = 5

type memDoc struct {
	data    []byte
	version uint64
}

// MemoryStore implements Store in memory. Documents are kept as JSON keyed by
// their Firestore-style path, and RunTransaction reproduces Firestore's
// optimistic semantics: reads record the version they saw, commit validates
// every recorded version (and every queried collection) under the write
// lock, and the body is re-run on conflict up to a bounded number of times.
type MemoryStore struct {
	mu sync.RWMutex

	docs        map[string]memDoc
	collections map[string]uint64
	seq         uint64

	now          func() time.Time
	maxAttempts  int
	beforeCommit func()
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the clock used for server timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

// WithMaxAttempts bounds how often a conflicting transaction body is re-run.
func WithMaxAttempts(n int) MemoryOption {
	return func(m *MemoryStore) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithBeforeCommit installs a hook that runs after a transaction body
// returns and before its commit is validated. Tests use it to interleave a
// competing writer.
func WithBeforeCommit(fn func()) MemoryOption {
	return func(m *MemoryStore) { m.beforeCommit = fn }
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		docs:        make(map[string]memDoc),
		collections: make(map[string]uint64),
		now:         time.Now,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// encode serialises v and fills a zero createdAt from the store clock, the
// way Firestore resolves serverTimestamp fields.
func (m *MemoryStore) encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	if ts, ok := fields["createdAt"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil && t.IsZero() {
			fields["createdAt"] = m.now().UTC().Format(time.RFC3339Nano)
		}
	}
	return json.Marshal(fields)
}

func decode[T any](data []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return &out, nil
}

func collectionOf(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[:i]
	}
	return ""
}

func isChildOf(path, collection string) bool {
	if !strings.HasPrefix(path, collection+"/") {
		return false
	}
	return !strings.Contains(path[len(collection)+1:], "/")
}

// isInGroup matches users/{uid}/{collection}/{id} for any uid.
func isInGroup(path, collection string) bool {
	parts := strings.Split(path, "/")
	return len(parts) == 4 && parts[0] == colUsers && parts[2] == collection
}

func memGet[T any](m *MemoryStore, path string) (*T, error) {
	m.mu.RLock()
	doc, ok := m.docs[path]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode[T](doc.data)
}

func memList[T any](m *MemoryStore, match func(path string) bool) ([]*T, error) {
	m.mu.RLock()
	paths := make([]string, 0)
	raw := make(map[string][]byte)
	for p, doc := range m.docs {
		if match(p) {
			paths = append(paths, p)
			raw[p] = doc.data
		}
	}
	m.mu.RUnlock()

	sort.Strings(paths)
	out := make([]*T, 0, len(paths))
	for _, p := range paths {
		v, err := decode[T](raw[p])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *MemoryStore) put(path string, v any) error {
	data, err := m.encode(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.docs[path] = memDoc{data: data, version: m.seq}
	m.collections[collectionOf(path)] = m.seq
	return nil
}

// RunTransaction runs fn against a snapshot and commits its writes only if
// nothing it read has changed since.
func (m *MemoryStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &memTx{
			m:       m,
			reads:   make(map[string]uint64),
			queries: make(map[string]uint64),
			writes:  make(map[string][]byte),
		}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if m.beforeCommit != nil {
			m.beforeCommit()
		}
		if m.commit(tx) {
			return nil
		}
	}
	return ErrConflict
}

func (m *MemoryStore) commit(t *memTx) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for p, v := range t.reads {
		if m.docs[p].version != v {
			return false
		}
	}
	for c, v := range t.queries {
		if m.collections[c] != v {
			return false
		}
	}
	for _, p := range t.order {
		m.seq++
		if data := t.writes[p]; data == nil {
			delete(m.docs, p)
		} else {
			m.docs[p] = memDoc{data: data, version: m.seq}
		}
		m.collections[collectionOf(p)] = m.seq
	}
	return true
}

// memTx buffers writes until commit. A nil buffered value is a delete.
type memTx struct {
	m       *MemoryStore
	reads   map[string]uint64
	queries map[string]uint64
	writes  map[string][]byte
	order   []string
}

func (t *memTx) read(path string) ([]byte, error) {
	if len(t.order) > 0 {
		return nil, ErrReadAfterWrite
	}
	t.m.mu.RLock()
	doc, ok := t.m.docs[path]
	t.m.mu.RUnlock()
	if _, seen := t.reads[path]; !seen {
		t.reads[path] = doc.version
	}
	if !ok {
		return nil, ErrNotFound
	}
	return doc.data, nil
}

func (t *memTx) query(collection string, match func(path string) bool) ([][]byte, error) {
	if len(t.order) > 0 {
		return nil, ErrReadAfterWrite
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	if _, seen := t.queries[collection]; !seen {
		t.queries[collection] = t.m.collections[collection]
	}
	paths := make([]string, 0)
	for p := range t.m.docs {
		if match(p) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	out := make([][]byte, 0, len(paths))
	for _, p := range paths {
		out = append(out, t.m.docs[p].data)
	}
	return out, nil
}

func (t *memTx) write(path string, v any) error {
	data, err := t.m.encode(v)
	if err != nil {
		return err
	}
	t.stage(path, data)
	return nil
}

func (t *memTx) stage(path string, data []byte) {
	if _, ok := t.writes[path]; !ok {
		t.order = append(t.order, path)
	}
	t.writes[path] = data
}

func txGet[T any](t *memTx, path string) (*T, error) {
	data, err := t.read(path)
	if err != nil {
		return nil, err
	}
	return decode[T](data)
}

func (t *memTx) GetAccount(userID, accountID string) (*model.Account, error) {
	return txGet[model.Account](t, userDoc(userID, colAccounts, accountID))
}

func (t *memTx) SetAccount(a *model.Account) error {
	return t.write(userDoc(a.OwnerID, colAccounts, a.ID), a)
}

func (t *memTx) DeleteAccount(userID, accountID string) error {
	t.stage(userDoc(userID, colAccounts, accountID), nil)
	return nil
}

func (t *memTx) GetDebt(userID, debtID string) (*model.Debt, error) {
	return txGet[model.Debt](t, userDoc(userID, colDebts, debtID))
}

func (t *memTx) SetDebt(d *model.Debt) error {
	return t.write(userDoc(d.OwnerID, colDebts, d.ID), d)
}

func (t *memTx) DeleteDebt(userID, debtID string) error {
	t.stage(userDoc(userID, colDebts, debtID), nil)
	return nil
}

func (t *memTx) GetTransaction(userID, txID string) (*model.Transaction, error) {
	return txGet[model.Transaction](t, userDoc(userID, colTransactions, txID))
}

func (t *memTx) SetTransaction(tr *model.Transaction) error {
	return t.write(userDoc(tr.OwnerID, colTransactions, tr.ID), tr)
}

func (t *memTx) DeleteTransaction(userID, txID string) error {
	t.stage(userDoc(userID, colTransactions, txID), nil)
	return nil
}

func (t *memTx) ListTransactions(userID string, filter TransactionFilter) ([]*model.Transaction, error) {
	coll := userCollection(userID, colTransactions)
	raw, err := t.query(coll, func(p string) bool { return isChildOf(p, coll) })
	if err != nil {
		return nil, err
	}
	var out []*model.Transaction
	for _, data := range raw {
		tr, err := decode[model.Transaction](data)
		if err != nil {
			return nil, err
		}
		if filter.matches(tr) {
			out = append(out, tr)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return transactionLess(out[i], out[j]) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (t *memTx) GetTemplate(userID, templateID string) (*model.RecurringTemplate, error) {
	return txGet[model.RecurringTemplate](t, userDoc(userID, colTemplates, templateID))
}

func (t *memTx) SetTemplate(tpl *model.RecurringTemplate) error {
	return t.write(userDoc(tpl.OwnerID, colTemplates, tpl.ID), tpl)
}

func (t *memTx) DeleteTemplate(userID, templateID string) error {
	t.stage(userDoc(userID, colTemplates, templateID), nil)
	return nil
}

func (t *memTx) GetRun(userID, runID string) (*model.RecurringRun, error) {
	return txGet[model.RecurringRun](t, userDoc(userID, colRuns, runID))
}

func (t *memTx) SetRun(r *model.RecurringRun) error {
	return t.write(userDoc(r.OwnerID, colRuns, r.ID), r)
}

func (t *memTx) DeleteRun(userID, runID string) error {
	t.stage(userDoc(userID, colRuns, runID), nil)
	return nil
}

func (t *memTx) GetInviteCode(code string) (*model.InviteCode, error) {
	return txGet[model.InviteCode](t, inviteCodePath(code))
}

func (t *memTx) SetInviteCode(c *model.InviteCode) error {
	return t.write(inviteCodePath(c.Code), c)
}

func (t *memTx) GetProfile(userID string) (*model.Profile, error) {
	return txGet[model.Profile](t, userPath(userID))
}

func (t *memTx) SetProfile(p *model.Profile) error {
	return t.write(userPath(p.ID), p)
}

func (t *memTx) GetBudget(userID, budgetID string) (*model.Budget, error) {
	return txGet[model.Budget](t, userDoc(userID, colBudgets, budgetID))
}

func (t *memTx) SetBudget(b *model.Budget) error {
	return t.write(userDoc(b.OwnerID, colBudgets, b.ID), b)
}

func (t *memTx) DeleteBudget(userID, budgetID string) error {
	t.stage(userDoc(userID, colBudgets, budgetID), nil)
	return nil
}

func (t *memTx) GetGoal(userID, goalID string) (*model.Goal, error) {
	return txGet[model.Goal](t, userDoc(userID, colGoals, goalID))
}

func (t *memTx) SetGoal(g *model.Goal) error {
	return t.write(userDoc(g.OwnerID, colGoals, g.ID), g)
}

func (t *memTx) DeleteGoal(userID, goalID string) error {
	t.stage(userDoc(userID, colGoals, goalID), nil)
	return nil
}

func (t *memTx) ListCurrencies(userID string) ([]*model.Currency, error) {
	coll := userCollection(userID, colCurrencies)
	raw, err := t.query(coll, func(p string) bool { return isChildOf(p, coll) })
	if err != nil {
		return nil, err
	}
	out := make([]*model.Currency, 0, len(raw))
	for _, data := range raw {
		c, err := decode[model.Currency](data)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sortCurrencies(out)
	return out, nil
}

func (t *memTx) SetCurrency(c *model.Currency) error {
	return t.write(userDoc(c.OwnerID, colCurrencies, c.ID), c)
}

func (t *memTx) DeleteCurrency(userID, currencyID string) error {
	t.stage(userDoc(userID, colCurrencies, currencyID), nil)
	return nil
}

// Account operations

func (m *MemoryStore) GetAccount(ctx context.Context, userID, accountID string) (*model.Account, error) {
	return memGet[model.Account](m, userDoc(userID, colAccounts, accountID))
}

func (m *MemoryStore) ListAccounts(ctx context.Context, userID string) ([]*model.Account, error) {
	coll := userCollection(userID, colAccounts)
	out, err := memList[model.Account](m, func(p string) bool { return isChildOf(p, coll) })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Transaction operations

func (m *MemoryStore) GetTransaction(ctx context.Context, userID, txID string) (*model.Transaction, error) {
	return memGet[model.Transaction](m, userDoc(userID, colTransactions, txID))
}

func (m *MemoryStore) ListTransactions(ctx context.Context, userID string, filter TransactionFilter) ([]*model.Transaction, string, error) {
	coll := userCollection(userID, colTransactions)
	all, err := memList[model.Transaction](m, func(p string) bool { return isChildOf(p, coll) })
	if err != nil {
		return nil, "", err
	}
	matched := make([]*model.Transaction, 0, len(all))
	for _, t := range all {
		if filter.matches(t) {
			matched = append(matched, t)
		}
	}
	return pageTransactions(matched, filter)
}

// pageTransactions sorts and applies the cursor, page size and limit.
func pageTransactions(txs []*model.Transaction, filter TransactionFilter) ([]*model.Transaction, string, error) {
	sort.SliceStable(txs, func(i, j int) bool { return transactionLess(txs[i], txs[j]) })

	if filter.PageToken != "" {
		cursorID, err := DecodePageToken(filter.PageToken)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
		start := -1
		for i, t := range txs {
			if t.ID == cursorID {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return nil, "", nil
		}
		txs = txs[start:]
	}

	var nextToken string
	if filter.PageSize > 0 {
		if int32(len(txs)) > filter.PageSize {
			nextToken = EncodePageToken(txs[filter.PageSize-1].ID)
			txs = txs[:filter.PageSize]
		}
	} else if filter.Limit > 0 && len(txs) > filter.Limit {
		txs = txs[:filter.Limit]
	}
	return txs, nextToken, nil
}

// Debt operations

func (m *MemoryStore) GetDebt(ctx context.Context, userID, debtID string) (*model.Debt, error) {
	return memGet[model.Debt](m, userDoc(userID, colDebts, debtID))
}

func (m *MemoryStore) ListDebts(ctx context.Context, userID string) ([]*model.Debt, error) {
	coll := userCollection(userID, colDebts)
	out, err := memList[model.Debt](m, func(p string) bool { return isChildOf(p, coll) })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Recurring operations

func (m *MemoryStore) GetTemplate(ctx context.Context, userID, templateID string) (*model.RecurringTemplate, error) {
	return memGet[model.RecurringTemplate](m, userDoc(userID, colTemplates, templateID))
}

func (m *MemoryStore) ListTemplates(ctx context.Context, userID string) ([]*model.RecurringTemplate, error) {
	coll := userCollection(userID, colTemplates)
	out, err := memList[model.RecurringTemplate](m, func(p string) bool { return isChildOf(p, coll) })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListDueTemplates(ctx context.Context, userID, today string) ([]*model.RecurringTemplate, error) {
	coll := userCollection(userID, colTemplates)
	all, err := memList[model.RecurringTemplate](m, func(p string) bool { return isChildOf(p, coll) })
	if err != nil {
		return nil, err
	}
	return dueOnly(all, today), nil
}

func (m *MemoryStore) ListDueTemplatesAllUsers(ctx context.Context, today string) ([]*model.RecurringTemplate, error) {
	all, err := memList[model.RecurringTemplate](m, func(p string) bool { return isInGroup(p, colTemplates) })
	if err != nil {
		return nil, err
	}
	return dueOnly(all, today), nil
}

func dueOnly(all []*model.RecurringTemplate, today string) []*model.RecurringTemplate {
	due := make([]*model.RecurringTemplate, 0, len(all))
	for _, t := range all {
		if !t.Paused && t.NextRunAt <= today {
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].NextRunAt < due[j].NextRunAt })
	return due
}

func (m *MemoryStore) GetRun(ctx context.Context, userID, runID string) (*model.RecurringRun, error) {
	return memGet[model.RecurringRun](m, userDoc(userID, colRuns, runID))
}

func (m *MemoryStore) ListRuns(ctx context.Context, userID string) ([]*model.RecurringRun, error) {
	coll := userCollection(userID, colRuns)
	return memList[model.RecurringRun](m, func(p string) bool { return isChildOf(p, coll) })
}

// Profile and invite code operations

func (m *MemoryStore) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	return memGet[model.Profile](m, userPath(userID))
}

func (m *MemoryStore) GetInviteCode(ctx context.Context, code string) (*model.InviteCode, error) {
	return memGet[model.InviteCode](m, inviteCodePath(code))
}

func (m *MemoryStore) ListInviteCodes(ctx context.Context, filter InviteCodeFilter) ([]*model.InviteCode, error) {
	all, err := memList[model.InviteCode](m, func(p string) bool { return isChildOf(p, colInviteCodes) })
	if err != nil {
		return nil, err
	}
	out := make([]*model.InviteCode, 0, len(all))
	for _, c := range all {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.CreatedBy != "" && c.CreatedBy != filter.CreatedBy {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Budget and goal operations

func (m *MemoryStore) GetBudget(ctx context.Context, userID, budgetID string) (*model.Budget, error) {
	return memGet[model.Budget](m, userDoc(userID, colBudgets, budgetID))
}

func (m *MemoryStore) ListBudgets(ctx context.Context, userID string, includeInactive bool) ([]*model.Budget, error) {
	coll := userCollection(userID, colBudgets)
	all, err := memList[model.Budget](m, func(p string) bool { return isChildOf(p, coll) })
	if err != nil {
		return nil, err
	}
	out := make([]*model.Budget, 0, len(all))
	for _, b := range all {
		if includeInactive || b.Active {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) GetGoal(ctx context.Context, userID, goalID string) (*model.Goal, error) {
	return memGet[model.Goal](m, userDoc(userID, colGoals, goalID))
}

func (m *MemoryStore) ListGoals(ctx context.Context, userID string) ([]*model.Goal, error) {
	coll := userCollection(userID, colGoals)
	out, err := memList[model.Goal](m, func(p string) bool { return isChildOf(p, coll) })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListCurrencies(ctx context.Context, userID string) ([]*model.Currency, error) {
	coll := userCollection(userID, colCurrencies)
	out, err := memList[model.Currency](m, func(p string) bool { return isChildOf(p, coll) })
	if err != nil {
		return nil, err
	}
	sortCurrencies(out)
	return out, nil
}

// Notification operations

func (m *MemoryStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now()
	}
	return m.put(userDoc(n.OwnerID, colNotifications, n.ID), n)
}

func (m *MemoryStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, pageSize int32, pageToken string) ([]*model.Notification, string, error) {
	coll := userCollection(userID, colNotifications)
	all, err := memList[model.Notification](m, func(p string) bool { return isChildOf(p, coll) })
	if err != nil {
		return nil, "", err
	}
	out := make([]*model.Notification, 0, len(all))
	for _, n := range all {
		if unreadOnly && n.IsRead {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if pageToken != "" {
		cursorID, err := DecodePageToken(pageToken)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
		for i, n := range out {
			if n.ID == cursorID {
				out = out[i+1:]
				break
			}
		}
	}
	pageSize = NormalizePageSize(pageSize)
	var nextToken string
	if int32(len(out)) > pageSize {
		nextToken = EncodePageToken(out[pageSize-1].ID)
		out = out[:pageSize]
	}
	return out, nextToken, nil
}

func (m *MemoryStore) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	path := userDoc(userID, colNotifications, notificationID)
	n, err := memGet[model.Notification](m, path)
	if err != nil {
		return err
	}
	n.IsRead = true
	return m.put(path, n)
}

func (m *MemoryStore) HasNotification(ctx context.Context, userID string, kind model.NotificationKind, referenceID, metadataKey, metadataValue string, withinHours int) (bool, error) {
	coll := userCollection(userID, colNotifications)
	all, err := memList[model.Notification](m, func(p string) bool { return isChildOf(p, coll) })
	if err != nil {
		return false, err
	}
	now := m.now()
	for _, n := range all {
		if n.Kind != kind || n.ReferenceID != referenceID {
			continue
		}
		if !within(n.CreatedAt, now, withinHours) {
			continue
		}
		if metadataKey != "" && n.Metadata[metadataKey] != metadataValue {
			continue
		}
		return true, nil
	}
	return false, nil
}
