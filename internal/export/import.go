package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/store"
)

// Mode decides what Import does with documents already in the store.
type Mode string

const (
	// ModeMerge upserts backup documents by id and leaves the rest alone.
	ModeMerge Mode = "merge"
	// ModeReplace deletes the user's data before writing the backup.
	ModeReplace Mode = "replace"
)

// ParseMode accepts "merge", "replace" or "" (merge).
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeMerge:
		return ModeMerge, nil
	case ModeReplace:
		return ModeReplace, nil
	}
	return "", errs.Newf(errs.InvalidArgument, "unknown import mode %q", s)
}

// batchSize caps the writes per transaction below Firestore's 500.
const batchSize = 400

// Result counts documents written (Import) or deleted (DeleteAll) per
// collection.
type Result struct {
	Mode   Mode           `json:"mode,omitempty"`
	Counts map[string]int `json:"counts"`
}

func (r *Result) total() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// Timestamp fields may arrive as epoch milliseconds.
var (
	instantKeys = map[string]bool{
		"createdAt": true, "updatedAt": true, "lastActiveAt": true, "planExpiresAt": true,
		"expiresAt": true, "graceExpiresAt": true, "usedAt": true, "codeRedeemBlockedUntil": true,
	}
	dateKeys = map[string]bool{
		"nextRunAt": true, "lastRunAt": true, "firstRunAt": true, "dueDate": true, "date": true,
	}
)

// Decode reads a backup in either format. Documents may be flat or wrapped
// as {"id", "data"}, and timestamp fields may be epoch milliseconds.
func Decode(r io.Reader, f Format) (*Backup, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	var raw map[string]any
	if f == FormatZip {
		raw, err = rawFromZip(data)
	} else {
		err = unmarshalNumbers(data, &raw)
	}
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "malformed backup")
	}
	cols, ok := raw["collections"].(map[string]any)
	if !ok {
		return nil, errs.Newf(errs.InvalidArgument, "backup has no collections")
	}
	for name, docs := range cols {
		cols[name] = reviveDocs(docs)
	}

	revived, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("decode backup: %w", err)
	}
	var b Backup
	if err := json.Unmarshal(revived, &b); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "malformed backup")
	}
	return &b, nil
}

func unmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func rawFromZip(data []byte) (map[string]any, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	raw := map[string]any{}
	cols := map[string]any{}
	for _, f := range zr.File {
		body, err := readZipFile(f)
		if err != nil {
			return nil, err
		}
		var v any
		if err := unmarshalNumbers(body, &v); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		if f.Name == "manifest.json" {
			if m, ok := v.(map[string]any); ok {
				raw["version"], raw["exportedAt"], raw["userId"] = m["version"], m["exportedAt"], m["userId"]
			}
			continue
		}
		cols[strings.TrimSuffix(f.Name, ".json")] = v
	}
	raw["collections"] = cols
	return raw, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func reviveDocs(v any) any {
	docs, ok := v.([]any)
	if !ok {
		return v
	}
	for i, d := range docs {
		m, ok := d.(map[string]any)
		if !ok {
			continue
		}
		if inner, ok := m["data"].(map[string]any); ok && len(m) <= 2 {
			if _, has := inner["id"]; !has {
				inner["id"] = m["id"]
			}
			m = inner
		}
		docs[i] = revive(m, "")
	}
	return docs
}

func revive(v any, key string) any {
	switch t := v.(type) {
	case json.Number:
		ms, err := t.Int64()
		if err != nil {
			return v
		}
		switch {
		case instantKeys[key]:
			return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
		case dateKeys[key]:
			return time.UnixMilli(ms).UTC().Format(time.DateOnly)
		}
	case map[string]any:
		for k, inner := range t {
			t[k] = revive(inner, k)
		}
	case []any:
		for i, inner := range t {
			t[i] = revive(inner, "")
		}
	}
	return v
}

// writeOp is one document write inside a batch.
type writeOp func(tx store.Tx) error

// apply runs ops in transactions of at most batchSize writes. Batches commit
// independently.
func (e *Exporter) apply(ctx context.Context, ops []writeOp) error {
	for start := 0; start < len(ops); start += batchSize {
		batch := ops[start:min(start+batchSize, len(ops))]
		err := e.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			for _, op := range batch {
				if err := op(tx); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func docID(id string) string {
	if strings.TrimSpace(id) == "" {
		return uuid.New().String()
	}
	return id
}

// upserts re-owns each doc and queues its write.
func upserts[T any](ops []writeOp, counts map[string]int, name string, docs []*T, own func(*T), set func(store.Tx, *T) error) []writeOp {
	for _, d := range docs {
		if d == nil {
			continue
		}
		own(d)
		ops = append(ops, func(tx store.Tx) error { return set(tx, d) })
		counts[name]++
	}
	return ops
}

// Import writes b into the signed-in user's data. Every document is owned by
// the caller whatever the backup says, and documents without an id get one.
// Balances are restored as recorded, not recomputed.
func (e *Exporter) Import(ctx context.Context, b *Backup, mode Mode) (*Result, error) {
	uid, err := e.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errs.Newf(errs.InvalidArgument, "backup is empty")
	}
	if b.Version > Version {
		return nil, errs.Newf(errs.InvalidArgument, "backup version %d is newer than %d", b.Version, Version)
	}
	if mode == "" {
		mode = ModeMerge
	}

	if mode == ModeReplace {
		if _, err := e.deleteAll(ctx, uid); err != nil {
			return nil, err
		}
	}

	res := &Result{Mode: mode, Counts: map[string]int{}}
	c := b.Collections
	var ops []writeOp
	ops = upserts(ops, res.Counts, "accounts", c.Accounts,
		func(a *model.Account) { a.ID, a.OwnerID = docID(a.ID), uid }, store.Tx.SetAccount)
	ops = upserts(ops, res.Counts, "debts", c.Debts,
		func(d *model.Debt) { d.ID, d.OwnerID = docID(d.ID), uid }, store.Tx.SetDebt)
	ops = upserts(ops, res.Counts, "transactions", c.Transactions,
		func(t *model.Transaction) { t.ID, t.OwnerID = docID(t.ID), uid }, store.Tx.SetTransaction)
	ops = upserts(ops, res.Counts, "recurringTemplates", c.RecurringTemplates,
		func(t *model.RecurringTemplate) { t.ID, t.OwnerID = docID(t.ID), uid }, store.Tx.SetTemplate)
	ops = upserts(ops, res.Counts, "recurringRuns", c.RecurringRuns,
		func(r *model.RecurringRun) { r.ID, r.OwnerID = docID(r.ID), uid }, store.Tx.SetRun)
	ops = upserts(ops, res.Counts, "budgets", c.Budgets,
		func(bu *model.Budget) { bu.ID, bu.OwnerID = docID(bu.ID), uid }, store.Tx.SetBudget)
	ops = upserts(ops, res.Counts, "goals", c.Goals,
		func(g *model.Goal) { g.ID, g.OwnerID = docID(g.ID), uid }, store.Tx.SetGoal)
	ops = upserts(ops, res.Counts, "currencies", c.Currencies,
		func(cu *model.Currency) { cu.ID, cu.OwnerID = docID(cu.ID), uid }, store.Tx.SetCurrency)

	if err := e.apply(ctx, ops); err != nil {
		return nil, fmt.Errorf("failed to import backup: %w", err)
	}
	log.Printf("[Export] Imported %d documents into user %s (%s)", res.total(), uid, mode)
	return res, nil
}

// deletes queues a delete for each id.
func deletes[T any](ops []writeOp, counts map[string]int, name string, docs []*T, id func(*T) string, del func(tx store.Tx, id string) error) []writeOp {
	for _, d := range docs {
		docID := id(d)
		ops = append(ops, func(tx store.Tx) error { return del(tx, docID) })
	}
	counts[name] = len(docs)
	return ops
}

// DeleteAll removes the signed-in user's financial data. The profile and
// notifications stay.
func (e *Exporter) DeleteAll(ctx context.Context) (*Result, error) {
	uid, err := e.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := e.deleteAll(ctx, uid)
	if err != nil {
		return nil, err
	}
	res := &Result{Counts: counts}
	log.Printf("[Export] Deleted %d documents for user %s", res.total(), uid)
	return res, nil
}

func (e *Exporter) deleteAll(ctx context.Context, uid string) (map[string]int, error) {
	b, err := e.collectFor(ctx, uid)
	if err != nil {
		return nil, err
	}
	c := b.Collections
	counts := map[string]int{}
	var ops []writeOp
	ops = deletes(ops, counts, "transactions", c.Transactions,
		func(t *model.Transaction) string { return t.ID },
		func(tx store.Tx, id string) error { return tx.DeleteTransaction(uid, id) })
	ops = deletes(ops, counts, "recurringRuns", c.RecurringRuns,
		func(r *model.RecurringRun) string { return r.ID },
		func(tx store.Tx, id string) error { return tx.DeleteRun(uid, id) })
	ops = deletes(ops, counts, "recurringTemplates", c.RecurringTemplates,
		func(t *model.RecurringTemplate) string { return t.ID },
		func(tx store.Tx, id string) error { return tx.DeleteTemplate(uid, id) })
	ops = deletes(ops, counts, "goals", c.Goals,
		func(g *model.Goal) string { return g.ID },
		func(tx store.Tx, id string) error { return tx.DeleteGoal(uid, id) })
	ops = deletes(ops, counts, "debts", c.Debts,
		func(d *model.Debt) string { return d.ID },
		func(tx store.Tx, id string) error { return tx.DeleteDebt(uid, id) })
	ops = deletes(ops, counts, "accounts", c.Accounts,
		func(a *model.Account) string { return a.ID },
		func(tx store.Tx, id string) error { return tx.DeleteAccount(uid, id) })
	ops = deletes(ops, counts, "budgets", c.Budgets,
		func(b *model.Budget) string { return b.ID },
		func(tx store.Tx, id string) error { return tx.DeleteBudget(uid, id) })
	ops = deletes(ops, counts, "currencies", c.Currencies,
		func(cu *model.Currency) string { return cu.ID },
		func(tx store.Tx, id string) error { return tx.DeleteCurrency(uid, id) })

	if err := e.apply(ctx, ops); err != nil {
		return nil, fmt.Errorf("failed to delete user data: %w", err)
	}
	return counts, nil
}
