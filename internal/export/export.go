// Package export writes a versioned snapshot of one user's documents, either
// as a single JSON document or as a zip with one file per collection, and
// restores such snapshots.
package export

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/session"
	"github.com/CristhianDaza/finControl/internal/store"
)

// Version is bumped whenever the backup layout changes.
const Version = 1

// Format selects the backup encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatZip  Format = "zip"
)

// ParseFormat accepts "json", "zip" or "" (json).
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatZip:
		return FormatZip, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

func (f Format) contentType() string {
	if f == FormatZip {
		return "application/zip"
	}
	return "application/json"
}

// Collections holds every exported collection.
type Collections struct {
	Accounts           []*model.Account           `json:"accounts"`
	Transactions       []*model.Transaction       `json:"transactions"`
	Debts              []*model.Debt              `json:"debts"`
	RecurringTemplates []*model.RecurringTemplate `json:"recurringTemplates"`
	RecurringRuns      []*model.RecurringRun      `json:"recurringRuns"`
	Budgets            []*model.Budget            `json:"budgets"`
	Goals              []*model.Goal              `json:"goals"`
	Currencies         []*model.Currency          `json:"currencies"`
}

// Backup is the exported document.
type Backup struct {
	Version     int         `json:"version"`
	ExportedAt  time.Time   `json:"exportedAt"`
	UserID      string      `json:"userId"`
	Collections Collections `json:"collections"`
}

// Manifest is the first file of a zip backup.
type Manifest struct {
	Version    int            `json:"version"`
	ExportedAt time.Time      `json:"exportedAt"`
	UserID     string         `json:"userId"`
	Counts     map[string]int `json:"counts"`
}

// Exporter reads a user's documents through the session store.
type Exporter struct {
	sess *session.Session
}

func New(sess *session.Session) *Exporter {
	return &Exporter{sess: sess}
}

// Collect snapshots the signed-in user's documents. The reads are not one
// transaction; a backup taken during writes may straddle them.
func (e *Exporter) Collect(ctx context.Context) (*Backup, error) {
	uid, err := e.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	return e.collectFor(ctx, uid)
}

func (e *Exporter) collectFor(ctx context.Context, uid string) (*Backup, error) {
	var err error
	st := e.sess.Store
	b := &Backup{Version: Version, ExportedAt: e.sess.Now().UTC(), UserID: uid}
	c := &b.Collections

	if c.Accounts, err = st.ListAccounts(ctx, uid); err != nil {
		return nil, fmt.Errorf("failed to export accounts: %w", err)
	}
	if c.Transactions, _, err = st.ListTransactions(ctx, uid, store.TransactionFilter{}); err != nil {
		return nil, fmt.Errorf("failed to export transactions: %w", err)
	}
	if c.Debts, err = st.ListDebts(ctx, uid); err != nil {
		return nil, fmt.Errorf("failed to export debts: %w", err)
	}
	if c.RecurringTemplates, err = st.ListTemplates(ctx, uid); err != nil {
		return nil, fmt.Errorf("failed to export recurring templates: %w", err)
	}
	if c.RecurringRuns, err = st.ListRuns(ctx, uid); err != nil {
		return nil, fmt.Errorf("failed to export recurring runs: %w", err)
	}
	if c.Budgets, err = st.ListBudgets(ctx, uid, true); err != nil {
		return nil, fmt.Errorf("failed to export budgets: %w", err)
	}
	if c.Goals, err = st.ListGoals(ctx, uid); err != nil {
		return nil, fmt.Errorf("failed to export goals: %w", err)
	}
	if c.Currencies, err = st.ListCurrencies(ctx, uid); err != nil {
		return nil, fmt.Errorf("failed to export currencies: %w", err)
	}
	return b, nil
}

func (b *Backup) named() []namedCollection {
	c := b.Collections
	return []namedCollection{
		{"accounts", len(c.Accounts), c.Accounts},
		{"transactions", len(c.Transactions), c.Transactions},
		{"debts", len(c.Debts), c.Debts},
		{"recurringTemplates", len(c.RecurringTemplates), c.RecurringTemplates},
		{"recurringRuns", len(c.RecurringRuns), c.RecurringRuns},
		{"budgets", len(c.Budgets), c.Budgets},
		{"goals", len(c.Goals), c.Goals},
		{"currencies", len(c.Currencies), c.Currencies},
	}
}

type namedCollection struct {
	name  string
	count int
	docs  any
}

// Encode writes b to w in format f.
func Encode(w io.Writer, b *Backup, f Format) error {
	if f == FormatZip {
		return encodeZip(w, b)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	return nil
}

func encodeZip(w io.Writer, b *Backup) error {
	zw := zip.NewWriter(w)
	manifest := Manifest{Version: b.Version, ExportedAt: b.ExportedAt, UserID: b.UserID, Counts: map[string]int{}}
	cols := b.named()
	for _, c := range cols {
		manifest.Counts[c.name] = c.count
	}
	if err := writeZipJSON(zw, "manifest.json", manifest, b.ExportedAt); err != nil {
		return err
	}
	for _, c := range cols {
		if err := writeZipJSON(zw, c.name+".json", c.docs, b.ExportedAt); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("create zip: %w", err)
	}
	return nil
}

func writeZipJSON(zw *zip.Writer, name string, v any, modified time.Time) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	enc := json.NewEncoder(fw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return nil
}

// Write collects the signed-in user's backup and encodes it to w.
func (e *Exporter) Write(ctx context.Context, w io.Writer, f Format) (*Backup, error) {
	b, err := e.Collect(ctx)
	if err != nil {
		return nil, err
	}
	if err := Encode(w, b, f); err != nil {
		return nil, err
	}
	return b, nil
}

// ObjectName is where a backup lands in a sink.
func ObjectName(b *Backup, f Format) string {
	return fmt.Sprintf("users/%s/fincontrol-backup-%s.%s", b.UserID, b.ExportedAt.Format("20060102T150405Z"), f)
}

// Sink receives finished backups.
type Sink interface {
	Create(ctx context.Context, name, contentType string) (io.WriteCloser, error)
}

// ToSink collects the signed-in user's backup and stores it in sink,
// returning the object name.
func (e *Exporter) ToSink(ctx context.Context, sink Sink, f Format) (string, error) {
	b, err := e.Collect(ctx)
	if err != nil {
		return "", err
	}
	name := ObjectName(b, f)
	w, err := sink.Create(ctx, name, f.contentType())
	if err != nil {
		return "", fmt.Errorf("open %s: %w", name, err)
	}
	if err := Encode(w, b, f); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", name, err)
	}
	log.Printf("[Export] Wrote backup for user %s to %s (%d transactions)", b.UserID, name, len(b.Collections.Transactions))
	return name, nil
}
