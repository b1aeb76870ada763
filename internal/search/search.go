// Package search finds a user's transactions by free text and filters.
// Algolia serves production; StoreSearcher scans the store when no index is
// configured.
package search

//go:generate mockgen -source=search.go -destination=search_mock.go -package=search

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/CristhianDaza/finControl/internal/calendar"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/money"
	"github.com/CristhianDaza/finControl/internal/session"
	"github.com/CristhianDaza/finControl/internal/store"
)

const (
	DefaultIndexName = "fincontrol"
	DefaultPageSize  = 25
	MaxPageSize      = 100
)

// Params defines a search. UserID is always overwritten with the signed-in
// user by Service.
type Params struct {
	Query          string                `json:"query"`
	UserID         string                `json:"-"`
	CategoryID     string                `json:"categoryId,omitempty"`
	AccountID      string                `json:"accountId,omitempty"`
	Type           model.TransactionType `json:"type,omitempty"`
	AmountMinCents int64                 `json:"amountMinCents,omitempty"`
	AmountMaxCents int64                 `json:"amountMaxCents,omitempty"`
	DateFrom       string                `json:"dateFrom,omitempty"`
	DateTo         string                `json:"dateTo,omitempty"`
	Page           int                   `json:"page"`
	PageSize       int                   `json:"pageSize"`
}

func (p Params) normalized() Params {
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	if p.Page < 0 {
		p.Page = 0
	}
	return p
}

// Result is one matching transaction.
type Result struct {
	ID          string                `json:"id"`
	Note        string                `json:"note"`
	CategoryID  string                `json:"categoryId,omitempty"`
	AccountID   string                `json:"accountId"`
	Type        model.TransactionType `json:"type"`
	AmountCents int64                 `json:"amountCents"`
	Currency    string                `json:"currency"`
	Date        string                `json:"date"`
}

// Response is one page of results.
type Response struct {
	Results    []*Result `json:"results"`
	TotalCount int       `json:"totalCount"`
	TotalPages int       `json:"totalPages"`
	Page       int       `json:"page"`
}

// Searcher runs a search scoped to params.UserID.
type Searcher interface {
	Search(ctx context.Context, params Params) (*Response, error)
}

// Indexer keeps an external index in step with the ledger.
type Indexer interface {
	Index(ctx context.Context, t *model.Transaction) error
	Remove(ctx context.Context, userID, txID string) error
}

// objectID is unique across tenants sharing one index.
func objectID(userID, txID string) string {
	return userID + "_" + txID
}

// Document is the index record for t.
func Document(t *model.Transaction) map[string]any {
	doc := map[string]any{
		"objectID":    objectID(t.OwnerID, t.ID),
		"TxId":        t.ID,
		"UserId":      t.OwnerID,
		"Note":        t.Note,
		"CategoryId":  t.CategoryID,
		"AccountId":   t.AccountID,
		"Type":        string(t.Type),
		"AmountCents": t.AmountCents,
		"Amount":      money.FromCents(t.AmountCents).InexactFloat64(),
		"Currency":    t.Currency,
		"Date":        t.Date,
	}
	if d, err := calendar.Parse(t.Date); err == nil {
		doc["DateUnix"] = d.Unix()
	}
	return doc
}

// StoreSearcher answers searches by scanning the user's transactions. It
// backs local development and the in-memory store.
type StoreSearcher struct {
	st store.Store
}

// NewStoreSearcher returns a StoreSearcher over st.
func NewStoreSearcher(st store.Store) *StoreSearcher {
	return &StoreSearcher{st: st}
}

func (s *StoreSearcher) Search(ctx context.Context, params Params) (*Response, error) {
	params = params.normalized()
	txs, _, err := s.st.ListTransactions(ctx, params.UserID, store.TransactionFilter{
		Type:       params.Type,
		AccountID:  params.AccountID,
		CategoryID: params.CategoryID,
		DateFrom:   params.DateFrom,
		DateTo:     params.DateTo,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan transactions: %w", err)
	}

	terms := strings.Fields(strings.ToLower(params.Query))
	var matched []*Result
	for _, t := range txs {
		if params.AmountMinCents > 0 && t.AmountCents < params.AmountMinCents {
			continue
		}
		if params.AmountMaxCents > 0 && t.AmountCents > params.AmountMaxCents {
			continue
		}
		if !matchesTerms(t, terms) {
			continue
		}
		matched = append(matched, resultOf(t))
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Date > matched[j].Date })

	out := &Response{TotalCount: len(matched), Page: params.Page}
	out.TotalPages = (len(matched) + params.PageSize - 1) / params.PageSize
	start := params.Page * params.PageSize
	if start < len(matched) {
		end := min(start+params.PageSize, len(matched))
		out.Results = matched[start:end]
	} else {
		out.Results = []*Result{}
	}
	return out, nil
}

func matchesTerms(t *model.Transaction, terms []string) bool {
	haystack := strings.ToLower(t.Note + " " + t.CategoryID)
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

func resultOf(t *model.Transaction) *Result {
	return &Result{
		ID:          t.ID,
		Note:        t.Note,
		CategoryID:  t.CategoryID,
		AccountID:   t.AccountID,
		Type:        t.Type,
		AmountCents: t.AmountCents,
		Currency:    t.Currency,
		Date:        t.Date,
	}
}

// Service scopes searches to the signed-in user and mirrors ledger writes
// into the index when one is configured.
type Service struct {
	sess     *session.Session
	searcher Searcher
	indexer  Indexer
}

// NewService returns a Service. indexer may be nil.
func NewService(sess *session.Session, searcher Searcher, indexer Indexer) *Service {
	return &Service{sess: sess, searcher: searcher, indexer: indexer}
}

// Search runs params for the signed-in user.
func (s *Service) Search(ctx context.Context, params Params) (*Response, error) {
	uid, err := s.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	params.UserID = uid
	return s.searcher.Search(ctx, params)
}

// Indexed reports whether writes are mirrored to an external index.
func (s *Service) Indexed() bool {
	return s.indexer != nil
}

// Index mirrors a created or updated transaction. Failures are logged; the
// ledger write already succeeded.
func (s *Service) Index(ctx context.Context, txs ...*model.Transaction) {
	if s.indexer == nil {
		return
	}
	for _, t := range txs {
		if t == nil {
			continue
		}
		if err := s.indexer.Index(ctx, t); err != nil {
			log.Printf("[Search] Failed to index transaction %s: %v", t.ID, err)
		}
	}
}

// Remove drops deleted transactions from the index.
func (s *Service) Remove(ctx context.Context, userID string, ids ...string) {
	if s.indexer == nil {
		return
	}
	for _, id := range ids {
		if err := s.indexer.Remove(ctx, userID, id); err != nil {
			log.Printf("[Search] Failed to remove transaction %s: %v", id, err)
		}
	}
}

// Reindex pushes every transaction of the signed-in user to the index.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	uid, err := s.sess.UserID(ctx)
	if err != nil {
		return 0, err
	}
	if s.indexer == nil {
		return 0, fmt.Errorf("no search index configured")
	}
	txs, _, err := s.sess.Store.ListTransactions(ctx, uid, store.TransactionFilter{})
	if err != nil {
		return 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	for _, t := range txs {
		if err := s.indexer.Index(ctx, t); err != nil {
			return 0, err
		}
	}
	log.Printf("[Search] Reindexed %d transactions for user %s", len(txs), uid)
	return len(txs), nil
}
