package search

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/algolia/algoliasearch-client-go/v4/algolia/search"

	"github.com/CristhianDaza/finControl/internal/calendar"
	"github.com/CristhianDaza/finControl/internal/model"
)

// Config holds Algolia configuration. APIKey must be an admin or write key
// when the client also indexes.
type Config struct {
	AppID     string
	APIKey    string
	IndexName string
}

// AlgoliaClient wraps the Algolia search API client.
type AlgoliaClient struct {
	client    *search.APIClient
	indexName string
}

// NewAlgoliaClient creates a new Algolia search client.
func NewAlgoliaClient(cfg Config) (*AlgoliaClient, error) {
	if cfg.AppID == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("algolia AppID and APIKey are required")
	}
	if cfg.IndexName == "" {
		cfg.IndexName = DefaultIndexName
	}

	client, err := search.NewClient(cfg.AppID, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("creating algolia client: %w", err)
	}

	return &AlgoliaClient{
		client:    client,
		indexName: cfg.IndexName,
	}, nil
}

// IndexName returns the index the client reads and writes.
func (c *AlgoliaClient) IndexName() string {
	return c.indexName
}

// Search performs a full-text search via Algolia.
func (c *AlgoliaClient) Search(ctx context.Context, params Params) (*Response, error) {
	params = params.normalized()

	searchParams := search.SearchParamsObjectAsSearchParams(
		search.NewSearchParamsObject().
			SetQuery(params.Query).
			SetHitsPerPage(int32(params.PageSize)).
			SetPage(int32(params.Page)).
			SetFilters(buildFilters(params)),
	)

	resp, err := c.client.SearchSingleIndex(c.client.NewApiSearchSingleIndexRequest(c.indexName).WithSearchParams(searchParams))
	if err != nil {
		return nil, fmt.Errorf("algolia search: %w", err)
	}

	results := make([]*Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		if r := hitToResult(hit.AdditionalProperties); r != nil {
			results = append(results, r)
		}
	}

	out := &Response{Results: results, Page: params.Page}
	if resp.NbHits != nil {
		out.TotalCount = int(*resp.NbHits)
	}
	if resp.NbPages != nil {
		out.TotalPages = int(*resp.NbPages)
	}
	return out, nil
}

// Index upserts one transaction.
func (c *AlgoliaClient) Index(ctx context.Context, t *model.Transaction) error {
	_, err := c.client.SaveObject(c.client.NewApiSaveObjectRequest(c.indexName, Document(t)))
	if err != nil {
		return fmt.Errorf("algolia save %s: %w", t.ID, err)
	}
	return nil
}

// Remove deletes one transaction from the index.
func (c *AlgoliaClient) Remove(ctx context.Context, userID, txID string) error {
	_, err := c.client.DeleteObject(c.client.NewApiDeleteObjectRequest(c.indexName, objectID(userID, txID)))
	if err != nil {
		return fmt.Errorf("algolia delete %s: %w", txID, err)
	}
	return nil
}

func int32Ptr(v int32) *int32 { return &v }

// ConfigureIndex applies the index settings every query in this package
// relies on: tenant and type facets, numeric amount and date filters, newest
// first.
func (c *AlgoliaClient) ConfigureIndex(ctx context.Context) error {
	settings := &search.IndexSettings{
		SearchableAttributes: []string{
			"Note",
			"CategoryId",
		},
		// filterOnly() keeps tenant and account ids out of facet counts.
		AttributesForFaceting: []string{
			"filterOnly(UserId)",
			"filterOnly(AccountId)",
			"searchable(CategoryId)",
			"filterOnly(Type)",
			"filterOnly(Currency)",
		},
		NumericAttributesForFiltering: []string{
			"Amount",
			"AmountCents",
			"DateUnix",
		},
		CustomRanking: []string{
			"desc(DateUnix)",
		},
		// UserId is a tenant filter and is never returned.
		AttributesToRetrieve: []string{
			"objectID",
			"TxId",
			"Note",
			"CategoryId",
			"AccountId",
			"Amount",
			"AmountCents",
			"Currency",
			"Date",
			"DateUnix",
			"Type",
		},
		AttributesToHighlight: []string{
			"Note",
			"CategoryId",
		},
		HitsPerPage:          int32Ptr(DefaultPageSize),
		MaxValuesPerFacet:    int32Ptr(100),
		MinWordSizefor1Typo:  int32Ptr(4),
		MinWordSizefor2Typos: int32Ptr(8),
	}

	resp, err := c.client.SetSettings(c.client.NewApiSetSettingsRequest(c.indexName, settings))
	if err != nil {
		return fmt.Errorf("algolia set settings: %w", err)
	}
	log.Printf("[Search] Index %s settings applied (taskID: %d)", c.indexName, resp.TaskID)
	return nil
}

// buildFilters constructs the Algolia filter string. UserId is always
// enforced.
func buildFilters(params Params) string {
	parts := []string{fmt.Sprintf("UserId:%q", params.UserID)}

	if params.CategoryID != "" {
		parts = append(parts, fmt.Sprintf("CategoryId:%q", params.CategoryID))
	}
	if params.AccountID != "" {
		parts = append(parts, fmt.Sprintf("AccountId:%q", params.AccountID))
	}
	if params.Type != "" {
		parts = append(parts, fmt.Sprintf("Type:%q", string(params.Type)))
	}

	if params.AmountMinCents > 0 {
		parts = append(parts, fmt.Sprintf("AmountCents >= %d", params.AmountMinCents))
	}
	if params.AmountMaxCents > 0 {
		parts = append(parts, fmt.Sprintf("AmountCents <= %d", params.AmountMaxCents))
	}

	if t, err := calendar.Parse(params.DateFrom); err == nil {
		parts = append(parts, fmt.Sprintf("DateUnix >= %d", t.Unix()))
	}
	if t, err := calendar.Parse(params.DateTo); err == nil {
		parts = append(parts, fmt.Sprintf("DateUnix <= %d", t.Unix()))
	}

	return strings.Join(parts, " AND ")
}

// hitToResult converts an Algolia hit.
func hitToResult(props map[string]any) *Result {
	r := &Result{}

	if v, ok := props["TxId"].(string); ok {
		r.ID = v
	} else if v, ok := props["objectID"].(string); ok {
		r.ID = v
	}
	if v, ok := props["Note"].(string); ok {
		r.Note = v
	}
	if v, ok := props["CategoryId"].(string); ok {
		r.CategoryID = v
	}
	if v, ok := props["AccountId"].(string); ok {
		r.AccountID = v
	}
	if v, ok := props["Currency"].(string); ok {
		r.Currency = v
	}
	if v, ok := props["Type"].(string); ok {
		r.Type = model.TransactionType(v)
	}
	if v, ok := props["AmountCents"].(float64); ok {
		r.AmountCents = int64(v)
	}
	if v, ok := props["Date"].(string); ok {
		r.Date = v
	}

	if r.ID == "" {
		log.Printf("[Search] Skipping hit with no objectID")
		return nil
	}
	return r
}
