package service

import (
	"context"
	"fmt"

	"connectrpc.com/connect"

	"github.com/CristhianDaza/finControl/internal/export"
	"github.com/CristhianDaza/finControl/internal/model"
)

func (s *FinanceService) registerSearch(r *router) {
	handle(r, "SearchTransactions", s.SearchTransactions)
	handle(r, "ReindexSearch", s.ReindexSearch)
	handle(r, "ExportData", s.ExportData)
	handle(r, "ExportToBucket", s.ExportToBucket)
	handle(r, "ImportData", s.ImportData)
	handle(r, "DeleteAllData", s.DeleteAllData)
}

// indexTransactions mirrors ledger writes into the search index. The write
// has already committed, so failures are only logged by the search service.
func (s *FinanceService) indexTransactions(ctx context.Context, txs ...*model.Transaction) {
	if s.search == nil {
		return
	}
	s.search.Index(ctx, txs...)
}

func (s *FinanceService) unindexTransactions(ctx context.Context, ids ...string) {
	if s.search == nil || len(ids) == 0 {
		return
	}
	uid, err := s.sess.UserID(ctx)
	if err != nil {
		return
	}
	s.search.Remove(ctx, uid, ids...)
}

// SearchTransactions performs full-text search over the signed-in user's
// transactions
func (s *FinanceService) SearchTransactions(ctx context.Context, req *connect.Request[SearchRequest]) (*connect.Response[SearchResponse], error) {
	if s.search == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, fmt.Errorf("search is not configured"))
	}
	resp, err := s.search.Search(ctx, req.Msg.Params)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&SearchResponse{Response: resp}), nil
}

// ReindexSearch pushes every transaction of the signed-in user to the index
func (s *FinanceService) ReindexSearch(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[CountResponse], error) {
	if s.search == nil || !s.search.Indexed() {
		return nil, connect.NewError(connect.CodeFailedPrecondition, fmt.Errorf("no search index configured"))
	}
	n, err := s.search.Reindex(ctx)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&CountResponse{Count: n}), nil
}

// ExportData returns the signed-in user's backup inline
func (s *FinanceService) ExportData(ctx context.Context, req *connect.Request[ExportRequest]) (*connect.Response[ExportResponse], error) {
	if s.exporter == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, fmt.Errorf("export is not configured"))
	}
	f, err := export.ParseFormat(req.Msg.Format)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if f != export.FormatJSON {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("inline export only supports json"))
	}
	b, err := s.exporter.Collect(ctx)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ExportResponse{Backup: b}), nil
}

// ExportToBucket writes the signed-in user's backup to the configured
// bucket and returns the object name
func (s *FinanceService) ExportToBucket(ctx context.Context, req *connect.Request[ExportRequest]) (*connect.Response[ExportToBucketResponse], error) {
	if s.exporter == nil || s.exportSink == nil {
		return nil, connect.NewError(connect.CodeFailedPrecondition, fmt.Errorf("no export bucket configured"))
	}
	f, err := export.ParseFormat(req.Msg.Format)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	name, err := s.exporter.ToSink(ctx, s.exportSink, f)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ExportToBucketResponse{Object: name}), nil
}

// ImportData restores a backup into the signed-in user's data
func (s *FinanceService) ImportData(ctx context.Context, req *connect.Request[ImportRequest]) (*connect.Response[ImportResponse], error) {
	if s.exporter == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, fmt.Errorf("import is not configured"))
	}
	mode, err := export.ParseMode(req.Msg.Mode)
	if err != nil {
		return nil, err
	}
	res, err := s.exporter.Import(ctx, req.Msg.Backup, mode)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ImportResponse{Result: res}), nil
}

// DeleteAllData removes the signed-in user's financial data
func (s *FinanceService) DeleteAllData(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[ImportResponse], error) {
	if s.exporter == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, fmt.Errorf("export is not configured"))
	}
	res, err := s.exporter.DeleteAll(ctx)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ImportResponse{Result: res}), nil
}
