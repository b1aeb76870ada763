package service

import (
	"context"
	"fmt"

	"connectrpc.com/connect"

	"github.com/CristhianDaza/finControl/internal/currency"
)

func (s *FinanceService) registerCurrencies(r *router) {
	handle(r, "ListCurrencies", s.ListCurrencies)
	handle(r, "EnsureDefaultCurrency", s.EnsureDefaultCurrency)
	handle(r, "CreateCurrency", s.CreateCurrency)
	handle(r, "UpdateCurrency", s.UpdateCurrency)
	handle(r, "SetDefaultCurrency", s.SetDefaultCurrency)
	handle(r, "DeleteCurrency", s.DeleteCurrency)
}

func (s *FinanceService) currencyConfigured() error {
	if s.currency == nil {
		return connect.NewError(connect.CodeUnimplemented, fmt.Errorf("currencies are not configured"))
	}
	return nil
}

// ListCurrencies lists the signed-in user's currencies, default first
func (s *FinanceService) ListCurrencies(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[ListCurrenciesResponse], error) {
	if err := s.currencyConfigured(); err != nil {
		return nil, err
	}
	list, err := s.currency.List(ctx)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ListCurrenciesResponse{Currencies: list, Default: currency.DefaultIn(list)}), nil
}

// EnsureDefaultCurrency seeds the default currency for a user with none
func (s *FinanceService) EnsureDefaultCurrency(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[ListCurrenciesResponse], error) {
	if err := s.currencyConfigured(); err != nil {
		return nil, err
	}
	list, err := s.currency.EnsureDefault(ctx)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ListCurrenciesResponse{Currencies: list, Default: currency.DefaultIn(list)}), nil
}

// CreateCurrency adds a currency
func (s *FinanceService) CreateCurrency(ctx context.Context, req *connect.Request[CreateCurrencyRequest]) (*connect.Response[CurrencyResponse], error) {
	if err := s.currencyConfigured(); err != nil {
		return nil, err
	}
	c, err := s.currency.Create(ctx, req.Msg.Input)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&CurrencyResponse{Currency: c}), nil
}

// UpdateCurrency changes a currency's symbol, name or default flag
func (s *FinanceService) UpdateCurrency(ctx context.Context, req *connect.Request[UpdateCurrencyRequest]) (*connect.Response[CurrencyResponse], error) {
	if err := s.currencyConfigured(); err != nil {
		return nil, err
	}
	c, err := s.currency.Update(ctx, req.Msg.ID, req.Msg.Patch)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&CurrencyResponse{Currency: c}), nil
}

// SetDefaultCurrency makes a currency the default
func (s *FinanceService) SetDefaultCurrency(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[CurrencyResponse], error) {
	if err := s.currencyConfigured(); err != nil {
		return nil, err
	}
	c, err := s.currency.SetDefault(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&CurrencyResponse{Currency: c}), nil
}

// DeleteCurrency removes a currency that is not the default
func (s *FinanceService) DeleteCurrency(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[DeleteResponse], error) {
	if err := s.currencyConfigured(); err != nil {
		return nil, err
	}
	if err := s.currency.Delete(ctx, req.Msg.ID); err != nil {
		return nil, err
	}
	return connect.NewResponse(&DeleteResponse{}), nil
}
