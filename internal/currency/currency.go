// Package currency keeps each user's list of currencies and which one is the
// default for new accounts.
package currency

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/money"
	"github.com/CristhianDaza/finControl/internal/session"
	"github.com/CristhianDaza/finControl/internal/store"
)

// Seed is the currency created for a user who has none.
var Seed = Input{Code: model.DefaultCurrency, Symbol: "$", Name: "Peso Colombiano", IsDefault: true}

// Input is the payload for Create.
type Input struct {
	Code      string `json:"code"`
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
}

// Patch lists the fields Update may change. The code is fixed once created.
type Patch struct {
	Symbol    *string `json:"symbol,omitempty"`
	Name      *string `json:"name,omitempty"`
	IsDefault *bool   `json:"isDefault,omitempty"`
}

type Service struct {
	sess *session.Session
}

func NewService(sess *session.Session) *Service {
	return &Service{sess: sess}
}

// List returns the signed-in user's currencies, default first.
func (s *Service) List(ctx context.Context) ([]*model.Currency, error) {
	uid, err := s.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	return s.sess.Store.ListCurrencies(ctx, uid)
}

// Default returns the code new accounts should use: the flagged default,
// else the first currency, else model.DefaultCurrency.
func (s *Service) Default(ctx context.Context) (string, error) {
	list, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	return DefaultIn(list), nil
}

// DefaultIn picks the default code out of a currency list.
func DefaultIn(list []*model.Currency) string {
	for _, c := range list {
		if c.IsDefault {
			return c.Code
		}
	}
	if len(list) > 0 {
		return list[0].Code
	}
	return model.DefaultCurrency
}

// EnsureDefault seeds the user's list with Seed when it is empty and
// returns the list.
func (s *Service) EnsureDefault(ctx context.Context) ([]*model.Currency, error) {
	uid, err := s.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	var list []*model.Currency
	err = s.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		list = nil
		existing, err := tx.ListCurrencies(uid)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			list = existing
			return nil
		}
		c := s.newCurrency(uid, Seed.Code, Seed.Symbol, Seed.Name, true)
		list = []*model.Currency{c}
		return tx.SetCurrency(c)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed currencies: %w", err)
	}
	return list, nil
}

func (s *Service) newCurrency(uid, code, symbol, name string, isDefault bool) *model.Currency {
	now := s.sess.Now()
	return &model.Currency{
		ID:        uuid.New().String(),
		OwnerID:   uid,
		Code:      code,
		Symbol:    symbol,
		Name:      name,
		IsDefault: isDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Create adds a currency. Codes must be ISO 4217 and unique per user. The
// first currency always becomes the default.
func (s *Service) Create(ctx context.Context, in Input) (*model.Currency, error) {
	uid, err := s.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	code, err := money.NormalizeCurrency(in.Code, "")
	if err != nil {
		return nil, errs.Wrap(errs.InvalidCurrency, err, "invalid currency")
	}
	if code == "" {
		return nil, errs.Newf(errs.InvalidCurrency, "currency code is required")
	}
	symbol := strings.TrimSpace(in.Symbol)
	if symbol == "" {
		symbol = money.Symbol(code)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = code
	}

	var created *model.Currency
	err = s.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		created = nil
		existing, err := tx.ListCurrencies(uid)
		if err != nil {
			return err
		}
		for _, c := range existing {
			if c.Code == code {
				return errs.Newf(errs.InvalidArgument, "currency %s already exists", code)
			}
		}
		c := s.newCurrency(uid, code, symbol, name, in.IsDefault || len(existing) == 0)
		if c.IsDefault {
			if err := s.clearDefault(tx, existing, c.ID); err != nil {
				return err
			}
		}
		if err := tx.SetCurrency(c); err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Currency] User %s added %s (default %t)", uid, created.Code, created.IsDefault)
	return created, nil
}

// clearDefault unflags every currency in list except keep.
func (s *Service) clearDefault(tx store.Tx, list []*model.Currency, keep string) error {
	for _, c := range list {
		if c.ID == keep || !c.IsDefault {
			continue
		}
		c.IsDefault = false
		c.UpdatedAt = s.sess.Now()
		if err := tx.SetCurrency(c); err != nil {
			return err
		}
	}
	return nil
}

func find(list []*model.Currency, id string) *model.Currency {
	for _, c := range list {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Update changes a currency's symbol, name or default flag. The default can
// only move by flagging another currency.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*model.Currency, error) {
	uid, err := s.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	var updated *model.Currency
	err = s.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		updated = nil
		list, err := tx.ListCurrencies(uid)
		if err != nil {
			return err
		}
		c := find(list, id)
		if c == nil {
			return errs.Newf(errs.CurrencyNotFound, "currency %s not found", id)
		}
		if patch.Symbol != nil {
			c.Symbol = strings.TrimSpace(*patch.Symbol)
		}
		if patch.Name != nil {
			if c.Name = strings.TrimSpace(*patch.Name); c.Name == "" {
				c.Name = c.Code
			}
		}
		if patch.IsDefault != nil {
			if !*patch.IsDefault && c.IsDefault {
				return errs.Newf(errs.InvalidArgument, "make another currency the default instead")
			}
			if *patch.IsDefault && !c.IsDefault {
				c.IsDefault = true
				if err := s.clearDefault(tx, list, c.ID); err != nil {
					return err
				}
			}
		}
		c.UpdatedAt = s.sess.Now()
		if err := tx.SetCurrency(c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetDefault makes id the only default currency.
func (s *Service) SetDefault(ctx context.Context, id string) (*model.Currency, error) {
	yes := true
	return s.Update(ctx, id, Patch{IsDefault: &yes})
}

// Delete removes a currency. The default cannot be deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	uid, err := s.sess.Writer(ctx)
	if err != nil {
		return err
	}
	err = s.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		list, err := tx.ListCurrencies(uid)
		if err != nil {
			return err
		}
		c := find(list, id)
		if c == nil {
			return errs.Newf(errs.CurrencyNotFound, "currency %s not found", id)
		}
		if c.IsDefault {
			return errs.Newf(errs.InvalidArgument, "the default currency cannot be deleted")
		}
		return tx.DeleteCurrency(uid, id)
	})
	if err != nil {
		return err
	}
	log.Printf("[Currency] User %s deleted currency %s", uid, id)
	return nil
}
