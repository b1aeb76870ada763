package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/CristhianDaza/finControl/internal/calendar"
	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/money"
	"github.com/CristhianDaza/finControl/internal/store"
)

// TransferInput is the payload for CreateTransfer. Currencies default to
// the accounts' currencies.
type TransferInput struct {
	FromAccountID string
	ToAccountID   string
	AmountFrom    decimal.Decimal
	AmountTo      *decimal.Decimal
	CurrencyFrom  string
	CurrencyTo    string
	Rate          *decimal.Decimal
	Date          string
	Note          string
}

// TransferPatch lists the fields UpdateTransfer may change.
type TransferPatch struct {
	FromAccountID *string
	ToAccountID   *string
	AmountFrom    *decimal.Decimal
	AmountTo      *decimal.Decimal
	CurrencyFrom  *string
	CurrencyTo    *string
	Rate          *decimal.Decimal
	Date          *string
	Note          *string
}

// Transfer is the pair of legs sharing one transferId.
type Transfer struct {
	TransferID string             `json:"transferId"`
	Out        *model.Transaction `json:"out"`
	In         *model.Transaction `json:"in"`
}

// transferSpec is the resolved shape of a transfer before legs are built.
type transferSpec struct {
	fromID          string
	toID            string
	amountFromCents int64
	amountTo        *decimal.Decimal
	currencyFrom    string
	currencyTo      string
	rate            *decimal.Decimal
	date            string
	note            string
}

func (s transferSpec) validate() error {
	if strings.TrimSpace(s.fromID) == "" || strings.TrimSpace(s.toID) == "" {
		return errs.New(errs.AccountsRequired)
	}
	if s.fromID == s.toID {
		return errs.New(errs.SameAccount)
	}
	if s.amountFromCents <= 0 {
		return errs.Newf(errs.InvalidAmount, "transfer amount must be positive")
	}
	if s.date != "" && !calendar.Valid(s.date) {
		return errs.Newf(errs.InvalidDate, "date %q must be YYYY-MM-DD", s.date)
	}
	return nil
}

func normalizeCurrencyArg(code string) (string, error) {
	c, err := money.NormalizeCurrency(code, "")
	if err != nil {
		return "", errs.Wrap(errs.InvalidCurrency, err, "invalid currency")
	}
	return c, nil
}

// currencies resolves each side's currency, falling back to the accounts.
func (s transferSpec) currencies(from, to *model.Account) (string, string) {
	curFrom := firstNonEmpty(s.currencyFrom, from.Currency, model.DefaultCurrency)
	return curFrom, firstNonEmpty(s.currencyTo, to.Currency, curFrom)
}

// legs builds the transfer-out and transfer-in documents. Matching currencies
// force amountTo = amountFrom and a null rate; otherwise amountTo is taken
// as given or computed as round2(amountFrom * rate).
func (s transferSpec) legs(uid, transferID, outID, inID string, from, to *model.Account, now time.Time) (*model.Transaction, *model.Transaction, error) {
	curFrom, curTo := s.currencies(from, to)

	var amountToCents int64
	var rate *string
	if curFrom == curTo {
		amountToCents = s.amountFromCents
	} else {
		if s.rate != nil && !s.rate.IsPositive() {
			return nil, nil, errs.Newf(errs.InvalidRate, "rate must be positive")
		}
		switch {
		case s.amountTo != nil && s.amountTo.IsPositive():
			amountToCents = money.ToCents(money.Round2(*s.amountTo))
		case s.rate != nil:
			amountToCents = money.ConvertCents(s.amountFromCents, *s.rate)
		default:
			return nil, nil, errs.Newf(errs.InvalidRate, "a rate is required between %s and %s", curFrom, curTo)
		}
		if s.rate != nil {
			r := s.rate.String()
			rate = &r
		}
	}
	if amountToCents <= 0 {
		return nil, nil, errs.Newf(errs.InvalidAmount, "converted amount must be positive")
	}

	base := model.Transaction{
		OwnerID:         uid,
		IsTransfer:      true,
		TransferID:      transferID,
		FromAccountID:   s.fromID,
		ToAccountID:     s.toID,
		AmountFromCents: s.amountFromCents,
		AmountToCents:   amountToCents,
		CurrencyFrom:    curFrom,
		CurrencyTo:      curTo,
		Rate:            rate,
		Date:            s.date,
		Note:            s.note,
		UpdatedAt:       now,
	}
	out, in := base, base

	out.ID, out.PairID = outID, inID
	out.Type = model.TypeTransferOut
	out.AccountID = s.fromID
	out.AmountCents = s.amountFromCents
	out.Currency = curFrom

	in.ID, in.PairID = inID, outID
	in.Type = model.TypeTransferIn
	in.AccountID = s.toID
	in.AmountCents = amountToCents
	in.Currency = curTo

	return &out, &in, nil
}

// CreateTransfer moves money between two of the user's accounts, writing
// both legs and both balances in one transaction.
func (e *Engine) CreateTransfer(ctx context.Context, in TransferInput) (*Transfer, error) {
	uid, err := e.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	spec := transferSpec{
		fromID:          in.FromAccountID,
		toID:            in.ToAccountID,
		amountFromCents: money.ToCents(in.AmountFrom),
		amountTo:        in.AmountTo,
		rate:            in.Rate,
		date:            in.Date,
		note:            in.Note,
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	if spec.currencyFrom, err = normalizeCurrencyArg(in.CurrencyFrom); err != nil {
		return nil, err
	}
	if spec.currencyTo, err = normalizeCurrencyArg(in.CurrencyTo); err != nil {
		return nil, err
	}
	if spec.date == "" {
		spec.date = e.sess.Today()
	}

	transferID := uuid.New().String()
	outID, inID := uuid.New().String(), uuid.New().String()

	var result *Transfer
	err = e.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		result = nil
		now := e.sess.Now()
		w := newWorkingSet(tx, uid)

		from, err := w.account(spec.fromID)
		if err != nil {
			return err
		}
		to, err := w.account(spec.toID)
		if err != nil {
			return err
		}
		out, inLeg, err := spec.legs(uid, transferID, outID, inID, from, to, now)
		if err != nil {
			return err
		}
		if err := w.post(out, 1); err != nil {
			return err
		}
		if err := w.post(inLeg, 1); err != nil {
			return err
		}
		if err := w.checkApplied(); err != nil {
			return err
		}
		if err := w.flush(now); err != nil {
			return err
		}
		if err := tx.SetTransaction(out); err != nil {
			return err
		}
		if err := tx.SetTransaction(inLeg); err != nil {
			return err
		}
		result = &Transfer{TransferID: transferID, Out: out, In: inLeg}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// loadLegs finds both legs of a transfer inside tx.
func loadLegs(tx store.Tx, uid, transferID string) (*model.Transaction, *model.Transaction, error) {
	docs, err := tx.ListTransactions(uid, store.TransactionFilter{TransferID: transferID})
	if err != nil {
		return nil, nil, err
	}
	var out, in *model.Transaction
	for _, d := range docs {
		switch d.Type {
		case model.TypeTransferOut:
			out = d
		case model.TypeTransferIn:
			in = d
		}
	}
	if out == nil || in == nil {
		return nil, nil, errs.Newf(errs.NotFound, "transfer %s not found", transferID)
	}
	if out.OwnerID != uid || in.OwnerID != uid {
		return nil, nil, errs.Newf(errs.Unauthorized, "transfer %s belongs to another user", transferID)
	}
	return out, in, nil
}

// UpdateTransfer reverts both legs and applies the patched transfer. Leg ids,
// transferId and createdAt are preserved.
func (e *Engine) UpdateTransfer(ctx context.Context, transferID string, patch TransferPatch) (*Transfer, error) {
	uid, err := e.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	var curFromPatch, curToPatch string
	if patch.CurrencyFrom != nil {
		if curFromPatch, err = normalizeCurrencyArg(*patch.CurrencyFrom); err != nil {
			return nil, err
		}
	}
	if patch.CurrencyTo != nil {
		if curToPatch, err = normalizeCurrencyArg(*patch.CurrencyTo); err != nil {
			return nil, err
		}
	}

	var result *Transfer
	err = e.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		result = nil
		now := e.sess.Now()

		prevOut, prevIn, err := loadLegs(tx, uid, transferID)
		if err != nil {
			return err
		}

		w := newWorkingSet(tx, uid)
		if err := w.post(prevOut, -1); err != nil {
			return err
		}
		if err := w.post(prevIn, -1); err != nil {
			return err
		}
		if err := w.checkBalances(); err != nil {
			return err
		}

		spec := transferSpec{
			fromID:          prevOut.FromAccountID,
			toID:            prevOut.ToAccountID,
			amountFromCents: prevOut.AmountFromCents,
			currencyFrom:    prevOut.CurrencyFrom,
			currencyTo:      prevOut.CurrencyTo,
			date:            prevOut.Date,
			note:            prevOut.Note,
		}
		if prevOut.Rate != nil {
			if r, err := decimal.NewFromString(*prevOut.Rate); err == nil {
				spec.rate = &r
			}
		}
		// A moved side takes its currency from the new account unless the
		// patch names one.
		if patch.FromAccountID != nil && *patch.FromAccountID != prevOut.FromAccountID {
			spec.fromID = *patch.FromAccountID
			spec.currencyFrom = ""
		}
		if patch.ToAccountID != nil && *patch.ToAccountID != prevOut.ToAccountID {
			spec.toID = *patch.ToAccountID
			spec.currencyTo = ""
		}
		if patch.AmountFrom != nil {
			spec.amountFromCents = money.ToCents(*patch.AmountFrom)
		}
		if patch.AmountTo != nil {
			spec.amountTo = patch.AmountTo
		}
		if patch.CurrencyFrom != nil {
			spec.currencyFrom = curFromPatch
		}
		if patch.CurrencyTo != nil {
			spec.currencyTo = curToPatch
		}
		if patch.Rate != nil {
			spec.rate = patch.Rate
		}
		if patch.Date != nil {
			spec.date = *patch.Date
		}
		if patch.Note != nil {
			spec.note = *patch.Note
		}
		if err := spec.validate(); err != nil {
			return err
		}

		from, err := w.account(spec.fromID)
		if err != nil {
			return err
		}
		to, err := w.account(spec.toID)
		if err != nil {
			return err
		}
		curFrom, curTo := spec.currencies(from, to)
		samePair := curFrom == prevOut.CurrencyFrom && curTo == prevOut.CurrencyTo
		if !samePair && patch.Rate == nil {
			// The old rate priced a different pair.
			spec.rate = nil
		}
		if samePair && patch.AmountTo == nil && patch.AmountFrom == nil && patch.Rate == nil &&
			prevOut.Rate == nil && prevOut.CurrencyFrom != prevOut.CurrencyTo {
			// Converted amount was given explicitly at creation; keep it.
			kept := money.FromCents(prevOut.AmountToCents)
			spec.amountTo = &kept
		}
		out, inLeg, err := spec.legs(uid, transferID, prevOut.ID, prevIn.ID, from, to, now)
		if err != nil {
			return err
		}
		out.CreatedAt, inLeg.CreatedAt = prevOut.CreatedAt, prevIn.CreatedAt

		if err := w.post(out, 1); err != nil {
			return err
		}
		if err := w.post(inLeg, 1); err != nil {
			return err
		}
		if err := w.checkApplied(); err != nil {
			return err
		}
		if err := w.flush(now); err != nil {
			return err
		}
		if err := tx.SetTransaction(out); err != nil {
			return err
		}
		if err := tx.SetTransaction(inLeg); err != nil {
			return err
		}
		result = &Transfer{TransferID: transferID, Out: out, In: inLeg}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteTransfer reverts and removes both legs.
func (e *Engine) DeleteTransfer(ctx context.Context, transferID string) error {
	uid, err := e.sess.Writer(ctx)
	if err != nil {
		return err
	}
	return e.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		out, in, err := loadLegs(tx, uid, transferID)
		if err != nil {
			return err
		}
		w := newWorkingSet(tx, uid)
		if err := w.post(out, -1); err != nil {
			return err
		}
		if err := w.post(in, -1); err != nil {
			return err
		}
		if err := w.checkBalances(); err != nil {
			return err
		}
		if err := w.flush(e.sess.Now()); err != nil {
			return err
		}
		if err := tx.DeleteTransaction(uid, out.ID); err != nil {
			return err
		}
		return tx.DeleteTransaction(uid, in.ID)
	})
}

// GetTransfer returns both legs of a transfer.
func (e *Engine) GetTransfer(ctx context.Context, transferID string) (*Transfer, error) {
	uid, err := e.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	var result *Transfer
	err = e.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		out, in, err := loadLegs(tx, uid, transferID)
		if err != nil {
			return err
		}
		result = &Transfer{TransferID: transferID, Out: out, In: in}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
