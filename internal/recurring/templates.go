package recurring

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/CristhianDaza/finControl/internal/calendar"
	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/money"
	"github.com/CristhianDaza/finControl/internal/store"
)

// TemplateInput is the payload for CreateTemplate. FirstRunAt falls back to
// today when empty or malformed.
type TemplateInput struct {
	Name       string
	Type       model.TransactionType
	Amount     decimal.Decimal
	Currency   string
	AccountID  string
	DebtID     string
	CategoryID string
	Note       string
	Frequency  model.Frequency
	FirstRunAt string
	Paused     bool
}

// TemplatePatch lists the template fields UpdateTemplate may change.
type TemplatePatch struct {
	Name       *string
	Type       *model.TransactionType
	Amount     *decimal.Decimal
	Currency   *string
	AccountID  *string
	DebtID     *string
	CategoryID *string
	Note       *string
	Frequency  *model.Frequency
	NextRunAt  *string
	Paused     *bool
}

func validFrequency(f model.Frequency) bool {
	switch f {
	case model.Weekly, model.Biweekly, model.Monthly, model.Yearly:
		return true
	}
	return false
}

// checkTemplate enforces the shape every stored template must have.
func checkTemplate(t *model.RecurringTemplate) error {
	if !t.Type.IsSimple() {
		return errs.Newf(errs.InvalidType, "type %q cannot recur", t.Type)
	}
	if t.AmountCents <= 0 {
		return errs.Newf(errs.InvalidAmount, "amount must be positive")
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return errs.New(errs.AccountRequired)
	}
	if t.Type == model.TypeDebtPayment {
		if strings.TrimSpace(t.DebtID) == "" {
			return errs.New(errs.DebtRequired)
		}
	} else {
		t.DebtID = ""
	}
	if !validFrequency(t.Frequency) {
		return errs.Newf(errs.InvalidArgument, "unknown frequency %q", t.Frequency)
	}
	return nil
}

// CreateTemplate stores a new recurring template after checking that its
// account (and debt, for payments) exist.
func (s *Scheduler) CreateTemplate(ctx context.Context, in TemplateInput) (*model.RecurringTemplate, error) {
	uid, err := s.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	currency, err := money.NormalizeCurrency(in.Currency, "")
	if err != nil {
		return nil, errs.Wrap(errs.InvalidCurrency, err, "invalid currency")
	}
	freq := in.Frequency
	if freq == "" {
		freq = model.Monthly
	}
	tpl := &model.RecurringTemplate{
		ID:          uuid.New().String(),
		OwnerID:     uid,
		Name:        strings.TrimSpace(in.Name),
		Type:        in.Type,
		AmountCents: money.ToCents(in.Amount),
		Currency:    currency,
		AccountID:   in.AccountID,
		DebtID:      in.DebtID,
		CategoryID:  in.CategoryID,
		Note:        in.Note,
		Frequency:   freq,
		NextRunAt:   calendar.NormalizeOr(in.FirstRunAt, s.sess.Today()),
		Paused:      in.Paused,
		UpdatedAt:   s.sess.Now(),
	}
	if tpl.Type == "" {
		tpl.Type = model.TypeExpense
	}
	if err := checkTemplate(tpl); err != nil {
		return nil, err
	}
	err = s.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := checkRefs(tx, uid, tpl); err != nil {
			return err
		}
		return tx.SetTemplate(tpl)
	})
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

// UpdateTemplate applies patch to a template. A malformed NextRunAt falls back
// to today, as on creation.
func (s *Scheduler) UpdateTemplate(ctx context.Context, id string, patch TemplatePatch) (*model.RecurringTemplate, error) {
	uid, err := s.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	var currency string
	if patch.Currency != nil {
		if currency, err = money.NormalizeCurrency(*patch.Currency, ""); err != nil {
			return nil, errs.Wrap(errs.InvalidCurrency, err, "invalid currency")
		}
	}
	today := s.sess.Today()

	var updated *model.RecurringTemplate
	err = s.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		updated = nil
		tpl, err := getTemplate(tx, uid, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			tpl.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Type != nil {
			tpl.Type = *patch.Type
		}
		if patch.Amount != nil {
			tpl.AmountCents = money.ToCents(*patch.Amount)
		}
		if patch.Currency != nil {
			tpl.Currency = currency
		}
		if patch.AccountID != nil {
			tpl.AccountID = *patch.AccountID
		}
		if patch.DebtID != nil {
			tpl.DebtID = *patch.DebtID
		}
		if patch.CategoryID != nil {
			tpl.CategoryID = *patch.CategoryID
		}
		if patch.Note != nil {
			tpl.Note = *patch.Note
		}
		if patch.Frequency != nil {
			tpl.Frequency = *patch.Frequency
		}
		if patch.NextRunAt != nil {
			tpl.NextRunAt = calendar.NormalizeOr(*patch.NextRunAt, today)
		}
		if patch.Paused != nil {
			tpl.Paused = *patch.Paused
		}
		if err := checkTemplate(tpl); err != nil {
			return err
		}
		if err := checkRefs(tx, uid, tpl); err != nil {
			return err
		}
		tpl.UpdatedAt = s.sess.Now()
		if err := tx.SetTemplate(tpl); err != nil {
			return err
		}
		updated = tpl
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Pause stops a template from being picked up by passes.
func (s *Scheduler) Pause(ctx context.Context, id string) (*model.RecurringTemplate, error) {
	paused := true
	return s.UpdateTemplate(ctx, id, TemplatePatch{Paused: &paused})
}

// Resume makes a paused template eligible again. Occurrences missed while
// paused are caught up on the next pass.
func (s *Scheduler) Resume(ctx context.Context, id string) (*model.RecurringTemplate, error) {
	paused := false
	return s.UpdateTemplate(ctx, id, TemplatePatch{Paused: &paused})
}

// DeleteTemplate removes a template. Run locks and posted transactions stay.
func (s *Scheduler) DeleteTemplate(ctx context.Context, id string) error {
	uid, err := s.sess.Writer(ctx)
	if err != nil {
		return err
	}
	return s.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := getTemplate(tx, uid, id); err != nil {
			return err
		}
		return tx.DeleteTemplate(uid, id)
	})
}

// GetTemplate returns one of the current user's templates.
func (s *Scheduler) GetTemplate(ctx context.Context, id string) (*model.RecurringTemplate, error) {
	uid, err := s.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	tpl, err := s.sess.Store.GetTemplate(ctx, uid, id)
	if err != nil {
		if isNotFound(err) {
			return nil, errs.Newf(errs.TemplateNotFound, "template %s not found", id)
		}
		return nil, err
	}
	return tpl, nil
}

// ListTemplates lists the current user's templates.
func (s *Scheduler) ListTemplates(ctx context.Context) ([]*model.RecurringTemplate, error) {
	uid, err := s.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	return s.sess.Store.ListTemplates(ctx, uid)
}

// ListRuns lists the current user's run locks.
func (s *Scheduler) ListRuns(ctx context.Context) ([]*model.RecurringRun, error) {
	uid, err := s.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	return s.sess.Store.ListRuns(ctx, uid)
}

func getTemplate(tx store.Tx, uid, id string) (*model.RecurringTemplate, error) {
	tpl, err := tx.GetTemplate(uid, id)
	if err != nil {
		if isNotFound(err) {
			return nil, errs.Newf(errs.TemplateNotFound, "template %s not found", id)
		}
		return nil, err
	}
	tpl.ID = id
	if tpl.OwnerID != uid {
		return nil, errs.Newf(errs.Unauthorized, "template %s belongs to another user", id)
	}
	return tpl, nil
}

func checkRefs(tx store.Tx, uid string, tpl *model.RecurringTemplate) error {
	if _, err := tx.GetAccount(uid, tpl.AccountID); err != nil {
		if isNotFound(err) {
			return errs.Newf(errs.AccountNotFound, "account %s not found", tpl.AccountID)
		}
		return err
	}
	if tpl.DebtID != "" {
		if _, err := tx.GetDebt(uid, tpl.DebtID); err != nil {
			if isNotFound(err) {
				return errs.Newf(errs.DebtNotFound, "debt %s not found", tpl.DebtID)
			}
			return err
		}
	}
	return nil
}
