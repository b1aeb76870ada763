package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/CristhianDaza/finControl/internal/calendar"
	"github.com/CristhianDaza/finControl/internal/errs"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/money"
	"github.com/CristhianDaza/finControl/internal/store"
)

const goalWindowHours = 24 * 366

// GoalInput is the payload for CreateGoal.
type GoalInput struct {
	Name         string
	TargetAmount decimal.Decimal
	Currency     string
	DueDate      string
	AccountID    string
	Note         string
	Paused       bool
}

// GoalPatch lists the goal fields UpdateGoal may change.
type GoalPatch struct {
	Name         *string
	TargetAmount *decimal.Decimal
	Currency     *string
	DueDate      *string
	AccountID    *string
	Note         *string
	Paused       *bool
}

// GoalStatus is the progress of a goal.
type GoalStatus struct {
	GoalID       string  `json:"goalId"`
	CurrentCents int64   `json:"currentCents"`
	TargetCents  int64   `json:"targetCents"`
	Pct          float64 `json:"pct"`
	Completed    bool    `json:"completed"`
}

func checkGoal(g *model.Goal) error {
	if strings.TrimSpace(g.Name) == "" {
		return errs.New(errs.NameRequired)
	}
	if g.TargetAmountCents < 0 {
		return errs.Newf(errs.InvalidAmount, "target cannot be negative")
	}
	if g.DueDate != "" && !calendar.Valid(g.DueDate) {
		return errs.Newf(errs.InvalidDate, "invalid due date %q", g.DueDate)
	}
	return nil
}

func checkGoalAccount(tx store.Tx, uid string, g *model.Goal) error {
	if g.AccountID == "" {
		return nil
	}
	_, err := tx.GetAccount(uid, g.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		return errs.Newf(errs.AccountNotFound, "account %s not found", g.AccountID)
	}
	return err
}

// CreateGoal stores a new savings goal.
func (a *Aggregator) CreateGoal(ctx context.Context, in GoalInput) (*model.Goal, error) {
	uid, err := a.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	currency, err := money.NormalizeCurrency(in.Currency, DefaultCurrency)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidCurrency, err, "invalid currency")
	}
	now := a.sess.Now()
	g := &model.Goal{
		ID:                uuid.New().String(),
		OwnerID:           uid,
		Name:              strings.TrimSpace(in.Name),
		TargetAmountCents: money.ToCents(in.TargetAmount),
		Currency:          currency,
		DueDate:           in.DueDate,
		AccountID:         in.AccountID,
		Note:              in.Note,
		Paused:            in.Paused,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := checkGoal(g); err != nil {
		return nil, err
	}
	err = a.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := checkGoalAccount(tx, uid, g); err != nil {
			return err
		}
		return tx.SetGoal(g)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Aggregate] Created goal %s for user %s", g.ID, uid)
	return g, nil
}

// UpdateGoal applies patch to a goal.
func (a *Aggregator) UpdateGoal(ctx context.Context, id string, patch GoalPatch) (*model.Goal, error) {
	uid, err := a.sess.Writer(ctx)
	if err != nil {
		return nil, err
	}
	var currency string
	if patch.Currency != nil {
		if currency, err = money.NormalizeCurrency(*patch.Currency, DefaultCurrency); err != nil {
			return nil, errs.Wrap(errs.InvalidCurrency, err, "invalid currency")
		}
	}

	var updated *model.Goal
	err = a.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		updated = nil
		g, err := getGoal(tx, uid, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			g.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.TargetAmount != nil {
			g.TargetAmountCents = money.ToCents(*patch.TargetAmount)
		}
		if patch.Currency != nil {
			g.Currency = currency
		}
		if patch.DueDate != nil {
			g.DueDate = *patch.DueDate
		}
		if patch.AccountID != nil {
			g.AccountID = *patch.AccountID
		}
		if patch.Note != nil {
			g.Note = *patch.Note
		}
		if patch.Paused != nil {
			g.Paused = *patch.Paused
		}
		if err := checkGoal(g); err != nil {
			return err
		}
		if patch.AccountID != nil {
			if err := checkGoalAccount(tx, uid, g); err != nil {
				return err
			}
		}
		g.UpdatedAt = a.sess.Now()
		if err := tx.SetGoal(g); err != nil {
			return err
		}
		updated = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// PauseGoal and ResumeGoal toggle the paused flag.
func (a *Aggregator) PauseGoal(ctx context.Context, id string) (*model.Goal, error) {
	paused := true
	return a.UpdateGoal(ctx, id, GoalPatch{Paused: &paused})
}

func (a *Aggregator) ResumeGoal(ctx context.Context, id string) (*model.Goal, error) {
	paused := false
	return a.UpdateGoal(ctx, id, GoalPatch{Paused: &paused})
}

// DeleteGoal removes a goal. Transactions tagged with it keep their goalId.
func (a *Aggregator) DeleteGoal(ctx context.Context, id string) error {
	uid, err := a.sess.Writer(ctx)
	if err != nil {
		return err
	}
	return a.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := getGoal(tx, uid, id); err != nil {
			return err
		}
		return tx.DeleteGoal(uid, id)
	})
}

func (a *Aggregator) GetGoal(ctx context.Context, id string) (*model.Goal, error) {
	uid, err := a.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	g, err := a.sess.Store.GetGoal(ctx, uid, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.Newf(errs.GoalNotFound, "goal %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get goal: %w", err)
	}
	return g, nil
}

func (a *Aggregator) ListGoals(ctx context.Context) ([]*model.Goal, error) {
	uid, err := a.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	return a.sess.Store.ListGoals(ctx, uid)
}

// GoalStatusOf sums the amounts of txs against g.
func GoalStatusOf(g *model.Goal, txs []*model.Transaction) GoalStatus {
	st := GoalStatus{GoalID: g.ID, TargetCents: g.TargetAmountCents}
	for _, t := range txs {
		if t.GoalID == g.ID {
			st.CurrentCents += t.AmountCents
		}
	}
	if g.TargetAmountCents > 0 {
		st.Pct = math.Min(100, float64(st.CurrentCents)/float64(g.TargetAmountCents)*100)
		st.Completed = st.CurrentCents >= g.TargetAmountCents
	}
	return st
}

// GoalProgress measures a goal by the transactions tagged with it. Reaching
// the target sends a one-time notification.
func (a *Aggregator) GoalProgress(ctx context.Context, id string) (*GoalStatus, error) {
	g, err := a.GetGoal(ctx, id)
	if err != nil {
		return nil, err
	}
	txs, _, err := a.sess.Store.ListTransactions(ctx, g.OwnerID, store.TransactionFilter{GoalID: g.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to list goal transactions: %w", err)
	}
	st := GoalStatusOf(g, txs)
	if st.Completed {
		a.goalCompleted(ctx, g)
	}
	return &st, nil
}

func (a *Aggregator) goalCompleted(ctx context.Context, g *model.Goal) {
	exists, err := a.sess.Store.HasNotification(ctx, g.OwnerID, model.NotifyGoalCompleted, g.ID, "", "", goalWindowHours)
	if err != nil {
		log.Printf("[Aggregate] Failed to check for existing goal notification: %v", err)
		return
	}
	if exists {
		return
	}
	err = a.sess.Notify(ctx, &model.Notification{
		OwnerID:     g.OwnerID,
		Kind:        model.NotifyGoalCompleted,
		Title:       fmt.Sprintf("Goal reached: %s", g.Name),
		Message:     fmt.Sprintf("You've saved %s for %s.", money.Format(g.TargetAmountCents, g.Currency), g.Name),
		ReferenceID: g.ID,
	})
	if err != nil {
		log.Printf("[Aggregate] Failed to create goal notification: %v", err)
	}
}

func getGoal(tx store.Tx, uid, id string) (*model.Goal, error) {
	g, err := tx.GetGoal(uid, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.Newf(errs.GoalNotFound, "goal %s not found", id)
	}
	return g, err
}
