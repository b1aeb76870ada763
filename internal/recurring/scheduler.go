// Package recurring turns recurring templates into ledger transactions, once
// per elapsed period, with bounded catch-up.
package recurring

//go:generate mockgen -source=scheduler.go -destination=poster_mock.go -package=recurring

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/CristhianDaza/finControl/internal/calendar"
	"github.com/CristhianDaza/finControl/internal/ledger"
	"github.com/CristhianDaza/finControl/internal/model"
	"github.com/CristhianDaza/finControl/internal/money"
	"github.com/CristhianDaza/finControl/internal/session"
	"github.com/CristhianDaza/finControl/internal/store"
)

// DefaultMinInterval is the shortest gap allowed between two passes for the
// same user.
const DefaultMinInterval = 30 * time.Second

// StaleLockAfter is how long a pending run lock may go unsettled before a
// pass marks it as abandoned.
const StaleLockAfter = 10 * time.Minute

// Poster posts a single transaction. *ledger.Engine satisfies it.
type Poster interface {
	Create(ctx context.Context, in ledger.TransactionInput) (*model.Transaction, error)
}

// Ceiling is the number of occurrences of one template a single pass may
// process, roughly two years for every frequency.
func Ceiling(f model.Frequency) int {
	switch f {
	case model.Weekly:
		return 104
	case model.Biweekly:
		return 78
	case model.Yearly:
		return 5
	default:
		return 36
	}
}

// Result summarises one user's pass.
type Result struct {
	UserID    string   `json:"userId"`
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Invalid   int      `json:"invalid"`
	Failed    int      `json:"failed"`
	Partial   []string `json:"partial,omitempty"`
	Errors    []string `json:"errors,omitempty"`
	Throttled bool     `json:"throttled,omitempty"`
	ReadOnly  bool     `json:"readOnly,omitempty"`
}

// Summary aggregates ProcessAll over every user with due templates.
type Summary struct {
	Users     int       `json:"users"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	Results   []*Result `json:"results"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMinInterval overrides DefaultMinInterval. Zero disables throttling.
func WithMinInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.minInterval = d }
}

// Scheduler owns recurring templates and the passes that post them.
type Scheduler struct {
	sess        *session.Session
	poster      Poster
	minInterval time.Duration

	mu         sync.Mutex
	processing map[string]bool
	lastPass   map[string]time.Time
}

// NewScheduler creates a Scheduler posting through poster.
func NewScheduler(sess *session.Session, poster Poster, opts ...Option) *Scheduler {
	s := &Scheduler{
		sess:        sess,
		poster:      poster,
		minInterval: DefaultMinInterval,
		processing:  make(map[string]bool),
		lastPass:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// acquire claims the per-user processing flag. It fails while another pass
// for the user is running or the last one started under minInterval ago.
func (s *Scheduler) acquire(uid string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing[uid] {
		return false
	}
	if last, ok := s.lastPass[uid]; ok && s.minInterval > 0 && now.Sub(last) < s.minInterval {
		return false
	}
	s.processing[uid] = true
	s.lastPass[uid] = now
	return true
}

func (s *Scheduler) release(uid string) {
	s.mu.Lock()
	delete(s.processing, uid)
	s.mu.Unlock()
}

// ProcessDue runs a pass for the signed-in user.
func (s *Scheduler) ProcessDue(ctx context.Context) (*Result, error) {
	uid, err := s.sess.UserID(ctx)
	if err != nil {
		return nil, err
	}
	return s.processUser(ctx, uid, s.sess.Today())
}

// ProcessAll runs a pass for every user owning a due template. One user's
// failure is recorded in its result and never stops the others.
func (s *Scheduler) ProcessAll(ctx context.Context, today string) (*Summary, error) {
	if today == "" {
		today = s.sess.Today()
	}
	due, err := s.sess.Store.ListDueTemplatesAllUsers(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("failed to list due templates: %w", err)
	}
	var owners []string
	seen := make(map[string]bool)
	for _, tpl := range due {
		if !seen[tpl.OwnerID] {
			seen[tpl.OwnerID] = true
			owners = append(owners, tpl.OwnerID)
		}
	}

	summary := &Summary{Results: make([]*Result, 0, len(owners))}
	for _, uid := range owners {
		res, err := s.processUser(session.WithUser(ctx, uid), uid, today)
		if err != nil {
			log.Printf("[RecurringProcessor] pass for user %s failed: %v", uid, err)
			res = &Result{UserID: uid, Errors: []string{err.Error()}}
		}
		summary.Users++
		summary.Processed += res.Processed
		summary.Failed += res.Failed
		summary.Results = append(summary.Results, res)
	}
	log.Printf("[RecurringProcessor] completed: users=%d processed=%d failed=%d",
		summary.Users, summary.Processed, summary.Failed)
	return summary, nil
}

func (s *Scheduler) processUser(ctx context.Context, uid, today string) (*Result, error) {
	res := &Result{UserID: uid}
	if !s.acquire(uid, s.sess.Now()) {
		res.Throttled = true
		return res, nil
	}
	defer s.release(uid)

	if _, err := s.sess.Writer(ctx); err != nil {
		if errors.Is(err, session.ErrReadOnly) {
			res.ReadOnly = true
			return res, nil
		}
		return nil, err
	}

	due, err := s.sess.Store.ListDueTemplates(ctx, uid, today)
	if err != nil {
		return nil, fmt.Errorf("failed to list due templates: %w", err)
	}
	for _, tpl := range due {
		if err := s.catchUp(ctx, uid, tpl, today, res); err != nil {
			if errors.Is(err, session.ErrReadOnly) {
				res.ReadOnly = true
				break
			}
			log.Printf("[RecurringProcessor] error processing template %s (user %s): %v", tpl.ID, uid, err)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", tpl.ID, err))
		}
	}

	if res.Processed > 0 {
		s.notify(ctx, &model.Notification{
			OwnerID: uid,
			Kind:    model.NotifyRecurringPosted,
			Title:   "Recurring payments posted",
			Message: fmt.Sprintf("%d recurring transaction(s) were posted.", res.Processed),
			Metadata: map[string]string{
				"count": fmt.Sprint(res.Processed),
				"date":  today,
			},
		})
	}
	return res, nil
}

// occurrence is what happened to one period of a template.
type occurrence int

const (
	posted occurrence = iota
	invalid
	failed
	alreadyRun
	// abandoned is a pending lock left behind by a pass that never settled it.
	abandoned
)

// catchUp processes one template until it reaches today or its ceiling.
func (s *Scheduler) catchUp(ctx context.Context, uid string, tpl *model.RecurringTemplate, today string, res *Result) error {
	next := calendar.NormalizeOr(tpl.NextRunAt, today)
	limit := Ceiling(tpl.Frequency)
	iterations := 0

	for next <= today && iterations < limit {
		iterations++
		periodKey := next
		following, err := calendar.NextFrom(tpl.Frequency, periodKey)
		if err != nil {
			return err
		}

		outcome, txID, postErr := s.runOccurrence(ctx, uid, tpl, periodKey)
		ok, err := s.advance(ctx, uid, tpl.ID, tpl.NextRunAt, periodKey, following, outcome, txID, postErr)
		if err != nil {
			return err
		}
		if !ok {
			// Template changed underneath us; the next pass picks it up.
			return nil
		}
		tpl.NextRunAt = following

		switch outcome {
		case posted:
			res.Processed++
		case invalid:
			res.Invalid++
		case failed:
			res.Failed++
			log.Printf("[RecurringProcessor] posting %s for template %s failed: %v", periodKey, tpl.ID, postErr)
			if errors.Is(postErr, session.ErrReadOnly) {
				return postErr
			}
		case alreadyRun:
			res.Skipped++
		case abandoned:
			res.Skipped++
			log.Printf("[RecurringProcessor] settled abandoned lock %s", model.RunID(tpl.ID, periodKey))
		}
		next = following
	}

	behind := next <= today
	switch {
	case behind && !tpl.PartialCatchUp:
		if err := s.setPartial(ctx, uid, tpl.ID, true); err != nil {
			return err
		}
		res.Partial = append(res.Partial, tpl.ID)
		log.Printf("[RecurringProcessor] template %s (user %s) hit its catch-up ceiling of %d, still at %s", tpl.ID, uid, limit, next)
		s.notify(ctx, &model.Notification{
			OwnerID:     uid,
			Kind:        model.NotifyPartialCatchUp,
			Title:       "Recurring payment partially caught up",
			Message:     fmt.Sprintf("%q is still behind; the remaining occurrences from %s will be posted on the next run.", displayName(tpl), next),
			ReferenceID: tpl.ID,
			Metadata:    map[string]string{"nextRunAt": next},
		})
	case behind:
		res.Partial = append(res.Partial, tpl.ID)
	case tpl.PartialCatchUp:
		return s.setPartial(ctx, uid, tpl.ID, false)
	}
	return nil
}

// runOccurrence validates, locks and posts one period.
func (s *Scheduler) runOccurrence(ctx context.Context, uid string, tpl *model.RecurringTemplate, periodKey string) (occurrence, string, error) {
	in := ledger.TransactionInput{
		Type:       tpl.Type,
		Amount:     money.FromCents(tpl.AmountCents),
		AccountID:  tpl.AccountID,
		DebtID:     tpl.DebtID,
		Currency:   tpl.Currency,
		Date:       periodKey,
		Note:       firstNonEmpty(tpl.Note, tpl.Name),
		CategoryID: tpl.CategoryID,
		Recurring:  &model.RecurringMeta{TemplateID: tpl.ID, PeriodKey: periodKey},
	}
	if err := ledger.Validate(in); err != nil {
		log.Printf("[RecurringProcessor] template %s has an invalid payload for %s: %v", tpl.ID, periodKey, err)
		return invalid, "", err
	}

	existing, err := s.lock(ctx, uid, tpl.ID, periodKey)
	if err != nil {
		return failed, "", err
	}
	if existing != nil {
		// Any lock means the period is taken; the template still moves on.
		if existing.Status == model.RunPending && s.sess.Now().Sub(existing.UpdatedAt) >= StaleLockAfter {
			return abandoned, "", nil
		}
		return alreadyRun, "", nil
	}

	t, err := s.poster.Create(ctx, in)
	if err != nil {
		return failed, "", err
	}
	return posted, t.ID, nil
}

// lock creates the run lock for a period if absent. It returns the existing
// lock when one is already there.
func (s *Scheduler) lock(ctx context.Context, uid, templateID, periodKey string) (*model.RecurringRun, error) {
	runID := model.RunID(templateID, periodKey)
	var existing *model.RecurringRun
	err := s.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		existing = nil
		run, err := tx.GetRun(uid, runID)
		if err == nil {
			existing = run
			return nil
		}
		if !isNotFound(err) {
			return err
		}
		now := s.sess.Now()
		return tx.SetRun(&model.RecurringRun{
			ID:         runID,
			OwnerID:    uid,
			TemplateID: templateID,
			PeriodKey:  periodKey,
			Status:     model.RunPending,
			UpdatedAt:  now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", runID, err)
	}
	return existing, nil
}

// advance moves the template past periodKey and settles the run lock in one
// transaction. It reports false when the template was deleted or moved by
// someone else since the pass read it.
func (s *Scheduler) advance(ctx context.Context, uid, templateID, expected, periodKey, following string, outcome occurrence, txID string, postErr error) (bool, error) {
	runID := model.RunID(templateID, periodKey)
	settleRun := outcome == posted || outcome == failed || outcome == abandoned
	var ok bool
	err := s.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		ok = false
		tpl, err := tx.GetTemplate(uid, templateID)
		if isNotFound(err) {
			tpl = nil
		} else if err != nil {
			return err
		}
		var run *model.RecurringRun
		if settleRun {
			run, err = tx.GetRun(uid, runID)
			if err != nil && !isNotFound(err) {
				return err
			}
		}

		now := s.sess.Now()
		if run != nil && outcome == abandoned && run.Status != model.RunPending {
			// Settled by its owner since we looked.
			run = nil
		}
		if run != nil {
			run.ID = runID
			run.UpdatedAt = now
			switch outcome {
			case posted:
				run.Status = model.RunDone
				run.TxID = txID
			case abandoned:
				run.Status = model.RunError
				run.Error = "abandoned: pending lock was never settled"
			default:
				run.Status = model.RunError
				if postErr != nil {
					run.Error = postErr.Error()
				}
			}
			if err := tx.SetRun(run); err != nil {
				return err
			}
		}

		if tpl == nil || tpl.Paused || tpl.NextRunAt != expected {
			return nil
		}
		tpl.ID = templateID
		tpl.NextRunAt = following
		if outcome == posted {
			tpl.LastRunAt = periodKey
		}
		tpl.UpdatedAt = now
		if err := tx.SetTemplate(tpl); err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to advance template %s past %s: %w", templateID, periodKey, err)
	}
	return ok, nil
}

func (s *Scheduler) setPartial(ctx context.Context, uid, templateID string, partial bool) error {
	return s.sess.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		tpl, err := tx.GetTemplate(uid, templateID)
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		tpl.ID = templateID
		tpl.PartialCatchUp = partial
		tpl.UpdatedAt = s.sess.Now()
		return tx.SetTemplate(tpl)
	})
}

func (s *Scheduler) notify(ctx context.Context, n *model.Notification) {
	if err := s.sess.Notify(ctx, n); err != nil {
		log.Printf("[RecurringProcessor] failed to notify user %s: %v", n.OwnerID, err)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

func displayName(tpl *model.RecurringTemplate) string {
	return firstNonEmpty(tpl.Name, tpl.Note, tpl.ID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
