package service

import (
	"context"
	"fmt"
	"time"

	"connectrpc.com/connect"
)

func (s *FinanceService) registerBudgets(r *router) {
	handle(r, "CreateBudget", s.CreateBudget)
	handle(r, "UpdateBudget", s.UpdateBudget)
	handle(r, "DeleteBudget", s.DeleteBudget)
	handle(r, "GetBudget", s.GetBudget)
	handle(r, "ListBudgets", s.ListBudgets)
	handle(r, "GetBudgetProgress", s.GetBudgetProgress)
	handle(r, "GetMonthProgress", s.GetMonthProgress)
	handle(r, "CloseBudgetPeriod", s.CloseBudgetPeriod)

	handle(r, "CreateGoal", s.CreateGoal)
	handle(r, "UpdateGoal", s.UpdateGoal)
	handle(r, "PauseGoal", s.PauseGoal)
	handle(r, "ResumeGoal", s.ResumeGoal)
	handle(r, "DeleteGoal", s.DeleteGoal)
	handle(r, "GetGoal", s.GetGoal)
	handle(r, "ListGoals", s.ListGoals)
	handle(r, "GetGoalProgress", s.GetGoalProgress)
}

func periodMonth(req *PeriodRequest) (int, time.Month, error) {
	if req.Year == 0 && req.Month == 0 {
		return 0, 0, nil
	}
	if req.Month < 1 || req.Month > 12 {
		return 0, 0, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("month must be 1-12"))
	}
	return req.Year, time.Month(req.Month), nil
}

// CreateBudget creates a new budget
func (s *FinanceService) CreateBudget(ctx context.Context, req *connect.Request[CreateBudgetRequest]) (*connect.Response[BudgetResponse], error) {
	b, err := s.agg.CreateBudget(ctx, req.Msg.BudgetInput)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&BudgetResponse{Budget: b}), nil
}

// UpdateBudget updates an existing budget
func (s *FinanceService) UpdateBudget(ctx context.Context, req *connect.Request[UpdateBudgetRequest]) (*connect.Response[BudgetResponse], error) {
	b, err := s.agg.UpdateBudget(ctx, req.Msg.ID, req.Msg.BudgetPatch)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&BudgetResponse{Budget: b}), nil
}

// DeleteBudget deletes a budget
func (s *FinanceService) DeleteBudget(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[DeleteResponse], error) {
	if err := s.agg.DeleteBudget(ctx, req.Msg.ID); err != nil {
		return nil, err
	}
	return connect.NewResponse(&DeleteResponse{}), nil
}

// GetBudget retrieves a budget by ID
func (s *FinanceService) GetBudget(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[BudgetResponse], error) {
	b, err := s.agg.GetBudget(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&BudgetResponse{Budget: b}), nil
}

// ListBudgets lists budgets, active only unless asked otherwise
func (s *FinanceService) ListBudgets(ctx context.Context, req *connect.Request[ListBudgetsRequest]) (*connect.Response[ListBudgetsResponse], error) {
	budgets, err := s.agg.ListBudgets(ctx, req.Msg.IncludeInactive)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ListBudgetsResponse{Budgets: budgets}), nil
}

// GetBudgetProgress measures one budget over a month
func (s *FinanceService) GetBudgetProgress(ctx context.Context, req *connect.Request[PeriodRequest]) (*connect.Response[BudgetProgressResponse], error) {
	year, month, err := periodMonth(req.Msg)
	if err != nil {
		return nil, err
	}
	p, err := s.agg.BudgetProgress(ctx, req.Msg.ID, year, month)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&BudgetProgressResponse{Progress: p}), nil
}

// GetMonthProgress measures every active budget over a month
func (s *FinanceService) GetMonthProgress(ctx context.Context, req *connect.Request[PeriodRequest]) (*connect.Response[MonthProgressResponse], error) {
	year, month, err := periodMonth(req.Msg)
	if err != nil {
		return nil, err
	}
	progress, err := s.agg.MonthProgress(ctx, year, month)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&MonthProgressResponse{Progress: progress}), nil
}

// CloseBudgetPeriod rolls a month's unspent amount into the carryover balance
func (s *FinanceService) CloseBudgetPeriod(ctx context.Context, req *connect.Request[PeriodRequest]) (*connect.Response[BudgetResponse], error) {
	year, month, err := periodMonth(req.Msg)
	if err != nil {
		return nil, err
	}
	b, err := s.agg.ClosePeriod(ctx, req.Msg.ID, year, month)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&BudgetResponse{Budget: b}), nil
}

func (s *FinanceService) CreateGoal(ctx context.Context, req *connect.Request[CreateGoalRequest]) (*connect.Response[GoalResponse], error) {
	g, err := s.agg.CreateGoal(ctx, req.Msg.GoalInput)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&GoalResponse{Goal: g}), nil
}

func (s *FinanceService) UpdateGoal(ctx context.Context, req *connect.Request[UpdateGoalRequest]) (*connect.Response[GoalResponse], error) {
	g, err := s.agg.UpdateGoal(ctx, req.Msg.ID, req.Msg.GoalPatch)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&GoalResponse{Goal: g}), nil
}

func (s *FinanceService) PauseGoal(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[GoalResponse], error) {
	g, err := s.agg.PauseGoal(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&GoalResponse{Goal: g}), nil
}

func (s *FinanceService) ResumeGoal(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[GoalResponse], error) {
	g, err := s.agg.ResumeGoal(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&GoalResponse{Goal: g}), nil
}

func (s *FinanceService) DeleteGoal(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[DeleteResponse], error) {
	if err := s.agg.DeleteGoal(ctx, req.Msg.ID); err != nil {
		return nil, err
	}
	return connect.NewResponse(&DeleteResponse{}), nil
}

func (s *FinanceService) GetGoal(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[GoalResponse], error) {
	g, err := s.agg.GetGoal(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&GoalResponse{Goal: g}), nil
}

func (s *FinanceService) ListGoals(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[ListGoalsResponse], error) {
	goals, err := s.agg.ListGoals(ctx)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ListGoalsResponse{Goals: goals}), nil
}

func (s *FinanceService) GetGoalProgress(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[GoalProgressResponse], error) {
	st, err := s.agg.GoalProgress(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&GoalProgressResponse{Progress: st}), nil
}
