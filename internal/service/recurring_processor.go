package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"

	"connectrpc.com/connect"

	"github.com/CristhianDaza/finControl/internal/calendar"
)

// SchedulerTokenHeader carries the shared secret Cloud Scheduler sends to
// ProcessAllRecurring.
const SchedulerTokenHeader = "X-Scheduler-Token"

func (s *FinanceService) registerRecurring(r *router) {
	handle(r, "CreateRecurringTemplate", s.CreateRecurringTemplate)
	handle(r, "UpdateRecurringTemplate", s.UpdateRecurringTemplate)
	handle(r, "PauseRecurringTemplate", s.PauseRecurringTemplate)
	handle(r, "ResumeRecurringTemplate", s.ResumeRecurringTemplate)
	handle(r, "DeleteRecurringTemplate", s.DeleteRecurringTemplate)
	handle(r, "GetRecurringTemplate", s.GetRecurringTemplate)
	handle(r, "ListRecurringTemplates", s.ListRecurringTemplates)
	handle(r, "ListRecurringRuns", s.ListRecurringRuns)
	handle(r, "ProcessDueRecurring", s.ProcessDueRecurring)
	handle(r, "ProcessAllRecurring", s.ProcessAllRecurring)
}

// ProcessAllRecurring runs a scheduler pass for every user with due
// templates. It is called by Cloud Scheduler without user authentication
// and requires the scheduler token instead.
func (s *FinanceService) ProcessAllRecurring(ctx context.Context, req *connect.Request[ProcessAllRecurringRequest]) (*connect.Response[ProcessAllRecurringResponse], error) {
	if s.schedulerToken == "" {
		return nil, connect.NewError(connect.CodeUnimplemented, fmt.Errorf("scheduler endpoint is disabled"))
	}
	got := req.Header().Get(SchedulerTokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.schedulerToken)) != 1 {
		return nil, connect.NewError(connect.CodePermissionDenied, fmt.Errorf("invalid scheduler token"))
	}
	if req.Msg.Today != "" && !calendar.Valid(req.Msg.Today) {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("today must be YYYY-MM-DD"))
	}

	summary, err := s.scheduler.ProcessAll(ctx, req.Msg.Today)
	if err != nil {
		return nil, err
	}
	log.Printf("[RecurringProcessor] scheduled pass: users=%d processed=%d failed=%d",
		summary.Users, summary.Processed, summary.Failed)
	return connect.NewResponse(&ProcessAllRecurringResponse{Summary: summary}), nil
}

// ProcessDueRecurring runs a pass for the signed-in user, typically on app
// open.
func (s *FinanceService) ProcessDueRecurring(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[ProcessDueResponse], error) {
	res, err := s.scheduler.ProcessDue(ctx)
	if err != nil {
		return nil, err
	}
	out := &ProcessDueResponse{Result: res}
	out.ReadOnly = res.ReadOnly
	return connect.NewResponse(out), nil
}

func (s *FinanceService) CreateRecurringTemplate(ctx context.Context, req *connect.Request[CreateTemplateRequest]) (*connect.Response[TemplateResponse], error) {
	tpl, err := s.scheduler.CreateTemplate(ctx, req.Msg.TemplateInput)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&TemplateResponse{Template: tpl}), nil
}

func (s *FinanceService) UpdateRecurringTemplate(ctx context.Context, req *connect.Request[UpdateTemplateRequest]) (*connect.Response[TemplateResponse], error) {
	tpl, err := s.scheduler.UpdateTemplate(ctx, req.Msg.ID, req.Msg.TemplatePatch)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&TemplateResponse{Template: tpl}), nil
}

func (s *FinanceService) PauseRecurringTemplate(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[TemplateResponse], error) {
	tpl, err := s.scheduler.Pause(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&TemplateResponse{Template: tpl}), nil
}

func (s *FinanceService) ResumeRecurringTemplate(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[TemplateResponse], error) {
	tpl, err := s.scheduler.Resume(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&TemplateResponse{Template: tpl}), nil
}

func (s *FinanceService) DeleteRecurringTemplate(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[DeleteResponse], error) {
	if err := s.scheduler.DeleteTemplate(ctx, req.Msg.ID); err != nil {
		return nil, err
	}
	return connect.NewResponse(&DeleteResponse{}), nil
}

func (s *FinanceService) GetRecurringTemplate(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[TemplateResponse], error) {
	tpl, err := s.scheduler.GetTemplate(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&TemplateResponse{Template: tpl}), nil
}

func (s *FinanceService) ListRecurringTemplates(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[ListTemplatesResponse], error) {
	tpls, err := s.scheduler.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ListTemplatesResponse{Templates: tpls}), nil
}

func (s *FinanceService) ListRecurringRuns(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[ListRunsResponse], error) {
	runs, err := s.scheduler.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ListRunsResponse{Runs: runs}), nil
}
