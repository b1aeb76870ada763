package service

import (
	"context"

	"connectrpc.com/connect"

	"github.com/CristhianDaza/finControl/internal/store"
)

func (s *FinanceService) registerAccess(r *router) {
	handle(r, "GetAccess", s.GetAccess)
	handle(r, "ValidateInviteCode", s.ValidateInviteCode)
	handle(r, "RedeemInviteCode", s.RedeemInviteCode)

	// Admin only.
	handle(r, "CreateInviteCode", s.CreateInviteCode)
	handle(r, "InvalidateInviteCode", s.InvalidateInviteCode)
	handle(r, "ListInviteCodes", s.ListInviteCodes)
	handle(r, "GetUserAccess", s.GetUserAccess)
	handle(r, "SetUserActive", s.SetUserActive)
}

// GetAccess returns the signed-in user's plan and write access
func (s *FinanceService) GetAccess(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[AccessResponse], error) {
	sum, err := s.access.Access(ctx)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&AccessResponse{Access: sum}), nil
}

// ValidateInviteCode checks a code without redeeming it. Failed checks count
// toward the redeem lockout.
func (s *FinanceService) ValidateInviteCode(ctx context.Context, req *connect.Request[CodeRequest]) (*connect.Response[ValidateInviteCodeResponse], error) {
	check, err := s.access.Validate(ctx, req.Msg.Code)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ValidateInviteCodeResponse{Plan: check.Plan, Valid: check.Valid}), nil
}

// RedeemInviteCode applies a code's plan to the signed-in user. Rejections
// carry the reason and remaining attempts in response headers.
func (s *FinanceService) RedeemInviteCode(ctx context.Context, req *connect.Request[CodeRequest]) (*connect.Response[RedeemResponse], error) {
	red, err := s.access.Redeem(ctx, req.Msg.Code)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&RedeemResponse{Redemption: red}), nil
}

func (s *FinanceService) CreateInviteCode(ctx context.Context, req *connect.Request[CreateInviteCodeRequest]) (*connect.Response[InviteCodeResponse], error) {
	c, err := s.access.CreateCode(ctx, req.Msg.Plan)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&InviteCodeResponse{InviteCode: c}), nil
}

func (s *FinanceService) InvalidateInviteCode(ctx context.Context, req *connect.Request[CodeRequest]) (*connect.Response[InviteCodeResponse], error) {
	c, err := s.access.InvalidateCode(ctx, req.Msg.Code)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&InviteCodeResponse{InviteCode: c}), nil
}

func (s *FinanceService) ListInviteCodes(ctx context.Context, req *connect.Request[ListInviteCodesRequest]) (*connect.Response[ListInviteCodesResponse], error) {
	codes, err := s.access.ListCodes(ctx, store.InviteCodeFilter{
		Status:    req.Msg.Status,
		CreatedBy: req.Msg.CreatedBy,
		Limit:     req.Msg.Limit,
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ListInviteCodesResponse{InviteCodes: codes}), nil
}

func (s *FinanceService) GetUserAccess(ctx context.Context, req *connect.Request[UserRequest]) (*connect.Response[AccessResponse], error) {
	sum, err := s.access.UserAccess(ctx, req.Msg.UserID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&AccessResponse{Access: sum}), nil
}

func (s *FinanceService) SetUserActive(ctx context.Context, req *connect.Request[SetUserActiveRequest]) (*connect.Response[UpdatedResponse], error) {
	if err := s.access.SetUserActive(ctx, req.Msg.UserID, req.Msg.Active); err != nil {
		return nil, err
	}
	return connect.NewResponse(&UpdatedResponse{}), nil
}
