package service

import (
	"context"
	"log"

	"connectrpc.com/connect"

	"github.com/CristhianDaza/finControl/internal/auth"
)

func (s *FinanceService) registerNotifications(r *router) {
	handle(r, "ListNotifications", s.ListNotifications)
	handle(r, "GetUnreadNotificationCount", s.GetUnreadNotificationCount)
	handle(r, "MarkNotificationRead", s.MarkNotificationRead)
	handle(r, "MarkAllNotificationsRead", s.MarkAllNotificationsRead)
	handle(r, "RegisterPushToken", s.RegisterPushToken)
	handle(r, "UnregisterPushToken", s.UnregisterPushToken)
	handle(r, "SetBudgetAlerts", s.SetBudgetAlerts)
}

// ListNotifications lists notifications newest first
func (s *FinanceService) ListNotifications(ctx context.Context, req *connect.Request[ListNotificationsRequest]) (*connect.Response[ListNotificationsResponse], error) {
	notes, next, err := s.notify.List(ctx, req.Msg.UnreadOnly, req.Msg.PageSize, req.Msg.PageToken)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ListNotificationsResponse{Notifications: notes, NextPageToken: next}), nil
}

func (s *FinanceService) GetUnreadNotificationCount(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[CountResponse], error) {
	n, err := s.notify.UnreadCount(ctx)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&CountResponse{Count: n}), nil
}

func (s *FinanceService) MarkNotificationRead(ctx context.Context, req *connect.Request[IDRequest]) (*connect.Response[UpdatedResponse], error) {
	if err := s.notify.MarkRead(ctx, req.Msg.ID); err != nil {
		return nil, err
	}
	return connect.NewResponse(&UpdatedResponse{}), nil
}

func (s *FinanceService) MarkAllNotificationsRead(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[CountResponse], error) {
	n, err := s.notify.MarkAllRead(ctx)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&CountResponse{Count: n}), nil
}

// RegisterPushToken registers an FCM token for push notifications.
func (s *FinanceService) RegisterPushToken(ctx context.Context, req *connect.Request[PushTokenRequest]) (*connect.Response[UpdatedResponse], error) {
	claims, err := auth.RequireClaims(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.notify.RegisterPushToken(ctx, req.Msg.Token); err != nil {
		return nil, err
	}
	log.Printf("[Push] Registered FCM token for user %s", claims.UID)
	return connect.NewResponse(&UpdatedResponse{}), nil
}

// UnregisterPushToken removes the FCM token and disables push notifications.
func (s *FinanceService) UnregisterPushToken(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[UpdatedResponse], error) {
	if err := s.notify.UnregisterPushToken(ctx); err != nil {
		return nil, err
	}
	return connect.NewResponse(&UpdatedResponse{}), nil
}

// SetBudgetAlerts turns budget threshold pushes on or off.
func (s *FinanceService) SetBudgetAlerts(ctx context.Context, req *connect.Request[BudgetAlertsRequest]) (*connect.Response[UpdatedResponse], error) {
	if err := s.notify.SetBudgetAlerts(ctx, req.Msg.Enabled); err != nil {
		return nil, err
	}
	return connect.NewResponse(&UpdatedResponse{}), nil
}
