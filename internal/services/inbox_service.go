package services

import (
	"context"
	"errors"

	"tradepost/internal/domain"
	"tradepost/internal/repos"
)

// InboxService reads what the dispatcher wrote.
type InboxService struct {
	Messages      *repos.MessageRepo
	Notifications *repos.NotificationRepo
}

func (s *InboxService) ListNotifications(ctx context.Context, userID int64) ([]domain.Notification, error) {
	return s.Notifications.ListForUser(ctx, userID)
}

// ConversationMessages returns a thread to one of its parties or an admin.
func (s *InboxService) ConversationMessages(ctx context.Context, actor domain.Actor, conversationID int64) ([]domain.Message, error) {
	conv, err := s.Messages.Conversation(ctx, conversationID)
	if errors.Is(err, repos.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	if actor.UserID != conv.BuyerID && actor.UserID != conv.SellerID && !actor.IsAdmin() {
		return nil, ErrConversationNotFound
	}
	return s.Messages.List(ctx, conversationID)
}
