package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"tradepost/internal/domain"
	"tradepost/internal/repos"
)

type template struct {
	Title string
	Body  string // formatted with the listing title
}

// orderTemplates picks wording by event kind and by the side receiving it.
var orderTemplates = map[domain.MessageKind]map[domain.Party]template{
	domain.KindPaid: {
		domain.PartySeller: {"New order", "Your item %q was purchased. Please prepare it for shipping."},
		domain.PartyBuyer:  {"Order placed", "Your order for %q was placed and paid."},
	},
	domain.KindToShip: {
		domain.PartyBuyer:  {"Preparing shipment", "The seller is preparing %q for shipping."},
		domain.PartySeller: {"Ready to ship", "%q is marked ready to ship."},
	},
	domain.KindShipped: {
		domain.PartyBuyer:  {"Order shipped", "Your order %q has been shipped."},
		domain.PartySeller: {"Shipment recorded", "%q is recorded as shipped."},
	},
	domain.KindDelivered: {
		domain.PartyBuyer:  {"Order delivered", "%q was delivered. Please confirm you received it."},
		domain.PartySeller: {"Delivery recorded", "%q is recorded as delivered."},
	},
	domain.KindCompleted: {
		domain.PartySeller: {"Order completed", "The buyer confirmed receipt of %q. The sale is complete."},
		domain.PartyBuyer:  {"Order completed", "The seller marked the order for %q as complete."},
	},
	domain.KindReviewed: {
		domain.PartySeller: {"New review", "The buyer reviewed the order for %q."},
		domain.PartyBuyer:  {"Order reviewed", "The seller reviewed the order for %q."},
	},
	domain.KindCancelled: {
		domain.PartySeller: {"Order cancelled", "The buyer cancelled the order for %q."},
		domain.PartyBuyer:  {"Order cancelled", "The seller cancelled your order for %q."},
	},
}

func renderTemplate(kind domain.MessageKind, recipient domain.Party, listingTitle string) (title, body string) {
	t := orderTemplates[kind][recipient]
	return t.Title, fmt.Sprintf(t.Body, listingTitle)
}

// NotificationDispatcher posts the conversation system message and the
// counterparty notification for an order event, at most once per
// (conversation, order, kind).
type NotificationDispatcher struct {
	DB            *sqlx.DB
	Messages      *repos.MessageRepo
	Notifications *repos.NotificationRepo
	Outbox        *repos.OutboxRepo
	Log           *zap.Logger
	Now           func() time.Time
}

func NewNotificationDispatcher(db *sqlx.DB, messages *repos.MessageRepo, notes *repos.NotificationRepo,
	outbox *repos.OutboxRepo, log *zap.Logger) *NotificationDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationDispatcher{DB: db, Messages: messages, Notifications: notes, Outbox: outbox, Log: log, Now: time.Now}
}

// Dispatch delivers ev and never fails the caller. A failed delivery is
// queued for the retry worker.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, ev domain.OrderEvent) {
	ctx = context.WithoutCancel(ctx)
	err := d.Deliver(ctx, ev)
	if err == nil {
		return
	}
	d.Log.Warn("notification.dispatch.failed",
		zap.String("eventKey", ev.DispatchKey()), zap.Int64("orderId", ev.OrderID), zap.Error(err))

	payload, mErr := json.Marshal(ev)
	if mErr != nil {
		d.Log.Error("notification.outbox.encode", zap.String("eventKey", ev.DispatchKey()), zap.Error(mErr))
		return
	}
	if qErr := d.Outbox.Enqueue(ctx, ev.DispatchKey(), string(payload), err.Error(), d.Now().UTC()); qErr != nil {
		d.Log.Error("notification.outbox.enqueue", zap.String("eventKey", ev.DispatchKey()), zap.Error(qErr))
	}
}

// Deliver writes the system message and notification for ev in one
// transaction. Delivering the same event again changes nothing.
func (d *NotificationDispatcher) Deliver(ctx context.Context, ev domain.OrderEvent) error {
	kind := ev.Kind()
	now := d.Now().UTC()
	recipient := ev.RecipientParty()
	title, body := renderTemplate(kind, recipient, ev.ListingTitle)

	var (
		key      string
		inserted bool
	)
	err := repos.InTx(ctx, d.DB, func(tx *sqlx.Tx) error {
		messages := d.Messages.WithTx(tx)
		conv, err := messages.EnsureConversation(ctx, ev.ListingID, ev.BuyerID, ev.SellerID, now)
		if err != nil {
			return fmt.Errorf("conversation: %w", err)
		}
		key = domain.IdempotencyKey(conv.ID, ev.OrderID, kind)

		exists, err := messages.HasSystemMessage(ctx, conv.ID, ev.OrderID, kind)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		orderID := ev.OrderID
		if inserted, err = messages.InsertSystem(ctx, domain.Message{
			ConversationID: conv.ID,
			SenderID:       ev.SenderID(),
			ReceiverID:     ev.CounterpartyID,
			Content:        body,
			Type:           domain.MessageSystem,
			OrderID:        &orderID,
			Kind:           kind,
			CreatedAt:      now,
		}); err != nil {
			return fmt.Errorf("system message: %w", err)
		}
		// the notification follows the message: no message, no notification
		if !inserted {
			return nil
		}

		if _, err := d.Notifications.WithTx(tx).Insert(ctx, domain.Notification{
			UserID:    ev.CounterpartyID,
			OrderID:   ev.OrderID,
			Kind:      kind,
			Title:     title,
			Body:      body,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("notification: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if inserted {
		d.Log.Info("notification.dispatched", zap.String("key", key), zap.Int64("recipientId", ev.CounterpartyID))
	} else {
		d.Log.Debug("notification.duplicate", zap.String("key", key))
	}
	return nil
}

// Redeliver decodes a queued event payload and delivers it.
func (d *NotificationDispatcher) Redeliver(ctx context.Context, payload string) error {
	var ev domain.OrderEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return d.Deliver(ctx, ev)
}
