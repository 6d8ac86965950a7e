package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusInProgress OrderStatus = "IN_PROGRESS"
	StatusToShip     OrderStatus = "TO_SHIP"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusReceived   OrderStatus = "RECEIVED"
	StatusCompleted  OrderStatus = "COMPLETED"
	StatusReviewed   OrderStatus = "REVIEWED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

// AllStatuses lists every order status in lifecycle order.
var AllStatuses = []OrderStatus{
	StatusInProgress, StatusToShip, StatusShipped, StatusDelivered,
	StatusReceived, StatusCompleted, StatusReviewed, StatusCancelled,
}

// ParseOrderStatus accepts a status name case-insensitively.
func ParseOrderStatus(s string) (OrderStatus, error) {
	candidate := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range AllStatuses {
		if st == candidate {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusReviewed, StatusCancelled:
		return true
	}
	return false
}

// Settles reports whether reaching s finishes the order from a business
// standpoint.
func (s OrderStatus) Settles() bool {
	switch s {
	case StatusReceived, StatusCompleted, StatusReviewed:
		return true
	}
	return false
}

// Order amounts are snapshots taken at placement; only Status, SettledAt and
// UpdatedAt change afterwards.
type Order struct {
	ID               int64           `json:"id"`
	BuyerID          int64           `json:"buyerId"`
	SellerID         int64           `json:"sellerId"`
	ListingID        int64           `json:"listingId"`
	Quantity         int             `json:"quantity"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	CommissionRate   decimal.Decimal `json:"commissionRate"`
	CommissionAmount decimal.Decimal `json:"commissionAmount"`
	PaymentMethodRef string          `json:"paymentMethodRef"`
	RequestKey       string          `json:"-"`
	Status           OrderStatus     `json:"status"`
	SettledAt        *time.Time      `json:"settledAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Counterparty returns the other party of the order relative to userID.
func (o Order) Counterparty(userID int64) int64 {
	if userID == o.BuyerID {
		return o.SellerID
	}
	return o.BuyerID
}

// Party is the side of an order an actor acts for.
type Party string

const (
	PartyBuyer  Party = "buyer"
	PartySeller Party = "seller"
)

// MessageKind identifies the notification emitted for a transition. RECEIVED
// and COMPLETED share the COMPLETED kind.
type MessageKind string

const (
	KindPaid      MessageKind = "PAID"
	KindToShip    MessageKind = "TO_SHIP"
	KindShipped   MessageKind = "SHIPPED"
	KindDelivered MessageKind = "DELIVERED"
	KindCompleted MessageKind = "COMPLETED"
	KindReviewed  MessageKind = "REVIEWED"
	KindCancelled MessageKind = "CANCELLED"
)

func KindFor(s OrderStatus) MessageKind {
	switch s {
	case StatusInProgress:
		return KindPaid
	case StatusToShip:
		return KindToShip
	case StatusShipped:
		return KindShipped
	case StatusDelivered:
		return KindDelivered
	case StatusReceived, StatusCompleted:
		return KindCompleted
	case StatusReviewed:
		return KindReviewed
	case StatusCancelled:
		return KindCancelled
	}
	panic(fmt.Sprintf("domain: no message kind for status %q", s))
}

// OrderEvent describes a status change that already happened. It is pure data
// handed to the notification dispatcher.
type OrderEvent struct {
	OrderID        int64       `json:"orderId"`
	ListingID      int64       `json:"listingId"`
	ListingTitle   string      `json:"listingTitle"`
	BuyerID        int64       `json:"buyerId"`
	SellerID       int64       `json:"sellerId"`
	From           OrderStatus `json:"from,omitempty"`
	To             OrderStatus `json:"to"`
	ActorID        int64       `json:"actorId"`
	ActorParty     Party       `json:"actorParty"`
	CounterpartyID int64       `json:"counterpartyId"`
	OccurredAt     time.Time   `json:"occurredAt"`
}

func (e OrderEvent) Kind() MessageKind { return KindFor(e.To) }

// SenderID is the order party the change was made as. An admin acting on
// the order sends as that party.
func (e OrderEvent) SenderID() int64 {
	if e.ActorParty == PartyBuyer {
		return e.BuyerID
	}
	return e.SellerID
}

// RecipientParty is the side that is told about the change.
func (e OrderEvent) RecipientParty() Party {
	if e.ActorParty == PartyBuyer {
		return PartySeller
	}
	return PartyBuyer
}

// DispatchKey identifies an event for retry bookkeeping. The conversation is
// derived from the order, so order and kind are sufficient.
func (e OrderEvent) DispatchKey() string {
	return fmt.Sprintf("order:%d/%s", e.OrderID, e.Kind())
}

// IdempotencyKey is the composite key guarding system messages.
func IdempotencyKey(conversationID, orderID int64, kind MessageKind) string {
	return fmt.Sprintf("conv:%d/order:%d/%s", conversationID, orderID, kind)
}
