package domain

import "time"

type MessageType string

const (
	MessageText   MessageType = "TEXT"
	MessageSystem MessageType = "SYSTEM"
)

type Conversation struct {
	ID        int64     `json:"id"`
	ListingID int64     `json:"listingId"`
	BuyerID   int64     `json:"buyerId"`
	SellerID  int64     `json:"sellerId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Message struct {
	ID             int64       `json:"id"`
	ConversationID int64       `json:"conversationId"`
	SenderID       int64       `json:"senderId"`
	ReceiverID     int64       `json:"receiverId"`
	Content        string      `json:"content"`
	Type           MessageType `json:"type"`
	OrderID        *int64      `json:"orderId,omitempty"`
	Kind           MessageKind `json:"kind,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

type Notification struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"userId"`
	OrderID   int64       `json:"orderId"`
	Kind      MessageKind `json:"kind"`
	Title     string      `json:"title"`
	Body      string      `json:"body"`
	Read      bool        `json:"read"`
	CreatedAt time.Time   `json:"createdAt"`
}
