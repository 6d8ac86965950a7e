package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradepost/internal/domain"
	"tradepost/internal/repos"
)

// PlaceOrderCommand is a buyer's purchase request. RequestKey is optional;
// a repeated key returns the order it first created.
type PlaceOrderCommand struct {
	BuyerID          int64
	ListingID        int64
	Quantity         int
	PaymentMethodRef string
	RequestKey       string
}

type OrderService struct {
	DB          *sqlx.DB
	Listings    *repos.ListingRepo
	Users       *repos.UserRepo
	Orders      *repos.OrderRepo
	Ledger      *InventoryLedger
	Commission  CommissionRates
	Events      EventSink
	Transitions *OrderStateMachine
	Log         *zap.Logger
	Now         func() time.Time
}

func NewOrderService(db *sqlx.DB, listings *repos.ListingRepo, users *repos.UserRepo, orders *repos.OrderRepo,
	ledger *InventoryLedger, rates CommissionRates, events EventSink, transitions *OrderStateMachine, log *zap.Logger) *OrderService {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderService{
		DB: db, Listings: listings, Users: users, Orders: orders, Ledger: ledger,
		Commission: rates, Events: events, Transitions: transitions, Log: log, Now: time.Now,
	}
}

// Place creates an order for the command. The stock reservation and the
// order row commit together; the paid notification is sent afterwards. The
// boolean reports whether an earlier order was returned for a repeated
// request key.
func (s *OrderService) Place(ctx context.Context, cmd PlaceOrderCommand) (*domain.Order, bool, error) {
	if cmd.Quantity <= 0 {
		return nil, false, ErrInvalidQuantity
	}
	cmd.PaymentMethodRef = strings.TrimSpace(cmd.PaymentMethodRef)
	if cmd.PaymentMethodRef == "" {
		return nil, false, ErrPaymentMethodRequired
	}
	cmd.RequestKey = strings.TrimSpace(cmd.RequestKey)

	if cmd.RequestKey != "" {
		prior, err := s.Orders.ByRequestKey(ctx, cmd.BuyerID, cmd.RequestKey)
		if err == nil {
			return s.replay(ctx, prior, cmd)
		}
		if !errors.Is(err, repos.ErrNotFound) {
			return nil, false, err
		}
	}

	listing, err := s.Listings.Get(ctx, cmd.ListingID)
	if errors.Is(err, repos.ErrNotFound) {
		return nil, false, ErrListingNotFound
	}
	if err != nil {
		return nil, false, err
	}
	if listing.SellerID == cmd.BuyerID {
		return nil, false, ErrCannotBuyOwnListing
	}
	if listing.Sold {
		return nil, false, ErrListingSold
	}
	if !listing.Listed {
		return nil, false, ErrListingNotListed
	}
	if _, err := s.Users.ByID(ctx, listing.SellerID); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, false, ErrSellerNotFound
		}
		return nil, false, err
	}

	now := s.Now().UTC()
	var order *domain.Order
	err = repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		if err := s.Ledger.WithTx(tx).TryReserve(ctx, listing.ID, cmd.Quantity); err != nil {
			return err
		}

		seller, err := s.Users.WithTx(tx).ByID(ctx, listing.SellerID)
		if errors.Is(err, repos.ErrNotFound) {
			return ErrSellerNotFound
		}
		if err != nil {
			return err
		}

		total := listing.Price.Mul(decimal.NewFromInt(int64(cmd.Quantity)))
		rate, commission := s.Commission.Compute(total, seller.IsPremiumAt(now))

		orders := s.Orders.WithTx(tx)
		id, err := orders.Create(ctx, domain.Order{
			BuyerID:          cmd.BuyerID,
			SellerID:         listing.SellerID,
			ListingID:        listing.ID,
			Quantity:         cmd.Quantity,
			TotalAmount:      total,
			CommissionRate:   rate,
			CommissionAmount: commission,
			PaymentMethodRef: cmd.PaymentMethodRef,
			RequestKey:       cmd.RequestKey,
			Status:           domain.StatusInProgress,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
		if err != nil {
			return err
		}
		order, err = orders.Get(ctx, id)
		return err
	})
	switch {
	case errors.Is(err, repos.ErrDuplicateRequest):
		// A concurrent request with the same key won; hand back its order.
		prior, lookupErr := s.Orders.ByRequestKey(ctx, cmd.BuyerID, cmd.RequestKey)
		if lookupErr != nil {
			return nil, false, lookupErr
		}
		return s.replay(ctx, prior, cmd)
	case errors.Is(err, ErrInsufficientStock):
		return nil, false, err
	case err != nil:
		return nil, false, fmt.Errorf("place order: %w", err)
	}

	s.Log.Info("order.placed",
		zap.Int64("orderId", order.ID), zap.Int64("listingId", order.ListingID),
		zap.Int64("buyerId", order.BuyerID), zap.String("total", order.TotalAmount.StringFixed(2)),
		zap.String("commission", order.CommissionAmount.StringFixed(2)))
	s.dispatchPaid(ctx, order, listing.Title)
	return order, false, nil
}

// replay returns the order an earlier request with the same key created. A
// key reused for a different listing or quantity is rejected.
func (s *OrderService) replay(ctx context.Context, o *domain.Order, cmd PlaceOrderCommand) (*domain.Order, bool, error) {
	if o.ListingID != cmd.ListingID || o.Quantity != cmd.Quantity {
		s.Log.Info("order.place.key_reused",
			zap.Int64("orderId", o.ID), zap.Int64("buyerId", cmd.BuyerID),
			zap.Int64("listingId", cmd.ListingID), zap.Int("quantity", cmd.Quantity))
		return nil, false, ErrRequestKeyReused
	}
	title := ""
	if l, err := s.Listings.Get(ctx, o.ListingID); err == nil {
		title = l.Title
	}
	s.Log.Info("order.place.replayed", zap.Int64("orderId", o.ID), zap.Int64("buyerId", o.BuyerID))
	s.dispatchPaid(ctx, o, title)
	return o, true, nil
}

func (s *OrderService) dispatchPaid(ctx context.Context, o *domain.Order, listingTitle string) {
	if s.Events == nil {
		return
	}
	s.Events.Dispatch(ctx, domain.OrderEvent{
		OrderID:        o.ID,
		ListingID:      o.ListingID,
		ListingTitle:   listingTitle,
		BuyerID:        o.BuyerID,
		SellerID:       o.SellerID,
		To:             domain.StatusInProgress,
		ActorID:        o.BuyerID,
		ActorParty:     domain.PartyBuyer,
		CounterpartyID: o.SellerID,
		OccurredAt:     o.CreatedAt,
	})
}

// Get returns an order visible to actor.
func (s *OrderService) Get(ctx context.Context, actor domain.Actor, id int64) (*domain.Order, error) {
	o, err := s.Orders.Get(ctx, id)
	if errors.Is(err, repos.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, err := partyOf(actor, o); err != nil {
		return nil, err
	}
	return o, nil
}

// ListMine returns orders the user bought or sold.
func (s *OrderService) ListMine(ctx context.Context, userID int64) ([]domain.Order, error) {
	return s.Orders.ListForUser(ctx, userID)
}

// ListLatest returns the most recent orders across the marketplace.
func (s *OrderService) ListLatest(ctx context.Context, limit int) ([]domain.Order, error) {
	return s.Orders.ListLatest(ctx, limit)
}

// UpdateStatus parses status and hands the change to the state machine.
func (s *OrderService) UpdateStatus(ctx context.Context, actor domain.Actor, id int64, status string) (*domain.Order, error) {
	target, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	return s.Transitions.Transition(ctx, actor, id, target)
}
