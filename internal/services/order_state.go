package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"tradepost/internal/domain"
	"tradepost/internal/repos"
)

type actorMask uint8

const (
	byBuyer actorMask = 1 << iota
	bySeller

	byEither = byBuyer | bySeller
)

// orderTransitions maps from-status to the reachable statuses and who may
// move the order there. Anything absent is an invalid transition.
var orderTransitions = map[domain.OrderStatus]map[domain.OrderStatus]actorMask{
	domain.StatusInProgress: {
		domain.StatusToShip:    bySeller,
		domain.StatusShipped:   bySeller,
		domain.StatusCancelled: byEither,
		domain.StatusCompleted: byEither,
		domain.StatusReviewed:  byEither,
	},
	domain.StatusToShip: {
		domain.StatusShipped:   bySeller,
		domain.StatusCancelled: byEither,
		domain.StatusCompleted: byEither,
		domain.StatusReviewed:  byEither,
	},
	domain.StatusShipped: {
		domain.StatusDelivered: bySeller,
		domain.StatusCompleted: byEither,
		domain.StatusReviewed:  byEither,
	},
	domain.StatusDelivered: {
		domain.StatusReceived:  byBuyer,
		domain.StatusCompleted: byEither,
		domain.StatusReviewed:  byEither,
	},
	domain.StatusReceived: {
		domain.StatusCompleted: byEither,
		domain.StatusReviewed:  byEither,
	},
}

// statuses past which an order can no longer be cancelled
var shippedOrLater = map[domain.OrderStatus]bool{
	domain.StatusShipped:   true,
	domain.StatusDelivered: true,
	domain.StatusReceived:  true,
	domain.StatusCompleted: true,
	domain.StatusReviewed:  true,
}

func maskFor(p domain.Party) actorMask {
	if p == domain.PartyBuyer {
		return byBuyer
	}
	return bySeller
}

// checkTransition validates from -> to for the given party and returns the
// party the change is made as. An empty party means an admin, who may act
// for either side.
func checkTransition(from, to domain.OrderStatus, party domain.Party) (domain.Party, error) {
	if to == domain.StatusCancelled && shippedOrLater[from] {
		return "", ErrCannotCancelAfterShipping
	}
	allowed, ok := orderTransitions[from][to]
	if !ok {
		return "", fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	if party == "" {
		if allowed == byBuyer {
			return domain.PartyBuyer, nil
		}
		return domain.PartySeller, nil
	}
	if allowed&maskFor(party) == 0 {
		return "", fmt.Errorf("%w: only the %s can move an order to %s", ErrNotAuthorized, otherParty(party), to)
	}
	return party, nil
}

func otherParty(p domain.Party) domain.Party {
	if p == domain.PartyBuyer {
		return domain.PartySeller
	}
	return domain.PartyBuyer
}

// partyOf returns the side actor acts for, or "" for an admin who is not a
// party to the order.
func partyOf(actor domain.Actor, o *domain.Order) (domain.Party, error) {
	switch {
	case actor.UserID == o.BuyerID:
		return domain.PartyBuyer, nil
	case actor.UserID == o.SellerID:
		return domain.PartySeller, nil
	case actor.IsAdmin():
		return "", nil
	}
	return "", ErrNotOrderParty
}

// EventSink receives order events after their transaction commits.
type EventSink interface {
	Dispatch(ctx context.Context, ev domain.OrderEvent)
}

// OrderStateMachine drives an order through its lifecycle.
type OrderStateMachine struct {
	DB       *sqlx.DB
	Orders   *repos.OrderRepo
	Listings *repos.ListingRepo
	Ledger   *InventoryLedger
	Events   EventSink
	Log      *zap.Logger
	Now      func() time.Time
}

func NewOrderStateMachine(db *sqlx.DB, orders *repos.OrderRepo, listings *repos.ListingRepo,
	ledger *InventoryLedger, events EventSink, log *zap.Logger) *OrderStateMachine {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderStateMachine{DB: db, Orders: orders, Listings: listings, Ledger: ledger, Events: events, Log: log, Now: time.Now}
}

// Transition moves the order to target on behalf of actor. The status write
// and its inventory side effects commit together; the notification event is
// handed to the sink afterwards.
func (m *OrderStateMachine) Transition(ctx context.Context, actor domain.Actor, orderID int64, target domain.OrderStatus) (*domain.Order, error) {
	var (
		updated *domain.Order
		ev      domain.OrderEvent
	)
	now := m.Now().UTC()

	err := repos.InTx(ctx, m.DB, func(tx *sqlx.Tx) error {
		orders := m.Orders.WithTx(tx)
		o, err := orders.Get(ctx, orderID)
		if errors.Is(err, repos.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}

		party, err := partyOf(actor, o)
		if err != nil {
			return err
		}
		actedAs, err := checkTransition(o.Status, target, party)
		if err != nil {
			return err
		}

		ok, err := orders.UpdateStatus(ctx, o.ID, o.Status, target, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrTransitionConflict
		}

		ledger := m.Ledger.WithTx(tx)
		switch {
		case target == domain.StatusCancelled:
			if err := ledger.Restore(ctx, o.ListingID, o.Quantity); err != nil {
				return fmt.Errorf("restore stock: %w", err)
			}
		case target.Settles():
			first, err := orders.MarkSettled(ctx, o.ID, now)
			if err != nil {
				return err
			}
			if first {
				if err := ledger.ConfirmSoldOut(ctx, o.ListingID); err != nil {
					return fmt.Errorf("confirm sold out: %w", err)
				}
			}
		}

		listing, err := m.Listings.WithTx(tx).Get(ctx, o.ListingID)
		if err != nil {
			return err
		}
		if updated, err = orders.Get(ctx, o.ID); err != nil {
			return err
		}

		ev = domain.OrderEvent{
			OrderID:      o.ID,
			ListingID:    o.ListingID,
			ListingTitle: listing.Title,
			BuyerID:      o.BuyerID,
			SellerID:     o.SellerID,
			From:         o.Status,
			To:           target,
			ActorID:      actor.UserID,
			ActorParty:   actedAs,
			OccurredAt:   now,
		}
		if actedAs == domain.PartyBuyer {
			ev.CounterpartyID = o.SellerID
		} else {
			ev.CounterpartyID = o.BuyerID
		}
		return nil
	})
	if err != nil {
		if isRejection(err) {
			m.Log.Info("order.transition.rejected",
				zap.Int64("orderId", orderID), zap.Int64("actorId", actor.UserID),
				zap.String("to", string(target)), zap.String("reason", err.Error()))
		}
		return nil, err
	}

	m.Log.Info("order.transition",
		zap.Int64("orderId", orderID), zap.Int64("actorId", actor.UserID),
		zap.String("from", string(ev.From)), zap.String("to", string(ev.To)))
	if m.Events != nil {
		m.Events.Dispatch(ctx, ev)
	}
	return updated, nil
}

func isRejection(err error) bool {
	for _, target := range []error{
		ErrOrderNotFound, ErrNotOrderParty, ErrNotAuthorized,
		ErrInvalidTransition, ErrCannotCancelAfterShipping, ErrTransitionConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
