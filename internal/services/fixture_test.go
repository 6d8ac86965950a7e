package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"tradepost/internal/domain"
	"tradepost/internal/repos"
	"tradepost/internal/testutil"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// recordingSink remembers events and forwards them to an optional sink.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.OrderEvent
	next   EventSink
}

func (s *recordingSink) Dispatch(ctx context.Context, ev domain.OrderEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	if s.next != nil {
		s.next.Dispatch(ctx, ev)
	}
}

func (s *recordingSink) Events() []domain.OrderEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OrderEvent(nil), s.events...)
}

type fixture struct {
	db          *sqlx.DB
	listings    *repos.ListingRepo
	orders      *repos.OrderRepo
	users       *repos.UserRepo
	ledger      *InventoryLedger
	dispatcher  *NotificationDispatcher
	sink        *recordingSink
	transitions *OrderStateMachine
	placement   *OrderService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &fixture{
		db:       db,
		listings: repos.NewListingRepo(db),
		orders:   repos.NewOrderRepo(db),
		users:    repos.NewUserRepo(db),
	}
	f.ledger = NewInventoryLedger(f.listings, nil)
	f.ledger.Now = fixedClock
	f.dispatcher = NewNotificationDispatcher(db, repos.NewMessageRepo(db), repos.NewNotificationRepo(db), repos.NewOutboxRepo(db), nil)
	f.dispatcher.Now = fixedClock
	f.sink = &recordingSink{next: f.dispatcher}
	f.transitions = NewOrderStateMachine(db, f.orders, f.listings, f.ledger, f.sink, nil)
	f.transitions.Now = fixedClock
	rates := CommissionRates{
		Standard: decimal.RequireFromString("0.10"),
		Premium:  decimal.RequireFromString("0.05"),
	}
	f.placement = NewOrderService(db, f.listings, f.users, f.orders, f.ledger, rates, f.sink, f.transitions, nil)
	f.placement.Now = fixedClock
	return f
}

func (f *fixture) listing(t *testing.T, id int64) *domain.Listing {
	t.Helper()
	l, err := f.listings.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	return l
}

// placed creates buyer, seller, a listing with qty units and one order for q.
func (f *fixture) placed(t *testing.T, qty, q int) (buyer, seller *domain.User, order *domain.Order) {
	t.Helper()
	seller = testutil.CreateUser(t, f.db, "seller@example.com")
	buyer = testutil.CreateUser(t, f.db, "buyer@example.com")
	l := testutil.CreateListing(t, f.db, seller.ID, "20.00", qty)
	o, _, err := f.placement.Place(context.Background(), PlaceOrderCommand{
		BuyerID: buyer.ID, ListingID: l.ID, Quantity: q, PaymentMethodRef: "pm_card",
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	return buyer, seller, o
}
