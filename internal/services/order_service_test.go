package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tradepost/internal/domain"
	"tradepost/internal/repos"
	"tradepost/internal/testutil"
)

func TestConcurrentPlacementSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := testutil.CreateUser(t, f.db, "premium@example.com", testutil.PremiumUntil(fixedNow.Add(30*24*time.Hour)))
	buyerA := testutil.CreateUser(t, f.db, "a@example.com")
	buyerB := testutil.CreateUser(t, f.db, "b@example.com")
	l := testutil.CreateListing(t, f.db, seller.ID, "50.00", 1)

	type result struct {
		order *domain.Order
		err   error
	}
	results := make([]result, 2)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, buyer := range []*domain.User{buyerA, buyerB} {
		wg.Add(1)
		go func(i int, buyerID int64) {
			defer wg.Done()
			<-start
			o, _, err := f.placement.Place(ctx, PlaceOrderCommand{
				BuyerID: buyerID, ListingID: l.ID, Quantity: 1, PaymentMethodRef: "pm_card",
			})
			results[i] = result{o, err}
		}(i, buyer.ID)
	}
	close(start)
	wg.Wait()

	var won *domain.Order
	lost := 0
	for _, r := range results {
		switch {
		case r.err == nil:
			require.Nil(t, won, "two orders created")
			won = r.order
		case errors.Is(r.err, ErrInsufficientStock):
			lost++
		default:
			t.Fatalf("unexpected error: %v", r.err)
		}
	}
	require.NotNil(t, won)
	require.Equal(t, 1, lost)

	require.True(t, won.TotalAmount.Equal(decimal.RequireFromString("50.00")))
	require.True(t, won.CommissionRate.Equal(decimal.RequireFromString("0.05")))
	require.True(t, won.CommissionAmount.Equal(decimal.RequireFromString("2.50")))
	require.Equal(t, domain.StatusInProgress, won.Status)

	got := f.listing(t, l.ID)
	require.Equal(t, 0, got.AvailableQuantity)
	require.True(t, got.Sold)
	require.False(t, got.Listed)

	all, err := f.orders.ListLatest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestPlacePreconditionsInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := testutil.CreateUser(t, f.db, "seller@example.com")
	buyer := testutil.CreateUser(t, f.db, "buyer@example.com")
	l := testutil.CreateListing(t, f.db, seller.ID, "10.00", 1)
	unlisted, err := f.listings.Create(ctx, domain.Listing{
		SellerID: seller.ID, Title: "hidden", Price: decimal.RequireFromString("5.00"), AvailableQuantity: 2,
	}, fixedNow)
	require.NoError(t, err)

	cmd := func(listingID, buyerID int64, qty int) PlaceOrderCommand {
		return PlaceOrderCommand{BuyerID: buyerID, ListingID: listingID, Quantity: qty, PaymentMethodRef: "pm_card"}
	}

	_, _, err = f.placement.Place(ctx, cmd(l.ID, buyer.ID, 0))
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, _, err = f.placement.Place(ctx, PlaceOrderCommand{BuyerID: buyer.ID, ListingID: l.ID, Quantity: 1})
	require.ErrorIs(t, err, ErrPaymentMethodRequired)
	_, _, err = f.placement.Place(ctx, cmd(4242, buyer.ID, 1))
	require.ErrorIs(t, err, ErrListingNotFound)
	_, _, err = f.placement.Place(ctx, cmd(l.ID, seller.ID, 1))
	require.ErrorIs(t, err, ErrCannotBuyOwnListing)
	_, _, err = f.placement.Place(ctx, cmd(unlisted, buyer.ID, 1))
	require.ErrorIs(t, err, ErrListingNotListed)
	_, _, err = f.placement.Place(ctx, cmd(l.ID, buyer.ID, 2))
	require.ErrorIs(t, err, ErrInsufficientStock)

	_, _, err = f.placement.Place(ctx, cmd(l.ID, buyer.ID, 1))
	require.NoError(t, err)
	_, _, err = f.placement.Place(ctx, cmd(l.ID, buyer.ID, 1))
	require.ErrorIs(t, err, ErrListingSold)
	require.ErrorIs(t, err, ErrInsufficientStock)

	all, err := f.orders.ListLatest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestPlaceUsesStandardRateWhenPremiumExpired(t *testing.T) {
	f := newFixture(t)
	seller := testutil.CreateUser(t, f.db, "lapsed@example.com", testutil.PremiumUntil(fixedNow.Add(-time.Hour)))
	buyer := testutil.CreateUser(t, f.db, "buyer@example.com")
	l := testutil.CreateListing(t, f.db, seller.ID, "19.99", 3)

	o, _, err := f.placement.Place(context.Background(), PlaceOrderCommand{
		BuyerID: buyer.ID, ListingID: l.ID, Quantity: 3, PaymentMethodRef: "pm_card",
	})
	require.NoError(t, err)
	require.True(t, o.TotalAmount.Equal(decimal.RequireFromString("59.97")))
	require.True(t, o.CommissionRate.Equal(decimal.RequireFromString("0.10")))
	require.True(t, o.CommissionAmount.Equal(decimal.RequireFromString("6.00")))
}

func TestPlaceWithRequestKeyIsReplayed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := testutil.CreateUser(t, f.db, "seller@example.com")
	buyer := testutil.CreateUser(t, f.db, "buyer@example.com")
	l := testutil.CreateListing(t, f.db, seller.ID, "10.00", 5)
	cmd := PlaceOrderCommand{BuyerID: buyer.ID, ListingID: l.ID, Quantity: 2, PaymentMethodRef: "pm_card", RequestKey: "req-1"}

	first, replayed, err := f.placement.Place(ctx, cmd)
	require.NoError(t, err)
	require.False(t, replayed)

	second, replayed, err := f.placement.Place(ctx, cmd)
	require.NoError(t, err)
	require.True(t, replayed)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 3, f.listing(t, l.ID).AvailableQuantity)

	// the paid message was dispatched twice but stored once
	msgs, err := f.dispatcher.Messages.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, domain.KindPaid, msgs[0].Kind)
	require.Equal(t, seller.ID, msgs[0].ReceiverID)

	notes, err := f.dispatcher.Notifications.ListForUser(ctx, seller.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "New order", notes[0].Title)
}

func TestPlaceRejectsRequestKeyReusedForAnotherOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := testutil.CreateUser(t, f.db, "seller@example.com")
	buyer := testutil.CreateUser(t, f.db, "buyer@example.com")
	first := testutil.CreateListing(t, f.db, seller.ID, "10.00", 5)
	other := testutil.CreateListing(t, f.db, seller.ID, "20.00", 5)

	_, _, err := f.placement.Place(ctx, PlaceOrderCommand{
		BuyerID: buyer.ID, ListingID: first.ID, Quantity: 1, PaymentMethodRef: "pm_card", RequestKey: "k",
	})
	require.NoError(t, err)

	for _, cmd := range []PlaceOrderCommand{
		{BuyerID: buyer.ID, ListingID: other.ID, Quantity: 3, PaymentMethodRef: "pm_card", RequestKey: "k"},
		{BuyerID: buyer.ID, ListingID: first.ID, Quantity: 2, PaymentMethodRef: "pm_card", RequestKey: "k"},
	} {
		o, replayed, err := f.placement.Place(ctx, cmd)
		require.ErrorIs(t, err, ErrRequestKeyReused)
		require.Nil(t, o)
		require.False(t, replayed)
	}

	require.Equal(t, 4, f.listing(t, first.ID).AvailableQuantity)
	require.Equal(t, 5, f.listing(t, other.ID).AvailableQuantity)
	mine, err := f.placement.ListMine(ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
}

func TestPlaceFailsCleanlyWhenSellerMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := testutil.CreateUser(t, f.db, "seller@example.com")
	buyer := testutil.CreateUser(t, f.db, "buyer@example.com")
	l := testutil.CreateListing(t, f.db, seller.ID, "10.00", 1)

	conn, err := f.db.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `PRAGMA foreign_keys = OFF`)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, seller.ID)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `PRAGMA foreign_keys = ON`)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	_, _, err = f.placement.Place(ctx, PlaceOrderCommand{BuyerID: buyer.ID, ListingID: l.ID, Quantity: 1, PaymentMethodRef: "pm"})
	require.ErrorIs(t, err, ErrSellerNotFound)
	require.Equal(t, 1, f.listing(t, l.ID).AvailableQuantity)

	_, err = f.orders.ByRequestKey(ctx, buyer.ID, "none")
	require.ErrorIs(t, err, repos.ErrNotFound)
}
