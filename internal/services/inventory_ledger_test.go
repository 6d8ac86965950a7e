package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"tradepost/internal/testutil"
)

func TestTryReserveNeverOversells(t *testing.T) {
	f := newFixture(t)
	seller := testutil.CreateUser(t, f.db, "seller@example.com")
	const stock, callers = 5, 20
	l := testutil.CreateListing(t, f.db, seller.ID, "9.99", stock)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		reserved  int
		rejected  int
		unexpected []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := f.ledger.TryReserve(context.Background(), l.ID, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				reserved++
			case errors.Is(err, ErrInsufficientStock):
				rejected++
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, unexpected)
	require.Equal(t, stock, reserved)
	require.Equal(t, callers-stock, rejected)

	got := f.listing(t, l.ID)
	require.Equal(t, 0, got.AvailableQuantity)
	require.True(t, got.Sold)
	require.False(t, got.Listed)
}

func TestTryReserveRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	seller := testutil.CreateUser(t, f.db, "seller@example.com")
	l := testutil.CreateListing(t, f.db, seller.ID, "9.99", 2)
	ctx := context.Background()

	require.ErrorIs(t, f.ledger.TryReserve(ctx, l.ID, 0), ErrInvalidQuantity)
	require.ErrorIs(t, f.ledger.TryReserve(ctx, l.ID, 3), ErrInsufficientStock)
	require.ErrorIs(t, f.ledger.TryReserve(ctx, 4242, 1), ErrInsufficientStock)
	require.Equal(t, 2, f.listing(t, l.ID).AvailableQuantity)
}

func TestRestoreUnsellsListing(t *testing.T) {
	f := newFixture(t)
	seller := testutil.CreateUser(t, f.db, "seller@example.com")
	l := testutil.CreateListing(t, f.db, seller.ID, "9.99", 3)
	ctx := context.Background()

	require.NoError(t, f.ledger.TryReserve(ctx, l.ID, 3))
	require.True(t, f.listing(t, l.ID).Sold)

	require.NoError(t, f.ledger.Restore(ctx, l.ID, 3))
	got := f.listing(t, l.ID)
	require.Equal(t, 3, got.AvailableQuantity)
	require.False(t, got.Sold)
	require.True(t, got.Listed)

	require.ErrorIs(t, f.ledger.Restore(ctx, 4242, 1), ErrListingNotFound)
}

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t)
	seller := testutil.CreateUser(t, f.db, "seller@example.com")
	ctx := context.Background()

	cases := []struct {
		qty    int
		status string
	}{
		{7, "IN_STOCK"},
		{5, "IN_STOCK"},
		{4, "LOW_STOCK"},
		{1, "LOW_STOCK"},
	}
	for _, tc := range cases {
		l := testutil.CreateListing(t, f.db, seller.ID, "1.00", tc.qty)
		got, err := f.ledger.CheckAvailability(ctx, l.ID)
		require.NoError(t, err)
		require.Equal(t, tc.status, got.Status, "qty %d", tc.qty)
		require.Equal(t, tc.qty, got.Qty)
	}

	l := testutil.CreateListing(t, f.db, seller.ID, "1.00", 1)
	require.NoError(t, f.ledger.TryReserve(ctx, l.ID, 1))
	got, err := f.ledger.CheckAvailability(ctx, l.ID)
	require.NoError(t, err)
	require.Equal(t, "OUT_OF_STOCK", got.Status)

	_, err = f.ledger.CheckAvailability(ctx, 4242)
	require.ErrorIs(t, err, ErrListingNotFound)
}
