package validate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestID(t *testing.T) {
	id, ok := ID(" 42 ")
	require.True(t, ok)
	require.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-3", "abc", "1.5", "99999999999999999999"} {
		_, ok := ID(bad)
		require.False(t, ok, bad)
	}
}

func TestQty(t *testing.T) {
	for _, n := range []int{1, 7, 50} {
		got, ok := Qty(n)
		require.True(t, ok)
		require.Equal(t, n, got)
	}
	for _, n := range []int{0, -1, 51} {
		_, ok := Qty(n)
		require.False(t, ok, n)
	}
}

func TestPaymentRefAndRequestKey(t *testing.T) {
	_, ok := PaymentRef("pm_card:visa-4242")
	require.True(t, ok)
	_, ok = PaymentRef("")
	require.False(t, ok)
	_, ok = PaymentRef("pm<script>")
	require.False(t, ok)

	key, ok := RequestKey("")
	require.True(t, ok)
	require.Empty(t, key)
	_, ok = RequestKey("7b0c3e2e-5d8f-4a43-9a0e-8c1f2f0d1e11")
	require.True(t, ok)
	_, ok = RequestKey("has space")
	require.False(t, ok)
}

func TestStatusAndDays(t *testing.T) {
	s, ok := Status(" shipped ")
	require.True(t, ok)
	require.Equal(t, "SHIPPED", s)
	_, ok = Status("")
	require.False(t, ok)

	_, ok = Days(0)
	require.False(t, ok)
	_, ok = Days(31)
	require.False(t, ok)
	_, ok = Days(30)
	require.True(t, ok)
}

func TestEmailAndPassword(t *testing.T) {
	_, ok := Email("alice@tradepost.test")
	require.True(t, ok)
	_, ok = Email("not-an-email")
	require.False(t, ok)

	require.True(t, Password("Passw0rd!"))
	require.False(t, Password("password"))
	require.False(t, Password("Sh0rt!"))
	require.False(t, Password("Passw0rdX"))
	require.False(t, Password("PASSW0RD!"))
}
