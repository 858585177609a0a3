package bookings

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalAmountBillsEveryTraveler(t *testing.T) {
	assert.Equal(t, int64(45000), TotalAmount(15000, 2, 1))
	assert.Equal(t, int64(15000), TotalAmount(15000, 1, 0))
}

func TestSplitAdvanceAddsUpToTheCent(t *testing.T) {
	for total := int64(0); total <= 10000; total += 7 {
		payable, remaining, err := Split(total, PaymentAdvance)
		require.NoError(t, err)
		if payable+remaining != total {
			t.Fatalf("split of %d does not add up: %d + %d", total, payable, remaining)
		}
		want := (total*40 + 50) / 100
		if payable != want {
			t.Fatalf("advance of %d: got %d want %d", total, payable, want)
		}
	}
}

func TestAdvanceAmountRoundsHalfUp(t *testing.T) {
	assert.Equal(t, int64(1), AdvanceAmount(2))     // 0.8 -> 1
	assert.Equal(t, int64(1), AdvanceAmount(3))     // 1.2 -> 1
	assert.Equal(t, int64(2), AdvanceAmount(5))     // 2.0
	assert.Equal(t, int64(4), AdvanceAmount(10))    // 4.0
	assert.Equal(t, int64(18000), AdvanceAmount(45000))
	assert.Equal(t, int64(0), AdvanceAmount(0))
}

func TestSplitFull(t *testing.T) {
	payable, remaining, err := Split(45000, PaymentFull)
	require.NoError(t, err)
	assert.Equal(t, int64(45000), payable)
	assert.Equal(t, int64(0), remaining)
	assert.Equal(t, StatusPaid, StatusFor(payable, remaining))
}

func TestSplitUnknownType(t *testing.T) {
	if _, _, err := Split(100, PaymentType("half")); !errors.Is(err, ErrUnknownPaymentType) {
		t.Fatalf("expected ErrUnknownPaymentType, got %v", err)
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusPaid, StatusFor(100, 0))
	assert.Equal(t, StatusPartial, StatusFor(40, 60))
	assert.Equal(t, StatusPending, StatusFor(0, 100))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "AED 150.00", Format(15000, "aed"))
	assert.Equal(t, "USD 0.05", Format(5, "USD"))
	assert.Equal(t, "-1.50", Format(-150, ""))
}
