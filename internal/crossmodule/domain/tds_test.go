package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeTDS(t *testing.T) {
	cases := []struct {
		section string
		amount  int64
		want    int64
	}{
		{"194C", 100000, 2000},
		{"194j", 100000, 10000},
		{" 194H ", 100000, 5000},
		{"194I", 100000, 10000},
		{"194Q", 100000, 100},
		{"194Q", 999, 0},
		{"", 100000, 0},
		{"195", 100000, 0},
		{"194C", -5, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ComputeTDS(tc.amount, tc.section), "%s %d", tc.section, tc.amount)
	}
}

func TestPaymentResultErr(t *testing.T) {
	assert.NoError(t, PaymentResult{}.Err())

	failure := NewBillFailure("bill_b", StageApply, ErrBillSettled)
	err := PaymentResult{Failures: []BillFailure{failure}}.Err()
	assert.ErrorIs(t, err, ErrBillSettled)
	assert.Contains(t, err.Error(), "bill_b")
	assert.Equal(t, ErrBillSettled.Error(), failure.Reason)
}
