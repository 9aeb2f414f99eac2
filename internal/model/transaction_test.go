package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionSigned(t *testing.T) {
	amt := decimal.RequireFromString("12.50")

	credit := Transaction{Direction: Credit, Amount: amt}
	debit := Transaction{Direction: Debit, Amount: amt}

	assert.Equal(t, "12.5", credit.Signed().String())
	assert.Equal(t, "-12.5", debit.Signed().String())
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in   string
		want Direction
	}{
		{"credit", Credit},
		{"CREDITED", Credit},
		{" cr ", Credit},
		{"Debit", Debit},
		{"debited", Debit},
		{"DR", Debit},
	}
	for _, tt := range tests {
		got, err := ParseDirection(tt.in)
		require.NoError(t, err, "ParseDirection(%q)", tt.in)
		assert.Equal(t, tt.want, got, "ParseDirection(%q)", tt.in)
	}

	_, err := ParseDirection("sideways")
	assert.Error(t, err)
}

func TestMessageHasSender(t *testing.T) {
	assert.False(t, Message{Body: "x"}.HasSender())
	assert.True(t, Message{Sender: "VM-SBIINB", Body: "x"}.HasSender())
}
