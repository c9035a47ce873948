package record

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPriceToDecimal(t *testing.T) {
	assert.True(t, decimal.New(123, -9).Equal(PriceToDecimal(123)))
	assert.True(t, decimal.Zero.Equal(PriceToDecimal(UndefinedPrice)))
}

func TestEventDecimalPrice(t *testing.T) {
	ev := MBOEvent{Price: 1_500_000_000}
	assert.Equal(t, "1.5", ev.DecimalPrice().String())
}
