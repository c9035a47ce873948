package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/mbo-gateway/internal/record"
)

func addEv(instrument uint32, publisher uint16, orderID uint64, side byte, price int64, size uint32) *record.MBOEvent {
	return &record.MBOEvent{
		Header: record.Header{InstrumentID: instrument, PublisherID: publisher},
		OrderID: orderID,
		Action:  record.ActionAdd,
		Side:    side,
		Price:   price,
		Size:    size,
	}
}

func TestApplyRoutesByInstrumentAndPublisher(t *testing.T) {
	m := New()
	m.Apply(addEv(1, 10, 1, record.SideBid, 100, 5))
	m.Apply(addEv(1, 20, 2, record.SideBid, 200, 5))
	m.Apply(addEv(2, 10, 3, record.SideBid, 300, 5))

	bid, _ := m.BBO(1, 10)
	require.NotNil(t, bid)
	assert.Equal(t, int64(100), bid.Price)

	bid, _ = m.BBO(1, 20)
	require.NotNil(t, bid)
	assert.Equal(t, int64(200), bid.Price)

	bid, _ = m.BBO(2, 10)
	require.NotNil(t, bid)
	assert.Equal(t, int64(300), bid.Price)
}

func TestBBOUnknownBookReturnsNil(t *testing.T) {
	m := New()
	bid, ask := m.BBO(99, 1)
	assert.Nil(t, bid)
	assert.Nil(t, ask)
}

// Scenario: aggregated BBO across two publishers sums contributions only
// at the winning price.
func TestAggregatedBBOAcrossPublishers(t *testing.T) {
	m := New()
	m.Apply(addEv(1, 10, 1, record.SideBid, 100, 5))
	m.Apply(addEv(1, 20, 2, record.SideBid, 100, 7))
	m.Apply(addEv(1, 30, 3, record.SideBid, 95, 100)) // off the winning price

	bid, _ := m.AggregatedBBO(1)
	require.NotNil(t, bid)
	assert.Equal(t, int64(100), bid.Price)
	assert.Equal(t, uint32(12), bid.Size)
	assert.Equal(t, uint32(2), bid.Count)
}

func TestAggregatedBBOAskPicksMinPrice(t *testing.T) {
	m := New()
	m.Apply(addEv(1, 10, 1, record.SideAsk, 105, 5))
	m.Apply(addEv(1, 20, 2, record.SideAsk, 102, 3))

	_, ask := m.AggregatedBBO(1)
	require.NotNil(t, ask)
	assert.Equal(t, int64(102), ask.Price)
	assert.Equal(t, uint32(3), ask.Size)
}

func TestAggregatedBBONoQuotesReturnsNil(t *testing.T) {
	m := New()
	bid, ask := m.AggregatedBBO(123)
	assert.Nil(t, bid)
	assert.Nil(t, ask)
}
