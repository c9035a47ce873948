package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/mbo-gateway/internal/record"
)

func add(orderID uint64, side byte, price int64, size uint32) *record.MBOEvent {
	return &record.MBOEvent{
		OrderID: orderID,
		Action:  record.ActionAdd,
		Side:    side,
		Price:   price,
		Size:    size,
	}
}

func cancel(orderID uint64, side byte, price int64, size uint32) *record.MBOEvent {
	return &record.MBOEvent{
		OrderID: orderID,
		Action:  record.ActionCancel,
		Side:    side,
		Price:   price,
		Size:    size,
	}
}

func modify(orderID uint64, side byte, price int64, size uint32) *record.MBOEvent {
	return &record.MBOEvent{
		OrderID: orderID,
		Action:  record.ActionModify,
		Side:    side,
		Price:   price,
		Size:    size,
	}
}

// Scenario: single add/cancel round-trip restores the pre-state.
func TestAddCancelRoundTrip(t *testing.T) {
	b := New()
	b.Apply(add(1, record.SideBid, 100, 10))
	bid, _ := b.BBO()
	require.NotNil(t, bid)
	assert.Equal(t, int64(100), bid.Price)
	assert.Equal(t, uint32(10), bid.Size)

	b.Apply(cancel(1, record.SideBid, 100, 10))
	bid, _ = b.BBO()
	assert.Nil(t, bid)
	assert.Nil(t, b.GetOrder(1))
}

// Scenario: price-time FIFO is preserved within a level.
func TestFIFOWithinLevel(t *testing.T) {
	b := New()
	b.Apply(add(1, record.SideBid, 100, 5))
	b.Apply(add(2, record.SideBid, 100, 7))
	lvl := b.GetBidLevel(0)
	require.NotNil(t, lvl)
	assert.Equal(t, uint32(12), lvl.Size)
	assert.Equal(t, uint32(2), lvl.Count)

	o1 := b.GetOrder(1)
	o2 := b.GetOrder(2)
	require.NotNil(t, o1)
	require.NotNil(t, o2)

	// Orders at the level are kept in arrival order.
	assert.Equal(t, []uint64{1, 2}, b.bids.levels[100].orders)
}

// Scenario: modify across price moves the order to the new level and
// removes the emptied old level.
func TestModifyAcrossPrice(t *testing.T) {
	b := New()
	b.Apply(add(1, record.SideBid, 100, 5))
	b.Apply(modify(1, record.SideBid, 105, 8))

	assert.Nil(t, b.GetBidLevel(1)) // old level gone
	lvl := b.GetBidLevel(0)
	require.NotNil(t, lvl)
	assert.Equal(t, int64(105), lvl.Price)
	assert.Equal(t, uint32(8), lvl.Size)

	ord := b.GetOrder(1)
	require.NotNil(t, ord)
	assert.Equal(t, int64(105), ord.Price)
	assert.Equal(t, uint32(8), ord.Size)
}

// Unknown order id on MODIFY is treated as ADD.
func TestModifyUnknownOrderTreatedAsAdd(t *testing.T) {
	b := New()
	b.Apply(modify(7, record.SideAsk, 200, 3))
	ord := b.GetOrder(7)
	require.NotNil(t, ord)
	assert.Equal(t, int64(200), ord.Price)
}

// Scenario: partial cancel decrements size without removing the order;
// cancel size greater than stored size is left unchanged.
func TestPartialCancel(t *testing.T) {
	b := New()
	b.Apply(add(1, record.SideBid, 100, 10))
	b.Apply(cancel(1, record.SideBid, 100, 4))

	ord := b.GetOrder(1)
	require.NotNil(t, ord)
	assert.Equal(t, uint32(6), ord.Size)

	// Oversized cancel: left unchanged, no underflow.
	b.Apply(cancel(1, record.SideBid, 100, 100))
	ord = b.GetOrder(1)
	require.NotNil(t, ord)
	assert.Equal(t, uint32(6), ord.Size)
}

func TestCancelUnknownOrderDropped(t *testing.T) {
	b := New()
	b.Apply(cancel(99, record.SideBid, 100, 1))
	assert.Nil(t, b.GetOrder(99))
}

// Scenario: side clear via TOB event carrying the undefined price.
func TestTOBUndefinedPriceClearsSide(t *testing.T) {
	b := New()
	b.Apply(add(1, record.SideBid, 100, 10))
	b.Apply(add(2, record.SideBid, 90, 5))

	clearEv := &record.MBOEvent{
		Action: record.ActionAdd,
		Side:   record.SideBid,
		Price:  record.UndefinedPrice,
		Flags:  record.FlagTOB,
	}
	b.Apply(clearEv)

	bid, _ := b.BBO()
	assert.Nil(t, bid)
	// Pre-existing id-indexed orders on that side are untouched by TOB.
	assert.NotNil(t, b.GetOrder(1))
	assert.NotNil(t, b.GetOrder(2))
}

func TestUndefinedPriceWithoutTOBDropped(t *testing.T) {
	b := New()
	b.Apply(add(1, record.SideBid, 100, 10))
	malformed := &record.MBOEvent{
		Action: record.ActionAdd,
		Side:   record.SideBid,
		Price:  record.UndefinedPrice,
	}
	b.Apply(malformed)

	bid, _ := b.BBO()
	require.NotNil(t, bid)
	assert.Equal(t, int64(100), bid.Price)
}

func TestTOBAddReplacesSideAndExcludesFromOrderIndex(t *testing.T) {
	b := New()
	tob := &record.MBOEvent{
		OrderID: 0,
		Action:  record.ActionAdd,
		Side:    record.SideAsk,
		Price:   50,
		Size:    20,
		Flags:   record.FlagTOB,
	}
	b.Apply(tob)

	lvl := b.GetAskLevel(0)
	require.NotNil(t, lvl)
	assert.Equal(t, uint32(20), lvl.Size)
	assert.Equal(t, uint32(0), lvl.Count) // TOB orders don't count
	assert.Nil(t, b.GetOrder(0))
}

func TestClearWipesEverything(t *testing.T) {
	b := New()
	b.Apply(add(1, record.SideBid, 100, 10))
	b.Apply(add(2, record.SideAsk, 110, 10))
	b.Apply(&record.MBOEvent{Action: record.ActionClear})

	bid, ask := b.BBO()
	assert.Nil(t, bid)
	assert.Nil(t, ask)
	assert.Nil(t, b.GetOrder(1))
	assert.Nil(t, b.GetOrder(2))
}

func TestInformationalActionsAreNoOps(t *testing.T) {
	b := New()
	b.Apply(add(1, record.SideBid, 100, 10))
	for _, a := range []byte{record.ActionTrade, record.ActionFill, record.ActionNone} {
		b.Apply(&record.MBOEvent{Action: a, Side: record.SideBid, Price: 999, OrderID: 2, Size: 1})
	}
	bid, _ := b.BBO()
	require.NotNil(t, bid)
	assert.Equal(t, int64(100), bid.Price)
	assert.Nil(t, b.GetOrder(2))
}

func TestGetSnapshotZeroFillsShallowSide(t *testing.T) {
	b := New()
	b.Apply(add(1, record.SideBid, 100, 10))
	rows := b.GetSnapshot(3)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(100), rows[0].BidPrice)
	assert.Equal(t, int64(0), rows[0].AskPrice)
	assert.Equal(t, int64(0), rows[1].BidPrice)
}

func TestGetDepthIndependentPerSide(t *testing.T) {
	b := New()
	b.Apply(add(1, record.SideBid, 100, 10))
	b.Apply(add(2, record.SideBid, 99, 5))
	b.Apply(add(3, record.SideAsk, 101, 7))

	bids, asks := b.GetDepth(5)
	assert.Len(t, bids, 2)
	assert.Len(t, asks, 1)
	assert.Equal(t, int64(100), bids[0].Price)
	assert.Equal(t, int64(99), bids[1].Price)
}

func TestBestBidHighestBestAskLowest(t *testing.T) {
	b := New()
	b.Apply(add(1, record.SideBid, 100, 1))
	b.Apply(add(2, record.SideBid, 105, 1))
	b.Apply(add(3, record.SideAsk, 110, 1))
	b.Apply(add(4, record.SideAsk, 108, 1))

	bid, ask := b.BBO()
	require.NotNil(t, bid)
	require.NotNil(t, ask)
	assert.Equal(t, int64(105), bid.Price)
	assert.Equal(t, int64(108), ask.Price)
}

func TestUnrecognizedSideIsNoOp(t *testing.T) {
	b := New()
	ev := &record.MBOEvent{Action: record.ActionAdd, Side: record.SideNone, Price: 100, Size: 1, OrderID: 1}
	b.Apply(ev)
	bid, ask := b.BBO()
	assert.Nil(t, bid)
	assert.Nil(t, ask)
}
