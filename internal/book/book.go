// Package book reconstructs a per-publisher order book from a stream of
// MBO events. It keeps the dual index described by the feed: an
// order_id-keyed index for O(1) lookup/cancel/modify, and price-ordered
// levels that preserve arrival order within a level for FIFO reporting.
//
// There is no ordered-map or B-tree type anywhere in the dependency set
// this package draws on, so price levels are kept in a plain map plus a
// maintained sorted slice of keys searched with sort.Search. That keeps
// Apply at O(log levels) for the index walk and O(1) amortized for the
// common append/remove-last cases.
package book

import (
	"sort"
	"sync"

	"github.com/quantfeed/mbo-gateway/internal/record"
)

// PriceLevel is a read-only view of one price level: its aggregate size
// and the number of contributing (non-TOB) orders.
type PriceLevel struct {
	Price int64  `json:"price"`
	Size  uint32 `json:"size"`
	Count uint32 `json:"count"`
}

// BidAskPair is a single flattened depth row, zero-filled on the side
// that runs out first.
type BidAskPair struct {
	BidPrice int64  `json:"bid_px"`
	BidSize  uint32 `json:"bid_sz"`
	BidCount uint32 `json:"bid_ct"`
	AskPrice int64  `json:"ask_px"`
	AskSize  uint32 `json:"ask_sz"`
	AskCount uint32 `json:"ask_ct"`
}

// levelOrders is one price level's FIFO list of contributing orders,
// with the events keyed internally by order_id for O(1) lookup; removing
// an order scans the arrival-order list to find its position.
type levelOrders struct {
	price  int64
	tob    bool // level holds a single synthetic TOB overlay order
	orders []uint64 // arrival order, order_id
	byID   map[uint64]*record.MBOEvent
}

func newLevelOrders(price int64) *levelOrders {
	return &levelOrders{
		price: price,
		byID:  make(map[uint64]*record.MBOEvent),
	}
}

func (l *levelOrders) size() uint32 {
	var total uint32
	for _, oid := range l.orders {
		total += l.byID[oid].Size
	}
	return total
}

func (l *levelOrders) append(ev *record.MBOEvent) {
	l.orders = append(l.orders, ev.OrderID)
	l.byID[ev.OrderID] = ev
}

func (l *levelOrders) remove(orderID uint64) {
	delete(l.byID, orderID)
	for i, oid := range l.orders {
		if oid == orderID {
			l.orders = append(l.orders[:i], l.orders[i+1:]...)
			return
		}
	}
}

func (l *levelOrders) empty() bool {
	return len(l.orders) == 0
}

// side holds one side (bid or ask) of a Book: a sorted key slice plus the
// map of levels it indexes. higherIsBetter controls sort order and best()
// direction: true for bids (highest price first), false for asks.
type side struct {
	higherIsBetter bool
	keys           []int64
	levels         map[int64]*levelOrders
}

func newSide(higherIsBetter bool) *side {
	return &side{
		higherIsBetter: higherIsBetter,
		levels:         make(map[int64]*levelOrders),
	}
}

// search returns the index in keys where price is, or where it would be
// inserted to preserve order (best price at index 0).
func (s *side) search(price int64) int {
	if s.higherIsBetter {
		return sort.Search(len(s.keys), func(i int) bool { return s.keys[i] <= price })
	}
	return sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= price })
}

func (s *side) get(price int64) (*levelOrders, bool) {
	lvl, ok := s.levels[price]
	return lvl, ok
}

func (s *side) getOrCreate(price int64) *levelOrders {
	if lvl, ok := s.levels[price]; ok {
		return lvl
	}
	lvl := newLevelOrders(price)
	s.levels[price] = lvl
	idx := s.search(price)
	s.keys = append(s.keys, 0)
	copy(s.keys[idx+1:], s.keys[idx:])
	s.keys[idx] = price
	return lvl
}

func (s *side) removeIfEmpty(price int64) {
	lvl, ok := s.levels[price]
	if !ok || !lvl.empty() {
		return
	}
	delete(s.levels, price)
	idx := s.search(price)
	if idx < len(s.keys) && s.keys[idx] == price {
		s.keys = append(s.keys[:idx], s.keys[idx+1:]...)
	}
}

func (s *side) clear() {
	s.keys = nil
	s.levels = make(map[int64]*levelOrders)
}

// atDepth returns the i-th level from the top (0 = best), or nil past the
// end of the book.
func (s *side) atDepth(i int) *levelOrders {
	if i < 0 || i >= len(s.keys) {
		return nil
	}
	return s.levels[s.keys[i]]
}

// replaceWithSingle clears the side and installs a single TOB level.
func (s *side) replaceWithSingle(ev *record.MBOEvent) {
	s.clear()
	lvl := newLevelOrders(ev.Price)
	lvl.tob = true
	lvl.orders = append(lvl.orders, ev.OrderID)
	lvl.byID[ev.OrderID] = ev
	s.levels[ev.Price] = lvl
	s.keys = []int64{ev.Price}
}

// Book reconstructs one publisher's view of one instrument's order book.
type Book struct {
	mu        sync.RWMutex
	ordersByID map[uint64]*record.MBOEvent
	bids       *side
	offers     *side
}

// New returns an empty Book.
func New() *Book {
	return &Book{
		ordersByID: make(map[uint64]*record.MBOEvent),
		bids:       newSide(true),
		offers:     newSide(false),
	}
}

func (b *Book) sideFor(s byte) *side {
	if s == record.SideBid {
		return b.bids
	}
	return b.offers
}

// Apply advances the book's state by one MBO event, following the
// transition rules in strict order: informational actions are no-ops,
// CLEAR wipes all state, an unrecognized side is a no-op, an undefined
// price carrying the TOB flag clears that side, and otherwise the event
// dispatches on its action.
func (b *Book) Apply(ev *record.MBOEvent) {
	if ev.IsInformational() {
		return
	}
	if ev.Action == record.ActionClear {
		b.mu.Lock()
		b.ordersByID = make(map[uint64]*record.MBOEvent)
		b.bids.clear()
		b.offers.clear()
		b.mu.Unlock()
		return
	}
	if !ev.IsBookSide() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if ev.HasUndefinedPrice() {
		if ev.IsTOB() {
			b.sideFor(ev.Side).clear()
		}
		// Malformed: undefined price without the TOB flag. Dropped.
		return
	}

	switch ev.Action {
	case record.ActionAdd:
		b.applyAdd(ev)
	case record.ActionCancel:
		b.applyCancel(ev)
	case record.ActionModify:
		b.applyModify(ev)
	}
}

func (b *Book) applyAdd(ev *record.MBOEvent) {
	stored := ev.Clone()
	if ev.IsTOB() {
		b.sideFor(ev.Side).replaceWithSingle(&stored)
		return
	}
	b.ordersByID[ev.OrderID] = &stored
	s := b.sideFor(ev.Side)
	lvl := s.getOrCreate(ev.Price)
	lvl.append(&stored)
}

func (b *Book) applyCancel(ev *record.MBOEvent) {
	existing, ok := b.ordersByID[ev.OrderID]
	if !ok {
		return // unknown order id: dropped silently
	}
	if existing.Size < ev.Size {
		return // would underflow: left unchanged
	}
	existing.Size -= ev.Size
	if existing.Size == 0 {
		s := b.sideFor(existing.Side)
		if lvl, ok := s.get(existing.Price); ok {
			lvl.remove(existing.OrderID)
			s.removeIfEmpty(existing.Price)
		}
		delete(b.ordersByID, ev.OrderID)
	}
}

func (b *Book) applyModify(ev *record.MBOEvent) {
	existing, ok := b.ordersByID[ev.OrderID]
	if !ok {
		// Unknown order id on MODIFY is treated as ADD.
		b.applyAdd(ev)
		return
	}

	oldSide := b.sideFor(existing.Side)
	if lvl, ok := oldSide.get(existing.Price); ok {
		lvl.remove(existing.OrderID)
		oldSide.removeIfEmpty(existing.Price)
	}

	stored := ev.Clone()
	newSideObj := b.sideFor(ev.Side)
	newLevel := newSideObj.getOrCreate(ev.Price)
	// Queue position is not preserved across a modify, even when the
	// price is unchanged: the event is always re-appended.
	newLevel.append(&stored)
	b.ordersByID[ev.OrderID] = &stored
}

// BBO returns the top level of each side, or nil if that side is empty.
func (b *Book) BBO() (bid, ask *PriceLevel) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return levelView(b.bids.atDepth(0)), levelView(b.offers.atDepth(0))
}

// GetBidLevel returns the i-th bid level from the top (0 = best).
func (b *Book) GetBidLevel(i int) *PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return levelView(b.bids.atDepth(i))
}

// GetAskLevel returns the i-th ask level from the top (0 = best).
func (b *Book) GetAskLevel(i int) *PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return levelView(b.offers.atDepth(i))
}

// GetOrder returns the live event for orderID, or nil if it isn't resting
// in the book (never added, fully canceled, or never seen).
func (b *Book) GetOrder(orderID uint64) *record.MBOEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ev, ok := b.ordersByID[orderID]
	if !ok {
		return nil
	}
	clone := ev.Clone()
	return &clone
}

// GetSnapshot returns n rows of flattened bid/ask pairs, top of book
// first, zero-filled once a side runs out of levels.
func (b *Book) GetSnapshot(n int) []BidAskPair {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows := make([]BidAskPair, n)
	for i := 0; i < n; i++ {
		if bid := b.bids.atDepth(i); bid != nil {
			rows[i].BidPrice = bid.price
			rows[i].BidSize = bid.size()
			rows[i].BidCount = countNonTOB(bid)
		}
		if ask := b.offers.atDepth(i); ask != nil {
			rows[i].AskPrice = ask.price
			rows[i].AskSize = ask.size()
			rows[i].AskCount = countNonTOB(ask)
		}
	}
	return rows
}

// GetDepth returns up to n PriceLevels per side, independently sized: a
// side shorter than n simply returns fewer levels, unlike GetSnapshot.
func (b *Book) GetDepth(n int) (bids, asks []PriceLevel) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i := 0; i < n; i++ {
		lvl := b.bids.atDepth(i)
		if lvl == nil {
			break
		}
		bids = append(bids, *levelView(lvl))
	}
	for i := 0; i < n; i++ {
		lvl := b.offers.atDepth(i)
		if lvl == nil {
			break
		}
		asks = append(asks, *levelView(lvl))
	}
	return bids, asks
}

func levelView(lvl *levelOrders) *PriceLevel {
	if lvl == nil {
		return nil
	}
	return &PriceLevel{
		Price: lvl.price,
		Size:  lvl.size(),
		Count: countNonTOB(lvl),
	}
}

// countNonTOB counts orders that are indexed by order_id: a TOB overlay
// level holds exactly one synthetic order that was never added to
// ordersByID, so it contributes size but not to the order count.
func countNonTOB(lvl *levelOrders) uint32 {
	if lvl.tob {
		return 0
	}
	return uint32(len(lvl.orders))
}
