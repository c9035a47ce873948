// Package market aggregates per-publisher Books into a cross-publisher
// view, keyed by instrument and publisher id, and derives an aggregated
// best-bid-offer that sums contributions from every publisher quoting at
// the winning price.
package market

import (
	"sync"

	"github.com/quantfeed/mbo-gateway/internal/book"
	"github.com/quantfeed/mbo-gateway/internal/record"
)

// AggregatedLevel is the cross-publisher best price on one side and the
// summed size/count of every publisher quoting at that price.
type AggregatedLevel struct {
	Price int64  `json:"price"`
	Size  uint32 `json:"size"`
	Count uint32 `json:"count"`
}

// Market owns the instrument_id -> publisher_id -> Book hierarchy. It is
// driven by a single ingest goroutine and read by the HTTP snapshot
// surface from other goroutines. A market-wide RWMutex guards only the
// map lookups and lazy creation; the event itself is applied, and read
// back, under the target Book's own RWMutex, so a reader of one book
// does not block ingest into another.
type Market struct {
	mu    sync.RWMutex
	books map[uint32]map[uint16]*book.Book
}

// New returns an empty Market.
func New() *Market {
	return &Market{
		books: make(map[uint32]map[uint16]*book.Book),
	}
}

// Apply routes ev to the book for its (instrument_id, publisher_id) pair,
// creating both the instrument and publisher entries lazily.
func (m *Market) Apply(ev *record.MBOEvent) {
	m.mu.Lock()
	byPublisher, ok := m.books[ev.Header.InstrumentID]
	if !ok {
		byPublisher = make(map[uint16]*book.Book)
		m.books[ev.Header.InstrumentID] = byPublisher
	}
	b, ok := byPublisher[ev.Header.PublisherID]
	if !ok {
		b = book.New()
		byPublisher[ev.Header.PublisherID] = b
	}
	m.mu.Unlock()

	b.Apply(ev)
}

// Book returns the book for (instrumentID, publisherID), or nil if no
// event for that pair has been seen yet.
func (m *Market) Book(instrumentID uint32, publisherID uint16) *book.Book {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byPublisher, ok := m.books[instrumentID]
	if !ok {
		return nil
	}
	return byPublisher[publisherID]
}

// BBO returns the top-of-book for a specific (instrument, publisher)
// pair, or nils if that book doesn't exist.
func (m *Market) BBO(instrumentID uint32, publisherID uint16) (bid, ask *book.PriceLevel) {
	b := m.Book(instrumentID, publisherID)
	if b == nil {
		return nil, nil
	}
	return b.BBO()
}

// AggregatedBBO computes the cross-publisher best bid and ask for an
// instrument: the best price is the max bid / min ask across every
// publisher's book, and the size/count at that price sum every
// publisher whose own best quote sits exactly at the winning price.
// Publishers quoting off the winning price contribute nothing. A side
// with no publisher quotes at all returns nil.
func (m *Market) AggregatedBBO(instrumentID uint32) (bid, ask *AggregatedLevel) {
	m.mu.RLock()
	byPublisher, ok := m.books[instrumentID]
	if !ok {
		m.mu.RUnlock()
		return nil, nil
	}
	books := make([]*book.Book, 0, len(byPublisher))
	for _, b := range byPublisher {
		books = append(books, b)
	}
	m.mu.RUnlock()

	return aggregate(books, true), aggregate(books, false)
}

func aggregate(books []*book.Book, bidSide bool) *AggregatedLevel {
	var winning int64
	haveWinner := false

	tops := make([]*book.PriceLevel, len(books))
	for i, b := range books {
		var lvl *book.PriceLevel
		if bidSide {
			lvl = b.GetBidLevel(0)
		} else {
			lvl = b.GetAskLevel(0)
		}
		tops[i] = lvl
		if lvl == nil {
			continue
		}
		switch {
		case !haveWinner:
			winning = lvl.Price
			haveWinner = true
		case bidSide && lvl.Price > winning:
			winning = lvl.Price
		case !bidSide && lvl.Price < winning:
			winning = lvl.Price
		}
	}

	if !haveWinner {
		return nil
	}

	result := &AggregatedLevel{Price: winning}
	for _, lvl := range tops {
		if lvl == nil || lvl.Price != winning {
			continue
		}
		result.Size += lvl.Size
		result.Count += lvl.Count
	}
	return result
}
