// Package record defines the wire-level value types shared by the book
// engine, the tail cache, and the fan-out broadcaster: the MBO record
// header and event, and the small set of predicates callers use to
// interpret the action/side/flag encodings.
package record

import (
	"math"

	"github.com/shopspring/decimal"
)

// UndefinedPrice is the sentinel fixed-point price denoting "no price".
const UndefinedPrice int64 = math.MaxInt64

// PriceScale is the fixed-point scale of Price: 10^9.
const PriceScale = 1_000_000_000

// Flag bits within MBOEvent.Flags.
const (
	FlagLast uint8 = 1 << 7 // last event in the packet/batch
	FlagTOB  uint8 = 1 << 6 // top-of-book overlay
)

// Action byte values, ASCII-encoded per the feed's wire format.
const (
	ActionAdd    byte = 'A'
	ActionCancel byte = 'C'
	ActionModify byte = 'M'
	ActionClear  byte = 'R'
	ActionTrade  byte = 'T'
	ActionFill   byte = 'F'
	ActionNone   byte = 'N'
)

// Side byte values.
const (
	SideAsk  byte = 'A'
	SideBid  byte = 'B'
	SideNone byte = 'N'
)

// Header is the record header common to every MBO event.
type Header struct {
	RType        uint8  `json:"rtype"`
	PublisherID  uint16 `json:"publisher_id"`
	InstrumentID uint32 `json:"instrument_id"`
	TsEvent      uint64 `json:"ts_event"`
}

// MBOEvent is a single Market-By-Order record.
type MBOEvent struct {
	Header    Header `json:"hd"`
	OrderID   uint64 `json:"order_id"`
	Price     int64  `json:"price"`
	Size      uint32 `json:"size"`
	Flags     uint8  `json:"flags"`
	ChannelID uint8  `json:"channel_id"`
	Action    byte   `json:"action"`
	Side      byte   `json:"side"`
	TsRecv    uint64 `json:"ts_recv"`
	TsInDelta int32  `json:"ts_in_delta"`
	Sequence  uint32 `json:"sequence"`
}

// IsTOB reports whether the event carries the top-of-book overlay flag.
func (e *MBOEvent) IsTOB() bool {
	return e.Flags&FlagTOB != 0
}

// IsLast reports whether the event is flagged as the last in its batch.
func (e *MBOEvent) IsLast() bool {
	return e.Flags&FlagLast != 0
}

// HasUndefinedPrice reports whether Price is the undefined-price sentinel.
func (e *MBOEvent) HasUndefinedPrice() bool {
	return e.Price == UndefinedPrice
}

// IsInformational reports whether the action is trade/fill/none, which the
// book engine treats as a pure no-op.
func (e *MBOEvent) IsInformational() bool {
	switch e.Action {
	case ActionTrade, ActionFill, ActionNone:
		return true
	default:
		return false
	}
}

// IsBookSide reports whether Side names one of the two book sides.
func (e *MBOEvent) IsBookSide() bool {
	return e.Side == SideBid || e.Side == SideAsk
}

// Clone returns a value copy of the event, used where the book needs to
// store the event independently of the caller's buffer.
func (e MBOEvent) Clone() MBOEvent {
	return e
}

// DecimalPrice renders Price as a human-readable decimal, for logging and
// diagnostic endpoints rather than the wire format itself.
func (e *MBOEvent) DecimalPrice() decimal.Decimal {
	return PriceToDecimal(e.Price)
}

// PriceToDecimal renders a fixed-point price (scale 1e9) as a decimal,
// returning zero for the undefined-price sentinel.
func PriceToDecimal(price int64) decimal.Decimal {
	if price == UndefinedPrice {
		return decimal.Zero
	}
	return decimal.New(price, -9)
}
