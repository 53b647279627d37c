package types

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// OrderbookMessage represents a message from the market data WebSocket.
type OrderbookMessage struct {
	EventType string       `json:"event_type"` // "book", "price_change", "last_trade_price"
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"`
	Timestamp int64        `json:"-"` // Parsed from string via UnmarshalJSON
	Hash      string       `json:"hash,omitempty"`
	Bids      []PriceLevel `json:"bids,omitempty"`
	Asks      []PriceLevel `json:"asks,omitempty"`

	// PriceChanges is populated for price_change events, which carry
	// top-of-book deltas rather than full ladders.
	PriceChanges []PriceChange `json:"price_changes,omitempty"`
}

// UnmarshalJSON custom unmarshaler to handle string timestamp.
func (o *OrderbookMessage) UnmarshalJSON(data []byte) error {
	type Alias OrderbookMessage
	aux := &struct {
		TimestampStr string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(o),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	// Parse timestamp from string to int64
	if aux.TimestampStr != "" {
		timestamp, err := strconv.ParseInt(aux.TimestampStr, 10, 64)
		if err != nil {
			return err
		}
		o.Timestamp = timestamp
	}

	return nil
}

// PriceLevel represents a single price level as received on the wire.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// PriceChange is one entry of a price_change event.
type PriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
	Hash    string `json:"hash"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

// PriceChangeMessage is a price_change event covering one market's
// outcome tokens.
type PriceChangeMessage struct {
	EventType    string        `json:"event_type"`
	Market       string        `json:"market"`
	Timestamp    int64         `json:"-"` // parsed from string via UnmarshalJSON
	PriceChanges []PriceChange `json:"price_changes"`
}

// UnmarshalJSON handles the string timestamp.
func (p *PriceChangeMessage) UnmarshalJSON(data []byte) error {
	type Alias PriceChangeMessage
	aux := &struct {
		TimestampStr string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.TimestampStr != "" {
		timestamp, err := strconv.ParseInt(aux.TimestampStr, 10, 64)
		if err != nil {
			return err
		}
		p.Timestamp = timestamp
	}

	return nil
}

// BookLevel is a parsed price level with decimal arithmetic.
type BookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// ParseLevel converts a wire price level into a BookLevel.
func ParseLevel(pl PriceLevel) (BookLevel, error) {
	price, err := decimal.NewFromString(pl.Price)
	if err != nil {
		return BookLevel{}, err
	}
	size, err := decimal.NewFromString(pl.Size)
	if err != nil {
		return BookLevel{}, err
	}
	return BookLevel{Price: price, Size: size}, nil
}

// OrderbookSnapshot is the tracked state of one token's book.
// Bids are sorted descending by price, asks ascending.
type OrderbookSnapshot struct {
	TokenID     string
	MarketSlug  string
	Bids        []BookLevel
	Asks        []BookLevel
	Sequence    int64
	LastUpdated time.Time
}

// BestBid returns the highest bid level, ok=false on an empty side.
func (s *OrderbookSnapshot) BestBid() (BookLevel, bool) {
	if len(s.Bids) == 0 {
		return BookLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the lowest ask level, ok=false on an empty side.
func (s *OrderbookSnapshot) BestAsk() (BookLevel, bool) {
	if len(s.Asks) == 0 {
		return BookLevel{}, false
	}
	return s.Asks[0], true
}
