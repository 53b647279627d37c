package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderbookMessage_UnmarshalBook(t *testing.T) {
	raw := `{
		"event_type": "book",
		"asset_id": "71321045679252212594626385532706912750332728571942532289631379312455583992563",
		"market": "0xbd31dc8a20211944f6b70f31557f1001557b59905b7738480ca09bd4532f84af",
		"timestamp": "1756200000123",
		"hash": "0xabc",
		"bids": [
			{"price": "0.48", "size": "120"},
			{"price": "0.47", "size": "300"}
		],
		"asks": [
			{"price": "0.52", "size": "80"}
		]
	}`

	var msg OrderbookMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	assert.Equal(t, "book", msg.EventType)
	assert.Equal(t, int64(1756200000123), msg.Timestamp, "string timestamp parses to int64")
	require.Len(t, msg.Bids, 2)
	require.Len(t, msg.Asks, 1)
	assert.Equal(t, "0.48", msg.Bids[0].Price)
	assert.Equal(t, "80", msg.Asks[0].Size)
}

func TestOrderbookMessage_UnmarshalEmptyTimestamp(t *testing.T) {
	var msg OrderbookMessage
	require.NoError(t, json.Unmarshal([]byte(`{"event_type":"book","asset_id":"tok"}`), &msg))
	assert.Zero(t, msg.Timestamp)
}

func TestOrderbookMessage_UnmarshalBadTimestamp(t *testing.T) {
	var msg OrderbookMessage
	err := json.Unmarshal([]byte(`{"event_type":"book","timestamp":"not-a-number"}`), &msg)
	assert.Error(t, err)
}

func TestPriceChangeMessage_Unmarshal(t *testing.T) {
	raw := `{
		"event_type": "price_change",
		"market": "0xbd31",
		"timestamp": "1756200001000",
		"price_changes": [
			{"asset_id": "tok-yes", "price": "0.49", "size": "50", "side": "BUY", "best_bid": "0.49", "best_ask": "0.52"},
			{"asset_id": "tok-no", "price": "0.51", "size": "0", "side": "SELL", "best_bid": "0.48", "best_ask": "0.51"}
		]
	}`

	var msg PriceChangeMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	assert.Equal(t, int64(1756200001000), msg.Timestamp)
	require.Len(t, msg.PriceChanges, 2)
	assert.Equal(t, "tok-yes", msg.PriceChanges[0].AssetID)
	assert.Equal(t, "BUY", msg.PriceChanges[0].Side)
	assert.Equal(t, "0", msg.PriceChanges[1].Size, "zero size signals level removal")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel(PriceLevel{Price: "0.515", Size: "230.5"})
	require.NoError(t, err)
	assert.True(t, lvl.Price.Equal(decimal.RequireFromString("0.515")))
	assert.True(t, lvl.Size.Equal(decimal.RequireFromString("230.5")))

	_, err = ParseLevel(PriceLevel{Price: "abc", Size: "10"})
	assert.Error(t, err)

	_, err = ParseLevel(PriceLevel{Price: "0.5", Size: ""})
	assert.Error(t, err)
}

func TestOrderbookSnapshot_BestLevels(t *testing.T) {
	snap := &OrderbookSnapshot{
		TokenID: "tok-yes",
		Bids: []BookLevel{
			{Price: decimal.RequireFromString("0.48"), Size: decimal.NewFromInt(120)},
			{Price: decimal.RequireFromString("0.47"), Size: decimal.NewFromInt(300)},
		},
		Asks: []BookLevel{
			{Price: decimal.RequireFromString("0.52"), Size: decimal.NewFromInt(80)},
		},
	}

	bid, ok := snap.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Price.Equal(decimal.RequireFromString("0.48")))

	ask, ok := snap.BestAsk()
	require.True(t, ok)
	assert.True(t, ask.Price.Equal(decimal.RequireFromString("0.52")))

	empty := &OrderbookSnapshot{TokenID: "tok-no"}
	_, ok = empty.BestBid()
	assert.False(t, ok)
	_, ok = empty.BestAsk()
	assert.False(t, ok)
}
