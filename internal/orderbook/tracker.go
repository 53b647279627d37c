package orderbook

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mselser95/polymarket-sportsbot/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Tracker maintains full bid/ask ladders per token. Each book update
// replaces the ladder atomically; incremental diffs are not merged.
// Snapshots with a sequence number at or below the last applied one are
// dropped.
type Tracker struct {
	mu     sync.RWMutex
	books  map[string]*types.OrderbookSnapshot // key: token_id
	logger *zap.Logger
}

// TrackerConfig holds tracker configuration.
type TrackerConfig struct {
	Logger *zap.Logger
}

// NewTracker creates a new orderbook tracker.
func NewTracker(cfg *TrackerConfig) (*Tracker, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Tracker{
		books:  make(map[string]*types.OrderbookSnapshot),
		logger: cfg.Logger,
	}, nil
}

// ApplySnapshot replaces the book for a token. Bids are sorted
// descending, asks ascending, zero-size levels removed. Returns false
// when the snapshot was rejected as stale by sequence.
func (t *Tracker) ApplySnapshot(tokenID, marketSlug string, bids, asks []types.BookLevel, sequence int64, updatedAt time.Time) bool {
	cleanBids := normalizeLevels(bids, true)
	cleanAsks := normalizeLevels(asks, false)

	t.mu.Lock()
	if existing, ok := t.books[tokenID]; ok && sequence != 0 && sequence <= existing.Sequence {
		t.mu.Unlock()
		StaleSnapshotsTotal.Inc()
		t.logger.Debug("orderbook-stale-sequence-dropped",
			zap.String("token-id", tokenID),
			zap.Int64("sequence", sequence),
			zap.Int64("current", existing.Sequence))
		return false
	}

	t.books[tokenID] = &types.OrderbookSnapshot{
		TokenID:     tokenID,
		MarketSlug:  marketSlug,
		Bids:        cleanBids,
		Asks:        cleanAsks,
		Sequence:    sequence,
		LastUpdated: updatedAt,
	}
	BooksTracked.Set(float64(len(t.books)))
	t.mu.Unlock()

	SnapshotsAppliedTotal.Inc()
	return true
}

// Snapshot returns a copy of the book for a token.
func (t *Tracker) Snapshot(tokenID string) (*types.OrderbookSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	book, ok := t.books[tokenID]
	if !ok {
		return nil, false
	}
	return copySnapshot(book), true
}

// BestBid returns the best bid level for a token.
func (t *Tracker) BestBid(tokenID string) (types.BookLevel, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	book, ok := t.books[tokenID]
	if !ok || len(book.Bids) == 0 {
		return types.BookLevel{}, false
	}
	return book.Bids[0], true
}

// BestAsk returns the best ask level for a token.
func (t *Tracker) BestAsk(tokenID string) (types.BookLevel, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	book, ok := t.books[tokenID]
	if !ok || len(book.Asks) == 0 {
		return types.BookLevel{}, false
	}
	return book.Asks[0], true
}

// MidPrice returns the mid price for a token when both sides are quoted.
func (t *Tracker) MidPrice(tokenID string) (decimal.Decimal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	book, ok := t.books[tokenID]
	if !ok || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return decimal.Decimal{}, false
	}
	return book.Bids[0].Price.Add(book.Asks[0].Price).Div(decimal.NewFromInt(2)), true
}

// DepthWithinPrice sums displayed size on one side up to a limit price.
// For bids it counts levels at or above the limit, for asks at or below.
func (t *Tracker) DepthWithinPrice(tokenID string, bid bool, limit decimal.Decimal) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()

	book, ok := t.books[tokenID]
	if !ok {
		return decimal.Zero
	}

	total := decimal.Zero
	if bid {
		for _, lvl := range book.Bids {
			if lvl.Price.LessThan(limit) {
				break
			}
			total = total.Add(lvl.Size)
		}
	} else {
		for _, lvl := range book.Asks {
			if lvl.Price.GreaterThan(limit) {
				break
			}
			total = total.Add(lvl.Size)
		}
	}
	return total
}

// WalkResult describes a depth walk across one book side.
type WalkResult struct {
	FilledQuantity decimal.Decimal
	AvgPrice       decimal.Decimal // volume-weighted across consumed levels
	Notional       decimal.Decimal
}

// WalkAsks simulates buying quantity against the ask ladder, consuming
// levels at or below the limit price. Returns the filled quantity,
// which is less than requested when depth runs out.
func (t *Tracker) WalkAsks(tokenID string, quantity, limit decimal.Decimal) (WalkResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	book, ok := t.books[tokenID]
	if !ok {
		return WalkResult{}, types.ErrMarketNotFound
	}
	return walkLevels(book.Asks, quantity, func(price decimal.Decimal) bool {
		return price.GreaterThan(limit)
	})
}

// WalkBids simulates selling quantity against the bid ladder, consuming
// levels at or above the limit price.
func (t *Tracker) WalkBids(tokenID string, quantity, limit decimal.Decimal) (WalkResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	book, ok := t.books[tokenID]
	if !ok {
		return WalkResult{}, types.ErrMarketNotFound
	}
	return walkLevels(book.Bids, quantity, func(price decimal.Decimal) bool {
		return price.LessThan(limit)
	})
}

func walkLevels(levels []types.BookLevel, quantity decimal.Decimal, pastLimit func(decimal.Decimal) bool) (WalkResult, error) {
	if quantity.Sign() <= 0 {
		return WalkResult{}, fmt.Errorf("quantity must be positive, got %s", quantity)
	}

	remaining := quantity
	notional := decimal.Zero
	filled := decimal.Zero

	for _, lvl := range levels {
		if remaining.Sign() == 0 {
			break
		}
		if pastLimit(lvl.Price) {
			break
		}

		take := decimal.Min(remaining, lvl.Size)
		filled = filled.Add(take)
		notional = notional.Add(take.Mul(lvl.Price))
		remaining = remaining.Sub(take)
	}

	if filled.Sign() == 0 {
		return WalkResult{}, types.ErrInsufficientDepth
	}

	return WalkResult{
		FilledQuantity: filled,
		AvgPrice:       notional.Div(filled),
		Notional:       notional,
	}, nil
}

// IsStale reports whether the book for a token is older than maxAge.
// Unknown tokens are stale.
func (t *Tracker) IsStale(tokenID string, now time.Time, maxAge time.Duration) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	book, ok := t.books[tokenID]
	if !ok {
		return true
	}
	return now.Sub(book.LastUpdated) > maxAge
}

// Remove drops the book for a token.
func (t *Tracker) Remove(tokenID string) {
	t.mu.Lock()
	delete(t.books, tokenID)
	BooksTracked.Set(float64(len(t.books)))
	t.mu.Unlock()
}

// TokenIDs returns the tokens currently tracked.
func (t *Tracker) TokenIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.books))
	for id := range t.books {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func normalizeLevels(levels []types.BookLevel, descending bool) []types.BookLevel {
	clean := make([]types.BookLevel, 0, len(levels))
	for _, lvl := range levels {
		if lvl.Size.Sign() > 0 {
			clean = append(clean, lvl)
		}
	}

	sort.Slice(clean, func(i, j int) bool {
		if descending {
			return clean[i].Price.GreaterThan(clean[j].Price)
		}
		return clean[i].Price.LessThan(clean[j].Price)
	})
	return clean
}

func copySnapshot(s *types.OrderbookSnapshot) *types.OrderbookSnapshot {
	c := *s
	c.Bids = make([]types.BookLevel, len(s.Bids))
	copy(c.Bids, s.Bids)
	c.Asks = make([]types.BookLevel, len(s.Asks))
	copy(c.Asks, s.Asks)
	return &c
}
