package feeds

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// GameStatus is the lifecycle state of a live game.
type GameStatus string

const (
	GameScheduled  GameStatus = "SCHEDULED"
	GameInProgress GameStatus = "IN_PROGRESS"
	GameFinal      GameStatus = "FINAL"
)

// GameState is a snapshot of a live sports game, published on the
// event bus under TopicGameState.
type GameState struct {
	EventID    string
	League     string
	HomeTeam   string
	AwayTeam   string
	HomeScore  int
	AwayScore  int
	Period     string
	Clock      string
	Status     GameStatus
	MarketSlug string
	HomeIsYes  bool
	UpdatedAt  time.Time
}

// ScoreDiff is home score minus away score.
func (g *GameState) ScoreDiff() int {
	return g.HomeScore - g.AwayScore
}

// IsFinal reports whether the game has ended.
func (g *GameState) IsFinal() bool {
	return g.Status == GameFinal
}

// OddsSnapshot is a sportsbook quote translated to an implied YES
// probability, published on the event bus under TopicOddsSnapshot.
type OddsSnapshot struct {
	EventID        string
	Provider       string
	YesProbability decimal.Decimal
	League         string
	MarketSlug     string
	Confidence     float64
	UpdatedAt      time.Time
}

// NoProbability is the implied probability of the NO outcome.
func (o *OddsSnapshot) NoProbability() decimal.Decimal {
	return decimal.NewFromInt(1).Sub(o.YesProbability)
}

// Feed is a background data source with a lifecycle.
type Feed interface {
	Name() string
	Start(ctx context.Context) error
	Close() error
}
