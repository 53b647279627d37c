package types

import (
	"time"

	"github.com/goccy/go-json"
)

// Market is a market as returned by the Gamma API. Outcomes and CLOB
// token IDs arrive as JSON-encoded string arrays and are zipped into
// Tokens during unmarshalling.
type Market struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	Slug          string    `json:"slug"`
	Closed        bool      `json:"closed"`
	Active        bool      `json:"active"`
	Tokens        []Token   `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	EndDate       time.Time `json:"endDate"`
	GameStartTime time.Time `json:"gameStartTime"`
	Description   string    `json:"description"`
	Outcomes      string    `json:"outcomes"`     // JSON string: "[\"Yes\", \"No\"]"
	ClobTokens    string    `json:"clobTokenIds"` // JSON string: "[\"token1\", \"token2\"]"
}

// UnmarshalJSON parses outcomes and clobTokenIds into Tokens.
func (m *Market) UnmarshalJSON(data []byte) error {
	type Alias Market
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(m),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if m.Outcomes != "" && m.ClobTokens != "" {
		var outcomes []string
		var tokenIDs []string

		if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err == nil {
			if err := json.Unmarshal([]byte(m.ClobTokens), &tokenIDs); err == nil {
				m.Tokens = make([]Token, 0, len(outcomes))
				for i, outcome := range outcomes {
					if i < len(tokenIDs) {
						m.Tokens = append(m.Tokens, Token{
							TokenID: tokenIDs[i],
							Outcome: outcome,
						})
					}
				}
			}
		}
	}

	return nil
}

// Token is one outcome token of a binary market.
type Token struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price,omitempty"`
}

// GetTokenByOutcome returns the token for an outcome, accepting both
// YES/Yes and NO/No spellings.
func (m *Market) GetTokenByOutcome(outcome string) *Token {
	for i := range m.Tokens {
		tokenOutcome := m.Tokens[i].Outcome
		if tokenOutcome == outcome ||
			(outcome == "YES" && tokenOutcome == "Yes") ||
			(outcome == "NO" && tokenOutcome == "No") {
			return &m.Tokens[i]
		}
	}
	return nil
}

// MarketSubscription tracks subscription state for a discovered market.
type MarketSubscription struct {
	MarketID     string
	MarketSlug   string
	Question     string
	TokenIDYes   string
	TokenIDNo    string
	SubscribedAt time.Time
}

// MarketsResponse wraps a page of markets from the Gamma API.
type MarketsResponse struct {
	Data     []Market `json:"data"`
	Count    int      `json:"count"`
	NextPage string   `json:"next_page,omitempty"`
	Limit    int      `json:"limit"`
	Offset   int      `json:"offset"`
}
