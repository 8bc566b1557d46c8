package oddsapi

import (
	"time"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

type sportDTO struct {
	Key    string `json:"key"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

type outcomeDTO struct {
	Name  string   `json:"name"`
	Price float64  `json:"price"` // American odds; integral under oddsFormat=american
	Point *float64 `json:"point,omitempty"`
}

type marketDTO struct {
	Key      string       `json:"key"` // h2h | spreads | totals
	Outcomes []outcomeDTO `json:"outcomes"`
}

type bookmakerDTO struct {
	Key        string      `json:"key"`
	Title      string      `json:"title"`
	LastUpdate string      `json:"last_update"`
	Markets    []marketDTO `json:"markets"`
}

type eventDTO struct {
	ID           string         `json:"id"`
	SportKey     string         `json:"sport_key"`
	CommenceTime string         `json:"commence_time"`
	HomeTeam     string         `json:"home_team"`
	AwayTeam     string         `json:"away_team"`
	Bookmakers   []bookmakerDTO `json:"bookmakers"`
}

// Sport is one sport listing from the venue.
type Sport struct {
	Key    string
	Title  string
	Active bool
}

// toEvent converts a raw venue event to the domain form. Bookmaker keys
// become venue ids, so "fanduel" lines land under domain.VenueID("fanduel").
func toEvent(e eventDTO) domain.OddsEvent {
	out := domain.OddsEvent{
		ID:       e.ID,
		SportKey: e.SportKey,
		HomeTeam: e.HomeTeam,
		AwayTeam: e.AwayTeam,
	}
	if t, err := time.Parse(time.RFC3339, e.CommenceTime); err == nil {
		out.CommenceTime = t
	}

	for _, bm := range e.Bookmakers {
		book := domain.BookLines{
			Venue: domain.VenueID(bm.Key),
			Title: bm.Title,
		}
		if book.Title == "" {
			book.Title = bm.Key
		}
		if t, err := time.Parse(time.RFC3339, bm.LastUpdate); err == nil {
			book.LastUpdate = t
		}
		for _, mkt := range bm.Markets {
			lines := domain.MarketLines{Type: domain.MarketType(mkt.Key)}
			for _, o := range mkt.Outcomes {
				lines.Outcomes = append(lines.Outcomes, domain.LineOutcome{
					Name:     o.Name,
					American: int(o.Price),
					Point:    o.Point,
				})
			}
			book.Markets = append(book.Markets, lines)
		}
		out.Books = append(out.Books, book)
	}
	return out
}
