package evidence

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/playperu/geooracle/internal/geoguess"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ClampLimit bounds a requested page size to [1, MaxLimit].
func ClampLimit(limit int) int {
	return max(1, min(limit, MaxLimit))
}

type HistoryPage struct {
	TotalRecords int                         `json:"total_records"`
	Records      []geoguess.SettlementRecord `json:"records"`
}

// History returns the most recent records first.
func History(records []geoguess.SettlementRecord, limit int) HistoryPage {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b geoguess.SettlementRecord) int {
		return cmp.Compare(b.SettledAt, a.SettledAt)
	})
	if n := ClampLimit(limit); len(sorted) > n {
		sorted = sorted[:n]
	}
	if sorted == nil {
		sorted = []geoguess.SettlementRecord{}
	}
	return HistoryPage{TotalRecords: len(records), Records: sorted}
}

type RankingRow struct {
	Rank        int             `json:"rank"`
	Player      string          `json:"player"`
	Wins        int             `json:"wins"`
	TotalEarned decimal.Decimal `json:"total_earned_mist"`
	TotalPayout decimal.Decimal `json:"total_payout_mist"`
}

type Leaderboard struct {
	TotalPlayers int          `json:"total_players"`
	TotalRecords int          `json:"total_records"`
	Ranking      []RankingRow `json:"ranking"`
}

// Rank aggregates wins per winner and orders players by total earned, then
// wins, then total payout, all descending. Ties keep first-win order.
func Rank(records []geoguess.SettlementRecord, limit int) Leaderboard {
	var (
		order []string
		rows  = make(map[string]*RankingRow)
	)
	for _, rec := range records {
		if rec.Winner == "" {
			continue
		}
		row, ok := rows[rec.Winner]
		if !ok {
			row = &RankingRow{Player: rec.Winner}
			rows[rec.Winner] = row
			order = append(order, rec.Winner)
		}
		row.Wins++
		row.TotalEarned = row.TotalEarned.Add(nonNegative(rec.NetWinAmount))
		row.TotalPayout = row.TotalPayout.Add(nonNegative(rec.PayoutAmount))
	}

	ranking := make([]RankingRow, 0, len(order))
	for _, player := range order {
		ranking = append(ranking, *rows[player])
	}
	slices.SortStableFunc(ranking, func(a, b RankingRow) int {
		if c := b.TotalEarned.Cmp(a.TotalEarned); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Wins, a.Wins); c != 0 {
			return c
		}
		return b.TotalPayout.Cmp(a.TotalPayout)
	})
	if n := ClampLimit(limit); len(ranking) > n {
		ranking = ranking[:n]
	}
	for i := range ranking {
		ranking[i].Rank = i + 1
	}

	return Leaderboard{
		TotalPlayers: len(order),
		TotalRecords: len(records),
		Ranking:      ranking,
	}
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
