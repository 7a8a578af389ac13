package persistence

import "strings"

// sortable whitelists the columns a list query may be ordered by. Client
// input never reaches ORDER BY unless it names one of them exactly.
type sortable struct {
	columns  map[string]struct{}
	fallback string
}

func sortableBy(fallback string, columns ...string) sortable {
	s := sortable{columns: map[string]struct{}{"id": {}, "created_at": {}, "updated_at": {}}, fallback: fallback}
	s.columns[fallback] = struct{}{}
	for _, c := range columns {
		s.columns[c] = struct{}{}
	}
	return s
}

var (
	relaySort      = sortableBy("created_at", "order_date", "status", "total_amount", "retry_count", "dispatched_at", "fulfilled_at")
	commissionSort = sortableBy("order_date", "status", "order_amount", "commission_amount", "hold_until", "confirmed_at")
	batchSort      = sortableBy("period_start", "batch_number", "status", "net_amount", "commission_count")
	accountSort    = sortableBy("created_at", "name", "channel_code")
)

// column returns by when it is whitelisted, the fallback otherwise
func (s sortable) column(by string) string {
	by = strings.TrimSpace(by)
	if _, ok := s.columns[by]; ok {
		return by
	}
	return s.fallback
}

// clause builds the ORDER BY expression. Descending unless dir says asc;
// id breaks ties so pages stay stable.
func (s sortable) clause(by, dir string) string {
	direction := "DESC"
	if strings.EqualFold(strings.TrimSpace(dir), "asc") {
		direction = "ASC"
	}
	col := s.column(by)
	if col == "id" {
		return "id " + direction
	}
	return col + " " + direction + ", id " + direction
}
