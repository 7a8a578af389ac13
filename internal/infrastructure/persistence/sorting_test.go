package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortable_Clause(t *testing.T) {
	cases := []struct {
		by, dir string
		want    string
	}{
		{"", "", "order_date DESC, id DESC"},
		{"status", "asc", "status ASC, id ASC"},
		{"  hold_until ", " ASC ", "hold_until ASC, id ASC"},
		{"id", "asc", "id ASC"},
		{"commission_amount", "sideways", "commission_amount DESC, id DESC"},
		{"STATUS", "", "order_date DESC, id DESC"},
		{"status; DROP TABLE commissions;--", "asc", "order_date ASC, id ASC"},
		{"status", "ASC; DROP TABLE commissions", "status DESC, id DESC"},
		{"name", "", "order_date DESC, id DESC"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, commissionSort.clause(tc.by, tc.dir), "by=%q dir=%q", tc.by, tc.dir)
	}
}

func TestSortable_CommonColumns(t *testing.T) {
	for _, s := range []sortable{relaySort, commissionSort, batchSort, accountSort} {
		for _, col := range []string{"id", "created_at", "updated_at"} {
			assert.Equal(t, col, s.column(col))
		}
	}
	assert.Equal(t, "name", accountSort.column("name"))
	assert.Equal(t, "created_at", relaySort.column("name"))
	assert.Equal(t, "period_start", batchSort.column(""))
}
