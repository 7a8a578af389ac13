// Package statement renders settlement statements for closed batches and
// stores them in object storage.
package statement

import (
	"bytes"
	"fmt"
	"time"

	"github.com/marketrelay/backend/internal/domain/commission"
	"github.com/marketrelay/backend/internal/domain/settlement"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// SummarySheet holds batch totals
	SummarySheet = "Summary"
	// CommissionsSheet lists one row per stamped commission
	CommissionsSheet = "Commissions"

	// ContentType is the MIME type of generated workbooks
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	dateLayout = "2006-01-02"
)

var commissionHeader = []interface{}{
	"Commission ID", "Conversion ID", "Order ID", "Order Date", "Referral Code",
	"Order Amount", "Rate", "Commission", "Currency", "Status",
}

// BuildWorkbook renders the statement for a closed batch
func BuildWorkbook(b *settlement.SettlementBatch, commissions []commission.Commission) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeSummary(f, b); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(CommissionsSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := writeCommissions(f, commissions); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

func writeSummary(f *excelize.File, b *settlement.SettlementBatch) error {
	payeeLabel := cases.Title(language.English).String(string(b.Payee.Type))
	closedAt := ""
	if b.ClosedAt != nil {
		closedAt = b.ClosedAt.UTC().Format(time.RFC3339)
	}

	rows := [][]interface{}{
		{"Batch Number", b.BatchNumber},
		{"Settlement Type", payeeLabel},
		{"Payee ID", b.Payee.ID.String()},
		// period end is exclusive
		{"Period", fmt.Sprintf("%s to %s", b.Period.Start.Format(dateLayout), b.Period.End.Add(-time.Nanosecond).Format(dateLayout))},
		{"Status", b.Status.String()},
		{"Closed At", closedAt},
		{"Currency", b.Currency},
		{"Commission Count", b.CommissionCount},
		{"Total Order Amount", b.TotalAmount.StringFixed(2)},
		{"Commission Amount", b.CommissionAmount.StringFixed(2)},
		{"Deduction Amount", b.DeductionAmount.StringFixed(2)},
		{"Net Amount", b.NetAmount.StringFixed(2)},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row %d: %w", i+1, err)
		}
	}
	return f.SetColWidth(SummarySheet, "A", "B", 24)
}

func writeCommissions(f *excelize.File, commissions []commission.Commission) error {
	if err := f.SetSheetRow(CommissionsSheet, "A1", &commissionHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range commissions {
		c := &commissions[i]
		row := []interface{}{
			c.ID.String(),
			c.ConversionID,
			c.OrderID.String(),
			c.OrderDate.UTC().Format(dateLayout),
			c.ReferralCode,
			c.OrderAmount.StringFixed(2),
			c.CommissionRate.String(),
			c.CommissionAmount.StringFixed(2),
			c.Currency,
			c.Status.String(),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(CommissionsSheet, cell, &row); err != nil {
			return fmt.Errorf("write commission row %d: %w", i+2, err)
		}
	}
	return f.SetPanes(CommissionsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
