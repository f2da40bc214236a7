package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

var csvHeader = []string{"created_at", "source", "id", "kind", "symbol", "quantity", "price", "amount", "balance_after"}

type activityRow struct {
	at     time.Time
	seq    int64
	fields []string
}

// WriteCSV writes journal entries and position lots as one activity stream,
// oldest first. Lot rows carry their cash effect in the amount column and
// leave balance_after empty.
func WriteCSV(w io.Writer, s *Statement) error {
	rows := make([]activityRow, 0, len(s.Entries)+len(s.Lots))
	for _, e := range s.Entries {
		rows = append(rows, activityRow{
			at:  e.CreatedAt,
			seq: e.Seq,
			fields: []string{
				e.CreatedAt.UTC().Format(time.RFC3339Nano),
				"journal",
				e.ID,
				string(e.Kind),
				"",
				"",
				"",
				e.Amount.String(),
				e.BalanceAfter.String(),
			},
		})
	}
	for _, l := range s.Lots {
		rows = append(rows, activityRow{
			at:  l.CreatedAt,
			seq: l.Seq,
			fields: []string{
				l.CreatedAt.UTC().Format(time.RFC3339Nano),
				"lot",
				l.ID,
				string(l.Side()),
				l.Symbol,
				strconv.FormatInt(l.Quantity, 10),
				l.Price.String(),
				l.CashFlow().String(),
				"",
			},
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].at.Equal(rows[j].at) {
			return rows[i].at.Before(rows[j].at)
		}
		return rows[i].seq < rows[j].seq
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("WriteCSV: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.fields); err != nil {
			return fmt.Errorf("WriteCSV: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteCSV: %w", err)
	}
	return nil
}
