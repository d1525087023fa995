package scheduler

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/arnavshah/odp-scheduler-go/internal/models"
	"github.com/arnavshah/odp-scheduler-go/internal/timegrid"
)

// Bar is one order drawn on a machine row.
type Bar struct {
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"odpNumber,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Color       string    `json:"color,omitempty"`
	timegrid.Position
}

// Row is the day view of one machine.
type Row struct {
	MachineID   string `json:"machineId"`
	MachineName string `json:"machineName"`
	Status      string `json:"status"`
	Unavailable []int  `json:"unavailableHours"`
	Bars        []Bar  `json:"bars"`
}

// Board is everything a renderer needs to draw one planning day.
type Board struct {
	Day     string                   `json:"day"`
	Rows    []Row                    `json:"rows"`
	Backlog []models.ProductionOrder `json:"backlog"`
}

// BoardInput gathers the projections a board is built from.
type BoardInput struct {
	Day         time.Time
	Machines    []models.Machine
	Orders      []models.ProductionOrder
	Events      []models.ScheduledEvent
	Backlog     []models.ProductionOrder
	Unavailable func(machineID string) []int
}

// BuildBoard places every event visible on in.Day onto its machine row.
// Events whose machine is not in the catalog are left out; the integrity
// check reports them.
func BuildBoard(in BoardInput) Board {
	numbers := make(map[string]string, len(in.Orders))
	for _, o := range in.Orders {
		numbers[o.ID] = o.OrderNumber
	}

	rowIndex := make(map[string]int, len(in.Machines)*2)
	rows := make([]Row, 0, len(in.Machines))
	for _, m := range in.Machines {
		rowIndex[m.ID] = len(rows)
		if m.Name != "" {
			if _, taken := rowIndex[m.Name]; !taken {
				rowIndex[m.Name] = len(rows)
			}
		}
		row := Row{MachineID: m.ID, MachineName: m.Name, Status: string(m.Status), Bars: []Bar{}}
		if in.Unavailable != nil {
			row.Unavailable = in.Unavailable(m.ID)
		}
		if row.Unavailable == nil {
			row.Unavailable = []int{}
		}
		rows = append(rows, row)
	}

	for _, ev := range in.Events {
		idx, ok := rowIndex[ev.MachineID]
		if !ok {
			continue
		}
		pos, visible := timegrid.VisiblePosition(in.Day, ev.StartTime, ev.EndTime)
		if !visible {
			continue
		}
		rows[idx].Bars = append(rows[idx].Bars, Bar{
			OrderID:     ev.OrderID,
			OrderNumber: numbers[ev.OrderID],
			Start:       ev.StartTime,
			End:         ev.EndTime,
			Color:       ev.Color,
			Position:    pos,
		})
	}
	for i := range rows {
		sort.SliceStable(rows[i].Bars, func(a, b int) bool {
			return rows[i].Bars[a].Start.Before(rows[i].Bars[b].Start)
		})
	}

	backlog := in.Backlog
	if backlog == nil {
		backlog = []models.ProductionOrder{}
	}
	return Board{
		Day:     timegrid.DayStart(in.Day).Format(models.DateLayout),
		Rows:    rows,
		Backlog: backlog,
	}
}

var csvHeader = []string{"day", "machine", "odp_number", "order_id", "start", "end", "left_percent", "width_percent"}

// ExportCSV writes one line per bar of the board.
func ExportCSV(w io.Writer, b Board) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range b.Rows {
		name := row.MachineName
		if name == "" {
			name = row.MachineID
		}
		for _, bar := range row.Bars {
			rec := []string{
				b.Day,
				name,
				bar.OrderNumber,
				bar.OrderID,
				bar.Start.Format(time.RFC3339),
				bar.End.Format(time.RFC3339),
				strconv.FormatFloat(bar.LeftPercent, 'f', 2, 64),
				strconv.FormatFloat(bar.WidthPercent, 'f', 2, 64),
			}
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("write csv row for order %s: %w", bar.OrderID, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
