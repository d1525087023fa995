package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	domain "github.com/arnavshah/odp-scheduler-go/internal/models"
	"github.com/arnavshah/odp-scheduler-go/internal/scheduler"
	"github.com/arnavshah/odp-scheduler-go/pkg/models"
	board "github.com/arnavshah/odp-scheduler-go/pkg/scheduler"
)

func (h *Handler) parseDay(value string) (time.Time, error) {
	if value == "" {
		y, m, d := time.Now().In(h.Engine.Location()).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, h.Engine.Location()), nil
	}
	day, err := time.ParseInLocation(domain.DateLayout, value, h.Engine.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return day, nil
}

func (h *Handler) buildBoard(c *gin.Context) (board.Board, bool) {
	day, err := h.parseDay(c.Query("day"))
	if err != nil {
		badRequest(c, err)
		return board.Board{}, false
	}

	store := h.Engine.Store()
	machines := store.Machines()
	unavailable := make(map[string][]int, len(machines))
	for _, m := range machines {
		hours, err := h.Engine.Availability(c.Request.Context(), m.ID, day)
		if err != nil {
			h.respondError(c, err)
			return board.Board{}, false
		}
		unavailable[m.ID] = hours
	}

	return board.BuildBoard(board.BoardInput{
		Day:         day,
		Machines:    machines,
		Orders:      store.Orders(),
		Events:      store.Events(),
		Backlog:     store.Unscheduled(),
		Unavailable: func(id string) []int { return unavailable[id] },
	}), true
}

// GetBoard returns the planning board of one day
func (h *Handler) GetBoard(c *gin.Context) {
	b, ok := h.buildBoard(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, b)
}

// GetBoardCSV exports the planning board of one day as CSV
func (h *Handler) GetBoardCSV(c *gin.Context) {
	b, ok := h.buildBoard(c)
	if !ok {
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=board-%s.csv", b.Day))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := board.ExportCSV(c.Writer, b); err != nil {
		h.logger().Error("csv export", "err", err)
	}
}

// Compatibility reports whether an order fits a machine and why not
func (h *Handler) Compatibility(c *gin.Context) {
	var req models.CompatibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.Engine.Compatibility(req.OrderID, req.MachineID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Schedule places a backlog order on a machine
func (h *Handler) Schedule(c *gin.Context) {
	var req models.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	o, err := h.Engine.Schedule(c.Request.Context(), req.OrderID, req.MachineID, req.Start)
	h.respondOrder(c, o, err)
}

// Unschedule returns an order to the backlog
func (h *Handler) Unschedule(c *gin.Context) {
	var req models.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	o, err := h.Engine.Unschedule(c.Request.Context(), req.OrderID)
	h.respondOrder(c, o, err)
}

// Reschedule moves a scheduled order
func (h *Handler) Reschedule(c *gin.Context) {
	var req models.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	o, err := h.Engine.Reschedule(c.Request.Context(), req.OrderID, req.MachineID, req.Start)
	h.respondOrder(c, o, err)
}

// DropOnSlot handles a drop on a grid cell
func (h *Handler) DropOnSlot(c *gin.Context) {
	var req models.DropSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	day, err := h.parseDay(req.Day)
	if err != nil {
		badRequest(c, err)
		return
	}
	o, err := h.Engine.Dispatch(c.Request.Context(), scheduler.Command{
		Kind:      scheduler.CommandDropOnSlot,
		OrderID:   req.OrderID,
		MachineID: req.MachineID,
		Day:       day,
		Hour:      req.Hour,
		Minute:    req.Minute,
	})
	h.respondOrder(c, o, err)
}

// DropOnPool handles a drop on the backlog pool
func (h *Handler) DropOnPool(c *gin.Context) {
	var req models.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	o, err := h.Engine.Dispatch(c.Request.Context(), scheduler.Command{
		Kind:    scheduler.CommandDropOnPool,
		OrderID: req.OrderID,
	})
	h.respondOrder(c, o, err)
}

func (h *Handler) respondOrder(c *gin.Context, o domain.ProductionOrder, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// GetAvailability returns the unavailable hours of a machine on ?date=
func (h *Handler) GetAvailability(c *gin.Context) {
	day, err := h.parseDay(c.Query("date"))
	if err != nil {
		badRequest(c, err)
		return
	}
	machineID := c.Param("machineId")
	hours, err := h.Engine.Availability(c.Request.Context(), machineID, day)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.AvailabilityResponse{
		MachineID:        machineID,
		Date:             day.Format(domain.DateLayout),
		UnavailableHours: hours,
	})
}

// ListAvailability returns the stored availability records of a machine
// between ?from= and ?to=, inclusive.
func (h *Handler) ListAvailability(c *gin.Context) {
	from, err := h.parseDay(c.Query("from"))
	if err != nil {
		badRequest(c, err)
		return
	}
	to := from
	if c.Query("to") != "" {
		if to, err = h.parseDay(c.Query("to")); err != nil {
			badRequest(c, err)
			return
		}
	}
	if to.Before(from) {
		badRequest(c, fmt.Errorf("date range ends before it starts: %s > %s", c.Query("from"), c.Query("to")))
		return
	}
	machine, ok := h.Engine.Store().Machine(c.Param("machineId"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, models.ErrorResponse{Error: scheduler.ErrMachineNotFound.Error(), Kind: "not_found"})
		return
	}
	records, err := h.Catalog.ListAvailability(c.Request.Context(), machine.ID, from, to)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if records == nil {
		records = []domain.AvailabilityRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// SetAvailability marks an hour range unavailable over a date range
func (h *Handler) SetAvailability(c *gin.Context) {
	var req models.AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	from, err := h.parseDay(req.From)
	if err != nil {
		badRequest(c, err)
		return
	}
	to, err := h.parseDay(req.To)
	if err != nil {
		badRequest(c, err)
		return
	}
	hours := scheduler.HourRange{From: req.FromHour, To: req.ToHour}
	if err := hours.Validate(); err != nil {
		badRequest(c, err)
		return
	}
	if to.Before(from) {
		badRequest(c, fmt.Errorf("date range ends before it starts: %s > %s", req.From, req.To))
		return
	}
	records, err := h.Engine.MarkUnavailable(c.Request.Context(), c.Param("machineId"), from, to, hours)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}
