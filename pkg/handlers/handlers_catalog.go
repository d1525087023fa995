package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	domain "github.com/arnavshah/odp-scheduler-go/internal/models"
	"github.com/arnavshah/odp-scheduler-go/pkg/models"
)

// refresh reloads the scheduling projection after a catalog write.
func (h *Handler) refresh(c *gin.Context) bool {
	if err := h.Engine.Refresh(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return false
	}
	return true
}

// ListMachines returns the machine catalog
func (h *Handler) ListMachines(c *gin.Context) {
	machines, err := h.Catalog.ListMachines(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"machines": machines})
}

// CreateMachine adds a machine
func (h *Handler) CreateMachine(c *gin.Context) {
	var m domain.Machine
	if err := c.ShouldBindJSON(&m); err != nil {
		badRequest(c, err)
		return
	}
	created, err := h.Catalog.CreateMachine(c.Request.Context(), m)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !h.refresh(c) {
		return
	}
	c.JSON(http.StatusCreated, created)
}

// UpdateMachineStatus changes a machine's status
func (h *Handler) UpdateMachineStatus(c *gin.Context) {
	var req models.MachineStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.Catalog.UpdateMachineStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !h.refresh(c) {
		return
	}
	c.JSON(http.StatusOK, m)
}

// DeleteMachine removes a machine. Orders scheduled on it become orphans.
func (h *Handler) DeleteMachine(c *gin.Context) {
	if err := h.Catalog.DeleteMachine(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	if !h.refresh(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Machine deleted"})
}

// ListPhases returns the phase catalog
func (h *Handler) ListPhases(c *gin.Context) {
	phases, err := h.Catalog.ListPhases(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"phases": phases})
}

// CreatePhase adds a phase
func (h *Handler) CreatePhase(c *gin.Context) {
	var p domain.Phase
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	created, err := h.Catalog.CreatePhase(c.Request.Context(), p)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ListOrders returns orders, optionally filtered by ?status=
func (h *Handler) ListOrders(c *gin.Context) {
	orders, err := h.Catalog.ListOrders(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if status := c.Query("status"); status != "" {
		kept := orders[:0]
		for _, o := range orders {
			if string(o.Status) == status {
				kept = append(kept, o)
			}
		}
		orders = kept
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// CreateOrder adds an order to the backlog
func (h *Handler) CreateOrder(c *gin.Context) {
	var o domain.ProductionOrder
	if err := c.ShouldBindJSON(&o); err != nil {
		badRequest(c, err)
		return
	}
	created, err := h.Catalog.CreateOrder(c.Request.Context(), o)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !h.refresh(c) {
		return
	}
	c.JSON(http.StatusCreated, created)
}

// DeleteOrder removes an order that is not scheduled
func (h *Handler) DeleteOrder(c *gin.Context) {
	if err := h.Catalog.DeleteOrder(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	if !h.refresh(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order deleted"})
}
