package database

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/arnavshah/odp-scheduler-go/internal/models"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	keyMachines = "machines"
	keyOrders   = "orders"
)

// CachedGateway serves reads from a short-lived cache and drops the affected
// entries after every successful write, so a write is visible to the next
// read.
type CachedGateway struct {
	*Gateway
	cache *expirable.LRU[string, any]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCachedGateway wraps g. A ttl of zero disables caching.
func NewCachedGateway(g *Gateway, size int, ttl time.Duration) *CachedGateway {
	c := &CachedGateway{Gateway: g}
	if ttl > 0 {
		c.cache = expirable.NewLRU[string, any](size, nil, ttl)
	}
	return c
}

// Stats returns cache hits and misses since start.
func (c *CachedGateway) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *CachedGateway) lookup(key string) (any, bool) {
	if c.cache == nil {
		return nil, false
	}
	v, ok := c.cache.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

func (c *CachedGateway) store(key string, v any) {
	if c.cache != nil {
		c.cache.Add(key, v)
	}
}

func (c *CachedGateway) invalidate(keys ...string) {
	if c.cache == nil {
		return
	}
	for _, k := range keys {
		c.cache.Remove(k)
	}
}

func availabilityKey(machineID string, date time.Time) string {
	return "availability/" + machineID + "/" + date.Format(models.DateLayout)
}

// ListMachines implements scheduler.Gateway.
func (c *CachedGateway) ListMachines(ctx context.Context) ([]models.Machine, error) {
	if v, ok := c.lookup(keyMachines); ok {
		return slices.Clone(v.([]models.Machine)), nil
	}
	machines, err := c.Gateway.ListMachines(ctx)
	if err != nil {
		return nil, err
	}
	c.store(keyMachines, slices.Clone(machines))
	return machines, nil
}

// ListOrders implements scheduler.Gateway.
func (c *CachedGateway) ListOrders(ctx context.Context) ([]models.ProductionOrder, error) {
	if v, ok := c.lookup(keyOrders); ok {
		return slices.Clone(v.([]models.ProductionOrder)), nil
	}
	orders, err := c.Gateway.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	c.store(keyOrders, slices.Clone(orders))
	return orders, nil
}

// GetAvailability implements scheduler.Gateway.
func (c *CachedGateway) GetAvailability(ctx context.Context, machineID string, date time.Time) ([]int, error) {
	key := availabilityKey(machineID, date)
	if v, ok := c.lookup(key); ok {
		return slices.Clone(v.([]int)), nil
	}
	hours, err := c.Gateway.GetAvailability(ctx, machineID, date)
	if err != nil {
		return nil, err
	}
	c.store(key, slices.Clone(hours))
	return hours, nil
}

// UpdateOrder implements scheduler.Gateway.
func (c *CachedGateway) UpdateOrder(ctx context.Context, id string, patch models.OrderPatch) (models.ProductionOrder, error) {
	o, err := c.Gateway.UpdateOrder(ctx, id, patch)
	if err != nil {
		return o, err
	}
	c.invalidate(keyOrders)
	return o, nil
}

// SetAvailability implements scheduler.Gateway.
func (c *CachedGateway) SetAvailability(ctx context.Context, machineID string, date time.Time, hours []int) error {
	if err := c.Gateway.SetAvailability(ctx, machineID, date, hours); err != nil {
		return err
	}
	c.invalidate(availabilityKey(machineID, date))
	return nil
}

// CreateMachine invalidates the machine list.
func (c *CachedGateway) CreateMachine(ctx context.Context, m models.Machine) (models.Machine, error) {
	m, err := c.Gateway.CreateMachine(ctx, m)
	if err == nil {
		c.invalidate(keyMachines)
	}
	return m, err
}

// UpdateMachineStatus invalidates the machine list.
func (c *CachedGateway) UpdateMachineStatus(ctx context.Context, id string, status models.MachineStatus) (models.Machine, error) {
	m, err := c.Gateway.UpdateMachineStatus(ctx, id, status)
	if err == nil {
		c.invalidate(keyMachines)
	}
	return m, err
}

// DeleteMachine invalidates the machine list.
func (c *CachedGateway) DeleteMachine(ctx context.Context, id string) error {
	err := c.Gateway.DeleteMachine(ctx, id)
	if err == nil {
		c.invalidate(keyMachines)
	}
	return err
}

// CreateOrder invalidates the order list.
func (c *CachedGateway) CreateOrder(ctx context.Context, o models.ProductionOrder) (models.ProductionOrder, error) {
	o, err := c.Gateway.CreateOrder(ctx, o)
	if err == nil {
		c.invalidate(keyOrders)
	}
	return o, err
}

// DeleteOrder invalidates the order list.
func (c *CachedGateway) DeleteOrder(ctx context.Context, id string) error {
	err := c.Gateway.DeleteOrder(ctx, id)
	if err == nil {
		c.invalidate(keyOrders)
	}
	return err
}
