package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/arnavshah/odp-scheduler-go/internal/integrity"
	"github.com/arnavshah/odp-scheduler-go/internal/models"
	"github.com/arnavshah/odp-scheduler-go/internal/scheduler"
	"github.com/arnavshah/odp-scheduler-go/pkg/config"
)

func openTestGateway(t *testing.T) *Gateway {
	t.Helper()
	db, err := Open(config.Config{DataPath: filepath.Join(t.TempDir(), "odp.db")})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewGateway(db)
}

func f(v float64) *float64 { return &v }

func flexo(name string) models.Machine {
	return models.Machine{
		Name:            name,
		WorkCenter:      models.WorkCenterZanica,
		Department:      models.DepartmentPrinting,
		MachineType:     models.MachineTypeFlexo,
		MaxWebWidth:     f(500),
		SetupTime:       f(0.5),
		ChangeoverColor: f(0.25),
	}
}

func odp(number string, width, hours float64) models.ProductionOrder {
	return models.ProductionOrder{
		OrderNumber: number,
		BagWidth:    width,
		BagHeight:   300,
		BagStep:     10,
		Department:  models.DepartmentPrinting,
		Quantity:    500,
		Duration:    hours,
	}
}

func TestMachineCatalog(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()

	m, err := g.CreateMachine(ctx, flexo("Flexo 1"))
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, models.MachineActive, m.Status)

	bad := flexo("Broken")
	bad.MinWebWidth = f(900)
	_, err = g.CreateMachine(ctx, bad)
	var invalid *InvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "invalid", scheduler.ErrorKind(err))

	updated, err := g.UpdateMachineStatus(ctx, m.ID, models.MachineMaintenance)
	require.NoError(t, err)
	assert.Equal(t, models.MachineMaintenance, updated.Status)

	machines, err := g.ListMachines(ctx)
	require.NoError(t, err)
	require.Len(t, machines, 1)
	assert.Equal(t, models.MachineMaintenance, machines[0].Status)
	assert.Equal(t, 500.0, *machines[0].MaxWebWidth)
	assert.Nil(t, machines[0].MaxBagHeight)

	require.NoError(t, g.DeleteMachine(ctx, m.ID))
	assert.ErrorIs(t, g.DeleteMachine(ctx, m.ID), ErrNotFound)
}

func TestUpdateOrderRoundTripsSchedulingFields(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()

	o, err := g.CreateOrder(ctx, odp("ODP-1", 400, 2))
	require.NoError(t, err)
	assert.Equal(t, models.OrderNotScheduled, o.Status)

	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	scheduled, err := g.UpdateOrder(ctx, o.ID, models.SchedulePatch("m1", start, end))
	require.NoError(t, err)
	assert.Equal(t, models.OrderScheduled, scheduled.Status)
	require.NotNil(t, scheduled.ScheduledStartTime)
	assert.True(t, scheduled.ScheduledStartTime.Equal(start))
	assert.True(t, scheduled.ScheduledEndTime.Equal(end))
	assert.Equal(t, "m1", *scheduled.ScheduledMachineID)

	cleared, err := g.UpdateOrder(ctx, o.ID, models.UnschedulePatch())
	require.NoError(t, err)
	assert.Equal(t, models.OrderNotScheduled, cleared.Status)
	assert.Nil(t, cleared.ScheduledMachineID)
	assert.Nil(t, cleared.ScheduledStartTime)
	assert.Nil(t, cleared.ScheduledEndTime)

	_, err = g.UpdateOrder(ctx, "missing", models.UnschedulePatch())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateOrderIgnoresSchedulingFields(t *testing.T) {
	g := openTestGateway(t)
	o := odp("ODP-2", 400, 1)
	machine := "m1"
	o.ScheduledMachineID = &machine
	o.Status = models.OrderScheduled

	created, err := g.CreateOrder(context.Background(), o)
	require.NoError(t, err)
	assert.Nil(t, created.ScheduledMachineID)
	assert.Equal(t, models.OrderNotScheduled, created.Status)

	_, err = g.CreateOrder(context.Background(), odp("", 0, 1))
	var invalid *InvalidError
	assert.ErrorAs(t, err, &invalid)
}

func TestDeleteOrderGuard(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	o, err := g.CreateOrder(ctx, odp("ODP-3", 400, 1))
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	_, err = g.UpdateOrder(ctx, o.ID, models.SchedulePatch("m1", start, start.Add(time.Hour)))
	require.NoError(t, err)

	err = g.DeleteOrder(ctx, o.ID)
	var scheduled *integrity.OrderScheduledError
	require.ErrorAs(t, err, &scheduled)
	_, err = g.GetOrder(ctx, o.ID)
	require.NoError(t, err)

	_, err = g.UpdateOrder(ctx, o.ID, models.UnschedulePatch())
	require.NoError(t, err)
	require.NoError(t, g.DeleteOrder(ctx, o.ID))
	_, err = g.GetOrder(ctx, o.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteOrderRejectsOrderScheduledDuringDelete(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	o, err := g.CreateOrder(ctx, odp("ODP-4", 400, 1))
	require.NoError(t, err)

	// Schedule the order inside the delete's transaction, after the status
	// check has already passed.
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	fired := false
	err = g.DB.Callback().Delete().Before("gorm:delete").Register("test:schedule_first", func(tx *gorm.DB) {
		if fired {
			return
		}
		fired = true
		patch := models.SchedulePatch("m1", start, start.Add(time.Hour))
		tx.Session(&gorm.Session{NewDB: true}).
			Model(&models.ProductionOrder{}).
			Where("id = ?", o.ID).
			Updates(map[string]any(patch))
	})
	require.NoError(t, err)

	err = g.DeleteOrder(ctx, o.ID)
	require.True(t, fired)
	var scheduled *integrity.OrderScheduledError
	require.ErrorAs(t, err, &scheduled)

	got, err := g.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderScheduled, got.Status)
}

func TestAvailabilityUpsert(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	hours, err := g.GetAvailability(ctx, "m1", day)
	require.NoError(t, err)
	assert.Empty(t, hours)

	require.NoError(t, g.SetAvailability(ctx, "m1", day, []int{14, 9, 9}))
	hours, err = g.GetAvailability(ctx, "m1", day)
	require.NoError(t, err)
	assert.Equal(t, []int{9, 14}, hours)

	require.NoError(t, g.SetAvailability(ctx, "m1", day, []int{3}))
	hours, err = g.GetAvailability(ctx, "m1", day)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, hours)

	recs, err := g.ListAvailability(ctx, "m1", day, day.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestCachedGatewayInvalidatesOnWrite(t *testing.T) {
	g := openTestGateway(t)
	c := NewCachedGateway(g, 16, time.Minute)
	ctx := context.Background()

	o, err := c.CreateOrder(ctx, odp("ODP-4", 400, 1))
	require.NoError(t, err)

	orders, err := c.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	// A write that bypasses the cache stays invisible until the TTL expires.
	_, err = g.CreateOrder(ctx, odp("ODP-5", 400, 1))
	require.NoError(t, err)
	orders, err = c.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	_, err = c.UpdateOrder(ctx, o.ID, models.SchedulePatch("m1", start, start.Add(time.Hour)))
	require.NoError(t, err)
	orders, err = c.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(2), misses)

	day := start.Truncate(24 * time.Hour)
	_, err = c.GetAvailability(ctx, "m1", day)
	require.NoError(t, err)
	require.NoError(t, c.SetAvailability(ctx, "m1", day, []int{8}))
	hours, err := c.GetAvailability(ctx, "m1", day)
	require.NoError(t, err)
	assert.Equal(t, []int{8}, hours)
}

func TestEngineOverGormGateway(t *testing.T) {
	g := openTestGateway(t)
	c := NewCachedGateway(g, 16, 3*time.Second)
	ctx := context.Background()

	m, err := c.CreateMachine(ctx, flexo("M1"))
	require.NoError(t, err)
	o1, err := c.CreateOrder(ctx, odp("O1", 400, 2))
	require.NoError(t, err)
	o2, err := c.CreateOrder(ctx, odp("O2", 400, 2))
	require.NoError(t, err)

	e := scheduler.NewEngine(c, scheduler.NewStore(), scheduler.Options{})
	require.NoError(t, e.Refresh(ctx))

	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	_, err = e.Schedule(ctx, o1.ID, m.ID, start)
	require.NoError(t, err)

	stored, err := g.GetOrder(ctx, o1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderScheduled, stored.Status)
	assert.True(t, stored.ScheduledEndTime.Equal(start.Add(2*time.Hour)))

	_, err = e.Schedule(ctx, o2.ID, m.ID, start.Add(time.Hour))
	var vf *scheduler.ValidationFailure
	require.ErrorAs(t, err, &vf)

	require.NoError(t, e.Refresh(ctx))
	assert.Len(t, e.Store().Events(), 1)

	_, err = e.MarkUnavailable(ctx, m.ID, start, start, scheduler.HourRange{From: 14, To: 16})
	require.NoError(t, err)
	hours, err := g.GetAvailability(ctx, m.ID, start)
	require.NoError(t, err)
	assert.Equal(t, []int{14, 15}, hours)
}
