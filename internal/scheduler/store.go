package scheduler

import (
	"cmp"
	"slices"
	"sync"

	"github.com/arnavshah/odp-scheduler-go/internal/models"
)

// Store is the in-memory projection of the machine and order catalogs. Events
// are derived from SCHEDULED orders on every rebuild and never kept apart
// from the orders they come from.
//
// Every order carries a version that advances whenever its scheduling state
// changes, so a persistence result computed against an older state can be
// recognised and dropped.
type Store struct {
	mu       sync.RWMutex
	machines map[string]models.Machine
	byKey    map[string]string
	orders   map[string]models.ProductionOrder
	order    []string
	events   map[string][]models.ScheduledEvent
	versions map[string]uint64
}

// NewStore returns an empty projection.
func NewStore() *Store {
	return &Store{
		machines: make(map[string]models.Machine),
		byKey:    make(map[string]string),
		orders:   make(map[string]models.ProductionOrder),
		events:   make(map[string][]models.ScheduledEvent),
		versions: make(map[string]uint64),
	}
}

// Rebuild replaces the projection with fresh catalog contents.
func (s *Store) Rebuild(machines []models.Machine, orders []models.ProductionOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.machines = make(map[string]models.Machine, len(machines))
	s.byKey = make(map[string]string, len(machines))
	for _, m := range machines {
		s.machines[m.ID] = m
		s.byKey[m.DisplayKey()] = m.ID
	}

	prev := s.orders
	s.orders = make(map[string]models.ProductionOrder, len(orders))
	s.order = make([]string, 0, len(orders))
	versions := make(map[string]uint64, len(orders))
	for _, o := range orders {
		s.orders[o.ID] = o
		s.order = append(s.order, o.ID)
		v := s.versions[o.ID]
		if old, ok := prev[o.ID]; !ok || !old.SamePlacement(o) {
			v++
		}
		versions[o.ID] = v
	}
	s.versions = versions
	s.reindexLocked()
}

// ApplyIfCurrent stores an updated order only when its version still equals
// version. It reports whether the update was applied.
func (s *Store) ApplyIfCurrent(o models.ProductionOrder, version uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions[o.ID] != version {
		return false
	}
	if _, ok := s.orders[o.ID]; !ok {
		s.order = append(s.order, o.ID)
	}
	s.orders[o.ID] = o
	s.versions[o.ID] = version + 1
	s.reindexLocked()
	return true
}

// Version returns the current version of an order.
func (s *Store) Version(orderID string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[orderID]
}

// Order returns an order by id.
func (s *Store) Order(id string) (models.ProductionOrder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	return o, ok
}

// Machine returns a machine by id or by display key.
func (s *Store) Machine(idOrKey string) (models.Machine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.machines[idOrKey]; ok {
		return m, true
	}
	if id, ok := s.byKey[idOrKey]; ok {
		return s.machines[id], true
	}
	return models.Machine{}, false
}

// Machines returns the machine catalog sorted by name.
func (s *Store) Machines() []models.Machine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Machine, 0, len(s.machines))
	for _, m := range s.machines {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b models.Machine) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Orders returns every order in catalog order.
func (s *Store) Orders() []models.ProductionOrder {
	return s.filter(func(models.ProductionOrder) bool { return true })
}

// Scheduled returns the SCHEDULED orders.
func (s *Store) Scheduled() []models.ProductionOrder {
	return s.filter(func(o models.ProductionOrder) bool { return o.IsScheduled() })
}

// Unscheduled returns the backlog: orders in NOT_SCHEDULED.
func (s *Store) Unscheduled() []models.ProductionOrder {
	return s.filter(func(o models.ProductionOrder) bool { return o.Status == models.OrderNotScheduled })
}

func (s *Store) filter(keep func(models.ProductionOrder) bool) []models.ProductionOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ProductionOrder, 0, len(s.order))
	for _, id := range s.order {
		if o := s.orders[id]; keep(o) {
			out = append(out, o)
		}
	}
	return out
}

// Events returns every derived event ordered by machine then start time.
func (s *Store) Events() []models.ScheduledEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.events))
	for k := range s.events {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var out []models.ScheduledEvent
	for _, k := range keys {
		out = append(out, s.events[k]...)
	}
	return out
}

// EventsForMachine returns the events on one machine sorted by start time.
// Events that reference the machine by display key are included.
func (s *Store) EventsForMachine(idOrKey string) []models.ScheduledEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.events[idOrKey])
	if m, ok := s.machines[idOrKey]; ok && m.DisplayKey() != idOrKey {
		out = append(out, s.events[m.DisplayKey()]...)
	} else if id, ok := s.byKey[idOrKey]; ok && id != idOrKey {
		out = append(out, s.events[id]...)
	}
	sortEvents(out)
	return out
}

func (s *Store) reindexLocked() {
	s.events = make(map[string][]models.ScheduledEvent)
	for _, id := range s.order {
		if ev, ok := s.orders[id].Event(); ok {
			s.events[ev.MachineID] = append(s.events[ev.MachineID], ev)
		}
	}
	for _, evs := range s.events {
		sortEvents(evs)
	}
}

func sortEvents(evs []models.ScheduledEvent) {
	slices.SortFunc(evs, func(a, b models.ScheduledEvent) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(a.OrderID, b.OrderID)
	})
}
