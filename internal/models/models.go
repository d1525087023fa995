package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Department is the production stage a machine or order belongs to.
type Department string

const (
	DepartmentPrinting  Department = "PRINTING"
	DepartmentPackaging Department = "PACKAGING"
)

// WorkCenter is the physical site a machine is installed in.
type WorkCenter string

const (
	WorkCenterZanica       WorkCenter = "ZANICA"
	WorkCenterBustoGarolfo WorkCenter = "BUSTO_GAROLFO"
)

// MachineType narrows a machine within its department.
type MachineType string

const (
	MachineTypeDigital     MachineType = "DIGITAL"
	MachineTypeFlexo       MachineType = "FLEXO"
	MachineTypeRotogravure MachineType = "ROTOGRAVURE"
	MachineTypeBagMaker    MachineType = "BAG_MAKER"
	MachineTypeDoypack     MachineType = "DOYPACK"
	MachineTypeSlitter     MachineType = "SLITTER"
)

// MachineStatus is the operating state of a machine.
type MachineStatus string

const (
	MachineActive      MachineStatus = "ACTIVE"
	MachineMaintenance MachineStatus = "MAINTENANCE"
	MachineInactive    MachineStatus = "INACTIVE"
)

// OrderStatus is the lifecycle state of a production order. Only the first two
// values are written by the scheduler.
type OrderStatus string

const (
	OrderNotScheduled OrderStatus = "NOT_SCHEDULED"
	OrderScheduled    OrderStatus = "SCHEDULED"
	OrderInProgress   OrderStatus = "IN_PROGRESS"
	OrderCompleted    OrderStatus = "COMPLETED"
)

var machineTypesByDepartment = map[Department][]MachineType{
	DepartmentPrinting:  {MachineTypeDigital, MachineTypeFlexo, MachineTypeRotogravure},
	DepartmentPackaging: {MachineTypeBagMaker, MachineTypeDoypack, MachineTypeSlitter},
}

// MachineTypesFor returns the machine types allowed in a department.
func MachineTypesFor(d Department) []MachineType {
	return slices.Clone(machineTypesByDepartment[d])
}

// Valid reports whether d is a known department.
func (d Department) Valid() bool {
	_, ok := machineTypesByDepartment[d]
	return ok
}

// Valid reports whether w is a known work center.
func (w WorkCenter) Valid() bool {
	return w == WorkCenterZanica || w == WorkCenterBustoGarolfo
}

// Valid reports whether s is a known machine status.
func (s MachineStatus) Valid() bool {
	return s == MachineActive || s == MachineMaintenance || s == MachineInactive
}

// Machine represents the machines table
type Machine struct {
	ID            string        `gorm:"primaryKey;size:36" json:"id"`
	Name          string        `gorm:"size:128;not null;uniqueIndex" json:"machine_name"`
	WorkCenter    WorkCenter    `gorm:"size:32;not null" json:"work_center"`
	Department    Department    `gorm:"size:16;not null;index" json:"department"`
	MachineType   MachineType   `gorm:"size:32;not null" json:"machine_type"`
	Status        MachineStatus `gorm:"size:16;not null;default:ACTIVE" json:"status"`
	MinWebWidth   *float64      `json:"min_web_width"`
	MaxWebWidth   *float64      `json:"max_web_width"`
	MinBagHeight  *float64      `json:"min_bag_height"`
	MaxBagHeight  *float64      `json:"max_bag_height"`
	StandardSpeed float64       `gorm:"not null;default:0" json:"standard_speed"`

	// Printing machines require SetupTime and ChangeoverColor, packaging
	// machines require ChangeoverMaterial. Hours.
	SetupTime          *float64 `json:"setup_time"`
	ChangeoverColor    *float64 `json:"changeover_color"`
	ChangeoverMaterial *float64 `json:"changeover_material"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayKey is the human facing key events use to reference a machine.
func (m Machine) DisplayKey() string {
	return m.Name
}

// Validate checks the catalog invariants of a machine.
func (m Machine) Validate() error {
	var errs []error
	if m.Name == "" {
		errs = append(errs, errors.New("machine_name is required"))
	}
	if !m.WorkCenter.Valid() {
		errs = append(errs, fmt.Errorf("unknown work center %q", m.WorkCenter))
	}
	if !m.Department.Valid() {
		errs = append(errs, fmt.Errorf("unknown department %q", m.Department))
	} else if !slices.Contains(MachineTypesFor(m.Department), m.MachineType) {
		errs = append(errs, fmt.Errorf("machine type %q is not allowed in department %s", m.MachineType, m.Department))
	}
	if !m.Status.Valid() {
		errs = append(errs, fmt.Errorf("unknown machine status %q", m.Status))
	}
	for name, v := range map[string]*float64{
		"min_web_width":       m.MinWebWidth,
		"max_web_width":       m.MaxWebWidth,
		"min_bag_height":      m.MinBagHeight,
		"max_bag_height":      m.MaxBagHeight,
		"setup_time":          m.SetupTime,
		"changeover_color":    m.ChangeoverColor,
		"changeover_material": m.ChangeoverMaterial,
	} {
		if v != nil && *v < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0", name))
		}
	}
	if m.StandardSpeed < 0 {
		errs = append(errs, errors.New("standard_speed must be >= 0"))
	}
	if m.MinWebWidth != nil && m.MaxWebWidth != nil && *m.MinWebWidth > *m.MaxWebWidth {
		errs = append(errs, errors.New("min_web_width must not exceed max_web_width"))
	}
	if m.MinBagHeight != nil && m.MaxBagHeight != nil && *m.MinBagHeight > *m.MaxBagHeight {
		errs = append(errs, errors.New("min_bag_height must not exceed max_bag_height"))
	}
	switch m.Department {
	case DepartmentPrinting:
		if m.SetupTime == nil || m.ChangeoverColor == nil {
			errs = append(errs, errors.New("printing machines require setup_time and changeover_color"))
		}
	case DepartmentPackaging:
		if m.ChangeoverMaterial == nil {
			errs = append(errs, errors.New("packaging machines require changeover_material"))
		}
	}
	return errors.Join(errs...)
}

// Phase represents a processing phase an order goes through. Its parameters
// feed the upstream cost/time calculation that produces ProductionOrder.Duration.
type Phase struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	Name       string     `gorm:"size:128;not null;uniqueIndex" json:"name"`
	Department Department `gorm:"size:16;not null" json:"department"`
	SetupTime  float64    `gorm:"not null;default:0" json:"setup_time"`
	Speed      float64    `gorm:"not null;default:0" json:"speed"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ProductionOrder (ODP) represents the production_orders table. The order
// catalog is the single source of truth for scheduling state.
type ProductionOrder struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	OrderNumber string     `gorm:"size:64;not null;uniqueIndex" json:"odp_number"`
	ArticleCode string     `gorm:"size:64" json:"article_code"`
	BagWidth    float64    `gorm:"not null" json:"bag_width"`
	BagHeight   float64    `gorm:"not null" json:"bag_height"`
	BagStep     float64    `gorm:"not null" json:"bag_step"`
	Department  Department `gorm:"size:16;not null;index" json:"department"`
	PhaseID     string     `gorm:"size:36;index" json:"fase"`
	Quantity    int        `gorm:"not null" json:"quantity"`
	Duration    float64    `gorm:"not null;default:0" json:"duration"`

	ScheduledMachineID *string     `gorm:"column:scheduled_machine_id;size:36;index" json:"scheduled_machine_id"`
	ScheduledStartTime *time.Time  `gorm:"column:scheduled_start_time" json:"scheduled_start_time"`
	ScheduledEndTime   *time.Time  `gorm:"column:scheduled_end_time" json:"scheduled_end_time"`
	Status             OrderStatus `gorm:"column:status;size:16;not null;default:NOT_SCHEDULED;index" json:"status"`
	Color              string      `gorm:"column:color;size:16" json:"color"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsScheduled reports whether the order currently occupies a machine.
func (o ProductionOrder) IsScheduled() bool {
	return o.Status == OrderScheduled
}

// DurationTime converts the hour based duration to a time.Duration, rounded
// to the second.
func (o ProductionOrder) DurationTime() time.Duration {
	return time.Duration(o.Duration*3600) * time.Second
}

// SchedulingConsistent reports whether the scheduling fields obey the
// all-set-iff-SCHEDULED rule.
func (o ProductionOrder) SchedulingConsistent() bool {
	set := o.ScheduledMachineID != nil && o.ScheduledStartTime != nil && o.ScheduledEndTime != nil
	unset := o.ScheduledMachineID == nil && o.ScheduledStartTime == nil && o.ScheduledEndTime == nil
	if o.IsScheduled() {
		return set
	}
	return unset
}

// SamePlacement reports whether two snapshots of an order carry the same
// scheduling state.
func (o ProductionOrder) SamePlacement(other ProductionOrder) bool {
	return o.Status == other.Status &&
		equalString(o.ScheduledMachineID, other.ScheduledMachineID) &&
		equalTime(o.ScheduledStartTime, other.ScheduledStartTime) &&
		equalTime(o.ScheduledEndTime, other.ScheduledEndTime)
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Validate checks the catalog invariants of an order.
func (o ProductionOrder) Validate() error {
	var errs []error
	if o.OrderNumber == "" {
		errs = append(errs, errors.New("odp_number is required"))
	}
	if o.BagWidth <= 0 {
		errs = append(errs, errors.New("bag_width must be > 0"))
	}
	if o.BagHeight <= 0 {
		errs = append(errs, errors.New("bag_height must be > 0"))
	}
	if o.BagStep <= 0 {
		errs = append(errs, errors.New("bag_step must be > 0"))
	}
	if !o.Department.Valid() {
		errs = append(errs, fmt.Errorf("unknown department %q", o.Department))
	}
	if o.Quantity <= 0 {
		errs = append(errs, errors.New("quantity must be > 0"))
	}
	if o.Duration < 0 {
		errs = append(errs, errors.New("duration must be >= 0"))
	}
	if !o.SchedulingConsistent() {
		errs = append(errs, errors.New("scheduling fields must all be set iff status is SCHEDULED"))
	}
	return errors.Join(errs...)
}

// Event projects a scheduled order into its event. ok is false for any order
// that is not SCHEDULED or whose scheduling fields are incomplete.
func (o ProductionOrder) Event() (ScheduledEvent, bool) {
	if !o.IsScheduled() || o.ScheduledMachineID == nil || o.ScheduledStartTime == nil || o.ScheduledEndTime == nil {
		return ScheduledEvent{}, false
	}
	return ScheduledEvent{
		ID:        "event-" + o.ID,
		OrderID:   o.ID,
		MachineID: *o.ScheduledMachineID,
		StartTime: *o.ScheduledStartTime,
		EndTime:   *o.ScheduledEndTime,
		Color:     o.Color,
	}, true
}

// ScheduledEvent is derived from a SCHEDULED order and never stored on its own.
type ScheduledEvent struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	MachineID string    `json:"machineId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Color     string    `json:"color,omitempty"`
}

// Hours is a set of hours of the day (0..23) persisted as a JSON array.
type Hours []int

// Value implements driver.Valuer.
func (h Hours) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int(h))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (h *Hours) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*h = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("models: cannot scan %T into Hours", src)
	}
	var out []int
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*h = out
	return nil
}

// Normalize returns the sorted, de-duplicated hours inside 0..23.
func (h Hours) Normalize() Hours {
	out := make(Hours, 0, len(h))
	for _, v := range h {
		if v < 0 || v > 23 || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// DateLayout is the calendar day format used for availability keys.
const DateLayout = "2006-01-02"

// AvailabilityRecord represents the machine_availability table
type AvailabilityRecord struct {
	ID               uint      `gorm:"primaryKey" json:"-"`
	MachineID        string    `gorm:"size:36;uniqueIndex:idx_machine_date;not null" json:"machineId"`
	Date             string    `gorm:"size:10;uniqueIndex:idx_machine_date;not null" json:"date"`
	UnavailableHours Hours     `gorm:"type:text;not null" json:"unavailableHours"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName keeps the availability table name stable across backends.
func (AvailabilityRecord) TableName() string {
	return "machine_availability"
}
