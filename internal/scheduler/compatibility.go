package scheduler

import (
	"fmt"

	"github.com/arnavshah/odp-scheduler-go/internal/models"
)

// Compatibility is the outcome of checking a machine against an order.
type Compatibility struct {
	Compatible bool     `json:"compatible"`
	Reasons    []string `json:"reasons"`
}

// CheckCompatibility evaluates every rule and reports all that fail. It is a
// pure function of its inputs.
func CheckCompatibility(machine *models.Machine, order *models.ProductionOrder) Compatibility {
	if machine == nil || order == nil {
		return Compatibility{Reasons: []string{"machine or order data is missing"}}
	}

	reasons := make([]string, 0, 4)
	if machine.Department != order.Department {
		reasons = append(reasons, fmt.Sprintf("department mismatch: machine %s is %s, order %s is %s",
			machine.Name, machine.Department, order.OrderNumber, order.Department))
	}
	if machine.MaxWebWidth != nil && order.BagWidth > *machine.MaxWebWidth {
		reasons = append(reasons, fmt.Sprintf("bag width %g exceeds machine max web width %g",
			order.BagWidth, *machine.MaxWebWidth))
	}
	if machine.MaxBagHeight != nil && order.BagHeight > *machine.MaxBagHeight {
		reasons = append(reasons, fmt.Sprintf("bag height %g exceeds machine max bag height %g",
			order.BagHeight, *machine.MaxBagHeight))
	}
	if machine.Status != models.MachineActive {
		reasons = append(reasons, fmt.Sprintf("machine status is %s, must be %s", machine.Status, models.MachineActive))
	}

	return Compatibility{Compatible: len(reasons) == 0, Reasons: reasons}
}
