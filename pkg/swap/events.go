package swap

import (
	"fmt"

	"xswap/pkg/types"
)

// Phase is the orchestrator state
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseQuoting
	PhaseCheckingAllowance
	PhaseAwaitingApproval
	PhaseConfirmingApproval
	PhaseBuilding
	PhaseSigning
	PhaseSubmitting
	PhasePolling
	PhaseSucceeded
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseIdle:               "idle",
	PhaseQuoting:            "quoting",
	PhaseCheckingAllowance:  "checking-allowance",
	PhaseAwaitingApproval:   "awaiting-approval",
	PhaseConfirmingApproval: "confirming-approval",
	PhaseBuilding:           "building",
	PhaseSigning:            "signing",
	PhaseSubmitting:         "submitting",
	PhasePolling:            "polling",
	PhaseSucceeded:          "succeeded",
	PhaseFailed:             "failed",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// submitting reports whether p belongs to an order placement in progress
func (p Phase) submitting() bool {
	return p >= PhaseCheckingAllowance && p <= PhaseSubmitting
}

// EventKind tells observers what changed
type EventKind int

const (
	EventPhaseChanged EventKind = iota
	EventQuoteUpdated
	EventOrderCreated
	EventOrderUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventPhaseChanged:
		return "phase-changed"
	case EventQuoteUpdated:
		return "quote-updated"
	case EventOrderCreated:
		return "order-created"
	case EventOrderUpdated:
		return "order-updated"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is delivered to observers after the state change it describes
type Event struct {
	Kind     EventKind
	Phase    Phase
	Progress int
	Quote    *types.Quote       // EventQuoteUpdated; nil when the quote was discarded
	Order    *types.OrderRecord // EventOrderCreated, EventOrderUpdated
	Err      error              // EventPhaseChanged into Failed or back to Idle after an error
}

// Observer receives events synchronously. It must not block.
type Observer func(Event)
