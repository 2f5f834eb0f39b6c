package domain

type CheckoutState string

const (
	CheckoutInitiated   CheckoutState = "initiated"
	CheckoutValidating  CheckoutState = "validating"
	CheckoutLocking     CheckoutState = "locking"
	CheckoutReconciling CheckoutState = "reconciling"
	CheckoutCommitting  CheckoutState = "committing"
	CheckoutCompleted   CheckoutState = "completed"
	CheckoutAborted     CheckoutState = "aborted"
)

var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutInitiated:   {CheckoutValidating},
	CheckoutValidating:  {CheckoutLocking, CheckoutAborted},
	CheckoutLocking:     {CheckoutReconciling, CheckoutAborted},
	CheckoutReconciling: {CheckoutCommitting, CheckoutAborted},
	CheckoutCommitting:  {CheckoutCompleted, CheckoutAborted},
}

func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutCompleted || s == CheckoutAborted
}

func (s CheckoutState) String() string {
	return string(s)
}

func CanTransitionTo(from, to CheckoutState) bool {
	for _, next := range checkoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
