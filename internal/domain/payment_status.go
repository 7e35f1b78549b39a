package domain

// PaymentStatus is the lifecycle state of a payment in the local ledger.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentSuccess    PaymentStatus = "success"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentCancelled  PaymentStatus = "cancelled"
)

func (s PaymentStatus) String() string { return string(s) }

// IsTerminal reports whether no forward transition exists except through recovery or refund.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentSuccess, PaymentFailed, PaymentRefunded, PaymentCancelled:
		return true
	}
	return false
}

func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	switch st := PaymentStatus(s); st {
	case PaymentPending, PaymentProcessing, PaymentSuccess, PaymentFailed, PaymentRefunded, PaymentCancelled:
		return st, true
	}
	return "", false
}

var transitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:    {PaymentProcessing, PaymentSuccess, PaymentFailed, PaymentCancelled},
	PaymentProcessing: {PaymentSuccess, PaymentFailed, PaymentCancelled},
	PaymentSuccess:    {PaymentRefunded},
}

// CanTransition reports whether from -> to is a legal ledger move. failed -> success is
// only legal when the move is driven by a successful recovery.
func CanTransition(from, to PaymentStatus, viaRecovery bool) bool {
	if from == PaymentFailed && to == PaymentSuccess {
		return viaRecovery
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
