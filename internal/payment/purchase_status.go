package payment

// PurchaseStatus mirrors the payment outcome on the purchase record
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
	PurchaseRefunded  PurchaseStatus = "refunded"
)

func (s PurchaseStatus) IsTerminal() bool {
	return s != PurchasePending
}

// PurchaseStatusFor maps a payment status onto the purchase it settles.
func PurchaseStatusFor(s Status) PurchaseStatus {
	switch s {
	case StatusCompleted:
		return PurchaseCompleted
	case StatusCancelled, StatusFailed:
		return PurchaseFailed
	default:
		return PurchasePending
	}
}
