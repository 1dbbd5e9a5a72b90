// Package payment holds the settlement state machine shared by the purchase
// orchestrator and the webhook reconciler.
//
// The table is the only place that decides whether a provider callback changes a
// payment. Anything not listed is a no-op: duplicated, delayed and reordered
// deliveries fall through here without side effects.
package payment

// Status of a provider-facing payment
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
)

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Event drives a payment from one status to the next
type Event string

const (
	EventApprove    Event = "approve"
	EventComplete   Event = "complete"
	EventCancel     Event = "cancel"
	EventIncomplete Event = "incomplete"
	EventExpire     Event = "expire"
)

type edge struct {
	from  Status
	event Event
}

var table = map[edge]Status{
	{StatusPending, EventApprove}:     StatusApproved,
	{StatusApproved, EventComplete}:   StatusCompleted,
	{StatusPending, EventCancel}:      StatusCancelled,
	{StatusApproved, EventCancel}:     StatusCancelled,
	{StatusPending, EventIncomplete}:  StatusFailed,
	{StatusApproved, EventIncomplete}: StatusCancelled,
	{StatusPending, EventExpire}:      StatusCancelled,
}

// Transition evaluates event against current. When the edge is not in the table the
// current status is returned unchanged with applied=false.
func Transition(current Status, event Event) (next Status, applied bool) {
	next, ok := table[edge{current, event}]
	if !ok {
		return current, false
	}
	return next, true
}

// CanApply is Transition without the resulting status.
func CanApply(current Status, event Event) bool {
	_, ok := table[edge{current, event}]
	return ok
}
