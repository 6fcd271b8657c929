package quotes

import "fmt"

// Status is the lifecycle state of a quotation.
type Status string

const (
	StatusPending         Status = "pendiente"
	StatusNegotiation     Status = "negociacion"
	StatusClosing         Status = "en_cierre"
	StatusContractPending Status = "contract_pending"
	StatusAuthorized      Status = "autorizada"
	StatusApproved        Status = "aprobada"
	StatusCancelled       Status = "cancelada"
	StatusArchived        Status = "archivada"
)

var knownStatuses = map[Status]struct{}{
	StatusPending: {}, StatusNegotiation: {}, StatusClosing: {}, StatusContractPending: {},
	StatusAuthorized: {}, StatusApproved: {}, StatusCancelled: {}, StatusArchived: {},
}

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if _, ok := knownStatuses[s]; !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
	}
	return s, nil
}

// Authorized reports whether items and core fields are immutable.
func (s Status) Authorized() bool {
	return s == StatusAuthorized || s == StatusApproved
}

// Terminal reports whether no further transition except deletion is possible.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusArchived
}

// Event is a lifecycle trigger.
type Event string

const (
	EventUpdate            Event = "update"
	EventNegotiate         Event = "negotiate"
	EventPassToClosing     Event = "pass_to_closing"
	EventCancelClosing     Event = "cancel_closing"
	EventAuthorize         Event = "authorize"
	EventConfirmContract   Event = "confirm_contract"
	EventCancel            Event = "cancel"
	EventArchive           Event = "archive"
	EventRevise            Event = "revise"
	EventAuthorizeRevision Event = "authorize_revision"
	EventReplace           Event = "replace"
)

type transitionKey struct {
	from  Status
	event Event
}

// restorePrior marks transitions whose target is the status recorded before closing.
const restorePrior Status = ""

// transitions is the complete state machine. A missing entry is an illegal transition.
var transitions = map[transitionKey]Status{
	{StatusPending, EventUpdate}:         StatusPending,
	{StatusNegotiation, EventUpdate}:     StatusNegotiation,
	{StatusClosing, EventUpdate}:         StatusClosing,
	{StatusContractPending, EventUpdate}: StatusContractPending,

	{StatusPending, EventNegotiate}: StatusNegotiation,

	{StatusPending, EventPassToClosing}:     StatusClosing,
	{StatusNegotiation, EventPassToClosing}: StatusClosing,
	{StatusClosing, EventCancelClosing}:     restorePrior,

	{StatusPending, EventAuthorize}:     StatusContractPending,
	{StatusNegotiation, EventAuthorize}: StatusContractPending,
	{StatusClosing, EventAuthorize}:     StatusContractPending,

	{StatusContractPending, EventConfirmContract}: StatusAuthorized,

	{StatusPending, EventCancel}:         StatusCancelled,
	{StatusNegotiation, EventCancel}:     StatusCancelled,
	{StatusClosing, EventCancel}:         StatusCancelled,
	{StatusContractPending, EventCancel}: StatusCancelled,
	{StatusAuthorized, EventCancel}:      StatusCancelled,
	{StatusApproved, EventCancel}:        StatusCancelled,

	{StatusPending, EventArchive}:         StatusArchived,
	{StatusNegotiation, EventArchive}:     StatusArchived,
	{StatusClosing, EventArchive}:         StatusArchived,
	{StatusContractPending, EventArchive}: StatusArchived,

	{StatusContractPending, EventRevise}: StatusContractPending,
	{StatusAuthorized, EventRevise}:      StatusAuthorized,
	{StatusApproved, EventRevise}:        StatusApproved,

	{StatusPending, EventAuthorizeRevision}: StatusApproved,

	{StatusContractPending, EventReplace}: StatusCancelled,
	{StatusAuthorized, EventReplace}:      StatusCancelled,
	{StatusApproved, EventReplace}:        StatusCancelled,
}

// Next returns the status reached from s on event e, or ErrInvalidState.
func Next(s Status, e Event) (Status, error) {
	to, ok := transitions[transitionKey{s, e}]
	if !ok {
		return "", fmt.Errorf("%w: cannot %s a quotation in status %s", ErrInvalidState, e, s)
	}
	if to == restorePrior {
		return "", fmt.Errorf("%w: %s requires the recorded prior status", ErrInvalidState, e)
	}
	return to, nil
}

// Restore returns the status cancel-closing goes back to.
func Restore(s Status, prior Status) (Status, error) {
	to, ok := transitions[transitionKey{s, EventCancelClosing}]
	if !ok || to != restorePrior {
		return "", fmt.Errorf("%w: cannot %s a quotation in status %s", ErrInvalidState, EventCancelClosing, s)
	}
	if _, ok := transitions[transitionKey{prior, EventPassToClosing}]; !ok {
		return "", fmt.Errorf("%w: recorded prior status %q cannot be restored", ErrInvalidState, prior)
	}
	return prior, nil
}

// Allowed reports whether e is legal from s.
func Allowed(s Status, e Event) bool {
	_, ok := transitions[transitionKey{s, e}]
	return ok
}
