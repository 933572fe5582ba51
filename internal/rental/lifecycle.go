// Package rental implements the lifecycle of a rental deal, from reservation
// through signed contract to physical handover.
package rental

import (
	"errors"
	"fmt"

	"github.com/xelth-com/eckrentgo/internal/models"
)

// State and Event are stored on the record, so they live in models
type (
	State = models.RentalState
	Event = models.RentalEvent
)

const (
	StateReserved          State = "reserved"
	StatePaid              State = "paid"
	StateDocsSubmitted     State = "docs_submitted"
	StateDocsVerified      State = "docs_verified"
	StateContractGenerated State = "contract_generated"
	StateTenantSigned      State = "tenant_signed"
	StateOwnerSigned       State = "owner_signed"
	StateAccountantChecked State = "accountant_checked"
	StateAdminApproved     State = "admin_approved"
	StateHandoverReady     State = "handover_ready"
	StateHandoverCompleted State = "handover_completed"
)

const (
	EventReserve          Event = "reserve"
	EventPay              Event = "pay"
	EventSubmitDocs       Event = "submit_docs"
	EventVerifyDocs       Event = "verify_docs"
	EventGenerateContract Event = "generate_contract"
	EventSignTenant       Event = "sign_tenant"
	EventSignOwner        Event = "sign_owner"
	EventCheckAccountant  Event = "check_accountant"
	EventApproveAdmin     Event = "approve_admin"
	EventPrepareHandover  Event = "prepare_handover"
	EventHandoverDone     Event = "handover_done"
)

// InitialState is where every record starts
const InitialState = StateReserved

// Rule lists the source states an event is valid from and where it leads
type Rule struct {
	From []State
	To   State
}

// Transitions is the complete lifecycle graph. reserve from paid is the only
// backward edge.
var Transitions = map[Event]Rule{
	EventReserve:          {From: []State{StateReserved, StatePaid}, To: StateReserved},
	EventPay:              {From: []State{StateReserved}, To: StatePaid},
	EventSubmitDocs:       {From: []State{StatePaid}, To: StateDocsSubmitted},
	EventVerifyDocs:       {From: []State{StateDocsSubmitted}, To: StateDocsVerified},
	EventGenerateContract: {From: []State{StateDocsVerified}, To: StateContractGenerated},
	EventSignTenant:       {From: []State{StateContractGenerated}, To: StateTenantSigned},
	EventSignOwner:        {From: []State{StateTenantSigned}, To: StateOwnerSigned},
	EventCheckAccountant:  {From: []State{StateOwnerSigned}, To: StateAccountantChecked},
	EventApproveAdmin:     {From: []State{StateAccountantChecked}, To: StateAdminApproved},
	EventPrepareHandover:  {From: []State{StateAdminApproved}, To: StateHandoverReady},
	EventHandoverDone:     {From: []State{StateHandoverReady}, To: StateHandoverCompleted},
}

// eventOrder is the order events are listed in
var eventOrder = []Event{
	EventReserve, EventPay, EventSubmitDocs, EventVerifyDocs, EventGenerateContract,
	EventSignTenant, EventSignOwner, EventCheckAccountant, EventApproveAdmin,
	EventPrepareHandover, EventHandoverDone,
}

// States lists all lifecycle states in forward order
func States() []State {
	return []State{
		StateReserved, StatePaid, StateDocsSubmitted, StateDocsVerified,
		StateContractGenerated, StateTenantSigned, StateOwnerSigned,
		StateAccountantChecked, StateAdminApproved, StateHandoverReady,
		StateHandoverCompleted,
	}
}

// Events lists all events
func Events() []Event {
	return append([]Event(nil), eventOrder...)
}

// ErrUnknownEvent is returned for event names outside the table
var ErrUnknownEvent = errors.New("unknown event")

// InvalidTransitionError is returned when the current state is not a valid
// source for the event
type InvalidTransitionError struct {
	From  State
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s from %s", e.Event, e.From)
}

// NotAllowedError rejects a non-transition change in the current state
type NotAllowedError struct {
	State  State
	Action string
}

func (e *NotAllowedError) Error() string {
	return fmt.Sprintf("%s not allowed in state %s", e.Action, e.State)
}

// Next validates event against from and returns the destination state
func Next(from State, event Event) (State, error) {
	rule, ok := Transitions[event]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	for _, s := range rule.From {
		if s == from {
			return rule.To, nil
		}
	}
	return "", &InvalidTransitionError{From: from, Event: event}
}

// Allowed lists the events valid from a state
func Allowed(from State) []Event {
	var out []Event
	for _, ev := range eventOrder {
		if _, err := Next(from, ev); err == nil {
			out = append(out, ev)
		}
	}
	return out
}

// Replay recomputes the current state from an audit trail. The first entry
// is the creation into the initial state; every later one must be a valid
// transition whose recorded destination matches the table.
func Replay(history []models.HistoryEntry) (State, error) {
	if len(history) == 0 {
		return "", errors.New("empty history")
	}
	first := history[0]
	if first.Event != EventReserve || first.To != InitialState {
		return "", fmt.Errorf("history starts with %s -> %s, want %s -> %s", first.Event, first.To, EventReserve, InitialState)
	}
	state := InitialState
	for i, h := range history[1:] {
		next, err := Next(state, h.Event)
		if err != nil {
			return "", fmt.Errorf("history entry %d: %w", i+1, err)
		}
		if next != h.To {
			return "", fmt.Errorf("history entry %d: %s leads to %s, recorded %s", i+1, h.Event, next, h.To)
		}
		state = next
	}
	return state, nil
}
