package device

import (
	"fmt"

	"github.com/banshee-data/bandlink/internal/store"
)

// State is the connection state; it is the same value published to the store.
type State = store.Status

// Event is an input to the connection state machine.
type Event int

const (
	EventConnectRequested Event = iota
	EventEstablished
	EventFailed
	EventDisconnectRequested
	EventLinkLost
	EventPermissionRevoked
)

func (e Event) String() string {
	switch e {
	case EventConnectRequested:
		return "connect-requested"
	case EventEstablished:
		return "established"
	case EventFailed:
		return "failed"
	case EventDisconnectRequested:
		return "disconnect-requested"
	case EventLinkLost:
		return "link-lost"
	case EventPermissionRevoked:
		return "permission-revoked"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Effect is the side effect the machine performs for a transition.
type Effect int

const (
	// EffectNone leaves everything as it is.
	EffectNone Effect = iota
	// EffectBeginAttempt starts a connect attempt.
	EffectBeginAttempt
	// EffectRejectAttempt refuses a second concurrent connect.
	EffectRejectAttempt
	// EffectAdopt retains the attempt's handle and starts the pipeline.
	EffectAdopt
	// EffectAbort ends a failed attempt, keeping the recorded error.
	EffectAbort
	// EffectAbandon cancels an in-flight attempt and resets the store.
	EffectAbandon
	// EffectTeardown releases the handle and resets the store.
	EffectTeardown
)

// Transition is the outcome of one (state, event) pair.
type Transition struct {
	Next   State
	Effect Effect
}

// transitions lists every (state, event) pair. Established and Failed only
// ever come from the current attempt, so outside connecting they are stale
// and ignored.
var transitions = map[State]map[Event]Transition{
	store.Disconnected: {
		EventConnectRequested:    {store.Connecting, EffectBeginAttempt},
		EventEstablished:         {store.Disconnected, EffectNone},
		EventFailed:              {store.Disconnected, EffectNone},
		EventDisconnectRequested: {store.Disconnected, EffectNone},
		EventLinkLost:            {store.Disconnected, EffectNone},
		EventPermissionRevoked:   {store.Disconnected, EffectNone},
	},
	store.Connecting: {
		EventConnectRequested:    {store.Connecting, EffectRejectAttempt},
		EventEstablished:         {store.Connected, EffectAdopt},
		EventFailed:              {store.Disconnected, EffectAbort},
		EventDisconnectRequested: {store.Disconnected, EffectAbandon},
		EventLinkLost:            {store.Disconnected, EffectAbandon},
		EventPermissionRevoked:   {store.Disconnected, EffectAbandon},
	},
	store.Connected: {
		EventConnectRequested:    {store.Connected, EffectNone},
		EventEstablished:         {store.Connected, EffectNone},
		EventFailed:              {store.Connected, EffectNone},
		EventDisconnectRequested: {store.Disconnected, EffectTeardown},
		EventLinkLost:            {store.Disconnected, EffectTeardown},
		EventPermissionRevoked:   {store.Disconnected, EffectTeardown},
	},
}

// Next returns the transition for event in state. It panics on a state or
// event outside the table, which is a programming error.
func Next(state State, event Event) Transition {
	row, ok := transitions[state]
	if !ok {
		panic(fmt.Sprintf("device: no transitions for state %v", state))
	}
	t, ok := row[event]
	if !ok {
		panic(fmt.Sprintf("device: no transition for %v in state %v", event, state))
	}
	return t
}
