package release

import "fmt"

const illegalTransitionTemplateConstant = "illegal release transition %s -> %s"

// State is a step of the per-repository release state machine.
type State string

// Release states in execution order. Failed is terminal and reachable from any
// non-terminal state.
const (
	StateDiscovered      State = "DISCOVERED"
	StateCloned          State = "CLONED"
	StateAlreadyReleased State = "ALREADY_RELEASED"
	StateReleasing       State = "RELEASING"
	StateMetaBranched    State = "META_BRANCHED"
	StateMetaRecorded    State = "META_RECORDED"
	StateDeviceBranched  State = "DEVICE_BRANCHED"
	StateMetadataApplied State = "METADATA_APPLIED"
	StateMetaCommitted   State = "META_COMMITTED"
	StateMetaPushed      State = "META_PUSHED"
	StateDeviceCommitted State = "DEVICE_COMMITTED"
	StateTagged          State = "TAGGED"
	StateDevicePushed    State = "DEVICE_PUSHED"
	StateDone            State = "DONE"
	StateFailed          State = "FAILED"
)

var allowedTransitions = map[State][]State{
	StateDiscovered:      {StateCloned},
	StateCloned:          {StateAlreadyReleased, StateReleasing},
	StateReleasing:       {StateMetaBranched},
	StateMetaBranched:    {StateMetaRecorded},
	StateMetaRecorded:    {StateDeviceBranched},
	StateDeviceBranched:  {StateMetadataApplied},
	StateMetadataApplied: {StateMetaCommitted},
	StateMetaCommitted:   {StateMetaPushed},
	StateMetaPushed:      {StateDeviceCommitted},
	StateDeviceCommitted: {StateTagged},
	StateTagged:          {StateDevicePushed},
	StateDevicePushed:    {StateDone},
}

// Terminal reports whether no further transitions leave state.
func (state State) Terminal() bool {
	switch state {
	case StateAlreadyReleased, StateDone, StateFailed:
		return true
	default:
		return false
	}
}

// Status is the user-visible outcome of one repository.
type Status string

// Repository outcomes.
const (
	StatusDone            Status = "DONE"
	StatusAlreadyReleased Status = "ALREADY_RELEASED"
	StatusFailed          Status = "FAILED"
)

// IllegalTransitionError reports a transition outside the state graph.
type IllegalTransitionError struct {
	From State
	To   State
}

// Error describes the rejected transition.
func (transitionError IllegalTransitionError) Error() string {
	return fmt.Sprintf(illegalTransitionTemplateConstant, transitionError.From, transitionError.To)
}

// transitionTrace records the states a repository passes through.
type transitionTrace struct {
	states []State
}

func newTransitionTrace() *transitionTrace {
	return &transitionTrace{states: []State{StateDiscovered}}
}

func (trace *transitionTrace) current() State {
	return trace.states[len(trace.states)-1]
}

func (trace *transitionTrace) advance(next State) error {
	current := trace.current()
	if next == StateFailed && !current.Terminal() {
		trace.states = append(trace.states, next)
		return nil
	}
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			trace.states = append(trace.states, next)
			return nil
		}
	}
	return IllegalTransitionError{From: current, To: next}
}

func (trace *transitionTrace) snapshot() []State {
	return append([]State(nil), trace.states...)
}
