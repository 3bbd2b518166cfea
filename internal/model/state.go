package model

// State is the lifecycle state of a task.
//
// A task moves forward only: UNKNOWN -> SENT -> PENDING -> SUCCESS | FAILURE.
// StateUnknown is implicit, it means no record exists for the ID.
type State string

const (
	StateUnknown State = ""
	StateSent    State = "SENT"
	StatePending State = "PENDING"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

// rank orders states along the lifecycle. Both terminal states share the
// top rank, so neither can overwrite the other.
var rank = map[State]int{
	StateUnknown: 0,
	StateSent:    1,
	StatePending: 2,
	StateSuccess: 3,
	StateFailure: 3,
}

// Before reports whether s precedes other in the lifecycle.
func (s State) Before(other State) bool {
	return rank[s] < rank[other]
}

// Terminal reports whether no further transition can occur from s.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}
