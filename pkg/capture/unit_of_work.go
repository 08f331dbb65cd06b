// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"github.com/telekom/auditlog/pkg/audit"
)

// State is the lifecycle state of a unit of work.
type State int

const (
	StateIdle State = iota
	StateTracking
	StateFlushing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTracking:
		return "tracking"
	case StateFlushing:
		return "flushing"
	default:
		return "unknown"
	}
}

type queued struct {
	ref   Ref
	event *audit.Event
}

// UnitOfWork carries the transaction id and event queue of one save or
// delete operation, including its cascades. It is created by the caller,
// passed to every lifecycle call of that operation, and must not be shared
// between goroutines.
type UnitOfWork struct {
	state         State
	transactionID string
	queue         []queued
	index         map[Ref]int
}

// NewUnitOfWork returns an idle unit of work.
func NewUnitOfWork() *UnitOfWork {
	return &UnitOfWork{}
}

// State returns the current lifecycle state.
func (u *UnitOfWork) State() State { return u.state }

// TransactionID returns the id shared by all events of this unit of work.
// It is empty until the first entity is tracked.
func (u *UnitOfWork) TransactionID() string { return u.transactionID }

// Len returns the number of queued events.
func (u *UnitOfWork) Len() int { return len(u.queue) }

// Events returns the queued events in insertion order.
func (u *UnitOfWork) Events() []*audit.Event {
	events := make([]*audit.Event, 0, len(u.queue))
	for _, q := range u.queue {
		events = append(events, q.event)
	}
	return events
}

func (u *UnitOfWork) begin(newID func() string) {
	if u.transactionID == "" {
		u.transactionID = newID()
	}
	if u.index == nil {
		u.index = make(map[Ref]int)
	}
	if u.state == StateIdle {
		u.state = StateTracking
	}
}

// enqueue stores the event for ref. A second event for the same ref replaces
// the first in place.
func (u *UnitOfWork) enqueue(ref Ref, event *audit.Event) {
	if u.index == nil {
		u.index = make(map[Ref]int)
	}
	if i, ok := u.index[ref]; ok {
		u.queue[i].event = event
		return
	}
	u.index[ref] = len(u.queue)
	u.queue = append(u.queue, queued{ref: ref, event: event})
}

// reset drops the queue and the transaction id and returns to idle. The next
// tracked entity starts a new transaction.
func (u *UnitOfWork) reset() {
	u.transactionID = ""
	u.queue = nil
	u.index = nil
	u.state = StateIdle
}
