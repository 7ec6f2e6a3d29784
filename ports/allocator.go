// Package ports hands out exclusive relay port leases from a fixed pool.
package ports

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrPoolExhausted = errors.New("port pool exhausted")
	ErrPortConflict  = errors.New("port conflict")
)

// Allocator owns the lease table. Explicitly configured ports are tracked as
// reservations and never enter the pool free-list, even when they fall inside
// the pool range.
type Allocator struct {
	lock     sync.Mutex
	min, max int
	leases   map[int]string // port -> stream id
	byStream map[string]int // stream id -> port
	reserved map[int]string // explicit port -> stream id it is reserved for
}

func NewAllocator(min, max int) *Allocator {
	return &Allocator{
		min:      min,
		max:      max,
		leases:   make(map[int]string),
		byStream: make(map[string]int),
		reserved: make(map[int]string),
	}
}

// SetReserved replaces the explicit-port reservation set. Called once per
// reconcile pass with the explicit ports of every enabled config.
func (a *Allocator) SetReserved(reserved map[int]string) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	for port, id := range reserved {
		if holder, ok := a.leases[port]; ok && holder != id {
			return fmt.Errorf("%w: port %d reserved for stream %s but leased to %s",
				ErrPortConflict, port, id, holder)
		}
	}
	a.reserved = make(map[int]string, len(reserved))
	for port, id := range reserved {
		a.reserved[port] = id
	}
	return nil
}

// Acquire leases a port for the given stream. preferred 0 picks the lowest
// free pool port; a non-zero preferred port is granted only if free.
// Acquire is idempotent for a stream already holding a satisfying lease.
func (a *Allocator) Acquire(id string, preferred int) (int, error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if held, ok := a.byStream[id]; ok {
		if preferred == 0 || held == preferred {
			return held, nil
		}
		// stream wants a different port now, drop the old lease first
		delete(a.leases, held)
		delete(a.byStream, id)
	}

	if preferred != 0 {
		if holder, ok := a.leases[preferred]; ok && holder != id {
			return 0, fmt.Errorf("%w: port %d already leased to stream %s",
				ErrPortConflict, preferred, holder)
		}
		if resID, ok := a.reserved[preferred]; ok && resID != id {
			return 0, fmt.Errorf("%w: port %d reserved for stream %s",
				ErrPortConflict, preferred, resID)
		}
		a.commit(id, preferred)
		return preferred, nil
	}

	for port := a.min; port <= a.max; port++ {
		if _, ok := a.leases[port]; ok {
			continue
		}
		if _, ok := a.reserved[port]; ok {
			continue
		}
		a.commit(id, port)
		return port, nil
	}
	return 0, fmt.Errorf("%w: no free port in %d-%d", ErrPoolExhausted, a.min, a.max)
}

func (a *Allocator) commit(id string, port int) {
	a.leases[port] = id
	a.byStream[id] = port
}

// Release frees a lease. Releasing a free port is a no-op.
func (a *Allocator) Release(port int) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if id, ok := a.leases[port]; ok {
		delete(a.leases, port)
		delete(a.byStream, id)
	}
}

// PortOf returns the current lease for a stream, if any.
func (a *Allocator) PortOf(id string) (int, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()
	port, ok := a.byStream[id]
	return port, ok
}

// Leases returns a snapshot of the lease table.
func (a *Allocator) Leases() map[int]string {
	a.lock.Lock()
	defer a.lock.Unlock()
	out := make(map[int]string, len(a.leases))
	for port, id := range a.leases {
		out[port] = id
	}
	return out
}
