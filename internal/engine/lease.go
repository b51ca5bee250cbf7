package engine

import "sync"

// leaseTable hands out short-lived exclusive claims per resource address so
// two operations can never touch the same resource concurrently, while
// unrelated resources proceed in parallel.
type leaseTable struct {
	mu   sync.Mutex
	held map[string]string // address -> holder
}

func newLeaseTable() *leaseTable {
	return &leaseTable{held: make(map[string]string)}
}

// Acquire claims the lease on address for holder, failing with a
// LeaseConflictError if another holder has it.
func (l *leaseTable) Acquire(address, holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.held[address]; ok {
		return &LeaseConflictError{Address: address, Holder: h}
	}
	l.held[address] = holder
	return nil
}

// Release gives up the lease on address.
func (l *leaseTable) Release(address string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, address)
}
