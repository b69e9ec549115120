package verification

import "sync"

// addressLocks serializes the read-aggregate-decide-enforce sequence per
// source address. Alerts for different addresses proceed fully in parallel;
// two concurrent alerts for the same address can never both act on the same
// pre-append snapshot of the ledger.
type addressLocks struct {
	mu    sync.Mutex
	locks map[string]*addressLock
}

type addressLock struct {
	mu   sync.Mutex
	refs int
}

func newAddressLocks() *addressLocks {
	return &addressLocks{locks: make(map[string]*addressLock)}
}

// lock acquires the per-address critical section and returns its release
// function. Entries are reference-counted and removed once idle so the map
// does not grow with every address ever seen.
func (al *addressLocks) lock(address string) func() {
	al.mu.Lock()
	entry, ok := al.locks[address]
	if !ok {
		entry = &addressLock{}
		al.locks[address] = entry
	}
	entry.refs++
	al.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		al.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(al.locks, address)
		}
		al.mu.Unlock()
	}
}
