package service

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	id "authority/pkg/domain"
)

// stripedMutex serializes work per user without a lock per user. Two users
// may share a stripe; that only costs throughput.
type stripedMutex struct {
	stripes []sync.Mutex
}

func newStripedMutex(n int) *stripedMutex {
	return &stripedMutex{stripes: make([]sync.Mutex, n)}
}

func (m *stripedMutex) lock(userID id.UserID) func() {
	mu := &m.stripes[xxhash.Sum64String(userID.String())%uint64(len(m.stripes))]
	mu.Lock()
	return mu.Unlock
}
