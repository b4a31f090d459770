package service

import (
	"fmt"
	"sync"

	"meme-token-ledger/internal/solana"
)

// recordLocks holds one mutex per record set. An operation keeps the lock of
// its record set from the store update until its events are emitted, so the
// events of one record set carry sequence numbers in commit order.
type recordLocks struct {
	m sync.Map // string -> *sync.Mutex
}

func (l *recordLocks) lock(key string) (unlock func()) {
	v, _ := l.m.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func rewardsLock(mint solana.Pubkey) string {
	return "rewards:" + mint.String()
}

func governanceLock(mint solana.Pubkey) string {
	return "governance:" + mint.String()
}

func proposalLock(mint solana.Pubkey, id uint64) string {
	return fmt.Sprintf("proposal:%s:%d", mint, id)
}
