package witness

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/panjf2000/ants/v2"
	"github.com/samber/lo"
)

// ExecutionInput is the self-contained package a discovery pass
// produces: the previous and target blocks, one AccountWitness per
// touched address, and every historical block hash the execution
// referenced. It is constructed once by NetworkStore.Seal and never
// mutated afterwards.
type ExecutionInput struct {
	PrevBlock   *types.Block                       `json:"prevBlock"`
	Block       *types.Block                       `json:"block"`
	Witnesses   map[common.Address]*AccountWitness `json:"witnesses"`
	BlockHashes map[uint64]common.Hash             `json:"blockHashes"`
}

// Addresses returns the read-set of the discovery pass.
func (in *ExecutionInput) Addresses() []common.Address {
	return lo.Keys(in.Witnesses)
}

// VerifyWitnesses checks every witness against the given state root.
// A non-nil pool fans the checks out over its goroutines. The first
// failure invalidates the whole input: a single bad witness means the
// package cannot be trusted at all.
func (in *ExecutionInput) VerifyWitnesses(stateRoot common.Hash, pool *ants.Pool) error {
	if pool == nil {
		for _, w := range in.Witnesses {
			if err := w.Verify(stateRoot); err != nil {
				return fmt.Errorf("witness of %s: %w", w.Address, err)
			}
		}
		return nil
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for _, w := range in.Witnesses {
		w := w
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if err := w.Verify(stateRoot); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("witness of %s: %w", w.Address, err)
				}
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return err
		}
	}
	wg.Wait()
	return firstErr
}
