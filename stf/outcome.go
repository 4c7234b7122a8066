package stf

import (
	"fmt"

	"github.com/Workiva/go-datastructures/set"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/stelo/blockproof/dyengine/state"
	"github.com/stelo/blockproof/witness"
)

// Outcome is everything one execution pass produces: the final value
// of every touched account and slot, the receipts, and the total gas.
// Two passes over the same block agree if and only if their Outcomes
// are exactly equal.
type Outcome struct {
	Deltas   map[common.Address]state.AccountDelta
	Receipts types.Receipts
	GasUsed  uint64
}

// ReceiptsRoot derives the canonical receipts trie root, which also
// commits to every log the execution emitted.
func (o *Outcome) ReceiptsRoot() common.Hash {
	return types.DeriveSha(o.Receipts, trie.NewStackTrie(nil))
}

// Diff compares the discovery-pass outcome with the replay-pass
// outcome. Any divergence at all, down to a single storage slot or log,
// yields an ErrReplayMismatch describing the first difference found.
func Diff(discovery, replay *Outcome) error {
	if discovery.GasUsed != replay.GasUsed {
		return mismatch("gas used %d vs %d", discovery.GasUsed, replay.GasUsed)
	}
	if len(discovery.Receipts) != len(replay.Receipts) {
		return mismatch(
			"receipt count %d vs %d", len(discovery.Receipts), len(replay.Receipts),
		)
	}
	if d, r := discovery.ReceiptsRoot(), replay.ReceiptsRoot(); d != r {
		return mismatch("receipts root %s vs %s", d, r)
	}

	universe := set.New()
	for addr := range discovery.Deltas {
		universe.Add(addr)
	}
	for addr := range replay.Deltas {
		universe.Add(addr)
	}
	for _, item := range universe.Flatten() {
		addr := item.(common.Address)
		d, inDiscovery := discovery.Deltas[addr]
		r, inReplay := replay.Deltas[addr]
		if !inDiscovery || !inReplay {
			return mismatch("account %s touched in only one pass", addr)
		}
		if err := diffAccount(addr, d, r); err != nil {
			return err
		}
	}
	return nil
}

func diffAccount(addr common.Address, d, r state.AccountDelta) error {
	if d.Exists != r.Exists {
		return mismatch("account %s existence %t vs %t", addr, d.Exists, r.Exists)
	}
	if d.Balance.Cmp(r.Balance) != 0 {
		return mismatch("account %s balance %s vs %s", addr, d.Balance, r.Balance)
	}
	if d.Nonce != r.Nonce {
		return mismatch("account %s nonce %d vs %d", addr, d.Nonce, r.Nonce)
	}
	if d.CodeHash != r.CodeHash {
		return mismatch("account %s code hash %s vs %s", addr, d.CodeHash, r.CodeHash)
	}

	slots := set.New()
	for slot := range d.Storage {
		slots.Add(slot)
	}
	for slot := range r.Storage {
		slots.Add(slot)
	}
	for _, item := range slots.Flatten() {
		slot := item.(common.Hash)
		dv, inD := d.Storage[slot]
		rv, inR := r.Storage[slot]
		if !inD || !inR {
			return mismatch("slot %s of account %s touched in only one pass", slot, addr)
		}
		if dv != rv {
			return mismatch("slot %s of account %s: %s vs %s", slot, addr, dv, rv)
		}
	}
	return nil
}

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", witness.ErrReplayMismatch, fmt.Sprintf(format, args...))
}
