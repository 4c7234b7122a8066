package witness

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
)

// SealedStore is the replay-pass Store: a read-only view over a
// verified ExecutionInput. It performs no I/O and cannot fetch anything
// not already present; any miss is a hard ErrMissingWitnessData so an
// incomplete or tampered witness set can never pass silently. Safe for
// concurrent readers.
type SealedStore struct {
	input   *ExecutionInput
	storage map[common.Address]map[common.Hash]common.Hash
}

func NewSealedStore(input *ExecutionInput) *SealedStore {
	storage := lo.MapValues(
		input.Witnesses,
		func(w *AccountWitness, _ common.Address) map[common.Hash]common.Hash {
			slots := make(map[common.Hash]common.Hash, len(w.Proof.StorageProof))
			for _, entry := range w.Proof.StorageProof {
				slots[common.HexToHash(entry.Key)] = common.BigToHash(bigOrZero(entry.Value))
			}
			return slots
		},
	)
	return &SealedStore{input: input, storage: storage}
}

func (s *SealedStore) FetchAccount(
	_ context.Context, account common.Address,
) (*Account, error) {
	w, ok := s.input.Witnesses[account]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", ErrMissingWitnessData, account)
	}
	return w.Account(), nil
}

func (s *SealedStore) FetchStorage(
	_ context.Context, account common.Address, slot common.Hash,
) (common.Hash, error) {
	slots, ok := s.storage[account]
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: account %s", ErrMissingWitnessData, account)
	}
	value, ok := slots[slot]
	if !ok {
		return common.Hash{}, fmt.Errorf(
			"%w: slot %s of account %s", ErrMissingWitnessData, slot, account,
		)
	}
	return value, nil
}

func (s *SealedStore) FetchBlockHash(_ context.Context, number uint64) (common.Hash, error) {
	hash, ok := s.input.BlockHashes[number]
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: block hash %d", ErrMissingWitnessData, number)
	}
	return hash, nil
}
