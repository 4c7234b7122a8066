package witness

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/stelo/blockproof/chain"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"golang.org/x/sync/singleflight"
)

// NetworkStore is the discovery-pass Store: it answers queries by
// fetching from a chain.Reader pinned at a fixed reference block and
// records, per touched address, the witness material needed to later
// verify every answer. Each address and each (address, slot) pair is
// fetched at most once per session; concurrent fetches of the same key
// are collapsed so the single-fetch invariant holds under parallelism.
type NetworkStore struct {
	reader    chain.Reader
	refNumber *big.Int
	stateRoot common.Hash

	flight singleflight.Group

	mu          sync.Mutex
	witnesses   map[common.Address]*AccountWitness
	slots       map[common.Address]map[common.Hash]common.Hash
	blockHashes map[uint64]common.Hash
}

// NewNetworkStore creates a store pinned at refNumber, whose committed
// state root is stateRoot (the parent block's root in the verification
// protocol).
func NewNetworkStore(reader chain.Reader, refNumber *big.Int, stateRoot common.Hash) *NetworkStore {
	return &NetworkStore{
		reader:      reader,
		refNumber:   new(big.Int).Set(refNumber),
		stateRoot:   stateRoot,
		witnesses:   make(map[common.Address]*AccountWitness),
		slots:       make(map[common.Address]map[common.Hash]common.Hash),
		blockHashes: make(map[uint64]common.Hash),
	}
}

// StateRoot returns the committed state root of the reference block.
func (s *NetworkStore) StateRoot() common.Hash {
	return s.stateRoot
}

func (s *NetworkStore) FetchAccount(
	ctx context.Context, account common.Address,
) (*Account, error) {
	w, err := s.fetchWitness(ctx, account)
	if err != nil {
		return nil, err
	}
	return w.Account(), nil
}

func (s *NetworkStore) fetchWitness(
	ctx context.Context, account common.Address,
) (*AccountWitness, error) {
	v, err, _ := s.flight.Do("account:"+account.Hex(), func() (interface{}, error) {
		s.mu.Lock()
		if w, ok := s.witnesses[account]; ok {
			s.mu.Unlock()
			return w, nil
		}
		s.mu.Unlock()

		proof, err := s.reader.ProofAt(ctx, account, nil, s.refNumber)
		if err != nil {
			return nil, remoteErr(err)
		}
		var code []byte
		if proof.CodeHash != (common.Hash{}) && proof.CodeHash != emptyCodeHash {
			code, err = s.reader.CodeAt(ctx, account, s.refNumber)
			if err != nil {
				return nil, remoteErr(err)
			}
		}
		w := &AccountWitness{Address: account, Proof: proof, Code: code}

		s.mu.Lock()
		s.witnesses[account] = w
		slots := make(map[common.Hash]common.Hash)
		for _, entry := range proof.StorageProof {
			slots[common.HexToHash(entry.Key)] = common.BigToHash(bigOrZero(entry.Value))
		}
		s.slots[account] = slots
		s.mu.Unlock()
		return w, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*AccountWitness), nil
}

func (s *NetworkStore) FetchStorage(
	ctx context.Context, account common.Address, slot common.Hash,
) (common.Hash, error) {
	// The owning account's witness must exist before a slot proof can be
	// merged into it.
	if _, err := s.fetchWitness(ctx, account); err != nil {
		return common.Hash{}, err
	}

	v, err, _ := s.flight.Do("storage:"+account.Hex()+":"+slot.Hex(), func() (interface{}, error) {
		s.mu.Lock()
		if value, ok := s.slots[account][slot]; ok {
			s.mu.Unlock()
			return value, nil
		}
		s.mu.Unlock()

		proof, err := s.reader.ProofAt(ctx, account, []common.Hash{slot}, s.refNumber)
		if err != nil {
			return nil, remoteErr(err)
		}
		if len(proof.StorageProof) == 0 {
			return nil, fmt.Errorf(
				"%w: no storage proof for %s at slot %s", ErrNotFound, account, slot,
			)
		}
		entry := proof.StorageProof[0]
		value := common.BigToHash(bigOrZero(entry.Value))

		s.mu.Lock()
		s.witnesses[account].Proof.StorageProof = append(
			s.witnesses[account].Proof.StorageProof, entry,
		)
		s.slots[account][slot] = value
		s.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	return v.(common.Hash), nil
}

func (s *NetworkStore) FetchBlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	// Blocks at or after the reference block are not committed history
	// relative to the replay and must never enter the witness set.
	if number >= s.refNumber.Uint64() {
		return common.Hash{}, fmt.Errorf(
			"%w: block %d is not committed history at reference block %d",
			ErrNotFound, number, s.refNumber,
		)
	}

	v, err, _ := s.flight.Do(fmt.Sprintf("blockhash:%d", number), func() (interface{}, error) {
		s.mu.Lock()
		if hash, ok := s.blockHashes[number]; ok {
			s.mu.Unlock()
			return hash, nil
		}
		s.mu.Unlock()

		hash, err := s.reader.BlockHashByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			return nil, remoteErr(err)
		}

		s.mu.Lock()
		s.blockHashes[number] = hash
		s.mu.Unlock()
		return hash, nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	return v.(common.Hash), nil
}

// Seal snapshots everything recorded so far into an ExecutionInput for
// the given previous/target block pair. The store may keep serving
// fetches afterwards; the snapshot is unaffected.
func (s *NetworkStore) Seal(prevBlock, block *types.Block) *ExecutionInput {
	s.mu.Lock()
	defer s.mu.Unlock()

	witnesses := make(map[common.Address]*AccountWitness, len(s.witnesses))
	for addr, w := range s.witnesses {
		cp := *w
		proof := *w.Proof
		proof.StorageProof = append([]gethclient.StorageResult(nil), w.Proof.StorageProof...)
		cp.Proof = &proof
		witnesses[addr] = &cp
	}
	blockHashes := make(map[uint64]common.Hash, len(s.blockHashes))
	for number, hash := range s.blockHashes {
		blockHashes[number] = hash
	}
	return &ExecutionInput{
		PrevBlock:   prevBlock,
		Block:       block,
		Witnesses:   witnesses,
		BlockHashes: blockHashes,
	}
}

func remoteErr(err error) error {
	if errors.Is(err, ethereum.NotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
}
