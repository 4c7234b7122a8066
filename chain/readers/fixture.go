package readers

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
)

// FixtureAccount describes one account of a fixture chain state.
type FixtureAccount struct {
	Nonce   uint64
	Balance *big.Int
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// proofList implements ethdb.KeyValueWriter and collects trie proof
// nodes in traversal order, hex encoded the way eth_getProof returns them.
type proofList []string

func (n *proofList) Put(_ []byte, value []byte) error {
	*n = append(*n, hexutil.Encode(value))
	return nil
}

func (n *proofList) Delete(_ []byte) error {
	return errors.New("delete not supported")
}

// fixtureReader is a chain.Reader over a single in-memory state snapshot
// backed by real merkle tries, so the proofs it serves are genuine and
// verifiable against StateRoot. It is only meant to facilitate testing
// and debugging; block numbers of state queries are not checked.
type fixtureReader struct {
	chainId *big.Int

	accounts     map[common.Address]*FixtureAccount
	stateTrie    *trie.Trie
	storageTries map[common.Address]*trie.Trie

	blocks      map[uint64]*types.Block
	blockHashes map[uint64]common.Hash
}

func NewFixtureReader(
	chainId *big.Int, accounts map[common.Address]*FixtureAccount,
) (*fixtureReader, error) {
	db := trie.NewDatabase(rawdb.NewMemoryDatabase())
	stateTrie, err := trie.New(common.Hash{}, common.Hash{}, db)
	if err != nil {
		return nil, err
	}
	storageTries := make(map[common.Address]*trie.Trie)

	for addr, account := range accounts {
		storageTrie, err := trie.New(common.Hash{}, common.Hash{}, db)
		if err != nil {
			return nil, err
		}
		for slot, value := range account.Storage {
			if value == (common.Hash{}) {
				continue
			}
			enc, err := rlp.EncodeToBytes(common.TrimLeftZeroes(value[:]))
			if err != nil {
				return nil, err
			}
			storageTrie.Update(crypto.Keccak256(slot.Bytes()), enc)
		}
		storageTries[addr] = storageTrie

		stateAccount := types.StateAccount{
			Nonce:    account.Nonce,
			Balance:  account.Balance,
			Root:     storageTrie.Hash(),
			CodeHash: crypto.Keccak256(account.Code),
		}
		enc, err := rlp.EncodeToBytes(&stateAccount)
		if err != nil {
			return nil, err
		}
		stateTrie.Update(crypto.Keccak256(addr.Bytes()), enc)
	}

	return &fixtureReader{
		chainId:      chainId,
		accounts:     accounts,
		stateTrie:    stateTrie,
		storageTries: storageTries,
		blocks:       make(map[uint64]*types.Block),
		blockHashes:  make(map[uint64]common.Hash),
	}, nil
}

// StateRoot returns the root of the fixture state trie. A parent block
// carrying this root makes every proof served here verify.
func (f *fixtureReader) StateRoot() common.Hash {
	return f.stateTrie.Hash()
}

func (f *fixtureReader) AddBlock(block *types.Block) {
	f.blocks[block.NumberU64()] = block
	f.blockHashes[block.NumberU64()] = block.Hash()
}

func (f *fixtureReader) AddBlockHash(number uint64, hash common.Hash) {
	f.blockHashes[number] = hash
}

func (f *fixtureReader) BlockByNumber(_ context.Context, number *big.Int) (*types.Block, error) {
	if block, ok := f.blocks[number.Uint64()]; ok {
		return block, nil
	}
	return nil, ethereum.NotFound
}

func (f *fixtureReader) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	if block, ok := f.blocks[number.Uint64()]; ok {
		return block.Header(), nil
	}
	return nil, ethereum.NotFound
}

func (f *fixtureReader) BlockHashByNumber(
	_ context.Context, number *big.Int,
) (common.Hash, error) {
	if hash, ok := f.blockHashes[number.Uint64()]; ok {
		return hash, nil
	}
	return common.Hash{}, ethereum.NotFound
}

func (f *fixtureReader) ProofAt(
	_ context.Context, account common.Address, keys []common.Hash, _ *big.Int,
) (*gethclient.AccountResult, error) {
	var accountProof proofList
	if err := f.stateTrie.Prove(crypto.Keccak256(account.Bytes()), 0, &accountProof); err != nil {
		return nil, err
	}

	result := &gethclient.AccountResult{
		Address:      account,
		AccountProof: accountProof,
		Balance:      big.NewInt(0),
		Nonce:        0,
		CodeHash:     common.Hash{},
		StorageHash:  common.Hash{},
	}
	fixture, exists := f.accounts[account]
	if exists {
		result.Balance = new(big.Int).Set(fixture.Balance)
		result.Nonce = fixture.Nonce
		result.CodeHash = crypto.Keccak256Hash(fixture.Code)
		result.StorageHash = f.storageTries[account].Hash()
	}

	for _, key := range keys {
		storageResult := gethclient.StorageResult{
			Key:   key.Hex(),
			Value: big.NewInt(0),
		}
		if exists {
			var storageProof proofList
			storageTrie := f.storageTries[account]
			if storageTrie.Hash() != types.EmptyRootHash {
				err := storageTrie.Prove(crypto.Keccak256(key.Bytes()), 0, &storageProof)
				if err != nil {
					return nil, err
				}
			}
			storageResult.Proof = storageProof
			if value, ok := fixture.Storage[key]; ok {
				storageResult.Value = new(big.Int).SetBytes(value.Bytes())
			}
		}
		result.StorageProof = append(result.StorageProof, storageResult)
	}
	return result, nil
}

func (f *fixtureReader) CodeAt(
	_ context.Context, account common.Address, _ *big.Int,
) ([]byte, error) {
	if fixture, ok := f.accounts[account]; ok {
		return fixture.Code, nil
	}
	return []byte{}, nil
}

func (f *fixtureReader) ChainID(_ context.Context) (*big.Int, error) {
	return f.chainId, nil
}

func (f *fixtureReader) Close() error {
	return nil
}
