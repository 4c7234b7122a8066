package readers

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/stelo/blockproof/chain"

	"github.com/allegro/bigcache"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
)

// cachedReader is a chain.Reader that caches the results of the given
// chain.Reader. Proof responses are immutable for a committed block, so
// they are safe to serve from cache across verification runs.
type cachedReader struct {
	chain.Reader
	chainId *big.Int

	// key: blockNumber:address[:slots]
	blockHashes *bigcache.BigCache
	proofs      *bigcache.BigCache
	codes       *bigcache.BigCache
}

func NewCachedReader(source chain.Reader) (*cachedReader, error) {
	chainId, err := source.ChainID(context.Background())
	if err != nil {
		return nil, err
	}

	cacheConfig := bigcache.DefaultConfig(10 * time.Minute)
	cacheConfig.Verbose = false
	blockHashes, err := bigcache.NewBigCache(cacheConfig)
	if err != nil {
		return nil, err
	}
	proofs, err := bigcache.NewBigCache(cacheConfig)
	if err != nil {
		return nil, err
	}
	codes, err := bigcache.NewBigCache(cacheConfig)
	if err != nil {
		return nil, err
	}

	return &cachedReader{
		Reader:  source,
		chainId: chainId,

		blockHashes: blockHashes,
		proofs:      proofs,
		codes:       codes,
	}, nil
}

func (s *cachedReader) ProofAt(
	ctx context.Context, account common.Address, keys []common.Hash, blockNumber *big.Int,
) (*gethclient.AccountResult, error) {
	key := fmt.Sprintf("%d:%s", blockNumber.Uint64(), account)
	for _, slot := range keys {
		key += ":" + slot.Hex()
	}
	if entry, err := s.proofs.Get(key); err == nil {
		var result gethclient.AccountResult
		if err := json.Unmarshal(entry, &result); err != nil {
			return nil, err
		}
		return &result, nil
	} else {
		result, err := s.Reader.ProofAt(ctx, account, keys, blockNumber)
		if err != nil {
			return nil, err
		}
		entry, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		if err := s.proofs.Set(key, entry); err != nil {
			return nil, err
		}
		return result, nil
	}
}

func (s *cachedReader) CodeAt(
	ctx context.Context, account common.Address, blockNumber *big.Int,
) ([]byte, error) {
	key := fmt.Sprintf("%d:%s", blockNumber.Uint64(), account)
	if entry, err := s.codes.Get(key); err == nil {
		return entry, nil
	} else {
		code, err := s.Reader.CodeAt(ctx, account, blockNumber)
		if err != nil {
			return nil, err
		}
		if err := s.codes.Set(key, code); err != nil {
			return nil, err
		}
		return code, nil
	}
}

func (s *cachedReader) BlockHashByNumber(
	ctx context.Context, blockNumber *big.Int,
) (common.Hash, error) {
	key := fmt.Sprintf("%d", blockNumber.Uint64())
	if entry, err := s.blockHashes.Get(key); err == nil {
		return common.BytesToHash(entry), nil
	} else {
		hash, err := s.Reader.BlockHashByNumber(ctx, blockNumber)
		if err != nil {
			return common.Hash{}, err
		}
		if err := s.blockHashes.Set(key, hash.Bytes()); err != nil {
			return common.Hash{}, err
		}
		return hash, nil
	}
}

func (s *cachedReader) ChainID(_ context.Context) (*big.Int, error) {
	return s.chainId, nil
}
