package witness

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Account is the record a Store hands to the execution engine for one
// address: the committed pre-state of the reference block.
type Account struct {
	Exists   bool
	Nonce    uint64
	Balance  *big.Int
	CodeHash common.Hash
	Code     []byte
}

// Store answers the three state query shapes a block execution needs.
// The executor never knows whether it is driving a live, network-backed
// store (discovery pass) or a sealed, proof-verified one (replay pass).
type Store interface {
	FetchAccount(ctx context.Context, account common.Address) (*Account, error)
	FetchStorage(ctx context.Context, account common.Address, slot common.Hash) (common.Hash, error)
	FetchBlockHash(ctx context.Context, number uint64) (common.Hash, error)
}
