package chain

import (
	"context"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
)

//go:generate mockgen -destination=./mocks/reader.go -package=chain_mocks github.com/stelo/blockproof/chain Reader

// Reader defines the remote source boundary: everything the witness
// collector needs from an archive node. Each account query is answered
// relative to a specific block and comes with the inclusion proof
// material needed to later verify the answer.
type Reader interface {
	io.Closer

	// blockchain
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockHashByNumber(ctx context.Context, number *big.Int) (common.Hash, error)

	// state with proofs
	ProofAt(
		ctx context.Context, account common.Address, keys []common.Hash, blockNumber *big.Int,
	) (*gethclient.AccountResult, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)

	// misc
	ChainID(ctx context.Context) (*big.Int, error)
}
