package readers

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// rpcReader is a chain.Reader backed by an Ethereum JSON-RPC endpoint.
// Account proofs are served by eth_getProof, so the endpoint must be an
// archive node for historical reference blocks.
type rpcReader struct {
	client *rpc.Client
	eth    *ethclient.Client
	geth   *gethclient.Client
}

func NewRpcReader(ctx context.Context, url string) (*rpcReader, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return &rpcReader{
		client: client,
		eth:    ethclient.NewClient(client),
		geth:   gethclient.New(client),
	}, nil
}

func (r *rpcReader) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	return r.eth.BlockByNumber(ctx, number)
}

func (r *rpcReader) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return r.eth.HeaderByNumber(ctx, number)
}

func (r *rpcReader) BlockHashByNumber(ctx context.Context, number *big.Int) (common.Hash, error) {
	header, err := r.eth.HeaderByNumber(ctx, number)
	if err != nil {
		return common.Hash{}, err
	}
	return header.Hash(), nil
}

func (r *rpcReader) ProofAt(
	ctx context.Context, account common.Address, keys []common.Hash, blockNumber *big.Int,
) (*gethclient.AccountResult, error) {
	slots := make([]string, len(keys))
	for i, key := range keys {
		slots[i] = key.Hex()
	}
	return r.geth.GetProof(ctx, account, slots, blockNumber)
}

func (r *rpcReader) CodeAt(
	ctx context.Context, account common.Address, blockNumber *big.Int,
) ([]byte, error) {
	return r.eth.CodeAt(ctx, account, blockNumber)
}

func (r *rpcReader) ChainID(ctx context.Context) (*big.Int, error) {
	return r.eth.ChainID(ctx)
}

func (r *rpcReader) Close() error {
	r.client.Close()
	return nil
}
