package helpers

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"

	"github.com/stelo/blockproof/dyengine"
)

func NewBlockContext(
	coinbase common.Address,
	blockNumber *big.Int,
	difficulty *big.Int,
	time *big.Int,
	gasLimit uint64,
	baseFee *big.Int,
) vm.BlockContext {
	return vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		Coinbase:    coinbase,
		BlockNumber: blockNumber,
		Time:        time,
		Difficulty:  difficulty,
		GasLimit:    gasLimit,
		GetHash:     nil, // to be filled by State.GetHashFn()
		BaseFee:     baseFee,
	}
}

func NewVMContext(
	coinbase common.Address,
	blockHash common.Hash,
	blockNumber *big.Int,
	blockDifficulty *big.Int,
	blockTime *big.Int,
	gasLimit uint64,
	baseFee *big.Int,
) *dyengine.VMContext {
	return &dyengine.VMContext{
		BlockContext:     NewBlockContext(coinbase, blockNumber, blockDifficulty, blockTime, gasLimit, baseFee),
		GasPool:          new(core.GasPool).AddGas(gasLimit),
		BlockHash:        blockHash,
		TransactionIndex: 0,
	}
}

func VMConfigOnMainnet() dyengine.VMConfig {
	return dyengine.VMConfig{
		ChainConfig: params.MainnetChainConfig,
	}
}

func VMContextFromBlock(block *types.Block) *dyengine.VMContext {
	vmContext := NewVMContext(
		block.Coinbase(),
		block.Hash(),
		block.Number(),
		block.Difficulty(),
		big.NewInt(int64(block.Time())),
		block.GasLimit(),
		block.BaseFee(),
	)
	vmContext.TotalDifficulty = dyengine.TotalDifficultyOf(block.Difficulty())
	return vmContext
}
