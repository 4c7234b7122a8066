package dyengine

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"
)

// ErrUnsupportedTxType is returned when a block carries a transaction
// variant the executor does not model. Unknown variants abort the run
// instead of being skipped, since a skipped transaction would corrupt
// every later nonce and balance in the block.
var ErrUnsupportedTxType = errors.New("unsupported transaction type")

type VMConfig struct {
	*params.ChainConfig

	NoBaseFee bool
	ExtraEips []int
}

func (c VMConfig) VMConfig() vm.Config {
	return vm.Config{
		NoBaseFee: c.NoBaseFee,
		ExtraEips: c.ExtraEips,
	}
}

// VMContext carries the block-level execution environment plus the
// running counters that advance as transactions are applied.
type VMContext struct {
	vm.BlockContext
	*core.GasPool

	BlockHash        common.Hash
	TotalDifficulty  *uint256.Int
	GasUsed          uint64
	TransactionIndex uint
}

func (c *VMContext) Copy() *VMContext {
	cpy := *c
	gp := *c.GasPool
	cpy.GasPool = &gp
	if c.TotalDifficulty != nil {
		cpy.TotalDifficulty = c.TotalDifficulty.Clone()
	}
	return &cpy
}

// ExeVM applies transactions to a State using go-ethereum's EVM.
type ExeVM struct {
	Config VMConfig
}

func NewExeVM(config VMConfig) *ExeVM {
	return &ExeVM{Config: config}
}

// ApplyTx executes one transaction on the given state. The state is
// finalised after execution, so transactions applied in sequence see
// each other's effects the way consecutive transactions in a block do.
func (e *ExeVM) ApplyTx(
	state State, tx *Tx, vmContext *VMContext, genReceipt bool,
) (result *core.ExecutionResult, receipt *types.Receipt, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, receipt = nil, nil
			err = fmt.Errorf("EVM panic: %v", r)
			log.Error().
				Str("tx", tx.Hash().Hex()).
				Interface("panic", r).
				Msg("EVM execution panics")
		}
	}()

	msg, err := tx.AsMessage(types.MakeSigner(e.Config.ChainConfig, vmContext.BlockNumber), vmContext.BaseFee)
	if err != nil {
		return nil, nil, err
	}
	vmContext.GetHash = state.GetHashFn()
	txContext := core.NewEVMTxContext(msg)
	evm := vm.NewEVM(vmContext.BlockContext, txContext, state, e.Config.ChainConfig, e.Config.VMConfig())

	state.Prepare(tx.Hash(), int(vmContext.TransactionIndex))
	result, err = core.ApplyMessage(evm, msg, vmContext.GasPool)
	// A state-level failure is the root cause of whatever the EVM
	// reported, so it takes precedence.
	if serr := state.LastError(); serr != nil {
		return nil, nil, serr
	}
	if err != nil {
		return nil, nil, err
	}
	state.Finalise(e.Config.IsEIP158(vmContext.BlockNumber))
	vmContext.GasUsed += result.UsedGas

	if genReceipt {
		receipt = &types.Receipt{
			Type:              tx.Type(),
			CumulativeGasUsed: vmContext.GasUsed,
			TxHash:            tx.Hash(),
			GasUsed:           result.UsedGas,
			BlockHash:         vmContext.BlockHash,
			BlockNumber:       vmContext.BlockNumber,
			TransactionIndex:  vmContext.TransactionIndex,
		}
		if result.Failed() {
			receipt.Status = types.ReceiptStatusFailed
		} else {
			receipt.Status = types.ReceiptStatusSuccessful
		}
		if !e.Config.IsByzantium(vmContext.BlockNumber) {
			receipt.PostState = state.IntermediateRoot(e.Config.IsEIP158(vmContext.BlockNumber)).Bytes()
		}
		if msg.To() == nil {
			receipt.ContractAddress = crypto.CreateAddress(msg.From(), tx.Nonce())
		}
		receipt.Logs = state.GetLogs(tx.Hash(), vmContext.BlockHash)
		receipt.Bloom = types.CreateBloom(types.Receipts{receipt})
	}
	vmContext.TransactionIndex++
	return result, receipt, nil
}

// ApplyBlock replays every transaction of the block in order and
// returns the receipts. All senders are recovered up front: a block
// whose signatures cannot be resolved is rejected before any state is
// modified. Any transaction failure aborts the whole block, since a
// partial replay has no meaningful outcome.
func (e *ExeVM) ApplyBlock(
	state State, block *types.Block, vmContext *VMContext,
) (types.Receipts, error) {
	signer := types.MakeSigner(e.Config.ChainConfig, block.Number())
	txs := make([]*Tx, 0, len(block.Transactions()))
	for i, transaction := range block.Transactions() {
		if transaction.Type() > types.DynamicFeeTxType {
			return nil, fmt.Errorf(
				"%w: type %d of tx %d in block %d",
				ErrUnsupportedTxType, transaction.Type(), i, block.NumberU64(),
			)
		}
		tx, err := TxFromTransactionWithSigner(transaction, signer)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	receipts := make(types.Receipts, 0, len(txs))
	for _, tx := range txs {
		_, receipt, err := e.ApplyTx(state, tx, vmContext, true)
		if err != nil {
			return nil, fmt.Errorf("tx %s: %w", tx.Hash(), err)
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

// TotalDifficultyOf is a convenience for contexts where only the block
// difficulty itself is known.
func TotalDifficultyOf(difficulty *big.Int) *uint256.Int {
	td, _ := uint256.FromBig(difficulty)
	return td
}
