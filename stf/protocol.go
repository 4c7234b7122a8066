package stf

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"

	"github.com/stelo/blockproof/chain"
	"github.com/stelo/blockproof/dyengine"
	"github.com/stelo/blockproof/dyengine/state"
	"github.com/stelo/blockproof/helpers"
	"github.com/stelo/blockproof/witness"
)

// Verifier runs the two-pass state-transition verification protocol
// for single blocks:
//
//  1. discovery: execute the block against live chain state, recording
//     a Merkle witness for everything the execution reads;
//  2. every witness is verified against the parent block's state root;
//  3. replay: execute the block again against the sealed witness set
//     only, with no network access;
//  4. the two outcomes must match exactly.
//
// A nil Pool runs witness verification serially.
type Verifier struct {
	Reader chain.Reader
	Config dyengine.VMConfig
	Pool   *ants.Pool
}

func NewVerifier(reader chain.Reader, config dyengine.VMConfig) *Verifier {
	return &Verifier{Reader: reader, Config: config}
}

// VerifyBlock runs the full protocol for the given block and returns
// the verified ExecutionInput, which is then self-contained evidence
// that the block's state transition was recomputed correctly.
func (v *Verifier) VerifyBlock(ctx context.Context, number uint64) (*witness.ExecutionInput, error) {
	start := time.Now()

	block, err := v.Reader.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, fmt.Errorf("fetch block %d: %w", number, err)
	}
	prevBlock, err := v.Reader.BlockByNumber(ctx, new(big.Int).SetUint64(number-1))
	if err != nil {
		return nil, fmt.Errorf("fetch parent of block %d: %w", number, err)
	}

	store := witness.NewNetworkStore(v.Reader, prevBlock.Number(), prevBlock.Root())
	discovery, err := v.execute(ctx, block, store)
	if err != nil {
		return nil, fmt.Errorf("discovery pass of block %d: %w", number, err)
	}
	input := store.Seal(prevBlock, block)
	log.Debug().
		Uint64("block", number).
		Int("accounts", len(input.Witnesses)).
		Int("blockHashes", len(input.BlockHashes)).
		Msg("Discovery pass finished")

	if err := input.VerifyWitnesses(prevBlock.Root(), v.Pool); err != nil {
		return nil, fmt.Errorf("block %d: %w", number, err)
	}

	replay, err := v.execute(ctx, block, witness.NewSealedStore(input))
	if err != nil {
		return nil, fmt.Errorf("replay pass of block %d: %w", number, err)
	}

	if err := Diff(discovery, replay); err != nil {
		return nil, fmt.Errorf("block %d: %w", number, err)
	}
	log.Info().
		Uint64("block", number).
		Int("txs", len(block.Transactions())).
		Int("accounts", len(input.Witnesses)).
		Dur("elapsed", time.Since(start)).
		Msg("Block verified")
	return input, nil
}

func (v *Verifier) execute(
	ctx context.Context, block *types.Block, store witness.Store,
) (*Outcome, error) {
	st, err := state.NewWitnessState(ctx, store)
	if err != nil {
		return nil, err
	}
	vmContext := helpers.VMContextFromBlock(block)
	exeVM := dyengine.NewExeVM(v.Config)
	receipts, err := exeVM.ApplyBlock(st, block, vmContext)
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Deltas:   st.Deltas(),
		Receipts: receipts,
		GasUsed:  vmContext.GasUsed,
	}, nil
}
