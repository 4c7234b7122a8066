package stf_test

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stelo/blockproof/dyengine/state"
	"github.com/stelo/blockproof/stf"
	"github.com/stelo/blockproof/witness"
)

var _ = Describe("Outcome diff", func() {
	var addr common.Address
	var slot common.Hash
	var discovery, replay *stf.Outcome

	newOutcome := func() *stf.Outcome {
		return &stf.Outcome{
			Deltas: map[common.Address]state.AccountDelta{
				addr: {
					Exists:   true,
					Balance:  big.NewInt(100),
					Nonce:    1,
					CodeHash: common.HexToHash("0xc0de"),
					Storage: map[common.Hash]common.Hash{
						slot: common.BigToHash(big.NewInt(7)),
					},
				},
			},
			Receipts: types.Receipts{},
			GasUsed:  21000,
		}
	}

	BeforeEach(func() {
		addr = common.HexToAddress("0xaa01")
		slot = common.BigToHash(big.NewInt(1))
		discovery = newOutcome()
		replay = newOutcome()
	})

	It("should accept identical outcomes", func() {
		Expect(stf.Diff(discovery, replay)).To(Succeed())
	})

	It("should reject diverging gas usage", func() {
		replay.GasUsed++
		Expect(stf.Diff(discovery, replay)).To(MatchError(witness.ErrReplayMismatch))
	})

	It("should reject a diverging balance", func() {
		delta := replay.Deltas[addr]
		delta.Balance = big.NewInt(101)
		replay.Deltas[addr] = delta
		Expect(stf.Diff(discovery, replay)).To(MatchError(witness.ErrReplayMismatch))
	})

	It("should reject a diverging storage value", func() {
		replay.Deltas[addr].Storage[slot] = common.BigToHash(big.NewInt(8))
		Expect(stf.Diff(discovery, replay)).To(MatchError(witness.ErrReplayMismatch))
	})

	It("should reject an account touched in only one pass", func() {
		replay.Deltas[common.HexToAddress("0xbb02")] = state.AccountDelta{
			Balance: big.NewInt(0),
			Storage: map[common.Hash]common.Hash{},
		}
		Expect(stf.Diff(discovery, replay)).To(MatchError(witness.ErrReplayMismatch))
	})

	It("should reject a slot touched in only one pass", func() {
		discovery.Deltas[addr].Storage[common.BigToHash(big.NewInt(2))] = common.Hash{}
		Expect(stf.Diff(discovery, replay)).To(MatchError(witness.ErrReplayMismatch))
	})

	It("should reject diverging receipts", func() {
		replay.Receipts = types.Receipts{
			{Status: types.ReceiptStatusSuccessful, CumulativeGasUsed: 21000},
		}
		Expect(stf.Diff(discovery, replay)).To(MatchError(witness.ErrReplayMismatch))
	})
})
