package state_test

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stelo/blockproof/dyengine/state"
	"github.com/stelo/blockproof/witness"
)

var _ = Describe("WitnessState", func() {
	var (
		ctx      context.Context
		st       *state.WitnessState
		eoa      common.Address
		contract common.Address
		code     []byte
		slot     common.Hash
	)

	BeforeEach(func() {
		ctx = context.Background()
		eoa = common.HexToAddress("0xaa01")
		contract = common.HexToAddress("0xcc01")
		code = []byte{0x60, 0x2a, 0x60, 0x00, 0x55, 0x00}
		slot = common.BigToHash(big.NewInt(1))

		input := &witness.ExecutionInput{
			Witnesses: map[common.Address]*witness.AccountWitness{
				eoa: {
					Address: eoa,
					Proof: &gethclient.AccountResult{
						Address: eoa,
						Balance: big.NewInt(999),
						Nonce:   9,
					},
				},
				contract: {
					Address: contract,
					Code:    code,
					Proof: &gethclient.AccountResult{
						Address:  contract,
						Balance:  big.NewInt(0),
						Nonce:    1,
						CodeHash: crypto.Keccak256Hash(code),
						StorageProof: []gethclient.StorageResult{
							{Key: slot.Hex(), Value: big.NewInt(7)},
						},
					},
				},
			},
			BlockHashes: map[uint64]common.Hash{
				5: common.HexToHash("0x55"),
			},
		}

		var err error
		st, err = state.NewWitnessState(ctx, witness.NewSealedStore(input))
		Expect(err).To(BeNil())
	})

	It("should inherit balance, nonce and code on first access", func() {
		Expect(st.GetBalance(eoa)).To(Equal(big.NewInt(999)))
		Expect(st.GetNonce(eoa)).To(Equal(uint64(9)))
		Expect(st.GetCode(contract)).To(Equal(code))
		Expect(st.LastError()).To(BeNil())
	})

	It("should inherit storage lazily", func() {
		Expect(st.GetState(contract, slot)).To(Equal(common.BigToHash(big.NewInt(7))))
		Expect(st.GetCommittedState(contract, slot)).To(Equal(common.BigToHash(big.NewInt(7))))
		Expect(st.LastError()).To(BeNil())
	})

	It("should not resurrect a cleared slot from the store", func() {
		st.SetState(contract, slot, common.Hash{})
		st.Finalise(true)
		Expect(st.GetCommittedState(contract, slot)).To(Equal(common.Hash{}))
	})

	It("should record a store failure for data outside the witness set", func() {
		Expect(st.GetBalance(common.HexToAddress("0xdead"))).To(Equal(big.NewInt(0)))
		Expect(st.LastError()).To(MatchError(witness.ErrMissingWitnessData))
	})

	It("should serve witnessed block hashes through GetHashFn", func() {
		fn := st.GetHashFn()
		Expect(fn(5)).To(Equal(common.HexToHash("0x55")))
		Expect(st.LastError()).To(BeNil())
		Expect(fn(6)).To(Equal(common.Hash{}))
		Expect(st.LastError()).To(MatchError(witness.ErrMissingWitnessData))
	})

	It("should revert to a snapshot", func() {
		Expect(st.GetState(contract, slot)).To(Equal(common.BigToHash(big.NewInt(7))))
		id := st.Snapshot()
		st.SetState(contract, slot, common.BigToHash(big.NewInt(8)))
		Expect(st.GetState(contract, slot)).To(Equal(common.BigToHash(big.NewInt(8))))
		st.RevertToSnapshot(id)
		Expect(st.GetState(contract, slot)).To(Equal(common.BigToHash(big.NewInt(7))))
	})

	It("should copy independently", func() {
		cp := st.Copy().(*state.WitnessState)
		cp.SetState(contract, slot, common.BigToHash(big.NewInt(8)))
		Expect(st.GetState(contract, slot)).To(Equal(common.BigToHash(big.NewInt(7))))
		Expect(cp.GetState(contract, slot)).To(Equal(common.BigToHash(big.NewInt(8))))
	})

	It("should report deltas over exactly the touched set", func() {
		st.AddBalance(eoa, big.NewInt(1))
		st.GetState(contract, slot)
		st.Finalise(true)

		deltas := st.Deltas()
		Expect(deltas).To(HaveLen(2))
		Expect(deltas[eoa].Balance).To(Equal(big.NewInt(1000)))
		Expect(deltas[eoa].Storage).To(BeEmpty())
		Expect(deltas[contract].Storage).To(HaveKeyWithValue(slot, common.BigToHash(big.NewInt(7))))
		Expect(deltas[contract].Exists).To(BeTrue())
	})
})
