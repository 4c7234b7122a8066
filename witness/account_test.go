package witness_test

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stelo/blockproof/chain"
	"github.com/stelo/blockproof/chain/readers"
	"github.com/stelo/blockproof/witness"
)

var _ = Describe("AccountWitness", func() {
	var (
		ctx      context.Context
		fixture  chain.Reader
		root     common.Hash
		eoa      common.Address
		contract common.Address
		ghost    common.Address
		code     []byte
		slot     common.Hash
	)

	BeforeEach(func() {
		ctx = context.Background()
		eoa = common.HexToAddress("0xaa01")
		contract = common.HexToAddress("0xcc01")
		ghost = common.HexToAddress("0xdead")
		code = []byte{0x60, 0x2a, 0x60, 0x00, 0x55, 0x00}
		slot = common.BigToHash(big.NewInt(1))

		f, err := readers.NewFixtureReader(big.NewInt(1337), map[common.Address]*readers.FixtureAccount{
			eoa: {
				Nonce:   5,
				Balance: big.NewInt(1_000_000),
			},
			contract: {
				Nonce:   1,
				Balance: big.NewInt(0),
				Code:    code,
				Storage: map[common.Hash]common.Hash{
					slot: common.BigToHash(big.NewInt(7)),
				},
			},
		})
		Expect(err).To(BeNil())
		fixture = f
		root = f.StateRoot()
	})

	witnessOf := func(addr common.Address, slots ...common.Hash) *witness.AccountWitness {
		proof, err := fixture.ProofAt(ctx, addr, slots, big.NewInt(0))
		Expect(err).To(BeNil())
		c, err := fixture.CodeAt(ctx, addr, big.NewInt(0))
		Expect(err).To(BeNil())
		return &witness.AccountWitness{Address: addr, Proof: proof, Code: c}
	}

	It("should verify an externally owned account", func() {
		w := witnessOf(eoa)
		Expect(w.Verify(root)).To(Succeed())

		account := w.Account()
		Expect(account.Exists).To(BeTrue())
		Expect(account.Nonce).To(Equal(uint64(5)))
		Expect(account.Balance).To(Equal(big.NewInt(1_000_000)))
	})

	It("should verify a contract account together with its storage", func() {
		w := witnessOf(contract, slot)
		Expect(w.Verify(root)).To(Succeed())

		account := w.Account()
		Expect(account.Exists).To(BeTrue())
		Expect([]byte(account.Code)).To(Equal(code))
	})

	It("should verify a proof of absence", func() {
		w := witnessOf(ghost)
		Expect(w.Verify(root)).To(Succeed())
		Expect(w.Account().Exists).To(BeFalse())
	})

	It("should reject a proof of absence with a non-empty claimed record", func() {
		w := witnessOf(ghost)
		w.Proof.Balance = big.NewInt(1)
		Expect(w.Verify(root)).To(MatchError(witness.ErrProofInvalid))
	})

	It("should reject a witness checked against a different state root", func() {
		w := witnessOf(eoa)
		Expect(w.Verify(common.HexToHash("0xbad"))).To(MatchError(witness.ErrProofInvalid))
	})

	It("should reject a tampered proof node", func() {
		w := witnessOf(eoa)
		last := len(w.Proof.AccountProof) - 1
		blob, err := hexutil.Decode(w.Proof.AccountProof[last])
		Expect(err).To(BeNil())
		blob[len(blob)-1] ^= 0xff
		w.Proof.AccountProof[last] = hexutil.Encode(blob)
		Expect(w.Verify(root)).To(MatchError(witness.ErrProofInvalid))
	})

	It("should reject an inflated claimed balance", func() {
		w := witnessOf(eoa)
		w.Proof.Balance = new(big.Int).Add(w.Proof.Balance, big.NewInt(1))
		Expect(w.Verify(root)).To(MatchError(witness.ErrProofInvalid))
	})

	It("should reject bundled code that does not hash to the declared code hash", func() {
		w := witnessOf(contract)
		w.Code = []byte{0x00}
		Expect(w.Verify(root)).To(MatchError(witness.ErrCodeHashMismatch))
	})

	It("should reject code substituted together with its declared hash", func() {
		w := witnessOf(contract)
		w.Code = []byte{0x00}
		w.Proof.CodeHash = crypto.Keccak256Hash(w.Code)
		// the proven record still commits to the original code hash
		Expect(w.Verify(root)).To(MatchError(witness.ErrProofInvalid))
	})

	It("should reject a storage proof claiming a wrong value", func() {
		w := witnessOf(contract, slot)
		w.Proof.StorageProof[0].Value = big.NewInt(8)
		Expect(w.Verify(root)).To(MatchError(witness.ErrProofInvalid))
	})

	It("should accept a zero-valued slot of an account without storage", func() {
		w := witnessOf(eoa, slot)
		Expect(w.Verify(root)).To(Succeed())
	})

	It("should reject a non-zero slot claimed under an empty storage root", func() {
		w := witnessOf(eoa, slot)
		w.Proof.StorageProof[0].Value = big.NewInt(9)
		Expect(w.Verify(root)).To(MatchError(witness.ErrProofInvalid))
	})
})
