package witness_test

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	chain_mocks "github.com/stelo/blockproof/chain/mocks"
	"github.com/stelo/blockproof/witness"
)

var _ = Describe("NetworkStore", func() {
	var (
		ctx        context.Context
		mockCtrl   *gomock.Controller
		mockReader *chain_mocks.MockReader
		refNumber  *big.Int
		store      *witness.NetworkStore
		addr       common.Address
	)

	BeforeEach(func() {
		ctx = context.Background()
		mockCtrl = gomock.NewController(GinkgoT())
		mockReader = chain_mocks.NewMockReader(mockCtrl)
		refNumber = big.NewInt(100)
		store = witness.NewNetworkStore(mockReader, refNumber, common.HexToHash("0x1"))
		addr = common.HexToAddress("0xaa01")
	})

	emptyResult := func() *gethclient.AccountResult {
		return &gethclient.AccountResult{
			Address:  addr,
			Balance:  big.NewInt(999),
			Nonce:    9,
			CodeHash: crypto.Keccak256Hash(nil),
		}
	}

	It("should fetch each account at most once", func() {
		mockReader.EXPECT().
			ProofAt(gomock.Any(), gomock.Eq(addr), gomock.Nil(), gomock.Eq(refNumber)).
			Times(1).
			Return(emptyResult(), nil)

		account, err := store.FetchAccount(ctx, addr)
		Expect(err).To(BeNil())
		Expect(account.Balance).To(Equal(big.NewInt(999)))

		again, err := store.FetchAccount(ctx, addr)
		Expect(err).To(BeNil())
		Expect(again.Nonce).To(Equal(uint64(9)))
	})

	It("should fetch bytecode only for accounts with code", func() {
		code := []byte{0x60, 0x00}
		result := emptyResult()
		result.CodeHash = crypto.Keccak256Hash(code)
		mockReader.EXPECT().
			ProofAt(gomock.Any(), gomock.Eq(addr), gomock.Nil(), gomock.Eq(refNumber)).
			Return(result, nil)
		mockReader.EXPECT().
			CodeAt(gomock.Any(), gomock.Eq(addr), gomock.Eq(refNumber)).
			Times(1).
			Return(code, nil)

		account, err := store.FetchAccount(ctx, addr)
		Expect(err).To(BeNil())
		Expect(account.Code).To(Equal(code))
	})

	It("should fetch each storage slot at most once and merge it into the witness", func() {
		slot := common.BigToHash(big.NewInt(1))
		mockReader.EXPECT().
			ProofAt(gomock.Any(), gomock.Eq(addr), gomock.Nil(), gomock.Eq(refNumber)).
			Return(emptyResult(), nil)
		result := emptyResult()
		result.StorageProof = []gethclient.StorageResult{
			{Key: slot.Hex(), Value: big.NewInt(42)},
		}
		mockReader.EXPECT().
			ProofAt(gomock.Any(), gomock.Eq(addr), gomock.Eq([]common.Hash{slot}), gomock.Eq(refNumber)).
			Times(1).
			Return(result, nil)

		value, err := store.FetchStorage(ctx, addr, slot)
		Expect(err).To(BeNil())
		Expect(value).To(Equal(common.BigToHash(big.NewInt(42))))

		value, err = store.FetchStorage(ctx, addr, slot)
		Expect(err).To(BeNil())
		Expect(value).To(Equal(common.BigToHash(big.NewInt(42))))

		input := store.Seal(nil, nil)
		Expect(input.Witnesses).To(HaveKey(addr))
		Expect(input.Witnesses[addr].Proof.StorageProof).To(HaveLen(1))
	})

	It("should refuse block hashes at or after the reference block", func() {
		_, err := store.FetchBlockHash(ctx, 100)
		Expect(err).To(MatchError(witness.ErrNotFound))
		_, err = store.FetchBlockHash(ctx, 101)
		Expect(err).To(MatchError(witness.ErrNotFound))
	})

	It("should fetch each historical block hash at most once", func() {
		hash := common.HexToHash("0x99")
		mockReader.EXPECT().
			BlockHashByNumber(gomock.Any(), gomock.Eq(big.NewInt(99))).
			Times(1).
			Return(hash, nil)

		got, err := store.FetchBlockHash(ctx, 99)
		Expect(err).To(BeNil())
		Expect(got).To(Equal(hash))

		got, err = store.FetchBlockHash(ctx, 99)
		Expect(err).To(BeNil())
		Expect(got).To(Equal(hash))
	})

	It("should map remote not-found to ErrNotFound", func() {
		mockReader.EXPECT().
			ProofAt(gomock.Any(), gomock.Eq(addr), gomock.Nil(), gomock.Eq(refNumber)).
			Return(nil, ethereum.NotFound)

		_, err := store.FetchAccount(ctx, addr)
		Expect(err).To(MatchError(witness.ErrNotFound))
	})

	It("should map remote failures to ErrSourceUnavailable", func() {
		mockReader.EXPECT().
			ProofAt(gomock.Any(), gomock.Eq(addr), gomock.Nil(), gomock.Eq(refNumber)).
			Return(nil, errors.New("connection refused"))

		_, err := store.FetchAccount(ctx, addr)
		Expect(err).To(MatchError(witness.ErrSourceUnavailable))
	})

	It("should seal a snapshot unaffected by later fetches", func() {
		mockReader.EXPECT().
			ProofAt(gomock.Any(), gomock.Eq(addr), gomock.Nil(), gomock.Eq(refNumber)).
			Return(emptyResult(), nil)
		_, err := store.FetchAccount(ctx, addr)
		Expect(err).To(BeNil())

		block := types.NewBlockWithHeader(&types.Header{Number: big.NewInt(101)})
		input := store.Seal(nil, block)
		Expect(input.Block).To(Equal(block))
		Expect(input.Addresses()).To(ConsistOf([]common.Address{addr}))

		other := common.HexToAddress("0xbb02")
		mockReader.EXPECT().
			ProofAt(gomock.Any(), gomock.Eq(other), gomock.Nil(), gomock.Eq(refNumber)).
			Return(&gethclient.AccountResult{Address: other}, nil)
		_, err = store.FetchAccount(ctx, other)
		Expect(err).To(BeNil())

		Expect(input.Addresses()).To(ConsistOf([]common.Address{addr}))
	})
})
