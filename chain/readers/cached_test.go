package readers_test

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stelo/blockproof/chain"
	chain_mocks "github.com/stelo/blockproof/chain/mocks"
	"github.com/stelo/blockproof/chain/readers"
)

var _ = Describe("CachedReader", func() {
	var (
		ctx        context.Context
		mockCtrl   *gomock.Controller
		mockReader *chain_mocks.MockReader
		cached     chain.Reader
		addr       common.Address
		number     *big.Int
	)

	BeforeEach(func() {
		ctx = context.Background()
		mockCtrl = gomock.NewController(GinkgoT())
		mockReader = chain_mocks.NewMockReader(mockCtrl)
		addr = common.HexToAddress("0xaa01")
		number = big.NewInt(100)

		mockReader.EXPECT().ChainID(gomock.Any()).Times(1).Return(big.NewInt(1), nil)
		var err error
		cached, err = readers.NewCachedReader(mockReader)
		Expect(err).To(BeNil())
	})

	It("should serve the chain id without asking the source again", func() {
		id, err := cached.ChainID(ctx)
		Expect(err).To(BeNil())
		Expect(id).To(Equal(big.NewInt(1)))
	})

	It("should cache proof responses per account and slot set", func() {
		result := &gethclient.AccountResult{
			Address: addr,
			Balance: big.NewInt(999),
			Nonce:   9,
		}
		mockReader.EXPECT().
			ProofAt(gomock.Any(), gomock.Eq(addr), gomock.Nil(), gomock.Eq(number)).
			Times(1).
			Return(result, nil)

		for i := 0; i < 2; i++ {
			got, err := cached.ProofAt(ctx, addr, nil, number)
			Expect(err).To(BeNil())
			Expect(got.Nonce).To(Equal(uint64(9)))
			Expect(got.Balance).To(Equal(big.NewInt(999)))
		}

		slot := common.BigToHash(big.NewInt(1))
		withSlot := &gethclient.AccountResult{
			Address: addr,
			Balance: big.NewInt(999),
			Nonce:   9,
			StorageProof: []gethclient.StorageResult{
				{Key: slot.Hex(), Value: big.NewInt(42)},
			},
		}
		mockReader.EXPECT().
			ProofAt(gomock.Any(), gomock.Eq(addr), gomock.Eq([]common.Hash{slot}), gomock.Eq(number)).
			Times(1).
			Return(withSlot, nil)

		got, err := cached.ProofAt(ctx, addr, []common.Hash{slot}, number)
		Expect(err).To(BeNil())
		Expect(got.StorageProof).To(HaveLen(1))
	})

	It("should cache bytecode", func() {
		code := []byte{0x60, 0x00}
		mockReader.EXPECT().
			CodeAt(gomock.Any(), gomock.Eq(addr), gomock.Eq(number)).
			Times(1).
			Return(code, nil)

		for i := 0; i < 2; i++ {
			got, err := cached.CodeAt(ctx, addr, number)
			Expect(err).To(BeNil())
			Expect(got).To(Equal(code))
		}
	})

	It("should cache block hashes", func() {
		hash := common.HexToHash("0x64")
		mockReader.EXPECT().
			BlockHashByNumber(gomock.Any(), gomock.Eq(number)).
			Times(1).
			Return(hash, nil)

		for i := 0; i < 2; i++ {
			got, err := cached.BlockHashByNumber(ctx, number)
			Expect(err).To(BeNil())
			Expect(got).To(Equal(hash))
		}
	})
})
