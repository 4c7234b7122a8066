package dataset_test

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stelo/blockproof/dataset"
	"github.com/stelo/blockproof/witness"
)

var _ = Describe("VerificationRecord", func() {
	It("should describe a verified block", func() {
		parent := types.NewBlockWithHeader(&types.Header{
			Number: big.NewInt(9),
			Root:   common.HexToHash("0x900f"),
		})
		block := types.NewBlockWithHeader(&types.Header{
			Number:     big.NewInt(10),
			ParentHash: parent.Hash(),
		})
		input := &witness.ExecutionInput{
			PrevBlock: parent,
			Block:     block,
			Witnesses: map[common.Address]*witness.AccountWitness{
				common.HexToAddress("0xaa01"): {},
				common.HexToAddress("0xbb02"): {},
			},
			BlockHashes: map[uint64]common.Hash{5: {}},
		}

		record := dataset.NewVerificationRecord(input)
		Expect(record.BlockNumber).To(Equal(uint64(10)))
		Expect(record.BlockHash).To(Equal(block.Hash().Hex()))
		Expect(record.StateRoot).To(Equal(parent.Root().Hex()))
		Expect(record.Accounts).To(Equal(2))
		Expect(record.BlockHashes).To(Equal(1))
		Expect(record.Verified).To(BeTrue())
		Expect(record.Failure).To(BeEmpty())
	})

	It("should describe a failed verification", func() {
		record := dataset.FailedVerificationRecord(10, errors.New("boom"))
		Expect(record.BlockNumber).To(Equal(uint64(10)))
		Expect(record.Verified).To(BeFalse())
		Expect(record.Failure).To(Equal("boom"))
	})
})
