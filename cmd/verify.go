package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stelo/blockproof/config"
	"github.com/stelo/blockproof/dataset"
	"github.com/stelo/blockproof/global"
	"github.com/stelo/blockproof/helpers"
	"github.com/stelo/blockproof/stf"
)

// flags.
var (
	cVerifyFrom = config.Def{
		Type:     config.Uint64,
		Key:      "from",
		KeyShort: "f",
		Default:  uint64(0),
		Desc:     "first block number to verify",
	}
	cVerifyTo = config.Def{
		Type:     config.Uint64,
		Key:      "to",
		KeyShort: "t",
		Default:  uint64(0),
		Desc:     "last block number to verify (default: same as from)",
	}
	cVerifyResume = config.Def{
		Type:    config.Bool,
		Key:     "resume",
		Default: false,
		Desc:    "start after the latest verified block in the database",
	}
	cVerifySave = config.Def{
		Type:     config.Bool,
		Key:      "save",
		KeyShort: "s",
		Default:  false,
		Desc:     "save verification records to MongoDB",
	}
)

var cVerifyGroup = config.NewDefGroup("verify",
	cVerifyFrom,
	cVerifyTo,
	cVerifyResume,
	cVerifySave,
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-execute blocks and verify their state transitions against Merkle witnesses",
	Run: func(cmd *cobra.Command, args []string) {
		verifyBlocks()
	},
}

func init() {
	verifyCmd.Flags().AddFlagSet(cVerifyGroup.FlagSet())
	cVerifyGroup.BindToViper()
}

func verifyBlocks() {
	var (
		from   = viper.GetUint64(cVerifyGroup.KeyOf(cVerifyFrom))
		to     = viper.GetUint64(cVerifyGroup.KeyOf(cVerifyTo))
		resume = viper.GetBool(cVerifyGroup.KeyOf(cVerifyResume))
		save   = viper.GetBool(cVerifyGroup.KeyOf(cVerifySave))
	)

	ctx := global.Ctx()
	reader := global.ChainReader()
	if reader == nil {
		log.Fatal().Msg("No chain reader available")
	}

	if resume {
		latest, err := dataset.LatestVerifiedBlock(ctx, global.MongoDb())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to query latest verified block")
		}
		if latest >= from {
			from = latest + 1
		}
	}
	if to < from {
		to = from
	}
	if from == 0 {
		log.Fatal().Msg("No block to verify, specify --from")
	}

	verifier := stf.NewVerifier(reader, helpers.VMConfigOnMainnet())
	verifier.Pool = global.GoroutinePool()

	log.Info().Uint64("from", from).Uint64("to", to).Msg("Verifying blocks")
	for number := from; number <= to; number++ {
		input, err := verifier.VerifyBlock(ctx, number)
		if err != nil {
			log.Error().Err(err).Uint64("block", number).Msg("Block verification failed")
			if save {
				saveRecord(dataset.FailedVerificationRecord(number, err))
			}
			continue
		}
		if save {
			saveRecord(dataset.NewVerificationRecord(input))
		}
	}
}

func saveRecord(record *dataset.VerificationRecord) {
	err := dataset.SaveVerificationRecord(global.Ctx(), global.MongoDb(), record)
	if err != nil {
		log.Error().Err(err).
			Uint64("block", record.BlockNumber).
			Msg("Failed to save verification record")
	}
}
