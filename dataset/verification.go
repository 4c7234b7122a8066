package dataset

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stelo/blockproof/witness"
)

const verificationCollection = "verifications"

// VerificationRecord is the persisted result of one VerifyBlock run.
type VerificationRecord struct {
	BlockNumber uint64    `bson:"blockNumber"`
	BlockHash   string    `bson:"blockHash"`
	StateRoot   string    `bson:"stateRoot"`
	Accounts    int       `bson:"accounts"`
	BlockHashes int       `bson:"blockHashes"`
	Verified    bool      `bson:"verified"`
	Failure     string    `bson:"failure,omitempty"`
	CreatedAt   time.Time `bson:"createdAt"`
}

func NewVerificationRecord(input *witness.ExecutionInput) *VerificationRecord {
	return &VerificationRecord{
		BlockNumber: input.Block.NumberU64(),
		BlockHash:   input.Block.Hash().Hex(),
		StateRoot:   input.PrevBlock.Root().Hex(),
		Accounts:    len(input.Witnesses),
		BlockHashes: len(input.BlockHashes),
		Verified:    true,
		CreatedAt:   time.Now(),
	}
}

func FailedVerificationRecord(blockNumber uint64, failure error) *VerificationRecord {
	return &VerificationRecord{
		BlockNumber: blockNumber,
		Verified:    false,
		Failure:     failure.Error(),
		CreatedAt:   time.Now(),
	}
}

func SaveVerificationRecord(
	ctx context.Context, db *mongo.Database, record *VerificationRecord,
) error {
	_, err := db.Collection(verificationCollection).InsertOne(ctx, record)
	return err
}

// LatestVerifiedBlock returns the highest block number with a
// successful record, or 0 when no block has been verified yet.
func LatestVerifiedBlock(ctx context.Context, db *mongo.Database) (uint64, error) {
	var record VerificationRecord
	err := db.Collection(verificationCollection).FindOne(
		ctx,
		bson.D{{Key: "verified", Value: true}},
		options.FindOne().SetSort(bson.D{{Key: "blockNumber", Value: -1}}),
	).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return record.BlockNumber, nil
}
