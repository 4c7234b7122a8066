package dyengine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Tx is a wrapper of Ethereum's types.Transaction whose sender has
// already been resolved.
type Tx struct {
	*types.Transaction

	from common.Address
}

// TxFromTransactionWithSigner resolves the transaction sender with the
// given signer. The recovery error is returned verbatim; it is the
// executor-native validation error of a malformed block.
func TxFromTransactionWithSigner(tx *types.Transaction, signer types.Signer) (*Tx, error) {
	from, err := signer.Sender(tx)
	if err != nil {
		return nil, err
	}
	return &Tx{
		Transaction: tx,
		from:        from,
	}, nil
}

func (tx *Tx) From() common.Address {
	return tx.from
}
