package witness

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"golang.org/x/crypto/sha3"
)

var emptyCodeHash = crypto.Keccak256Hash(nil)

// AccountWitness bundles one account's eth_getProof result (account
// inclusion proof plus the storage proofs of every slot the execution
// touched) with the account's bytecode. It is created once per distinct
// address during the discovery pass and verified exactly once before
// being admitted into an ExecutionInput.
type AccountWitness struct {
	Address common.Address            `json:"address"`
	Proof   *gethclient.AccountResult `json:"proof"`
	Code    hexutil.Bytes             `json:"code"`
}

// Verify checks that the witness cryptographically links to the given
// state root and that the bundled bytecode matches the declared code
// hash. There is no partial success: either the whole witness is
// trusted or it is rejected.
func (w *AccountWitness) Verify(stateRoot common.Hash) error {
	proofDb := memorydb.New()
	for _, node := range w.Proof.AccountProof {
		blob, err := hexutil.Decode(node)
		if err != nil {
			return fmt.Errorf("%w: malformed proof node: %v", ErrProofInvalid, err)
		}
		if err := proofDb.Put(crypto.Keccak256(blob), blob); err != nil {
			return err
		}
	}

	value, err := trie.VerifyProof(stateRoot, crypto.Keccak256(w.Address.Bytes()), proofDb)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProofInvalid, err)
	}

	if value == nil {
		// Absence proof. The claimed record must be empty and the code
		// hash consistency check is skipped.
		if w.Proof.Nonce != 0 || bigSign(w.Proof.Balance) != 0 {
			return fmt.Errorf("%w: proof of absence with non-empty claimed record", ErrProofInvalid)
		}
		return w.verifyStorage(common.Hash{})
	}

	var account types.StateAccount
	if err := rlp.DecodeBytes(value, &account); err != nil {
		return fmt.Errorf("%w: malformed account record: %v", ErrProofInvalid, err)
	}
	if account.Nonce != w.Proof.Nonce ||
		account.Balance.Cmp(bigOrZero(w.Proof.Balance)) != 0 ||
		account.Root != w.Proof.StorageHash ||
		!bytes.Equal(account.CodeHash, w.Proof.CodeHash.Bytes()) {
		return fmt.Errorf("%w: claimed record diverges from proven record", ErrProofInvalid)
	}

	if w.Proof.CodeHash != emptyCodeHash && w.Proof.CodeHash != (common.Hash{}) {
		if keccak256(w.Code) != w.Proof.CodeHash {
			return fmt.Errorf(
				"%w: account %s declares %s",
				ErrCodeHashMismatch, w.Address, w.Proof.CodeHash,
			)
		}
	}

	return w.verifyStorage(account.Root)
}

// verifyStorage checks every bundled storage proof against the proven
// storage root. An empty or zero root admits only zero-valued slots.
func (w *AccountWitness) verifyStorage(storageRoot common.Hash) error {
	empty := storageRoot == (common.Hash{}) || storageRoot == types.EmptyRootHash
	for _, entry := range w.Proof.StorageProof {
		if empty {
			if bigSign(entry.Value) != 0 {
				return fmt.Errorf(
					"%w: non-zero slot %s under empty storage root", ErrProofInvalid, entry.Key,
				)
			}
			continue
		}

		proofDb := memorydb.New()
		for _, node := range entry.Proof {
			blob, err := hexutil.Decode(node)
			if err != nil {
				return fmt.Errorf("%w: malformed storage proof node: %v", ErrProofInvalid, err)
			}
			if err := proofDb.Put(crypto.Keccak256(blob), blob); err != nil {
				return err
			}
		}
		key := common.HexToHash(entry.Key)
		value, err := trie.VerifyProof(storageRoot, crypto.Keccak256(key.Bytes()), proofDb)
		if err != nil {
			return fmt.Errorf("%w: slot %s: %v", ErrProofInvalid, entry.Key, err)
		}

		proven := new(big.Int)
		if value != nil {
			var content []byte
			if err := rlp.DecodeBytes(value, &content); err != nil {
				return fmt.Errorf("%w: malformed storage leaf: %v", ErrProofInvalid, err)
			}
			proven.SetBytes(content)
		}
		if proven.Cmp(bigOrZero(entry.Value)) != 0 {
			return fmt.Errorf(
				"%w: slot %s claims %s, proof yields %s",
				ErrProofInvalid, entry.Key, bigOrZero(entry.Value), proven,
			)
		}
	}
	return nil
}

// Account returns the pre-state record this witness claims. The claim is
// only trustworthy after Verify has succeeded.
func (w *AccountWitness) Account() *Account {
	balance := bigOrZero(w.Proof.Balance)
	exists := w.Proof.Nonce != 0 || balance.Sign() != 0 ||
		(w.Proof.CodeHash != (common.Hash{}) && w.Proof.CodeHash != emptyCodeHash) ||
		(w.Proof.StorageHash != (common.Hash{}) && w.Proof.StorageHash != types.EmptyRootHash)
	return &Account{
		Exists:   exists,
		Nonce:    w.Proof.Nonce,
		Balance:  new(big.Int).Set(balance),
		CodeHash: w.Proof.CodeHash,
		Code:     w.Code,
	}
}

func keccak256(data []byte) common.Hash {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(data)
	return common.BytesToHash(hasher.Sum(nil))
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func bigSign(v *big.Int) int {
	if v == nil {
		return 0
	}
	return v.Sign()
}
