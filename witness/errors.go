package witness

import "errors"

var (
	// ErrSourceUnavailable signals a transient remote failure. The caller
	// may retry the whole discovery pass; the store never retries itself.
	ErrSourceUnavailable = errors.New("remote source unavailable")

	// ErrNotFound signals data that does not exist at the reference block.
	ErrNotFound = errors.New("not found at reference block")

	// ErrMissingWitnessData signals a query outside the sealed witness set.
	// It is always a hard failure, never substituted with a zero value.
	ErrMissingWitnessData = errors.New("missing witness data")

	// ErrProofInvalid signals an inclusion proof that does not link the
	// claimed record to the expected state root.
	ErrProofInvalid = errors.New("invalid account proof")

	// ErrCodeHashMismatch signals bundled bytecode whose hash differs from
	// the code hash the proven account record declares.
	ErrCodeHashMismatch = errors.New("code hash does not match bundled code")

	// ErrReplayMismatch signals divergence between the discovery execution
	// and the witness-backed replay.
	ErrReplayMismatch = errors.New("replay diverged from discovery execution")
)
