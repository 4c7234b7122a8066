package state

import (
	"bytes"
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/stelo/blockproof/dyengine"
	"github.com/stelo/blockproof/witness"
)

type accessList struct {
	addresses map[common.Address]int
	slots     []map[common.Hash]struct{}
}

// newAccessList creates a new accessList.
func newAccessList() *accessList {
	return &accessList{
		addresses: make(map[common.Address]int),
	}
}

// WitnessState is an in-memory state whose committed values come from a
// witness.Store. Accounts and storage slots are inherited lazily on
// first access, so the set of store fetches is exactly the read-set of
// the execution. The same type serves both passes of the verification
// protocol: with a network-backed store it discovers and records the
// read-set, with a sealed store it replays against verified witnesses
// only.
type WitnessState struct {
	*state.StateDB
	mu sync.Mutex

	ctx   context.Context
	store witness.Store

	accountInherited        map[common.Address]bool
	storageInherited        map[common.Address]map[common.Hash]bool
	dirtyClearedStorage     map[common.Address]map[common.Hash]bool
	committedClearedStorage map[common.Address]map[common.Hash]bool

	// touched is every address and slot whose committed value was
	// consulted, i.e. the read-set that Deltas reports over.
	touched map[common.Address]map[common.Hash]struct{}

	// The following three fields act as a copy of the corresponding ones in state.StateDB.
	// The purpose is to facilitate Copy.
	accessList *accessList
	thash      common.Hash
	txIndex    int

	snapshots []*WitnessState

	lastErr error
}

func NewWitnessState(ctx context.Context, store witness.Store) (*WitnessState, error) {
	db := rawdb.NewMemoryDatabase()
	sdb := state.NewDatabase(db)
	statedb, err := state.New(common.Hash{}, sdb, nil)
	if err != nil {
		return nil, err
	}

	return &WitnessState{
		StateDB: statedb,
		ctx:     ctx,
		store:   store,

		accountInherited:        make(map[common.Address]bool),
		storageInherited:        make(map[common.Address]map[common.Hash]bool),
		dirtyClearedStorage:     make(map[common.Address]map[common.Hash]bool),
		committedClearedStorage: make(map[common.Address]map[common.Hash]bool),

		touched: make(map[common.Address]map[common.Hash]struct{}),

		accessList: &accessList{
			addresses: make(map[common.Address]int),
			slots:     make([]map[common.Hash]struct{}, 0),
		},

		snapshots: make([]*WitnessState, 0),

		lastErr: nil,
	}, nil
}

func (s *WitnessState) SubBalance(addr common.Address, amount *big.Int) {
	err := s.inheritAccount(addr)
	if err != nil {
		s.lastErr = err
	}
	s.StateDB.SubBalance(addr, amount)
}

func (s *WitnessState) AddBalance(addr common.Address, amount *big.Int) {
	err := s.inheritAccount(addr)
	if err != nil {
		s.lastErr = err
	}
	s.StateDB.AddBalance(addr, amount)
}

func (s *WitnessState) GetBalance(addr common.Address) *big.Int {
	err := s.inheritAccount(addr)
	if err != nil {
		s.lastErr = err
	}
	return s.StateDB.GetBalance(addr)
}

func (s *WitnessState) GetNonce(addr common.Address) uint64 {
	err := s.inheritAccount(addr)
	if err != nil {
		s.lastErr = err
	}
	return s.StateDB.GetNonce(addr)
}

func (s *WitnessState) SetNonce(addr common.Address, nonce uint64) {
	err := s.inheritAccount(addr)
	if err != nil {
		s.lastErr = err
	}
	s.StateDB.SetNonce(addr, nonce)
}

func (s *WitnessState) GetCodeHash(addr common.Address) common.Hash {
	err := s.inheritAccount(addr)
	if err != nil {
		s.lastErr = err
	}
	return s.StateDB.GetCodeHash(addr)
}

func (s *WitnessState) GetCode(addr common.Address) []byte {
	err := s.inheritAccount(addr)
	if err != nil {
		s.lastErr = err
	}
	return s.StateDB.GetCode(addr)
}

func (s *WitnessState) SetCode(addr common.Address, code []byte) {
	err := s.inheritAccount(addr)
	if err != nil {
		s.lastErr = err
	}
	s.StateDB.SetCode(addr, code)
}

func (s *WitnessState) GetCodeSize(addr common.Address) int {
	err := s.inheritAccount(addr)
	if err != nil {
		s.lastErr = err
	}
	return s.StateDB.GetCodeSize(addr)
}

func (s *WitnessState) GetCommittedState(addr common.Address, hash common.Hash) common.Hash {
	err := s.inheritAccount(addr)
	if err != nil {
		s.lastErr = err
	}

	err = s.inheritStorage(addr, hash)
	if err != nil {
		s.lastErr = err
	}
	value := s.StateDB.GetCommittedState(addr, hash)
	// if value is non-zero, it means some previous transactions have set the value.
	if s.emptyHash(value) {
		// Note that inheritStorage only stores inherited storage values
		// in the dirty/pending storage inside stateObject.
		// So, if the committed state read back is empty, it has two possibilities:
		// 1. the storage is not inherited, and it must not be set by previous
		// transactions, otherwise the storage must have been inherited.
		// 2. the storage has been inherited but is set to zero by previous transactions.
		// In these cases, we need to distinguish.
		if stor, ok := s.committedClearedStorage[addr]; ok {
			if stor[hash] {
				return value
			}
		}

		// this is not cleared by any previous transaction, the committed
		// value comes from the store
		v, err := s.store.FetchStorage(s.ctx, addr, hash)
		if err != nil {
			s.lastErr = err
		}
		value = v
	}

	return value
}

func (s *WitnessState) GetState(addr common.Address, hash common.Hash) common.Hash {
	err := s.inheritAccount(addr)
	if err != nil {
		s.lastErr = err
	}
	err = s.inheritStorage(addr, hash)
	if err != nil {
		s.lastErr = err
	}
	return s.StateDB.GetState(addr, hash)
}

func (s *WitnessState) SetState(addr common.Address, hash common.Hash, value common.Hash) {
	err := s.inheritAccount(addr)
	if err != nil {
		s.lastErr = err
	}
	err = s.inheritStorage(addr, hash)
	if err != nil {
		s.lastErr = err
	}
	s.StateDB.SetState(addr, hash, value)

	if s.emptyHash(value) {
		s.dirtyClearedStorage[addr][hash] = true
	} else {
		s.dirtyClearedStorage[addr][hash] = false
	}
}

func (s *WitnessState) Suicide(addr common.Address) bool {
	err := s.inheritAccount(addr)
	if err != nil {
		s.lastErr = err
	}
	return s.StateDB.Suicide(addr)
}

func (s *WitnessState) HasSuicided(addr common.Address) bool {
	err := s.inheritAccount(addr)
	if err != nil {
		s.lastErr = err
	}
	return s.StateDB.HasSuicided(addr)
}

func (s *WitnessState) Exist(addr common.Address) bool {
	err := s.inheritAccount(addr)
	if err != nil {
		s.lastErr = err
	}
	return s.StateDB.Exist(addr)
}

func (s *WitnessState) Empty(addr common.Address) bool {
	err := s.inheritAccount(addr)
	if err != nil {
		s.lastErr = err
	}
	return s.StateDB.Empty(addr)
}

// PrepareAccessList is identical to state.StateDB.PrepareAccessList.
//
// We rewrite it here only to redirect the invocation of AddAddressToAccessList and AddSlotToAccessList
// to our own implementation.
func (s *WitnessState) PrepareAccessList(
	sender common.Address, dst *common.Address, precompiles []common.Address, list types.AccessList,
) {
	// this is essential to let super StateDB clear the leftovers
	s.StateDB.PrepareAccessList(sender, nil, nil, nil)

	// Clear out any leftover from previous executions
	s.accessList = newAccessList()

	s.AddAddressToAccessList(sender)
	if dst != nil {
		s.AddAddressToAccessList(*dst)
		// If it's a create-tx, the destination will be added inside evm.create
	}
	for _, addr := range precompiles {
		s.AddAddressToAccessList(addr)
	}
	for _, el := range list {
		s.AddAddressToAccessList(el.Address)
		for _, key := range el.StorageKeys {
			s.AddSlotToAccessList(el.Address, key)
		}
	}
}

// AddAddressToAccessList calls the state.StateDB's AddAddressToAccessList,
// but also saves the added address so that Copy can also copy the access list.
func (s *WitnessState) AddAddressToAccessList(addr common.Address) {
	if _, present := s.accessList.addresses[addr]; !present {
		s.accessList.addresses[addr] = -1
	}
	s.StateDB.AddAddressToAccessList(addr)
}

// AddSlotToAccessList calls the state.StateDB's AddSlotToAccessList,
// but also saves the added slots so that Copy can also copy the access list.
func (s *WitnessState) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	idx, addrPresent := s.accessList.addresses[addr]
	if !addrPresent || idx == -1 {
		// Account not present, or addr present but no slots there
		s.accessList.addresses[addr] = len(s.accessList.slots)
		slotmap := map[common.Hash]struct{}{slot: {}}
		s.accessList.slots = append(s.accessList.slots, slotmap)
	} else {
		// There is already an (address,slot) mapping
		slotmap := s.accessList.slots[idx]
		if _, ok := slotmap[slot]; !ok {
			slotmap[slot] = struct{}{}
		}
	}
	s.StateDB.AddSlotToAccessList(addr, slot)
}

// Prepare calls the same method of state.StateDB,
// but also saves the tx hash and index so that Copy can also copy them.
func (s *WitnessState) Prepare(thash common.Hash, ti int) {
	s.thash = thash
	s.txIndex = ti
	s.StateDB.Prepare(thash, ti)
}

// Copy copies the content of WitnessState.
//
// The field journal in the state.StateDB is not well copied,
// because currently we don't use journal to implement RevertToSnapshot.
func (s *WitnessState) Copy() dyengine.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss := s.StateDB.Copy()
	// In addition to the copy of internal StateDB, we also need to copy fields of WitnessState
	accountInherited := make(map[common.Address]bool)
	for k, v := range s.accountInherited {
		accountInherited[k] = v
	}
	storageInherited := make(map[common.Address]map[common.Hash]bool)
	for k, v := range s.storageInherited {
		storageInherited[k] = make(map[common.Hash]bool)
		for kk, vv := range v {
			storageInherited[k][kk] = vv
		}
	}
	dirtyClearedStorage := make(map[common.Address]map[common.Hash]bool)
	for k, v := range s.dirtyClearedStorage {
		dirtyClearedStorage[k] = make(map[common.Hash]bool)
		for kk, vv := range v {
			dirtyClearedStorage[k][kk] = vv
		}
	}
	committedClearedStorage := make(map[common.Address]map[common.Hash]bool)
	for k, v := range s.committedClearedStorage {
		committedClearedStorage[k] = make(map[common.Hash]bool)
		for kk, vv := range v {
			committedClearedStorage[k][kk] = vv
		}
	}
	touched := make(map[common.Address]map[common.Hash]struct{})
	for k, v := range s.touched {
		touched[k] = make(map[common.Hash]struct{})
		for kk := range v {
			touched[k][kk] = struct{}{}
		}
	}

	cpSnapshots := make([]*WitnessState, len(s.snapshots))
	copy(cpSnapshots, s.snapshots)
	cp := &WitnessState{
		StateDB: ss,
		ctx:     s.ctx,
		store:   s.store,

		accountInherited:        accountInherited,
		storageInherited:        storageInherited,
		dirtyClearedStorage:     dirtyClearedStorage,
		committedClearedStorage: committedClearedStorage,

		touched: touched,

		accessList: &accessList{
			addresses: make(map[common.Address]int),
			slots:     make([]map[common.Hash]struct{}, 0),
		},

		snapshots: cpSnapshots, // don't deep copy snapshots to save memory
		lastErr:   s.lastErr,
	}

	// We need to Prepare the state again,
	// because the thash and txIndex field of state.StateDB is not copied yet.
	cp.Prepare(s.thash, s.txIndex)
	// The access list is copied by the Copy method of state.StateDB,
	// but when we invoke Prepare again in previous statement, the access list is cleared.
	// So, we need to manually copy the access list.
	for addr, index := range s.accessList.addresses {
		cp.AddAddressToAccessList(addr)
		if index < 0 {
			continue
		}
		for slot := range s.accessList.slots[index] {
			cp.AddSlotToAccessList(addr, slot)
		}
	}

	return cp
}

// Snapshot implements the functionality in a different way from StateDB.Snapshot.
// This is because the procedure of StateDB.RevertToSnapshot is private and not exposed to public.
// We implement Snapshot here by copying the whole object.
// Snapshots are only shadow copied.
func (s *WitnessState) Snapshot() int {
	snapshot := s.Copy().(*WitnessState)
	id := len(s.snapshots)
	s.snapshots = append(s.snapshots, snapshot)
	return id
}

// RevertToSnapshot is used to revert state.
func (s *WitnessState) RevertToSnapshot(snapshotId int) {
	snapshot := s.snapshots[snapshotId]
	s.StateDB = snapshot.StateDB
	s.ctx = snapshot.ctx
	s.store = snapshot.store
	s.accountInherited = snapshot.accountInherited
	s.storageInherited = snapshot.storageInherited
	s.dirtyClearedStorage = snapshot.dirtyClearedStorage
	s.committedClearedStorage = snapshot.committedClearedStorage
	s.touched = snapshot.touched
	s.snapshots = snapshot.snapshots
	s.lastErr = snapshot.lastErr
}

func (s *WitnessState) Finalise(deleteEmptyObjects bool) {
	s.StateDB.Finalise(deleteEmptyObjects)
	for acc, stor := range s.dirtyClearedStorage {
		if _, ok := s.committedClearedStorage[acc]; !ok {
			s.committedClearedStorage[acc] = make(map[common.Hash]bool)
		}
		for key, cleared := range stor {
			if cleared {
				s.committedClearedStorage[acc][key] = true
			} else {
				delete(s.committedClearedStorage[acc], key)
			}
		}
	}
}

// inheritAccount fetches the committed account record from the store
// on first access. Balance, code and nonce are inherited eagerly;
// storage is inherited lazily with inheritStorage since the set of
// slots an account uses is unknown up front.
func (s *WitnessState) inheritAccount(addr common.Address) error {
	if _, ok := s.touched[addr]; !ok {
		s.touched[addr] = make(map[common.Hash]struct{})
	}
	if !s.accountInherited[addr] && !s.StateDB.Exist(addr) {
		account, err := s.store.FetchAccount(s.ctx, addr)
		if err != nil {
			return err
		}
		if account.Exists {
			if account.Balance.Sign() > 0 {
				s.StateDB.AddBalance(addr, account.Balance)
			}
			if len(account.Code) > 0 {
				s.StateDB.SetCode(addr, account.Code)
			}
			if account.Nonce > 0 {
				s.StateDB.SetNonce(addr, account.Nonce)
			}
		}

		s.storageInherited[addr] = make(map[common.Hash]bool)
		s.dirtyClearedStorage[addr] = make(map[common.Hash]bool)

		s.accountInherited[addr] = true
	}
	return nil
}

// inheritStorage lazily inherits a storage value from the store,
// assuming inheritAccount has been called.
// inheritStorage must be called whenever an account storage is involved,
// i.e., GetState, SetState, GetCommittedState, etc.
func (s *WitnessState) inheritStorage(addr common.Address, key common.Hash) error {
	s.touched[addr][key] = struct{}{}
	if !s.storageInherited[addr][key] {
		// the storage is not inherited yet,
		// that is to say, the storage was not used previously.
		// We don't need to worry that the storage has been overridden by a previous execution,
		// since otherwise inheritStorage would have been called in the first place.
		value, err := s.store.FetchStorage(s.ctx, addr, key)
		if err != nil {
			return err
		}
		// no need to set it in memory if the value is zero
		if !s.emptyHash(value) {
			// one limitation here is that the inherited storage should be set
			// in the original storage inside the StateDB,
			// but that API is not exposed by go-ethereum.
			// So the original storage is mixed with dirty storage of the first transaction that uses it.
			// This is fine if GetState is called since GetState does not distinguish origin or dirty storage.
			// But we are in trouble when GetCommittedState is called.
			s.StateDB.SetState(addr, key, value)
		}

		if storage, ok := s.storageInherited[addr]; ok {
			storage[key] = true
		} else {
			s.storageInherited[addr] = map[common.Hash]bool{key: true}
		}
	}
	return nil
}

func (s *WitnessState) emptyHash(hash common.Hash) bool {
	return bytes.Equal(hash.Bytes(), common.Hash{}.Bytes())
}

func (s *WitnessState) LastError() error {
	return s.lastErr
}

func (s *WitnessState) GetHashFn() func(uint64) common.Hash {
	return func(num uint64) common.Hash {
		hash, err := s.store.FetchBlockHash(s.ctx, num)
		if err != nil {
			s.lastErr = err
		}
		return hash
	}
}

// AccountDelta is the post-execution record of one touched account:
// its final balance, nonce and code hash, whether it still exists, and
// the final value of every touched storage slot.
type AccountDelta struct {
	Exists   bool
	Balance  *big.Int
	Nonce    uint64
	CodeHash common.Hash
	Storage  map[common.Hash]common.Hash
}

// Deltas reports the final value of every account and storage slot the
// execution touched. It reads the wrapped StateDB directly so taking
// deltas never extends the read-set. Call it after the last Finalise.
func (s *WitnessState) Deltas() map[common.Address]AccountDelta {
	deltas := make(map[common.Address]AccountDelta, len(s.touched))
	for addr, slots := range s.touched {
		delta := AccountDelta{
			Exists:   s.StateDB.Exist(addr),
			Balance:  new(big.Int).Set(s.StateDB.GetBalance(addr)),
			Nonce:    s.StateDB.GetNonce(addr),
			CodeHash: s.StateDB.GetCodeHash(addr),
			Storage:  make(map[common.Hash]common.Hash, len(slots)),
		}
		for slot := range slots {
			delta.Storage[slot] = s.StateDB.GetState(addr, slot)
		}
		deltas[addr] = delta
	}
	return deltas
}
