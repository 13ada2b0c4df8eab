package keeper

import (
	"encoding/binary"
	"fmt"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"

	"github.com/GPTx-global/gora/x/gora/types"
)

// Keeper is the client side of the oracle protocol for one destination app.
// It submits requests to the pinned dispatcher and accepts its callbacks.
type Keeper struct {
	db        tmdb.DB
	runtime   types.Runtime
	params    types.Params
	selfAppID uint64
	logger    log.Logger

	// guards the request counter
	mtx sync.Mutex
}

func NewKeeper(
	db tmdb.DB,
	runtime types.Runtime,
	params types.Params,
	selfAppID uint64,
	logger log.Logger,
) (*Keeper, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if selfAppID == 0 {
		return nil, errorsmod.Wrap(types.ErrInvalidParams, "self app id is required")
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Keeper{
		db:        db,
		runtime:   runtime,
		params:    params,
		selfAppID: selfAppID,
		logger:    logger,
	}, nil
}

func (k *Keeper) Logger() log.Logger {
	return k.logger.With("module", fmt.Sprintf("x/%s", types.ModuleName))
}

func (k *Keeper) Params() types.Params {
	return k.params
}

func (k *Keeper) SelfAppID() uint64 {
	return k.selfAppID
}

// Address returns the account of the keeper's app, the requester of every
// request it submits.
func (k *Keeper) Address() types.Address {
	return types.ApplicationAddress(k.selfAppID)
}

// BoxKey derives the dispatcher box that holds a request submitted by this app.
func (k *Keeper) BoxKey(requestKey []byte) ([types.BoxKeyLength]byte, error) {
	return types.DeriveBoxKey(k.params.HashAlgorithm, k.Address(), requestKey)
}

func (k *Keeper) GetRequestCount() (uint64, error) {
	bz, err := k.db.Get(types.KeyRequestCount)
	if err != nil {
		return 0, fmt.Errorf("failed to read request count: %w", err)
	}
	if len(bz) == 0 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(bz), nil
}

func (k *Keeper) nextSequence() (uint64, error) {
	k.mtx.Lock()
	defer k.mtx.Unlock()

	count, err := k.GetRequestCount()
	if err != nil {
		return 0, err
	}
	seq := count + 1
	if err := k.db.SetSync(types.KeyRequestCount, types.IDToBytes(seq)); err != nil {
		return 0, err
	}
	return seq, nil
}

func (k *Keeper) SetPendingRequest(boxKey [types.BoxKeyLength]byte, pending types.PendingRequest) error {
	bz, err := pending.Marshal()
	if err != nil {
		return err
	}
	return k.db.Set(types.GetPendingRequestKey(boxKey), bz)
}

func (k *Keeper) GetPendingRequest(boxKey [types.BoxKeyLength]byte) (*types.PendingRequest, error) {
	bz, err := k.db.Get(types.GetPendingRequestKey(boxKey))
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, errorsmod.Wrapf(types.ErrNotFound, "pending request %x", boxKey)
	}

	var pending types.PendingRequest
	if err := pending.Unmarshal(bz); err != nil {
		return nil, err
	}
	return &pending, nil
}

// IteratePendingRequests calls cb in box key order until it returns true.
func (k *Keeper) IteratePendingRequests(cb func(boxKey [types.BoxKeyLength]byte, pending types.PendingRequest) (stop bool)) error {
	iter, err := tmdb.IteratePrefix(k.db, types.KeyPendingRequest)
	if err != nil {
		return err
	}
	defer iter.Close()

	for ; iter.Valid(); iter.Next() {
		boxKey, err := types.ParsePendingRequestKey(iter.Key())
		if err != nil {
			return err
		}
		var pending types.PendingRequest
		if err := pending.Unmarshal(iter.Value()); err != nil {
			return err
		}
		if cb(boxKey, pending) {
			break
		}
	}
	return iter.Error()
}

func (k *Keeper) GetResponse(requestID [types.RequestIDLength]byte) (*types.ResponseBody, error) {
	bz, err := k.db.Get(types.GetResponseKey(requestID))
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, errorsmod.Wrapf(types.ErrNotFound, "response %x", requestID)
	}
	return types.UnmarshalResponseBody(bz)
}

// SetLastOracleValue stores the value of the most recent accepted response.
func (k *Keeper) SetLastOracleValue(value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return k.db.Set(types.KeyLastOracleValue, value)
}

// GetLastOracleValue returns the last stored value and whether one exists.
func (k *Keeper) GetLastOracleValue() ([]byte, bool, error) {
	ok, err := k.db.Has(types.KeyLastOracleValue)
	if err != nil || !ok {
		return nil, false, err
	}
	bz, err := k.db.Get(types.KeyLastOracleValue)
	if err != nil {
		return nil, false, err
	}
	return bz, true, nil
}
