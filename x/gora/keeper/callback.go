package keeper

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/armon/go-metrics"

	"github.com/GPTx-global/gora/x/gora/types"
)

// Authenticate accepts a callback only from an app deployed by the pinned
// dispatcher identity.
func (k *Keeper) Authenticate(ctx context.Context, callerAppID uint64) error {
	if callerAppID == 0 {
		return k.unauthorized(callerAppID, "no calling app")
	}

	creator, err := k.runtime.AppCreator(ctx, callerAppID)
	if err != nil {
		return k.unauthorized(callerAppID, err.Error())
	}
	if creator != k.params.DispatcherIdentity {
		return k.unauthorized(callerAppID, "created by "+creator.String())
	}

	return nil
}

func (k *Keeper) unauthorized(callerAppID uint64, reason string) error {
	metrics.IncrCounter([]string{types.ModuleName, "callback", "unauthorized"}, 1)
	k.Logger().Error(types.EventTypeUnauthorizedCaller, types.AttributeKeyCallerAppID, callerAppID, "reason", reason)
	return errorsmod.Wrapf(types.ErrUnauthorizedCaller, "app %d: %s", callerAppID, reason)
}

// HandleCallback authenticates the caller, checks the response type and
// decodes the body. It changes no state; a nonzero error code in the body is
// returned to the caller as data.
func (k *Keeper) HandleCallback(ctx context.Context, callerAppID uint64, respType uint32, body []byte) (*types.ResponseBody, error) {
	if err := k.Authenticate(ctx, callerAppID); err != nil {
		return nil, err
	}
	if err := types.AssertOrTrap(respType == types.ResponseTypeResult, "callback.resp_type"); err != nil {
		return nil, err
	}

	resp, err := types.UnmarshalResponseBody(body)
	if err != nil {
		return nil, err
	}

	metrics.IncrCounter([]string{types.ModuleName, "callback", "accepted"}, 1)
	return resp, nil
}

// HandleDecodedCallback is HandleCallback for dispatchers that deliver the
// response fields as separate arguments.
func (k *Keeper) HandleDecodedCallback(
	ctx context.Context,
	callerAppID uint64,
	requestID [types.RequestIDLength]byte,
	requesterAddr types.Address,
	oracleValue []byte,
	userData []byte,
	errorCode uint32,
	sourceErrors uint64,
) (*types.ResponseBody, error) {
	if err := k.Authenticate(ctx, callerAppID); err != nil {
		return nil, err
	}

	metrics.IncrCounter([]string{types.ModuleName, "callback", "accepted"}, 1)
	return &types.ResponseBody{
		RequestID:     requestID,
		RequesterAddr: requesterAddr,
		OracleValue:   oracleValue,
		UserData:      userData,
		ErrorCode:     errorCode,
		SourceErrors:  sourceErrors,
	}, nil
}
