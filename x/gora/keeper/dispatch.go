package keeper

import (
	"context"
	"encoding/hex"

	errorsmod "cosmossdk.io/errors"
	"github.com/armon/go-metrics"

	"github.com/GPTx-global/gora/x/gora/types"
)

// SubmitRequest sends one request to the dispatcher. It issues exactly one
// runtime call and never retries; a rejected call surfaces as ErrDispatchFailed.
func (k *Keeper) SubmitRequest(ctx context.Context, msg *types.MsgRequest) (*types.MsgRequestResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}

	// the dispatcher would reject a spec that does not match its tag, fail here instead
	if _, err := types.UnmarshalRequestSpec(msg.RequestType, msg.RequestSpec); err != nil {
		return nil, errorsmod.Wrapf(err, "request_spec as %s", msg.RequestType)
	}

	dest := types.NewDestinationSpec(msg.DestAppID, k.selfAppID, msg.DestMethod)
	if err := dest.ValidateBasic(); err != nil {
		return nil, err
	}
	destBz, err := dest.Marshal()
	if err != nil {
		return nil, err
	}

	call := types.RequestCall{
		RequestSpec: msg.RequestSpec,
		Destination: destBz,
		RequestType: msg.RequestType,
		RequestKey:  msg.RequestKey,
		AppRefs:     msg.AppRefs,
		AssetRefs:   msg.AssetRefs,
		AccountRefs: msg.AccountRefs,
		BoxRefs:     msg.BoxRefs,
	}
	args, err := call.Args()
	if err != nil {
		return nil, err
	}

	boxKey, err := k.BoxKey(msg.RequestKey)
	if err != nil {
		return nil, err
	}

	err = k.runtime.CallApp(ctx, types.AppCall{
		SenderAppID: k.selfAppID,
		AppID:       k.params.DispatcherAppID,
		Args:        args,
	})
	if err != nil {
		metrics.IncrCounterWithLabels([]string{types.ModuleName, "dispatch", "failure"}, 1,
			[]metrics.Label{{Name: "request_type", Value: msg.RequestType.String()}})
		k.Logger().Error("dispatch failed", "request_type", msg.RequestType.String(), "err", err)
		return nil, errorsmod.Wrap(types.ErrDispatchFailed, err.Error())
	}

	seq, err := k.nextSequence()
	if err != nil {
		return nil, err
	}
	pending := types.PendingRequest{
		RequestKey:  msg.RequestKey,
		RequestType: msg.RequestType,
		Destination: dest,
		Sequence:    seq,
	}
	if err := k.SetPendingRequest(boxKey, pending); err != nil {
		return nil, err
	}

	metrics.IncrCounterWithLabels([]string{types.ModuleName, "dispatch", "success"}, 1,
		[]metrics.Label{{Name: "request_type", Value: msg.RequestType.String()}})
	k.Logger().Info(types.EventTypeOracleRequest,
		types.AttributeKeyBoxKey, hex.EncodeToString(boxKey[:]),
		types.AttributeKeyRequestKey, hex.EncodeToString(msg.RequestKey),
		types.AttributeKeyRequestType, msg.RequestType.String(),
		types.AttributeKeyDestAppID, dest.AppID,
		types.AttributeKeyDestMethod, string(dest.Method),
	)

	return &types.MsgRequestResponse{
		BoxKey:     boxKey,
		RequestKey: msg.RequestKey,
	}, nil
}
