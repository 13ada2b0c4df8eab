package keeper

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/GPTx-global/gora/x/gora/types"
)

// Request submits a request message.
func (k *Keeper) Request(ctx context.Context, msg *types.MsgRequest) (*types.MsgRequestResponse, error) {
	return k.SubmitRequest(ctx, msg)
}

// Callback accepts an envelope callback and records the response.
func (k *Keeper) Callback(ctx context.Context, msg *types.MsgCallback) (*types.MsgCallbackResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}

	resp, err := k.HandleCallback(ctx, msg.CallerAppID, msg.ResponseType, msg.ResponseBody)
	if err != nil {
		return nil, err
	}

	return k.recordResponse(resp)
}

// CallbackDecoded accepts a pre-decoded callback and records the response.
func (k *Keeper) CallbackDecoded(ctx context.Context, msg *types.MsgCallbackDecoded) (*types.MsgCallbackResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}

	b := msg.Body
	resp, err := k.HandleDecodedCallback(ctx, msg.CallerAppID, b.RequestID, b.RequesterAddr, b.OracleValue, b.UserData, b.ErrorCode, b.SourceErrors)
	if err != nil {
		return nil, err
	}

	return k.recordResponse(resp)
}

// recordResponse runs only after the caller was authenticated and the body
// decoded. The response, the pending request removal and the last value are
// written in one batch.
func (k *Keeper) recordResponse(resp *types.ResponseBody) (*types.MsgCallbackResponse, error) {
	bz, err := resp.Marshal()
	if err != nil {
		return nil, err
	}

	batch := k.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(types.GetResponseKey(resp.RequestID), bz); err != nil {
		return nil, err
	}
	// the dispatcher names a response after the box that held its request
	if err := batch.Delete(types.GetPendingRequestKey(resp.RequestID)); err != nil {
		return nil, err
	}

	stored := !resp.Failed() || k.params.StoreFailedResponses
	if stored {
		value := resp.OracleValue
		if value == nil {
			value = []byte{}
		}
		if err := batch.Set(types.KeyLastOracleValue, value); err != nil {
			return nil, err
		}
	}

	if err := batch.WriteSync(); err != nil {
		return nil, fmt.Errorf("failed to record response %x: %w", resp.RequestID, err)
	}

	k.Logger().Info(types.EventTypeOracleResponse,
		types.AttributeKeyRequestID, hex.EncodeToString(resp.RequestID[:]),
		types.AttributeKeyErrorCode, resp.ErrorCode,
		types.AttributeKeySourceErrors, resp.SourceErrors,
		"stored", stored,
	)

	return &types.MsgCallbackResponse{Response: resp, Stored: stored}, nil
}
