package gora

import (
	"bytes"
	"context"

	errorsmod "cosmossdk.io/errors"

	"github.com/GPTx-global/gora/x/gora/keeper"
	"github.com/GPTx-global/gora/x/gora/types"
)

// Handler processes one module message and returns its response.
type Handler func(ctx context.Context, msg types.Msg) (any, error)

// NewHandler creates a new handler for gora messages
func NewHandler(k *keeper.Keeper) Handler {
	return func(ctx context.Context, msg types.Msg) (any, error) {
		switch msg := msg.(type) {
		case *types.MsgRequest:
			return k.Request(ctx, msg)

		case *types.MsgCallback:
			return k.Callback(ctx, msg)

		case *types.MsgCallbackDecoded:
			return k.CallbackDecoded(ctx, msg)

		default:
			return nil, errorsmod.Wrapf(types.ErrInvalidField, "unrecognized %s message type: %T", types.ModuleName, msg)
		}
	}
}

// NewCallbackHandler turns raw app calls addressed to the keeper's app into
// callback messages. Only the named callback methods are accepted, in either
// the envelope or the pre-decoded argument form.
func NewCallbackHandler(k *keeper.Keeper, methods ...string) (func(ctx context.Context, call types.AppCall) error, error) {
	type route struct {
		selector []byte
		decoded  bool
	}

	routes := make([]route, 0, 2*len(methods))
	for _, method := range methods {
		for _, decoded := range []bool{false, true} {
			sel, err := types.CallbackSelector([]byte(method), decoded)
			if err != nil {
				return nil, err
			}
			routes = append(routes, route{selector: sel, decoded: decoded})
		}
	}

	handler := NewHandler(k)

	return func(ctx context.Context, call types.AppCall) error {
		for _, r := range routes {
			if !bytes.Equal(call.Selector(), r.selector) {
				continue
			}

			// arguments from an unknown caller are never decoded
			if err := k.Authenticate(ctx, call.SenderAppID); err != nil {
				return err
			}

			var msg types.Msg
			if r.decoded {
				body, err := types.UnmarshalDecodedCallbackArgs(call.Args)
				if err != nil {
					return err
				}
				msg = &types.MsgCallbackDecoded{CallerAppID: call.SenderAppID, Body: body}
			} else {
				respType, body, err := types.UnmarshalCallbackArgs(call.Args)
				if err != nil {
					return err
				}
				msg = &types.MsgCallback{CallerAppID: call.SenderAppID, ResponseType: respType, ResponseBody: body}
			}

			_, err := handler(ctx, msg)
			return err
		}

		return errorsmod.Wrapf(types.ErrNotFound, "app %d has no method with selector %x", k.SelfAppID(), call.Selector())
	}, nil
}
