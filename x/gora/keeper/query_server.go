package keeper

import (
	"context"

	"github.com/GPTx-global/gora/x/gora/types"
)

// LastOracleValue queries the value of the latest stored response
func (k *Keeper) LastOracleValue(_ context.Context) (*types.QueryLastOracleValueResponse, error) {
	value, found, err := k.GetLastOracleValue()
	if err != nil {
		return nil, err
	}
	return &types.QueryLastOracleValueResponse{Value: value, Found: found}, nil
}

// Response queries a recorded response by request id
func (k *Keeper) Response(_ context.Context, req *types.QueryResponseRequest) (*types.QueryResponseResponse, error) {
	resp, err := k.GetResponse(req.RequestID)
	if err != nil {
		return nil, err
	}
	return &types.QueryResponseResponse{Response: *resp}, nil
}

// PendingRequests lists requests still waiting for a response
func (k *Keeper) PendingRequests(_ context.Context) (*types.QueryPendingRequestsResponse, error) {
	var entries []types.PendingRequestEntry
	err := k.IteratePendingRequests(func(boxKey [types.BoxKeyLength]byte, pending types.PendingRequest) bool {
		entries = append(entries, types.PendingRequestEntry{BoxKey: boxKey, Request: pending})
		return false
	})
	if err != nil {
		return nil, err
	}
	return &types.QueryPendingRequestsResponse{Pending: entries}, nil
}
