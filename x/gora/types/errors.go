package types

import (
	errorsmod "cosmossdk.io/errors"
)

// errors
var (
	ErrMissingField         = errorsmod.Register(ModuleName, 2, "required field not provided")
	ErrMalformedEnvelope    = errorsmod.Register(ModuleName, 3, "malformed envelope")
	ErrDispatchFailed       = errorsmod.Register(ModuleName, 4, "dispatch call failed")
	ErrUnauthorizedCaller   = errorsmod.Register(ModuleName, 5, "caller is not the trusted dispatcher")
	ErrRequestError         = errorsmod.Register(ModuleName, 6, "oracle request failed")
	ErrAssertion            = errorsmod.Register(ModuleName, 7, "assertion failed")
	ErrMixedSources         = errorsmod.Register(ModuleName, 8, "source specs of different request types")
	ErrInvalidRequestType   = errorsmod.Register(ModuleName, 9, "invalid request type")
	ErrInvalidField         = errorsmod.Register(ModuleName, 10, "invalid field value")
	ErrInvalidParams        = errorsmod.Register(ModuleName, 11, "invalid params")
	ErrUnknownHashAlgorithm = errorsmod.Register(ModuleName, 12, "unknown hash algorithm")
	ErrInvalidModule        = errorsmod.Register(ModuleName, 13, "invalid off-chain module")
	ErrNotFound             = errorsmod.Register(ModuleName, 14, "not found")
)
