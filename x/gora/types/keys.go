package types

import (
	"encoding/binary"
	"fmt"
)

const (
	// ModuleName defines the module name
	ModuleName = "gora"

	// StoreKey defines the primary module store key
	StoreKey = ModuleName

	// RouterKey defines the module's message routing key
	RouterKey = ModuleName
)

// RequestType is the discriminant that selects the source spec layout of a request.
type RequestType uint64

const (
	RequestTypeClassic  RequestType = 1
	RequestTypeURL      RequestType = 2
	RequestTypeOffChain RequestType = 3
)

func (t RequestType) String() string {
	switch t {
	case RequestTypeClassic:
		return "classic"
	case RequestTypeURL:
		return "url"
	case RequestTypeOffChain:
		return "off_chain"
	default:
		return fmt.Sprintf("unknown(%d)", uint64(t))
	}
}

// Validate returns an error for tags no decoder understands.
func (t RequestType) Validate() error {
	switch t {
	case RequestTypeClassic, RequestTypeURL, RequestTypeOffChain:
		return nil
	default:
		return ErrInvalidRequestType.Wrapf("request type %d", uint64(t))
	}
}

// ParseRequestType accepts either the numeric tag or its name.
func ParseRequestType(s string) (RequestType, error) {
	switch s {
	case "1", "classic":
		return RequestTypeClassic, nil
	case "2", "url":
		return RequestTypeURL, nil
	case "3", "off_chain", "offchain":
		return RequestTypeOffChain, nil
	default:
		return 0, ErrInvalidRequestType.Wrapf("%q", s)
	}
}

// Aggregation modes understood by the dispatcher.
const (
	AggregationNone    uint32 = 0
	AggregationMinimum uint32 = 1
	AggregationMaximum uint32 = 2
	AggregationMedian  uint32 = 3
)

// Callback response types.
const (
	ResponseTypeResult uint32 = 1
)

// KV Store key prefix bytes
const (
	prefixParams = iota + 1
	prefixLastOracleValue
	prefixResponse
	prefixPendingRequest
	prefixRequestCount
)

// KV Store key prefixes
var (
	KeyParams          = []byte{prefixParams}
	KeyLastOracleValue = []byte{prefixLastOracleValue}
	KeyResponse        = []byte{prefixResponse}
	KeyPendingRequest  = []byte{prefixPendingRequest}
	KeyRequestCount    = []byte{prefixRequestCount}
)

func IDToBytes(id uint64) []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, id)
	return bz
}

// GetResponseKey returns the key for storing a delivered response
func GetResponseKey(requestID [RequestIDLength]byte) []byte {
	return append(append([]byte{}, KeyResponse...), requestID[:]...)
}

// GetPendingRequestKey returns the key for storing a submitted request by its box key
func GetPendingRequestKey(boxKey [BoxKeyLength]byte) []byte {
	return append(append([]byte{}, KeyPendingRequest...), boxKey[:]...)
}

// ParsePendingRequestKey returns the box key embedded in a pending request key
func ParsePendingRequestKey(key []byte) ([BoxKeyLength]byte, error) {
	var boxKey [BoxKeyLength]byte
	if len(key) != 1+BoxKeyLength {
		return boxKey, fmt.Errorf("invalid pending request key length: %d", len(key))
	}
	copy(boxKey[:], key[1:])
	return boxKey, nil
}
