package types

import (
	"fmt"
	"math/bits"
)

// RequestIDLength is the pinned width of ResponseBody.RequestID.
const RequestIDLength = 32

// ResponseBody is delivered by the dispatcher to the destination callback.
type ResponseBody struct {
	RequestID     [RequestIDLength]byte
	RequesterAddr Address
	OracleValue   []byte
	UserData      []byte
	// ErrorCode is 0 on success. Nonzero signals that the whole request failed.
	ErrorCode uint32
	// SourceErrors has bit i set when source i failed.
	SourceErrors uint64
}

func (r ResponseBody) Marshal() ([]byte, error) {
	e := new(encoder)
	e.fixed(r.RequestID[:])
	e.fixed(r.RequesterAddr[:])
	e.bytes(r.OracleValue, "oracle_value")
	e.bytes(r.UserData, "user_data")
	e.uint32(r.ErrorCode)
	e.uint64(r.SourceErrors)
	return e.result()
}

func (r *ResponseBody) Unmarshal(bz []byte) error {
	d := newDecoder(bz)
	d.fixed(r.RequestID[:], "request_id")
	d.fixed(r.RequesterAddr[:], "requester_addr")
	r.OracleValue = d.bytes("oracle_value")
	r.UserData = d.bytes("user_data")
	r.ErrorCode = d.uint32("error_code")
	r.SourceErrors = d.uint64("source_errors")
	return d.finish("response body")
}

// UnmarshalResponseBody decodes bz and returns the body.
func UnmarshalResponseBody(bz []byte) (*ResponseBody, error) {
	body := new(ResponseBody)
	if err := body.Unmarshal(bz); err != nil {
		return nil, err
	}
	return body, nil
}

// Err returns ErrRequestError when the dispatcher reported a failure.
func (r ResponseBody) Err() error {
	if r.ErrorCode == 0 && r.SourceErrors == 0 {
		return nil
	}
	return ErrRequestError.Wrapf("error_code %d, failed sources %v", r.ErrorCode, r.FailedSources())
}

// Failed reports whether the whole request failed.
func (r ResponseBody) Failed() bool {
	return r.ErrorCode != 0
}

// FailedSources lists the source indexes flagged in SourceErrors.
func (r ResponseBody) FailedSources() []int {
	out := make([]int, 0, bits.OnesCount64(r.SourceErrors))
	for mask := r.SourceErrors; mask != 0; mask &= mask - 1 {
		out = append(out, bits.TrailingZeros64(mask))
	}
	return out
}

func (r ResponseBody) String() string {
	return fmt.Sprintf("request_id=%x requester=%s value=%q error_code=%d source_errors=%#x",
		r.RequestID, r.RequesterAddr, r.OracleValue, r.ErrorCode, r.SourceErrors)
}
