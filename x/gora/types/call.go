package types

import (
	"bytes"
	"sync"

	"github.com/algorand/go-algorand-sdk/v2/abi"
)

// Method signatures of the dispatcher entry point and destination callbacks.
const (
	RequestMethodSignature = "request(byte[],byte[],uint64,byte[],uint64[],uint64[],address[],(byte[],uint64)[])void"

	// ResponseMethodArgs is appended to a destination method name.
	ResponseMethodArgs = "(uint32,byte[])void"
	// DecodedResponseMethodArgs is the pre-decoded callback form.
	DecodedResponseMethodArgs = "(byte[32],address,byte[],byte[],uint32,uint64)void"
)

var (
	requestSelectorOnce sync.Once
	requestSelector     []byte
	requestSelectorErr  error
)

// MethodSelector returns the 4-byte selector of an ARC-4 method signature.
func MethodSelector(signature string) ([]byte, error) {
	method, err := abi.MethodFromSignature(signature)
	if err != nil {
		return nil, ErrInvalidField.Wrapf("method signature %q: %s", signature, err)
	}
	return method.GetSelector(), nil
}

// RequestMethodSelector returns the selector of the dispatcher's request method.
func RequestMethodSelector() ([]byte, error) {
	requestSelectorOnce.Do(func() {
		requestSelector, requestSelectorErr = MethodSelector(RequestMethodSignature)
	})
	return requestSelector, requestSelectorErr
}

// CallbackSelector returns the selector of a destination method in its
// envelope form, or in its pre-decoded form when decoded is set.
func CallbackSelector(method []byte, decoded bool) ([]byte, error) {
	if decoded {
		return MethodSelector(string(method) + DecodedResponseMethodArgs)
	}
	return MethodSelector(string(method) + ResponseMethodArgs)
}

// RequestCall holds the positional arguments of the dispatcher's request method.
type RequestCall struct {
	RequestSpec []byte
	Destination []byte
	RequestType RequestType
	RequestKey  []byte
	AppRefs     []uint64
	AssetRefs   []uint64
	AccountRefs []Address
	BoxRefs     []BoxRef
}

// Args encodes the call as app arguments, selector first.
func (c RequestCall) Args() ([][]byte, error) {
	selector, err := RequestMethodSelector()
	if err != nil {
		return nil, err
	}

	fields := make([]*encoder, 8)
	for i := range fields {
		fields[i] = new(encoder)
	}

	fields[0].bytes(c.RequestSpec, "request_spec")
	fields[1].bytes(c.Destination, "destination")
	fields[2].uint64(uint64(c.RequestType))
	fields[3].bytes(c.RequestKey, "request_key")
	fields[4].uint64List(c.AppRefs, "app_refs")
	fields[5].uint64List(c.AssetRefs, "asset_refs")
	fields[6].length(len(c.AccountRefs), "account_refs")
	for _, acc := range c.AccountRefs {
		fields[6].fixed(acc[:])
	}
	fields[7].length(len(c.BoxRefs), "box_refs")
	for _, box := range c.BoxRefs {
		box.marshalTo(fields[7])
	}

	args := make([][]byte, 0, len(fields)+1)
	args = append(args, selector)
	for _, f := range fields {
		bz, err := f.result()
		if err != nil {
			return nil, err
		}
		args = append(args, bz)
	}

	return args, nil
}

// UnmarshalRequestCall decodes app arguments produced by RequestCall.Args.
func UnmarshalRequestCall(args [][]byte) (RequestCall, error) {
	selector, err := RequestMethodSelector()
	if err != nil {
		return RequestCall{}, err
	}
	if len(args) != 9 {
		return RequestCall{}, ErrMalformedEnvelope.Wrapf("request call: expected 9 args, got %d", len(args))
	}
	if !bytes.Equal(args[0], selector) {
		return RequestCall{}, ErrMalformedEnvelope.Wrapf("request call: selector %x", args[0])
	}

	var c RequestCall

	d := newDecoder(args[1])
	c.RequestSpec = d.bytes("request_spec")
	if err := d.finish("request_spec"); err != nil {
		return RequestCall{}, err
	}

	d = newDecoder(args[2])
	c.Destination = d.bytes("destination")
	if err := d.finish("destination"); err != nil {
		return RequestCall{}, err
	}

	d = newDecoder(args[3])
	c.RequestType = RequestType(d.uint64("request_type"))
	if err := d.finish("request_type"); err != nil {
		return RequestCall{}, err
	}

	d = newDecoder(args[4])
	c.RequestKey = d.bytes("request_key")
	if err := d.finish("request_key"); err != nil {
		return RequestCall{}, err
	}

	d = newDecoder(args[5])
	c.AppRefs = d.uint64List("app_refs")
	if err := d.finish("app_refs"); err != nil {
		return RequestCall{}, err
	}

	d = newDecoder(args[6])
	c.AssetRefs = d.uint64List("asset_refs")
	if err := d.finish("asset_refs"); err != nil {
		return RequestCall{}, err
	}

	d = newDecoder(args[7])
	n := d.count("account_refs", AddressLength)
	for i := 0; i < n && d.err == nil; i++ {
		var acc Address
		d.fixed(acc[:], "account_refs")
		c.AccountRefs = append(c.AccountRefs, acc)
	}
	if err := d.finish("account_refs"); err != nil {
		return RequestCall{}, err
	}

	d = newDecoder(args[8])
	n = d.count("box_refs", minBoxRefSize)
	for i := 0; i < n && d.err == nil; i++ {
		var box BoxRef
		box.unmarshalFrom(d)
		c.BoxRefs = append(c.BoxRefs, box)
	}
	if err := d.finish("box_refs"); err != nil {
		return RequestCall{}, err
	}

	return c, nil
}

// CallbackArgs encodes the envelope form of a destination callback.
func CallbackArgs(method []byte, respType uint32, body []byte) ([][]byte, error) {
	selector, err := CallbackSelector(method, false)
	if err != nil {
		return nil, err
	}
	encodedBody, err := EncodeBytes(body)
	if err != nil {
		return nil, err
	}
	return [][]byte{selector, EncodeUint32(respType), encodedBody}, nil
}

// UnmarshalCallbackArgs decodes the envelope form of a destination callback.
func UnmarshalCallbackArgs(args [][]byte) (uint32, []byte, error) {
	if len(args) != 3 {
		return 0, nil, ErrMalformedEnvelope.Wrapf("callback: expected 3 args, got %d", len(args))
	}
	respType, err := DecodeUint32(args[1])
	if err != nil {
		return 0, nil, err
	}
	body, err := DecodeBytes(args[2])
	if err != nil {
		return 0, nil, err
	}
	return respType, body, nil
}

// DecodedCallbackArgs encodes the six-argument callback form.
func DecodedCallbackArgs(method []byte, body ResponseBody) ([][]byte, error) {
	selector, err := CallbackSelector(method, true)
	if err != nil {
		return nil, err
	}
	oracleValue, err := EncodeBytes(body.OracleValue)
	if err != nil {
		return nil, err
	}
	userData, err := EncodeBytes(body.UserData)
	if err != nil {
		return nil, err
	}
	return [][]byte{
		selector,
		body.RequestID[:],
		body.RequesterAddr[:],
		oracleValue,
		userData,
		EncodeUint32(body.ErrorCode),
		EncodeUint64(body.SourceErrors),
	}, nil
}

// UnmarshalDecodedCallbackArgs decodes the six-argument callback form.
func UnmarshalDecodedCallbackArgs(args [][]byte) (ResponseBody, error) {
	var body ResponseBody
	if len(args) != 7 {
		return body, ErrMalformedEnvelope.Wrapf("decoded callback: expected 7 args, got %d", len(args))
	}
	if len(args[1]) != RequestIDLength {
		return body, ErrMalformedEnvelope.Wrapf("request_id: %d bytes", len(args[1]))
	}
	if len(args[2]) != AddressLength {
		return body, ErrMalformedEnvelope.Wrapf("requester_addr: %d bytes", len(args[2]))
	}
	copy(body.RequestID[:], args[1])
	copy(body.RequesterAddr[:], args[2])

	var err error
	if body.OracleValue, err = DecodeBytes(args[3]); err != nil {
		return body, err
	}
	if body.UserData, err = DecodeBytes(args[4]); err != nil {
		return body, err
	}
	if body.ErrorCode, err = DecodeUint32(args[5]); err != nil {
		return body, err
	}
	if body.SourceErrors, err = DecodeUint64(args[6]); err != nil {
		return body, err
	}
	return body, nil
}
