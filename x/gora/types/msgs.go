package types

// Msg is a routable message handled by NewHandler.
type Msg interface {
	Route() string
	Type() string
	ValidateBasic() error
}

var (
	_ Msg = &MsgRequest{}
	_ Msg = &MsgCallback{}
	_ Msg = &MsgCallbackDecoded{}
)

// MsgRequest submits an encoded request spec to the dispatcher.
type MsgRequest struct {
	RequestType RequestType
	RequestSpec []byte
	// DestAppID of zero means the submitting app itself.
	DestAppID  uint64
	DestMethod []byte
	RequestKey []byte

	// Reference lists are passed through to the runtime untouched.
	AppRefs     []uint64
	AssetRefs   []uint64
	AccountRefs []Address
	BoxRefs     []BoxRef
}

// MsgRequestResponse carries the correlation data of a submitted request.
type MsgRequestResponse struct {
	BoxKey     [BoxKeyLength]byte
	RequestKey []byte
}

// NewMsgRequest creates a new MsgRequest instance
func NewMsgRequest(requestType RequestType, requestSpec []byte, destMethod string, requestKey []byte) *MsgRequest {
	return &MsgRequest{
		RequestType: requestType,
		RequestSpec: requestSpec,
		DestMethod:  []byte(destMethod),
		RequestKey:  requestKey,
	}
}

// Route implements the Msg interface
func (msg MsgRequest) Route() string { return RouterKey }

// Type implements the Msg interface
func (msg MsgRequest) Type() string { return "request" }

// ValidateBasic implements the Msg interface
func (msg MsgRequest) ValidateBasic() error {
	if err := msg.RequestType.Validate(); err != nil {
		return err
	}
	if len(msg.RequestSpec) == 0 {
		return ErrMissingField.Wrap("request_spec")
	}
	if len(msg.DestMethod) == 0 {
		return ErrMissingField.Wrap("dest_method")
	}
	if len(msg.RequestKey) == 0 {
		return ErrMissingField.Wrap("request_key")
	}
	if len(msg.RequestKey) > MaxFieldLength {
		return ErrInvalidField.Wrapf("request_key: %d bytes", len(msg.RequestKey))
	}
	return nil
}

// MsgCallback is a destination callback in envelope form.
type MsgCallback struct {
	CallerAppID  uint64
	ResponseType uint32
	ResponseBody []byte
}

// Route implements the Msg interface
func (msg MsgCallback) Route() string { return RouterKey }

// Type implements the Msg interface
func (msg MsgCallback) Type() string { return "callback" }

// ValidateBasic implements the Msg interface
func (msg MsgCallback) ValidateBasic() error {
	if msg.CallerAppID == 0 {
		return ErrUnauthorizedCaller.Wrap("callback must come from an app")
	}
	return nil
}

// MsgCallbackDecoded is a destination callback whose body was decoded by the dispatcher.
type MsgCallbackDecoded struct {
	CallerAppID uint64
	Body        ResponseBody
}

// Route implements the Msg interface
func (msg MsgCallbackDecoded) Route() string { return RouterKey }

// Type implements the Msg interface
func (msg MsgCallbackDecoded) Type() string { return "callback_decoded" }

// ValidateBasic implements the Msg interface
func (msg MsgCallbackDecoded) ValidateBasic() error {
	if msg.CallerAppID == 0 {
		return ErrUnauthorizedCaller.Wrap("callback must come from an app")
	}
	return nil
}

// MsgCallbackResponse returns the accepted response.
type MsgCallbackResponse struct {
	Response *ResponseBody
	// Stored is false when the response was recorded without replacing the last value.
	Stored bool
}
