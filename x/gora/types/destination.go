package types

// DestinationSpec names the contract and callback method that receive the result.
type DestinationSpec struct {
	AppID  uint64
	Method []byte
}

// NewDestinationSpec resolves a zero app id to self, the calling app.
func NewDestinationSpec(appID, self uint64, method []byte) DestinationSpec {
	if appID == 0 {
		appID = self
	}
	return DestinationSpec{AppID: appID, Method: method}
}

func (d DestinationSpec) ValidateBasic() error {
	if d.AppID == 0 {
		return ErrMissingField.Wrap("destination app_id")
	}
	if len(d.Method) == 0 {
		return ErrMissingField.Wrap("destination method")
	}
	return nil
}

func (d DestinationSpec) Marshal() ([]byte, error) {
	e := new(encoder)
	e.uint64(d.AppID)
	e.bytes(d.Method, "method")
	return e.result()
}

func (d *DestinationSpec) Unmarshal(bz []byte) error {
	dec := newDecoder(bz)
	d.AppID = dec.uint64("app_id")
	d.Method = dec.bytes("method")
	return dec.finish("destination spec")
}
