package types

// PendingRequest is the client-side record of a submitted request, keyed by
// its box key until a response arrives.
type PendingRequest struct {
	RequestKey  []byte
	RequestType RequestType
	Destination DestinationSpec
	Sequence    uint64
}

func (p PendingRequest) Marshal() ([]byte, error) {
	e := new(encoder)
	e.bytes(p.RequestKey, "request_key")
	e.uint64(uint64(p.RequestType))
	e.uint64(p.Destination.AppID)
	e.bytes(p.Destination.Method, "method")
	e.uint64(p.Sequence)
	return e.result()
}

func (p *PendingRequest) Unmarshal(bz []byte) error {
	d := newDecoder(bz)
	p.RequestKey = d.bytes("request_key")
	p.RequestType = RequestType(d.uint64("request_type"))
	p.Destination.AppID = d.uint64("app_id")
	p.Destination.Method = d.bytes("method")
	p.Sequence = d.uint64("sequence")
	return d.finish("pending request")
}
