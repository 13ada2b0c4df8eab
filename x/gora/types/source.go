package types

// Source is one entry of RequestSpec.SourceSpecs. Each concrete type belongs
// to exactly one request type.
type Source interface {
	RequestType() RequestType
	ValidateBasic() error
	marshalTo(e *encoder)
}

var (
	_ Source = SourceSpec{}
	_ Source = SourceSpecURL{}
	_ Source = SourceSpecOffChain{}
)

// SourceSpec identifies a built-in keyed data source (classic requests).
type SourceSpec struct {
	SourceID uint32
	Args     [][]byte
	// MaxAge bounds answer staleness in seconds, 0 means unbounded.
	MaxAge uint32
}

func (SourceSpec) RequestType() RequestType { return RequestTypeClassic }

func (s SourceSpec) ValidateBasic() error { return nil }

func (s SourceSpec) marshalTo(e *encoder) {
	e.uint32(s.SourceID)
	e.bytesList(s.Args, "source_arg_list")
	e.uint32(s.MaxAge)
}

func (s *SourceSpec) unmarshalFrom(d *decoder) {
	s.SourceID = d.uint32("source_id")
	s.Args = d.bytesList("source_arg_list")
	s.MaxAge = d.uint32("max_age")
}

func (s SourceSpec) Marshal() ([]byte, error) {
	e := new(encoder)
	s.marshalTo(e)
	return e.result()
}

func (s *SourceSpec) Unmarshal(bz []byte) error {
	d := newDecoder(bz)
	s.unmarshalFrom(d)
	return d.finish("source spec")
}

// Value types of a URL source.
const (
	ValueTypeString  uint8 = 0
	ValueTypeNumber  uint8 = 1
	ValueTypeBoolean uint8 = 2
)

// SourceSpecURL describes one HTTP(S) fetch and the expression that extracts
// a typed value from the response.
type SourceSpecURL struct {
	URL           []byte
	AuthURL       []byte
	ValueExpr     []byte
	TimestampExpr []byte
	MaxAge        uint32
	ValueType     uint8
	RoundTo       uint8
	GatewayURL    []byte
	Reserved0     []byte
	Reserved1     []byte
	Reserved2     uint32
	Reserved3     uint32
}

func (SourceSpecURL) RequestType() RequestType { return RequestTypeURL }

func (s SourceSpecURL) ValidateBasic() error {
	if len(s.URL) == 0 {
		return ErrMissingField.Wrap("url")
	}
	if len(s.ValueExpr) == 0 {
		return ErrMissingField.Wrap("value_expr")
	}
	return nil
}

func (s SourceSpecURL) marshalTo(e *encoder) {
	e.bytes(s.URL, "url")
	e.bytes(s.AuthURL, "auth_url")
	e.bytes(s.ValueExpr, "value_expr")
	e.bytes(s.TimestampExpr, "timestamp_expr")
	e.uint32(s.MaxAge)
	e.uint8(s.ValueType)
	e.uint8(s.RoundTo)
	e.bytes(s.GatewayURL, "gateway_url")
	e.bytes(s.Reserved0, "reserved_0")
	e.bytes(s.Reserved1, "reserved_1")
	e.uint32(s.Reserved2)
	e.uint32(s.Reserved3)
}

func (s *SourceSpecURL) unmarshalFrom(d *decoder) {
	s.URL = d.bytes("url")
	s.AuthURL = d.bytes("auth_url")
	s.ValueExpr = d.bytes("value_expr")
	s.TimestampExpr = d.bytes("timestamp_expr")
	s.MaxAge = d.uint32("max_age")
	s.ValueType = d.uint8("value_type")
	s.RoundTo = d.uint8("round_to")
	s.GatewayURL = d.bytes("gateway_url")
	s.Reserved0 = d.bytes("reserved_0")
	s.Reserved1 = d.bytes("reserved_1")
	s.Reserved2 = d.uint32("reserved_2")
	s.Reserved3 = d.uint32("reserved_3")
}

func (s SourceSpecURL) Marshal() ([]byte, error) {
	e := new(encoder)
	s.marshalTo(e)
	return e.result()
}

func (s *SourceSpecURL) Unmarshal(bz []byte) error {
	d := newDecoder(bz)
	s.unmarshalFrom(d)
	return d.finish("url source spec")
}

// Off-chain spec types.
const (
	OffChainSpecInline uint8 = 0
)

// DefaultOffChainAPIVersion is the off-chain execution API the dispatcher expects.
const DefaultOffChainAPIVersion uint32 = 1

// SourceSpecOffChain carries a compiled module executed by an off-chain responder.
type SourceSpecOffChain struct {
	APIVersion     uint32
	SpecType       uint8
	CompiledModule []byte
	ModuleParams   [][]byte
	Reserved0      []byte
	Reserved1      []byte
	Reserved2      uint32
	Reserved3      uint32
}

func (SourceSpecOffChain) RequestType() RequestType { return RequestTypeOffChain }

func (s SourceSpecOffChain) ValidateBasic() error {
	if len(s.CompiledModule) == 0 {
		return ErrMissingField.Wrap("compiled_module")
	}
	return nil
}

func (s SourceSpecOffChain) marshalTo(e *encoder) {
	e.uint32(s.APIVersion)
	e.uint8(s.SpecType)
	e.bytes(s.CompiledModule, "compiled_module")
	e.bytesList(s.ModuleParams, "module_params")
	e.bytes(s.Reserved0, "reserved_0")
	e.bytes(s.Reserved1, "reserved_1")
	e.uint32(s.Reserved2)
	e.uint32(s.Reserved3)
}

func (s *SourceSpecOffChain) unmarshalFrom(d *decoder) {
	s.APIVersion = d.uint32("api_version")
	s.SpecType = d.uint8("spec_type")
	s.CompiledModule = d.bytes("compiled_module")
	s.ModuleParams = d.bytesList("module_params")
	s.Reserved0 = d.bytes("reserved_0")
	s.Reserved1 = d.bytes("reserved_1")
	s.Reserved2 = d.uint32("reserved_2")
	s.Reserved3 = d.uint32("reserved_3")
}

func (s SourceSpecOffChain) Marshal() ([]byte, error) {
	e := new(encoder)
	s.marshalTo(e)
	return e.result()
}

func (s *SourceSpecOffChain) Unmarshal(bz []byte) error {
	d := newDecoder(bz)
	s.unmarshalFrom(d)
	return d.finish("off-chain source spec")
}
