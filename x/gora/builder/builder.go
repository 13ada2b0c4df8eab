package builder

import (
	"fmt"
	"math"
	"math/bits"
	"sort"

	"github.com/spf13/cast"

	"github.com/GPTx-global/gora/x/gora/types"
)

// Classic source parameter keys.
const (
	KeyID     = "id"
	KeyArgs   = "args"
	KeyMaxAge = "max_age"
)

// URL source parameter keys.
const (
	KeyURL           = "url"
	KeyAuthURL       = "auth_url"
	KeyValueExpr     = "value_expr"
	KeyTimestampExpr = "timestamp_expr"
	KeyValueType     = "value_type"
	KeyRoundTo       = "round_to"
	KeyGatewayURL    = "gateway_url"
)

// Off-chain field names reported in errors.
const (
	KeyCompiledModule = "compiled_module"
	KeyModuleParams   = "module_params"
)

var (
	RequiredKeysClassic = []string{KeyID}
	OptionalKeysClassic = []string{KeyArgs, KeyMaxAge}

	RequiredKeysURL = []string{KeyURL, KeyValueExpr}
	OptionalKeysURL = []string{KeyAuthURL, KeyTimestampExpr, KeyValueType, KeyMaxAge, KeyRoundTo, KeyGatewayURL}
)

// FieldError reports a bad parameter of one source.
type FieldError struct {
	Index int
	Key   string
	err   error
}

func (e *FieldError) Error() string { return e.err.Error() }

func (e *FieldError) Unwrap() error { return e.err }

func missingField(index int, key string) error {
	return &FieldError{Index: index, Key: key, err: types.ErrMissingField.Wrapf("source %d: %s", index, key)}
}

func invalidField(index int, key string, cause error) error {
	return &FieldError{Index: index, Key: key, err: types.ErrInvalidField.Wrapf("source %d: %s: %s", index, key, cause)}
}

// NewClassicRequest assembles a classic request spec from per-source maps.
func NewClassicRequest(sources []map[string]any, aggregation uint32, userData []byte) (types.RequestSpec, error) {
	if len(sources) == 0 {
		return types.RequestSpec{}, types.ErrMissingField.Wrap("source_specs")
	}

	specs := make([]types.Source, 0, len(sources))
	for i, params := range sources {
		if err := checkKeys(i, params, RequiredKeysClassic, OptionalKeysClassic); err != nil {
			return types.RequestSpec{}, err
		}

		id, err := uint32Field(i, params, KeyID, 0)
		if err != nil {
			return types.RequestSpec{}, err
		}
		args, err := bytesListField(i, params, KeyArgs)
		if err != nil {
			return types.RequestSpec{}, err
		}
		maxAge, err := uint32Field(i, params, KeyMaxAge, 0)
		if err != nil {
			return types.RequestSpec{}, err
		}

		specs = append(specs, types.SourceSpec{SourceID: id, Args: args, MaxAge: maxAge})
	}

	return types.NewRequestSpec(specs, aggregation, userData)
}

// BuildClassicRequest returns the encoded classic request spec.
func BuildClassicRequest(sources []map[string]any, aggregation uint32, userData []byte) ([]byte, error) {
	spec, err := NewClassicRequest(sources, aggregation, userData)
	if err != nil {
		return nil, err
	}
	return spec.Marshal()
}

// NewURLRequest assembles a general URL request spec from per-source maps.
func NewURLRequest(sources []map[string]any, aggregation uint32, userData []byte) (types.RequestSpec, error) {
	if len(sources) == 0 {
		return types.RequestSpec{}, types.ErrMissingField.Wrap("source_specs")
	}

	specs := make([]types.Source, 0, len(sources))
	for i, params := range sources {
		if err := checkKeys(i, params, RequiredKeysURL, OptionalKeysURL); err != nil {
			return types.RequestSpec{}, err
		}

		var (
			spec types.SourceSpecURL
			err  error
		)
		if spec.URL, err = bytesField(i, params, KeyURL); err != nil {
			return types.RequestSpec{}, err
		}
		if spec.ValueExpr, err = bytesField(i, params, KeyValueExpr); err != nil {
			return types.RequestSpec{}, err
		}
		if spec.AuthURL, err = bytesField(i, params, KeyAuthURL); err != nil {
			return types.RequestSpec{}, err
		}
		if spec.TimestampExpr, err = bytesField(i, params, KeyTimestampExpr); err != nil {
			return types.RequestSpec{}, err
		}
		if spec.GatewayURL, err = bytesField(i, params, KeyGatewayURL); err != nil {
			return types.RequestSpec{}, err
		}
		if spec.MaxAge, err = uint32Field(i, params, KeyMaxAge, 0); err != nil {
			return types.RequestSpec{}, err
		}
		if spec.ValueType, err = uint8Field(i, params, KeyValueType, types.ValueTypeString); err != nil {
			return types.RequestSpec{}, err
		}
		if spec.RoundTo, err = uint8Field(i, params, KeyRoundTo, 0); err != nil {
			return types.RequestSpec{}, err
		}

		// required keys present but empty are as good as missing
		if len(spec.URL) == 0 {
			return types.RequestSpec{}, missingField(i, KeyURL)
		}
		if len(spec.ValueExpr) == 0 {
			return types.RequestSpec{}, missingField(i, KeyValueExpr)
		}

		specs = append(specs, spec)
	}

	return types.NewRequestSpec(specs, aggregation, userData)
}

// BuildURLRequest returns the encoded general URL request spec.
func BuildURLRequest(sources []map[string]any, aggregation uint32, userData []byte) ([]byte, error) {
	spec, err := NewURLRequest(sources, aggregation, userData)
	if err != nil {
		return nil, err
	}
	return spec.Marshal()
}

// OffChainOption adjusts the single source of an off-chain request.
type OffChainOption func(*types.SourceSpecOffChain)

func WithAPIVersion(v uint32) OffChainOption {
	return func(s *types.SourceSpecOffChain) { s.APIVersion = v }
}

func WithSpecType(t uint8) OffChainOption {
	return func(s *types.SourceSpecOffChain) { s.SpecType = t }
}

// NewOffChainRequest wraps a compiled module and its parameters into a
// request with exactly one source. The module is embedded as given.
func NewOffChainRequest(module []byte, params [][]byte, aggregation uint32, userData []byte, opts ...OffChainOption) (types.RequestSpec, error) {
	if len(module) == 0 {
		return types.RequestSpec{}, missingField(0, KeyCompiledModule)
	}
	if len(module) > types.MaxFieldLength {
		return types.RequestSpec{}, invalidField(0, KeyCompiledModule, fmt.Errorf("%d bytes exceeds %d", len(module), types.MaxFieldLength))
	}

	src := types.SourceSpecOffChain{
		APIVersion:     types.DefaultOffChainAPIVersion,
		SpecType:       types.OffChainSpecInline,
		CompiledModule: module,
		ModuleParams:   params,
	}
	for _, opt := range opts {
		opt(&src)
	}

	return types.NewRequestSpec([]types.Source{src}, aggregation, userData)
}

// BuildOffChainRequest returns the encoded off-chain request spec.
func BuildOffChainRequest(module []byte, params [][]byte, aggregation uint32, userData []byte, opts ...OffChainOption) ([]byte, error) {
	spec, err := NewOffChainRequest(module, params, aggregation, userData, opts...)
	if err != nil {
		return nil, err
	}
	return spec.Marshal()
}

// StringParams converts module parameters given as strings.
func StringParams(params ...string) [][]byte {
	out := make([][]byte, 0, len(params))
	for _, p := range params {
		out = append(out, []byte(p))
	}
	return out
}

func checkKeys(index int, params map[string]any, required, optional []string) error {
	for _, key := range required {
		if v, ok := params[key]; !ok || v == nil {
			return missingField(index, key)
		}
	}

	known := make(map[string]struct{}, len(required)+len(optional))
	for _, key := range required {
		known[key] = struct{}{}
	}
	for _, key := range optional {
		known[key] = struct{}{}
	}

	unknown := make([]string, 0)
	for key := range params {
		if _, ok := known[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return invalidField(index, unknown[0], fmt.Errorf("unrecognized key"))
	}

	return nil
}

func uint32Field(index int, params map[string]any, key string, def uint32) (uint32, error) {
	n, err := uintField(index, params, key, uint64(def), math.MaxUint32)
	return uint32(n), err
}

func uint8Field(index int, params map[string]any, key string, def uint8) (uint8, error) {
	n, err := uintField(index, params, key, uint64(def), math.MaxUint8)
	return uint8(n), err
}

// uintField reads an unsigned integer no larger than max. JSON numbers arrive
// as floats, so a fractional value is rejected rather than truncated.
func uintField(index int, params map[string]any, key string, def, max uint64) (uint64, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}

	var f float64
	switch v := v.(type) {
	case float32:
		f = float64(v)
	case float64:
		f = v
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, invalidField(index, key, fmt.Errorf("%v is not an integer", v))
	}

	n, err := cast.ToUint64E(v)
	if err != nil {
		return 0, invalidField(index, key, err)
	}
	if n > max {
		return 0, invalidField(index, key, fmt.Errorf("%d overflows %d bits", n, bits.Len64(max)))
	}
	return n, nil
}

func toBytes(v any) ([]byte, error) {
	switch v := v.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	}
}

func bytesField(index int, params map[string]any, key string) ([]byte, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	b, err := toBytes(v)
	if err != nil {
		return nil, invalidField(index, key, err)
	}
	if len(b) == 0 {
		return nil, nil
	}
	return b, nil
}

func bytesListField(index int, params map[string]any, key string) ([][]byte, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}

	var list [][]byte
	switch v := v.(type) {
	case [][]byte:
		list = v
	case []string:
		list = StringParams(v...)
	case []any:
		list = make([][]byte, 0, len(v))
		for j, item := range v {
			b, err := toBytes(item)
			if err != nil {
				return nil, invalidField(index, fmt.Sprintf("%s[%d]", key, j), err)
			}
			list = append(list, b)
		}
	default:
		return nil, invalidField(index, key, fmt.Errorf("expected a list, got %T", v))
	}

	if len(list) == 0 {
		return nil, nil
	}
	return list, nil
}
