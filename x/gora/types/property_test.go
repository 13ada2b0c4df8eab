package types_test

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/GPTx-global/gora/x/gora/types"
)

func genByteString() gopter.Gen {
	return gen.SliceOf(gen.UInt8())
}

func nonEmpty(b []byte) []byte {
	return append([]byte("x"), b...)
}

// TestClassicRoundTrip verifies decode(encode(x)) re-encodes to the same bytes.
func TestClassicRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("classic request specs survive a round trip", prop.ForAll(
		func(id uint32, args [][]byte, maxAge uint32, aggregation uint32, userData []byte) bool {
			spec := types.RequestSpec{
				Type:        types.RequestTypeClassic,
				SourceSpecs: []types.Source{types.SourceSpec{SourceID: id, Args: args, MaxAge: maxAge}},
				Aggregation: aggregation,
				UserData:    userData,
			}

			bz, err := spec.Marshal()
			if err != nil {
				return false
			}
			decoded, err := types.UnmarshalRequestSpec(types.RequestTypeClassic, bz)
			if err != nil {
				return false
			}
			again, err := decoded.Marshal()
			if err != nil {
				return false
			}

			src := decoded.ClassicSources()
			return bytes.Equal(bz, again) &&
				len(src) == 1 &&
				src[0].SourceID == id &&
				src[0].MaxAge == maxAge &&
				len(src[0].Args) == len(args) &&
				decoded.Aggregation == aggregation
		},
		gen.UInt32(),
		gen.SliceOf(genByteString()),
		gen.UInt32(),
		gen.UInt32(),
		genByteString(),
	))

	properties.TestingRun(t)
}

// TestURLRoundTrip verifies URL specs re-encode identically and keep their fields.
func TestURLRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("url request specs survive a round trip", prop.ForAll(
		func(url, expr, auth []byte, maxAge uint32, valueType, roundTo uint8) bool {
			src := types.SourceSpecURL{
				URL:       nonEmpty(url),
				ValueExpr: nonEmpty(expr),
				AuthURL:   auth,
				MaxAge:    maxAge,
				ValueType: valueType,
				RoundTo:   roundTo,
			}
			spec := types.RequestSpec{Type: types.RequestTypeURL, SourceSpecs: []types.Source{src}}

			bz, err := spec.Marshal()
			if err != nil {
				return false
			}
			decoded, err := types.UnmarshalRequestSpec(types.RequestTypeURL, bz)
			if err != nil {
				return false
			}
			again, err := decoded.Marshal()
			if err != nil {
				return false
			}

			got := decoded.URLSources()[0]
			return bytes.Equal(bz, again) &&
				bytes.Equal(got.URL, src.URL) &&
				bytes.Equal(got.ValueExpr, src.ValueExpr) &&
				bytes.Equal(got.AuthURL, src.AuthURL) &&
				got.MaxAge == maxAge &&
				got.ValueType == valueType &&
				got.RoundTo == roundTo
		},
		genByteString(),
		genByteString(),
		genByteString(),
		gen.UInt32(),
		gen.UInt8(),
		gen.UInt8(),
	))

	properties.TestingRun(t)
}

// TestOffChainRoundTrip verifies the module blob and params come back verbatim.
func TestOffChainRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("off-chain request specs survive a round trip", prop.ForAll(
		func(module []byte, params [][]byte, apiVersion uint32, specType uint8, reserved uint32, userData []byte) bool {
			src := types.SourceSpecOffChain{
				APIVersion:     apiVersion,
				SpecType:       specType,
				CompiledModule: nonEmpty(module),
				ModuleParams:   params,
				Reserved2:      reserved,
			}
			spec := types.RequestSpec{Type: types.RequestTypeOffChain, SourceSpecs: []types.Source{src}, UserData: userData}

			bz, err := spec.Marshal()
			if err != nil {
				return false
			}
			decoded, err := types.UnmarshalRequestSpec(types.RequestTypeOffChain, bz)
			if err != nil {
				return false
			}
			again, err := decoded.Marshal()
			if err != nil {
				return false
			}

			got, ok := decoded.OffChainSource()
			if !ok || len(decoded.SourceSpecs) != 1 || len(got.ModuleParams) != len(params) {
				return false
			}
			for i := range params {
				if !bytes.Equal(got.ModuleParams[i], params[i]) {
					return false
				}
			}
			return bytes.Equal(bz, again) &&
				bytes.Equal(got.CompiledModule, src.CompiledModule) &&
				got.APIVersion == apiVersion &&
				got.SpecType == specType &&
				got.Reserved2 == reserved &&
				bytes.Equal(decoded.UserData, userData)
		},
		genByteString(),
		gen.SliceOf(genByteString()),
		gen.UInt32(),
		gen.UInt8(),
		gen.UInt32(),
		genByteString(),
	))

	properties.TestingRun(t)
}

// TestResponseBodyRoundTrip verifies response bodies decode to the encoded value.
func TestResponseBodyRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("response bodies survive a round trip", prop.ForAll(
		func(value, userData []byte, errorCode uint32, sourceErrors uint64, seed uint8) bool {
			body := types.ResponseBody{
				OracleValue:  value,
				UserData:     userData,
				ErrorCode:    errorCode,
				SourceErrors: sourceErrors,
			}
			body.RequestID[0] = seed
			body.RequesterAddr[31] = seed

			bz, err := body.Marshal()
			if err != nil {
				return false
			}
			decoded, err := types.UnmarshalResponseBody(bz)
			if err != nil {
				return false
			}
			again, err := decoded.Marshal()
			if err != nil {
				return false
			}

			return bytes.Equal(bz, again) &&
				bytes.Equal(decoded.OracleValue, value) &&
				bytes.Equal(decoded.UserData, userData) &&
				decoded.RequestID == body.RequestID &&
				decoded.RequesterAddr == body.RequesterAddr &&
				decoded.ErrorCode == errorCode &&
				decoded.SourceErrors == sourceErrors
		},
		genByteString(),
		genByteString(),
		gen.UInt32(),
		gen.UInt64(),
		gen.UInt8(),
	))

	properties.TestingRun(t)
}

// TestBoxKeyPurity verifies the deriver is a pure function that separates inputs.
func TestBoxKeyPurity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("same inputs give the same key, different keys give different boxes", prop.ForAll(
		func(seed uint8, keyA, keyB []byte) bool {
			var requester types.Address
			requester[0] = seed

			a1, err := types.DeriveBoxKey(types.HashSHA512_256, requester, keyA)
			if err != nil {
				return false
			}
			a2, err := types.DeriveBoxKey(types.HashSHA512_256, requester, keyA)
			if err != nil {
				return false
			}
			b, err := types.DeriveBoxKey(types.HashSHA512_256, requester, keyB)
			if err != nil {
				return false
			}

			if a1 != a2 {
				return false
			}
			return bytes.Equal(keyA, keyB) == (a1 == b)
		},
		gen.UInt8(),
		genByteString(),
		genByteString(),
	))

	properties.TestingRun(t)
}
