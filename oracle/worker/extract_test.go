package worker_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GPTx-global/gora/oracle/worker"
	"github.com/GPTx-global/gora/x/gora/types"
)

func TestExtract(t *testing.T) {
	jsonBody := []byte(`{"data":[{"price":"42000.51","ts":1700000000}],"ok":true,"name":"btc"}`)
	htmlBody := []byte(`<p>BNB is up 3.27% in the last 24 hours</p>`)

	testCases := []struct {
		name   string
		body   []byte
		expr   string
		expOut string
		expErr bool
	}{
		{"jsonpath nested index", jsonBody, "jsonpath:$.data[0].price", "42000.51", false},
		{"jsonpath bracket key", jsonBody, "jsonpath:$['data'][0]['ts']", "1700000000", false},
		{"jsonpath without root", jsonBody, "jsonpath:name", "btc", false},
		{"jsonpath bool", jsonBody, "jsonpath:$.ok", "true", false},
		{"jsonpath missing", jsonBody, "jsonpath:$.data[1].price", "", true},
		{"jsonpath empty", jsonBody, "jsonpath:$", "", true},
		{"jsonpath on html", htmlBody, "jsonpath:$.price", "", true},
		{"regex capture group", htmlBody, `regex:>BNB is (?:up|down) ([.0-9]+)% in the last 24 hours`, "3.27", false},
		{"regex whole match", htmlBody, `regex:[0-9]+\.[0-9]+`, "3.27", false},
		{"regex no match", htmlBody, `regex:Solana is up ([.0-9]+)%`, "", true},
		{"regex invalid", htmlBody, `regex:(`, "", true},
		{"unknown prefix", jsonBody, "xpath://price", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := worker.Extract(tc.body, tc.expr)
			if tc.expErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expOut, out)
		})
	}
}

func TestExtractInvalidExpression(t *testing.T) {
	_, err := worker.Extract([]byte(`{}`), "css:.price")
	require.ErrorIs(t, err, types.ErrInvalidField)
}

func TestFormatValue(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		valueType uint8
		roundTo   uint8
		expOut    string
		expErr    bool
	}{
		{"string untouched", " hello ", types.ValueTypeString, 3, "hello", false},
		{"number full precision", "42000.5000", types.ValueTypeNumber, 0, "42000.5", false},
		{"integer", "17", types.ValueTypeNumber, 0, "17", false},
		{"round up", "1.23556", types.ValueTypeNumber, 2, "1.24", false},
		{"round down", "1.23456", types.ValueTypeNumber, 3, "1.235", false},
		{"pad decimals", "3", types.ValueTypeNumber, 2, "3.00", false},
		{"small value", "0.004", types.ValueTypeNumber, 2, "0.00", false},
		{"negative", "-2.71828", types.ValueTypeNumber, 2, "-2.72", false},
		{"plus sign", "+5.5", types.ValueTypeNumber, 1, "5.5", false},
		{"not a number", "abc", types.ValueTypeNumber, 0, "", true},
		{"round too far", "1", types.ValueTypeNumber, 19, "", true},
		{"boolean true", "true", types.ValueTypeBoolean, 0, "true", false},
		{"boolean from digit", "0", types.ValueTypeBoolean, 0, "false", false},
		{"not a boolean", "maybe", types.ValueTypeBoolean, 0, "", true},
		{"unknown type", "1", 9, 0, "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := worker.FormatValue(tc.raw, tc.valueType, tc.roundTo)
			if tc.expErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expOut, out)
		})
	}
}
