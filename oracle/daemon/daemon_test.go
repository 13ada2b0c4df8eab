package daemon_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/armon/go-metrics"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	tmdb "github.com/tendermint/tm-db"
	"github.com/tidwall/gjson"

	"github.com/GPTx-global/gora/oracle/config"
	"github.com/GPTx-global/gora/oracle/daemon"
	"github.com/GPTx-global/gora/oracle/wasm"
	"github.com/GPTx-global/gora/x/gora/builder"
	"github.com/GPTx-global/gora/x/gora/types"
)

type DaemonTestSuite struct {
	suite.Suite

	upstream *httptest.Server
	server   *httptest.Server
}

func TestDaemonTestSuite(t *testing.T) {
	suite.Run(t, new(DaemonTestSuite))
}

func (s *DaemonTestSuite) SetupSuite() {
	s.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"price":"1.005"}`)
	}))

	cfg := config.Default(s.T().TempDir())
	cfg.Dispatcher.MainAppID = 1
	cfg.Dispatcher.TokenAssetID = 7

	sink := metrics.NewInmemSink(time.Second, time.Minute)
	d := daemon.New(cfg, tmdb.NewMemDB(), sink)
	s.server = httptest.NewServer(d.Handler())
}

func (s *DaemonTestSuite) TearDownSuite() {
	s.server.Close()
	s.upstream.Close()
}

func (s *DaemonTestSuite) do(method, path, contentType string, body []byte) (int, gjson.Result) {
	req, err := http.NewRequest(method, s.server.URL+path, bytes.NewReader(body))
	s.Require().NoError(err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	res, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer res.Body.Close()

	bz, err := io.ReadAll(res.Body)
	s.Require().NoError(err)
	return res.StatusCode, gjson.ParseBytes(bz)
}

func (s *DaemonTestSuite) post(path, body string) (int, gjson.Result) {
	return s.do(http.MethodPost, path, "application/json", []byte(body))
}

func (s *DaemonTestSuite) TestHealth() {
	status, body := s.do(http.MethodGet, "/health", "", nil)
	s.Require().Equal(http.StatusOK, status)
	s.Require().Equal("ok", body.Get("status").String())
	s.Require().Len(body.Get("checks").Array(), 2)
}

func (s *DaemonTestSuite) TestParams() {
	status, body := s.do(http.MethodGet, "/v1/params", "", nil)
	s.Require().Equal(http.StatusOK, status)
	s.Require().Equal("WCS6TVPJRBSARHLN2326LRU5BYVJZUKI2VJ53CAWKYYHDE455ZGKANWMGM", body.Get("dispatcher_identity").String())
	s.Require().Equal(uint64(7), body.Get("token_asset_id").Uint())
}

func (s *DaemonTestSuite) TestBuild() {
	expected, err := builder.BuildClassicRequest([]map[string]any{
		{"id": 7, "args": []string{"##signKey", "btc", "usd"}},
	}, types.AggregationMedian, []byte("ud"))
	s.Require().NoError(err)

	testCases := []struct {
		name      string
		path      string
		body      string
		expStatus int
		expCode   uint64
	}{
		{"classic", "/v1/build/classic", `{"sources":[{"id":7,"args":["##signKey","btc","usd"]}],"aggregation":3,"user_data":"ud"}`, http.StatusOK, 0},
		{"url missing value_expr", "/v1/build/url", `{"sources":[{"url":"https://example.com"}]}`, http.StatusBadRequest, 2},
		{"unknown key", "/v1/build/url", `{"sources":[{"url":"u","value_expr":"jsonpath:$.a","colour":1}]}`, http.StatusBadRequest, 10},
		{"no sources", "/v1/build/classic", `{}`, http.StatusBadRequest, 2},
		{"unknown type", "/v1/build/xml", `{}`, http.StatusBadRequest, 9},
		{"not json", "/v1/build/classic", `{`, http.StatusBadRequest, 0},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			status, body := s.post(tc.path, tc.body)
			s.Require().Equal(tc.expStatus, status, body.Raw)
			if tc.expStatus != http.StatusOK {
				s.Require().Equal(tc.expCode, body.Get("code").Uint())
				s.Require().NotEmpty(body.Get("error").String())
				return
			}
			s.Require().Equal(hex.EncodeToString(expected), body.Get("encoded").String())
			s.Require().Equal(uint64(1), body.Get("request_type").Uint())
		})
	}
}

func (s *DaemonTestSuite) TestBuildOffChain() {
	status, body := s.post("/v1/build/offchain",
		fmt.Sprintf(`{"module":"%s","params":["sm14hp"]}`, hex.EncodeToString(wasm.WeatherModule)))
	s.Require().Equal(http.StatusOK, status, body.Raw)

	expected, err := builder.BuildOffChainRequest(wasm.WeatherModule, builder.StringParams("sm14hp"), types.AggregationNone, nil)
	s.Require().NoError(err)
	s.Require().Equal(hex.EncodeToString(expected), body.Get("encoded").String())
}

func (s *DaemonTestSuite) TestBuildIntegerFields() {
	module := hex.EncodeToString(wasm.WeatherModule)

	expected, err := builder.BuildOffChainRequest(wasm.WeatherModule, nil, types.AggregationNone, nil,
		builder.WithAPIVersion(2), builder.WithSpecType(1))
	s.Require().NoError(err)

	testCases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"offchain options", "/v1/build/offchain", fmt.Sprintf(`{"module":"%s","api_version":2,"spec_type":1}`, module), http.StatusOK},
		{"spec_type overflows", "/v1/build/offchain", fmt.Sprintf(`{"module":"%s","spec_type":256}`, module), http.StatusBadRequest},
		{"api_version overflows", "/v1/build/offchain", fmt.Sprintf(`{"module":"%s","api_version":4294967296}`, module), http.StatusBadRequest},
		{"fractional spec_type", "/v1/build/offchain", fmt.Sprintf(`{"module":"%s","spec_type":1.5}`, module), http.StatusBadRequest},
		{"negative api_version", "/v1/build/offchain", fmt.Sprintf(`{"module":"%s","api_version":-1}`, module), http.StatusBadRequest},
		{"fractional aggregation", "/v1/build/classic", `{"sources":[{"id":7}],"aggregation":2.5}`, http.StatusBadRequest},
		{"fractional max_age", "/v1/build/classic", `{"sources":[{"id":7,"max_age":0.5}]}`, http.StatusBadRequest},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			status, body := s.post(tc.path, tc.body)
			s.Require().Equal(tc.status, status, body.Raw)
			if tc.status == http.StatusOK {
				s.Require().Equal(hex.EncodeToString(expected), body.Get("encoded").String())
			}
		})
	}
}

func (s *DaemonTestSuite) TestBoxKey() {
	requester := strings.Repeat("01", types.AddressLength)

	status, body := s.post("/v1/box-key", fmt.Sprintf(`{"requester":"%s","request_key":"0123456789abcdef"}`, requester))
	s.Require().Equal(http.StatusOK, status, body.Raw)
	s.Require().Equal("9a9535786579dac2d173a72483c8a3b97eaef31ae537cef01de03a71e2e494cc", body.Get("box_key").String())

	status, body = s.post("/v1/box-key", fmt.Sprintf(`{"requester":"%s","request_key":"0123456789abcdef","hash":"blake2b_256"}`, requester))
	s.Require().Equal(http.StatusOK, status, body.Raw)
	s.Require().Equal("f55b38b0d587dffc00f9f4e9c2a1ff06c40c4f3bb453fdade0169c5bed48724a", body.Get("box_key").String())

	status, body = s.post("/v1/box-key", fmt.Sprintf(`{"requester":"%s","request_key":"k","hash":"md5"}`, requester))
	s.Require().Equal(http.StatusBadRequest, status)
	s.Require().Equal(uint64(12), body.Get("code").Uint())

	status, _ = s.post("/v1/box-key", fmt.Sprintf(`{"requester":"%s"}`, requester))
	s.Require().Equal(http.StatusBadRequest, status)
}

func (s *DaemonTestSuite) TestDecode() {
	resp := types.ResponseBody{
		RequestID:    [32]byte{0xab},
		OracleValue:  []byte("42"),
		ErrorCode:    0,
		SourceErrors: 0b101,
	}
	bz, err := resp.Marshal()
	s.Require().NoError(err)

	status, body := s.post("/v1/decode/response", fmt.Sprintf(`{"hex":"0x%x"}`, bz))
	s.Require().Equal(http.StatusOK, status, body.Raw)
	s.Require().Equal("42", body.Get("oracle_value").String())
	s.Require().Equal(`[0,2]`, body.Get("failed_sources").Raw)

	status, body = s.post("/v1/decode/response", fmt.Sprintf(`{"hex":"%x00"}`, bz))
	s.Require().Equal(http.StatusBadRequest, status)
	s.Require().Equal(uint64(3), body.Get("code").Uint())

	status, _ = s.post("/v1/decode/receipt", fmt.Sprintf(`{"hex":"%x"}`, bz))
	s.Require().Equal(http.StatusNotFound, status)

	spec, err := builder.BuildURLRequest([]map[string]any{
		{"url": "https://example.com", "value_expr": "regex:([0-9]+)"},
	}, types.AggregationNone, nil)
	s.Require().NoError(err)

	status, body = s.post("/v1/decode/request", fmt.Sprintf(`{"hex":"%x","type":"url"}`, spec))
	s.Require().Equal(http.StatusOK, status, body.Raw)
	s.Require().Equal("regex:([0-9]+)", body.Get("source_specs.0.value_expr").String())

	// the same bytes under the classic layout do not decode
	status, _ = s.post("/v1/decode/request", fmt.Sprintf(`{"hex":"%x","type":"classic"}`, spec))
	s.Require().Equal(http.StatusBadRequest, status)
}

func (s *DaemonTestSuite) TestPreview() {
	status, body := s.post("/v1/preview", fmt.Sprintf(
		`{"sources":[{"url":"%s","value_expr":"jsonpath:$.price","value_type":1,"round_to":2},{"url":"%s/missing","value_expr":"jsonpath:$.nope"}]}`,
		s.upstream.URL, s.upstream.URL))
	s.Require().Equal(http.StatusOK, status, body.Raw)
	s.Require().Equal("1.00", body.Get("report.results.0.value").String())
	s.Require().Equal(uint64(2), body.Get("report.source_errors").Uint())

	id := body.Get("id").Uint()
	s.Require().NotZero(id)

	status, stored := s.do(http.MethodGet, fmt.Sprintf("/v1/preview/%d", id), "", nil)
	s.Require().Equal(http.StatusOK, status)
	s.Require().Equal(body.Get("report").Raw, stored.Get("report").Raw)

	status, _ = s.do(http.MethodGet, "/v1/preview/999", "", nil)
	s.Require().Equal(http.StatusNotFound, status)
}

func (s *DaemonTestSuite) TestPreviewEncoded() {
	spec, err := builder.BuildURLRequest([]map[string]any{
		{"url": s.upstream.URL, "value_expr": "jsonpath:$.price"},
	}, types.AggregationNone, nil)
	s.Require().NoError(err)

	status, body := s.post("/v1/preview", fmt.Sprintf(`{"encoded":"%x"}`, spec))
	s.Require().Equal(http.StatusOK, status, body.Raw)
	s.Require().Equal("1.005", body.Get("report.results.0.value").String())
}

func (s *DaemonTestSuite) TestInspect() {
	status, body := s.do(http.MethodPost, "/v1/inspect", "application/wasm", wasm.WeatherModule)
	s.Require().Equal(http.StatusOK, status, body.Raw)
	s.Require().Equal("goraMain", body.Get("entry_point").String())

	status, body = s.post("/v1/inspect", fmt.Sprintf(`{"module":"%x"}`, wasm.WeatherModule))
	s.Require().Equal(http.StatusOK, status, body.Raw)
	s.Require().Equal(int64(len(wasm.WeatherModule)), body.Get("size").Int())

	status, body = s.do(http.MethodPost, "/v1/inspect", "application/wasm", []byte("not wasm"))
	s.Require().Equal(http.StatusBadRequest, status)
	s.Require().Equal(uint64(13), body.Get("code").Uint())
}

func (s *DaemonTestSuite) TestMetrics() {
	status, body := s.do(http.MethodGet, "/metrics", "", nil)
	s.Require().Equal(http.StatusOK, status)
	s.Require().True(body.Get("Timestamp").Exists())
}

func (s *DaemonTestSuite) TestCORS() {
	req, err := http.NewRequest(http.MethodOptions, s.server.URL+"/v1/box-key", nil)
	s.Require().NoError(err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	res, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer res.Body.Close()
	s.Require().Equal("*", res.Header.Get("Access-Control-Allow-Origin"))
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := config.Default(t.TempDir())
	d := daemon.New(cfg, tmdb.NewMemDB(), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx, ln) }()

	res, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}
