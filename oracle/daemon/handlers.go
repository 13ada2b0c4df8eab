package daemon

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/gorilla/mux"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/GPTx-global/gora/oracle/log"
	"github.com/GPTx-global/gora/oracle/wasm"
	"github.com/GPTx-global/gora/x/gora/builder"
	"github.com/GPTx-global/gora/x/gora/client/cli"
	"github.com/GPTx-global/gora/x/gora/types"
)

// MaxRequestSize bounds request bodies; compiled modules are the largest.
const MaxRequestSize = 4 << 20

func (d *Daemon) registerRoutes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", d.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", d.handleMetrics).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/params", d.handleParams).Methods(http.MethodGet)
	v1.HandleFunc("/build/{type}", d.handleBuild).Methods(http.MethodPost)
	v1.HandleFunc("/box-key", d.handleBoxKey).Methods(http.MethodPost)
	v1.HandleFunc("/decode/{kind}", d.handleDecode).Methods(http.MethodPost)
	v1.HandleFunc("/preview", d.handlePreview).Methods(http.MethodPost)
	v1.HandleFunc("/preview/{id:[0-9]+}", d.handleGetPreview).Methods(http.MethodGet)
	v1.HandleFunc("/inspect", d.handleInspect).Methods(http.MethodPost)
	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeDoc writes a document that is already JSON.
func writeDoc(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}

// clientErrors are the registered failures caused by the caller's input.
var clientErrors = []*errorsmod.Error{
	types.ErrMissingField,
	types.ErrMalformedEnvelope,
	types.ErrMixedSources,
	types.ErrInvalidRequestType,
	types.ErrInvalidField,
	types.ErrInvalidParams,
	types.ErrUnknownHashAlgorithm,
	types.ErrInvalidModule,
	types.ErrNotFound,
}

// writeError maps registered protocol errors to client errors and reports
// their code.
func writeError(w http.ResponseWriter, err error) {
	resp := map[string]any{"error": err.Error()}
	status := http.StatusInternalServerError

	for _, e := range clientErrors {
		if errors.Is(err, e) {
			status = http.StatusBadRequest
			resp["codespace"] = e.Codespace()
			resp["code"] = e.ABCICode()
			break
		}
	}
	switch {
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		log.Errorf("daemon: %v", err)
	}
	writeJSON(w, status, resp)
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func readBody(r *http.Request) ([]byte, error) {
	bz, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestSize))
	if err != nil {
		return nil, badRequest("failed to read body: %v", err)
	}
	return bz, nil
}

func readJSON(r *http.Request) (gjson.Result, error) {
	bz, err := readBody(r)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(bz) {
		return gjson.Result{}, badRequest("body is not valid JSON")
	}
	return gjson.ParseBytes(bz), nil
}

// bytesParam takes 0x-prefixed values as hex and anything else as text.
func bytesParam(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "0x") {
		bz, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil {
			return nil, badRequest("invalid hex %q", s)
		}
		return bz, nil
	}
	return []byte(s), nil
}

func hexParam(body gjson.Result, key string) ([]byte, error) {
	s := strings.TrimPrefix(body.Get(key).String(), "0x")
	if s == "" {
		return nil, badRequest("%s is required", key)
	}
	bz, err := hex.DecodeString(s)
	if err != nil {
		return nil, badRequest("%s is not hex", key)
	}
	return bz, nil
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := d.health.Run(r.Context())

	state := "ok"
	if !d.health.IsHealthy() {
		state = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": state,
		"uptime": time.Since(d.started).Round(time.Second).String(),
		"checks": checks,
	})
}

func (d *Daemon) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if d.sink == nil {
		writeError(w, types.ErrNotFound.Wrap("metrics are disabled"))
		return
	}
	summary, err := d.sink.DisplayMetrics(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (d *Daemon) handleParams(w http.ResponseWriter, _ *http.Request) {
	p, err := d.cfg.Params()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dispatcher_app_id":      p.DispatcherAppID,
		"dispatcher_identity":    p.DispatcherIdentity.String(),
		"hash_algorithm":         p.HashAlgorithm,
		"token_asset_id":         p.TokenAssetID,
		"token_deposit_amount":   p.TokenDepositAmount,
		"algo_deposit_amount":    p.AlgoDepositAmount,
		"store_failed_responses": p.StoreFailedResponses,
	})
}

// buildSpec turns a JSON build body into a request spec of the given type.
func buildSpec(requestType types.RequestType, body gjson.Result) (types.RequestSpec, error) {
	aggregation, err := uintParam(body, "aggregation", math.MaxUint32)
	if err != nil {
		return types.RequestSpec{}, err
	}
	userData, err := bytesParam(body.Get("user_data").String())
	if err != nil {
		return types.RequestSpec{}, err
	}

	if requestType == types.RequestTypeOffChain {
		module, err := hexParam(body, "module")
		if err != nil {
			return types.RequestSpec{}, err
		}
		var params []string
		for _, p := range body.Get("params").Array() {
			params = append(params, p.String())
		}
		opts := []builder.OffChainOption{}
		if body.Get("api_version").Exists() {
			v, err := uintParam(body, "api_version", math.MaxUint32)
			if err != nil {
				return types.RequestSpec{}, err
			}
			opts = append(opts, builder.WithAPIVersion(uint32(v)))
		}
		if body.Get("spec_type").Exists() {
			v, err := uintParam(body, "spec_type", math.MaxUint8)
			if err != nil {
				return types.RequestSpec{}, err
			}
			opts = append(opts, builder.WithSpecType(uint8(v)))
		}
		return builder.NewOffChainRequest(module, builder.StringParams(params...), uint32(aggregation), userData, opts...)
	}

	raw := body.Get("sources").Raw
	if raw == "" {
		return types.RequestSpec{}, types.ErrMissingField.Wrap("sources")
	}
	sources, err := cli.ParseSourcesJSON(nil, raw)
	if err != nil {
		return types.RequestSpec{}, badRequest("%v", err)
	}
	if requestType == types.RequestTypeClassic {
		return builder.NewClassicRequest(sources, uint32(aggregation), userData)
	}
	return builder.NewURLRequest(sources, uint32(aggregation), userData)
}

// uintParam reads an optional unsigned integer no larger than max. Absent
// fields read as zero.
func uintParam(body gjson.Result, key string, max uint64) (uint64, error) {
	v := body.Get(key)
	if !v.Exists() {
		return 0, nil
	}
	if v.Type == gjson.Number && v.Num != math.Trunc(v.Num) {
		return 0, badRequest("%s: %s is not an integer", key, v.Raw)
	}
	n, err := cast.ToUint64E(v.Value())
	if err != nil {
		return 0, badRequest("%s: %v", key, err)
	}
	if n > max {
		return 0, badRequest("%s: %d is out of range", key, n)
	}
	return n, nil
}

func (d *Daemon) handleBuild(w http.ResponseWriter, r *http.Request) {
	requestType, err := types.ParseRequestType(mux.Vars(r)["type"])
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := readJSON(r)
	if err != nil {
		writeError(w, err)
		return
	}

	spec, err := buildSpec(requestType, body)
	if err != nil {
		writeError(w, err)
		return
	}
	bz, err := spec.Marshal()
	if err != nil {
		writeError(w, err)
		return
	}

	doc, err := cli.RequestSpecJSON(spec)
	if err == nil {
		doc, err = sjson.Set(doc, "request_type", uint64(spec.Type))
	}
	if err == nil {
		doc, err = sjson.Set(doc, "encoded", hex.EncodeToString(bz))
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeDoc(w, doc)
}

func (d *Daemon) handleBoxKey(w http.ResponseWriter, r *http.Request) {
	body, err := readJSON(r)
	if err != nil {
		writeError(w, err)
		return
	}

	requester, err := cli.ParseRequester(body.Get("requester").String())
	if err != nil {
		writeError(w, err)
		return
	}
	requestKey, err := bytesParam(body.Get("request_key").String())
	if err != nil {
		writeError(w, err)
		return
	}
	if len(requestKey) == 0 {
		writeError(w, types.ErrMissingField.Wrap("request_key"))
		return
	}

	alg := types.HashAlgorithm(d.cfg.Dispatcher.HashAlgorithm)
	if v := body.Get("hash").String(); v != "" {
		alg = types.HashAlgorithm(v)
	}

	boxKey, err := types.DeriveBoxKey(alg, requester, requestKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"requester":   requester.String(),
		"request_key": hex.EncodeToString(requestKey),
		"hash":        string(alg),
		"box_key":     hex.EncodeToString(boxKey[:]),
	})
}

func (d *Daemon) handleDecode(w http.ResponseWriter, r *http.Request) {
	body, err := readJSON(r)
	if err != nil {
		writeError(w, err)
		return
	}
	bz, err := hexParam(body, "hex")
	if err != nil {
		writeError(w, err)
		return
	}

	var doc string
	switch kind := mux.Vars(r)["kind"]; kind {
	case "request":
		requestType, err := types.ParseRequestType(body.Get("type").String())
		if err != nil {
			writeError(w, err)
			return
		}
		spec, err := types.UnmarshalRequestSpec(requestType, bz)
		if err != nil {
			writeError(w, err)
			return
		}
		doc, err = cli.RequestSpecJSON(spec)
		if err != nil {
			writeError(w, err)
			return
		}
	case "response":
		resp, err := types.UnmarshalResponseBody(bz)
		if err != nil {
			writeError(w, err)
			return
		}
		if doc, err = cli.ResponseJSON(*resp); err != nil {
			writeError(w, err)
			return
		}
	case "destination":
		var dest types.DestinationSpec
		if err := dest.Unmarshal(bz); err != nil {
			writeError(w, err)
			return
		}
		if doc, err = cli.DestinationJSON(dest); err != nil {
			writeError(w, err)
			return
		}
	default:
		writeError(w, types.ErrNotFound.Wrapf("unknown envelope kind %q", kind))
		return
	}
	writeDoc(w, doc)
}

func (d *Daemon) handlePreview(w http.ResponseWriter, r *http.Request) {
	body, err := readJSON(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var spec types.RequestSpec
	if body.Get("encoded").Exists() {
		bz, err := hexParam(body, "encoded")
		if err != nil {
			writeError(w, err)
			return
		}
		spec, err = types.UnmarshalRequestSpec(types.RequestTypeURL, bz)
		if err != nil {
			writeError(w, err)
			return
		}
	} else if spec, err = buildSpec(types.RequestTypeURL, body); err != nil {
		writeError(w, err)
		return
	}

	report, err := d.pool.Preview(r.Context(), spec)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := d.previews.save(report)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "report": report})
}

func (d *Daemon) handleGetPreview(w http.ResponseWriter, r *http.Request) {
	id, err := cast.ToUint64E(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, badRequest("invalid id"))
		return
	}
	report, err := d.previews.get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "report": report})
}

// handleInspect accepts the module as the raw body, or as {"module": "<hex>"}.
func (d *Daemon) handleInspect(w http.ResponseWriter, r *http.Request) {
	bz, err := readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}

	module := bz
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if !gjson.ValidBytes(bz) {
			writeError(w, badRequest("body is not valid JSON"))
			return
		}
		if module, err = hexParam(gjson.ParseBytes(bz), "module"); err != nil {
			writeError(w, err)
			return
		}
	}

	info, err := wasm.Inspect(r.Context(), module)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
