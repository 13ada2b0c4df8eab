package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	tmdb "github.com/tendermint/tm-db"

	"github.com/GPTx-global/gora/oracle/config"
	"github.com/GPTx-global/gora/oracle/log"
	"github.com/GPTx-global/gora/oracle/runtime"
	"github.com/GPTx-global/gora/oracle/submitter"
	"github.com/GPTx-global/gora/oracle/wasm"
	"github.com/GPTx-global/gora/oracle/worker"
	"github.com/GPTx-global/gora/x/gora"
	"github.com/GPTx-global/gora/x/gora/builder"
	"github.com/GPTx-global/gora/x/gora/client/cli"
	"github.com/GPTx-global/gora/x/gora/keeper"
	"github.com/GPTx-global/gora/x/gora/types"
)

const (
	FlagValue   = "value"
	FlagSources = "sources"
	FlagLive    = "live"
	FlagDecoded = "decoded"

	demoMethod = "handle_oracle"
)

var (
	demoDeployer = types.Address{0xde, 0xad}
	demoCreator  = types.Address{0x01}
)

// demoResult is printed by the demo command.
type demoResult struct {
	BoxKey          string          `json:"box_key"`
	RequestKey      string          `json:"request_key"`
	DispatcherAppID uint64          `json:"dispatcher_app_id"`
	ClientAppID     uint64          `json:"client_app_id"`
	Response        json.RawMessage `json:"response"`
	LastValue       string          `json:"last_value"`
}

func demoCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo [classic|url|offchain]",
		Short: "Run one request through an in-memory dispatcher and print the delivered response",
		Long: `Deploys a simulated dispatcher and a client app, submits one request of the
given type, answers it and prints the response the client stored.

The answer is the --value flag unless --live is set for a url request, in which
case the sources are fetched and the first extracted value is returned.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requestType, err := types.ParseRequestType(args[0])
			if err != nil {
				return err
			}

			cfg, err := config.Load(homeDir(v))
			if err != nil {
				return err
			}

			value, _ := cmd.Flags().GetString(FlagValue)
			sourcesArg, _ := cmd.Flags().GetString(FlagSources)
			live, _ := cmd.Flags().GetBool(FlagLive)
			decoded, _ := cmd.Flags().GetBool(FlagDecoded)

			spec, err := demoSpec(cmd, requestType, sourcesArg)
			if err != nil {
				return err
			}

			var responder runtime.Responder
			switch {
			case live && requestType == types.RequestTypeURL:
				pool := worker.NewPool(worker.NewExecutor(cfg.PreviewTimeout(), cfg.Preview.UserAgent), cfg.Preview.Workers)
				responder = fetchResponder(pool)
			case requestType == types.RequestTypeOffChain:
				responder = moduleResponder(value)
			default:
				responder = constantResponder(value)
			}

			res, err := runDemo(cmd.Context(), cfg, requestType, spec, responder, decoded)
			if err != nil {
				return err
			}
			return printValue(cmd, res)
		},
	}

	cmd.Flags().String(FlagValue, "42", "value the responder answers with")
	cmd.Flags().String(FlagSources, "", "url sources as JSON, a file path or - for stdin")
	cmd.Flags().Bool(FlagLive, false, "fetch url sources instead of answering with --value")
	cmd.Flags().Bool(FlagDecoded, false, "deliver the response as decoded callback arguments")
	return cmd
}

func demoSpec(cmd *cobra.Command, requestType types.RequestType, sourcesArg string) ([]byte, error) {
	userData := []byte("gorad demo")

	switch requestType {
	case types.RequestTypeClassic:
		return builder.BuildClassicRequest([]map[string]any{
			{"id": 7, "args": []string{"##signKey", "btc", "usd"}},
		}, types.AggregationNone, userData)

	case types.RequestTypeURL:
		sources := []map[string]any{{
			"url":        "https://example.com/price",
			"value_expr": "jsonpath:$.price",
			"value_type": types.ValueTypeNumber,
			"round_to":   2,
		}}
		if sourcesArg != "" {
			var err error
			if sources, err = cli.ParseSourcesJSON(cmd.InOrStdin(), sourcesArg); err != nil {
				return nil, err
			}
		}
		return builder.BuildURLRequest(sources, types.AggregationNone, userData)

	default:
		return builder.BuildOffChainRequest(wasm.WeatherModule, builder.StringParams("2000"), types.AggregationNone, userData)
	}
}

func runDemo(
	ctx context.Context,
	cfg *config.Config,
	requestType types.RequestType,
	spec []byte,
	responder runtime.Responder,
	decoded bool,
) (*demoResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var opts []runtime.DispatcherOption
	if decoded {
		opts = append(opts, runtime.WithDecodedCallbacks())
	}

	ledger := runtime.NewLedger()
	d, err := runtime.NewDispatcher(ledger, demoDeployer, types.HashAlgorithm(cfg.Dispatcher.HashAlgorithm), opts...)
	if err != nil {
		return nil, err
	}

	params := d.Params()
	params.StoreFailedResponses = cfg.Client.StoreFailedResponses

	clientID := ledger.CreateApp(demoCreator, nil)
	k, err := keeper.NewKeeper(tmdb.NewMemDB(), ledger, params, clientID, log.TMLogger())
	if err != nil {
		return nil, err
	}
	handler, err := gora.NewCallbackHandler(k, demoMethod)
	if err != nil {
		return nil, err
	}
	if err := ledger.SetHandler(clientID, handler); err != nil {
		return nil, err
	}

	retryCfg, err := cfg.RetryConfig()
	if err != nil {
		return nil, err
	}
	subOpts := []submitter.Option{submitter.WithRetry(retryCfg)}
	if !cfg.Submit.AttachBoxRef {
		subOpts = append(subOpts, submitter.WithoutBoxRef())
	}
	res, err := submitter.New(k, subOpts...).Submit(ctx, submitter.Request{
		Type:       requestType,
		Spec:       spec,
		DestAppID:  clientID,
		DestMethod: demoMethod,
	})
	if err != nil {
		return nil, err
	}

	if _, err := d.Process(ctx, responder); err != nil {
		return nil, err
	}

	body, err := k.GetResponse(res.BoxKey)
	if err != nil {
		return nil, err
	}
	doc, err := cli.ResponseJSON(*body)
	if err != nil {
		return nil, err
	}
	last, _, err := k.GetLastOracleValue()
	if err != nil {
		return nil, err
	}

	return &demoResult{
		BoxKey:          fmt.Sprintf("%x", res.BoxKey),
		RequestKey:      fmt.Sprintf("%x", res.RequestKey),
		DispatcherAppID: d.AppID(),
		ClientAppID:     clientID,
		Response:        json.RawMessage(doc),
		LastValue:       string(last),
	}, nil
}

func constantResponder(value string) runtime.Responder {
	return func(context.Context, runtime.Box) (runtime.Answer, error) {
		return runtime.Answer{Value: []byte(value)}, nil
	}
}

// fetchResponder answers with the first value the sources produce, in
// source order. Every failed source is flagged in the answer.
func fetchResponder(pool *worker.Pool) runtime.Responder {
	return func(ctx context.Context, box runtime.Box) (runtime.Answer, error) {
		report := pool.Run(ctx, box.Spec.URLSources())

		answer := runtime.Answer{SourceErrors: report.SourceErrors}
		var errs []string
		for _, r := range report.Results {
			if r.Failed() {
				errs = append(errs, fmt.Sprintf("source %d: %s", r.Index, r.Error))
				continue
			}
			if answer.Value == nil {
				answer.Value = []byte(r.Value)
			}
		}
		if answer.Value == nil {
			log.Errorf("no source produced a value: %s", strings.Join(errs, "; "))
			answer.ErrorCode = uint32(types.ErrRequestError.ABCICode())
		}
		return answer, nil
	}
}

// moduleResponder refuses modules a responder could not run, then answers
// with value.
func moduleResponder(value string) runtime.Responder {
	return func(ctx context.Context, box runtime.Box) (runtime.Answer, error) {
		src, ok := box.Spec.OffChainSource()
		if !ok {
			return runtime.Answer{}, types.ErrInvalidRequestType.Wrap("expected an off-chain source")
		}
		info, err := wasm.Inspect(ctx, src.CompiledModule)
		if err != nil {
			return runtime.Answer{}, err
		}
		log.Debugf("running %s of a %d byte module with %d params", info.EntryPoint, info.Size, len(src.ModuleParams))
		return runtime.Answer{Value: []byte(value)}, nil
	}
}
