package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/GPTx-global/gora/x/gora/builder"
	"github.com/GPTx-global/gora/x/gora/types"
)

const (
	FlagAggregation = "aggregation"
	FlagUserData    = "user-data"
	FlagAPIVersion  = "api-version"
	FlagSpecType    = "spec-type"
)

// GetBuildCmd returns the request building commands
func GetBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                        "build",
		Short:                      "Build encoded oracle request specs",
		SuggestionsMinimumDistance: 2,
	}

	cmd.AddCommand(
		NewBuildClassicCmd(),
		NewBuildURLCmd(),
		NewBuildOffChainCmd(),
	)

	return cmd
}

func addSpecFlags(cmd *cobra.Command) {
	cmd.Flags().Uint32(FlagAggregation, types.AggregationNone, "aggregation mode: 0 none, 1 min, 2 max, 3 median")
	cmd.Flags().String(FlagUserData, "", "opaque data echoed back in the response")
}

// NewBuildClassicCmd implements the classic request build command
func NewBuildClassicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "classic [sources.json|-|inline-json]",
		Short:   "Build a classic request from a JSON array of {id, args, max_age} sources",
		Example: `gorad build classic '[{"id":7,"args":["##signKey","btc","usd"]},{"id":7,"args":["##signKey","eth","usd"]}]' --aggregation 2`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := ParseSourcesJSON(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			aggregation, userData, err := specFlags(cmd)
			if err != nil {
				return err
			}

			spec, err := builder.NewClassicRequest(sources, aggregation, userData)
			if err != nil {
				return err
			}
			return printSpec(cmd, spec)
		},
	}

	addSpecFlags(cmd)
	return cmd
}

// NewBuildURLCmd implements the general URL request build command
func NewBuildURLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "url [sources.json|-|inline-json]",
		Short:   "Build a general URL request from a JSON array of {url, value_expr, ...} sources",
		Example: `gorad build url '[{"url":"https://coinmarketcap.com/currencies/bnb/","value_expr":"regex:>BNB is (?:up|down) ([.0-9]+)%","value_type":1}]'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := ParseSourcesJSON(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			aggregation, userData, err := specFlags(cmd)
			if err != nil {
				return err
			}

			spec, err := builder.NewURLRequest(sources, aggregation, userData)
			if err != nil {
				return err
			}
			return printSpec(cmd, spec)
		},
	}

	addSpecFlags(cmd)
	return cmd
}

// NewBuildOffChainCmd implements the off-chain request build command
func NewBuildOffChainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offchain [module.wasm] [param]...",
		Short: "Build an off-chain computation request around a compiled module",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			module, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read module: %w", err)
			}
			aggregation, userData, err := specFlags(cmd)
			if err != nil {
				return err
			}
			apiVersion, err := cmd.Flags().GetUint32(FlagAPIVersion)
			if err != nil {
				return err
			}
			specType, err := cmd.Flags().GetUint8(FlagSpecType)
			if err != nil {
				return err
			}

			spec, err := builder.NewOffChainRequest(module, builder.StringParams(args[1:]...), aggregation, userData,
				builder.WithAPIVersion(apiVersion), builder.WithSpecType(specType))
			if err != nil {
				return err
			}
			return printSpec(cmd, spec)
		},
	}

	addSpecFlags(cmd)
	cmd.Flags().Uint32(FlagAPIVersion, types.DefaultOffChainAPIVersion, "off-chain execution API version")
	cmd.Flags().Uint8(FlagSpecType, types.OffChainSpecInline, "off-chain spec type")
	return cmd
}

func specFlags(cmd *cobra.Command) (uint32, []byte, error) {
	aggregation, err := cmd.Flags().GetUint32(FlagAggregation)
	if err != nil {
		return 0, nil, err
	}
	userData, err := cmd.Flags().GetString(FlagUserData)
	if err != nil {
		return 0, nil, err
	}
	if userData == "" {
		return aggregation, nil, nil
	}
	return aggregation, []byte(userData), nil
}

func printSpec(cmd *cobra.Command, spec types.RequestSpec) error {
	debugDump(cmd, spec)

	bz, err := spec.Marshal()
	if err != nil {
		return err
	}

	if outputFormat(cmd) == OutputText {
		cmd.Println(hex.EncodeToString(bz))
		return nil
	}

	doc, err := RequestSpecJSON(spec)
	if err != nil {
		return err
	}
	s := &setter{doc: doc}
	s.set("request_type", uint64(spec.Type))
	s.set("encoded", hex.EncodeToString(bz))
	if s.err != nil {
		return s.err
	}
	return printDoc(cmd, s.doc)
}

// ParseSourcesJSON reads a JSON array of source parameter objects from a
// file, from stdin when arg is "-", or from arg itself when it is inline JSON.
func ParseSourcesJSON(stdin io.Reader, arg string) ([]map[string]any, error) {
	var (
		bz  []byte
		err error
	)
	switch trimmed := strings.TrimSpace(arg); {
	case trimmed == "-":
		bz, err = io.ReadAll(stdin)
	case strings.HasPrefix(trimmed, "["):
		bz = []byte(trimmed)
	default:
		bz, err = os.ReadFile(arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sources: %w", err)
	}

	if !gjson.ValidBytes(bz) {
		return nil, fmt.Errorf("sources are not valid JSON")
	}
	result := gjson.ParseBytes(bz)
	if !result.IsArray() {
		return nil, fmt.Errorf("sources must be a JSON array of objects")
	}

	var sources []map[string]any
	for i, item := range result.Array() {
		m, ok := item.Value().(map[string]any)
		if !ok {
			return nil, fmt.Errorf("source %d is not an object", i)
		}
		sources = append(sources, m)
	}
	return sources, nil
}
