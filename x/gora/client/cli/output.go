package cli

import (
	"encoding/hex"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
	"sigs.k8s.io/yaml"

	"github.com/GPTx-global/gora/x/gora/types"
)

const (
	FlagOutput = "output"
	FlagDebug  = "debug"
)

const (
	OutputJSON = "json"
	OutputYAML = "yaml"
	OutputText = "text"
)

func outputFormat(cmd *cobra.Command) string {
	out, err := cmd.Flags().GetString(FlagOutput)
	if err != nil || out == "" {
		return OutputJSON
	}
	return out
}

// printDoc writes a JSON document in the format selected by --output.
func printDoc(cmd *cobra.Command, doc string) error {
	switch format := outputFormat(cmd); format {
	case OutputJSON:
		cmd.Println(doc)
	case OutputYAML, OutputText:
		bz, err := yaml.JSONToYAML([]byte(doc))
		if err != nil {
			return err
		}
		cmd.Print(string(bz))
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	return nil
}

// debugDump prints v to stderr when --debug is set.
func debugDump(cmd *cobra.Command, v any) {
	if debug, err := cmd.Flags().GetBool(FlagDebug); err == nil && debug {
		spew.Fdump(cmd.ErrOrStderr(), v)
	}
}

// renderBytes shows printable text as is and anything else as 0x-prefixed hex.
func renderBytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		printable := true
		for _, r := range string(b) {
			if !unicode.IsPrint(r) {
				printable = false
				break
			}
		}
		if printable {
			return string(b)
		}
	}
	return "0x" + hex.EncodeToString(b)
}

type setter struct {
	doc string
	err error
}

func (s *setter) set(path string, value any) {
	if s.err != nil {
		return
	}
	s.doc, s.err = sjson.Set(s.doc, path, value)
}

func (s *setter) bytesList(path string, list [][]byte) {
	if len(list) == 0 {
		s.set(path, []string{})
		return
	}
	for i, b := range list {
		s.set(fmt.Sprintf("%s.%d", path, i), renderBytes(b))
	}
}

// RequestSpecJSON renders a decoded request spec.
func RequestSpecJSON(spec types.RequestSpec) (string, error) {
	s := &setter{doc: "{}"}
	s.set("type", spec.Type.String())
	s.set("aggregation", spec.Aggregation)
	s.set("user_data", renderBytes(spec.UserData))

	for i, src := range spec.SourceSpecs {
		p := fmt.Sprintf("source_specs.%d.", i)
		switch src := src.(type) {
		case types.SourceSpec:
			s.set(p+"id", src.SourceID)
			s.bytesList(p+"args", src.Args)
			s.set(p+"max_age", src.MaxAge)
		case types.SourceSpecURL:
			s.set(p+"url", renderBytes(src.URL))
			s.set(p+"auth_url", renderBytes(src.AuthURL))
			s.set(p+"value_expr", renderBytes(src.ValueExpr))
			s.set(p+"timestamp_expr", renderBytes(src.TimestampExpr))
			s.set(p+"max_age", src.MaxAge)
			s.set(p+"value_type", src.ValueType)
			s.set(p+"round_to", src.RoundTo)
			s.set(p+"gateway_url", renderBytes(src.GatewayURL))
		case types.SourceSpecOffChain:
			s.set(p+"api_version", src.APIVersion)
			s.set(p+"spec_type", src.SpecType)
			s.set(p+"compiled_module_size", len(src.CompiledModule))
			s.bytesList(p+"module_params", src.ModuleParams)
		}
	}

	return s.doc, s.err
}

// ResponseJSON renders a decoded response body.
func ResponseJSON(body types.ResponseBody) (string, error) {
	s := &setter{doc: "{}"}
	s.set("request_id", hex.EncodeToString(body.RequestID[:]))
	s.set("requester_addr", body.RequesterAddr.String())
	s.set("oracle_value", renderBytes(body.OracleValue))
	s.set("user_data", renderBytes(body.UserData))
	s.set("error_code", body.ErrorCode)
	s.set("source_errors", body.SourceErrors)
	s.set("failed_sources", body.FailedSources())
	return s.doc, s.err
}

// DestinationJSON renders a decoded destination spec.
func DestinationJSON(dest types.DestinationSpec) (string, error) {
	s := &setter{doc: "{}"}
	s.set("app_id", dest.AppID)
	s.set("method", string(dest.Method))
	return s.doc, s.err
}
