package cli

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GPTx-global/gora/x/gora/types"
)

const FlagHashAlgorithm = "hash"

// GetDecodeCmd returns the envelope decoding commands
func GetDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                        "decode",
		Short:                      "Decode binary oracle envelopes given as hex",
		SuggestionsMinimumDistance: 2,
	}

	cmd.AddCommand(
		GetCmdDecodeRequest(),
		GetCmdDecodeResponse(),
		GetCmdDecodeDestination(),
	)

	return cmd
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	bz, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return bz, nil
}

// GetCmdDecodeRequest implements the request spec decode command
func GetCmdDecodeRequest() *cobra.Command {
	return &cobra.Command{
		Use:   "request [classic|url|off_chain] [hex]",
		Short: "Decode a request spec with the layout of the given request type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			requestType, err := types.ParseRequestType(args[0])
			if err != nil {
				return err
			}
			bz, err := decodeHex(args[1])
			if err != nil {
				return err
			}

			spec, err := types.UnmarshalRequestSpec(requestType, bz)
			if err != nil {
				return err
			}
			debugDump(cmd, spec)

			doc, err := RequestSpecJSON(spec)
			if err != nil {
				return err
			}
			return printDoc(cmd, doc)
		},
	}
}

// GetCmdDecodeResponse implements the response body decode command
func GetCmdDecodeResponse() *cobra.Command {
	return &cobra.Command{
		Use:   "response [hex]",
		Short: "Decode a response body delivered to a destination callback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bz, err := decodeHex(args[0])
			if err != nil {
				return err
			}

			body, err := types.UnmarshalResponseBody(bz)
			if err != nil {
				return err
			}
			debugDump(cmd, body)

			doc, err := ResponseJSON(*body)
			if err != nil {
				return err
			}
			return printDoc(cmd, doc)
		},
	}
}

// GetCmdDecodeDestination implements the destination spec decode command
func GetCmdDecodeDestination() *cobra.Command {
	return &cobra.Command{
		Use:   "destination [hex]",
		Short: "Decode a destination spec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bz, err := decodeHex(args[0])
			if err != nil {
				return err
			}

			var dest types.DestinationSpec
			if err := dest.Unmarshal(bz); err != nil {
				return err
			}

			doc, err := DestinationJSON(dest)
			if err != nil {
				return err
			}
			return printDoc(cmd, doc)
		},
	}
}

// GetCmdBoxKey implements the box key derivation command
func GetCmdBoxKey() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "box-key [requester] [request-key]",
		Short: "Derive the dispatcher box key of a request",
		Long: `Derive the dispatcher box key of a request.

The requester is a base32 ledger address, 64 hex characters, or "app:<id>"
for an application account. The request key is taken as hex when prefixed
with 0x and as text otherwise.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			requester, err := ParseRequester(args[0])
			if err != nil {
				return err
			}

			requestKey := []byte(args[1])
			if strings.HasPrefix(args[1], "0x") {
				if requestKey, err = decodeHex(args[1]); err != nil {
					return err
				}
			}

			alg, err := cmd.Flags().GetString(FlagHashAlgorithm)
			if err != nil {
				return err
			}
			boxKey, err := types.DeriveBoxKey(types.HashAlgorithm(alg), requester, requestKey)
			if err != nil {
				return err
			}

			if outputFormat(cmd) == OutputText {
				cmd.Println(hex.EncodeToString(boxKey[:]))
				return nil
			}
			s := &setter{doc: "{}"}
			s.set("requester", requester.String())
			s.set("request_key", hex.EncodeToString(requestKey))
			s.set("hash", alg)
			s.set("box_key", hex.EncodeToString(boxKey[:]))
			if s.err != nil {
				return s.err
			}
			return printDoc(cmd, s.doc)
		},
	}

	cmd.Flags().String(FlagHashAlgorithm, string(types.DefaultHashAlgorithm),
		fmt.Sprintf("box key digest, one of %v", types.HashAlgorithms()))
	return cmd
}

// ParseRequester accepts a base32 address, a hex short address or app:<id>.
func ParseRequester(s string) (types.Address, error) {
	switch {
	case strings.HasPrefix(s, "app:"):
		var appID uint64
		if _, err := fmt.Sscan(strings.TrimPrefix(s, "app:"), &appID); err != nil || appID == 0 {
			return types.Address{}, types.ErrInvalidField.Wrapf("app id %q", s)
		}
		return types.ApplicationAddress(appID), nil
	case len(s) == 2*types.AddressLength:
		return types.AddressFromHex(s)
	default:
		return types.RequesterFromAddress(s)
	}
}
