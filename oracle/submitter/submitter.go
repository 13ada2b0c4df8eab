package submitter

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/GPTx-global/gora/oracle/log"
	"github.com/GPTx-global/gora/oracle/retry"
	"github.com/GPTx-global/gora/x/gora/keeper"
	"github.com/GPTx-global/gora/x/gora/types"
)

// Request is what a caller wants dispatched. The request key is minted by
// the submitter.
type Request struct {
	Type       types.RequestType
	Spec       []byte
	DestAppID  uint64
	DestMethod string

	AppRefs     []uint64
	AssetRefs   []uint64
	AccountRefs []types.Address
	BoxRefs     []types.BoxRef
}

// Submitter sends requests through a keeper. Each attempt uses a fresh
// request key, so a retried request never collides with the box of an
// earlier attempt.
type Submitter struct {
	keeper       *keeper.Keeper
	retryConfig  retry.Config
	attachBoxRef bool
	newKey       func() []byte
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithRetry opts into caller-side retries of transient dispatch failures.
func WithRetry(cfg retry.Config) Option {
	return func(s *Submitter) { s.retryConfig = cfg }
}

// WithoutBoxRef leaves the box reference list exactly as given.
func WithoutBoxRef() Option {
	return func(s *Submitter) { s.attachBoxRef = false }
}

// WithKeySource replaces the request key generator.
func WithKeySource(newKey func() []byte) Option {
	return func(s *Submitter) { s.newKey = newKey }
}

// New creates a submitter that attaches box references and submits once.
func New(k *keeper.Keeper, opts ...Option) *Submitter {
	s := &Submitter{
		keeper:       k,
		retryConfig:  retry.DefaultConfig(),
		attachBoxRef: true,
		newKey:       types.NewRequestKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit dispatches req and returns the correlation data of the attempt
// that was accepted.
func (s *Submitter) Submit(ctx context.Context, req Request) (*types.MsgRequestResponse, error) {
	var res *types.MsgRequestResponse

	err := retry.Do(ctx, s.retryConfig, func(attempt int) error {
		msg, err := s.BuildMsg(req)
		if err != nil {
			return err
		}

		res, err = s.keeper.Request(ctx, msg)
		if err != nil {
			log.Debugf("submit attempt %d with request key %x failed: %v", attempt, msg.RequestKey, err)
			return err
		}
		return nil
	}, retry.DispatchIsRetryable)
	if err != nil {
		return nil, err
	}

	log.Infof("submitted %s request, box %s", req.Type, hex.EncodeToString(res.BoxKey[:]))
	return res, nil
}

// BuildMsg mints a request key and, unless disabled, adds the reference to
// the box the dispatcher will create for it.
func (s *Submitter) BuildMsg(req Request) (*types.MsgRequest, error) {
	key := s.newKey()

	msg := types.NewMsgRequest(req.Type, req.Spec, req.DestMethod, key)
	msg.DestAppID = req.DestAppID
	msg.AppRefs = req.AppRefs
	msg.AssetRefs = req.AssetRefs
	msg.AccountRefs = req.AccountRefs
	msg.BoxRefs = append([]types.BoxRef(nil), req.BoxRefs...)

	if !s.attachBoxRef {
		return msg, nil
	}

	boxKey, err := s.keeper.BoxKey(key)
	if err != nil {
		return nil, fmt.Errorf("derive box key: %w", err)
	}
	ref := types.BoxRef{Key: boxKey[:], AppID: s.keeper.Params().DispatcherAppID}
	if !containsBoxRef(msg.BoxRefs, ref) {
		msg.BoxRefs = append(msg.BoxRefs, ref)
	}

	return msg, nil
}

func containsBoxRef(refs []types.BoxRef, ref types.BoxRef) bool {
	for _, r := range refs {
		if r.AppID == ref.AppID && bytes.Equal(r.Key, ref.Key) {
			return true
		}
	}
	return false
}
