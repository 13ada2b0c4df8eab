package runtime

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/GPTx-global/gora/oracle/log"
	"github.com/GPTx-global/gora/x/gora/types"
)

// Box is a request held by the dispatcher until it is answered.
type Box struct {
	Key         [types.BoxKeyLength]byte
	Requester   types.Address
	RequestKey  []byte
	Spec        types.RequestSpec
	Destination types.DestinationSpec
}

// Answer is what a responder produces for one box.
type Answer struct {
	Value        []byte
	ErrorCode    uint32
	SourceErrors uint64
}

// Responder computes the answer to a pending request.
type Responder func(ctx context.Context, box Box) (Answer, error)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDecodedCallbacks delivers responses as separate callback arguments.
func WithDecodedCallbacks() DispatcherOption {
	return func(d *Dispatcher) { d.decoded = true }
}

// WithoutBoxRefCheck accepts requests that do not reference their box.
func WithoutBoxRefCheck() DispatcherOption {
	return func(d *Dispatcher) { d.requireBoxRef = false }
}

// Dispatcher simulates the oracle main app. It stores each request in a box
// named after the requester and request key, and delivers responses through
// a responder app that it deploys itself, so callbacks carry its identity.
type Dispatcher struct {
	ledger         *Ledger
	appID          uint64
	responderAppID uint64
	alg            types.HashAlgorithm
	boxes          cmap.ConcurrentMap[string, Box]

	decoded       bool
	requireBoxRef bool
}

// NewDispatcher deploys the dispatcher app and its responder app.
func NewDispatcher(ledger *Ledger, deployer types.Address, alg types.HashAlgorithm, opts ...DispatcherOption) (*Dispatcher, error) {
	if err := alg.Validate(); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		ledger:        ledger,
		alg:           alg,
		boxes:         cmap.New[Box](),
		requireBoxRef: true,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.appID = ledger.CreateApp(deployer, d.handleRequest)
	d.responderAppID = ledger.CreateApp(types.ApplicationAddress(d.appID), nil)

	return d, nil
}

func (d *Dispatcher) AppID() uint64 { return d.appID }

// ResponderAppID is the app callbacks come from.
func (d *Dispatcher) ResponderAppID() uint64 { return d.responderAppID }

// Params returns the parameters a client must pin to trust this dispatcher.
func (d *Dispatcher) Params() types.Params {
	return types.NewParams(d.appID, d.alg)
}

func (d *Dispatcher) handleRequest(_ context.Context, call types.AppCall) error {
	req, err := types.UnmarshalRequestCall(call.Args)
	if err != nil {
		return err
	}

	spec, err := types.UnmarshalRequestSpec(req.RequestType, req.RequestSpec)
	if err != nil {
		return err
	}

	var dest types.DestinationSpec
	if err := dest.Unmarshal(req.Destination); err != nil {
		return err
	}
	if err := dest.ValidateBasic(); err != nil {
		return err
	}

	requester := types.ApplicationAddress(call.SenderAppID)
	boxKey, err := types.DeriveBoxKey(d.alg, requester, req.RequestKey)
	if err != nil {
		return err
	}

	if d.requireBoxRef && !d.hasBoxRef(req.BoxRefs, boxKey) {
		return fmt.Errorf("box reference missing for %x", boxKey)
	}

	box := Box{
		Key:         boxKey,
		Requester:   requester,
		RequestKey:  req.RequestKey,
		Spec:        spec,
		Destination: dest,
	}
	if !d.boxes.SetIfAbsent(hex.EncodeToString(boxKey[:]), box) {
		return fmt.Errorf("box already exists: %x", boxKey)
	}

	log.Debugf("dispatcher %d: stored %s request in box %x", d.appID, spec.Type, boxKey)
	return nil
}

func (d *Dispatcher) hasBoxRef(refs []types.BoxRef, boxKey [types.BoxKeyLength]byte) bool {
	for _, ref := range refs {
		if (ref.AppID == d.appID || ref.AppID == 0) && bytes.Equal(ref.Key, boxKey[:]) {
			return true
		}
	}
	return false
}

// Box returns a pending request.
func (d *Dispatcher) Box(boxKey [types.BoxKeyLength]byte) (Box, bool) {
	return d.boxes.Get(hex.EncodeToString(boxKey[:]))
}

// Pending lists the pending box keys in ascending order.
func (d *Dispatcher) Pending() [][types.BoxKeyLength]byte {
	keys := d.boxes.Keys()
	sort.Strings(keys)

	out := make([][types.BoxKeyLength]byte, 0, len(keys))
	for _, k := range keys {
		if box, ok := d.boxes.Get(k); ok {
			out = append(out, box.Key)
		}
	}
	return out
}

// Respond delivers an answer to the destination of a pending request and
// removes its box. The box stays when the callback fails.
func (d *Dispatcher) Respond(ctx context.Context, boxKey [types.BoxKeyLength]byte, answer Answer) error {
	box, ok := d.Box(boxKey)
	if !ok {
		return types.ErrNotFound.Wrapf("box %x", boxKey)
	}

	body := types.ResponseBody{
		RequestID:     box.Key,
		RequesterAddr: box.Requester,
		OracleValue:   answer.Value,
		UserData:      box.Spec.UserData,
		ErrorCode:     answer.ErrorCode,
		SourceErrors:  answer.SourceErrors,
	}

	var args [][]byte
	if d.decoded {
		var err error
		if args, err = types.DecodedCallbackArgs(box.Destination.Method, body); err != nil {
			return err
		}
	} else {
		bz, err := body.Marshal()
		if err != nil {
			return err
		}
		if args, err = types.CallbackArgs(box.Destination.Method, types.ResponseTypeResult, bz); err != nil {
			return err
		}
	}

	err := d.ledger.CallApp(ctx, types.AppCall{
		SenderAppID: d.responderAppID,
		AppID:       box.Destination.AppID,
		Args:        args,
	})
	if err != nil {
		return fmt.Errorf("callback to app %d: %w", box.Destination.AppID, err)
	}

	d.boxes.Remove(hex.EncodeToString(boxKey[:]))
	return nil
}

// Process answers every pending request with responder, in box key order,
// and returns the first error.
func (d *Dispatcher) Process(ctx context.Context, responder Responder) (int, error) {
	answered := 0
	for _, key := range d.Pending() {
		box, ok := d.Box(key)
		if !ok {
			continue
		}
		answer, err := responder(ctx, box)
		if err != nil {
			return answered, fmt.Errorf("responder for box %x: %w", key, err)
		}
		if err := d.Respond(ctx, key, answer); err != nil {
			return answered, err
		}
		answered++
	}
	return answered, nil
}
