package runtime

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/GPTx-global/gora/x/gora/types"
)

// CallHandler executes an app call against the app's own logic.
type CallHandler func(ctx context.Context, call types.AppCall) error

type app struct {
	id      uint64
	creator types.Address
	handler atomic.Pointer[CallHandler]
}

// Ledger is an in-memory ledger runtime. It tracks which account deployed
// each app and routes cross-app calls to the registered handlers. App ids
// start at 1.
type Ledger struct {
	apps   cmap.ConcurrentMap[string, *app]
	lastID atomic.Uint64
}

var _ types.Runtime = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{apps: cmap.New[*app]()}
}

func appKey(appID uint64) string {
	return strconv.FormatUint(appID, 10)
}

// CreateApp deploys an app on behalf of creator. A nil handler accepts
// every call without doing anything.
func (l *Ledger) CreateApp(creator types.Address, handler CallHandler) uint64 {
	a := &app{id: l.lastID.Add(1), creator: creator}
	if handler != nil {
		a.handler.Store(&handler)
	}
	l.apps.Set(appKey(a.id), a)
	return a.id
}

// SetHandler replaces the logic of an existing app.
func (l *Ledger) SetHandler(appID uint64, handler CallHandler) error {
	a, ok := l.apps.Get(appKey(appID))
	if !ok {
		return fmt.Errorf("application %d does not exist", appID)
	}
	a.handler.Store(&handler)
	return nil
}

// CallApp runs the target app's handler synchronously.
func (l *Ledger) CallApp(ctx context.Context, call types.AppCall) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a, ok := l.apps.Get(appKey(call.AppID))
	if !ok {
		return fmt.Errorf("application %d does not exist", call.AppID)
	}
	if call.SenderAppID != 0 && !l.apps.Has(appKey(call.SenderAppID)) {
		return fmt.Errorf("sender application %d does not exist", call.SenderAppID)
	}

	h := a.handler.Load()
	if h == nil || *h == nil {
		return nil
	}
	return (*h)(ctx, call)
}

func (l *Ledger) AppCreator(_ context.Context, appID uint64) (types.Address, error) {
	a, ok := l.apps.Get(appKey(appID))
	if !ok {
		return types.Address{}, fmt.Errorf("application %d does not exist", appID)
	}
	return a.creator, nil
}

// AppCount returns the number of deployed apps.
func (l *Ledger) AppCount() int {
	return l.apps.Count()
}
