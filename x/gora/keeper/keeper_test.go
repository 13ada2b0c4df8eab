package keeper_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"

	"github.com/GPTx-global/gora/x/gora/builder"
	"github.com/GPTx-global/gora/x/gora/keeper"
	"github.com/GPTx-global/gora/x/gora/types"
)

const (
	dispatcherAppID = uint64(1)
	responderAppID  = uint64(2)
	strangerAppID   = uint64(3)
	selfAppID       = uint64(100)
)

type mockRuntime struct {
	mu       sync.Mutex
	calls    []types.AppCall
	callErr  error
	creators map[uint64]types.Address
}

func (m *mockRuntime) CallApp(_ context.Context, call types.AppCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return m.callErr
}

func (m *mockRuntime) AppCreator(_ context.Context, appID uint64) (types.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	creator, ok := m.creators[appID]
	if !ok {
		return types.Address{}, errors.New("application does not exist")
	}
	return creator, nil
}

func (m *mockRuntime) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var errDiskFull = errors.New("disk full")

// faultyDB fails reads of failGet and every batch write.
type faultyDB struct {
	tmdb.DB
	failGet   []byte
	failBatch bool
}

func (db *faultyDB) Get(key []byte) ([]byte, error) {
	if db.failGet != nil && bytes.Equal(key, db.failGet) {
		return nil, errDiskFull
	}
	return db.DB.Get(key)
}

func (db *faultyDB) NewBatch() tmdb.Batch {
	batch := db.DB.NewBatch()
	if db.failBatch {
		return &faultyBatch{Batch: batch}
	}
	return batch
}

type faultyBatch struct {
	tmdb.Batch
}

func (b *faultyBatch) Write() error     { return errDiskFull }
func (b *faultyBatch) WriteSync() error { return errDiskFull }

type KeeperTestSuite struct {
	suite.Suite

	ctx     context.Context
	runtime *mockRuntime
	params  types.Params
	keeper  *keeper.Keeper
}

func TestKeeperTestSuite(t *testing.T) {
	suite.Run(t, new(KeeperTestSuite))
}

func (s *KeeperTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.params = types.NewParams(dispatcherAppID, types.DefaultHashAlgorithm)
	s.runtime = &mockRuntime{
		creators: map[uint64]types.Address{
			responderAppID: s.params.DispatcherIdentity,
			strangerAppID:  types.ApplicationAddress(42),
		},
	}
	s.keeper = s.newKeeper(s.params)
}

func (s *KeeperTestSuite) newKeeper(params types.Params) *keeper.Keeper {
	k, err := keeper.NewKeeper(tmdb.NewMemDB(), s.runtime, params, selfAppID, log.NewNopLogger())
	s.Require().NoError(err)
	return k
}

func (s *KeeperTestSuite) requireRequestCount(k *keeper.Keeper, expected uint64) {
	count, err := k.GetRequestCount()
	s.Require().NoError(err)
	s.Require().Equal(expected, count)
}

func (s *KeeperTestSuite) classicSpec() []byte {
	bz, err := builder.BuildClassicRequest([]map[string]any{
		{"id": 7, "args": []string{"##signKey", "btc", "usd"}},
		{"id": 7, "args": []string{"##signKey", "eth", "usd"}},
	}, types.AggregationMaximum, nil)
	s.Require().NoError(err)
	return bz
}

func (s *KeeperTestSuite) TestNewKeeperRejectsBadParams() {
	_, err := keeper.NewKeeper(tmdb.NewMemDB(), s.runtime, types.DefaultParams(), selfAppID, nil)
	s.Require().ErrorIs(err, types.ErrInvalidParams)

	_, err = keeper.NewKeeper(tmdb.NewMemDB(), s.runtime, s.params, 0, nil)
	s.Require().ErrorIs(err, types.ErrInvalidParams)
}

func (s *KeeperTestSuite) TestSubmitRequest() {
	requestKey := []byte("0123456789abcdef")
	msg := types.NewMsgRequest(types.RequestTypeClassic, s.classicSpec(), "handle_oracle_classic", requestKey)

	res, err := s.keeper.SubmitRequest(s.ctx, msg)
	s.Require().NoError(err)
	s.Require().Equal(1, s.runtime.callCount())

	call := s.runtime.calls[0]
	s.Require().Equal(dispatcherAppID, call.AppID)
	s.Require().Equal(selfAppID, call.SenderAppID)

	decoded, err := types.UnmarshalRequestCall(call.Args)
	s.Require().NoError(err)
	s.Require().Equal(msg.RequestSpec, decoded.RequestSpec)
	s.Require().Equal(types.RequestTypeClassic, decoded.RequestType)
	s.Require().Equal(requestKey, decoded.RequestKey)

	var dest types.DestinationSpec
	s.Require().NoError(dest.Unmarshal(decoded.Destination))
	s.Require().Equal(selfAppID, dest.AppID)
	s.Require().Equal([]byte("handle_oracle_classic"), dest.Method)

	wantBox, err := types.DeriveBoxKey(types.HashSHA512_256, types.ApplicationAddress(selfAppID), requestKey)
	s.Require().NoError(err)
	s.Require().Equal(wantBox, res.BoxKey)

	pending, err := s.keeper.GetPendingRequest(res.BoxKey)
	s.Require().NoError(err)
	s.Require().Equal(requestKey, pending.RequestKey)
	s.Require().Equal(uint64(1), pending.Sequence)
	s.requireRequestCount(s.keeper, 1)
}

func (s *KeeperTestSuite) TestSubmitRequestExplicitDestination() {
	msg := types.NewMsgRequest(types.RequestTypeClassic, s.classicSpec(), "on_price", types.NewRequestKey())
	msg.DestAppID = 555
	msg.BoxRefs = []types.BoxRef{{Key: []byte("box"), AppID: dispatcherAppID}}

	_, err := s.keeper.SubmitRequest(s.ctx, msg)
	s.Require().NoError(err)

	decoded, err := types.UnmarshalRequestCall(s.runtime.calls[0].Args)
	s.Require().NoError(err)
	s.Require().Equal(msg.BoxRefs, decoded.BoxRefs)

	var dest types.DestinationSpec
	s.Require().NoError(dest.Unmarshal(decoded.Destination))
	s.Require().Equal(uint64(555), dest.AppID)
}

func (s *KeeperTestSuite) TestSubmitRequestDispatchFailed() {
	s.runtime.callErr = errors.New("insufficient deposit")
	msg := types.NewMsgRequest(types.RequestTypeClassic, s.classicSpec(), "handle_oracle_classic", types.NewRequestKey())

	_, err := s.keeper.SubmitRequest(s.ctx, msg)
	s.Require().ErrorIs(err, types.ErrDispatchFailed)
	s.Require().Contains(err.Error(), "insufficient deposit")
	s.Require().Equal(1, s.runtime.callCount())

	res, err := s.keeper.PendingRequests(s.ctx)
	s.Require().NoError(err)
	s.Require().Empty(res.Pending)
	s.requireRequestCount(s.keeper, 0)
}

func (s *KeeperTestSuite) TestSubmitRequestValidation() {
	testCases := []struct {
		name     string
		malleate func(msg *types.MsgRequest)
		expErr   error
	}{
		{"missing method", func(msg *types.MsgRequest) { msg.DestMethod = nil }, types.ErrMissingField},
		{"missing request key", func(msg *types.MsgRequest) { msg.RequestKey = nil }, types.ErrMissingField},
		{"missing spec", func(msg *types.MsgRequest) { msg.RequestSpec = nil }, types.ErrMissingField},
		{"unknown request type", func(msg *types.MsgRequest) { msg.RequestType = 9 }, types.ErrInvalidRequestType},
		{"spec does not match tag", func(msg *types.MsgRequest) { msg.RequestType = types.RequestTypeURL }, types.ErrMalformedEnvelope},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.SetupTest()
			msg := types.NewMsgRequest(types.RequestTypeClassic, s.classicSpec(), "handle_oracle_classic", types.NewRequestKey())
			tc.malleate(msg)

			_, err := s.keeper.SubmitRequest(s.ctx, msg)
			s.Require().ErrorIs(err, tc.expErr)
			s.Require().Zero(s.runtime.callCount())
		})
	}
}

func (s *KeeperTestSuite) TestConcurrentRequestsUseDistinctBoxes() {
	const n = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		boxes = make(map[[types.BoxKeyLength]byte]struct{})
	)
	spec := s.classicSpec()

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := types.NewMsgRequest(types.RequestTypeClassic, spec, "handle_oracle_classic", types.NewRequestKey())
			res, err := s.keeper.SubmitRequest(s.ctx, msg)
			if err != nil {
				return
			}
			mu.Lock()
			boxes[res.BoxKey] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.Require().Len(boxes, n)
	s.requireRequestCount(s.keeper, n)
	s.Require().Equal(n, s.runtime.callCount())
}

func (s *KeeperTestSuite) TestAuthenticate() {
	testCases := []struct {
		name   string
		appID  uint64
		expErr bool
	}{
		{"deployed by dispatcher", responderAppID, false},
		{"deployed by someone else", strangerAppID, true},
		{"unknown app", 999, true},
		{"no app", 0, true},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			err := s.keeper.Authenticate(s.ctx, tc.appID)
			if tc.expErr {
				s.Require().ErrorIs(err, types.ErrUnauthorizedCaller)
				return
			}
			s.Require().NoError(err)
		})
	}
}

func (s *KeeperTestSuite) responseBody(errorCode uint32, sourceErrors uint64) types.ResponseBody {
	body := types.ResponseBody{
		RequesterAddr: types.ApplicationAddress(selfAppID),
		OracleValue:   []byte("42000.5"),
		UserData:      []byte("btc"),
		ErrorCode:     errorCode,
		SourceErrors:  sourceErrors,
	}
	body.RequestID[0] = 0x01
	return body
}

func (s *KeeperTestSuite) TestHandleCallback() {
	body := s.responseBody(0, 0)
	bz, err := body.Marshal()
	s.Require().NoError(err)

	resp, err := s.keeper.HandleCallback(s.ctx, responderAppID, types.ResponseTypeResult, bz)
	s.Require().NoError(err)
	s.Require().Equal(body, *resp)
	s.Require().NoError(resp.Err())

	// decoding alone stores nothing
	_, found, err := s.keeper.GetLastOracleValue()
	s.Require().NoError(err)
	s.Require().False(found)
}

func (s *KeeperTestSuite) TestHandleCallbackErrors() {
	good, err := s.responseBody(0, 0).Marshal()
	s.Require().NoError(err)

	testCases := []struct {
		name     string
		caller   uint64
		respType uint32
		body     []byte
		expErr   error
	}{
		{"forged caller", strangerAppID, types.ResponseTypeResult, good, types.ErrUnauthorizedCaller},
		{"forged caller with garbage body", strangerAppID, types.ResponseTypeResult, []byte{0xff}, types.ErrUnauthorizedCaller},
		{"unexpected response type", responderAppID, 2, good, types.ErrAssertion},
		{"truncated body", responderAppID, types.ResponseTypeResult, good[:40], types.ErrMalformedEnvelope},
		{"trailing bytes", responderAppID, types.ResponseTypeResult, append(append([]byte{}, good...), 0x00), types.ErrMalformedEnvelope},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			resp, err := s.keeper.HandleCallback(s.ctx, tc.caller, tc.respType, tc.body)
			s.Require().ErrorIs(err, tc.expErr)
			s.Require().Nil(resp)
		})
	}

	_, err = s.keeper.HandleCallback(s.ctx, responderAppID, 0, good)
	site, ok := types.TrapSite(err)
	s.Require().True(ok)
	s.Require().Equal("callback.resp_type", site)
}

func (s *KeeperTestSuite) TestHandleCallbackRequestError() {
	bz, err := s.responseBody(3, 0b101).Marshal()
	s.Require().NoError(err)

	resp, err := s.keeper.HandleCallback(s.ctx, responderAppID, types.ResponseTypeResult, bz)
	s.Require().NoError(err)
	s.Require().ErrorIs(resp.Err(), types.ErrRequestError)
	s.Require().Equal([]int{0, 2}, resp.FailedSources())
}

func (s *KeeperTestSuite) TestHandleDecodedCallback() {
	body := s.responseBody(0, 0)

	resp, err := s.keeper.HandleDecodedCallback(s.ctx, responderAppID, body.RequestID, body.RequesterAddr,
		body.OracleValue, body.UserData, body.ErrorCode, body.SourceErrors)
	s.Require().NoError(err)
	s.Require().Equal(body, *resp)

	_, err = s.keeper.HandleDecodedCallback(s.ctx, strangerAppID, body.RequestID, body.RequesterAddr,
		body.OracleValue, body.UserData, body.ErrorCode, body.SourceErrors)
	s.Require().ErrorIs(err, types.ErrUnauthorizedCaller)
}

func (s *KeeperTestSuite) TestCallbackRecordsResponse() {
	msg := types.NewMsgRequest(types.RequestTypeClassic, s.classicSpec(), "handle_oracle_classic", types.NewRequestKey())
	sub, err := s.keeper.SubmitRequest(s.ctx, msg)
	s.Require().NoError(err)

	body := s.responseBody(0, 0)
	body.RequestID = sub.BoxKey
	bz, err := body.Marshal()
	s.Require().NoError(err)

	res, err := s.keeper.Callback(s.ctx, &types.MsgCallback{
		CallerAppID:  responderAppID,
		ResponseType: types.ResponseTypeResult,
		ResponseBody: bz,
	})
	s.Require().NoError(err)
	s.Require().True(res.Stored)

	value, err := s.keeper.LastOracleValue(s.ctx)
	s.Require().NoError(err)
	s.Require().True(value.Found)
	s.Require().Equal([]byte("42000.5"), value.Value)

	stored, err := s.keeper.Response(s.ctx, &types.QueryResponseRequest{RequestID: sub.BoxKey})
	s.Require().NoError(err)
	s.Require().Equal(body, stored.Response)

	_, err = s.keeper.GetPendingRequest(sub.BoxKey)
	s.Require().ErrorIs(err, types.ErrNotFound)
}

func (s *KeeperTestSuite) TestCallbackRejectedLeavesState() {
	s.Require().NoError(s.keeper.SetLastOracleValue([]byte("before")))

	bz, err := s.responseBody(0, 0).Marshal()
	s.Require().NoError(err)

	_, err = s.keeper.Callback(s.ctx, &types.MsgCallback{
		CallerAppID:  strangerAppID,
		ResponseType: types.ResponseTypeResult,
		ResponseBody: bz,
	})
	s.Require().ErrorIs(err, types.ErrUnauthorizedCaller)

	value, found, err := s.keeper.GetLastOracleValue()
	s.Require().NoError(err)
	s.Require().True(found)
	s.Require().Equal([]byte("before"), value)
}

func (s *KeeperTestSuite) TestCallbackFailedResponseNotStored() {
	params := s.params
	params.StoreFailedResponses = false
	k := s.newKeeper(params)
	s.Require().NoError(k.SetLastOracleValue([]byte("before")))

	body := s.responseBody(1, 0)
	res, err := k.CallbackDecoded(s.ctx, &types.MsgCallbackDecoded{CallerAppID: responderAppID, Body: body})
	s.Require().NoError(err)
	s.Require().False(res.Stored)
	s.Require().True(res.Response.Failed())

	value, _, err := k.GetLastOracleValue()
	s.Require().NoError(err)
	s.Require().Equal([]byte("before"), value)

	// still recorded by request id
	_, err = k.GetResponse(body.RequestID)
	s.Require().NoError(err)
}

func (s *KeeperTestSuite) TestCallbackWriteFailureLeavesState() {
	db := &faultyDB{DB: tmdb.NewMemDB()}
	k, err := keeper.NewKeeper(db, s.runtime, s.params, selfAppID, log.NewNopLogger())
	s.Require().NoError(err)
	s.Require().NoError(k.SetLastOracleValue([]byte("before")))

	msg := types.NewMsgRequest(types.RequestTypeClassic, s.classicSpec(), "handle_oracle_classic", types.NewRequestKey())
	sub, err := k.SubmitRequest(s.ctx, msg)
	s.Require().NoError(err)

	body := s.responseBody(0, 0)
	body.RequestID = sub.BoxKey

	db.failBatch = true
	_, err = k.CallbackDecoded(s.ctx, &types.MsgCallbackDecoded{CallerAppID: responderAppID, Body: body})
	s.Require().ErrorIs(err, errDiskFull)

	_, err = k.GetResponse(sub.BoxKey)
	s.Require().ErrorIs(err, types.ErrNotFound)
	_, err = k.GetPendingRequest(sub.BoxKey)
	s.Require().NoError(err)
	value, _, err := k.GetLastOracleValue()
	s.Require().NoError(err)
	s.Require().Equal([]byte("before"), value)

	db.failBatch = false
	_, err = k.CallbackDecoded(s.ctx, &types.MsgCallbackDecoded{CallerAppID: responderAppID, Body: body})
	s.Require().NoError(err)
	_, err = k.GetPendingRequest(sub.BoxKey)
	s.Require().ErrorIs(err, types.ErrNotFound)
}

func (s *KeeperTestSuite) TestRequestCountReadFailure() {
	db := &faultyDB{DB: tmdb.NewMemDB()}
	k, err := keeper.NewKeeper(db, s.runtime, s.params, selfAppID, log.NewNopLogger())
	s.Require().NoError(err)

	msg := types.NewMsgRequest(types.RequestTypeClassic, s.classicSpec(), "handle_oracle_classic", types.NewRequestKey())
	_, err = k.SubmitRequest(s.ctx, msg)
	s.Require().NoError(err)

	db.failGet = types.KeyRequestCount
	_, err = k.GetRequestCount()
	s.Require().ErrorIs(err, errDiskFull)

	msg = types.NewMsgRequest(types.RequestTypeClassic, s.classicSpec(), "handle_oracle_classic", types.NewRequestKey())
	_, err = k.SubmitRequest(s.ctx, msg)
	s.Require().ErrorIs(err, errDiskFull)

	// the counter was not reset by the failed read
	db.failGet = nil
	s.requireRequestCount(k, 1)
}
