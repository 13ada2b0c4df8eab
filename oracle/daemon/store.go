package daemon

import (
	"encoding/binary"
	"encoding/json"
	"sync"

	tmdb "github.com/tendermint/tm-db"

	"github.com/GPTx-global/gora/oracle/worker"
	"github.com/GPTx-global/gora/x/gora/types"
)

var (
	prefixPreview   = []byte{0x01}
	keyPreviewCount = []byte{0x02}
)

func previewKey(id uint64) []byte {
	return append(append([]byte{}, prefixPreview...), types.IDToBytes(id)...)
}

// previewStore keeps every preview report so it can be fetched again by id.
type previewStore struct {
	db  tmdb.DB
	mtx sync.Mutex
}

func (s *previewStore) save(report *worker.Report) (uint64, error) {
	bz, err := json.Marshal(report)
	if err != nil {
		return 0, err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	countBz, err := s.db.Get(keyPreviewCount)
	if err != nil {
		return 0, err
	}
	id := uint64(1)
	if len(countBz) == 8 {
		id = binary.BigEndian.Uint64(countBz) + 1
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(previewKey(id), bz); err != nil {
		return 0, err
	}
	if err := batch.Set(keyPreviewCount, types.IDToBytes(id)); err != nil {
		return 0, err
	}
	if err := batch.WriteSync(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *previewStore) get(id uint64) (*worker.Report, error) {
	bz, err := s.db.Get(previewKey(id))
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, types.ErrNotFound.Wrapf("preview %d", id)
	}

	var report worker.Report
	if err := json.Unmarshal(bz, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
