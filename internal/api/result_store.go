package api

import (
	"sync"
	"time"

	"github.com/Apollack123/charge-audit-bot2/internal/exporter"
	"github.com/Apollack123/charge-audit-bot2/internal/model"
)

const (
	resultTTL   = 30 * time.Minute
	resultLimit = 20
)

// artifact 可下载的审计产物
type artifact struct {
	fileName    string
	contentType string
	data        []byte
}

// storedBatch 一个批次的审计结果：摘要 + 各文件 CSV + 汇总工作簿
type storedBatch struct {
	report    *model.BatchReport
	csv       map[string][]byte // FileID -> CSV
	workbook  []byte
	expiresAt time.Time
}

// resultStore 最近批次的审计结果，只在内存中保留，按 TTL 与批次数淘汰
type resultStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	limit   int
	now     func() time.Time
	batches map[string]*storedBatch
	order   []string // BatchID 按保存顺序
}

func newResultStore(ttl time.Duration, limit int) *resultStore {
	return &resultStore{
		ttl:     ttl,
		limit:   limit,
		now:     time.Now,
		batches: make(map[string]*storedBatch),
	}
}

// save 保存批次结果；超出上限时淘汰最早的批次
func (s *resultStore) save(batch *model.BatchReport, csv map[string][]byte, workbook []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.purgeExpiredLocked(now)

	if _, ok := s.batches[batch.BatchID]; !ok {
		s.order = append(s.order, batch.BatchID)
	}
	s.batches[batch.BatchID] = &storedBatch{
		report:    batch,
		csv:       csv,
		workbook:  workbook,
		expiresAt: now.Add(s.ttl),
	}
	for s.limit > 0 && len(s.order) > s.limit {
		delete(s.batches, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *resultStore) lookupLocked(batchID string) (*storedBatch, bool) {
	s.purgeExpiredLocked(s.now())
	b, ok := s.batches[batchID]
	return b, ok
}

// report 批次摘要
func (s *resultStore) report(batchID string) (*model.BatchReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.lookupLocked(batchID)
	if !ok {
		return nil, false
	}
	return b.report, true
}

// fileCSV 单个文件的审计 CSV
func (s *resultStore) fileCSV(batchID, fileID string) (artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.lookupLocked(batchID)
	if !ok {
		return artifact{}, false
	}
	data, ok := b.csv[fileID]
	if !ok {
		return artifact{}, false
	}
	name := fileID + ".csv"
	for _, fr := range b.report.Files {
		if fr.FileID == fileID {
			name = exporter.CSVFileName(fr.FileName)
			break
		}
	}
	return artifact{fileName: name, contentType: contentTypeCSV, data: data}, true
}

// workbook 批次汇总工作簿
func (s *resultStore) workbook(batchID string) (artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.lookupLocked(batchID)
	if !ok || b.workbook == nil {
		return artifact{}, false
	}
	return artifact{fileName: workbookFileName(batchID), contentType: contentTypeXLSX, data: b.workbook}, true
}

// len 保留中的批次数
func (s *resultStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked(s.now())
	return len(s.batches)
}

func (s *resultStore) purgeExpiredLocked(now time.Time) {
	kept := s.order[:0]
	for _, id := range s.order {
		if now.After(s.batches[id].expiresAt) {
			delete(s.batches, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

func workbookFileName(batchID string) string {
	return "charge-audit-" + batchID + ".xlsx"
}
