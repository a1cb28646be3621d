package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Apollack123/charge-audit-bot2/internal/metrics"
	"github.com/Apollack123/charge-audit-bot2/internal/model"
	"github.com/Apollack123/charge-audit-bot2/internal/parser"
	"github.com/Apollack123/charge-audit-bot2/internal/service/excel"
	"github.com/Apollack123/charge-audit-bot2/internal/service/report"
)

const (
	defaultWorkers     = 4
	defaultFileTimeout = 30 * time.Second
)

// ErrFileTimeout 单文件处理超时
var ErrFileTimeout = errors.New("file processing timed out")

// Source 待审计文件；按 Data -> Reader -> Path 的顺序取内容
type Source struct {
	Name   string
	Path   string
	Data   []byte
	Reader io.Reader // 流式内容（例如上传流），读取计入单文件超时
}

// FileSource 以路径构造文件源
func FileSource(path string) Source {
	return Source{Name: filepath.Base(path), Path: path}
}

func (s Source) read() ([]byte, error) {
	if s.Data != nil {
		return s.Data, nil
	}
	if s.Reader != nil {
		data, err := io.ReadAll(s.Reader)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s.Name, err)
		}
		return data, nil
	}
	if s.Path == "" {
		return nil, fmt.Errorf("source %q has no data", s.Name)
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Options 批处理选项
type Options struct {
	Workers     int           // 并行处理的文件数
	FileTimeout time.Duration // 单文件超时
}

// ProgressEvent 进度事件
type ProgressEvent struct {
	Type      string      `json:"type"`    // start/file_start/file_done/file_error/done
	Message   string      `json:"message"` // 事件消息
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Coordinator 批量审计协调器
type Coordinator struct {
	mapper    *parser.FieldMapper
	assembler *report.Assembler
	opts      Options
	metrics   *metrics.Manager
	logger    zerolog.Logger
}

// CoordinatorOption 协调器选项
type CoordinatorOption func(*Coordinator)

// WithMetrics 设置指标管理器
func WithMetrics(m *metrics.Manager) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithLogger 设置日志
func WithLogger(logger zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator 创建协调器
func NewCoordinator(mapper *parser.FieldMapper, assembler *report.Assembler, opts Options, options ...CoordinatorOption) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.FileTimeout <= 0 {
		opts.FileTimeout = defaultFileTimeout
	}
	c := &Coordinator{
		mapper:    mapper,
		assembler: assembler,
		opts:      opts,
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Stream 异步执行批量审计，返回进度通道；最后一个事件为 done，Data 为 *model.BatchReport
func (c *Coordinator) Stream(ctx context.Context, sources []Source, events model.MoveEvents) <-chan ProgressEvent {
	progressChan := make(chan ProgressEvent, 100)

	go func() {
		defer close(progressChan)
		c.Run(ctx, sources, events, func(e ProgressEvent) {
			select {
			case progressChan <- e:
			case <-ctx.Done():
			}
		})
	}()

	return progressChan
}

// Run 批量审计：文件之间相互独立，单个文件失败只记录错误，不影响其余文件
func (c *Coordinator) Run(ctx context.Context, sources []Source, events model.MoveEvents, progress func(ProgressEvent)) *model.BatchReport {
	start := time.Now()
	batch := &model.BatchReport{
		BatchID:    uuid.New().String(),
		TotalFiles: len(sources),
		MoveEvents: len(events),
		Files:      make([]*model.FileReport, len(sources)),
	}
	log := c.logger.With().Str("batch_id", batch.BatchID).Logger()

	var mu sync.Mutex
	send := func(e ProgressEvent) {
		if progress == nil {
			return
		}
		e.Timestamp = time.Now()
		mu.Lock()
		defer mu.Unlock()
		progress(e)
	}

	send(ProgressEvent{
		Type:    "start",
		Message: fmt.Sprintf("auditing %d file(s)", len(sources)),
		Data: map[string]interface{}{
			"batch_id":    batch.BatchID,
			"total_files": len(sources),
			"move_events": len(events),
		},
	})
	c.metrics.RecordBatch(len(events))

	var g errgroup.Group
	g.SetLimit(c.opts.Workers)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			send(ProgressEvent{
				Type:    "file_start",
				Message: fmt.Sprintf("processing %s", src.Name),
				Data:    map[string]interface{}{"file_name": src.Name, "index": i},
			})

			fr := c.processWithTimeout(ctx, src, events)
			batch.Files[i] = fr
			c.recordFileMetrics(fr)

			if fr.Status == model.FileStatusError {
				log.Warn().Str("file", fr.FileName).Str("file_id", fr.FileID).Str("error", fr.Error).Msg("file failed")
				send(ProgressEvent{
					Type:    "file_error",
					Message: fmt.Sprintf("%s: %s", src.Name, fr.Error),
					Data:    fr,
				})
				return nil
			}
			log.Info().Str("file", fr.FileName).Str("file_id", fr.FileID).Int("records", fr.RecordCount).
				Dur("duration", fr.Duration).Msg("file audited")
			send(ProgressEvent{
				Type:    "file_done",
				Message: fmt.Sprintf("%s: %d record(s) audited", src.Name, fr.RecordCount),
				Data:    fr,
			})
			return nil
		})
	}
	_ = g.Wait()

	markDuplicates(batch.Files)
	for _, fr := range batch.Files {
		if fr.Status == model.FileStatusError {
			batch.FailedFiles++
			continue
		}
		batch.AuditedFiles++
		batch.TotalRecords += fr.RecordCount
	}
	batch.Duration = time.Since(start)

	send(ProgressEvent{
		Type:    "done",
		Message: fmt.Sprintf("audited %d file(s), %d failed", batch.AuditedFiles, batch.FailedFiles),
		Data:    batch,
	})
	return batch
}

// processWithTimeout 在超时或取消时放弃等待，返回错误报告
func (c *Coordinator) processWithTimeout(ctx context.Context, src Source, events model.MoveEvents) *model.FileReport {
	start := time.Now()
	fctx, cancel := context.WithTimeout(ctx, c.opts.FileTimeout)
	defer cancel()

	done := make(chan *model.FileReport, 1)
	go func() {
		done <- c.processSource(fctx, src, events)
	}()

	select {
	case fr := <-done:
		return fr
	case <-fctx.Done():
		err := fctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrFileTimeout, c.opts.FileTimeout)
		}
		fr := newFileReport(src.Name)
		fail(fr, err)
		fr.Duration = time.Since(start)
		return fr
	}
}

func (c *Coordinator) processSource(ctx context.Context, src Source, events model.MoveEvents) (fr *model.FileReport) {
	start := time.Now()
	fr = newFileReport(src.Name)
	defer func() {
		if r := recover(); r != nil {
			fail(fr, fmt.Errorf("panic: %v", r))
		}
		fr.Duration = time.Since(start)
	}()

	data, err := src.read()
	if err != nil {
		fail(fr, err)
		return fr
	}
	fr.Checksum = fmt.Sprintf("%016x", xxhash.Sum64(data))

	if err := ctx.Err(); err != nil {
		fail(fr, err)
		return fr
	}
	wb, err := excel.LoadWorkbookContext(ctx, bytes.NewReader(data), src.Name)
	if err != nil {
		fail(fr, err)
		return fr
	}

	sheet := wb.SelectSheet(c.mapper.HeaderTokens())
	fr.SheetName = sheet.Name
	c.ProcessGrid(ctx, fr, sheet.Grid, events)
	return fr
}

// ProcessGrid 对单个网格执行 定位表头 -> 解析列 -> 抽取记录 -> 联表审计 -> 成表
// ctx 取消时文件记为失败，已抽取的记录丢弃
func (c *Coordinator) ProcessGrid(ctx context.Context, fr *model.FileReport, grid model.RawGrid, events model.MoveEvents) {
	loc, err := parser.LocateHeader(grid, c.mapper.HeaderTokens())
	if err != nil {
		c.logger.Debug().Str("file", fr.FileName).Msg("header not found, using first row")
		loc = parser.FallbackHeader(grid)
	} else {
		fr.HeaderFound = true
		fr.HeaderRow = loc.Index + 1
	}

	hm := c.mapper.Resolve(loc.Header)
	records, err := parser.ExtractRecordsContext(ctx, loc, hm)
	if err != nil {
		fail(fr, err)
		return
	}
	if err := ctx.Err(); err != nil {
		fail(fr, err)
		return
	}

	fr.Table = c.assembler.Assemble(records, events)
	fr.Records = records
	fr.RecordCount = len(records)
	fr.Verdicts = make(map[model.Verdict]int)
	for _, r := range records {
		fr.Verdicts[r.Verdict]++
	}
	fr.Status = model.FileStatusAudited
}

func (c *Coordinator) recordFileMetrics(fr *model.FileReport) {
	c.metrics.RecordFile(string(fr.Status), fr.RecordCount, fr.Duration)
	if len(fr.Verdicts) == 0 {
		return
	}
	counts := make(map[string]int, len(fr.Verdicts))
	for v, n := range fr.Verdicts {
		counts[string(v)] = n
	}
	c.metrics.RecordVerdicts(counts)
}

func newFileReport(name string) *model.FileReport {
	return &model.FileReport{
		FileID:   uuid.New().String(),
		FileName: name,
	}
}

func fail(fr *model.FileReport, err error) {
	fr.Status = model.FileStatusError
	fr.Error = err.Error()
	fr.Records = nil
	fr.Table = model.Table{}
}

// markDuplicates 内容相同的文件，第一个之后的标记为重复
func markDuplicates(files []*model.FileReport) {
	seen := make(map[string]bool, len(files))
	for _, fr := range files {
		if fr.Checksum == "" {
			continue
		}
		if seen[fr.Checksum] {
			fr.Duplicate = true
			continue
		}
		seen[fr.Checksum] = true
	}
}

// OrderedVerdicts 按结论定义顺序返回出现过的结论
func OrderedVerdicts(counts map[model.Verdict]int) []model.Verdict {
	out := make([]model.Verdict, 0, len(counts))
	for _, v := range model.AllVerdicts() {
		if counts[v] > 0 {
			out = append(out, v)
		}
	}
	return out
}
