package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Apollack123/charge-audit-bot2/internal/exporter"
	"github.com/Apollack123/charge-audit-bot2/internal/importer"
	"github.com/Apollack123/charge-audit-bot2/internal/model"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var errNoFiles = errors.New("no files uploaded")

// FileResult 单文件结果：摘要 + 预览 + 下载地址
type FileResult struct {
	*model.FileReport
	Preview     model.Table `json:"preview"`
	DownloadURL string      `json:"downloadUrl,omitempty"`
}

// AuditResponse 批量审计响应
type AuditResponse struct {
	*model.BatchReport
	Files       []FileResult `json:"files"`
	WorkbookURL string       `json:"workbookUrl,omitempty"`
}

// auditRequest 解析后的上传内容
type auditRequest struct {
	sources []importer.Source
	events  model.MoveEvents
	mode    model.ReportMode
}

func (h *Handler) parseAuditRequest(c *gin.Context) (*auditRequest, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}

	files := form.File["file"]
	if len(files) == 0 {
		return nil, errNoFiles
	}

	req := &auditRequest{sources: make([]importer.Source, 0, len(files))}
	for _, fh := range files {
		src := importer.Source{Name: fh.Filename}
		if data, err := readUpload(fh); err == nil {
			src.Data = data
		} else {
			h.logger.Warn().Str("file", fh.Filename).Err(err).Msg("read upload failed")
		}
		req.sources = append(req.sources, src)
	}

	switch mode := model.ReportMode(strings.TrimSpace(c.PostForm("mode"))); mode {
	case "":
	case model.ReportModeStructured, model.ReportModePassthrough:
		req.mode = mode
	default:
		return nil, fmt.Errorf("unknown report mode %q", mode)
	}

	// 入住文件必须在任何审计开始前完整读取
	if moves := form.File["moveEvents"]; len(moves) > 0 {
		if len(moves) > 1 {
			return nil, errors.New("at most one move events file is allowed")
		}
		data, err := readUpload(moves[0])
		if err != nil {
			return nil, fmt.Errorf("read move events: %w", err)
		}
		events, err := h.coordinator.LoadMoveEvents(c.Request.Context(), importer.Source{Name: moves[0].Filename, Data: data})
		if err != nil {
			return nil, err
		}
		req.events = events
	}
	return req, nil
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// Audit 上传并审计
// POST /api/audit
func (h *Handler) Audit(c *gin.Context) {
	req, err := h.parseAuditRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	batch := h.coordinator.Run(c.Request.Context(), req.sources, req.events, nil)
	c.JSON(http.StatusOK, h.finishBatch(batch, req.mode))
}

// AuditStream 上传并审计 (SSE 流式响应)
// POST /api/audit/stream
func (h *Handler) AuditStream(c *gin.Context) {
	req, err := h.parseAuditRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	// 设置 SSE 响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	for event := range h.coordinator.Stream(ctx, req.sources, req.events) {
		if event.Type == "done" {
			if batch, ok := event.Data.(*model.BatchReport); ok {
				event.Data = h.finishBatch(batch, req.mode)
			}
		}
		eventData, err := json.Marshal(event)
		if err != nil {
			continue
		}
		// SSE 格式: data: {json}\n\n
		fmt.Fprintf(c.Writer, "data: %s\n\n", eventData)
		flusher.Flush()
	}
}

// finishBatch 按请求模式成表，保存批次结果并生成预览与下载地址
func (h *Handler) finishBatch(batch *model.BatchReport, mode model.ReportMode) *AuditResponse {
	h.recordBatch(batch)

	assembler := h.assembler.WithMode(mode)
	resp := &AuditResponse{BatchReport: batch, Files: make([]FileResult, 0, len(batch.Files))}
	csvByFile := make(map[string][]byte, len(batch.Files))
	for _, fr := range batch.Files {
		result := FileResult{FileReport: fr}
		if fr.Status == model.FileStatusAudited {
			if assembler != h.assembler {
				fr.Table = assembler.Tabulate(fr.Records)
			}
			result.Preview = preview(fr.Table, h.cfg.Audit.PreviewRows)

			var buf bytes.Buffer
			if err := exporter.WriteCSV(&buf, fr.Table); err != nil {
				h.logger.Error().Str("file", fr.FileName).Str("file_id", fr.FileID).Err(err).Msg("csv export failed")
			} else {
				csvByFile[fr.FileID] = buf.Bytes()
				result.DownloadURL = fileCSVURL(batch.BatchID, fr.FileID)
			}
		}
		resp.Files = append(resp.Files, result)
	}

	var workbook []byte
	if batch.AuditedFiles > 0 {
		var buf bytes.Buffer
		if err := h.exporter.WriteXLSX(&buf, batch, nil); err != nil {
			h.logger.Error().Str("batch_id", batch.BatchID).Err(err).Msg("xlsx export failed")
		} else {
			workbook = buf.Bytes()
			resp.WorkbookURL = workbookURL(batch.BatchID)
		}
	}
	h.results.save(batch, csvByFile, workbook)
	return resp
}

func preview(t model.Table, limit int) model.Table {
	if limit <= 0 || len(t.Rows) <= limit {
		return t
	}
	return model.Table{Columns: t.Columns, Rows: t.Rows[:limit]}
}

func batchURL(batchID string) string {
	return "/api/audit/batches/" + batchID
}

func fileCSVURL(batchID, fileID string) string {
	return batchURL(batchID) + "/files/" + fileID + "/csv"
}

func workbookURL(batchID string) string {
	return batchURL(batchID) + "/workbook"
}

// GetBatch 批次摘要
// GET /api/audit/batches/:batchId
func (h *Handler) GetBatch(c *gin.Context) {
	batch, ok := h.results.report(c.Param("batchId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found or expired"})
		return
	}
	c.JSON(http.StatusOK, batch)
}

// DownloadFileCSV 下载单个文件的审计 CSV
// GET /api/audit/batches/:batchId/files/:fileId/csv
func (h *Handler) DownloadFileCSV(c *gin.Context) {
	item, ok := h.results.fileCSV(c.Param("batchId"), c.Param("fileId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit result not found or expired"})
		return
	}
	sendArtifact(c, item)
}

// DownloadWorkbook 下载批次汇总工作簿
// GET /api/audit/batches/:batchId/workbook
func (h *Handler) DownloadWorkbook(c *gin.Context) {
	item, ok := h.results.workbook(c.Param("batchId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "workbook not found or expired"})
		return
	}
	sendArtifact(c, item)
}

func sendArtifact(c *gin.Context, item artifact) {
	c.Header("Content-Disposition", contentDisposition(item.fileName))
	c.Data(http.StatusOK, item.contentType, item.data)
}

// contentDisposition 附件头，非 ASCII 文件名使用 RFC 5987 编码
func contentDisposition(name string) string {
	ascii := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	return fmt.Sprintf("attachment; filename=%q; filename*=UTF-8''%s", ascii, url.PathEscape(name))
}
