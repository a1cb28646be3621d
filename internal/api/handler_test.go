package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Apollack123/charge-audit-bot2/internal/calculator"
	"github.com/Apollack123/charge-audit-bot2/internal/config"
	"github.com/Apollack123/charge-audit-bot2/internal/importer"
	"github.com/Apollack123/charge-audit-bot2/internal/model"
	"github.com/Apollack123/charge-audit-bot2/internal/parser"
	"github.com/Apollack123/charge-audit-bot2/internal/service/audit"
	"github.com/Apollack123/charge-audit-bot2/internal/service/report"
)

const chargesCSV = "Unit,Tenant,Lot Rent,Sewer\nA-1,Jane,210.00,30\nA-2,Bob,420.00,\n"

const movesCSV = "Unit,Move-In Date\nA-1,2024-04-16\n"

func newTestRouter(t *testing.T) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	aliases := parser.DefaultAliases()
	mapper := parser.NewFieldMapper(aliases)
	engine := audit.NewEngine(calculator.NewCalculator(calculator.DefaultBaseRent), audit.DefaultOptions())
	assembler := report.NewAssembler(engine, model.ReportModeStructured, zerolog.Nop())
	coordinator := importer.NewCoordinator(mapper, assembler, importer.Options{})

	h := NewHandler(cfg, coordinator, assembler, aliases, zerolog.Nop())
	r := gin.New()
	h.RegisterRoutes(r.Group("/api"))
	return r, h
}

type upload struct {
	field, name, content string
}

func multipartRequest(t *testing.T, path string, uploads []upload, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, u := range uploads {
		fw, err := w.CreateFormFile(u.field, u.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(u.content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

type auditResponseBody struct {
	BatchID      string `json:"batchId"`
	AuditedFiles int    `json:"auditedFiles"`
	FailedFiles  int    `json:"failedFiles"`
	MoveEvents   int    `json:"moveEvents"`
	WorkbookURL  string `json:"workbookUrl"`
	Files        []struct {
		FileName    string      `json:"fileName"`
		Status      string      `json:"status"`
		Error       string      `json:"error"`
		Preview     model.Table `json:"preview"`
		DownloadURL string      `json:"downloadUrl"`
	} `json:"files"`
}

func TestAudit_MixedBatch(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	req := multipartRequest(t, "/api/audit", []upload{
		{"file", "april.csv", chargesCSV},
		{"file", "broken.xlsx", "not a workbook"},
		{"moveEvents", "moves.csv", movesCSV},
	}, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body auditResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.BatchID)
	assert.Equal(t, 1, body.AuditedFiles)
	assert.Equal(t, 1, body.FailedFiles)
	assert.Equal(t, 1, body.MoveEvents)
	assert.NotEmpty(t, body.WorkbookURL)

	require.Len(t, body.Files, 2)
	april := body.Files[0]
	assert.Equal(t, "audited", april.Status)
	require.Len(t, april.Preview.Rows, 2)
	assert.Equal(t, "Matched", april.Preview.Rows[0][5])
	assert.NotEmpty(t, april.DownloadURL)

	assert.Equal(t, "error", body.Files[1].Status)
	assert.Empty(t, body.Files[1].DownloadURL)

	dl := httptest.NewRecorder()
	r.ServeHTTP(dl, httptest.NewRequest(http.MethodGet, april.DownloadURL, nil))
	require.Equal(t, http.StatusOK, dl.Code)
	assert.Contains(t, dl.Header().Get("Content-Disposition"), "april.csv_audit.csv")
	assert.True(t, strings.HasPrefix(dl.Body.String(), "Unit,Tenant,Move-In Date"))

	// 保留期内可重复下载
	again := httptest.NewRecorder()
	r.ServeHTTP(again, httptest.NewRequest(http.MethodGet, april.DownloadURL, nil))
	assert.Equal(t, http.StatusOK, again.Code)

	wb := httptest.NewRecorder()
	r.ServeHTTP(wb, httptest.NewRequest(http.MethodGet, body.WorkbookURL, nil))
	require.Equal(t, http.StatusOK, wb.Code)
	assert.Equal(t, contentTypeXLSX, wb.Header().Get("Content-Type"))
	assert.Contains(t, wb.Header().Get("Content-Disposition"), body.BatchID)

	summary := httptest.NewRecorder()
	r.ServeHTTP(summary, httptest.NewRequest(http.MethodGet, "/api/audit/batches/"+body.BatchID, nil))
	require.Equal(t, http.StatusOK, summary.Code)
	var stored model.BatchReport
	require.NoError(t, json.Unmarshal(summary.Body.Bytes(), &stored))
	assert.Equal(t, body.BatchID, stored.BatchID)
	assert.Equal(t, 1, stored.FailedFiles)
}

func TestAudit_PassthroughMode(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	req := multipartRequest(t, "/api/audit", []upload{{"file", "april.csv", chargesCSV}},
		map[string]string{"mode": "passthrough"})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body auditResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	cols := body.Files[0].Preview.Columns
	assert.Equal(t, "Audit Result", cols[len(cols)-1])
	assert.Equal(t, "MissingSewerFee", body.Files[0].Preview.Rows[1][len(cols)-1])
}

func TestAudit_BadRequests(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	cases := []*http.Request{
		multipartRequest(t, "/api/audit", nil, nil),
		multipartRequest(t, "/api/audit", []upload{{"file", "a.csv", chargesCSV}}, map[string]string{"mode": "fancy"}),
		multipartRequest(t, "/api/audit", []upload{
			{"file", "a.csv", chargesCSV},
			{"moveEvents", "moves.csv", "Unit,Tenant\nA-1,Jane\n"},
		}, nil),
		httptest.NewRequest(http.MethodPost, "/api/audit", strings.NewReader("{}")),
	}
	for i, req := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "case %d: %s", i, rec.Body.String())
	}
}

func TestAuditStream_SendsEvents(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)
	req := multipartRequest(t, "/api/audit/stream", []upload{{"file", "april.csv", chargesCSV}}, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var types []string
	var last map[string]any
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt))
		types = append(types, evt["type"].(string))
		last = evt
	}
	assert.Equal(t, []string{"start", "file_start", "file_done", "done"}, types)

	data, ok := last["data"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, data["workbookUrl"])
}

func TestGetStatusAndConfig(t *testing.T) {
	t.Parallel()

	r, h := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 0, status.BatchesProcessed)

	h.recordBatch(&model.BatchReport{BatchID: "b-1", TotalFiles: 2})
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 1, status.BatchesProcessed)
	assert.Equal(t, "b-1", status.LastBatchID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg ConfigResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 420.0, cfg.Audit.BaseRent)
	assert.Contains(t, cfg.Aliases["lot_rent"], "lotr")
	assert.Len(t, cfg.Verdicts, 8)
}

func TestDownload_UnknownBatchOrFile(t *testing.T) {
	t.Parallel()

	r, h := newTestRouter(t)
	h.results.save(&model.BatchReport{BatchID: "b-1"}, map[string][]byte{"f-1": []byte("Unit\n")}, nil)

	cases := map[string]int{
		"/api/audit/batches/nope":              http.StatusNotFound,
		"/api/audit/batches/nope/workbook":     http.StatusNotFound,
		"/api/audit/batches/b-1/workbook":      http.StatusNotFound,
		"/api/audit/batches/b-1/files/x/csv":   http.StatusNotFound,
		"/api/audit/batches/b-1/files/f-1/csv": http.StatusOK,
		"/api/audit/batches/b-1":               http.StatusOK,
	}
	for path, want := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}
}

func TestContentDisposition(t *testing.T) {
	t.Parallel()

	got := contentDisposition("四月 charges.csv")
	assert.True(t, strings.HasPrefix(got, `attachment; filename="__ charges.csv"`), got)
	assert.Contains(t, got, "filename*=UTF-8''%E5%9B%9B%E6%9C%88%20charges.csv")
}
