package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Apollack123/charge-audit-bot2/internal/config"
	"github.com/Apollack123/charge-audit-bot2/internal/model"
)

// StatusResponse 系统状态响应
type StatusResponse struct {
	StartedAt        time.Time `json:"startedAt"`
	Uptime           string    `json:"uptime"`
	BatchesProcessed int       `json:"batchesProcessed"`
	LastBatchID      string    `json:"lastBatchId,omitempty"`
	LastBatchFiles   int       `json:"lastBatchFiles"`
	RetainedBatches  int       `json:"retainedBatches"`
}

// GetStatus 获取系统状态
// GET /api/status
func (h *Handler) GetStatus(c *gin.Context) {
	h.mu.Lock()
	resp := StatusResponse{
		StartedAt:        h.startedAt,
		Uptime:           time.Since(h.startedAt).Round(time.Second).String(),
		BatchesProcessed: h.batches,
	}
	if h.lastBatch != nil {
		resp.LastBatchID = h.lastBatch.BatchID
		resp.LastBatchFiles = h.lastBatch.TotalFiles
	}
	h.mu.Unlock()

	resp.RetainedBatches = h.results.len()
	c.JSON(http.StatusOK, resp)
}

// ConfigResponse 当前审计口径
type ConfigResponse struct {
	Audit    config.AuditConfig  `json:"audit"`
	Aliases  map[string][]string `json:"aliases"`
	Verdicts []model.Verdict     `json:"verdicts"`
}

// GetConfig 获取审计口径与列名别名
// GET /api/config
func (h *Handler) GetConfig(c *gin.Context) {
	aliases := make(map[string][]string, len(h.aliases))
	for _, f := range model.AllFields() {
		aliases[string(f)] = h.aliases.Get(f)
	}
	c.JSON(http.StatusOK, ConfigResponse{
		Audit:    h.cfg.Audit,
		Aliases:  aliases,
		Verdicts: model.AllVerdicts(),
	})
}
