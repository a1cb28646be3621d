package api

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Apollack123/charge-audit-bot2/internal/config"
	"github.com/Apollack123/charge-audit-bot2/internal/exporter"
	"github.com/Apollack123/charge-audit-bot2/internal/importer"
	"github.com/Apollack123/charge-audit-bot2/internal/model"
	"github.com/Apollack123/charge-audit-bot2/internal/parser"
	"github.com/Apollack123/charge-audit-bot2/internal/service/report"
)

// Handler API 处理器
type Handler struct {
	cfg         *config.AppConfig
	coordinator *importer.Coordinator
	assembler   *report.Assembler
	aliases     parser.AliasSet
	exporter    *exporter.Exporter
	results     *resultStore
	logger      zerolog.Logger
	startedAt   time.Time

	mu        sync.Mutex
	batches   int
	lastBatch *model.BatchReport
}

// NewHandler 创建 API 处理器
func NewHandler(cfg *config.AppConfig, coordinator *importer.Coordinator, assembler *report.Assembler, aliases parser.AliasSet, logger zerolog.Logger) *Handler {
	return &Handler{
		cfg:         cfg,
		coordinator: coordinator,
		assembler:   assembler,
		aliases:     aliases,
		exporter:    exporter.NewExporter(),
		results:     newResultStore(resultTTL, resultLimit),
		logger:      logger,
		startedAt:   time.Now(),
	}
}

// RegisterRoutes 注册 API 路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// 系统状态
	router.GET("/status", h.GetStatus)
	// 审计口径与别名
	router.GET("/config", h.GetConfig)

	// 上传审计
	router.POST("/audit", h.Audit)
	router.POST("/audit/stream", h.AuditStream)
	router.GET("/audit/batches/:batchId", h.GetBatch)
	router.GET("/audit/batches/:batchId/files/:fileId/csv", h.DownloadFileCSV)
	router.GET("/audit/batches/:batchId/workbook", h.DownloadWorkbook)
}

func (h *Handler) recordBatch(batch *model.BatchReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches++
	h.lastBatch = batch
}
