package model

import "time"

// ReportMode 报告输出模式
type ReportMode string

const (
	ReportModePassthrough ReportMode = "passthrough" // 透传原始列 + 审计列
	ReportModeStructured  ReportMode = "structured"  // 固定结构
)

// DepositPolicy 押金缺失判定口径
type DepositPolicy string

const (
	DepositPolicyEmpty       DepositPolicy = "empty"        // 仅空值
	DepositPolicyNonPositive DepositPolicy = "non_positive" // 空值或金额 <= 0
)

// FileStatus 文件处理状态
type FileStatus string

const (
	FileStatusAudited FileStatus = "audited"
	FileStatusError   FileStatus = "error"
)

// FileReport 单个文件的审计结果
type FileReport struct {
	FileID      string          `json:"fileId"`
	FileName    string          `json:"fileName"`
	Checksum    string          `json:"checksum,omitempty"`
	Duplicate   bool            `json:"duplicate,omitempty"`
	SheetName   string          `json:"sheetName,omitempty"`
	Status      FileStatus      `json:"status"`
	Error       string          `json:"error,omitempty"`
	HeaderFound bool            `json:"headerFound"`
	HeaderRow   int             `json:"headerRow,omitempty"` // 表头行号（从 1 开始）
	RecordCount int             `json:"recordCount"`
	Verdicts    map[Verdict]int `json:"verdicts,omitempty"`
	Duration    time.Duration   `json:"duration"`

	Records []*Record `json:"-"`
	Table   Table     `json:"-"`
}

// BatchReport 一次批量审计的结果
type BatchReport struct {
	BatchID      string        `json:"batchId"`
	TotalFiles   int           `json:"totalFiles"`
	AuditedFiles int           `json:"auditedFiles"`
	FailedFiles  int           `json:"failedFiles"`
	TotalRecords int           `json:"totalRecords"`
	MoveEvents   int           `json:"moveEvents"`
	Duration     time.Duration `json:"duration"`
	Files        []*FileReport `json:"files"`
}
