package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Apollack123/charge-audit-bot2/internal/model"
)

const (
	summarySheet  = "Summary"
	maxSheetName  = 31
	highlightFill = "#FDE2E1"
	headerFill    = "#E2E8F0"
)

// CSVFileName 单文件审计结果的下载文件名
func CSVFileName(fileName string) string {
	return fileName + "_audit.csv"
}

// WriteCSV 以 UTF-8 逗号分隔写出表格（含表头）
func WriteCSV(w io.Writer, table model.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(table.Rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

// Exporter 审计结果工作簿导出器
type Exporter struct{}

// NewExporter 创建导出器
func NewExporter() *Exporter {
	return &Exporter{}
}

// Export 生成工作簿：Summary 汇总表 + 每个审计成功的文件一张表，未通过的行高亮
func (e *Exporter) Export(batch *model.BatchReport, progress func(ProgressEvent)) (*excelize.File, error) {
	f := excelize.NewFile()
	reportProgress(progress, 5, "prepare")

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		_ = f.Close()
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerFill}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	flagStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{highlightFill}, Pattern: 1},
	})
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	if err := writeSummary(f, batch, headerStyle); err != nil {
		_ = f.Close()
		return nil, err
	}
	reportProgress(progress, 15, "summary")

	used := map[string]bool{strings.ToLower(summarySheet): true}
	total := len(batch.Files)
	for i, fr := range batch.Files {
		if fr == nil || fr.Status != model.FileStatusAudited {
			continue
		}
		name := uniqueSheetName(fr.FileName, used)
		if _, err := f.NewSheet(name); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
		if err := writeFileSheet(f, name, fr, headerStyle, flagStyle); err != nil {
			_ = f.Close()
			return nil, err
		}
		reportProgress(progress, 15+80*(i+1)/max(total, 1), "sheet:"+name)
	}

	f.SetActiveSheet(0)
	reportProgress(progress, 100, "done")
	return f, nil
}

// WriteXLSX 导出并写入 w
func (e *Exporter) WriteXLSX(w io.Writer, batch *model.BatchReport, progress func(ProgressEvent)) error {
	f, err := e.Export(batch, progress)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, batch *model.BatchReport, headerStyle int) error {
	verdicts := model.AllVerdicts()
	header := []interface{}{"File", "Sheet", "Status", "Header Row", "Records", "Duplicate", "Error"}
	for _, v := range verdicts {
		header = append(header, string(v))
	}
	if err := f.SetSheetRow(summarySheet, "A1", &header); err != nil {
		return err
	}
	if err := f.SetRowStyle(summarySheet, 1, 1, headerStyle); err != nil {
		return err
	}

	for i, fr := range batch.Files {
		if fr == nil {
			continue
		}
		headerRow := interface{}("")
		if fr.HeaderFound {
			headerRow = fr.HeaderRow
		}
		row := []interface{}{fr.FileName, fr.SheetName, string(fr.Status), headerRow, fr.RecordCount, fr.Duplicate, fr.Error}
		for _, v := range verdicts {
			row = append(row, fr.Verdicts[v])
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(summarySheet, "A", "A", 30)
	_ = f.SetColWidth(summarySheet, "B", "G", 14)
	return nil
}

func writeFileSheet(f *excelize.File, sheet string, fr *model.FileReport, headerStyle, flagStyle int) error {
	header := make([]interface{}, len(fr.Table.Columns))
	for i, c := range fr.Table.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return err
	}

	flagged := len(fr.Records) == len(fr.Table.Rows)
	for i, r := range fr.Table.Rows {
		row := make([]interface{}, len(r))
		for j, v := range r {
			row[j] = v
		}
		excelRow := i + 2
		cell, _ := excelize.CoordinatesToCellName(1, excelRow)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
		if flagged && fr.Records[i].Verdict != model.VerdictPassed {
			if err := f.SetRowStyle(sheet, excelRow, excelRow, flagStyle); err != nil {
				return err
			}
		}
	}

	if n := len(fr.Table.Columns); n > 0 {
		last, _ := excelize.ColumnNumberToName(n)
		_ = f.SetColWidth(sheet, "A", last, 18)
	}
	return nil
}

// uniqueSheetName 生成合法且不重复（不区分大小写）的工作表名
func uniqueSheetName(fileName string, used map[string]bool) string {
	base := strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return '_'
		}
		return r
	}, fileName)
	base = strings.Trim(base, "'")
	if base == "" {
		base = "Sheet"
	}

	name := truncateRunes(base, maxSheetName)
	for n := 2; used[strings.ToLower(name)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		name = truncateRunes(base, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
