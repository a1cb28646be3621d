package excel

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Apollack123/charge-audit-bot2/internal/model"
	"github.com/Apollack123/charge-audit-bot2/internal/parser"
)

var (
	// ErrUnsupportedFormat 不支持的文件格式（含旧版 .xls）
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyWorkbook 工作簿没有任何可读工作表
	ErrEmptyWorkbook = errors.New("workbook has no readable sheets")
)

// Format 输入文件格式
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// DetectFormat 按扩展名判断格式
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// Sheet 工作表原始网格
type Sheet struct {
	Name string
	Grid model.RawGrid
}

// Workbook 已读取的工作簿
type Workbook struct {
	Name   string
	Format Format
	Sheets []Sheet
}

// LoadWorkbook 读取 xlsx/csv 为原始网格
func LoadWorkbook(r io.Reader, name string) (*Workbook, error) {
	return LoadWorkbookContext(context.Background(), r, name)
}

// LoadWorkbookContext 同 LoadWorkbook；逐个工作表检查 ctx
func LoadWorkbookContext(ctx context.Context, r io.Reader, name string) (*Workbook, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return nil, err
	}

	var sheets []Sheet
	switch format {
	case FormatCSV:
		sheets, err = readCSV(r, name)
	default:
		sheets, err = readXLSX(ctx, r)
	}
	if err != nil {
		return nil, err
	}
	if len(sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}
	return &Workbook{Name: name, Format: format, Sheets: sheets}, nil
}

// SelectSheet 取第一个含表头关键词的工作表，否则取第一个工作表
func (w *Workbook) SelectSheet(tokens []string) Sheet {
	for _, s := range w.Sheets {
		if _, err := parser.LocateHeader(s.Grid, tokens); err == nil {
			return s
		}
	}
	return w.Sheets[0]
}

func readXLSX(ctx context.Context, r io.Reader) ([]Sheet, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open excel: %w", err)
	}
	defer file.Close()

	names := file.GetSheetList()
	sheets := make([]Sheet, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := file.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}
		sheets = append(sheets, Sheet{Name: name, Grid: toGrid(rows)})
	}
	return sheets, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func readCSV(r io.Reader, name string) ([]Sheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	sheetName := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	return []Sheet{{Name: sheetName, Grid: toGrid(rows)}}, nil
}

func toGrid(rows [][]string) model.RawGrid {
	grid := make(model.RawGrid, len(rows))
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = v
		}
		grid[i] = cells
	}
	return grid
}
