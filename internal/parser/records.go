package parser

import (
	"context"

	"github.com/Apollack123/charge-audit-bot2/internal/model"
)

// ExtractRecords 将表头以下的原始行转换为记录：整行清洗，空行跳过，保留源表行号
func ExtractRecords(loc HeaderLocation, hm model.HeaderMap) []*model.Record {
	records, _ := ExtractRecordsContext(context.Background(), loc, hm)
	return records
}

// ExtractRecordsContext 同 ExtractRecords；ctx 取消后停止并返回 ctx.Err()
func ExtractRecordsContext(ctx context.Context, loc HeaderLocation, hm model.HeaderMap) ([]*model.Record, error) {
	records := make([]*model.Record, 0, len(loc.Body))
	for i, row := range loc.Body {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cells := SanitizeRow(row)
		if IsBlankRow(cells) {
			continue
		}
		cells = fitWidth(cells, len(loc.Header))

		values := make(map[model.Field]string, len(hm))
		for field, col := range hm {
			if col < len(cells) {
				values[field] = cells[col]
			} else {
				values[field] = ""
			}
		}
		records = append(records, &model.Record{
			SourceRow: loc.Index + i + 2,
			Header:    hm,
			Columns:   loc.Header,
			Cells:     cells,
			Values:    values,
			Verdict:   model.VerdictPassed,
		})
	}
	return records, nil
}

// fitWidth 行宽不足时补空；超出表头的尾部非空单元格保留
func fitWidth(cells []string, width int) []string {
	if len(cells) >= width {
		return cells
	}
	out := make([]string, width)
	copy(out, cells)
	return out
}
