package parser

import (
	"errors"

	"github.com/Apollack123/charge-audit-bot2/internal/model"
)

// ErrHeaderNotFound 没有任何行包含表头关键词
var ErrHeaderNotFound = errors.New("header row not found")

// HeaderLocation 表头定位结果
type HeaderLocation struct {
	Index  int           // 表头在原始网格中的行索引（从 0 开始）
	Header []string      // 清洗后的表头
	Body   model.RawGrid // 表头以下的原始行
}

// LocateHeader 自上而下扫描，首个任一单元格包含关键词（不区分大小写）的行即为表头；
// 表头及以上的行全部丢弃
func LocateHeader(grid model.RawGrid, tokens []string) (HeaderLocation, error) {
	for i, row := range grid {
		cells := SanitizeRow(row)
		for _, cell := range cells {
			if ContainsAny(NormalizeColumnName(cell), tokens) {
				return HeaderLocation{
					Index:  i,
					Header: cells,
					Body:   grid[i+1:],
				}, nil
			}
		}
	}
	return HeaderLocation{}, ErrHeaderNotFound
}

// FallbackHeader 定位失败时的兜底：首行作表头
func FallbackHeader(grid model.RawGrid) HeaderLocation {
	if len(grid) == 0 {
		return HeaderLocation{Index: 0}
	}
	return HeaderLocation{
		Index:  0,
		Header: SanitizeRow(grid[0]),
		Body:   grid[1:],
	}
}
