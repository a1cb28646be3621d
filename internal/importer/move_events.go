package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/Apollack123/charge-audit-bot2/internal/model"
	"github.com/Apollack123/charge-audit-bot2/internal/parser"
	"github.com/Apollack123/charge-audit-bot2/internal/service/excel"
)

// ErrMoveEventColumns 入住文件缺少地块或入住日期列
var ErrMoveEventColumns = errors.New("move event file needs unit and move-in date columns")

// LoadMoveEvents 读取入住/迁出文件，返回 地块 -> 入住日期；同一地块多条时取最晚日期
// 必须在任何审计开始前完整读取，之后只读共享
func (c *Coordinator) LoadMoveEvents(ctx context.Context, src Source) (model.MoveEvents, error) {
	data, err := src.read()
	if err != nil {
		return nil, err
	}
	wb, err := excel.LoadWorkbookContext(ctx, bytes.NewReader(data), src.Name)
	if err != nil {
		return nil, fmt.Errorf("move events: %w", err)
	}

	tokens := c.mapper.Aliases().Get(model.FieldMoveInDate)
	sheet := wb.SelectSheet(tokens)
	return c.moveEventsFromGrid(ctx, src.Name, sheet.Grid)
}

func (c *Coordinator) moveEventsFromGrid(ctx context.Context, name string, grid model.RawGrid) (model.MoveEvents, error) {
	tokens := c.mapper.Aliases().Get(model.FieldMoveInDate)
	loc, err := parser.LocateHeader(grid, tokens)
	if err != nil {
		loc = parser.FallbackHeader(grid)
	}
	hm := c.mapper.Resolve(loc.Header)
	if !hm.Has(model.FieldUnit) || !hm.Has(model.FieldMoveInDate) {
		return nil, ErrMoveEventColumns
	}

	records, err := parser.ExtractRecordsContext(ctx, loc, hm)
	if err != nil {
		return nil, err
	}

	events := make(model.MoveEvents)
	skipped := 0
	for _, r := range records {
		unit := parser.UnitKey(r.Values[model.FieldUnit])
		if unit == "" {
			skipped++
			continue
		}
		moveIn, err := parser.ParseDate(r.Values[model.FieldMoveInDate])
		if err != nil {
			skipped++
			c.logger.Debug().Str("file", name).Int("row", r.SourceRow).Err(err).Msg("move event skipped")
			continue
		}
		if prev, ok := events[unit]; ok && !moveIn.After(prev) {
			continue
		}
		events[unit] = moveIn
	}

	c.logger.Info().Str("file", name).Int("units", len(events)).Int("skipped", skipped).Msg("move events loaded")
	return events, nil
}
