package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Apollack123/charge-audit-bot2/internal/config"
	"github.com/Apollack123/charge-audit-bot2/internal/model"
)

const chargesCSV = `Park Charge Breakdown,,,,
Unit,Tenant,LotR,Sewer,Garbage
A-1,Jane,420.00,30.00,15.00
A-2,Bob,0,30.00,
`

func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, config.SaveConfig(config.DefaultConfig(), path))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), err
}

func TestAuditCommand_WritesCSV(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	input := filepath.Join(dir, "april.csv")
	require.NoError(t, os.WriteFile(input, []byte(chargesCSV), 0o644))
	outDir := filepath.Join(dir, "out")

	out, err := execute(t, "audit", "--config", cfgPath, "--out", outDir, input)
	require.NoError(t, err)
	assert.Contains(t, out, "april.csv")
	assert.Contains(t, out, "1 audited")

	data, err := os.ReadFile(filepath.Join(outDir, "april.csv_audit.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Audit Notes")
	assert.Contains(t, string(data), "A-2")
}

func TestAuditCommand_CorruptFileDoesNotAbortBatch(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	good := filepath.Join(dir, "good.csv")
	bad := filepath.Join(dir, "bad.xlsx")
	require.NoError(t, os.WriteFile(good, []byte(chargesCSV), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("not a workbook"), 0o644))

	out, err := execute(t, "audit", "--config", cfgPath, "--out", dir, "--json", "--xlsx", good, bad)
	require.NoError(t, err)

	var batch model.BatchReport
	require.NoError(t, json.Unmarshal([]byte(out), &batch))
	assert.Equal(t, 2, batch.TotalFiles)
	assert.Equal(t, 1, batch.AuditedFiles)
	assert.Equal(t, 1, batch.FailedFiles)

	_, err = os.Stat(filepath.Join(dir, "good.csv_audit.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "bad.xlsx_audit.csv"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "charge-audit-"+batch.BatchID+".xlsx"))
	assert.NoError(t, err)
}

func TestAuditCommand_InvalidFlagValue(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	input := filepath.Join(dir, "april.csv")
	require.NoError(t, os.WriteFile(input, []byte(chargesCSV), 0o644))

	_, err := execute(t, "audit", "--config", cfgPath, "--mode", "fancy", input)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestAuditCommand_MissingMovesFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	input := filepath.Join(dir, "april.csv")
	require.NoError(t, os.WriteFile(input, []byte(chargesCSV), 0o644))

	_, err := execute(t, "audit", "--config", cfgPath, "--moves", filepath.Join(dir, "nope.csv"), input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load move events")
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Audit, cfg.Audit)

	_, err = execute(t, "config", "init", path)
	require.Error(t, err)

	_, err = execute(t, "config", "init", "--force", path)
	require.NoError(t, err)
}

func TestConfigShow(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)

	out, err := execute(t, "config", "show", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "[audit]")
	assert.Contains(t, out, "base_rent")
}
