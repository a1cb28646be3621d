package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Apollack123/charge-audit-bot2/internal/model"
)

func TestLoadAliasesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "aliases.yaml")
	content := "lot_rent:\n  - LotR\n  - \"Space Rent \"\nsewer_fee: [\"sewer\", \"wastewater\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	set, err := LoadAliasesFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"lotr", "space rent"}, set.Get(model.FieldLotRent))
	assert.Equal(t, []string{"sewer", "wastewater"}, set.Get(model.FieldSewerFee))

	merged := DefaultAliases().Merge(set)
	assert.Equal(t, []string{"lotr", "space rent"}, merged.Get(model.FieldLotRent))
	assert.Equal(t, DefaultAliases().Get(model.FieldUnit), merged.Get(model.FieldUnit))
}

func TestLoadAliasesFile_UnknownField(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("water_fee: [water]\n"), 0o644))

	_, err := LoadAliasesFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "water_fee")
}

func TestMerge_DoesNotMutateBase(t *testing.T) {
	t.Parallel()

	base := DefaultAliases()
	_ = base.Merge(AliasSet{model.FieldUnit: {"space"}})
	assert.Equal(t, []string{"unit"}, base.Get(model.FieldUnit))
}
