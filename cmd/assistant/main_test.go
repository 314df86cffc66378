package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seed = `{"programs": [
  {"slug": "ai", "title": "Искусственный интеллект", "format": "очно",
   "tuition_per_year_rub": 599000, "career_roles": ["ML Engineer"],
   "notes": ["Очный формат", "Проекты с партнерами"]},
  {"slug": "ai_product", "title": "Управление ИИ-продуктами", "format": "онлайн",
   "notes": ["Онлайн формат обучения"]}
]}`

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	require.NoError(t, os.Mkdir(data, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(data, "programs_seed.json"), []byte(seed), 0o644))
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "corpus:\n  source: files\n  dataDir: " + data + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath
}

func TestCompare(t *testing.T) {
	cfg := setup(t)
	var out bytes.Buffer
	require.NoError(t, run([]string{"--config", cfg, "compare"}, &out))
	assert.Contains(t, out.String(), "Искусственный интеллект: очно")
	assert.Contains(t, out.String(), "599,000 RUB / year")
}

func TestSearchJSON(t *testing.T) {
	cfg := setup(t)
	var out bytes.Buffer
	require.NoError(t, run([]string{"--config", cfg, "--json", "search", "онлайн"}, &out))

	var result struct {
		Results []struct {
			DocID string `json:"doc_id"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	require.NotEmpty(t, result.Results)
	assert.Equal(t, "ai_product", result.Results[0].DocID)
}

func TestReco(t *testing.T) {
	cfg := setup(t)
	var out bytes.Buffer
	require.NoError(t, run([]string{"-c", cfg, "reco", "math=mid,", "program=ai"}, &out))
	assert.Contains(t, out.String(), "Recommended electives (ai)")
	assert.Contains(t, out.String(), "Линейная алгебра для ML (bridge)")
}

func TestCommandErrors(t *testing.T) {
	cfg := setup(t)
	var out bytes.Buffer
	assert.Error(t, run([]string{"--config", cfg}, &out))
	assert.Error(t, run([]string{"--config", cfg, "dance"}, &out))
	assert.Error(t, run([]string{"--config", cfg, "plan"}, &out))
	assert.Error(t, run([]string{"--config", cfg, "compare", "nope"}, &out))
	assert.Error(t, run([]string{"--config", cfg, "reco", "no pairs here"}, &out))
	assert.Empty(t, out.String())
}
