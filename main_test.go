package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/tasklink/pkg/config"
	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := execute(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	_, err = execute(t, "--config", path, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	_, err = execute(t, "--config", path, "config", "init", "--force")
	assert.NoError(t, err)
}

func TestMappingsCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Example(dir)
	require.NoError(t, config.Save(filepath.Join(dir, "config.yaml"), cfg))

	st, err := store.NewFileStore(cfg.Store.DSN)
	require.NoError(t, err)
	synced := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.Upsert(context.Background(), model.Mapping{
		NotionID:       "a1b2c3d4-0000-4000-8000-000000000001",
		GoogleID:       "g-1",
		NotionSyncedAt: synced,
		GoogleSyncedAt: synced,
	}))

	out, err := execute(t, "--config", filepath.Join(dir, "config.yaml"), "mappings")
	require.NoError(t, err)
	assert.Contains(t, out, "a1b2c3d4-0000-4000-8000-000000000001")
	assert.Contains(t, out, "g-1")
	assert.Contains(t, out, "1 mappings")
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Example(dir)
	cfg.Notion.Token = ""
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, config.Save(path, cfg))
	t.Setenv("TASKLINK_NOTION_TOKEN", "")

	_, err := execute(t, "--config", path, "once")
	assert.ErrorContains(t, err, "notion.token")
}

func TestStamp(t *testing.T) {
	assert.Equal(t, "-", stamp(time.Time{}))
	assert.NotEqual(t, "-", stamp(time.Now()))
}
