package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var keyComments = map[string]string{
	"interval": "Pause between two sync cycles.",
	"order":    "Which side is mirrored first in each cycle.",
	"notion":   "Integration token and task database. TASKLINK_NOTION_TOKEN overrides token.",
	"google":   "OAuth client from the Google Cloud console. Run 'tasklink auth' once.",
	"lists":    "Notion bucket page <-> Google tasklist (id or title), under one shared name.",
	"statuses": "Notion status options. Done marks the ones Google sees as completed.",
	"store":    "Mapping store: file, sqlite or postgres. dsn is a path or a connection URL.",
	"log":      "Logs go to stderr, or to a rotated file when file is set.",
	"deferred": "Tasks waiting on a parent are reported as errors after escalate_after.",
	"sweep":    "Skip the deletion sweep when it would remove more links than this. 0 disables the limit.",
}

// Example is the config written by 'tasklink config init'.
func Example(dir string) *Config {
	cfg := Default(dir)
	cfg.Notion.Token = "secret_..."
	cfg.Notion.DatabaseID = "00000000000000000000000000000000"
	cfg.Statuses = []StatusConfig{
		{NotionID: "<to do option id>", Name: "To Do"},
		{NotionID: "<done option id>", Name: "Done", Done: true},
	}
	cfg.Lists = []ListConfig{
		{Name: "Inbox", NotionBucketID: "<bucket page id>", GoogleTasklist: "My Tasks"},
	}
	return cfg
}

// Save writes cfg to path as commented YAML.
func Save(path string, cfg *Config) error {
	var root yaml.Node
	if err := root.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if c, ok := keyComments[root.Content[i].Value]; ok {
			root.Content[i].HeadComment = c
		}
	}
	out, err := yaml.Marshal(&root)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// WriteDefault writes the example config to path, or the default location
// when path is empty. An existing file is only replaced with force.
func WriteDefault(path string, force bool) (string, error) {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return "", err
		}
		path = p
	}
	if _, err := os.Stat(path); err == nil && !force {
		return path, fmt.Errorf("config %s already exists", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return path, err
	}
	return path, Save(path, Example(filepath.Dir(path)))
}
