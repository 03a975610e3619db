// Package config loads tasklink settings from a YAML file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/harrisonrobin/tasklink/pkg/convert"
	"github.com/harrisonrobin/tasklink/pkg/deferred"
	"github.com/harrisonrobin/tasklink/pkg/index"
	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/store"
)

const (
	xdgAppName = "tasklink"
	configFile = "config.yaml"
	envPrefix  = "TASKLINK"
)

type Config struct {
	Interval time.Duration  `mapstructure:"interval" yaml:"interval"`
	Order    []string       `mapstructure:"order" yaml:"order"`
	Notion   NotionConfig   `mapstructure:"notion" yaml:"notion"`
	Google   GoogleConfig   `mapstructure:"google" yaml:"google"`
	Lists    []ListConfig   `mapstructure:"lists" yaml:"lists"`
	Statuses []StatusConfig `mapstructure:"statuses" yaml:"statuses"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Deferred DeferredConfig `mapstructure:"deferred" yaml:"deferred"`
	Sweep    SweepConfig    `mapstructure:"sweep" yaml:"sweep"`
}

type NotionConfig struct {
	Token      string           `mapstructure:"token" yaml:"token"`
	DatabaseID string           `mapstructure:"database_id" yaml:"database_id"`
	Properties PropertiesConfig `mapstructure:"properties" yaml:"properties"`
}

// PropertiesConfig names the database columns. StatusKind is select or status.
type PropertiesConfig struct {
	Title      string `mapstructure:"title" yaml:"title"`
	Notes      string `mapstructure:"notes" yaml:"notes"`
	Status     string `mapstructure:"status" yaml:"status"`
	StatusKind string `mapstructure:"status_kind" yaml:"status_kind"`
	Due        string `mapstructure:"due" yaml:"due"`
	List       string `mapstructure:"list" yaml:"list"`
	Parent     string `mapstructure:"parent" yaml:"parent"`
}

type GoogleConfig struct {
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
	TokenFile       string `mapstructure:"token_file" yaml:"token_file"`
	AuthPort        string `mapstructure:"auth_port" yaml:"auth_port"`
	IndexFile       string `mapstructure:"index_file" yaml:"index_file"`
}

// ListConfig pairs a Notion bucket with a Google tasklist. GoogleTasklist is
// either the tasklist id or its title.
type ListConfig struct {
	Name           string `mapstructure:"name" yaml:"name"`
	NotionBucketID string `mapstructure:"notion_bucket_id" yaml:"notion_bucket_id"`
	GoogleTasklist string `mapstructure:"google_tasklist" yaml:"google_tasklist"`
}

type StatusConfig struct {
	NotionID string `mapstructure:"notion_id" yaml:"notion_id"`
	Name     string `mapstructure:"name" yaml:"name"`
	Done     bool   `mapstructure:"done" yaml:"done"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	JSON       bool   `mapstructure:"json" yaml:"json"`
}

type DeferredConfig struct {
	Path          string        `mapstructure:"path" yaml:"path"`
	EscalateAfter time.Duration `mapstructure:"escalate_after" yaml:"escalate_after"`
}

type SweepConfig struct {
	MaxDeletes int `mapstructure:"max_deletes" yaml:"max_deletes"`
}

// Dir is the tasklink config directory, honoring XDG_CONFIG_HOME.
func Dir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, xdgAppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Default returns the settings used for every key the file leaves out. File
// locations are relative to dir.
func Default(dir string) *Config {
	return &Config{
		Interval: time.Minute,
		Order:    []string{string(model.SideNotion), string(model.SideGoogle)},
		Notion: NotionConfig{
			Properties: PropertiesConfig{
				Title:      "Task",
				Notes:      "Details",
				Status:     "Status",
				StatusKind: "select",
				Due:        "Due",
				List:       "Bucket",
				Parent:     "Parent tasks",
			},
		},
		Google: GoogleConfig{
			CredentialsFile: filepath.Join(dir, "credentials.json"),
			TokenFile:       filepath.Join(dir, "token.json"),
			AuthPort:        "6789",
			IndexFile:       index.DefaultPath(dir),
		},
		Store: StoreConfig{
			Driver: store.DriverFile,
			DSN:    filepath.Join(dir, "mappings.json"),
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Deferred: DeferredConfig{
			Path:          deferred.DefaultPath(dir),
			EscalateAfter: 24 * time.Hour,
		},
		Sweep: SweepConfig{MaxDeletes: 50},
	}
}

// Load reads the config file at path, or the default location when path is
// empty. TASKLINK_* variables override file values, e.g. TASKLINK_NOTION_TOKEN.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s (run 'tasklink config init' to create one): %w", v.ConfigFileUsed(), err)
	}
	return decode(v)
}

func newViper(path string) (*viper.Viper, error) {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default(filepath.Dir(path)))
	return v, nil
}

// setDefaults registers every scalar key so AutomaticEnv can see it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("interval", d.Interval)
	v.SetDefault("order", d.Order)
	v.SetDefault("notion.token", d.Notion.Token)
	v.SetDefault("notion.database_id", d.Notion.DatabaseID)
	v.SetDefault("notion.properties.title", d.Notion.Properties.Title)
	v.SetDefault("notion.properties.notes", d.Notion.Properties.Notes)
	v.SetDefault("notion.properties.status", d.Notion.Properties.Status)
	v.SetDefault("notion.properties.status_kind", d.Notion.Properties.StatusKind)
	v.SetDefault("notion.properties.due", d.Notion.Properties.Due)
	v.SetDefault("notion.properties.list", d.Notion.Properties.List)
	v.SetDefault("notion.properties.parent", d.Notion.Properties.Parent)
	v.SetDefault("google.credentials_file", d.Google.CredentialsFile)
	v.SetDefault("google.token_file", d.Google.TokenFile)
	v.SetDefault("google.auth_port", d.Google.AuthPort)
	v.SetDefault("google.index_file", d.Google.IndexFile)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("deferred.path", d.Deferred.Path)
	v.SetDefault("deferred.escalate_after", d.Deferred.EscalateAfter)
	v.SetDefault("sweep.max_deletes", d.Sweep.MaxDeletes)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every problem that would stop a sync cycle.
func (c *Config) Validate() error {
	var errs []error
	if c.Notion.Token == "" {
		errs = append(errs, errors.New("notion.token is empty (set it or TASKLINK_NOTION_TOKEN)"))
	}
	if c.Notion.DatabaseID == "" {
		errs = append(errs, errors.New("notion.database_id is empty"))
	}
	if k := c.Notion.Properties.StatusKind; k != "select" && k != "status" {
		errs = append(errs, fmt.Errorf("notion.properties.status_kind must be select or status, got %q", k))
	}
	switch c.Store.Driver {
	case store.DriverFile, store.DriverSQLite, store.DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %s", c.Interval))
	}
	if _, err := c.Sides(); err != nil {
		errs = append(errs, err)
	}
	if err := c.validateTables(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// validateTables checks only the status and list tables, the part that may
// change while running.
func (c *Config) validateTables() error {
	var errs []error
	var todo, done bool
	for _, s := range c.Statuses {
		if s.NotionID == "" || s.Name == "" {
			errs = append(errs, fmt.Errorf("status %q needs both notion_id and name", s.Name))
		}
		if s.Done {
			done = true
		} else {
			todo = true
		}
	}
	if !todo || !done {
		errs = append(errs, errors.New("statuses need at least one done and one not-done entry"))
	}
	if len(c.Lists) == 0 {
		errs = append(errs, errors.New("lists is empty"))
	}
	seen := make(map[string]bool)
	for _, l := range c.Lists {
		if l.Name == "" || l.NotionBucketID == "" || l.GoogleTasklist == "" {
			errs = append(errs, fmt.Errorf("list %q needs name, notion_bucket_id and google_tasklist", l.Name))
		}
		if seen[l.Name] {
			errs = append(errs, fmt.Errorf("duplicate list name %q", l.Name))
		}
		seen[l.Name] = true
	}
	return errors.Join(errs...)
}

// Sides returns the configured direction order.
func (c *Config) Sides() ([]model.Side, error) {
	if len(c.Order) != 2 {
		return nil, fmt.Errorf("order must name both sides once, got %v", c.Order)
	}
	sides := make([]model.Side, 0, 2)
	for _, o := range c.Order {
		s := model.Side(strings.ToLower(strings.TrimSpace(o)))
		if !s.Valid() {
			return nil, fmt.Errorf("order: unknown side %q", o)
		}
		sides = append(sides, s)
	}
	if sides[0] == sides[1] {
		return nil, fmt.Errorf("order must name both sides once, got %v", c.Order)
	}
	return sides, nil
}

func (c *Config) StatusTable() convert.StatusTable {
	opts := make([]convert.StatusOption, 0, len(c.Statuses))
	for _, s := range c.Statuses {
		opts = append(opts, convert.StatusOption{
			NotionID: convert.NormalizeNotionID(s.NotionID),
			Name:     s.Name,
			Done:     s.Done,
		})
	}
	return convert.NewStatusTable(opts)
}

// ListTable returns the bucket <-> tasklist table. Tasklist titles are left
// for the Google client to resolve.
func (c *Config) ListTable() convert.ListTable {
	rows := make([]convert.ListRow, 0, len(c.Lists))
	for _, l := range c.Lists {
		rows = append(rows, convert.ListRow{
			Name:             l.Name,
			NotionBucketID:   convert.NormalizeNotionID(l.NotionBucketID),
			GoogleTasklistID: l.GoogleTasklist,
		})
	}
	return convert.NewListTable(rows)
}
