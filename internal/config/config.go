// Package config loads the service configuration file and keeps a live copy
// of it that follows edits on disk.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/subforge/internal/dedupe"
	"github.com/John-Robertt/subforge/internal/fetch"
	"github.com/John-Robertt/subforge/internal/model"
	"github.com/John-Robertt/subforge/internal/region"
	"github.com/John-Robertt/subforge/internal/rules"
)

type Config struct {
	Server      Server      `yaml:"server"`
	Fetch       Fetch       `yaml:"fetch"`
	Cache       Cache       `yaml:"cache"`
	Dedupe      Dedupe      `yaml:"dedupe"`
	Region      Region      `yaml:"region"`
	Chain       string      `yaml:"chain"`
	Rules       []string    `yaml:"rules"`
	Aggregation Aggregation `yaml:"aggregation"`
	Clash       Clash       `yaml:"clash"`
	SingBox     SingBox     `yaml:"singbox"`

	// Derived at load time.
	customRules []model.Rule
	formatter   *region.Formatter
	template    string
	base        []byte
}

type Server struct {
	Listen            string        `yaml:"listen"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ConvertTimeout    time.Duration `yaml:"convert_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type Fetch struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxBytes     int64         `yaml:"max_bytes"`
	MaxRedirects int           `yaml:"max_redirects"`
	UserAgent    string        `yaml:"user_agent"`
}

type Cache struct {
	Enabled *bool         `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

type Dedupe struct {
	Keep                string `yaml:"keep"`
	FilterInformational *bool  `yaml:"filter_informational"`
}

type Region struct {
	// MultiCity false turns city labels off entirely.
	MultiCity *bool `yaml:"multi_city"`

	// Cities replaces the built-in multi-city table when set.
	Cities map[string][]region.City `yaml:"cities"`
}

type Aggregation struct {
	Markers     []string `yaml:"markers"`
	MaxDepth    int      `yaml:"max_depth"`
	Concurrency int      `yaml:"concurrency"`
}

type Clash struct {
	// Template is a path to an anchor template, relative to the config file.
	Template string `yaml:"template"`
}

type SingBox struct {
	// Base is a path to a JSONC skeleton, relative to the config file.
	Base string `yaml:"base"`
}

const (
	DefaultListen   = "127.0.0.1:25500"
	DefaultCacheTTL = 5 * time.Minute
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	if err := c.finish(""); err != nil {
		// The zero configuration references no files and no rules.
		panic(err)
	}
	return c
}

// Load reads and validates the YAML file at path. Unknown keys are errors.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return Parse(raw, filepath.Dir(path))
}

// Parse decodes raw and resolves referenced files against dir.
func Parse(raw []byte, dir string) (*Config, error) {
	c := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := c.finish(dir); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) finish(dir string) error {
	c.applyDefaults()

	if _, err := dedupe.ParseKeepStrategy(c.Dedupe.Keep); err != nil {
		return fmt.Errorf("dedupe.keep: %w", err)
	}
	if c.Aggregation.MaxDepth < 0 || c.Aggregation.Concurrency < 0 {
		return errors.New("aggregation.max_depth/concurrency 不能为负数")
	}
	if c.Fetch.MaxBytes < 0 {
		return errors.New("fetch.max_bytes 不能为负数")
	}

	parsed, err := rules.ParseLines("config:rules", c.Rules)
	if err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	c.customRules = parsed

	switch {
	case c.Region.MultiCity != nil && !*c.Region.MultiCity:
		c.formatter = region.New(map[string][]region.City{})
	default:
		c.formatter = region.New(c.Region.Cities)
	}

	if c.Clash.Template != "" {
		b, err := os.ReadFile(resolvePath(dir, c.Clash.Template))
		if err != nil {
			return fmt.Errorf("clash.template: %w", err)
		}
		c.template = string(b)
	}
	if c.SingBox.Base != "" {
		b, err := os.ReadFile(resolvePath(dir, c.SingBox.Base))
		if err != nil {
			return fmt.Errorf("singbox.base: %w", err)
		}
		c.base = b
	}
	return nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Server.Listen) == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		c.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if c.Server.ConvertTimeout <= 0 {
		c.Server.ConvertTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 15 * time.Second
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
}

func resolvePath(dir, p string) string {
	if filepath.IsAbs(p) || dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}

// FetchOptions is the subscription fetch policy.
func (c *Config) FetchOptions() fetch.Options {
	return fetch.Options{
		Timeout:      c.Fetch.Timeout,
		MaxBytes:     c.Fetch.MaxBytes,
		MaxRedirects: c.Fetch.MaxRedirects,
		UserAgent:    c.Fetch.UserAgent,
	}
}

// DedupeOptions is the default dedupe policy; requests may override it.
func (c *Config) DedupeOptions() dedupe.Options {
	keep, _ := dedupe.ParseKeepStrategy(c.Dedupe.Keep)
	return dedupe.Options{
		Keep:                keep,
		FilterInformational: c.Dedupe.FilterInformational == nil || *c.Dedupe.FilterInformational,
	}
}

func (c *Config) CacheEnabled() bool { return c.Cache.Enabled == nil || *c.Cache.Enabled }

func (c *Config) CustomRules() []model.Rule { return c.customRules }

func (c *Config) Formatter() *region.Formatter { return c.formatter }

// ClashTemplate returns the loaded template text and its path, or "" when
// the built-in skeleton is used.
func (c *Config) ClashTemplate() (string, string) { return c.template, c.Clash.Template }

// SingBoxBase returns the loaded JSONC skeleton and its path.
func (c *Config) SingBoxBase() ([]byte, string) { return c.base, c.SingBox.Base }
