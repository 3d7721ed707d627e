package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	DevTools struct {
		URL string `yaml:"url"`
	} `yaml:"devtools"`

	Scan struct {
		TimeoutSec       int  `yaml:"timeoutSec"`
		Headless         bool `yaml:"headless"`
		FastMode         bool `yaml:"fastMode"`
		SkipInteractions bool `yaml:"skipInteractions"`
	} `yaml:"scan"`

	Store struct {
		Capacity int `yaml:"capacity"`
		TTLMin   int `yaml:"ttlMin"`
	} `yaml:"store"`

	Archive struct {
		Enabled bool   `yaml:"enabled"`
		Dsn     string `yaml:"dsn"`
		Prefix  string `yaml:"prefix"`
	} `yaml:"archive"`

	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
		File   string   `yaml:"file"`
	} `yaml:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	c := &Config{Version: "1.0.0"}
	c.DevTools.URL = "http://127.0.0.1:9222"
	c.Scan.TimeoutSec = 90
	c.Scan.Headless = true
	c.Store.Capacity = 200
	c.Store.TTLMin = 60
	c.Archive.Enabled = false
	c.Archive.Dsn = "scans.sqlite3"
	c.Archive.Prefix = "consentscan_"
	c.Log.Level = "info"
	c.Log.Writer = []string{"console"}
	c.Log.File = "consentscan.log"
	return c
}

// Load 从文件加载配置，文件不存在时返回默认配置
func Load(path string) (*Config, error) {
	c := NewConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	return c, nil
}
