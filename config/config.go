package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// configMu 保护配置文件读写的全局互斥锁
var configMu sync.Mutex

// DataDirName 数据目录名称
const DataDirName = "iisctl"

// 默认值
const (
	DefaultRetryDelayMillis = 1000
	maxRetryDelayMillis     = 60000
)

// Config 应用配置
type Config struct {
	ComputerName        string `json:"computer_name,omitempty"`         // 远程主机名，空为本机
	ApplicationHostPath string `json:"application_host_path,omitempty"` // 直接编辑的 applicationHost.config，优先于 ComputerName
	AppcmdPath          string `json:"appcmd_path,omitempty"`           // appcmd.exe 路径，空为系统默认
	RetryDelayMillis    int    `json:"retry_delay_millis"`              // IIS 配置尚未生效时的等待时间（毫秒）
	LogDir              string `json:"log_dir,omitempty"`               // 日志目录，空为数据目录下的 logs
	Debug               bool   `json:"debug"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		RetryDelayMillis: DefaultRetryDelayMillis,
	}
}

// RetryDelay 等待时间
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMillis) * time.Millisecond
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if c.RetryDelayMillis < 0 || c.RetryDelayMillis > maxRetryDelayMillis {
		return errors.Newf("retry_delay_millis 必须在 0-%d 之间: %d", maxRetryDelayMillis, c.RetryDelayMillis)
	}
	if c.ComputerName != "" && c.ApplicationHostPath != "" {
		return errors.WithHint(
			errors.New("computer_name 与 application_host_path 不能同时设置"),
			"远程主机的配置文件通过 admin$ 共享自动定位")
	}
	return nil
}

// GetDataDir 获取数据目录（程序同目录下的 iisctl 文件夹）
func GetDataDir() string {
	exe, err := os.Executable()
	if err != nil {
		return DataDirName
	}
	dataDir := filepath.Join(filepath.Dir(exe), DataDirName)
	os.MkdirAll(dataDir, 0700)
	return dataDir
}

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	return filepath.Join(GetDataDir(), "config.json")
}

// GetLogDir 日志目录，未配置时为数据目录下的 logs
func (c *Config) GetLogDir() string {
	logDir := c.LogDir
	if logDir == "" {
		logDir = filepath.Join(GetDataDir(), "logs")
	}
	os.MkdirAll(logDir, 0700)
	return logDir
}

// Load 加载默认位置的配置
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom 加载配置（线程安全），文件不存在时返回默认配置
func LoadFrom(path string) (*Config, error) {
	configMu.Lock()
	defer configMu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "读取配置失败: %s", path)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "解析配置失败: %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save 保存到默认位置
func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

// SaveTo 保存配置（线程安全，原子写入）
func (c *Config) SaveTo(path string) error {
	configMu.Lock()
	defer configMu.Unlock()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return errors.Wrap(err, "写入临时文件失败")
	}

	// Windows 上 Rename 不能覆盖已有文件
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			os.Remove(tmpPath)
			return errors.Wrap(err, "删除旧配置失败")
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "重命名配置文件失败")
	}
	return nil
}
