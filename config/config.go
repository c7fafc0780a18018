package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/warden-shared/warden-engine/consts"
	"github.com/warden-shared/warden-engine/utils"
)

// Config 引擎配置，TOML 文件加环境变量覆盖
type Config struct {
	ListenPort    int      `toml:"listen_port"`
	MasterAddress string   `toml:"master_address"`
	DataDir       string   `toml:"data_dir"`
	NodeLabels    []string `toml:"node_labels"`

	Findings FindingsConfig `toml:"findings"`
	Sbom     SbomConfig     `toml:"sbom"`
	Secrets  SecretsConfig  `toml:"secrets"`
	Weekly   WeeklyConfig   `toml:"weekly"`
	OpenAI   OpenAIConfig   `toml:"openai"`
}

// FindingsConfig findings 跟踪系统（SARIF 上报）的地址和凭证来源
type FindingsConfig struct {
	Endpoint string `toml:"endpoint"`
	TokenEnv string `toml:"token_env"`
}

// SbomConfig 依赖清单提交端点
type SbomConfig struct {
	Endpoint string `toml:"endpoint"`
}

// SecretsConfig step 可引用的 secret 名字清单，值永远从进程环境取
type SecretsConfig struct {
	Allowed []string `toml:"allowed"`
}

// WeeklyConfig 周回归的校验参数
type WeeklyConfig struct {
	// ExpectedSuiteMinutes 回归套件的预期时长，timeout-minutes 必须大于它
	ExpectedSuiteMinutes int `toml:"expected_suite_minutes"`
}

type OpenAIConfig struct {
	Model string `toml:"model"`
}

func Default() *Config {
	return &Config{
		ListenPort: 9706,
		DataDir:    utils.DefaultConfigDir(),
		NodeLabels: []string{consts.NODE_LABEL_HOSTED},
		Findings: FindingsConfig{
			TokenEnv: "WARDEN_FINDINGS_TOKEN",
		},
		Secrets: SecretsConfig{
			Allowed: []string{"SNYK_TOKEN", "SNYK_API"},
		},
		Weekly: WeeklyConfig{
			ExpectedSuiteMinutes: 720,
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-3.5-turbo",
		},
	}
}

func DefaultPath() string {
	return filepath.Join(utils.DefaultConfigDir(), "engine.toml")
}

// Load 读取配置文件，文件不存在时用默认值，最后套环境变量覆盖
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WARDEN_MASTER_ADDRESS"); v != "" {
		cfg.MasterAddress = v
	}
	if v := os.Getenv("WARDEN_FINDINGS_ENDPOINT"); v != "" {
		cfg.Findings.Endpoint = v
	}
	if v := os.Getenv("WARDEN_SBOM_ENDPOINT"); v != "" {
		cfg.Sbom.Endpoint = v
	}
	if v := os.Getenv("WARDEN_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
}
