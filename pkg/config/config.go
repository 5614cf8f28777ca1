package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NeuralTrust/PromptArmor/pkg/domain/safety"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/providers"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "PROMPTARMOR"
	configFileName = "config"

	// DefaultGeminiModel applies to the vertex and gemini providers only.
	DefaultGeminiModel = "gemini-1.5-flash"
)

type Config struct {
	ModelArmor ModelArmorConfig `mapstructure:"model_armor"`
	Generation GenerationConfig `mapstructure:"generation"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Prompt     string           `mapstructure:"prompt"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
}

type ModelArmorConfig struct {
	ProjectID  string `mapstructure:"project_id"`
	Region     string `mapstructure:"region"`
	TemplateID string `mapstructure:"template_id"`
	// Endpoint overrides the regional base URL, e.g. for an emulator.
	Endpoint string `mapstructure:"endpoint"`
}

type GenerationConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Project     string  `mapstructure:"project"`
	Location    string  `mapstructure:"location"`
	AWSRegion   string  `mapstructure:"aws_region"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`

	AzureEndpoint   string `mapstructure:"azure_endpoint"`
	AzureAPIVersion string `mapstructure:"azure_api_version"`
	UseIdentity     bool   `mapstructure:"use_identity"`
}

type HTTPConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxConnsPerHost int           `mapstructure:"max_conns_per_host"`
}

type BreakerConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxFailures uint32        `mapstructure:"max_failures"`
}

type AuthConfig struct {
	CacheTokens bool          `mapstructure:"cache_tokens"`
	ExpirySkew  time.Duration `mapstructure:"expiry_skew"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"provider":     "generation.provider",
	"model":        "generation.model",
	"prompt":       "prompt",
	"metrics-file": "metrics.textfile",
	"log-level":    "log.level",
	"log-file":     "log.file",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_armor.project_id", "")
	v.SetDefault("model_armor.region", "")
	v.SetDefault("model_armor.template_id", "")
	v.SetDefault("model_armor.endpoint", "")

	v.SetDefault("generation.provider", "vertex")
	v.SetDefault("generation.model", "")
	v.SetDefault("generation.api_key", "")
	v.SetDefault("generation.base_url", "")
	v.SetDefault("generation.project", "")
	v.SetDefault("generation.location", "")
	v.SetDefault("generation.aws_region", "")
	v.SetDefault("generation.max_tokens", 0)
	v.SetDefault("generation.temperature", 0.0)
	v.SetDefault("generation.azure_endpoint", "")
	v.SetDefault("generation.azure_api_version", "")
	v.SetDefault("generation.use_identity", false)

	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.max_conns_per_host", 16)

	v.SetDefault("breaker.timeout", "30s")
	v.SetDefault("breaker.max_failures", 3)

	v.SetDefault("auth.cache_tokens", true)
	v.SetDefault("auth.expiry_skew", "60s")

	v.SetDefault("prompt", "")
	v.SetDefault("metrics.textfile", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Load reads config.yaml from configPath, ./config or the working directory,
// applies PROMPTARMOR_* environment overrides and then any changed flags.
// A missing config file is not an error.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(configFileName)
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file %s.yaml: %w", configFileName, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyFallbacks()
	return &cfg, nil
}

// Vertex generation runs in the same project and region as the classifier
// unless told otherwise.
func (c *Config) applyFallbacks() {
	if c.Generation.Project == "" {
		c.Generation.Project = c.ModelArmor.ProjectID
	}
	if c.Generation.Location == "" {
		c.Generation.Location = c.ModelArmor.Region
	}
	c.Generation.Provider = strings.ToLower(strings.TrimSpace(c.Generation.Provider))
	if c.Generation.Provider == "" {
		c.Generation.Provider = providers.ProviderVertex
	}
	if c.Generation.Model == "" {
		switch c.Generation.Provider {
		case providers.ProviderVertex, providers.ProviderGemini:
			c.Generation.Model = DefaultGeminiModel
		}
	}
}

func (c *Config) Template() safety.Template {
	return safety.Template{
		ProjectID:  c.ModelArmor.ProjectID,
		Region:     c.ModelArmor.Region,
		TemplateID: c.ModelArmor.TemplateID,
	}
}

func (c *Config) Validate() error {
	if err := c.Template().Validate(); err != nil {
		return err
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive, got %s", c.HTTP.Timeout)
	}
	if c.Generation.MaxTokens < 0 {
		return fmt.Errorf("generation.max_tokens must not be negative")
	}
	if c.Generation.Temperature < 0 {
		return fmt.Errorf("generation.temperature must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported log.level %q", c.Log.Level)
	}
	return nil
}
