package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	talkErrors "github.com/harunnryd/tabletalk/internal/errors"
	"github.com/harunnryd/tabletalk/internal/model/contract"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Log          LogConfig          `koanf:"log"`
	Table        TableConfig        `koanf:"table"`
	Connector    ConnectorConfig    `koanf:"connector"`
	Models       ModelsConfig       `koanf:"models"`
	Artifacts    ArtifactsConfig    `koanf:"artifacts"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Tools        ToolsConfig        `koanf:"tools"`
	MCP          MCPConfig          `koanf:"mcp"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// TableConfig identifies the single table every database tool reads.
type TableConfig struct {
	DB     string `koanf:"db"`
	Schema string `koanf:"schema"`
	Table  string `koanf:"table"`
}

type ConnectorConfig struct {
	Driver       string `koanf:"driver"`
	Path         string `koanf:"path"`
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"`
	HTTPPath     string `koanf:"http_path"`
	AccessToken  string `koanf:"access_token"`
	QueryTimeout string `koanf:"query_timeout"`
}

type ModelsConfig struct {
	Default             string          `koanf:"default"`
	Fallback            string          `koanf:"fallback"`
	MaxFallbackAttempts int             `koanf:"max_fallback_attempts"`
	Registry            []ModelRegistry `koanf:"registry"`
}

type ModelRegistry struct {
	Name           string `koanf:"name"`
	Provider       string `koanf:"provider"`
	BaseURL        string `koanf:"base_url"`
	APIKey         string `koanf:"api_key"`
	APIVersion     string `koanf:"api_version"`
	RequestTimeout string `koanf:"request_timeout"`
	MaxTokens      int    `koanf:"max_tokens"`
}

type ArtifactsConfig struct {
	Dir          string `koanf:"dir"`
	LockTimeout  string `koanf:"lock_timeout"`
	LockRetry    string `koanf:"lock_retry"`
	LockMaxRetry int    `koanf:"lock_max_retry"`
}

type OrchestratorConfig struct {
	SystemPrompt        string `koanf:"system_prompt"`
	ToolChoice          string `koanf:"tool_choice"`
	MaxIterations       int    `koanf:"max_iterations"`
	GatewayTimeout      string `koanf:"gateway_timeout"`
	GatewayRetries      int    `koanf:"gateway_retries"`
	GatewayRetryBackoff string `koanf:"gateway_retry_backoff"`
}

type ToolsConfig struct {
	Enabled []string          `koanf:"enabled"`
	Weather WeatherToolConfig `koanf:"weather"`
	Query   QueryToolConfig   `koanf:"query"`
}

type WeatherToolConfig struct {
	Mode    string `koanf:"mode"`
	BaseURL string `koanf:"base_url"`
	Timeout string `koanf:"timeout"`
}

type QueryToolConfig struct {
	ReadOnlyGuard bool `koanf:"read_only_guard"`
}

type MCPConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
}

const (
	DefaultLogLevel                   = "info"
	DefaultConnectorDriver            = "sqlite"
	DefaultConnectorPort              = 443
	DefaultConnectorQueryTimeout      = "60s"
	DefaultModelDefault               = "gpt-4o"
	DefaultModelFallback              = ""
	DefaultModelMaxFallbackAttempts   = 2
	DefaultModelRequestTimeout        = "120s"
	DefaultModelMaxTokens             = 1024
	DefaultOpenAIBaseURL              = "https://api.openai.com/v1"
	DefaultOllamaBaseURL              = "http://localhost:11434/v1"
	DefaultOllamaAPIKey               = "ollama"
	DefaultArtifactsLockTimeout       = "30s"
	DefaultArtifactsLockRetry         = "100ms"
	DefaultArtifactsLockMaxRetry      = 300
	DefaultSystemPrompt               = "You are a helpful assistant answering questions about a connected database table. Use the tools to inspect the table and fetch data. Never repeat row data back to the user; it is displayed to them directly."
	DefaultToolChoice                 = "auto"
	DefaultOrchestratorMaxIterations  = 8
	DefaultOrchestratorGatewayTimeout = "120s"
	DefaultOrchestratorGatewayRetries = 2
	DefaultOrchestratorGatewayBackoff = "1s"
	DefaultWeatherToolMode            = "static"
	DefaultWeatherToolBaseURL         = "https://wttr.in"
	DefaultWeatherToolTimeout         = "10s"
	DefaultQueryToolReadOnlyGuard     = false
	DefaultMCPName                    = "tabletalk"
	DefaultMCPVersion                 = "1.0.0"
	DefaultConfigDirName              = ".tabletalk"
	DefaultArtifactsDirName           = "artifacts"
	WeatherModeStatic                 = "static"
	WeatherModeWttr                   = "wttr"
	ConnectorDriverSQLite             = "sqlite"
	ConnectorDriverDatabricks         = "databricks"
	envPrefix                         = "TABLETALK_"
)

// DefaultTools lists every built-in tool name in declaration order.
var DefaultTools = []string{
	"get_info_on_connected_table",
	"get_table",
	"generate_vega_lite_spec",
	"get_current_weather",
}

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"log.level":                          DefaultLogLevel,
		"connector.driver":                   DefaultConnectorDriver,
		"connector.port":                     DefaultConnectorPort,
		"connector.query_timeout":            DefaultConnectorQueryTimeout,
		"models.default":                     DefaultModelDefault,
		"models.fallback":                    DefaultModelFallback,
		"models.max_fallback_attempts":       DefaultModelMaxFallbackAttempts,
		"artifacts.dir":                      filepath.Join("~", DefaultConfigDirName, DefaultArtifactsDirName),
		"artifacts.lock_timeout":             DefaultArtifactsLockTimeout,
		"artifacts.lock_retry":               DefaultArtifactsLockRetry,
		"artifacts.lock_max_retry":           DefaultArtifactsLockMaxRetry,
		"orchestrator.system_prompt":         DefaultSystemPrompt,
		"orchestrator.tool_choice":           DefaultToolChoice,
		"orchestrator.max_iterations":        DefaultOrchestratorMaxIterations,
		"orchestrator.gateway_timeout":       DefaultOrchestratorGatewayTimeout,
		"orchestrator.gateway_retries":       DefaultOrchestratorGatewayRetries,
		"orchestrator.gateway_retry_backoff": DefaultOrchestratorGatewayBackoff,
		"tools.enabled":                      DefaultTools,
		"tools.weather.mode":                 DefaultWeatherToolMode,
		"tools.weather.base_url":             DefaultWeatherToolBaseURL,
		"tools.weather.timeout":              DefaultWeatherToolTimeout,
		"tools.query.read_only_guard":        DefaultQueryToolReadOnlyGuard,
		"mcp.name":                           DefaultMCPName,
		"mcp.version":                        DefaultMCPVersion,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else if path, err := DefaultConfigPath(); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			slog.Debug("Global config not found or invalid", "path", path, "error", err)
		}
	}

	k.Load(env.Provider(envPrefix, ".", envKey), nil)

	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// registry entries replace the default list wholesale, so they are only
	// seeded when the operator configured nothing
	if !k.Exists("models.registry") {
		cfg.Models.Registry = defaultRegistry()
	}
	for i, m := range cfg.Models.Registry {
		if m.Provider == "" {
			cfg.Models.Registry[i].Provider = "openai"
		}
	}

	applyLegacyEnv(&cfg)
	injectProviderKeys(&cfg)

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultConfigPath returns ~/.tabletalk/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDirName, "config.yaml"), nil
}

// Validate rejects option values no component can act on.
func (c *Config) Validate() error {
	switch c.Connector.Driver {
	case ConnectorDriverSQLite, ConnectorDriverDatabricks:
	default:
		return talkErrors.InvalidInput(fmt.Sprintf("unknown connector driver %q", c.Connector.Driver))
	}

	switch c.Tools.Weather.Mode {
	case WeatherModeStatic, WeatherModeWttr:
	default:
		return talkErrors.InvalidInput(fmt.Sprintf("unknown weather mode %q", c.Tools.Weather.Mode))
	}

	if c.Orchestrator.MaxIterations <= 0 {
		return talkErrors.InvalidInput("orchestrator.max_iterations must be positive")
	}
	switch c.Orchestrator.ToolChoice {
	case contract.ToolChoiceAuto, contract.ToolChoiceRequired, contract.ToolChoiceNone:
	default:
		return talkErrors.InvalidInput(fmt.Sprintf("unknown orchestrator.tool_choice %q (want auto, required or none)", c.Orchestrator.ToolChoice))
	}
	if c.Orchestrator.GatewayRetries < 0 {
		return talkErrors.InvalidInput("orchestrator.gateway_retries must not be negative")
	}

	for _, name := range c.Tools.Enabled {
		if !isKnownTool(name) {
			return talkErrors.InvalidInput(fmt.Sprintf("unknown tool %q in tools.enabled", name))
		}
	}

	return nil
}

// ModelEntry returns the registry entry configured under name.
func (c *Config) ModelEntry(name string) (ModelRegistry, bool) {
	for _, m := range c.Models.Registry {
		if m.Name == name {
			return m, true
		}
	}
	return ModelRegistry{}, false
}

func defaultRegistry() []ModelRegistry {
	return []ModelRegistry{
		{Name: DefaultModelDefault, Provider: "openai"},
		{Name: "claude-3-7-sonnet-latest", Provider: "anthropic"},
		{Name: "gemini-2.0-flash", Provider: "gemini"},
		{Name: "llama3.1", Provider: "ollama", BaseURL: DefaultOllamaBaseURL},
	}
}

// envKey maps TABLETALK_CONNECTOR_HTTP_PATH to connector.http_path and
// TABLETALK_TOOLS_WEATHER_MODE to tools.weather.mode.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	if section == "tools" {
		if sub, leaf, ok := strings.Cut(rest, "_"); ok {
			return section + "." + sub + "." + leaf
		}
	}
	return section + "." + rest
}

// applyLegacyEnv honors the unprefixed variable names earlier deployments used.
func applyLegacyEnv(cfg *Config) {
	if model := lookupEnv("llm_model_to_use"); model != "" {
		cfg.Models.Default = model
		if _, ok := cfg.ModelEntry(model); !ok {
			cfg.Models.Registry = append(cfg.Models.Registry, ModelRegistry{Name: model, Provider: "openai"})
		}
	}

	for i := range cfg.Models.Registry {
		entry := &cfg.Models.Registry[i]
		if entry.Name != cfg.Models.Default {
			continue
		}
		if key := lookupEnv("llm_api_key"); key != "" && entry.APIKey == "" {
			entry.APIKey = key
		}
		if base := lookupEnv("llm_api_base"); base != "" && entry.BaseURL == "" {
			entry.BaseURL = base
		}
		if version := lookupEnv("llm_api_version"); version != "" && entry.APIVersion == "" {
			entry.APIVersion = version
		}
	}

	if host := lookupEnv("server_name"); host != "" && cfg.Connector.Host == "" {
		cfg.Connector.Host = host
		cfg.Connector.Driver = ConnectorDriverDatabricks
	}
	if path := lookupEnv("http_path_cluster"); path != "" && cfg.Connector.HTTPPath == "" {
		cfg.Connector.HTTPPath = path
	}
	if token := lookupEnv("access_token"); token != "" && cfg.Connector.AccessToken == "" {
		cfg.Connector.AccessToken = token
	}
}

func injectProviderKeys(cfg *Config) {
	keys := map[string]string{
		"openai":    os.Getenv("OPENAI_API_KEY"),
		"anthropic": os.Getenv("ANTHROPIC_API_KEY"),
		"gemini":    os.Getenv("GEMINI_API_KEY"),
	}
	for i, m := range cfg.Models.Registry {
		if key := keys[m.Provider]; key != "" && m.APIKey == "" {
			cfg.Models.Registry[i].APIKey = key
		}
	}
}

func lookupEnv(name string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv(strings.ToUpper(name)))
}

func isKnownTool(name string) bool {
	for _, known := range DefaultTools {
		if known == name {
			return true
		}
	}
	return false
}

func normalizePathFields(cfg *Config) error {
	dir, err := expandPath(cfg.Artifacts.Dir)
	if err != nil {
		return err
	}
	cfg.Artifacts.Dir = dir

	dbPath, err := expandPath(cfg.Connector.Path)
	if err != nil {
		return err
	}
	cfg.Connector.Path = dbPath
	return nil
}

// expandPath resolves environment variables and a leading "~/".
func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}

	expanded := os.ExpandEnv(trimmed)
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
	}

	return filepath.Clean(expanded), nil
}
