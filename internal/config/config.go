// manifold/config.go

package config

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"
)

// ObsConfig is the shape observability.InitOTel expects.
type ObsConfig struct {
	OTLP           string `yaml:"otlp_endpoint"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
}

// OpenAIConfig configures the OpenAI-compatible chat-completions client. It
// also serves self-hosted OpenAI-compatible backends (llama.cpp, mlx_lm)
// when BaseURL points elsewhere.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
	API     string `yaml:"api,omitempty"` // not read by the openai client, which always uses chat completions
}

type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
}

type GoogleConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
	Timeout int    `yaml:"timeout_seconds,omitempty"`
}

// LLMClientConfig selects and configures the model client the executor uses
// (internal/llm/providers.Build switches on Provider).
type LLMClientConfig struct {
	Provider  string          `yaml:"provider"` // "" | "openai" | "local" | "anthropic" | "google"
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Google    GoogleConfig    `yaml:"google"`
}

// RedisConfig configures the go-redis/v9 client shared by the Memory Store
// and the Sensitive-Data Processor's forward/reverse hashes.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
}

// MCPHTTPConfig configures the transport used to reach a remote MCP server.
type MCPHTTPConfig struct {
	ProxyURL       string `yaml:"proxy_url,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
	TLS            struct {
		InsecureSkipVerify bool `yaml:"insecure_skip_verify,omitempty"`
	} `yaml:"tls,omitempty"`
}

// MCPServerConfig describes one MCP server to connect to, either over stdio
// (Command/Args/Env) or Streamable HTTP (URL).
type MCPServerConfig struct {
	Name             string            `yaml:"name"`
	Command          string            `yaml:"command,omitempty"`
	Args             []string          `yaml:"args,omitempty"`
	Env              map[string]string `yaml:"env,omitempty"`
	URL              string            `yaml:"url,omitempty"`
	Headers          map[string]string `yaml:"headers,omitempty"`
	BearerToken      string            `yaml:"bearer_token,omitempty"`
	Origin           string            `yaml:"origin,omitempty"`
	ProtocolVersion  string            `yaml:"protocol_version,omitempty"`
	KeepAliveSeconds int               `yaml:"keep_alive_seconds,omitempty"`
	HTTP             MCPHTTPConfig     `yaml:"http,omitempty"`
}

type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers,omitempty"`
}

// SensitiveFieldDescriptorConfig mirrors sensitive.FieldConfig in a
// YAML-serializable shape for wiring via an HTTP tool descriptor.
type SensitiveFieldDescriptorConfig struct {
	Path           string  `yaml:"path"`
	MaskType       string  `yaml:"mask_type"` // "full" | "partial" | "pattern"
	Identifier     string  `yaml:"identifier,omitempty"`
	AddFlag        bool    `yaml:"add_flag,omitempty"`
	Pattern        string  `yaml:"pattern,omitempty"`
	MaskPercentage float64 `yaml:"mask_percentage,omitempty"`
	MaxMaskLength  int     `yaml:"max_mask_length,omitempty"`
}

// ToolAuthConfig declares where an HTTP tool's static credential is injected.
type ToolAuthConfig struct {
	Location string `yaml:"location,omitempty"` // "header" | "param"
	Key      string `yaml:"key,omitempty"`
	Value    string `yaml:"value,omitempty"`
}

// ToolDescriptorConfig is the on-disk shape of one HTTP tool (§3 Tool
// descriptor, HTTP variant). internal/tools turns each into an
// httptool.Descriptor plus its model-facing JSON schema at startup.
type ToolDescriptorConfig struct {
	Name                    string                           `yaml:"name"`
	Description             string                           `yaml:"description,omitempty"`
	Origin                  string                           `yaml:"origin"`
	Path                    string                           `yaml:"path"`
	Method                  string                           `yaml:"method"`
	IsStream                bool                             `yaml:"is_stream,omitempty"`
	Auth                    ToolAuthConfig                   `yaml:"auth,omitempty"`
	ParametersSchema        map[string]any                   `yaml:"parameters_schema,omitempty"`
	ResponseSensitiveFields []SensitiveFieldDescriptorConfig `yaml:"response_sensitive_fields,omitempty"`
	RecoverableFields       map[string][]string              `yaml:"recoverable_fields,omitempty"`
	NestedSensitiveFields   []string                         `yaml:"nested_sensitive_fields,omitempty"`
}

// AgentConfig configures the reason-act loop's per-run bounds (§4.1, §5).
type AgentConfig struct {
	Mode             string   `yaml:"mode"` // "react" | "prompt" | "deepthink"
	ModelRef         string   `yaml:"model_ref,omitempty"`
	MaxSteps         int      `yaml:"max_steps"`
	SystemPrompt     string   `yaml:"system_prompt,omitempty"`
	DemuxWindow      int      `yaml:"demux_window,omitempty"`
	StopWords        []string `yaml:"stop_words,omitempty"`
	ToolNames        []string `yaml:"tool_names,omitempty"`
	DeepThinkURL     string   `yaml:"deep_think_url,omitempty"`
	SummaryEnabled   bool     `yaml:"summary_enabled,omitempty"`
	SummaryThreshold int      `yaml:"summary_threshold,omitempty"`
	SummaryKeepLast  int      `yaml:"summary_keep_last,omitempty"`
	HistoryK         int      `yaml:"history_k,omitempty"`
}

type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	LLMClient LLMClientConfig        `yaml:"llm_client"`
	Redis     RedisConfig            `yaml:"redis"`
	MCP       MCPConfig              `yaml:"mcp,omitempty"`
	Agent     AgentConfig            `yaml:"agent"`
	HTTPTools []ToolDescriptorConfig `yaml:"http_tools,omitempty"`
	Obs       ObsConfig              `yaml:"obs"`
}

// LoadConfig reads the configuration from a YAML file, unmarshals it into a Config struct,
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		pterm.Error.Printf("Error reading config file: %v\n", err)
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		pterm.Error.Printf("Error unmarshaling config: %v\n", err)
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Obs.ServiceName == "" {
		config.Obs.ServiceName = "manifold"
	}

	if config.Agent.MaxSteps <= 0 {
		config.Agent.MaxSteps = 12
		pterm.Info.Println("No agent.max_steps specified, using default (12).")
	}
	if config.Agent.Mode == "" {
		config.Agent.Mode = "react"
	}
	if config.Agent.HistoryK <= 0 {
		config.Agent.HistoryK = 20
	}

	pterm.Success.Println("Configuration loaded successfully.")
	return &config, nil
}
