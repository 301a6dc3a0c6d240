package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"chatrelay/internal/llm"
)

const (
	ProviderOpenAI      = "openai"
	ProviderHuggingFace = "huggingface"
)

// Config is the process-wide configuration. It is built once by Load and
// treated as read-only afterwards.
type Config struct {
	Port           string `env:"PORT" default:"8000" help:"Port to listen on." validate:"required,numeric"`
	FrontendOrigin string `env:"FRONTEND_ORIGIN" default:"http://localhost:5500" help:"The only origin allowed by CORS." validate:"required,url"`

	Provider string `env:"RELAY_PROVIDER" default:"openai" enum:"openai,huggingface" help:"Upstream flavour: openai (pass-through) or huggingface (prompt flattening)." validate:"oneof=openai huggingface"`
	Model    string `env:"RELAY_MODEL" default:"HuggingFaceH4/zephyr-7b-beta" help:"Hosted model id, used by the huggingface provider." validate:"required_if=Provider huggingface"`
	BaseURL  string `env:"RELAY_BASE_URL" help:"Override the provider base URL." validate:"omitempty,url"`

	OpenAIAPIKey string `name:"openai-api-key" env:"OPENAI_API_KEY" help:"Bearer token for the openai provider."`
	HFAPIKey     string `name:"hf-api-key" env:"HF_API_KEY" help:"Bearer token for the huggingface provider."`

	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" default:"30s" help:"Bound on each upstream call." validate:"gt=0"`

	MaxNewTokens int     `env:"HF_MAX_NEW_TOKENS" default:"512" help:"max_new_tokens sent to huggingface." validate:"gt=0"`
	Temperature  float64 `env:"HF_TEMPERATURE" default:"0.7" help:"Sampling temperature sent to huggingface." validate:"gte=0"`
	TopP         float64 `env:"HF_TOP_P" default:"0.95" help:"Nucleus sampling threshold sent to huggingface." validate:"gt=0,lte=1"`
}

// StartupConfigError is fatal: the process must not serve requests.
type StartupConfigError struct {
	Reason string
	Err    error
}

func (e *StartupConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("startup config: %s: %v", e.Reason, e.Err)
	}
	return "startup config: " + e.Reason
}

func (e *StartupConfigError) Unwrap() error {
	return e.Err
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Name fields after the variable an operator would set.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if env := f.Tag.Get("env"); env != "" {
			return env
		}
		return f.Name
	})
	return v
}

// LoadDotEnv loads variables from the given files (".env" when none are
// given). Missing files are skipped; variables already set are kept.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load parses args and the environment into a validated Config.
func Load(args []string, options ...kong.Option) (*Config, error) {
	var cfg Config

	options = append([]kong.Option{
		kong.Name("chatrelay"),
		kong.Description("Relay chat requests from a frontend to a hosted LLM provider."),
		kong.UsageOnError(),
	}, options...)

	parser, err := kong.New(&cfg, options...)
	if err != nil {
		return nil, fmt.Errorf("build flag parser: %w", err)
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, &StartupConfigError{Reason: "parse flags", Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and that the selected provider has a key.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &StartupConfigError{
				Reason: fmt.Sprintf("%s failed %q validation (value %v)", fe.Field(), fe.Tag(), fe.Value()),
				Err:    err,
			}
		}
		return &StartupConfigError{Reason: "invalid config", Err: err}
	}

	if strings.TrimSpace(c.APIKey()) == "" {
		return &StartupConfigError{Reason: c.APIKeyEnv() + " is not set"}
	}
	return nil
}

// APIKey returns the bearer token for the selected provider.
func (c *Config) APIKey() string {
	if c.Provider == ProviderHuggingFace {
		return c.HFAPIKey
	}
	return c.OpenAIAPIKey
}

// APIKeyEnv names the variable APIKey is read from.
func (c *Config) APIKeyEnv() string {
	if c.Provider == ProviderHuggingFace {
		return "HF_API_KEY"
	}
	return "OPENAI_API_KEY"
}

func (c *Config) Addr() string {
	return ":" + c.Port
}

// Adapter builds the upstream adapter for the selected provider.
func (c *Config) Adapter() llm.Adapter {
	if c.Provider == ProviderHuggingFace {
		return llm.NewHuggingFaceAdapter(c.BaseURL, c.Model, llm.GenerationParams{
			MaxNewTokens: c.MaxNewTokens,
			Temperature:  c.Temperature,
			TopP:         c.TopP,
		})
	}
	return llm.NewOpenAIAdapter(c.BaseURL)
}

// RelayConfig returns the llm client settings derived from c.
func (c *Config) RelayConfig() llm.Config {
	return llm.Config{
		APIKey:          strings.TrimSpace(c.APIKey()),
		UpstreamTimeout: c.UpstreamTimeout,
	}
}
