package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration, read from the process
// environment. Variable names match the ones the deployment templates set.
type Config struct {
	// Server settings
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	Port int    `envconfig:"PORT" default:"8000"`

	// Base path reported to the client and location of the built frontend
	BasePath  string `envconfig:"DATA_CHAT_BASE_PATH" default:"/"`
	StaticDir string `envconfig:"STATIC_DIR" default:"static"`

	// Shared by all OpenAI deployments
	OpenAIHost   string `envconfig:"OPENAI_HOST" default:"azure"`
	ChatGPTModel string `envconfig:"AZURE_OPENAI_CHATGPT_MODEL"`

	// Used with Azure OpenAI deployments
	AzureOpenAIEndpoint      string `envconfig:"AZURE_OPENAI_ENDPOINT"`
	AzureChatGPTDeployment   string `envconfig:"AZURE_OPENAI_CHATGPT_DEPLOYMENT"`
	AzureEmbeddingDeployment string `envconfig:"AZURE_OPENAI_EMB_DEPLOYMENT"`
	AzureOpenAIAPIKey        string `envconfig:"AZURE_OPENAI_API_KEY"`
	EmbeddingModel           string `envconfig:"AZURE_OPENAI_EMB_MODEL_NAME" default:"text-embedding-ada-002"`

	// Used only with non-Azure OpenAI deployments
	OpenAIAPIKey       string `envconfig:"OPENAI_API_KEY"`
	OpenAIOrganization string `envconfig:"OPENAI_ORGANIZATION"`

	// Database the chat pipeline retrieves from
	DatabaseConnectionString string        `envconfig:"DATABASE_CONNECTION_STRING"`
	MaxQueryRows             int           `envconfig:"MAX_QUERY_ROWS" default:"100"`
	QueryTimeout             time.Duration `envconfig:"QUERY_TIMEOUT" default:"30s"`
	SchemaCacheTTL           time.Duration `envconfig:"SCHEMA_CACHE_TTL" default:"15m"`

	// Azure AD login (optional)
	UseAuthentication bool   `envconfig:"AZURE_USE_AUTHENTICATION" default:"false"`
	ServerAppID       string `envconfig:"AZURE_SERVER_APP_ID"`
	ServerAppSecret   string `envconfig:"AZURE_SERVER_APP_SECRET"`
	ClientAppID       string `envconfig:"AZURE_CLIENT_APP_ID"`
	TenantID          string `envconfig:"AZURE_TENANT_ID"`
	TokenCachePath    string `envconfig:"TOKEN_CACHE_PATH"`

	// CORS allowed origin; empty leaves CORS disabled
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN"`

	// Logging
	LogLevel string `envconfig:"APP_LOG_LEVEL"`

	// Set by Azure App Service; presence means we run in production
	WebsiteHostname string `envconfig:"WEBSITE_HOSTNAME"`
}

var (
	cfg  *Config
	once sync.Once
)

// Get returns the global configuration (singleton)
func Get() *Config {
	once.Do(func() {
		cfg = load()
	})
	return cfg
}

// load reads configuration from environment variables
func load() *Config {
	c := &Config{}
	envconfig.MustProcess("", c)
	return c
}

// IsProduction returns true when running on App Service (or anywhere
// WEBSITE_HOSTNAME is set)
func (c *Config) IsProduction() bool {
	return c.WebsiteHostname != ""
}

// UseAzureOpenAI returns true when completions go through an Azure OpenAI
// deployment rather than api.openai.com
func (c *Config) UseAzureOpenAI() bool {
	return strings.EqualFold(c.OpenAIHost, "azure")
}

// Authority returns the Azure AD v2.0 authority URL for the configured tenant
func (c *Config) Authority() string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s", c.TenantID)
}

// Addr returns the host:port the HTTP server binds to
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
