// Package vendors holds the clients for external model providers.
package vendors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/cbattlegear/azure-data-chat/config"
	"github.com/cbattlegear/azure-data-chat/log"
)

// Azure AD tokens are refreshed this long before they expire, so a token
// handed to a request never runs out mid-call.
const tokenRefreshMargin = 60 * time.Second

const cognitiveServicesScope = "https://cognitiveservices.azure.com/.default"

// ChatStream is the streaming side of a chat completion. It is the subset
// of openai.ChatCompletionStream the pipeline consumes.
type ChatStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// OpenAIProvider issues chat completions against Azure OpenAI or
// api.openai.com, depending on configuration. With Azure AD credentials
// the underlying client is rebuilt whenever the access token rotates.
type OpenAIProvider struct {
	model      string
	deployment string
	endpoint   string

	mu     sync.Mutex
	client *openai.Client
	token  string
	tokens oauth2.TokenSource
}

// NewOpenAIProvider builds the provider for the configured host. Azure
// deployments authenticate with the resource api key when one is set, and
// fall back to Azure AD client credentials otherwise.
func NewOpenAIProvider(cfg *config.Config) (*OpenAIProvider, error) {
	p := &OpenAIProvider{model: cfg.ChatGPTModel}

	if cfg.UseAzureOpenAI() {
		if cfg.AzureOpenAIEndpoint == "" {
			return nil, errors.New("AZURE_OPENAI_ENDPOINT is required when OPENAI_HOST is azure")
		}
		if cfg.AzureChatGPTDeployment == "" {
			return nil, errors.New("AZURE_OPENAI_CHATGPT_DEPLOYMENT is required when OPENAI_HOST is azure")
		}
		p.endpoint = cfg.AzureOpenAIEndpoint
		p.deployment = cfg.AzureChatGPTDeployment
		if p.model == "" {
			p.model = cfg.AzureChatGPTDeployment
		}

		if cfg.AzureOpenAIAPIKey != "" {
			p.client = openai.NewClientWithConfig(p.azureConfig(cfg.AzureOpenAIAPIKey, openai.APITypeAzure))
			log.Info().
				Str("endpoint", p.endpoint).
				Str("deployment", p.deployment).
				Msg("azure openai initialized with api key")
			return p, nil
		}

		// No resource key: authenticate with the server app registration
		if cfg.TenantID == "" || cfg.ServerAppID == "" || cfg.ServerAppSecret == "" {
			return nil, errors.New("either AZURE_OPENAI_API_KEY or AZURE_TENANT_ID, AZURE_SERVER_APP_ID and AZURE_SERVER_APP_SECRET must be set")
		}
		src := clientCredentialsSource{
			conf: &clientcredentials.Config{
				ClientID:     cfg.ServerAppID,
				ClientSecret: cfg.ServerAppSecret,
				TokenURL:     cfg.Authority() + "/oauth2/v2.0/token",
				Scopes:       []string{cognitiveServicesScope},
			},
		}
		p.tokens = oauth2.ReuseTokenSourceWithExpiry(nil, src, tokenRefreshMargin)
		log.Info().
			Str("endpoint", p.endpoint).
			Str("deployment", p.deployment).
			Msg("azure openai initialized with azure ad credentials")
		return p, nil
	}

	if cfg.OpenAIAPIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required when OPENAI_HOST is openai")
	}
	if p.model == "" {
		p.model = openai.GPT3Dot5Turbo
	}
	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	clientConfig.OrgID = cfg.OpenAIOrganization
	p.client = openai.NewClientWithConfig(clientConfig)
	log.Info().Str("model", p.model).Msg("openai initialized")
	return p, nil
}

// Model returns the model name requests are issued under.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// ChatCompletion runs a blocking chat completion. The configured model is
// filled in when the request leaves it empty.
func (p *OpenAIProvider) ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	client, err := p.activeClient()
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	if req.Model == "" {
		req.Model = p.model
	}

	log.Debug().
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Float32("temperature", req.Temperature).
		Int("maxTokens", req.MaxTokens).
		Msg("chat completion request")

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}

	log.Debug().
		Int("promptTokens", resp.Usage.PromptTokens).
		Int("completionTokens", resp.Usage.CompletionTokens).
		Msg("chat completion response")
	return resp, nil
}

// ChatCompletionStream starts a streaming chat completion. The caller owns
// the stream and must Close it.
func (p *OpenAIProvider) ChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error) {
	client, err := p.activeClient()
	if err != nil {
		return nil, err
	}
	if req.Model == "" {
		req.Model = p.model
	}

	log.Debug().
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Msg("chat completion stream request")

	stream, err := client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion stream failed: %w", err)
	}
	return stream, nil
}

// activeClient returns the client to use for the next call. With a static
// api key that is a fixed client; with Azure AD credentials the current
// token is fetched from the source and the client is rebuilt when the
// token has rotated since the last call.
func (p *OpenAIProvider) activeClient() (*openai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tokens == nil {
		return p.client, nil
	}

	tok, err := p.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire azure ad token: %w", err)
	}
	if p.client == nil || p.token != tok.AccessToken {
		p.client = openai.NewClientWithConfig(p.azureConfig(tok.AccessToken, openai.APITypeAzureAD))
		p.token = tok.AccessToken
		log.Debug().Time("expiry", tok.Expiry).Msg("openai client rebuilt with fresh azure ad token")
	}
	return p.client, nil
}

// azureConfig builds the client config for the Azure endpoint, mapping
// every model name onto the configured deployment.
func (p *OpenAIProvider) azureConfig(credential string, apiType openai.APIType) openai.ClientConfig {
	clientConfig := openai.DefaultAzureConfig(credential, p.endpoint)
	clientConfig.APIType = apiType
	deployment := p.deployment
	clientConfig.AzureModelMapperFunc = func(string) string { return deployment }
	return clientConfig
}

// clientCredentialsSource fetches a fresh Azure AD token on every call.
// Callers wrap it in a reusing source; going through Token (rather than
// the config's own TokenSource) keeps the refresh margin in one place.
type clientCredentialsSource struct {
	conf *clientcredentials.Config
}

func (s clientCredentialsSource) Token() (*oauth2.Token, error) {
	return s.conf.Token(context.Background())
}
