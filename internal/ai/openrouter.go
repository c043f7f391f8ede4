package ai

import (
	"net/http"
	"strings"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

type openrouterConfig struct {
	APIKey      string `json:"api_key"`
	BaseURL     string `json:"base_url"`
	HTTPReferer string `json:"http_referer"`
	XTitle      string `json:"x_title"`
}

// headerTransport adds the attribution headers openrouter uses for rankings.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		clone.Header.Set(k, v)
	}
	return t.base.RoundTrip(clone)
}

func createOpenRouterFactory(args interface{}) (IAIProvider, error) {
	cfg := &openrouterConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	provider := &openAIProvider{name: "openrouter"}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return provider, nil
	}
	headers := map[string]string{}
	if v := strings.TrimSpace(cfg.HTTPReferer); v != "" {
		headers["HTTP-Referer"] = v
	}
	if v := strings.TrimSpace(cfg.XTitle); v != "" {
		headers["X-Title"] = v
	}
	var httpClient *http.Client
	if len(headers) > 0 {
		httpClient = &http.Client{Transport: &headerTransport{base: http.DefaultTransport, headers: headers}}
	}
	provider.client = newOpenAIClient(&openAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL}, defaultOpenRouterBaseURL, httpClient)
	return provider, nil
}

func init() {
	Register("openrouter", createOpenRouterFactory)
}
