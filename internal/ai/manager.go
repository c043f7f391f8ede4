package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/booktutor/internal/config"
)

type ManagerConfig struct {
	Timeout int
}

// Manager applies the call timeout and response checks shared by every
// generator and embedder.
type Manager struct {
	generator IGenerator
	embedder  IEmbedder
	cfg       ManagerConfig
}

func NewManager(generator IGenerator, embedder IEmbedder, cfg ManagerConfig) *Manager {
	return &Manager{
		generator: generator,
		embedder:  embedder,
		cfg:       cfg,
	}
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
	}
	return ctx, func() {}
}

func (m *Manager) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if m.generator == nil {
		return "", fmt.Errorf("generator not configured: %w", ErrUnavailable)
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	resp, err := m.generator.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

func (m *Manager) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("embedder not configured: %w", ErrUnavailable)
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.embedder.Embed(ctx, texts)
}

func (m *Manager) ModelName() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.ModelName()
}

// BuildGenerator turns the configured provider list into one failover group.
func BuildGenerator(items []config.AIProviderConfig) (IGenerator, error) {
	entries := make([]GeneratorEntry, 0, len(items))
	for _, item := range items {
		provider, err := NewProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init generator %s: %w", entryName(item), err)
		}
		entries = append(entries, GeneratorEntry{Name: entryName(item), Generator: NewGenerator(provider, item.Model)})
	}
	gen := NewGroupGenerator(entries)
	if gen == nil {
		return nil, fmt.Errorf("no generator configured")
	}
	return gen, nil
}

func BuildEmbedder(items []config.AIProviderConfig) (IEmbedder, error) {
	entries := make([]EmbedderEntry, 0, len(items))
	for _, item := range items {
		provider, err := NewEmbedProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init embedder %s: %w", entryName(item), err)
		}
		entries = append(entries, EmbedderEntry{Name: item.Provider + ":" + item.Model, Embedder: NewEmbedder(provider, item.Model)})
	}
	emb := NewGroupEmbedder(entries)
	if emb == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	return emb, nil
}

func entryName(item config.AIProviderConfig) string {
	if item.Name != "" {
		return item.Name
	}
	return item.Provider + ":" + item.Model
}
