package ai

import "context"

// EmbeddingProvider binds the client to one embedding deployment so callers
// hold a single-method capability instead of passing config around.
type EmbeddingProvider struct {
	client *OpenAICompatibleClient
	cfg    EmbeddingConfig
}

func NewEmbeddingProvider(client *OpenAICompatibleClient, cfg EmbeddingConfig) *EmbeddingProvider {
	return &EmbeddingProvider{client: client, cfg: cfg}
}

func (p *EmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.client.Embed(ctx, p.cfg, text)
}

func (p *EmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return p.client.EmbedBatch(ctx, p.cfg, texts)
}

// GenerationProvider binds the client to one generation deployment.
type GenerationProvider struct {
	client *OpenAICompatibleClient
	cfg    GenerationConfig
}

func NewGenerationProvider(client *OpenAICompatibleClient, cfg GenerationConfig) *GenerationProvider {
	return &GenerationProvider{client: client, cfg: cfg}
}

func (p *GenerationProvider) Stream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	return p.client.StreamCompletion(ctx, p.cfg, prompt)
}
