package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaEmbedder calls a local Ollama server's embed endpoint.
type OllamaEmbedder struct {
	client     *api.Client
	model      string
	dimensions int
}

// NewOllamaEmbedder connects to baseURL, or to $OLLAMA_HOST when baseURL is
// empty. Default model: nomic-embed-text (768 dims).
func NewOllamaEmbedder(baseURL, model string, dimensions int) (*OllamaEmbedder, error) {
	var client *api.Client
	if baseURL == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("creating ollama client: %w", err)
		}
		client = c
	} else {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing ollama url: %w", err)
		}
		client = api.NewClient(u, &http.Client{Timeout: 60 * time.Second})
	}

	if model == "" {
		model = "nomic-embed-text"
	}
	if dimensions <= 0 {
		dimensions = 768
	}
	return &OllamaEmbedder{client: client, model: model, dimensions: dimensions}, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if err := checkCount("ollama", len(resp.Embeddings), len(texts)); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

func (e *OllamaEmbedder) Dimensions() int { return e.dimensions }
