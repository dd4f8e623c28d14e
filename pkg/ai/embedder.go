// Package ai wraps the external embedding model behind a small interface
// so the ingestion pipeline can treat it as text in, vector out.
package ai

import (
	"context"
	"fmt"
	"os"

	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
)

// maxEmbedInput caps the text sent to the embedding model; the model has
// a token window and long newsletters blow past it.
const maxEmbedInput = 10000

// Embedder converts canonical text into a fixed-length vector.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// GeminiEmbedder implements Embedder using the Gemini embedding model.
type GeminiEmbedder struct {
	embedFunc *gemini.GeminiEmbeddingFunction
}

// NewGeminiEmbedder creates an embedder backed by text-embedding-004.
func NewGeminiEmbedder(apiKey string) (*GeminiEmbedder, error) {
	if apiKey != "" {
		os.Setenv("GEMINI_API_KEY", apiKey)
	}

	embedFunc, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithEnvAPIKey(),
		gemini.WithDefaultModel("text-embedding-004"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
	}

	return &GeminiEmbedder{embedFunc: embedFunc}, nil
}

func (e *GeminiEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if len(text) > maxEmbedInput {
		text = text[:maxEmbedInput]
	}

	embedding, err := e.embedFunc.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}

	return embedding.ContentAsFloat32(), nil
}
