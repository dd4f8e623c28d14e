package chroma

import (
	"context"
	"fmt"
	"log"
	"os"

	"mailstream-backend/pkg/config"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
)

// VectorStore mirrors ingested documents into a Chroma collection for
// semantic retrieval. Document IDs are the same natural key as the row
// store (userID:sourceType:sourceID), so re-upserts never duplicate.
type VectorStore struct {
	client     chroma.Client
	config     *config.Config
	collection chroma.Collection
}

func NewVectorStore(cfg *config.Config) (*VectorStore, error) {
	if cfg.ChromaAPIKey == "" {
		return nil, fmt.Errorf("CHROMA_API_KEY is required")
	}

	if cfg.GeminiApiKey != "" {
		os.Setenv("GEMINI_API_KEY", cfg.GeminiApiKey)
	}

	embedFunc, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithEnvAPIKey(),
		gemini.WithDefaultModel("text-embedding-004"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
	}

	var client chroma.Client
	if cfg.ChromaDatabase != "" && cfg.ChromaTenant != "" {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
			chroma.WithDatabaseAndTenant(cfg.ChromaDatabase, cfg.ChromaTenant),
		)
	} else if cfg.ChromaTenant != "" {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
			chroma.WithTenant(cfg.ChromaTenant),
		)
	} else {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Chroma client: %w", err)
	}

	ctx := context.Background()
	collection, err := client.GetOrCreateCollection(
		ctx,
		"documents",
		chroma.WithEmbeddingFunctionCreate(embedFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	log.Printf("[Chroma] Initialized vector store with collection: documents")

	return &VectorStore{
		client:     client,
		config:     cfg,
		collection: collection,
	}, nil
}

// UpsertDocument writes one document vector, updating in place when the
// key already exists.
func (s *VectorStore) UpsertDocument(ctx context.Context, docKey, userID, sourceType, content string, embedding []float32, metadata map[string]interface{}) error {
	meta := map[string]interface{}{
		"user_id":     userID,
		"source_type": sourceType,
	}
	for k, v := range metadata {
		// Chroma metadata values must be scalar; skip anything else.
		switch v.(type) {
		case string, bool, int, int64, float32, float64:
			meta[k] = v
		}
	}

	docMeta, err := chroma.NewDocumentMetadataFromMap(meta)
	if err != nil {
		return fmt.Errorf("failed to create metadata: %w", err)
	}

	if len(embedding) > 0 {
		err = s.collection.Upsert(
			ctx,
			chroma.WithIDs(chroma.DocumentID(docKey)),
			chroma.WithMetadatas(docMeta),
			chroma.WithTexts(content),
			chroma.WithEmbeddings(embeddings.NewEmbeddingFromFloat32(embedding)),
		)
	} else {
		// Fall back to the collection's own embedding function.
		err = s.collection.Upsert(
			ctx,
			chroma.WithIDs(chroma.DocumentID(docKey)),
			chroma.WithMetadatas(docMeta),
			chroma.WithTexts(content),
		)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert document embedding: %w", err)
	}
	return nil
}

// DeleteDocument removes one document vector.
func (s *VectorStore) DeleteDocument(ctx context.Context, docKey string) error {
	if err := s.collection.Delete(ctx, chroma.WithIDsDelete(chroma.DocumentID(docKey))); err != nil {
		return fmt.Errorf("failed to delete document embedding: %w", err)
	}
	return nil
}
