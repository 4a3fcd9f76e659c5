package chroma

import (
	"context"
	"fmt"
	"log"
	"os"

	"mailvault-backend/internal/ingest/domain"
	"mailvault-backend/pkg/config"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	defaultef "github.com/amikos-tech/chroma-go/pkg/embeddings/default_ef"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
)

// Hit is one similarity-search result. Score is a similarity (1 - distance):
// higher is better, results are ordered best-first. Scores are only comparable
// within a single embedding model; switching models requires a full rebuild.
type Hit struct {
	MessageID string  `json:"message_id"`
	Score     float64 `json:"score"`
}

// Client wraps the Chroma collection holding one vector entry per stored
// message, keyed by message id.
type Client struct {
	client     chroma.Client
	embedFunc  embeddings.EmbeddingFunction
	efClose    func() error
	config     *config.Config
	collection chroma.Collection
}

func NewClient(cfg *config.Config) (*Client, error) {
	var embedFunc embeddings.EmbeddingFunction
	var efClose func() error

	if cfg.GeminiApiKey != "" {
		os.Setenv("GEMINI_API_KEY", cfg.GeminiApiKey)
		ef, err := gemini.NewGeminiEmbeddingFunction(
			gemini.WithEnvAPIKey(),
			gemini.WithDefaultModel("text-embedding-004"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
		}
		embedFunc = ef
	} else {
		// Local ONNX MiniLM embedding function, CPU-only, consistent across
		// ingest and query.
		ef, closef, err := defaultef.NewDefaultEmbeddingFunction()
		if err != nil {
			return nil, fmt.Errorf("failed to create default embedding function: %w", err)
		}
		embedFunc = ef
		efClose = closef
	}

	var client chroma.Client
	var err error
	if cfg.ChromaAPIKey != "" && cfg.ChromaDatabase != "" && cfg.ChromaTenant != "" {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
			chroma.WithDatabaseAndTenant(cfg.ChromaDatabase, cfg.ChromaTenant),
		)
	} else {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(cfg.ChromaURL),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Chroma client: %w", err)
	}

	collection, err := client.GetOrCreateCollection(
		context.Background(),
		cfg.ChromaCollection,
		chroma.WithEmbeddingFunctionCreate(embedFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	log.Printf("[Chroma] Initialized client with collection: %s", cfg.ChromaCollection)

	return &Client{
		client:     client,
		embedFunc:  embedFunc,
		efClose:    efClose,
		config:     cfg,
		collection: collection,
	}, nil
}

// Close releases the local embedding runtime, if one is in use.
func (c *Client) Close() error {
	if c.efClose != nil {
		return c.efClose()
	}
	return nil
}

// UpsertMessages computes embeddings for a batch of records and upserts them
// keyed by message id, replacing any prior vector for the same id.
func (c *Client) UpsertMessages(ctx context.Context, records []*domain.MessageRecord) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]chroma.DocumentID, 0, len(records))
	texts := make([]string, 0, len(records))
	metadatas := make([]chroma.DocumentMetadata, 0, len(records))

	for _, rec := range records {
		text := fmt.Sprintf("Subject: %s\n\nBody: %s", rec.Subject, rec.Body)
		if len(text) > 10000 {
			// Truncate if too long (embedding models have token limits)
			text = text[:10000]
		}

		metadata, err := chroma.NewDocumentMetadataFromMap(map[string]interface{}{
			"message_id": rec.MessageID,
			"folder_id":  rec.FolderID,
			"subject":    rec.Subject,
		})
		if err != nil {
			return fmt.Errorf("failed to create metadata: %w", err)
		}

		ids = append(ids, chroma.DocumentID(rec.MessageID))
		texts = append(texts, text)
		metadatas = append(metadatas, metadata)
	}

	err := c.collection.Upsert(
		ctx,
		chroma.WithIDs(ids...),
		chroma.WithMetadatas(metadatas...),
		chroma.WithTexts(texts...),
	)
	if err != nil {
		return domain.WrapError(domain.ErrEmbeddingUnavailable, "Could not index message batch", err)
	}

	return nil
}

// Delete removes the entries for the given message ids. Absent ids are
// ignored by Chroma.
func (c *Client) Delete(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	ids := make([]chroma.DocumentID, len(messageIDs))
	for i, id := range messageIDs {
		ids[i] = chroma.DocumentID(id)
	}

	if err := c.collection.Delete(ctx, chroma.WithIDsDelete(ids...)); err != nil {
		return domain.WrapError(domain.ErrEmbeddingUnavailable, "Could not delete index entries", err)
	}
	return nil
}

// DeleteAll drops and recreates the collection.
func (c *Client) DeleteAll(ctx context.Context) error {
	if err := c.client.DeleteCollection(ctx, c.config.ChromaCollection); err != nil {
		return domain.WrapError(domain.ErrEmbeddingUnavailable, "Could not clear the index", err)
	}

	collection, err := c.client.GetOrCreateCollection(
		ctx,
		c.config.ChromaCollection,
		chroma.WithEmbeddingFunctionCreate(c.embedFunc),
	)
	if err != nil {
		return domain.WrapError(domain.ErrEmbeddingUnavailable, "Could not recreate the index collection", err)
	}
	c.collection = collection
	return nil
}

// Count returns the number of index entries.
func (c *Client) Count(ctx context.Context) (int, error) {
	count, err := c.collection.Count(ctx)
	if err != nil {
		return 0, domain.WrapError(domain.ErrEmbeddingUnavailable, "Could not count index entries", err)
	}
	return count, nil
}

// Search embeds query and returns up to k nearest entries, best-first.
func (c *Client) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		k = 4
	}

	results, err := c.collection.Query(
		ctx,
		chroma.WithQueryTexts(query),
		chroma.WithNResults(k),
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "Could not query the index", err)
	}

	if results == nil || results.CountGroups() == 0 {
		return []Hit{}, nil
	}

	idGroups := results.GetIDGroups()
	distanceGroups := results.GetDistancesGroups()
	if len(idGroups) == 0 || len(idGroups[0]) == 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		hit := Hit{MessageID: string(id)}
		if len(distanceGroups) > 0 && i < len(distanceGroups[0]) {
			hit.Score = 1 - float64(distanceGroups[0][i])
		}
		hits = append(hits, hit)
	}

	return hits, nil
}
