// Package vectorstore adapts the teacher's pkg/chroma Chroma Cloud +
// Gemini embedding wiring into the generic per-user VectorStore the
// Ingestion Pipeline (C5) and Tool-Server (C9) both depend on. Per
// spec §5, the vector store is assumed concurrency-safe; this package
// adds no locking of its own beyond a map guard for per-user collection
// handles.
package vectorstore

import (
	"context"
	"os"
	"sync"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"

	"github.com/syncorch/syncd/pkg/config"
	"github.com/syncorch/syncd/pkg/errs"
	"github.com/syncorch/syncd/pkg/logging"
)

// Chunk is one recursively-split piece of a document, produced by the
// black-box chunker the Ingestion Pipeline calls before Upsert.
type Chunk struct {
	ID       string
	Text     string
	Metadata map[string]interface{}
}

// ScoredChunk is one retrieval hit.
type ScoredChunk struct {
	ID       string
	Preview  string
	Score    float64
	Metadata map[string]interface{}
}

// Store is the VectorStore contract: Upsert accumulates chunks into a
// user's collection, Query performs a similarity search scoped to that
// user. Both operations are server-fixed in every parameter the
// Tool-Server is not allowed to forward from a caller (§4.9).
type Store struct {
	client    chroma.Client
	embedFunc *gemini.GeminiEmbeddingFunction
	log       *logging.Logger

	mu          sync.Mutex
	collections map[string]chroma.Collection
}

func New(cfg *config.Config) (*Store, error) {
	if cfg.ChromaAPIKey == "" {
		return nil, errs.New(errs.InvalidArgument, "CHROMA_API_KEY is required", nil)
	}
	if cfg.GeminiAPIKey != "" {
		os.Setenv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	}

	embedFunc, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithEnvAPIKey(),
		gemini.WithDefaultModel("text-embedding-004"),
	)
	if err != nil {
		return nil, errs.New(errs.StorageError, "failed to create Gemini embedding function", err)
	}

	var client chroma.Client
	switch {
	case cfg.ChromaDatabase != "" && cfg.ChromaTenant != "":
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
			chroma.WithDatabaseAndTenant(cfg.ChromaDatabase, cfg.ChromaTenant),
		)
	case cfg.ChromaTenant != "":
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
			chroma.WithTenant(cfg.ChromaTenant),
		)
	default:
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
		)
	}
	if err != nil {
		return nil, errs.New(errs.StorageError, "failed to create Chroma client", err)
	}

	return &Store{
		client:      client,
		embedFunc:   embedFunc,
		log:         logging.New("VectorStore"),
		collections: make(map[string]chroma.Collection),
	}, nil
}

func (s *Store) collectionFor(ctx context.Context, userID string) (chroma.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := "user_" + userID
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c, err := s.client.GetOrCreateCollection(ctx, name, chroma.WithEmbeddingFunctionCreate(s.embedFunc))
	if err != nil {
		return nil, errs.New(errs.StorageError, "failed to create collection", err)
	}
	s.collections[name] = c
	return c, nil
}

// Upsert writes chunks into userID's collection, using each chunk's own
// ID as the document ID so re-ingestion (same docId → same chunk ids)
// overwrites rather than duplicates.
func (s *Store) Upsert(ctx context.Context, userID string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	collection, err := s.collectionFor(ctx, userID)
	if err != nil {
		return err
	}

	ids := make([]chroma.DocumentID, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	metadatas := make([]chroma.DocumentMetadata, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, chroma.DocumentID(c.ID))
		texts = append(texts, c.Text)
		md, err := chroma.NewDocumentMetadataFromMap(c.Metadata)
		if err != nil {
			return errs.New(errs.StorageError, "failed to build chunk metadata", err)
		}
		metadatas = append(metadatas, md)
	}

	if err := collection.Upsert(ctx,
		chroma.WithIDs(ids...),
		chroma.WithTexts(texts...),
		chroma.WithMetadatas(metadatas...),
	); err != nil {
		return errs.New(errs.TransientUpstream, "vector store upsert failed", err)
	}
	s.log.Printf("upserted %d chunks for user %s", len(chunks), userID)
	return nil
}

// Query runs a similarity search over userID's collection. topK and
// minScore are server-fixed values supplied by the caller (C9's
// multiplexer refuses to accept them from the remote prompt).
func (s *Store) Query(ctx context.Context, userID, prompt string, topK int, minScore float64) ([]ScoredChunk, error) {
	collection, err := s.collectionFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	results, err := collection.Query(ctx,
		chroma.WithQueryTexts(prompt),
		chroma.WithNResults(topK),
	)
	if err != nil {
		return nil, errs.New(errs.TransientUpstream, "vector store query failed", err)
	}
	if results == nil || results.CountGroups() == 0 {
		return nil, nil
	}

	idGroups := results.GetIDGroups()
	distanceGroups := results.GetDistancesGroups()
	docGroups := results.GetDocumentsGroups()
	metaGroups := results.GetMetadatasGroups()
	if len(idGroups) == 0 {
		return nil, nil
	}

	out := make([]ScoredChunk, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		score := 0.0
		if len(distanceGroups) > 0 && i < len(distanceGroups[0]) {
			// Chroma reports distance; similarity score is its complement
			// for the default cosine space, matching the spec's min_score
			// (higher is better) semantics.
			score = 1 - float64(distanceGroups[0][i])
		}
		if score < minScore {
			continue
		}
		preview := ""
		if len(docGroups) > 0 && i < len(docGroups[0]) {
			preview = truncate(docGroups[0][i], 400)
		}
		var metadata map[string]interface{}
		if len(metaGroups) > 0 && i < len(metaGroups[0]) && metaGroups[0][i] != nil {
			metadata = metaGroups[0][i].AsMap()
		}
		out = append(out, ScoredChunk{ID: string(id), Preview: preview, Score: score, Metadata: metadata})
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
