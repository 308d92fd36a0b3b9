// Package embedder turns chunk texts into vectors through the integration
// bridge, using the knowledge's configured provider and vault credential.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/yungbote/knowledge-indexer/internal/bridges"
	"github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/observability"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

var (
	// ErrCredentialIDNotFound means the knowledge has no rapida.credential_id
	// embedding option, or it is not a valid id.
	ErrCredentialIDNotFound = errors.New("embedder: credential id not found in model parameters")
	// ErrIllegalCredentialState means the vault returned a credential with no value.
	ErrIllegalCredentialState = errors.New("embedder: credential has no value")
)

const (
	metricTotalToken = "TOTAL_TOKEN"
	metricInputToken = "INPUT_TOKEN"
)

// Embedder embeds texts, returning vectors in input order and the provider's
// token count.
type Embedder interface {
	InvokeTextEmbedding(ctx context.Context, texts []string) ([][]float32, int, error)
}

type CredentialSource interface {
	GetCredential(ctx context.Context, auth bridges.Auth, credentialID uint64) (*bridges.VaultCredential, error)
}

type EmbeddingClient interface {
	Embedding(ctx context.Context, auth bridges.Auth, provider string, req bridges.EmbeddingRequest) ([]bridges.Embedding, []bridges.Metric, error)
}

// Factory builds a fresh Embedder for one indexing run.
type Factory func(k *knowledge.Knowledge, doc *knowledge.KnowledgeDocument) Embedder

// NewFactory returns a Factory that creates one ModelManager per run, so
// credentials are never shared between runs.
func NewFactory(vault CredentialSource, integration EmbeddingClient, log *logger.Logger) Factory {
	return func(k *knowledge.Knowledge, doc *knowledge.KnowledgeDocument) Embedder {
		return NewModelManager(vault, integration, k, doc, log)
	}
}

// ModelManager resolves the vault credential at most once and reuses it for
// every embedding call of its run.
type ModelManager struct {
	log         *logger.Logger
	vault       CredentialSource
	integration EmbeddingClient

	auth       bridges.Auth
	provider   string
	params     map[string]string
	references map[string]string

	mu         sync.Mutex
	credential *bridges.Credential
}

func NewModelManager(vault CredentialSource, integration EmbeddingClient, k *knowledge.Knowledge, doc *knowledge.KnowledgeDocument, log *logger.Logger) *ModelManager {
	refs := map[string]string{"knowledge_id": strconv.FormatUint(k.ID, 10)}
	if doc != nil {
		refs["knowledge_document_id"] = strconv.FormatUint(doc.ID, 10)
	}
	return &ModelManager{
		log:         log.With("component", "ModelManager", "knowledge_id", k.ID),
		vault:       vault,
		integration: integration,
		auth:        bridges.Auth{ProjectID: k.ProjectID, OrganizationID: k.OrganizationID},
		provider:    k.EmbeddingModelProviderName,
		params:      k.ModelParameters(),
		references:  refs,
	}
}

func (m *ModelManager) resolveCredential(ctx context.Context) (*bridges.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.credential != nil {
		return m.credential, nil
	}

	raw := strings.TrimSpace(m.params[knowledge.ModelParamCredentialID])
	if raw == "" {
		return nil, ErrCredentialIDNotFound
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrCredentialIDNotFound, raw)
	}

	vc, err := m.vault.GetCredential(ctx, m.auth, id)
	if err != nil {
		return nil, err
	}
	if vc == nil || len(vc.Value) == 0 {
		return nil, ErrIllegalCredentialState
	}
	m.credential = &bridges.Credential{ID: vc.ID, Value: vc.Value}
	m.log.Debug("credential resolved", "credential_id", vc.ID)
	return m.credential, nil
}

func (m *ModelManager) InvokeTextEmbedding(ctx context.Context, texts []string) ([][]float32, int, error) {
	cred, err := m.resolveCredential(ctx)
	if err != nil {
		return nil, 0, err
	}
	if len(texts) == 0 {
		return nil, 0, nil
	}

	content := make(map[int32]string, len(texts))
	for i, t := range texts {
		content[int32(i)] = t
	}
	embs, metrics, err := m.integration.Embedding(ctx, m.auth, m.provider, bridges.EmbeddingRequest{
		Credential:      *cred,
		Content:         content,
		ModelParameters: m.params,
		AdditionalData:  m.references,
	})
	if err != nil {
		observability.Current().IncEmbeddingRequest(m.provider, "error")
		return nil, 0, err
	}
	observability.Current().IncEmbeddingRequest(m.provider, "success")

	vectors := make([][]float32, len(texts))
	for _, e := range embs {
		if e.Index < 0 || int(e.Index) >= len(texts) {
			return nil, 0, fmt.Errorf("embedder: provider returned index %d for %d texts", e.Index, len(texts))
		}
		vectors[e.Index] = e.Vector
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, 0, fmt.Errorf("embedder: no embedding for text %d", i)
		}
	}
	return vectors, tokenCount(metrics), nil
}

// tokenCount prefers TOTAL_TOKEN and falls back to the sum of INPUT_TOKEN.
func tokenCount(metrics []bridges.Metric) int {
	input := 0
	for _, mt := range metrics {
		n, err := strconv.ParseFloat(strings.TrimSpace(mt.Value), 64)
		if err != nil {
			continue
		}
		switch mt.Name {
		case metricTotalToken:
			return int(n)
		case metricInputToken:
			input += int(n)
		}
	}
	return input
}
