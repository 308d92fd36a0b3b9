package bridges

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

// providerServices maps embedding provider names to integration services.
var providerServices = map[string]string{
	"openai":       "OpenAiService",
	"cohere":       "CohereService",
	"voyageai":     "VoyageAiService",
	"bedrock":      "BedrockService",
	"azure-openai": "AzureService",
	"google":       "GeminiService",
	"vertex-ai":    "VertexAiService",
}

// EmbeddingMethod returns the full gRPC method for provider, or "" when the
// provider is not supported.
func EmbeddingMethod(provider string) string {
	svc, ok := providerServices[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return ""
	}
	return "/integration_api." + svc + "/Embedding"
}

type Credential struct {
	ID    uint64
	Value map[string]any
}

type EmbeddingRequest struct {
	Credential      Credential
	Content         map[int32]string
	ModelParameters map[string]string
	AdditionalData  map[string]string
}

type Embedding struct {
	Index  int32
	Vector []float32
}

type Metric struct {
	Name  string
	Value string
}

type IntegrationBridge struct {
	log        *logger.Logger
	conn       grpc.ClientConnInterface
	serviceKey string
	timeout    time.Duration
}

func NewIntegrationBridge(conn grpc.ClientConnInterface, cfg Config, log *logger.Logger) *IntegrationBridge {
	return &IntegrationBridge{
		log:        log.With("bridge", BridgeIntegration),
		conn:       conn,
		serviceKey: cfg.ServiceKey,
		timeout:    cfg.Timeout,
	}
}

// Embedding asks provider for one vector per content entry. Unknown providers
// fail before any call is made.
func (b *IntegrationBridge) Embedding(ctx context.Context, auth Auth, provider string, req EmbeddingRequest) ([]Embedding, []Metric, error) {
	method := EmbeddingMethod(provider)
	if method == "" {
		return nil, nil, &BridgeError{Bridge: BridgeIntegration, Message: fmt.Sprintf("unsupported embedding provider %q", provider)}
	}

	out, err := invoke(outgoing(ctx, b.serviceKey, auth), b.conn, b.timeout, method, encodeEmbeddingRequest(req))
	if err != nil {
		return nil, nil, &BridgeError{Bridge: BridgeIntegration, Message: "embedding call failed", Cause: err}
	}
	ok, code, msg := envelope(out)
	if !ok {
		if msg == "" {
			msg = "embedding request was not successful"
		}
		return nil, nil, &BridgeError{Bridge: BridgeIntegration, Code: code, Message: msg}
	}

	embeddings, err := decodeEmbeddings(out.GetFields()["data"].GetListValue().GetValues())
	if err != nil {
		return nil, nil, &BridgeError{Bridge: BridgeIntegration, Message: "decode embeddings", Cause: err}
	}
	var metrics []Metric
	for _, v := range out.GetFields()["metrics"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		metrics = append(metrics, Metric{Name: f["name"].GetStringValue(), Value: f["value"].GetStringValue()})
	}
	b.log.Debug("embedding received", "provider", provider, "vectors", len(embeddings))
	return embeddings, metrics, nil
}

func encodeEmbeddingRequest(req EmbeddingRequest) map[string]any {
	content := make(map[string]any, len(req.Content))
	for idx, text := range req.Content {
		content[strconv.Itoa(int(idx))] = text
	}
	value := req.Credential.Value
	if value == nil {
		value = map[string]any{}
	}
	return map[string]any{
		"credential": map[string]any{
			"id":    strconv.FormatUint(req.Credential.ID, 10),
			"value": value,
		},
		"content":         content,
		"modelParameters": stringMap(req.ModelParameters),
		"additionalData":  stringMap(req.AdditionalData),
	}
}

func stringMap(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func decodeEmbeddings(items []*structpb.Value) ([]Embedding, error) {
	out := make([]Embedding, 0, len(items))
	for i, item := range items {
		f := item.GetStructValue().GetFields()
		if f == nil {
			return nil, fmt.Errorf("item %d is not an object", i)
		}
		vals := f["embedding"].GetListValue().GetValues()
		vec := make([]float32, len(vals))
		for j, v := range vals {
			vec[j] = float32(v.GetNumberValue())
		}
		out = append(out, Embedding{Index: int32(f["index"].GetNumberValue()), Vector: vec})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}
