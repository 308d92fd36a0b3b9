package extractor

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	types "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

// ConfluenceConnector reads a page's storage-format body. The site base URL
// comes from the document source, or the connector default when set.
type ConfluenceConnector struct {
	log   *logger.Logger
	vault CredentialResolver
	rest  *restClient
	opts  connectorOptions
}

func NewConfluenceConnector(log *logger.Logger, vault CredentialResolver, opts ...ConnectorOption) *ConfluenceConnector {
	o := applyConnectorOptions("", opts)
	return &ConfluenceConnector{
		log:   log.With("connector", types.SourceConfluence),
		vault: vault,
		opts:  o,
		rest: &restClient{
			service: "confluence",
			http:    httpClientOrDefault(o.client),
			limit:   newLimiter(5, 5),
			headers: map[string]string{"Accept": "application/json"},
		},
	}
}

func (c *ConfluenceConnector) Source() string { return types.SourceConfluence }
func (c *ConfluenceConnector) Type() string   { return types.SourceConfluence }

type confluencePage struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
}

func (c *ConfluenceConnector) Extract(ctx context.Context, doc *types.KnowledgeDocument, src types.DocumentSource) ([]string, error) {
	pageID := strings.TrimSpace(src.ExternalID)
	if pageID == "" {
		return nil, &IllegalConfigurationError{Reason: fmt.Sprintf("confluence document %d has no externalId", doc.ID)}
	}
	base := strings.TrimRight(strings.TrimSpace(src.BaseURL), "/")
	if base == "" {
		base = strings.TrimRight(c.opts.baseURL, "/")
	}
	if base == "" {
		return nil, &IllegalConfigurationError{Reason: fmt.Sprintf("confluence document %d has no baseUrl", doc.ID)}
	}
	tok, err := accessToken(ctx, c.vault, doc, src)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/wiki/api/v2/pages/%s?body-format=storage", base, url.PathEscape(pageID))
	var page confluencePage
	if err := c.rest.getJSON(ctx, tok, u, &page); err != nil {
		return nil, err
	}
	body, err := c.opts.convert([]byte(page.Body.Storage.Value), "text/html")
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(body)
	if title := strings.TrimSpace(page.Title); title != "" {
		text = title + "\n\n" + text
	}
	c.log.Debug("confluence page read", "page_id", pageID, "bytes", len(text))
	return nonEmpty(text), nil
}
