package extractor

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"code.sajari.com/docconv"

	types "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

const graphAPIBase = "https://graph.microsoft.com/v1.0"

// OneDriveConnector downloads a drive item through Microsoft Graph.
type OneDriveConnector struct {
	log   *logger.Logger
	vault CredentialResolver
	rest  *restClient
	base  string
	opts  connectorOptions
}

func NewOneDriveConnector(log *logger.Logger, vault CredentialResolver, opts ...ConnectorOption) *OneDriveConnector {
	o := applyConnectorOptions(graphAPIBase, opts)
	return &OneDriveConnector{
		log:   log.With("connector", types.SourceOneDrive),
		vault: vault,
		base:  strings.TrimRight(o.baseURL, "/"),
		opts:  o,
		rest: &restClient{
			service: "onedrive",
			http:    httpClientOrDefault(o.client),
			limit:   newLimiter(5, 5),
		},
	}
}

func (c *OneDriveConnector) Source() string { return types.SourceOneDrive }
func (c *OneDriveConnector) Type() string   { return types.SourceOneDrive }

type driveItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
	Folder *struct{} `json:"folder"`
}

func (c *OneDriveConnector) Extract(ctx context.Context, doc *types.KnowledgeDocument, src types.DocumentSource) ([]string, error) {
	itemID := strings.TrimSpace(src.ExternalID)
	if itemID == "" {
		return nil, &IllegalConfigurationError{Reason: fmt.Sprintf("one-drive document %d has no externalId", doc.ID)}
	}
	tok, err := accessToken(ctx, c.vault, doc, src)
	if err != nil {
		return nil, err
	}
	itemURL := fmt.Sprintf("%s/me/drive/items/%s", c.base, url.PathEscape(itemID))

	var item driveItem
	if err := c.rest.getJSON(ctx, tok, itemURL, &item); err != nil {
		return nil, err
	}
	if item.Folder != nil {
		return nil, &IllegalConfigurationError{Reason: fmt.Sprintf("drive item %s is a folder", itemID)}
	}
	mime := ""
	if item.File != nil {
		mime = item.File.MimeType
	}
	if mime == "" || mime == "application/octet-stream" {
		mime = docconv.MimeTypeByExtension(item.Name)
	}

	data, err := c.rest.get(ctx, tok, itemURL+"/content")
	if err != nil {
		return nil, err
	}
	text, err := c.opts.convert(data, mime)
	if err != nil {
		return nil, err
	}
	c.log.Debug("onedrive item read", "item_id", itemID, "mime", mime, "bytes", len(data))
	return nonEmpty(text), nil
}
