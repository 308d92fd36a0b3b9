package extractor

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	types "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

const (
	notionAPIBase    = "https://api.notion.com"
	notionAPIVersion = "2022-06-28"
	notionMaxDepth   = 3
)

// NotionConnector reads a page's block tree as plain text.
type NotionConnector struct {
	log   *logger.Logger
	vault CredentialResolver
	rest  *restClient
	base  string
}

func NewNotionConnector(log *logger.Logger, vault CredentialResolver, opts ...ConnectorOption) *NotionConnector {
	o := applyConnectorOptions(notionAPIBase, opts)
	return &NotionConnector{
		log:   log.With("connector", types.SourceNotion),
		vault: vault,
		base:  strings.TrimRight(o.baseURL, "/"),
		rest: &restClient{
			service: "notion",
			http:    httpClientOrDefault(o.client),
			limit:   newLimiter(3, 3),
			headers: map[string]string{"Notion-Version": notionAPIVersion},
		},
	}
}

func (n *NotionConnector) Source() string { return types.SourceNotion }
func (n *NotionConnector) Type() string   { return types.SourceNotion }

type notionBlock struct {
	ID          string
	Type        string
	HasChildren bool
	raw         map[string]any
}

type notionChildren struct {
	Results    []map[string]any `json:"results"`
	HasMore    bool             `json:"has_more"`
	NextCursor *string          `json:"next_cursor"`
}

func (n *NotionConnector) Extract(ctx context.Context, doc *types.KnowledgeDocument, src types.DocumentSource) ([]string, error) {
	pageID := strings.TrimSpace(src.ExternalID)
	if pageID == "" {
		return nil, &IllegalConfigurationError{Reason: fmt.Sprintf("notion document %d has no externalId", doc.ID)}
	}
	tok, err := accessToken(ctx, n.vault, doc, src)
	if err != nil {
		return nil, err
	}
	var lines []string
	if err := n.walk(ctx, tok, pageID, 0, &lines); err != nil {
		return nil, err
	}
	n.log.Debug("notion page read", "page_id", pageID, "lines", len(lines))
	return nonEmpty(strings.Join(lines, "\n")), nil
}

func (n *NotionConnector) walk(ctx context.Context, tok *oauth2.Token, blockID string, depth int, lines *[]string) error {
	cursor := ""
	for {
		q := url.Values{"page_size": {"100"}}
		if cursor != "" {
			q.Set("start_cursor", cursor)
		}
		u := fmt.Sprintf("%s/v1/blocks/%s/children?%s", n.base, url.PathEscape(blockID), q.Encode())
		var page notionChildren
		if err := n.rest.getJSON(ctx, tok, u, &page); err != nil {
			return err
		}
		for _, raw := range page.Results {
			b := decodeNotionBlock(raw)
			if text := b.text(); text != "" {
				*lines = append(*lines, text)
			}
			if b.HasChildren && depth+1 < notionMaxDepth && b.Type != "child_page" && b.Type != "child_database" {
				if err := n.walk(ctx, tok, b.ID, depth+1, lines); err != nil {
					return err
				}
			}
		}
		if !page.HasMore || page.NextCursor == nil || *page.NextCursor == "" {
			return nil
		}
		cursor = *page.NextCursor
	}
}

func decodeNotionBlock(raw map[string]any) notionBlock {
	b := notionBlock{raw: raw}
	b.ID, _ = raw["id"].(string)
	b.Type, _ = raw["type"].(string)
	b.HasChildren, _ = raw["has_children"].(bool)
	return b
}

// text joins the rich_text runs of the block's typed payload.
func (b notionBlock) text() string {
	payload, ok := b.raw[b.Type].(map[string]any)
	if !ok {
		return ""
	}
	runs, _ := payload["rich_text"].([]any)
	var sb strings.Builder
	for _, r := range runs {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := m["plain_text"].(string); ok {
			sb.WriteString(s)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return ""
	}
	switch b.Type {
	case "heading_1":
		return "# " + text
	case "heading_2":
		return "## " + text
	case "heading_3":
		return "### " + text
	case "bulleted_list_item", "to_do":
		return "- " + text
	case "numbered_list_item":
		return "1. " + text
	case "quote":
		return "> " + text
	}
	return text
}
