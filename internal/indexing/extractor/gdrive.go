package extractor

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	types "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

const (
	mimeGoogleDoc    = "application/vnd.google-apps.document"
	mimeGoogleSheet  = "application/vnd.google-apps.spreadsheet"
	mimeGoogleSlides = "application/vnd.google-apps.presentation"
	mimeGoogleFolder = "application/vnd.google-apps.folder"
)

// GoogleDriveConnector exports Workspace files as text and converts other
// files by mime type.
type GoogleDriveConnector struct {
	log   *logger.Logger
	vault CredentialResolver
	opts  connectorOptions
	limit *limiter
}

func NewGoogleDriveConnector(log *logger.Logger, vault CredentialResolver, opts ...ConnectorOption) *GoogleDriveConnector {
	return &GoogleDriveConnector{
		log:   log.With("connector", types.SourceGoogleDrive),
		vault: vault,
		opts:  applyConnectorOptions("", opts),
		limit: newLimiter(8, 10),
	}
}

func (g *GoogleDriveConnector) Source() string { return types.SourceGoogleDrive }
func (g *GoogleDriveConnector) Type() string   { return types.SourceGoogleDrive }

func (g *GoogleDriveConnector) service(ctx context.Context, tok *oauth2.Token) (*drive.Service, error) {
	if g.opts.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.opts.client)
	}
	svcOpts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok)))}
	if g.opts.baseURL != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(g.opts.baseURL))
	}
	return drive.NewService(ctx, svcOpts...)
}

func (g *GoogleDriveConnector) Extract(ctx context.Context, doc *types.KnowledgeDocument, src types.DocumentSource) ([]string, error) {
	fileID := strings.TrimSpace(src.ExternalID)
	if fileID == "" {
		return nil, &IllegalConfigurationError{Reason: fmt.Sprintf("google-drive document %d has no externalId", doc.ID)}
	}
	tok, err := accessToken(ctx, g.vault, doc, src)
	if err != nil {
		return nil, err
	}
	svc, err := g.service(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}

	if err := g.limit.Wait(ctx); err != nil {
		return nil, err
	}
	file, err := svc.Files.Get(fileID).Fields("id", "name", "mimeType", "size").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("drive get %s: %w", fileID, err)
	}

	var text string
	switch file.MimeType {
	case mimeGoogleFolder:
		return nil, &IllegalConfigurationError{Reason: fmt.Sprintf("drive item %s is a folder", fileID)}
	case mimeGoogleDoc, mimeGoogleSlides:
		text, err = g.export(ctx, svc, fileID, "text/plain")
	case mimeGoogleSheet:
		text, err = g.export(ctx, svc, fileID, "text/csv")
	default:
		text, err = g.download(ctx, svc, fileID, file.MimeType)
	}
	if err != nil {
		return nil, err
	}
	g.log.Debug("drive file read", "file_id", fileID, "mime", file.MimeType, "bytes", len(text))
	return nonEmpty(text), nil
}

func (g *GoogleDriveConnector) export(ctx context.Context, svc *drive.Service, fileID, mime string) (string, error) {
	if err := g.limit.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := svc.Files.Export(fileID, mime).Context(ctx).Download()
	if err != nil {
		return "", fmt.Errorf("drive export %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileBytes))
	if err != nil {
		return "", fmt.Errorf("drive export read: %w", err)
	}
	return string(data), nil
}

func (g *GoogleDriveConnector) download(ctx context.Context, svc *drive.Service, fileID, mime string) (string, error) {
	if err := g.limit.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return "", fmt.Errorf("drive download %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileBytes))
	if err != nil {
		return "", fmt.Errorf("drive download read: %w", err)
	}
	return g.opts.convert(data, mime)
}
