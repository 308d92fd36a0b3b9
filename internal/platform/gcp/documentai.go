package gcp

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

type DocumentAIConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
}

func DocumentAIConfigFromEnv() DocumentAIConfig {
	loc := strings.TrimSpace(os.Getenv("DOCUMENTAI_LOCATION"))
	if loc == "" {
		loc = "us"
	}
	return DocumentAIConfig{
		ProjectID:        strings.TrimSpace(os.Getenv("DOCUMENTAI_PROJECT_ID")),
		Location:         loc,
		ProcessorID:      strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_ID")),
		ProcessorVersion: strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_VERSION")),
	}
}

// Enabled reports whether enough is configured to address a processor.
func (c DocumentAIConfig) Enabled() bool {
	return processorName(c.ProjectID, c.Location, c.ProcessorID, c.ProcessorVersion) != ""
}

// PageText is the OCR text of one page.
type PageText struct {
	Page int
	Text string
}

// DocumentAI runs OCR over scanned documents.
type DocumentAI struct {
	log    *logger.Logger
	client *documentai.DocumentProcessorClient
	name   string
}

func NewDocumentAI(ctx context.Context, cfg DocumentAIConfig, log *logger.Logger) (*DocumentAI, error) {
	name := processorName(cfg.ProjectID, cfg.Location, cfg.ProcessorID, cfg.ProcessorVersion)
	if name == "" {
		return nil, fmt.Errorf("documentai: project, location and processor are required")
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptionsFromEnv()...)
	c, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}
	slog := log.With("service", "gcp.DocumentAI")
	slog.Info("Document AI initialized", "endpoint", endpoint, "processor", name)
	return &DocumentAI{log: slog, client: c, name: name}, nil
}

func (d *DocumentAI) Close() error { return d.client.Close() }

// ProcessBytes sends the raw document and returns text per page. Documents
// without page layout come back as a single page.
func (d *DocumentAI) ProcessBytes(ctx context.Context, data []byte, mimeType string) ([]PageText, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if mimeType == "" {
		mimeType = "application/pdf"
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	resp, err := d.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: d.name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: data, MimeType: mimeType},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return nil, nil
	}
	return pageTexts(resp.Document), nil
}

func pageTexts(doc *documentaipb.Document) []PageText {
	full := doc.GetText()
	if len(doc.GetPages()) == 0 {
		if strings.TrimSpace(full) == "" {
			return nil
		}
		return []PageText{{Page: 1, Text: full}}
	}
	out := make([]PageText, 0, len(doc.GetPages()))
	for i, p := range doc.GetPages() {
		txt := anchorText(full, p.GetLayout().GetTextAnchor())
		if strings.TrimSpace(txt) == "" {
			continue
		}
		out = append(out, PageText{Page: i + 1, Text: txt})
	}
	return out
}

func anchorText(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start, end := int(seg.GetStartIndex()), int(seg.GetEndIndex())
		if start < 0 || end > len(full) || start >= end {
			continue
		}
		b.WriteString(full[start:end])
	}
	return b.String()
}

func processorName(project, location, processorID, version string) string {
	project = strings.TrimSpace(project)
	location = strings.TrimSpace(location)
	processorID = strings.TrimSpace(processorID)
	version = strings.TrimSpace(version)

	if project == "" || location == "" || processorID == "" {
		return ""
	}
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
	if version != "" {
		return base + "/processorVersions/" + version
	}
	return base
}
