package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"

	"github.com/yungbote/knowledge-indexer/internal/platform/gcp"
)

const (
	ExtractorText       = "text"
	ExtractorDocconv    = "docconv"
	ExtractorDocumentAI = "documentai"
	ExtractorVision     = "vision"
	ExtractorSpeech     = "speech"
)

// maxFileBytes caps how much of a source file is read into memory.
const maxFileBytes = 256 << 20

func readCapped(p string) ([]byte, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxFileBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxFileBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", filepath.Base(p), maxFileBytes)
	}
	return data, nil
}

func nonEmpty(blocks ...string) []string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if strings.TrimSpace(b) != "" {
			out = append(out, b)
		}
	}
	return out
}

type textExtractor struct{}

func NewTextExtractor() FormatExtractor { return textExtractor{} }

func (textExtractor) Name() string { return ExtractorText }

func (textExtractor) Extract(_ context.Context, f File) ([]string, error) {
	data, err := readCapped(f.Path)
	if err != nil {
		return nil, err
	}
	return nonEmpty(strings.ToValidUTF8(string(data), "")), nil
}

type docconvExtractor struct {
	readability bool
}

// NewDocconvExtractor converts office, pdf and markup files through docconv.
func NewDocconvExtractor(readability bool) FormatExtractor {
	return docconvExtractor{readability: readability}
}

func (docconvExtractor) Name() string { return ExtractorDocconv }

func (d docconvExtractor) Extract(_ context.Context, f File) ([]string, error) {
	data, err := readCapped(f.Path)
	if err != nil {
		return nil, err
	}
	mime := f.MimeType
	if mime == "" || mime == "application/octet-stream" {
		mime = docconv.MimeTypeByExtension(f.Name)
	}
	body, err := ConvertBytes(data, mime, d.readability)
	if err != nil {
		return nil, err
	}
	return nonEmpty(body), nil
}

// ConvertBytes extracts plain text from data of the given mime type. Plain
// text types are returned as is.
func ConvertBytes(data []byte, mime string, readability bool) (string, error) {
	if strings.HasPrefix(mime, "text/plain") || strings.HasPrefix(mime, "text/csv") || strings.HasPrefix(mime, "text/markdown") {
		return strings.ToValidUTF8(string(data), ""), nil
	}
	res, err := docconv.Convert(bytes.NewReader(data), mime, readability)
	if err != nil {
		return "", fmt.Errorf("docconv %s: %w", mime, err)
	}
	return res.Body, nil
}

// DocumentProcessor runs OCR over a whole document and returns page texts.
type DocumentProcessor interface {
	ProcessBytes(ctx context.Context, data []byte, mimeType string) ([]gcp.PageText, error)
}

type documentAIExtractor struct {
	proc DocumentProcessor
}

func NewDocumentAIExtractor(proc DocumentProcessor) FormatExtractor {
	if proc == nil {
		return nil
	}
	return documentAIExtractor{proc: proc}
}

func (documentAIExtractor) Name() string { return ExtractorDocumentAI }

func (e documentAIExtractor) Extract(ctx context.Context, f File) ([]string, error) {
	data, err := readCapped(f.Path)
	if err != nil {
		return nil, err
	}
	mime := f.MimeType
	if mime == "" {
		mime = docconv.MimeTypeByExtension(f.Name)
	}
	pages, err := e.proc.ProcessBytes(ctx, data, mime)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.Text)
	}
	return nonEmpty(out...), nil
}

type ImageOCR interface {
	OCRImageBytes(ctx context.Context, img []byte) (string, error)
}

type visionExtractor struct {
	ocr ImageOCR
}

func NewVisionExtractor(ocr ImageOCR) FormatExtractor {
	if ocr == nil {
		return nil
	}
	return visionExtractor{ocr: ocr}
}

func (visionExtractor) Name() string { return ExtractorVision }

func (e visionExtractor) Extract(ctx context.Context, f File) ([]string, error) {
	data, err := readCapped(f.Path)
	if err != nil {
		return nil, err
	}
	text, err := e.ocr.OCRImageBytes(ctx, data)
	if err != nil {
		return nil, err
	}
	return nonEmpty(text), nil
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) ([]string, error)
}

type speechExtractor struct {
	tr Transcriber
}

func NewSpeechExtractor(tr Transcriber) FormatExtractor {
	if tr == nil {
		return nil
	}
	return speechExtractor{tr: tr}
}

func (speechExtractor) Name() string { return ExtractorSpeech }

func (e speechExtractor) Extract(ctx context.Context, f File) ([]string, error) {
	data, err := readCapped(f.Path)
	if err != nil {
		return nil, err
	}
	parts, err := e.tr.Transcribe(ctx, data, f.Name)
	if err != nil {
		return nil, err
	}
	return nonEmpty(strings.Join(parts, " ")), nil
}
