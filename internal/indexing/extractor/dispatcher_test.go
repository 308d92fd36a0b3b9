package extractor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/platform/blob"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

type extMap map[string]string

func (m extMap) ExtractorFor(ext string) (string, bool) {
	if name, ok := m[ext]; ok {
		return name, true
	}
	name, ok := m["*"]
	return name, ok
}

func docWith(t *testing.T, src types.DocumentSource) *types.KnowledgeDocument {
	t.Helper()
	doc := &types.KnowledgeDocument{ID: 7, KnowledgeID: 3, ProjectID: 2, OrganizationID: 1}
	require.NoError(t, doc.SetSource(src))
	return doc
}

func newTestDispatcher(t *testing.T, resolver ExtensionResolver, opts ...DispatcherOption) (*Dispatcher, *blob.Local) {
	t.Helper()
	store, err := blob.NewLocal(t.TempDir())
	require.NoError(t, err)
	return NewDispatcher(logger.Nop(), store, resolver, NewFormats(NewTextExtractor()), opts...), store
}

func TestDispatcherManualFileText(t *testing.T) {
	scratch := t.TempDir()
	d, store := newTestDispatcher(t, extMap{"txt": ExtractorText}, WithScratchDir(scratch))
	require.NoError(t, store.Upload(context.Background(), "org/1/notes.txt", strings.NewReader("hello world"), "text/plain"))

	doc := docWith(t, types.DocumentSource{Source: types.SourceManual, Type: types.TypeManualFile, CompletePath: "org/1/notes.txt"})
	chunks, err := d.Extract(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0].Content)
	assert.Empty(t, chunks[0].Metadata)

	left, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, left, "scratch dir must be removed")
}

func TestDispatcherFallbackExtractor(t *testing.T) {
	d, store := newTestDispatcher(t, extMap{"*": ExtractorText})
	require.NoError(t, store.Upload(context.Background(), "a.log", strings.NewReader("line"), ""))
	doc := docWith(t, types.DocumentSource{Source: types.SourceManual, Type: types.TypeManualFile, CompletePath: "a.log"})
	chunks, err := d.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestDispatcherNoExtractorForExtension(t *testing.T) {
	d, _ := newTestDispatcher(t, extMap{"txt": ExtractorText})
	doc := docWith(t, types.DocumentSource{Source: types.SourceManual, Type: types.TypeManualFile, CompletePath: "scan.tiff"})
	_, err := d.Extract(context.Background(), doc)
	var cfgErr *IllegalConfigurationError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
}

func TestDispatcherUnregisteredExtractor(t *testing.T) {
	d, _ := newTestDispatcher(t, extMap{"png": ExtractorVision})
	doc := docWith(t, types.DocumentSource{Source: types.SourceManual, Type: types.TypeManualFile, CompletePath: "a.png"})
	_, err := d.Extract(context.Background(), doc)
	var cfgErr *IllegalConfigurationError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
}

func TestDispatcherMissingBlob(t *testing.T) {
	d, _ := newTestDispatcher(t, extMap{"txt": ExtractorText})
	doc := docWith(t, types.DocumentSource{Source: types.SourceManual, Type: types.TypeManualFile, CompletePath: "missing.txt"})
	_, err := d.Extract(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, blob.ErrNotFound), "got %v", err)
}

func TestDispatcherManualURLUnsupported(t *testing.T) {
	d, _ := newTestDispatcher(t, extMap{})
	doc := docWith(t, types.DocumentSource{Source: types.SourceManual, Type: types.TypeManualURL, DocumentURL: "https://example.com"})
	_, err := d.Extract(context.Background(), doc)
	var unsupported *UnsupportedDatasourceError
	require.True(t, errors.As(err, &unsupported), "got %v", err)
	assert.Equal(t, "manual-url is not supported", err.Error())
}

func TestDispatcherUnknownSource(t *testing.T) {
	d, _ := newTestDispatcher(t, extMap{})
	doc := docWith(t, types.DocumentSource{Source: "dropbox", Type: "dropbox"})
	_, err := d.Extract(context.Background(), doc)
	var unsupported *UnsupportedDatasourceError
	require.True(t, errors.As(err, &unsupported), "got %v", err)
}

type stubConnector struct {
	texts []string
}

func (stubConnector) Source() string { return types.SourceNotion }
func (stubConnector) Type() string   { return types.SourceNotion }
func (s stubConnector) Extract(context.Context, *types.KnowledgeDocument, types.DocumentSource) ([]string, error) {
	return s.texts, nil
}

func TestDispatcherRoutesConnector(t *testing.T) {
	d, _ := newTestDispatcher(t, extMap{}, WithConnectors(stubConnector{texts: []string{"a", "b"}}))
	doc := docWith(t, types.DocumentSource{Source: types.SourceNotion, Type: types.SourceNotion, ExternalID: "p"})
	chunks, err := d.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestFormatsRegistry(t *testing.T) {
	f := NewFormats(NewTextExtractor(), NewVisionExtractor(nil), NewDocconvExtractor(false))
	assert.Equal(t, []string{ExtractorDocconv, ExtractorText}, f.Names())
	assert.False(t, f.Known(ExtractorVision))
}

type fakeOCR struct{ text string }

func (f fakeOCR) OCRImageBytes(context.Context, []byte) (string, error) { return f.text, nil }

type fakeTranscriber struct{}

func (fakeTranscriber) Transcribe(_ context.Context, audio []byte, filename string) ([]string, error) {
	return []string{"first part", "second part"}, nil
}

func TestCloudFormatExtractors(t *testing.T) {
	p := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(p, []byte("RIFF"), 0o600))

	blocks, err := NewVisionExtractor(fakeOCR{text: "scanned"}).Extract(context.Background(), File{Path: p, Name: "clip.wav"})
	require.NoError(t, err)
	assert.Equal(t, []string{"scanned"}, blocks)

	blocks, err = NewSpeechExtractor(fakeTranscriber{}).Extract(context.Background(), File{Path: p, Name: "clip.wav"})
	require.NoError(t, err)
	assert.Equal(t, []string{"first part second part"}, blocks)
}

func TestConvertBytesPlainText(t *testing.T) {
	out, err := ConvertBytes([]byte("a,b\n1,2"), "text/csv", false)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2", out)
}
