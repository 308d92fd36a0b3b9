package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/knowledge-indexer/internal/indexing/chunker"
)

func allKnown(string) bool { return true }

func TestDefaultProfile(t *testing.T) {
	p, err := Default(allKnown)
	require.NoError(t, err)
	assert.Equal(t, chunker.TechniqueRecursive, p.Chunking.Technique)
	assert.Equal(t, 500, p.Chunking.ChunkSize)
	assert.Equal(t, 2, p.Chain().Len())

	name, ok := p.ExtractorFor(".PDF")
	assert.True(t, ok)
	assert.Equal(t, "docconv", name)

	name, ok = p.ExtractorFor("unknownext")
	assert.True(t, ok)
	assert.Equal(t, "docconv", name)

	c, err := p.NewChunker(nil)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestParseRejectsUnregisteredExtractor(t *testing.T) {
	_, err := Parse([]byte("extractors:\n  png: vision\n"), func(name string) bool { return name == "text" })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vision")
}

func TestParseRejectsUnknownTechnique(t *testing.T) {
	_, err := Parse([]byte("extractors:\n  txt: text\nchunking:\n  technique: fractal\n"), allKnown)
	require.Error(t, err)
}

func TestParseRejectsUnknownTransformer(t *testing.T) {
	_, err := Parse([]byte("extractors:\n  txt: text\ntransformers:\n  - name: spacy\n"), allKnown)
	require.Error(t, err)
}

func TestParseWithoutFallback(t *testing.T) {
	p, err := Parse([]byte("extractors:\n  .TXT: text\n"), allKnown)
	require.NoError(t, err)
	name, ok := p.ExtractorFor("txt")
	assert.True(t, ok)
	assert.Equal(t, "text", name)
	_, ok = p.ExtractorFor("pdf")
	assert.False(t, ok)
}

func TestLoadFromEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("extractors:\n  txt: text\nchunking:\n  technique: sentence\n  chunk_size: 64\n"), 0o600))
	t.Setenv(PathEnv, path)

	p, err := Load(nil, allKnown)
	require.NoError(t, err)
	assert.Equal(t, chunker.TechniqueSentence, p.Chunking.Technique)
	assert.Equal(t, 0, p.Chain().Len())
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv(PathEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load(nil, allKnown)
	require.Error(t, err)
}
