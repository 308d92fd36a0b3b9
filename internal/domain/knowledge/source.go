package knowledge

import (
	"path"
	"strings"
)

// Datasource identifiers used in DocumentSource.Source / DocumentSource.Type.
const (
	SourceManual      = "manual"
	SourceNotion      = "notion"
	SourceGoogleDrive = "google-drive"
	SourceOneDrive    = "one-drive"
	SourceConfluence  = "confluence"

	TypeManualFile = "manual-file"
	TypeManualURL  = "manual-url"
)

// DocumentSource describes where a document's bytes live.
type DocumentSource struct {
	Source       string `json:"source"`
	Type         string `json:"type"`
	Storage      string `json:"storage,omitempty"`
	CompletePath string `json:"completePath,omitempty"`
	DocumentURL  string `json:"documentUrl,omitempty"`
	MimeType     string `json:"mimeType,omitempty"`
	Name         string `json:"name,omitempty"`

	// Connector sources.
	CredentialID string `json:"credentialId,omitempty"`
	ExternalID   string `json:"externalId,omitempty"`
	BaseURL      string `json:"baseUrl,omitempty"`
}

// Extension is the lowercase file extension of CompletePath without the dot.
func (s DocumentSource) Extension() string {
	ext := path.Ext(s.CompletePath)
	if ext == "" {
		ext = path.Ext(s.Name)
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
