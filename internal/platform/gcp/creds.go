package gcp

import (
	"strings"

	"google.golang.org/api/option"

	"github.com/yungbote/knowledge-indexer/internal/platform/envutil"
)

// ClientOptionsFromEnv builds the credential option shared by every Google
// client in the process. GOOGLE_APPLICATION_CREDENTIALS_JSON may hold inline
// JSON or a path; GOOGLE_APPLICATION_CREDENTIALS a path. With neither set the
// clients fall back to application default credentials.
func ClientOptionsFromEnv() []option.ClientOption {
	for _, key := range []string{"GOOGLE_APPLICATION_CREDENTIALS_JSON", "GOOGLE_APPLICATION_CREDENTIALS"} {
		v := strings.TrimSpace(envutil.String(key, ""))
		switch {
		case v == "":
			continue
		case strings.HasPrefix(v, "{"):
			return []option.ClientOption{option.WithCredentialsJSON([]byte(v))}
		default:
			return []option.ClientOption{option.WithCredentialsFile(v)}
		}
	}
	return nil
}

// collapseWhitespace flattens OCR and transcript text onto single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\u00a0", " ")), " ")
}
