package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/yungbote/knowledge-indexer/internal/bridges"
	types "github.com/yungbote/knowledge-indexer/internal/domain/knowledge"
	"github.com/yungbote/knowledge-indexer/internal/pkg/httpx"
)

// CredentialResolver fetches connector credentials from the vault.
type CredentialResolver interface {
	GetCredential(ctx context.Context, auth bridges.Auth, credentialID uint64) (*bridges.VaultCredential, error)
}

var ErrMissingAccessToken = errors.New("connector credential has no access token")

// accessToken resolves the OAuth access token stored under the document's
// credentialId.
func accessToken(ctx context.Context, vault CredentialResolver, doc *types.KnowledgeDocument, src types.DocumentSource) (*oauth2.Token, error) {
	if strings.TrimSpace(src.CredentialID) == "" {
		return nil, &IllegalConfigurationError{Reason: fmt.Sprintf("%s document %d has no credentialId", src.Source, doc.ID)}
	}
	id, err := strconv.ParseUint(strings.TrimSpace(src.CredentialID), 10, 64)
	if err != nil {
		return nil, &IllegalConfigurationError{Reason: fmt.Sprintf("invalid credentialId %q", src.CredentialID)}
	}
	cred, err := vault.GetCredential(ctx, bridges.Auth{ProjectID: doc.ProjectID, OrganizationID: doc.OrganizationID}, id)
	if err != nil {
		return nil, err
	}
	for _, k := range []string{"access_token", "accessToken", "token"} {
		if v, ok := cred.Value[k].(string); ok && strings.TrimSpace(v) != "" {
			return &oauth2.Token{AccessToken: v, TokenType: "Bearer"}, nil
		}
	}
	return nil, ErrMissingAccessToken
}

// limiter paces calls to one remote API and backs off after a 429.
type limiter struct {
	mu      sync.Mutex
	bucket  *rate.Limiter
	retryAt time.Time
}

func newLimiter(rps float64, burst int) *limiter {
	return &limiter{bucket: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (l *limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()
	if d := time.Until(retryAt); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return l.bucket.Wait(ctx)
}

func (l *limiter) backoff(d time.Duration) {
	l.mu.Lock()
	l.retryAt = time.Now().Add(d)
	l.mu.Unlock()
}

// StatusError is a non-2xx response from a connector API.
type StatusError struct {
	Service string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.Status, e.Body)
}

const (
	defaultBackoff = 30 * time.Second
	maxBackoff     = 5 * time.Minute
)

// restClient issues bearer-authenticated requests against one API.
type restClient struct {
	service string
	http    *http.Client
	limit   *limiter
	headers map[string]string
}

func (c *restClient) get(ctx context.Context, tok *oauth2.Token, url string) ([]byte, error) {
	if err := c.limit.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	tok.SetAuthHeader(req)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.service, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFileBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", c.service, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		c.limit.backoff(httpx.Backoff(resp, time.Now(), defaultBackoff, maxBackoff))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return nil, &StatusError{Service: c.service, Status: resp.StatusCode, Body: msg}
	}
	return body, nil
}

func (c *restClient) getJSON(ctx context.Context, tok *oauth2.Token, url string, out any) error {
	body, err := c.get(ctx, tok, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode: %w", c.service, err)
	}
	return nil
}

func httpClientOrDefault(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 60 * time.Second}
}

// Converter turns downloaded bytes of a mime type into plain text.
type Converter func(data []byte, mime string) (string, error)

func defaultConverter(data []byte, mime string) (string, error) {
	return ConvertBytes(data, mime, false)
}

type connectorOptions struct {
	baseURL string
	client  *http.Client
	convert Converter
}

type ConnectorOption func(*connectorOptions)

// WithBaseURL points a connector at a different API host.
func WithBaseURL(u string) ConnectorOption {
	return func(o *connectorOptions) {
		if strings.TrimSpace(u) != "" {
			o.baseURL = u
		}
	}
}

func WithHTTPClient(c *http.Client) ConnectorOption {
	return func(o *connectorOptions) { o.client = c }
}

func WithConverter(c Converter) ConnectorOption {
	return func(o *connectorOptions) {
		if c != nil {
			o.convert = c
		}
	}
}

func applyConnectorOptions(defaultBase string, opts []ConnectorOption) connectorOptions {
	o := connectorOptions{baseURL: defaultBase, convert: defaultConverter}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
