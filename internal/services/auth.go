package services

import (
	"crypto/subtle"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/knowledge-indexer/internal/pkg/ctxutil"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

// ServiceClaims is the HS256 token other services present.
type ServiceClaims struct {
	ProjectID      uint64 `json:"project_id"`
	OrganizationID uint64 `json:"organization_id"`
	jwt.RegisteredClaims
}

// Credentials is what a request presents. Bearer wins over the internal key.
type Credentials struct {
	Bearer         string
	ServiceKey     string
	ProjectID      string
	OrganizationID string
}

type AuthService interface {
	Authenticate(creds Credentials) (*ctxutil.Principal, error)
	IssueToken(p ctxutil.Principal, ttl time.Duration) (string, error)
}

type authService struct {
	log        *logger.Logger
	jwtSecret  []byte
	serviceKey string
}

func NewAuthService(baseLog *logger.Logger, jwtSecret, serviceKey string) AuthService {
	return &authService{
		log:        baseLog.With("service", "AuthService"),
		jwtSecret:  []byte(jwtSecret),
		serviceKey: serviceKey,
	}
}

func (s *authService) Authenticate(creds Credentials) (*ctxutil.Principal, error) {
	if tok := strings.TrimSpace(creds.Bearer); tok != "" {
		return s.fromToken(tok)
	}
	if key := strings.TrimSpace(creds.ServiceKey); key != "" {
		return s.fromServiceKey(key, creds)
	}
	return nil, fmt.Errorf("%w: missing credentials", ErrUnauthorized)
}

func (s *authService) fromToken(tok string) (*ctxutil.Principal, error) {
	if len(s.jwtSecret) == 0 {
		return nil, fmt.Errorf("%w: bearer tokens are not accepted", ErrUnauthorized)
	}
	var claims ServiceClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(*jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		s.log.Debug("token rejected", "error", err)
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}
	if claims.ProjectID == 0 || claims.OrganizationID == 0 {
		return nil, fmt.Errorf("%w: token is missing project or organization", ErrUnauthorized)
	}
	return &ctxutil.Principal{
		Subject:        claims.Subject,
		ProjectID:      claims.ProjectID,
		OrganizationID: claims.OrganizationID,
	}, nil
}

func (s *authService) fromServiceKey(key string, creds Credentials) (*ctxutil.Principal, error) {
	if s.serviceKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.serviceKey)) != 1 {
		return nil, fmt.Errorf("%w: invalid service key", ErrUnauthorized)
	}
	projectID, err := strconv.ParseUint(strings.TrimSpace(creds.ProjectID), 10, 64)
	if err != nil || projectID == 0 {
		return nil, fmt.Errorf("%w: x-project-id is required", ErrUnauthorized)
	}
	orgID, err := strconv.ParseUint(strings.TrimSpace(creds.OrganizationID), 10, 64)
	if err != nil || orgID == 0 {
		return nil, fmt.Errorf("%w: x-organization-id is required", ErrUnauthorized)
	}
	return &ctxutil.Principal{Subject: "internal", ProjectID: projectID, OrganizationID: orgID}, nil
}

func (s *authService) IssueToken(p ctxutil.Principal, ttl time.Duration) (string, error) {
	if len(s.jwtSecret) == 0 {
		return "", fmt.Errorf("SERVICE_JWT_SECRET is not configured")
	}
	now := time.Now()
	claims := ServiceClaims{
		ProjectID:      p.ProjectID,
		OrganizationID: p.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}
