package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-companion-go/internal/auth/repo"
	"github.com/ovaphlow/pitchfork/service-companion-go/pkg/utilities"
)

var ErrInvalidToken = errors.New("invalid token")

const providerAnonymous = "anonymous"

type Config struct {
	Issuer     string        `env:"ISSUER" envDefault:"conference-companion" validate:"required"`
	AccessTTL  time.Duration `env:"ACCESS_TTL" envDefault:"15m" validate:"gt=0"`
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"720h" validate:"gt=0"`
	// SigningKeyFile is a PEM encoded RSA private key. Without it a key is
	// generated at startup and tokens do not survive a restart.
	SigningKeyFile string `env:"SIGNING_KEY_FILE"`
	BcryptCost     int    `env:"BCRYPT_COST" envDefault:"10" validate:"gte=4,lte=31"`
}

// Service issues and verifies tokens for anonymous identities.
type Service struct {
	key        *rsa.PrivateKey
	kid        string
	cfg        Config
	identities *repo.IdentityRepo
	refresh    *repo.RefreshRepo
	clock      clockwork.Clock
	logger     *zap.SugaredLogger
}

func NewService(db *sqlx.DB, cfg Config, logger *zap.SugaredLogger) (*Service, error) {
	key, err := loadKey(cfg.SigningKeyFile)
	if err != nil {
		return nil, err
	}
	if cfg.SigningKeyFile == "" {
		logger.Warnw("no signing key configured, generated an ephemeral key")
	}
	return NewServiceWithKey(db, cfg, key, clockwork.NewRealClock(), logger), nil
}

// NewServiceWithKey builds a Service around an existing key and clock.
func NewServiceWithKey(db *sqlx.DB, cfg Config, key *rsa.PrivateKey, clock clockwork.Clock, logger *zap.SugaredLogger) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	pub, _ := x509.MarshalPKIXPublicKey(&key.PublicKey)
	h := sha256.Sum256(pub)
	return &Service{
		key:        key,
		kid:        base64.RawURLEncoding.EncodeToString(h[:8]),
		cfg:        cfg,
		identities: repo.NewIdentityRepo(db),
		refresh:    repo.NewRefreshRepo(db),
		clock:      clock,
		logger:     logger,
	}
}

func loadKey(path string) (*rsa.PrivateKey, error) {
	if path == "" {
		return rsa.GenerateKey(rand.Reader, 2048)
	}
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return key, nil
}

// SignInAnonymously creates a new identity and issues its first tokens.
func (s *Service) SignInAnonymously(ctx context.Context, clientID string) (*Tokens, error) {
	uid := utilities.NewKSUID()
	if err := s.identities.Create(ctx, uid, providerAnonymous, s.clock.Now().Unix()); err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}
	s.logger.Infow("anonymous identity created", "uid", uid, "client_id", clientID)
	return s.IssueTokens(ctx, uid, clientID)
}

// IssueTokens signs an access token and persists a new refresh session.
func (s *Service) IssueTokens(ctx context.Context, uid, clientID string) (*Tokens, error) {
	now := s.clock.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
		Provider: providerAnonymous,
	}
	if clientID != "" {
		claims.Audience = jwt.ClaimStrings{clientID}
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.kid
	access, err := tok.SignedString(s.key)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash refresh secret: %w", err)
	}
	row := repo.RefreshRow{
		ID:         utilities.NewSnowflakeID(),
		UID:        uid,
		SecretHash: string(hash),
		ClientID:   clientID,
		ExpiresAt:  now.Add(s.cfg.RefreshTTL).Unix(),
		CreatedAt:  now.Unix(),
	}
	if err := s.refresh.Save(ctx, row); err != nil {
		return nil, fmt.Errorf("save refresh session: %w", err)
	}

	return &Tokens{
		UID:          uid,
		AccessToken:  access,
		RefreshToken: row.ID + "." + secret,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTTL.Seconds()),
	}, nil
}

// Verify parses an access token and returns its claims.
func (s *Service) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return &s.key.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh consumes a refresh token and issues a new pair. Each refresh
// token is accepted at most once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	id, secret, ok := strings.Cut(refreshToken, ".")
	if !ok || id == "" || secret == "" {
		return nil, ErrInvalidToken
	}
	row, err := s.refresh.Get(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load refresh session: %w", err)
	}
	if s.clock.Now().Unix() >= row.ExpiresAt {
		return nil, fmt.Errorf("%w: refresh token expired", ErrInvalidToken)
	}
	if bcrypt.CompareHashAndPassword([]byte(row.SecretHash), []byte(secret)) != nil {
		return nil, ErrInvalidToken
	}
	deleted, err := s.refresh.Delete(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("revoke refresh session: %w", err)
	}
	if !deleted {
		return nil, fmt.Errorf("%w: refresh token already used", ErrInvalidToken)
	}
	return s.IssueTokens(ctx, row.UID, row.ClientID)
}

// PruneExpired drops refresh sessions past their expiry.
func (s *Service) PruneExpired(ctx context.Context) error {
	n, err := s.refresh.DeleteExpired(ctx, s.clock.Now().Unix())
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Debugw("pruned refresh sessions", "count", n)
	}
	return nil
}

// JWKS returns the public signing key as a JSON Web Key Set.
func (s *Service) JWKS() map[string]any {
	pub := s.key.PublicKey
	return map[string]any{"keys": []any{map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": s.kid,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}
}
