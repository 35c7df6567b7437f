// Package auth issues and validates the bearer tokens that guard the
// prediction endpoint. RS256 is the default; HS256 with a shared secret is
// accepted for single-host deployments.
package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"titanic-predictor/internal/cfg"
	"titanic-predictor/internal/common"
)

var ErrNoSigningKey = errors.New("no private key configured; service can only validate tokens")

// AuthenticationError is returned for missing, malformed or expired tokens.
type AuthenticationError struct {
	Msg string
	Err error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return "authentication failed: " + e.Msg + ": " + e.Err.Error()
	}
	return "authentication failed: " + e.Msg
}

func (e *AuthenticationError) Unwrap() error   { return e.Err }
func (e *AuthenticationError) Code() string    { return common.CodeAuthentication }
func (e *AuthenticationError) HTTPStatus() int { return http.StatusUnauthorized }

type Service struct {
	settings   cfg.JWTSettings
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	now        func() time.Time
}

// NewService parses the configured key material. With only a public key
// the service validates but cannot issue tokens.
func NewService(settings cfg.JWTSettings) (*Service, error) {
	s := &Service{settings: settings, now: time.Now}

	switch settings.Algorithm {
	case "RS256":
		if settings.PrivateKey != "" {
			key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(settings.PrivateKey))
			if err != nil {
				return nil, common.NewConfigurationError("failed to parse RSA private key", err)
			}
			s.privateKey = key
			s.publicKey = &key.PublicKey
		}
		if settings.PublicKey != "" {
			key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(settings.PublicKey))
			if err != nil {
				return nil, common.NewConfigurationError("failed to parse RSA public key", err)
			}
			s.publicKey = key
		}
		if s.publicKey == nil {
			return nil, common.NewConfigurationError(common.ErrMsgJWTKeysRequired, nil)
		}
	case "HS256":
		if settings.Secret == "" {
			return nil, common.NewConfigurationError(common.ErrMsgJWTKeysRequired, nil)
		}
	default:
		return nil, common.NewConfigurationError(fmt.Sprintf("unsupported JWT algorithm %q", settings.Algorithm), nil)
	}
	return s, nil
}

// CanIssue reports whether GenerateToken will work.
func (s *Service) CanIssue() bool {
	return s.settings.Algorithm == "HS256" || s.privateKey != nil
}

// GenerateToken signs a token for userID carrying roles.
func (s *Service) GenerateToken(userID string, roles []string) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.settings.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.settings.Expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		UserID: userID,
		Roles:  roles,
	}

	if s.settings.Algorithm == "HS256" {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.settings.Secret))
		if err != nil {
			return "", fmt.Errorf("failed to sign token: %w", err)
		}
		return signed, nil
	}

	if s.privateKey == nil {
		return "", ErrNoSigningKey
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token with RSA: %w", err)
	}
	return signed, nil
}

// ValidateToken parses tokenString and checks signature, expiry and issuer.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, &AuthenticationError{Msg: "missing token"}
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if s.settings.Algorithm == "HS256" {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(s.settings.Secret), nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v (expected RS256)", token.Header["alg"])
		}
		return s.publicKey, nil
	},
		jwt.WithIssuer(s.settings.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, &AuthenticationError{Msg: "invalid token", Err: err}
	}
	if !token.Valid {
		return nil, &AuthenticationError{Msg: "invalid token"}
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	return claims, nil
}

// GenerateKeyPair returns a 2048-bit RSA key pair as PEM, for development.
func GenerateKeyPair() (privateKeyPEM, publicKeyPEM []byte, err error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})

	pubBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	})

	return privPEM, pubPEM, nil
}
