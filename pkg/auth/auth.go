package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arnavshah/odp-scheduler-go/pkg/config"
	"github.com/arnavshah/odp-scheduler-go/pkg/database"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	// DefaultCost is the bcrypt cost for operator passwords.
	DefaultCost = 14
	tokenTTL    = 24 * time.Hour
)

var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrInvalidKeyFormat  = errors.New("invalid key format")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrInvalidCredential = errors.New("invalid username or password")
)

var jwtAlgorithm = jwt.SigningMethodHS256

// Claims represents the JWT claims
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service signs and verifies operator tokens and API keys.
type Service struct {
	jwtSecret    []byte
	masterSecret []byte
	cost         int
	now          func() time.Time
}

// NewService builds a Service from the configured secrets.
func NewService(cfg config.Config) *Service {
	return &Service{
		jwtSecret:    []byte(cfg.JWTSecret),
		masterSecret: []byte(cfg.APIMasterSecret),
		cost:         DefaultCost,
		now:          time.Now,
	}
}

// WithCost sets the bcrypt cost, mainly so tests stay fast.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

// HashPassword hashes a password using bcrypt
func (s *Service) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	return string(bytes), err
}

// CheckPasswordHash compares a password with its hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CreateToken creates a new JWT token for an operator
func (s *Service) CreateToken(username string) (string, error) {
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(s.now().Add(tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwtAlgorithm, claims)
	return token.SignedString(s.jwtSecret)
}

// VerifyToken verifies a JWT token
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwtAlgorithm {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Login checks operator credentials and returns a fresh token.
func (s *Service) Login(ctx context.Context, db *gorm.DB, username, password string) (string, error) {
	var op database.Operator
	if err := db.WithContext(ctx).Where("username = ?", username).First(&op).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrInvalidCredential
		}
		return "", err
	}
	if !CheckPasswordHash(password, op.PasswordHash) {
		return "", ErrInvalidCredential
	}
	return s.CreateToken(op.Username)
}

// EnsureOperator creates the first operator when the table is empty. It
// reports whether one was created.
func (s *Service) EnsureOperator(ctx context.Context, db *gorm.DB, username, password string) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&database.Operator{}).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return false, err
	}
	op := database.Operator{Username: username, PasswordHash: hash}
	if err := db.WithContext(ctx).Create(&op).Error; err != nil {
		return false, err
	}
	return true, nil
}

// GenerateHMACKey creates a signed API key using HMAC-SHA256
func (s *Service) GenerateHMACKey(clientID string) string {
	return clientID + "." + s.sign(clientID)
}

// VerifyHMACKey validates an HMAC-signed API key and returns its client id.
func (s *Service) VerifyHMACKey(key string) (string, error) {
	clientID, signature, ok := strings.Cut(key, ".")
	if !ok || clientID == "" || strings.Contains(signature, ".") {
		return "", ErrInvalidKeyFormat
	}
	if !hmac.Equal([]byte(signature), []byte(s.sign(clientID))) {
		return "", ErrInvalidSignature
	}
	return clientID, nil
}

func (s *Service) sign(clientID string) string {
	h := hmac.New(sha256.New, s.masterSecret)
	h.Write([]byte(clientID))
	return hex.EncodeToString(h.Sum(nil))
}

// IssueAPIKey stores a new random key under name and returns the plain key.
func (s *Service) IssueAPIKey(ctx context.Context, db *gorm.DB, name string) (string, database.APIKey, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", database.APIKey{}, err
	}
	key := "odp_" + hex.EncodeToString(buf)
	rec := database.APIKey{Key: key, KeyPreview: key[:12], Name: name}
	if err := db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", database.APIKey{}, err
	}
	return key, rec, nil
}

// VerifyAPIKey checks a stored API key and records its last use.
func VerifyAPIKey(ctx context.Context, db *gorm.DB, key string) (*database.APIKey, error) {
	var apiKey database.APIKey
	if err := db.WithContext(ctx).Where("key = ?", key).First(&apiKey).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	apiKey.LastUsed = &now
	db.WithContext(ctx).Model(&apiKey).Update("last_used", now)

	return &apiKey, nil
}
