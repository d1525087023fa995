package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/arnavshah/odp-scheduler-go/pkg/config"
	"github.com/arnavshah/odp-scheduler-go/pkg/database"
)

func testService() *Service {
	return NewService(config.Config{JWTSecret: "jwt-secret", APIMasterSecret: "master-secret"}).
		WithCost(bcrypt.MinCost)
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.Config{DataPath: filepath.Join(t.TempDir(), "auth.db")})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestTokenRoundTrip(t *testing.T) {
	s := testService()
	token, err := s.CreateToken("planner")
	require.NoError(t, err)

	claims, err := s.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "planner", claims.Username)

	other := NewService(config.Config{JWTSecret: "other"})
	_, err = other.VerifyToken(token)
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	s := testService()
	s.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	token, err := s.CreateToken("planner")
	require.NoError(t, err)

	s.now = time.Now
	_, err = s.VerifyToken(token)
	assert.Error(t, err)
}

func TestHMACKey(t *testing.T) {
	s := testService()
	key := s.GenerateHMACKey("line-3")

	id, err := s.VerifyHMACKey(key)
	require.NoError(t, err)
	assert.Equal(t, "line-3", id)

	_, err = s.VerifyHMACKey("line-3.deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	_, err = s.VerifyHMACKey("no-dot")
	assert.ErrorIs(t, err, ErrInvalidKeyFormat)
	_, err = s.VerifyHMACKey("a.b.c")
	assert.ErrorIs(t, err, ErrInvalidKeyFormat)
}

func TestEnsureOperatorAndLogin(t *testing.T) {
	s := testService()
	db := openDB(t)
	ctx := context.Background()

	created, err := s.EnsureOperator(ctx, db, "admin", "admin123")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureOperator(ctx, db, "someone", "else")
	require.NoError(t, err)
	assert.False(t, created)

	token, err := s.Login(ctx, db, "admin", "admin123")
	require.NoError(t, err)
	claims, err := s.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)

	_, err = s.Login(ctx, db, "admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredential)
	_, err = s.Login(ctx, db, "ghost", "admin123")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestIssueAndVerifyAPIKey(t *testing.T) {
	s := testService()
	db := openDB(t)
	ctx := context.Background()

	key, rec, err := s.IssueAPIKey(ctx, db, "mes-bridge")
	require.NoError(t, err)
	assert.Equal(t, key[:12], rec.KeyPreview)

	got, err := VerifyAPIKey(ctx, db, key)
	require.NoError(t, err)
	assert.Equal(t, "mes-bridge", got.Name)
	assert.NotNil(t, got.LastUsed)

	_, err = VerifyAPIKey(ctx, db, "odp_unknown")
	assert.Error(t, err)
}
