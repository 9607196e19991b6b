package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	errs "github.com/walehn/reader-study-backend/internal/pkg/errors"
	"github.com/walehn/reader-study-backend/internal/pkg/logger"
	"github.com/walehn/reader-study-backend/internal/repos"
	"github.com/walehn/reader-study-backend/internal/types"
)

// Claims is the access-token payload. Group is nil for admins.
type Claims struct {
	jwt.RegisteredClaims
	ReaderCode string `json:"reader_code"`
	Role       string `json:"role"`
	Group      *int   `json:"group,omitempty"`
}

type RegisterInput struct {
	ReaderCode string `json:"reader_code"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	Group      *int   `json:"group"`
}

type LoginResult struct {
	Reader       *types.Reader `json:"reader"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
}

type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*types.Reader, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*LoginResult, error)
	Logout(ctx context.Context, readerID uuid.UUID, refreshToken string) error
	ParseAccessToken(tokenString string) (*Claims, error)
	AccessTTL() time.Duration
}

type authService struct {
	db         *gorm.DB
	log        *logger.Logger
	readerRepo repos.ReaderRepo
	tokenRepo  repos.ReaderTokenRepo
	auditRepo  repos.AuditLogRepo
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthService(
	db *gorm.DB,
	log *logger.Logger,
	readerRepo repos.ReaderRepo,
	tokenRepo repos.ReaderTokenRepo,
	auditRepo repos.AuditLogRepo,
	jwtSecretKey string,
	accessTTL time.Duration,
	refreshTTL time.Duration,
) AuthService {
	serviceLog := log.With("service", "AuthService")
	return &authService{
		db:         db,
		log:        serviceLog,
		readerRepo: readerRepo,
		tokenRepo:  tokenRepo,
		auditRepo:  auditRepo,
		secret:     []byte(jwtSecretKey),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (as *authService) Register(ctx context.Context, input RegisterInput) (*types.Reader, error) {
	input.ReaderCode = strings.TrimSpace(input.ReaderCode)
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	if input.ReaderCode == "" || input.Name == "" || input.Email == "" {
		return nil, fmt.Errorf("%w: reader_code, name and email are required", errs.ErrInvalidArgument)
	}
	if len(input.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", errs.ErrInvalidArgument)
	}
	role := input.Role
	if role == "" {
		role = types.RoleReader
	}
	if role != types.RoleReader && role != types.RoleAdmin {
		return nil, fmt.Errorf("%w: invalid role %q", errs.ErrInvalidArgument, role)
	}
	if role == types.RoleReader && input.Group == nil {
		return nil, fmt.Errorf("%w: readers need a crossover group", errs.ErrInvalidArgument)
	}

	emailTaken, err := as.readerRepo.EmailExists(ctx, nil, input.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if emailTaken {
		return nil, fmt.Errorf("%w: email already registered", errs.ErrConflict)
	}
	codeTaken, err := as.readerRepo.CodeExists(ctx, nil, input.ReaderCode)
	if err != nil {
		return nil, fmt.Errorf("failed to check reader code: %w", err)
	}
	if codeTaken {
		return nil, fmt.Errorf("%w: reader code already registered", errs.ErrConflict)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	reader := &types.Reader{
		ID:           uuid.New(),
		ReaderCode:   input.ReaderCode,
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: string(hash),
		Role:         role,
		Group:        input.Group,
		IsActive:     true,
	}
	if _, err := as.readerRepo.Create(ctx, nil, []*types.Reader{reader}); err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	as.log.Info("Registered reader", "reader_code", reader.ReaderCode, "role", reader.Role)
	return reader, nil
}

func (as *authService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	reader, err := as.readerRepo.GetByEmail(ctx, nil, email)
	if err != nil {
		return nil, fmt.Errorf("failed to load reader: %w", err)
	}
	if reader == nil || !reader.IsActive {
		return nil, fmt.Errorf("%w: invalid credentials", errs.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(reader.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: invalid credentials", errs.ErrUnauthorized)
	}

	var result *LoginResult
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := as.readerRepo.UpdateLastLogin(ctx, tx, reader.ID, now); err != nil {
			return fmt.Errorf("failed to record login time: %w", err)
		}
		if err := as.tokenRepo.DeleteExpired(ctx, tx, now); err != nil {
			return fmt.Errorf("failed to prune expired tokens: %w", err)
		}
		result, err = as.issueTokens(ctx, tx, reader)
		return err
	})
	if err != nil {
		return nil, err
	}

	as.auditAuth(ctx, reader.ID, types.AuditLogin)
	return result, nil
}

// Refresh rotates the refresh token: the presented one is revoked and a
// new pair is issued.
func (as *authService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh token required", errs.ErrUnauthorized)
	}

	var result *LoginResult
	err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stored, err := as.tokenRepo.GetByHash(ctx, tx, hashToken(refreshToken))
		if err != nil {
			return fmt.Errorf("failed to load refresh token: %w", err)
		}
		if stored == nil || stored.Revoked || stored.ExpiresAt.Before(time.Now()) {
			return fmt.Errorf("%w: refresh token invalid or expired", errs.ErrUnauthorized)
		}

		reader, err := as.readerRepo.GetByID(ctx, tx, stored.ReaderID)
		if err != nil {
			return fmt.Errorf("failed to load reader: %w", err)
		}
		if reader == nil || !reader.IsActive {
			return fmt.Errorf("%w: reader no longer active", errs.ErrUnauthorized)
		}

		if err := as.tokenRepo.Revoke(ctx, tx, stored.ID); err != nil {
			return fmt.Errorf("failed to revoke old token: %w", err)
		}
		result, err = as.issueTokens(ctx, tx, reader)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (as *authService) Logout(ctx context.Context, readerID uuid.UUID, refreshToken string) error {
	err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if refreshToken != "" {
			stored, err := as.tokenRepo.GetByHash(ctx, tx, hashToken(refreshToken))
			if err != nil {
				return fmt.Errorf("failed to load refresh token: %w", err)
			}
			if stored != nil && stored.ReaderID == readerID {
				return as.tokenRepo.Revoke(ctx, tx, stored.ID)
			}
		}
		return as.tokenRepo.RevokeAllForReader(ctx, tx, readerID)
	})
	if err != nil {
		return err
	}
	as.auditAuth(ctx, readerID, types.AuditLogout)
	return nil
}

func (as *authService) issueTokens(ctx context.Context, tx *gorm.DB, reader *types.Reader) (*LoginResult, error) {
	accessToken, err := as.generateAccessToken(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshToken, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	stored := &types.ReaderToken{
		ID:        uuid.New(),
		ReaderID:  reader.ID,
		TokenHash: hashToken(refreshToken),
		ExpiresAt: time.Now().Add(as.refreshTTL),
	}
	if err := as.tokenRepo.Create(ctx, tx, stored); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &LoginResult{
		Reader:       reader,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (as *authService) generateAccessToken(reader *types.Reader) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   reader.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(as.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		ReaderCode: reader.ReaderCode,
		Role:       reader.Role,
		Group:      reader.Group,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(as.secret)
}

func (as *authService) ParseAccessToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return as.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
	}
	return claims, nil
}

func (as *authService) AccessTTL() time.Duration {
	return as.accessTTL
}

func (as *authService) auditAuth(ctx context.Context, readerID uuid.UUID, action string) {
	entry := &types.AuditLog{
		ID:           uuid.New(),
		ReaderID:     &readerID,
		Action:       action,
		ResourceType: "reader",
		ResourceID:   readerID.String(),
	}
	if err := as.auditRepo.Create(ctx, nil, entry); err != nil {
		as.log.Error("Failed to write auth audit entry", "action", action, "error", err)
	}
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
