package services

import (
	"context"
	"errors"
	"testing"

	errs "github.com/walehn/reader-study-backend/internal/pkg/errors"
	"github.com/walehn/reader-study-backend/internal/types"
)

func registerReader(t *testing.T, f *fixture) *types.Reader {
	t.Helper()
	reader, err := f.authSvc.Register(context.Background(), RegisterInput{
		ReaderCode: "R01",
		Name:       "First Reader",
		Email:      "r01@example.com",
		Password:   "correct-horse",
		Group:      intPtr(1),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return reader
}

func TestRegisterValidatesInput(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.authSvc.Register(ctx, RegisterInput{
		ReaderCode: "R01", Name: "X", Email: "x@example.com", Password: "short",
	}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("short password: got %v, want ErrInvalidArgument", err)
	}

	if _, err := f.authSvc.Register(ctx, RegisterInput{
		ReaderCode: "R01", Name: "X", Email: "x@example.com", Password: "long-enough",
	}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("reader without group: got %v, want ErrInvalidArgument", err)
	}

	registerReader(t, f)
	if _, err := f.authSvc.Register(ctx, RegisterInput{
		ReaderCode: "R02", Name: "Y", Email: "r01@example.com", Password: "long-enough", Group: intPtr(2),
	}); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("duplicate email: got %v, want ErrConflict", err)
	}
}

func TestLoginIssuesParsableToken(t *testing.T) {
	f := newFixture(t, nil)
	reader := registerReader(t, f)
	ctx := context.Background()

	result, err := f.authSvc.Login(ctx, "R01@Example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("login must issue both tokens")
	}

	claims, err := f.authSvc.ParseAccessToken(result.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != reader.ID.String() {
		t.Fatalf("subject = %s, want reader id", claims.Subject)
	}
	if claims.Role != types.RoleReader || claims.Group == nil || *claims.Group != 1 {
		t.Fatalf("claims = %+v, want reader role group 1", claims)
	}

	stored, err := f.readerRepo.GetByID(ctx, nil, reader.ID)
	if err != nil {
		t.Fatalf("reload reader: %v", err)
	}
	if stored.LastLoginAt == nil {
		t.Fatal("login must record last_login_at")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t, nil)
	registerReader(t, f)
	ctx := context.Background()

	if _, err := f.authSvc.Login(ctx, "r01@example.com", "wrong"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("wrong password: got %v, want ErrUnauthorized", err)
	}
	if _, err := f.authSvc.Login(ctx, "nobody@example.com", "whatever"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("unknown email: got %v, want ErrUnauthorized", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newFixture(t, nil)
	registerReader(t, f)
	ctx := context.Background()

	login, err := f.authSvc.Login(ctx, "r01@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	refreshed, err := f.authSvc.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Fatal("refresh must rotate the refresh token")
	}

	// The old token is spent.
	if _, err := f.authSvc.Refresh(ctx, login.RefreshToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("reused token: got %v, want ErrUnauthorized", err)
	}
}

func TestLogoutRevokesTokens(t *testing.T) {
	f := newFixture(t, nil)
	reader := registerReader(t, f)
	ctx := context.Background()

	login, err := f.authSvc.Login(ctx, "r01@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := f.authSvc.Logout(ctx, reader.ID, login.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.authSvc.Refresh(ctx, login.RefreshToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("refresh after logout: got %v, want ErrUnauthorized", err)
	}
}
