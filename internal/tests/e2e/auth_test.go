//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/userhub-api/backend/config"
	"github.com/userhub-api/backend/internal/db"
	"github.com/userhub-api/backend/internal/server"
)

const (
	serverPort = 18080
	jwtSecret  = "e2e-test-secret-key-that-is-long-enough"
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	os.Setenv("JWT_SECRET", jwtSecret)

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestAuthLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	suffix := time.Now().UnixNano()
	email := fmt.Sprintf("alice_%d@example.com", suffix)
	username := fmt.Sprintf("alice_%d", suffix)
	password := "secret1"

	// Register.
	user, err := registerUser(t, baseURL, email, username, password)
	if err != nil {
		t.Fatalf("register user: %v", err)
	}
	if user.ID == 0 {
		t.Fatalf("expected user ID to be set")
	}

	// Login returns a token pair.
	tokens, err := loginUser(t, baseURL, email, password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected non-empty token pair")
	}
	if tokens.TokenType != "bearer" {
		t.Fatalf("unexpected token type: %q", tokens.TokenType)
	}

	// The access token resolves the user on a protected route.
	me, err := currentUser(t, baseURL, tokens.AccessToken)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if me.Username != username {
		t.Fatalf("unexpected username: %q", me.Username)
	}

	// Refresh yields a new, different access token for the same user.
	refreshed, err := refreshToken(t, baseURL, tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.AccessToken == "" || refreshed.AccessToken == tokens.AccessToken {
		t.Fatalf("expected a new access token from refresh")
	}
	me2, err := currentUser(t, baseURL, refreshed.AccessToken)
	if err != nil {
		t.Fatalf("me after refresh: %v", err)
	}
	if me2.ID != me.ID {
		t.Fatalf("refresh resolved a different user: %d != %d", me2.ID, me.ID)
	}

	// An access token is not accepted where a refresh token is required.
	if _, err := refreshToken(t, baseURL, tokens.AccessToken); err == nil {
		t.Fatalf("expected refresh with access token to fail")
	}

	// Change password; the old one stops working.
	if err := changePassword(t, baseURL, tokens.AccessToken, password, "secret2"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := loginUser(t, baseURL, email, password); err == nil {
		t.Fatalf("expected login with old password to fail")
	}
	if _, err := loginUser(t, baseURL, email, "secret2"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	// Deactivate; the still-valid token now yields 400, not 401.
	if err := deactivateUser(username); err != nil {
		t.Fatalf("deactivate user: %v", err)
	}
	status, err := protectedStatus(t, baseURL, refreshed.AccessToken)
	if err != nil {
		t.Fatalf("protected after deactivate: %v", err)
	}
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for inactive account, got %d", status)
	}
}

func TestLoginFailuresAreGeneric(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	suffix := time.Now().UnixNano()
	email := fmt.Sprintf("bob_%d@example.com", suffix)
	username := fmt.Sprintf("bob_%d", suffix)

	if _, err := registerUser(t, baseURL, email, username, "secret1"); err != nil {
		t.Fatalf("register user: %v", err)
	}

	wrongPassword, err := loginRaw(t, baseURL, email, "wrong")
	if err != nil {
		t.Fatalf("login wrong password: %v", err)
	}
	unknownEmail, err := loginRaw(t, baseURL, fmt.Sprintf("ghost_%d@example.com", suffix), "secret1")
	if err != nil {
		t.Fatalf("login unknown email: %v", err)
	}

	if wrongPassword.status != http.StatusUnauthorized || unknownEmail.status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for both failures, got %d and %d", wrongPassword.status, unknownEmail.status)
	}
	if wrongPassword.body != unknownEmail.body {
		t.Fatalf("failure bodies differ: %q vs %q", wrongPassword.body, unknownEmail.body)
	}
}

type userResponse struct {
	ID       int    `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	IsActive bool   `json:"is_active"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user"`
}

type rawResponse struct {
	status int
	body   string
}

func registerUser(t *testing.T, baseURL, email, username, password string) (userResponse, error) {
	t.Helper()

	payload := map[string]string{
		"email":    email,
		"username": username,
		"password": password,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return userResponse{}, err
	}

	resp, err := http.Post(baseURL+"/users", "application/json", bytes.NewReader(body))
	if err != nil {
		return userResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return userResponse{}, fmt.Errorf("register status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed userResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return userResponse{}, err
	}
	return parsed, nil
}

func loginUser(t *testing.T, baseURL, email, password string) (tokenResponse, error) {
	t.Helper()

	raw, err := loginRaw(t, baseURL, email, password)
	if err != nil {
		return tokenResponse{}, err
	}
	if raw.status != http.StatusOK {
		return tokenResponse{}, fmt.Errorf("login status %d: %s", raw.status, raw.body)
	}

	var parsed tokenResponse
	if err := json.Unmarshal([]byte(raw.body), &parsed); err != nil {
		return tokenResponse{}, err
	}
	return parsed, nil
}

func loginRaw(t *testing.T, baseURL, email, password string) (rawResponse, error) {
	t.Helper()

	payload := map[string]string{"email": email, "password": password}
	body, err := json.Marshal(payload)
	if err != nil {
		return rawResponse{}, err
	}

	resp, err := http.Post(baseURL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return rawResponse{}, err
	}
	defer resp.Body.Close()

	msg, err := io.ReadAll(resp.Body)
	if err != nil {
		return rawResponse{}, err
	}
	return rawResponse{status: resp.StatusCode, body: strings.TrimSpace(string(msg))}, nil
}

func refreshToken(t *testing.T, baseURL, refresh string) (tokenResponse, error) {
	t.Helper()

	payload := map[string]string{"refresh_token": refresh}
	body, err := json.Marshal(payload)
	if err != nil {
		return tokenResponse{}, err
	}

	resp, err := http.Post(baseURL+"/auth/refresh", "application/json", bytes.NewReader(body))
	if err != nil {
		return tokenResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return tokenResponse{}, fmt.Errorf("refresh status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return tokenResponse{}, err
	}
	return parsed, nil
}

func currentUser(t *testing.T, baseURL, accessToken string) (userResponse, error) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/auth/me", nil)
	if err != nil {
		return userResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return userResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return userResponse{}, fmt.Errorf("me status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed userResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return userResponse{}, err
	}
	return parsed, nil
}

func protectedStatus(t *testing.T, baseURL, accessToken string) (int, error) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/auth/protected", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func changePassword(t *testing.T, baseURL, accessToken, oldPassword, newPassword string) error {
	t.Helper()

	payload := map[string]string{
		"old_password": oldPassword,
		"new_password": newPassword,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPut, baseURL+"/auth/change-password", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("change password status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func deactivateUser(username string) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.BuildPostgresURL(cfg))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = conn.ExecContext(ctx, "UPDATE users SET is_active = FALSE, updated_at = NOW() WHERE username = $1", username)
	return err
}

func startServer(ctx context.Context) (*server.Server, error) {
	cfg := config.LoadConfig()

	// The broker may come up after postgres; retry briefly.
	var srv *server.Server
	var err error
	for attempt := 0; attempt < 30; attempt++ {
		srv, err = server.New(ctx, cfg)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	if err != nil {
		return nil, err
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "server stopped: %v\n", err)
		}
	}()
	return srv, nil
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.BuildPostgresURL(cfg))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	migrationsURL := "file://" + filepath.Join(root, "internal", "db", "migrations")

	migrator, err := migrate.New(migrationsURL, db.BuildPostgresURL(cfg))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	cmd := exec.CommandContext(ctx, "docker", append([]string{"compose"}, args...)...)
	cmd.Dir = root
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found above %s", dir)
		}
		dir = parent
	}
}
