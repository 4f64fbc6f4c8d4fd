package integration

import (
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

const testJWTSecret = "integration-secret-0123456789abcdef"

// serverEnv is the environment the binary runs with. Provider endpoints
// point at the fake GitHub server and nothing is read from disk or AWS.
func serverEnv(t *testing.T) []string {
	return []string{
		"PORT=" + serverPort,
		"API_BASE_URL=" + serverURL,
		"GENERATEUI_ENV=test",
		"GENERATEUI_JWT_SECRET=" + testJWTSecret,
		"ENV_FILE_PATH=" + filepath.Join(t.TempDir(), "missing.env"),
		"GITHUB_CLIENT_ID=integration-client",
		"GITHUB_CLIENT_SECRET=integration-secret",
		"GITHUB_AUTH_URL=" + fakeGitHubURL + "/login/oauth/authorize",
		"GITHUB_TOKEN_URL=" + fakeGitHubURL + "/login/oauth/access_token",
		"GITHUB_API_URL=" + fakeGitHubURL + "/api",
		"GOOGLE_CLIENT_ID=",
		"GOOGLE_CLIENT_SECRET=",
		"STORAGE=memory",
		"DATABASE_URL=",
		"GEOIP_ENABLED=false",
		"PROVIDER_TIMEOUT=5s",
		"SHUTDOWN_TIMEOUT=5s",
		"AWS_SECRETS_MANAGER_SECRET_ID=",
	}
}

// trace logs a message if TRACE environment variable is set
func trace(t *testing.T, format string, args ...any) {
	if os.Getenv("TRACE") == "1" {
		t.Logf("TRACE: "+format, args...)
	}
}

// startServer starts the generateui-api binary. extraEnv entries override
// the defaults from serverEnv.
func startServer(t *testing.T, extraEnv ...string) {
	t.Helper()
	cmd := exec.Command(binaryPath)

	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env, serverEnv(t)...)
	cmd.Env = append(cmd.Env, extraEnv...)

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cmd.Env = append(cmd.Env, "LOG_LEVEL="+logLevel)
	}

	if logFile := os.Getenv("GENERATEUI_LOG_FILE"); logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			cmd.Stderr = f
			cmd.Stdout = f
			t.Cleanup(func() { f.Close() })
		}
	}

	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start generateui-api: %v", err)
	}
	t.Cleanup(func() {
		stopServer(cmd)
	})

	waitForServer(t)
}

// stopServer stops the server gracefully
func stopServer(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}

	if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
}

// waitForServer waits for /health to answer
func waitForServer(t *testing.T) {
	t.Helper()
	for range 20 {
		resp, err := http.Get(serverURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("generateui-api failed to become ready on %s", serverURL)
}

// noRedirectClient returns a client that hands every redirect back to the
// caller so each hop of the login flow can be inspected.
func noRedirectClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
