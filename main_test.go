package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupWorkdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test_mlkit.html"), []byte("<html>pose</html>"), 0644))
	t.Chdir(dir)
	t.Setenv("CORSSERVE_LOG_LEVEL", "error")
	return dir
}

func TestRunServesUntilInterrupted(t *testing.T) {
	setupWorkdir(t)
	t.Setenv("CORSSERVE_PORT", "0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fetched string
	var fetchErr error
	opener := func(url string) error {
		// Stands in for the browser: load the page, then simulate Ctrl+C
		defer cancel()
		resp, err := http.Get(url)
		if err != nil {
			fetchErr = err
			return nil
		}
		defer resp.Body.Close()
		if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
			fetchErr = errors.New("missing CORS header")
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			fetchErr = err
		}
		fetched = string(body)
		return nil
	}

	var out bytes.Buffer
	code := run(ctx, &out, opener)

	assert.Equal(t, 0, code)
	require.NoError(t, fetchErr)
	assert.Equal(t, "<html>pose</html>", fetched)
	assert.Contains(t, out.String(), "Serving files from: ")
	assert.Contains(t, out.String(), "/test_mlkit.html")
	assert.Contains(t, out.String(), "Opened test page in your browser!")
	assert.Contains(t, out.String(), "Server stopped by user")
}

func TestRunBrowserFailureIsNotFatal(t *testing.T) {
	setupWorkdir(t)
	t.Setenv("CORSSERVE_PORT", "0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer
	code := run(ctx, &out, func(string) error {
		cancel()
		return errors.New("no display")
	})

	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "Please manually open: http://localhost:")
}

func TestRunFailsWhenPortInUse(t *testing.T) {
	setupWorkdir(t)
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	t.Setenv("CORSSERVE_HOST", "127.0.0.1")
	t.Setenv("CORSSERVE_PORT", strconv.Itoa(busy.Addr().(*net.TCPAddr).Port))

	var out bytes.Buffer
	code := run(context.Background(), &out, func(string) error {
		t.Error("browser must not open when bind fails")
		return nil
	})

	assert.Equal(t, 1, code)
	assert.NotContains(t, out.String(), "Server running at")
}

func TestRunRejectsInvalidRoot(t *testing.T) {
	dir := setupWorkdir(t)
	t.Setenv("CORSSERVE_ROOT", filepath.Join(dir, "missing"))

	var out bytes.Buffer
	assert.Equal(t, 1, run(context.Background(), &out, nil))
}

func TestPrintBanner(t *testing.T) {
	var out bytes.Buffer
	printBanner(&out, "/srv/www", "http://localhost:8000/", "http://localhost:8000/test_mlkit.html")

	assert.Equal(t, "ML Kit Pose Detection Test Server\n"+
		"Serving files from: /srv/www\n"+
		"Server running at: http://localhost:8000/\n"+
		"Test page: http://localhost:8000/test_mlkit.html\n"+
		"Press Ctrl+C to stop the server\n\n", out.String())
}
