package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listingServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/list":
			fmt.Fprint(w, `<div class="row"><a href="/d/1">one</a></div><span class="pager">1 of 1</span>`)
		case "/d/1":
			fmt.Fprint(w, `<h1>One</h1><time>2024-03-01</time><a class="doc" href="/one.pdf">pdf</a>`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func writeConfig(t *testing.T, baseURL string) (path, dir string) {
	t.Helper()
	dir = t.TempDir()
	body := fmt.Sprintf(`
target:
  url_template: "%s/list?page={page}"
crawl:
  page_settle: 0s
  element_settle: 0s
  request_delay: 0s
browser:
  mode: static
selectors:
  items: "div.row"
  item_link: "a"
  title: "h1"
  date: "time"
  document: "a.doc"
  pagination: "span.pager"
output:
  csv_path: %q
checkpoint:
  backend: local
  path: %q
logging:
  development: false
  level: error
`, baseURL, filepath.Join(dir, "out.csv"), filepath.Join(dir, "state.json"))
	path = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCrawlStatusReset(t *testing.T) {
	t.Parallel()

	srv := listingServer()
	defer srv.Close()
	cfgPath, dir := writeConfig(t, srv.URL)

	out, err := execute(t, "--config", cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "no checkpoint at file://")

	out, err = execute(t, "--config", cfgPath, "crawl")
	require.NoError(t, err)
	assert.Contains(t, out, "outcome:         completed")
	assert.Contains(t, out, "records written: 1")

	csvData, err := os.ReadFile(filepath.Join(dir, "out.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Title,Date,DocumentUrl\nOne,2024-03-01,"+srv.URL+"/one.pdf\n", string(csvData))

	out, err = execute(t, "--config", cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, `"lastPage": 1`)
	assert.Contains(t, out, srv.URL+"/d/1")

	_, err = execute(t, "--config", cfgPath, "reset")
	require.ErrorContains(t, err, "--yes")
	assert.FileExists(t, filepath.Join(dir, "state.json"))

	_, err = execute(t, "--config", cfgPath, "reset", "--yes")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "state.json"))
	assert.NoFileExists(t, filepath.Join(dir, "out.csv"))
}

func TestCrawlFatalReturnsErrFatal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Listing without a pagination indicator.
		fmt.Fprint(w, `<div class="row">no link</div>`)
	}))
	defer srv.Close()
	cfgPath, _ := writeConfig(t, srv.URL)

	out, err := execute(t, "--config", cfgPath, "crawl", "--dry-run")
	require.ErrorIs(t, err, errFatal)
	assert.Contains(t, out, "outcome:         fatal")
}

func TestInvalidConfigFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("browser:\n  mode: lynx\n"), 0o600))
	_, err := execute(t, "--config", path, "status")
	require.ErrorContains(t, err, "load config")
}

func TestPausePromptWaitsForEnter(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	prompt := pausePrompt(strings.NewReader("\n"), &out)
	prompt(context.Background(), 2, 5, "missing link")
	assert.Contains(t, out.String(), "page 2, entry 5: missing link")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	blocked := pausePrompt(pr, &out)
	blocked(ctx, 1, 1, "missing link")
}
