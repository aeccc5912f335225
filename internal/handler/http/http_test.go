package httphandler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/jgivc/fetchbot/internal/common"
	"github.com/jgivc/fetchbot/internal/entity"
)

const (
	content = "0123456789"
	sid     = "0a1b2c3d"
)

type webFiles map[string]*entity.WebFileEntry

func (f webFiles) Lookup(_ context.Context, sid string) (*entity.WebFileEntry, error) {
	e, ok := f[sid]
	if !ok {
		return nil, common.ErrFileNotFoundError
	}

	return e, nil
}

type staticPage struct{}

func (staticPage) GetPage(_ context.Context, name string) (string, error) {
	return "<h1>gone " + name + "</h1>", nil
}

func newTestServer(t *testing.T, files webFiles) *httptest.Server {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/d/0a1b2c3d/movie.mkv", []byte(content), 0o644))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewDownloadHandler(DownloadConfig{ChunkSize: 3, MaxTransfers: 2}, files, staticPage{}, fs, log)
	srv := httptest.NewServer(NewRouter(h, 0, log))
	t.Cleanup(srv.Close)

	return srv
}

func defaultFiles() webFiles {
	return webFiles{
		sid: {SessionID: sid, FilePath: "/d/0a1b2c3d/movie.mkv", Filename: "My movie (2024).mkv", Ext: ".mkv"},
	}
}

func get(t *testing.T, srv *httptest.Server, method, path, rangeHeader string) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequest(method, srv.URL+path, nil)
	require.NoError(t, err)

	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}

func TestDownloadRanges(t *testing.T) {
	srv := newTestServer(t, defaultFiles())

	tests := []struct {
		name         string
		header       string
		status       int
		body         string
		contentRange string
	}{
		{"no header", "", http.StatusOK, content, ""},
		{"open end", "bytes=0-", http.StatusPartialContent, content, "bytes 0-9/10"},
		{"middle", "bytes=2-4", http.StatusPartialContent, "234", "bytes 2-4/10"},
		{"end clamped", "bytes=5-100", http.StatusPartialContent, "56789", "bytes 5-9/10"},
		{"missing start", "bytes=-3", http.StatusPartialContent, "0123", "bytes 0-3/10"},
		{"malformed", "bytes=abc", http.StatusOK, content, ""},
		{"other unit", "items=0-1", http.StatusOK, content, ""},
		{"start past end", "bytes=10-", http.StatusRequestedRangeNotSatisfiable, "", "bytes */10"},
		{"inverted", "bytes=6-2", http.StatusRequestedRangeNotSatisfiable, "", "bytes */10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, srv, http.MethodGet, "/download/0a1b2c3d.mkv", tt.header)

			require.Equal(t, tt.status, resp.StatusCode)
			require.Equal(t, tt.contentRange, resp.Header.Get("Content-Range"))

			if tt.status == http.StatusRequestedRangeNotSatisfiable {
				return
			}

			require.Equal(t, tt.body, body)
			require.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
			require.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
			require.Equal(t, int64(len(tt.body)), resp.ContentLength)
			require.Equal(t, "attachment; filename*=UTF-8''My%20movie%20%282024%29.mkv", resp.Header.Get("Content-Disposition"))
		})
	}
}

func TestDownloadIgnoresExtension(t *testing.T) {
	srv := newTestServer(t, defaultFiles())

	resp, body := get(t, srv, http.MethodGet, "/download/0a1b2c3d.mp4", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, content, body)
}

func TestDownloadHead(t *testing.T) {
	srv := newTestServer(t, defaultFiles())

	resp, body := get(t, srv, http.MethodHead, "/download/0a1b2c3d.mkv", "bytes=0-4")
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	require.Equal(t, int64(5), resp.ContentLength)
	require.Empty(t, body)
}

func TestDownloadNotFound(t *testing.T) {
	srv := newTestServer(t, webFiles{
		"ffffffff": {SessionID: "ffffffff", FilePath: "/d/ffffffff/gone.mkv", Filename: "gone.mkv"},
	})

	for _, path := range []string{"/download/0a1b2c3d.mkv", "/download/ffffffff.mkv", "/download/short", "/download/ZZZZZZZZ.mkv"} {
		resp, body := get(t, srv, http.MethodGet, path, "")
		require.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		require.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"), path)
		require.Contains(t, body, "<h1>gone ", path)
	}
}

func TestOtherRoutes(t *testing.T) {
	srv := newTestServer(t, defaultFiles())

	resp, _ := get(t, srv, http.MethodGet, "/", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, srv, http.MethodPost, "/download/0a1b2c3d.mkv", "")
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestParseRange(t *testing.T) {
	r, err := parseRange("bytes=0-0", 1)
	require.NoError(t, err)
	require.Equal(t, byteRange{start: 0, end: 0, partial: true}, r)

	_, err = parseRange("bytes=0-", 0)
	require.ErrorIs(t, err, common.ErrRangeNotSatisfiable)

	r, err = parseRange("", 0)
	require.NoError(t, err)
	require.False(t, r.partial)

	r, err = parseRange("bytes=1-2,4-5", 10)
	require.NoError(t, err)
	require.Equal(t, byteRange{start: 1, end: 2, partial: true}, r)
}

func TestContentDisposition(t *testing.T) {
	require.Equal(t, "attachment; filename*=UTF-8''%D0%A4%D0%B8%D0%BB%D1%8C%D0%BC.mp4", contentDisposition("Фильм.mp4"))
	require.Equal(t, "attachment; filename*=UTF-8''a%3Bb%22c.mp4", contentDisposition(`a;b"c.mp4`))
}
