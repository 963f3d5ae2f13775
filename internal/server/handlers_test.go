package server

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/birdseye/internal/pipeline"
)

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestServer_HealthHandler(t *testing.T) {
	ts := startServer(t, newTestServer(t, testConfig(), laneSegs))

	tests := []struct {
		name           string
		method         string
		expectedStatus int
		checkResponse  bool
	}{
		{"GET request success", http.MethodGet, http.StatusOK, true},
		{"POST request not allowed", http.MethodPost, http.StatusMethodNotAllowed, false},
		{"PUT request not allowed", http.MethodPut, http.StatusMethodNotAllowed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+"/health", nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			if tt.checkResponse {
				var response HealthResponse
				decodeJSON(t, resp, &response)
				assert.Equal(t, "healthy", response.Status)
				assert.NotEmpty(t, response.Time)
				assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			}
		})
	}
}

func TestServer_VersionHandler(t *testing.T) {
	ts := startServer(t, newTestServer(t, testConfig(), laneSegs))

	resp, err := http.Get(ts.URL + "/version")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var v VersionResponse
	decodeJSON(t, resp, &v)
	assert.NotEmpty(t, v.Version)
	assert.NotEmpty(t, v.GoVersion)
	assert.Equal(t, "go", v.Pipeline["backend"])
}

func TestServer_SessionLifecycle(t *testing.T) {
	s := newTestServer(t, testConfig(), laneSegs)
	ts := startServer(t, s)

	sess := createSession(t, ts)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "cam0", sess.Name)
	assert.True(t, sess.State.FirstFrame)
	assert.Equal(t, 1, s.sessions.len())

	resp, err := http.Get(ts.URL + "/v1/sessions/" + sess.ID)
	require.NoError(t, err)
	var got SessionResponse
	decodeJSON(t, resp, &got)
	_ = resp.Body.Close()
	assert.Equal(t, sess.ID, got.ID)
	assert.Zero(t, got.Stats.Frames)

	resp, err = http.Post(ts.URL+"/v1/sessions/"+sess.ID+"/reset", "", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/v1/sessions/"+sess.ID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, s.sessions.len())

	resp, err = http.Get(ts.URL + "/v1/sessions/" + sess.ID)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_CreateSession(t *testing.T) {
	t.Run("empty body", func(t *testing.T) {
		ts := startServer(t, newTestServer(t, testConfig(), laneSegs))
		resp, err := http.Post(ts.URL+"/v1/sessions", "", nil)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("invalid json", func(t *testing.T) {
		ts := startServer(t, newTestServer(t, testConfig(), laneSegs))
		resp, err := http.Post(ts.URL+"/v1/sessions", "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var e ErrorResponse
		decodeJSON(t, resp, &e)
		assert.False(t, e.Success)
		assert.Equal(t, "Invalid JSON body", e.Error)
	})

	t.Run("session limit", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxSessions = 1
		ts := startServer(t, newTestServer(t, cfg, laneSegs))
		createSession(t, ts)

		resp, err := http.Post(ts.URL+"/v1/sessions", "", nil)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	})
}

func TestServer_UnknownSession(t *testing.T) {
	ts := startServer(t, newTestServer(t, testConfig(), laneSegs))

	for _, path := range []string{"/v1/sessions/nope", "/v1/sessions/nope/stream"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	resp := postFrame(t, ts, "nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_FrameHandler(t *testing.T) {
	s := newTestServer(t, testConfig(), laneSegs)
	ts := startServer(t, s)
	sess := createSession(t, ts)

	resp := postFrame(t, ts, sess.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res pipeline.FrameResult
	decodeJSON(t, resp, &res)
	assert.Equal(t, pipeline.StatusRectified, res.Status)
	assert.Equal(t, sess.ID, res.SessionID)
	assert.Equal(t, "frame_0001.png", res.Name)
	assert.Equal(t, 640, res.Width)
	assert.Equal(t, 2, res.Segments)
	assert.True(t, res.Lane.Found)
	require.NotNil(t, res.Transform)

	resp = postFrame(t, ts, sess.ID, "?reset=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &res)
	assert.Equal(t, 1, res.Index)
	assert.True(t, res.Reset)

	e, err := s.sessions.get(sess.ID)
	require.NoError(t, err)
	stats := e.response().Stats
	assert.Equal(t, 2, stats.Frames)
	assert.Equal(t, 2, stats.Rectified)
	assert.Equal(t, 1, stats.Resets)
}

func TestServer_FrameHandler_Warp(t *testing.T) {
	t.Run("rectified frame returns png", func(t *testing.T) {
		ts := startServer(t, newTestServer(t, testConfig(), laneSegs))
		sess := createSession(t, ts)

		resp := postFrame(t, ts, sess.ID, "?warp=1")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
		assert.Equal(t, "rectified", resp.Header.Get("X-Birdseye-Status"))

		img, err := png.Decode(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, 640, img.Bounds().Dx())
		assert.Equal(t, 480, img.Bounds().Dy())
	})

	t.Run("no lane", func(t *testing.T) {
		ts := startServer(t, newTestServer(t, testConfig(), nil))
		sess := createSession(t, ts)

		resp := postFrame(t, ts, sess.ID, "?warp=true")
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		var e ErrorResponse
		decodeJSON(t, resp, &e)
		assert.Contains(t, e.Error, "no_lane")
	})
}

func TestServer_FrameHandler_BadRequests(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUploadMB = 1
	s := newTestServer(t, cfg, laneSegs)
	handler := s.Handler()
	e, err := s.sessions.create(s.pipeline, "")
	require.NoError(t, err)
	target := "/v1/sessions/" + e.sess.ID + "/frames"

	tests := []struct {
		name           string
		field          string
		data           []byte
		expectedStatus int
		expectedError  string
	}{
		{"missing frame field", "image", encodedFrame(t), http.StatusBadRequest, "No frame file provided"},
		{"not an image", "frame", []byte("definitely not a png"), http.StatusBadRequest, "Invalid image format"},
		{"too large", "frame", bytes.Repeat([]byte{1}, 2*1024*1024), http.StatusRequestEntityTooLarge, "File too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartFrame(t, tt.field, tt.data)
			req := httptest.NewRequest(http.MethodPost, target, body)
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.expectedError, resp.Error)
		})
	}

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader("frame"))
		req.Header.Set("Content-Type", "text/plain")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestServer_Metrics(t *testing.T) {
	ts := startServer(t, newTestServer(t, testConfig(), laneSegs))
	sess := createSession(t, ts)
	postFrame(t, ts, sess.ID, "")

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `birdseye_frames_total{source="http",status="rectified"}`)
	assert.Contains(t, text, `route="POST /v1/sessions/{id}/frames"`)
	assert.Contains(t, text, "birdseye_active_sessions")
}

func TestServer_CORS(t *testing.T) {
	tests := []struct {
		name         string
		corsOrigin   string
		origin       string
		expectedCORS string
	}{
		{"wildcard", "*", "https://example.com", "*"},
		{"listed origin", "https://a.example, https://example.com", "https://example.com", "https://example.com"},
		{"unlisted origin", "https://a.example", "https://example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.CORSOrigin = tt.corsOrigin
			ts := startServer(t, newTestServer(t, cfg, laneSegs))

			req, err := http.NewRequest(http.MethodOptions, ts.URL+"/v1/sessions", nil)
			require.NoError(t, err)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			_ = resp.Body.Close()

			assert.Less(t, resp.StatusCode, 300)
			assert.Equal(t, tt.expectedCORS, resp.Header.Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestServer_CloseWithoutPipeline(t *testing.T) {
	s := NewServerWithPipeline(testConfig(), nil)
	assert.NoError(t, s.Close())
}
