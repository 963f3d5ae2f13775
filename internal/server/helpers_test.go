package server

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/birdseye/internal/geometry"
	"github.com/MeKo-Tech/birdseye/internal/pipeline"
)

// a lane pair the selector accepts on a 640 px wide frame
var laneSegs = []geometry.Segment{
	geometry.NewSegment(400, 100, 500, 300),
	geometry.NewSegment(240, 100, 140, 300),
}

func segmentSource(segs []geometry.Segment) pipeline.SegmentSource {
	return pipeline.SegmentSourceFunc(func(context.Context, image.Image) ([]geometry.Segment, error) {
		return segs, nil
	})
}

func testConfig() Config {
	return Config{
		CORSOrigin:  "*",
		MaxUploadMB: 5,
		TimeoutSec:  10,
	}
}

// newTestServer builds a server whose pipeline reports segs for every frame.
func newTestServer(t *testing.T, cfg Config, segs []geometry.Segment) *Server {
	t.Helper()
	pl, err := pipeline.NewBuilder().WithSegmentSource(segmentSource(segs)).Build()
	require.NoError(t, err)
	s := NewServerWithPipeline(cfg, pl)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func startServer(t *testing.T, s *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func encodedFrame(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 640, 480))))
	return buf.Bytes()
}

// multipartFrame builds a request body with data in the given form field.
func multipartFrame(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, "frame_0001.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func createSession(t *testing.T, ts *httptest.Server) SessionResponse {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/sessions", "application/json", bytes.NewBufferString(`{"name":"cam0"}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var sess SessionResponse
	decodeJSON(t, resp, &sess)
	return sess
}

func postFrame(t *testing.T, ts *httptest.Server, id, query string) *http.Response {
	t.Helper()
	body, contentType := multipartFrame(t, "frame", encodedFrame(t))
	resp, err := http.Post(ts.URL+"/v1/sessions/"+id+"/frames"+query, contentType, body)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
