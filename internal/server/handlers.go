package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/birdseye/internal/frames"
	"github.com/MeKo-Tech/birdseye/internal/pipeline"
	"github.com/MeKo-Tech/birdseye/internal/version"
)

const (
	sourceHTTP      = "http"
	sourceWebSocket = "websocket"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "healthy",
		Version:  version.Version,
		Time:     time.Now().UTC().Format(time.RFC3339),
		Sessions: s.sessions.len(),
	})
}

// versionHandler returns build information and the pipeline settings.
func (s *Server) versionHandler(w http.ResponseWriter, _ *http.Request) {
	v, commit, date := version.Info()
	resp := VersionResponse{
		Version:   v,
		GitCommit: commit,
		BuildDate: date,
		GoVersion: runtime.Version(),
	}
	if s.pipeline != nil {
		resp.Pipeline = s.pipeline.Info()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// createSessionHandler starts a tracking session. The body is optional.
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		s.writeErrorResponse(w, "Pipeline not initialized", http.StatusServiceUnavailable)
		return
	}

	var req CreateSessionRequest
	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
		if err != nil {
			s.writeErrorResponse(w, "Failed to read request body", http.StatusBadRequest)
			return
		}
		if len(bytes.TrimSpace(body)) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				s.writeErrorResponse(w, "Invalid JSON body", http.StatusBadRequest)
				return
			}
		}
	}

	e, err := s.sessions.create(s.pipeline, req.Name)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusTooManyRequests)
		return
	}
	slog.Info("Session created", "session", e.sess.ID, "name", req.Name)
	s.writeJSON(w, http.StatusCreated, e.response())
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, e.response())
}

func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.sessions.remove(id) {
		s.writeErrorResponse(w, errSessionNotFound.Error(), http.StatusNotFound)
		return
	}
	slog.Info("Session deleted", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

// resetSessionHandler makes the next frame of the session start tracking afresh.
func (s *Server) resetSessionHandler(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	e.mu.Lock()
	e.sess.Reset()
	e.mu.Unlock()
	s.writeJSON(w, http.StatusOK, e.response())
}

// frameHandler processes one uploaded frame in the session.
//
// The frame is the multipart field "frame". With warp=1 the rectified image
// is returned as PNG instead of the JSON result; reset=1 forgets the tracked
// lane before selecting.
func (s *Server) frameHandler(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return
	}

	file, header, err := r.FormFile("frame")
	if err != nil {
		s.writeErrorResponse(w, "No frame file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()
	uploadSizeBytes.Observe(float64(header.Size))

	img, _, err := frames.Decode(file)
	if err != nil {
		s.writeErrorResponse(w, "Invalid image format", http.StatusBadRequest)
		return
	}

	warp := flagValue(r, "warp")
	res, err := s.processFrame(r.Context(), e, pipeline.Frame{
		Name:  header.Filename,
		Image: img,
		Reset: flagValue(r, "reset"),
		Warp:  warp,
	}, sourceHTTP)
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Frame processing failed: %v", err), http.StatusInternalServerError)
		return
	}

	if !warp {
		s.writeJSON(w, http.StatusOK, res)
		return
	}
	if res.Warped == nil {
		msg := fmt.Sprintf("No rectified image for frame (status %s)", res.Status)
		if res.Error != "" {
			msg += ": " + res.Error
		}
		s.writeErrorResponse(w, msg, http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Birdseye-Status", string(res.Status))
	w.Header().Set("X-Birdseye-Frame-Index", strconv.Itoa(res.Index))
	if err := frames.EncodePNG(w, res.Warped); err != nil {
		slog.Error("Failed to encode warped frame", "session", e.sess.ID, "error", err)
	}
}

// processFrame runs one frame through the session while holding its lock.
func (s *Server) processFrame(
	ctx context.Context,
	e *sessionEntry,
	f pipeline.Frame,
	source string,
) (*pipeline.FrameResult, error) {
	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	e.mu.Lock()
	start := time.Now()
	res, err := e.sess.ProcessFrame(ctx, f)
	duration := time.Since(start)
	e.mu.Unlock()
	e.touch(time.Now())

	if err != nil {
		framesTotal.WithLabelValues(source, "error").Inc()
		slog.Error("Frame processing failed", "session", e.sess.ID, "source", source, "error", err)
		return nil, err
	}
	framesTotal.WithLabelValues(source, string(res.Status)).Inc()
	frameProcessingDuration.WithLabelValues(source).Observe(duration.Seconds())
	frameSegments.Observe(float64(res.Segments))
	return res, nil
}

// lookupSession resolves the {id} path value or writes a 404.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*sessionEntry, bool) {
	e, err := s.sessions.get(r.PathValue("id"))
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	return e, true
}

// flagValue reads a boolean query or form parameter.
func flagValue(r *http.Request, name string) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		v = r.FormValue(name)
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// decodeFrame decodes an encoded frame sent over the stream.
func decodeFrame(data []byte) (image.Image, error) {
	img, _, err := frames.Decode(bytes.NewReader(data))
	return img, err
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Success: false, Error: message})
}
