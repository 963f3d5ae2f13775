package support

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cucumber/godog"
	"github.com/gorilla/websocket"
)

func (testCtx *TestContext) theServerIsRunningWith(command string) error {
	return testCtx.StartServer(command)
}

// substituteURL fills in {session} with the current session id.
func (testCtx *TestContext) substituteURL(path string) string {
	return strings.ReplaceAll(path, "{session}", testCtx.SessionID)
}

func (testCtx *TestContext) recordResponse(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastHTTPHeaders = make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		testCtx.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

func (testCtx *TestContext) iSendRequest(method, path string) error {
	req, err := http.NewRequest(method, testCtx.GetServerURL()+testCtx.substituteURL(path), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return testCtx.recordResponse(resp)
}

func (testCtx *TestContext) iCreateASessionNamed(name string) error {
	body, _ := json.Marshal(map[string]string{"name": name})
	resp, err := http.Post(testCtx.GetServerURL()+"/v1/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if err := testCtx.recordResponse(resp); err != nil {
		return err
	}
	if testCtx.LastHTTPStatusCode != http.StatusCreated {
		return fmt.Errorf("session not created: %d %s", testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &created); err != nil {
		return fmt.Errorf("invalid session response: %w", err)
	}
	testCtx.SessionID = created.ID
	return nil
}

func (testCtx *TestContext) iPostFrameToTheSession(name, query string) error {
	data, err := os.ReadFile(testCtx.path(name)) //nolint:gosec // G304: frame fixture written by the scenario
	if err != nil {
		return err
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("frame", name)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	url := testCtx.GetServerURL() + "/v1/sessions/" + testCtx.SessionID + "/frames" + query
	resp, err := http.Post(url, w.FormDataContentType(), &body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return testCtx.recordResponse(resp)
}

func (testCtx *TestContext) iPostFrame(name string) error {
	return testCtx.iPostFrameToTheSession(name, "")
}

// iStreamFrames sends a frame n times over the session WebSocket and keeps
// the last result as the response.
func (testCtx *TestContext) iStreamFrames(name string, n int) error {
	data, err := os.ReadFile(testCtx.path(name)) //nolint:gosec // G304: frame fixture written by the scenario
	if err != nil {
		return err
	}

	url := fmt.Sprintf("ws://%s:%d/v1/sessions/%s/stream", testCtx.ServerHost, testCtx.ServerPort, testCtx.SessionID)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	_ = resp.Body.Close()
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	for i := range n {
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return fmt.Errorf("failed to send frame %d: %w", i, err)
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read result %d: %w", i, err)
		}
		testCtx.LastHTTPResponse = string(msg)
	}
	return nil
}

func (testCtx *TestContext) theResponseStatusShouldBe(code int) error {
	if testCtx.LastHTTPStatusCode != code {
		return fmt.Errorf("expected status %d, got %d\nBody: %s", code, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain '%s'\nBody: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

// theResponseFieldShouldBe compares a dotted JSON path against its string form.
func (testCtx *TestContext) theResponseFieldShouldBe(field, expected string) error {
	var data any
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &data); err != nil {
		return fmt.Errorf("response is not JSON: %w\nBody: %s", err, testCtx.LastHTTPResponse)
	}
	for _, part := range strings.Split(field, ".") {
		m, ok := data.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot navigate into '%s'", part)
		}
		if data, ok = m[part]; !ok {
			return fmt.Errorf("field '%s' not found\nBody: %s", field, testCtx.LastHTTPResponse)
		}
	}
	if got := fmt.Sprint(data); got != expected {
		return fmt.Errorf("field '%s' is %s, want %s", field, got, expected)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, expected string) error {
	if got := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]; got != expected {
		return fmt.Errorf("header %s is %q, want %q", name, got, expected)
	}
	return nil
}

// RegisterServerSteps registers the HTTP and WebSocket steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the server is running with "([^"]*)"$`, testCtx.theServerIsRunningWith)
	sc.Step(`^I send a (GET|POST|DELETE) request to "([^"]*)"$`, testCtx.iSendRequest)
	sc.Step(`^I create a session named "([^"]*)"$`, testCtx.iCreateASessionNamed)
	sc.Step(`^I post the frame "([^"]*)" to the session$`, testCtx.iPostFrame)
	sc.Step(`^I post the frame "([^"]*)" to the session with "([^"]*)"$`, testCtx.iPostFrameToTheSession)
	sc.Step(`^I stream the frame "([^"]*)" (\d+) times over the session WebSocket$`, testCtx.iStreamFrames)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseFieldShouldBe)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
}
