package routertest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/compozy/blockgate/engine/infra/server/router"
	"github.com/gin-gonic/gin"
)

// NewEngine returns a bare gin engine in test mode.
func NewEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// Perform sends a request through the engine. A non-nil body is JSON encoded.
func Perform(
	t *testing.T,
	engine http.Handler,
	method, path string,
	body any,
	headers map[string]string,
) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		requireNoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

// DecodeError parses an error envelope from the recorder.
func DecodeError(t *testing.T, w *httptest.ResponseRecorder) router.ErrorEnvelope {
	t.Helper()
	var env router.ErrorEnvelope
	requireNoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

// DecodeData parses a success envelope and unmarshals its data into dst.
func DecodeData(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	requireNoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", w.Body.String())
	}
	requireNoError(t, json.Unmarshal(env.Data, dst))
}

func requireNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
