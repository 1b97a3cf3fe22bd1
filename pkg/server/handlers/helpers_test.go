package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/echodoc-ai/echodoc/pkg/core"
	"github.com/echodoc-ai/echodoc/pkg/server/auth"
	"github.com/echodoc-ai/echodoc/pkg/server/config"
	"github.com/echodoc-ai/echodoc/pkg/server/mw"
)

func testConfig() config.Config {
	return config.Config{
		AuthMode:             config.AuthModeDisabled,
		DevUserEmail:         "dev@localhost",
		MaxBodyBytes:         1 << 16,
		MaxTranscriptEntries: 50,
		MaxNotesBytes:        256,
		ReportModel:          "test-model",
		ReportTimeout:        5e9,
		DBConnectTimeout:     1e9,
		ReadHeaderTimeout:    1e9,
		ReadTimeout:          1e9,
		HandlerTimeout:       1e9,
		ShutdownGracePeriod:  1e9,
	}
}

func asUser(req *http.Request, email string) *http.Request {
	ctx := mw.WithRequestID(req.Context(), "req_test")
	if email != "" {
		ctx = auth.WithPrincipal(ctx, &auth.Principal{Subject: email, Email: email})
	}
	return req.WithContext(ctx)
}

func doJSON(t *testing.T, h http.Handler, method, target, email string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := asUser(httptest.NewRequest(method, target, &buf), email)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) core.Error {
	t.Helper()
	var env struct {
		Error core.Error `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v body=%q", err, rr.Body.String())
	}
	return env.Error
}
