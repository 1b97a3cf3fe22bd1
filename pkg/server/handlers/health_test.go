package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/echodoc-ai/echodoc/pkg/doctors"
	"github.com/echodoc-ai/echodoc/pkg/server/lifecycle"
)

type pingStub struct{ err error }

func (p pingStub) Ping(context.Context) error { return p.err }

func readyStatus(t *testing.T, h ReadyHandler) (int, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return rr.Code, resp
}

func TestReadyHandler_Ready(t *testing.T) {
	status, resp := readyStatus(t, ReadyHandler{Config: testConfig(), Lifecycle: &lifecycle.Lifecycle{}, Store: pingStub{}, Backend: "memory"})
	if status != http.StatusOK || resp["ok"] != true || resp["store"] != "memory" {
		t.Fatalf("status=%d resp=%v", status, resp)
	}
}

func TestReadyHandler_DrainingNotReady(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.SetDraining(true)
	status, resp := readyStatus(t, ReadyHandler{Config: testConfig(), Lifecycle: lc})
	if status != http.StatusServiceUnavailable || resp["ok"] != false {
		t.Fatalf("status=%d resp=%v", status, resp)
	}
}

func TestReadyHandler_StoreUnreachable(t *testing.T) {
	status, _ := readyStatus(t, ReadyHandler{Config: testConfig(), Store: pingStub{err: errors.New("down")}})
	if status != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", status)
	}
}

func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestDoctorsHandler_ServesCatalog(t *testing.T) {
	rr := httptest.NewRecorder()
	DoctorsHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/doctors", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var got []doctors.Agent
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != len(doctors.Catalog()) {
		t.Fatalf("got %d doctors", len(got))
	}

	rr = httptest.NewRecorder()
	DoctorsHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/doctors", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("post status=%d", rr.Code)
	}
}

func TestNotFoundHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	NotFoundHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
}
