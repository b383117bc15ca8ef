package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/criyle/go-evaluator/store"
	"github.com/criyle/go-evaluator/types"
	"github.com/criyle/go-evaluator/worker"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

// mockWorker is a mock implementation of the worker.Worker interface
type mockWorker struct {
	running map[string]error
	worker.Worker
}

func (m *mockWorker) Cancel(id string, cause error) bool {
	if _, ok := m.running[id]; !ok {
		return false
	}
	m.running[id] = cause
	return true
}

func (m *mockWorker) InFlight() []string {
	var ids []string
	for id := range m.running {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func newRouter(t *testing.T) (*gin.Engine, *store.MemoryStore, *mockWorker) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	st := store.NewMemoryStore(store.Options{})
	w := &mockWorker{running: map[string]error{}}
	New(st, w, zaptest.NewLogger(t)).Register(r)
	return r, st, w
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var b bytes.Buffer
	if body != nil {
		json.NewEncoder(&b).Encode(body)
	}
	req := httptest.NewRequest(method, path, &b)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSubmitAndGet(t *testing.T) {
	r, st, _ := newRouter(t)

	rec := do(r, http.MethodPost, "/submissions", SubmitRequest{
		ID:        "42",
		Author:    "alice",
		ProblemID: "aplusb",
		Language:  "cpp",
		Source:    "int main() {}",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	s, err := st.Get(context.Background(), "42")
	if err != nil {
		t.Fatal(err)
	}
	if s.State != types.StatePending || string(s.Source) != "int main() {}" {
		t.Errorf("unexpected record %+v", s)
	}

	rec = do(r, http.MethodGet, "/submissions/42", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["id"] != "42" || got["state"] != "PENDING" {
		t.Errorf("unexpected view %v", got)
	}
	if _, ok := got["source"]; ok {
		t.Error("source exposed in record view")
	}

	if rec := do(r, http.MethodPost, "/submissions", SubmitRequest{ID: "42", ProblemID: "aplusb", Language: "cpp", Source: "x"}); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on duplicate, got %d", rec.Code)
	}
}

func TestSubmitValidation(t *testing.T) {
	r, _, _ := newRouter(t)

	tests := []struct {
		name string
		req  SubmitRequest
		code int
	}{
		{"unknown language", SubmitRequest{ProblemID: "p", Language: "cobol", Source: "x"}, http.StatusBadRequest},
		{"missing problem", SubmitRequest{Language: "cpp", Source: "x"}, http.StatusBadRequest},
		{"generated id", SubmitRequest{ProblemID: "p", Language: "python3", Source: "print(1)"}, http.StatusCreated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if rec := do(r, http.MethodPost, "/submissions", tc.req); rec.Code != tc.code {
				t.Errorf("expected %d, got %d: %s", tc.code, rec.Code, rec.Body)
			}
		})
	}
}

func TestGetMissing(t *testing.T) {
	r, _, _ := newRouter(t)
	if rec := do(r, http.MethodGet, "/submissions/none", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestCancel(t *testing.T) {
	r, _, w := newRouter(t)
	w.running["7"] = nil

	rec := do(r, http.MethodPost, "/submissions/7/cancel", CancelRequest{Reason: "withdrawn"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if err := w.running["7"]; err == nil || err.Error() != "withdrawn" {
		t.Errorf("unexpected cause %v", err)
	}

	if rec := do(r, http.MethodPost, "/submissions/8/cancel", nil); rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}

	rec = do(r, http.MethodGet, "/workers", nil)
	var got struct {
		InFlight []string `json:"inFlight"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got.InFlight, []string{"7"}) {
		t.Errorf("unexpected in-flight %v", got.InFlight)
	}
}

func TestCancelWithoutReason(t *testing.T) {
	r, _, w := newRouter(t)
	w.running["7"] = errors.New("placeholder")

	req := httptest.NewRequest(http.MethodPost, "/submissions/7/cancel", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if w.running["7"] != nil {
		t.Errorf("expected default cause, got %v", w.running["7"])
	}
}
