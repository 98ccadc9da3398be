package httpadapter_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	httpadapter "github.com/PabloGalante/kitcheck/internal/adapters/http"
	"github.com/PabloGalante/kitcheck/internal/adapters/detector"
	"github.com/PabloGalante/kitcheck/internal/adapters/storage/memory"
	"github.com/PabloGalante/kitcheck/internal/app/detection"
	"github.com/PabloGalante/kitcheck/internal/app/events"
	journalapp "github.com/PabloGalante/kitcheck/internal/app/journal"
	"github.com/PabloGalante/kitcheck/internal/app/lending"
	"github.com/PabloGalante/kitcheck/internal/catalog"
	"github.com/PabloGalante/kitcheck/internal/domain"
)

var image = base64.StdEncoding.EncodeToString([]byte("tray.jpg"))

type switchDetector struct {
	mu  sync.Mutex
	out []domain.RawDetection
	err error
}

func (d *switchDetector) set(out []domain.RawDetection, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out, d.err = out, err
}

func (d *switchDetector) Detect(ctx context.Context, image []byte, minConfidence float64) ([]domain.RawDetection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.out, d.err
}

func newTestServer(t *testing.T, det domain.Detector, cat *catalog.Catalog, opts httpadapter.Options) http.Handler {
	t.Helper()

	sessionStore := memory.NewSessionStore()
	eventStore := memory.NewEventStore()

	svc := lending.NewService(
		sessionStore,
		detection.NewAdapter(det, cat, detection.Config{}),
		events.NewDefaultDispatcher(eventStore),
		journalapp.NewService(eventStore),
		lending.Config{},
	)

	return httpadapter.NewServer(svc, opts)
}

func toolCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]string{"wrench", "pliers"}, nil)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

type client struct {
	t   *testing.T
	srv http.Handler
}

func (c client) do(method, path, employee, role string, body any) *httptest.ResponseRecorder {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if employee != "" {
		req.Header.Set("X-Employee-ID", employee)
	}
	if role != "" {
		req.Header.Set("X-Employee-Role", role)
	}

	w := httptest.NewRecorder()
	c.srv.ServeHTTP(w, req)
	return w
}

func (c client) expect(w *httptest.ResponseRecorder, status int, out any) {
	c.t.Helper()
	if w.Code != status {
		c.t.Fatalf("expected %d, got %d, body=%s", status, w.Code, w.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			c.t.Fatalf("decode response: %v (body=%s)", err, w.Body.String())
		}
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, detector.NewMock(), catalog.Default(), httpadapter.Options{
		Backends: map[string]string{"store": "memory", "detector": "mock"},
		Checks: map[string]httpadapter.HealthCheck{
			"detector": func(ctx context.Context) error { return errors.New("unreachable") },
		},
	})
	c := client{t: t, srv: srv}

	var body struct {
		Status   string            `json:"status"`
		Backends map[string]string `json:"backends"`
		Checks   map[string]string `json:"checks"`
	}
	c.expect(c.do(http.MethodGet, "/healthz", "", "", nil), http.StatusOK, &body)

	if body.Status != "degraded" || body.Backends["store"] != "memory" {
		t.Fatalf("unexpected health %+v", body)
	}
	if w := c.do(http.MethodGet, "/healthz", "", "", nil); w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID header")
	}
}

func TestOneOffPredictWithMockDetector(t *testing.T) {
	srv := newTestServer(t, detector.NewMock(), catalog.Default(), httpadapter.Options{APIKey: "secret"})
	c := client{t: t, srv: srv}

	w := c.do(http.MethodPost, "/predict", "", "", map[string]any{"image": image})
	var e errorBody
	c.expect(w, http.StatusUnauthorized, &e)

	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString(`{"image":"`+image+`","threshold":0.98}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var res domain.PredictResult
	c.expect(rec, http.StatusOK, &res)
	if res.Summary.PassedAboveThreshold != 2 || res.Summary.ExpectedTotal != len(catalog.DefaultClasses) {
		t.Fatalf("unexpected summary %+v", res.Summary)
	}
	if res.Summary.PassedAboveThreshold+res.Summary.RequiresManualCount != res.Summary.ExpectedTotal {
		t.Fatalf("summary does not add up: %+v", res.Summary)
	}
}

func TestSessionsRequireEmployee(t *testing.T) {
	c := client{t: t, srv: newTestServer(t, &switchDetector{}, toolCatalog(t), httpadapter.Options{})}

	var e errorBody
	c.expect(c.do(http.MethodGet, "/sessions", "", "", nil), http.StatusUnauthorized, &e)
	if e.Code != "unauthorized" {
		t.Fatalf("unexpected code %q", e.Code)
	}

	c.expect(c.do(http.MethodGet, "/sessions", "E-1", "root", nil), http.StatusBadRequest, &e)
}

func TestLendingFlow(t *testing.T) {
	det := &switchDetector{}
	c := client{t: t, srv: newTestServer(t, det, toolCatalog(t), httpadapter.Options{})}
	const emp = "E-100"

	var session struct {
		ID            string  `json:"id"`
		Status        string  `json:"status"`
		StatusLabel   string  `json:"status_label"`
		Group         string  `json:"group"`
		ThresholdUsed float64 `json:"threshold_used"`
		Hash          string  `json:"hash"`
		Handover      any     `json:"handover"`
	}
	c.expect(c.do(http.MethodPost, "/sessions/handout", emp, "", map[string]any{"threshold": 0.5}), http.StatusCreated, &session)
	if session.Status != "draft" || session.ThresholdUsed != 0.5 {
		t.Fatalf("unexpected session %+v", session)
	}
	base := "/sessions/" + session.ID

	det.set([]domain.RawDetection{
		{Label: "wrench", Confidence: 0.9, Box: domain.Box{XCenter: 0.5, YCenter: 0.5, Width: 0.2, Height: 0.1}},
		{Label: "pliers", Confidence: 0.3, Box: domain.Box{XCenter: 0.2, YCenter: 0.3, Width: 0.1, Height: 0.1}},
	}, nil)

	var pred domain.PredictResult
	c.expect(c.do(http.MethodPost, base+"/handout/predict", emp, "", map[string]any{"image": image}), http.StatusOK, &pred)
	if pred.Summary.RequiresManualCount != 1 {
		t.Fatalf("expected requires_manual_count=1, got %+v", pred.Summary)
	}

	var e errorBody
	c.expect(c.do(http.MethodPost, base+"/issue", emp, "", map[string]any{"confirm": true}), http.StatusConflict, &e)
	if e.Code != "guard_violation" {
		t.Fatalf("expected guard_violation, got %+v", e)
	}

	var adj domain.AdjustResult
	c.expect(c.do(http.MethodPost, base+"/handout/adjust", emp, "", map[string]any{
		"annotations": []map[string]any{{"class": "pliers", "source": "manual", "box": []float64{0.2, 0.3, 0.1, 0.1}}},
	}), http.StatusOK, &adj)
	if !adj.OK || !adj.Passed || adj.Phase != domain.PhaseHandout {
		t.Fatalf("unexpected adjust result %+v", adj)
	}

	c.expect(c.do(http.MethodPost, base+"/issue", emp, "", map[string]any{"confirm": false}), http.StatusBadRequest, &e)

	var issued struct {
		Status string `json:"status"`
	}
	c.expect(c.do(http.MethodPost, base+"/issue", emp, "", map[string]any{"confirm": true}), http.StatusOK, &issued)
	if issued.Status != "issued" {
		t.Fatalf("expected issued, got %q", issued.Status)
	}

	c.expect(c.do(http.MethodGet, base+"/diff", emp, "", nil), http.StatusConflict, &e)
	if e.Code != "not_ready" {
		t.Fatalf("expected not_ready, got %+v", e)
	}

	det.set([]domain.RawDetection{
		{Label: "wrench", Confidence: 0.92, Box: domain.Box{XCenter: 0.5, YCenter: 0.5, Width: 0.2, Height: 0.1}},
	}, nil)
	c.expect(c.do(http.MethodPost, base+"/handover/predict", emp, "", map[string]any{"image": image}), http.StatusOK, &pred)
	c.expect(c.do(http.MethodPost, base+"/handover/adjust", emp, "", map[string]any{"annotations": []any{}}), http.StatusOK, &adj)
	if !adj.OK || !adj.Passed {
		t.Fatalf("unexpected handover adjust %+v", adj)
	}

	var fin struct {
		Status string `json:"status"`
		Hash   string `json:"hash"`
	}
	c.expect(c.do(http.MethodPost, base+"/finalize", emp, "", map[string]any{"confirm": true}), http.StatusOK, &fin)
	if fin.Status != "completed" || fin.Hash == "" {
		t.Fatalf("unexpected finalize %+v", fin)
	}

	var d domain.SessionDiff
	c.expect(c.do(http.MethodGet, base+"/diff", emp, "", nil), http.StatusOK, &d)
	if !reflect.DeepEqual(d.Missing, []string{"pliers"}) {
		t.Fatalf("expected missing [pliers], got %+v", d)
	}

	c.expect(c.do(http.MethodGet, base, emp, "", nil), http.StatusOK, &session)
	if session.Status != "completed" || session.Group != "completed" || session.Hash != fin.Hash || session.Handover == nil {
		t.Fatalf("unexpected session card %+v", session)
	}

	var evs struct {
		Events []domain.Event `json:"events"`
	}
	c.expect(c.do(http.MethodGet, base+"/events", emp, "", nil), http.StatusOK, &evs)
	if len(evs.Events) != 7 || evs.Events[6].Kind != domain.EventComplete {
		t.Fatalf("unexpected events %+v", evs.Events)
	}

	c.expect(c.do(http.MethodGet, base, "E-200", "", nil), http.StatusNotFound, &e)
	c.expect(c.do(http.MethodGet, base, "A-1", "admin", nil), http.StatusOK, nil)
}

func TestDetectionFailure(t *testing.T) {
	det := &switchDetector{}
	det.set(nil, errors.New("model offline"))
	c := client{t: t, srv: newTestServer(t, det, toolCatalog(t), httpadapter.Options{})}

	var session struct {
		ID string `json:"id"`
	}
	c.expect(c.do(http.MethodPost, "/sessions/handout", "E-1", "", nil), http.StatusCreated, &session)

	var e errorBody
	c.expect(c.do(http.MethodPost, "/sessions/"+session.ID+"/handout/predict", "E-1", "", map[string]any{"image": image}), http.StatusBadGateway, &e)
	if e.Code != "detection_failed" {
		t.Fatalf("unexpected code %+v", e)
	}

	c.expect(c.do(http.MethodPost, "/sessions/"+session.ID+"/handout/predict", "E-1", "", map[string]any{}), http.StatusBadRequest, &e)
}

func TestListSessions(t *testing.T) {
	c := client{t: t, srv: newTestServer(t, &switchDetector{}, toolCatalog(t), httpadapter.Options{})}

	for _, emp := range []string{"E-1", "E-1", "E-1", "E-2"} {
		c.expect(c.do(http.MethodPost, "/sessions/handout", emp, "", nil), http.StatusCreated, nil)
	}

	var page struct {
		Items []struct {
			EmployeeID string `json:"employee_id"`
			Group      string `json:"group"`
		} `json:"items"`
		Total int `json:"total"`
		Page  int `json:"page"`
		Limit int `json:"limit"`
	}
	c.expect(c.do(http.MethodGet, "/sessions?page=2&limit=2", "E-1", "", nil), http.StatusOK, &page)
	if page.Total != 3 || len(page.Items) != 1 || page.Page != 2 || page.Limit != 2 {
		t.Fatalf("unexpected page %+v", page)
	}

	c.expect(c.do(http.MethodGet, "/sessions?group=draft", "A-1", "admin", nil), http.StatusOK, &page)
	if page.Total != 4 {
		t.Fatalf("admin should see 4 drafts, got %d", page.Total)
	}

	var e errorBody
	c.expect(c.do(http.MethodGet, "/sessions?group=archived", "E-1", "", nil), http.StatusBadRequest, &e)
	c.expect(c.do(http.MethodGet, "/sessions?page=x", "E-1", "", nil), http.StatusBadRequest, &e)
}

func TestBearerAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := httpadapter.BearerAuth("secret")(ok)

	cases := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"secret", http.StatusUnauthorized},
		{"Bearer secre", http.StatusUnauthorized},
		{"Bearer secretX", http.StatusUnauthorized},
		{"bearer secret", http.StatusUnauthorized},
		{"Bearer secret", http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("Authorization %q: expected %d, got %d", tc.header, tc.want, w.Code)
		}
	}

	open := httpadapter.BearerAuth("")(ok)
	w := httptest.NewRecorder()
	open.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("empty api key must disable auth, got %d", w.Code)
	}
}

func TestCreateSessionWithEmptyBody(t *testing.T) {
	srv := newTestServer(t, &switchDetector{}, toolCatalog(t), httpadapter.Options{})
	c := client{t: t, srv: srv}

	// A reader of unknown length makes the request chunked (ContentLength -1).
	req := httptest.NewRequest(http.MethodPost, "/sessions/handout", struct{ io.Reader }{strings.NewReader("")})
	req.Header.Set("X-Employee-ID", "E-100")
	if req.ContentLength != -1 {
		t.Fatalf("expected unknown content length, got %d", req.ContentLength)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var created struct {
		ThresholdUsed float64 `json:"threshold_used"`
		Status        string  `json:"status"`
	}
	c.expect(w, http.StatusCreated, &created)
	if created.ThresholdUsed != lending.DefaultThreshold || created.Status != string(domain.StatusDraft) {
		t.Fatalf("unexpected session %+v", created)
	}

	bad := httptest.NewRequest(http.MethodPost, "/sessions/handout", strings.NewReader("{"))
	bad.Header.Set("X-Employee-ID", "E-100")
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, bad)
	c.expect(w, http.StatusBadRequest, nil)
}
