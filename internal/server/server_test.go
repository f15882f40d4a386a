package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"oneloop/internal/config"
	"oneloop/internal/db"
	"oneloop/internal/domain"
	"oneloop/internal/engine"
	"oneloop/internal/session"
	"oneloop/internal/store"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	e := engine.New(conn, store.NewSQLite(conn), config.Default("mgr-1"), workspace+"/.oneloop")
	e.Now = func() time.Time { return time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC) }
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", string(data), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", res.StatusCode, data)
	}
}

func TestMemberCRUD(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/members", CreateMemberRequest{
		Name: "Jane Smith", Email: "jane@example.com", Position: "Designer",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d: %s", res.StatusCode, data)
	}
	u := decode[domain.User](t, data)
	if u.ID == "" || u.Status != "active" {
		t.Fatalf("created member = %+v", u)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/members", CreateMemberRequest{
		Name: "Dup", Email: "jane@example.com",
	})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate email status = %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/members", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", res.StatusCode)
	}
	if got := decode[[]domain.User](t, data); len(got) != 1 {
		t.Fatalf("members = %d, want 1", len(got))
	}

	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/members/"+u.ID, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/members/"+u.ID, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete = %d", res.StatusCode)
	}
}

func TestScheduleMeetingValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/meetings", ScheduleMeetingRequest{})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty body status = %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/meetings", ScheduleMeetingRequest{TeamMemberID: "ghost"})
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown member status = %d: %s", res.StatusCode, data)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	_, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/members", CreateMemberRequest{Name: "Jane", Email: "jane@example.com"})
	u := decode[domain.User](t, data)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/meetings", ScheduleMeetingRequest{TeamMemberID: u.ID})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("schedule status = %d: %s", res.StatusCode, data)
	}
	m := decode[domain.Meeting](t, data)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/meetings/"+m.ID+"/session", nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d: %s", res.StatusCode, data)
	}
	snap := decode[session.Snapshot](t, data)
	if len(snap.Points) != 3 {
		t.Fatalf("seeded points = %d, want 3", len(snap.Points))
	}

	// Starting twice conflicts.
	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/meetings/"+m.ID+"/session", nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("double start status = %d", res.StatusCode)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sessions/"+m.ID+"/points", AddPointRequest{Text: "career growth"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add point status = %d: %s", res.StatusCode, data)
	}
	point := decode[IDResponse](t, data)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sessions/"+m.ID+"/points", AddPointRequest{Text: "details", ParentID: point.ID})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add sub-point status = %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/sessions/"+m.ID+"/points/"+point.ID, UpdatePointRequest{Toggle: true})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("toggle status = %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sessions/"+m.ID+"/actions", AddSessionActionRequest{Description: "send numbers"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add action status = %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sessions/"+m.ID+"/end", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d: %s", res.StatusCode, data)
	}
	sum := decode[session.Summary](t, data)
	if sum.TotalActionItems != 1 || sum.CompletedDiscussionPoints != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	// Session is gone after end.
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/sessions/"+m.ID, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("snapshot after end = %d", res.StatusCode)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/meetings/"+m.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatal("get meeting failed")
	}
	stored := decode[domain.Meeting](t, data)
	if stored.Status != domain.MeetingCompleted {
		t.Fatalf("meeting status = %s, want completed", stored.Status)
	}
}

func TestActionItemEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	_, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/members", CreateMemberRequest{Name: "Jane", Email: "jane@example.com"})
	u := decode[domain.User](t, data)
	_, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/meetings", ScheduleMeetingRequest{TeamMemberID: u.ID})
	m := decode[domain.Meeting](t, data)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/meetings/"+m.ID+"/actions", CreateActionItemRequest{
		Description: "review design doc", Assignee: domain.AssigneeDirectReport, AssigneeID: u.ID,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create action status = %d: %s", res.StatusCode, data)
	}
	a := decode[domain.ActionItem](t, data)

	completed := true
	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/actions/"+a.ID, UpdateActionItemRequest{Completed: &completed})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d: %s", res.StatusCode, data)
	}
	updated := decode[domain.ActionItem](t, data)
	if !updated.Completed || updated.CompletedAt == nil {
		t.Fatalf("updated action = %+v", updated)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/members/"+u.ID+"/actions", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("member actions status = %d", res.StatusCode)
	}
	if items := decode[[]domain.ActionItem](t, data); len(items) != 1 {
		t.Fatalf("member actions = %d, want 1", len(items))
	}
}

func TestReportEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/report", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("report status = %d: %s", res.StatusCode, data)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/meetings/nope", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", res.StatusCode)
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("code = %q: %s", envelope.Error.Code, data)
	}
}
