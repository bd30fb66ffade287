package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowboard/flowboard/internal/assist"
	"github.com/flowboard/flowboard/internal/board"
	"github.com/flowboard/flowboard/internal/observability"
	"github.com/flowboard/flowboard/internal/task"
)

func newTestServer(t *testing.T, wipLimit int, opts ...board.Option) (*httptest.Server, *board.Board) {
	t.Helper()
	log := observability.NewLogger("api-test", io.Discard)
	opts = append([]board.Option{board.WithLogger(log)}, opts...)
	b, err := board.New(wipLimit, opts...)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(NewServer("", b, log).Handler())
	t.Cleanup(srv.Close)
	return srv, b
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeTask(t *testing.T, resp *http.Response) taskResponse {
	t.Helper()
	defer resp.Body.Close()
	var tr taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		t.Fatal(err)
	}
	return tr
}

func createTask(t *testing.T, base string, deps []string) string {
	t.Helper()
	resp := postJSON(t, base+"/tasks", createRequest{Title: "t", Description: "d", DependsOn: deps})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	return decodeTask(t, resp).ID
}

func TestCreateTask(t *testing.T) {
	srv, _ := newTestServer(t, 3)

	resp := postJSON(t, srv.URL+"/tasks", createRequest{Title: "Add login", Description: "flow"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	tr := decodeTask(t, resp)
	if tr.Stage != task.StageBacklog {
		t.Errorf("stage = %q", tr.Stage)
	}
	if tr.ID == "" {
		t.Error("missing id")
	}
}

func TestCreateTask_Validation(t *testing.T) {
	srv, _ := newTestServer(t, 3)

	resp := postJSON(t, srv.URL+"/tasks", createRequest{Description: "no title"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err := http.Post(srv.URL+"/tasks", "application/json", bytes.NewReader([]byte("{broken")))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHappyPathLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, 3)
	id := createTask(t, srv.URL, nil)

	for _, step := range []struct {
		action string
		stage  task.Stage
	}{
		{"start", task.StageInProgress},
		{"review", task.StageReview},
		{"approve", task.StageDone},
	} {
		resp := postJSON(t, fmt.Sprintf("%s/tasks/%s/%s", srv.URL, id, step.action), nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", step.action, resp.StatusCode)
		}
		tr := decodeTask(t, resp)
		if tr.Stage != step.stage {
			t.Fatalf("after %s: stage = %q, want %q", step.action, tr.Stage, step.stage)
		}
	}
}

func TestErrorMapping(t *testing.T) {
	srv, b := newTestServer(t, 1)
	ctx := context.Background()

	busy := createTask(t, srv.URL, nil)
	if _, err := b.StartWork(ctx, busy); err != nil {
		t.Fatal(err)
	}
	blocked := createTask(t, srv.URL, []string{"ghost123"})
	fresh := createTask(t, srv.URL, nil)

	tests := []struct {
		name   string
		method string
		url    string
		body   any
		want   int
	}{
		{"not found", "GET", "/tasks/missing1", nil, http.StatusNotFound},
		{"start missing", "POST", "/tasks/missing1/start", nil, http.StatusNotFound},
		{"wip limit", "POST", "/tasks/" + fresh + "/start", nil, http.StatusTooManyRequests},
		{"unresolved dep", "POST", "/tasks/" + blocked + "/start", nil, http.StatusConflict},
		{"invalid transition", "POST", "/tasks/" + fresh + "/approve", nil, http.StatusUnprocessableEntity},
		{"reject from backlog", "POST", "/tasks/" + fresh + "/reject", rejectRequest{Reason: "r"}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		var resp *http.Response
		var err error
		if tt.method == "GET" {
			resp, err = http.Get(srv.URL + tt.url)
			if err != nil {
				t.Fatal(err)
			}
		} else {
			resp = postJSON(t, srv.URL+tt.url, tt.body)
		}
		if resp.StatusCode != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, resp.StatusCode, tt.want)
		}
		var er errorResponse
		json.NewDecoder(resp.Body).Decode(&er)
		resp.Body.Close()
		if er.Error == "" {
			t.Errorf("%s: missing error detail", tt.name)
		}
	}
}

func TestReject(t *testing.T) {
	srv, b := newTestServer(t, 3)
	ctx := context.Background()

	id := createTask(t, srv.URL, nil)
	b.StartWork(ctx, id)
	b.StartReview(ctx, id)

	resp := postJSON(t, srv.URL+"/tasks/"+id+"/reject", rejectRequest{Reason: "needs tests"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	tr := decodeTask(t, resp)
	if tr.Stage != task.StageBacklog || tr.RetryCount != 1 {
		t.Errorf("stage = %q retry = %d", tr.Stage, tr.RetryCount)
	}

	// Missing reason is a validation error.
	resp = postJSON(t, srv.URL+"/tasks/"+id+"/reject", rejectRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestListTasks_StageFilter(t *testing.T) {
	srv, b := newTestServer(t, 3)
	ctx := context.Background()

	first := createTask(t, srv.URL, nil)
	createTask(t, srv.URL, nil)
	b.StartWork(ctx, first)

	resp, err := http.Get(srv.URL + "/tasks?stage=in_progress")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var tasks []*task.Task
	if err := json.NewDecoder(resp.Body).Decode(&tasks); err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].ID != first {
		t.Errorf("tasks = %v", tasks)
	}

	resp, err = http.Get(srv.URL + "/tasks?stage=archived")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d for bad stage", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestBoardView(t *testing.T) {
	srv, b := newTestServer(t, 3)
	ctx := context.Background()

	first := createTask(t, srv.URL, nil)
	createTask(t, srv.URL, nil)
	b.StartWork(ctx, first)

	resp, err := http.Get(srv.URL + "/board")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var view boardResponse
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if len(view.Backlog) != 1 || len(view.InProgress) != 1 {
		t.Errorf("backlog = %d, in_progress = %d", len(view.Backlog), len(view.InProgress))
	}
	if view.WIPLimit != 3 {
		t.Errorf("wip_limit = %d", view.WIPLimit)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, 3)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var hr healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		t.Fatal(err)
	}
	if hr.Status != "ok" {
		t.Errorf("status = %q", hr.Status)
	}
}

func TestEnrichmentErrorSurfaced(t *testing.T) {
	gen := assist.GeneratorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("model overloaded")
	})
	srv, _ := newTestServer(t, 3, board.WithGenerator(gen))

	id := createTask(t, srv.URL, nil)
	resp := postJSON(t, srv.URL+"/tasks/"+id+"/start", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; the transition committed", resp.StatusCode)
	}
	tr := decodeTask(t, resp)
	if tr.Stage != task.StageInProgress {
		t.Errorf("stage = %q", tr.Stage)
	}
	if tr.EnrichmentError == "" {
		t.Error("enrichment_error missing from response")
	}
}
