package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Novip1906/tasks-live/internal/config"
	"github.com/Novip1906/tasks-live/internal/models"
	"github.com/Novip1906/tasks-live/pkg/logging"
	"github.com/google/uuid"
)

type recordedRequest struct {
	method string
	path   string
	body   string
}

type fakeCluster struct {
	mu       sync.Mutex
	requests []recordedRequest
	search   string
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{method: r.Method, path: r.URL.Path, body: string(body)})
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case strings.HasSuffix(r.URL.Path, "/_search"):
		io.WriteString(w, f.search)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"result":"not_found"}`)
	default:
		io.WriteString(w, `{"result":"created"}`)
	}
}

func (f *fakeCluster) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, cluster *fakeCluster) *Client {
	t.Helper()
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), &config.Elasticsearch{
		Addresses: []string{srv.URL},
		Index:     "tasks",
	}, logging.Discard())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestSearchBody_FiltersOnOwner(t *testing.T) {
	body, err := searchBody("alice", `milk "2%"`)
	if err != nil {
		t.Fatalf("searchBody: %v", err)
	}

	var decoded struct {
		Query struct {
			Bool struct {
				Must []struct {
					MultiMatch struct {
						Query string `json:"query"`
					} `json:"multi_match"`
				} `json:"must"`
				Filter []struct {
					Term map[string]string `json:"term"`
				} `json:"filter"`
			} `json:"bool"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("decode body %s: %v", body, err)
	}
	if got := decoded.Query.Bool.Must[0].MultiMatch.Query; got != `milk "2%"` {
		t.Errorf("query = %q", got)
	}
	if got := decoded.Query.Bool.Filter[0].Term["owner"]; got != "alice" {
		t.Errorf("owner filter = %q, want alice", got)
	}
}

func TestSearch(t *testing.T) {
	mine := uuid.New()
	cluster := &fakeCluster{search: `{"hits":{"hits":[
		{"_source":{"id":"` + mine.String() + `","owner":"alice","category":"home","text":"buy milk","completed":false,"due":null}},
		{"_source":{"id":"` + uuid.NewString() + `","owner":"bob","category":"home","text":"buy milk","completed":false,"due":null}}
	]}}`}
	c := newTestClient(t, cluster)

	tasks, err := c.Search(context.Background(), "alice", "milk")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Id != mine || tasks[0].Text != "buy milk" {
		t.Errorf("tasks = %+v, want only alice's task %v", tasks, mine)
	}
	if req := cluster.last(); req.path != "/tasks/_search" || !strings.Contains(req.body, `"owner":"alice"`) {
		t.Errorf("search request = %+v", req)
	}
}

func TestHandleEvent(t *testing.T) {
	cluster := &fakeCluster{}
	c := newTestClient(t, cluster)

	task := models.Task{Id: uuid.New(), Category: "work", Text: "review"}
	if err := c.HandleEvent(context.Background(), "alice", models.TaskUpdated{Task: task}); err != nil {
		t.Fatalf("HandleEvent(update): %v", err)
	}
	req := cluster.last()
	if req.path != "/tasks/_doc/"+task.Id.String() {
		t.Errorf("index path = %q", req.path)
	}
	var doc taskDocument
	if err := json.Unmarshal([]byte(req.body), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.Owner != "alice" || doc.task() != task {
		t.Errorf("document = %+v", doc)
	}

	if err := c.HandleEvent(context.Background(), "alice", models.TaskDeleted{TaskID: task.Id}); err != nil {
		t.Errorf("HandleEvent(delete of missing document): %v", err)
	}
	if req := cluster.last(); req.method != http.MethodDelete {
		t.Errorf("method = %s, want DELETE", req.method)
	}
}
