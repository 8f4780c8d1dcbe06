package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	es "github.com/elastic/go-elasticsearch/v9"

	"github.com/Novip1906/tasks-live/internal/config"
	"github.com/Novip1906/tasks-live/internal/models"
	"github.com/google/uuid"
)

const searchLimit = 50

// Client mirrors tasks into a search index and answers per-user full text
// queries. Every document carries its owner and every query filters on it.
type Client struct {
	es    *es.Client
	index string
	log   *slog.Logger
}

type taskDocument struct {
	Id        uuid.UUID `json:"id"`
	Owner     string    `json:"owner"`
	Category  string    `json:"category"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	Due       *int64    `json:"due"`
}

func NewClient(ctx context.Context, cfg *config.Elasticsearch, log *slog.Logger) (*Client, error) {
	c, err := es.NewClient(es.Config{
		Addresses: cfg.Addresses,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	client := &Client{
		es:    c,
		index: cfg.Index,
		log:   log.With(slog.String("component", "elasticsearch")),
	}

	if err := client.ensureIndex(ctx); err != nil {
		return nil, err
	}

	return client, nil
}

// HandleEvent keeps the index in step with the task store.
func (c *Client) HandleEvent(ctx context.Context, owner string, ev models.ChangeEvent) error {
	switch ev := ev.(type) {
	case models.TaskCreated:
		return c.IndexTask(ctx, owner, ev.Task)
	case models.TaskUpdated:
		return c.IndexTask(ctx, owner, ev.Task)
	case models.TaskDeleted:
		return c.DeleteTask(ctx, ev.TaskID)
	default:
		return fmt.Errorf("unknown change event %T", ev)
	}
}

func (c *Client) Search(ctx context.Context, owner string, query string) ([]models.Task, error) {
	body, err := searchBody(owner, query)
	if err != nil {
		return nil, err
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(body)),
		c.es.Search.WithSize(searchLimit),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("es search error: %s", res.String())
	}

	var raw struct {
		Hits struct {
			Hits []struct {
				Source taskDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, err
	}

	tasks := make([]models.Task, 0, len(raw.Hits.Hits))
	for _, h := range raw.Hits.Hits {
		if h.Source.Owner != owner {
			continue
		}
		tasks = append(tasks, h.Source.task())
	}

	return tasks, nil
}

func (c *Client) IndexTask(ctx context.Context, owner string, task models.Task) error {
	body, err := json.Marshal(newTaskDocument(owner, task))
	if err != nil {
		return err
	}

	res, err := c.es.Index(
		c.index,
		bytes.NewReader(body),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(task.Id.String()),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("es index error: %s", res.String())
	}

	return nil
}

// DeleteTask treats a missing document as already deleted.
func (c *Client) DeleteTask(ctx context.Context, taskId uuid.UUID) error {
	res, err := c.es.Delete(
		c.index,
		taskId.String(),
		c.es.Delete.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("es delete error: %s", res.String())
	}
	return nil
}

func (c *Client) ensureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		c.log.Info("elasticsearch index exists", slog.String("index", c.index))
		return nil
	}

	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("unexpected status checking index: %s", res.String())
	}

	c.log.Info("creating elasticsearch index", slog.String("index", c.index))

	createRes, err := c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader([]byte(indexMapping))),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("create index error: %s", createRes.String())
	}

	c.log.Info("elasticsearch index created", slog.String("index", c.index))
	return nil
}

const indexMapping = `
{
  "mappings": {
    "properties": {
      "id": { "type": "keyword" },
      "owner": { "type": "keyword" },
      "category": { "type": "text", "fields": { "raw": { "type": "keyword" } } },
      "text": { "type": "text" },
      "completed": { "type": "boolean" },
      "due": { "type": "long" }
    }
  }
}`

func newTaskDocument(owner string, task models.Task) taskDocument {
	return taskDocument{
		Id:        task.Id,
		Owner:     owner,
		Category:  task.Category,
		Text:      task.Text,
		Completed: task.Completed,
		Due:       task.Due,
	}
}

func (d taskDocument) task() models.Task {
	return models.Task{
		Id:        d.Id,
		Category:  d.Category,
		Text:      d.Text,
		Completed: d.Completed,
		Due:       d.Due,
	}
}

func searchBody(owner, query string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{
						"multi_match": map[string]any{
							"query":  query,
							"fields": []string{"text", "category"},
						},
					},
				},
				"filter": []any{
					map[string]any{"term": map[string]any{"owner": owner}},
				},
			},
		},
	})
}
