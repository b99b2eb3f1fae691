package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/resilience"
)

const (
	payloadText            = "text"
	payloadSourceURL       = "source_url"
	payloadActTitle        = "act_title"
	payloadLegislationType = "legislation_type"
	payloadLegislationYear = "legislation_year"
	payloadSectionContext  = "section_context"
	payloadChunkID         = "chunk_id"
	payloadChunkIndex      = "chunk_index"
	payloadTotalChunks     = "total_chunks"
)

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

// PointID derives a stable point id from the chunk id so re-ingesting an act
// overwrites rather than duplicates.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

func (c *Client) IndexChunks(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch")
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(chunks))
	for i, ch := range chunks {
		points = append(points, point{
			ID:     PointID(ch.ID),
			Vector: vectors[i],
			Payload: map[string]any{
				payloadChunkID:         ch.ID,
				payloadText:            ch.Text,
				payloadSourceURL:       ch.SourceURL,
				payloadActTitle:        ch.ActTitle,
				payloadLegislationType: ch.LegislationType,
				payloadLegislationYear: ch.LegislationYear,
				payloadSectionContext:  ch.SectionContext,
				payloadChunkIndex:      ch.ChunkIndex,
				payloadTotalChunks:     ch.TotalChunks,
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.do(ctx, "upsert", http.MethodPut, path, map[string]any{"points": points}, nil)
}

// PruneSource removes the tail of a previous ingestion of sourceURL that the
// latest upsert did not overwrite.
func (c *Client) PruneSource(ctx context.Context, sourceURL string, keepChunks int) error {
	must := []map[string]any{matchCondition(payloadSourceURL, sourceURL)}
	if keepChunks > 0 {
		must = append(must, map[string]any{
			"key":   payloadChunkIndex,
			"range": map[string]any{"gte": keepChunks},
		})
	}
	body := map[string]any{
		"filter": map[string]any{"must": must},
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	err := c.do(ctx, "delete", http.MethodPost, path, body, nil)

	var statusErr *resilience.HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		// nothing indexed yet
		return nil
	}
	return err
}

func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.RetrievalCandidate, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if f := buildFilter(filter); f != nil {
		reqBody["filter"] = f
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.do(ctx, "search", http.MethodPost, path, reqBody, &searchResp); err != nil {
		return nil, err
	}

	out := make([]domain.RetrievalCandidate, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.RetrievalCandidate{
			Chunk: domain.Chunk{
				ID:              getStringPayload(r.Payload, payloadChunkID),
				Text:            getStringPayload(r.Payload, payloadText),
				SourceURL:       getStringPayload(r.Payload, payloadSourceURL),
				ActTitle:        getStringPayload(r.Payload, payloadActTitle),
				LegislationType: getStringPayload(r.Payload, payloadLegislationType),
				LegislationYear: getIntPayload(r.Payload, payloadLegislationYear),
				SectionContext:  getStringPayload(r.Payload, payloadSectionContext),
				ChunkIndex:      getIntPayload(r.Payload, payloadChunkIndex),
				TotalChunks:     getIntPayload(r.Payload, payloadTotalChunks),
			},
			Score: r.Score,
		})
	}
	return out, nil
}

func buildFilter(filter domain.SearchFilter) map[string]any {
	if filter.IsZero() {
		return nil
	}
	var must []map[string]any
	if filter.LegislationType != "" {
		must = append(must, matchCondition(payloadLegislationType, filter.LegislationType))
	}
	if filter.MinYear > 0 {
		must = append(must, map[string]any{
			"key":   payloadLegislationYear,
			"range": map[string]any{"gte": filter.MinYear},
		})
	}
	return map[string]any{"must": must}
}

func matchCondition(key string, value any) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	path := fmt.Sprintf("/collections/%s", c.collection)
	err := c.do(ctx, "ensure collection", http.MethodPut, path, reqBody, nil)

	// 409 if already exists (depends on version/config).
	var statusErr *resilience.HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		err = nil
	}
	if err != nil {
		return err
	}

	for field, schema := range map[string]string{
		payloadLegislationType: "keyword",
		payloadLegislationYear: "integer",
		payloadSourceURL:       "keyword",
	} {
		indexBody := map[string]any{"field_name": field, "field_schema": schema}
		indexPath := fmt.Sprintf("/collections/%s/index?wait=true", c.collection)
		if err := c.do(ctx, "create payload index", http.MethodPut, indexPath, indexBody, nil); err != nil {
			return err
		}
	}

	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	err = c.executor.Execute(ctx, "qdrant."+strings.ReplaceAll(operation, " ", "_"), func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return resilience.NewHTTPStatusError("qdrant", operation, resp)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}, resilience.ClassifyHTTPError)
	return resilience.WrapTemporary("qdrant "+operation, err)
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}
