package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/w-h-a/therapist/memory/providers/index"
)

const defaultCollection = "turns"

type qdrantIndex struct {
	options index.Options
	client  *http.Client
}

func (i *qdrantIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	req := map[string]any{
		"points": []qdrantPoint{
			{
				Id:      id,
				Vector:  vector,
				Payload: metadata,
			},
		},
	}

	var rsp qdrantEnvelope[json.RawMessage]

	path := fmt.Sprintf("/collections/%s/points?wait=true", url.PathEscape(i.options.Collection))

	if err := i.do(ctx, http.MethodPut, path, req, &rsp); err != nil {
		return err
	}

	if !strings.EqualFold(rsp.Status.State, "ok") && len(rsp.Status.Error) > 0 {
		return errors.New(rsp.Status.Error)
	}

	return nil
}

func (i *qdrantIndex) Query(ctx context.Context, vector []float32, topK int, filter index.Filter) ([]index.Match, error) {
	if topK < 1 {
		return nil, nil
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}

	if f := buildFilter(filter); f != nil {
		req["filter"] = f
	}

	var rsp qdrantEnvelope[[]qdrantScoredPoint]

	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(i.options.Collection))

	if err := i.do(ctx, http.MethodPost, path, req, &rsp); err != nil {
		return nil, err
	}

	matches := make([]index.Match, 0, len(rsp.Result))

	for _, point := range rsp.Result {
		matches = append(matches, index.Match{
			Id:       fmt.Sprint(point.Id),
			Score:    float32(point.Score),
			Metadata: point.Payload,
		})
	}

	return matches, nil
}

func buildFilter(filter index.Filter) *qdrantFilter {
	if len(filter) == 0 {
		return nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f := &qdrantFilter{}
	for _, k := range keys {
		f.Must = append(f.Must, qdrantCondition{
			Key:   k,
			Match: map[string]any{"value": filter[k]},
		})
	}

	return f
}

func (i *qdrantIndex) do(ctx context.Context, method string, path string, req any, rsp any) error {
	u := i.options.Location + path
	var buf io.Reader
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, u, buf)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")

	if len(i.options.ApiKey) > 0 {
		request.Header.Set("api-key", i.options.ApiKey)
	}

	response, err := i.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}

	if response.StatusCode >= 400 {
		return &statusError{code: response.StatusCode, body: string(payload)}
	}

	if rsp != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, rsp); err != nil {
			return err
		}
	}

	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant http %d: %s", e.code, e.body)
}

func (i *qdrantIndex) configure(ctx context.Context) error {
	exists, err := i.collectionExists(ctx)
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	if err := i.createCollection(ctx); err != nil {
		return err
	}

	return i.createPayloadIndex(ctx, "user_id")
}

func (i *qdrantIndex) collectionExists(ctx context.Context) (bool, error) {
	path := fmt.Sprintf("/collections/%s", url.PathEscape(i.options.Collection))

	var rsp qdrantEnvelope[json.RawMessage]

	err := i.do(ctx, http.MethodGet, path, nil, &rsp)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}

	return strings.EqualFold(rsp.Status.State, "ok"), nil
}

func (i *qdrantIndex) createCollection(ctx context.Context) error {
	req := map[string]any{
		"vectors": map[string]any{
			"size":     i.options.Dimension,
			"distance": distance(i.options.Metric),
		},
	}

	path := fmt.Sprintf("/collections/%s", url.PathEscape(i.options.Collection))

	var rsp qdrantEnvelope[json.RawMessage]

	if err := i.do(ctx, http.MethodPut, path, req, &rsp); err != nil {
		return err
	}

	if !strings.EqualFold(rsp.Status.State, "ok") {
		return errors.New(rsp.Status.Error)
	}

	return nil
}

// createPayloadIndex makes the exact-match filter on key cheap.
func (i *qdrantIndex) createPayloadIndex(ctx context.Context, key string) error {
	req := map[string]any{
		"field_name":   key,
		"field_schema": "keyword",
	}

	path := fmt.Sprintf("/collections/%s/index?wait=true", url.PathEscape(i.options.Collection))

	return i.do(ctx, http.MethodPut, path, req, nil)
}

func distance(metric string) string {
	switch strings.ToLower(metric) {
	case "dotproduct", "dot":
		return "Dot"
	case "euclidean", "euclid":
		return "Euclid"
	default:
		return "Cosine"
	}
}

func NewIndex(opts ...index.Option) index.Index {
	options := index.NewOptions(opts...)

	if len(options.Collection) == 0 {
		options.Collection = defaultCollection
	}

	if len(options.Location) == 0 || options.Dimension == 0 {
		panic("missing location or dimension for qdrant index")
	}

	options.Location = strings.TrimRight(options.Location, "/")

	i := &qdrantIndex{
		options: options,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}

	if err := i.configure(options.Context); err != nil {
		panic(err)
	}

	return i
}
