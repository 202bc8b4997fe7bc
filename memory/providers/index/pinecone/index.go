package pinecone

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"github.com/w-h-a/therapist/memory/providers/index"
	"google.golang.org/protobuf/types/known/structpb"
)

const readyChecks = 30

var readyInterval = 2 * time.Second

// controlPlane is the part of *pinecone.Client used to provision the index.
type controlPlane interface {
	ListIndexes(ctx context.Context) ([]*pinecone.Index, error)
	CreateServerlessIndex(ctx context.Context, in *pinecone.CreateServerlessIndexRequest) (*pinecone.Index, error)
}

// dataPlane is the part of *pinecone.IndexConnection used for vectors.
type dataPlane interface {
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
}

type pineconeIndex struct {
	options index.Options
	data    dataPlane
}

func (i *pineconeIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	meta, err := structpb.NewStruct(metadata)
	if err != nil {
		return fmt.Errorf("pinecone metadata: %w", err)
	}

	_, err = i.data.UpsertVectors(ctx, []*pinecone.Vector{
		{
			Id:       id,
			Values:   vector,
			Metadata: meta,
		},
	})

	return err
}

func (i *pineconeIndex) Query(ctx context.Context, vector []float32, topK int, filter index.Filter) ([]index.Match, error) {
	if topK < 1 {
		return nil, nil
	}

	metadataFilter, err := buildFilter(filter)
	if err != nil {
		return nil, err
	}

	rsp, err := i.data.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		MetadataFilter:  metadataFilter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}

	matches := make([]index.Match, 0, len(rsp.Matches))

	for _, m := range rsp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}

		var metadata map[string]any
		if m.Vector.Metadata != nil {
			metadata = m.Vector.Metadata.AsMap()
		}

		matches = append(matches, index.Match{
			Id:       m.Vector.Id,
			Score:    m.Score,
			Metadata: metadata,
		})
	}

	return matches, nil
}

// buildFilter renders an exact-match filter in Pinecone's query language.
func buildFilter(filter index.Filter) (*pinecone.MetadataFilter, error) {
	if len(filter) == 0 {
		return nil, nil
	}

	out := make(map[string]any, len(filter))
	for k, v := range filter {
		out[k] = map[string]any{"$eq": v}
	}

	f, err := structpb.NewStruct(out)
	if err != nil {
		return nil, fmt.Errorf("pinecone filter: %w", err)
	}

	return f, nil
}

// provision returns the host of a ready index, creating it first when absent.
// A failed create is ignored when the index shows up anyway, which is what a
// concurrent creator's 409 looks like.
func provision(ctx context.Context, control controlPlane, options index.Options) (string, error) {
	model, err := find(ctx, control, options.Collection)
	if err != nil {
		return "", err
	}

	if model == nil {
		slog.InfoContext(ctx, "creating pinecone index", "index", options.Collection, "dimension", options.Dimension)

		_, createErr := control.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
			Name:      options.Collection,
			Dimension: int32(options.Dimension),
			Metric:    pinecone.IndexMetric(options.Metric),
			Cloud:     pinecone.Cloud(options.Cloud),
			Region:    options.Region,
		})

		if model, err = find(ctx, control, options.Collection); err != nil {
			return "", err
		}

		if model == nil && createErr != nil {
			return "", createErr
		}
	}

	for range readyChecks {
		if model != nil && model.Status != nil && model.Status.Ready && len(model.Host) > 0 {
			return model.Host, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(readyInterval):
		}

		if model, err = find(ctx, control, options.Collection); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("pinecone index %s is not ready", options.Collection)
}

func find(ctx context.Context, control controlPlane, name string) (*pinecone.Index, error) {
	indexes, err := control.ListIndexes(ctx)
	if err != nil {
		return nil, err
	}

	for _, idx := range indexes {
		if idx != nil && idx.Name == name {
			return idx, nil
		}
	}

	return nil, nil
}

// NewIndex connects to (and if needed provisions) a serverless Pinecone index
// named by WithCollection. WithLocation overrides the control plane URL.
func NewIndex(opts ...index.Option) index.Index {
	options := index.NewOptions(opts...)

	if len(options.ApiKey) == 0 || len(options.Collection) == 0 || options.Dimension == 0 {
		panic("missing api key, index name, or dimension for pinecone index")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: options.ApiKey,
		Host:   options.Location,
	})
	if err != nil {
		detail := "failed to create pinecone client"
		slog.ErrorContext(options.Context, detail, "error", err)
		panic(detail)
	}

	host, err := provision(options.Context, client, options)
	if err != nil {
		detail := "failed to configure pinecone index"
		slog.ErrorContext(options.Context, detail, "error", err, "index", options.Collection)
		panic(detail)
	}

	conn, err := client.Index(pinecone.NewIndexConnParams{Host: host})
	if err != nil {
		detail := "failed to connect to pinecone index"
		slog.ErrorContext(options.Context, detail, "error", err, "host", host)
		panic(detail)
	}

	return &pineconeIndex{
		options: options,
		data:    conn,
	}
}
