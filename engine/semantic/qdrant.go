// Package semantic mirrors a built section index into external vector
// databases. The local index file stays authoritative; a mirror is replaced
// wholesale on every build.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/WessleyAI/wessley-docsearch/engine/domain"
	"github.com/WessleyAI/wessley-docsearch/pkg/fn"
)

// UpsertBatchSize is the max points per Qdrant upsert.
const UpsertBatchSize = 256

// pointNamespace seeds deterministic point IDs.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("docsearch/section"))

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Qdrant mirrors sections into one Qdrant collection.
type Qdrant struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	logger      *slog.Logger
}

// NewQdrant connects to Qdrant's gRPC API at addr.
func NewQdrant(addr, collection string, logger *slog.Logger) (*Qdrant, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	q := NewQdrantWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, logger)
	q.conn = conn
	return q, nil
}

// NewQdrantWithClients creates a mirror over existing clients.
func NewQdrantWithClients(points pointsAPI, collections collectionsAPI, collection string, logger *slog.Logger) *Qdrant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Qdrant{points: points, collections: collections, collection: collection, logger: logger}
}

// Name identifies the mirror in logs.
func (q *Qdrant) Name() string { return "qdrant/" + q.collection }

// Close closes the gRPC connection, if one was dialled.
func (q *Qdrant) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// Replace drops the collection, recreates it for dim-dimensional Euclidean
// vectors and uploads every entry.
func (q *Qdrant) Replace(ctx context.Context, dim int, entries []domain.IndexedSection) error {
	if err := q.recreate(ctx, dim); err != nil {
		return err
	}
	wait := true
	for _, chunk := range fn.Chunk(entries, UpsertBatchSize) {
		points := fn.Map(chunk, toPoint)
		if _, err := q.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: q.collection,
			Wait:           &wait,
			Points:         points,
		}); err != nil {
			return fmt.Errorf("semantic: upsert %d points: %w", len(points), err)
		}
	}

	exact := true
	resp, err := q.points.Count(ctx, &pb.CountPoints{CollectionName: q.collection, Exact: &exact})
	if err != nil {
		return fmt.Errorf("semantic: count %s: %w", q.collection, err)
	}
	if got := resp.GetResult().GetCount(); got != uint64(len(entries)) {
		return fmt.Errorf("semantic: %s holds %d points, want %d", q.collection, got, len(entries))
	}
	q.logger.Info("qdrant mirror replaced", "collection", q.collection, "points", len(entries), "dim", dim)
	return nil
}

func (q *Qdrant) recreate(ctx context.Context, dim int) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() != q.collection {
			continue
		}
		if _, err := q.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: q.collection}); err != nil {
			return fmt.Errorf("semantic: delete collection %s: %w", q.collection, err)
		}
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dim),
					Distance: pb.Distance_Euclid,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", q.collection, err)
	}
	return nil
}

// PointID is the deterministic Qdrant ID of an index position.
func PointID(e domain.IndexedSection) string {
	return uuid.NewSHA1(pointNamespace, []byte(e.Section.Document+"#"+strconv.Itoa(e.Position))).String()
}

func toPoint(e domain.IndexedSection) *pb.PointStruct {
	return &pb.PointStruct{
		Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(e)}},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: e.Vector}},
		},
		Payload: sectionPayload(e),
	}
}

func sectionPayload(e domain.IndexedSection) map[string]*pb.Value {
	s := e.Section
	out := map[string]*pb.Value{
		"position":      toValue(e.Position),
		"section_title": toValue(s.Title),
		"content":       toValue(s.Content),
		"page_number":   toValue(s.PageNumber),
		"document":      toValue(s.Document),
		"main_type":     toValue(s.MainType),
		"sub_type":      toValue(s.SubType),
		"categories":    toValue(s.Categories),
		"tags":          toValue(s.Tags),
		"sequence":      toValue(nil),
	}
	if s.Sequence != nil {
		out["sequence"] = toValue(*s.Sequence)
	}
	return out
}

func toValue(v any) *pb.Value {
	switch tv := v.(type) {
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{NullValue: pb.NullValue_NULL_VALUE}}
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case []string:
		items := make([]*pb.Value, len(tv))
		for i, s := range tv {
			items[i] = toValue(s)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: items}}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}
