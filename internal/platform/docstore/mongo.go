package docstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoBackend maps each collection onto a MongoDB collection. Dotted
// selector paths are native Mongo filter syntax; the revision guard is part
// of the replace/delete filter.
type MongoBackend struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoBackend(ctx context.Context, uri, database string) (*MongoBackend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoBackend{client: client, db: client.Database(database)}, nil
}

func (b *MongoBackend) Collection(name string) Store {
	return &MongoStore{coll: b.db.Collection(name), name: name}
}

func (b *MongoBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx, nil)
}

func (b *MongoBackend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}

type MongoStore struct {
	coll *mongo.Collection
	name string
}

func (s *MongoStore) Get(ctx context.Context, id string) (Document, error) {
	var raw bson.M
	err := s.coll.FindOne(ctx, bson.M{IDField: id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(ReasonMissing)
	}
	if err != nil {
		return nil, upstream("find document", err)
	}
	return fromBSONDocument(raw), nil
}

func (s *MongoStore) Insert(ctx context.Context, doc Document) (*WriteResult, error) {
	stored := prepareInsert(doc)
	if _, err := s.coll.InsertOne(ctx, bson.M(stored)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, conflict()
		}
		return nil, upstream("insert document", err)
	}
	return &WriteResult{Status: http.StatusCreated, OK: true, ID: stored.ID(), Rev: stored.Rev()}, nil
}

func (s *MongoStore) Query(ctx context.Context, selector Selector, fields []string, limit int) (*QueryResult, error) {
	opts := options.Find().SetLimit(int64(normalizeLimit(limit)))
	if len(fields) > 0 {
		opts.SetProjection(mongoProjection(fields))
	}

	cursor, err := s.coll.Find(ctx, bson.M(Flatten(selector)), opts)
	if err != nil {
		return nil, upstream("find documents", err)
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, upstream("decode documents", err)
	}

	docs := make([]Document, 0, len(raw))
	for _, r := range raw {
		docs = append(docs, fromBSONDocument(r))
	}
	return &QueryResult{Docs: docs}, nil
}

func (s *MongoStore) Update(ctx context.Context, id string, doc Document) (*WriteResult, error) {
	stored := doc.Clone()
	stored[IDField] = id
	stored[RevField] = NextRev(doc.Rev())

	res, err := s.coll.ReplaceOne(ctx, bson.M{IDField: id, RevField: doc.Rev()}, bson.M(stored))
	if err != nil {
		return nil, upstream("replace document", err)
	}
	if res.MatchedCount == 0 {
		return nil, s.missingOrConflict(ctx, id)
	}
	return &WriteResult{Status: http.StatusCreated, OK: true, ID: id, Rev: stored.Rev()}, nil
}

func (s *MongoStore) Delete(ctx context.Context, id, rev string) (*WriteResult, error) {
	if rev == "" {
		return nil, badRequest(ReasonBadRev)
	}

	res, err := s.coll.DeleteOne(ctx, bson.M{IDField: id, RevField: rev})
	if err != nil {
		return nil, upstream("delete document", err)
	}
	if res.DeletedCount == 0 {
		return nil, s.missingOrConflict(ctx, id)
	}
	return &WriteResult{Status: http.StatusOK, OK: true, ID: id, Rev: NextRev(rev)}, nil
}

func (s *MongoStore) Info(ctx context.Context) (*Info, error) {
	count, err := s.coll.EstimatedDocumentCount(ctx)
	if err != nil {
		return nil, upstream("collection info", err)
	}
	return &Info{DBName: s.name, DocCount: count, Backend: "mongo"}, nil
}

func (s *MongoStore) missingOrConflict(ctx context.Context, id string) error {
	n, err := s.coll.CountDocuments(ctx, bson.M{IDField: id})
	if err != nil {
		return upstream("check document", err)
	}
	if n == 0 {
		return notFound(ReasonMissing)
	}
	return conflict()
}

// mongoProjection includes the listed paths and, unless asked for, hides
// _id which Mongo would otherwise always return.
func mongoProjection(fields []string) bson.D {
	proj := bson.D{}
	withID := false
	for _, f := range fields {
		if f == IDField {
			withID = true
		}
		proj = append(proj, bson.E{Key: f, Value: 1})
	}
	if !withID {
		proj = append(proj, bson.E{Key: IDField, Value: 0})
	}
	return proj
}

func fromBSONDocument(m bson.M) Document {
	return Document(fromBSON(m).(map[string]interface{}))
}

// fromBSON turns driver types into the plain JSON shapes the other
// backends return.
func fromBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.M:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = fromBSON(val)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = fromBSON(val)
		}
		return out
	case primitive.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case primitive.A:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = fromBSON(val)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	case primitive.ObjectID:
		return t.Hex()
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}
