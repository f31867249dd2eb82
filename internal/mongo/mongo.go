// Package mongo implements the document-store storage backend. Each dataset
// is one collection; rows carry both the sequential integer id used by the
// model layer and a backend-native _docid, since document identity is not an
// integer sequence.
package mongo

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mesh-intelligence/strata/pkg/database"
	"github.com/mesh-intelligence/strata/pkg/types"
)

func init() {
	if err := database.RegisterAdapter(database.Descriptor{
		Types:   []string{"mongo"},
		Clients: []string{"*mongo.Client", "*mongo.Database"},
		Build: func(cfg types.Config) (types.Adapter, error) {
			return Open(cfg)
		},
	}); err != nil {
		panic(fmt.Sprintf("registering mongo adapter: %v", err))
	}
}

// Adapter wraps one MongoDB database.
type Adapter struct {
	mu       sync.Mutex
	client   *mongo.Client
	db       *mongo.Database
	datasets map[string]*Dataset
}

// Open connects to the server named by the config URI and selects the
// configured database.
func Open(cfg types.Config) (*Adapter, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo backend requires a connection URI")
	}
	name := cfg.Database
	if name == "" {
		name = "strata"
	}
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.URI, err)
	}
	return &Adapter{
		client:   client,
		db:       client.Database(name),
		datasets: make(map[string]*Dataset),
	}, nil
}

// Client exposes the underlying connection for client-based adapter lookup.
func (a *Adapter) Client() *mongo.Client { return a.client }

// Name returns the backend type token.
func (a *Adapter) Name() string { return "mongo" }

// Dataset returns the named dataset. Collections materialize on first write.
func (a *Adapter) Dataset(name string, schema *types.Schema) (types.Dataset, error) {
	if name == "" {
		return nil, types.ErrDatasetNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	ds, ok := a.datasets[name]
	if !ok {
		ds = &Dataset{coll: a.db.Collection(name)}
		a.datasets[name] = ds
	}
	ds.setSchema(schema)
	return ds, nil
}

// Close disconnects from the server.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.datasets = make(map[string]*Dataset)
	if a.client == nil {
		return nil
	}
	err := a.client.Disconnect(context.Background())
	a.client = nil
	return err
}

// Dataset is one collection-backed row set.
type Dataset struct {
	mu     sync.Mutex
	coll   *mongo.Collection
	schema *types.Schema
}

func (d *Dataset) setSchema(schema *types.Schema) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.schema = schema
}

// filter translates the query into the native predicate dialect.
func filter(q types.Query) bson.M {
	out := bson.M{}
	for field, cond := range q {
		switch c := cond.(type) {
		case nil:
			out[field] = nil
		case types.In:
			values := make([]any, len(c))
			for i, v := range c {
				values[i] = types.FormatValue(v)
			}
			out[field] = bson.M{"$in": values}
		case types.Range:
			bounds := bson.M{}
			if c.Min != nil {
				bounds["$gte"] = types.FormatValue(c.Min)
			}
			if c.Max != nil {
				bounds["$lte"] = types.FormatValue(c.Max)
			}
			out[field] = bounds
		case types.Pattern:
			expr := string(c)
			if _, err := regexp.Compile(expr); err != nil {
				expr = regexp.QuoteMeta(expr)
			}
			out[field] = primitive.Regex{Pattern: expr, Options: "i"}
		default:
			out[field] = types.FormatValue(c)
		}
	}
	return out
}

// decode converts a fetched document into a normalized row.
func (d *Dataset) decode(doc bson.M) types.Row {
	row := types.Row{}
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		if arr, ok := v.(primitive.A); ok {
			v = []any(arr)
		}
		if m, ok := v.(bson.M); ok {
			v = map[string]any(m)
		}
		row[k] = v
	}
	return types.CoerceRow(row, d.schema)
}

// encode converts a row into its stored document form.
func encode(row types.Row) bson.M {
	doc := bson.M{}
	for k, v := range row {
		doc[k] = types.FormatValue(v)
	}
	return doc
}

// nextID returns one more than the largest id in the collection.
func (d *Dataset) nextID(ctx context.Context) (int64, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: types.FieldID, Value: -1}})
	var doc bson.M
	err := d.coll.FindOne(ctx, bson.M{}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	id, _ := types.AsInt64(doc[types.FieldID])
	return id + 1, nil
}

// Find returns the lowest-id document matching the query.
// Returns ErrNotFound when nothing matches.
func (d *Dataset) Find(q types.Query) (types.Row, error) {
	ctx := context.Background()
	opts := options.FindOne().SetSort(bson.D{{Key: types.FieldID, Value: 1}})
	var doc bson.M
	err := d.coll.FindOne(ctx, filter(q), opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding in %s: %w", d.coll.Name(), err)
	}
	return d.decode(doc), nil
}

// FindAll returns every document matching the query, by ascending id.
func (d *Dataset) FindAll(q types.Query) ([]types.Row, error) {
	ctx := context.Background()
	opts := options.Find().SetSort(bson.D{{Key: types.FieldID, Value: 1}})
	cursor, err := d.coll.Find(ctx, filter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("finding in %s: %w", d.coll.Name(), err)
	}
	defer cursor.Close(ctx)

	var out []types.Row
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, d.decode(doc))
	}
	return out, cursor.Err()
}

// All returns every document, by ascending id.
func (d *Dataset) All() ([]types.Row, error) {
	return d.FindAll(types.Query{})
}

// Save upserts the document by id, assigning the next sequential id when
// absent. The _docid is assigned once per document: an update without one
// keeps the stored document's _docid rather than minting a fresh one.
func (d *Dataset) Save(row types.Row) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx := context.Background()
	stored := row.Clone()
	id := stored.ID()
	if id == 0 {
		next, err := d.nextID(ctx)
		if err != nil {
			return 0, fmt.Errorf("allocating id in %s: %w", d.coll.Name(), err)
		}
		id = next
		stored[types.FieldID] = id
	} else if stored[types.FieldDocID] == nil {
		docid, err := d.storedDocID(ctx, id)
		if err != nil {
			return 0, err
		}
		if docid != "" {
			stored[types.FieldDocID] = docid
		}
	}
	if stored[types.FieldDocID] == nil {
		stored[types.FieldDocID] = newDocID()
	}

	opts := options.Replace().SetUpsert(true)
	_, err := d.coll.ReplaceOne(ctx, bson.M{types.FieldID: id}, encode(stored), opts)
	if err != nil {
		return 0, fmt.Errorf("saving into %s: %w", d.coll.Name(), err)
	}
	return id, nil
}

// storedDocID returns the _docid already assigned to the document with the
// given id, or "" when no such document exists.
func (d *Dataset) storedDocID(ctx context.Context, id int64) (string, error) {
	opts := options.FindOne().SetProjection(bson.M{types.FieldDocID: 1})
	var doc bson.M
	err := d.coll.FindOne(ctx, bson.M{types.FieldID: id}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("finding in %s: %w", d.coll.Name(), err)
	}
	docid, _ := doc[types.FieldDocID].(string)
	return docid, nil
}

// Delete removes the document with the given id. Deleting an absent id
// returns ErrNotFound.
func (d *Dataset) Delete(id int64) error {
	res, err := d.coll.DeleteOne(context.Background(), bson.M{types.FieldID: id})
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", d.coll.Name(), err)
	}
	if res.DeletedCount == 0 {
		return types.ErrNotFound
	}
	return nil
}

// Count returns the number of documents matching the query.
func (d *Dataset) Count(q types.Query) (int64, error) {
	count, err := d.coll.CountDocuments(context.Background(), filter(q))
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", d.coll.Name(), err)
	}
	return count, nil
}

// groupAggregate runs a single $group accumulator over the field.
func (d *Dataset) groupAggregate(op, field string, q types.Query) (any, error) {
	ctx := context.Background()
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filter(q)}},
		{{Key: "$group", Value: bson.M{"_id": nil, "result": bson.M{op: "$" + field}}}},
	}
	cursor, err := d.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregating %s on %s: %w", op, d.coll.Name(), err)
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		return nil, cursor.Err()
	}
	var doc bson.M
	if err := cursor.Decode(&doc); err != nil {
		return nil, err
	}
	return doc["result"], nil
}

// Sum totals the field over matching documents.
func (d *Dataset) Sum(field string, q types.Query) (float64, error) {
	result, err := d.groupAggregate("$sum", field, q)
	if err != nil {
		return 0, err
	}
	f, _ := types.AsFloat64(result)
	return f, nil
}

// Average computes the mean of the field over matching documents.
func (d *Dataset) Average(field string, q types.Query) (float64, error) {
	result, err := d.groupAggregate("$avg", field, q)
	if err != nil {
		return 0, err
	}
	f, _ := types.AsFloat64(result)
	return f, nil
}

// Min returns the smallest value of the field over matching documents.
func (d *Dataset) Min(field string, q types.Query) (any, error) {
	result, err := d.groupAggregate("$min", field, q)
	if err != nil || result == nil {
		return nil, err
	}
	return d.coerceField(field, result), nil
}

// Max returns the largest value of the field over matching documents.
func (d *Dataset) Max(field string, q types.Query) (any, error) {
	result, err := d.groupAggregate("$max", field, q)
	if err != nil || result == nil {
		return nil, err
	}
	return d.coerceField(field, result), nil
}

// Distinct returns the unique non-null values of the field over matching
// documents.
func (d *Dataset) Distinct(field string, q types.Query) ([]any, error) {
	values, err := d.coll.Distinct(context.Background(), field, filter(q))
	if err != nil {
		return nil, fmt.Errorf("selecting distinct %s.%s: %w", d.coll.Name(), field, err)
	}
	var out []any
	for _, v := range values {
		if v == nil {
			continue
		}
		out = append(out, d.coerceField(field, v))
	}
	return out, nil
}

// Sample returns one uniformly chosen matching document, or nil.
func (d *Dataset) Sample(q types.Query) (types.Row, error) {
	ctx := context.Background()
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filter(q)}},
		{{Key: "$sample", Value: bson.M{"size": 1}}},
	}
	cursor, err := d.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("sampling %s: %w", d.coll.Name(), err)
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		return nil, cursor.Err()
	}
	var doc bson.M
	if err := cursor.Decode(&doc); err != nil {
		return nil, err
	}
	return d.decode(doc), nil
}

func (d *Dataset) coerceField(field string, v any) any {
	if attr, ok := d.schema.Attribute(field); ok {
		return types.Coerce(attr.Type, v)
	}
	return v
}

// newDocID generates the backend-native document id.
func newDocID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
