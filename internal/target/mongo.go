package target

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/brcamerge/brcamerge/internal/table"
)

// MongoWriter stores one document per unified row. Absent fields are omitted
// from the document.
type MongoWriter struct {
	client     *mongo.Client
	database   string
	collection string
	batchSize  int
}

// NewMongoWriter creates a new MongoWriter connected to the given MongoDB instance.
func NewMongoWriter(ctx context.Context, connectionString, database, collection string, batchSize int) (*MongoWriter, error) {
	if collection == "" {
		collection = "unified"
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	client, err := mongo.Connect(options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}
	return &MongoWriter{
		client:     client,
		database:   database,
		collection: collection,
		batchSize:  batchSize,
	}, nil
}

func (m *MongoWriter) Name() string { return "mongodb" }

// Document renders row i of t as a BSON document in column order.
func Document(t *table.Table, i int) bson.D {
	cols := t.Columns()
	doc := make(bson.D, 0, len(cols))
	for j, v := range t.Row(i) {
		if v.IsAbsent() {
			continue
		}
		doc = append(doc, bson.E{Key: cols[j], Value: mongoValue(v)})
	}
	return doc
}

func mongoValue(v table.Value) any {
	switch v.Kind() {
	case table.KindNumber:
		if f, ok := v.Float(); ok {
			return f
		}
	case table.KindBool:
		return v.Key() == "true"
	}
	return v.Text()
}

// Write drops the collection and inserts the rows in batches.
func (m *MongoWriter) Write(ctx context.Context, t *table.Table) (int64, error) {
	coll := m.client.Database(m.database).Collection(m.collection)
	if err := coll.Drop(ctx); err != nil {
		return 0, fmt.Errorf("dropping collection %s: %w", m.collection, err)
	}

	var n int64
	batch := make([]any, 0, m.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		res, err := coll.InsertMany(ctx, batch)
		if err != nil {
			return fmt.Errorf("inserting into %s: %w", m.collection, err)
		}
		n += int64(len(res.InsertedIDs))
		batch = batch[:0]
		return nil
	}
	for i := 0; i < t.Len(); i++ {
		batch = append(batch, Document(t, i))
		if len(batch) == m.batchSize {
			if err := flush(); err != nil {
				return n, err
			}
		}
	}
	if err := flush(); err != nil {
		return n, err
	}
	return n, nil
}

// Count returns the number of documents in the collection.
func (m *MongoWriter) Count(ctx context.Context) (int64, error) {
	count, err := m.client.Database(m.database).Collection(m.collection).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("counting documents in %s: %w", m.collection, err)
	}
	return count, nil
}

// CountDistinct returns the number of distinct values for a field.
func (m *MongoWriter) CountDistinct(ctx context.Context, field string) (int64, error) {
	pipeline := bson.A{
		bson.D{{Key: "$match", Value: bson.D{{Key: field, Value: bson.D{{Key: "$exists", Value: true}}}}}},
		bson.D{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$" + field}}}},
		bson.D{{Key: "$count", Value: "count"}},
	}
	cursor, err := m.client.Database(m.database).Collection(m.collection).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("counting distinct %s.%s: %w", m.collection, field, err)
	}
	defer cursor.Close(ctx)

	if cursor.Next(ctx) {
		var result bson.M
		if err := cursor.Decode(&result); err != nil {
			return 0, fmt.Errorf("decoding count distinct result: %w", err)
		}
		switch v := result["count"].(type) {
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		}
	}
	return 0, cursor.Err()
}

// Close disconnects from MongoDB.
func (m *MongoWriter) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
