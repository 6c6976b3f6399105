package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/orb-framework/orb3/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
)

// Store is the MongoDB implementation of core.Store. Lookups compile to
// bson.M filters, and an ambient transaction is honored by binding the
// session into the operation context.
type Store struct {
	client          *mongo.Client
	defaultDatabase string
}

var (
	_ core.Store      = (*Store)(nil)
	_ core.Transactor = (*Store)(nil)
)

// New connects a client for the given URI and verifies it with a ping. The
// default database is used when neither a schema namespace nor a lookup
// namespace names one.
func New(ctx context.Context, uri string, defaultDatabase string) (*Store, error) {
	opts := mopt.Client().ApplyURI(uri)
	opts.SetConnectTimeout(10 * time.Second).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return &Store{client: client, defaultDatabase: defaultDatabase}, nil
}

// Ping verifies the client can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Transaction starts a new session-backed transaction.
func (s *Store) Transaction(ctx context.Context) (core.Transaction, error) {
	session, err := s.client.StartSession()
	if err != nil {
		return nil, err
	}
	if err := session.StartTransaction(); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &mongoTransaction{session: session}, nil
}

// collectionFor resolves the target collection. A lookup namespace overrides
// the schema's declared one, falling back to the store's default database.
func (s *Store) collectionFor(model *core.Model, lookup *core.Context) (*mongo.Collection, error) {
	dbName := s.defaultDatabase
	if model.Schema.Namespace != "" {
		dbName = model.Schema.Namespace
	}
	if lookup != nil && lookup.Namespace != "" {
		dbName = lookup.Namespace
	}
	if dbName == "" {
		return nil, fmt.Errorf("mongo: no database for model %q", model.Name)
	}
	return s.client.Database(dbName).Collection(model.Schema.Table), nil
}

// withSession binds an ambient transaction's session into the context so
// subsequent driver calls join it.
func (s *Store) withSession(ctx context.Context) context.Context {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if mt, ok := tx.(*mongoTransaction); ok {
			return mongo.NewSessionContext(ctx, mt.session)
		}
	}
	return ctx
}

// buildFilter compiles a predicate tree to a bson.M filter. A nil or null
// predicate compiles to the empty filter.
func buildFilter(model *core.Model, p core.Predicate) bson.M {
	if p == nil || p.IsNull() {
		return bson.M{}
	}

	switch node := p.(type) {
	case *core.QueryGroup:
		childFilterList := make([]bson.M, 0, len(node.Members))
		for _, member := range node.Members {
			childFilterList = append(childFilterList, buildFilter(model, member))
		}
		if node.Op == core.GroupOr {
			return bson.M{"$or": childFilterList}
		}
		return bson.M{"$and": childFilterList}

	case *core.Query:
		key := columnFor(model, node.Field)
		switch node.Op {
		case core.OpIs:
			return bson.M{key: bson.M{"$eq": node.Value}}
		case core.OpIsNot:
			return bson.M{key: bson.M{"$ne": node.Value}}
		case core.OpGt:
			return bson.M{key: bson.M{"$gt": node.Value}}
		case core.OpGte:
			return bson.M{key: bson.M{"$gte": node.Value}}
		case core.OpLt:
			return bson.M{key: bson.M{"$lt": node.Value}}
		case core.OpLte:
			return bson.M{key: bson.M{"$lte": node.Value}}
		case core.OpLike:
			pattern := toMongoLikePattern(fmt.Sprintf("%v", node.Value))
			return bson.M{key: primitive.Regex{Pattern: pattern, Options: "i"}}
		case core.OpIn:
			array, ok := node.Value.([]any)
			if !ok {
				array = []any{node.Value}
			}
			return bson.M{key: bson.M{"$in": array}}
		}
	}
	return bson.M{}
}

// buildFindOptions translates the lookup's ordering, paging, and projection
// into mongo find options.
func buildFindOptions(model *core.Model, lookup *core.Context) *mopt.FindOptions {
	findOpts := mopt.Find()

	if len(lookup.Order) > 0 {
		sortDoc := bson.D{}
		for _, entry := range lookup.Order {
			direction := 1
			if entry.Direction == core.Desc {
				direction = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: columnFor(model, entry.Field), Value: direction})
		}
		findOpts.SetSort(sortDoc)
	}
	if limit := lookup.Limit(); limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	if start := lookup.Start(); start > 0 {
		findOpts.SetSkip(int64(start))
	}
	if len(lookup.Fields) > 0 {
		projection := bson.M{}
		for _, name := range lookup.Fields {
			projection[columnFor(model, name)] = 1
		}
		findOpts.SetProjection(projection)
	}
	return findOpts
}

// GetRecords runs the lookup as a find and returns field-keyed rows.
func (s *Store) GetRecords(ctx context.Context, model *core.Model, lookup *core.Context) ([]map[string]any, error) {
	ctx = s.withSession(ctx)
	coll, err := s.collectionFor(model, lookup)
	if err != nil {
		return nil, err
	}

	filter := buildFilter(model, lookup.Where)
	cursor, err := coll.Find(ctx, filter, buildFindOptions(model, lookup))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var resultList []map[string]any
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(doc))
		for column, value := range doc {
			row[fieldNameForColumn(model, column)] = value
		}
		resultList = append(resultList, row)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return resultList, nil
}

// SaveRecord persists the record's pending changes: InsertOne for records
// that have never been persisted, UpdateOne keyed on the baseline key values
// otherwise. A generated document id is reported back through the single key
// field when the record did not provide one.
func (s *Store) SaveRecord(ctx context.Context, record *core.Record, lookup *core.Context) (map[string]any, error) {
	ctx = s.withSession(ctx)
	model := record.Model()
	coll, err := s.collectionFor(model, lookup)
	if err != nil {
		return nil, err
	}

	changes := record.PendingChanges()
	document := bson.M{}
	for _, field := range model.Schema.OrderedFields() {
		value, ok := changes[field.Name]
		if !ok || field.HasFlag(core.FlagVirtual) {
			continue
		}
		document[field.Column] = value
	}

	values := map[string]any{}
	if record.IsNew() {
		result, err := coll.InsertOne(ctx, document)
		if err != nil {
			return nil, err
		}
		keyFields := model.Schema.KeyFields
		if len(keyFields) == 1 {
			if _, provided := changes[keyFields[0].Name]; !provided {
				values[keyFields[0].Name] = result.InsertedID
			}
		}
		return values, nil
	}

	if _, err := coll.UpdateOne(ctx, keyFilter(model, record), bson.M{"$set": document}); err != nil {
		return nil, err
	}
	return values, nil
}

// DeleteRecord removes the record by its baseline key values and returns the
// deleted count.
func (s *Store) DeleteRecord(ctx context.Context, record *core.Record, lookup *core.Context) (int64, error) {
	ctx = s.withSession(ctx)
	model := record.Model()
	coll, err := s.collectionFor(model, lookup)
	if err != nil {
		return 0, err
	}

	result, err := coll.DeleteMany(ctx, keyFilter(model, record))
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// keyFilter compiles the record's baseline key values into an equality
// filter.
func keyFilter(model *core.Model, record *core.Record) bson.M {
	state := record.BaselineState()
	filter := bson.M{}
	for _, field := range model.Schema.KeyFields {
		filter[field.Column] = state[field.Name]
	}
	return filter
}
