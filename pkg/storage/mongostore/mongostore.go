// Package mongostore implements storage.Adapter on MongoDB.
//
// Each resource type lives in its own collection keyed by _id, with an
// organization_id field on every tenant-owned document. MongoDB has no
// foreign keys, so the adapter enforces references itself:
//
//   - inserting an item first checks that its warehouse exists in the same
//     organization
//   - deleting a warehouse deletes its items first, then the warehouse
//   - deleting an organization is refused while any document references it
//
// SKU uniqueness is delegated to a unique index on inventory_items.sku, so
// concurrent inserts of the same SKU are resolved by the server.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/observability"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

// SKUIndexName is the name of the unique index backing ConstraintSKU
const SKUIndexName = "inventory_items_sku_key"

var collections = map[models.ResourceType]string{
	models.ResourceOrganization:  "organizations",
	models.ResourceUser:          "users",
	models.ResourceWarehouse:     "warehouses",
	models.ResourceInventoryItem: "inventory_items",
}

// Store implements storage.Adapter on a MongoDB database
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
	logger  logrus.FieldLogger
}

var _ storage.Adapter = (*Store)(nil)

// Open connects to cfg.MongoURI, pings the primary and ensures indexes
func Open(ctx context.Context, cfg storage.Config, logger logrus.FieldLogger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.MongoURI).
		SetTimeout(cfg.OperationTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	s := New(client, cfg.MongoDatabase, cfg.OperationTimeout, logger)
	if err := s.Ping(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps a connected client
func New(client *mongo.Client, database string, timeout time.Duration, logger logrus.FieldLogger) *Store {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Store{
		client:  client,
		db:      client.Database(database),
		timeout: timeout,
		logger:  logger,
	}
}

// EnsureIndexes creates the unique sku index and organization lookup indexes
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.collection(models.ResourceInventoryItem).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sku", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(SKUIndexName),
		},
		{Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "warehouse_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create inventory item indexes: %w", err)
	}

	for _, r := range []models.ResourceType{models.ResourceUser, models.ResourceWarehouse} {
		if _, err := s.collection(r).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "organization_id", Value: 1}},
		}); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", r, err)
		}
	}
	return nil
}

func (s *Store) collection(resource models.ResourceType) *mongo.Collection {
	return s.db.Collection(collections[resource])
}

// Find queries one collection with the organization filter applied
func (s *Store) Find(ctx context.Context, resource models.ResourceType, filter storage.Filter) ([]models.Entity, error) {
	filter, err := storage.NormalizeFilter(resource, filter)
	if err != nil {
		return nil, err
	}

	query, ok := buildFilter(resource, filter)
	if !ok {
		return nil, nil
	}

	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	cursor, err := s.collection(resource).Find(ctx, query,
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, mapError(resource, err)
	}
	defer cursor.Close(ctx)

	var result []models.Entity
	for cursor.Next(ctx) {
		e := models.NewEntity(resource)
		if err := cursor.Decode(e); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", resource, err)
		}
		result = append(result, e)
	}
	if err := cursor.Err(); err != nil {
		return nil, mapError(resource, err)
	}
	return result, nil
}

// Insert stores one document after checking references that MongoDB cannot
func (s *Store) Insert(ctx context.Context, organizationID string, entity models.Entity) (string, error) {
	resource := entity.Resource()
	e := entity.Clone()
	if err := storage.PrepareInsert(organizationID, e); err != nil {
		return "", err
	}

	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	if resource != models.ResourceOrganization {
		ok, err := s.exists(ctx, models.ResourceOrganization, bson.D{{Key: "_id", Value: organizationID}})
		if err != nil {
			return "", err
		}
		if !ok {
			return "", storage.Constraint(resource, storage.ConstraintOrganizationRef,
				fmt.Errorf("organization %q does not exist", organizationID))
		}
	}

	if item, ok := e.(*models.InventoryItem); ok {
		if item.Quantity < 0 {
			return "", storage.Constraint(resource, storage.ConstraintQuantity, fmt.Errorf("quantity %d is negative", item.Quantity))
		}
		found, err := s.exists(ctx, models.ResourceWarehouse, bson.D{
			{Key: "_id", Value: item.WarehouseID},
			{Key: "organization_id", Value: item.OrganizationID},
		})
		if err != nil {
			return "", err
		}
		if !found {
			return "", storage.Constraint(resource, storage.ConstraintWarehouseRef,
				fmt.Errorf("warehouse %q not found in organization %q", item.WarehouseID, item.OrganizationID))
		}
	}

	if _, err := s.collection(resource).InsertOne(ctx, e); err != nil {
		return "", mapError(resource, err)
	}
	return e.GetID(), nil
}

// Update applies patch with a single $set
func (s *Store) Update(ctx context.Context, resource models.ResourceType, organizationID, id string, patch storage.Patch) error {
	patch, err := patch.Normalize(resource)
	if err != nil {
		return err
	}
	if q, ok := patch["quantity"].(int64); ok && q < 0 {
		return storage.Constraint(resource, storage.ConstraintQuantity, fmt.Errorf("quantity %d is negative", q))
	}

	query, ok := ownedBy(resource, organizationID, id)
	if !ok {
		return storage.NotFound(resource, id)
	}

	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.collection(resource).UpdateOne(ctx, query, buildUpdate(patch))
	if err != nil {
		return mapError(resource, err)
	}
	if res.MatchedCount == 0 {
		return storage.NotFound(resource, id)
	}
	return nil
}

// Delete removes one document. A warehouse's items are deleted before the
// warehouse so an interrupted cascade never leaves orphaned items behind a
// missing warehouse.
func (s *Store) Delete(ctx context.Context, resource models.ResourceType, organizationID, id string) error {
	if _, ok := collections[resource]; !ok {
		return fmt.Errorf("%w: unknown resource %q", storage.ErrInvalidArgument, resource)
	}

	query, ok := ownedBy(resource, organizationID, id)
	if !ok {
		return storage.NotFound(resource, id)
	}

	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	found, err := s.exists(ctx, resource, query)
	if err != nil {
		return err
	}
	if !found {
		return storage.NotFound(resource, id)
	}

	switch resource {
	case models.ResourceOrganization:
		for _, r := range []models.ResourceType{models.ResourceUser, models.ResourceWarehouse, models.ResourceInventoryItem} {
			used, err := s.exists(ctx, r, bson.D{{Key: "organization_id", Value: id}})
			if err != nil {
				return err
			}
			if used {
				return storage.Constraint(resource, storage.ConstraintOrganizationRef,
					fmt.Errorf("organization %q still has %s records", id, r))
			}
		}
	case models.ResourceWarehouse:
		res, err := s.collection(models.ResourceInventoryItem).DeleteMany(ctx, bson.D{
			{Key: "organization_id", Value: organizationID},
			{Key: "warehouse_id", Value: id},
		})
		if err != nil {
			return mapError(models.ResourceInventoryItem, err)
		}
		s.logger.WithFields(logrus.Fields{
			"warehouse_id": id,
			"items":        res.DeletedCount,
		}).Debug("Cascaded warehouse delete to inventory items")
	}

	res, err := s.collection(resource).DeleteOne(ctx, query)
	if err != nil {
		return mapError(resource, err)
	}
	if res.DeletedCount == 0 {
		return storage.NotFound(resource, id)
	}
	return nil
}

// Ping checks connectivity to the primary
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		if mapped := mapError("", err); storage.IsRetryable(mapped) {
			return mapped
		}
		return storage.Unavailable("", err)
	}
	return nil
}

// Close disconnects the client
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes the whole database. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

func (s *Store) exists(ctx context.Context, resource models.ResourceType, filter bson.D) (bool, error) {
	n, err := s.collection(resource).CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, mapError(resource, err)
	}
	return n > 0, nil
}

// buildFilter translates a storage filter into a query document. It reports
// false when the filter cannot match any document.
func buildFilter(resource models.ResourceType, filter storage.Filter) (bson.D, bool) {
	var doc bson.D
	if resource == models.ResourceOrganization {
		if filter.ID != "" && filter.ID != filter.OrganizationID {
			return nil, false
		}
		doc = bson.D{{Key: "_id", Value: filter.OrganizationID}}
	} else {
		doc = bson.D{{Key: "organization_id", Value: filter.OrganizationID}}
		if filter.ID != "" {
			doc = append(doc, bson.E{Key: "_id", Value: filter.ID})
		}
	}
	for _, field := range filter.SortedFieldNames() {
		doc = append(doc, bson.E{Key: field, Value: filter.Fields[field]})
	}
	return doc, true
}

// ownedBy selects the document id inside organizationID
func ownedBy(resource models.ResourceType, organizationID, id string) (bson.D, bool) {
	if resource == models.ResourceOrganization {
		return bson.D{{Key: "_id", Value: id}}, id == organizationID
	}
	return bson.D{{Key: "_id", Value: id}, {Key: "organization_id", Value: organizationID}}, true
}

func buildUpdate(patch storage.Patch) bson.D {
	set := make(bson.D, 0, len(patch))
	for _, field := range patch.Keys() {
		set = append(set, bson.E{Key: field, Value: patch[field]})
	}
	return bson.D{{Key: "$set", Value: set}}
}

// mapError translates driver errors into storage errors
func mapError(resource models.ResourceType, err error) error {
	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		var we mongo.WriteException
		if errors.As(err, &we) {
			for _, e := range we.WriteErrors {
				if strings.Contains(e.Message, SKUIndexName) {
					return storage.Constraint(resource, storage.ConstraintSKU, err)
				}
			}
		}
		return storage.Constraint(resource, storage.ConstraintPrimaryKey, err)
	case mongo.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return storage.Timeout(resource, err)
	case mongo.IsNetworkError(err), errors.Is(err, mongo.ErrClientDisconnected):
		return storage.Unavailable(resource, err)
	}
	return err
}
