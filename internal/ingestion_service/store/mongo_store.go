package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"DocFlow/internal/models"
)

// DocumentStore defines the interface for document record persistence.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.DocumentRecord) error
	GetByID(ctx context.Context, id string) (*models.DocumentRecord, error)
	GetByUser(ctx context.Context, userID string, page, limit int) ([]*models.DocumentRecord, error)
	GetByTopic(ctx context.Context, userID, topicID string) ([]*models.DocumentRecord, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error

	SetStatus(ctx context.Context, documentID string, status models.DocumentStatus) error
	SetDone(ctx context.Context, documentID string, chunkCount int) error
	SetFailed(ctx context.Context, documentID string, reason string) error
}

// TopicStore defines the interface for topic persistence.
type TopicStore interface {
	Create(ctx context.Context, topic *models.TopicRecord) error
	GetByID(ctx context.Context, id string) (*models.TopicRecord, error)
	GetByUser(ctx context.Context, userID string) ([]*models.TopicRecord, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error
}

// MongoDocumentStore is the MongoDB implementation of DocumentStore.
type MongoDocumentStore struct {
	collection *mongo.Collection
}

// NewMongoDocumentStore creates a MongoDocumentStore.
func NewMongoDocumentStore(db *mongo.Database, collectionName string) *MongoDocumentStore {
	return &MongoDocumentStore{collection: db.Collection(collectionName)}
}

// Create inserts a new document record.
func (s *MongoDocumentStore) Create(ctx context.Context, doc *models.DocumentRecord) error {
	_, err := s.collection.InsertOne(ctx, doc)
	return err
}

// GetByID retrieves a document by its ID. Returns models.ErrNotFound if the
// document does not exist.
func (s *MongoDocumentStore) GetByID(ctx context.Context, id string) (*models.DocumentRecord, error) {
	var doc models.DocumentRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// GetByUser retrieves a paginated list of a user's documents, newest first.
func (s *MongoDocumentStore) GetByUser(ctx context.Context, userID string, page, limit int) ([]*models.DocumentRecord, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []*models.DocumentRecord
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// GetByTopic retrieves every document of one topic.
func (s *MongoDocumentStore) GetByTopic(ctx context.Context, userID, topicID string) ([]*models.DocumentRecord, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID, "topic_id": topicID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []*models.DocumentRecord
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Delete removes a document record.
func (s *MongoDocumentStore) Delete(ctx context.Context, id string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// DeleteByUser removes every document record of one user.
func (s *MongoDocumentStore) DeleteByUser(ctx context.Context, userID string) error {
	_, err := s.collection.DeleteMany(ctx, bson.M{"user_id": userID})
	return err
}

// SetStatus records a stage transition.
func (s *MongoDocumentStore) SetStatus(ctx context.Context, documentID string, status models.DocumentStatus) error {
	return s.update(ctx, documentID, bson.M{"status": status})
}

// SetDone marks the document ingested with its final chunk count.
func (s *MongoDocumentStore) SetDone(ctx context.Context, documentID string, chunkCount int) error {
	return s.update(ctx, documentID, bson.M{
		"status":        models.StatusDone,
		"chunk_count":   chunkCount,
		"error_message": "",
	})
}

// SetFailed marks the document failed with the reason.
func (s *MongoDocumentStore) SetFailed(ctx context.Context, documentID string, reason string) error {
	return s.update(ctx, documentID, bson.M{
		"status":        models.StatusFailed,
		"error_message": reason,
	})
}

func (s *MongoDocumentStore) update(ctx context.Context, id string, fields bson.M) error {
	fields["updated_at"] = time.Now()
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	return err
}

// MongoTopicStore is the MongoDB implementation of TopicStore.
type MongoTopicStore struct {
	collection *mongo.Collection
}

// NewMongoTopicStore creates a MongoTopicStore.
func NewMongoTopicStore(db *mongo.Database, collectionName string) *MongoTopicStore {
	return &MongoTopicStore{collection: db.Collection(collectionName)}
}

// Create inserts a new topic.
func (s *MongoTopicStore) Create(ctx context.Context, topic *models.TopicRecord) error {
	_, err := s.collection.InsertOne(ctx, topic)
	return err
}

// GetByID retrieves a topic by its ID. Returns models.ErrNotFound if the
// topic does not exist.
func (s *MongoTopicStore) GetByID(ctx context.Context, id string) (*models.TopicRecord, error) {
	var topic models.TopicRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&topic)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &topic, nil
}

// GetByUser retrieves all topics of one user, newest first.
func (s *MongoTopicStore) GetByUser(ctx context.Context, userID string) ([]*models.TopicRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var topics []*models.TopicRecord
	if err = cursor.All(ctx, &topics); err != nil {
		return nil, err
	}
	return topics, nil
}

// Delete removes a topic record.
func (s *MongoTopicStore) Delete(ctx context.Context, id string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// DeleteByUser removes every topic record of one user.
func (s *MongoTopicStore) DeleteByUser(ctx context.Context, userID string) error {
	_, err := s.collection.DeleteMany(ctx, bson.M{"user_id": userID})
	return err
}
