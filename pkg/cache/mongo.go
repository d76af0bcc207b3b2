package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultMongoDatabase = "komuniti"

type mongoTranslation struct {
	SourceText     string    `bson:"source_text"`
	TargetLang     string    `bson:"target_lang"`
	TranslatedText string    `bson:"translated_text"`
	CreatedAt      time.Time `bson:"created_at,omitempty"`
	UpdatedAt      time.Time `bson:"updated_at,omitempty"`
}

// MongoStore implements Store on a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	strict     bool
	logger     *logrus.Logger
}

// NewMongoStore connects to cfg.DSN and ensures the unique index on the cache collection.
func NewMongoStore(ctx context.Context, cfg Config) (*MongoStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if err := ValidateTableName(cfg.Table); err != nil {
		return nil, err
	}
	if cfg.Database == "" {
		cfg.Database = defaultMongoDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	store := &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Table),
		strict:     cfg.StrictUpsert,
		logger:     cfg.Logger,
	}
	store.ensureIndexes(ctx)

	return store, nil
}

func (m *MongoStore) ensureIndexes(ctx context.Context) {
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "source_text", Value: 1}, {Key: "target_lang", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uq_source_lang"),
	}
	if _, err := m.collection.Indexes().CreateOne(ctx, index); err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"collection": m.collection.Name(),
		}).Warn("Could not create unique index on translation cache; duplicate documents present")
	}
}

func (m *MongoStore) Lookup(ctx context.Context, texts []string, targetLang string) (map[string]string, error) {
	keys := lookupKeys(texts)
	found := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return found, nil
	}

	filter := bson.M{
		"target_lang": targetLang,
		"source_text": bson.M{"$in": keys},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetProjection(bson.M{"source_text": 1, "translated_text": 1})

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query translations: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc mongoTranslation
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode translation: %w", err)
		}
		found[doc.SourceText] = doc.TranslatedText
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read translations: %w", err)
	}

	return found, nil
}

func (m *MongoStore) Upsert(ctx context.Context, records []Record) error {
	records = validRecords(records)
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(records))
	for _, r := range records {
		filter := bson.M{"source_text": r.SourceText, "target_lang": r.TargetLang}
		update := bson.M{
			"$setOnInsert": bson.M{"created_at": now},
			"$set": bson.M{
				"translated_text": r.TranslatedText,
				"updated_at":      now,
			},
		}
		models = append(models, mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true))
	}

	_, err := m.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err == nil {
		return nil
	}
	if m.strict {
		return fmt.Errorf("failed to upsert translations: %w", err)
	}

	m.logger.WithError(err).WithFields(logrus.Fields{
		"collection": m.collection.Name(),
		"records":    len(records),
	}).Warn("Upsert failed, falling back to plain insert")

	docs := make([]interface{}, 0, len(records))
	for _, r := range records {
		docs = append(docs, mongoTranslation{
			SourceText:     r.SourceText,
			TargetLang:     r.TargetLang,
			TranslatedText: r.TranslatedText,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	if _, err := m.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to insert translations: %w", err)
	}
	return nil
}

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
