package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogotex/gogotex/backend/collab-service/internal/document"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	documentsCollection = "documents"
	versionsCollection  = "document_versions"
)

// MongoRepo implements Repository on two collections: "documents" keyed by
// _id and "document_versions" keyed by (documentId, versionNumber).
// Commit and Revert run inside a multi-document transaction (replica set
// required) and are additionally serialized per document in-process.
type MongoRepo struct {
	client   *mongo.Client
	docs     *mongo.Collection
	versions *mongo.Collection
	locks    *keyedMutex
}

func NewMongoRepo(ctx context.Context, db *mongo.Database) (*MongoRepo, error) {
	m := &MongoRepo{
		client:   db.Client(),
		docs:     db.Collection(documentsCollection),
		versions: db.Collection(versionsCollection),
		locks:    newKeyedMutex(),
	}
	// the unique index is the last line of defence against duplicate version numbers
	versionIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "documentId", Value: 1}, {Key: "versionNumber", Value: -1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := m.versions.Indexes().CreateOne(ctx, versionIdx); err != nil {
		return nil, fmt.Errorf("create version index: %w", err)
	}
	docIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner", Value: 1}}},
		{Keys: bson.D{{Key: "collaborators", Value: 1}}},
	}
	if _, err := m.docs.Indexes().CreateMany(ctx, docIdx); err != nil {
		return nil, fmt.Errorf("create document indexes: %w", err)
	}
	return m, nil
}

func (m *MongoRepo) Create(ctx context.Context, d *document.Document) (string, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Collaborators == nil {
		d.Collaborators = []string{}
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.LastModified = now
	if _, err := m.docs.InsertOne(ctx, d); err != nil {
		return "", document.Persistence("create document", err)
	}
	return d.ID, nil
}

func (m *MongoRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	var d document.Document
	if err := m.docs.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrNotFound
		}
		return nil, document.Persistence("get document", err)
	}
	return &d, nil
}

func (m *MongoRepo) ListForUser(ctx context.Context, userID string) ([]*document.Document, error) {
	filter := bson.M{"$or": bson.A{bson.M{"owner": userID}, bson.M{"collaborators": userID}}}
	opts := options.Find().SetSort(bson.D{{Key: "lastModified", Value: -1}})
	cur, err := m.docs.Find(ctx, filter, opts)
	if err != nil {
		return nil, document.Persistence("list documents", err)
	}
	defer cur.Close(ctx)
	out := []*document.Document{}
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, document.Persistence("decode document", err)
		}
		out = append(out, &d)
	}
	if err := cur.Err(); err != nil {
		return nil, document.Persistence("list documents", err)
	}
	return out, nil
}

// Delete removes the document record. Snapshots are immutable and kept.
func (m *MongoRepo) Delete(ctx context.Context, id string) error {
	res, err := m.docs.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return document.Persistence("delete document", err)
	}
	if res.DeletedCount == 0 {
		return document.ErrNotFound
	}
	return nil
}

func (m *MongoRepo) AddCollaborator(ctx context.Context, id, userID string) (*document.Document, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d document.Document
	err := m.docs.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$addToSet": bson.M{"collaborators": userID}}, opts).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrNotFound
		}
		return nil, document.Persistence("add collaborator", err)
	}
	return &d, nil
}

func (m *MongoRepo) Commit(ctx context.Context, docID, content, author string) (int, error) {
	unlock := m.locks.Lock(docID)
	defer unlock()

	sess, err := m.client.StartSession()
	if err != nil {
		return 0, document.Persistence("start session", err)
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		now := time.Now().UTC()
		upd, err := m.docs.UpdateOne(sc, bson.M{"_id": docID}, bson.M{"$set": bson.M{"content": content, "lastModified": now}})
		if err != nil {
			return nil, err
		}
		if upd.MatchedCount == 0 {
			return nil, document.ErrNotFound
		}
		latest, err := m.latestVersion(sc, docID)
		if err != nil {
			return nil, err
		}
		snap := &document.Snapshot{
			ID:            uuid.NewString(),
			DocumentID:    docID,
			VersionNumber: latest + 1,
			Content:       content,
			SavedBy:       author,
			SavedAt:       now,
		}
		if _, err := m.versions.InsertOne(sc, snap); err != nil {
			return nil, err
		}
		return snap.VersionNumber, nil
	})
	if err != nil {
		return 0, document.Persistence("commit", err)
	}
	return res.(int), nil
}

func (m *MongoRepo) latestVersion(ctx context.Context, docID string) (int, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "versionNumber", Value: -1}}).
		SetProjection(bson.M{"versionNumber": 1})
	var snap document.Snapshot
	if err := m.versions.FindOne(ctx, bson.M{"documentId": docID}, opts).Decode(&snap); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, err
	}
	return snap.VersionNumber, nil
}

func (m *MongoRepo) ListVersions(ctx context.Context, docID string, limit int) ([]*document.Snapshot, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "versionNumber", Value: -1}}).
		SetLimit(int64(clampLimit(limit)))
	cur, err := m.versions.Find(ctx, bson.M{"documentId": docID}, opts)
	if err != nil {
		return nil, document.Persistence("list versions", err)
	}
	out := []*document.Snapshot{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, document.Persistence("list versions", err)
	}
	return out, nil
}

func (m *MongoRepo) GetVersion(ctx context.Context, docID string, version int) (*document.Snapshot, error) {
	var snap document.Snapshot
	err := m.versions.FindOne(ctx, bson.M{"documentId": docID, "versionNumber": version}).Decode(&snap)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrVersionNotFound
		}
		return nil, document.Persistence("get version", err)
	}
	return &snap, nil
}

// Revert overwrites the current content with a snapshot's content. It does not
// append a snapshot.
func (m *MongoRepo) Revert(ctx context.Context, docID string, version int) (*document.Document, *document.Snapshot, error) {
	unlock := m.locks.Lock(docID)
	defer unlock()

	snap, err := m.GetVersion(ctx, docID, version)
	if err != nil {
		return nil, nil, err
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	set := bson.M{"$set": bson.M{"content": snap.Content, "lastModified": time.Now().UTC()}}
	var d document.Document
	if err := m.docs.FindOneAndUpdate(ctx, bson.M{"_id": docID}, set, opts).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil, document.ErrNotFound
		}
		return nil, nil, document.Persistence("revert", err)
	}
	return &d, snap, nil
}
