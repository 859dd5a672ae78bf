package store

import (
	"context"
	"log/slog"
	"os"

	"cloud.google.com/go/compute/metadata"
	"cloud.google.com/go/firestore"
	"github.com/abarbosa/fintalk/log"
	"google.golang.org/api/iterator"
)

// Firestore is the production Store backed by Cloud Firestore.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore connects to the project's Firestore database. The
// project ID comes from GOOGLE_CLOUD_PROJECT or, inside GCP, from the
// metadata server.
func NewFirestore(ctx context.Context) (*Firestore, error) {
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		id, err := metadata.ProjectIDWithContext(ctx)
		if err != nil {
			return nil, err
		}
		projectID = id
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &Firestore{client: client}, nil
}

// Close releases the underlying client.
func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) buildQuery(q Query) firestore.Query {
	fq := f.client.Collection(q.Path).Query
	for _, flt := range q.Filters {
		fq = fq.Where(flt.Path, string(flt.Op), flt.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq
}

func (f *Firestore) GetAll(ctx context.Context, q Query) ([]Document, error) {
	snaps, err := f.buildQuery(q).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, toDocument(snap))
	}
	return docs, nil
}

func (f *Firestore) Get(ctx context.Context, collection, docID string) (Document, error) {
	snap, err := f.client.Collection(collection).Doc(docID).Get(ctx)
	if snap != nil && !snap.Exists() {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return toDocument(snap), nil
}

func (f *Firestore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	ref, _, err := f.client.Collection(collection).Add(ctx, translateTimestamps(data))
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

func (f *Firestore) Update(ctx context.Context, collection, docID string, updates []Update) error {
	_, err := f.client.Collection(collection).Doc(docID).Update(ctx, translateUpdates(updates))
	return err
}

// ApplyAll runs every write in one transaction, so a friend accept
// cannot mutate one side's document without the other.
func (f *Firestore) ApplyAll(ctx context.Context, writes []Write) error {
	return f.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		for _, w := range writes {
			ref := f.client.Collection(w.Collection).Doc(w.DocID)
			if err := tx.Update(ref, translateUpdates(w.Updates)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (f *Firestore) Delete(ctx context.Context, collection, docID string) error {
	_, err := f.client.Collection(collection).Doc(docID).Delete(ctx)
	return err
}

func (f *Firestore) Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (CancelFunc, error) {
	subCtx, cancel := context.WithCancel(ctx)
	it := f.buildQuery(q).Snapshots(subCtx)

	go func() {
		defer it.Stop()
		logger := log.LoggerFromContext(ctx)
		for {
			snap, err := it.Next()
			if err != nil {
				if subCtx.Err() == nil {
					logger.Error("snapshot stream failed",
						slog.String("collection", q.Path),
						slog.String("errorMsg", err.Error()),
					)
				}
				return
			}
			docs, err := collectDocs(snap)
			if err != nil {
				logger.Error("reading snapshot documents",
					slog.String("collection", q.Path),
					slog.String("errorMsg", err.Error()),
				)
				continue
			}
			fn(subCtx, docs)
		}
	}()

	return CancelFunc(cancel), nil
}

func collectDocs(snap *firestore.QuerySnapshot) ([]Document, error) {
	var docs []Document
	for {
		docSnap, err := snap.Documents.Next()
		if err == iterator.Done {
			return docs, nil
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, toDocument(docSnap))
	}
}

func toDocument(snap *firestore.DocumentSnapshot) Document {
	return Document{
		ID:         snap.Ref.ID,
		CreateTime: snap.CreateTime,
		Data:       snap.Data(),
	}
}

func translateUpdates(updates []Update) []firestore.Update {
	out := make([]firestore.Update, 0, len(updates))
	for _, u := range updates {
		var value any
		switch u.Kind {
		case UpdateArrayUnion:
			value = firestore.ArrayUnion(elements(u.Value)...)
		case UpdateArrayRemove:
			value = firestore.ArrayRemove(elements(u.Value)...)
		default:
			value = translateValue(u.Value)
		}
		out = append(out, firestore.Update{Path: u.Path, Value: value})
	}
	return out
}

func elements(v any) []any {
	if vs, ok := v.([]any); ok {
		return vs
	}
	return []any{v}
}

func translateTimestamps(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = translateValue(v)
	}
	return out
}

func translateValue(v any) any {
	switch vv := v.(type) {
	case serverTimestamp:
		return firestore.ServerTimestamp
	case map[string]any:
		return translateTimestamps(vv)
	default:
		return v
	}
}
