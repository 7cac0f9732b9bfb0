package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/energyadvisor/pkg/log"
	"github.com/raterudder/energyadvisor/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore keeps the ledger in Google Cloud Firestore, one document per
// accepted recommendation keyed by its id.
type Firestore struct {
	client     *firestore.Client
	projectID  string
	database   string
	collection string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *Firestore {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")
	collection := lflag.String("firestore-collection", ledgerTable, "Firestore collection holding the ledger")

	f := &Firestore{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database
		f.collection = *collection

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *Firestore) Validate() error {
	// project ID may be empty, it is detected from the environment
	if f.collection == "" {
		return fmt.Errorf("firestore-collection cannot be empty")
	}
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *Firestore) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Load reads every entry ordered by position.
func (f *Firestore) Load(ctx context.Context) ([]types.AcceptedRecommendation, error) {
	iter := f.client.Collection(f.collection).
		OrderBy("position", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var recs []types.AcceptedRecommendation
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, nil
			}
			return nil, fmt.Errorf("error iterating ledger: %w", err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "ledger doc missing json", slog.String("id", doc.Ref.ID), slog.Any("err", err))
			return nil, fmt.Errorf("%w: document %s missing 'json' field", ErrCorrupt, doc.Ref.ID)
		}
		jsonStr, ok := val.(string)
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "ledger doc json not string", slog.String("id", doc.Ref.ID))
			return nil, fmt.Errorf("%w: document %s 'json' field is not a string", ErrCorrupt, doc.Ref.ID)
		}
		rec, err := decodeEntry([]byte(jsonStr))
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal ledger doc", slog.String("id", doc.Ref.ID), slog.Any("err", err))
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Save replaces the collection contents in a transaction. Documents of
// entries no longer in recs are deleted.
func (f *Firestore) Save(ctx context.Context, recs []types.AcceptedRecommendation) error {
	docs := make([]map[string]interface{}, len(recs))
	keep := make(map[string]struct{}, len(recs))
	for i, rec := range recs {
		jsonBytes, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", rec.ID, err)
		}
		docs[i] = map[string]interface{}{
			"json":     string(jsonBytes),
			"position": i,
			"status":   string(rec.Status),
		}
		keep[rec.ID] = struct{}{}
	}

	coll := f.client.Collection(f.collection)
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// all reads have to happen before the first write
		existing, err := tx.Documents(coll).GetAll()
		if err != nil {
			return fmt.Errorf("failed to list ledger docs: %w", err)
		}
		for _, doc := range existing {
			if _, ok := keep[doc.Ref.ID]; ok {
				continue
			}
			if err := tx.Delete(doc.Ref); err != nil {
				return fmt.Errorf("failed to delete %s: %w", doc.Ref.ID, err)
			}
		}
		for i, rec := range recs {
			if err := tx.Set(coll.Doc(rec.ID), docs[i]); err != nil {
				return fmt.Errorf("failed to set %s: %w", rec.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}
