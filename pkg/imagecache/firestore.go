package imagecache

import (
	"context"
	"encoding/base64"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore-backed store.
type FirestoreConfig struct {
	ProjectID      string
	CollectionName string
}

// Firestore documents cap at 1 MiB; leave headroom for field overhead.
const maxFirestoreImageBytes = 1<<20 - 4096

// imageDocument is the Firestore representation of a cached image.
type imageDocument struct {
	Data []byte `firestore:"data"`
}

// FirestoreStore is a Store backed by a Firestore collection. It suits small
// images (thumbnails) in low-volume deployments; use Redis where volume or
// image size grows.
type FirestoreStore struct {
	client         *firestore.Client
	collectionName string
	logger         zerolog.Logger
}

// NewFirestoreStore creates a new FirestoreStore around an injected client.
func NewFirestoreStore(
	cfg *FirestoreConfig,
	client *firestore.Client,
	logger zerolog.Logger,
) (*FirestoreStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}

	logger.Info().Str("project_id", cfg.ProjectID).Str("collection", cfg.CollectionName).
		Msg("FirestoreStore initialized.")

	return &FirestoreStore{
		client:         client,
		collectionName: cfg.CollectionName,
		logger:         logger.With().Str("component", "FirestoreStore").Logger(),
	}, nil
}

// Fetch retrieves the image bytes stored for key. A NotFound status maps to
// ErrNotFound.
func (s *FirestoreStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	docRef := s.client.Collection(s.collectionName).Doc(docID(key))
	docSnap, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("key %q: %w", key, ErrNotFound)
		}
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to get document from Firestore.")
		return nil, fmt.Errorf("firestore get for %s: %w", key, err)
	}

	var doc imageDocument
	if err := docSnap.DataTo(&doc); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to map Firestore document data.")
		return nil, fmt.Errorf("firestore DataTo for %s: %w", key, err)
	}

	s.logger.Debug().Str("key", key).Msg("Firestore cache hit.")
	return doc.Data, nil
}

// Write stores the image bytes for key. Images over the document size cap are
// rejected rather than truncated.
func (s *FirestoreStore) Write(ctx context.Context, key string, data []byte) error {
	if len(data) > maxFirestoreImageBytes {
		return fmt.Errorf("image for %s is %d bytes, over the firestore document limit", key, len(data))
	}

	_, err := s.client.Collection(s.collectionName).Doc(docID(key)).Set(ctx, imageDocument{Data: data})
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to write document to Firestore.")
		return fmt.Errorf("firestore set for %s: %w", key, err)
	}
	s.logger.Debug().Str("key", key).Msg("Successfully wrote image bytes to Firestore.")
	return nil
}

// Close is a no-op as the Firestore client's lifecycle is managed externally.
func (s *FirestoreStore) Close() error {
	s.logger.Info().Msg("FirestoreStore does not close the injected Firestore client.")
	return nil
}

// docID encodes an identifier as a Firestore document ID. Identifiers are
// URLs and contain slashes, which document IDs do not allow.
func docID(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}
