// Package loadevents publishes image load completions to downstream systems.
// The notifier satisfies the controller's Delegate contract, so hosts can use
// it directly or chain it after their own delegate.
package loadevents

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-imageload/pkg/imageload"
)

// LoadEvent is the payload published when a controller finishes loading an
// image.
type LoadEvent struct {
	Identifier string    `json:"identifier"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	LoadedAt   time.Time `json:"loadedAt"`
}

// PubsubNotifier publishes a LoadEvent to a Pub/Sub topic for every image the
// controller loads. Publishing is fire-and-forget; results are logged
// asynchronously so the presentation executor is never blocked.
type PubsubNotifier struct {
	topic  *pubsub.Topic
	logger zerolog.Logger
}

// NewPubsubNotifier creates a notifier for topicID. It accepts a context to
// verify that the target topic exists before returning.
func NewPubsubNotifier(
	ctx context.Context,
	client *pubsub.Client,
	topicID string,
	logger zerolog.Logger,
) (*PubsubNotifier, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	topic := client.Topic(topicID)

	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", topicID)
	}

	return &PubsubNotifier{
		topic:  topic,
		logger: logger.With().Str("component", "PubsubNotifier").Str("topic_id", topicID).Logger(),
	}, nil
}

// OnImageLoaded publishes a LoadEvent for the controller's current identifier.
// It returns immediately after queueing the message.
func (n *PubsubNotifier) OnImageLoaded(ctrl *imageload.Controller, img image.Image) {
	event := LoadEvent{
		Identifier: ctrl.Identifier(),
		LoadedAt:   time.Now().UTC(),
	}
	if img != nil {
		bounds := img.Bounds()
		event.Width = bounds.Dx()
		event.Height = bounds.Dy()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Error().Err(err).Msg("Failed to marshal load event.")
		return
	}

	result := n.topic.Publish(context.Background(), &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"identifier": event.Identifier},
	})

	// Asynchronously check the result to log any publish errors without
	// blocking the caller.
	go func() {
		getCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		msgID, err := result.Get(getCtx)
		if err != nil {
			n.logger.Error().Err(err).Msg("Failed to publish load event.")
			return
		}
		n.logger.Debug().Str("published_msg_id", msgID).Msg("Load event sent successfully.")
	}()
}

// Stop flushes any pending messages for the topic, respecting the context's
// timeout.
func (n *PubsubNotifier) Stop(ctx context.Context) error {
	if n.topic == nil {
		return nil
	}

	// topic.Stop() is blocking, so we wrap it to respect the context timeout.
	stopDone := make(chan struct{})
	go func() {
		n.topic.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		return nil
	case <-ctx.Done():
		n.logger.Warn().Err(ctx.Err()).Msg("Timeout waiting for pending load events to flush.")
		return ctx.Err()
	}
}
