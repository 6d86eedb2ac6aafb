package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/castline/castline/internal/domain"
)

// IngestedQueue carries finalized-transcode notifications to the video
// service, which owns the upload client and the video records.
const IngestedQueue = "video.ingest.completed"

// PipelineNotifier implements domain.VideoIngestor by handing the
// completion over the broker to the external video service.
type PipelineNotifier struct {
	publisher domain.EventPublisher
}

func NewPipelineNotifier(publisher domain.EventPublisher) *PipelineNotifier {
	return &PipelineNotifier{publisher: publisher}
}

func (n *PipelineNotifier) IngestTranscoded(ctx context.Context, libraryID, bunnyID, videoFilePath string) error {
	body, err := json.Marshal(map[string]string{
		"libraryId":     libraryID,
		"bunnyId":       bunnyID,
		"videoFilePath": videoFilePath,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal ingest notification: %w", err)
	}

	if err := n.publisher.Publish(ctx, IngestedQueue, body); err != nil {
		return fmt.Errorf("failed to notify video service: %w", err)
	}
	return nil
}
