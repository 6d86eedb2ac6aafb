package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/castline/castline/internal/domain"
)

// TranscodeHandler routes transcode-completion messages from the
// background video pipeline to the video ingest collaborator.
type TranscodeHandler struct {
	ingestor  domain.VideoIngestor
	libraryID string
}

func NewTranscodeHandler(ingestor domain.VideoIngestor, libraryID string) *TranscodeHandler {
	return &TranscodeHandler{ingestor: ingestor, libraryID: libraryID}
}

// Handle is the handler for the transcode-completion queue.
func (h *TranscodeHandler) Handle(ctx context.Context, body []byte) error {
	var msg domain.TranscodeCompleted
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	if msg.BunnyID == "" || msg.VideoFilePath == "" {
		return fmt.Errorf("%w: missing bunnyId or videoFilePath", domain.ErrMalformedMessage)
	}

	slog.Info("Transcode completed", "bunny_id", msg.BunnyID, "path", msg.VideoFilePath)

	if err := h.ingestor.IngestTranscoded(ctx, h.libraryID, msg.BunnyID, msg.VideoFilePath); err != nil {
		return fmt.Errorf("failed to ingest transcoded video %q: %w", msg.BunnyID, err)
	}
	return nil
}
