package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
	"github.com/kirillkom/claim-assistant/internal/core/ports"
)

type SubmitBatchUseCase struct {
	repo    ports.BatchRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewSubmitBatchUseCase(
	repo ports.BatchRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *SubmitBatchUseCase {
	return &SubmitBatchUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

// Submit stores the uploads, records a queued batch and requests extraction.
func (uc *SubmitBatchUseCase) Submit(
	ctx context.Context,
	clientID string,
	uploads []domain.Upload,
) (*domain.ExtractionBatch, error) {
	if len(uploads) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit batch", errors.New("at least one file is required"))
	}

	id := uuid.NewString()
	files := make([]domain.UploadedFile, 0, len(uploads))
	for _, upload := range uploads {
		file, err := storeUpload(ctx, uc.storage, id, upload)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}

	now := time.Now().UTC()
	batch := &domain.ExtractionBatch{
		ID:        id,
		ClientID:  clientID,
		Files:     files,
		Status:    domain.BatchStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := uc.repo.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("create batch metadata: %w", err)
	}

	if err := uc.queue.PublishExtractionRequested(ctx, batch.ID); err != nil {
		return nil, fmt.Errorf("publish extraction request: %w", err)
	}

	return batch, nil
}

// storeUpload saves one upload under a key prefixed with owner.
func storeUpload(ctx context.Context, storage ports.ObjectStorage, owner string, upload domain.Upload) (domain.UploadedFile, error) {
	if upload.Body == nil {
		return domain.UploadedFile{}, domain.WrapError(domain.ErrInvalidInput, "store upload", fmt.Errorf("file %q has no body", upload.Name))
	}
	storageKey := fmt.Sprintf("%s_%s_%s", owner, uuid.NewString()[:8], sanitizeFilename(upload.Name))
	if err := storage.Save(ctx, storageKey, upload.Body); err != nil {
		return domain.UploadedFile{}, fmt.Errorf("save to object storage: %w", err)
	}
	name := filepath.Base(upload.Name)
	if name == "." || name == string(filepath.Separator) {
		name = storageKey
	}
	return domain.UploadedFile{Name: name, Path: storage.Path(storageKey)}, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "_" {
		return "receipt.bin"
	}
	return base
}
