package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
	"github.com/kirillkom/claim-assistant/internal/core/ports"
)

type ProcessBatchUseCase struct {
	repo     ports.BatchRepository
	pipeline *ExtractionPipeline
	catalog  *ReferenceCatalog
}

func NewProcessBatchUseCase(
	repo ports.BatchRepository,
	pipeline *ExtractionPipeline,
	catalog *ReferenceCatalog,
) *ProcessBatchUseCase {
	return &ProcessBatchUseCase{
		repo:     repo,
		pipeline: pipeline,
		catalog:  catalog,
	}
}

// ProcessByID runs the extraction pipeline over a queued batch. Per-file
// failures are part of the saved summary; only infrastructure errors fail
// the batch.
func (uc *ProcessBatchUseCase) ProcessByID(ctx context.Context, batchID string) error {
	if err := uc.markStatus(ctx, batchID, domain.BatchStatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	summary, claimType, err := uc.processPipeline(ctx, batchID)
	if err != nil {
		if failErr := uc.markFailed(ctx, batchID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SaveSummary(ctx, batchID, summary, claimType); err != nil {
		err = fmt.Errorf("save summary: %w", err)
		if failErr := uc.markFailed(ctx, batchID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.markStatus(ctx, batchID, domain.BatchStatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}

	return nil
}

func (uc *ProcessBatchUseCase) processPipeline(ctx context.Context, batchID string) (*domain.ExtractionSummary, domain.ClaimType, error) {
	batch, err := uc.repo.GetByID(ctx, batchID)
	if err != nil {
		return nil, "", fmt.Errorf("fetch batch by id: %w", err)
	}
	if len(batch.Files) == 0 {
		return nil, "", domain.WrapError(domain.ErrInvalidInput, "process batch", errors.New("batch has no files"))
	}

	currencies := uc.catalog.Currencies(ctx)
	summary := uc.pipeline.Run(ctx, batch.Files, currencies)
	if ctx.Err() != nil {
		return nil, "", fmt.Errorf("process batch: %w", ctx.Err())
	}

	var claimType domain.ClaimType
	if len(summary.Receipts) > 0 {
		var eligible domain.EligibleClaimTypes
		if batch.ClientID != "" {
			eligible = domain.MergeClaimTypes(uc.catalog.EligiblePolicies(ctx, batch.ClientID))
		}
		claimType = ClassifyClaim(eligible, summary.Receipts)
	}
	return summary, claimType, nil
}

func (uc *ProcessBatchUseCase) markStatus(ctx context.Context, batchID string, status domain.BatchStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, batchID, status, errMessage)
}

func (uc *ProcessBatchUseCase) markFailed(ctx context.Context, batchID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, batchID, domain.BatchStatusFailed, processErr.Error())
}

// GetBatchUseCase reads batch status for API callers.
type GetBatchUseCase struct {
	repo ports.BatchRepository
}

func NewGetBatchUseCase(repo ports.BatchRepository) *GetBatchUseCase {
	return &GetBatchUseCase{repo: repo}
}

func (uc *GetBatchUseCase) GetByID(ctx context.Context, id string) (*domain.ExtractionBatch, error) {
	batch, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return batch, nil
}
