package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
	"github.com/kirillkom/claim-assistant/internal/core/ports"
)

// ExtractionPipeline analyzes many receipt files concurrently and aggregates
// their normalized receipts.
type ExtractionPipeline struct {
	analyzer      ports.DocumentAnalyzer
	observer      ports.PipelineObserver
	minConfidence float64
}

func NewExtractionPipeline(analyzer ports.DocumentAnalyzer, observer ports.PipelineObserver, minConfidence float64) *ExtractionPipeline {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &ExtractionPipeline{
		analyzer:      analyzer,
		observer:      observer,
		minConfidence: minConfidence,
	}
}

// Extract analyzes a single file. Failures are reported in the result, never
// returned as errors.
func (p *ExtractionPipeline) Extract(ctx context.Context, file domain.UploadedFile) domain.ExtractionResult {
	doc, err := p.analyzer.Analyze(ctx, file.Path)
	if err != nil {
		return domain.FailedExtraction(file.Name, file.Path, classifyExtractionFailure(ctx, err), err)
	}
	return domain.ExtractionResult{
		FileName: file.Name,
		FilePath: file.Path,
		Success:  true,
		Fields:   doc.Fields,
		Markdown: doc.Markdown,
		Summary:  RenderExtractionSummary(file.Name, doc.Fields),
	}
}

func classifyExtractionFailure(ctx context.Context, err error) domain.FailureKind {
	switch {
	case domain.IsKind(err, domain.ErrAnalyzerTimeout):
		return domain.FailureTimeout
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		return domain.FailureCancelled
	case domain.IsKind(err, domain.ErrNotFound):
		return domain.FailureNotFound
	case domain.IsKind(err, domain.ErrUnsupportedDocument):
		return domain.FailureUnsupported
	default:
		return domain.FailureAnalyzer
	}
}

// ExtractionJob is a running pipeline. Each file can be cancelled on its own
// without affecting its siblings.
type ExtractionJob struct {
	cancels []context.CancelFunc
	done    chan struct{}
	summary *domain.ExtractionSummary
}

// CancelFile cancels the file at index. Out-of-range indexes are ignored.
func (j *ExtractionJob) CancelFile(index int) {
	if index < 0 || index >= len(j.cancels) {
		return
	}
	j.cancels[index]()
}

// Wait blocks until every file has finished and returns the aggregate.
func (j *ExtractionJob) Wait() *domain.ExtractionSummary {
	<-j.done
	return j.summary
}

// Start launches one task per file with no concurrency cap.
func (p *ExtractionPipeline) Start(ctx context.Context, files []domain.UploadedFile, currencies []domain.Currency) *ExtractionJob {
	job := &ExtractionJob{
		cancels: make([]context.CancelFunc, len(files)),
		done:    make(chan struct{}),
	}
	results := make([]domain.ExtractionResult, len(files))

	var mu sync.Mutex
	receipts := make([]domain.Receipt, 0, len(files))

	var group errgroup.Group
	for i, file := range files {
		fileCtx, cancel := context.WithCancel(ctx)
		job.cancels[i] = cancel
		group.Go(func() error {
			defer cancel()
			result, receipt, ok := p.processFile(fileCtx, i+1, file, currencies)
			results[i] = result
			if ok {
				mu.Lock()
				receipts = append(receipts, receipt)
				mu.Unlock()
			}
			// Failures stay in the result so siblings keep running.
			return nil
		})
	}

	go func() {
		_ = group.Wait()
		job.summary = summarizeExtraction(results, receipts)
		close(job.done)
	}()
	return job
}

// Run processes every file and waits for all of them.
func (p *ExtractionPipeline) Run(ctx context.Context, files []domain.UploadedFile, currencies []domain.Currency) *domain.ExtractionSummary {
	return p.Start(ctx, files, currencies).Wait()
}

func (p *ExtractionPipeline) processFile(ctx context.Context, index int, file domain.UploadedFile, currencies []domain.Currency) (domain.ExtractionResult, domain.Receipt, bool) {
	start := time.Now()
	if p.observer != nil {
		p.observer.StartFile()
	}

	result := p.Extract(ctx, file)
	var receipt domain.Receipt
	if result.Success {
		normalized, err := NormalizeReceipt(index, result, currencies, p.minConfidence)
		if err != nil {
			result = domain.FailedExtraction(file.Name, file.Path, domain.FailureNormalization, err)
		} else {
			receipt = normalized
		}
	}

	outcome := "success"
	if !result.Success {
		outcome = string(result.FailureKind)
		slog.Warn("extraction_file_failed",
			"file", file.Name,
			"failure_kind", result.FailureKind,
			"error", result.Error,
		)
	}
	if p.observer != nil {
		p.observer.FinishFile(outcome, time.Since(start))
	}
	return result, receipt, result.Success
}

func summarizeExtraction(results []domain.ExtractionResult, receipts []domain.Receipt) *domain.ExtractionSummary {
	summary := &domain.ExtractionSummary{
		Results:     results,
		Receipts:    receipts,
		FinalAmount: decimal.Zero,
	}
	for _, result := range results {
		if result.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	for _, receipt := range receipts {
		summary.FinalAmount = summary.FinalAmount.Add(receipt.Amount)
	}
	summary.Report = RenderBatchReport(summary)
	return summary
}
