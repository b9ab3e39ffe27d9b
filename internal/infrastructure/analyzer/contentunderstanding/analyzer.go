package contentunderstanding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
	"github.com/kirillkom/claim-assistant/internal/infrastructure/httpclient"
	"github.com/kirillkom/claim-assistant/internal/infrastructure/resilience"
)

const (
	defaultAPIVersion   = "2024-12-01-preview"
	defaultPollInterval = time.Second
	defaultPollTimeout  = 60 * time.Second
	defaultMaxFileBytes = 20 << 20
	service             = "content_understanding"
)

var (
	opAnalyze = resilience.Analysis(service, "analyze")
	opPoll    = resilience.Analysis(service, "poll")
)

var supportedMIMETypes = []string{
	"application/pdf",
	"image/jpeg",
	"image/png",
	"image/tiff",
	"image/bmp",
	"image/heif",
}

type Config struct {
	Endpoint        string
	APIVersion      string
	SubscriptionKey string
	AnalyzerID      string
	PollInterval    time.Duration
	PollTimeout     time.Duration
	MaxFileBytes    int64
}

// Analyzer submits receipts to a content understanding analyzer and polls for
// the typed fields. Both calls are analysis operations and run once.
type Analyzer struct {
	cfg    Config
	client *httpclient.Client
}

func New(cfg Config, executor *resilience.Executor) *Analyzer {
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = defaultMaxFileBytes
	}
	return &Analyzer{
		cfg: cfg,
		client: httpclient.New(service, cfg.Endpoint, httpclient.Options{
			Headers: map[string]string{
				"Ocp-Apim-Subscription-Key": cfg.SubscriptionKey,
				"x-ms-useragent":            "claim-assistant",
			},
			Executor: executor,
		}),
	}
}

type operationStatus struct {
	Status string `json:"status"`
	Result struct {
		Contents []domain.AnalyzedDocument `json:"contents"`
	} `json:"result"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (a *Analyzer) Analyze(ctx context.Context, filePath string) (*domain.AnalyzedDocument, error) {
	data, err := a.preflight(filePath)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Upload(
		ctx,
		"/contentunderstanding/analyzers/"+url.PathEscape(a.cfg.AnalyzerID)+":analyze",
		url.Values{"api-version": {a.cfg.APIVersion}},
		"application/octet-stream",
		data,
		nil,
		opAnalyze,
	)
	if err != nil {
		return nil, err
	}
	location := resp.Header.Get("Operation-Location")
	if location == "" {
		return nil, fmt.Errorf("content understanding analyze: response has no Operation-Location header")
	}

	return a.poll(ctx, location, filePath)
}

func (a *Analyzer) poll(ctx context.Context, location, filePath string) (*domain.AnalyzedDocument, error) {
	pollCtx, cancel := context.WithTimeout(ctx, a.cfg.PollTimeout)
	defer cancel()

	started := time.Now()
	for {
		var status operationStatus
		_, err := a.client.Do(pollCtx, http.MethodGet, location, nil, nil, &status, opPoll)
		if err != nil {
			return nil, a.pollError(ctx, pollCtx, err)
		}

		switch strings.ToLower(status.Status) {
		case "succeeded":
			slog.Debug("analyzer_succeeded", "file", filePath, "elapsed_ms", time.Since(started).Milliseconds())
			if len(status.Result.Contents) == 0 {
				return nil, fmt.Errorf("content understanding poll: result has no contents")
			}
			doc := status.Result.Contents[0]
			if doc.Fields == nil {
				doc.Fields = map[string]domain.ExtractedField{}
			}
			return &doc, nil
		case "failed":
			msg := "analysis failed"
			if status.Error != nil && status.Error.Message != "" {
				msg = status.Error.Message
			}
			return nil, fmt.Errorf("content understanding poll: %s", msg)
		case "running", "notstarted":
		default:
			return nil, fmt.Errorf("content understanding poll: unexpected status %q", status.Status)
		}

		timer := time.NewTimer(a.cfg.PollInterval)
		select {
		case <-pollCtx.Done():
			timer.Stop()
			return nil, a.pollError(ctx, pollCtx, pollCtx.Err())
		case <-timer.C:
		}
	}
}

func (a *Analyzer) pollError(parent, pollCtx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(pollCtx.Err(), context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrAnalyzerTimeout, "content understanding poll", fmt.Errorf("no result after %s", a.cfg.PollTimeout))
	}
	return err
}

// preflight rejects files the analyzer cannot read before any network call.
func (a *Analyzer) preflight(filePath string) ([]byte, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrNotFound, "analyze", err)
		}
		return nil, fmt.Errorf("stat %s: %w", filePath, err)
	}
	if info.IsDir() {
		return nil, domain.WrapError(domain.ErrUnsupportedDocument, "analyze", fmt.Errorf("%s is a directory", filePath))
	}
	if info.Size() == 0 || info.Size() > a.cfg.MaxFileBytes {
		return nil, domain.WrapError(domain.ErrUnsupportedDocument, "analyze", fmt.Errorf("%s has size %d", filePath, info.Size()))
	}

	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("detect file type: %w", err)
	}
	if !mimetype.EqualsAny(mtype.String(), supportedMIMETypes...) {
		return nil, domain.WrapError(domain.ErrUnsupportedDocument, "analyze", fmt.Errorf("%s is %s", filePath, mtype.String()))
	}
	if mtype.Is("application/pdf") {
		if err := checkPDF(filePath); err != nil {
			return nil, domain.WrapError(domain.ErrUnsupportedDocument, "analyze", err)
		}
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filePath, err)
	}
	return data, nil
}

func checkPDF(filePath string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	if reader.NumPage() == 0 {
		return fmt.Errorf("pdf has no pages")
	}
	return nil
}
