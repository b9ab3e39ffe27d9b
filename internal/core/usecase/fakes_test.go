package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
)

func floatPtr(v float64) *float64 { return &v }

func stringField(value string, confidence float64) domain.ExtractedField {
	return domain.ExtractedField{Type: "string", ValueString: value, Content: value, Confidence: floatPtr(confidence)}
}

func numberField(value float64, confidence float64) domain.ExtractedField {
	return domain.ExtractedField{Type: "number", ValueNumber: floatPtr(value), Content: fmt.Sprint(value), Confidence: floatPtr(confidence)}
}

// analyzerFake returns canned documents keyed by file path.
type analyzerFake struct {
	mu     sync.Mutex
	docs   map[string]*domain.AnalyzedDocument
	errs   map[string]error
	delays map[string]time.Duration
	calls  []string
}

func (f *analyzerFake) Analyze(ctx context.Context, filePath string) (*domain.AnalyzedDocument, error) {
	f.mu.Lock()
	f.calls = append(f.calls, filePath)
	key := filePath
	if _, ok := f.docs[key]; !ok {
		// Stored uploads get a generated prefix; match on the original name.
		for candidate := range f.docs {
			if strings.HasSuffix(filePath, "_"+candidate) {
				key = candidate
				break
			}
		}
	}
	delay := f.delays[key]
	doc := f.docs[key]
	err := f.errs[key]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, domain.WrapError(domain.ErrNotFound, "analyze", fmt.Errorf("file %s", filePath))
	}
	return doc, nil
}

func receiptDoc(number, date, hospital, currency string, amount float64) *domain.AnalyzedDocument {
	fields := map[string]domain.ExtractedField{
		domain.FieldReceiptNumber: stringField(number, 0.95),
		domain.FieldReceiptDate:   stringField(date, 0.9),
		domain.FieldBillAmount:    numberField(amount, 0.9),
	}
	if hospital != "" {
		fields[domain.FieldHospital] = stringField(hospital, 0.9)
	}
	if currency != "" {
		fields[domain.FieldCurrency] = stringField(currency, 0.9)
	}
	return &domain.AnalyzedDocument{Markdown: "receipt " + number, Fields: fields}
}

type backendFake struct {
	mu          sync.Mutex
	policies    []domain.EligiblePolicy
	currencies  []domain.Currency
	documents   map[domain.ClaimType][]domain.RequiredDocument
	methods     map[string][]domain.PayoutMethod
	lookupErr   error
	submitErr   error
	submissions []domain.ClaimSubmission
}

func (f *backendFake) EligiblePolicies(context.Context, string) ([]domain.EligiblePolicy, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.policies, nil
}

func (f *backendFake) Currencies(context.Context) ([]domain.Currency, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.currencies, nil
}

func (f *backendFake) RequiredDocuments(_ context.Context, claimType domain.ClaimType) ([]domain.RequiredDocument, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.documents[claimType], nil
}

func (f *backendFake) PayoutMethods(_ context.Context, policyID string) ([]domain.PayoutMethod, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.methods[policyID], nil
}

func (f *backendFake) SubmitClaim(_ context.Context, submission domain.ClaimSubmission) (*domain.SubmissionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submissions = append(f.submissions, submission)
	return &domain.SubmissionResult{ClaimID: fmt.Sprintf("CLM-%d", len(f.submissions)), Status: "SUBMITTED"}, nil
}

func c111Backend() *backendFake {
	return &backendFake{
		policies: []domain.EligiblePolicy{{
			Policy: domain.Policy{
				ID:           "P-100",
				Name:         "Health Plus",
				LivesAssured: []domain.Person{{ID: "LA-1", Name: "Tan Ah Kow"}},
				Owner:        domain.Person{ID: "C111", Name: "Tan Ah Kow"},
			},
			Category:   "HEALTH",
			ClaimTypes: domain.EligibleClaimTypes{domain.ClaimTypeHospitalisation},
		}},
		currencies: []domain.Currency{{Code: "SGD", Name: "Singapore Dollar", Symbol: "$"}},
		documents: map[domain.ClaimType][]domain.RequiredDocument{
			domain.ClaimTypeHospitalisation: {
				{Code: "RECEIPT", Category: "BILL", Required: true},
				{Code: "DISCHARGE_SUMMARY", Category: "MEDICAL", Required: true},
			},
		},
		methods: map[string][]domain.PayoutMethod{
			"P-100": {{ID: "PM-1", Mode: "BANK_TRANSFER", Currency: domain.Currency{Code: "SGD"}, Account: domain.BankAccount{Name: "DBS", AccountNo: "123"}}},
		},
	}
}

type templatesFake struct {
	templates map[domain.ClaimType]map[string]any
}

func (f *templatesFake) Template(_ context.Context, claimType domain.ClaimType) (map[string]any, error) {
	template, ok := f.templates[claimType]
	if !ok {
		return nil, domain.WrapError(domain.ErrSchemaNotFound, "template", fmt.Errorf("claim type %s", claimType))
	}
	return template, nil
}

func hospitalisationTemplates() *templatesFake {
	return &templatesFake{templates: map[domain.ClaimType]map[string]any{
		domain.ClaimTypeHospitalisation: {
			"policyNumber":   "",
			"lifeAssured":    "",
			"currency":       "",
			"currencyName":   "",
			"receiptNumber":  "",
			"receiptDate":    "",
			"hospitalName":   "",
			"admissionDate":  "",
			"dischargeDate":  "",
			"claimAmount":    0.0,
			"totalAmount":    0.0,
			"diagnosis":      "",
			"otherInsurance": map[string]any{"claimed": false},
		},
		domain.ClaimTypeOutpatient: {
			"policyNumber": "",
			"totalAmount":  0.0,
		},
	}}
}

type storageFake struct {
	mu    sync.Mutex
	saved map[string]string
	err   error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[key] = string(raw)
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.saved[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *storageFake) Path(key string) string { return "/data/" + key }

type sessionStoreFake struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func newSessionStoreFake() *sessionStoreFake {
	return &sessionStoreFake{sessions: map[string]*domain.Session{}}
}

func (f *sessionStoreFake) Put(session *domain.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.ID] = session
}

func (f *sessionStoreFake) Get(id string) (*domain.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	return session, ok
}

func (f *sessionStoreFake) Delete(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
}

type eventsFake struct {
	events []domain.ClaimSubmittedEvent
	err    error
}

func (f *eventsFake) PublishClaimSubmitted(_ context.Context, event domain.ClaimSubmittedEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type pipelineObserverFake struct {
	mu       sync.Mutex
	started  int
	outcomes []string
}

func (f *pipelineObserverFake) StartFile() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *pipelineObserverFake) FinishFile(outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}

type runObserverFake struct {
	polls     int
	toolCalls map[string]string
	settled   []domain.RunStatus
}

func (f *runObserverFake) RecordPoll() { f.polls++ }

func (f *runObserverFake) RecordToolCall(tool, outcome string) {
	if f.toolCalls == nil {
		f.toolCalls = map[string]string{}
	}
	f.toolCalls[tool] = outcome
}

func (f *runObserverFake) RecordRunSettled(status domain.RunStatus, _ time.Duration) {
	f.settled = append(f.settled, status)
}

// assistantFake replays a scripted sequence of run states, one per GetRun.
type assistantFake struct {
	threadID     string
	script       []domain.Run
	afterSubmit  domain.RunStatus
	finalMessage string
	getErr       error

	createdThreads int
	messages       []string
	startedRuns    int
	polls          int
	submissions    [][]domain.ToolOutput
	pollsAtSubmit  []int
}

func (f *assistantFake) CreateThread(context.Context) (string, error) {
	f.createdThreads++
	if f.threadID == "" {
		f.threadID = "thread_1"
	}
	return f.threadID, nil
}

func (f *assistantFake) AppendMessage(_ context.Context, threadID, role, content string) error {
	if threadID == "" || role != "user" {
		return errors.New("bad message")
	}
	f.messages = append(f.messages, content)
	return nil
}

func (f *assistantFake) StartRun(_ context.Context, threadID string) (*domain.Run, error) {
	f.startedRuns++
	return &domain.Run{ID: "run_1", ThreadID: threadID, Status: domain.RunStatusQueued}, nil
}

func (f *assistantFake) GetRun(_ context.Context, threadID, runID string) (*domain.Run, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	idx := f.polls
	f.polls++
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	run := f.script[idx]
	run.ID = runID
	run.ThreadID = threadID
	return &run, nil
}

func (f *assistantFake) SubmitToolOutputs(_ context.Context, threadID, runID string, outputs []domain.ToolOutput) (*domain.Run, error) {
	f.submissions = append(f.submissions, outputs)
	f.pollsAtSubmit = append(f.pollsAtSubmit, f.polls)
	status := f.afterSubmit
	if status == "" {
		status = domain.RunStatusQueued
	}
	return &domain.Run{ID: runID, ThreadID: threadID, Status: status}, nil
}

func (f *assistantFake) LatestAssistantMessage(context.Context, string) (string, error) {
	return f.finalMessage, nil
}
