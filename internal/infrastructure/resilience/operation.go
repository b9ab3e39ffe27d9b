package resilience

import "strings"

// Kind says how an outbound claim call may be repeated.
type Kind string

const (
	// KindLookup is an idempotent read such as eligible policies, currencies,
	// checklists, run status or thread messages. Retried and breaker-guarded.
	KindLookup Kind = "lookup"
	// KindSubmission creates remote state: a claim, a thread, a run or tool
	// outputs. It runs once; failures still count toward its breaker.
	KindSubmission Kind = "submission"
	// KindAnalysis is a document analyzer call. It runs once outside any
	// breaker so a failure stays with its file.
	KindAnalysis Kind = "analysis"
	// KindPublish hands a message to the broker. Retried and breaker-guarded.
	KindPublish Kind = "publish"
)

type kindPolicy struct {
	retry   bool
	breaker bool
}

var kindPolicies = map[Kind]kindPolicy{
	KindLookup:     {retry: true, breaker: true},
	KindSubmission: {retry: false, breaker: true},
	KindAnalysis:   {retry: false, breaker: false},
	KindPublish:    {retry: true, breaker: true},
}

// Operation names one outbound call of the claim flow. Each operation has
// its own breaker.
type Operation struct {
	Service string
	Name    string
	Kind    Kind
}

func Lookup(service, name string) Operation {
	return Operation{Service: service, Name: name, Kind: KindLookup}
}

func Submission(service, name string) Operation {
	return Operation{Service: service, Name: name, Kind: KindSubmission}
}

func Analysis(service, name string) Operation {
	return Operation{Service: service, Name: name, Kind: KindAnalysis}
}

func Publish(service, name string) Operation {
	return Operation{Service: service, Name: name, Kind: KindPublish}
}

func (o Operation) String() string {
	if o.Service == "" {
		return o.Name
	}
	return o.Service + "." + o.Name
}

// Retried reports whether failed attempts of the operation may be repeated.
func (o Operation) Retried() bool {
	return o.policy().retry
}

// Unknown kinds get the strictest handling: one attempt, breaker-guarded.
func (o Operation) policy() kindPolicy {
	if policy, ok := kindPolicies[o.Kind]; ok {
		return policy
	}
	return kindPolicy{retry: false, breaker: true}
}

func (o Operation) normalize() Operation {
	o.Service = strings.TrimSpace(o.Service)
	o.Name = strings.TrimSpace(o.Name)
	if o.Name == "" {
		o.Name = "unknown"
	}
	return o
}
