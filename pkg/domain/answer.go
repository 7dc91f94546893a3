package domain

// SessionRef identifies an upstream conversation session. An empty Name means
// "create a new session for this user". The upstream engine owns the session;
// the gateway never persists it.
type SessionRef struct {
	Name         string `json:"name,omitempty"`
	UserPseudoID string `json:"userPseudoId,omitempty"`
}

// Query is the validated inbound request body.
type Query struct {
	Prompt       string     `json:"prompt"`
	Query        string     `json:"query"`
	Session      SessionRef `json:"session"`
	LanguageCode string     `json:"languageCode,omitempty"`
}

// Citation is a source reference inside a raw upstream answer. DocumentRef is
// an object storage URI (gs://bucket/object); the remaining fields pass
// through to the client untouched.
type Citation struct {
	DocumentRef string `json:"documentRef"`
	Title       string `json:"title,omitempty"`
	Snippet     string `json:"snippet,omitempty"`
	StartIndex  string `json:"startIndex,omitempty"`
	EndIndex    string `json:"endIndex,omitempty"`
}

// RawAnswer is the upstream answer payload. The gateway treats it as opaque
// except for the citation list, which is walked for enrichment.
type RawAnswer struct {
	Text             string     `json:"text"`
	Citations        []Citation `json:"citations"`
	RelatedQuestions []string   `json:"relatedQuestions,omitempty"`
	Session          string     `json:"session,omitempty"`
}

// EnrichmentStatus records the outcome of a single citation metadata lookup.
type EnrichmentStatus string

const (
	// EnrichmentOK means metadata was fetched and attached.
	EnrichmentOK EnrichmentStatus = "ok"
	// EnrichmentUnavailable means the lookup failed (not found, denied, or
	// transient failure after retries); metadata is absent.
	EnrichmentUnavailable EnrichmentStatus = "unavailable"
	// EnrichmentSkipped means the document reference could not be parsed
	// into a storage location; no lookup was attempted.
	EnrichmentSkipped EnrichmentStatus = "skipped"
)

// ObjectMetadata describes a storage object at lookup time. It is resolved
// fresh for every request and never cached across requests.
type ObjectMetadata struct {
	ContentType  string            `json:"contentType,omitempty"`
	Size         int64             `json:"size,omitempty"`
	UpdateTime   string            `json:"updateTime,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
}

// EnrichedCitation is a Citation plus its lookup status and, when the lookup
// succeeded, the object metadata.
type EnrichedCitation struct {
	Citation
	Status   EnrichmentStatus `json:"status"`
	Metadata *ObjectMetadata  `json:"metadata,omitempty"`
}

// EnrichedAnswer is the client-visible answer: the raw answer text with its
// citations enriched. Citation order matches the raw answer exactly.
type EnrichedAnswer struct {
	Text             string             `json:"answer"`
	Citations        []EnrichedCitation `json:"citations"`
	RelatedQuestions []string           `json:"relatedQuestions,omitempty"`
	Session          string             `json:"session,omitempty"`
}
