package upstream

import (
	"strconv"

	"github.com/citegate/citegate/pkg/domain"
)

// Wire types for the Discovery Engine answer API. Field names follow the
// upstream JSON contract.

type createSessionRequest struct {
	UserPseudoID string `json:"user_pseudo_id"`
}

type createSessionResponse struct {
	Name string `json:"name"`
}

type answerRequest struct {
	Query                  queryInput             `json:"query"`
	Session                string                 `json:"session,omitempty"`
	SafetySpec             safetySpec             `json:"safetySpec"`
	RelatedQuestionsSpec   relatedQuestionsSpec   `json:"relatedQuestionsSpec"`
	QueryUnderstandingSpec queryUnderstandingSpec `json:"queryUnderstandingSpec"`
	SearchSpec             searchSpec             `json:"searchSpec"`
	AnswerGenerationSpec   answerGenerationSpec   `json:"answerGenerationSpec"`
	GroundingSpec          groundingSpec          `json:"groundingSpec"`
}

type queryInput struct {
	Text string `json:"text"`
}

type safetySpec struct {
	Enable bool `json:"enable"`
}

type relatedQuestionsSpec struct {
	Enable bool `json:"enable"`
}

type queryUnderstandingSpec struct {
	QueryClassificationSpec queryClassificationSpec `json:"queryClassificationSpec"`
	QueryRephraserSpec      queryRephraserSpec      `json:"queryRephraserSpec"`
}

type queryClassificationSpec struct {
	Types []string `json:"types"`
}

type queryRephraserSpec struct {
	Disable          bool `json:"disable"`
	MaxRephraseSteps int  `json:"maxRephraseSteps"`
}

type searchSpec struct {
	SearchParams searchParams `json:"searchParams"`
}

type searchParams struct {
	MaxReturnResults int `json:"maxReturnResults"`
}

type answerGenerationSpec struct {
	IncludeCitations            bool       `json:"includeCitations"`
	AnswerLanguageCode          string     `json:"answerLanguageCode"`
	ModelSpec                   modelSpec  `json:"modelSpec"`
	PromptSpec                  promptSpec `json:"promptSpec"`
	IgnoreAdversarialQuery      bool       `json:"ignoreAdversarialQuery"`
	IgnoreNonAnswerSeekingQuery bool       `json:"ignoreNonAnswerSeekingQuery"`
}

type modelSpec struct {
	ModelVersion string `json:"modelVersion"`
}

type promptSpec struct {
	Preamble string `json:"preamble"`
}

type groundingSpec struct {
	FilterLowGroundingAnswer bool `json:"filterLowGroundingAnswer"`
}

type answerResponse struct {
	Answer  *wireAnswer  `json:"answer"`
	Session *wireSession `json:"session"`
}

type wireAnswer struct {
	AnswerText       string          `json:"answerText"`
	Citations        []wireCitation  `json:"citations"`
	References       []wireReference `json:"references"`
	RelatedQuestions []string        `json:"relatedQuestions"`
}

type wireCitation struct {
	StartIndex string       `json:"startIndex"`
	EndIndex   string       `json:"endIndex"`
	Sources    []wireSource `json:"sources"`
}

type wireSource struct {
	ReferenceID string `json:"referenceId"`
}

type wireReference struct {
	ChunkInfo wireChunkInfo `json:"chunkInfo"`
}

type wireChunkInfo struct {
	Content          string               `json:"content"`
	RelevanceScore   float64              `json:"relevanceScore"`
	DocumentMetadata wireDocumentMetadata `json:"documentMetadata"`
}

type wireDocumentMetadata struct {
	Document       string `json:"document"`
	URI            string `json:"uri"`
	Title          string `json:"title"`
	PageIdentifier string `json:"pageIdentifier"`
}

// toRawAnswer flattens the upstream citation/reference indirection: each
// citation's first source names a reference by positional ID, and the
// reference's chunk carries the document URI, title, and snippet.
func (r *answerResponse) toRawAnswer() domain.RawAnswer {
	raw := domain.RawAnswer{}
	if r.Session != nil {
		raw.Session = r.Session.Name
	}
	if r.Answer == nil {
		return raw
	}

	raw.Text = r.Answer.AnswerText
	raw.RelatedQuestions = r.Answer.RelatedQuestions
	raw.Citations = make([]domain.Citation, 0, len(r.Answer.Citations))

	for _, wc := range r.Answer.Citations {
		cit := domain.Citation{
			StartIndex: wc.StartIndex,
			EndIndex:   wc.EndIndex,
		}
		if len(wc.Sources) > 0 {
			if idx, err := strconv.Atoi(wc.Sources[0].ReferenceID); err == nil && idx >= 0 && idx < len(r.Answer.References) {
				chunk := r.Answer.References[idx].ChunkInfo
				cit.DocumentRef = chunk.DocumentMetadata.URI
				cit.Title = chunk.DocumentMetadata.Title
				cit.Snippet = chunk.Content
			}
		}
		raw.Citations = append(raw.Citations, cit)
	}
	return raw
}

type wireSession struct {
	Name         string `json:"name"`
	State        string `json:"state,omitempty"`
	UserPseudoID string `json:"userPseudoId,omitempty"`
}
