package domain

// SearchFilter scopes a vector query. Zero values mean "no constraint".
type SearchFilter struct {
	LegislationType string
	MinYear         int
}

func (f SearchFilter) IsZero() bool {
	return f.LegislationType == "" && f.MinYear <= 0
}

type RetrievalCandidate struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// EvidenceSet is ordered by descending score and unique by chunk id.
type EvidenceSet []RetrievalCandidate

func (e EvidenceSet) BestScore() float64 {
	if len(e) == 0 {
		return 0
	}
	return e[0].Score
}

type AnswerMode string

const (
	ModeGrounded AnswerMode = "grounded"
	ModeFallback AnswerMode = "fallback"
	ModeDocument AnswerMode = "document"
	ModeRejected AnswerMode = "rejected_documents"
)

// SearchOutcome is the gated result of one multi-variant search.
type SearchOutcome struct {
	Mode           AnswerMode
	Threshold      float64
	Candidates     EvidenceSet
	Evidence       EvidenceSet
	Hints          EvidenceSet
	ContextSummary string
	Category       string
	TimedOut       []string
}

type Answer struct {
	Text      string      `json:"text"`
	Mode      AnswerMode  `json:"mode"`
	Evidence  EvidenceSet `json:"evidence"`
	Sources   []string    `json:"sources"`
	Category  string      `json:"category,omitempty"`
	Threshold float64     `json:"threshold,omitempty"`
	BestScore float64     `json:"best_score,omitempty"`
	TimedOut  []string    `json:"timed_out_variants,omitempty"`
}

type AnswerRequest struct {
	Query           string
	SessionID       string
	UserID          string
	PriorTurns      []Turn
	RejectedUploads []string
	HasValidUploads bool
}
