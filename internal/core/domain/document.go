package domain

import "time"

const (
	DocumentTypeUnknown = "unknown"
)

// UploadedDocument is a user-supplied file accepted by the relevance classifier.
type UploadedDocument struct {
	ID            string              `json:"id"`
	SessionID     string              `json:"session_id"`
	UserID        string              `json:"user_id"`
	Filename      string              `json:"filename"`
	FileType      string              `json:"file_type"`
	FileSize      int64               `json:"file_size"`
	ExtractedText string              `json:"-"`
	DocumentType  string              `json:"document_type"`
	Summary       string              `json:"summary"`
	Analysis      DocumentAnalysis    `json:"analysis"`
	Relevance     RelevanceAssessment `json:"relevance"`
	IsActive      bool                `json:"is_active"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// RelevanceAssessment is the outcome of scoring text against the legal lexicon.
type RelevanceAssessment struct {
	IsRelevant         bool           `json:"is_relevant"`
	Score              int            `json:"score"`
	CategoryHits       map[string]int `json:"category_hits"`
	CategoriesMatched  int            `json:"categories_matched"`
	HasStrongIndicator bool           `json:"has_strong_indicator"`
	Warnings           []string       `json:"warnings"`
	Suggestions        []string       `json:"suggestions,omitempty"`
}

type DocumentAnalysis struct {
	DocumentType string   `json:"document_type"`
	WordCount    int      `json:"word_count"`
	Amounts      []string `json:"amounts,omitempty"`
	Dates        []string `json:"dates,omitempty"`
	References   []string `json:"references,omitempty"`
}

// ExtractedText is plain text recovered from an uploaded file.
type ExtractedText struct {
	Text     string
	FileType string
	Pages    int
}

type UploadFile struct {
	Filename string
	Data     []byte
}

// UploadResult is the per-file outcome of an upload batch. Exactly one of
// Document and Err is set.
type UploadResult struct {
	Filename string
	Document *UploadedDocument
	Err      error
}
