package domain

const (
	LegislationEmployment  = "employment"
	LegislationEquality    = "equality"
	LegislationHealth      = "health_safety"
	LegislationHumanRights = "human_rights"
	LegislationGeneral     = "general"

	SectionGeneral = "General"
)

// LegislationSource identifies one act to ingest. Empty metadata fields are
// filled from the document itself.
type LegislationSource struct {
	URL             string `json:"url" yaml:"url"`
	ActTitle        string `json:"act_title,omitempty" yaml:"title"`
	LegislationType string `json:"legislation_type,omitempty" yaml:"type"`
	Year            int    `json:"year,omitempty" yaml:"year"`
}

// Chunk is a bounded span of normalized legislative text.
type Chunk struct {
	ID              string `json:"id"`
	Text            string `json:"text"`
	SourceURL       string `json:"source_url"`
	ActTitle        string `json:"act_title"`
	LegislationType string `json:"legislation_type"`
	LegislationYear int    `json:"legislation_year"`
	SectionContext  string `json:"section_context"`
	ChunkIndex      int    `json:"chunk_index"`
	TotalChunks     int    `json:"total_chunks"`
}

type IngestError struct {
	SourceURL string `json:"source_url"`
	Message   string `json:"message"`
}

type IngestReport struct {
	ChunksWritten int           `json:"chunks_written"`
	Errors        []IngestError `json:"errors"`
}
