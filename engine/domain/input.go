package domain

// DocumentRef is one entry of input.json's documents list. Producers disagree
// on the key holding the filename, so all three are accepted.
type DocumentRef struct {
	Filename string `json:"filename,omitempty"`
	File     string `json:"file,omitempty"`
	Name     string `json:"name,omitempty"`
}

// ResolvedName returns the first non-empty of filename, file, name.
func (d DocumentRef) ResolvedName() string {
	switch {
	case d.Filename != "":
		return d.Filename
	case d.File != "":
		return d.File
	default:
		return d.Name
	}
}

// Persona describes who is asking.
type Persona struct {
	Role string `json:"role"`
}

// Job describes what the persona wants to get done.
type Job struct {
	Task string `json:"task"`
}

// Input mirrors input.json.
type Input struct {
	Documents   []DocumentRef `json:"documents"`
	Persona     Persona       `json:"persona"`
	JobToBeDone Job           `json:"job_to_be_done"`
}

// DocumentNames returns the resolved filename of every document entry,
// skipping entries with none.
func (in Input) DocumentNames() []string {
	out := make([]string, 0, len(in.Documents))
	for _, d := range in.Documents {
		if n := d.ResolvedName(); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// OutputMetadata is the header of the query output document.
type OutputMetadata struct {
	InputDocuments      []string `json:"input_documents"`
	Persona             string   `json:"persona"`
	JobToBeDone         string   `json:"job_to_be_done"`
	ProcessingTimestamp string   `json:"processing_timestamp"`
}

// ExtractedSection is the summary view of a ranked section.
type ExtractedSection struct {
	Document       string `json:"document"`
	SectionTitle   string `json:"section_title"`
	ImportanceRank int    `json:"importance_rank"`
	PageNumber     int    `json:"page_number"`
}

// SubsectionAnalysis is the detail view of a ranked section.
type SubsectionAnalysis struct {
	Document    string `json:"document"`
	RefinedText string `json:"refined_text"`
	PageNumber  int    `json:"page_number"`
}

// Output mirrors challenge1b_output.json.
type Output struct {
	Metadata           OutputMetadata       `json:"metadata"`
	ExtractedSections  []ExtractedSection   `json:"extracted_sections"`
	SubsectionAnalysis []SubsectionAnalysis `json:"subsection_analysis"`
}
