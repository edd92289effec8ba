package internal

type SourceKind string

const (
	SourcePDF      SourceKind = "pdf"
	SourceDOCX     SourceKind = "docx"
	SourceHTML     SourceKind = "html"
	SourceMarkdown SourceKind = "markdown"
	SourceText     SourceKind = "text"
	SourceCorpus   SourceKind = "corpus"
)

// Page is the extracted text of one page, numbered from 1.
type Page struct {
	Number int    `json:"page"`
	Text   string `json:"text"`
}

func (p Page) CharCount() int {
	return len([]rune(p.Text))
}

// Document is one Protokoll as delivered by the ingestion layer.
type Document struct {
	Identifier      string     `json:"source_path"`
	Kind            SourceKind `json:"kind"`
	Pages           []Page     `json:"pages"`
	OCRUsed         bool       `json:"used_ocr"`
	LayoutUsed      bool       `json:"used_layout"`
	AvgCharsPerPage float64    `json:"avg_chars_per_page"`
}

// ExportRow is the flat per-TOP record written to JSONL, SQLite and Excel.
type ExportRow struct {
	MeetingDate  string   `json:"meeting_date"`
	SourceFile   string   `json:"source_file"`
	TopNumber    int      `json:"top_number"`
	TopLabel     string   `json:"top_label"`
	TopTitle     string   `json:"top_title"`
	TitleIssues  []string `json:"title_issues"`
	Verdict      string   `json:"verdict"`
	Confidence   string   `json:"confidence"`
	Region       string   `json:"region"`
	VotesYes     *int     `json:"votes_yes"`
	VotesNo      *int     `json:"votes_no"`
	VotesAbstain *int     `json:"votes_abstain"`
	PageStart    int      `json:"page_start"`
	PageEnd      int      `json:"page_end"`
	BlockLen     int      `json:"block_len"`
	Excerpt      string   `json:"raw_excerpt"`
}

func (r ExportRow) Approved() bool {
	return r.Verdict == "approved"
}

// QARow summarises one processed document.
type QARow struct {
	File            string  `json:"file"`
	MeetingDate     string  `json:"meeting_date"`
	Tops            int     `json:"tops_detail"`
	Approved        int     `json:"approved"`
	Rejected        int     `json:"rejected"`
	Undetermined    int     `json:"unknown"`
	OCRUsed         bool    `json:"used_ocr"`
	LayoutUsed      bool    `json:"used_layout"`
	AvgCharsPerPage float64 `json:"avg_chars_per_page"`
}

type ErrorRow struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// DocumentRow is a stored document and its processing state.
type DocumentRow struct {
	ID              int     `json:"id"`
	Path            string  `json:"path"`
	Hash            string  `json:"hash"`
	Kind            string  `json:"kind"`
	MailID          *int    `json:"mail_id,omitempty"`
	MeetingDate     string  `json:"meeting_date"`
	OCRUsed         bool    `json:"used_ocr"`
	LayoutUsed      bool    `json:"used_layout"`
	AvgCharsPerPage float64 `json:"avg_chars_per_page"`
	TopCount        int     `json:"top_count"`
	Status          string  `json:"status"`
	Error           string  `json:"error,omitempty"`
	UpdatedAt       string  `json:"updated_at"`
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

type MailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}
