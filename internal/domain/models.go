package domain

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document is one uploaded file. Content wins over Path when both are set.
type Document struct {
	Name    string
	Path    string
	Content []byte
}

// Ext returns the lower-cased extension of the document name.
func (d Document) Ext() string {
	return strings.ToLower(filepath.Ext(d.Name))
}

// BaseName returns the document name without directory or extension.
func (d Document) BaseName() string {
	base := filepath.Base(d.Name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// RasterImage is the rendered first page of a selected document.
type RasterImage struct {
	Position   int    `json:"position"` // 1-based position in the ordered document list
	SourceName string `json:"source_name"`
	Path       string `json:"path"`
	PageIndex  int    `json:"page_index"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// ItemRow is one line of a flyer table.
type ItemRow struct {
	Name  string `csv:"item" json:"item"`
	Price string `csv:"price" json:"price"`
}

// ItemTable holds the two parallel columns extracted from one image.
type ItemTable struct {
	Position int      `json:"position"`
	Source   string   `json:"source"`
	Items    []string `json:"item"`
	Prices   []string `json:"price"`
}

// Valid reports whether both columns have the same length.
func (t ItemTable) Valid() bool {
	return len(t.Items) == len(t.Prices)
}

// Rows zips the two columns. Callers must check Valid first.
func (t ItemTable) Rows() []ItemRow {
	rows := make([]ItemRow, 0, len(t.Items))
	for i := range t.Items {
		rows = append(rows, ItemRow{Name: t.Items[i], Price: t.Prices[i]})
	}
	return rows
}

// AggregateTable is the concatenation of every valid ItemTable in processing order.
type AggregateTable struct {
	Rows []ItemRow
}

// Len returns the number of rows.
func (a *AggregateTable) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Rows)
}

// IngredientSet returns the distinct item names, case-folded and trimmed, sorted.
func (a *AggregateTable) IngredientSet() []string {
	if a == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(a.Rows))
	set := make([]string, 0, len(a.Rows))
	for _, row := range a.Rows {
		name := NormalizeIngredient(row.Name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		set = append(set, name)
	}
	sort.Strings(set)
	return set
}

// NormalizeIngredient case-folds and trims an ingredient name.
func NormalizeIngredient(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// RecipeRecord is one row of the reference recipe sheet.
type RecipeRecord struct {
	Row            int      `json:"row"`
	Name           string   `json:"name"`
	Protein        string   `json:"protein"`
	IngredientsRaw string   `json:"ingredients"`
	Ingredients    []string `json:"-"`
	LastUsedWeek   *int     `json:"last_used_week,omitempty"` // nil when the cell is not numeric
}

// MatchResult is the model's free-text verdict, kept verbatim.
type MatchResult struct {
	Text      string `json:"text"`
	Model     string `json:"model"`
	Evaluated int    `json:"evaluated"`
	Total     int    `json:"total"`
	Available int    `json:"available"`
}

// ExtractionFailure records one image whose reply was rejected.
type ExtractionFailure struct {
	Position  int    `json:"position"`
	ImagePath string `json:"image_path"`
	Err       error  `json:"-"`
	Message   string `json:"error"`
}

// RunStatus tracks how far a run got.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunExtracted RunStatus = "extracted"
	RunMatched   RunStatus = "matched"
	RunFailed    RunStatus = "failed"
)

// Run carries one pipeline execution through every stage.
type Run struct {
	ID            uuid.UUID
	StartedAt     time.Time
	FinishedAt    time.Time
	Documents     []Document
	Selected      []Document
	Images        []RasterImage
	Tables        []ItemTable
	Failures      []ExtractionFailure
	Aggregate     *AggregateTable
	AggregatePath string
	Match         *MatchResult
	Status        RunStatus
	Err           error
}

// NewRun starts a run over the uploaded documents.
func NewRun(docs []Document) *Run {
	return &Run{
		ID:        uuid.New(),
		StartedAt: time.Now(),
		Documents: docs,
		Status:    RunRunning,
	}
}

// AddFailure records a per-image failure.
func (r *Run) AddFailure(image RasterImage, err error) {
	r.Failures = append(r.Failures, ExtractionFailure{
		Position:  image.Position,
		ImagePath: image.Path,
		Err:       err,
		Message:   err.Error(),
	})
}

// Fail marks the run failed.
func (r *Run) Fail(err error) {
	r.Status = RunFailed
	r.Err = err
	r.FinishedAt = time.Now()
}

// Finish marks the run finished with the given status.
func (r *Run) Finish(status RunStatus) {
	r.Status = status
	r.FinishedAt = time.Now()
}

// ChatMessage is one role-tagged survey message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// EventType represents the type of stream event
type EventType string

const (
	EventStart             EventType = "start"
	EventDocumentsSelected EventType = "documents_selected"
	EventPageRasterized    EventType = "page_rasterized"
	EventImageProcessing   EventType = "image_processing"
	EventImageComplete     EventType = "image_complete"
	EventError             EventType = "error"
	EventAggregated        EventType = "aggregated"
	EventMatching          EventType = "matching"
	EventComplete          EventType = "complete"
)

// StreamEvent represents an event emitted during processing
type StreamEvent struct {
	Type      EventType   `json:"type"`
	Position  int         `json:"position,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
