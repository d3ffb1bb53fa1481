package models

import "time"

// DocumentRef records one ingested document inside a course context.
type DocumentRef struct {
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// CourseContext is the per-tenant summary record, created on first
// ingestion and merged on every subsequent one.
type CourseContext struct {
	Documents   []DocumentRef `json:"documents"`
	Concepts    []string      `json:"concepts"`
	Summary     string        `json:"summary"`
	LastUpdated time.Time     `json:"lastUpdated"`
}

// Merge folds one ingestion into the context: the document list replaces any
// prior entry with the same filename, concepts are a set union preserving
// first-seen order, and the summary is overwritten only when a non-empty one
// is supplied.
func (c *CourseContext) Merge(doc DocumentRef, concepts []string, summary string, now time.Time) {
	replaced := false
	for i := range c.Documents {
		if c.Documents[i].Filename == doc.Filename {
			c.Documents[i] = doc
			replaced = true
			break
		}
	}
	if !replaced {
		c.Documents = append(c.Documents, doc)
	}

	seen := make(map[string]bool, len(c.Concepts))
	for _, name := range c.Concepts {
		seen[name] = true
	}
	for _, name := range concepts {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		c.Concepts = append(c.Concepts, name)
	}

	if summary != "" {
		c.Summary = summary
	}
	c.LastUpdated = now
}

// Clone returns a deep copy so in-memory stores never alias caller state.
func (c *CourseContext) Clone() *CourseContext {
	out := &CourseContext{
		Documents:   append([]DocumentRef(nil), c.Documents...),
		Concepts:    append([]string(nil), c.Concepts...),
		Summary:     c.Summary,
		LastUpdated: c.LastUpdated,
	}
	return out
}
