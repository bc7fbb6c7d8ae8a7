package domain

// DefaultOverview is used when the catalog has no synopsis for a title.
const DefaultOverview = "（概要なし）"

// Movie is a catalog record, optionally carrying a model-provided reason.
type Movie struct {
	ID          int
	Title       string
	ReleaseYear string
	Overview    string
	PosterPath  string
	Reason      string
}

// Candidate is an unverified title proposed by the language model.
type Candidate struct {
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// ReleaseYear extracts the year from a YYYY-MM-DD date string.
func ReleaseYear(date string) string {
	if len(date) < 4 {
		return ""
	}
	return date[:4]
}
