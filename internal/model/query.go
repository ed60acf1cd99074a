package model

import "time"

// DefaultTechContext is used when a request names no technology.
const DefaultTechContext = "Other"

// TechContexts lists the technology contexts offered by the web app.
// Other values are accepted and passed to the prompt as written.
var TechContexts = []string{
	"JavaScript", "TypeScript", "React", "Next.js", "Node.js",
	"Python", "Java", "C#", "Go", "Rust", "PHP", "Ruby",
	"Browser", "Database", "Docker", DefaultTechContext,
}

// Resource is a reference link suggested alongside an explanation.
type Resource struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// QueryResponse is a served explanation stored for an authenticated user.
type QueryResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	ErrorText   string     `json:"errorText"`
	ContextText *string    `json:"contextText"`
	TechContext string     `json:"techContext"`
	Explanation string     `json:"explanation"`
	Resources   []Resource `json:"resources"`
	CreatedAt   time.Time  `json:"createdAt"`
}
