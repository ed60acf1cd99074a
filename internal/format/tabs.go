package format

import (
	"net/url"
	"strings"

	"github.com/errmate/errmate/internal/model"
)

// Tab is one selectable resource.
type Tab struct {
	Label       string `json:"label"`
	URL         string `json:"url"`
	Host        string `json:"host,omitempty"`
	Description string `json:"description,omitempty"`
}

// Tabs turns resources into tabs. Resources without a URL are skipped and
// a missing title falls back to the URL host.
func Tabs(resources []model.Resource) []Tab {
	tabs := make([]Tab, 0, len(resources))
	for _, r := range resources {
		link := strings.TrimSpace(r.URL)
		if link == "" {
			continue
		}

		host := ""
		if u, err := url.Parse(link); err == nil {
			host = strings.TrimPrefix(u.Hostname(), "www.")
		}

		label := strings.TrimSpace(r.Title)
		if label == "" {
			label = host
		}
		if label == "" {
			label = link
		}

		tabs = append(tabs, Tab{
			Label:       label,
			URL:         link,
			Host:        host,
			Description: strings.TrimSpace(r.Description),
		})
	}
	return tabs
}
