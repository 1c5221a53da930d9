package domain

import "encoding/json"

// Platform is the typed view of one platform entry in the package index.
// Only the fields the tool acts on are decoded; Raw holds the entry exactly
// as it appears in the index document.
type Platform struct {
	Name    string          `json:"name"`
	Version string          `json:"version"`
	URL     string          `json:"url"`
	Raw     json.RawMessage `json:"-"`
}

// URLTransform replaces the first case-insensitive occurrence of Match in a
// platform URL with Replace.
type URLTransform struct {
	Match   string
	Replace string
}
