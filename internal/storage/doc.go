// Package storage persists wizard drafts and the console's audit trail.
//
// Two backends are available: "file" (JSON Lines audit plus one JSON file
// per draft) and "sqlite". An empty driver or "none" disables storage.
package storage
