package models

// Category groups applications by how they accept a path.
type Category string

const (
	CategoryTerminal    Category = "terminal"
	CategoryEditor      Category = "editor"
	CategoryFileManager Category = "file_manager"
	CategoryOther       Category = "other"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryTerminal, CategoryEditor, CategoryFileManager, CategoryOther:
		return true
	}
	return false
}

// DetectedApplication is one application found by a detection pass.
// Identifier is a bundle id on macOS and a stable synthetic id elsewhere.
type DetectedApplication struct {
	Name           string   `json:"name"`
	Identifier     string   `json:"identifier"`
	Category       Category `json:"category"`
	ExecutablePath string   `json:"path"`
}
