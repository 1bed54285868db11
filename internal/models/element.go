package models

// ElementType tags a RawElement with its structural role in the source
// document. The parser assigns the tag; downstream stages dispatch on it
// instead of inspecting runtime types.
type ElementType string

const (
	ElementTitle         ElementType = "Title"
	ElementNarrativeText ElementType = "NarrativeText"
	ElementListItem      ElementType = "ListItem"
	ElementTable         ElementType = "Table"
	ElementImage         ElementType = "Image"
	ElementFigureCaption ElementType = "FigureCaption"
	ElementPageBreak     ElementType = "PageBreak"
	ElementUnknown       ElementType = "Unknown"
)

// ElementMetadata carries the optional positional and content hints a parser
// may attach to an element.
type ElementMetadata struct {
	// ImagePath is the local path of an extracted image, set for Image
	// elements and for composite elements that embed images.
	ImagePath string `json:"image_path,omitempty"`
	// NestedImagePaths holds images embedded inside a composite element
	// (for example a table cell containing a figure).
	NestedImagePaths []string `json:"nested_image_paths,omitempty"`
	// TableText is the linearized text of a table element.
	TableText string `json:"table_text,omitempty"`
	// Section is an optional section hint provided by the parser.
	Section string `json:"section,omitempty"`
	// PageNumber is the 1-based page the element was found on, 0 if unknown.
	PageNumber int `json:"page_number,omitempty"`
}

// RawElement is one typed node produced by the structural parser. The slice
// of RawElements for a document is immutable once parsed.
type RawElement struct {
	Type     ElementType     `json:"type"`
	Text     string          `json:"text"`
	Metadata ElementMetadata `json:"metadata"`
}

// IsTextBearing reports whether the element contributes text to chunking.
func (e *RawElement) IsTextBearing() bool {
	switch e.Type {
	case ElementImage, ElementPageBreak:
		return false
	default:
		return true
	}
}
