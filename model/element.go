package model

import "image"

// TokenKind represents the type of a positioned token
type TokenKind int

const (
	TokenKindUnknown TokenKind = iota
	TokenKindText
	TokenKindRule
	TokenKindImage
)

func (k TokenKind) String() string {
	switch k {
	case TokenKindText:
		return "Text"
	case TokenKindRule:
		return "Rule"
	case TokenKindImage:
		return "Image"
	default:
		return "Unknown"
	}
}

// Token is a positioned text run or graphic primitive on one page.
// Tokens are owned by the Document they were tokenized from.
type Token struct {
	Kind     TokenKind
	Page     int // 0-indexed page
	BBox     BBox
	Text     string
	FontSize float64
	FontName string

	// Image holds decoded pixels for image tokens when the image stream
	// could be decoded. It is nil for text and rule tokens.
	Image image.Image
}

// IsText reports whether the token is a non-empty text run.
func (t Token) IsText() bool {
	return t.Kind == TokenKindText && t.Text != ""
}

// IsHorizontalRule reports whether the token is a rule wider than it is tall.
func (t Token) IsHorizontalRule() bool {
	return t.Kind == TokenKindRule && t.BBox.Width >= t.BBox.Height
}

// IsVerticalRule reports whether the token is a rule taller than it is wide.
func (t Token) IsVerticalRule() bool {
	return t.Kind == TokenKindRule && t.BBox.Height > t.BBox.Width
}

// ImageRef points at an image region on a page for downstream image
// classification. The core never classifies images itself.
type ImageRef struct {
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewImageRef builds an ImageRef from a page index and box.
func NewImageRef(page int, b BBox) ImageRef {
	return ImageRef{Page: page, X: b.X, Y: b.Y, Width: b.Width, Height: b.Height}
}
