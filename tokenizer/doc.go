// Package tokenizer turns PDF bytes into positioned tokens.
//
// Decoding is delegated to github.com/ledongthuc/pdf: [DecodePDF] reads the
// shown glyphs of every page and runs a second pass over the content
// streams to recover stroked rule lines, rectangles and image placements.
// [Tokenizer.Tokenize] then merges glyphs into text runs, converts thin
// strokes into rule tokens, flips everything to a top-left origin and sorts
// each page into reading order.
//
//	doc, err := tokenizer.New(tokenizer.DefaultConfig()).TokenizeBytes(data)
//	if errors.Is(err, tokenizer.ErrUnreadableDocument) {
//		// not a PDF
//	}
package tokenizer
