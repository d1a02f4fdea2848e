// Package model provides the intermediate representation shared by every
// extraction stage.
//
// # Documents and tokens
//
// A [Document] is a list of [Page] values, each holding positioned [Token]
// values in reading order. Tokens are text runs, rule lines or image
// placements:
//
//	doc := model.NewDocument(model.DocumentID(pdfBytes))
//	page := model.NewPage(0, 595, 842)
//	page.AddToken(model.Token{Kind: model.TokenKindText, Text: "Qty", BBox: box})
//	doc.AddPage(page)
//
// # Geometry
//
// All coordinates are in points with the origin at the top-left corner of
// the page and Y growing downward. [BBox] stores the left/top corner plus
// width and height.
//
// [Fit] computes a per-axis scale and translation ([Transform]) mapping
// template reference coordinates onto a document by least squares:
//
//	t := model.Fit(referencePoints, observedPoints)
//	rms := t.Residual(referencePoints, observedPoints)
//
// # Extracted values
//
// A [Field] carries the raw text, the normalized value, a confidence in
// [0, 1], its [Source] and its [Status]. Product lines are [Row] values and the
// whole result of one document is an [Extraction].
package model
