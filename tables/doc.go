// Package tables segments the product table of a quotation into rows and
// columns.
//
// # Rows
//
// Rows are separated by horizontal rules that cover at least half the table
// width. When the rules do not split the text, visual lines are grouped into
// logical rows: a line carrying a serial number in the serial column starts a
// new row and every other line continues the current one, so a description
// wrapping onto several lines stays in its row. Without a serial column a
// vertical gap wider than 1.5 times the median line pitch starts a new row.
//
// # Columns
//
// Expected column boundaries, already mapped into document space, are used
// as seeds and snapped to the nearest vertical rule within 3% of the page
// width:
//
//	seg := tables.NewSegmenter(tables.DefaultConfig())
//	layout := seg.Segment(bands, seeds, "sr_no", page.Width)
//	if layout.Ambiguous {
//		// hand the region to a table recognizer
//	}
//
// Two or more rules near one seed, or text crossing a boundary, mark the
// layout ambiguous.
package tables
