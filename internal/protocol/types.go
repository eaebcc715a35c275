// Package protocol defines the LSP-shaped value types grizzly-ls's
// components exchange (positions, ranges, completion items, diagnostics,
// locations). Wire framing (JSON-RPC, Content-Length headers) is explicitly
// out of scope for the core; these are the plain data shapes a
// real transport layer would marshal.
package protocol

// Position is a zero-indexed (line, column) pair, matching LSP convention.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"character"`
}

// Range is a half-open [Start, End) span within a document.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// CompletionKind tags what a completion item represents.
type CompletionKind string

const (
	KindKeyword  CompletionKind = "Keyword"
	KindFunction CompletionKind = "Function"
	KindVariable CompletionKind = "Variable"
)

// CompletionItem is one entry in a completion list.
type CompletionItem struct {
	Label      string         `json:"label"`
	InsertText string         `json:"insertText"`
	Kind       CompletionKind `json:"kind"`
	Range      Range          `json:"range"`
	// SortIndex is the item's position in the ranked output; preserved so
	// a transport layer can emit a stable sortText instead of trusting
	// list order survives re-serialization.
	SortIndex int `json:"-"`
}

// DiagnosticSeverity follows LSP severity levels.
type DiagnosticSeverity int

const (
	SeverityError       DiagnosticSeverity = 1
	SeverityWarning     DiagnosticSeverity = 2
	SeverityInformation DiagnosticSeverity = 3
	SeverityHint        DiagnosticSeverity = 4
)

// Diagnostic is a structured problem report attached to a source range
// (spec glossary "Diagnostic").
type Diagnostic struct {
	Range    Range              `json:"range"`
	Severity DiagnosticSeverity `json:"severity"`
	Code     string             `json:"code"`
	Source   string             `json:"source"`
	Message  string             `json:"message"`
}

// Location points at a range within a file, used for go-to-definition and
// hover-adjacent results.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// Hover is the result of a hover request.
type Hover struct {
	Contents string `json:"contents"`
	Range    Range  `json:"range"`
}

// DefinitionResult is one go-to-definition target, with the origin range in
// the requesting document that produced it.
type DefinitionResult struct {
	TargetURI            string `json:"targetUri"`
	TargetRange          Range  `json:"targetRange"`
	OriginSelectionRange Range  `json:"originSelectionRange"`
}
