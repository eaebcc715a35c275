// Package snippet models editor snippet insertions as an abstract Template
// decoupled from any one editor's concrete snippet syntax.
package snippet

import (
	"fmt"
	"strings"
)

// Placeholder is one tab-stop within a Template.
type Placeholder struct {
	Start int // byte offset into Text
	End   int // byte offset into Text (End == Start for an empty tab-stop)
	Index int // 1-based tab-stop number
}

// Template is a plain-text insertion plus its tab-stop positions.
type Template struct {
	Text         string
	Placeholders []Placeholder
}

// Serialize renders the Template using the LSP/VS Code snippet syntax
// (`$1`, `$2`, ...). Placeholders are emitted in Text order; it is the
// caller's responsibility to have built Placeholders left-to-right.
func (t Template) Serialize() string {
	if len(t.Placeholders) == 0 {
		return t.Text
	}
	var b strings.Builder
	last := 0
	for _, p := range t.Placeholders {
		b.WriteString(t.Text[last:p.Start])
		b.WriteString(fmt.Sprintf("$%d", p.Index))
		last = p.End
	}
	b.WriteString(t.Text[last:])
	return b.String()
}

// FromQuotedSlots builds a Template from text containing empty `""` quoted
// slots, replacing each with a numbered tab-stop in left-to-right order.
func FromQuotedSlots(text string) Template {
	t := Template{Text: text}
	idx := 1
	for i := 0; i+1 < len(text); i++ {
		if text[i] == '"' && text[i+1] == '"' {
			t.Placeholders = append(t.Placeholders, Placeholder{Start: i + 1, End: i + 1, Index: idx})
			idx++
		}
	}
	return t
}
