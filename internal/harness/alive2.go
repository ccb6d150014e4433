package harness

import (
	"sort"
	"strings"

	"equicheck/internal/analyze"
)

// ExportTarget names the symbol a function must keep through IR emission.
type ExportTarget struct {
	Fn     analyze.Function
	Symbol string
}

// ExportedSource splices an export_name attribute above each target so
// both modules emit the paired functions under the same LLVM symbol.
// Splicing is textual, anchored on the analyzer's recorded byte offsets,
// so the surrounding source stays byte-identical.
func ExportedSource(source string, targets []ExportTarget) string {
	ordered := append([]ExportTarget{}, targets...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Fn.StartByte > ordered[j].Fn.StartByte
	})

	var b strings.Builder
	out := source
	for _, t := range ordered {
		at := int(t.Fn.StartByte)
		if at > len(out) {
			continue
		}
		b.Reset()
		b.WriteString(out[:at])
		b.WriteString(`#[export_name = "`)
		b.WriteString(t.Symbol)
		b.WriteString("\"]\n")
		b.WriteString(t.Fn.Indent)
		b.WriteString(out[at:])
		out = b.String()
	}
	return out
}
