package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"equicheck/internal/config"
)

// Layout is everything needed to materialize one harness cargo package.
type Layout struct {
	Backend string
	// SourceA and SourceB are the two module sources, written verbatim as
	// src/mod1.rs and src/mod2.rs.
	SourceA, SourceB string
	// Guards is the translated precondition source, appended to module 2
	// so guard calls resolve inside the harness.
	Guards    string
	Artifacts []Artifact
	// CatchPanics adds the shared panic-divergence helper to fuzz
	// harnesses.
	CatchPanics bool
}

var cargoTmpl = template.Must(template.New("cargo").Parse(`[package]
name = "{{.Name}}"
version = "0.1.0"
edition = "2021"
{{- if .Deps}}

[dependencies]
{{- range .Deps}}
{{.}}
{{- end}}
{{- end}}
{{- if .DevDeps}}

[dev-dependencies]
{{- range .DevDeps}}
{{.}}
{{- end}}
{{- end}}

[profile.dev]
debug = false
`))

type cargoData struct {
	Name    string
	Deps    []string
	DevDeps []string
}

// WriteProject lays a harness cargo package out under dir. The directory
// is created fresh; a leftover harness from an earlier run is replaced.
func WriteProject(dir string, l Layout) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear harness path %s: %w", dir, err)
	}
	srcDir := filepath.Join(dir, "src")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		return fmt.Errorf("failed to create harness path %s: %w", dir, err)
	}

	cargo, entry, entryFile, err := projectShape(l)
	if err != nil {
		return err
	}

	modB := l.SourceB
	if l.Guards != "" {
		modB = modB + "\n" + l.Guards
	}
	files := map[string]string{
		filepath.Join(dir, "Cargo.toml"):    cargo,
		filepath.Join(srcDir, "mod1.rs"):    l.SourceA,
		filepath.Join(srcDir, "mod2.rs"):    modB,
		filepath.Join(srcDir, entryFile):    entry,
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write harness file %s: %w", path, err)
		}
	}
	return nil
}

func projectShape(l Layout) (cargo, entry, entryFile string, err error) {
	data := cargoData{Name: "equicheck_" + l.Backend + "_harness"}

	var b strings.Builder
	switch l.Backend {
	case config.ComponentKani:
		b.WriteString("#![allow(unused)]\n\npub mod mod1;\npub mod mod2;\n")
		for _, a := range l.Artifacts {
			b.WriteString("\n")
			b.WriteString(a.Source)
		}
		entryFile = "lib.rs"

	case config.ComponentPBT:
		data.DevDeps = []string{`proptest = "1"`}
		b.WriteString("#![allow(unused)]\n\npub mod mod1;\npub mod mod2;\n\n")
		b.WriteString("#[cfg(test)]\nmod checks {\n    use super::*;\n    use proptest::prelude::*;\n\n")
		for _, a := range l.Artifacts {
			b.WriteString(a.Source)
			b.WriteString("\n")
		}
		b.WriteString("}\n")
		entryFile = "lib.rs"

	case config.ComponentDiffFuzz:
		data.Deps = []string{`afl = "0.15"`, `postcard = { version = "1", features = ["alloc"] }`}
		b.WriteString("#![allow(unused)]\n\nmod mod1;\nmod mod2;\n\n")
		for _, a := range l.Artifacts {
			b.WriteString(a.Source)
			b.WriteString("\n")
		}
		if l.CatchPanics {
			b.WriteString(CompareOutcomesHelper)
			b.WriteString("\n")
		}
		b.WriteString("fn main() {\n    afl::fuzz!(|data: &[u8]| {\n")
		for _, a := range l.Artifacts {
			fmt.Fprintf(&b, "        %s(data);\n", a.Entry)
		}
		b.WriteString("    });\n}\n")
		entryFile = "main.rs"

	default:
		return "", "", "", fmt.Errorf("backend %s has no harness project layout", l.Backend)
	}

	cargo, err = render(cargoTmpl, data)
	if err != nil {
		return "", "", "", err
	}
	return cargo, b.String(), entryFile, nil
}
