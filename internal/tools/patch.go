package tools

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// filePatch is one file's worth of changes parsed from a patch body.
type filePatch struct {
	OldPath  string // "" for added files
	NewPath  string // "" for deleted files
	IsDelete bool
	Hunks    []hunk
}

// target returns the workspace-relative path the patch operates on.
func (fp filePatch) target() string {
	if fp.NewPath != "" {
		return fp.NewPath
	}
	return fp.OldPath
}

// hunk is one contiguous change block. Lines keep their leading
// '+', '-', or ' ' markers. OldStart of zero means "locate by content"
// (envelope patches carry no line numbers).
type hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []string
}

// oldLines returns the lines the hunk expects in the current file.
func (h hunk) oldLines() []string {
	var out []string
	for _, l := range h.Lines {
		if strings.HasPrefix(l, " ") || strings.HasPrefix(l, "-") {
			out = append(out, l[1:])
		} else if l == "" {
			out = append(out, "")
		}
	}
	return out
}

// newLines returns the lines the hunk produces.
func (h hunk) newLines() []string {
	var out []string
	for _, l := range h.Lines {
		if strings.HasPrefix(l, " ") || strings.HasPrefix(l, "+") {
			out = append(out, l[1:])
		} else if l == "" {
			out = append(out, "")
		}
	}
	return out
}

// additionsOnly reports whether the hunk carries no context or removal
// lines, i.e. it can create a file from scratch.
func (h hunk) additionsOnly() bool {
	for _, l := range h.Lines {
		if !strings.HasPrefix(l, "+") && l != "" {
			return false
		}
	}
	return true
}

const patchEnvelopeMarker = "*** Begin Patch"

// isEnvelope reports whether the patch text uses the
// Begin Patch / Update File / Add File / Delete File envelope.
func isEnvelope(text string) bool {
	return strings.Contains(text, patchEnvelopeMarker)
}

// parsePatch dispatches on the patch format.
func parsePatch(text string) ([]filePatch, error) {
	if isEnvelope(text) {
		return parseEnvelope(text)
	}
	return parseUnified(text)
}

var hunkHeader = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// stripPrefix removes the a/ or b/ prefix a git-style diff carries and
// maps /dev/null to absence.
func stripPrefix(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexAny(p, " \t"); i >= 0 {
		p = p[:i] // drop timestamps after the path
	}
	if p == "/dev/null" {
		return ""
	}
	p = strings.TrimPrefix(p, "a/")
	p = strings.TrimPrefix(p, "b/")
	return p
}

// parseUnified parses standard unified-diff text into file patches.
func parseUnified(text string) ([]filePatch, error) {
	var patches []filePatch
	var current *filePatch
	var currentHunk *hunk
	pendingOld := ""
	havePendingOld := false

	flushHunk := func() {
		if current != nil && currentHunk != nil {
			current.Hunks = append(current.Hunks, *currentHunk)
		}
		currentHunk = nil
	}
	flushFile := func() {
		flushHunk()
		if current != nil {
			patches = append(patches, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "--- "):
			flushFile()
			pendingOld = stripPrefix(line[4:])
			havePendingOld = true

		case strings.HasPrefix(line, "+++ "):
			if !havePendingOld {
				continue
			}
			newPath := stripPrefix(line[4:])
			current = &filePatch{
				OldPath:  pendingOld,
				NewPath:  newPath,
				IsDelete: newPath == "",
			}
			havePendingOld = false

		case hunkHeader.MatchString(line):
			if current == nil {
				continue
			}
			flushHunk()
			m := hunkHeader.FindStringSubmatch(line)
			h := hunk{
				OldStart: atoiDefault(m[1], 0),
				OldCount: atoiDefault(m[2], 1),
				NewStart: atoiDefault(m[3], 0),
				NewCount: atoiDefault(m[4], 1),
			}
			currentHunk = &h

		case currentHunk != nil && (line == "" || strings.HasPrefix(line, "+") ||
			strings.HasPrefix(line, "-") || strings.HasPrefix(line, " ")):
			currentHunk.Lines = append(currentHunk.Lines, line)

		case strings.HasPrefix(line, `\ No newline`):
			continue
		}
	}
	flushFile()

	if len(patches) == 0 {
		return nil, fmt.Errorf("no file patches found")
	}
	return patches, nil
}

// parseEnvelope parses the Begin Patch envelope. Update sections are
// collected into content-addressed hunks (OldStart 0) split on @@
// markers.
func parseEnvelope(text string) ([]filePatch, error) {
	var patches []filePatch
	var current *filePatch
	var currentHunk *hunk

	flushHunk := func() {
		if current != nil && currentHunk != nil && len(currentHunk.Lines) > 0 {
			current.Hunks = append(current.Hunks, *currentHunk)
		}
		currentHunk = nil
	}
	flushFile := func() {
		flushHunk()
		if current != nil {
			patches = append(patches, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == patchEnvelopeMarker || trimmed == "*** End Patch":
			flushFile()

		case strings.HasPrefix(trimmed, "*** Add File: "):
			flushFile()
			current = &filePatch{NewPath: strings.TrimSpace(strings.TrimPrefix(trimmed, "*** Add File: "))}
			currentHunk = &hunk{}

		case strings.HasPrefix(trimmed, "*** Delete File: "):
			flushFile()
			current = &filePatch{
				OldPath:  strings.TrimSpace(strings.TrimPrefix(trimmed, "*** Delete File: ")),
				IsDelete: true,
			}

		case strings.HasPrefix(trimmed, "*** Update File: "):
			flushFile()
			p := strings.TrimSpace(strings.TrimPrefix(trimmed, "*** Update File: "))
			current = &filePatch{OldPath: p, NewPath: p}
			currentHunk = &hunk{}

		case strings.HasPrefix(trimmed, "@@"):
			flushHunk()
			currentHunk = &hunk{}

		case current != nil && currentHunk != nil:
			currentHunk.Lines = append(currentHunk.Lines, line)
		}
	}
	flushFile()

	if len(patches) == 0 {
		return nil, fmt.Errorf("no file patches found in envelope")
	}
	return patches, nil
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
