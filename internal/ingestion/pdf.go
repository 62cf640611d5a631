// Package ingestion turns a guideline PDF into a structured document of
// sections with page and sequence provenance.
package ingestion

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"guidegraph/internal/types"
)

// minSectionRunes drops fragments (page numbers, running headers) that are
// too short to carry extractable content.
const minSectionRunes = 40

// reNumberedHeading matches headings like "1.4.2 Drug treatment".
var reNumberedHeading = regexp.MustCompile(`^\d+(\.\d+)*\.?\s+\S`)

// StructurePDF extracts the text of a guideline PDF and splits it into
// sections at detected headings.
func StructurePDF(path, guidelineID string) (*types.Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF %s: %w", path, err)
	}
	defer f.Close()

	doc := &types.Document{
		GuidelineID: guidelineID,
		SourcePath:  path,
		Title:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Pages:       reader.NumPage(),
	}

	seq := 0
	for i := 1; i <= doc.Pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Pages that fail text extraction are skipped, not fatal.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		for _, sec := range splitPage(text, i) {
			sec.Seq = seq
			sec.ContentHash = types.HashContent(sec.Heading + "\n" + sec.Content)
			doc.Sections = append(doc.Sections, sec)
			seq++
		}
	}

	if len(doc.Sections) == 0 {
		return nil, fmt.Errorf("no extractable text in %s", path)
	}
	return doc, nil
}

// splitPage breaks one page's text into sections at heading lines.
func splitPage(text string, pageNum int) []types.Section {
	lines := strings.Split(text, "\n")
	var sections []types.Section
	var heading string
	var body strings.Builder

	flush := func() {
		content := strings.TrimSpace(body.String())
		body.Reset()
		if len([]rune(content)) < minSectionRunes {
			return
		}
		sections = append(sections, types.Section{
			Heading: heading,
			Content: content,
			Page:    pageNum,
		})
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isHeading(trimmed) {
			flush()
			heading = trimmed
			continue
		}
		if body.Len() > 0 {
			body.WriteString("\n")
		}
		body.WriteString(trimmed)
	}
	flush()
	return sections
}

// isHeading reports whether a line looks like a section heading: numbered,
// or short and without terminal punctuation in title or upper case.
func isHeading(line string) bool {
	if reNumberedHeading.MatchString(line) {
		return true
	}
	if len(line) > 80 || strings.HasSuffix(line, ".") || strings.HasSuffix(line, ",") {
		return false
	}
	letters, upper := 0, 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return false
	}
	// All caps, or a short line starting with an uppercase letter and
	// containing few words.
	if upper == letters {
		return true
	}
	first := []rune(line)[0]
	return unicode.IsUpper(first) && len(strings.Fields(line)) <= 6
}

// IsReferenceSection reports whether a section holds bibliography-style
// content, which is where study extraction looks for citations.
func IsReferenceSection(sec types.Section) bool {
	h := strings.ToLower(sec.Heading)
	return strings.Contains(h, "reference") ||
		strings.Contains(h, "bibliograph") ||
		strings.Contains(h, "evidence review")
}
