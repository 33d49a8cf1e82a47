// Package docgen renders the Rewrite Trigger's plain-language report to a
// .docx file via gomutex/godocx — a real teacher dependency with no other
// natural home in this spec, repurposed here instead of dropped.
package docgen

import (
	"fmt"
	"time"

	"github.com/gomutex/godocx"
	"github.com/kazimov/jobtrail/rewrite"
)

// RenderRewriteReport writes report as a short .docx document to path:
// a heading naming the archetype, the staleness distance and current
// version, gained/lost term lists, and the suggested focus paragraph.
func RenderRewriteReport(report *rewrite.Report, path string) error {
	doc, err := godocx.NewDocument()
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}

	doc.AddHeading(fmt.Sprintf("Rewrite suggested: %s résumé", report.Archetype), 1)

	doc.AddParagraph(fmt.Sprintf("Staleness distance: %.3f", report.StalenessDistance))
	doc.AddParagraph(fmt.Sprintf("Current version: %s", report.CurrentVersionID))
	if !report.LastRewriteAt.IsZero() {
		doc.AddParagraph(fmt.Sprintf("Last rewrite: %s", report.LastRewriteAt.Format(time.RFC3339)))
	}

	doc.AddHeading("Gained terms", 2)
	doc.AddParagraph(joinOrNone(report.TermsGained))

	doc.AddHeading("Lost terms", 2)
	doc.AddParagraph(joinOrNone(report.TermsLost))

	doc.AddHeading("Suggested focus", 2)
	doc.AddParagraph(report.SuggestedFocus)

	if err := doc.SaveTo(path); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func joinOrNone(terms []string) string {
	if len(terms) == 0 {
		return "(none)"
	}
	out := terms[0]
	for _, t := range terms[1:] {
		out += ", " + t
	}
	return out
}
