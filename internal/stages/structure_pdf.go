package stages

import (
	"context"
	"fmt"

	"guidegraph/internal/ingestion"
)

// runStructurePDF parses the guideline PDF into sections and persists the
// structure artifact plus the section rows used for provenance and
// embedding.
func (d *Deps) runStructurePDF(ctx context.Context) error {
	doc, err := ingestion.StructurePDF(d.Config.PDFPath, d.Config.GuidelineID)
	if err != nil {
		return fmt.Errorf("structuring %s: %w", d.Config.PDFPath, err)
	}

	if err := d.Store.SaveSections(ctx, doc); err != nil {
		return err
	}
	if err := d.Store.SaveArtifact(ctx, d.Config.GuidelineID, StageStructurePDF, doc); err != nil {
		return err
	}

	fmt.Printf("  structured %d pages into %d sections\n", doc.Pages, len(doc.Sections))
	return nil
}
