package pycsw

import (
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/ckan/ckanext-spatial/pkg/domain"
	"github.com/ckan/ckanext-spatial/pkg/iso"
	"github.com/ckan/ckanext-spatial/pkg/spatial"
)

const (
	schemaGMD = "http://www.isotc211.org/2005/gmd"
	schemaGMI = "http://www.isotc211.org/2005/gmi"
)

// BuildRecord turns the harvest object content of a dataset into a records
// row. Failures wrap domain.ErrInvalidMetadata.
func BuildRecord(content []byte, ds domain.HarvestedDataset, now time.Time) (*domain.Record, error) {
	doc, err := iso.Parse(content)
	if err != nil {
		return nil, err
	}
	values, err := doc.ReadValues()
	if err != nil {
		return nil, err
	}

	rec := &domain.Record{
		Identifier:   values.FileIdentifier,
		Typename:     "gmd:MD_Metadata",
		Schema:       schemaGMD,
		MDSource:     "local",
		InsertDate:   now.UTC().Format(time.RFC3339),
		XML:          doc.String(),
		AnyText:      anyText(doc),
		Title:        values.Title,
		Abstract:     values.Abstract,
		Keywords:     strings.Join(values.Keywords, ","),
		DateModified: values.DateStamp,
		CKANID:       ds.ID,
		CKANModified: ds.MetadataModified,
	}
	if md := doc.MetadataRoot(); md != nil && iso.Is(md, "gmi:MI_Metadata") {
		rec.Typename = "gmi:MI_Metadata"
		rec.Schema = schemaGMI
	}
	if rec.Identifier == "" {
		rec.Identifier = ds.ID
	}
	if b := values.BBox; b != nil {
		rec.WKTGeometry = spatial.BoundWKT(orb.Bound{
			Min: orb.Point{b.West, b.South},
			Max: orb.Point{b.East, b.North},
		})
	}
	return rec, nil
}

// anyText is the space separated text content of every element, used by
// pycsw for full text search.
func anyText(doc *iso.Document) string {
	root := doc.Root()
	if root == nil {
		return ""
	}
	var parts []string
	if t := strings.TrimSpace(root.Text()); t != "" {
		parts = append(parts, t)
	}
	for _, e := range root.FindElements(".//*") {
		if t := strings.TrimSpace(e.Text()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
