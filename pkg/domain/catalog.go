package domain

import "time"

// DefaultSRID is the spatial reference system of the extent geometry column
// when neither the command line nor the configuration names one.
const DefaultSRID = 4326

// SpatialExtraKey is the package extra holding a dataset's GeoJSON extent.
const SpatialExtraKey = "spatial"

// Package is the subset of a CKAN package row the spatial commands use.
type Package struct {
	ID    string
	Name  string
	Title string
}

// SpatialExtra is the raw value of a package's "spatial" extra.
type SpatialExtra struct {
	PackageID string
	Value     string
}

// HarvestReportRow is one harvest object as it appears in the validation report.
type HarvestReportRow struct {
	HarvestObjectID string
	GUID            string
	FetchFinished   *time.Time
	DatasetName     string
	Publisher       string
	SourceURL       string
	Errors          []string
}

// Record is one row of the pycsw records repository.
type Record struct {
	Identifier   string
	Typename     string
	Schema       string
	MDSource     string
	InsertDate   string
	XML          string
	AnyText      string
	Title        string
	Abstract     string
	Keywords     string
	DateModified string
	WKTGeometry  string
	CKANID       string
	CKANModified string
}

// HarvestedDataset is one CKAN dataset gathered from the search API for CSW sync.
type HarvestedDataset struct {
	ID               string
	MetadataModified string
	HarvestObjectID  string
	Source           string
}

// TagCount is one entry of the CKAN tag_counts listing.
type TagCount struct {
	Name  string
	Count int
}
