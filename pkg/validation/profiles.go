package validation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/ckan/ckanext-spatial/pkg/iso"
)

// Profile checks a metadata document against one set of rules.
type Profile interface {
	// Name is the key used in configuration, e.g. "iso19139".
	Name() string
	// Title is the human readable name used in error messages.
	Title() string
	// Check returns one message per violated rule.
	Check(doc *iso.Document) []string
}

// registry of known profiles, keyed by name.
var registry = map[string]Profile{
	"iso19139":    iso19139Profile{},
	"constraints": constraintsProfile{},
	"gemini2":     gemini2Profile{},
}

// Available lists the names of every known profile.
func Available() []string {
	return []string{"iso19139", "constraints", "gemini2"}
}

// Lookup returns the profile registered under name.
func Lookup(name string) (Profile, bool) {
	p, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

func isDatasetOrSeries(level string) bool {
	return level == "" || level == "dataset" || level == "series"
}

// iso19139Profile checks the structure mandated by the ISO 19139 schema.
type iso19139Profile struct{}

func (iso19139Profile) Name() string  { return "iso19139" }
func (iso19139Profile) Title() string { return "ISO19139 XSD Schema" }

func (iso19139Profile) Check(doc *iso.Document) []string {
	root := doc.Root()
	if !iso.Is(root, "gmd:MD_Metadata") && !iso.Is(root, "gmi:MI_Metadata") {
		return []string{fmt.Sprintf("Element '%s': No matching global declaration available for the validation root.", qualifiedName(root))}
	}

	var errs []string
	for _, child := range []string{"gmd:contact", "gmd:dateStamp", "gmd:identificationInfo"} {
		if iso.FindOne(root, child) == nil {
			errs = append(errs, fmt.Sprintf("Element '%s': Missing child element '%s'.", qualifiedName(root), child))
		}
	}
	if iso.FindOne(root, "gmd:dateStamp", "gco:Date|gco:DateTime") == nil && iso.FindOne(root, "gmd:dateStamp") != nil {
		errs = append(errs, "Element 'gmd:dateStamp': Missing child element 'gco:Date' or 'gco:DateTime'.")
	}

	ident := iso.Identification(root)
	if ident == nil {
		if iso.FindOne(root, "gmd:identificationInfo") != nil {
			errs = append(errs, "Element 'gmd:identificationInfo': Missing child element 'gmd:MD_DataIdentification' or 'srv:SV_ServiceIdentification'.")
		}
		return errs
	}

	citation := iso.FindOne(ident, "gmd:citation", "gmd:CI_Citation")
	if citation == nil {
		errs = append(errs, fmt.Sprintf("Element '%s': Missing child element 'gmd:citation'.", qualifiedName(ident)))
	} else {
		if iso.FindOne(citation, "gmd:title") == nil {
			errs = append(errs, "Element 'gmd:CI_Citation': Missing child element 'gmd:title'.")
		}
		if iso.FindOne(citation, "gmd:date") == nil {
			errs = append(errs, "Element 'gmd:CI_Citation': Missing child element 'gmd:date'.")
		}
	}
	if iso.FindOne(ident, "gmd:abstract") == nil {
		errs = append(errs, fmt.Sprintf("Element '%s': Missing child element 'gmd:abstract'.", qualifiedName(ident)))
	}

	for _, dec := range iso.Find(ident, "gmd:extent|srv:extent", "gmd:EX_Extent", "gmd:geographicElement", "gmd:EX_GeographicBoundingBox") {
		for _, side := range []string{"westBoundLongitude", "eastBoundLongitude", "southBoundLatitude", "northBoundLatitude"} {
			raw := iso.Text(dec, "gmd:"+side, "gco:Decimal")
			if raw == "" {
				errs = append(errs, fmt.Sprintf("Element 'gmd:EX_GeographicBoundingBox': Missing child element 'gmd:%s'.", side))
				continue
			}
			if _, err := strconv.ParseFloat(raw, 64); err != nil {
				errs = append(errs, fmt.Sprintf("Element 'gco:Decimal': '%s' is not a valid value of the atomic type 'xs:decimal'.", raw))
			}
		}
	}

	return errs
}

// constraintsProfile checks the conditional rules of ISO 19139 Table A.1.
type constraintsProfile struct{}

func (constraintsProfile) Name() string  { return "constraints" }
func (constraintsProfile) Title() string { return "ISO19139 Table A.1 Constraints Schematron" }

func (constraintsProfile) Check(doc *iso.Document) []string {
	md := doc.MetadataRoot()
	if md == nil {
		return []string{"ISOFTDS19139:2005-TableA1: document is not an ISO 19139 record"}
	}

	var errs []string
	level := iso.CodeListValue(iso.FindOne(md, "gmd:hierarchyLevel", "gmd:MD_ScopeCode"))

	if !isDatasetOrSeries(level) && iso.Text(md, "gmd:hierarchyLevelName", "gco:CharacterString") == "" {
		errs = append(errs, "ISOFTDS19139:2005-TableA1-Row07 - hierarchyLevelName is mandatory if hierarchyLevel is not equal to dataset")
	}

	ident := iso.FindOne(md, "gmd:identificationInfo", "gmd:MD_DataIdentification")
	if isDatasetOrSeries(level) && ident != nil {
		if iso.FindOne(ident, "gmd:language") == nil {
			errs = append(errs, "ISOFTDS19139:2005-TableA1-Row09 - language is mandatory if the resource includes textual information")
		}
		if iso.FindOne(ident, "gmd:topicCategory") == nil {
			errs = append(errs, "ISOFTDS19139:2005-TableA1-Row10 - topicCategory is mandatory if hierarchyLevel is equal to dataset or series")
		}
		if iso.FindOne(ident, "gmd:extent", "gmd:EX_Extent", "gmd:geographicElement") == nil {
			errs = append(errs, "ISOFTDS19139:2005-TableA1-Row11 - extent with a geographicElement is mandatory if hierarchyLevel is equal to dataset or series")
		}
	}

	for _, ext := range iso.Find(md, "gmd:identificationInfo", "gmd:MD_DataIdentification|srv:SV_ServiceIdentification", "gmd:extent|srv:extent", "gmd:EX_Extent") {
		if len(ext.ChildElements()) == 0 {
			errs = append(errs, "ISOFTDS19139:2005-TableA1-Row12 - count(description + geographicElement + temporalElement + verticalElement) > 0")
		}
		for _, box := range iso.Find(ext, "gmd:geographicElement", "gmd:EX_GeographicBoundingBox") {
			errs = append(errs, bboxRangeErrors(box)...)
		}
	}

	return errs
}

func bboxRangeErrors(box *etree.Element) []string {
	var errs []string
	read := func(side string) (float64, bool) {
		f, err := strconv.ParseFloat(iso.Text(box, "gmd:"+side, "gco:Decimal"), 64)
		return f, err == nil
	}

	west, okW := read("westBoundLongitude")
	east, okE := read("eastBoundLongitude")
	south, okS := read("southBoundLatitude")
	north, okN := read("northBoundLatitude")

	if okW && (west < -180 || west > 180) {
		errs = append(errs, fmt.Sprintf("westBoundLongitude %v is outside the range -180 to 180", west))
	}
	if okE && (east < -180 || east > 180) {
		errs = append(errs, fmt.Sprintf("eastBoundLongitude %v is outside the range -180 to 180", east))
	}
	if okS && (south < -90 || south > 90) {
		errs = append(errs, fmt.Sprintf("southBoundLatitude %v is outside the range -90 to 90", south))
	}
	if okN && (north < -90 || north > 90) {
		errs = append(errs, fmt.Sprintf("northBoundLatitude %v is outside the range -90 to 90", north))
	}
	if okS && okN && south > north {
		errs = append(errs, fmt.Sprintf("southBoundLatitude %v is greater than northBoundLatitude %v", south, north))
	}
	return errs
}

// gemini2Profile checks the UK GEMINI 2 mandatory elements.
type gemini2Profile struct{}

func (gemini2Profile) Name() string  { return "gemini2" }
func (gemini2Profile) Title() string { return "GEMINI 2.1 Schematron" }

func (gemini2Profile) Check(doc *iso.Document) []string {
	md := doc.MetadataRoot()
	if md == nil {
		return []string{"GEMINI2: document is not a valid Gemini record"}
	}

	var errs []string
	level := iso.CodeListValue(iso.FindOne(md, "gmd:hierarchyLevel", "gmd:MD_ScopeCode"))
	ident := iso.Identification(md)

	if iso.Text(md, "gmd:fileIdentifier", "gco:CharacterString") == "" {
		errs = append(errs, "MI-36 (Metadata file identifier): fileIdentifier is mandatory")
	}
	if iso.Text(ident, "gmd:citation", "gmd:CI_Citation", "gmd:title", "gco:CharacterString") == "" {
		errs = append(errs, "MI-1 (Title): Title is mandatory and must not be empty")
	}
	if iso.Text(ident, "gmd:abstract", "gco:CharacterString") == "" {
		errs = append(errs, "MI-4 (Abstract): Abstract is mandatory and must not be empty")
	}
	if len(iso.Texts(ident, "gmd:descriptiveKeywords", "gmd:MD_Keywords", "gmd:keyword", "gco:CharacterString|gmx:Anchor")) == 0 {
		errs = append(errs, "MI-6 (Keyword): At least one keyword is mandatory")
	}
	if iso.Text(md, "gmd:contact", "gmd:CI_ResponsibleParty", "gmd:contactInfo", "gmd:CI_Contact",
		"gmd:address", "gmd:CI_Address", "gmd:electronicMailAddress", "gco:CharacterString") == "" {
		errs = append(errs, "MI-35 (Metadata point of contact): An email address is mandatory for the metadata point of contact")
	}
	if len(iso.Find(ident, "gmd:citation", "gmd:CI_Citation", "gmd:date", "gmd:CI_Date", "gmd:date")) == 0 {
		errs = append(errs, "MI-8 (Dataset reference date): At least one reference date is mandatory")
	}
	if isDatasetOrSeries(level) {
		if len(iso.Texts(md, "gmd:distributionInfo", "gmd:MD_Distribution", "gmd:transferOptions",
			"gmd:MD_DigitalTransferOptions", "gmd:onLine", "gmd:CI_OnlineResource", "gmd:linkage", "gmd:URL")) == 0 {
			errs = append(errs, "MI-19 (Resource locator): A resource locator is mandatory for datasets and series")
		}
		if iso.FindOne(ident, "gmd:extent", "gmd:EX_Extent", "gmd:temporalElement") == nil {
			errs = append(errs, "MI-7 (Temporal extent): A temporal extent is mandatory for datasets and series")
		}
		if iso.FindOne(ident, "gmd:extent", "gmd:EX_Extent", "gmd:geographicElement", "gmd:EX_GeographicBoundingBox") == nil {
			errs = append(errs, "MI-44 (West bounding longitude): A geographic bounding box is mandatory for datasets and series")
		}
	}

	if len(errs) > 0 {
		errs = append([]string{"This record is not a valid Gemini 2 record"}, errs...)
	}
	return errs
}

func qualifiedName(e *etree.Element) string {
	if e == nil {
		return ""
	}
	return e.FullTag()
}
