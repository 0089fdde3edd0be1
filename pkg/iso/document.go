// Package iso reads ISO 19139 metadata documents.
//
// Elements are matched by namespace URI and local name, so documents using
// unusual prefixes are read the same as the conventional gmd/gco ones.
package iso

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/ckan/ckanext-spatial/pkg/domain"
)

// Namespace URIs keyed by the conventional prefix.
var namespaces = map[string][]string{
	"gmd": {"http://www.isotc211.org/2005/gmd"},
	"gco": {"http://www.isotc211.org/2005/gco"},
	"gmi": {"http://www.isotc211.org/2005/gmi"},
	"srv": {"http://www.isotc211.org/2005/srv"},
	"gmx": {"http://www.isotc211.org/2005/gmx"},
	"gml": {"http://www.opengis.net/gml", "http://www.opengis.net/gml/3.2"},
}

// Document is a parsed metadata document.
type Document struct {
	doc *etree.Document
}

// Parse reads an XML document. It fails when the input is not well-formed
// or has no root element.
func Parse(data []byte) (*Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidMetadata, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: document has no root element", domain.ErrInvalidMetadata)
	}
	return &Document{doc: doc}, nil
}

// Root returns the document element.
func (d *Document) Root() *etree.Element {
	return d.doc.Root()
}

// String serialises the document back to XML.
func (d *Document) String() string {
	s, err := d.doc.WriteToString()
	if err != nil {
		return ""
	}
	return s
}

// Is reports whether e has the given prefixed name, e.g. "gmd:MD_Metadata".
func Is(e *etree.Element, name string) bool {
	if e == nil {
		return false
	}
	prefix, local, ok := strings.Cut(name, ":")
	if !ok {
		return e.Tag == name
	}
	if e.Tag != local {
		return false
	}
	uri := e.NamespaceURI()
	for _, candidate := range namespaces[prefix] {
		if uri == candidate {
			return true
		}
	}
	// Documents without namespace declarations still use the prefix.
	return uri == "" && e.Space == prefix
}

// Find walks path from e, one child step per element, and returns every match.
// A step may list alternatives separated by "|".
func Find(e *etree.Element, path ...string) []*etree.Element {
	if e == nil {
		return nil
	}
	current := []*etree.Element{e}
	for _, step := range path {
		alternatives := strings.Split(step, "|")
		var next []*etree.Element
		for _, el := range current {
			for _, child := range el.ChildElements() {
				for _, alt := range alternatives {
					if Is(child, alt) {
						next = append(next, child)
						break
					}
				}
			}
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current
}

// FindOne returns the first match of path, or nil.
func FindOne(e *etree.Element, path ...string) *etree.Element {
	found := Find(e, path...)
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

// Text returns the trimmed text of the first match of path.
func Text(e *etree.Element, path ...string) string {
	found := FindOne(e, path...)
	if found == nil {
		return ""
	}
	return strings.TrimSpace(found.Text())
}

// Texts returns the trimmed, non-empty texts of every match of path.
func Texts(e *etree.Element, path ...string) []string {
	var out []string
	for _, el := range Find(e, path...) {
		if t := strings.TrimSpace(el.Text()); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// BBox is a geographic bounding box in decimal degrees.
type BBox struct {
	West  float64
	East  float64
	South float64
	North float64
}

// Values are the fields read from an ISO 19139 record.
type Values struct {
	FileIdentifier   string
	Language         string
	HierarchyLevel   string
	DateStamp        string
	ContactEmail     string
	Title            string
	Abstract         string
	Keywords         []string
	TopicCategories  []string
	ReferenceDates   []string
	TemporalBegin    string
	TemporalEnd      string
	BBox             *BBox
	ResourceLocators []string
}

const (
	rootNames  = "gmd:MD_Metadata|gmi:MI_Metadata"
	identNames = "gmd:MD_DataIdentification|srv:SV_ServiceIdentification"
	extentStep = "gmd:extent|srv:extent"
	dateNames  = "gco:Date|gco:DateTime"
)

// MetadataRoot returns the MD_Metadata element, either the document element or
// the first one nested below it (CSW responses wrap records).
func (d *Document) MetadataRoot() *etree.Element {
	root := d.Root()
	for _, alt := range strings.Split(rootNames, "|") {
		if Is(root, alt) {
			return root
		}
	}
	for _, alt := range strings.Split(rootNames, "|") {
		prefix, local, _ := strings.Cut(alt, ":")
		for _, el := range root.FindElements(".//" + local) {
			if Is(el, prefix+":"+local) {
				return el
			}
		}
	}
	return nil
}

// Identification returns the data or service identification element.
func Identification(md *etree.Element) *etree.Element {
	return FindOne(md, "gmd:identificationInfo", identNames)
}

// ReadValues extracts the fields CKAN and pycsw use from the document.
func (d *Document) ReadValues() (*Values, error) {
	md := d.MetadataRoot()
	if md == nil {
		return nil, fmt.Errorf("%w: no MD_Metadata element", domain.ErrInvalidMetadata)
	}

	v := &Values{
		FileIdentifier: Text(md, "gmd:fileIdentifier", "gco:CharacterString"),
		Language:       languageOf(md),
		HierarchyLevel: CodeListValue(FindOne(md, "gmd:hierarchyLevel", "gmd:MD_ScopeCode")),
		DateStamp:      Text(md, "gmd:dateStamp", dateNames),
		ContactEmail: Text(md, "gmd:contact", "gmd:CI_ResponsibleParty", "gmd:contactInfo", "gmd:CI_Contact",
			"gmd:address", "gmd:CI_Address", "gmd:electronicMailAddress", "gco:CharacterString"),
		ResourceLocators: Texts(md, "gmd:distributionInfo", "gmd:MD_Distribution", "gmd:transferOptions",
			"gmd:MD_DigitalTransferOptions", "gmd:onLine", "gmd:CI_OnlineResource", "gmd:linkage", "gmd:URL"),
	}

	ident := Identification(md)
	if ident == nil {
		return v, nil
	}

	v.Title = Text(ident, "gmd:citation", "gmd:CI_Citation", "gmd:title", "gco:CharacterString")
	v.Abstract = Text(ident, "gmd:abstract", "gco:CharacterString")
	v.Keywords = Texts(ident, "gmd:descriptiveKeywords", "gmd:MD_Keywords", "gmd:keyword", "gco:CharacterString|gmx:Anchor")
	v.TopicCategories = Texts(ident, "gmd:topicCategory", "gmd:MD_TopicCategoryCode")
	v.ReferenceDates = Texts(ident, "gmd:citation", "gmd:CI_Citation", "gmd:date", "gmd:CI_Date", "gmd:date", dateNames)

	v.TemporalBegin = Text(ident, extentStep, "gmd:EX_Extent", "gmd:temporalElement", "gmd:EX_TemporalExtent",
		"gmd:extent", "gml:TimePeriod", "gml:beginPosition")
	v.TemporalEnd = Text(ident, extentStep, "gmd:EX_Extent", "gmd:temporalElement", "gmd:EX_TemporalExtent",
		"gmd:extent", "gml:TimePeriod", "gml:endPosition")

	box := FindOne(ident, extentStep, "gmd:EX_Extent", "gmd:geographicElement", "gmd:EX_GeographicBoundingBox")
	if box != nil {
		bbox, err := readBBox(box)
		if err != nil {
			return nil, err
		}
		v.BBox = bbox
	}

	return v, nil
}

func readBBox(box *etree.Element) (*BBox, error) {
	coords := make(map[string]float64, 4)
	for _, side := range []string{"westBoundLongitude", "eastBoundLongitude", "southBoundLatitude", "northBoundLatitude"} {
		raw := Text(box, "gmd:"+side, "gco:Decimal")
		if raw == "" {
			return nil, fmt.Errorf("%w: bounding box is missing %s", domain.ErrInvalidMetadata, side)
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bounding box %s %q is not a number", domain.ErrInvalidMetadata, side, raw)
		}
		coords[side] = f
	}
	return &BBox{
		West:  coords["westBoundLongitude"],
		East:  coords["eastBoundLongitude"],
		South: coords["southBoundLatitude"],
		North: coords["northBoundLatitude"],
	}, nil
}

func languageOf(md *etree.Element) string {
	if lang := Text(md, "gmd:language", "gco:CharacterString"); lang != "" {
		return lang
	}
	return CodeListValue(FindOne(md, "gmd:language", "gmd:LanguageCode"))
}

// CodeListValue returns the codeListValue attribute of e, falling back to its text.
func CodeListValue(e *etree.Element) string {
	if e == nil {
		return ""
	}
	if v := e.SelectAttrValue("codeListValue", ""); v != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(e.Text())
}
