package spatial

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ckan/ckanext-spatial/pkg/domain"
)

type fakeExtentStore struct {
	setupSRID int
	setupErr  error
	extras    []domain.SpatialExtra
	saved     map[string]string
	deleted   []string
}

func (f *fakeExtentStore) SetupExtentTable(_ context.Context, srid int) error {
	f.setupSRID = srid
	return f.setupErr
}

func (f *fakeExtentStore) SpatialExtras(context.Context) ([]domain.SpatialExtra, error) {
	return f.extras, nil
}

func (f *fakeExtentStore) SaveExtent(_ context.Context, packageID, wkt string) error {
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[packageID] = wkt
	return nil
}

func (f *fakeExtentStore) DeleteExtent(_ context.Context, packageID string) error {
	f.deleted = append(f.deleted, packageID)
	return nil
}

func TestInitDB(t *testing.T) {
	store := &fakeExtentStore{}
	var out bytes.Buffer
	svc := NewService(store, 27700, nil, &out)

	srid, err := svc.ParseSRID("")
	require.NoError(t, err)
	assert.Equal(t, 27700, srid)

	require.NoError(t, svc.InitDB(context.Background(), srid))
	assert.Equal(t, 27700, store.setupSRID)
	assert.Equal(t, "DB tables created\n", out.String())

	srid, err = svc.ParseSRID("3857")
	require.NoError(t, err)
	require.NoError(t, svc.InitDB(context.Background(), srid))
	assert.Equal(t, 3857, store.setupSRID)
}

func TestInitDB_DefaultsTo4326(t *testing.T) {
	svc := NewService(&fakeExtentStore{}, 0, nil, nil)
	srid, err := svc.ParseSRID("")
	require.NoError(t, err)
	assert.Equal(t, 4326, srid)
}

func TestInitDB_Errors(t *testing.T) {
	svc := NewService(&fakeExtentStore{}, 4326, nil, nil)
	for _, arg := range []string{"abc", "-1", "0"} {
		_, err := svc.ParseSRID(arg)
		assert.ErrorIs(t, err, domain.ErrConfigInvalid, arg)
	}

	store := &fakeExtentStore{setupErr: domain.ErrPostGISUnavailable}
	svc = NewService(store, 4326, nil, nil)
	err := svc.InitDB(context.Background(), 4326)
	assert.ErrorIs(t, err, domain.ErrPostGISUnavailable)
}

func TestUpdateExtents(t *testing.T) {
	store := &fakeExtentStore{
		extras: []domain.SpatialExtra{
			{PackageID: "pkg-1", Value: `{"type":"Polygon","coordinates":[[[-6.2,49.9],[1.7,49.9],[1.7,55.8],[-6.2,55.8],[-6.2,49.9]]]}`},
			{PackageID: "pkg-2", Value: `{"type":"Point","coordinates":[-3.18,51.48]}`},
			{PackageID: "pkg-3", Value: `{"type": "Polygon", "coordinates": [[[`},
			{PackageID: "pkg-4", Value: `{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1,2]}}`},
		},
	}
	var out bytes.Buffer
	svc := NewService(store, 4326, nil, &out)

	res, err := svc.UpdateExtents(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 3, res.Generated)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Package pkg-3 - Error decoding JSON object")

	assert.Equal(t, "POLYGON((-6.2 49.9,1.7 49.9,1.7 55.8,-6.2 55.8,-6.2 49.9))", store.saved["pkg-1"])
	assert.Equal(t, "POINT(-3.18 51.48)", store.saved["pkg-2"])
	assert.Equal(t, "POINT(1 2)", store.saved["pkg-4"])
	assert.Equal(t, []string{"pkg-3"}, store.deleted)

	assert.Contains(t, out.String(), "Errors were found:\nPackage pkg-3")
	assert.Contains(t, out.String(), "Done. Extents generated for 3 out of 4 packages\n")
}

type failingExtras struct{ fakeExtentStore }

func (failingExtras) SpatialExtras(context.Context) ([]domain.SpatialExtra, error) {
	return nil, errors.New("relation \"package_extra\" does not exist")
}

func TestUpdateExtents_QueryError(t *testing.T) {
	svc := NewService(&failingExtras{}, 4326, nil, nil)
	_, err := svc.UpdateExtents(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list spatial extras")
}

func TestParseGeoJSON(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wkt     string
		wantErr bool
	}{
		{name: "multipolygon", value: `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]]]}`, wkt: "MULTIPOLYGON(((0 0,1 0,1 1,0 0)))"},
		{name: "feature collection", value: `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1,1]}}]}`, wkt: "GEOMETRYCOLLECTION(POINT(1 1))"},
		{name: "not json", value: "POLYGON((0 0,1 1))", wantErr: true},
		{name: "missing type", value: `{"coordinates":[1,2]}`, wantErr: true},
		{name: "empty feature collection", value: `{"type":"FeatureCollection","features":[]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := ParseGeoJSON(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wkt, ToWKT(g))
		})
	}
}

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox("-6.2, 49.9,1.7,55.8")
	require.NoError(t, err)
	assert.Equal(t, orb.Point{-6.2, 49.9}, b.Min)
	assert.Equal(t, orb.Point{1.7, 55.8}, b.Max)
	assert.Equal(t, "POLYGON((-6.2 49.9,1.7 49.9,1.7 55.8,-6.2 55.8,-6.2 49.9))", BoundWKT(b))

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "5,0,1,1", "0,5,1,1", "1,2,3,4,5"} {
		_, err := ParseBBox(bad)
		assert.ErrorIs(t, err, ErrInvalidBBox, bad)
	}
}

func TestParseBBox_OrderedBoundsRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		minX := rapid.Float64Range(-180, 180).Draw(t, "minX")
		maxX := rapid.Float64Range(minX, 180).Draw(t, "maxX")
		minY := rapid.Float64Range(-90, 90).Draw(t, "minY")
		maxY := rapid.Float64Range(minY, 90).Draw(t, "maxY")

		b := orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
		got, err := ParseBBox(formatBound(b))
		if err != nil {
			t.Fatalf("ordered bound rejected: %v", err)
		}
		if got != b {
			t.Fatalf("expected %v, got %v", b, got)
		}
	})
}

func formatBound(b orb.Bound) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return strings.Join([]string{f(b.Min[0]), f(b.Min[1]), f(b.Max[0]), f(b.Max[1])}, ",")
}

func TestParseCRS(t *testing.T) {
	srid, err := ParseCRS("")
	require.NoError(t, err)
	assert.Equal(t, 4326, srid)

	srid, err = ParseCRS("epsg:27700")
	require.NoError(t, err)
	assert.Equal(t, 27700, srid)

	_, err = ParseCRS("urn:ogc:def:crs:EPSG::4326")
	assert.Error(t, err)
	_, err = ParseCRS("EPSG:abc")
	assert.Error(t, err)
}
