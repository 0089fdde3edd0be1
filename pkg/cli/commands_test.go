package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ckan/ckanext-spatial/pkg/config"
	"github.com/ckan/ckanext-spatial/pkg/domain"
	"github.com/ckan/ckanext-spatial/pkg/pycsw"
	"github.com/ckan/ckanext-spatial/pkg/webapp"
)

type fakeStore struct {
	srid    int
	extras  []domain.SpatialExtra
	saved   map[string]string
	rows    []domain.HarvestReportRow
	closed  bool
	openURL string
}

func (f *fakeStore) SetupExtentTable(_ context.Context, srid int) error {
	f.srid = srid
	return nil
}

func (f *fakeStore) SpatialExtras(context.Context) ([]domain.SpatialExtra, error) {
	return f.extras, nil
}

func (f *fakeStore) SaveExtent(_ context.Context, packageID, wkt string) error {
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[packageID] = wkt
	return nil
}

func (f *fakeStore) DeleteExtent(context.Context, string) error { return nil }

func (f *fakeStore) BBoxSearch(context.Context, orb.Bound, int) ([]string, error) { return nil, nil }

func (f *fakeStore) GetPackage(_ context.Context, ref string) (*domain.Package, error) {
	if ref == "flood-risk-areas" {
		return &domain.Package{ID: "b1f0c6a2", Name: ref}, nil
	}
	return nil, domain.PackageNotFound(ref)
}

func (f *fakeStore) HarvestReport(context.Context, string) ([]domain.HarvestReportRow, error) {
	return f.rows, nil
}

func (f *fakeStore) Close() { f.closed = true }

type fakeCatalog struct {
	datasets []domain.HarvestedDataset
	tags     []domain.TagCount
}

func (f *fakeCatalog) SearchHarvested(_ context.Context, start int) ([]domain.HarvestedDataset, error) {
	if start > 0 {
		return nil, nil
	}
	return f.datasets, nil
}

func (f *fakeCatalog) HarvestObject(context.Context, string) ([]byte, error) {
	return os.ReadFile(datasetFixture)
}

func (f *fakeCatalog) TagCounts(context.Context) ([]domain.TagCount, error) {
	return f.tags, nil
}

// Resolved before any test changes directory.
var datasetFixture, _ = filepath.Abs("../iso/testdata/dataset.xml")

type testEnv struct {
	*Env
	store    *fakeStore
	catalog  *fakeCatalog
	out      *bytes.Buffer
	ckanURLs []string
}

func newTestEnv() *testEnv {
	te := &testEnv{store: &fakeStore{}, catalog: &fakeCatalog{}, out: &bytes.Buffer{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()
	cfg.Database.URL = "postgres://ckan@localhost/ckan"

	te.Env = &Env{
		Config: cfg,
		Logger: logger,
		Out:    te.out,
		App:    webapp.New(nil, logger),
		OpenStore: func(_ context.Context, url string) (Store, error) {
			te.store.openURL = url
			return te.store, nil
		},
		NewCatalog: func(url string) pycsw.Catalog {
			te.ckanURLs = append(te.ckanURLs, url)
			return te.catalog
		},
	}
	return te
}

func (te *testEnv) execute(args ...string) error {
	root := &cobra.Command{Use: "ckan-spatial", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(Commands(te.Env)...)
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

// pycswDir creates default.cfg with a sqlite repository in a temp working dir.
func pycswDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	cfg := "[repository]\ndatabase=sqlite:///" + filepath.Join(dir, "records.db") + "\ntable=records\n\n[metadata:main]\nidentification_keywords=\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, pycsw.DefaultConfigPath), []byte(cfg), 0o644))
	return dir
}

func TestCommands_Nesting(t *testing.T) {
	groups := map[string][]string{}
	for _, group := range Commands(newTestEnv().Env) {
		for _, sub := range group.Commands() {
			groups[group.Name()] = append(groups[group.Name()], sub.Name())
		}
	}

	assert.ElementsMatch(t, []string{"initdb", "extents"}, groups["spatial"])
	assert.ElementsMatch(t, []string{"report", "report-csv", "file"}, groups["spatial-validation"])
	assert.ElementsMatch(t, []string{"setup", "clear", "load", "set-keywords"}, groups["ckan-pycsw"])
}

func TestPycswFlags_Defaults(t *testing.T) {
	var pycswCmd *cobra.Command
	for _, c := range Commands(newTestEnv().Env) {
		if c.Name() == "ckan-pycsw" {
			pycswCmd = c
		}
	}
	require.NotNil(t, pycswCmd)

	p := pycswCmd.PersistentFlags().Lookup("pycsw_config")
	require.NotNil(t, p)
	assert.Equal(t, "p", p.Shorthand)
	assert.Equal(t, "default.cfg", p.DefValue)

	assert.Nil(t, pycswCmd.PersistentFlags().Lookup("ckan_url"))
	for _, sub := range pycswCmd.Commands() {
		u := sub.Flags().Lookup("ckan_url")
		switch sub.Name() {
		case "load", "set-keywords":
			require.NotNil(t, u, sub.Name())
			assert.Equal(t, "u", u.Shorthand)
			assert.Equal(t, "http://localhost", u.DefValue)
		default:
			assert.Nil(t, u, sub.Name())
		}
	}
}

func TestPycswCKANURL_OnlyOnLoadAndSetKeywords(t *testing.T) {
	pycswDir(t)
	te := newTestEnv()

	tests := [][]string{
		{"ckan-pycsw", "setup", "-u", "http://x"},
		{"ckan-pycsw", "clear", "--ckan_url", "http://x"},
	}
	for _, args := range tests {
		err := te.execute(args...)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "unknown")
	}
	assert.Nil(t, te.App.Metrics())
	assert.Empty(t, te.ckanURLs)
}

func TestSpatialInitDB(t *testing.T) {
	te := newTestEnv()
	require.NoError(t, te.execute("spatial", "initdb"))
	assert.Equal(t, 4326, te.store.srid)
	assert.Equal(t, "postgres://ckan@localhost/ckan", te.store.openURL)
	assert.True(t, te.store.closed)
	assert.Equal(t, "DB tables created\n", te.out.String())

	require.NoError(t, te.execute("spatial", "initdb", "27700"))
	assert.Equal(t, 27700, te.store.srid)

	assert.ErrorIs(t, te.execute("spatial", "initdb", "wgs84"), domain.ErrConfigInvalid)
	assert.Error(t, te.execute("spatial", "initdb", "1", "2"))
}

func TestSpatialExtents(t *testing.T) {
	te := newTestEnv()
	te.store.extras = []domain.SpatialExtra{
		{PackageID: "a", Value: `{"type":"Point","coordinates":[1,2]}`},
		{PackageID: "b", Value: `not json`},
	}
	require.NoError(t, te.execute("spatial", "extents"))
	assert.Equal(t, "POINT(1 2)", te.store.saved["a"])
	assert.Contains(t, te.out.String(), "Done. Extents generated for 1 out of 2 packages")
}

func TestValidationReport(t *testing.T) {
	te := newTestEnv()
	fetched := time.Date(2024, 3, 11, 9, 30, 5, 0, time.UTC)
	te.store.rows = []domain.HarvestReportRow{{HarvestObjectID: "ho-1", FetchFinished: &fetched, DatasetName: "flood-risk-areas"}}

	require.NoError(t, te.execute("spatial-validation", "report", "flood-risk-areas"))
	assert.Contains(t, te.out.String(), "Harvest Object id: ho-1")

	err := te.execute("spatial-validation", "report", "nope")
	assert.EqualError(t, err, `package ref "nope" not recognised`)
}

func TestValidationReportCSV(t *testing.T) {
	te := newTestEnv()
	te.store.rows = []domain.HarvestReportRow{{HarvestObjectID: "ho-1"}}
	path := filepath.Join(t.TempDir(), "report.csv")

	require.NoError(t, te.execute("spatial-validation", "report-csv", path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Harvest Object id,GEMINI2 id")

	assert.Error(t, te.execute("spatial-validation", "report-csv"))
}

func TestValidationFile(t *testing.T) {
	te := newTestEnv()
	require.NoError(t, te.execute("spatial-validation", "file", datasetFixture))
	assert.Contains(t, te.out.String(), "Valid: true")

	err := te.execute("spatial-validation", "file", filepath.Join(t.TempDir(), "missing.xml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestPycswSetup_AttachesMetricsOnce(t *testing.T) {
	pycswDir(t)
	te := newTestEnv()
	require.Nil(t, te.App.Metrics())

	require.NoError(t, te.execute("ckan-pycsw", "setup"))
	first := te.App.Metrics()
	require.NotNil(t, first)

	require.NoError(t, te.execute("ckan-pycsw", "setup"))
	assert.Same(t, first, te.App.Metrics())
}

func TestPycswMissingConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	te := newTestEnv()

	err := te.execute("ckan-pycsw", "clear")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)
	assert.Contains(t, err.Error(), "default.cfg does not exist.")
}

func TestPycswSetup_FailureLeavesMetricsDetached(t *testing.T) {
	t.Chdir(t.TempDir())
	te := newTestEnv()

	err := te.execute("ckan-pycsw", "setup")
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)
	assert.Nil(t, te.App.Metrics())
}

func TestServeHandler_Metrics(t *testing.T) {
	te := newTestEnv()
	h := serveHandler(te.Env)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	// A later setup in the same process reuses the attached metrics.
	m := te.App.Metrics()
	require.NotNil(t, m)
	pycswDir(t)
	require.NoError(t, te.execute("ckan-pycsw", "setup"))
	assert.Same(t, m, te.App.Metrics())
}

func TestServeHandler_MetricsDisabled(t *testing.T) {
	te := newTestEnv()
	te.Config.Server.Metrics = false
	h := serveHandler(te.Env)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Nil(t, te.App.Metrics())
}

func TestPycswLoad(t *testing.T) {
	pycswDir(t)
	te := newTestEnv()
	te.catalog.datasets = []domain.HarvestedDataset{{ID: "b1f0c6a2", MetadataModified: "2024-03-11T09:30:05", HarvestObjectID: "ho-1"}}

	require.NoError(t, te.execute("ckan-pycsw", "setup"))
	require.NoError(t, te.execute("ckan-pycsw", "load"))
	require.NoError(t, te.execute("ckan-pycsw", "load", "-u", "https://data.example.org///"))
	require.NoError(t, te.execute("ckan-pycsw", "clear"))

	assert.Equal(t, []string{"http://localhost/", "https://data.example.org/"}, te.ckanURLs)
	assert.Contains(t, te.out.String(), "Gathered 1 datasets: 1 inserted")
}

func TestPycswSetKeywords(t *testing.T) {
	dir := pycswDir(t)
	te := newTestEnv()
	te.catalog.tags = []domain.TagCount{{Name: "rivers", Count: 2}, {Name: "flooding", Count: 9}}

	require.NoError(t, te.execute("ckan-pycsw", "set-keywords", "--ckan_url", "http://ckan.local/"))
	assert.Equal(t, []string{"http://ckan.local/"}, te.ckanURLs)
	assert.Contains(t, te.out.String(), "Keywords set: flooding,rivers")

	cfg, err := pycsw.LoadConfig(filepath.Join(dir, pycsw.DefaultConfigPath))
	require.NoError(t, err)
	assert.Equal(t, []string{"flooding", "rivers"}, cfg.Keywords())
}
