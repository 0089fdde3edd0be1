package pycsw

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ckan/ckanext-spatial/pkg/domain"
	"github.com/ckan/ckanext-spatial/pkg/telemetry"
)

// RecordStore is the records table as seen by Load.
type RecordStore interface {
	Existing(ctx context.Context) (map[string]string, error)
	Insert(ctx context.Context, rec *domain.Record) error
	Update(ctx context.Context, rec *domain.Record) error
	Delete(ctx context.Context, ckanIDs []string) error
}

// Catalog is the CKAN site as seen by Load and SetKeywords.
type Catalog interface {
	SearchHarvested(ctx context.Context, start int) ([]domain.HarvestedDataset, error)
	HarvestObject(ctx context.Context, id string) ([]byte, error)
	TagCounts(ctx context.Context) ([]domain.TagCount, error)
}

// arcgisSource marks harvest sources whose objects are not ISO documents.
const arcgisSource = "arcgis"

// Changes is the difference between CKAN and the records table.
type Changes struct {
	New     []string
	Changed []string
	Deleted []string
}

// Diff compares the gathered datasets with the existing records. A record is
// changed when CKAN reports a later metadata_modified than the one stored.
func Diff(existing map[string]string, gathered map[string]domain.HarvestedDataset) Changes {
	var c Changes
	for id, ds := range gathered {
		modified, ok := existing[id]
		switch {
		case !ok:
			c.New = append(c.New, id)
		case ds.MetadataModified > modified:
			c.Changed = append(c.Changed, id)
		}
	}
	for id := range existing {
		if _, ok := gathered[id]; !ok {
			c.Deleted = append(c.Deleted, id)
		}
	}
	sort.Strings(c.New)
	sort.Strings(c.Changed)
	sort.Strings(c.Deleted)
	return c
}

// LoadResult counts what a Load did.
type LoadResult struct {
	Gathered int
	Inserted int
	Updated  int
	Deleted  int
	Skipped  int
	Failed   int
}

// Syncer loads harvested CKAN datasets into a records repository.
type Syncer struct {
	records RecordStore
	catalog Catalog
	logger  *slog.Logger
	now     func() time.Time
}

// NewSyncer builds a Syncer.
func NewSyncer(records RecordStore, catalog Catalog, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{records: records, catalog: catalog, logger: logger, now: time.Now}
}

// Gather pages through the harvested datasets until an empty page.
func (s *Syncer) Gather(ctx context.Context) (map[string]domain.HarvestedDataset, error) {
	gathered := map[string]domain.HarvestedDataset{}
	for start := 0; ; {
		s.logger.Info("Gathering CKAN IDs", "start", start)
		page, err := s.catalog.SearchHarvested(ctx, start)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, ds := range page {
			gathered[ds.ID] = ds
		}
		start += len(page)
	}
	return gathered, nil
}

// Load inserts new datasets, updates changed ones and removes records whose
// dataset is gone. Insert failures are logged and counted, an update failure
// aborts the load.
func (s *Syncer) Load(ctx context.Context) (res *LoadResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "pycsw.load")
	defer func() { telemetry.EndSpan(span, err) }()

	s.logger.Info("Started gathering CKAN datasets identifiers")
	gathered, err := s.Gather(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := s.records.Existing(ctx)
	if err != nil {
		return nil, fmt.Errorf("read existing records: %w", err)
	}

	changes := Diff(existing, gathered)
	res = &LoadResult{Gathered: len(gathered)}

	if len(changes.Deleted) > 0 {
		s.logger.Info("Deleting records", "count", len(changes.Deleted))
		err := s.records.Delete(ctx, changes.Deleted)
		telemetry.RecordSync(ctx, telemetry.OpDelete, len(changes.Deleted), err)
		if err != nil {
			return nil, err
		}
		res.Deleted = len(changes.Deleted)
	}

	for _, id := range changes.New {
		rec := s.record(ctx, id, gathered[id])
		if rec == nil {
			res.Skipped++
			telemetry.RecordSync(ctx, telemetry.OpSkip, 1, nil)
			continue
		}
		err := s.records.Insert(ctx, rec)
		telemetry.RecordSync(ctx, telemetry.OpInsert, 1, err)
		if err != nil {
			s.logger.Error("Could not insert record", "ckan_id", id, "error", err)
			res.Failed++
			continue
		}
		s.logger.Info("Inserted record", "ckan_id", id)
		res.Inserted++
	}

	for _, id := range changes.Changed {
		rec := s.record(ctx, id, gathered[id])
		if rec == nil {
			res.Skipped++
			telemetry.RecordSync(ctx, telemetry.OpSkip, 1, nil)
			continue
		}
		err := s.records.Update(ctx, rec)
		telemetry.RecordSync(ctx, telemetry.OpUpdate, 1, err)
		if err != nil {
			return nil, fmt.Errorf("update record %s: %w", id, err)
		}
		s.logger.Info("Updated record", "ckan_id", id)
		res.Updated++
	}

	s.logger.Info("Load finished",
		"gathered", res.Gathered, "inserted", res.Inserted, "updated", res.Updated,
		"deleted", res.Deleted, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// record fetches and converts one harvest object, or returns nil when the
// dataset cannot become a record.
func (s *Syncer) record(ctx context.Context, id string, ds domain.HarvestedDataset) *domain.Record {
	if ds.Source == arcgisSource {
		return nil
	}

	content, err := s.catalog.HarvestObject(ctx, ds.HarvestObjectID)
	if err != nil {
		s.logger.Error("Could not fetch harvest object", "ckan_id", id, "harvest_object_id", ds.HarvestObjectID, "error", err)
		return nil
	}

	rec, err := BuildRecord(content, ds, s.now())
	if err != nil {
		s.logger.Error("Could not extract metadata", "ckan_id", id, "error", err)
		return nil
	}
	return rec
}
