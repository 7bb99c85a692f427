// Package lookup implements the Lookup Sync (C6): harvesting RETS lookup
// value domains into the lookup_values table and materializing the
// cross-class property_common_lookups view (spec.md §4.6).
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/retssync/retsd/internal/database"
	"github.com/retssync/retsd/internal/models"
	"github.com/retssync/retsd/internal/rets"
)

// Store harvests lookup domains and holds the in-memory cache described in
// spec.md §4.6: resource → class → field → short → LookupValue, with a
// synthetic COMMON class carrying the Property-wide intersection.
type Store struct {
	client    *rets.Client
	db        *database.DB
	cachePath string
	log       *slog.Logger

	mu    sync.RWMutex
	cache map[string]map[string]map[string]map[string]models.LookupValue
}

// NewStore wires a lookup Store to its RETS client, database and the audit
// snapshot path (spec.md §6.5: cache/lookup_values.json).
func NewStore(client *rets.Client, db *database.DB, cachePath string, log *slog.Logger) *Store {
	return &Store{client: client, db: db, cachePath: cachePath, log: log}
}

// Sync harvests every lookup domain referenced by the catalog's fields,
// bulk inserts them, materializes property_common_lookups, and rebuilds the
// in-memory cache wholesale (spec.md §3.2: "readers may observe only the
// fully-built snapshot").
func (s *Store) Sync(ctx context.Context, session *rets.Session, cat *models.Catalog) error {
	metadataURL, err := s.client.Capability(session, "GetMetadata")
	if err != nil {
		return err
	}

	var harvested []models.LookupValue
	for key, fields := range cat.Fields {
		resourceID, className := splitFieldKey(key)

		seen := map[string]bool{}
		for _, f := range fields {
			if !f.IsLookup() || f.LookupName == "" || seen[f.LookupName] {
				continue
			}
			seen[f.LookupName] = true

			body, err := s.fetchLookupType(ctx, session, metadataURL, resourceID, f.LookupName)
			if err != nil {
				s.log.Error("fetch METADATA-LOOKUP_TYPE failed", "resource", resourceID, "lookup_name", f.LookupName, "error", err)
				continue
			}
			harvested = append(harvested, parseLookupRows(resourceID, className, f.SystemName, body)...)
		}
	}

	if err := s.bulkInsert(ctx, harvested); err != nil {
		return fmt.Errorf("bulk insert lookup_values: %w", err)
	}

	if err := s.materializeCommonView(ctx, cat); err != nil {
		return fmt.Errorf("materialize property_common_lookups: %w", err)
	}

	if err := s.rebuildCache(ctx, harvested, cat); err != nil {
		return fmt.Errorf("rebuild lookup cache: %w", err)
	}

	if err := s.saveAuditSnapshot(harvested); err != nil {
		s.log.Warn("failed to persist lookup audit snapshot", "error", err)
	}

	return nil
}

func (s *Store) fetchLookupType(ctx context.Context, session *rets.Session, metadataURL, resourceID, lookupName string) (*rets.MetadataResponse, error) {
	q := url.Values{}
	q.Set("Type", "METADATA-LOOKUP_TYPE")
	q.Set("ID", resourceID+":"+lookupName)
	q.Set("Format", "COMPACT")

	body, _, err := s.client.AuthenticatedRequest(ctx, session, metadataURL, q)
	if err != nil {
		return nil, err
	}
	return rets.ParseMetadataResponse(string(body))
}

// parseLookupRows turns a METADATA-LOOKUP_TYPE block into LookupValue rows.
// The sort order defaults to the numeric value of the short value, 0 when
// it isn't numeric (spec.md §4.6).
func parseLookupRows(resourceID, className, fieldName string, body *rets.MetadataResponse) []models.LookupValue {
	var out []models.LookupValue
	for _, block := range body.Metadata {
		if block.Type != "METADATA-LOOKUP_TYPE" {
			continue
		}
		idx := columnIndex(block.Columns)
		for _, row := range block.Data {
			short := cell(row, idx, "Value")
			if short == "" {
				continue
			}
			sortOrder, _ := strconv.Atoi(short)
			out = append(out, models.LookupValue{
				ResourceID: resourceID,
				ClassName:  className,
				FieldName:  fieldName,
				ShortValue: short,
				LongValue:  cell(row, idx, "LongValue"),
				SortOrder:  sortOrder,
				Active:     true,
			})
		}
	}
	return out
}

// bulkInsert upserts every harvested row with REPLACE INTO, keyed on the
// (resource_id, class_id, field_name, short_value) uniqueness constraint.
func (s *Store) bulkInsert(ctx context.Context, values []models.LookupValue) error {
	if len(values) == 0 {
		return nil
	}
	const stmt = `REPLACE INTO lookup_values
		(resource_id, class_id, field_name, short_value, long_value, metadata)
		VALUES (:resource_id, :class_id, :field_name, :short_value, :long_value, :metadata)`

	type row struct {
		models.LookupValue
		Metadata string `db:"metadata"`
	}
	rows := make([]row, len(values))
	for i, v := range values {
		meta, _ := json.Marshal(map[string]interface{}{"sort": v.SortOrder, "active": v.Active})
		rows[i] = row{LookupValue: v, Metadata: string(meta)}
	}

	_, err := s.db.NamedExecContext(ctx, stmt, rows)
	return err
}

// materializeCommonView (re)creates property_common_lookups: every
// (field_name, short_value, long_value, metadata) tuple that appears under
// every class of the Property resource (spec.md §4.6).
func (s *Store) materializeCommonView(ctx context.Context, cat *models.Catalog) error {
	classCount := len(cat.Classes["Property"])
	if classCount == 0 {
		classCount = 1
	}

	ddl := fmt.Sprintf(`CREATE OR REPLACE VIEW property_common_lookups AS
		SELECT field_name, short_value, MAX(long_value) AS long_value, MAX(metadata) AS metadata
		FROM lookup_values
		WHERE resource_id = 'Property'
		GROUP BY field_name, short_value
		HAVING COUNT(DISTINCT class_id) = %d`, classCount)

	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// rebuildCache rebuilds the in-memory cache wholesale from the values
// harvested this run plus the rows of the property_common_lookups view; it
// does not read the lookup_values table itself.
func (s *Store) rebuildCache(ctx context.Context, harvested []models.LookupValue, cat *models.Catalog) error {
	cache := map[string]map[string]map[string]map[string]models.LookupValue{}
	for _, v := range harvested {
		insert(cache, v.ResourceID, v.ClassName, v.FieldName, v)
	}

	var common []struct {
		FieldName  string `db:"field_name"`
		ShortValue string `db:"short_value"`
		LongValue  string `db:"long_value"`
	}
	if err := s.db.SelectContext(ctx, &common, "SELECT field_name, short_value, long_value FROM property_common_lookups"); err != nil {
		return err
	}
	for _, c := range common {
		insert(cache, "Property", models.LookupCommonClass, c.FieldName, models.LookupValue{
			ResourceID: "Property",
			ClassName:  models.LookupCommonClass,
			FieldName:  c.FieldName,
			ShortValue: c.ShortValue,
			LongValue:  c.LongValue,
			Active:     true,
		})
	}

	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()
	return nil
}

func insert(cache map[string]map[string]map[string]map[string]models.LookupValue, resource, class, field string, v models.LookupValue) {
	if cache[resource] == nil {
		cache[resource] = map[string]map[string]map[string]models.LookupValue{}
	}
	if cache[resource][class] == nil {
		cache[resource][class] = map[string]map[string]models.LookupValue{}
	}
	if cache[resource][class][field] == nil {
		cache[resource][class][field] = map[string]models.LookupValue{}
	}
	cache[resource][class][field][v.ShortValue] = v
}

// Get resolves a short value to its LookupValue, reading the in-memory
// cache built by the last Sync.
func (s *Store) Get(resource, class, field, short string) (models.LookupValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byField, ok := s.cache[resource][class]
	if !ok {
		return models.LookupValue{}, false
	}
	bySort, ok := byField[field]
	if !ok {
		return models.LookupValue{}, false
	}
	v, ok := bySort[short]
	return v, ok
}

func (s *Store) saveAuditSnapshot(values []models.LookupValue) error {
	if err := os.MkdirAll(filepath.Dir(s.cachePath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.cachePath, data, 0o644)
}

func splitFieldKey(key string) (resourceID, className string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

func columnIndex(columns []string) map[string]int {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	return idx
}

func cell(row []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}
