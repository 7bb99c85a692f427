// Package catalog implements the Metadata Catalog (C3): three RETS
// metadata calls composed into a derived, disk-cached catalog of
// resources, classes and fields (spec.md §4.3).
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/retssync/retsd/internal/models"
	"github.com/retssync/retsd/internal/rets"
)

var reUpdateField = regexp.MustCompile(`^[A-Z]_UpdateDate$`)

// Store derives and persists the metadata catalog described in spec.md §4.3.
// The in-process copy is kept across engine cycles and re-derived only
// after Invalidate has been called (spec.md §3.3).
type Store struct {
	client    *rets.Client
	cachePath string

	mu      sync.RWMutex
	current *models.Catalog
}

// NewStore wires a catalog Store to a RETS client and a disk cache path
// (spec.md §6.5: cache/update_fields.json).
func NewStore(client *rets.Client, cachePath string) *Store {
	return &Store{client: client, cachePath: cachePath}
}

// Invalidate drops the in-process cache; the next Load call refetches.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// Load returns the cached catalog, reading the disk cache or refetching
// from the remote server if neither is populated.
func (s *Store) Load(ctx context.Context, session *rets.Session) (*models.Catalog, error) {
	s.mu.RLock()
	if s.current != nil {
		cached := s.current
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	if cat, err := s.loadFromDisk(); err == nil && cat != nil {
		s.mu.Lock()
		s.current = cat
		s.mu.Unlock()
		return cat, nil
	}

	return s.Refresh(ctx, session)
}

// Refresh fetches METADATA-RESOURCE, METADATA-CLASS and METADATA-TABLE and
// rebuilds the catalog, persisting the result to disk.
func (s *Store) Refresh(ctx context.Context, session *rets.Session) (*models.Catalog, error) {
	searchURL, err := s.client.Capability(session, "GetMetadata")
	if err != nil {
		return nil, err
	}

	resourceBody, err := s.getMetadata(ctx, session, searchURL, "METADATA-RESOURCE", "0")
	if err != nil {
		return nil, fmt.Errorf("fetch METADATA-RESOURCE: %w", err)
	}

	cat := &models.Catalog{
		Resources: map[string]models.Resource{},
		Classes:   map[string][]models.Class{},
		Fields:    map[string][]models.FieldDef{},
	}

	for _, block := range resourceBody.Metadata {
		if block.Type != "METADATA-RESOURCE" {
			continue
		}
		idx := columnIndex(block.Columns)
		for _, row := range block.Data {
			resourceID := cell(row, idx, "ResourceID")
			if resourceID == "" {
				continue
			}
			cat.Resources[resourceID] = models.Resource{
				ResourceID:  resourceID,
				KeyField:    cell(row, idx, "KeyField"),
				Description: cell(row, idx, "Description"),
			}
		}
	}

	for resourceID, res := range cat.Resources {
		classBody, err := s.getMetadata(ctx, session, searchURL, "METADATA-CLASS", resourceID+":0")
		if err != nil {
			return nil, fmt.Errorf("fetch METADATA-CLASS for %s: %w", resourceID, err)
		}

		var classNames []string
		for _, block := range classBody.Metadata {
			if block.Type != "METADATA-CLASS" {
				continue
			}
			idx := columnIndex(block.Columns)
			for _, row := range block.Data {
				className := cell(row, idx, "ClassName")
				if className == "" {
					continue
				}
				classNames = append(classNames, className)
				cat.Classes[resourceID] = append(cat.Classes[resourceID], models.Class{
					ResourceID:  resourceID,
					ClassName:   className,
					Description: cell(row, idx, "Description"),
				})
			}
		}
		if len(classNames) == 0 {
			classNames = []string{""}
		}

		var updateField string
		for _, className := range classNames {
			tableID := resourceID + ":" + className
			if className == "" {
				tableID = resourceID
			}
			tableBody, err := s.getMetadata(ctx, session, searchURL, "METADATA-TABLE", tableID)
			if err != nil {
				return nil, fmt.Errorf("fetch METADATA-TABLE for %s: %w", tableID, err)
			}

			fields := parseFields(resourceID, className, tableBody)
			cat.Fields[models.FieldKey(resourceID, className)] = fields

			if updateField == "" {
				updateField = deriveUpdateField(fields)
			}
		}
		if updateField == "" {
			updateField = "N/A"
		}

		res.Classes = classNames
		res.UpdateFieldName = updateField
		res.SyncIntervalMin = syncInterval(resourceID, updateField)
		if updateField == "N/A" {
			res.SyncType = models.SyncFull
		} else {
			res.SyncType = models.SyncPartial
		}
		cat.Resources[resourceID] = res
	}

	if err := s.saveToDisk(cat); err != nil {
		return nil, fmt.Errorf("persist catalog: %w", err)
	}

	s.mu.Lock()
	s.current = cat
	s.mu.Unlock()

	return cat, nil
}

func (s *Store) getMetadata(ctx context.Context, session *rets.Session, metadataURL, typ, id string) (*rets.MetadataResponse, error) {
	q := url.Values{}
	q.Set("Type", typ)
	q.Set("ID", id)
	q.Set("Format", "COMPACT")

	body, _, err := s.client.AuthenticatedRequest(ctx, session, metadataURL, q)
	if err != nil {
		return nil, err
	}
	return rets.ParseMetadataResponse(string(body))
}

// deriveUpdateField picks the first field whose SystemName matches
// [A-Z]_UpdateDate$ and does not start with U_ or O_ (spec.md §4.3).
func deriveUpdateField(fields []models.FieldDef) string {
	for _, f := range fields {
		if strings.HasPrefix(f.SystemName, "U_") || strings.HasPrefix(f.SystemName, "O_") {
			continue
		}
		if reUpdateField.MatchString(f.SystemName) {
			return f.SystemName
		}
	}
	return ""
}

// syncInterval applies spec.md §4.3's heuristic: 1 minute for Property_*,
// 60 for Office/ActiveOffice/Agent/ActiveAgent, else 1440; forced to 1440
// when there is no update field.
func syncInterval(resourceID, updateField string) int {
	if updateField == "N/A" || updateField == "" {
		return 1440
	}
	switch {
	case strings.HasPrefix(resourceID, "Property"):
		return 1
	case resourceID == "Office" || resourceID == "ActiveOffice" || resourceID == "Agent" || resourceID == "ActiveAgent":
		return 60
	default:
		return 1440
	}
}

func parseFields(resourceID, className string, body *rets.MetadataResponse) []models.FieldDef {
	var fields []models.FieldDef
	for _, block := range body.Metadata {
		if block.Type != "METADATA-TABLE" {
			continue
		}
		idx := columnIndex(block.Columns)
		for _, row := range block.Data {
			fields = append(fields, fieldFromRow(resourceID, className, row, idx))
		}
	}
	return fields
}

func fieldFromRow(resourceID, className string, row []string, idx map[string]int) models.FieldDef {
	f := models.FieldDef{
		ResourceID:     resourceID,
		ClassName:      className,
		SystemName:     cell(row, idx, "SystemName"),
		LongName:       cell(row, idx, "LongName"),
		StandardName:   cell(row, idx, "StandardName"),
		DataType:       models.DataType(strings.ToLower(cell(row, idx, "DataType"))),
		Interpretation: models.Interpretation(orDefault(cell(row, idx, "Interpretation"), "None")),
		LookupName:     cell(row, idx, "LookupName"),
		Required:       cell(row, idx, "Required") == "1",
	}
	if v := cell(row, idx, "MaximumLength"); v != "" {
		f.MaxLength = atoi(v)
		f.HasMaxLength = true
	}
	if v := cell(row, idx, "Precision"); v != "" {
		f.Precision = atoi(v)
		f.HasPrecision = true
	}
	return f
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

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func (s *Store) loadFromDisk() (*models.Catalog, error) {
	data, err := os.ReadFile(s.cachePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var cat models.Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (s *Store) saveToDisk(cat *models.Catalog) error {
	if err := os.MkdirAll(filepath.Dir(s.cachePath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.cachePath, data, 0o644)
}
