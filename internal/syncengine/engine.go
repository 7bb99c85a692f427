// Package syncengine implements the Sync Engine (C5): the main
// reconciliation loop that chooses full vs. partial sync per resource
// class, paginates Search results, upserts rows and advances the
// per-table watermark (spec.md §4.5).
package syncengine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/retssync/retsd/internal/catalog"
	"github.com/retssync/retsd/internal/database"
	"github.com/retssync/retsd/internal/lockout"
	"github.com/retssync/retsd/internal/models"
	"github.com/retssync/retsd/internal/rets"
	"github.com/retssync/retsd/internal/schema"
)

const defaultPageLimit = 2500

// Config tunes the engine's timing; zero values fall back to spec.md's
// stated defaults.
type Config struct {
	TickInterval        time.Duration
	FullSyncMinInterval time.Duration
	PageLimit           int
	FullSyncCachePath   string
}

func (c Config) withDefaults() Config {
	if c.TickInterval == 0 {
		c.TickInterval = 60 * time.Second
	}
	if c.FullSyncMinInterval == 0 {
		c.FullSyncMinInterval = 3 * time.Hour
	}
	if c.PageLimit == 0 {
		c.PageLimit = defaultPageLimit
	}
	if c.FullSyncCachePath == "" {
		c.FullSyncCachePath = "cache/full_sync_times.json"
	}
	return c
}

// Engine is the long-lived sync loop described in spec.md §4.5/§5.
type Engine struct {
	client   *rets.Client
	db       *database.DB
	catalog  *catalog.Store
	lockouts *lockout.Set
	cfg      Config
	fullSync *fullSyncTracker
	log      *slog.Logger

	// OnCycle, if set, is called after every RunCycle attempt (success or
	// failure), letting callers track liveness for GET /health.
	OnCycle func(time.Time)
}

// New wires an Engine to its collaborators.
func New(client *rets.Client, db *database.DB, cat *catalog.Store, lockouts *lockout.Set, cfg Config, log *slog.Logger) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		client:   client,
		db:       db,
		catalog:  cat,
		lockouts: lockouts,
		cfg:      cfg,
		fullSync: newFullSyncTracker(cfg.FullSyncCachePath),
		log:      log,
	}
}

// Run ticks RunCycle on cfg.TickInterval until ctx is cancelled. The
// engine never exits on a cycle's error — it logs and waits for the next
// tick (spec.md §5: cancellation is by process exit, not per-cycle abort).
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.runCycleLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runCycleLogged(ctx)
		}
	}
}

func (e *Engine) runCycleLogged(ctx context.Context) {
	if err := e.RunCycle(ctx); err != nil {
		e.log.Error("sync cycle failed", "error", err)
	}
	if e.OnCycle != nil {
		e.OnCycle(time.Now())
	}
}

// RunCycle performs one full reconciliation pass over every (resource,
// class) in the catalog, per spec.md §4.5.
func (e *Engine) RunCycle(ctx context.Context) error {
	session, err := e.client.Login(ctx)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	cat, err := e.catalog.Load(ctx, session)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	searchURL, err := e.client.Capability(session, "Search")
	if err != nil {
		return fmt.Errorf("resolve search capability: %w", err)
	}

	for resourceID, res := range cat.Resources {
		classes := res.Classes
		if len(classes) == 0 {
			classes = []string{""}
		}
		for _, className := range classes {
			if e.lockouts.Contains(resourceID, className) {
				continue
			}
			if err := e.syncPair(ctx, session, searchURL, cat, res, className, len(classes)); err != nil {
				e.log.Error("sync pair failed", "resource", resourceID, "class", className, "error", err)
			}
		}
	}
	return nil
}

func (e *Engine) syncPair(ctx context.Context, session *rets.Session, searchURL string, cat *models.Catalog, res models.Resource, className string, classCount int) error {
	log := e.log.With("resource", res.ResourceID, "class", className)

	tableName := TableName(res.ResourceID, className, classCount)
	fields := cat.Fields[models.FieldKey(res.ResourceID, className)]

	exists, err := e.tableExists(ctx, tableName)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}
	if !exists {
		if err := e.createTable(ctx, res, className, tableName, fields); err != nil {
			return fmt.Errorf("%w: %v", ErrSchema, err)
		}
	}

	searchType, class := SearchTypeClass(res.ResourceID, className, classCount)

	if res.HasUpdateField() {
		return e.syncPartial(ctx, session, searchURL, res, tableName, searchType, class, fields, log)
	}
	return e.syncFull(ctx, session, searchURL, res, tableName, searchType, class, fields, log)
}

func (e *Engine) syncPartial(ctx context.Context, session *rets.Session, searchURL string, res models.Resource, tableName, searchType, class string, fields []models.FieldDef, log *slog.Logger) error {
	lastValue, err := e.watermark(ctx, tableName, res.UpdateFieldName)
	if err != nil {
		return fmt.Errorf("read watermark: %w", err)
	}

	query := fmt.Sprintf("(%s=%s+)", res.UpdateFieldName, lastValue)
	return e.paginate(ctx, session, searchURL, tableName, searchType, class, query, res, fields, log)
}

func (e *Engine) syncFull(ctx context.Context, session *rets.Session, searchURL string, res models.Resource, tableName, searchType, class string, fields []models.FieldDef, log *slog.Logger) error {
	if !e.fullSync.shouldRun(tableName, e.cfg.FullSyncMinInterval, time.Now()) {
		return nil
	}

	if _, err := e.db.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE `%s`", tableName)); err != nil {
		return fmt.Errorf("%w: truncate: %v", ErrSchema, err)
	}

	if err := e.paginate(ctx, session, searchURL, tableName, searchType, class, "", res, fields, log); err != nil {
		return err
	}

	return e.fullSync.recordRun(tableName, time.Now())
}

// paginate pages through Search with Limit=2500, advancing Offset by
// Limit until a batch returns fewer records than Limit (spec.md §4.5
// step 3). A zero-record batch is inspected for the unauthorized-query
// signature, which triggers a lockout and table drop (spec.md §4.5
// step 4 / §7).
func (e *Engine) paginate(ctx context.Context, session *rets.Session, searchURL, tableName, searchType, class, dmql string, res models.Resource, fields []models.FieldDef, log *slog.Logger) error {
	offset := 0
	for {
		q := url.Values{}
		q.Set("SearchType", searchType)
		q.Set("Class", class)
		q.Set("QueryType", "DMQL2")
		q.Set("Format", "COMPACT")
		q.Set("StandardNames", "0")
		if dmql != "" {
			q.Set("Query", dmql)
		}
		q.Set("Count", "1")
		q.Set("Limit", fmt.Sprintf("%d", e.cfg.PageLimit))
		q.Set("Offset", fmt.Sprintf("%d", offset))

		body, _, err := e.client.AuthenticatedRequest(ctx, session, searchURL, q)
		if err != nil {
			return fmt.Errorf("%w: %v", rets.ErrTransport, err)
		}

		parsed, err := rets.ParseSearchResponse(string(body))
		if err != nil {
			return err
		}

		if len(parsed.Rows) == 0 {
			if resource, class, ok := rets.IsUnauthorizedQuery(parsed.ReplyCode, parsed.ReplyText); ok {
				log.Warn("unauthorized query, locking out pair", "resource", resource, "class", class)
				if err := e.lockouts.Add(res.ResourceID, class); err != nil {
					log.Error("failed to persist lockout", "error", err)
				}
				if _, err := e.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS `%s`", tableName)); err != nil {
					log.Error("failed to drop table after lockout", "table", tableName, "error", err)
				}
				return nil
			}
			if parsed.ReplyCode != "" && parsed.ReplyCode != "0" {
				log.Warn("non-zero reply code, skipping pair this cycle", "reply_code", parsed.ReplyCode, "reply_text", parsed.ReplyText)
			}
			return nil
		}

		for _, row := range parsed.Rows {
			values := SanitizeRow(fields, parsed.Columns, row)
			stmt, args := ReplaceInto(tableName, values)
			if _, err := e.db.ExecContext(ctx, stmt, args...); err != nil {
				log.Error("row upsert failed", "offending_column", ExtractOffendingColumn(err), "error", err)
				continue
			}
		}

		if len(parsed.Rows) < e.cfg.PageLimit {
			return nil
		}
		offset += e.cfg.PageLimit
	}
}

func (e *Engine) tableExists(ctx context.Context, tableName string) (bool, error) {
	var count int
	err := e.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
		tableName)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (e *Engine) createTable(ctx context.Context, res models.Resource, className, tableName string, fields []models.FieldDef) error {
	ddl := schema.CreateTable(tableName, res.KeyField, fields)
	if _, err := e.db.ExecContext(ctx, ddl); err != nil {
		return err
	}
	visibleDDL := schema.CreateVisibleTable(res.ResourceID, className, fields)
	if _, err := e.db.ExecContext(ctx, visibleDDL); err != nil {
		// The visible-names table is a secondary convenience family; its
		// failure should not abort bringing up the primary table.
		e.log.Warn("failed to create visible-names table", "table", tableName, "error", err)
		return nil
	}
	e.recordFieldNameTranslations(ctx, res.ResourceID, className, fields)
	return nil
}

// recordFieldNameTranslations persists the SystemName→visible-column-name
// mapping schema.CreateVisibleTable applied, so a downstream consumer can
// translate between the two families without recomputing the transform
// (spec.md §6.2).
func (e *Engine) recordFieldNameTranslations(ctx context.Context, resourceID, className string, fields []models.FieldDef) {
	seen := map[string]bool{}
	for _, f := range fields {
		visible := schema.VisibleColumnName(f.LongName)
		if visible == "" {
			visible = f.SystemName
		}
		for seen[visible] {
			visible += "_"
		}
		seen[visible] = true

		_, err := e.db.ExecContext(ctx, `
			REPLACE INTO field_name_translations (resource_id, class_name, system_name, visible_name)
			VALUES (?, ?, ?, ?)`,
			resourceID, className, f.SystemName, visible)
		if err != nil {
			e.log.Warn("failed to record field name translation", "resource", resourceID, "class", className, "field", f.SystemName, "error", err)
		}
	}
}

// watermark reads MAX(update_field) for a table, defaulting to the epoch
// spec.md §4.5 names when the table is empty, and formats it ISO-8601 to
// the second.
func (e *Engine) watermark(ctx context.Context, tableName, updateField string) (string, error) {
	var raw sql.NullString
	err := e.db.GetContext(ctx, &raw, fmt.Sprintf("SELECT MAX(`%s`) FROM `%s`", updateField, tableName))
	if err != nil {
		return "", err
	}
	if !raw.Valid || raw.String == "" {
		return "1900-01-01T00:00:00", nil
	}
	return formatISO8601(raw.String), nil
}

// formatISO8601 reformats a MySQL DATETIME ("2024-05-01 10:00:00") to the
// ISO-8601-seconds form DMQL expects ("2024-05-01T10:00:00"), per
// spec.md §4.5 step 4. Values already in that form, or any other shape,
// pass through unchanged.
func formatISO8601(v string) string {
	if len(v) == 19 && v[10] == ' ' {
		return v[:10] + "T" + v[11:]
	}
	return v
}
