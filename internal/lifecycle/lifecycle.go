// Package lifecycle implements the Lifecycle Reconciler (C11): a
// wall-clock-scheduled pass over the Hotsheet resource that promotes sold
// listings and removes withdrawn/expired ones from the local tables
// (spec.md §4.11).
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/retssync/retsd/internal/catalog"
	"github.com/retssync/retsd/internal/database"
	"github.com/retssync/retsd/internal/models"
	"github.com/retssync/retsd/internal/rets"
)

// runHours are the wall-clock hours (local time, per spec.md §4.11) the
// reconciler fires at.
var runHours = []int{0, 12, 15, 18, 21}

const hotsheetResource = "Hotsheet"

// Reconciler is the C11 cron-driven loop.
type Reconciler struct {
	client  *rets.Client
	db      *database.DB
	catalog *catalog.Store
	log     *slog.Logger

	// OnCycle, if set, is called after every reconciliation run, letting
	// callers track liveness for GET /health.
	OnCycle func(time.Time)
}

// New wires a Reconciler to its collaborators.
func New(client *rets.Client, db *database.DB, cat *catalog.Store, log *slog.Logger) *Reconciler {
	return &Reconciler{client: client, db: db, catalog: cat, log: log}
}

// Run blocks, firing Reconcile at each scheduled hour until ctx is
// cancelled (spec.md §5: "Cancellation ... stopping the cron triggers").
func (r *Reconciler) Run(ctx context.Context) {
	for {
		wait := time.Until(nextRun(time.Now()))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := r.Reconcile(ctx); err != nil {
			r.log.Error("lifecycle reconciliation failed", "error", err)
		}
		if r.OnCycle != nil {
			r.OnCycle(time.Now())
		}
	}
}

// nextRun returns the next scheduled wall-clock instant strictly after now.
func nextRun(now time.Time) time.Time {
	loc := now.Location()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	for _, h := range runHours {
		candidate := day.Add(time.Duration(h) * time.Hour)
		if candidate.After(now) {
			return candidate
		}
	}
	return day.AddDate(0, 0, 1).Add(time.Duration(runHours[0]) * time.Hour)
}

type hotsheetRow struct {
	ListingID   string
	StatusDate  string
	Address     string
	Status      string
	StatusCatID string
}

// Reconcile runs one full pass: login, harvest the Hotsheet, then update or
// delete matching rows in every Property_<class> table (spec.md §4.11).
func (r *Reconciler) Reconcile(ctx context.Context) error {
	session, err := r.client.Login(ctx)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	cat, err := r.catalog.Load(ctx, session)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	searchURL, err := r.client.Capability(session, "Search")
	if err != nil {
		return fmt.Errorf("resolve search capability: %w", err)
	}

	res, ok := cat.Resources[hotsheetResource]
	if !ok {
		r.log.Debug("no Hotsheet resource in catalog, skipping reconciliation")
		return nil
	}

	classes := res.Classes
	if len(classes) == 0 {
		classes = []string{""}
	}

	var rows []hotsheetRow
	for _, className := range classes {
		classRows, err := r.harvestClass(ctx, session, searchURL, className)
		if err != nil {
			r.log.Error("hotsheet class query failed", "class", className, "error", err)
			continue
		}
		rows = append(rows, classRows...)
	}

	dedup := dedupeByMaxStatusDate(rows)
	sold, withdrawnOrExpired := partition(dedup)

	propertyClasses := r.propertyTables(cat)
	for className, table := range propertyClasses {
		if err := r.applyTable(ctx, table, sold, withdrawnOrExpired); err != nil {
			r.log.Error("reconcile table failed", "class", className, "table", table, "error", err)
		}
	}
	return nil
}

// harvestClass queries one Hotsheet class for rows changed in the last day
// (spec.md §4.11 step 2), using COMPACT-DECODED so L_Status/L_StatusCatID
// come back as their display text/value rather than a lookup short code.
func (r *Reconciler) harvestClass(ctx context.Context, session *rets.Session, searchURL, className string) ([]hotsheetRow, error) {
	since := time.Now().Add(-24 * time.Hour).Format("2006-01-02T15:04:05")
	query := fmt.Sprintf("(L_StatusCatID=2,3,4,5),(L_StatusDate=%s+)", since)

	q := url.Values{}
	q.Set("SearchType", hotsheetResource)
	q.Set("Class", className)
	q.Set("QueryType", "DMQL2")
	q.Set("Format", "COMPACT-DECODED")
	q.Set("StandardNames", "0")
	q.Set("Query", query)
	q.Set("Select", "L_ListingID,L_StatusDate,L_Address,L_Status,L_StatusCatID")
	q.Set("Count", "1")

	body, _, err := r.client.AuthenticatedRequest(ctx, session, searchURL, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rets.ErrTransport, err)
	}

	parsed, err := rets.ParseSearchResponse(string(body))
	if err != nil {
		return nil, err
	}

	index := columnIndex(parsed.Columns)
	var rows []hotsheetRow
	for _, rec := range parsed.Rows {
		rows = append(rows, hotsheetRow{
			ListingID:   cell(rec, index, "L_ListingID"),
			StatusDate:  cell(rec, index, "L_StatusDate"),
			Address:     cell(rec, index, "L_Address"),
			Status:      cell(rec, index, "L_Status"),
			StatusCatID: cell(rec, index, "L_StatusCatID"),
		})
	}
	return rows, nil
}

// dedupeByMaxStatusDate keeps, per L_ListingID, the row with the
// lexicographically (== chronologically, for ISO-8601 text) greatest
// StatusDate (spec.md §4.11 step 3).
func dedupeByMaxStatusDate(rows []hotsheetRow) map[string]hotsheetRow {
	best := map[string]hotsheetRow{}
	for _, row := range rows {
		current, ok := best[row.ListingID]
		if !ok || row.StatusDate > current.StatusDate {
			best[row.ListingID] = row
		}
	}
	return best
}

// partition splits deduplicated rows into sold and withdrawn/expired id
// sets (spec.md §4.11 step 4).
func partition(rows map[string]hotsheetRow) (sold, withdrawnOrExpired map[string]hotsheetRow) {
	sold = map[string]hotsheetRow{}
	withdrawnOrExpired = map[string]hotsheetRow{}
	for id, row := range rows {
		switch row.StatusCatID {
		case string(models.StatusSold):
			sold[id] = row
		case string(models.StatusWithdrawn), string(models.StatusExpired):
			withdrawnOrExpired[id] = row
		}
	}
	return sold, withdrawnOrExpired
}

// applyTable runs the promote-to-SOLD and delete passes against one local
// Property_<class> table (spec.md §4.11 step 5-6).
func (r *Reconciler) applyTable(ctx context.Context, table string, sold, withdrawnOrExpired map[string]hotsheetRow) error {
	allIDs := make([]string, 0, len(sold)+len(withdrawnOrExpired))
	for id := range sold {
		allIDs = append(allIDs, id)
	}
	for id := range withdrawnOrExpired {
		allIDs = append(allIDs, id)
	}
	if len(allIDs) == 0 {
		return nil
	}

	type localRow struct {
		ListingID   string `db:"L_ListingID"`
		StatusCatID string `db:"L_StatusCatID"`
		Address     string `db:"L_Address"`
	}

	query, args, err := inQuery(
		fmt.Sprintf("SELECT `L_ListingID`, `L_StatusCatID`, `L_Address` FROM `%s` WHERE `L_ListingID` IN (?)", table),
		allIDs)
	if err != nil {
		return err
	}

	var localRows []localRow
	if err := r.db.SelectContext(ctx, &localRows, query, args...); err != nil {
		return fmt.Errorf("select matching rows: %w", err)
	}

	var toPromote, toDelete []string
	for _, row := range localRows {
		if _, ok := sold[row.ListingID]; ok && row.StatusCatID != string(models.StatusSold) {
			toPromote = append(toPromote, row.ListingID)
			r.log.Info("promoting listing to sold", "listing_id", row.ListingID, "table", table, "prior_status", row.StatusCatID, "address", row.Address)
		}
		if _, ok := withdrawnOrExpired[row.ListingID]; ok &&
			(row.StatusCatID == string(models.StatusActive) || row.StatusCatID == string(models.StatusSold)) {
			toDelete = append(toDelete, row.ListingID)
			r.log.Info("removing withdrawn/expired listing", "listing_id", row.ListingID, "table", table, "prior_status", row.StatusCatID, "address", row.Address)
		}
	}

	if len(toPromote) > 0 {
		updateQuery, updateArgs, err := inQuery(
			fmt.Sprintf("UPDATE `%s` SET `L_StatusCatID` = ? WHERE `L_ListingID` IN (?)", table),
			toPromote)
		if err != nil {
			return err
		}
		args := append([]any{string(models.StatusSold)}, updateArgs...)
		if _, err := r.db.ExecContext(ctx, updateQuery, args...); err != nil {
			return fmt.Errorf("promote to sold: %w", err)
		}
	}

	if len(toDelete) > 0 {
		deleteQuery, deleteArgs, err := inQuery(
			fmt.Sprintf("DELETE FROM `%s` WHERE `L_ListingID` IN (?)", table),
			toDelete)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, deleteQuery, deleteArgs...); err != nil {
			return fmt.Errorf("delete withdrawn/expired: %w", err)
		}
	}
	return nil
}

// propertyTables returns the local table name for every class of the
// Property resource, keyed by class name.
func (r *Reconciler) propertyTables(cat *models.Catalog) map[string]string {
	tables := map[string]string{}
	res, ok := cat.Resources["Property"]
	if !ok {
		return tables
	}
	classes := res.Classes
	if len(classes) == 0 {
		classes = []string{""}
	}
	for _, className := range classes {
		name := className
		if name == "" {
			name = res.ResourceID
		}
		tables[name] = tableName(res.ResourceID, className, len(classes))
	}
	return tables
}

func tableName(resourceID, className string, classCount int) string {
	if classCount <= 1 && (className == "" || className == resourceID) {
		return resourceID
	}
	return resourceID + "_" + className
}

// inQuery is sqlx.In without the dependency: given a query with a single
// "(?)" placeholder and a slice of ids, it expands the placeholder to
// match the slice length.
func inQuery(query string, ids []string) (string, []any, error) {
	if len(ids) == 0 {
		return "", nil, fmt.Errorf("inQuery: empty id list")
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	expanded := strings.Replace(query, "(?)", "("+placeholders+")", 1)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return expanded, args, nil
}

func columnIndex(columns []string) map[string]int {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	return idx
}

func cell(row []string, index map[string]int, name string) string {
	i, ok := index[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}
