// Package scheduler implements the Photo Processing Scheduler (C10): a
// background loop that drains the backlog of listings needing photo
// variants, switching between Normal and Aggressive batch sizing based on
// backlog depth (spec.md §4.10).
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/retssync/retsd/internal/adminapi"
	"github.com/retssync/retsd/internal/catalog"
	"github.com/retssync/retsd/internal/database"
	"github.com/retssync/retsd/internal/models"
	"github.com/retssync/retsd/internal/objectstore"
	"github.com/retssync/retsd/internal/photo"
	"github.com/retssync/retsd/internal/rets"
)

const aggressiveThreshold = 20

// Mode selects the batch size / wait durations a cycle runs with
// (spec.md §4.10 step 2).
type Mode string

const (
	ModeNormal     Mode = "normal"
	ModeAggressive Mode = "aggressive"
)

type tuning struct {
	batchSize      int
	interBatchWait time.Duration
	idleWait       time.Duration
}

var tunings = map[Mode]tuning{
	ModeNormal:     {batchSize: 5, interBatchWait: 5 * time.Second, idleWait: 60 * time.Second},
	ModeAggressive: {batchSize: 10, interBatchWait: time.Second, idleWait: 10 * time.Second},
}

// Config tunes worker concurrency; everything else follows spec.md's fixed
// Normal/Aggressive table.
type Config struct {
	// Workers bounds how many listings are processed concurrently within
	// one batch (spec.md §5: "Intra-loop parallelism").
	Workers int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 5
	}
	return c
}

// Scheduler is the C10 background loop.
type Scheduler struct {
	db       *database.DB
	catalog  *catalog.Store
	client   *rets.Client
	pipeline *photo.Pipeline
	uploader *objectstore.Client
	cfg      Config
	log      *slog.Logger

	mu         sync.RWMutex
	mode       Mode
	queueDepth int

	// OnCycle, if set, is called after every cycle, letting callers track
	// liveness for GET /health.
	OnCycle func(time.Time)
}

// New wires a Scheduler to its collaborators.
func New(db *database.DB, cat *catalog.Store, client *rets.Client, pipeline *photo.Pipeline, uploader *objectstore.Client, cfg Config, log *slog.Logger) *Scheduler {
	return &Scheduler{
		db:       db,
		catalog:  cat,
		client:   client,
		pipeline: pipeline,
		uploader: uploader,
		cfg:      cfg.withDefaults(),
		mode:     ModeNormal,
		log:      log,
	}
}

// Status implements adminapi.SchedulerStatusProvider.
func (s *Scheduler) Status() adminapi.SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return adminapi.SchedulerStatus{Mode: string(s.mode), QueueDepth: s.queueDepth}
}

// Run drives the scheduler loop until ctx is cancelled. A fatal error (e.g.
// a lost database connection) triggers a 30s backoff and retry; the loop
// never exits on its own (spec.md §4.10: "the loop never exits").
func (s *Scheduler) Run(ctx context.Context) {
	ready := true
	if err := s.ensureTrackingTable(ctx); err != nil {
		s.log.Error("failed to ensure PhotoProcessing table, retrying", "error", err)
		ready = false
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var wait time.Duration
		var err error
		if !ready {
			if err = s.ensureTrackingTable(ctx); err == nil {
				ready = true
			}
		}
		if err == nil {
			wait, err = s.cycle(ctx)
		}
		if err != nil {
			s.log.Error("scheduler cycle failed, backing off", "error", err)
			wait = 30 * time.Second
		}
		if s.OnCycle != nil {
			s.OnCycle(time.Now())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// cycle runs one batch and returns how long to wait before the next one.
func (s *Scheduler) cycle(ctx context.Context) (time.Duration, error) {
	session, err := s.client.Login(ctx)
	if err != nil {
		return 0, fmt.Errorf("login: %w", err)
	}

	cat, err := s.catalog.Load(ctx, session)
	if err != nil {
		return 0, fmt.Errorf("load catalog: %w", err)
	}

	backlog, err := s.backlogDepth(ctx, cat)
	if err != nil {
		return 0, fmt.Errorf("backlog depth: %w", err)
	}

	mode := ModeNormal
	if backlog > aggressiveThreshold {
		mode = ModeAggressive
	}
	t := tunings[mode]

	s.mu.Lock()
	s.mode = mode
	s.queueDepth = backlog
	s.mu.Unlock()

	batch, err := s.selectBatch(ctx, cat, t.batchSize)
	if err != nil {
		return 0, fmt.Errorf("select batch: %w", err)
	}
	if len(batch) == 0 {
		return t.idleWait, nil
	}

	s.processBatch(ctx, session, batch)
	return t.interBatchWait, nil
}

type job struct {
	ListingID    string
	PropertyType string
}

func (s *Scheduler) processBatch(ctx context.Context, session *rets.Session, batch []job) {
	g, gCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, s.cfg.Workers)

	for _, j := range batch {
		j := j
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gCtx.Done():
				return gCtx.Err()
			}
			defer func() { <-sem }()

			s.processOne(ctx, session, j)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) processOne(ctx context.Context, session *rets.Session, j job) {
	log := s.log.With("listing_id", j.ListingID, "property_type", j.PropertyType)

	if err := s.markProcessing(ctx, j); err != nil {
		log.Error("failed to mark processing", "error", err)
		return
	}

	processed, err := s.pipeline.Process(ctx, session, j.PropertyType, j.ListingID)
	if err != nil {
		s.markFailed(ctx, j, err)
		log.Error("photo pipeline failed", "error", err)
		return
	}

	if err := s.uploadAndCleanup(ctx, j, processed); err != nil {
		s.markFailed(ctx, j, err)
		log.Error("object store sync failed", "error", err)
		return
	}

	if err := s.markCompleted(ctx, j, processed); err != nil {
		log.Error("failed to mark completed", "error", err)
	}
}

// uploadAndCleanup pushes every rendered variant to object storage and, once
// every variant of every photo is confirmed, removes the local staging
// directory (spec.md §4.9).
func (s *Scheduler) uploadAndCleanup(ctx context.Context, j job, processed []models.ProcessedPhoto) error {
	if s.uploader == nil || len(processed) == 0 {
		return nil
	}

	classLongName := photo.ClassLongName(j.PropertyType)
	dir := s.pipeline.StagingDir(classLongName, j.ListingID)

	allDone := false
	for _, p := range processed {
		for _, v := range p.Variants {
			filename := fmt.Sprintf("%s-%s.webp", v.Variant, p.ObjectID)
			path := dir + "/" + filename
			data, err := readFile(path)
			if err != nil {
				return fmt.Errorf("read variant %s: %w", filename, err)
			}
			if err := s.uploader.Upload(ctx, v.URL, data); err != nil {
				return fmt.Errorf("upload variant %s: %w", filename, err)
			}
			allDone = s.uploader.MarkUploaded(j.ListingID, v.Variant)
		}
	}

	if allDone {
		if err := s.uploader.CleanupLocal(dir); err != nil {
			s.log.Warn("failed to clean up staging dir", "dir", dir, "error", err)
		}
	}
	return nil
}

func (s *Scheduler) markProcessing(ctx context.Context, j job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO PhotoProcessing (listing_id, property_type, status, needs_reprocessing, retry_count)
		VALUES (?, ?, 'processing', 0, 0)
		ON DUPLICATE KEY UPDATE status = 'processing', needs_reprocessing = 0`,
		j.ListingID, j.PropertyType)
	return err
}

func (s *Scheduler) markCompleted(ctx context.Context, j job, processed []models.ProcessedPhoto) error {
	data, err := json.Marshal(processed)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE PhotoProcessing
		SET status = 'completed', last_processed_at = NOW(), photo_data_json = ?, error_message = ''
		WHERE listing_id = ? AND property_type = ?`,
		string(data), j.ListingID, j.PropertyType)
	return err
}

func (s *Scheduler) markFailed(ctx context.Context, j job, cause error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE PhotoProcessing
		SET status = 'failed', retry_count = retry_count + 1, error_message = ?
		WHERE listing_id = ? AND property_type = ?`,
		cause.Error(), j.ListingID, j.PropertyType)
	if err != nil {
		s.log.Error("failed to record photo job failure", "listing_id", j.ListingID, "error", err)
	}
}

// propertyTables returns the local table name for every class of the
// Property resource.
func (s *Scheduler) propertyTables(cat *models.Catalog) map[string]string {
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

// tableName mirrors syncengine.TableName without importing it, avoiding a
// scheduler→syncengine dependency for one pure function.
func tableName(resourceID, className string, classCount int) string {
	if classCount <= 1 && (className == "" || className == resourceID) {
		return resourceID
	}
	return resourceID + "_" + className
}

// backlogDepth counts rows across every property table that are missing a
// PhotoProcessing row or flagged for reprocessing, used only to pick the
// Normal/Aggressive mode for this cycle.
func (s *Scheduler) backlogDepth(ctx context.Context, cat *models.Catalog) (int, error) {
	tables := s.propertyTables(cat)
	if len(tables) == 0 {
		return 0, nil
	}

	var clauses []string
	for className, table := range tables {
		clauses = append(clauses, fmt.Sprintf(`
			SELECT t.`+"`L_ListingID`"+` AS listing_id
			FROM `+"`%s`"+` t
			LEFT JOIN PhotoProcessing pp ON pp.listing_id = t.`+"`L_ListingID`"+` AND pp.property_type = '%s'
			WHERE t.`+"`L_StatusCatID`"+` IN ('1','2') AND (pp.listing_id IS NULL OR pp.needs_reprocessing = 1)`, table, className))
	}

	var count int
	query := "SELECT COUNT(*) FROM (" + strings.Join(clauses, " UNION ALL ") + ") backlog"
	if err := s.db.GetContext(ctx, &count, query); err != nil {
		return 0, err
	}
	return count, nil
}

// selectBatch picks up to limit rows across all Property tables, ordered
// per spec.md §4.10 step 3.
func (s *Scheduler) selectBatch(ctx context.Context, cat *models.Catalog, limit int) ([]job, error) {
	tables := s.propertyTables(cat)
	if len(tables) == 0 {
		return nil, nil
	}

	var clauses []string
	for className, table := range tables {
		clauses = append(clauses, fmt.Sprintf(`
			SELECT t.`+"`L_ListingID`"+` AS listing_id, '%s' AS property_type,
				COALESCE(pp.needs_reprocessing, 0) AS needs_reprocessing,
				t.`+"`L_StatusCatID`"+` AS status_cat_id,
				t.`+"`L_Last_Photo_updt`"+` AS last_photo_updt
			FROM `+"`%s`"+` t
			LEFT JOIN PhotoProcessing pp ON pp.listing_id = t.`+"`L_ListingID`"+` AND pp.property_type = '%s'
			WHERE t.`+"`L_StatusCatID`"+` IN ('1','2') AND (pp.listing_id IS NULL OR pp.needs_reprocessing = 1)`,
			className, table, className))
	}

	query := "SELECT listing_id, property_type FROM (" +
		strings.Join(clauses, " UNION ALL ") +
		") backlog ORDER BY needs_reprocessing DESC, status_cat_id ASC, last_photo_updt DESC LIMIT ?"

	rows, err := s.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batch []job
	for rows.Next() {
		var j job
		if err := rows.Scan(&j.ListingID, &j.PropertyType); err != nil {
			return nil, err
		}
		batch = append(batch, j)
	}
	return batch, rows.Err()
}

func (s *Scheduler) ensureTrackingTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS PhotoProcessing (
			listing_id VARCHAR(64) NOT NULL,
			property_type VARCHAR(64) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			last_processed_at DATETIME NULL,
			needs_reprocessing TINYINT(1) NOT NULL DEFAULT 0,
			retry_count INT NOT NULL DEFAULT 0,
			error_message TEXT,
			photo_data_json LONGTEXT,
			PRIMARY KEY (listing_id, property_type)
		) ENGINE=InnoDB`)
	return err
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
