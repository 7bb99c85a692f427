// Package adminapi is the ambient, read-only operational surface described
// in SPEC_FULL.md §C: health, lockouts and scheduler status. It is not the
// out-of-scope static photo server named in spec.md §1 — no file serving,
// no photo bytes ever leave this package.
package adminapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/retssync/retsd/internal/database"
	"github.com/retssync/retsd/internal/lockout"
	"github.com/retssync/retsd/internal/middleware"
	"github.com/retssync/retsd/internal/utils"
)

// SchedulerStatus is the Photo Processing Scheduler's current mode and
// backlog, as exposed by GET /status/photos (spec.md §4.10).
type SchedulerStatus struct {
	Mode       string `json:"mode"`
	QueueDepth int    `json:"queue_depth"`
}

// SchedulerStatusProvider is implemented by the photo scheduler so this
// package can read its live status without importing it back.
type SchedulerStatusProvider interface {
	Status() SchedulerStatus
}

// CycleTracker records the timestamp of the last completed cycle, whether
// or not it succeeded, for each long-lived loop (C5, C10, C11), read by
// GET /health.
type CycleTracker struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

// NewCycleTracker builds an empty tracker.
func NewCycleTracker() *CycleTracker {
	return &CycleTracker{last: map[string]time.Time{}}
}

// Record marks component as having completed a cycle at now.
func (t *CycleTracker) Record(component string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[component] = now
}

// Snapshot returns a copy of the last-run timestamps.
func (t *CycleTracker) Snapshot() map[string]time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]time.Time, len(t.last))
	for k, v := range t.last {
		out[k] = v
	}
	return out
}

// Server is the admin/health HTTP surface.
type Server struct {
	db        *database.DB
	lockouts  *lockout.Set
	cycles    *CycleTracker
	scheduler SchedulerStatusProvider
	engine    *gin.Engine
}

// New builds the admin/health gin engine, retargeting the teacher's
// router/middleware idiom at operational introspection (SPEC_FULL.md §C).
func New(db *database.DB, lockouts *lockout.Set, cycles *CycleTracker, scheduler SchedulerStatusProvider, allowedOrigins []string) *Server {
	engine := gin.New()
	engine.Use(otelgin.Middleware("retsd-admin"))
	engine.Use(middleware.Observability())
	engine.Use(middleware.SecurityHeaders())
	engine.Use(middleware.RateLimit())
	engine.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet},
	}))

	s := &Server{db: db, lockouts: lockouts, cycles: cycles, scheduler: scheduler, engine: engine}
	s.routes()
	return s
}

// Handler returns the underlying gin engine for http.Server wiring.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)
	s.engine.GET("/status/lockouts", s.statusLockouts)
	s.engine.GET("/status/photos", s.statusPhotos)
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.db.Health(ctx); err != nil {
		utils.SendError(c, http.StatusServiceUnavailable, "database unreachable", err)
		return
	}

	utils.SendSuccess(c, "ok", gin.H{
		"last_cycle": s.cycles.Snapshot(),
	})
}

func (s *Server) statusLockouts(c *gin.Context) {
	page, limit := utils.GetPagination(c)
	entries := s.lockouts.Entries()

	start := utils.GetOffset(page, limit)
	if start > len(entries) {
		start = len(entries)
	}
	end := start + limit
	if end > len(entries) {
		end = len(entries)
	}

	utils.SendPaginated(c, "ok", entries[start:end], page, limit, len(entries))
}

func (s *Server) statusPhotos(c *gin.Context) {
	if s.scheduler == nil {
		utils.SendSuccess(c, "ok", SchedulerStatus{Mode: "unknown"})
		return
	}
	utils.SendSuccess(c, "ok", s.scheduler.Status())
}
