// Package httpapi serves the JSON API used by the browser UI.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"dbconsole/internal/console"
	"dbconsole/internal/dbcluster"
	"dbconsole/internal/overview"
	"dbconsole/internal/schedules"
	"dbconsole/internal/storage"
	"dbconsole/internal/wizard"
	"dbconsole/pkg/logx"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Console is the part of *console.Service the handlers call.
type Console interface {
	Timezone() string

	Clusters(ctx context.Context, ns string) ([]dbcluster.DatabaseCluster, error)
	Overview(ctx context.Context, ns, name string) (overview.Overview, error)
	UpgradeEngine(ctx context.Context, ns, name, version string) (dbcluster.DatabaseCluster, error)
	DeleteCluster(ctx context.Context, ns, name string) error
	WizardFromCluster(ctx context.Context, ns, name string, mode wizard.Mode) (wizard.Values, error)

	Schedules(ctx context.Context, ns, cluster string) ([]schedules.Schedule, error)
	CreateSchedule(ctx context.Context, ns, cluster string, s schedules.Schedule) (dbcluster.DatabaseCluster, error)
	EditSchedule(ctx context.Context, ns, cluster, oldName string, s schedules.Schedule) (dbcluster.DatabaseCluster, error)
	DeleteSchedule(ctx context.Context, ns, cluster, name string) (dbcluster.DatabaseCluster, error)
	NextRuns(ctx context.Context, ns, cluster, name string, n int) ([]time.Time, error)

	Backups(ctx context.Context, ns, cluster string) ([]dbcluster.DatabaseClusterBackup, error)
	OnDemandBackup(ctx context.Context, ns, cluster, storageName string) (dbcluster.DatabaseClusterBackup, error)
	Restores(ctx context.Context, ns, cluster string) ([]dbcluster.DatabaseClusterRestore, error)
	Restore(ctx context.Context, ns, cluster string, req console.RestoreRequest) (dbcluster.DatabaseClusterRestore, error)

	BackupStorages(ctx context.Context, ns string) ([]dbcluster.BackupStorage, error)
	CreateBackupStorage(ctx context.Context, ns string, bs dbcluster.BackupStorage) (dbcluster.BackupStorage, error)
	MonitoringInstances(ctx context.Context, ns string) ([]dbcluster.MonitoringInstance, error)
	CreateMonitoringInstance(ctx context.Context, ns string, mi dbcluster.MonitoringInstance) (dbcluster.MonitoringInstance, error)

	SubmitWizard(ctx context.Context, v wizard.Values, ds *dbcluster.DataSource) (dbcluster.DatabaseCluster, error)
	SaveDraft(ctx context.Context, id string, v wizard.Values) (console.Draft, error)
	LoadDraft(ctx context.Context, id string) (console.Draft, error)
	DeleteDraft(ctx context.Context, id string) error
	ListDrafts(ctx context.Context) ([]console.Draft, error)

	Audit(ctx context.Context, limit int) ([]storage.AuditEntry, error)
}

type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Scheduler, when set, backs GET /api/scheduler.
	Scheduler func() any
}

type Server struct {
	e    *echo.Echo
	svc  Console
	opts Options
	log  logx.Logger
}

func New(svc Console, opts Options, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{e: e, svc: svc, opts: opts, log: log.With(logx.String("comp", "http"))}
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(accessLog(s.log))
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) routes() {
	s.e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "timezone": s.svc.Timezone()})
	})

	api := s.e.Group("/api")

	cl := api.Group("/namespaces/:ns/clusters")
	cl.GET("", s.listClusters)
	cl.DELETE("/:name", s.deleteCluster)
	cl.GET("/:name/overview", s.clusterOverview)
	cl.PUT("/:name/engine", s.upgradeEngine)
	cl.GET("/:name/wizard", s.wizardFromCluster)
	cl.GET("/:name/schedules", s.listSchedules)
	cl.POST("/:name/schedules", s.createSchedule)
	cl.PUT("/:name/schedules/:schedule", s.editSchedule)
	cl.DELETE("/:name/schedules/:schedule", s.deleteSchedule)
	cl.GET("/:name/schedules/:schedule/next", s.nextRuns)
	cl.GET("/:name/backups", s.listBackups)
	cl.POST("/:name/backups", s.createBackup)
	cl.GET("/:name/restores", s.listRestores)
	cl.POST("/:name/restores", s.createRestore)

	api.GET("/namespaces/:ns/backup-storages", s.listBackupStorages)
	api.POST("/namespaces/:ns/backup-storages", s.createBackupStorage)
	api.GET("/namespaces/:ns/monitoring-instances", s.listMonitoringInstances)
	api.POST("/namespaces/:ns/monitoring-instances", s.createMonitoringInstance)

	wz := api.Group("/wizard")
	wz.GET("/defaults", s.wizardDefaults)
	wz.POST("/validate", s.wizardValidate)
	wz.POST("/preview", s.wizardPreview)
	wz.POST("/submit", s.wizardSubmit)

	api.GET("/drafts", s.listDrafts)
	api.POST("/drafts", s.createDraft)
	api.GET("/drafts/:id", s.getDraft)
	api.PUT("/drafts/:id", s.putDraft)
	api.DELETE("/drafts/:id", s.deleteDraft)

	api.POST("/cron/convert", s.convertCron)
	api.GET("/audit", s.listAudit)
	if s.opts.Scheduler != nil {
		api.GET("/scheduler", func(c echo.Context) error {
			return c.JSON(http.StatusOK, s.opts.Scheduler())
		})
	}
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully within grace.
func (s *Server) Serve(ctx context.Context, ln net.Listener, grace time.Duration) error {
	srv := &http.Server{
		Handler:      s.e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("http listening", logx.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	s.log.Info("http stopped")
	return nil
}
