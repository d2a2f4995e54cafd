package httpapi

import (
	"net/http"
	"strconv"

	"dbconsole/internal/console"
	"dbconsole/internal/dbcluster"
	"dbconsole/internal/schedules"
	"dbconsole/internal/wizard"

	"github.com/labstack/echo/v4"
)

const (
	defaultNextRuns = 5
	maxNextRuns     = 50
)

func (s *Server) listClusters(c echo.Context) error {
	items, err := s.svc.Clusters(c.Request().Context(), c.Param("ns"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (s *Server) clusterOverview(c echo.Context) error {
	ov, err := s.svc.Overview(c.Request().Context(), c.Param("ns"), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ov)
}

func (s *Server) deleteCluster(c echo.Context) error {
	if err := s.svc.DeleteCluster(c.Request().Context(), c.Param("ns"), c.Param("name")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type engineRequest struct {
	Version string `json:"version"`
}

func (s *Server) upgradeEngine(c echo.Context) error {
	var in engineRequest
	if err := c.Bind(&in); err != nil {
		return err
	}
	out, err := s.svc.UpgradeEngine(c.Request().Context(), c.Param("ns"), c.Param("name"), in.Version)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// wizardFromCluster prefills the wizard; ?mode=restoreFromBackup proposes a
// new cluster name, the default mode edits in place.
func (s *Server) wizardFromCluster(c echo.Context) error {
	mode := wizard.ModeEdit
	if m := c.QueryParam("mode"); m != "" {
		mode = wizard.Mode(m)
	}
	v, err := s.svc.WizardFromCluster(c.Request().Context(), c.Param("ns"), c.Param("name"), mode)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (s *Server) listSchedules(c echo.Context) error {
	list, err := s.svc.Schedules(c.Request().Context(), c.Param("ns"), c.Param("name"))
	if err != nil {
		return err
	}
	if list == nil {
		list = []schedules.Schedule{}
	}
	return c.JSON(http.StatusOK, map[string]any{"timezone": s.svc.Timezone(), "items": list})
}

func (s *Server) createSchedule(c echo.Context) error {
	var in schedules.Schedule
	if err := c.Bind(&in); err != nil {
		return err
	}
	out, err := s.svc.CreateSchedule(c.Request().Context(), c.Param("ns"), c.Param("name"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, out)
}

func (s *Server) editSchedule(c echo.Context) error {
	var in schedules.Schedule
	if err := c.Bind(&in); err != nil {
		return err
	}
	out, err := s.svc.EditSchedule(c.Request().Context(), c.Param("ns"), c.Param("name"), c.Param("schedule"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) deleteSchedule(c echo.Context) error {
	out, err := s.svc.DeleteSchedule(c.Request().Context(), c.Param("ns"), c.Param("name"), c.Param("schedule"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) nextRuns(c echo.Context) error {
	n := defaultNextRuns
	if raw := c.QueryParam("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "n must be a positive integer")
		}
		n = min(v, maxNextRuns)
	}
	runs, err := s.svc.NextRuns(c.Request().Context(), c.Param("ns"), c.Param("name"), c.Param("schedule"), n)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"timezone": s.svc.Timezone(), "runs": runs})
}

func (s *Server) listBackups(c echo.Context) error {
	items, err := s.svc.Backups(c.Request().Context(), c.Param("ns"), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

type backupRequest struct {
	BackupStorageName string `json:"backupStorageName"`
}

func (s *Server) createBackup(c echo.Context) error {
	var in backupRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&in); err != nil {
			return err
		}
	}
	b, err := s.svc.OnDemandBackup(c.Request().Context(), c.Param("ns"), c.Param("name"), in.BackupStorageName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, b)
}

func (s *Server) listRestores(c echo.Context) error {
	items, err := s.svc.Restores(c.Request().Context(), c.Param("ns"), c.Param("name"))
	if err != nil {
		return err
	}
	if items == nil {
		items = []dbcluster.DatabaseClusterRestore{}
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (s *Server) createRestore(c echo.Context) error {
	var in console.RestoreRequest
	if err := c.Bind(&in); err != nil {
		return err
	}
	r, err := s.svc.Restore(c.Request().Context(), c.Param("ns"), c.Param("name"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, r)
}

func (s *Server) listAudit(c echo.Context) error {
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(v, 1000)
	}
	items, err := s.svc.Audit(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}
