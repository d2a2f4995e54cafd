package httpapi

import (
	"net/http"

	"dbconsole/internal/dbcluster"

	"github.com/labstack/echo/v4"
)

func (s *Server) listBackupStorages(c echo.Context) error {
	items, err := s.svc.BackupStorages(c.Request().Context(), c.Param("ns"))
	if err != nil {
		return err
	}
	if items == nil {
		items = []dbcluster.BackupStorage{}
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (s *Server) createBackupStorage(c echo.Context) error {
	var in dbcluster.BackupStorage
	if err := c.Bind(&in); err != nil {
		return err
	}
	out, err := s.svc.CreateBackupStorage(c.Request().Context(), c.Param("ns"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, out)
}

func (s *Server) listMonitoringInstances(c echo.Context) error {
	items, err := s.svc.MonitoringInstances(c.Request().Context(), c.Param("ns"))
	if err != nil {
		return err
	}
	if items == nil {
		items = []dbcluster.MonitoringInstance{}
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (s *Server) createMonitoringInstance(c echo.Context) error {
	var in dbcluster.MonitoringInstance
	if err := c.Bind(&in); err != nil {
		return err
	}
	out, err := s.svc.CreateMonitoringInstance(c.Request().Context(), c.Param("ns"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, out)
}
