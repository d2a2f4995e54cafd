package httpapi

import (
	"net/http"
	"strings"

	"dbconsole/internal/console"
	"dbconsole/internal/dbcluster"
	"dbconsole/internal/wizard"
	"dbconsole/pkg/cronconv"

	"github.com/labstack/echo/v4"
)

func (s *Server) wizardDefaults(c echo.Context) error {
	return c.JSON(http.StatusOK, wizard.Defaults())
}

func (s *Server) wizardValidate(c echo.Context) error {
	var v wizard.Values
	if err := c.Bind(&v); err != nil {
		return err
	}
	res := wizard.Validate(v)
	if res.Errors == nil {
		res.Errors = []wizard.FieldError{}
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": res.OK(), "errors": res.Errors})
}

func (s *Server) wizardPreview(c echo.Context) error {
	var v wizard.Values
	if err := c.Bind(&v); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"lines": wizard.Preview(v)})
}

type submitRequest struct {
	Values     wizard.Values         `json:"values"`
	DataSource *dbcluster.DataSource `json:"dataSource,omitempty"`
}

func (s *Server) wizardSubmit(c echo.Context) error {
	var in submitRequest
	if err := c.Bind(&in); err != nil {
		return err
	}
	out, err := s.svc.SubmitWizard(c.Request().Context(), in.Values, in.DataSource)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, out)
}

func (s *Server) listDrafts(c echo.Context) error {
	items, err := s.svc.ListDrafts(c.Request().Context())
	if err != nil {
		return err
	}
	if items == nil {
		items = []console.Draft{}
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (s *Server) createDraft(c echo.Context) error {
	var v wizard.Values
	if err := c.Bind(&v); err != nil {
		return err
	}
	d, err := s.svc.SaveDraft(c.Request().Context(), "", v)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (s *Server) getDraft(c echo.Context) error {
	d, err := s.svc.LoadDraft(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (s *Server) putDraft(c echo.Context) error {
	var v wizard.Values
	if err := c.Bind(&v); err != nil {
		return err
	}
	d, err := s.svc.SaveDraft(c.Request().Context(), c.Param("id"), v)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (s *Server) deleteDraft(c echo.Context) error {
	if err := s.svc.DeleteDraft(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type convertRequest struct {
	Expr string `json:"expr"`
	From string `json:"from"`
	To   string `json:"to"`
}

// convertCron shifts a cron expression between timezones. From defaults to
// UTC and To to the console timezone.
func (s *Server) convertCron(c echo.Context) error {
	var in convertRequest
	if err := c.Bind(&in); err != nil {
		return err
	}
	from := strings.TrimSpace(in.From)
	if from == "" {
		from = "UTC"
	}
	to := strings.TrimSpace(in.To)
	if to == "" {
		to = s.svc.Timezone()
	}
	out, err := cronconv.Convert(in.Expr, from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"expr": out, "from": from, "to": to})
}
