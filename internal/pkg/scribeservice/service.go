package scribeservice

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/pkg/errors"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/airenas/scribe/internal/pkg/apperr"
	"github.com/airenas/scribe/internal/pkg/auth"
	"github.com/airenas/scribe/internal/pkg/editor"
	"github.com/airenas/scribe/internal/pkg/jobs"
	"github.com/airenas/scribe/internal/pkg/persistence"
	"github.com/airenas/scribe/internal/pkg/project"
	"github.com/airenas/scribe/internal/pkg/utils"
)

// Projects provides project lifecycle functionality
type Projects interface {
	Categories() []string
	Create(ctx context.Context, owner, name, category string) (string, error)
	List(ctx context.Context, owner string) ([]persistence.Project, error)
	Load(ctx context.Context, id string) (*persistence.Project, []persistence.Task, error)
	Audio(ctx context.Context, id string) (io.ReadSeekCloser, error)
	Upload(ctx context.Context, id, fileName string, r io.Reader) error
	Save(ctx context.Context, id string, tasks []project.TaskIn) error
	Assign(ctx context.Context, id string) error
	Update(ctx context.Context, id string, in *project.UpdateIn) error
	Diarize(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Unlock(ctx context.Context, id string) error
}

// Tasks provides editor task functionality
type Tasks interface {
	List(ctx context.Context, user string) (*editor.Grouped, error)
	Audio(ctx context.Context, projectID string, taskID int) (io.ReadSeekCloser, float64, float64, error)
	Text(ctx context.Context, projectID string, taskID int) (string, error)
	SaveText(ctx context.Context, projectID string, taskID int, user, text string) error
	Revert(ctx context.Context, projectID string, taskID int, user, commitID string) error
	Done(ctx context.Context, projectID string, taskID int, user string) error
	ClearError(ctx context.Context, projectID string, taskID int) error
	Unlock(ctx context.Context, projectID string, taskID int) error
}

// Jobs provides external speech job functionality
type Jobs interface {
	Submit(ctx context.Context, projectID string, taskID int, service jobs.ServiceType, params map[string]string) error
	ServeAudio(ctx context.Context, token string) (io.ReadSeekCloser, *persistence.Outgoing, error)
	OnResult(ctx context.Context, token string, res *jobs.Result) error
}

// LiveChecker checks if the store is reachable
type LiveChecker interface {
	Live(ctx context.Context) error
}

// Data keeps data required for service work
type Data struct {
	Port     int
	Projects Projects
	Tasks    Tasks
	Jobs     Jobs
	Auth     *auth.Verifier
	DB       LiveChecker
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP scribe service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	e := initRoutes(data)

	e.Server.Addr = ":" + strconv.Itoa(data.Port)
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 180 * time.Second
	e.Server.WriteTimeout = 60 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Projects == nil {
		return errors.New("no project manager")
	}
	if data.Tasks == nil {
		return errors.New("no task manager")
	}
	if data.Jobs == nil {
		return errors.New("no job orchestrator")
	}
	if data.Auth == nil {
		return errors.New("no auth verifier")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("scribe", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.GET("/live", live(data))

	// one-shot callback endpoints of the speech service, token is the credential
	e.GET("/io/audio/:token", serveAudio(data))
	e.PUT("/io/result/:token", onResult(data))

	am := data.Auth.Middleware()
	e.GET("/categories", categories(data), am)
	e.POST("/projects", createProject(data), am)
	e.GET("/projects", listProjects(data), am)
	e.GET("/projects/:id", loadProject(data), am)
	e.PATCH("/projects/:id", updateProject(data), am)
	e.DELETE("/projects/:id", deleteProject(data), am)
	e.POST("/projects/:id/audio", uploadAudio(data), am)
	e.GET("/projects/:id/audio", projectAudio(data), am)
	e.POST("/projects/:id/tasks", saveProject(data), am)
	e.POST("/projects/:id/assign", assignTasks(data), am)
	e.POST("/projects/:id/diarize", diarizeAudio(data), am)
	e.POST("/projects/:id/unlock", unlockProject(data), am)

	e.GET("/tasks", listTasks(data), am)
	e.GET("/projects/:id/tasks/:taskID/audio", taskAudio(data), am)
	e.GET("/projects/:id/tasks/:taskID/text", taskText(data), am)
	e.PUT("/projects/:id/tasks/:taskID/text", saveTaskText(data), am)
	e.POST("/projects/:id/tasks/:taskID/revert", revertTaskText(data), am)
	e.POST("/projects/:id/tasks/:taskID/done", taskDone(data), am)
	e.POST("/projects/:id/tasks/:taskID/clearerror", taskClearError(data), am)
	e.POST("/projects/:id/tasks/:taskID/unlock", unlockTask(data), am)
	e.POST("/projects/:id/tasks/:taskID/jobs", submitJob(data), am)

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		if err := data.DB.Live(c.Request().Context()); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusServiceUnavailable)
		}
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

func categories(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, data.Projects.Categories())
	}
}

type createInput struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

type result struct {
	ID string `json:"id"`
}

func createProject(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("createProject method")()
		var in createInput
		if err := c.Bind(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input")
		}
		id, err := data.Projects.Create(c.Request().Context(), auth.User(c), in.Name, in.Category)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, result{ID: id})
	}
}

func listProjects(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		projects, err := data.Projects.List(c.Request().Context(), auth.User(c))
		if err != nil {
			return httpError(err)
		}
		res := make([]projectView, 0, len(projects))
		for i := range projects {
			res = append(res, toProjectView(&projects[i]))
		}
		return c.JSON(http.StatusOK, res)
	}
}

type loadResult struct {
	Project projectView `json:"project"`
	Tasks   []taskView  `json:"tasks"`
}

func loadProject(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		p, tasks, err := data.Projects.Load(c.Request().Context(), c.Param("id"))
		if err != nil {
			return httpError(err)
		}
		res := loadResult{Project: toProjectView(p), Tasks: make([]taskView, 0, len(tasks))}
		for i := range tasks {
			res.Tasks = append(res.Tasks, toTaskView(&tasks[i]))
		}
		return c.JSON(http.StatusOK, res)
	}
}

func updateProject(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		var in project.UpdateIn
		if err := c.Bind(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input")
		}
		if err := data.Projects.Update(c.Request().Context(), c.Param("id"), &in); err != nil {
			return httpError(err)
		}
		return okResult(c)
	}
}

func deleteProject(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		if err := data.Projects.Delete(c.Request().Context(), c.Param("id")); err != nil {
			return httpError(err)
		}
		return okResult(c)
	}
}

func uploadAudio(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("uploadAudio method")()
		fh, err := c.FormFile("file")
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no file")
		}
		fn, err := utils.MakeValidateFileName("", fh.Filename)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if !utils.SupportAudioExt(filepath.Ext(fn)) {
			return echo.NewHTTPError(http.StatusBadRequest, "unsupported audio type")
		}
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't read file")
		}
		defer f.Close()
		if err := data.Projects.Upload(c.Request().Context(), c.Param("id"), fn, f); err != nil {
			return httpError(err)
		}
		return okResult(c)
	}
}

func projectAudio(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		r, err := data.Projects.Audio(c.Request().Context(), c.Param("id"))
		if err != nil {
			return httpError(err)
		}
		defer r.Close()
		return c.Stream(http.StatusOK, "application/octet-stream", r)
	}
}

func saveProject(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		var in []project.TaskIn
		if err := c.Bind(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input")
		}
		if err := data.Projects.Save(c.Request().Context(), c.Param("id"), in); err != nil {
			return httpError(err)
		}
		return okResult(c)
	}
}

func assignTasks(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("assignTasks method")()
		if err := data.Projects.Assign(c.Request().Context(), c.Param("id")); err != nil {
			return httpError(err)
		}
		return okResult(c)
	}
}

func diarizeAudio(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("diarizeAudio method")()
		if err := data.Projects.Diarize(c.Request().Context(), c.Param("id")); err != nil {
			return httpError(err)
		}
		return okResult(c)
	}
}

func unlockProject(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		if err := data.Projects.Unlock(c.Request().Context(), c.Param("id")); err != nil {
			return httpError(err)
		}
		return okResult(c)
	}
}

func listTasks(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		res, err := data.Tasks.List(c.Request().Context(), auth.User(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, toGroupedView(res))
	}
}

func taskAudio(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		taskID, err := taskIDParam(c)
		if err != nil {
			return err
		}
		r, start, end, errA := data.Tasks.Audio(c.Request().Context(), c.Param("id"), taskID)
		if errA != nil {
			return httpError(errA)
		}
		defer r.Close()
		c.Response().Header().Set("X-Segment-Start", fmt.Sprintf("%.3f", start))
		c.Response().Header().Set("X-Segment-End", fmt.Sprintf("%.3f", end))
		return c.Stream(http.StatusOK, "application/octet-stream", r)
	}
}

type textResult struct {
	Text string `json:"text"`
}

func taskText(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		taskID, err := taskIDParam(c)
		if err != nil {
			return err
		}
		text, errT := data.Tasks.Text(c.Request().Context(), c.Param("id"), taskID)
		if errT != nil {
			return httpError(errT)
		}
		return c.JSON(http.StatusOK, textResult{Text: text})
	}
}

type textInput struct {
	Text string `json:"text"`
}

func saveTaskText(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		taskID, err := taskIDParam(c)
		if err != nil {
			return err
		}
		var in textInput
		if err := c.Bind(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input")
		}
		if err := data.Tasks.SaveText(c.Request().Context(), c.Param("id"), taskID, auth.User(c), in.Text); err != nil {
			return httpError(err)
		}
		return okResult(c)
	}
}

type revertInput struct {
	CommitID string `json:"commitID"`
}

func revertTaskText(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		taskID, err := taskIDParam(c)
		if err != nil {
			return err
		}
		var in revertInput
		if err := c.Bind(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input")
		}
		if err := data.Tasks.Revert(c.Request().Context(), c.Param("id"), taskID, auth.User(c), in.CommitID); err != nil {
			return httpError(err)
		}
		return okResult(c)
	}
}

func taskDone(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		taskID, err := taskIDParam(c)
		if err != nil {
			return err
		}
		if err := data.Tasks.Done(c.Request().Context(), c.Param("id"), taskID, auth.User(c)); err != nil {
			return httpError(err)
		}
		return okResult(c)
	}
}

func taskClearError(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		taskID, err := taskIDParam(c)
		if err != nil {
			return err
		}
		if err := data.Tasks.ClearError(c.Request().Context(), c.Param("id"), taskID); err != nil {
			return httpError(err)
		}
		return okResult(c)
	}
}

func unlockTask(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		taskID, err := taskIDParam(c)
		if err != nil {
			return err
		}
		if err := data.Tasks.Unlock(c.Request().Context(), c.Param("id"), taskID); err != nil {
			return httpError(err)
		}
		return okResult(c)
	}
}

type jobInput struct {
	Service string            `json:"service"`
	Params  map[string]string `json:"params,omitempty"`
}

func submitJob(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("submitJob method")()
		taskID, err := taskIDParam(c)
		if err != nil {
			return err
		}
		var in jobInput
		if err := c.Bind(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input")
		}
		service, errP := jobs.ParseServiceType(in.Service)
		if errP != nil {
			return httpError(errP)
		}
		if err := data.Jobs.Submit(c.Request().Context(), c.Param("id"), taskID, service, in.Params); err != nil {
			return httpError(err)
		}
		return okResult(c)
	}
}

func serveAudio(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		r, out, err := data.Jobs.ServeAudio(c.Request().Context(), c.Param("token"))
		if err != nil {
			return httpError(err)
		}
		defer r.Close()
		if out.Start.Valid {
			c.Response().Header().Set("X-Segment-Start", fmt.Sprintf("%.3f", out.Start.Float64))
		}
		if out.End.Valid {
			c.Response().Header().Set("X-Segment-End", fmt.Sprintf("%.3f", out.End.Float64))
		}
		return c.Stream(http.StatusOK, "application/octet-stream", r)
	}
}

func onResult(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("onResult method")()
		var in jobs.Result
		if err := c.Bind(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input")
		}
		if err := data.Jobs.OnResult(c.Request().Context(), c.Param("token"), &in); err != nil {
			return httpError(err)
		}
		return okResult(c)
	}
}

func taskIDParam(c echo.Context) (int, error) {
	res, err := strconv.Atoi(c.Param("taskID"))
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "wrong taskID")
	}
	return res, nil
}

func okResult(c echo.Context) error {
	return c.JSONBlob(http.StatusOK, []byte(`{"status":"OK"}`))
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// httpError maps typed operation failures to HTTP responses. PreviousJob gets a
// distinct body code so callers can tell "busy" from "previously failed".
func httpError(err error) *echo.HTTPError {
	code := apperr.CodeOf(err)
	if code == apperr.Internal {
		goapp.Log.Error().Err(err).Send()
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	if code == apperr.PreviousJob {
		return echo.NewHTTPError(apperr.HTTPStatus(err), errorBody{Code: "PREVIOUS_JOB_ERROR", Message: err.Error()})
	}
	return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
}
