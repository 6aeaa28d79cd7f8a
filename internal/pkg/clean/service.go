package clean

import (
	"context"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/pkg/errors"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/scribe/internal/pkg/apperr"
	"github.com/airenas/scribe/internal/pkg/persistence"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Cleaner is a wrapper for clean functionality
type Cleaner interface {
	Clean(ctx context.Context, ID string) error
}

// Data keeps data required for service work
type Data struct {
	Port    int
	Cleaner Cleaner
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Int("port", data.Port).Msgf("Starting HTTP scribe clean service")
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 10 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Cleaner == nil {
		return errors.New("no cleaner")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("scribe_clean", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.DELETE("/delete/:id", delete(data.Cleaner))
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

func delete(cleaner Cleaner) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("delete method")()

		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		err := cleaner.Clean(c.Request().Context(), id)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Can't delete")
		}
		return c.String(http.StatusOK, "deleted")
	}
}

// DirCleaner removes the project's text directory tree
type DirCleaner struct {
	root string
}

// NewDirCleaner creates DirCleaner instance
func NewDirCleaner(root string) (*DirCleaner, error) {
	if root == "" {
		return nil, errors.New("no root dir")
	}
	return &DirCleaner{root: root}, nil
}

// Clean drops the dir of the project
func (dc *DirCleaner) Clean(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("no ID")
	}
	dir := filepath.Join(dc.root, id)
	goapp.Log.Info().Str("dir", dir).Msg("removing")
	return os.RemoveAll(dir)
}

// ProjectLoader loads the project record
type ProjectLoader interface {
	LoadProject(ctx context.Context, id string) (*persistence.Project, error)
}

// FileDeleter removes a stored file
type FileDeleter interface {
	DeleteFile(ctx context.Context, name string) error
}

// AudioCleaner drops the project's audio object from the file storage.
// Must run before the DB cleaner - it needs the project row for the object name.
type AudioCleaner struct {
	db    ProjectLoader
	filer FileDeleter
}

// NewAudioCleaner creates AudioCleaner instance
func NewAudioCleaner(db ProjectLoader, filer FileDeleter) (*AudioCleaner, error) {
	if db == nil {
		return nil, errors.New("no db")
	}
	if filer == nil {
		return nil, errors.New("no filer")
	}
	return &AudioCleaner{db: db, filer: filer}, nil
}

// Clean removes the audio of the project
func (ac *AudioCleaner) Clean(ctx context.Context, id string) error {
	p, err := ac.db.LoadProject(ctx, id)
	if err != nil {
		if apperr.CodeOf(err) == apperr.NotFound {
			return nil
		}
		return err
	}
	if !p.AudioFile.Valid {
		return nil
	}
	goapp.Log.Info().Str("file", p.AudioFile.String).Msg("removing")
	return ac.filer.DeleteFile(ctx, p.AudioFile.String)
}
