package main

import (
	"context"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/scribe/internal/pkg/auth"
	"github.com/airenas/scribe/internal/pkg/editor"
	"github.com/airenas/scribe/internal/pkg/jobs"
	"github.com/airenas/scribe/internal/pkg/postgres"
	"github.com/airenas/scribe/internal/pkg/project"
	"github.com/airenas/scribe/internal/pkg/scribeservice"
	"github.com/airenas/scribe/internal/pkg/speech"
	"github.com/airenas/scribe/internal/pkg/storage"
	"github.com/airenas/scribe/internal/pkg/textrepo"
	"github.com/airenas/scribe/internal/pkg/utils"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &scribeservice.Data{}
	data.Port = cfg.GetInt("port")

	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	if err := postgres.CreateTables(ctx, dbPool); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't migrate db")
	}

	store, err := postgres.NewStore(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init store")
	}
	sender, err := postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init msg sender")
	}

	filer, err := newFiler(ctx)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}
	prober, err := storage.NewFFProbe()
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init prober")
	}
	paths, err := storage.NewPaths(cfg.GetString("storage.textDir"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init paths")
	}

	speechCl, err := speech.NewClient(cfg.GetString("speech.submitUrl"), cfg.GetString("speech.cancelUrl"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init speech client")
	}
	repo, err := textrepo.NewRepo(cfg.GetString("repo.committer"), cfg.GetString("repo.email"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init text repo")
	}

	data.Auth, err = auth.NewVerifier(cfg.GetString("auth.secret"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init auth")
	}

	data.Projects, err = project.NewManager(&project.Data{DB: store, Filer: filer, Prober: prober,
		Speech: speechCl, Repo: repo, MsgSender: sender, Paths: paths,
		Categories:  cfg.GetStringSlice("project.categories"),
		ExternalURL: cfg.GetString("externalURL")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init project manager")
	}
	data.Tasks, err = editor.NewManager(&editor.Data{DB: store, Filer: filer, Repo: repo,
		MsgSender: sender, Speech: speechCl, Paths: paths})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init editor manager")
	}
	data.Jobs, err = jobs.NewOrchestrator(&jobs.Data{DB: store, Filer: filer, Speech: speechCl,
		Repo: repo, MsgSender: sender, Paths: paths,
		ExternalURL: cfg.GetString("externalURL")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init job orchestrator")
	}
	data.DB = store

	printBanner()

	go utils.RunPerfEndpoint()

	err = scribeservice.StartWebServer(data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
}

func newFiler(ctx context.Context) (project.Filer, error) {
	cfg := goapp.Config
	if cfg.GetString("filer.url") != "" {
		goapp.Log.Info().Str("filer", "minio").Msg("storage")
		return storage.NewMinioFiler(ctx, storage.MinioOptions{URL: cfg.GetString("filer.url"),
			User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key"),
			Bucket: cfg.GetString("filer.bucket"), SSL: cfg.GetBool("filer.https")})
	}
	goapp.Log.Info().Str("filer", "local").Msg("storage")
	return storage.NewLocalFiler(cfg.GetString("filer.dir"))
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
   _____ __________  ________  ______
  / ___// ____/ __ \/  _/ __ )/ ____/
  \__ \/ /   / /_/ // // __  / __/
 ___/ / /___/ _, _// // /_/ / /___
/____/\____/_/ |_/___/_____/_____/   v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/scribe"))
}
