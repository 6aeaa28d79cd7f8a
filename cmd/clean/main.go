package main

import (
	"context"
	"time"

	aclean "github.com/airenas/async-api/pkg/clean"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/scribe/internal/pkg/clean"
	"github.com/airenas/scribe/internal/pkg/postgres"
	"github.com/airenas/scribe/internal/pkg/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &clean.Data{}
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

	store, err := postgres.NewStore(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init store")
	}

	dbCleaner, err := postgres.NewCleaner(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db cleaner")
	}

	filer, err := newFiler(ctx)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}

	audioCleaner, err := clean.NewAudioCleaner(store, filer)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init audio cleaner")
	}

	dirCleaner, err := clean.NewDirCleaner(cfg.GetString("storage.textDir"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init dir cleaner")
	}

	printBanner()

	cleaner := &aclean.CleanerGroup{}
	cleaner.Jobs = append(cleaner.Jobs, audioCleaner)
	cleaner.Jobs = append(cleaner.Jobs, dirCleaner)
	cleaner.Jobs = append(cleaner.Jobs, dbCleaner)

	data.Cleaner = cleaner

	routing, err := postgres.NewExpiredRoutingProvider(dbPool, cfg.GetDuration("timer.expire"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init IDs provider")
	}
	tData := aclean.TimerData{}
	tData.IDsProvider = routing
	tData.RunEvery = cfg.GetDuration("timer.runEvery")
	tData.Cleaner = routing

	goapp.Log.Info().Dur("duration", cfg.GetDuration("timer.expire")).Msg("expire")

	ctxTimer, cancelFunc := context.WithCancel(ctx)
	doneCh, err := aclean.StartCleanTimer(ctxTimer, &tData)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start timer")
	}
	err = clean.StartWebServer(data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

func newFiler(ctx context.Context) (clean.FileDeleter, error) {
	cfg := goapp.Config
	if cfg.GetString("filer.url") != "" {
		return storage.NewMinioFiler(ctx, storage.MinioOptions{URL: cfg.GetString("filer.url"),
			User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key"),
			Bucket: cfg.GetString("filer.bucket"), SSL: cfg.GetBool("filer.https")})
	}
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
/____/\____/_/ |_/___/_____/_____/

        __
  _____/ /__  ____ _____
 / ___/ / _ \/ __ ` + "`" + `/ __ \
/ /__/ /  __/ /_/ / / / /
\___/_/\___/\__,_/_/ /_/   v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/scribe"))
}
