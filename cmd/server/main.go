// Package main boots the Kratos HTTP entrypoint for the listing media service.
package main

import (
	"context"
	"flag"
	"time"

	configloader "github.com/bionicotaku/estate-services-listing/internal/infrastructure/configloader"
	loginfra "github.com/bionicotaku/estate-services-listing/internal/infrastructure/logger"
	"github.com/bionicotaku/estate-services-listing/internal/tasks/lifecycle"
	"github.com/bionicotaku/estate-services-listing/internal/tasks/publish"

	"github.com/bionicotaku/lingo-utils/observability"
	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"

	_ "go.uber.org/automaxprocs"
)

var flagconf string

func init() {
	flag.StringVar(&flagconf, "conf", "", "config path, eg: -conf configs")
}

func newApp(meta configloader.ServiceMetadata, logger log.Logger, queue *publish.Queue, sweeper *lifecycle.Runner, hs *http.Server) *kratos.App {
	return kratos.New(
		kratos.ID(meta.InstanceID),
		kratos.Name(meta.Name),
		kratos.Version(meta.Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			queue,
			sweeper,
			hs,
		),
	)
}

func main() {
	flag.Parse()

	// Load bootstrap configuration and derive service metadata.
	bundle, err := configloader.Build(configloader.Params{
		ConfPath: configloader.ResolveConfPath(flagconf),
	})
	if err != nil {
		panic(err)
	}

	// Build the structured logger used by the entire application.
	loggr, err := loginfra.NewLogger(loginfra.FromMetadata(bundle.Service))
	if err != nil {
		panic(err)
	}

	info := bundle.Service.ObservabilityInfo()
	obsShutdown, err := observability.Init(context.Background(), bundle.ObsConfig,
		observability.WithLogger(loggr),
		observability.WithServiceName(info.Name),
		observability.WithServiceVersion(info.Version),
		observability.WithEnvironment(info.Environment),
	)
	if err != nil {
		panic(err)
	}
	defer func() {
		if obsShutdown == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obsShutdown(ctx); err != nil {
			log.NewHelper(loggr).Warnf("shutdown observability: %v", err)
		}
	}()

	// Assemble all dependencies (pool, store, services, servers) via Wire and create the Kratos app.
	app, cleanupApp, err := wireApp(context.Background(), bundle, loggr)
	if err != nil {
		panic(err)
	}
	defer cleanupApp()

	// Start the application and block until a stop signal is received.
	if err := app.Run(); err != nil {
		panic(err)
	}
}
