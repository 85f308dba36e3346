//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"context"

	"github.com/bionicotaku/estate-services-listing/internal/controllers"
	configloader "github.com/bionicotaku/estate-services-listing/internal/infrastructure/configloader"
	"github.com/bionicotaku/estate-services-listing/internal/infrastructure/database"
	"github.com/bionicotaku/estate-services-listing/internal/infrastructure/ffmpeg"
	"github.com/bionicotaku/estate-services-listing/internal/infrastructure/objectstore"
	"github.com/bionicotaku/estate-services-listing/internal/repositories"
	"github.com/bionicotaku/estate-services-listing/internal/server"
	"github.com/bionicotaku/estate-services-listing/internal/services"
	"github.com/bionicotaku/estate-services-listing/internal/tasks/lifecycle"
	"github.com/bionicotaku/estate-services-listing/internal/tasks/publish"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(context.Context, *configloader.Bundle, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		configloader.ProviderSet,
		database.ProviderSet,
		objectstore.ProviderSet,
		ffmpeg.ProviderSet,
		repositories.ProviderSet,
		services.ProviderSet,
		publish.ProviderSet,
		lifecycle.ProviderSet,
		controllers.ProviderSet,
		server.ProviderSet,
		newApp,
	))
}
