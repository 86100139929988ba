package service

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		NewRelayService,

		// [DECORATION_LAYER] handlers outside this module only ever see the traced relay
		func(svc *RelayService, logger *slog.Logger, tp trace.TracerProvider) Relayer {
			return NewRelayMiddleware(svc, logger, tp)
		},
	),
)
