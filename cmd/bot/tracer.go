package main

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/fx"

	"scout_bot/internal/modules/config"
	"scout_bot/pkg/tracing"
)

func newTracer(lc fx.Lifecycle, cfg *config.Config) (opentracing.Tracer, error) {
	tracer, closeFn, err := tracing.InitTracer(tracing.Config{
		Host: cfg.Jaeger.Host,
		Port: cfg.Jaeger.Port,
	})
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			closeFn()
			return nil
		},
	})
	return tracer, nil
}
