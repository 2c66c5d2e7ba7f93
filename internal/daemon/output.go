package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"firestige.xyz/wsinspect/internal/config"
	"firestige.xyz/wsinspect/internal/emitter"
	"firestige.xyz/wsinspect/pkg/plugin"
	_ "firestige.xyz/wsinspect/plugins" // register built-in injectors
)

// Output bundles the emitter with the injectors it submits to.
type Output struct {
	Emitter   *emitter.Emitter
	injectors []plugin.Injector
}

// StartOutput creates and starts the configured injectors and the emitter.
func StartOutput(ctx context.Context, cfg config.EmitterConfig) (*Output, error) {
	o := &Output{}

	primary, err := o.startInjector(ctx, cfg.Injector)
	if err != nil {
		return nil, err
	}

	var fallback plugin.Injector
	if cfg.Fallback.Type != "" {
		fallback, err = o.startInjector(ctx, cfg.Fallback)
		if err != nil {
			o.stopInjectors(ctx)
			return nil, err
		}
	}

	em, err := emitter.New(emitter.Config{
		Primary:       primary,
		Fallback:      fallback,
		Host:          cfg.Host,
		UserAgent:     cfg.UserAgent,
		QueueCapacity: cfg.QueueCapacity,
		SubmitTimeout: cfg.SubmitTimeoutDuration(),
		Logger:        slog.Default().With("component", "emitter"),
	})
	if err != nil {
		o.stopInjectors(ctx)
		return nil, err
	}
	o.Emitter = em
	o.Emitter.Start(ctx)
	return o, nil
}

func (o *Output) startInjector(ctx context.Context, ic config.InjectorConfig) (plugin.Injector, error) {
	inj, err := plugin.NewInjector(ic.Type, ic.Options)
	if err != nil {
		return nil, fmt.Errorf("create injector: %w", err)
	}
	if err := inj.Start(ctx); err != nil {
		return nil, fmt.Errorf("start injector %s: %w", ic.Type, err)
	}
	o.injectors = append(o.injectors, inj)
	return inj, nil
}

// Close flushes the emitter, then stops the injectors.
func (o *Output) Close(ctx context.Context) {
	if o.Emitter != nil {
		o.Emitter.Close()
	}
	o.stopInjectors(ctx)
}

func (o *Output) stopInjectors(ctx context.Context) {
	for _, inj := range o.injectors {
		if err := inj.Stop(ctx); err != nil {
			slog.Error("error stopping injector", "injector", inj.Name(), "error", err)
		}
	}
	o.injectors = nil
}
