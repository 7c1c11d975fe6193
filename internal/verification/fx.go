package verification

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("verification",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(Start),
)

func Start(lc fx.Lifecycle, v *Verifier) {
	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			if err := v.Recover(startCtx); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			go v.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					v.StopTimers()
					return nil
				},
			})
			return nil
		},
	})
}
