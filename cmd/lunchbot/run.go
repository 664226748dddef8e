package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m3rciful/stateful/core/bootstrap"
	corecmd "github.com/m3rciful/stateful/core/cmd"
	coretelegram "github.com/m3rciful/stateful/core/telegram"
	"github.com/m3rciful/stateful/internal/lunch"

	tele "gopkg.in/telebot.v4"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return corecmd.Run(corecmd.Options{
				ConfigPath:        configFlag(cmd),
				ConfigEnvVar:      configEnvVar,
				DefaultConfigPath: defaultConfigPath,
				LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
					cfg, err := lunch.LoadConfig(path)
					if err != nil {
						return nil, err
					}
					return cfg, nil
				},
				Bootstrap: buildApp,
			})
		},
	}
}

type app struct {
	res  *bootstrap.Result
	mods bootstrap.Modules
}

func (a *app) Bot() *tele.Bot { return a.res.Bot }

func (a *app) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return a.res.RunOptions(a.mods), nil
}

func (a *app) Close() error { return a.res.Close() }

func buildApp(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*lunch.Config)
	if !ok {
		return nil, fmt.Errorf("unexpected config type %T", carrier)
	}
	res, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg.CoreConfig()})
	if err != nil {
		return nil, err
	}

	lunchApp, err := lunch.NewApp(cfg.Lunch)
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	mods := bootstrap.Modules{
		Registrars: []bootstrap.Registrar{bootstrap.RegistrarFunc(lunchApp.Register)},
	}
	if len(cfg.Lunch.Groups) > 0 {
		mods.Workers = append(mods.Workers, bootstrap.WorkerFunc(func(ctx context.Context, rt coretelegram.Runtime) error {
			rem, err := lunch.NewReminder(cfg.Lunch, res.Transport, rt.Dispatcher)
			if err != nil {
				return err
			}
			return rem.Run(ctx)
		}))
	}
	if err := res.Install(mods); err != nil {
		_ = res.Close()
		return nil, err
	}
	return &app{res: res, mods: mods}, nil
}
