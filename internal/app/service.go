package app

import (
	"time"

	"aptly-reconcile/internal/adapters"
	"aptly-reconcile/internal/ports"
)

// Settings are the tool-level options shared by every use case.
type Settings struct {
	AptlyBin        string
	GPGBin          string
	Keyring         string
	Keyserver       string
	MinAptlyVersion string
}

type Service struct {
	ConfigLoader    ports.ConfigLoaderPort
	Converter       ports.ConfigConverterPort
	Runner          ports.CommandRunnerPort
	Keyring         ports.KeyringPort
	Version         ports.BackendVersionPort
	AptlyBin        string
	Keyserver       string
	MinAptlyVersion string
	Clock           func() time.Time
}

func NewService(settings Settings) Service {
	aptlyBin := settings.AptlyBin
	if aptlyBin == "" {
		aptlyBin = "aptly"
	}
	runner := adapters.NewExecRunner()
	return Service{
		ConfigLoader:    adapters.NewConfigFileAdapter(),
		Converter:       adapters.NewConfigConverter(),
		Runner:          runner,
		Keyring:         adapters.NewGPGKeyring(runner, settings.GPGBin, settings.Keyring),
		Version:         adapters.NewAptlyVersionProbe(runner, aptlyBin),
		AptlyBin:        aptlyBin,
		Keyserver:       settings.Keyserver,
		MinAptlyVersion: settings.MinAptlyVersion,
		Clock:           time.Now,
	}
}

func timeNow(clock func() time.Time) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock().UTC()
}
