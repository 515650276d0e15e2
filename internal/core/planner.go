package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"aptly-reconcile/internal/ports"
	"aptly-reconcile/internal/types"
)

const importKeyFunction = "import-gpg-key"

// Planner turns declared config entries into Commands. It only reads the
// backend through State; nothing is executed while planning.
type Planner struct {
	Config    types.Config
	State     *StateReader
	Namer     Namer
	Keyring   ports.KeyringPort
	AptlyBin  string
	Keyserver string
	Now       func() time.Time
}

func NewPlanner(cfg types.Config, state *StateReader, keyring ports.KeyringPort, now func() time.Time) *Planner {
	aptlyBin := "aptly"
	if state != nil && state.AptlyBin != "" {
		aptlyBin = state.AptlyBin
	}
	return &Planner{
		Config:   cfg,
		State:    state,
		Namer:    NewNamer(cfg, now),
		Keyring:  keyring,
		AptlyBin: aptlyBin,
		Now:      now,
	}
}

func (p *Planner) now() time.Time {
	if p.Now == nil {
		return time.Now().UTC()
	}
	return p.Now().UTC()
}

func (p *Planner) aptly(args ...string) *Command {
	return NewCommand(append([]string{p.AptlyBin}, args...)...)
}

// MirrorCreate plans the mirror and any signing keys it still lacks. An
// existing mirror yields no commands.
func (p *Planner) MirrorCreate(ctx context.Context, name string) ([]*Command, error) {
	assert.NotEmpty(ctx, name, "mirror name must be set")
	mirror, ok := p.Config.Mirrors[name]
	if !ok {
		return nil, mirrorNotFound(name)
	}
	if p.State.HasMirror(name) {
		log.Ctx(ctx).Debug().Str("mirror", name).Msg("mirror exists, skipping create")
		return nil, nil
	}
	var commands []*Command
	for _, key := range mirror.GPGKeys {
		if p.State.HasGPGKey(key) {
			continue
		}
		commands = append(commands, p.importKey(key, mirror.Keyserver, mirror.KeyURL(key)))
	}

	cmd := p.aptly("mirror", "create")
	if mirror.Sources {
		cmd.Append("-with-sources")
	} else {
		cmd.Append("-with-sources=false")
	}
	if mirror.UDeb {
		cmd.Append("-with-udebs")
	}
	if len(mirror.Architectures) > 0 {
		cmd.Append("-architectures=" + strings.Join(mirror.Architectures, ","))
	}
	cmd.Append(name, mirror.Archive, mirror.Distribution)
	cmd.Append(mirror.Components...)
	for _, key := range mirror.GPGKeys {
		cmd.Require(types.ResourceGPGKey, key)
	}
	cmd.Provide(types.ResourceMirror, name)
	return append(commands, cmd), nil
}

// MirrorUpdate fetches new upstream content. The create plan is included so
// an update works against a fresh backend.
func (p *Planner) MirrorUpdate(ctx context.Context, name string) ([]*Command, error) {
	mirror, ok := p.Config.Mirrors[name]
	if !ok {
		return nil, mirrorNotFound(name)
	}
	commands, err := p.MirrorCreate(ctx, name)
	if err != nil {
		return nil, err
	}
	cmd := p.aptly("mirror", "update")
	if mirror.MaxTries > 0 {
		cmd.Append("-max-tries=" + strconv.Itoa(mirror.MaxTries))
	}
	cmd.Append(name)
	cmd.Require(types.ResourceMirror, name)
	return append(commands, cmd), nil
}

func (p *Planner) importKey(key string, keyserver string, url string) *Command {
	if keyserver == "" {
		keyserver = p.Keyserver
	}
	keyring := p.Keyring
	cmd := NewFunctionCommand(importKeyFunction, func(ctx context.Context) error {
		if keyring == nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeFailedPrecondition).
				WithMsg(fmt.Sprintf("no keyring configured to import %s", key))
		}
		return keyring.ImportKey(ctx, key, keyserver, url)
	}, key)
	cmd.Provide(types.ResourceGPGKey, key)
	return cmd
}

// RepoCreate plans a local repository unless it exists.
func (p *Planner) RepoCreate(ctx context.Context, name string) ([]*Command, error) {
	assert.NotEmpty(ctx, name, "repo name must be set")
	repo, ok := p.Config.Repos[name]
	if !ok {
		return nil, notInConfig(types.ResourceRepo, name)
	}
	if p.State.HasRepo(name) {
		log.Ctx(ctx).Debug().Str("repo", name).Msg("repo exists, skipping create")
		return nil, nil
	}
	cmd := p.aptly("repo", "create")
	if len(repo.Architectures) > 0 {
		cmd.Append("-architectures=" + strings.Join(repo.Architectures, ","))
	}
	if repo.Comment != "" {
		cmd.Append("-comment=" + repo.Comment)
	}
	if len(repo.Components) > 0 {
		cmd.Append("-component=" + strings.Join(repo.Components, ","))
	}
	if repo.Distribution != "" {
		cmd.Append("-distribution=" + repo.Distribution)
	}
	cmd.Append(name)
	cmd.Provide(types.ResourceRepo, name)
	return []*Command{cmd}, nil
}

func mirrorNotFound(name string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("mirror not found in config: %s", name))
}

func notInConfig(kind types.ResourceKind, name string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("%s not found in config: %s", kind, name))
}
