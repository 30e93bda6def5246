package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"noeta/internal/cognition"
	"noeta/internal/config"
	"noeta/internal/persistence"
)

// booted bundles everything a one-shot or long-running subcommand needs to
// operate on the workspace's persisted belief base and to hand it back at
// shutdown.
type booted struct {
	Cog    *cognition.Cognition
	Codec  persistence.Codec
	FileCfg config.Config
}

// bootCognition loads <workspace>/.noeta's config, opens the configured
// snapshot codec, restores it into a fresh Cognition, and returns both so
// the caller can run, then call save and close when done. Mirrors the
// teacher's GetOrBootCortex: chdir into the workspace, stand up the core,
// let the caller defer its teardown.
func bootCognition() (*booted, error) {
	if workspace != "" {
		abs, err := filepath.Abs(workspace)
		if err != nil {
			return nil, fmt.Errorf("resolve workspace: %w", err)
		}
		if err := os.Chdir(abs); err != nil {
			return nil, fmt.Errorf("chdir workspace: %w", err)
		}
	}

	fc, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	codec, err := openCodec(fc.Persistence)
	if err != nil {
		return nil, fmt.Errorf("open persistence backend: %w", err)
	}

	cog := cognition.New(cognition.FromFileConfig(fc))
	if err := cog.Load(codec); err != nil {
		cog.Close()
		closeCodec(codec)
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	return &booted{Cog: cog, Codec: codec, FileCfg: fc}, nil
}

// save writes the current in-memory state back through the codec.
func (b *booted) save() error {
	return b.Cog.Save(b.Codec)
}

// close tears down the Cognition facade and the codec, in that order so no
// further bus activity can race a closing sqlite handle.
func (b *booted) close() {
	b.Cog.Close()
	closeCodec(b.Codec)
}

func openCodec(pc config.PersistenceConfig) (persistence.Codec, error) {
	if err := os.MkdirAll(filepath.Dir(pc.Path), 0755); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	switch pc.Backend {
	case "sqlite":
		return persistence.OpenSQLiteStore(pc.Path)
	default:
		return persistence.NewJSONFileStore(pc.Path), nil
	}
}

func closeCodec(codec persistence.Codec) {
	if c, ok := codec.(io.Closer); ok {
		_ = c.Close()
	}
}
