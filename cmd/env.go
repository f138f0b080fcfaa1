package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/juror-match/internal/config"
	"github.com/sells-group/juror-match/internal/engine"
	"github.com/sells-group/juror-match/internal/persona"
	"github.com/sells-group/juror-match/internal/signal"
	"github.com/sells-group/juror-match/internal/store"
	"github.com/sells-group/juror-match/internal/weights"
)

// engineEnv bundles an engine with the store it was loaded from, if any.
type engineEnv struct {
	Engine  *engine.Engine
	Catalog *signal.Catalog
	Store   store.Store
}

// Close releases the store.
func (e *engineEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// buildWeights builds a table from the configured persona library.
func buildWeights(catalog *signal.Catalog) (*weights.Table, error) {
	lib, err := persona.LoadLibrary(cfg.Weights.PersonasPath)
	if err != nil {
		return nil, err
	}
	return weights.Build(catalog, lib.Personas)
}

// loadWeights returns the table named by weights.source. st may be nil
// unless the source is "store".
func loadWeights(ctx context.Context, catalog *signal.Catalog, st store.Store) (*weights.Table, error) {
	switch cfg.Weights.Source {
	case config.WeightSourceSnapshot:
		return weights.ReadFile(cfg.Weights.SnapshotPath)
	case config.WeightSourceStore:
		if st == nil {
			return nil, eris.New("weights source is store but no store is open")
		}
		return st.LatestWeights(ctx)
	default:
		return buildWeights(catalog)
	}
}

// initEngine loads the catalog and weights and builds an engine. withStore
// opens the store even when the weights do not come from it.
func initEngine(ctx context.Context, withStore bool, opts ...engine.Option) (*engineEnv, error) {
	catalog, err := signal.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load catalog")
	}

	env := &engineEnv{Catalog: catalog}
	if withStore || cfg.Weights.Source == config.WeightSourceStore {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}

	table, err := loadWeights(ctx, catalog, env.Store)
	if err != nil {
		env.Close()
		return nil, eris.Wrapf(err, "load weights from %s", cfg.Weights.Source)
	}

	env.Engine = engine.New(cfg, catalog, table, opts...)
	zap.L().Debug("engine ready",
		zap.String("catalog_version", catalog.Version()),
		zap.String("weights_id", table.ID()),
		zap.String("weights_version", table.Version()),
	)
	return env, nil
}

// openInput returns stdin for "" or "-", otherwise the named file.
func openInput(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	return f, nil
}

func readJSON(path string, stdin io.Reader, v any) error {
	r, err := openInput(path, stdin)
	if err != nil {
		return err
	}
	defer r.Close() //nolint:errcheck
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return eris.Wrap(err, "decode input")
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}
