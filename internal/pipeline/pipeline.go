// Package pipeline runs tiling tasks: decimation, partitioning, texture
// packing, tile encoding, storage and manifest assembly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/meshtiler/internal/atlas"
	"github.com/Faultbox/meshtiler/internal/config"
	"github.com/Faultbox/meshtiler/internal/encoder"
	"github.com/Faultbox/meshtiler/internal/geo"
	"github.com/Faultbox/meshtiler/internal/loader"
	"github.com/Faultbox/meshtiler/internal/lod"
	"github.com/Faultbox/meshtiler/internal/logger"
	"github.com/Faultbox/meshtiler/internal/partition"
	"github.com/Faultbox/meshtiler/internal/store"
	"github.com/Faultbox/meshtiler/internal/tileset"
	pmath "github.com/Faultbox/meshtiler/pkg/math"
	"github.com/Faultbox/meshtiler/pkg/mesh"
)

// DefaultBackoff is the delay before the first retry of a failed leaf.
const DefaultBackoff = 100 * time.Millisecond

// Task is one model to tile.
type Task struct {
	ID string
	// Input is resolved by the loader unless Mesh is set.
	Input string
	Mesh  *mesh.Mesh
}

// Options wires an Orchestrator to its collaborators.
type Options struct {
	Config *config.Config
	Loader loader.MeshLoader
	// Store defaults to a filesystem store under Config.Output.Dir.
	Store    store.TileStore
	Progress ProgressSink
	// Projector overrides Config.Geo when set.
	Projector geo.Projector
	Backoff   time.Duration
	Logger    *zap.Logger
}

// Orchestrator runs tasks with a fixed configuration.
type Orchestrator struct {
	cfg       *config.Config
	loader    loader.MeshLoader
	store     store.TileStore
	progress  ProgressSink
	projector geo.Projector
	backoff   time.Duration
	log       *zap.Logger
}

// New validates the configuration and creates an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := &Orchestrator{
		cfg:       cfg,
		loader:    opts.Loader,
		store:     opts.Store,
		progress:  opts.Progress,
		projector: opts.Projector,
		backoff:   opts.Backoff,
		log:       opts.Logger,
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.progress == nil {
		o.progress = NopSink{}
	}
	if o.backoff <= 0 {
		o.backoff = DefaultBackoff
	}
	if o.store == nil {
		o.store = store.NewFS(cfg.Output.Dir, store.FSOptions{
			Ext:         cfg.Slicing.OutputFormat.Extension(),
			Incremental: cfg.Slicing.EnableIncrementalUpdates,
		})
	}
	if o.loader == nil {
		reg, err := loader.DefaultRegistry(loader.Options{Charset: cfg.Slicing.Charset, Logger: o.log.Named("loader")})
		if err != nil {
			return nil, err
		}
		o.loader = reg
	}
	if o.projector == nil && cfg.Geo.Enabled {
		g := cfg.Geo
		o.projector = geo.ENUProjector{
			Lon:    g.Lon,
			Lat:    g.Lat,
			Height: g.Height,
			Offset: pmath.Vec3{X: g.Offset[0], Y: g.Offset[1], Z: g.Offset[2]},
		}
	}
	return o, nil
}

// Store returns the tile store in use.
func (o *Orchestrator) Store() store.TileStore {
	return o.store
}

// LevelStats summarizes one LOD level of a run.
type LevelStats struct {
	LOD       int
	Triangles int
	Leaves    int
	Written   int
	Failed    int
}

// Result is the outcome of a task. With the lenient policy it may be
// returned together with the errors of the leaves it omits.
type Result struct {
	TaskID   string
	Levels   []LevelStats
	Tiles    int
	Bounds   pmath.Box3
	Manifest *tileset.Manifest
	Errors   []error
	Duration time.Duration
}

// storeCounter is implemented by stores that count their writes.
type storeCounter interface {
	Stats() (written, skipped int64)
}

// run holds the state of one task.
type run struct {
	o       *Orchestrator
	task    Task
	log     *zap.Logger
	cache   *atlas.Cache
	packer  *atlas.Packer
	encoder *encoder.Encoder
	builder *tileset.Builder
	tracker *tracker

	mu       sync.Mutex
	failures error
}

// Run tiles one task. Resource limit, input and geometry problems fail
// before anything is written. Leaf failures follow the configured policy.
func (o *Orchestrator) Run(ctx context.Context, task Task) (*Result, error) {
	start := time.Now()
	cfg := o.cfg
	log := logger.ForTask(o.log, task.ID)

	if err := store.ValidateTaskID(task.ID); err != nil {
		return nil, taskError(ErrInput, task.ID, StageValidate, err)
	}
	if err := cfg.CheckLimits(); err != nil {
		return nil, taskError(ErrResourceLimit, task.ID, StageLimits, err)
	}

	m, err := o.load(ctx, task)
	if err != nil {
		return nil, err
	}
	bounds := m.Bounds()
	log.Info("model loaded",
		zap.String("name", m.Name),
		zap.Int("triangles", len(m.Triangles)),
		zap.Int("materials", len(m.Materials)),
		zap.Bool("textured", m.HasTextures()))
	if !finiteBox(bounds) {
		return nil, taskError(ErrGeometry, task.ID, StageValidate, fmt.Errorf("bounding box %v is empty or not finite", bounds))
	}

	o.progress.Report(StageDecimate, 0, 0)
	var levels []lod.Level
	if cfg.Slicing.EnableMeshDecimation {
		levels, err = lod.BuildLevels(ctx, m, cfg.Slicing.Ratios(), log.Named(StageDecimate))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, taskError(ErrGeometry, task.ID, StageDecimate, err)
		}
	} else {
		levels = []lod.Level{{Index: 0, Ratio: 1, Mesh: m}}
	}

	cache := atlas.NewCache()
	r := &run{
		o:     o,
		task:  task,
		log:   log,
		cache: cache,
		packer: atlas.NewPacker(atlas.Options{
			Strategy:    cfg.Slicing.TextureStrategy,
			JPEGQuality: cfg.Slicing.JPEGQuality,
			Encoding:    cfg.Slicing.AtlasEncoding,
			MaxSize:     cfg.Slicing.MaxAtlasSize,
			Logger:      log.Named(StagePack),
		}, cache),
		encoder: encoder.New(encoder.Options{Format: cfg.Slicing.OutputFormat}),
		builder: tileset.NewBuilder(),
		tracker: newTracker(o.progress, len(levels)<<cfg.Slicing.Divisions),
	}

	stats := make([]LevelStats, len(levels))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Pipeline.Workers)
	for i := range levels {
		level := levels[i]
		g.Go(func() error {
			s, err := r.level(gctx, level)
			stats[i] = s
			return err
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		r.discard()
		if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
			err = multierr.Append(ctx.Err(), err)
		}
		return nil, err
	}

	res := &Result{
		TaskID: task.ID,
		Levels: stats,
		Tiles:  r.builder.Len(),
		Bounds: bounds,
		Errors: multierr.Errors(r.failures),
	}

	if cfg.Slicing.GenerateTileset {
		manifest, err := r.assemble(ctx)
		if err != nil {
			r.discard()
			return nil, multierr.Append(err, r.failures)
		}
		res.Manifest = manifest
	}

	res.Duration = time.Since(start)
	o.progress.Report(StageDone, 100, 0)
	hits, misses := cache.Stats()
	fields := []zap.Field{
		zap.Int("tiles", res.Tiles),
		zap.Int("failed", len(res.Errors)),
		zap.Int("texture_cache_hits", hits),
		zap.Int("texture_cache_misses", misses),
		zap.Duration("duration", res.Duration),
	}
	if c, ok := o.store.(storeCounter); ok {
		written, skipped := c.Stats()
		fields = append(fields, zap.Int64("files_written", written), zap.Int64("files_unchanged", skipped))
	}
	log.Info("task complete", fields...)
	return res, r.failures
}

func (o *Orchestrator) load(ctx context.Context, task Task) (*mesh.Mesh, error) {
	if task.Mesh != nil {
		return task.Mesh, nil
	}
	if o.loader == nil || task.Input == "" {
		return nil, taskError(ErrInput, task.ID, StageLoad, errors.New("no input"))
	}
	o.progress.Report(StageLoad, 0, 0)
	m, err := o.loader.Load(ctx, task.Input)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, taskError(ErrInput, task.ID, StageLoad, err)
	}
	if len(m.Triangles) == 0 {
		return nil, taskError(ErrInput, task.ID, StageLoad, errors.New("model has no triangles"))
	}
	if err := m.Validate(); err != nil {
		return nil, taskError(ErrInput, task.ID, StageLoad, err)
	}
	return m, nil
}

func finiteBox(b pmath.Box3) bool {
	if b.IsEmpty() {
		return false
	}
	for _, v := range []float64{b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// level partitions one LOD level and processes its leaves in traversal order.
func (r *run) level(ctx context.Context, level lod.Level) (LevelStats, error) {
	cfg := r.o.cfg
	s := LevelStats{LOD: level.Index, Triangles: len(level.Mesh.Triangles)}
	log := r.log.With(zap.Int("lod", level.Index))

	pstats, err := partition.Partition(ctx, level.Mesh, partition.Options{
		MaxDepth:             cfg.Slicing.Divisions,
		MinTrianglesPerSplit: cfg.Slicing.MinTrianglesPerSplit,
		TileSize:             cfg.Slicing.TileSize,
		Logger:               log.Named(StagePartition),
	}, func(leaf *partition.Leaf) error {
		s.Leaves++
		if err := r.leaf(ctx, level.Index, leaf); err != nil {
			if cfg.Pipeline.Policy == config.PolicyStrict || ctx.Err() != nil {
				return err
			}
			s.Failed++
			log.Warn("leaf omitted", zap.Error(err))
			r.mu.Lock()
			r.failures = multierr.Append(r.failures, err)
			r.mu.Unlock()
			return nil
		}
		s.Written++
		r.tracker.leaf(StageWrite)
		return nil
	})
	if err != nil {
		return s, err
	}
	if !pstats.Accounted() {
		log.Warn("partition lost triangles",
			zap.Int("input", pstats.Input),
			zap.Int("output", pstats.Output),
			zap.Int("added", pstats.Clipped.Added),
			zap.Int("dropped", pstats.Clipped.Dropped))
	}
	log.Debug("level done",
		zap.Int("triangles", s.Triangles),
		zap.Int("leaves", s.Leaves),
		zap.Int("splits", pstats.Splits))
	return s, nil
}

// leaf packs, encodes and writes one tile, retrying failures with backoff.
func (r *run) leaf(ctx context.Context, lodIndex int, leaf *partition.Leaf) error {
	var (
		kind  error
		stage string
		last  error
		uri   string
	)
	attempts := r.o.cfg.Pipeline.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := r.o.backoff << (attempt - 1)
			r.log.Debug("retrying leaf",
				zap.Int("lod", lodIndex),
				zap.String("tile", leaf.Address.Name()),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		packed, err := r.packer.Pack(leaf.Triangles, leaf.Materials.Materials)
		if err != nil {
			kind, stage, last = ErrEncoding, StagePack, err
			continue
		}
		data, err := r.encoder.Encode(encoder.Tile{Triangles: packed.Triangles, Materials: packed.Materials})
		if err != nil {
			kind, stage, last = ErrEncoding, StageEncode, err
			continue
		}
		key := store.TileKey{TaskID: r.task.ID, LOD: lodIndex, Address: leaf.Address}
		uri, err = r.o.store.WriteTile(ctx, key, data)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			kind, stage, last = ErrIO, StageWrite, err
			continue
		}

		r.builder.Add(tileset.Tile{LOD: lodIndex, Address: leaf.Address, Bounds: leaf.Bounds, URI: uri})
		return nil
	}
	return leafError(kind, r.task.ID, stage, lodIndex, leaf.Address, last)
}

// assemble builds and stores the manifest for the tiles written so far.
func (r *run) assemble(ctx context.Context) (*tileset.Manifest, error) {
	cfg := r.o.cfg
	r.tracker.stage(StageAssemble, 99)

	tree, err := r.builder.Build(tileset.Options{ErrorThreshold: cfg.Slicing.GeometricErrorThreshold})
	if err != nil {
		return nil, taskError(ErrEncoding, r.task.ID, StageAssemble, err)
	}
	for _, ov := range tree.Overlaps {
		r.log.Warn("coarser level split deeper than finer level",
			zap.Int("lod", ov.LOD),
			zap.String("tile", ov.Address.Name()))
	}

	var opts tileset.ManifestOptions
	if r.o.projector != nil {
		t, err := geo.AnchorTransform(tree.Nodes[tree.Root].Bounds, r.o.projector)
		if err != nil {
			return nil, taskError(ErrGeometry, r.task.ID, StageAssemble, err)
		}
		opts.Transform = &t
	}
	manifest := tree.Manifest(opts)
	data, err := manifest.Marshal()
	if err != nil {
		return nil, taskError(ErrEncoding, r.task.ID, StageAssemble, err)
	}
	if err := r.o.store.WriteManifest(ctx, r.task.ID, data); err != nil {
		return nil, taskError(ErrIO, r.task.ID, StageWrite, err)
	}
	return manifest, nil
}

// discard removes the task's tiles unless partial output is kept.
func (r *run) discard() {
	if r.o.cfg.Pipeline.KeepPartial {
		r.log.Info("keeping partial output", zap.Int("tiles", r.builder.Len()))
		return
	}
	if err := r.o.store.DeleteTask(context.Background(), r.task.ID); err != nil {
		r.log.Warn("failed to discard partial output", zap.Error(err))
	}
}
