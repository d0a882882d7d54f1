package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/blendshare/internal/blendshape"
	"github.com/Faultbox/blendshare/internal/config"
	"github.com/Faultbox/blendshare/internal/importer"
	"github.com/Faultbox/blendshare/internal/logger"
	"github.com/Faultbox/blendshare/pkg/dataset"
	"github.com/Faultbox/blendshare/pkg/scene"
	"github.com/Faultbox/blendshare/pkg/scene/gltfscene"
)

var errUsage = errors.New("invalid arguments")

func usage(line string) error {
	fmt.Fprintln(os.Stderr, "Usage: blendshare "+line)
	return errUsage
}

func loadScene(ctx context.Context, path string) (*scene.Scene, error) {
	s, err := gltfscene.New().Import(ctx, path)
	if err != nil {
		return nil, err
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

func printFailures(failures []*blendshape.Failure) {
	for _, f := range failures {
		fmt.Fprintf(os.Stderr, "  failed: %v\n", f)
	}
}

// completed returns the dataset worth writing for an extraction. A cancelled
// run still yields the meshes finished before cancellation, along with the
// error to report once they are written.
func completed(res *blendshape.Result, err error) (*dataset.Dataset, error) {
	switch {
	case err == nil:
		return res.Dataset, nil
	case errors.Is(err, blendshape.ErrCancelled) && res != nil && len(res.Dataset.Meshes) > 0:
		return res.Dataset, err
	default:
		return nil, err
	}
}

func cmdExtract(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	output := fs.String("o", "", "Output dataset file (default <origin>-<source>.bsd)")
	mesh := fs.String("mesh", "", "Only extract this mesh")
	channels := fs.String("channels", "", "Comma-separated channel names (with -mesh)")
	name := fs.String("name", "", "Dataset name")
	save := fs.Bool("save", false, "Also add the dataset to the library")
	fs.Parse(args)

	if fs.NArg() < 2 {
		return usage("extract [-o file] [-mesh name [-channels a,b]] [-save] <source.glb> <origin.glb>")
	}

	opts, err := cfg.Extract.Options()
	if err != nil {
		return err
	}
	log := logger.Named("extract")

	source, err := loadScene(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	origin, err := loadScene(ctx, fs.Arg(1))
	if err != nil {
		return err
	}

	reqs := blendshape.CompareChannels(source, origin, cfg.Extract.ByName, log)
	if *mesh != "" {
		req := blendshape.MeshRequest{Mesh: *mesh}
		if *channels != "" {
			req.Channels = strings.Split(*channels, ",")
		} else {
			for _, r := range reqs {
				if r.Mesh == *mesh {
					req.Channels = r.Channels
				}
			}
		}
		reqs = []blendshape.MeshRequest{req}
	}

	ex, err := blendshape.NewExtractor(gltfscene.New(), opts, log)
	if err != nil {
		return err
	}
	res, err := ex.Extract(ctx, source, origin, reqs)
	ds, cancelled := completed(res, err)
	if ds == nil {
		return cancelled
	}
	if *name != "" {
		ds.Name = *name
	}
	path := *output
	if path == "" {
		path = ds.Name + ".bsd"
	}
	if err := dataset.Save(path, ds); err != nil {
		return err
	}

	fmt.Printf("Dataset: %s\n", ds.Name)
	fmt.Printf("Meshes:  %d\n", len(ds.Meshes))
	for _, m := range ds.Meshes {
		fmt.Printf("  %-24s %d channels\n", m.Name, len(m.Channels))
	}
	if invalid := res.Invalid(); len(invalid) > 0 {
		fmt.Printf("Topology-invalid (native only): %s\n", strings.Join(invalid, ", "))
	}
	printFailures(res.Failures)
	fmt.Printf("Written: %s\n", path)
	if cancelled != nil {
		return errors.Wrapf(cancelled, "kept %d completed meshes", len(ds.Meshes))
	}

	if *save {
		lib, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer lib.Close()
		if err := lib.Put(ctx, ds); err != nil {
			return err
		}
		fmt.Printf("Saved to library: %s\n", cfg.Store.Path)
	}
	return nil
}

func cmdApply(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("apply", flag.ExitOnError)
	output := fs.String("o", "", "Output scene (native default overwrites target, generic default <target>-imported.glb)")
	fs.Parse(args)

	if fs.NArg() < 2 {
		return usage("apply [-o out.glb] <dataset> <target.glb>")
	}

	ds, err := loadDataset(ctx, cfg, fs.Arg(0))
	if err != nil {
		return err
	}
	target, err := loadScene(ctx, fs.Arg(1))
	if err != nil {
		return err
	}

	if cfg.Apply.Native {
		n, failures := blendshape.ApplyNativeAll(target, ds, logger.Named("apply"))
		printFailures(failures)
		path := *output
		if path == "" {
			path = fs.Arg(1)
		}
		if err := gltfscene.New().Export(ctx, target, path); err != nil {
			return err
		}
		fmt.Printf("Applied %d native channels, written %s\n", n, path)
		return nil
	}

	opts := importer.Options{Weld: cfg.Extract.Weld}
	meshes := make([]*importer.Mesh, len(target.Meshes))
	for i := range target.Meshes {
		meshes[i] = importer.Import(&target.Meshes[i], opts)
	}

	applier := blendshape.NewApplier(logger.Named("apply"))
	n, failures := applier.ApplyAll(meshes, ds)
	printFailures(failures)

	failed := make(map[string]bool, len(failures))
	for _, f := range failures {
		failed[f.Mesh] = true
	}
	for i, m := range meshes {
		if ds.Mesh(m.Name) == nil || failed[m.Name] {
			continue
		}
		target.Meshes[i] = m.Native(ds.DeformerID)
		fmt.Printf("  %-24s %s\n", m.Name, strings.Join(m.ChannelNames(), ", "))
	}

	path := *output
	if path == "" {
		ext := filepath.Ext(fs.Arg(1))
		path = strings.TrimSuffix(fs.Arg(1), ext) + "-imported" + gltfscene.Ext
	}
	if err := gltfscene.New().Export(ctx, target, path); err != nil {
		return err
	}
	fmt.Printf("Applied %s to %d of %d meshes, written %s\n", ds.Name, n, len(ds.Meshes), path)
	return nil
}

func cmdRemove(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	output := fs.String("o", "", "Output scene (default overwrites target)")
	fs.Parse(args)

	if fs.NArg() < 2 {
		return usage("remove [-o out.glb] <dataset> <target.glb>")
	}

	ds, err := loadDataset(ctx, cfg, fs.Arg(0))
	if err != nil {
		return err
	}
	target, err := loadScene(ctx, fs.Arg(1))
	if err != nil {
		return err
	}

	n := blendshape.RemoveDataset(target, ds)
	path := *output
	if path == "" {
		path = fs.Arg(1)
	}
	if err := gltfscene.New().Export(ctx, target, path); err != nil {
		return err
	}
	fmt.Printf("Removed %d channels, written %s\n", n, path)
	return nil
}

func cmdCompare(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return usage("compare <source.glb> <origin.glb>")
	}

	source, err := loadScene(ctx, args[0])
	if err != nil {
		return err
	}
	origin, err := loadScene(ctx, args[1])
	if err != nil {
		return err
	}

	for _, req := range blendshape.CompareChannels(source, origin, cfg.Extract.ByName, logger.Named("compare")) {
		if len(req.Channels) == 0 {
			continue
		}
		fmt.Printf("%s:\n", req.Mesh)
		for _, ch := range req.Channels {
			fmt.Printf("  %s\n", ch)
		}
	}
	return nil
}

func cmdInfo(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return usage("info <dataset>")
	}

	ds, err := loadDataset(ctx, cfg, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Dataset:  %s\n", ds.Name)
	fmt.Printf("Origin:   %s\n", ds.Origin)
	fmt.Printf("Deformer: %s\n", ds.DeformerID)
	fmt.Printf("Meshes:   %d\n", len(ds.Meshes))
	for _, m := range ds.Meshes {
		fmt.Println()
		if m.Valid() {
			fmt.Printf("%s (%d vertices, %d control points, hash %016x)\n", m.Name, m.VertexCount, m.ControlPointCount, m.VertexHash)
		} else {
			fmt.Printf("%s (topology-invalid, %d control points)\n", m.Name, m.ControlPointCount)
		}
		for _, ch := range m.Channels {
			native := 0
			if ch.Native != nil {
				native = len(ch.Native.Frames)
			}
			fmt.Printf("  %-24s %d frames, %d native\n", ch.Name, len(ch.Frames), native)
		}
		if err := m.Validate(); err != nil {
			logger.Named("info").Warn("record does not validate", zap.String("mesh", m.Name), zap.Error(err))
		}
	}
	return nil
}

func cmdList(ctx context.Context, cfg *config.Config, args []string) error {
	lib, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer lib.Close()

	entries, err := lib.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%-32s %-20s %3d meshes %8d bytes  %s\n",
			e.Name, e.Origin, e.Meshes, e.Size, e.Created.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(os.Stderr, "\n(%d datasets)\n", len(entries))
	return nil
}

func cmdFind(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return usage("find <target.glb>")
	}

	target, err := loadScene(ctx, args[0])
	if err != nil {
		return err
	}
	lib, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer lib.Close()

	opts := importer.Options{Weld: cfg.Extract.Weld}
	for i := range target.Meshes {
		m := importer.Import(&target.Meshes[i], opts)
		matches, err := lib.FindCompatible(ctx, m.VertexCount(), m.Hash())
		if err != nil {
			return err
		}
		for _, match := range matches {
			fmt.Printf("%-24s %s (%d channels)\n", m.Name, match.Dataset, match.Channels)
		}
	}
	return nil
}

func cmdImport(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return usage("import <file.bsd>...")
	}

	lib, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer lib.Close()

	for _, path := range args {
		ds, err := dataset.Load(path)
		if err != nil {
			return err
		}
		if err := lib.Put(ctx, ds); err != nil {
			return err
		}
		fmt.Printf("Imported %s as %s\n", path, ds.Name)
	}
	return nil
}

func cmdExport(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return usage("export <name> <file.bsd>")
	}

	lib, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer lib.Close()

	ds, err := lib.Get(ctx, args[0])
	if err != nil {
		return err
	}
	return dataset.Save(args[1], ds)
}

func cmdDelete(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return usage("delete <name>")
	}

	lib, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer lib.Close()

	return lib.Delete(ctx, args[0])
}

func cmdInit(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Replace an existing config file")
	fs.Parse(args)

	path := config.DefaultPath()
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if err := cfg.SaveTo(path, *force); err != nil {
		return err
	}
	fmt.Printf("Written: %s\n", path)
	return nil
}
