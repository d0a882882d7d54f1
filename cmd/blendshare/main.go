// blendshare is a CLI utility for transferring blend shapes between meshes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/Faultbox/blendshare/internal/config"
	"github.com/Faultbox/blendshare/internal/logger"
	"github.com/Faultbox/blendshare/internal/store"
	"github.com/Faultbox/blendshare/pkg/dataset"
)

func main() {
	config.ParseFlags()
	args := config.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	command := args[0]
	args = args[1:]

	switch command {
	case "extract", "x":
		err = cmdExtract(ctx, cfg, args)
	case "apply":
		err = cmdApply(ctx, cfg, args)
	case "remove", "rm":
		err = cmdRemove(ctx, cfg, args)
	case "compare", "diff":
		err = cmdCompare(ctx, cfg, args)
	case "info":
		err = cmdInfo(ctx, cfg, args)
	case "list", "ls":
		err = cmdList(ctx, cfg, args)
	case "find":
		err = cmdFind(ctx, cfg, args)
	case "import":
		err = cmdImport(ctx, cfg, args)
	case "export":
		err = cmdExport(ctx, cfg, args)
	case "delete":
		err = cmdDelete(ctx, cfg, args)
	case "init":
		err = cmdInit(cfg, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Sync()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`blendshare - blend shape transfer utility

Usage:
  blendshare [flags] <command> [options]

Commands:
  extract <source.glb> <origin.glb>  Extract new channels into a dataset
  apply <dataset> <target.glb>       Apply a dataset to a scene; without -native
                                     the imported meshes are written to -o
  remove <dataset> <target.glb>      Remove a dataset's channels from a scene
  compare <source.glb> <origin.glb>  List channels source has and origin lacks
  info <dataset>                     Show dataset contents
  list                               List datasets in the library
  find <target.glb>                  Find library datasets compatible with a scene
  import <file.bsd>                  Add a dataset file to the library
  export <name> <file.bsd>           Write a library dataset to a file
  delete <name>                      Delete a dataset from the library
  init [path]                        Write the effective config to a YAML file

A <dataset> is a .bsd file path or the name of a library dataset.

Flags:
  -config <path>     Config file
  -debug             Debug logging
  -store <path>      Dataset library
  -workers <n>       Worker goroutines for delta processing
  -base <mesh>       Delta base mesh: source or origin
  -transform <trs>   Relative transform components to compensate
  -no-weld           Do not predict importer vertex welding
  -by-index          Compare channels by index instead of name
  -native            Apply native channels instead of generic frames
  -tmp <dir>         Directory for round-trip working copies

Examples:
  blendshare extract -o smile.bsd edited.glb character.glb
  blendshare -native apply -o out.glb smile.bsd character.glb
  blendshare find character.glb`)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.Store.Path,
		store.WithMkdirAll(),
		store.WithBusyTimeout(cfg.Store.BusyTimeout),
		store.WithLogger(logger.Named("store")))
}

// loadDataset reads ref as a file when one exists, otherwise from the
// library.
func loadDataset(ctx context.Context, cfg *config.Config, ref string) (*dataset.Dataset, error) {
	if _, err := os.Stat(ref); err == nil {
		return dataset.Load(ref)
	}
	lib, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	defer lib.Close()
	return lib.Get(ctx, ref)
}
