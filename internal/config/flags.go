package config

import "flag"

var (
	flagConfig    = flag.String("config", "", "Path to config file")
	flagDebug     = flag.Bool("debug", false, "Enable debug logging")
	flagStore     = flag.String("store", "", "Path to the dataset library")
	flagWorkers   = flag.Int("workers", 0, "Worker goroutines for delta processing")
	flagBase      = flag.String("base", "", "Base mesh for deltas: source or origin")
	flagNoWeld    = flag.Bool("no-weld", false, "Do not predict importer vertex welding")
	flagByIndex   = flag.Bool("by-index", false, "Compare channels by index instead of name")
	flagNative    = flag.Bool("native", false, "Apply native channels instead of generic frames")
	flagTempDir   = flag.String("tmp", "", "Directory for round-trip working copies")
	flagTransform = flag.String("transform", "", "Relative transform components to compensate: any of t, r, s")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the non-flag arguments.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagStore != "" {
		cfg.Store.Path = *flagStore
	}
	if *flagWorkers > 0 {
		cfg.Extract.Workers = *flagWorkers
	}
	if *flagBase != "" {
		cfg.Extract.BaseMesh = *flagBase
	}
	if *flagNoWeld {
		cfg.Extract.Weld = false
	}
	if *flagByIndex {
		cfg.Extract.ByName = false
	}
	if *flagNative {
		cfg.Apply.Native = true
	}
	if *flagTempDir != "" {
		cfg.Extract.TempDir = *flagTempDir
	}
	if *flagTransform != "" {
		cfg.Extract.Transform = parseTransform(*flagTransform)
	}
}

// parseTransform reads a set of component letters such as "rs". "none"
// selects nothing.
func parseTransform(s string) Transform {
	var t Transform
	for _, c := range s {
		switch c {
		case 't', 'T':
			t.Translate = true
		case 'r', 'R':
			t.Rotate = true
		case 's', 'S':
			t.Scale = true
		}
	}
	return t
}
