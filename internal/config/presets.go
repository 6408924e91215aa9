package config

var Presets = map[string]*Config{
	"quicklook": {
		Operation: "extrema", Pattern: DefaultPattern,
		End: -1, StoreDir: DefaultStoreDir, OutDir: DefaultOutDir,
	},
	"archive": {
		Operation: "totals", Pattern: DefaultPattern,
		Resume: true, End: -1, StoreDir: DefaultStoreDir, OutDir: DefaultOutDir,
	},
	"drift": {
		Operation: "drift", Pattern: DefaultPattern,
		Resume: true, End: -1, StoreDir: DefaultStoreDir, OutDir: DefaultOutDir,
	},
	"movie": {
		Operation: "frame", Pattern: DefaultPattern,
		Resume: true, End: -1, StoreDir: DefaultStoreDir, OutDir: DefaultOutDir,
	},
	"movie-svg": {
		Operation: "svg", Pattern: DefaultPattern,
		Resume: true, End: -1, StoreDir: DefaultStoreDir, OutDir: DefaultOutDir,
	},
}

func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	return names
}
