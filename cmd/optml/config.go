package main

import (
	"bytes"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/optml/pkg/errors"
)

// runConfig is the configuration of a training command. Values come from the
// command defaults, then the YAML file given with --config, then explicit flags.
type runConfig struct {
	Samples           int     `yaml:"samples"`
	Iterations        int     `yaml:"iterations"`
	StepSize          float64 `yaml:"step_size"`
	Seed              uint64  `yaml:"seed"`
	Partitions        int     `yaml:"partitions"`
	MiniBatchFraction float64 `yaml:"mini_batch_fraction"`
	RegParam          float64 `yaml:"reg_param"`
	Updater           string  `yaml:"updater"`
	Optimizer         string  `yaml:"optimizer"`
	FeatureScaling    bool    `yaml:"feature_scaling"`
	Hidden            []int   `yaml:"hidden"`
	Plot              string  `yaml:"plot"`
	Export            string  `yaml:"export"`
}

func loadConfigFile(path string) (runConfig, error) {
	var cfg runConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// overlay copies the non-zero fields of src over dst.
func overlay(dst *runConfig, src runConfig) {
	if src.Samples != 0 {
		dst.Samples = src.Samples
	}
	if src.Iterations != 0 {
		dst.Iterations = src.Iterations
	}
	if src.StepSize != 0 {
		dst.StepSize = src.StepSize
	}
	if src.Seed != 0 {
		dst.Seed = src.Seed
	}
	if src.Partitions != 0 {
		dst.Partitions = src.Partitions
	}
	if src.MiniBatchFraction != 0 {
		dst.MiniBatchFraction = src.MiniBatchFraction
	}
	if src.RegParam != 0 {
		dst.RegParam = src.RegParam
	}
	if src.Updater != "" {
		dst.Updater = src.Updater
	}
	if src.Optimizer != "" {
		dst.Optimizer = src.Optimizer
	}
	if src.FeatureScaling {
		dst.FeatureScaling = true
	}
	if len(src.Hidden) > 0 {
		dst.Hidden = src.Hidden
	}
	if src.Plot != "" {
		dst.Plot = src.Plot
	}
	if src.Export != "" {
		dst.Export = src.Export
	}
}

// resolveConfig layers the config file and explicitly set flags over defaults.
func resolveConfig(cmd *cobra.Command, defaults runConfig) (runConfig, error) {
	cfg := defaults
	flags := cmd.Flags()

	if path, _ := flags.GetString("config"); path != "" {
		fileCfg, err := loadConfigFile(path)
		if err != nil {
			return cfg, err
		}
		overlay(&cfg, fileCfg)
	}

	var err error
	set := func(name string, apply func() error) {
		if err == nil && flags.Changed(name) {
			err = apply()
		}
	}
	set("samples", func() (e error) { cfg.Samples, e = flags.GetInt("samples"); return })
	set("iterations", func() (e error) { cfg.Iterations, e = flags.GetInt("iterations"); return })
	set("step-size", func() (e error) { cfg.StepSize, e = flags.GetFloat64("step-size"); return })
	set("seed", func() (e error) { cfg.Seed, e = flags.GetUint64("seed"); return })
	set("partitions", func() (e error) { cfg.Partitions, e = flags.GetInt("partitions"); return })
	set("mini-batch-fraction", func() (e error) { cfg.MiniBatchFraction, e = flags.GetFloat64("mini-batch-fraction"); return })
	set("reg-param", func() (e error) { cfg.RegParam, e = flags.GetFloat64("reg-param"); return })
	set("updater", func() (e error) { cfg.Updater, e = flags.GetString("updater"); return })
	set("optimizer", func() (e error) { cfg.Optimizer, e = flags.GetString("optimizer"); return })
	set("feature-scaling", func() (e error) { cfg.FeatureScaling, e = flags.GetBool("feature-scaling"); return })
	set("plot", func() (e error) { cfg.Plot, e = flags.GetString("plot"); return })
	set("export", func() (e error) { cfg.Export, e = flags.GetString("export"); return })
	if flags.Lookup("hidden") != nil {
		set("hidden", func() (e error) { cfg.Hidden, e = flags.GetIntSlice("hidden"); return })
	}
	if err != nil {
		return cfg, err
	}

	if cfg.Samples <= 0 {
		return cfg, errors.NewValidationError("samples", "must be positive", cfg.Samples)
	}
	if cfg.Partitions <= 0 {
		return cfg, errors.NewValidationError("partitions", "must be positive", cfg.Partitions)
	}
	return cfg, nil
}
