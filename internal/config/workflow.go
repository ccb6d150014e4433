// Package config loads the workflow configuration from a TOML file.
//
// The file names the equivalence components to run, in order, plus one
// optional table per component with its tool knobs:
//
//	components = ["identical", "kani", "pbt"]
//
//	[kani]
//	harness_path = "kani_harness"
//	loop_unwind = 8
//	harness_timeout = "120s"
//
// A selected component without a table runs with documented defaults.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Canonical component names, in default execution order.
const (
	ComponentIdentical = "identical"
	ComponentKani      = "kani"
	ComponentPBT       = "pbt"
	ComponentDiffFuzz  = "difffuzz"
	ComponentAlive2    = "alive2"
)

// aliases maps accepted spellings onto canonical component names.
var aliases = map[string]string{
	"identical": ComponentIdentical,
	"kani":      ComponentKani,
	"pbt":       ComponentPBT,
	"difffuzz":  ComponentDiffFuzz,
	"diff-fuzz": ComponentDiffFuzz,
	"diff_fuzz": ComponentDiffFuzz,
	"alive2":    ComponentAlive2,
}

// KaniConfig tunes the bounded model checking component.
type KaniConfig struct {
	HarnessPath      string
	OutputPath       string
	KeepHarness      bool
	KeepOutput       bool
	UsePreconditions bool
	HarnessTimeout   time.Duration
	LoopUnwind       int
}

// PBTConfig tunes the property-based testing component.
type PBTConfig struct {
	HarnessPath      string
	OutputPath       string
	KeepHarness      bool
	KeepOutput       bool
	UsePreconditions bool
	TestCases        int
	Timeout          time.Duration
}

// DiffFuzzConfig tunes the differential fuzzing component.
type DiffFuzzConfig struct {
	HarnessPath      string
	OutputPath       string
	KeepHarness      bool
	KeepOutput       bool
	UsePreconditions bool
	Executions       int
	CatchPanics      bool
	// Timeout bounds each external invocation (build, fuzz, replay),
	// not the whole component run.
	Timeout time.Duration
}

// Alive2Config tunes the IR translation validation component.
type Alive2Config struct {
	WorkPath    string
	OutputPath  string
	KeepWork    bool
	KeepOutput  bool
	ToolTimeout time.Duration
}

// Workflow is the full run configuration.
type Workflow struct {
	Components []string
	Kani       KaniConfig
	PBT        PBTConfig
	DiffFuzz   DiffFuzzConfig
	Alive2     Alive2Config
}

// Default returns the configuration used when no file is given.
func Default() *Workflow {
	v := viper.New()
	setDefaults(v)
	wf := fromViper(v)
	wf.Components = []string{ComponentIdentical, ComponentKani, ComponentPBT}
	return wf
}

// Load reads a workflow TOML file. Unknown component names are logged and
// dropped; an empty resulting component list is an error.
func Load(path string, log *zap.Logger) (*Workflow, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read workflow config %s: %w", path, err)
	}

	wf := fromViper(v)
	raw := v.GetStringSlice("components")
	for _, name := range raw {
		canonical, ok := aliases[name]
		if !ok {
			log.Warn("unknown component in config, skipping", zap.String("component", name))
			continue
		}
		if !v.IsSet(canonical) && canonical != ComponentIdentical {
			log.Warn("component selected without a config table, using defaults",
				zap.String("component", canonical))
		}
		wf.Components = append(wf.Components, canonical)
	}
	if len(wf.Components) == 0 {
		return nil, fmt.Errorf("workflow config %s selects no known components", path)
	}
	return wf, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("components", []string{ComponentIdentical, ComponentKani, ComponentPBT})

	v.SetDefault("kani.harness_path", "kani_harness")
	v.SetDefault("kani.output_path", "kani_output.log")
	v.SetDefault("kani.keep_harness", false)
	v.SetDefault("kani.keep_output", false)
	v.SetDefault("kani.use_preconditions", true)
	v.SetDefault("kani.harness_timeout", "120s")
	v.SetDefault("kani.loop_unwind", 8)

	v.SetDefault("pbt.harness_path", "pbt_harness")
	v.SetDefault("pbt.output_path", "pbt_output.log")
	v.SetDefault("pbt.keep_harness", false)
	v.SetDefault("pbt.keep_output", false)
	v.SetDefault("pbt.use_preconditions", true)
	v.SetDefault("pbt.test_cases", 256)
	v.SetDefault("pbt.timeout", "300s")

	v.SetDefault("difffuzz.harness_path", "difffuzz_harness")
	v.SetDefault("difffuzz.output_path", "difffuzz_output.log")
	v.SetDefault("difffuzz.keep_harness", false)
	v.SetDefault("difffuzz.keep_output", false)
	v.SetDefault("difffuzz.use_preconditions", true)
	v.SetDefault("difffuzz.executions", 100000)
	v.SetDefault("difffuzz.catch_panics", false)
	v.SetDefault("difffuzz.timeout", "300s")

	v.SetDefault("alive2.work_path", "alive2_work")
	v.SetDefault("alive2.output_path", "alive2_output.log")
	v.SetDefault("alive2.keep_work", false)
	v.SetDefault("alive2.keep_output", false)
	v.SetDefault("alive2.tool_timeout", "60s")
}

func fromViper(v *viper.Viper) *Workflow {
	return &Workflow{
		Kani: KaniConfig{
			HarnessPath:      v.GetString("kani.harness_path"),
			OutputPath:       v.GetString("kani.output_path"),
			KeepHarness:      v.GetBool("kani.keep_harness"),
			KeepOutput:       v.GetBool("kani.keep_output"),
			UsePreconditions: v.GetBool("kani.use_preconditions"),
			HarnessTimeout:   v.GetDuration("kani.harness_timeout"),
			LoopUnwind:       v.GetInt("kani.loop_unwind"),
		},
		PBT: PBTConfig{
			HarnessPath:      v.GetString("pbt.harness_path"),
			OutputPath:       v.GetString("pbt.output_path"),
			KeepHarness:      v.GetBool("pbt.keep_harness"),
			KeepOutput:       v.GetBool("pbt.keep_output"),
			UsePreconditions: v.GetBool("pbt.use_preconditions"),
			TestCases:        v.GetInt("pbt.test_cases"),
			Timeout:          v.GetDuration("pbt.timeout"),
		},
		DiffFuzz: DiffFuzzConfig{
			HarnessPath:      v.GetString("difffuzz.harness_path"),
			OutputPath:       v.GetString("difffuzz.output_path"),
			KeepHarness:      v.GetBool("difffuzz.keep_harness"),
			KeepOutput:       v.GetBool("difffuzz.keep_output"),
			UsePreconditions: v.GetBool("difffuzz.use_preconditions"),
			Executions:       v.GetInt("difffuzz.executions"),
			CatchPanics:      v.GetBool("difffuzz.catch_panics"),
			Timeout:          v.GetDuration("difffuzz.timeout"),
		},
		Alive2: Alive2Config{
			WorkPath:    v.GetString("alive2.work_path"),
			OutputPath:  v.GetString("alive2.output_path"),
			KeepWork:    v.GetBool("alive2.keep_work"),
			KeepOutput:  v.GetBool("alive2.keep_output"),
			ToolTimeout: v.GetDuration("alive2.tool_timeout"),
		},
	}
}
