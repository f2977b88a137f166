package bootcfg

import (
	"fmt"
	"os"

	"github.com/cuemby/gpirm/pkg/cascade"
	"gopkg.in/yaml.v3"
)

// UntypedRegion describes one span of untyped physical memory the
// kernel is handing the RM to carve memory objects from.
type UntypedRegion struct {
	PAddr    uint64 `yaml:"paddr"`
	SizeBits uint8  `yaml:"size_bits"`
}

// BootInfo is the single record the kernel passes the RM at startup.
// It is never persisted: it is rebuilt, or in this
// implementation's case re-read, every boot.
type BootInfo struct {
	UntypedRegions []UntypedRegion `yaml:"untyped_regions"`
	RootTaskPDID   uint32          `yaml:"root_task_pd_id"`

	CleanupPolicy cascade.Policy `yaml:"cleanup_policy"`
	CleanupDepth  int            `yaml:"cleanup_depth"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Default returns a BootInfo with the stock policy knobs
// (ResourcesRecursive, unbounded depth) and a root-task PD id of 1,
// the id the RM forges for the kernel's initial thread.
func Default() BootInfo {
	return BootInfo{
		RootTaskPDID:  1,
		CleanupPolicy: cascade.DefaultPolicy,
		CleanupDepth:  cascade.DefaultDepth,
		MetricsAddr:   ":9090",
		LogLevel:      "info",
	}
}

// Load reads a BootInfo from a YAML file, falling back to Default for
// any field the file doesn't set.
func Load(path string) (BootInfo, error) {
	info := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return BootInfo{}, fmt.Errorf("read boot config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &info); err != nil {
		return BootInfo{}, fmt.Errorf("parse boot config %s: %w", path, err)
	}

	return info, nil
}

// Validate checks that the record is internally consistent.
func (b BootInfo) Validate() error {
	switch b.CleanupPolicy {
	case cascade.ResourcesDirect, cascade.ResourcesRecursive, cascade.DependentsDirect, cascade.DependentsRecursive:
	default:
		return fmt.Errorf("unknown cleanup policy %q", b.CleanupPolicy)
	}
	if b.CleanupDepth != cascade.UnboundedDepth && b.CleanupDepth < 0 {
		return fmt.Errorf("cleanup depth must be -1 or >= 0, got %d", b.CleanupDepth)
	}
	if b.RootTaskPDID == 0 {
		return fmt.Errorf("root task pd id must be non-zero")
	}
	return nil
}
