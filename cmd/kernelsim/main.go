// Command kernelsim boots a single instance of the memory manager and
// scheduler core against a YAML process manifest and runs it to
// completion, standing in for the real boot sequence (multiboot handoff,
// IDT install, console/keyboard drivers) that this kernel does not
// implement.
package main

import (
	"flag"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/go-tinyos/kernel/kernel/arch/coop"
	"github.com/go-tinyos/kernel/kernel/kfmt/early"
	"github.com/go-tinyos/kernel/kernel/mem"
	"github.com/go-tinyos/kernel/kernel/mem/pmm"
	"github.com/go-tinyos/kernel/kernel/proc"
	"github.com/go-tinyos/kernel/kernel/syscall"
)

// bootConfig is the manifest format read from -boot. It names the memory
// region to manage and the processes to create before the scheduler loop
// starts.
type bootConfig struct {
	Memory struct {
		BaseAddr  uint64 `yaml:"base_addr"`
		SizeBytes uint64 `yaml:"size_bytes"`
	} `yaml:"memory"`

	Processes []struct {
		Name       string `yaml:"name"`
		Priority   int    `yaml:"priority"`
		Foreground bool   `yaml:"foreground"`
		Message    string `yaml:"message"`
	} `yaml:"processes"`
}

func loadBootConfig(path string) (*bootConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg bootConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	bootPath := flag.String("boot", "", "path to a YAML boot manifest")
	buddy := flag.Bool("buddy", false, "use the buddy-system page allocator instead of the sorted-PFN-list one")
	flag.Parse()

	if *bootPath == "" {
		early.Println("kernelsim: -boot is required")
		os.Exit(1)
	}

	cfg, err := loadBootConfig(*bootPath)
	if err != nil {
		early.Printf("kernelsim: failed to load boot manifest: %v\n", err)
		os.Exit(1)
	}

	var pages pmm.PageAllocator
	if *buddy {
		pages = pmm.NewBuddyAllocator()
	} else {
		pages = pmm.NewListAllocator()
	}
	pages.CreateMemory(uintptr(cfg.Memory.BaseAddr), mem.Size(cfg.Memory.SizeBytes))
	early.Printf("kernelsim: memory manager ready: %s\n", pages.ConsultMemory())

	tbl := proc.NewTable(pages, coop.New())
	disp := &syscall.Dispatcher{Table: tbl, Pages: pages}

	for _, p := range cfg.Processes {
		p := p
		_, err := disp.CreateProcess(p.Name, func(argv []string) {
			early.Printf("[%s] %s\n", p.Name, p.Message)
		}, nil, p.Priority, p.Foreground, 0, 0)
		if err != nil {
			early.Printf("kernelsim: failed to create process %q: %v\n", p.Name, err)
			os.Exit(1)
		}
	}

	for tbl.Scheduler().ReadyCount(0)+tbl.Scheduler().ReadyCount(1)+
		tbl.Scheduler().ReadyCount(2)+tbl.Scheduler().ReadyCount(3) > 0 {
		if err := tbl.Run(); err != nil {
			break
		}
	}

	early.Printf("kernelsim: final state: %s\n", pages.ConsultMemory())
}
