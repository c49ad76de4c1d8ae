package collector

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	psnet "github.com/shirou/gopsutil/v4/net"
)

// Hardware fact keys, also used as analytics actions.
const (
	FactGPURenderer     = "gpu_renderer"
	FactCPUModel        = "cpu_model"
	FactTouchScreenName = "touch_screen_name"
	FactHasWifi         = "has_wifi"
	FactHasEthernet     = "has_ethernet"
)

const (
	cpuInfoModelPrefix = "model name\t: "
	inputPropDirect    = 1 << 1 // INPUT_PROP_DIRECT
)

// HardwareReport is the result of one hardware collection pass.
type HardwareReport struct {
	Facts      []HardwareFact
	HasBattery bool
}

// HardwareCollector gathers static hardware facts. Each probe is independent;
// a failing probe is logged and skipped.
type HardwareCollector struct {
	log        *slog.Logger
	cpuModel   func(ctx context.Context) (string, error)
	interfaces func(ctx context.Context) ([]string, error)
}

// NewHardwareCollector creates a collector backed by gopsutil and sysfs.
func NewHardwareCollector(logger *slog.Logger) *HardwareCollector {
	return &HardwareCollector{
		log:        logger,
		cpuModel:   cpuModelFromHost,
		interfaces: interfaceNames,
	}
}

// Collect runs every probe.
func (h *HardwareCollector) Collect(ctx context.Context) HardwareReport {
	var r HardwareReport
	add := func(key string, value string, err error) {
		if err != nil {
			h.log.Debug("probe failed", "fact", key, "err", err)
			return
		}
		if value != "" {
			r.Facts = append(r.Facts, HardwareFact{Key: key, Value: value})
		}
	}

	v, err := CollectGPURenderer()
	add(FactGPURenderer, v, err)
	v, err = h.cpuModel(ctx)
	add(FactCPUModel, v, err)
	v, err = CollectTouchScreenName()
	add(FactTouchScreenName, v, err)

	wifi, eth, err := h.networkModules(ctx)
	if err != nil {
		h.log.Debug("probe failed", "fact", "network", "err", err)
	}
	add(FactHasWifi, wifi, nil)
	add(FactHasEthernet, eth, nil)

	if bat, err := CollectBattery(); err == nil {
		r.HasBattery = bat.Present
	}
	return r
}

// CollectGPURenderer identifies the first DRM card by kernel driver and PCI id.
func CollectGPURenderer() (string, error) {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "class/drm/card[0-9]*/device/uevent"))
	if err != nil {
		return "", fmt.Errorf("glob drm: %w", err)
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		props := parseUevent(string(data))
		driver := props["DRIVER"]
		if driver == "" {
			continue
		}
		if id := props["PCI_ID"]; id != "" {
			return driver + " (" + strings.ToLower(id) + ")", nil
		}
		return driver, nil
	}
	return "", fmt.Errorf("no gpu found: %w", ErrUnavailable)
}

func cpuModelFromHost(ctx context.Context) (string, error) {
	infos, err := cpu.InfoWithContext(ctx)
	if err == nil && len(infos) > 0 && infos[0].ModelName != "" {
		return infos[0].ModelName, nil
	}
	return CollectCPUModel()
}

// CollectCPUModel reads the first "model name" line of /proc/cpuinfo.
func CollectCPUModel() (string, error) {
	f, err := os.Open(filepath.Join(procRoot, "cpuinfo"))
	if err != nil {
		return "", fmt.Errorf("open cpuinfo: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, cpuInfoModelPrefix); i >= 0 {
			return line[i+len(cpuInfoModelPrefix):], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read cpuinfo: %w", err)
	}
	return "", fmt.Errorf("no cpu model: %w", ErrUnavailable)
}

// CollectTouchScreenName returns the name of the first direct-touch input
// device listed in /proc/bus/input/devices.
func CollectTouchScreenName() (string, error) {
	f, err := os.Open(filepath.Join(procRoot, "bus/input/devices"))
	if err != nil {
		return "", fmt.Errorf("open input devices: %w", err)
	}
	defer f.Close()

	var name string
	var props uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			if name != "" && props&inputPropDirect != 0 {
				return name, nil
			}
			name, props = "", 0
		case strings.HasPrefix(line, "N: Name="):
			name = strings.Trim(strings.TrimPrefix(line, "N: Name="), `"`)
		case strings.HasPrefix(line, "B: PROP="):
			props, _ = strconv.ParseUint(strings.TrimPrefix(line, "B: PROP="), 16, 64)
		}
	}
	if name != "" && props&inputPropDirect != 0 {
		return name, nil
	}
	return "", fmt.Errorf("no touchscreen found: %w", ErrUnavailable)
}

func interfaceNames(ctx context.Context) ([]string, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		names = append(names, iface.Name)
	}
	return names, nil
}

// networkModules returns the driver module of the first wireless and the
// first wired interface backed by a physical device.
func (h *HardwareCollector) networkModules(ctx context.Context) (wifi, eth string, err error) {
	names, err := h.interfaces(ctx)
	if err != nil {
		return "", "", fmt.Errorf("list interfaces: %w", err)
	}
	for _, name := range names {
		dir := filepath.Join(sysfsRoot, "class/net", name)
		module, err := os.Readlink(filepath.Join(dir, "device/driver/module"))
		if err != nil {
			continue
		}
		module = filepath.Base(module)
		if _, err := os.Stat(filepath.Join(dir, "wireless")); err == nil {
			if wifi == "" {
				wifi = module
			}
		} else if eth == "" {
			eth = module
		}
	}
	return wifi, eth, nil
}
