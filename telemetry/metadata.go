package telemetry

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/host"
	psnet "github.com/shirou/gopsutil/net"
	"github.com/shirou/gopsutil/process"
)

// metadataTimeout bounds host inspection when a client is built.
const metadataTimeout = 2 * time.Second

// buildMetadata collects the host, runtime and service description attached
// to every entry when Config.EnableMetadata is set. Host lookups that fail
// leave their fields empty.
func buildMetadata(cfg Config) map[string]interface{} {
	ctx, cancel := context.WithTimeout(context.Background(), metadataTimeout)
	defer cancel()

	hostInfo := map[string]interface{}{}
	if info, err := host.InfoWithContext(ctx); err == nil {
		hostInfo["name"] = info.Hostname
		hostInfo["os"] = info.OS
		hostInfo["os_version"] = info.KernelVersion
		hostInfo["platform"] = fmt.Sprintf("%s-%s-%s", info.Platform, info.PlatformVersion, info.KernelArch)
	} else if name, err := os.Hostname(); err == nil {
		hostInfo["name"] = name
		hostInfo["os"] = runtime.GOOS
	}
	if ip := primaryIP(ctx); ip != "" {
		hostInfo["ip"] = ip
	}

	additional := make(map[string]interface{}, len(cfg.AdditionalMetadata))
	for k, v := range cfg.AdditionalMetadata {
		additional[k] = v
	}

	return map[string]interface{}{
		"host": hostInfo,
		"runtime": map[string]interface{}{
			"go_version": runtime.Version(),
			"num_cpu":    runtime.NumCPU(),
		},
		"service": map[string]interface{}{
			"name":        cfg.ServiceName,
			"environment": cfg.Environment,
		},
		"additional": additional,
	}
}

// primaryIP returns the first non-loopback IPv4 address of an interface
// that is up.
func primaryIP(ctx context.Context) string {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		for _, addr := range iface.Addrs {
			ip, _, err := net.ParseCIDR(addr.Addr)
			if err != nil {
				ip = net.ParseIP(addr.Addr)
			}
			if ip == nil || ip.IsLoopback() || ip.To4() == nil {
				continue
			}
			return ip.String()
		}
	}
	return ""
}

// CurrentResourceUsage samples this process's CPU, memory, disk I/O and
// open file descriptors, plus host-wide network counters. Only the CPU and
// memory readings are required; the others are left zero when the platform
// does not expose them.
func CurrentResourceUsage(ctx context.Context) (ResourceUsage, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("failed to inspect process: %w", err)
	}

	usage := ResourceUsage{Timestamp: time.Now().UTC()}
	if usage.CPUPercent, err = p.CPUPercentWithContext(ctx); err != nil {
		return ResourceUsage{}, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	memPercent, err := p.MemoryPercentWithContext(ctx)
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("failed to read memory usage: %w", err)
	}
	usage.MemoryPercent = float64(memPercent)
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("failed to read memory info: %w", err)
	}
	usage.MemoryRSS = mem.RSS

	if io, err := p.IOCountersWithContext(ctx); err == nil {
		usage.DiskIORead = io.ReadBytes
		usage.DiskIOWrite = io.WriteBytes
	}
	if fds, err := p.NumFDsWithContext(ctx); err == nil {
		usage.OpenFileDescriptors = fds
	}
	if counters, err := psnet.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		usage.NetworkRecv = counters[0].BytesRecv
		usage.NetworkSent = counters[0].BytesSent
	}
	return usage, nil
}
