// Package gpu queries accelerator visibility through the NVIDIA driver tools.
package gpu

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/book-expert/voice-bootstrap/internal/core"
)

const (
	defaultBinary  = "nvidia-smi"
	queryArg       = "--query-gpu=index,name"
	formatArg      = "--format=csv,noheader"
	fieldSeparator = ","
)

var cudaVersionPattern = regexp.MustCompile(`CUDA Version:\s*([0-9.]+)`)

// SMIQuerier implements core.DeviceQuerier with nvidia-smi.
type SMIQuerier struct {
	runner core.CommandRunner
	binary string
	env    []string
}

// NewSMIQuerier creates a querier. An empty binary defaults to "nvidia-smi".
func NewSMIQuerier(runner core.CommandRunner, binary string, env []string) *SMIQuerier {
	if binary == "" {
		binary = defaultBinary
	}

	return &SMIQuerier{
		runner: runner,
		binary: binary,
		env:    env,
	}
}

// QueryDevices lists the GPUs the driver exposes. The CUDA version comes from
// the summary banner and is left empty if it cannot be read.
func (q *SMIQuerier) QueryDevices(ctx context.Context) (core.DeviceInfo, error) {
	out, err := q.runner.Run(ctx, core.Command{
		Path: q.binary,
		Args: []string{queryArg, formatArg},
		Env:  q.env,
	})
	if err != nil {
		return core.DeviceInfo{}, fmt.Errorf("device query failed: %w", err)
	}

	names := parseDeviceList(out)
	info := core.DeviceInfo{
		Available: len(names) > 0,
		Names:     names,
	}

	banner, err := q.runner.Run(ctx, core.Command{Path: q.binary, Env: q.env})
	if err == nil {
		info.CUDAVersion = parseCUDAVersion(banner)
	}

	return info, nil
}

func parseDeviceList(out []byte) []string {
	var names []string

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		_, name, found := strings.Cut(line, fieldSeparator)
		if !found {
			name = line
		}

		names = append(names, strings.TrimSpace(name))
	}

	return names
}

func parseCUDAVersion(banner []byte) string {
	match := cudaVersionPattern.FindSubmatch(banner)
	if match == nil {
		return ""
	}

	return string(match[1])
}
