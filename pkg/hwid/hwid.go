// Package hwid derives a stable, opaque hardware fingerprint for the
// current device. The fingerprint is a 64-character hex string composed
// from the machine ID, the primary MAC address, and the hostname; it is
// stable across process restarts and requires no elevated privileges.
package hwid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v4/host"
)

// Provider returns the device fingerprint. Implementations must return a
// non-empty string that is stable across restarts on the same device.
type Provider interface {
	Fingerprint() (string, error)
}

// Default returns the platform provider. The fingerprint is computed once
// and memoized for the life of the process.
func Default() Provider {
	return &systemProvider{}
}

// Static returns a provider with a fixed fingerprint. Intended for tests
// and for callers that manage device identity externally.
func Static(fingerprint string) Provider {
	return staticProvider(fingerprint)
}

type staticProvider string

func (p staticProvider) Fingerprint() (string, error) {
	if p == "" {
		return "", fmt.Errorf("hwid: static fingerprint is empty")
	}
	return string(p), nil
}

type systemProvider struct {
	once        sync.Once
	fingerprint string
	err         error
}

func (p *systemProvider) Fingerprint() (string, error) {
	p.once.Do(func() {
		p.fingerprint, p.err = generate()
	})
	return p.fingerprint, p.err
}

func generate() (string, error) {
	factors := []string{
		machineID(),
		primaryMAC(),
		hostname(),
		runtime.GOOS,
		runtime.GOARCH,
	}

	nonEmpty := 0
	for _, f := range factors {
		if f != "" {
			nonEmpty++
		}
	}
	// GOOS/GOARCH are always present; require at least one hardware factor
	// on top of them so two different machines don't collapse to the same
	// fingerprint.
	if nonEmpty < 3 {
		return "", fmt.Errorf("hwid: no stable hardware factors available")
	}

	sum := sha256.Sum256([]byte(strings.Join(factors, "|")))
	return hex.EncodeToString(sum[:]), nil
}

func machineID() string {
	id, err := host.HostID()
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(id))
}

// primaryMAC returns the MAC of the first up, non-loopback interface.
func primaryMAC() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac
		}
	}
	for _, iface := range interfaces {
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac
		}
	}
	return ""
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(name))
}
