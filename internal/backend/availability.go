package backend

import "strings"

func Has(name string) bool {
	switch name {
	case WGPU:
		return wgpuEnabled
	case Host, Emu, Auto:
		return true
	default:
		return false
	}
}

// Available returns a comma-separated list of available backends.
func Available() string {
	entries := []string{Host, Emu}
	if Has(WGPU) {
		entries = append(entries, WGPU)
	}
	return strings.Join(entries, ",")
}
