package config

import "strings"

// SensorNames maps upstream device IDs to human-readable sensor IDs.
// The zero value is an empty mapping. It is never mutated after parsing.
type SensorNames struct {
	byID map[string]string
	ids  []string
}

// ParseSensorNames parses comma-separated id:name pairs.
// Pairs missing either side are skipped; a repeated id keeps its first position
// but takes the later name.
func ParseSensorNames(raw string) SensorNames {
	names := SensorNames{byID: make(map[string]string)}
	for _, item := range strings.Split(raw, ",") {
		id, name, ok := strings.Cut(item, ":")
		if !ok {
			continue
		}
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if id == "" || name == "" {
			continue
		}
		if _, seen := names.byID[id]; !seen {
			names.ids = append(names.ids, id)
		}
		names.byID[id] = name
	}
	return names
}

// Resolve returns the mapped name for a device ID, or the raw ID when unmapped.
func (n SensorNames) Resolve(deviceID string) string {
	if name, ok := n.byID[deviceID]; ok {
		return name
	}
	return deviceID
}

// Lookup returns the mapped name and whether a mapping exists.
func (n SensorNames) Lookup(deviceID string) (string, bool) {
	name, ok := n.byID[deviceID]
	return name, ok
}

// Names returns the distinct mapped sensor names in configuration order.
func (n SensorNames) Names() []string {
	seen := make(map[string]bool, len(n.ids))
	out := make([]string, 0, len(n.ids))
	for _, id := range n.ids {
		name := n.byID[id]
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Len returns the number of mapped devices.
func (n SensorNames) Len() int { return len(n.byID) }
