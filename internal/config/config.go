// Package config holds the compiled-in tunable constants of the system
// and an optional loader that overrides them from a YAML file.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Tuning holds the system's bounded constants. Zero values are
// never valid; Default returns the compiled-in defaults and ApplyFile
// overrides individual fields present in a YAML document.
type Tuning struct {
	// LRUCacheSize bounds the name server's path-index LRU.
	LRUCacheSize int
	// MaxFiles, MaxFolders, MaxClients, MaxStorageServers bound the
	// name server's registry.
	MaxFiles          int
	MaxFolders        int
	MaxClients        int
	MaxStorageServers int
	MaxPendingAccess  int
	// LockRegistrySize bounds a storage server's set of active
	// lock sessions.
	LockRegistrySize int

	// HeartbeatCheckInterval is how often the NM monitor scans SS
	// heartbeats.
	HeartbeatCheckInterval time.Duration
	// HeartbeatTimeout is the staleness threshold past which an SS is
	// flipped inactive.
	HeartbeatTimeout time.Duration
	// HeartbeatSendInterval is how often an SS sends a heartbeat to NM.
	HeartbeatSendInterval time.Duration

	// StreamChunkSize bounds a single STREAM write.
	StreamChunkSize int
}

// Default returns the compiled-in tuning values.
func Default() Tuning {
	return Tuning{
		LRUCacheSize:           512,
		MaxFiles:               65536,
		MaxFolders:             8192,
		MaxClients:             1024,
		MaxStorageServers:      64,
		MaxPendingAccess:       4096,
		LockRegistrySize:       8192,
		HeartbeatCheckInterval: 2 * time.Second,
		HeartbeatTimeout:       6 * time.Second,
		HeartbeatSendInterval:  1 * time.Second,
		StreamChunkSize:        32 * 1024,
	}
}

// tuningFile mirrors Tuning for YAML decoding. Duration fields are
// strings in time.ParseDuration syntax ("30s", "1500ms") rather than raw
// nanosecond counts.
type tuningFile struct {
	LRUCacheSize      int `yaml:"lru_cache_size"`
	MaxFiles          int `yaml:"max_files"`
	MaxFolders        int `yaml:"max_folders"`
	MaxClients        int `yaml:"max_clients"`
	MaxStorageServers int `yaml:"max_storage_servers"`
	MaxPendingAccess  int `yaml:"max_pending_access_requests"`
	LockRegistrySize  int `yaml:"lock_registry_size"`

	HeartbeatCheckInterval string `yaml:"heartbeat_check_interval"`
	HeartbeatTimeout       string `yaml:"heartbeat_timeout"`
	HeartbeatSendInterval  string `yaml:"heartbeat_send_interval"`

	StreamChunkSize int `yaml:"stream_chunk_size"`
}

// ApplyFile reads a YAML tuning file at path and overlays any fields it
// sets onto t, leaving fields absent from the file untouched. An empty
// path (the optional "-tuning" flag left unset) returns t unchanged; a
// path that cannot be read is an error.
func ApplyFile(t Tuning, path string) (Tuning, error) {
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	var o tuningFile
	if err := yaml.Unmarshal(data, &o); err != nil {
		return t, err
	}

	if o.LRUCacheSize != 0 {
		t.LRUCacheSize = o.LRUCacheSize
	}
	if o.MaxFiles != 0 {
		t.MaxFiles = o.MaxFiles
	}
	if o.MaxFolders != 0 {
		t.MaxFolders = o.MaxFolders
	}
	if o.MaxClients != 0 {
		t.MaxClients = o.MaxClients
	}
	if o.MaxStorageServers != 0 {
		t.MaxStorageServers = o.MaxStorageServers
	}
	if o.MaxPendingAccess != 0 {
		t.MaxPendingAccess = o.MaxPendingAccess
	}
	if o.LockRegistrySize != 0 {
		t.LockRegistrySize = o.LockRegistrySize
	}
	if o.StreamChunkSize != 0 {
		t.StreamChunkSize = o.StreamChunkSize
	}

	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{o.HeartbeatCheckInterval, &t.HeartbeatCheckInterval},
		{o.HeartbeatTimeout, &t.HeartbeatTimeout},
		{o.HeartbeatSendInterval, &t.HeartbeatSendInterval},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return t, err
		}
		*d.dst = v
	}
	return t, nil
}
