// Package config holds the tunable settings an Assembler is built
// from, following the teacher's ConfigOption-over-a-struct pattern:
// NewConfig returns sane defaults matching the constants named in
// spec, and every option overrides the fields it names.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	clock "github.com/jonboulle/clockwork"
	xerrors "golang.org/x/xerrors"

	"github.com/drand/assemble/assemble"
)

// ConfigOption applies one setting to a Config.
type ConfigOption func(*Config)

// Config gathers every knob the engine reads at construction time.
type Config struct {
	AccountSeed string

	TransportInvokingIntervalMS int
	TransportBufferThreshold   int

	ReputTimesLimit int
	RegetTimesLimit int

	BlobMTU        int
	BlobSegMTU     int
	RelayMsgMTU    int
	IndexHashCount int

	// BoltStorePath is the bbolt database file dht.BoltNetwork opens,
	// not a directory. MemoryStorePath is loaded and saved with the rest
	// of the config, but no component reads it: dht.MemoryNetwork is
	// purely in-memory and takes no path.
	MemoryStorePath string
	BoltStorePath   string

	clock clock.Clock
}

// configTOML mirrors Config field-for-field with TOML tags; Config
// itself carries a non-serializable clock.Clock, so it is not decoded
// into directly.
type configTOML struct {
	AccountSeed                 string `toml:"account_seed"`
	TransportInvokingIntervalMS int    `toml:"transport_invoking_interval_ms"`
	TransportBufferThreshold    int    `toml:"transport_buffer_threshold"`
	ReputTimesLimit             int    `toml:"reput_times_limit"`
	RegetTimesLimit             int    `toml:"reget_times_limit"`
	BlobMTU                     int    `toml:"blob_mtu"`
	BlobSegMTU                  int    `toml:"blob_seg_mtu"`
	RelayMsgMTU                 int    `toml:"relay_msg_mtu"`
	IndexHashCount              int    `toml:"index_hash_count"`
	MemoryStorePath             string `toml:"memory_store_path"`
	BoltStorePath               string `toml:"bolt_store_path"`
}

// NewConfig returns a Config with every default matching spec's named
// constants, with opts applied on top.
func NewConfig(opts ...ConfigOption) *Config {
	limits := assemble.DefaultLimits()
	c := &Config{
		TransportInvokingIntervalMS: 100,
		TransportBufferThreshold:    256,
		ReputTimesLimit:             limits.ReputTimesLimit,
		RegetTimesLimit:             limits.RegetTimesLimit,
		BlobMTU:                     limits.BlobMTU,
		BlobSegMTU:                  limits.BlobSegMTU,
		RelayMsgMTU:                 limits.RelayMsgMTU,
		IndexHashCount:              limits.IndexHashCount,
		MemoryStorePath:             "",
		BoltStorePath:               "assemble.bolt",
		clock:                       clock.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithAccountSeed sets the seed the identity package derives this
// node's key pair from.
func WithAccountSeed(seed string) ConfigOption {
	return func(c *Config) { c.AccountSeed = seed }
}

// WithTransportInvokingIntervalMS sets the Transporter dispatch period.
func WithTransportInvokingIntervalMS(ms int) ConfigOption {
	return func(c *Config) { c.TransportInvokingIntervalMS = ms }
}

// WithTransportBufferThreshold sets the Transporter's queue admission
// ceiling.
func WithTransportBufferThreshold(n int) ConfigOption {
	return func(c *Config) { c.TransportBufferThreshold = n }
}

// WithRetryLimits overrides the reput/reget retry budgets.
func WithRetryLimits(reput, reget int) ConfigOption {
	return func(c *Config) {
		c.ReputTimesLimit = reput
		c.RegetTimesLimit = reget
	}
}

// WithMTUs overrides the blob, segment, and relay message size ceilings
// and the index fan-out width.
func WithMTUs(blobMTU, blobSegMTU, relayMsgMTU, indexHashCount int) ConfigOption {
	return func(c *Config) {
		c.BlobMTU = blobMTU
		c.BlobSegMTU = blobSegMTU
		c.RelayMsgMTU = relayMsgMTU
		c.IndexHashCount = indexHashCount
	}
}

// WithMemoryStorePath sets MemoryStorePath. No component reads it;
// dht.MemoryNetwork keeps no snapshot file.
func WithMemoryStorePath(path string) ConfigOption {
	return func(c *Config) { c.MemoryStorePath = path }
}

// WithBoltStorePath points the persistent assemble.Network
// implementation, dht.BoltNetwork, at a bbolt database file.
func WithBoltStorePath(path string) ConfigOption {
	return func(c *Config) { c.BoltStorePath = path }
}

// WithClock overrides the clockwork.Clock that Clock returns. The
// Transporter does not read it: NewAssembler takes its clock as a
// separate argument, and cmd/assembled passes a real clock there.
func WithClock(cl clock.Clock) ConfigOption {
	return func(c *Config) { c.clock = cl }
}

// Clock returns the configured clock, defaulting to the real wall
// clock.
func (c *Config) Clock() clock.Clock {
	return c.clock
}

// Limits projects the size and retry fields onto the assemble.Limits
// shape every engine component actually reads.
func (c *Config) Limits() assemble.Limits {
	return assemble.Limits{
		BlobMTU:         c.BlobMTU,
		BlobSegMTU:      c.BlobSegMTU,
		RelayMsgMTU:     c.RelayMsgMTU,
		IndexHashCount:  c.IndexHashCount,
		ReputTimesLimit: c.ReputTimesLimit,
		RegetTimesLimit: c.RegetTimesLimit,
	}
}

// Load reads a Config from a TOML file at path, with defaults applied
// first so a partial file only overrides what it names.
func Load(path string) (*Config, error) {
	c := NewConfig()

	var raw configTOML
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, xerrors.Errorf("decoding config %q: %w", path, err)
	}

	c.AccountSeed = raw.AccountSeed
	if raw.TransportInvokingIntervalMS != 0 {
		c.TransportInvokingIntervalMS = raw.TransportInvokingIntervalMS
	}
	if raw.TransportBufferThreshold != 0 {
		c.TransportBufferThreshold = raw.TransportBufferThreshold
	}
	if raw.ReputTimesLimit != 0 {
		c.ReputTimesLimit = raw.ReputTimesLimit
	}
	if raw.RegetTimesLimit != 0 {
		c.RegetTimesLimit = raw.RegetTimesLimit
	}
	if raw.BlobMTU != 0 {
		c.BlobMTU = raw.BlobMTU
	}
	if raw.BlobSegMTU != 0 {
		c.BlobSegMTU = raw.BlobSegMTU
	}
	if raw.RelayMsgMTU != 0 {
		c.RelayMsgMTU = raw.RelayMsgMTU
	}
	if raw.IndexHashCount != 0 {
		c.IndexHashCount = raw.IndexHashCount
	}
	if raw.MemoryStorePath != "" {
		c.MemoryStorePath = raw.MemoryStorePath
	}
	if raw.BoltStorePath != "" {
		c.BoltStorePath = raw.BoltStorePath
	}
	return c, nil
}

// Save writes c out as TOML to path.
func (c *Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("creating config file %q: %w", path, err)
	}
	defer f.Close()

	raw := configTOML{
		AccountSeed:                 c.AccountSeed,
		TransportInvokingIntervalMS: c.TransportInvokingIntervalMS,
		TransportBufferThreshold:    c.TransportBufferThreshold,
		ReputTimesLimit:             c.ReputTimesLimit,
		RegetTimesLimit:             c.RegetTimesLimit,
		BlobMTU:                     c.BlobMTU,
		BlobSegMTU:                  c.BlobSegMTU,
		RelayMsgMTU:                 c.RelayMsgMTU,
		IndexHashCount:              c.IndexHashCount,
		MemoryStorePath:             c.MemoryStorePath,
		BoltStorePath:               c.BoltStorePath,
	}
	return toml.NewEncoder(f).Encode(raw)
}
