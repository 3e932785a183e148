package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NetworkProfile carries per-network chain parameters. Profiles seed
// compile contexts and bound what a compiled template may pay out.
type NetworkProfile struct {
	Name              string `yaml:"name" json:"name"`
	Network           string `yaml:"network" json:"network"`
	DustLimit         uint64 `yaml:"dust_limit" json:"dust_limit"`
	MinRelayFeeRate   uint64 `yaml:"min_relay_fee_rate" json:"min_relay_fee_rate"`
	BlockIntervalSecs int    `yaml:"block_interval_secs" json:"block_interval_secs"`
	OracleURL         string `yaml:"oracle_url,omitempty" json:"oracle_url,omitempty"`
}

// DefaultProfile returns built-in parameters for a network. Used when
// no profile file is present, for example in one-shot CLI compiles.
func DefaultProfile(network string) *NetworkProfile {
	return &NetworkProfile{
		Name:              network,
		Network:           network,
		DustLimit:         546,
		MinRelayFeeRate:   1,
		BlockIntervalSecs: 600,
	}
}

// LoadProfile loads a network profile YAML by network name.
// It searches the profiles directory for profile_<network>.yaml.
func LoadProfile(profilesDir, network string) (*NetworkProfile, error) {
	network = strings.ToLower(network)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", network))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", network, err)
	}

	var profile NetworkProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", network, err)
	}

	if profile.Network == "" {
		profile.Network = network
	}

	return &profile, nil
}

// LoadAllProfiles loads all profile_*.yaml files from the profiles
// directory, keyed by network.
func LoadAllProfiles(profilesDir string) (map[string]*NetworkProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*NetworkProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile NetworkProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Network == "" {
			// Extract network from filename: profile_signet.yaml -> signet
			base := filepath.Base(path)
			profile.Network = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}

		profiles[profile.Network] = &profile
	}

	return profiles, nil
}

// AboveDust reports whether an output of the given amount is standard
// under this profile.
func (p *NetworkProfile) AboveDust(amount uint64) bool {
	return amount >= p.DustLimit
}

// BlocksFor converts a wall-clock duration into a block count using
// the profile's block interval, rounding up. Returns at least 1 for
// any positive duration.
func (p *NetworkProfile) BlocksFor(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	interval := p.BlockIntervalSecs
	if interval <= 0 {
		interval = 600
	}
	secs := int64(d / time.Second)
	blocks := (secs + int64(interval) - 1) / int64(interval)
	if blocks < 1 {
		blocks = 1
	}
	return uint32(blocks)
}
