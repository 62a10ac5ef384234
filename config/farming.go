package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	defaultCapacity         = uint64(1 << 40) // 1 TiB
	defaultCurveShape       = "linear"
	defaultMaxRate          = "1"
	defaultMinRate          = "0"
	defaultFloorRate        = "0"
	defaultDecay            = "0.5"
	defaultSteepness        = "1"
	defaultProposalExpiry   = 30 * time.Second
	defaultAppliedRetention = 24 * time.Hour
	defaultRoundRetention   = 10 * time.Minute
	defaultSnapshotInterval = time.Minute
)

// RateCurveConfig selects the reward rate curve. Rates are decimal strings
// expressed in reward units per work unit.
type RateCurveConfig struct {
	// One of "linear", "exponential" or "inverse".
	Shape string `yaml:"shape"`
	// Rate paid at zero usage.
	MaxRate string `yaml:"maxRate"`
	// Lowest rate paid below capacity.
	MinRate string `yaml:"minRate"`
	// Rate paid at or beyond capacity.
	FloorRate string `yaml:"floorRate"`
	// Base of the exponential curve, strictly between 0 and 1.
	Decay string `yaml:"decay"`
	// Curvature of the inverse curve, non-negative.
	Steepness string `yaml:"steepness"`
}

// WithDefaults returns a copy of the RateCurveConfig with any missing fields
// set to their default values.
func (c RateCurveConfig) WithDefaults() RateCurveConfig {
	cpy := c
	if cpy.Shape == "" {
		cpy.Shape = defaultCurveShape
	}
	if cpy.MaxRate == "" {
		cpy.MaxRate = defaultMaxRate
	}
	if cpy.MinRate == "" {
		cpy.MinRate = defaultMinRate
	}
	if cpy.FloorRate == "" {
		cpy.FloorRate = defaultFloorRate
	}
	if cpy.Decay == "" {
		cpy.Decay = defaultDecay
	}
	if cpy.Steepness == "" {
		cpy.Steepness = defaultSteepness
	}
	return cpy
}

// QuorumConfig describes the pre-provisioned threshold signer set. Keys are
// hex encoded compressed BLS12-381 points; member i holds signer id i+1.
type QuorumConfig struct {
	Threshold       int      `yaml:"threshold"`
	MasterPublicKey string   `yaml:"masterPublicKey"`
	Members         []string `yaml:"members"`
	// Signer id of this process, 0 when it holds no key share.
	SignerIndex uint32 `yaml:"signerIndex"`
	// Hex encoded secret key share, required when SignerIndex is set.
	SignerKey string `yaml:"signerKey"`
	// Number of authenticated rejections that terminate a round. Zero keeps
	// abstention as the only way to refuse a payout.
	VetoThreshold int `yaml:"vetoThreshold"`
}

// WithDefaults returns a copy of the QuorumConfig with any missing fields set
// to their default values.
func (c QuorumConfig) WithDefaults() QuorumConfig {
	cpy := c
	if cpy.Threshold == 0 && len(cpy.Members) > 0 {
		cpy.Threshold = len(cpy.Members)/2 + 1
	}
	return cpy
}

type FarmingConfig struct {
	ReplicaId string `yaml:"replicaId"`
	// Aggregate bytes at which the reward rate reaches its floor.
	Capacity uint64 `yaml:"capacity"`
	// Work units added to every stored item, see rate.StorageRewards.
	BaseCost  uint64          `yaml:"baseCost"`
	RateCurve RateCurveConfig `yaml:"rateCurve"`
	Quorum    QuorumConfig    `yaml:"quorum"`
	// How long a signing round collects shares before it expires.
	ProposalExpiry time.Duration `yaml:"proposalExpiry"`
	// How long an applied proposal id is remembered past its expiry.
	AppliedRetention time.Duration `yaml:"appliedRetention"`
	// How long terminal rounds stay queryable on the coordinator.
	RoundRetention time.Duration `yaml:"roundRetention"`
	// How often replica state is persisted.
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	// Leave certified payouts for an external settler instead of applying
	// them locally.
	DisableAutoApply bool `yaml:"disableAutoApply"`
}

// WithDefaults returns a copy of the FarmingConfig with any missing fields set
// to their default values.
func (c FarmingConfig) WithDefaults() FarmingConfig {
	cpy := c
	if cpy.Capacity == 0 {
		cpy.Capacity = defaultCapacity
	}
	cpy.RateCurve = cpy.RateCurve.WithDefaults()
	cpy.Quorum = cpy.Quorum.WithDefaults()
	if cpy.ProposalExpiry == 0 {
		cpy.ProposalExpiry = defaultProposalExpiry
	}
	if cpy.AppliedRetention == 0 {
		cpy.AppliedRetention = defaultAppliedRetention
	}
	if cpy.RoundRetention == 0 {
		cpy.RoundRetention = defaultRoundRetention
	}
	if cpy.SnapshotInterval == 0 {
		cpy.SnapshotInterval = defaultSnapshotInterval
	}
	return cpy
}

// Validate checks the values WithDefaults cannot repair.
func (c FarmingConfig) Validate() error {
	if c.ReplicaId == "" {
		return errors.Wrap(errors.New("replica id is required"), "validate")
	}

	for name, value := range map[string]string{
		"maxRate":   c.RateCurve.MaxRate,
		"minRate":   c.RateCurve.MinRate,
		"floorRate": c.RateCurve.FloorRate,
		"decay":     c.RateCurve.Decay,
		"steepness": c.RateCurve.Steepness,
	} {
		if _, err := decimal.NewFromString(value); err != nil {
			return errors.Wrapf(err, "validate: %s", name)
		}
	}

	q := c.Quorum
	if len(q.Members) > 0 {
		if q.Threshold < 1 || q.Threshold > len(q.Members) {
			return errors.Errorf(
				"validate: threshold %d outside 1..%d",
				q.Threshold,
				len(q.Members),
			)
		}
		if q.VetoThreshold < 0 || q.VetoThreshold > len(q.Members) {
			return errors.Errorf(
				"validate: veto threshold %d outside 0..%d",
				q.VetoThreshold,
				len(q.Members),
			)
		}
		if int(q.SignerIndex) > len(q.Members) {
			return errors.Errorf(
				"validate: signer index %d outside 0..%d",
				q.SignerIndex,
				len(q.Members),
			)
		}
	}
	if q.SignerIndex != 0 && q.SignerKey == "" {
		return errors.New("validate: signer key is required for a signer")
	}

	return nil
}
