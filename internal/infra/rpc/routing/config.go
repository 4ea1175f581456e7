package routing

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned when a routing configuration is out of range.
var ErrInvalidConfig = errors.New("invalid routing config")

// Distribution defines how primary endpoints are ordered across requests.
type Distribution string

const (
	DistributionFixed      Distribution = "fixed"       // Load order, always
	DistributionRoundRobin Distribution = "round_robin" // Rotate the first primary each request
	DistributionRandom     Distribution = "random"      // Random primary first, the rest in load order
)

// ParseDistribution converts a config string into a Distribution.
func ParseDistribution(s string) (Distribution, error) {
	switch Distribution(s) {
	case DistributionFixed, DistributionRoundRobin, DistributionRandom:
		return Distribution(s), nil
	case "fixed_order":
		return DistributionFixed, nil
	default:
		return "", fmt.Errorf("%w: unknown primary distribution %q", ErrInvalidConfig, s)
	}
}

// Config is the immutable policy for one logical request.
type Config struct {
	MaxTotalRetries      int
	MultiRegionRetry     bool
	MaxRetriesPerRegion  int
	FailureBackoff       time.Duration
	PrimaryDistribution  Distribution
	CrossRegionInference bool
}

// DefaultConfig is the policy used when nothing is configured.
var DefaultConfig = Config{
	MaxTotalRetries:     5,
	MultiRegionRetry:    true,
	MaxRetriesPerRegion: 1,
	FailureBackoff:      time.Hour,
	PrimaryDistribution: DistributionRoundRobin,
}

// Validate rejects out-of-range configurations.
func (c Config) Validate() error {
	if c.MaxTotalRetries < 1 {
		return fmt.Errorf("%w: max total retries must be at least 1, got %d", ErrInvalidConfig, c.MaxTotalRetries)
	}
	if c.MaxRetriesPerRegion < 1 {
		return fmt.Errorf("%w: max retries per region must be at least 1, got %d", ErrInvalidConfig, c.MaxRetriesPerRegion)
	}
	if c.MaxRetriesPerRegion > c.MaxTotalRetries {
		return fmt.Errorf(
			"%w: max retries per region (%d) exceeds max total retries (%d)",
			ErrInvalidConfig, c.MaxRetriesPerRegion, c.MaxTotalRetries,
		)
	}
	if c.FailureBackoff < 0 {
		return fmt.Errorf("%w: negative failure backoff %s", ErrInvalidConfig, c.FailureBackoff)
	}
	if _, err := ParseDistribution(string(c.PrimaryDistribution)); err != nil {
		return err
	}
	return nil
}
