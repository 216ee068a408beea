package caravan

import (
	"math"
	"time"

	"github.com/mysterria/silkroad/config"
)

// maxDeliveryMs caps delivery time for unreachable destinations (~100 years).
const maxDeliveryMs = int64(100 * 365 * 24 * time.Hour / time.Millisecond)

// CostModel prices transfers by distance and size. All methods are pure.
type CostModel struct {
	DistanceCostPerBlock float64
	StackCost            float64
	LegacyItemCost       float64
	MinimumCost          int
	BaseTimeMs           int64
	TimePerBlockMs       int64
}

// CostModelFromConfig copies the pricing section of the transfer config.
func CostModelFromConfig(cfg config.TransferConfig) CostModel {
	return CostModel{
		DistanceCostPerBlock: cfg.DistanceCostPerBlock,
		StackCost:            cfg.StackCost,
		LegacyItemCost:       cfg.LegacyItemCost,
		MinimumCost:          cfg.MinimumCost,
		BaseTimeMs:           cfg.BaseTimeMs,
		TimePerBlockMs:       cfg.TimePerBlockMs,
	}
}

// Cost is max(MinimumCost, distance*DistanceCostPerBlock + stacks*StackCost),
// truncated.
func (m CostModel) Cost(distance float64, stackCount int) int {
	return truncCost(math.Max(float64(m.MinimumCost),
		distance*m.DistanceCostPerBlock+float64(stackCount)*m.StackCost))
}

// LegacyCost prices map transfers by total item count instead of stacks.
func (m CostModel) LegacyCost(distance float64, totalItems int) int {
	return truncCost(math.Max(float64(m.MinimumCost),
		distance*m.DistanceCostPerBlock+float64(totalItems)*m.LegacyItemCost))
}

// DeliveryDuration is BaseTimeMs + distance*TimePerBlockMs milliseconds.
func (m CostModel) DeliveryDuration(distance float64) time.Duration {
	perBlock := distance * float64(m.TimePerBlockMs)
	ms := maxDeliveryMs
	if perBlock < float64(maxDeliveryMs-m.BaseTimeMs) {
		ms = m.BaseTimeMs + int64(perBlock)
	}
	return time.Duration(ms) * time.Millisecond
}

func truncCost(v float64) int {
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}
