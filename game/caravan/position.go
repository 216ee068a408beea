package caravan

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Unreachable is the distance between positions in different worlds.
const Unreachable = math.MaxFloat64

// Position is a point in a named world with a facing.
type Position struct {
	World string  `json:"world" yaml:"world"`
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Z     float64 `json:"z" yaml:"z"`
	Yaw   float32 `json:"yaw" yaml:"yaw"`
	Pitch float32 `json:"pitch" yaml:"pitch"`
}

// DistanceTo returns the Euclidean distance to o, or Unreachable when o is in
// another world.
func (p Position) DistanceTo(o Position) float64 {
	if p.World != o.World {
		return Unreachable
	}
	dx, dy, dz := p.X-o.X, p.Y-o.Y, p.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func (p Position) String() string {
	return fmt.Sprintf("%s(%.1f, %.1f, %.1f)", p.World, p.X, p.Y, p.Z)
}

// ChunkKey formats a territory chunk key "world:cx:cz".
func ChunkKey(world string, cx, cz int) string {
	return world + ":" + strconv.Itoa(cx) + ":" + strconv.Itoa(cz)
}

// ParseChunkKey splits a chunk key into its world and chunk coordinates.
func ParseChunkKey(key string) (world string, cx, cz int, err error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] == "" {
		return "", 0, 0, fmt.Errorf("invalid chunk format: %q", key)
	}
	if cx, err = strconv.Atoi(parts[1]); err != nil {
		return "", 0, 0, fmt.Errorf("invalid chunk format: %q", key)
	}
	if cz, err = strconv.Atoi(parts[2]); err != nil {
		return "", 0, 0, fmt.Errorf("invalid chunk format: %q", key)
	}
	return parts[0], cx, cz, nil
}
