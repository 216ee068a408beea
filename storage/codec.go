package storage

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mysterria/silkroad/game/caravan"
	"github.com/mysterria/silkroad/game/item"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrCorrupt is returned when a record cannot be decoded.
var ErrCorrupt = errors.New("corrupt record")

type positionRecord struct {
	World string  `json:"world" yaml:"world"`
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Z     float64 `json:"z" yaml:"z"`
	Yaw   float32 `json:"yaw" yaml:"yaw"`
	Pitch float32 `json:"pitch" yaml:"pitch"`
}

type stackRecord struct {
	Type     string `json:"type" yaml:"type"`
	Quantity int    `json:"quantity" yaml:"quantity"`
	Meta     string `json:"meta,omitempty" yaml:"meta,omitempty"`
}

type caravanRecord struct {
	ID              string         `json:"id" yaml:"id"`
	Name            string         `json:"name" yaml:"name"`
	Position        positionRecord `json:"position" yaml:"position"`
	Inventory       []stackRecord  `json:"inventory" yaml:"inventory"`
	LegacyInventory map[string]int `json:"legacy_inventory,omitempty" yaml:"legacy_inventory,omitempty"`
	Territory       []string       `json:"territory" yaml:"territory"`
	Members         []string       `json:"members" yaml:"members"`
	OwningGroup     *caravan.Group `json:"owning_group,omitempty" yaml:"owning_group,omitempty"`
	CreatedAt       int64          `json:"created_at" yaml:"created_at"`
	Active          bool           `json:"active" yaml:"active"`
}

type transferRecord struct {
	ID                   string         `json:"id" yaml:"id"`
	SourceCaravanID      string         `json:"source_caravan_id" yaml:"source_caravan_id"`
	DestinationCaravanID string         `json:"destination_caravan_id" yaml:"destination_caravan_id"`
	InitiatorID          string         `json:"initiator_id" yaml:"initiator_id"`
	InitiatorName        string         `json:"initiator_name" yaml:"initiator_name"`
	CreatedAt            int64          `json:"created_at" yaml:"created_at"`
	DeliveryTime         int64          `json:"delivery_time" yaml:"delivery_time"`
	Distance             float64        `json:"distance" yaml:"distance"`
	Cost                 int            `json:"cost" yaml:"cost"`
	Status               string         `json:"status" yaml:"status"`
	Resources            map[string]int `json:"resources,omitempty" yaml:"resources,omitempty"`
	Items                []stackRecord  `json:"items,omitempty" yaml:"items,omitempty"`
}

// codec converts entities to records and back. Decoding goes through a
// generic map so that older layouts still load: nested, flat or dotted
// positions under "location" or "position", camelCase or snake_case keys,
// the deprecated "owners" list and the type→quantity inventory map.
type codec struct {
	catalog *item.Catalog
	logger  *zap.Logger
}

func newCodec(catalog *item.Catalog, logger *zap.Logger) *codec {
	return &codec{catalog: catalog, logger: logger}
}

func encodeStacks(stacks []item.Stack) []stackRecord {
	out := make([]stackRecord, 0, len(stacks))
	for _, s := range stacks {
		r := stackRecord{Type: s.Type, Quantity: s.Quantity}
		if len(s.Meta) > 0 {
			r.Meta = base64.StdEncoding.EncodeToString(s.Meta)
		}
		out = append(out, r)
	}
	return out
}

func (cd *codec) caravanRecord(c *caravan.Caravan) caravanRecord {
	rec := caravanRecord{
		ID:   c.ID,
		Name: c.Name,
		Position: positionRecord{
			World: c.Position.World,
			X:     c.Position.X,
			Y:     c.Position.Y,
			Z:     c.Position.Z,
			Yaw:   c.Position.Yaw,
			Pitch: c.Position.Pitch,
		},
		Inventory: encodeStacks(c.Inventory.Stacks()),
		Territory: c.TerritoryList(),
		Members:   c.MemberList(),
		CreatedAt: c.CreatedAt.UnixMilli(),
		Active:    c.Active,
	}
	if len(c.Legacy) > 0 {
		rec.LegacyInventory = c.Legacy.Clone()
	}
	if c.OwningGroup != nil {
		g := *c.OwningGroup
		rec.OwningGroup = &g
	}
	return rec
}

func (cd *codec) transferRecord(t *caravan.Transfer) transferRecord {
	rec := transferRecord{
		ID:                   t.ID,
		SourceCaravanID:      t.SourceCaravanID,
		DestinationCaravanID: t.DestinationCaravanID,
		InitiatorID:          t.InitiatorID,
		InitiatorName:        t.InitiatorName,
		CreatedAt:            t.CreatedAt.UnixMilli(),
		DeliveryTime:         t.DeliveryTime.UnixMilli(),
		Distance:             t.Distance,
		Cost:                 t.Cost,
		Status:               string(t.Status),
	}
	if len(t.Resources) > 0 {
		rec.Resources = t.Resources.Clone()
	}
	if len(t.Items) > 0 {
		rec.Items = encodeStacks(t.Items)
	}
	return rec
}

// decodeCaravan parses a YAML or JSON caravan record. fallbackID is used
// when the record carries no id (the file name for FileStore).
func (cd *codec) decodeCaravan(data []byte, fallbackID string) (*caravan.Caravan, error) {
	f, err := parseFields(data)
	if err != nil {
		return nil, fmt.Errorf("%w: caravan %s: %v", ErrCorrupt, fallbackID, err)
	}

	id := f.str("id")
	if id == "" {
		id = fallbackID
	}
	if id == "" {
		return nil, fmt.Errorf("%w: caravan without id", ErrCorrupt)
	}
	name := f.str("name")
	if name == "" {
		name = id
	}

	c := caravan.New(id, name, f.position(), cd.catalog, f.millis("created_at"))
	c.Active = f.boolean("active", true)

	switch inv := f.get("inventory").(type) {
	case []any:
		stacks := cd.decodeStacks(inv, "caravan", id)
		for _, s := range c.Inventory.Restore(stacks) {
			cd.logger.Warn("stack does not fit caravan hold, moved to legacy inventory",
				zap.String("caravan", id), zap.String("type", s.Type), zap.Int("quantity", s.Quantity))
			c.AddResource(s.Type, s.Quantity)
		}
	case nil:
	default:
		// The type→quantity map of old records is the legacy inventory.
		cd.decodeResources(c.Legacy, inv, "caravan", id)
	}
	cd.decodeResources(c.Legacy, f.get("legacy_inventory"), "caravan", id)

	for _, key := range f.strList("territory") {
		if _, _, _, err := caravan.ParseChunkKey(key); err != nil {
			cd.logger.Warn("skipping invalid territory chunk", zap.String("caravan", id), zap.String("chunk", key))
			continue
		}
		c.Territory[key] = struct{}{}
	}
	for _, m := range f.strList("owners") {
		c.AddMember(m)
	}
	for _, m := range f.strList("members") {
		c.AddMember(m)
	}

	if g := toFields(f.get("owning_group")); g != nil {
		if gid := g.str("id"); gid != "" {
			c.OwningGroup = &caravan.Group{ID: gid, Name: g.str("name")}
		}
	}
	return c, nil
}

// decodeTransfer parses a YAML or JSON transfer record.
func (cd *codec) decodeTransfer(data []byte, fallbackID string) (*caravan.Transfer, error) {
	f, err := parseFields(data)
	if err != nil {
		return nil, fmt.Errorf("%w: transfer %s: %v", ErrCorrupt, fallbackID, err)
	}

	id := f.str("id")
	if id == "" {
		id = fallbackID
	}
	status, err := caravan.ParseStatus(strings.ToUpper(f.str("status")))
	if err != nil {
		return nil, fmt.Errorf("%w: transfer %s: %v", ErrCorrupt, id, err)
	}
	t := &caravan.Transfer{
		ID:                   id,
		SourceCaravanID:      f.str("source_caravan_id"),
		DestinationCaravanID: f.str("destination_caravan_id"),
		InitiatorID:          f.str("initiator_id", "player_id"),
		InitiatorName:        f.str("initiator_name", "player_name"),
		CreatedAt:            f.millis("created_at"),
		DeliveryTime:         f.millis("delivery_time"),
		Distance:             f.float("distance"),
		Cost:                 int(f.integer("cost")),
		Status:               status,
	}
	if id == "" || t.SourceCaravanID == "" || t.DestinationCaravanID == "" {
		return nil, fmt.Errorf("%w: transfer %s: missing caravan ids", ErrCorrupt, id)
	}

	if res := f.get("resources"); res != nil {
		t.Resources = item.Resources{}
		cd.decodeResources(t.Resources, res, "transfer", id)
		if len(t.Resources) == 0 {
			t.Resources = nil
		}
	}
	if list, ok := f.get("items", "item_resources").([]any); ok {
		t.Items = cd.decodeStacks(list, "transfer", id)
	}
	return t, nil
}

func (cd *codec) decodeStacks(list []any, kind, id string) []item.Stack {
	var out []item.Stack
	for _, raw := range list {
		sf := toFields(raw)
		if sf == nil {
			continue
		}
		typ := item.NormalizeType(sf.str("type", "material"))
		qty := int(sf.integer("quantity", "amount"))
		if !cd.catalog.Valid(typ) {
			cd.logger.Warn("skipping invalid item type",
				zap.String(kind, id), zap.String("type", typ))
			continue
		}
		if qty <= 0 {
			continue
		}
		s := item.NewStack(typ, qty)
		if meta := sf.str("meta"); meta != "" {
			b, err := base64.StdEncoding.DecodeString(meta)
			if err != nil {
				cd.logger.Warn("skipping stack with undecodable metadata",
					zap.String(kind, id), zap.String("type", typ), zap.Error(err))
				continue
			}
			s.Meta = b
		}
		out = append(out, s)
	}
	return out
}

func (cd *codec) decodeResources(dst item.Resources, raw any, kind, id string) {
	m := toFields(raw)
	for key, v := range m {
		typ := item.NormalizeType(key)
		if !cd.catalog.Valid(typ) {
			cd.logger.Warn("skipping invalid item type",
				zap.String(kind, id), zap.String("type", key))
			continue
		}
		dst.Add(typ, int(asInt(v)))
	}
}

// fields is a decoded mapping. Lookups ignore case and underscores so that
// "createdAt" and "created_at" are the same key; map keys themselves keep
// their spelling when iterated.
type fields map[string]any

func parseFields(data []byte) (fields, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	f := toFields(raw)
	if f == nil {
		return nil, errors.New("record is not a mapping")
	}
	return f, nil
}

func toFields(raw any) fields {
	switch m := raw.(type) {
	case map[string]any:
		return fields(m)
	case map[any]any:
		out := make(fields, len(m))
		for k, v := range m {
			out[fmt.Sprint(k)] = v
		}
		return out
	}
	return nil
}

func normKey(k string) string {
	return strings.ToLower(strings.ReplaceAll(k, "_", ""))
}

func (f fields) get(keys ...string) any {
	for _, want := range keys {
		if v, ok := f[want]; ok {
			return v
		}
		nw := normKey(want)
		for k, v := range f {
			if normKey(k) == nw {
				return v
			}
		}
	}
	return nil
}

func (f fields) str(keys ...string) string {
	v := f.get(keys...)
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func (f fields) float(keys ...string) float64 { return asFloat(f.get(keys...)) }

func (f fields) integer(keys ...string) int64 { return asInt(f.get(keys...)) }

func (f fields) boolean(key string, def bool) bool {
	switch v := f.get(key).(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "true", "yes", "y":
			return true
		case "false", "no", "n":
			return false
		}
	case int:
		return v != 0
	}
	return def
}

func (f fields) millis(key string) time.Time {
	switch v := f.get(key).(type) {
	case time.Time:
		return time.UnixMilli(v.UnixMilli())
	case nil:
		return time.UnixMilli(0)
	default:
		return time.UnixMilli(asInt(v))
	}
}

func (f fields) strList(key string) []string {
	list, ok := f.get(key).([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v == nil {
			continue
		}
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// position reads the nested form first, then dotted keys, then top-level
// world/x/y/z.
func (f fields) position() caravan.Position {
	src := toFields(f.get("location", "position"))
	if src == nil {
		src = fields{}
		for _, prefix := range []string{"location.", "position."} {
			for k, v := range f {
				if strings.HasPrefix(strings.ToLower(k), prefix) {
					src[k[len(prefix):]] = v
				}
			}
			if len(src) > 0 {
				break
			}
		}
	}
	if len(src) == 0 {
		src = f
	}
	return caravan.Position{
		World: src.str("world"),
		X:     src.float("x"),
		Y:     src.float("y"),
		Z:     src.float("z"),
		Yaw:   float32(src.float("yaw")),
		Pitch: float32(src.float("pitch")),
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case string:
		x, _ := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return x
	}
	return 0
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		x, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return int64(asFloat(n))
		}
		return x
	}
	return 0
}
