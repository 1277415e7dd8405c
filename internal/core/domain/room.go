package domain

import (
	"strconv"
	"time"
)

// Room name constraints.
const (
	MaxRoomNameLength = 64

	// reservedRoomName would collide with the room index key.
	reservedRoomName = "index"
)

// Default room registry timing. The refresh interval must stay strictly
// below the TTL so transient store latency does not drop ownership.
const (
	DefaultRoomTTL             = time.Hour
	DefaultRoomRefreshInterval = time.Minute

	// DefaultMaxRoomTTL caps the TTL a caller may request for one upsert.
	DefaultMaxRoomTTL = 24 * time.Hour
)

// Room record hash fields.
const (
	roomFieldNodeID      = "node_id"
	roomFieldURL         = "url"
	roomFieldCurrent     = "current"
	roomFieldMax         = "max"
	roomFieldHasPassword = "has_password"
	roomFieldCreatedAt   = "created_at"
	roomFieldRefreshedAt = "refreshed_at"
	roomFieldTTL         = "ttl_ms"
)

// RoomRecord maps a room name to its currently owning node.
type RoomRecord struct {
	Name        string        `json:"room_name"`
	NodeID      string        `json:"node_id"`
	URL         string        `json:"url,omitempty"`
	Current     int           `json:"current"`
	Max         int           `json:"max"`
	HasPassword bool          `json:"has_password"`
	CreatedAt   time.Time     `json:"created_at"`
	RefreshedAt time.Time     `json:"refreshed_at"`
	TTL         time.Duration `json:"ttl"`
}

// ExpiresAt returns the instant the record lapses without another refresh.
func (r *RoomRecord) ExpiresAt() time.Time {
	return r.RefreshedAt.Add(r.TTL)
}

// IsExpired reports whether the record lapsed at the given instant.
func (r *RoomRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt())
}

// Fields encodes the record as a string hash. The name is implied by the key.
func (r *RoomRecord) Fields() map[string]string {
	return map[string]string{
		roomFieldNodeID:      r.NodeID,
		roomFieldURL:         r.URL,
		roomFieldCurrent:     strconv.Itoa(r.Current),
		roomFieldMax:         strconv.Itoa(r.Max),
		roomFieldHasPassword: strconv.FormatBool(r.HasPassword),
		roomFieldCreatedAt:   strconv.FormatInt(r.CreatedAt.UnixMilli(), 10),
		roomFieldRefreshedAt: strconv.FormatInt(r.RefreshedAt.UnixMilli(), 10),
		roomFieldTTL:         strconv.FormatInt(r.TTL.Milliseconds(), 10),
	}
}

// RoomFromFields decodes a stored hash. A hash without node_id is not a room.
func RoomFromFields(name string, f map[string]string) (*RoomRecord, bool) {
	nodeID := f[roomFieldNodeID]
	if nodeID == "" {
		return nil, false
	}
	r := &RoomRecord{
		Name:   name,
		NodeID: nodeID,
		URL:    f[roomFieldURL],
	}
	r.Current, _ = strconv.Atoi(f[roomFieldCurrent])
	r.Max, _ = strconv.Atoi(f[roomFieldMax])
	r.HasPassword, _ = strconv.ParseBool(f[roomFieldHasPassword])
	if ms, err := strconv.ParseInt(f[roomFieldCreatedAt], 10, 64); err == nil {
		r.CreatedAt = time.UnixMilli(ms)
	}
	if ms, err := strconv.ParseInt(f[roomFieldRefreshedAt], 10, 64); err == nil {
		r.RefreshedAt = time.UnixMilli(ms)
	}
	if ms, err := strconv.ParseInt(f[roomFieldTTL], 10, 64); err == nil {
		r.TTL = time.Duration(ms) * time.Millisecond
	}
	return r, true
}

// ValidateRoomName checks a room name against the naming rules: 1-64 chars of
// letters, digits, '_', '-', '.', ':' and not the reserved word "index".
func ValidateRoomName(name string) error {
	if name == "" {
		return ErrRoomNameInvalid.WithDetails("empty name")
	}
	if len(name) > MaxRoomNameLength {
		return ErrRoomNameInvalid.WithDetails("name too long")
	}
	if name == reservedRoomName {
		return ErrRoomNameInvalid.WithDetails("reserved name")
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_', c == '-', c == '.', c == ':':
		default:
			return ErrRoomNameInvalid.WithDetails("invalid character")
		}
	}
	return nil
}
