package model

import (
	"fmt"
	"strings"
)

// PunishmentType is the kind of a punishment together with its temp flag.
type PunishmentType int

const (
	Ban PunishmentType = iota + 1
	TempBan
	IPBan
	TempIPBan
	Mute
	TempMute
	Warning
	TempWarning
	Kick
)

type typeInfo struct {
	name    string // storage tag
	perm    string // permission suffix
	section string // message config section
	basic   PunishmentType
	temp    bool
}

var types = map[PunishmentType]typeInfo{
	Ban:         {"BAN", "ban", "Ban", Ban, false},
	TempBan:     {"TEMP_BAN", "tempban", "Tempban", Ban, true},
	IPBan:       {"IP_BAN", "ipban", "Ipban", Ban, false},
	TempIPBan:   {"TEMP_IP_BAN", "tempipban", "Tempipban", Ban, true},
	Mute:        {"MUTE", "mute", "Mute", Mute, false},
	TempMute:    {"TEMP_MUTE", "tempmute", "Tempmute", Mute, true},
	Warning:     {"WARNING", "warn", "Warning", Warning, false},
	TempWarning: {"TEMP_WARNING", "tempwarn", "Tempwarning", Warning, true},
	Kick:        {"KICK", "kick", "Kick", Kick, false},
}

// AllTypes lists every punishment type in declaration order.
func AllTypes() []PunishmentType {
	return []PunishmentType{Ban, TempBan, IPBan, TempIPBan, Mute, TempMute, Warning, TempWarning, Kick}
}

// ParsePunishmentType converts a storage tag such as "TEMP_BAN" into a type.
func ParsePunishmentType(s string) (PunishmentType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for t, info := range types {
		if info.name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("model: %w: %q", ErrUnknownPunishment, s)
}

// Valid reports whether t is a known punishment type.
func (t PunishmentType) Valid() bool {
	_, ok := types[t]
	return ok
}

// String returns the storage tag.
func (t PunishmentType) String() string {
	if info, ok := types[t]; ok {
		return info.name
	}
	return "UNKNOWN"
}

// Basic returns the permanent base kind: Ban, Mute, Warning or Kick.
func (t PunishmentType) Basic() PunishmentType {
	return types[t].basic
}

// IsTemp reports whether punishments of this type carry an end time.
func (t PunishmentType) IsTemp() bool {
	return types[t].temp
}

// IsIPOrientated reports whether the type targets network addresses.
func (t PunishmentType) IsIPOrientated() bool {
	return t == IPBan || t == TempIPBan
}

// IsOneShot reports whether the punishment has no ongoing state and is
// therefore only ever recorded in history.
func (t PunishmentType) IsOneShot() bool {
	return t == Kick
}

// PermissionName is the lower-case name used in permission strings.
func (t PunishmentType) PermissionName() string {
	return types[t].perm
}

// ConfSection is the message catalog section for the type, e.g. "Tempban".
func (t PunishmentType) ConfSection() string {
	return types[t].section
}

// Family returns every type sharing the basic kind of t.
func (t PunishmentType) Family() []PunishmentType {
	basic := t.Basic()
	var out []PunishmentType
	for _, other := range AllTypes() {
		if other.Basic() == basic {
			out = append(out, other)
		}
	}
	return out
}

// Temp returns the temporary variant of t's basic kind. Kick has none and is
// returned unchanged.
func (t PunishmentType) Temp() PunishmentType {
	switch t {
	case Ban:
		return TempBan
	case IPBan:
		return TempIPBan
	case Mute:
		return TempMute
	case Warning:
		return TempWarning
	default:
		return t
	}
}
