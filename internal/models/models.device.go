// FilePath: internal/models/models.device.go
package models

import (
	"database/sql"
	"time"
)

// Device identifies a physical sensor unit. A device is provisioned with a
// name and a shared secret; a user claims it by presenting both. UserID stays
// NULL until the device is linked and a device belongs to at most one user.
type Device struct {
	ID        string         `json:"id" db:"id" readxs:"*" writexs:"admin"`
	Name      string         `json:"name" db:"name" readxs:"*" writexs:"admin"`
	Secret    string         `json:"secret,omitempty" db:"secret" readxs:"admin" writexs:"admin"`
	UserID    sql.NullString `json:"-" db:"user_id" readxs:"admin" writexs:"system"`
	CreatedAt time.Time      `json:"created_at" db:"created_at" readxs:"*" writexs:"system"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at" readxs:"*" writexs:"system"`
}

// OwnedBy reports whether the device is linked to the given user.
func (d *Device) OwnedBy(userID string) bool {
	return d.UserID.Valid && d.UserID.String == userID
}

// DeviceSummary is the trimmed listing shape returned for "my devices".
type DeviceSummary struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DeviceRefKind discriminates how a caller-supplied identifier is looked up.
type DeviceRefKind int

const (
	DeviceRefByID DeviceRefKind = iota
	DeviceRefByName
)

// DeviceRef is a typed device lookup: either by id or by name. It is parsed
// once at the API boundary and resolved only by the device registry; nothing
// downstream re-inspects the raw identifier.
type DeviceRef struct {
	Kind DeviceRefKind
	ID   string
	Name string
}

// ParseDeviceRef classifies a path identifier. An all-digit identifier is an
// id lookup, anything else a name lookup.
func ParseDeviceRef(identifier string) DeviceRef {
	if isNumeric(identifier) {
		return DeviceRef{Kind: DeviceRefByID, ID: identifier}
	}
	return DeviceRef{Kind: DeviceRefByName, Name: identifier}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// String returns the identifier the ref was parsed from, for log lines.
func (r DeviceRef) String() string {
	if r.Kind == DeviceRefByID {
		return r.ID
	}
	return r.Name
}
