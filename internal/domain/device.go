package domain

import "time"

type DeviceType string

const (
	DeviceAndroid DeviceType = "android"
	DeviceIOS     DeviceType = "ios"
	DeviceWeb     DeviceType = "web"
)

func (t DeviceType) IsValid() bool {
	switch t {
	case DeviceAndroid, DeviceIOS, DeviceWeb:
		return true
	}
	return false
}

// Device is a push token registration. A token belongs either to a user or to
// an anonymous temporary id until the user signs in.
type Device struct {
	ID        int64      `db:"id" json:"id"`
	Token     string     `db:"token" json:"token"`
	Type      DeviceType `db:"device_type" json:"device_type"`
	UserID    *int64     `db:"user_id" json:"user_id,omitempty"`
	TempID    *string    `db:"temp_id" json:"temp_id,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}
