// Package notice carries user-visible feedback from the core to attendee
// devices: toasts, navigation signals, permission prompts and local
// notifications.
package notice

import (
	"github.com/ovaphlow/pitchfork/service-companion-go/pkg/utilities"
)

// Type identifies how a device should handle a notice.
type Type string

const (
	TypeToast             Type = "toast"
	TypeNavigate          Type = "navigate"
	TypePermissionRequest Type = "permission-request"
	TypeNotification      Type = "notification"
	TypeIdentity          Type = "identity"
	TypeProfile           Type = "profile"
	TypeScanState         Type = "scan-state"
)

// Kind is the visual severity of a toast.
type Kind string

const (
	KindSuccess     Kind = "success"
	KindInfo        Kind = "info"
	KindWarning     Kind = "warning"
	KindDestructive Kind = "destructive"
)

// Permission mirrors the platform notification permission of a device.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Valid reports whether p is one of the known permission states.
func (p Permission) Valid() bool {
	switch p {
	case PermissionDefault, PermissionGranted, PermissionDenied:
		return true
	}
	return false
}

type Notice struct {
	ID          string `json:"id"`
	Type        Type   `json:"type"`
	Kind        Kind   `json:"kind,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	// Persistent notices stay on screen until replaced.
	Persistent bool   `json:"persistent,omitempty"`
	Path       string `json:"path,omitempty"`
	Icon       string `json:"icon,omitempty"`
	Data       any    `json:"data,omitempty"`
}

// Notifier fans a notice out to every device of an identity.
type Notifier interface {
	Notify(uid string, n Notice)
}

// Publisher delivers a notice to a single device.
type Publisher interface {
	Publish(n Notice)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Notice)

func (f PublisherFunc) Publish(n Notice) { f(n) }

func Toast(kind Kind, title, description string) Notice {
	return Notice{ID: utilities.NewSnowflakeID(), Type: TypeToast, Kind: kind, Title: title, Description: description}
}

// Warning is a persistent warning toast.
func Warning(title, description string) Notice {
	n := Toast(KindWarning, title, description)
	n.Persistent = true
	return n
}

func Navigate(path string) Notice {
	return Notice{ID: utilities.NewSnowflakeID(), Type: TypeNavigate, Path: path}
}

func PermissionRequest() Notice {
	return Notice{ID: utilities.NewSnowflakeID(), Type: TypePermissionRequest}
}

// Local is a platform notification raised on the device.
func Local(title, body, icon string) Notice {
	return Notice{ID: utilities.NewSnowflakeID(), Type: TypeNotification, Title: title, Description: body, Icon: icon}
}

// Event carries structured state (identity, profile, scan state) to a device.
func Event(t Type, data any) Notice {
	return Notice{ID: utilities.NewSnowflakeID(), Type: t, Data: data}
}
