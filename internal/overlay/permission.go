package overlay

import (
	"fmt"
	"strings"
)

// Permission is the camera permission state the panel depends on.
type Permission int

const (
	PermissionRequesting Permission = iota
	PermissionDenied
	PermissionGranted
)

func (p Permission) String() string {
	switch p {
	case PermissionDenied:
		return "denied"
	case PermissionGranted:
		return "granted"
	default:
		return "requesting"
	}
}

// ParsePermission accepts the names produced by String.
func ParsePermission(s string) (Permission, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "requesting":
		return PermissionRequesting, nil
	case "denied":
		return PermissionDenied, nil
	case "granted":
		return PermissionGranted, nil
	}
	return PermissionRequesting, fmt.Errorf("unknown permission state %q", s)
}

// Action names a button offered by a view.
type Action string

const (
	ActionOpenSettings Action = "open_settings"
	ActionGoBack       Action = "go_back"
	ActionAnchorHere   Action = "anchor_here"
	ActionRefresh      Action = "refresh"
)

// PermissionView is what the screen shows for a permission state.
type PermissionView struct {
	State   string   `json:"state"`
	Message string   `json:"message,omitempty"`
	Detail  string   `json:"detail,omitempty"`
	Actions []Action `json:"actions"`
}

// ViewFor returns the view for a permission state. The granted view carries the
// AR controls; the panel itself is rendered separately.
func ViewFor(p Permission) PermissionView {
	switch p {
	case PermissionDenied:
		return PermissionView{
			State:   p.String(),
			Message: "No se ha concedido acceso a la cámara",
			Detail:  "Esta función necesita acceso a la cámara para mostrar la visualización AR",
			Actions: []Action{ActionOpenSettings, ActionGoBack},
		}
	case PermissionGranted:
		return PermissionView{
			State:   p.String(),
			Actions: []Action{ActionAnchorHere, ActionRefresh, ActionGoBack},
		}
	default:
		return PermissionView{
			State:   p.String(),
			Message: "Solicitando permisos de cámara...",
			Actions: []Action{},
		}
	}
}

// SettingsTarget is the URL that opens this application's settings on platform.
// iOS understands the app-settings: scheme; everywhere else the application
// details screen is opened through an intent for appID.
func SettingsTarget(platform, appID string) string {
	if strings.EqualFold(platform, "ios") {
		return "app-settings:"
	}
	if appID == "" {
		return "intent:#Intent;action=android.settings.SETTINGS;end"
	}
	return "intent:#Intent;action=android.settings.APPLICATION_DETAILS_SETTINGS;data=package:" + appID + ";end"
}
