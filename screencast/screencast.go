// Package screencast drives the org.freedesktop.portal.ScreenCast interface:
// create a session, let the user pick monitors, start it and hand back the
// PipeWire nodes to read from.
package screencast

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/godbus/dbus/v5"

	"go2tv.app/screenpump/internal/portal"
)

const (
	interfaceName      = portal.CallBaseName + ".ScreenCast"
	createSessionName  = interfaceName + ".CreateSession"
	selectSourcesName  = interfaceName + ".SelectSources"
	startName          = interfaceName + ".Start"
	openPipeWireRemote = interfaceName + ".OpenPipeWireRemote"
)

const (
	SourceTypeMonitor uint32 = 1
	SourceTypeWindow  uint32 = 2
	SourceTypeVirtual uint32 = 4
)

const (
	CursorModeHidden   uint32 = 1
	CursorModeEmbedded uint32 = 2
	CursorModeMetadata uint32 = 4
)

// ErrCancelled means the user dismissed the portal dialog.
var ErrCancelled = errors.New("screencast request was cancelled")

// Capabilities is what the running portal backend supports.
type Capabilities struct {
	Version     uint32
	SourceTypes uint32
	CursorModes uint32
}

// QueryCapabilities reads the ScreenCast interface properties.
func QueryCapabilities() (Capabilities, error) {
	var (
		c   Capabilities
		err error
	)
	if c.Version, err = portal.Uint32Property(interfaceName, "version"); err != nil {
		return c, err
	}
	if c.SourceTypes, err = portal.Uint32Property(interfaceName, "AvailableSourceTypes"); err != nil {
		return c, err
	}
	c.CursorModes, err = portal.Uint32Property(interfaceName, "AvailableCursorModes")
	return c, err
}

// CursorMode returns want when the backend offers it, else hidden. Version 1
// portals have no cursor modes at all and get 0, which omits the option.
func (c Capabilities) CursorMode(want uint32) uint32 {
	switch {
	case c.CursorModes&want != 0:
		return want
	case c.CursorModes&CursorModeHidden != 0:
		return CursorModeHidden
	default:
		return 0
	}
}

// Stream is one shared monitor or window.
type Stream struct {
	NodeID     uint32
	Position   [2]int32
	Size       [2]int32
	SourceType uint32
	MappingID  string
	ID         string
}

// Bounds is the stream's rectangle in the compositor's logical space.
func (s Stream) Bounds() image.Rectangle {
	return image.Rect(
		int(s.Position[0]),
		int(s.Position[1]),
		int(s.Position[0])+int(s.Size[0]),
		int(s.Position[1])+int(s.Size[1]),
	)
}

type Session struct {
	Path dbus.ObjectPath
}

type SelectSourcesOptions struct {
	Types      uint32
	Multiple   bool
	CursorMode uint32
}

// variants encodes the options; zero values are left out so the portal
// applies its own defaults.
func (o *SelectSourcesOptions) variants(token string) map[string]dbus.Variant {
	data := map[string]dbus.Variant{"handle_token": portal.FromString(token)}
	if o == nil {
		return data
	}
	if o.Types != 0 {
		data["types"] = portal.FromUint32(o.Types)
	}
	if o.Multiple {
		data["multiple"] = portal.FromBool(true)
	}
	if o.CursorMode != 0 {
		data["cursor_mode"] = portal.FromUint32(o.CursorMode)
	}
	return data
}

func CreateSession(ctx context.Context) (*Session, error) {
	status, results, err := portal.Request(ctx, func(token string) (any, error) {
		return portal.Call(createSessionName, map[string]dbus.Variant{
			"handle_token":         portal.FromString(token),
			"session_handle_token": portal.FromString(portal.GenerateToken()),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("CreateSession: %w", err)
	}
	if status >= portal.Cancelled {
		return nil, ErrCancelled
	}

	sessionHandle, ok := results["session_handle"]
	if !ok {
		return nil, fmt.Errorf("CreateSession response missing session_handle")
	}
	sessionPath, ok := sessionHandle.Value().(string)
	if !ok {
		return nil, fmt.Errorf("CreateSession session_handle has unexpected type %T", sessionHandle.Value())
	}
	return &Session{Path: dbus.ObjectPath(sessionPath)}, nil
}

func (s *Session) SelectSources(ctx context.Context, options *SelectSourcesOptions) error {
	status, _, err := portal.Request(ctx, func(token string) (any, error) {
		return portal.Call(selectSourcesName, s.Path, options.variants(token))
	})
	if err != nil {
		return fmt.Errorf("SelectSources: %w", err)
	}
	if status >= portal.Cancelled {
		return ErrCancelled
	}
	return nil
}

// Start shows the chooser and returns the streams the user shared.
func (s *Session) Start(ctx context.Context, parentWindow string) ([]Stream, error) {
	status, results, err := portal.Request(ctx, func(token string) (any, error) {
		return portal.Call(startName, s.Path, parentWindow, map[string]dbus.Variant{
			"handle_token": portal.FromString(token),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("Start: %w", err)
	}
	if status >= portal.Cancelled {
		return nil, ErrCancelled
	}

	streamVariant, ok := results["streams"]
	if !ok {
		return nil, nil
	}
	return parseStreams(streamVariant.Value()), nil
}

func parseStreams(value any) []Stream {
	var raw []any
	switch v := value.(type) {
	case [][]any:
		for _, r := range v {
			raw = append(raw, r)
		}
	case []any:
		raw = v
	default:
		return nil
	}

	streams := []Stream{}
	for _, r := range raw {
		fields, ok := r.([]any)
		if !ok || len(fields) < 2 {
			continue
		}
		var st Stream
		st.NodeID, _ = fields[0].(uint32)
		if props, ok := fields[1].(map[string]dbus.Variant); ok {
			if v, ok := props["position"]; ok {
				st.Position, _ = parseInt32Pair(v.Value())
			}
			if v, ok := props["size"]; ok {
				st.Size, _ = parseInt32Pair(v.Value())
			}
			st.SourceType, _ = prop[uint32](props, "source_type")
			st.MappingID, _ = prop[string](props, "mapping_id")
			st.ID, _ = prop[string](props, "id")
		}
		streams = append(streams, st)
	}
	return streams
}

func prop[T any](props map[string]dbus.Variant, key string) (T, bool) {
	var zero T
	v, ok := props[key]
	if !ok {
		return zero, false
	}
	t, ok := v.Value().(T)
	return t, ok
}

// parseInt32Pair reads the (ii) structs used for position and size.
func parseInt32Pair(value any) ([2]int32, bool) {
	values, ok := value.([]any)
	if !ok || len(values) < 2 {
		return [2]int32{}, false
	}
	x, okX := values[0].(int32)
	y, okY := values[1].(int32)
	if !okX || !okY {
		return [2]int32{}, false
	}
	return [2]int32{x, y}, true
}

// OpenPipeWireRemote returns a PipeWire socket fd scoped to the session's
// streams. The caller owns the fd.
func (s *Session) OpenPipeWireRemote() (int, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return -1, err
	}

	obj := conn.Object(portal.ObjectName, portal.ObjectPath)
	call := obj.Call(openPipeWireRemote, 0, s.Path, map[string]dbus.Variant{})
	if call.Err != nil {
		return -1, call.Err
	}

	var fd dbus.UnixFD
	if err := call.Store(&fd); err != nil {
		return -1, err
	}
	return int(fd), nil
}

func (s *Session) Close() error {
	return portal.CloseSession(s.Path)
}
