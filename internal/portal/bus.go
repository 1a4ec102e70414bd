// Package portal wraps the xdg-desktop-portal D-Bus calls shared by the
// portal interfaces: method calls, property reads, request/response signals
// and session handles.
package portal

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

const (
	ObjectName        = "org.freedesktop.portal.Desktop"
	ObjectPath        = "/org/freedesktop/portal/desktop"
	CallBaseName      = "org.freedesktop.portal"
	PropertiesGetName = "org.freedesktop.DBus.Properties.Get"

	sessionInterface = CallBaseName + ".Session"
	sessionCloseName = sessionInterface + ".Close"
)

var (
	boolSignature   = dbus.SignatureOfType(reflect.TypeOf(false))
	stringSignature = dbus.SignatureOfType(reflect.TypeOf(""))
	uint32Signature = dbus.SignatureOfType(reflect.TypeOf(uint32(0)))
)

func FromBool(input bool) dbus.Variant {
	return dbus.MakeVariantWithSignature(input, boolSignature)
}

func FromString(input string) dbus.Variant {
	return dbus.MakeVariantWithSignature(input, stringSignature)
}

func FromUint32(input uint32) dbus.Variant {
	return dbus.MakeVariantWithSignature(input, uint32Signature)
}

// Call invokes a method on the portal desktop object and stores its single
// return value.
func Call(callName string, args ...any) (any, error) {
	call, err := callOnObject(ObjectPath, callName, args...)
	if err != nil {
		return nil, err
	}

	var result any
	err = call.Store(&result)
	return result, err
}

// CallOnObject invokes a method on a request or session object.
func CallOnObject(path dbus.ObjectPath, callName string, args ...any) error {
	_, err := callOnObject(path, callName, args...)
	return err
}

func callOnObject(path dbus.ObjectPath, callName string, args ...any) (*dbus.Call, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}

	obj := conn.Object(ObjectName, path)
	call := obj.Call(callName, 0, args...)
	return call, call.Err
}

// Property reads one property of a portal interface. Properties.Get wraps the
// value in a variant, which is unwrapped before the type check.
func Property[T any](interfaceName, property string) (T, error) {
	var zero T
	call, err := callOnObject(ObjectPath, PropertiesGetName, interfaceName, property)
	if err != nil {
		return zero, err
	}

	var value any
	if err := call.Store(&value); err != nil {
		return zero, err
	}
	if v, ok := value.(dbus.Variant); ok {
		value = v.Value()
	}
	result, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("property %s returned unexpected type %T", property, value)
	}
	return result, nil
}

func Uint32Property(interfaceName, property string) (uint32, error) {
	return Property[uint32](interfaceName, property)
}

// GenerateToken returns a fresh handle token. Tokens become object path
// elements, so only [A-Za-z0-9_] is used.
func GenerateToken() string {
	return "screenpump_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// RequestPath predicts the Request object path the portal will create for a
// handle token sent by this connection.
func RequestPath(uniqueName, token string) dbus.ObjectPath {
	sender := strings.ReplaceAll(strings.TrimPrefix(uniqueName, ":"), ".", "_")
	return dbus.ObjectPath(ObjectPath + "/request/" + sender + "/" + token)
}

// CloseSession ends a portal session and everything started from it.
func CloseSession(path dbus.ObjectPath) error {
	return CallOnObject(path, sessionCloseName)
}
