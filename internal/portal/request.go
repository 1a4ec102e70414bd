package portal

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

var ErrUnexpectedResponse = errors.New("unexpected response from dbus")

const (
	requestInterface = CallBaseName + ".Request"
	responseMember   = "Response"
	requestCloseName = requestInterface + ".Close"
)

type ResponseStatus = uint32

const (
	Success   ResponseStatus = 0
	Cancelled ResponseStatus = 1
	Ended     ResponseStatus = 2
)

func CloseRequest(path dbus.ObjectPath) error {
	return CallOnObject(path, requestCloseName)
}

// Request performs a portal method call that answers through a Request
// object. The Response signal is subscribed before the call is made so a fast
// portal cannot answer before anyone is listening. call receives the handle
// token to put into its options.
func Request(ctx context.Context, call func(token string) (any, error)) (ResponseStatus, map[string]dbus.Variant, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return Ended, nil, err
	}
	names := conn.Names()
	if len(names) == 0 {
		return Ended, nil, errors.New("dbus connection has no unique name")
	}

	token := GenerateToken()
	expected := RequestPath(names[0], token)

	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	match := []dbus.MatchOption{
		dbus.WithMatchInterface(requestInterface),
		dbus.WithMatchMember(responseMember),
		dbus.WithMatchObjectPath(expected),
	}
	if err := conn.AddMatchSignal(match...); err != nil {
		return Ended, nil, err
	}
	defer func() { _ = conn.RemoveMatchSignal(match...) }()

	result, err := call(token)
	if err != nil {
		return Ended, nil, err
	}
	path, ok := result.(dbus.ObjectPath)
	if !ok {
		return Ended, nil, fmt.Errorf("%w: request handle has type %T", ErrUnexpectedResponse, result)
	}
	if path != expected {
		// Portals older than 0.9 pick their own request path.
		late := []dbus.MatchOption{
			dbus.WithMatchInterface(requestInterface),
			dbus.WithMatchMember(responseMember),
			dbus.WithMatchObjectPath(path),
		}
		if err := conn.AddMatchSignal(late...); err != nil {
			return Ended, nil, err
		}
		defer func() { _ = conn.RemoveMatchSignal(late...) }()
	}

	for {
		select {
		case <-ctx.Done():
			_ = CloseRequest(path)
			return Ended, nil, ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return Ended, nil, ErrUnexpectedResponse
			}
			if sig.Path != path || sig.Name != requestInterface+"."+responseMember {
				continue
			}
			return parseResponse(sig.Body)
		}
	}
}

func parseResponse(body []any) (ResponseStatus, map[string]dbus.Variant, error) {
	if len(body) != 2 {
		return Ended, nil, ErrUnexpectedResponse
	}
	status, ok := body[0].(ResponseStatus)
	if !ok {
		return Ended, nil, fmt.Errorf("%w: status has type %T", ErrUnexpectedResponse, body[0])
	}
	results, ok := body[1].(map[string]dbus.Variant)
	if !ok {
		return Ended, nil, fmt.Errorf("%w: results have type %T", ErrUnexpectedResponse, body[1])
	}
	return status, results, nil
}
