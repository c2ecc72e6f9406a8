// Package apiclient talks to a VIIPER server, which emulates the virtual
// Xbox 360 pad over USB-IP, and to the PROXI control API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/proxi-pad/proxi/apitypes"
)

// Client provides a high-level interface to the VIIPER API, handling request
// formatting, response parsing, and error handling.
type Client struct{ transport *Transport }

// New constructs a high-level API client.
// The addr parameter specifies the TCP address (host:port) of the VIIPER API server.
func New(addr string) *Client { return &Client{transport: NewTransport(addr)} }

// NewWithConfig constructs a client with custom transport timeouts.
func NewWithConfig(addr string, cfg *Config) *Client {
	return &Client{transport: NewTransportWithConfig(addr, cfg)}
}

// WithTransport constructs a Client using a custom Transport implementation.
func WithTransport(t *Transport) *Client { return &Client{transport: t} }

// Transport returns the underlying transport.
func (c *Client) Transport() *Transport { return c.transport }

func (c *Client) Ping(ctx context.Context) (*apitypes.PingResponse, error) {
	line, err := c.transport.DoCtx(ctx, "ping", nil, nil)
	if err != nil {
		return nil, err
	}
	return Parse[apitypes.PingResponse](line)
}

// BusCreate creates a new virtual USB bus with the specified bus number.
func (c *Client) BusCreate(ctx context.Context, busID uint32) (*apitypes.BusCreateResponse, error) {
	line, err := c.transport.DoCtx(ctx, "bus/create", fmt.Sprintf("%d", busID), nil)
	if err != nil {
		return nil, err
	}
	return Parse[apitypes.BusCreateResponse](line)
}

// BusRemove removes an existing virtual USB bus and all devices attached to it.
func (c *Client) BusRemove(ctx context.Context, busID uint32) (*apitypes.BusRemoveResponse, error) {
	line, err := c.transport.DoCtx(ctx, "bus/remove", fmt.Sprintf("%d", busID), nil)
	if err != nil {
		return nil, err
	}
	return Parse[apitypes.BusRemoveResponse](line)
}

// BusList retrieves a list of all active virtual USB bus numbers.
func (c *Client) BusList(ctx context.Context) (*apitypes.BusListResponse, error) {
	line, err := c.transport.DoCtx(ctx, "bus/list", nil, nil)
	if err != nil {
		return nil, err
	}
	return Parse[apitypes.BusListResponse](line)
}

// DeviceAdd adds a new device of the specified type (e.g. "xbox360") to the
// given bus.
func (c *Client) DeviceAdd(ctx context.Context, busID uint32, devType string) (*apitypes.Device, error) {
	pathParams := map[string]string{"id": fmt.Sprintf("%d", busID)}
	line, err := c.transport.DoCtx(ctx, "bus/{id}/add", devType, pathParams)
	if err != nil {
		return nil, err
	}
	return Parse[apitypes.Device](line)
}

// DeviceRemove removes a device from the specified bus by its device ID.
// Active USB-IP connections to the device will be closed.
func (c *Client) DeviceRemove(ctx context.Context, busID uint32, devID string) (*apitypes.DeviceRemoveResponse, error) {
	pathParams := map[string]string{"id": fmt.Sprintf("%d", busID)}
	line, err := c.transport.DoCtx(ctx, "bus/{id}/remove", devID, pathParams)
	if err != nil {
		return nil, err
	}
	return Parse[apitypes.DeviceRemoveResponse](line)
}

// DevicesList retrieves a list of all devices attached to the specified bus.
func (c *Client) DevicesList(ctx context.Context, busID uint32) (*apitypes.DevicesListResponse, error) {
	pathParams := map[string]string{"id": fmt.Sprintf("%d", busID)}
	line, err := c.transport.DoCtx(ctx, "bus/{id}/list", nil, pathParams)
	if err != nil {
		return nil, err
	}
	return Parse[apitypes.DevicesListResponse](line)
}

// Parse decodes a response line into T. Error lines and unknown fields are
// rejected.
func Parse[T any](line string) (*T, error) {
	if line == "" {
		return nil, errors.New("empty response")
	}
	var ae apitypes.ApiError
	if err := json.Unmarshal([]byte(line), &ae); err == nil && ae.Error != "" {
		return nil, errors.New(ae.Error)
	}
	var out T
	dec := json.NewDecoder(bytes.NewReader([]byte(line)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &out, nil
}
