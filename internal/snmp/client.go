// Package snmp fetches single scalar values from SNMP v2c agents.
package snmp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"
)

// DefaultTimeout bounds one GET exchange
const DefaultTimeout = 3 * time.Second

// ErrEmptyResult is returned when the agent answered without a usable value
var ErrEmptyResult = errors.New("snmp: empty result")

// Request identifies one value on one agent
type Request struct {
	Host      string
	Port      uint16
	Community string
	OID       string
}

// Client performs SNMP v2c GETs. Each call opens and closes its own UDP
// socket, so a Client is safe for concurrent use.
type Client struct {
	timeout time.Duration
	retries int
}

// NewClient creates a new SNMP client
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{timeout: timeout}
}

// Get fetches the value of req.OID. The exchange is bounded by the client
// timeout and by ctx, whichever ends first.
func (c *Client) Get(ctx context.Context, req Request) (interface{}, error) {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	g := &gosnmp.GoSNMP{
		Context:   ctx,
		Target:    req.Host,
		Port:      req.Port,
		Version:   gosnmp.Version2c,
		Community: req.Community,
		Timeout:   timeout,
		Retries:   c.retries,
		MaxOids:   gosnmp.MaxOids,
	}

	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("snmp connect %s:%d: %w", req.Host, req.Port, err)
	}
	defer g.Conn.Close()

	result, err := g.Get([]string{req.OID})
	if err != nil {
		return nil, fmt.Errorf("snmp get %s from %s:%d: %w", req.OID, req.Host, req.Port, err)
	}

	if result.Error != gosnmp.NoError {
		return nil, fmt.Errorf("snmp get %s from %s:%d: agent error %s", req.OID, req.Host, req.Port, result.Error)
	}

	if len(result.Variables) == 0 {
		return nil, fmt.Errorf("%w: no variables for %s", ErrEmptyResult, req.OID)
	}

	variable := result.Variables[0]
	switch variable.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
		return nil, fmt.Errorf("%w: %s is %s", ErrEmptyResult, req.OID, variable.Type)
	}

	if variable.Value == nil {
		return nil, fmt.Errorf("%w: %s has no value", ErrEmptyResult, req.OID)
	}

	return Normalize(variable), nil
}
