package rpc

import (
	"fmt"
	"io"
)

// Transport names accepted by NewInvoker.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// ClosableInvoker is an Invoker holding network resources.
type ClosableInvoker interface {
	Invoker
	io.Closer
}

// NewInvoker creates the collaborator for the named transport.
func NewInvoker(transport string, opts Options) (ClosableInvoker, error) {
	switch transport {
	case "", TransportHTTP:
		return NewHTTPInvoker(opts), nil
	case TransportGRPC:
		if opts.Target == "" {
			return nil, fmt.Errorf("grpc transport requires a target")
		}
		return NewGRPCInvoker(opts), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}
