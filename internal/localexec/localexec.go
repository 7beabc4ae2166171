// Package localexec implements the bridge to the co-located inference
// backend: a fixed local TCP peer that performs model execution.
package localexec

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/gulis1/edge-inference-fabric/internal/constants"
)

// Bridge dials the configured local inference backend per request.
type Bridge struct {
	addr   string
	dialer net.Dialer
}

// New creates a Bridge targeting the given local backend address.
func New(addr string) *Bridge {
	return &Bridge{addr: addr}
}

// Run executes one inference request against the local backend:
//  1. dial
//  2. write u32 model_name_len, model_name bytes, content raw
//  3. half-close the write side
//  4. read to EOF as the model output
//  5. append "Model: <name>" as an optional trailing debug tag
//
// Failure to connect, write, or read is surfaced as an error; the
// caller is responsible for recording the resulting request outcome
// against the self-endpoint.
func (b *Bridge) Run(ctx context.Context, modelName string, content []byte) ([]byte, error) {
	conn, err := b.dialer.DialContext(ctx, "tcp", b.addr)
	if err != nil {
		return nil, fmt.Errorf("dialing local backend %s: %w", b.addr, err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(modelName)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return nil, fmt.Errorf("writing model name length: %w", err)
	}
	if _, err := conn.Write([]byte(modelName)); err != nil {
		return nil, fmt.Errorf("writing model name: %w", err)
	}
	if _, err := conn.Write(content); err != nil {
		return nil, fmt.Errorf("writing request content: %w", err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err != nil {
			return nil, fmt.Errorf("half-closing local backend connection: %w", err)
		}
	}

	output, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("reading local backend output: %w", err)
	}

	output = append(output, []byte(constants.LocalModelTagPrefix+modelName)...)
	return output, nil
}
