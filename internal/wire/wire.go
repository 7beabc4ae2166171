// Package wire implements the proxy's binary, length-prefixed request
// protocol: big-endian integers over a single TCP connection per request.
// Field order and sizes mirror the teacher's direct byte-level decoding
// style (fixed-layout, hand-decoded, no reflection-based framework).
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// SimpleContext is the canonical policy-specific request payload.
type SimpleContext struct {
	Priority uint32
	Accuracy uint32
	// Model is optional; zero length on the wire means absent.
	Model string
}

// Request is the proxy wire unit.
type Request struct {
	ID             uuid.UUID
	Jumps          uint32
	Context        SimpleContext
	Content        []byte
	PreviousNodes  []uuid.UUID
}

// Decode reads a Request from r in wire order:
//  1. 16 bytes request UUID
//  2. u32 jumps
//  3. u32 priority, u32 accuracy, u32 model_name_len, model_name bytes
//  4. u64 content_len, content bytes
//  5. jumps * 16 bytes previous_nodes
func Decode(r io.Reader) (*Request, error) {
	var idBytes [16]byte
	if _, err := io.ReadFull(r, idBytes[:]); err != nil {
		return nil, fmt.Errorf("reading request id: %w", err)
	}
	id, err := uuid.FromBytes(idBytes[:])
	if err != nil {
		return nil, fmt.Errorf("parsing request id: %w", err)
	}

	jumps, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("reading jumps: %w", err)
	}

	priority, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("reading priority: %w", err)
	}
	accuracy, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("reading accuracy: %w", err)
	}
	modelLen, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("reading model name length: %w", err)
	}
	var model string
	if modelLen > 0 {
		// Always fully read the model name before use — see spec's Open
		// Question about read_exact not being awaited in one source path.
		buf := make([]byte, modelLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("reading model name: %w", err)
		}
		model = string(buf)
	}

	contentLen, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("reading content length: %w", err)
	}
	content := make([]byte, contentLen)
	if contentLen > 0 {
		if _, err := io.ReadFull(r, content); err != nil {
			return nil, fmt.Errorf("reading content: %w", err)
		}
	}

	prev := make([]uuid.UUID, jumps)
	for i := uint32(0); i < jumps; i++ {
		var b [16]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, fmt.Errorf("reading previous_nodes[%d]: %w", i, err)
		}
		pid, err := uuid.FromBytes(b[:])
		if err != nil {
			return nil, fmt.Errorf("parsing previous_nodes[%d]: %w", i, err)
		}
		prev[i] = pid
	}

	return &Request{
		ID:    id,
		Jumps: jumps,
		Context: SimpleContext{
			Priority: priority,
			Accuracy: accuracy,
			Model:    model,
		},
		Content:       content,
		PreviousNodes: prev,
	}, nil
}

// Encode writes req to w in the same order Decode reads it.
func (req *Request) Encode(w io.Writer) error {
	if uint32(len(req.PreviousNodes)) != req.Jumps {
		return fmt.Errorf("jumps %d != len(previous_nodes) %d", req.Jumps, len(req.PreviousNodes))
	}

	idBytes, err := req.ID.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshaling request id: %w", err)
	}
	if _, err := w.Write(idBytes); err != nil {
		return fmt.Errorf("writing request id: %w", err)
	}

	if err := writeU32(w, req.Jumps); err != nil {
		return fmt.Errorf("writing jumps: %w", err)
	}

	if err := writeU32(w, req.Context.Priority); err != nil {
		return fmt.Errorf("writing priority: %w", err)
	}
	if err := writeU32(w, req.Context.Accuracy); err != nil {
		return fmt.Errorf("writing accuracy: %w", err)
	}
	modelBytes := []byte(req.Context.Model)
	if err := writeU32(w, uint32(len(modelBytes))); err != nil {
		return fmt.Errorf("writing model name length: %w", err)
	}
	if len(modelBytes) > 0 {
		if _, err := w.Write(modelBytes); err != nil {
			return fmt.Errorf("writing model name: %w", err)
		}
	}

	if err := writeU64(w, uint64(len(req.Content))); err != nil {
		return fmt.Errorf("writing content length: %w", err)
	}
	if len(req.Content) > 0 {
		if _, err := w.Write(req.Content); err != nil {
			return fmt.Errorf("writing content: %w", err)
		}
	}

	for i, pid := range req.PreviousNodes {
		b, err := pid.MarshalBinary()
		if err != nil {
			return fmt.Errorf("marshaling previous_nodes[%d]: %w", i, err)
		}
		if _, err := w.Write(b); err != nil {
			return fmt.Errorf("writing previous_nodes[%d]: %w", i, err)
		}
	}

	return nil
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}
