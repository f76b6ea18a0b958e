package blockchain

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"
)

// EventAnchorWriter publishes the digest of a committed ledger event to an
// external chain and returns the submission's transaction hash.
type EventAnchorWriter interface {
	AnchorEvent(ctx context.Context, eventID string, digest [32]byte) (string, error)
}

// Digest is the keccak-256 of an event's canonical payload.
func Digest(payload []byte) [32]byte {
	var out [32]byte
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(payload)
	copy(out[:], h.Sum(nil))
	return out
}

func DigestHex(d [32]byte) string {
	return "0x" + hex.EncodeToString(d[:])
}

type StubWriter struct{}

func NewStubWriter() *StubWriter {
	return &StubWriter{}
}

func (w *StubWriter) AnchorEvent(_ context.Context, eventID string, digest [32]byte) (string, error) {
	if eventID == "" {
		return "", fmt.Errorf("missing event id")
	}
	return fmt.Sprintf("0xstub%x%x", digest[:4], time.Now().UTC().UnixNano()), nil
}
