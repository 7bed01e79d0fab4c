package search

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/severstroy/matcat/domain/fault"
)

// Cursor marks a position in a sorted result set: the sort key values of
// the last returned row plus its id as the final tie-break.
type Cursor struct {
	sortKeys []string
	lastID   string
}

// NewCursor creates a Cursor.
func NewCursor(sortKeys []string, lastID string) Cursor {
	return Cursor{sortKeys: append([]string(nil), sortKeys...), lastID: lastID}
}

// SortKeys returns the recorded sort key values.
func (c Cursor) SortKeys() []string { return append([]string(nil), c.sortKeys...) }

// LastID returns the id of the last returned row.
func (c Cursor) LastID() string { return c.lastID }

// cursorPayload is the wire form of a cursor.
type cursorPayload struct {
	Keys   []string `json:"k"`
	LastID string   `json:"id"`
}

// CursorCodec signs and verifies opaque cursor tokens with a process-local
// HMAC-SHA256 secret. Only the signature is trusted; any decode failure is
// an InvalidCursor fault.
type CursorCodec struct {
	secret []byte
}

// NewCursorCodec creates a codec. An empty secret generates a random
// process-local one, which invalidates cursors across restarts.
func NewCursorCodec(secret []byte) CursorCodec {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
	}
	cp := make([]byte, len(secret))
	copy(cp, secret)
	return CursorCodec{secret: cp}
}

// Encode serializes and signs a cursor.
func (c CursorCodec) Encode(cur Cursor) string {
	payload, _ := json.Marshal(cursorPayload{Keys: cur.sortKeys, LastID: cur.lastID})
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + base64.RawURLEncoding.EncodeToString(c.sign(payload))
}

// Decode verifies the signature and deserializes a cursor token.
func (c CursorCodec) Decode(token string) (Cursor, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok {
		return Cursor{}, fault.New(fault.InvalidCursor, "malformed cursor token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Cursor{}, fault.Wrap(fault.InvalidCursor, "cursor payload decode", err)
	}
	gotSig, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return Cursor{}, fault.Wrap(fault.InvalidCursor, "cursor signature decode", err)
	}
	if !hmac.Equal(gotSig, c.sign(payload)) {
		return Cursor{}, fault.New(fault.InvalidCursor, "cursor signature mismatch")
	}
	var p cursorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Cursor{}, fault.Wrap(fault.InvalidCursor, "cursor payload unmarshal", err)
	}
	return Cursor{sortKeys: p.Keys, lastID: p.LastID}, nil
}

func (c CursorCodec) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
