// Package identity implements the LCP UserId: a fixed 20-byte peer
// identifier, its normalization rules, and a human-typeable display form.
package identity

import (
	"bytes"
	"encoding/base32"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lanchat/lcpnode/internal/identity/luhn"
)

// globalLiteral is the persisted-state spelling of the broadcast id, per
// spec §6: "UserIds are stored as the UTF-8 decoding of their non-null
// prefix" — which the all-0xFF broadcast id has none of, so persisted
// history instead names it explicitly.
const globalLiteral = "*global*"

// Size is the wire width of a UserID, in bytes.
const Size = 20

// UserID is the 20-byte identifier of an LCP peer.
type UserID [Size]byte

// Broadcast is the sentinel id meaning "every peer" — 20 bytes of 0xFF.
var Broadcast = UserID{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// Normalize builds a UserID from an arbitrary-length textual id: shorter
// strings are right-padded with 0x00, longer ones are truncated to Size.
func Normalize(s string) UserID {
	var id UserID
	copy(id[:], s)
	return id
}

// String strips the normalization padding and returns the UTF-8 decoding
// of the non-null prefix, per the persisted-state layout rule in §6.
func (id UserID) String() string {
	n := bytes.IndexByte(id[:], 0)
	if n < 0 {
		n = Size
	}
	return string(id[:n])
}

// Equal reports byte-equality on the 20-byte wire form.
func (id UserID) Equal(other UserID) bool {
	return id == other
}

// IsBroadcast reports whether id is the broadcast sentinel.
func (id UserID) IsBroadcast() bool {
	return id == Broadcast
}

// Display returns a checksummed, chunked, human-typeable form of id,
// narrowing the teacher codebase's 32-byte/4-chunk device-id scheme to
// this protocol's 20-byte id: the 32-character base32 encoding split into
// four 8-character groups, each followed by a Luhn-mod-32 check character.
func (id UserID) Display() string {
	s := base32.StdEncoding.EncodeToString(id[:]) // 32 chars, no padding
	chunks := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		p := s[i*8 : i*8+8]
		c, err := luhn.Base32.Generate(p)
		if err != nil {
			panic(err) // the alphabet is fixed and always valid
		}
		chunks = append(chunks, fmt.Sprintf("%s%c", p, c))
	}
	return strings.Join(chunks, "-")
}

// MarshalJSON persists id as the UTF-8 decoding of its non-null prefix, or
// as the literal "*global*" for the broadcast sentinel, per spec §6.
func (id UserID) MarshalJSON() ([]byte, error) {
	if id.IsBroadcast() {
		return json.Marshal(globalLiteral)
	}
	return json.Marshal(id.String())
}

// UnmarshalJSON reverses MarshalJSON.
func (id *UserID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == globalLiteral {
		*id = Broadcast
		return nil
	}
	*id = Normalize(s)
	return nil
}

var errBadDisplayForm = errors.New("identity: invalid display form")

var chunkPattern = regexp.MustCompile(`^[A-Z2-7]{9}$`)

// ParseDisplay parses the string produced by Display, validating each
// chunk's check character.
func ParseDisplay(s string) (UserID, error) {
	s = strings.ToUpper(strings.ReplaceAll(s, " ", ""))
	parts := strings.Split(s, "-")
	if len(parts) != 4 {
		return UserID{}, errBadDisplayForm
	}
	var raw strings.Builder
	for _, p := range parts {
		if !chunkPattern.MatchString(p) {
			return UserID{}, errBadDisplayForm
		}
		if !luhn.Base32.Validate(p) {
			return UserID{}, errBadDisplayForm
		}
		raw.WriteString(p[:8])
	}
	dec, err := base32.StdEncoding.DecodeString(raw.String())
	if err != nil || len(dec) != Size {
		return UserID{}, errBadDisplayForm
	}
	var id UserID
	copy(id[:], dec)
	return id, nil
}
