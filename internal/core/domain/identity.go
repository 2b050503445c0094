package domain

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// GroupUnspecified is assigned when a record carries no usable group.
	GroupUnspecified uint32 = 0xff

	// MaxGroup is the largest group that fits the frame's session field.
	MaxGroup uint32 = 0xff

	// MaxSaltSize bounds stored salts.
	MaxSaltSize = 64

	// MaxVerifierSize bounds stored verifiers (the byte length of the group
	// modulus).
	MaxVerifierSize = 384

	identityRecordVersion = 1
)

// IdentityRecord is the stored authentication material of one identity.
type IdentityRecord struct {
	Identity  uint64
	Salt      []byte
	Verifier  []byte
	Group     uint32
	CreatedAt int64 // Unix milliseconds; zero when the backend does not track it
}

// NewIdentityRecord builds a validated record stamped with the current time.
func NewIdentityRecord(identity uint64, salt, verifier []byte, group uint32) (*IdentityRecord, error) {
	r := &IdentityRecord{
		Identity:  identity,
		Salt:      salt,
		Verifier:  verifier,
		Group:     group,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the record's shape.
func (r *IdentityRecord) Validate() error {
	switch {
	case len(r.Salt) == 0 || len(r.Salt) > MaxSaltSize:
		return ErrIdentityValidation.WithDetails(fmt.Sprintf("salt must be 1..%d bytes", MaxSaltSize))
	case len(r.Verifier) == 0 || len(r.Verifier) > MaxVerifierSize:
		return ErrIdentityValidation.WithDetails(fmt.Sprintf("verifier must be 1..%d bytes", MaxVerifierSize))
	case r.Group > MaxGroup:
		return ErrIdentityValidation.WithDetails(fmt.Sprintf("group must be 0..%d", MaxGroup))
	}
	return nil
}

// MarshalBinary encodes the record as
// [version u8][group u32][created i64][saltLen u16][salt][verifierLen u16][verifier].
// The identity itself is the storage key and is not encoded.
func (r *IdentityRecord) MarshalBinary() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 1+4+8+2+len(r.Salt)+2+len(r.Verifier))
	buf = append(buf, identityRecordVersion)
	buf = binary.BigEndian.AppendUint32(buf, r.Group)
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.CreatedAt))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(r.Salt)))
	buf = append(buf, r.Salt...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(r.Verifier)))
	buf = append(buf, r.Verifier...)
	return buf, nil
}

// UnmarshalBinary decodes the output of MarshalBinary. Identity is left
// untouched.
func (r *IdentityRecord) UnmarshalBinary(data []byte) error {
	const fixed = 1 + 4 + 8 + 2
	if len(data) < fixed {
		return ErrIdentityValidation.WithDetails("record truncated")
	}
	if data[0] != identityRecordVersion {
		return ErrIdentityValidation.WithDetails(fmt.Sprintf("unsupported record version %d", data[0]))
	}
	group := binary.BigEndian.Uint32(data[1:])
	created := int64(binary.BigEndian.Uint64(data[5:]))
	rest := data[13:]

	saltLen := int(binary.BigEndian.Uint16(rest))
	rest = rest[2:]
	if len(rest) < saltLen+2 {
		return ErrIdentityValidation.WithDetails("record truncated")
	}
	salt := append([]byte(nil), rest[:saltLen]...)
	rest = rest[saltLen:]

	verifierLen := int(binary.BigEndian.Uint16(rest))
	rest = rest[2:]
	if len(rest) != verifierLen {
		return ErrIdentityValidation.WithDetails("verifier length mismatch")
	}

	r.Group = group
	r.CreatedAt = created
	r.Salt = salt
	r.Verifier = append([]byte(nil), rest...)
	return r.Validate()
}

// Clone returns a deep copy.
func (r *IdentityRecord) Clone() *IdentityRecord {
	return &IdentityRecord{
		Identity:  r.Identity,
		Salt:      append([]byte(nil), r.Salt...),
		Verifier:  append([]byte(nil), r.Verifier...),
		Group:     r.Group,
		CreatedAt: r.CreatedAt,
	}
}
