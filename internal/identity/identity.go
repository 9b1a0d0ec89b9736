package identity

import (
	"errors"
	"regexp"
	"strings"
)

// Kind classifies a normalized identifier.
type Kind string

const (
	KindRegNo  Kind = "reg_no"
	KindMember Kind = "member"
	KindPhone  Kind = "phone"
)

// Field names the session store column an identity is looked up by.
// Registration numbers and IEDC membership codes share the reg_no column.
type Field string

const (
	FieldRegNo Field = "reg_no"
	FieldPhone Field = "phone"
)

// Identity is a validated, normalized visitor identifier.
type Identity struct {
	Kind  Kind
	Field Field
	Value string
}

var (
	ErrInvalidIdentifier = errors.New("invalid registration number or phone number")
	ErrInvalidRegNo      = errors.New("invalid registration number format")
	ErrInvalidMemberID   = errors.New("invalid membership ID format")
)

var (
	regNoRe  = regexp.MustCompile(`^KSD(2[0-9])(IT|CS|CE|ME|EC|EE|CB|AI)\d{3}$`)
	memberRe = regexp.MustCompile(`^IEDC[0-9A-Z]+$`)
	phoneRe  = regexp.MustCompile(`^[6-9]\d{9}$`)
)

// clean uppercases and strips all whitespace.
func clean(raw string) string {
	return strings.Join(strings.Fields(strings.ToUpper(strings.TrimSpace(raw))), "")
}

// Normalize validates a raw identifier and returns its typed form.
// Registration numbers win over phone numbers; the patterns cannot overlap.
func Normalize(raw string) (Identity, error) {
	v := clean(raw)
	switch {
	case regNoRe.MatchString(v):
		return Identity{Kind: KindRegNo, Field: FieldRegNo, Value: v}, nil
	case memberRe.MatchString(v):
		return Identity{Kind: KindMember, Field: FieldRegNo, Value: v}, nil
	case phoneRe.MatchString(v):
		return Identity{Kind: KindPhone, Field: FieldPhone, Value: v}, nil
	}
	return Identity{}, ErrInvalidIdentifier
}

// NormalizeRegNo accepts only a student registration number.
func NormalizeRegNo(raw string) (Identity, error) {
	v := clean(raw)
	if !regNoRe.MatchString(v) {
		return Identity{}, ErrInvalidRegNo
	}
	return Identity{Kind: KindRegNo, Field: FieldRegNo, Value: v}, nil
}

// NormalizeMemberID accepts only an IEDC membership code.
func NormalizeMemberID(raw string) (Identity, error) {
	v := clean(raw)
	if !memberRe.MatchString(v) {
		return Identity{}, ErrInvalidMemberID
	}
	return Identity{Kind: KindMember, Field: FieldRegNo, Value: v}, nil
}
