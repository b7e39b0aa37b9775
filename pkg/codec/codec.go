// Package codec converts WireRecords to and from the text payload that is
// published to the log broker.
//
// A record is packed as a fixed five element CBOR array (message, group,
// index, channel_name, metadata) and the bytes are then base64 encoded with
// the standard padded alphabet so the payload can travel as a string.
package codec

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// ErrDecode is returned for payloads that are not valid encoded records.
var ErrDecode = errors.New("malformed wire record")

// WireRecord is the externally visible form of one published log entry.
type WireRecord struct {
	_           struct{} `cbor:",toarray"`
	Message     string
	Group       string
	Index       string
	ChannelName string
	Metadata    *string
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// A record is five short strings; anything larger is not ours.
		MaxArrayElements: 16,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode packs record and returns its text safe form. CBOR text strings
// must be valid UTF-8, so invalid byte sequences in any field are replaced
// with U+FFFD; the record stays decodable and the rest of the line survives.
func Encode(record WireRecord) (string, error) {
	record = sanitize(record)
	packed, err := encMode.Marshal(&record)
	if err != nil {
		return "", errors.Wrap(err, "pack wire record")
	}
	return base64.StdEncoding.EncodeToString(packed), nil
}

func sanitize(r WireRecord) WireRecord {
	r.Message = validUTF8(r.Message)
	r.Group = validUTF8(r.Group)
	r.Index = validUTF8(r.Index)
	r.ChannelName = validUTF8(r.ChannelName)
	if r.Metadata != nil && !utf8.ValidString(*r.Metadata) {
		r.Metadata = Metadata(validUTF8(*r.Metadata))
	}
	return r
}

func validUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, string(utf8.RuneError))
}

// Decode reverses Encode. Any malformed input yields an error matching
// ErrDecode.
func Decode(text string) (WireRecord, error) {
	var record WireRecord

	packed, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return record, errors.Wrapf(ErrDecode, "base64: %v", err)
	}
	if len(packed) == 0 {
		return record, errors.Wrap(ErrDecode, "empty payload")
	}

	rest, err := decMode.UnmarshalFirst(packed, &record)
	if err != nil {
		return WireRecord{}, errors.Wrapf(ErrDecode, "cbor: %v", err)
	}
	if len(rest) > 0 {
		return WireRecord{}, errors.Wrapf(ErrDecode, "%d trailing bytes", len(rest))
	}
	return record, nil
}

// Metadata returns a pointer to s for use as WireRecord.Metadata.
func Metadata(s string) *string {
	return &s
}
