package cache

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/mcdev12/servicedesk/go/internal/models"
)

// Snapshots are stored with Core Deterministic Encoding so the same active
// set always produces identical bytes.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("cache: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeSnapshot encodes a snapshot for storage.
func EncodeSnapshot(s models.TimerSnapshot) ([]byte, error) {
	return encMode.Marshal(s)
}

// DecodeSnapshot decodes a stored snapshot.
func DecodeSnapshot(data []byte) (*models.TimerSnapshot, error) {
	var s models.TimerSnapshot
	if err := decMode.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
