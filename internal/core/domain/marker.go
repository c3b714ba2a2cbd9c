package domain

import (
	"errors"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.trai.ch/zerr"
)

// MarkerVersion is the current encoding version of Marker.
const MarkerVersion = 1

// Marker is the body of a cache marker object.
// The existence of the marker is what makes an entry valid; the body only lets readers
// locate and verify the artifact.
type Marker struct {
	Version     int               `cbor:"1,keyasint"`
	CacheKey    string            `cbor:"2,keyasint"`
	ArtifactKey string            `cbor:"3,keyasint"`
	Compression Compression       `cbor:"4,keyasint"`
	Size        int64             `cbor:"5,keyasint"`
	Digest      string            `cbor:"6,keyasint"`
	Parameters  map[string]string `cbor:"7,keyasint,omitempty"`
	CreatedAt   time.Time         `cbor:"8,keyasint"`
}

var (
	markerEncMode cbor.EncMode
	markerDecMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	markerEncMode, err = encOptions.EncMode()
	if err != nil {
		panic("domain: CBOR encoder initialization failed: " + err.Error())
	}

	markerDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("domain: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeMarker serialises m with deterministic CBOR.
func EncodeMarker(m *Marker) ([]byte, error) {
	data, err := markerEncMode.Marshal(m)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to encode cache marker")
	}
	return data, nil
}

// DecodeMarker parses a marker body.
func DecodeMarker(data []byte) (*Marker, error) {
	var m Marker
	if err := markerDecMode.Unmarshal(data, &m); err != nil {
		return nil, zerr.Wrap(errors.Join(ErrMarkerDecode, err), "invalid marker body")
	}
	return &m, nil
}
