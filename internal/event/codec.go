package event

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Codec serializes events for a transport.
type Codec interface {
	Name() string
	// Binary reports whether encoded events must travel as binary frames.
	Binary() bool
	Encode(ev Event) ([]byte, error)
	Decode(data []byte) (map[string]any, error)
}

// JSONCodec encodes events as JSON objects. Image bytes become base64.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }
func (JSONCodec) Binary() bool { return false }

func (JSONCodec) Encode(ev Event) ([]byte, error) {
	return json.Marshal(ev.Map())
}

func (JSONCodec) Decode(data []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

var cborDecMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// CBORCodec encodes events as CBOR maps. Image bytes stay raw.
type CBORCodec struct{}

func (CBORCodec) Name() string { return "cbor" }
func (CBORCodec) Binary() bool { return true }

func (CBORCodec) Encode(ev Event) ([]byte, error) {
	return cbor.Marshal(ev.Map())
}

func (CBORCodec) Decode(data []byte) (map[string]any, error) {
	var m map[string]any
	if err := cborDecMode.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	}
	return nil, fmt.Errorf("unknown event codec %q", name)
}
