// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Codec converts entry payloads to and from their stored bytes.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Payload format tags. The first byte of every stored payload names the format,
// so any codec can read what another one wrote.
const (
	formatJSON byte = 0x01
	formatZstd byte = 0x02
)

// DefaultCompressionThreshold is the smallest JSON payload ZstdCodec compresses.
const DefaultCompressionThreshold = 512

// JSONCodec stores payloads as plain JSON.
type JSONCodec struct{}

var _ Codec = JSONCodec{}

// Marshal serializes v as tagged JSON.
func (JSONCodec) Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return append([]byte{formatJSON}, raw...), nil
}

// Unmarshal decodes any tagged payload into v.
func (JSONCodec) Unmarshal(data []byte, v any) error {
	return unmarshalPayload(data, v)
}

// ZstdCodec stores payloads as zstd-compressed JSON once they reach Threshold bytes.
// Smaller payloads are stored as plain JSON.
type ZstdCodec struct {
	Threshold int
}

var _ Codec = (*ZstdCodec)(nil)

// NewZstdCodec creates a ZstdCodec. A threshold <= 0 selects DefaultCompressionThreshold.
func NewZstdCodec(threshold int) *ZstdCodec {
	if threshold <= 0 {
		threshold = DefaultCompressionThreshold
	}
	return &ZstdCodec{Threshold: threshold}
}

// Marshal serializes v, compressing when the JSON form is large enough.
func (c *ZstdCodec) Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if len(raw) < c.Threshold {
		return append([]byte{formatJSON}, raw...), nil
	}

	enc := getZstdEncoder()
	defer putZstdEncoder(enc)
	out := make([]byte, 1, len(raw)/2+1)
	out[0] = formatZstd
	return enc.EncodeAll(raw, out), nil
}

// Unmarshal decodes any tagged payload into v.
func (c *ZstdCodec) Unmarshal(data []byte, v any) error {
	return unmarshalPayload(data, v)
}

func unmarshalPayload(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrTruncatedData)
	}

	raw := data[1:]
	switch data[0] {
	case formatJSON:
	case formatZstd:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)
		var err error
		raw, err = dec.DecodeAll(raw, nil)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSerializationFailed, err)
		}
	default:
		return fmt.Errorf("%w: format byte 0x%02x", ErrUnknownCodec, data[0])
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return nil
}

// zstd encoder/decoder pools
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}
