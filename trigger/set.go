// Copyright 2019 The go-daq Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trigger // import "github.com/go-daq/tdaq-trigger/trigger"

import (
	"bytes"

	"github.com/go-daq/tdaq-trigger/wire"
)

// Set is the transport unit between streaming stages: a run of Carrier
// values from a single origin stream, covering a half-open time window
// [StartTime, EndTime), or a Heartbeat asserting "no data up to
// StartTime" (in which case Objects is empty and StartTime == EndTime).
type Set[T Carrier] struct {
	Origin    StreamId
	RunNumber uint32
	SeqNo     uint64
	StartTime Timestamp
	EndTime   Timestamp
	Kind      SetKind
	Objects   []T
}

// IsHeartbeat reports whether this Set carries no payload.
func (s Set[T]) IsHeartbeat() bool { return s.Kind == Heartbeat }

// NewHeartbeat builds a heartbeat Set at time t for the given origin.
func NewHeartbeat[T Carrier](origin StreamId, run uint32, seqno uint64, t Timestamp) Set[T] {
	return Set[T]{
		Origin:    origin,
		RunNumber: run,
		SeqNo:     seqno,
		StartTime: t,
		EndTime:   t,
		Kind:      Heartbeat,
	}
}

// marshalObj marshals a single Carrier value, used to keep Set[T]'s own
// marshaling generic without type-switching on T.
func marshalObj(v Marshaler) ([]byte, error) { return v.MarshalTDAQ() }

func (s Set[T]) MarshalTDAQ() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := wire.NewEncoder(buf)
	enc.WriteU64(uint64(s.Origin))
	enc.WriteU32(s.RunNumber)
	enc.WriteU64(s.SeqNo)
	enc.WriteU64(uint64(s.StartTime))
	enc.WriteU64(uint64(s.EndTime))
	enc.WriteU8(uint8(s.Kind))
	enc.WriteU64(uint64(len(s.Objects)))
	for _, obj := range s.Objects {
		raw, err := marshalObj(obj)
		if err != nil {
			return nil, err
		}
		enc.WriteBytes(raw)
	}
	return buf.Bytes(), enc.Err()
}

// UnmarshalTDAQ decodes a Set's envelope and raw object payloads. The
// caller supplies unmarshal, since Go generics cannot construct a new
// *T without a factory.
func (s *Set[T]) UnmarshalTDAQ(p []byte, unmarshal func([]byte) (T, error)) error {
	dec := wire.NewDecoder(bytes.NewReader(p))
	s.Origin = StreamId(dec.ReadU64())
	s.RunNumber = dec.ReadU32()
	s.SeqNo = dec.ReadU64()
	s.StartTime = Timestamp(dec.ReadU64())
	s.EndTime = Timestamp(dec.ReadU64())
	s.Kind = SetKind(dec.ReadU8())

	n := int(dec.ReadU64())
	s.Objects = make([]T, 0, n)
	for i := 0; i < n; i++ {
		raw := dec.ReadBytes()
		if dec.Err() != nil {
			return dec.Err()
		}
		obj, err := unmarshal(raw)
		if err != nil {
			return err
		}
		s.Objects = append(s.Objects, obj)
	}
	return dec.Err()
}
