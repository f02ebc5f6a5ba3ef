// Copyright 2020 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package export implements the wire format of the TemporaryExposureKeyExport
// and TEKSignatureList messages used by the Google/Apple Exposure
// Notification export protocol.
//
// The real schema is defined by a .proto file and normally compiled with
// protoc. Since this module cannot invoke the Go protobuf code generator,
// the messages below are hand-encoded directly against the wire format
// using google.golang.org/protobuf/encoding/protowire — the same low-level
// package protoc-gen-go's output calls into. Field numbers and wire types
// match the public schema exactly, so the bytes these types produce are
// read correctly by any standard exposure-notification client.
package export

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Int32 returns a pointer to v, for populating optional int32 fields.
func Int32(v int32) *int32 { return &v }

// String returns a pointer to v, for populating optional string fields.
func String(v string) *string { return &v }

// Uint64 returns a pointer to v, for populating optional uint64 fields.
func Uint64(v uint64) *uint64 { return &v }

// ReportType mirrors the public TemporaryExposureKey.ReportType enum.
type ReportType int32

const (
	ReportType_UNKNOWN                     ReportType = 0
	ReportType_CONFIRMED_TEST              ReportType = 1
	ReportType_CONFIRMED_CLINICAL_DIAGNOSIS ReportType = 2
	ReportType_SELF_REPORT                 ReportType = 3
	ReportType_RECURSIVE                   ReportType = 4
	ReportType_REVOKED                     ReportType = 5
)

// Enum returns a pointer to r, mirroring the generated-code convention for
// proto3 enum fields.
func (r ReportType) Enum() *ReportType { return &r }

// TemporaryExposureKey is one rotating key entry in an export.
type TemporaryExposureKey struct {
	KeyData                    []byte
	TransmissionRiskLevel      *int32
	RollingStartIntervalNumber *int32
	RollingPeriod              *int32
	ReportType                 *ReportType
	DaysSinceOnsetOfSymptoms   *int32
}

func (k *TemporaryExposureKey) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, k.KeyData)
	if k.TransmissionRiskLevel != nil {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(*k.TransmissionRiskLevel)))
	}
	if k.RollingStartIntervalNumber != nil {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(*k.RollingStartIntervalNumber)))
	}
	if k.RollingPeriod != nil {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(*k.RollingPeriod)))
	}
	if k.ReportType != nil {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(*k.ReportType)))
	}
	if k.DaysSinceOnsetOfSymptoms != nil {
		b = protowire.AppendTag(b, 6, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(*k.DaysSinceOnsetOfSymptoms)))
	}
	return b
}

func unmarshalTemporaryExposureKey(buf []byte) (*TemporaryExposureKey, error) {
	k := new(TemporaryExposureKey)
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		buf = buf[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			k.KeyData = append([]byte(nil), v...)
			buf = buf[n:]
		case 2:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			vv := int32(v)
			k.TransmissionRiskLevel = &vv
			buf = buf[n:]
		case 3:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			vv := int32(v)
			k.RollingStartIntervalNumber = &vv
			buf = buf[n:]
		case 4:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			vv := int32(v)
			k.RollingPeriod = &vv
			buf = buf[n:]
		case 5:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			vv := ReportType(v)
			k.ReportType = &vv
			buf = buf[n:]
		case 6:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			vv := int32(v)
			k.DaysSinceOnsetOfSymptoms = &vv
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			buf = buf[n:]
		}
	}
	return k, nil
}

// SignatureInfo describes the key used to produce a TEKSignature.
type SignatureInfo struct {
	SignatureAlgorithm     *string
	VerificationKeyVersion *string
	VerificationKeyId      *string
}

func (s *SignatureInfo) marshal() []byte {
	var b []byte
	if s.SignatureAlgorithm != nil {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, *s.SignatureAlgorithm)
	}
	if s.VerificationKeyVersion != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, *s.VerificationKeyVersion)
	}
	if s.VerificationKeyId != nil {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, *s.VerificationKeyId)
	}
	return b
}

func unmarshalSignatureInfo(buf []byte) (*SignatureInfo, error) {
	s := new(SignatureInfo)
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		buf = buf[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeString(buf)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			s.SignatureAlgorithm = &v
			buf = buf[n:]
		case 2:
			v, n := protowire.ConsumeString(buf)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			s.VerificationKeyVersion = &v
			buf = buf[n:]
		case 3:
			v, n := protowire.ConsumeString(buf)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			s.VerificationKeyId = &v
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			buf = buf[n:]
		}
	}
	return s, nil
}

// TemporaryExposureKeyExport is the export.bin payload (minus the 16-byte
// ASCII header, which the caller prepends separately).
type TemporaryExposureKeyExport struct {
	StartTimestamp *uint64
	EndTimestamp   *uint64
	Region         *string
	BatchNum       *int32
	BatchSize      *int32
	SignatureInfos []*SignatureInfo
	Keys           []*TemporaryExposureKey
	RevisedKeys    []*TemporaryExposureKey
}

// Marshal encodes e per the TemporaryExposureKeyExport wire schema.
func (e *TemporaryExposureKeyExport) Marshal() ([]byte, error) {
	var b []byte
	if e.StartTimestamp != nil {
		b = protowire.AppendTag(b, 1, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, *e.StartTimestamp)
	}
	if e.EndTimestamp != nil {
		b = protowire.AppendTag(b, 2, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, *e.EndTimestamp)
	}
	if e.Region != nil {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, *e.Region)
	}
	if e.BatchNum != nil {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(*e.BatchNum)))
	}
	if e.BatchSize != nil {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(*e.BatchSize)))
	}
	for _, si := range e.SignatureInfos {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendBytes(b, si.marshal())
	}
	for _, k := range e.Keys {
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendBytes(b, k.marshal())
	}
	for _, k := range e.RevisedKeys {
		b = protowire.AppendTag(b, 8, protowire.BytesType)
		b = protowire.AppendBytes(b, k.marshal())
	}
	return b, nil
}

// Unmarshal decodes buf (the export.bin payload minus its ASCII header)
// into e.
func (e *TemporaryExposureKeyExport) Unmarshal(buf []byte) error {
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return protowire.ParseError(n)
		}
		buf = buf[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeFixed64(buf)
			if n < 0 {
				return protowire.ParseError(n)
			}
			e.StartTimestamp = &v
			buf = buf[n:]
		case 2:
			v, n := protowire.ConsumeFixed64(buf)
			if n < 0 {
				return protowire.ParseError(n)
			}
			e.EndTimestamp = &v
			buf = buf[n:]
		case 3:
			v, n := protowire.ConsumeString(buf)
			if n < 0 {
				return protowire.ParseError(n)
			}
			e.Region = &v
			buf = buf[n:]
		case 4:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return protowire.ParseError(n)
			}
			vv := int32(v)
			e.BatchNum = &vv
			buf = buf[n:]
		case 5:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return protowire.ParseError(n)
			}
			vv := int32(v)
			e.BatchSize = &vv
			buf = buf[n:]
		case 6:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return protowire.ParseError(n)
			}
			si, err := unmarshalSignatureInfo(v)
			if err != nil {
				return err
			}
			e.SignatureInfos = append(e.SignatureInfos, si)
			buf = buf[n:]
		case 7:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return protowire.ParseError(n)
			}
			k, err := unmarshalTemporaryExposureKey(v)
			if err != nil {
				return err
			}
			e.Keys = append(e.Keys, k)
			buf = buf[n:]
		case 8:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return protowire.ParseError(n)
			}
			k, err := unmarshalTemporaryExposureKey(v)
			if err != nil {
				return err
			}
			e.RevisedKeys = append(e.RevisedKeys, k)
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return protowire.ParseError(n)
			}
			buf = buf[n:]
		}
	}
	return nil
}

// TEKSignature is one signature entry in export.sig.
type TEKSignature struct {
	SignatureInfo *SignatureInfo
	BatchNum      *int32
	BatchSize     *int32
	Signature     []byte
}

func (s *TEKSignature) marshal() []byte {
	var b []byte
	if s.SignatureInfo != nil {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, s.SignatureInfo.marshal())
	}
	if s.BatchNum != nil {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(*s.BatchNum)))
	}
	if s.BatchSize != nil {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(*s.BatchSize)))
	}
	if s.Signature != nil {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, s.Signature)
	}
	return b
}

func unmarshalTEKSignature(buf []byte) (*TEKSignature, error) {
	s := new(TEKSignature)
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		buf = buf[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			si, err := unmarshalSignatureInfo(v)
			if err != nil {
				return nil, err
			}
			s.SignatureInfo = si
			buf = buf[n:]
		case 2:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			vv := int32(v)
			s.BatchNum = &vv
			buf = buf[n:]
		case 3:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			vv := int32(v)
			s.BatchSize = &vv
			buf = buf[n:]
		case 4:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			s.Signature = append([]byte(nil), v...)
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			buf = buf[n:]
		}
	}
	return s, nil
}

// TEKSignatureList is the export.sig payload.
type TEKSignatureList struct {
	Signatures []*TEKSignature
}

// Marshal encodes l per the TEKSignatureList wire schema.
func (l *TEKSignatureList) Marshal() ([]byte, error) {
	var b []byte
	for _, s := range l.Signatures {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, s.marshal())
	}
	return b, nil
}

// Unmarshal decodes buf into l.
func (l *TEKSignatureList) Unmarshal(buf []byte) error {
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return protowire.ParseError(n)
		}
		buf = buf[n:]
		if num != 1 {
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return protowire.ParseError(n)
			}
			buf = buf[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(buf)
		if n < 0 {
			return protowire.ParseError(n)
		}
		s, err := unmarshalTEKSignature(v)
		if err != nil {
			return fmt.Errorf("decoding TEKSignature: %w", err)
		}
		l.Signatures = append(l.Signatures, s)
		buf = buf[n:]
	}
	return nil
}
