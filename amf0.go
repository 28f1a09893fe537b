// Encoding / Decoding for AMF0

package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Types actually produced or consumed on the wire by this server. The RTMP
// command set this server handles never needs Date, References, strict
// arrays, typed objects, long strings or the AMF3 switch marker, so those
// AMF0 variants (present in richer RTMP relays) are not implemented here.
const AMF0_TYPE_NUMBER = 0x00
const AMF0_TYPE_BOOL = 0x01
const AMF0_TYPE_STRING = 0x02
const AMF0_TYPE_OBJECT = 0x03
const AMF0_TYPE_NULL = 0x05
const AMF0_TYPE_UNDEFINED = 0x06
const AMF0_TYPE_ARRAY = 0x08

const AMF0_OBJECT_TERM_CODE = 0x09

type AMF0Value struct {
	amf_type  byte
	bool_val  bool
	str_val   string
	float_val float64
	obj_val   map[string]*AMF0Value
}

func (v *AMF0Value) ToString(tabs string) string {
	switch v.amf_type {
	case AMF0_TYPE_NULL:
		return "NULL"
	case AMF0_TYPE_UNDEFINED:
		return "UNDEFINED"
	case AMF0_TYPE_BOOL:
		if v.bool_val {
			return "TRUE"
		}
		return "FALSE"
	case AMF0_TYPE_STRING:
		return "'" + v.str_val + "'"
	case AMF0_TYPE_NUMBER:
		return fmt.Sprintf("%f", v.float_val)
	case AMF0_TYPE_OBJECT:
		str := "{\n"
		for key, val := range v.obj_val {
			str += tabs + "    '" + key + "' = " + val.ToString(tabs+"    ") + "\n"
		}
		str += tabs + "}"
		return str
	case AMF0_TYPE_ARRAY:
		str := " ARRAY [\n"
		for key, val := range v.obj_val {
			str += tabs + "    '" + key + "' = " + val.ToString(tabs+"    ") + "\n"
		}
		str += tabs + "]"
		return str
	default:
		return "UNKNOWN_TYPE"
	}
}

func (v *AMF0Value) IsNull() bool {
	return v.amf_type == AMF0_TYPE_NULL || v.amf_type == AMF0_TYPE_UNDEFINED
}

func (v *AMF0Value) GetDouble() float64 {
	return v.float_val
}

func (v *AMF0Value) GetString() string {
	return v.str_val
}

func (v *AMF0Value) GetObject() map[string]*AMF0Value {
	return v.obj_val
}

func (v *AMF0Value) GetProperty(propName string) *AMF0Value {
	o := v.GetObject()
	if o == nil {
		n := createAMF0Value(AMF0_TYPE_UNDEFINED)
		return &n
	}
	p := o[propName]
	if p != nil {
		return p
	}
	n := createAMF0Value(AMF0_TYPE_UNDEFINED)
	return &n
}

func createAMF0Value(amf_type byte) AMF0Value {
	return AMF0Value{
		amf_type: amf_type,
		obj_val:  make(map[string]*AMF0Value),
	}
}

func amf0Number(n float64) *AMF0Value {
	v := createAMF0Value(AMF0_TYPE_NUMBER)
	v.float_val = n
	return &v
}

func amf0String(s string) *AMF0Value {
	v := createAMF0Value(AMF0_TYPE_STRING)
	v.str_val = s
	return &v
}

func amf0Bool(b bool) *AMF0Value {
	v := createAMF0Value(AMF0_TYPE_BOOL)
	v.bool_val = b
	return &v
}

func amf0Null() *AMF0Value {
	return &AMF0Value{amf_type: AMF0_TYPE_NULL}
}

func amf0Object(fields map[string]*AMF0Value) *AMF0Value {
	v := createAMF0Value(AMF0_TYPE_OBJECT)
	v.obj_val = fields
	return &v
}

/* Encoding */

func amf0EncodeOne(val AMF0Value) []byte {
	result := []byte{val.amf_type}

	switch val.amf_type {
	case AMF0_TYPE_NUMBER:
		result = append(result, amf0EncodeNumber(val.float_val)...)
	case AMF0_TYPE_BOOL:
		result = append(result, amf0EncodeBool(val.bool_val)...)
	case AMF0_TYPE_STRING:
		result = append(result, amf0EncodeString(val.str_val)...)
	case AMF0_TYPE_OBJECT:
		result = append(result, amf0EncodeObject(val.obj_val)...)
	case AMF0_TYPE_ARRAY:
		result = append(result, amf0EncodeArray(val.obj_val)...)
	}

	return result
}

func amf0EncodeNumber(num float64) []byte {
	b := make([]byte, 8)
	i := math.Float64bits(num)
	binary.BigEndian.PutUint64(b, i)
	return b
}

func amf0EncodeBool(b bool) []byte {
	if b {
		return []byte{0x01}
	}
	return []byte{0x00}
}

func amf0EncodeString(str string) []byte {
	b := []byte(str)
	l := make([]byte, 2)
	binary.BigEndian.PutUint16(l, uint16(len(b)))
	return append(l, b...)
}

func amf0EncodeObject(o map[string]*AMF0Value) []byte {
	r := make([]byte, 0)

	keys := make([]string, len(o))
	i := 0
	for k := range o {
		keys[i] = k
		i++
	}
	sort.Strings(keys)

	for _, key := range keys {
		element := o[key]
		r = append(r, amf0EncodeString(key)...)
		r = append(r, amf0EncodeOne(*element)...)
	}

	r = append(r, amf0EncodeString("")...)
	r = append(r, AMF0_OBJECT_TERM_CODE)

	return r
}

func amf0EncodeArray(o map[string]*AMF0Value) []byte {
	r := make([]byte, 4)
	binary.BigEndian.PutUint32(r, uint32(len(o)))
	return append(r, amf0EncodeObject(o)...)
}

/* Decoding */

type AMFDecodingStream struct {
	buffer []byte
	pos    int
}

func (s *AMFDecodingStream) Read(n int) []byte {
	if s.pos+n > len(s.buffer) {
		r := s.buffer[s.pos:]
		s.pos = len(s.buffer)
		return r
	}
	r := s.buffer[s.pos:(s.pos + n)]
	s.pos += n
	return r
}

func (s *AMFDecodingStream) Look(n int) []byte {
	if s.pos+n > len(s.buffer) {
		return s.buffer[s.pos:]
	}
	return s.buffer[s.pos:(s.pos + n)]
}

func (s *AMFDecodingStream) Skip(n int) {
	s.pos += n
}

func (s *AMFDecodingStream) IsEnded() bool {
	return s.pos >= len(s.buffer)
}

// ReadOne decodes the next AMF0 value. Type 0x11 (the AMF3 switch marker)
// never reaches here: callers of type-17 (FLEX_MESSAGE) messages skip its
// leading byte before handing the rest to this decoder, per the RTMP
// command-message convention this server follows (see session.go).
func (s *AMFDecodingStream) ReadOne() AMF0Value {
	if s.IsEnded() {
		return createAMF0Value(AMF0_TYPE_UNDEFINED)
	}

	amf_type := s.Read(1)[0]
	r := createAMF0Value(amf_type)
	switch amf_type {
	case AMF0_TYPE_NUMBER:
		r.float_val = s.ReadNumber()
	case AMF0_TYPE_BOOL:
		r.bool_val = s.ReadBool()
	case AMF0_TYPE_STRING:
		r.str_val = s.ReadString()
	case AMF0_TYPE_OBJECT:
		r.obj_val = s.ReadObject()
	case AMF0_TYPE_ARRAY:
		r.obj_val = s.ReadArray()
	}
	return r
}

func (s *AMFDecodingStream) ReadNumber() float64 {
	buf := s.Read(8)
	if len(buf) < 8 {
		return 0
	}
	a := binary.BigEndian.Uint64(buf)
	return math.Float64frombits(a)
}

func (s *AMFDecodingStream) ReadBool() bool {
	buf := s.Read(1)
	return len(buf) > 0 && buf[0] != 0x00
}

func (s *AMFDecodingStream) ReadString() string {
	lb := s.Read(2)
	if len(lb) < 2 {
		return ""
	}
	l := binary.BigEndian.Uint16(lb)
	strBytes := s.Read(int(l))
	return string(strBytes)
}

func (s *AMFDecodingStream) ReadObject() map[string]*AMF0Value {
	o := make(map[string]*AMF0Value)

	for !s.IsEnded() && s.Look(1)[0] != AMF0_OBJECT_TERM_CODE {
		propName := s.ReadString()

		if s.IsEnded() {
			break
		}

		if s.Look(1)[0] != AMF0_OBJECT_TERM_CODE {
			propVal := s.ReadOne()
			o[propName] = &propVal
		}
	}

	if !s.IsEnded() {
		s.Skip(1) // object terminator
	}

	return o
}

func (s *AMFDecodingStream) ReadArray() map[string]*AMF0Value {
	s.Skip(4) // ECMA-array element count, not needed: the object
	// is still terminated by the usual 00 00 09 marker.
	return s.ReadObject()
}
