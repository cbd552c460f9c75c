package fix

import (
	"strconv"
	"time"
)

// FieldType is the semantic type carried by a Field.
type FieldType uint8

const (
	TypeString FieldType = iota
	TypeChar
	TypeInt
	TypeFloat
	TypeBool
	TypeUTCDate
	TypeUTCTimeOnly
	TypeUTCTimestamp
	TypeData
)

func (t FieldType) String() string {
	switch t {
	case TypeChar:
		return "CHAR"
	case TypeInt:
		return "INT"
	case TypeFloat:
		return "FLOAT"
	case TypeBool:
		return "BOOLEAN"
	case TypeUTCDate:
		return "UTCDATEONLY"
	case TypeUTCTimeOnly:
		return "UTCTIMEONLY"
	case TypeUTCTimestamp:
		return "UTCTIMESTAMP"
	case TypeData:
		return "DATA"
	}
	return "STRING"
}

// TimestampPrecision controls the fractional seconds written for
// UTCTimestamp values.
type TimestampPrecision int

const (
	Millis TimestampPrecision = iota
	Seconds
	Micros
	Nanos
)

const (
	utcDateLayout      = "20060102"
	utcTimeOnlyLayout  = "15:04:05"
	utcTimestampLayout = "20060102-15:04:05"
)

// Field is a single tag=value pair. The value is held in wire form and the
// type tag says how to interpret it.
type Field struct {
	Tag   Tag
	Type  FieldType
	Value string
}

func NewStringField(tag Tag, value string) Field {
	return Field{Tag: tag, Type: TypeString, Value: value}
}

func NewCharField(tag Tag, value byte) Field {
	return Field{Tag: tag, Type: TypeChar, Value: string(value)}
}

func NewIntField(tag Tag, value int) Field {
	return Field{Tag: tag, Type: TypeInt, Value: strconv.Itoa(value)}
}

func NewSeqNumField(tag Tag, value uint64) Field {
	return Field{Tag: tag, Type: TypeInt, Value: strconv.FormatUint(value, 10)}
}

func NewFloatField(tag Tag, value float64) Field {
	return Field{Tag: tag, Type: TypeFloat, Value: strconv.FormatFloat(value, 'f', -1, 64)}
}

func NewBoolField(tag Tag, value bool) Field {
	v := "N"
	if value {
		v = "Y"
	}
	return Field{Tag: tag, Type: TypeBool, Value: v}
}

func NewUTCDateField(tag Tag, value time.Time) Field {
	return Field{Tag: tag, Type: TypeUTCDate, Value: value.UTC().Format(utcDateLayout)}
}

func NewUTCTimeOnlyField(tag Tag, value time.Time) Field {
	return Field{Tag: tag, Type: TypeUTCTimeOnly, Value: value.UTC().Format(utcTimeOnlyLayout)}
}

func NewTimestampField(tag Tag, value time.Time, precision TimestampPrecision) Field {
	return Field{Tag: tag, Type: TypeUTCTimestamp, Value: FormatTimestamp(value, precision)}
}

func NewDataField(tag Tag, value []byte) Field {
	return Field{Tag: tag, Type: TypeData, Value: string(value)}
}

// FormatTimestamp renders t in UTC using the FIX UTCTimestamp layout.
func FormatTimestamp(t time.Time, precision TimestampPrecision) string {
	t = t.UTC()
	switch precision {
	case Seconds:
		return t.Format(utcTimestampLayout)
	case Micros:
		return t.Format(utcTimestampLayout + ".000000")
	case Nanos:
		return t.Format(utcTimestampLayout + ".000000000")
	}
	return t.Format(utcTimestampLayout + ".000")
}

func (f Field) String() string {
	return f.Value
}

func (f Field) Int() (int, error) {
	v, err := strconv.Atoi(f.Value)
	if err != nil {
		return 0, IncorrectDataFormat(f.Tag)
	}
	return v, nil
}

func (f Field) Uint() (uint64, error) {
	v, err := strconv.ParseUint(f.Value, 10, 64)
	if err != nil {
		return 0, IncorrectDataFormat(f.Tag)
	}
	return v, nil
}

func (f Field) Float() (float64, error) {
	v, err := strconv.ParseFloat(f.Value, 64)
	if err != nil {
		return 0, IncorrectDataFormat(f.Tag)
	}
	return v, nil
}

func (f Field) Bool() (bool, error) {
	switch f.Value {
	case "Y":
		return true, nil
	case "N":
		return false, nil
	}
	return false, IncorrectDataFormat(f.Tag)
}

func (f Field) Char() (byte, error) {
	if len(f.Value) != 1 {
		return 0, IncorrectDataFormat(f.Tag)
	}
	return f.Value[0], nil
}

// Time interprets the value as a UTCTimestamp, UTCDateOnly or UTCTimeOnly
// depending on the field type. Untyped fields are read as timestamps.
func (f Field) Time() (time.Time, error) {
	layout := utcTimestampLayout
	switch f.Type {
	case TypeUTCDate:
		layout = utcDateLayout
	case TypeUTCTimeOnly:
		layout = utcTimeOnlyLayout
	}
	// Fractional seconds are accepted by time.Parse without being in the layout.
	t, err := time.Parse(layout, f.Value)
	if err != nil {
		return time.Time{}, IncorrectDataFormat(f.Tag)
	}
	return t, nil
}
