package esedb

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// Bit is the single-byte boolean column representation: 0x00 is false,
// anything else (conventionally 0xFF) is true.
type Bit uint8

func (b Bit) Bool() bool { return b != 0 }

func boolToBit(v bool) Bit {
	if v {
		return 0xFF
	}
	return 0x00
}

// DataType is an open enumeration of on-disk column data types.
type DataType int32

const (
	DataTypeNil            DataType = 0
	DataTypeBit            DataType = 1
	DataTypeUnsignedByte   DataType = 2
	DataTypeShort          DataType = 3
	DataTypeLong           DataType = 4
	DataTypeCurrency       DataType = 5
	DataTypeIeeeSingle     DataType = 6
	DataTypeIeeeDouble     DataType = 7
	DataTypeDateTime       DataType = 8
	DataTypeBinary         DataType = 9
	DataTypeText           DataType = 10
	DataTypeLongBinary     DataType = 11
	DataTypeLongText       DataType = 12
	DataTypeSuperLongValue DataType = 13
	DataTypeUnsignedLong   DataType = 14
	DataTypeLongLong       DataType = 15
	DataTypeGuid           DataType = 16
	DataTypeUnsignedShort  DataType = 17
)

func (t DataType) String() string {
	switch t {
	case DataTypeNil:
		return "Nil"
	case DataTypeBit:
		return "Bit"
	case DataTypeUnsignedByte:
		return "UnsignedByte"
	case DataTypeShort:
		return "Short"
	case DataTypeLong:
		return "Long"
	case DataTypeCurrency:
		return "Currency"
	case DataTypeIeeeSingle:
		return "IeeeSingle"
	case DataTypeIeeeDouble:
		return "IeeeDouble"
	case DataTypeDateTime:
		return "DateTime"
	case DataTypeBinary:
		return "Binary"
	case DataTypeText:
		return "Text"
	case DataTypeLongBinary:
		return "LongBinary"
	case DataTypeLongText:
		return "LongText"
	case DataTypeSuperLongValue:
		return "SuperLongValue"
	case DataTypeUnsignedLong:
		return "UnsignedLong"
	case DataTypeLongLong:
		return "LongLong"
	case DataTypeGuid:
		return "Guid"
	case DataTypeUnsignedShort:
		return "UnsignedShort"
	default:
		return fmt.Sprintf("Other(%d)", int32(t))
	}
}

// FixedSize returns the declared on-disk width of fixed-size types, or
// (0, false) for variable-width or unknown types.
func (t DataType) FixedSize() (int, bool) {
	switch t {
	case DataTypeNil:
		return 0, true
	case DataTypeBit, DataTypeUnsignedByte:
		return 1, true
	case DataTypeShort, DataTypeUnsignedShort:
		return 2, true
	case DataTypeLong, DataTypeIeeeSingle, DataTypeUnsignedLong:
		return 4, true
	case DataTypeCurrency, DataTypeIeeeDouble, DataTypeDateTime, DataTypeLongLong:
		return 8, true
	case DataTypeGuid:
		return 16, true
	default:
		return 0, false
	}
}

// Data is a decoded column value. Exactly one of the typed fields is
// meaningful, selected by Type.
type Data struct {
	Type DataType

	Bit            Bit
	UnsignedByte   uint8
	Short          int16
	Long           int32
	Currency       *big.Rat // scaled integer, per the teacher's decimal.go convention
	IeeeSingle     float32
	IeeeDouble     float64
	DateTime       int64
	Binary         []byte
	Text           string
	LongBinary     []byte
	LongText       string
	SuperLongValue []byte
	UnsignedLong   uint32
	LongLong       int64
	Guid           uuid.UUID
	UnsignedShort  uint16
	OtherCode      int32
	OtherRaw       []byte
}

func dataNil() Data                   { return Data{Type: DataTypeNil} }
func dataBit(v Bit) Data              { return Data{Type: DataTypeBit, Bit: v} }
func dataUnsignedByte(v uint8) Data   { return Data{Type: DataTypeUnsignedByte, UnsignedByte: v} }
func dataShort(v int16) Data          { return Data{Type: DataTypeShort, Short: v} }
func dataLong(v int32) Data           { return Data{Type: DataTypeLong, Long: v} }
func dataCurrency(v int64) Data {
	return Data{Type: DataTypeCurrency, Currency: new(big.Rat).SetInt64(v)}
}
func dataIeeeSingle(v float32) Data   { return Data{Type: DataTypeIeeeSingle, IeeeSingle: v} }
func dataIeeeDouble(v float64) Data   { return Data{Type: DataTypeIeeeDouble, IeeeDouble: v} }
func dataDateTime(v int64) Data       { return Data{Type: DataTypeDateTime, DateTime: v} }
func dataBinary(v []byte) Data        { return Data{Type: DataTypeBinary, Binary: v} }
func dataText(v string) Data          { return Data{Type: DataTypeText, Text: v} }
func dataLongBinary(v []byte) Data    { return Data{Type: DataTypeLongBinary, LongBinary: v} }
func dataLongText(v string) Data      { return Data{Type: DataTypeLongText, LongText: v} }
func dataUnsignedLong(v uint32) Data  { return Data{Type: DataTypeUnsignedLong, UnsignedLong: v} }
func dataLongLong(v int64) Data       { return Data{Type: DataTypeLongLong, LongLong: v} }
func dataGuid(v uuid.UUID) Data       { return Data{Type: DataTypeGuid, Guid: v} }
func dataUnsignedShort(v uint16) Data { return Data{Type: DataTypeUnsignedShort, UnsignedShort: v} }

// Value is a decoded row cell: a single value (fixed columns), a single
// value carrying tag metadata (one tagged value), or several values sharing
// tag metadata (a multi-valued or two-valued tagged column).
type Value struct {
	Simple   *Data
	Complex  *ComplexValue
	Multiple *MultipleValue
}

type ComplexValue struct {
	Data  Data
	Flags TagFlags
}

type MultipleValue struct {
	Values []Data
	Flags  TagFlags
}

func simpleValue(d Data) Value { return Value{Simple: &d} }

// FirstData returns the first (or only) Data carried by v, uniformly across
// Simple/Complex/Multiple, for callers (such as the schema resolver) that
// only ever care about one representative value.
func (v Value) FirstData() (Data, bool) {
	switch {
	case v.Simple != nil:
		return *v.Simple, true
	case v.Complex != nil:
		return v.Complex.Data, true
	case v.Multiple != nil && len(v.Multiple.Values) > 0:
		return v.Multiple.Values[0], true
	default:
		return Data{}, false
	}
}

// AllData flattens v into a slice, uniformly across Simple/Complex/Multiple.
func (v Value) AllData() []Data {
	switch {
	case v.Simple != nil:
		return []Data{*v.Simple}
	case v.Complex != nil:
		return []Data{v.Complex.Data}
	case v.Multiple != nil:
		return v.Multiple.Values
	default:
		return nil
	}
}

// Row is a decoded record: column id to Value.
type Row map[int32]Value
