package esedb

import (
	"errors"
	"fmt"
)

// Kind classifies a ReadError. Callers that need to branch on failure mode
// should compare against these constants rather than matching error strings.
type Kind int

const (
	KindIO Kind = iota
	KindWrongHeaderSignature
	KindWrongHeaderChecksum
	KindHeaderLongerThanPage
	KindPageSizeNotDivisibleBy4
	KindPage0
	KindUnknownFormatVariant
	KindUnknownPageType
	KindUnexpectedFixedColumnDataType
	KindUnexpectedVariableColumnDataType
	KindUnexpectedTaggedColumnDataType
	KindMissingRequiredColumn
	KindWrongColumnType
	KindWrongObjectType
	KindSeparatedValueWithoutLongValueInfo
	KindDecodeMalformed
	KindTreeTooDeep
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindWrongHeaderSignature:
		return "wrong_header_signature"
	case KindWrongHeaderChecksum:
		return "wrong_header_checksum"
	case KindHeaderLongerThanPage:
		return "header_longer_than_page"
	case KindPageSizeNotDivisibleBy4:
		return "page_size_not_divisible_by_4"
	case KindPage0:
		return "page_0"
	case KindUnknownFormatVariant:
		return "unknown_format_variant"
	case KindUnknownPageType:
		return "unknown_page_type"
	case KindUnexpectedFixedColumnDataType:
		return "unexpected_fixed_column_data_type"
	case KindUnexpectedVariableColumnDataType:
		return "unexpected_variable_column_data_type"
	case KindUnexpectedTaggedColumnDataType:
		return "unexpected_tagged_column_data_type"
	case KindMissingRequiredColumn:
		return "missing_required_column"
	case KindWrongColumnType:
		return "wrong_column_type"
	case KindWrongObjectType:
		return "wrong_object_type"
	case KindSeparatedValueWithoutLongValueInfo:
		return "separated_value_without_long_value_info"
	case KindDecodeMalformed:
		return "decode_malformed"
	case KindTreeTooDeep:
		return "tree_too_deep"
	default:
		return "unknown"
	}
}

// ReadError is the single error type returned by every decoding operation in
// this package. It carries a Kind plus whatever detail fields are relevant
// to that kind, and wraps an underlying I/O error when there is one.
type ReadError struct {
	Kind Kind

	// Detail fields, populated depending on Kind. Zero value otherwise.
	Expected   uint32
	Read       uint32
	HeaderLen  int
	PageSize   int
	TableID    int32
	ColumnID   int32
	DataType   DataType
	Name       string
	WantType   DataType
	GotType    DataType
	WantObject ObjectType
	GotObject  ObjectType

	Err error
}

func (e *ReadError) Error() string {
	switch e.Kind {
	case KindIO:
		return fmt.Sprintf("esedb: i/o error: %v", e.Err)
	case KindWrongHeaderSignature:
		return fmt.Sprintf("esedb: wrong header signature (expected 0x%08X, read 0x%08X)", e.Expected, e.Read)
	case KindWrongHeaderChecksum:
		return fmt.Sprintf("esedb: wrong header checksum (calculated 0x%08X, read 0x%08X)", e.Expected, e.Read)
	case KindHeaderLongerThanPage:
		return fmt.Sprintf("esedb: header length (%d) greater than page size (%d)", e.HeaderLen, e.PageSize)
	case KindPageSizeNotDivisibleBy4:
		return fmt.Sprintf("esedb: page size (%d) not divisible by 4", e.PageSize)
	case KindPage0:
		return "esedb: page 0 does not exist"
	case KindUnknownFormatVariant:
		return "esedb: failed to detect format variant"
	case KindUnknownPageType:
		return "esedb: unknown page type"
	case KindUnexpectedFixedColumnDataType:
		return fmt.Sprintf("esedb: unexpected data type %v in table %d fixed column %d", e.DataType, e.TableID, e.ColumnID)
	case KindUnexpectedVariableColumnDataType:
		return fmt.Sprintf("esedb: unexpected data type %v in table %d variable column %d", e.DataType, e.TableID, e.ColumnID)
	case KindUnexpectedTaggedColumnDataType:
		return fmt.Sprintf("esedb: unexpected data type %v in table %d tagged column %d", e.DataType, e.TableID, e.ColumnID)
	case KindMissingRequiredColumn:
		return fmt.Sprintf("esedb: missing required column %q", e.Name)
	case KindWrongColumnType:
		return fmt.Sprintf("esedb: column %q has data type %v, expected %v", e.Name, e.GotType, e.WantType)
	case KindWrongObjectType:
		return fmt.Sprintf("esedb: object has type %v, expected %v", e.GotObject, e.WantObject)
	case KindSeparatedValueWithoutLongValueInfo:
		return "esedb: table contains a separated value but no long value info"
	case KindDecodeMalformed:
		return fmt.Sprintf("esedb: malformed text sequence: %v", e.Err)
	case KindTreeTooDeep:
		return "esedb: tree traversal exceeded maximum depth"
	default:
		return "esedb: unknown error"
	}
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

func wrapIO(err error) error {
	if err == nil {
		return nil
	}
	return &ReadError{Kind: KindIO, Err: err}
}

func errWrongHeaderSignature(expected, read uint32) error {
	return &ReadError{Kind: KindWrongHeaderSignature, Expected: expected, Read: read}
}

func errWrongHeaderChecksum(calculated, read uint32) error {
	return &ReadError{Kind: KindWrongHeaderChecksum, Expected: calculated, Read: read}
}

func errHeaderLongerThanPage(headerLen, pageSize int) error {
	return &ReadError{Kind: KindHeaderLongerThanPage, HeaderLen: headerLen, PageSize: pageSize}
}

func errPageSizeNotDivisibleBy4(pageSize int) error {
	return &ReadError{Kind: KindPageSizeNotDivisibleBy4, PageSize: pageSize}
}

func errPage0() error {
	return &ReadError{Kind: KindPage0}
}

func errUnknownFormatVariant() error {
	return &ReadError{Kind: KindUnknownFormatVariant}
}

func errUnknownPageType() error {
	return &ReadError{Kind: KindUnknownPageType}
}

func errUnexpectedFixedColumnDataType(tableID, columnID int32, dt DataType) error {
	return &ReadError{Kind: KindUnexpectedFixedColumnDataType, TableID: tableID, ColumnID: columnID, DataType: dt}
}

func errUnexpectedVariableColumnDataType(tableID, columnID int32, dt DataType) error {
	return &ReadError{Kind: KindUnexpectedVariableColumnDataType, TableID: tableID, ColumnID: columnID, DataType: dt}
}

func errUnexpectedTaggedColumnDataType(tableID, columnID int32, dt DataType) error {
	return &ReadError{Kind: KindUnexpectedTaggedColumnDataType, TableID: tableID, ColumnID: columnID, DataType: dt}
}

func errMissingRequiredColumn(name string) error {
	return &ReadError{Kind: KindMissingRequiredColumn, Name: name}
}

func errWrongColumnType(name string, want, got DataType) error {
	return &ReadError{Kind: KindWrongColumnType, Name: name, WantType: want, GotType: got}
}

func errWrongObjectType(want, got ObjectType) error {
	return &ReadError{Kind: KindWrongObjectType, WantObject: want, GotObject: got}
}

func errSeparatedValueWithoutLongValueInfo() error {
	return &ReadError{Kind: KindSeparatedValueWithoutLongValueInfo}
}

func errDecodeMalformed(cause error) error {
	return &ReadError{Kind: KindDecodeMalformed, Err: cause}
}

func errTreeTooDeep() error {
	return &ReadError{Kind: KindTreeTooDeep}
}

// KindOf extracts the Kind of err, if it is (or wraps) a *ReadError.
func KindOf(err error) (Kind, bool) {
	var re *ReadError
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return 0, false
}
