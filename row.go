package esedb

import (
	"encoding/binary"
	"io"
	"math"
	"sort"

	"github.com/google/uuid"
)

// TagFlags are the 8-bit per-entry flags carried by a tagged column once its
// extended-flags byte has been read (or synthesized from SmallTagFlags).
type TagFlags uint8

const (
	TagFlagLongValue   TagFlags = 0x01
	TagFlagCompressed  TagFlags = 0x02
	TagFlagSeparated   TagFlags = 0x04
	TagFlagMultiValues TagFlags = 0x08
	TagFlagTwoValues   TagFlags = 0x10
	TagFlagNull        TagFlags = 0x20
	TagFlagEncrypted   TagFlags = 0x40
	TagFlagDerived     TagFlags = 0x80
)

func (f TagFlags) Has(want TagFlags) bool { return f&want == want }

// smallTagFlags are the 3 bits packed into a tag record's offset word before
// the extended flags byte (if any) is consulted.
type smallTagFlags uint16

const (
	smallTagNull             smallTagFlags = 0x2000
	smallTagHasExtendedFlags smallTagFlags = 0x4000
	smallTagDerived          smallTagFlags = 0x8000
)

func (f smallTagFlags) has(want smallTagFlags) bool { return f&want == want }

func tagFlagsFromSmall(s smallTagFlags) TagFlags {
	var f TagFlags
	if s.has(smallTagNull) {
		f |= TagFlagNull
	}
	if s.has(smallTagDerived) {
		f |= TagFlagDerived
	}
	return f
}

func guidFromBytesLE(b []byte) uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	copy(u[8:16], b[8:16])
	return u
}

// referenceBytesToValueNumber decodes an arbitrary-width little-endian byte
// slice into the "value number" used to key a long-value tree.
func referenceBytesToValueNumber(b []byte) int {
	var n uint64
	for i := len(b) - 1; i >= 0; i-- {
		n = n*256 + uint64(b[i])
	}
	return int(n)
}

func truncatedRow() error {
	return wrapIO(io.ErrUnexpectedEOF)
}

// DecodeRow interprets one leaf payload's entry_data as a row of typed
// values against columns, per SPEC_FULL.md §4.6. h's page size selects the
// tagged-record layout whenever the row has a tagged region; r and
// longValuePage are needed only to resolve SEPARATED tagged values by
// walking the enclosing table's long-value tree.
func DecodeRow(r io.ReadSeeker, h *Header, tableID int32, entryData []byte, columns []Column, longValuePage *uint64) (Row, error) {
	sorted := make([]Column, len(columns))
	copy(sorted, columns)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var fixedColumns []Column
	variableColumns := make(map[int32]Column)
	taggedColumns := make(map[int32]Column)
	for _, c := range sorted {
		switch {
		case c.ID < 128:
			fixedColumns = append(fixedColumns, c)
		case c.ID < 256:
			variableColumns[c.ID] = c
		default:
			taggedColumns[c.ID] = c
		}
	}

	if len(entryData) < 4 {
		return nil, truncatedRow()
	}
	lastFixedDataColumn := int(entryData[0])
	lastVariableDataColumn := int(entryData[1])
	endFixedValuesOffset := int(binary.LittleEndian.Uint16(entryData[2:4]))

	nullityByteCount := (lastFixedDataColumn + 7) / 8
	nullityStart := endFixedValuesOffset - nullityByteCount
	variableStart := endFixedValuesOffset
	if nullityStart < 4 || variableStart > len(entryData) || nullityStart > variableStart {
		return nil, truncatedRow()
	}

	fixedSlice := entryData[4:nullityStart]
	nullitySlice := entryData[nullityStart:variableStart]
	variableAndTaggedSlice := entryData[variableStart:]

	row := make(Row)

	if err := decodeFixedColumns(tableID, fixedColumns, lastFixedDataColumn, fixedSlice, nullitySlice, row); err != nil {
		return nil, err
	}

	variableColumnCount := 0
	if lastVariableDataColumn >= 128 {
		variableColumnCount = lastVariableDataColumn + 1 - 128
	}

	taggedStartInData, err := decodeVariableColumns(tableID, variableColumns, variableColumnCount, variableAndTaggedSlice, row)
	if err != nil {
		return nil, err
	}

	if taggedStartInData < len(variableAndTaggedSlice) {
		taggedDataSlice := variableAndTaggedSlice[taggedStartInData:]
		if err := decodeTaggedColumns(r, h, tableID, taggedColumns, taggedDataSlice, int(h.PageSize), longValuePage, row); err != nil {
			return nil, err
		}
	}

	return row, nil
}

func decodeFixedColumns(tableID int32, fixedColumns []Column, lastFixedDataColumn int, fixedSlice, nullitySlice []byte, row Row) error {
	offset := 0
	count := lastFixedDataColumn
	if count > len(fixedColumns) {
		count = len(fixedColumns)
	}
	for i := 0; i < count; i++ {
		col := fixedColumns[i]

		width, ok := col.Type.FixedSize()
		if !ok {
			switch col.Type {
			case DataTypeBinary, DataTypeText:
				width = int(col.Length)
			default:
				return errUnexpectedFixedColumnDataType(tableID, col.ID, col.Type)
			}
		}
		if offset+width > len(fixedSlice) {
			return truncatedRow()
		}
		raw := fixedSlice[offset : offset+width]
		offset += width

		columnIndex := int(col.ID) - 1
		byteIndex, bitIndex := columnIndex/8, uint(columnIndex%8)
		isNull := false
		if byteIndex >= 0 && byteIndex < len(nullitySlice) {
			isNull = nullitySlice[byteIndex]&(1<<bitIndex) != 0
		}

		if isNull {
			row[col.ID] = simpleValue(dataNil())
			continue
		}

		val, err := decodeFixedValue(tableID, col, raw)
		if err != nil {
			return err
		}
		row[col.ID] = simpleValue(val)
	}
	return nil
}

func decodeFixedValue(tableID int32, col Column, raw []byte) (Data, error) {
	switch col.Type {
	case DataTypeBit:
		return dataBit(Bit(raw[0])), nil
	case DataTypeUnsignedByte:
		return dataUnsignedByte(raw[0]), nil
	case DataTypeShort:
		return dataShort(int16(binary.LittleEndian.Uint16(raw))), nil
	case DataTypeLong:
		return dataLong(int32(binary.LittleEndian.Uint32(raw))), nil
	case DataTypeCurrency:
		return dataCurrency(int64(binary.LittleEndian.Uint64(raw))), nil
	case DataTypeIeeeSingle:
		return dataIeeeSingle(math.Float32frombits(binary.LittleEndian.Uint32(raw))), nil
	case DataTypeIeeeDouble:
		return dataIeeeDouble(math.Float64frombits(binary.LittleEndian.Uint64(raw))), nil
	case DataTypeDateTime:
		return dataDateTime(int64(binary.LittleEndian.Uint64(raw))), nil
	case DataTypeBinary:
		return dataBinary(append([]byte(nil), raw...)), nil
	case DataTypeText:
		s, err := DecodeString(raw, col.Codepage)
		if err != nil {
			return Data{}, err
		}
		return dataText(s), nil
	case DataTypeUnsignedLong:
		return dataUnsignedLong(binary.LittleEndian.Uint32(raw)), nil
	case DataTypeLongLong:
		return dataLongLong(int64(binary.LittleEndian.Uint64(raw))), nil
	case DataTypeGuid:
		return dataGuid(guidFromBytesLE(raw)), nil
	case DataTypeUnsignedShort:
		return dataUnsignedShort(binary.LittleEndian.Uint16(raw)), nil
	default:
		return Data{}, errUnexpectedFixedColumnDataType(tableID, col.ID, col.Type)
	}
}

// decodeVariableColumns decodes the variable region and returns the offset
// (within variableAndTaggedSlice) at which the tagged region begins.
func decodeVariableColumns(tableID int32, variableColumns map[int32]Column, variableColumnCount int, variableAndTaggedSlice []byte, row Row) (int, error) {
	offsetsBytes := 2 * variableColumnCount
	if offsetsBytes > len(variableAndTaggedSlice) {
		return 0, truncatedRow()
	}
	offsetsSlice := variableAndTaggedSlice[:offsetsBytes]
	dataSlice := variableAndTaggedSlice[offsetsBytes:]

	offsets := make([]uint16, variableColumnCount+1)
	for i := 0; i < variableColumnCount; i++ {
		offsets[i+1] = binary.LittleEndian.Uint16(offsetsSlice[2*i : 2*i+2])
	}

	for i := 0; i < variableColumnCount; i++ {
		columnID := int32(128 + i)
		beginRaw, endRaw := offsets[i], offsets[i+1]
		if endRaw&0x8000 != 0 {
			continue
		}
		begin, end := int(beginRaw&0x7FFF), int(endRaw&0x7FFF)
		if begin > end || end > len(dataSlice) {
			return 0, truncatedRow()
		}
		raw := dataSlice[begin:end]

		col, ok := variableColumns[columnID]
		if !ok {
			row[columnID] = simpleValue(dataBinary(append([]byte(nil), raw...)))
			continue
		}
		switch col.Type {
		case DataTypeText:
			s, err := DecodeString(raw, col.Codepage)
			if err != nil {
				return 0, err
			}
			row[columnID] = simpleValue(dataText(s))
		case DataTypeBinary:
			row[columnID] = simpleValue(dataBinary(append([]byte(nil), raw...)))
		default:
			return 0, errUnexpectedVariableColumnDataType(tableID, columnID, col.Type)
		}
	}

	taggedStart := offsetsBytes
	if variableColumnCount > 0 {
		taggedStart += int(offsets[variableColumnCount] & 0x7FFF)
	}
	return taggedStart, nil
}

type taggedTagRecord struct {
	columnID   int32
	offset     uint16
	smallFlags smallTagFlags
}

func decodeTaggedColumns(r io.ReadSeeker, h *Header, tableID int32, taggedColumns map[int32]Column, taggedDataSlice []byte, pageSize int, longValuePage *uint64, row Row) error {
	var records []taggedTagRecord
	minOffset := len(taggedDataSlice)
	cursor := 0
	for cursor < minOffset {
		if cursor+4 > len(taggedDataSlice) {
			break
		}
		columnID := int32(binary.LittleEndian.Uint16(taggedDataSlice[cursor : cursor+2]))
		offsetAndFlags := binary.LittleEndian.Uint16(taggedDataSlice[cursor+2 : cursor+4])
		cursor += 4

		var offset uint16
		var sf smallTagFlags
		if pageSize <= maxSizeSmallPage {
			offset = offsetAndFlags & 0x1FFF
			sf = smallTagFlags(offsetAndFlags & 0xE000)
		} else {
			offset = offsetAndFlags & 0x7FFF
			sf = smallTagHasExtendedFlags | smallTagFlags(offsetAndFlags&0x8000)
		}
		records = append(records, taggedTagRecord{columnID, offset, sf})
		if int(offset) < minOffset {
			minOffset = int(offset)
		}
	}

	for i, rec := range records {
		begin := int(rec.offset)
		end := len(taggedDataSlice)
		if i+1 < len(records) {
			end = int(records[i+1].offset)
		}
		if begin > end || end > len(taggedDataSlice) {
			return truncatedRow()
		}
		itemSlice := taggedDataSlice[begin:end]

		col, ok := taggedColumns[rec.columnID]
		if !ok {
			// Invariant 5 (lossless preservation): the reference decoder
			// silently drops unrecognized tagged columns; this
			// implementation keeps the raw bytes instead. See SPEC_FULL.md
			// §9 and DESIGN.md.
			row[rec.columnID] = simpleValue(dataBinary(append([]byte(nil), itemSlice...)))
			continue
		}

		var flags TagFlags
		if rec.smallFlags.has(smallTagHasExtendedFlags) {
			if len(itemSlice) == 0 {
				return truncatedRow()
			}
			flags = TagFlags(itemSlice[0])
			if rec.smallFlags.has(smallTagDerived) {
				flags |= TagFlagDerived
			}
			itemSlice = itemSlice[1:]
		} else {
			flags = tagFlagsFromSmall(rec.smallFlags)
		}

		if flags.Has(TagFlagSeparated) && col.Type != DataTypeLongText && col.Type != DataTypeLongBinary {
			return errUnexpectedTaggedColumnDataType(tableID, rec.columnID, col.Type)
		}

		var valueSlices [][]byte
		switch {
		case flags.Has(TagFlagTwoValues):
			if len(itemSlice) == 0 {
				return truncatedRow()
			}
			firstLen := int(itemSlice[0])
			rest := itemSlice[1:]
			if firstLen > len(rest) {
				return truncatedRow()
			}
			valueSlices = [][]byte{rest[:firstLen], rest[firstLen:]}
		case flags.Has(TagFlagMultiValues):
			if len(itemSlice) < 2 {
				return truncatedRow()
			}
			firstValueOffset := int(binary.LittleEndian.Uint16(itemSlice[:2]))
			if firstValueOffset > len(itemSlice) {
				return truncatedRow()
			}
			offsetsSlice := itemSlice[:firstValueOffset]
			offs := make([]int, 0, len(offsetsSlice)/2+1)
			for o := 0; o+2 <= len(offsetsSlice); o += 2 {
				offs = append(offs, int(binary.LittleEndian.Uint16(offsetsSlice[o:o+2])))
			}
			offs = append(offs, len(itemSlice))
			for j := 0; j+1 < len(offs); j++ {
				b, e := offs[j], offs[j+1]
				if b > e || e > len(itemSlice) {
					return truncatedRow()
				}
				valueSlices = append(valueSlices, itemSlice[b:e])
			}
		default:
			valueSlices = [][]byte{itemSlice}
		}

		values, err := decodeTaggedValues(r, h, tableID, rec.columnID, col, flags, valueSlices, longValuePage)
		if err != nil {
			return err
		}

		if len(values) == 1 {
			row[rec.columnID] = Value{Complex: &ComplexValue{Data: values[0], Flags: flags}}
		} else {
			row[rec.columnID] = Value{Multiple: &MultipleValue{Values: values, Flags: flags}}
		}
	}
	return nil
}

func decodeTaggedValues(r io.ReadSeeker, h *Header, tableID, columnID int32, col Column, flags TagFlags, valueSlices [][]byte, longValuePage *uint64) ([]Data, error) {
	var values []Data
	for _, vs := range valueSlices {
		switch col.Type {
		case DataTypeLong:
			if len(vs) < 4 {
				return nil, truncatedRow()
			}
			values = append(values, dataLong(int32(binary.LittleEndian.Uint32(vs))))
		case DataTypeCurrency:
			if len(vs) < 8 {
				return nil, truncatedRow()
			}
			values = append(values, dataCurrency(int64(binary.LittleEndian.Uint64(vs))))
		case DataTypeLongText, DataTypeLongBinary:
			if flags.Has(TagFlagSeparated) {
				if longValuePage == nil {
					return nil, errSeparatedValueWithoutLongValueInfo()
				}
				valueNumber := referenceBytesToValueNumber(vs)
				var chunks [][]byte
				chunkCursor := 0
				if err := ReadDataFromTree(r, h, *longValuePage, valueNumber, 1, &chunks, &chunkCursor); err != nil {
					return nil, err
				}
				for _, chunk := range chunks {
					if col.Type == DataTypeLongText {
						s, err := DecodeString(chunk, col.Codepage)
						if err != nil {
							return nil, err
						}
						values = append(values, dataLongText(s))
					} else {
						values = append(values, dataLongBinary(append([]byte(nil), chunk...)))
					}
				}
			} else if col.Type == DataTypeLongText {
				s, err := DecodeString(vs, col.Codepage)
				if err != nil {
					return nil, err
				}
				values = append(values, dataLongText(s))
			} else {
				values = append(values, dataLongBinary(append([]byte(nil), vs...)))
			}
		default:
			return nil, errUnexpectedTaggedColumnDataType(tableID, columnID, col.Type)
		}
	}
	return values, nil
}
