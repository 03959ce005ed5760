package esedb

import "sort"

// ObjectType classifies a catalog entry. Open enumeration: unrecognized
// values are preserved as-is by callers that only compare against the known
// constants.
type ObjectType int32

const (
	ObjectTypeTable     ObjectType = 1
	ObjectTypeColumn    ObjectType = 2
	ObjectTypeIndex     ObjectType = 3
	ObjectTypeLongValue ObjectType = 4
)

// ObjectFlags are the catalog-level flags on a Table or Index entry.
type ObjectFlags uint32

const (
	ObjectFlagSystem   ObjectFlags = 0x80000000
	ObjectFlagTemplate ObjectFlags = 0x40000000
)

func (f ObjectFlags) Has(want ObjectFlags) bool { return f&want == want }

// ColumnFlags are the catalog-level flags on a Column entry.
type ColumnFlags uint32

const (
	ColumnFlagNotNULL                 ColumnFlags = 0x1
	ColumnFlagVersion                 ColumnFlags = 0x2
	ColumnFlagAutoincrement           ColumnFlags = 0x4
	ColumnFlagUpdatable               ColumnFlags = 0x8
	ColumnFlagTaggedExternal          ColumnFlags = 0x10
	ColumnFlagEscrowUpdate            ColumnFlags = 0x40
	ColumnFlagFinalize                ColumnFlags = 0x80
	ColumnFlagUserDefinedDefault      ColumnFlags = 0x100
	ColumnFlagDeleteOnZero            ColumnFlags = 0x1000
	ColumnFlagPrimaryIndexPlaceholder ColumnFlags = 0x2000
	ColumnFlagCompressed              ColumnFlags = 0x4000
	ColumnFlagEncrypted               ColumnFlags = 0x8000
	ColumnFlagMultiValued             ColumnFlags = 0x400000
)

func (f ColumnFlags) Has(want ColumnFlags) bool { return f&want == want }

// Column is one resolved column definition belonging to a Table.
type Column struct {
	TableObjectID int32
	ID            int32
	Name          string
	Type          DataType
	Length        int32
	Codepage      int32
	Flags         ColumnFlags
}

// TableHeader is a table's own catalog entry.
type TableHeader struct {
	ObjectID       int32
	Name           string
	FatherDataPage uint64
	Flags          ObjectFlags
}

// Index is an index's catalog entry.
type Index struct {
	ObjectID       int32
	Name           string
	TableObjectID  int32
	FatherDataPage uint64
}

// LongValueInfo points at a table's long-value (separated value) tree, if it
// has one.
type LongValueInfo struct {
	TableObjectID int32
	RootPage      uint64
}

// Table is a fully assembled catalog entry: a table header plus the columns,
// indexes, and optional long-value tree that belong to it.
type Table struct {
	Header    TableHeader
	Columns   []Column
	Indexes   []Index
	LongValue *LongValueInfo
}

// CatalogPageNumber is the well-known root page of the catalog table
// (MSysObjects), fixed by the format rather than discovered.
const CatalogPageNumber uint64 = 4

// Catalog column ids, in the bootstrap schema's fixed layout. Name is
// exceptional in being the one variable-region column this decoder needs
// before any schema is available, hence its presence in MetadataColumnDefs
// alongside the nine fixed columns.
const (
	catalogColObjidTable      int32 = 1
	catalogColType            int32 = 2
	catalogColID              int32 = 3
	catalogColColtypOrPgnoFDP int32 = 4
	catalogColSpaceUsage      int32 = 5
	catalogColFlags           int32 = 6
	catalogColPagesOrLocale   int32 = 7
	catalogColRootFlag        int32 = 8
	catalogColRecordOffset    int32 = 9
	catalogColName            int32 = 128
)

// MetadataColumnDefs is the hardcoded schema of the catalog table itself: the
// self-describing metadata catalog cannot be decoded using catalog rows it
// hasn't produced yet, so its own shape is fixed at compile time, per
// SPEC_FULL.md §4.7/§4.8's two-pass bootstrap.
var MetadataColumnDefs = []Column{
	{ID: catalogColObjidTable, Name: "ObjidTable", Type: DataTypeLong, Length: 4},
	{ID: catalogColType, Name: "Type", Type: DataTypeShort, Length: 2},
	{ID: catalogColID, Name: "Id", Type: DataTypeLong, Length: 4},
	{ID: catalogColColtypOrPgnoFDP, Name: "ColtypOrPgnoFDP", Type: DataTypeLong, Length: 4},
	{ID: catalogColSpaceUsage, Name: "SpaceUsage", Type: DataTypeLong, Length: 4},
	{ID: catalogColFlags, Name: "Flags", Type: DataTypeLong, Length: 4},
	{ID: catalogColPagesOrLocale, Name: "PagesOrLocale", Type: DataTypeLong, Length: 4},
	{ID: catalogColRootFlag, Name: "RootFlag", Type: DataTypeBit, Length: 1},
	{ID: catalogColRecordOffset, Name: "RecordOffset", Type: DataTypeShort, Length: 2},
	{ID: catalogColName, Name: "Name", Type: DataTypeText, Length: 255, Codepage: 1252},
}

func rowInt32(row Row, columnID int32) (int32, bool) {
	v, ok := row[columnID]
	if !ok {
		return 0, false
	}
	d, ok := v.FirstData()
	if !ok {
		return 0, false
	}
	switch d.Type {
	case DataTypeLong:
		return d.Long, true
	case DataTypeShort:
		return int32(d.Short), true
	default:
		return 0, false
	}
}

func rowString(row Row, columnID int32) (string, bool) {
	v, ok := row[columnID]
	if !ok {
		return "", false
	}
	d, ok := v.FirstData()
	if !ok || d.Type != DataTypeText {
		return "", false
	}
	return d.Text, true
}

// CollectTables groups the catalog table's decoded rows into Table values,
// per SPEC_FULL.md §4.7. metadataColumns is only checked for a column with
// the Name id (catalogColName); Open passes MetadataColumnDefs in its first
// pass and MSysObjects's discovered columns in its second. It exists as a
// parameter so
// callers can't silently rely on a package-level global going stale.
func CollectTables(rows []Row, metadataColumns []Column) ([]Table, error) {
	haveName := false
	for _, c := range metadataColumns {
		if c.ID == catalogColName {
			haveName = true
		}
	}
	if !haveName {
		return nil, errMissingRequiredColumn("Name")
	}

	tablesByID := make(map[int32]*Table)
	order := make([]int32, 0)

	for _, row := range rows {
		typeRaw, ok := rowInt32(row, catalogColType)
		if !ok {
			continue
		}
		objType := ObjectType(typeRaw)
		name, _ := rowString(row, catalogColName)

		switch objType {
		case ObjectTypeTable:
			id, ok := rowInt32(row, catalogColID)
			if !ok {
				continue
			}
			fdp, _ := rowInt32(row, catalogColColtypOrPgnoFDP)
			flags, _ := rowInt32(row, catalogColFlags)
			t, exists := tablesByID[id]
			if !exists {
				t = &Table{}
				tablesByID[id] = t
				order = append(order, id)
			}
			t.Header = TableHeader{
				ObjectID:       id,
				Name:           name,
				FatherDataPage: uint64(fdp),
				Flags:          ObjectFlags(uint32(flags)),
			}
		}
	}

	for _, row := range rows {
		typeRaw, ok := rowInt32(row, catalogColType)
		if !ok {
			continue
		}
		objType := ObjectType(typeRaw)
		if objType == ObjectTypeTable {
			continue
		}

		owner, ok := rowInt32(row, catalogColObjidTable)
		if !ok {
			continue
		}
		t, ok := tablesByID[owner]
		if !ok {
			continue
		}
		name, _ := rowString(row, catalogColName)
		id, _ := rowInt32(row, catalogColID)
		coltypOrPgnoFDP, _ := rowInt32(row, catalogColColtypOrPgnoFDP)
		spaceUsage, _ := rowInt32(row, catalogColSpaceUsage)
		flags, _ := rowInt32(row, catalogColFlags)
		pagesOrLocale, _ := rowInt32(row, catalogColPagesOrLocale)

		switch objType {
		case ObjectTypeColumn:
			t.Columns = append(t.Columns, Column{
				TableObjectID: owner,
				ID:            id,
				Name:          name,
				Type:          DataType(coltypOrPgnoFDP),
				Length:        spaceUsage,
				Codepage:      pagesOrLocale,
				Flags:         ColumnFlags(uint32(flags)),
			})
		case ObjectTypeIndex:
			t.Indexes = append(t.Indexes, Index{
				ObjectID:       id,
				Name:           name,
				TableObjectID:  owner,
				FatherDataPage: uint64(coltypOrPgnoFDP),
			})
		case ObjectTypeLongValue:
			lv := LongValueInfo{TableObjectID: owner, RootPage: uint64(coltypOrPgnoFDP)}
			t.LongValue = &lv
		}
	}

	tables := make([]Table, 0, len(order))
	for _, id := range order {
		t := *tablesByID[id]
		sort.Slice(t.Columns, func(i, j int) bool { return t.Columns[i].ID < t.Columns[j].ID })
		sort.Slice(t.Indexes, func(i, j int) bool { return t.Indexes[i].ObjectID < t.Indexes[j].ObjectID })
		tables = append(tables, t)
	}
	return tables, nil
}
