package esedb

import "testing"

// catalogRow builds one MSysObjects-shaped Row using the fixed catalog
// column ids, mirroring how DecodeRow would have populated it.
func catalogRow(objType ObjectType, objtidTable, id int32, name string, coltypOrPgnoFDP, spaceUsage, flags, pagesOrLocale int32) Row {
	return Row{
		catalogColObjidTable:      simpleValue(dataLong(objtidTable)),
		catalogColType:            simpleValue(dataShort(int16(objType))),
		catalogColID:              simpleValue(dataLong(id)),
		catalogColColtypOrPgnoFDP: simpleValue(dataLong(coltypOrPgnoFDP)),
		catalogColSpaceUsage:      simpleValue(dataLong(spaceUsage)),
		catalogColFlags:           simpleValue(dataLong(flags)),
		catalogColPagesOrLocale:   simpleValue(dataLong(pagesOrLocale)),
		catalogColName:            simpleValue(dataText(name)),
	}
}

// C1: a table row plus two column rows (ids out of order, one of them 128) collapse
// into a single Table with Columns sorted by id.
func TestCollectTablesSingleTableSortedColumns(t *testing.T) {
	rows := []Row{
		catalogRow(ObjectTypeTable, 0, 10, "Widgets", 4 /* FDP */, 0, 0, 0),
		catalogRow(ObjectTypeColumn, 10, 128, "Name", int32(DataTypeText), 255, 0, 1252),
		catalogRow(ObjectTypeColumn, 10, 1, "Id", int32(DataTypeLong), 4, 0, 0),
	}

	tables, err := CollectTables(rows, MetadataColumnDefs)
	if err != nil {
		t.Fatalf("CollectTables: %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("len(tables) = %d, want 1", len(tables))
	}
	tbl := tables[0]
	if tbl.Header.Name != "Widgets" || tbl.Header.ObjectID != 10 || tbl.Header.FatherDataPage != 4 {
		t.Fatalf("Header = %+v, unexpected", tbl.Header)
	}
	if len(tbl.Columns) != 2 {
		t.Fatalf("len(Columns) = %d, want 2", len(tbl.Columns))
	}
	if tbl.Columns[0].ID != 1 || tbl.Columns[1].ID != 128 {
		t.Fatalf("Columns ids = [%d %d], want [1 128]", tbl.Columns[0].ID, tbl.Columns[1].ID)
	}
	if tbl.Columns[0].Name != "Id" || tbl.Columns[1].Name != "Name" {
		t.Fatalf("Columns names = [%q %q], want [Id Name]", tbl.Columns[0].Name, tbl.Columns[1].Name)
	}
	if tbl.Columns[1].Codepage != 1252 {
		t.Fatalf("Columns[1].Codepage = %d, want 1252", tbl.Columns[1].Codepage)
	}
}

func TestCollectTablesMissingNameColumn(t *testing.T) {
	var noName []Column
	for _, c := range MetadataColumnDefs {
		if c.ID != catalogColName {
			noName = append(noName, c)
		}
	}
	_, err := CollectTables(nil, noName)
	if err == nil {
		t.Fatal("CollectTables: want error when metadataColumns lacks Name, got nil")
	}
}

func TestCollectTablesLongValueAndIndex(t *testing.T) {
	rows := []Row{
		catalogRow(ObjectTypeTable, 0, 20, "Docs", 4, 0, 0, 0),
		catalogRow(ObjectTypeLongValue, 20, 0, "", 99 /* RootPage */, 0, 0, 0),
		catalogRow(ObjectTypeIndex, 20, 5, "IX_Docs", 7 /* FDP */, 0, 0, 0),
	}

	tables, err := CollectTables(rows, MetadataColumnDefs)
	if err != nil {
		t.Fatalf("CollectTables: %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("len(tables) = %d, want 1", len(tables))
	}
	tbl := tables[0]
	if tbl.LongValue == nil || tbl.LongValue.RootPage != 99 {
		t.Fatalf("LongValue = %+v, want RootPage=99", tbl.LongValue)
	}
	if len(tbl.Indexes) != 1 || tbl.Indexes[0].ObjectID != 5 || tbl.Indexes[0].FatherDataPage != 7 {
		t.Fatalf("Indexes = %+v, unexpected", tbl.Indexes)
	}
}
