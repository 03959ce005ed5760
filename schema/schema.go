// Package schema resolves a directory-service data table (as decoded by
// github.com/RavuAlHemio/esedb) into its governing schema: object classes
// keyed by governsID and attributes keyed by their database column name,
// each carrying its LDAP display name, per SPEC_FULL.md §4.9.
//
// It is a separate package from esedb itself so that a consumer who only
// wants the generic ESE decoder never has to pull in directory-service
// naming conventions, mirroring the original project's split between its
// decoder library and the separate dump tool (addump) layered on top of it.
//
// The bootstrapping problem and its resolution are grounded directly on
// original_source/addump/src/schema.rs: the root object ($ROOT_OBJECT$) has
// DNT 2; rows whose parent is its optional "Boot" child are excluded so the
// schema root actually in use is found (rows further down Boot's subtree are
// not checked); the schema root's immediate children are
// classified as class or attribute definitions by their objectClass
// (ATTc0) value, and an attribute's database column name is derived from
// its declared syntax byte.
package schema

import (
	"fmt"

	"github.com/RavuAlHemio/esedb"
)

// Column names the bootstrap walk is grounded on.
const (
	DNTColumnName                   = "DNT_col"
	ParentDNTColumnName             = "PDNT_col"
	ObjectClassColumnName           = "ATTc0"
	TopObjectNameColumnName         = "ATTm589825"
	BootObjectName                  = "Boot"
	SchemaObjectLDAPNameColumnName  = "ATTm131532"
	SchemaClassGovernsIDColumnName  = "ATTc131094"
	SchemaAttributeIDColumnName     = "ATTc131102"
	SchemaAttributeSyntaxColumnName = "ATTc131104"
)

// Object-class constants the bootstrap walk is grounded on.
const (
	RootObjectDNT              int32 = 2
	SchemaRootObjectClass      int32 = 196617
	SchemaClassObjectClass     int32 = 196621
	SchemaAttributeObjectClass int32 = 196622
)

// syntaxLetterBase is subtracted from a declared attribute syntax (after
// adding 'a') to derive the single letter that goes between "ATT" and the
// attribute id in that attribute's database column name.
const syntaxLetterBase int32 = 0x0008_0000

// Attribute is one resolved schema attribute definition.
type Attribute struct {
	ID        int32
	Syntax    int32
	LDAPName  string
}

// ToColumnName returns the data-table column name this attribute is stored
// under: "ATT" + the letter derived from Syntax + the attribute id, e.g.
// "ATTm131532". Returns an error if Syntax does not map into ['a', 'z'].
func (a Attribute) ToColumnName() (string, error) {
	const lowercaseA, lowercaseZ = int32('a'), int32('z')
	letter := a.Syntax + lowercaseA - syntaxLetterBase
	if letter < lowercaseA || letter > lowercaseZ {
		return "", fmt.Errorf("schema: attribute %d has out-of-range syntax %d", a.ID, a.Syntax)
	}
	return fmt.Sprintf("ATT%c%d", rune(letter), a.ID), nil
}

// ObjectClass is one resolved schema class definition.
type ObjectClass struct {
	ID       int32
	LDAPName string
}

// Directory is the resolved schema: every class and attribute definition
// found under the schema root, plus the schema root row itself.
type Directory struct {
	SchemaRoot esedb.Row

	ClassesByID      map[int32]ObjectClass
	AttributesByName map[string]Attribute
}

func lookupColumnID(columns []esedb.Column, name string) (int32, error) {
	for _, c := range columns {
		if c.Name == name {
			return c.ID, nil
		}
	}
	return 0, fmt.Errorf("schema: data table has no %q column", name)
}

// rowHasLong reports whether any value stored under columnID in row is a
// Long equal to want, mirroring column_contains_value's Data::Long case.
func rowHasLong(row esedb.Row, columnID, want int32) bool {
	v, ok := row[columnID]
	if !ok {
		return false
	}
	for _, d := range v.AllData() {
		if d.Type == esedb.DataTypeLong && d.Long == want {
			return true
		}
	}
	return false
}

// rowHasLongText reports whether any value stored under columnID in row is
// a LongText equal to want, mirroring column_contains_value's
// Data::LongText case.
func rowHasLongText(row esedb.Row, columnID int32, want string) bool {
	v, ok := row[columnID]
	if !ok {
		return false
	}
	for _, d := range v.AllData() {
		if d.Type == esedb.DataTypeLongText && d.LongText == want {
			return true
		}
	}
	return false
}

// firstLong returns the first Long value stored under columnID in row.
func firstLong(row esedb.Row, columnID int32) (int32, bool) {
	v, ok := row[columnID]
	if !ok {
		return 0, false
	}
	d, ok := v.FirstData()
	if !ok || d.Type != esedb.DataTypeLong {
		return 0, false
	}
	return d.Long, true
}

// firstLongText returns the first LongText value stored under columnID in
// row.
func firstLongText(row esedb.Row, columnID int32) (string, bool) {
	v, ok := row[columnID]
	if !ok {
		return "", false
	}
	d, ok := v.FirstData()
	if !ok || d.Type != esedb.DataTypeLongText {
		return "", false
	}
	return d.LongText, true
}

// extractDNT reads row's own DNT as a plain (not tagged) Long, matching
// extract_dnt's requirement that a DNT value is always Value::Simple(Long).
func extractDNT(row esedb.Row, dntColumn int32) (int32, error) {
	v, ok := row[dntColumn]
	if !ok || v.Simple == nil || v.Simple.Type != esedb.DataTypeLong {
		return 0, fmt.Errorf("schema: row has no plain DNT value")
	}
	return v.Simple.Long, nil
}

// FindSchemaRoot locates the schema root row within dataTableRows: the row
// whose objectClass (ATTc0) is SchemaRootObjectClass and whose parent is not
// the optional "Boot" object (itself a child of the DNT=2 root object), per
// original_source/addump/src/schema.rs's find_schema_root. Only the direct
// parent is compared; rows further down Boot's subtree are not excluded.
func FindSchemaRoot(columns []esedb.Column, rows []esedb.Row) (esedb.Row, error) {
	dntCol, err := lookupColumnID(columns, DNTColumnName)
	if err != nil {
		return nil, err
	}
	parentDntCol, err := lookupColumnID(columns, ParentDNTColumnName)
	if err != nil {
		return nil, err
	}
	objectClassCol, err := lookupColumnID(columns, ObjectClassColumnName)
	if err != nil {
		return nil, err
	}
	topNameCol, err := lookupColumnID(columns, TopObjectNameColumnName)
	if err != nil {
		return nil, err
	}

	var bootDNT *int32
	for _, row := range rows {
		if rowHasLong(row, parentDntCol, RootObjectDNT) && rowHasLongText(row, topNameCol, BootObjectName) {
			dnt, err := extractDNT(row, dntCol)
			if err != nil {
				return nil, fmt.Errorf("schema: Boot entry has no DNT: %w", err)
			}
			bootDNT = &dnt
			break
		}
	}

	for _, row := range rows {
		if bootDNT != nil && rowHasLong(row, parentDntCol, *bootDNT) {
			continue
		}
		if rowHasLong(row, objectClassCol, SchemaRootObjectClass) {
			return row, nil
		}
	}
	return nil, fmt.Errorf("schema: schema root not found")
}

// CollectSchemaClasses enumerates schemaRoot's immediate children whose
// objectClass is SchemaClassObjectClass, keyed by their governsID
// (SchemaClassGovernsIDColumnName), per collect_schema_classes.
func CollectSchemaClasses(columns []esedb.Column, rows []esedb.Row, schemaRoot esedb.Row) (map[int32]ObjectClass, error) {
	dntCol, err := lookupColumnID(columns, DNTColumnName)
	if err != nil {
		return nil, err
	}
	parentDntCol, err := lookupColumnID(columns, ParentDNTColumnName)
	if err != nil {
		return nil, err
	}
	objectClassCol, err := lookupColumnID(columns, ObjectClassColumnName)
	if err != nil {
		return nil, err
	}
	governsIDCol, err := lookupColumnID(columns, SchemaClassGovernsIDColumnName)
	if err != nil {
		return nil, err
	}
	ldapNameCol, err := lookupColumnID(columns, SchemaObjectLDAPNameColumnName)
	if err != nil {
		return nil, err
	}

	schemaRootDNT, err := extractDNT(schemaRoot, dntCol)
	if err != nil {
		return nil, fmt.Errorf("schema: schema root has no DNT: %w", err)
	}

	classes := make(map[int32]ObjectClass)
	for _, row := range rows {
		if !rowHasLong(row, parentDntCol, schemaRootDNT) || !rowHasLong(row, objectClassCol, SchemaClassObjectClass) {
			continue
		}
		governsID, ok := firstLong(row, governsIDCol)
		if !ok {
			continue
		}
		ldapName, ok := firstLongText(row, ldapNameCol)
		if !ok {
			continue
		}
		classes[governsID] = ObjectClass{ID: governsID, LDAPName: ldapName}
	}
	return classes, nil
}

// CollectSchemaAttributes enumerates schemaRoot's immediate children whose
// objectClass is SchemaAttributeObjectClass, keyed by the database column
// name their syntax and attribute id derive, per
// collect_schema_attributes.
func CollectSchemaAttributes(columns []esedb.Column, rows []esedb.Row, schemaRoot esedb.Row) (map[string]Attribute, error) {
	dntCol, err := lookupColumnID(columns, DNTColumnName)
	if err != nil {
		return nil, err
	}
	parentDntCol, err := lookupColumnID(columns, ParentDNTColumnName)
	if err != nil {
		return nil, err
	}
	objectClassCol, err := lookupColumnID(columns, ObjectClassColumnName)
	if err != nil {
		return nil, err
	}
	attributeIDCol, err := lookupColumnID(columns, SchemaAttributeIDColumnName)
	if err != nil {
		return nil, err
	}
	attributeSyntaxCol, err := lookupColumnID(columns, SchemaAttributeSyntaxColumnName)
	if err != nil {
		return nil, err
	}
	ldapNameCol, err := lookupColumnID(columns, SchemaObjectLDAPNameColumnName)
	if err != nil {
		return nil, err
	}

	schemaRootDNT, err := extractDNT(schemaRoot, dntCol)
	if err != nil {
		return nil, fmt.Errorf("schema: schema root has no DNT: %w", err)
	}

	attributes := make(map[string]Attribute)
	for _, row := range rows {
		if !rowHasLong(row, parentDntCol, schemaRootDNT) || !rowHasLong(row, objectClassCol, SchemaAttributeObjectClass) {
			continue
		}
		attributeID, ok := firstLong(row, attributeIDCol)
		if !ok {
			continue
		}
		syntax, ok := firstLong(row, attributeSyntaxCol)
		if !ok {
			continue
		}
		ldapName, ok := firstLongText(row, ldapNameCol)
		if !ok {
			continue
		}
		attr := Attribute{ID: attributeID, Syntax: syntax, LDAPName: ldapName}
		columnName, err := attr.ToColumnName()
		if err != nil {
			// Malformed syntax byte: skip this attribute rather than fail the
			// whole walk, matching the rest of this package's lossless/
			// best-effort posture toward individual malformed rows.
			continue
		}
		attributes[columnName] = attr
	}
	return attributes, nil
}

// Resolve runs the full schema bootstrap over a directory-service data
// table's decoded rows and columns: locate the schema root, then collect the
// classes and attributes defined immediately beneath it.
func Resolve(dataTableRows []esedb.Row, dataTableColumns []esedb.Column) (*Directory, error) {
	schemaRoot, err := FindSchemaRoot(dataTableColumns, dataTableRows)
	if err != nil {
		return nil, err
	}
	classes, err := CollectSchemaClasses(dataTableColumns, dataTableRows, schemaRoot)
	if err != nil {
		return nil, err
	}
	attributes, err := CollectSchemaAttributes(dataTableColumns, dataTableRows, schemaRoot)
	if err != nil {
		return nil, err
	}
	return &Directory{
		SchemaRoot:       schemaRoot,
		ClassesByID:      classes,
		AttributesByName: attributes,
	}, nil
}

// FindObjectClass resolves a class by its governsID.
func (d *Directory) FindObjectClass(governsID int32) (ObjectClass, bool) {
	c, ok := d.ClassesByID[governsID]
	return c, ok
}

// FindAttribute resolves an attribute by its database column name.
func (d *Directory) FindAttribute(columnName string) (Attribute, bool) {
	a, ok := d.AttributesByName[columnName]
	return a, ok
}
