package esedb

import "io"

// maxTreeDepth bounds B-tree recursion so a corrupt or cyclic page-linkage
// fails with TreeTooDeep instead of recursing until the stack blows up.
const maxTreeDepth = 100

// ReadDataFromTree walks the B-tree rooted at rootPage in page-tag order,
// collecting leaf entry_data payloads into out. Entries before the
// startIndex-th (counted via the shared cursor, so repeated calls across
// sibling subtrees share one global index) are skipped; collection stops
// once len(*out) reaches maxCount.
//
// This procedure has no directly corresponding function in the reference
// decoder's retrieved sources (its definition was not present in the
// retrieval pack despite being called from the table-assembly code); it is
// derived here from the prose description of the tree walk and the two
// observed call shapes (a full-table walk with startIndex=0,
// maxCount=MaxInt, and a long-value lookup with startIndex=value_number,
// maxCount=1). See DESIGN.md.
func ReadDataFromTree(r io.ReadSeeker, h *Header, rootPage uint64, startIndex, maxCount int, out *[][]byte, cursor *int) error {
	return readDataFromTree(r, h, rootPage, startIndex, maxCount, out, cursor, 0)
}

func readDataFromTree(r io.ReadSeeker, h *Header, pageNumber uint64, startIndex, maxCount int, out *[][]byte, cursor *int, depth int) error {
	if depth > maxTreeDepth {
		return errTreeTooDeep()
	}
	if len(*out) >= maxCount {
		return nil
	}

	ph, err := ReadPageHeader(r, h, pageNumber)
	if err != nil {
		return err
	}
	tags, err := ReadPageTags(r, h, ph)
	if err != nil {
		return err
	}

	for i, tag := range tags {
		if len(*out) >= maxCount {
			return nil
		}
		// Tag 0 of a root page holds the root page header, not a data entry
		// or child pointer.
		if ph.Flags.Has(PageFlagRoot) && i == 0 {
			continue
		}

		entry, err := ReadPageEntry(r, h, ph, tag)
		if err != nil {
			return err
		}

		if branch, ok := entry.AsBranch(); ok {
			if err := readDataFromTree(r, h, uint64(branch.ChildPageNumber), startIndex, maxCount, out, cursor, depth+1); err != nil {
				return err
			}
			continue
		}

		if entry.Kind == PageEntryLeaf {
			if *cursor >= startIndex {
				*out = append(*out, entry.Leaf.EntryData)
			}
			*cursor++
		}
	}
	return nil
}

// ReadTableFromPages walks the data-page tree rooted at pageNumber and
// decodes every leaf entry into a Row using columns, per SPEC_FULL.md §4.7's
// table-assembly step. longValuePage, if non-nil, is the root page of the
// table's long-value tree, used to resolve SEPARATED tagged values.
func ReadTableFromPages(r io.ReadSeeker, h *Header, pageNumber uint64, columns []Column, longValuePage *uint64) ([]Row, error) {
	var raw [][]byte
	cursor := 0
	if err := ReadDataFromTree(r, h, pageNumber, 0, int(^uint(0)>>1), &raw, &cursor); err != nil {
		return nil, err
	}

	tableID := int32(0)
	if len(columns) > 0 {
		tableID = columns[0].TableObjectID
	}

	rows := make([]Row, 0, len(raw))
	for _, entryData := range raw {
		row, err := DecodeRow(r, h, tableID, entryData, columns, longValuePage)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
