package esedb

import (
	"io"
	"log/slog"
)

// Reader is the bootstrap driver (C8): it owns the underlying stream, the
// primary and shadow headers, and the resolved catalog, and exposes table
// lookup and row reading without any write/transaction/recovery surface,
// mirroring the teacher's Pager-as-façade convention minus everything
// write-related.
type Reader struct {
	r            io.ReadSeeker
	header       *Header
	shadowHeader *Header
	catalog      []Table

	cache *pageCache
	log   *slog.Logger
}

// Option configures a Reader at construction time.
type Option func(*Reader)

// WithLogger directs Reader's diagnostics at l instead of slog's default
// logger.
func WithLogger(l *slog.Logger) Option {
	return func(rd *Reader) { rd.log = l }
}

// WithCache enables an in-memory LRU of decoded page headers/tags, sized for
// up to size pages. size <= 0 leaves caching disabled (the default).
func WithCache(size int) Option {
	return func(rd *Reader) { rd.cache = newPageCache(size) }
}

// Open performs the two-pass bootstrap over r: read and validate the
// primary header (and, best-effort, the shadow copy immediately following
// it), read the catalog table using the hardcoded MetadataColumnDefs schema
// to find MSysObjects, then re-read the catalog from MSysObjects's father
// data page with the columns the first pass found for it, and assemble the
// result into a queryable list of Tables.
func Open(r io.ReadSeeker, opts ...Option) (*Reader, error) {
	rd := &Reader{r: r}
	for _, opt := range opts {
		opt(rd)
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, wrapIO(err)
	}
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	rd.header = h

	if _, serr := r.Seek(int64(h.PageSizeAsInt()), io.SeekStart); serr == nil {
		if shadow, rerr := ReadHeader(r); rerr == nil {
			if shadow.Checksum != h.Checksum || shadow.Signature != h.Signature {
				rd.logger().Warn("esedb: shadow header does not match primary header",
					"primaryChecksum", h.Checksum, "shadowChecksum", shadow.Checksum)
			}
			rd.shadowHeader = shadow
		} else {
			rd.logger().Warn("esedb: failed to read shadow header", "error", rerr)
		}
	}

	// Pass 1: read the catalog with the hardcoded minimal schema, just far
	// enough to locate MSysObjects's own row (its father data page and, now
	// that a first catalog exists, its full column list).
	provisionalRows, err := ReadTableFromPages(r, h, CatalogPageNumber, MetadataColumnDefs, nil)
	if err != nil {
		return nil, err
	}
	provisional, err := CollectTables(provisionalRows, MetadataColumnDefs)
	if err != nil {
		return nil, err
	}

	msysObjects, ok := findTableByName(provisional, msysObjectsTableName)
	if !ok {
		return nil, errMissingRequiredColumn(msysObjectsTableName)
	}

	// Pass 2: re-read the catalog from MSysObjects's own father data page,
	// this time with the full column list pass 1 discovered (and its
	// long-value page, if it has one), per SPEC_FULL.md §4.8 step 3. This
	// picks up catalog metadata (e.g. Name values held as a long value) the
	// minimal bootstrap schema could not decode.
	var longValuePage *uint64
	if msysObjects.LongValue != nil {
		p := msysObjects.LongValue.RootPage
		longValuePage = &p
	}
	finalRows, err := ReadTableFromPages(r, h, msysObjects.Header.FatherDataPage, msysObjects.Columns, longValuePage)
	if err != nil {
		return nil, err
	}
	tables, err := CollectTables(finalRows, msysObjects.Columns)
	if err != nil {
		return nil, err
	}
	rd.catalog = tables

	rd.logger().Info("esedb: bootstrap complete", "tableCount", len(tables), "pass1TableCount", len(provisional))
	return rd, nil
}

// msysObjectsTableName is the well-known name of the catalog table as it
// appears in its own rows.
const msysObjectsTableName = "MSysObjects"

func findTableByName(tables []Table, name string) (*Table, bool) {
	for i := range tables {
		if tables[i].Header.Name == name {
			return &tables[i], true
		}
	}
	return nil, false
}

// Header returns the primary database header.
func (rd *Reader) Header() *Header { return rd.header }

// ShadowHeader returns the shadow (backup) header, or nil if it could not be
// read.
func (rd *Reader) ShadowHeader() *Header { return rd.shadowHeader }

// Tables returns every table the catalog describes, in catalog-scan order.
func (rd *Reader) Tables() []Table { return rd.catalog }

// Table looks up a single table by name.
func (rd *Reader) Table(name string) (*Table, bool) {
	for i := range rd.catalog {
		if rd.catalog[i].Header.Name == name {
			return &rd.catalog[i], true
		}
	}
	return nil, false
}

// ReadRows decodes every row of t, resolving SEPARATED tagged values against
// t's long-value tree when it has one.
func (rd *Reader) ReadRows(t *Table) ([]Row, error) {
	var longValuePage *uint64
	if t.LongValue != nil {
		p := t.LongValue.RootPage
		longValuePage = &p
	}

	var raw [][]byte
	cursor := 0
	if err := rd.readDataFromTreeCached(t.Header.FatherDataPage, 0, int(^uint(0)>>1), &raw, &cursor, 0); err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(raw))
	for _, entryData := range raw {
		row, err := DecodeRow(rd.r, rd.header, t.Header.ObjectID, entryData, t.Columns, longValuePage)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// readPage is ReadPageHeader+ReadPageTags fused with an optional cache
// lookup, used only by Reader's own tree walk (ReadRows) so that pages
// visited by an earlier ReadRows call are not re-read and re-decoded.
// Long-value lookups made inside DecodeRow go through the uncached
// ReadDataFromTree.
func (rd *Reader) readPage(pageNumber uint64) (*PageHeader, []PageTag, error) {
	if entry, ok := rd.cache.get(pageNumber); ok {
		return entry.ph, entry.tags, nil
	}
	ph, err := ReadPageHeader(rd.r, rd.header, pageNumber)
	if err != nil {
		return nil, nil, err
	}
	tags, err := ReadPageTags(rd.r, rd.header, ph)
	if err != nil {
		return nil, nil, err
	}
	rd.cache.put(pageNumber, pageCacheEntry{ph: ph, tags: tags})
	return ph, tags, nil
}

// readDataFromTreeCached mirrors the public ReadDataFromTree's traversal
// exactly, but goes through readPage instead of ReadPageHeader/ReadPageTags
// directly so the optional cache actually gets exercised. Kept as a separate
// method rather than threading a cache parameter through the public
// function, since §6 fixes ReadDataFromTree's signature as part of the
// external interface.
func (rd *Reader) readDataFromTreeCached(pageNumber uint64, startIndex, maxCount int, out *[][]byte, cursor *int, depth int) error {
	if depth > maxTreeDepth {
		return errTreeTooDeep()
	}
	if len(*out) >= maxCount {
		return nil
	}

	ph, tags, err := rd.readPage(pageNumber)
	if err != nil {
		return err
	}

	for i, tag := range tags {
		if len(*out) >= maxCount {
			return nil
		}
		if ph.Flags.Has(PageFlagRoot) && i == 0 {
			continue
		}

		entry, err := ReadPageEntry(rd.r, rd.header, ph, tag)
		if err != nil {
			return err
		}

		if branch, ok := entry.AsBranch(); ok {
			if err := rd.readDataFromTreeCached(uint64(branch.ChildPageNumber), startIndex, maxCount, out, cursor, depth+1); err != nil {
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
