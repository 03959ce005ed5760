package esedb

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestPageByteOffsetPage0Errors(t *testing.T) {
	_, err := pageByteOffset(4096, 0)
	if err == nil {
		t.Fatal("pageByteOffset(_, 0): want error, got nil")
	}
	kind, ok := KindOf(err)
	if !ok || kind != KindPage0 {
		t.Fatalf("KindOf(err) = (%v, %v), want (KindPage0, true)", kind, ok)
	}
}

func TestPageByteOffsetAddressing(t *testing.T) {
	tests := []struct {
		pageNumber uint64
		want       uint64
	}{
		{1, 2 * 4096},
		{2, 3 * 4096},
		{10, 11 * 4096},
	}
	for _, tt := range tests {
		got, err := pageByteOffset(4096, tt.pageNumber)
		if err != nil {
			t.Fatalf("pageByteOffset(_, %d): %v", tt.pageNumber, err)
		}
		if got != tt.want {
			t.Fatalf("pageByteOffset(_, %d) = %d, want %d", tt.pageNumber, got, tt.want)
		}
	}
}

func TestPageFlagsHas(t *testing.T) {
	f := PageFlagLeaf | PageFlagRoot
	if !f.Has(PageFlagLeaf) {
		t.Fatal("Has(PageFlagLeaf): want true")
	}
	if f.Has(PageFlagBranch) {
		t.Fatal("Has(PageFlagBranch): want false")
	}
	if !f.Has(PageFlagLeaf | PageFlagRoot) {
		t.Fatal("Has(PageFlagLeaf|PageFlagRoot): want true")
	}
}

func TestReadRootPageHeaderShort(t *testing.T) {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint32(data[0:4], 7)               // InitialPageCount
	binary.LittleEndian.PutUint32(data[4:8], 99)               // ParentFatherDataPageNumber
	binary.LittleEndian.PutUint32(data[8:12], uint32(ExtentSpaceMultiple))
	binary.LittleEndian.PutUint32(data[12:16], 42)             // SpaceTreePageNumber

	rph, err := ReadRootPageHeader(data)
	if err != nil {
		t.Fatalf("ReadRootPageHeader: %v", err)
	}
	if rph.IsLong {
		t.Fatal("IsLong: want false for 16-byte payload")
	}
	if rph.Short.InitialPageCount != 7 || rph.Short.ParentFatherDataPageNumber != 99 ||
		rph.Short.ExtentSpace != ExtentSpaceMultiple || rph.Short.SpaceTreePageNumber != 42 {
		t.Fatalf("Short = %+v, unexpected", rph.Short)
	}
}

func TestReadRootPageHeaderLong(t *testing.T) {
	data := make([]byte, 25)
	binary.LittleEndian.PutUint32(data[0:4], 1)
	data[4] = 0xAB
	binary.LittleEndian.PutUint32(data[5:9], 2)
	binary.LittleEndian.PutUint32(data[9:13], uint32(ExtentSpaceSingle))
	binary.LittleEndian.PutUint32(data[13:17], 3)
	binary.LittleEndian.PutUint32(data[17:21], 4)
	binary.LittleEndian.PutUint32(data[21:25], 5)

	rph, err := ReadRootPageHeader(data)
	if err != nil {
		t.Fatalf("ReadRootPageHeader: %v", err)
	}
	if !rph.IsLong {
		t.Fatal("IsLong: want true for 25-byte payload")
	}
	if rph.Long.Unknown1 != 0xAB || rph.Long.SpaceTreePageNumber != 3 {
		t.Fatalf("Long = %+v, unexpected", rph.Long)
	}
}

func TestReadRootPageHeaderUnknownLength(t *testing.T) {
	_, err := ReadRootPageHeader(make([]byte, 20))
	if err == nil {
		t.Fatal("ReadRootPageHeader(20 bytes): want error, got nil")
	}
	kind, ok := KindOf(err)
	if !ok || kind != KindUnknownFormatVariant {
		t.Fatalf("KindOf(err) = (%v, %v), want (KindUnknownFormatVariant, true)", kind, ok)
	}
}

// buildV1LeafPage assembles a small (<=8KiB) page using the V1 (no extended
// checksum format) header shape, with a single leaf page tag array of two
// entries, laid out the way the format stores it: payload immediately after
// the 40-byte header, tag records growing downward from the end of the page.
// Returns the full backing buffer plus the page's own start offset.
func buildV1LeafPage(t *testing.T, pageSize uint32, pageNumber uint64) ([]byte, uint64) {
	t.Helper()

	end, err := pageByteOffset(pageSize, pageNumber+1)
	if err != nil {
		t.Fatalf("pageByteOffset(end): %v", err)
	}
	pageStart, err := pageByteOffset(pageSize, pageNumber)
	if err != nil {
		t.Fatalf("pageByteOffset(start): %v", err)
	}

	buf := make([]byte, end)

	// First 8 bytes: V1 checksum+page-number pair. XorChecksum left 0; the
	// high 32 bits carry the page number ReadPageTags/ReadDataFromTree key
	// their page-boundary math off of.
	binary.LittleEndian.PutUint32(buf[pageStart+4:pageStart+8], uint32(pageNumber))

	// Remaining 32 bytes of the 40-byte V1 header.
	const tagCount = 2
	binary.LittleEndian.PutUint16(buf[pageStart+34:pageStart+36], uint16(tagCount)) // FirstAvailablePageTag
	binary.LittleEndian.PutUint32(buf[pageStart+36:pageStart+40], uint32(PageFlagLeaf))

	// Payload: entry A ("AAAA", no local key) then entry B ("BBBB", no local
	// key), back to back right after the header.
	payloadStart := pageStart + 40
	binary.LittleEndian.PutUint16(buf[payloadStart+0:payloadStart+2], 0) // localSize=0
	copy(buf[payloadStart+2:payloadStart+6], "AAAA")
	binary.LittleEndian.PutUint16(buf[payloadStart+6:payloadStart+8], 0) // localSize=0
	copy(buf[payloadStart+8:payloadStart+12], "BBBB")

	// Tag array: 2 tags * 4 bytes, growing down from the end of the page.
	// The tag read first ends up last after ReadPageTags reverses the
	// array, so to have tags[0] point at entry A (offset 0) we must write
	// entry A's tag record second (closer to the page end).
	tagAreaStart := end - 8
	binary.LittleEndian.PutUint16(buf[tagAreaStart+0:tagAreaStart+2], 6) // entry B: sizeWord
	binary.LittleEndian.PutUint16(buf[tagAreaStart+2:tagAreaStart+4], 6) // entry B: offsetWord (offset=6)
	binary.LittleEndian.PutUint16(buf[tagAreaStart+4:tagAreaStart+6], 6) // entry A: sizeWord
	binary.LittleEndian.PutUint16(buf[tagAreaStart+6:tagAreaStart+8], 0) // entry A: offsetWord (offset=0)

	return buf, pageStart
}

func TestReadPageHeaderAndTagsV1(t *testing.T) {
	const pageSize = 512
	const pageNumber = uint64(1)
	buf, _ := buildV1LeafPage(t, pageSize, pageNumber)

	h := &Header{PageSize: pageSize}
	r := bytes.NewReader(buf)

	ph, err := ReadPageHeader(r, h, pageNumber)
	if err != nil {
		t.Fatalf("ReadPageHeader: %v", err)
	}
	if ph.ChecksumAndPageNumber.Version != checksumV1 {
		t.Fatalf("Version = %v, want checksumV1", ph.ChecksumAndPageNumber.Version)
	}
	if ph.PageNumber() != pageNumber {
		t.Fatalf("PageNumber() = %d, want %d", ph.PageNumber(), pageNumber)
	}
	if !ph.Flags.Has(PageFlagLeaf) {
		t.Fatal("Flags: want PageFlagLeaf set")
	}
	if ph.SizeBytes() != 40 {
		t.Fatalf("SizeBytes() = %d, want 40", ph.SizeBytes())
	}

	tags, err := ReadPageTags(r, h, ph)
	if err != nil {
		t.Fatalf("ReadPageTags: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("len(tags) = %d, want 2", len(tags))
	}
	if tags[0].ValueOffset != 0 || tags[0].ValueSize != 6 {
		t.Fatalf("tags[0] = %+v, want offset=0 size=6", tags[0])
	}
	if tags[1].ValueOffset != 6 || tags[1].ValueSize != 6 {
		t.Fatalf("tags[1] = %+v, want offset=6 size=6", tags[1])
	}

	entry0, err := ReadPageEntry(r, h, ph, tags[0])
	if err != nil {
		t.Fatalf("ReadPageEntry(tags[0]): %v", err)
	}
	if entry0.Kind != PageEntryLeaf || string(entry0.Leaf.EntryData) != "AAAA" {
		t.Fatalf("entry0 = %+v, want Leaf.EntryData=AAAA", entry0)
	}

	entry1, err := ReadPageEntry(r, h, ph, tags[1])
	if err != nil {
		t.Fatalf("ReadPageEntry(tags[1]): %v", err)
	}
	if entry1.Kind != PageEntryLeaf || string(entry1.Leaf.EntryData) != "BBBB" {
		t.Fatalf("entry1 = %+v, want Leaf.EntryData=BBBB", entry1)
	}
}

func TestReadDataFromTreeSingleLeafPage(t *testing.T) {
	const pageSize = 512
	const pageNumber = uint64(1)
	buf, _ := buildV1LeafPage(t, pageSize, pageNumber)

	h := &Header{PageSize: pageSize}
	r := bytes.NewReader(buf)

	var out [][]byte
	cursor := 0
	if err := ReadDataFromTree(r, h, pageNumber, 0, 10, &out, &cursor); err != nil {
		t.Fatalf("ReadDataFromTree: %v", err)
	}
	if len(out) != 2 || string(out[0]) != "AAAA" || string(out[1]) != "BBBB" {
		t.Fatalf("out = %v, want [AAAA BBBB]", stringsOf(out))
	}
}

func stringsOf(b [][]byte) []string {
	s := make([]string, len(b))
	for i, v := range b {
		s[i] = string(v)
	}
	return s
}
