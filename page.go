package esedb

import (
	"encoding/binary"
	"io"
)

// maxSizeSmallPage is the page-size threshold (8 KiB) at or below which the "small"
// tag wire format and 40-byte extended-header-free page header apply.
const maxSizeSmallPage = 8 * 1024

// PageFlags is the 32-bit flag bitmap in every page header.
type PageFlags uint32

const (
	PageFlagRoot              PageFlags = 0x1
	PageFlagLeaf              PageFlags = 0x2
	PageFlagBranch            PageFlags = 0x4
	PageFlagEmpty             PageFlags = 0x8
	PageFlagRepair            PageFlags = 0x10
	PageFlagSpaceTree         PageFlags = 0x20
	PageFlagIndex             PageFlags = 0x40
	PageFlagLongValue         PageFlags = 0x80
	PageFlagSlvAvail          PageFlags = 0x100
	PageFlagSlvOwnerMap       PageFlags = 0x200
	PageFlagNonUniqueKeys     PageFlags = 0x400
	PageFlagNewRecordFormat   PageFlags = 0x800
	PageFlagNewChecksumFormat PageFlags = 0x2000
	PageFlagScrubbed          PageFlags = 0x4000
	// Flush-pattern group: these three share the same two bits and are
	// mutually exclusive, not combinable with the other flags above.
	PageFlagRockWrite      PageFlags = 0x8000
	PageFlagPaperWrite     PageFlags = 0x10000
	PageFlagScissorsWrite  PageFlags = 0x18000
	PageFlagPreinitialized PageFlags = 0x20000
)

// Has reports whether every bit of want is set in f.
func (f PageFlags) Has(want PageFlags) bool {
	return f&want == want
}

// ExtentSpace is an open enumeration describing a root page's space
// allocation strategy.
type ExtentSpace uint32

const (
	ExtentSpaceSingle   ExtentSpace = 0
	ExtentSpaceMultiple ExtentSpace = 1
)

// ExtendedPageHeader is the 40-byte tail present on large (>8 KiB) pages
// under the new checksum format, carrying the page's real page number.
type ExtendedPageHeader struct {
	ExtendedChecksum1 uint64
	ExtendedChecksum2 uint64
	ExtendedChecksum3 uint64
	PageNumber        uint64
	Unknown           uint64
}

// extendedPageHeaderOrPageNumber is either a real ExtendedPageHeader (large
// pages) or a page number supplied by the caller from context (small pages,
// which never carry an extended header even under the new checksum format).
type extendedPageHeaderOrPageNumber struct {
	hasExtended      bool
	extended         ExtendedPageHeader
	callerPageNumber uint64
}

func (e extendedPageHeaderOrPageNumber) pageNumber() uint64 {
	if e.hasExtended {
		return e.extended.PageNumber
	}
	return e.callerPageNumber
}

type checksumVersion int

const (
	checksumV1 checksumVersion = iota
	checksumV2
	checksumV3
)

// ChecksumAndPageNumber is the version-dependent first 8 bytes of a page
// header: split XOR checksum + page number (V1), split XOR+ECC checksums
// plus an extended header (V2), or a single 64-bit checksum plus an extended
// header (V3).
type ChecksumAndPageNumber struct {
	Version      checksumVersion
	XorChecksum  uint32 // V1, V2
	PageNumberV1 uint32 // V1 only
	EccChecksum  uint32 // V2 only
	Checksum64   uint64 // V3 only

	extended extendedPageHeaderOrPageNumber // V2, V3
}

// PageNumber returns the page number regardless of header variant.
func (c ChecksumAndPageNumber) PageNumber() uint64 {
	if c.Version == checksumV1 {
		return uint64(c.PageNumberV1)
	}
	return c.extended.pageNumber()
}

// PageHeader is the common page header shape, after splitting out the
// version-dependent checksum/page-number prefix.
type PageHeader struct {
	ChecksumAndPageNumber        ChecksumAndPageNumber
	LastModificationTime         DbTime
	PrevPageNum                  uint32
	NextPageNum                  uint32
	FatherDataPageOid            uint32
	AvailableDataSize             uint16
	AvailableUncommittedDataSize uint16
	FirstAvailableDataOffset     uint16
	FirstAvailablePageTag        uint16
	Flags                        PageFlags
}

// PageNumber returns this page's own page number.
func (p *PageHeader) PageNumber() uint64 {
	return p.ChecksumAndPageNumber.PageNumber()
}

// SizeBytes returns the on-disk size of the page header: 40 bytes for V1, or
// for V2/V3 on a small page (no extended header read), 80 bytes when an
// extended header is present.
func (p *PageHeader) SizeBytes() int {
	if p.ChecksumAndPageNumber.Version == checksumV1 {
		return 40
	}
	if p.ChecksumAndPageNumber.extended.hasExtended {
		return 80
	}
	return 40
}

// PageTagFlags are the per-tag flag bits (VERSION, DELETED, COMPRESSED).
type PageTagFlags uint8

const (
	PageTagVersion    PageTagFlags = 0x1
	PageTagDeleted    PageTagFlags = 0x2
	PageTagCompressed PageTagFlags = 0x4
)

func (f PageTagFlags) Has(want PageTagFlags) bool {
	return f&want == want
}

// PageTag is a normalized tag-table entry: where its payload lives, how big
// it is, and its flags.
type PageTag struct {
	ValueOffset uint16
	ValueSize   uint16
	Flags       PageTagFlags
	// FlagsInData is true for large-page tags: their 3-bit flags live in the
	// top bits of the payload's first u16 rather than in the tag record, and
	// must be masked out of the payload before use.
	FlagsInData bool
}

// RootPageHeaderShort is the 16-byte root-page-header shape.
type RootPageHeaderShort struct {
	InitialPageCount           uint32
	ParentFatherDataPageNumber uint32
	ExtentSpace                ExtentSpace
	SpaceTreePageNumber        uint32
}

// RootPageHeaderLong is the 25-byte root-page-header shape.
type RootPageHeaderLong struct {
	InitialPageCount           uint32
	Unknown1                   uint8
	ParentFatherDataPageNumber uint32
	ExtentSpace                ExtentSpace
	SpaceTreePageNumber        uint32
	Unknown2                   uint32
	Unknown3                   uint32
}

// RootPageHeader is whichever of the two root-page-header shapes the
// payload length selected.
type RootPageHeader struct {
	IsLong bool
	Short  RootPageHeaderShort
	Long   RootPageHeaderLong
}

// ReadRootPageHeader dispatches strictly on len(data): 16 bytes is the short
// shape, 25 bytes the long shape, anything else is unrecognized.
func ReadRootPageHeader(data []byte) (RootPageHeader, error) {
	switch len(data) {
	case 16:
		l := newLittleEndianReader(bytesReader(data))
		var s RootPageHeaderShort
		var err error
		if s.InitialPageCount, err = l.readU32(); err != nil {
			return RootPageHeader{}, wrapIO(err)
		}
		if s.ParentFatherDataPageNumber, err = l.readU32(); err != nil {
			return RootPageHeader{}, wrapIO(err)
		}
		es, err := l.readU32()
		if err != nil {
			return RootPageHeader{}, wrapIO(err)
		}
		s.ExtentSpace = ExtentSpace(es)
		if s.SpaceTreePageNumber, err = l.readU32(); err != nil {
			return RootPageHeader{}, wrapIO(err)
		}
		return RootPageHeader{IsLong: false, Short: s}, nil
	case 25:
		l := newLittleEndianReader(bytesReader(data))
		var lg RootPageHeaderLong
		var err error
		if lg.InitialPageCount, err = l.readU32(); err != nil {
			return RootPageHeader{}, wrapIO(err)
		}
		u1, err := l.readU8()
		if err != nil {
			return RootPageHeader{}, wrapIO(err)
		}
		lg.Unknown1 = u1
		if lg.ParentFatherDataPageNumber, err = l.readU32(); err != nil {
			return RootPageHeader{}, wrapIO(err)
		}
		es, err := l.readU32()
		if err != nil {
			return RootPageHeader{}, wrapIO(err)
		}
		lg.ExtentSpace = ExtentSpace(es)
		if lg.SpaceTreePageNumber, err = l.readU32(); err != nil {
			return RootPageHeader{}, wrapIO(err)
		}
		if lg.Unknown2, err = l.readU32(); err != nil {
			return RootPageHeader{}, wrapIO(err)
		}
		if lg.Unknown3, err = l.readU32(); err != nil {
			return RootPageHeader{}, wrapIO(err)
		}
		return RootPageHeader{IsLong: true, Long: lg}, nil
	default:
		return RootPageHeader{}, errUnknownFormatVariant()
	}
}

// CommonPageEntry is the optional compressed-common-key-size plus local key
// bytes shared by every page entry shape except index-leaf entries.
type CommonPageEntry struct {
	CommonPageKeySize *uint16
	LocalPageKey      []byte
}

type BranchPageEntry struct {
	Common          CommonPageEntry
	ChildPageNumber uint32
}

type LeafPageEntry struct {
	Common    CommonPageEntry
	EntryData []byte
}

type SpaceLeafPageEntry struct {
	Common        CommonPageEntry
	NumberOfPages uint32
}

type IndexLeafPageEntry struct {
	RecordPageKey []byte
}

// PageEntryKind classifies a decoded PageEntry.
type PageEntryKind int

const (
	PageEntryRoot PageEntryKind = iota
	PageEntryBranch
	PageEntryLeaf
	PageEntrySpaceBranch
	PageEntrySpaceLeaf
	PageEntryIndexBranch
	PageEntryIndexLeaf
)

// PageEntry is a decoded tag payload; which field is populated depends on
// Kind.
type PageEntry struct {
	Kind      PageEntryKind
	Branch    BranchPageEntry
	Leaf      LeafPageEntry
	SpaceLeaf SpaceLeafPageEntry
	IndexLeaf IndexLeafPageEntry
}

// AsBranch returns the branch-shaped payload for any of the four branch-like
// kinds (Root, Branch, SpaceBranch, IndexBranch), or ok=false otherwise.
func (e PageEntry) AsBranch() (BranchPageEntry, bool) {
	switch e.Kind {
	case PageEntryRoot, PageEntryBranch, PageEntrySpaceBranch, PageEntryIndexBranch:
		return e.Branch, true
	default:
		return BranchPageEntry{}, false
	}
}

// pageByteOffset maps a logical page number to its byte offset within the
// file: page 0 is never addressable (it belongs to the header), and logical
// page N occupies bytes [(N+1)*page_size, (N+2)*page_size).
func pageByteOffset(pageSize uint32, pageNumber uint64) (uint64, error) {
	if pageNumber == 0 {
		return 0, errPage0()
	}
	return (pageNumber + 1) * uint64(pageSize), nil
}

func pageTagDataOffset(pageSize uint32, pageNumber uint64, pageHeaderSize uint64, tagValueOffset uint16) (uint64, error) {
	base, err := pageByteOffset(pageSize, pageNumber)
	if err != nil {
		return 0, err
	}
	return base + pageHeaderSize + uint64(tagValueOffset), nil
}

// ReadPageHeader reads the header of page pageNumber, selecting the V1/V2/V3
// shape per SPEC_FULL.md §3/§4.3.
func ReadPageHeader(r io.ReadSeeker, h *Header, pageNumber uint64) (*PageHeader, error) {
	offset, err := pageByteOffset(h.PageSize, pageNumber)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, wrapIO(err)
	}

	raw := make([]byte, 40)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, wrapIO(err)
	}
	checksumAndPageNumberValue := binary.LittleEndian.Uint64(raw[0:8])

	ph := &PageHeader{}
	var l *littleEndianReader
	{
		l = newLittleEndianReader(bytesReader(raw[8:]))
	}
	var derr error
	if ph.LastModificationTime, derr = readDbTime(l); derr != nil {
		return nil, wrapIO(derr)
	}
	if ph.PrevPageNum, derr = l.readU32(); derr != nil {
		return nil, wrapIO(derr)
	}
	if ph.NextPageNum, derr = l.readU32(); derr != nil {
		return nil, wrapIO(derr)
	}
	if ph.FatherDataPageOid, derr = l.readU32(); derr != nil {
		return nil, wrapIO(derr)
	}
	if ph.AvailableDataSize, derr = l.readU16(); derr != nil {
		return nil, wrapIO(derr)
	}
	if ph.AvailableUncommittedDataSize, derr = l.readU16(); derr != nil {
		return nil, wrapIO(derr)
	}
	if ph.FirstAvailableDataOffset, derr = l.readU16(); derr != nil {
		return nil, wrapIO(derr)
	}
	if ph.FirstAvailablePageTag, derr = l.readU16(); derr != nil {
		return nil, wrapIO(derr)
	}
	flagsRaw, derr := l.readU32()
	if derr != nil {
		return nil, wrapIO(derr)
	}
	ph.Flags = PageFlags(flagsRaw)

	if !ph.Flags.Has(PageFlagNewChecksumFormat) {
		ph.ChecksumAndPageNumber = ChecksumAndPageNumber{
			Version:      checksumV1,
			XorChecksum:  uint32(checksumAndPageNumberValue),
			PageNumberV1: uint32(checksumAndPageNumberValue >> 32),
		}
		return ph, nil
	}

	var ext extendedPageHeaderOrPageNumber
	if int(h.PageSize) <= maxSizeSmallPage {
		ext = extendedPageHeaderOrPageNumber{hasExtended: false, callerPageNumber: pageNumber}
	} else {
		extRaw := make([]byte, 40)
		if _, err := io.ReadFull(r, extRaw); err != nil {
			return nil, wrapIO(err)
		}
		el := newLittleEndianReader(bytesReader(extRaw))
		var eh ExtendedPageHeader
		var eerr error
		if eh.ExtendedChecksum1, eerr = el.readU64(); eerr != nil {
			return nil, wrapIO(eerr)
		}
		if eh.ExtendedChecksum2, eerr = el.readU64(); eerr != nil {
			return nil, wrapIO(eerr)
		}
		if eh.ExtendedChecksum3, eerr = el.readU64(); eerr != nil {
			return nil, wrapIO(eerr)
		}
		if eh.PageNumber, eerr = el.readU64(); eerr != nil {
			return nil, wrapIO(eerr)
		}
		if eh.Unknown, eerr = el.readU64(); eerr != nil {
			return nil, wrapIO(eerr)
		}
		ext = extendedPageHeaderOrPageNumber{hasExtended: true, extended: eh}
	}

	if h.VersionAndRevision() >= newChecksumRevisionThreshold {
		ph.ChecksumAndPageNumber = ChecksumAndPageNumber{
			Version:    checksumV3,
			Checksum64: checksumAndPageNumberValue,
			extended:   ext,
		}
	} else {
		ph.ChecksumAndPageNumber = ChecksumAndPageNumber{
			Version:     checksumV2,
			XorChecksum: uint32(checksumAndPageNumberValue),
			EccChecksum: uint32(checksumAndPageNumberValue >> 32),
			extended:    ext,
		}
	}
	return ph, nil
}

// ReadPageTags reads and normalizes the tag table of the page described by
// ph, reversing it so index 0 is the first logical tag.
func ReadPageTags(r io.ReadSeeker, h *Header, ph *PageHeader) ([]PageTag, error) {
	tagCount := int(ph.FirstAvailablePageTag)
	tagByteCount := 4 * tagCount

	end, err := pageByteOffset(h.PageSize, ph.PageNumber()+1)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(int64(end)-int64(tagByteCount), io.SeekStart); err != nil {
		return nil, wrapIO(err)
	}

	tags := make([]PageTag, 0, tagCount)

	if int(h.PageSize) <= maxSizeSmallPage {
		for i := 0; i < tagCount; i++ {
			var raw [4]byte
			if _, err := io.ReadFull(r, raw[:]); err != nil {
				return nil, wrapIO(err)
			}
			sizeWord := binary.LittleEndian.Uint16(raw[0:2])
			offsetWord := binary.LittleEndian.Uint16(raw[2:4])
			tags = append(tags, PageTag{
				ValueSize:   sizeWord & 0x1FFF,
				ValueOffset: offsetWord & 0x1FFF,
				Flags:       PageTagFlags((offsetWord >> 13) & 0x7),
				FlagsInData: false,
			})
		}
	} else {
		for i := 0; i < tagCount; i++ {
			var raw [4]byte
			if _, err := io.ReadFull(r, raw[:]); err != nil {
				return nil, wrapIO(err)
			}
			sizeWord := binary.LittleEndian.Uint16(raw[0:2])
			offsetWord := binary.LittleEndian.Uint16(raw[2:4])
			tag := PageTag{
				ValueSize:   sizeWord & 0x7FFF,
				ValueOffset: offsetWord & 0x7FFF,
				FlagsInData: true,
			}

			if i > 0 && tag.ValueSize >= 2 {
				savedPos, err := r.Seek(0, io.SeekCurrent)
				if err != nil {
					return nil, wrapIO(err)
				}
				dataPos, err := pageTagDataOffset(h.PageSize, ph.PageNumber(), uint64(ph.SizeBytes()), tag.ValueOffset)
				if err != nil {
					return nil, err
				}
				if _, err := r.Seek(int64(dataPos), io.SeekStart); err != nil {
					return nil, wrapIO(err)
				}
				var flagWord [2]byte
				if _, err := io.ReadFull(r, flagWord[:]); err != nil {
					return nil, wrapIO(err)
				}
				tag.Flags = PageTagFlags((binary.LittleEndian.Uint16(flagWord[:]) >> 13) & 0x7)
				if _, err := r.Seek(savedPos, io.SeekStart); err != nil {
					return nil, wrapIO(err)
				}
			}

			tags = append(tags, tag)
		}
	}

	for i, j := 0, len(tags)-1; i < j; i, j = i+1, j-1 {
		tags[i], tags[j] = tags[j], tags[i]
	}
	return tags, nil
}

// ReadDataForTag returns the raw bytes backing one tag's payload.
func ReadDataForTag(r io.ReadSeeker, h *Header, ph *PageHeader, tag PageTag) ([]byte, error) {
	pos, err := pageTagDataOffset(h.PageSize, ph.PageNumber(), uint64(ph.SizeBytes()), tag.ValueOffset)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(int64(pos), io.SeekStart); err != nil {
		return nil, wrapIO(err)
	}
	data := make([]byte, tag.ValueSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, wrapIO(err)
	}
	return data, nil
}

func readCommonPageEntry(l *littleEndianReader, compressed bool) (CommonPageEntry, error) {
	var ce CommonPageEntry
	if compressed {
		v, err := l.readU16()
		if err != nil {
			return ce, wrapIO(err)
		}
		ce.CommonPageKeySize = &v
	}
	localSize, err := l.readU16()
	if err != nil {
		return ce, wrapIO(err)
	}
	key, err := l.readBytes(int(localSize))
	if err != nil {
		return ce, wrapIO(err)
	}
	ce.LocalPageKey = key
	return ce, nil
}

// ReadPageEntry decodes the payload pointed to by tag according to ph's page
// flags, per SPEC_FULL.md §4.4.
func ReadPageEntry(r io.ReadSeeker, h *Header, ph *PageHeader, tag PageTag) (PageEntry, error) {
	data, err := ReadDataForTag(r, h, ph, tag)
	if err != nil {
		return PageEntry{}, err
	}
	if len(data) >= 2 && tag.FlagsInData {
		data[1] &= 0x1F
	}

	if ph.Flags.Has(PageFlagLeaf) && ph.Flags.Has(PageFlagIndex) {
		return PageEntry{Kind: PageEntryIndexLeaf, IndexLeaf: IndexLeafPageEntry{RecordPageKey: data}}, nil
	}

	l := newLittleEndianReader(bytesReader(data))
	common, err := readCommonPageEntry(l, tag.Flags.Has(PageTagCompressed))
	if err != nil {
		return PageEntry{}, err
	}

	switch {
	case ph.Flags.Has(PageFlagRoot):
		child, err := l.readU32()
		if err != nil {
			return PageEntry{}, wrapIO(err)
		}
		return PageEntry{Kind: PageEntryRoot, Branch: BranchPageEntry{Common: common, ChildPageNumber: child}}, nil

	case ph.Flags.Has(PageFlagBranch):
		child, err := l.readU32()
		if err != nil {
			return PageEntry{}, wrapIO(err)
		}
		entry := BranchPageEntry{Common: common, ChildPageNumber: child}
		switch {
		case ph.Flags.Has(PageFlagSpaceTree):
			return PageEntry{Kind: PageEntrySpaceBranch, Branch: entry}, nil
		case ph.Flags.Has(PageFlagIndex):
			return PageEntry{Kind: PageEntryIndexBranch, Branch: entry}, nil
		default:
			return PageEntry{Kind: PageEntryBranch, Branch: entry}, nil
		}

	case ph.Flags.Has(PageFlagLeaf):
		if ph.Flags.Has(PageFlagSpaceTree) {
			n, err := l.readU32()
			if err != nil {
				return PageEntry{}, wrapIO(err)
			}
			return PageEntry{Kind: PageEntrySpaceLeaf, SpaceLeaf: SpaceLeafPageEntry{Common: common, NumberOfPages: n}}, nil
		}
		rest, err := io.ReadAll(l.r)
		if err != nil {
			return PageEntry{}, wrapIO(err)
		}
		return PageEntry{Kind: PageEntryLeaf, Leaf: LeafPageEntry{Common: common, EntryData: rest}}, nil

	default:
		return PageEntry{}, errUnknownPageType()
	}
}
