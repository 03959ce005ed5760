package esedb

import (
	"bytes"
	"encoding/binary"
	"io"
)

// HeaderSignature is the magic value at byte offset 4 of every header page.
const HeaderSignature uint32 = 0x89ABCDEF

// headerSize is the fixed on-disk width of Header: the sum of the widths of
// Header's fields, in the order parseHeader reads them.
const headerSize = 4 + 4 + 4 + 4 + 8 + 28 + 4 + 8 + 8 + 8 + 8 + 8 + 8 + 4 + 28 +
	24 + 24 + 24 + 4 + 4 + 16 + 4 + 4 + 4 + 8 + 28 + 8 + 8 + 8 + 4 + 4 + 4 + 24 +
	4 + 4 + 16 + 4 + 16 + 16 + 16 + 4 + 24 + 24 + 40 + 4 + 4 + 148 + 4

// DbTime is a coarse timestamp embedded directly in Header (database_time,
// scrub_time): hour/minute/second plus padding, each a 16-bit word.
type DbTime struct {
	Hour    uint16
	Minute  uint16
	Second  uint16
	Padding uint16
}

func readDbTime(l *littleEndianReader) (DbTime, error) {
	var t DbTime
	var err error
	if t.Hour, err = l.readU16(); err != nil {
		return t, err
	}
	if t.Minute, err = l.readU16(); err != nil {
		return t, err
	}
	if t.Second, err = l.readU16(); err != nil {
		return t, err
	}
	if t.Padding, err = l.readU16(); err != nil {
		return t, err
	}
	return t, nil
}

// BackupType is an open enumeration: Streaming, Snapshot, or an unrecognized
// byte value preserved verbatim.
type BackupType uint8

const (
	BackupTypeStreaming BackupType = 0
	BackupTypeSnapshot  BackupType = 1
)

// LogTime is a log-sequence timestamp (distinct from DbTime's field widths):
// second/minute/hour/day/month/year/padding, each a byte, plus a BackupType.
type LogTime struct {
	Second     uint8
	Minute     uint8
	Hour       uint8
	Day        uint8
	Month      uint8
	Year       uint8
	Padding    uint8
	BackupType BackupType
}

func readLogTime(l *littleEndianReader) (LogTime, error) {
	var t LogTime
	b, err := l.readBytes(8)
	if err != nil {
		return t, err
	}
	t.Second = b[0]
	t.Minute = b[1]
	t.Hour = b[2]
	t.Day = b[3]
	t.Month = b[4]
	t.Year = b[5]
	t.Padding = b[6]
	t.BackupType = BackupType(b[7])
	return t, nil
}

// DbSignature identifies a database instance: a random number, the creation
// timestamp, and the 16-byte (NUL-padded) creating computer name.
type DbSignature struct {
	RandomNumber       uint32
	CreationTimestamp  LogTime
	ComputerNameRaw    [16]byte
}

func readDbSignature(l *littleEndianReader) (DbSignature, error) {
	var s DbSignature
	var err error
	if s.RandomNumber, err = l.readU32(); err != nil {
		return s, err
	}
	if s.CreationTimestamp, err = readLogTime(l); err != nil {
		return s, err
	}
	b, err := l.readBytes(16)
	if err != nil {
		return s, err
	}
	copy(s.ComputerNameRaw[:], b)
	return s, nil
}

// ComputerName returns the NUL-terminated computer name as a Go string.
func (s DbSignature) ComputerName() string {
	if i := bytes.IndexByte(s.ComputerNameRaw[:], 0); i >= 0 {
		return string(s.ComputerNameRaw[:i])
	}
	return string(s.ComputerNameRaw[:])
}

// LogPosition addresses a position within the transaction log.
type LogPosition struct {
	Block      uint16
	Sector     uint16
	Generation uint32
}

func readLogPosition(l *littleEndianReader) (LogPosition, error) {
	var p LogPosition
	var err error
	if p.Block, err = l.readU16(); err != nil {
		return p, err
	}
	if p.Sector, err = l.readU16(); err != nil {
		return p, err
	}
	if p.Generation, err = l.readU32(); err != nil {
		return p, err
	}
	return p, nil
}

// BackupInfo records when and where a backup of a given generation range
// happened.
type BackupInfo struct {
	Position        LogPosition
	Timestamp       LogTime
	GenerationLower uint32
	GenerationUpper uint32
}

func readBackupInfo(l *littleEndianReader) (BackupInfo, error) {
	var b BackupInfo
	var err error
	if b.Position, err = readLogPosition(l); err != nil {
		return b, err
	}
	if b.Timestamp, err = readLogTime(l); err != nil {
		return b, err
	}
	if b.GenerationLower, err = l.readU32(); err != nil {
		return b, err
	}
	if b.GenerationUpper, err = l.readU32(); err != nil {
		return b, err
	}
	return b, nil
}

// NtVersion is the OS build that last touched the index.
type NtVersion struct {
	Major        uint32
	Minor        uint32
	Build        uint32
	ServicePack  uint32
}

func readNtVersion(l *littleEndianReader) (NtVersion, error) {
	var v NtVersion
	var err error
	if v.Major, err = l.readU32(); err != nil {
		return v, err
	}
	if v.Minor, err = l.readU32(); err != nil {
		return v, err
	}
	if v.Build, err = l.readU32(); err != nil {
		return v, err
	}
	if v.ServicePack, err = l.readU32(); err != nil {
		return v, err
	}
	return v, nil
}

// ErrorStats counts occurrences of a particular repair/ECC condition.
type ErrorStats struct {
	Count         uint32
	LastTimestamp LogTime
	OldCount      uint32
}

func readErrorStats(l *littleEndianReader) (ErrorStats, error) {
	var s ErrorStats
	var err error
	if s.Count, err = l.readU32(); err != nil {
		return s, err
	}
	if s.LastTimestamp, err = readLogTime(l); err != nil {
		return s, err
	}
	if s.OldCount, err = l.readU32(); err != nil {
		return s, err
	}
	return s, nil
}

// FileType classifies the database file itself (Database vs. a streaming
// file companion). Open enumeration: unrecognized values are preserved.
type FileType uint32

const (
	FileTypeDatabase      FileType = 0
	FileTypeStreamingFile FileType = 1
)

// DbState is the shutdown state recorded the last time the engine touched
// the file. Open enumeration.
type DbState uint32

const (
	DbStateJustCreated    DbState = 1
	DbStateDirtyShutdown  DbState = 2
	DbStateCleanShutdown  DbState = 3
	DbStateBeingConverted DbState = 4
	DbStateForceDetach    DbState = 5
)

// Header is the fixed-layout record at the start of every header page,
// decoded field-for-field from the original format (see SPEC_FULL.md §3).
type Header struct {
	Checksum                   uint32
	Signature                  uint32
	Version                    uint32
	FileType                   FileType
	DatabaseTime               DbTime
	DbSignature                DbSignature
	State                      DbState
	ConsistentPosition         LogPosition
	ConsistentTimestamp        LogTime
	AttachTimestamp            LogTime
	AttachPosition             LogPosition
	DetachTimestamp            LogTime
	DetachPosition             LogPosition
	Dbid                       uint32
	LogSignature               DbSignature
	PreviousFullBackup         BackupInfo
	PreviousIncrementalBackup  BackupInfo
	CurrentFullBackup          BackupInfo
	ShadowingDisabled          uint32
	LastOid                    uint32
	LastIndexUpdateVersion     NtVersion
	FormatRevision             uint32
	PageSize                   uint32
	RepairCount                uint32
	RepairTimestamp            LogTime
	Unknown2                   DbSignature
	ScrubTime                  DbTime
	ScrubTimestamp             LogTime
	RequiredLog                uint64
	UpgradeExchange55          uint32
	UpgradeFreePages           uint32
	UpgradeSpaceMapPages       uint32
	CurrentShadowCopyBackup    BackupInfo
	CreationVersion            uint32
	CreationRevision           uint32
	Unknown3                   [16]byte
	OldRepairCount             uint32
	EccFixSuccess              ErrorStats
	EccFixError                ErrorStats
	BadChecksumError           ErrorStats
	CommittedLog               uint32
	PreviousShadowCopyBackup   BackupInfo
	PreviousDifferentialBackup BackupInfo
	Unknown4                   [40]byte
	NlsMajorVersion            uint32
	NlsMinorVersion            uint32
	Unknown5                   [148]byte
	UnknownFlags               uint32
}

// PageSizeAsInt returns the declared page size as an int, for use in slice
// indexing and length arithmetic elsewhere in the package.
func (h *Header) PageSizeAsInt() int {
	return int(h.PageSize)
}

// VersionAndRevision packs Version and FormatRevision into a single u64 for
// comparison against the V2/V3 page-header-format threshold
// (0x0000_0620_0000_0011).
func (h *Header) VersionAndRevision() uint64 {
	return uint64(h.Version)<<32 | uint64(h.FormatRevision)
}

// newChecksumRevisionThreshold is the version_and_revision() value at and
// above which the page header uses the V3 (single 64-bit checksum) shape
// rather than V2 (split XOR+ECC checksums).
const newChecksumRevisionThreshold uint64 = 0x0000_0620_0000_0011

// ReadHeader reads and validates one header page (primary or shadow) from r,
// following the procedure in SPEC_FULL.md §4.2: read the fixed-size struct,
// verify the magic signature, read the declared page size, re-read the
// remainder of the page, verify the XOR checksum over bytes [8, page_size),
// then parse every field.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, wrapIO(err)
	}

	signature := binary.LittleEndian.Uint32(buf[4:8])
	if signature != HeaderSignature {
		return nil, errWrongHeaderSignature(HeaderSignature, signature)
	}

	pageSizeU32 := binary.LittleEndian.Uint32(buf[236:240])
	pageSize := int(pageSizeU32)
	if pageSize < headerSize {
		return nil, errHeaderLongerThanPage(headerSize, pageSize)
	}
	if pageSize%4 != 0 {
		return nil, errPageSizeNotDivisibleBy4(pageSize)
	}

	full := make([]byte, pageSize)
	copy(full, buf)
	if _, err := io.ReadFull(r, full[headerSize:pageSize]); err != nil {
		return nil, wrapIO(err)
	}

	fileChecksum := binary.LittleEndian.Uint32(full[0:4])
	var calculated uint32
	for off := 8; off+4 <= len(full); off += 4 {
		calculated ^= binary.LittleEndian.Uint32(full[off : off+4])
	}
	if fileChecksum != calculated {
		return nil, errWrongHeaderChecksum(calculated, fileChecksum)
	}

	return parseHeader(full)
}

func parseHeader(full []byte) (*Header, error) {
	l := newLittleEndianReader(bytes.NewReader(full))
	var h Header
	var err error

	if h.Checksum, err = l.readU32(); err != nil {
		return nil, wrapIO(err)
	}
	if h.Signature, err = l.readU32(); err != nil {
		return nil, wrapIO(err)
	}
	if h.Version, err = l.readU32(); err != nil {
		return nil, wrapIO(err)
	}
	ft, err := l.readU32()
	if err != nil {
		return nil, wrapIO(err)
	}
	h.FileType = FileType(ft)
	if h.DatabaseTime, err = readDbTime(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.DbSignature, err = readDbSignature(l); err != nil {
		return nil, wrapIO(err)
	}
	state, err := l.readU32()
	if err != nil {
		return nil, wrapIO(err)
	}
	h.State = DbState(state)
	if h.ConsistentPosition, err = readLogPosition(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.ConsistentTimestamp, err = readLogTime(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.AttachTimestamp, err = readLogTime(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.AttachPosition, err = readLogPosition(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.DetachTimestamp, err = readLogTime(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.DetachPosition, err = readLogPosition(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.Dbid, err = l.readU32(); err != nil {
		return nil, wrapIO(err)
	}
	if h.LogSignature, err = readDbSignature(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.PreviousFullBackup, err = readBackupInfo(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.PreviousIncrementalBackup, err = readBackupInfo(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.CurrentFullBackup, err = readBackupInfo(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.ShadowingDisabled, err = l.readU32(); err != nil {
		return nil, wrapIO(err)
	}
	if h.LastOid, err = l.readU32(); err != nil {
		return nil, wrapIO(err)
	}
	if h.LastIndexUpdateVersion, err = readNtVersion(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.FormatRevision, err = l.readU32(); err != nil {
		return nil, wrapIO(err)
	}
	if h.PageSize, err = l.readU32(); err != nil {
		return nil, wrapIO(err)
	}
	if h.RepairCount, err = l.readU32(); err != nil {
		return nil, wrapIO(err)
	}
	if h.RepairTimestamp, err = readLogTime(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.Unknown2, err = readDbSignature(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.ScrubTime, err = readDbTime(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.ScrubTimestamp, err = readLogTime(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.RequiredLog, err = l.readU64(); err != nil {
		return nil, wrapIO(err)
	}
	if h.UpgradeExchange55, err = l.readU32(); err != nil {
		return nil, wrapIO(err)
	}
	if h.UpgradeFreePages, err = l.readU32(); err != nil {
		return nil, wrapIO(err)
	}
	if h.UpgradeSpaceMapPages, err = l.readU32(); err != nil {
		return nil, wrapIO(err)
	}
	if h.CurrentShadowCopyBackup, err = readBackupInfo(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.CreationVersion, err = l.readU32(); err != nil {
		return nil, wrapIO(err)
	}
	if h.CreationRevision, err = l.readU32(); err != nil {
		return nil, wrapIO(err)
	}
	u3, err := l.readBytes(16)
	if err != nil {
		return nil, wrapIO(err)
	}
	copy(h.Unknown3[:], u3)
	if h.OldRepairCount, err = l.readU32(); err != nil {
		return nil, wrapIO(err)
	}
	if h.EccFixSuccess, err = readErrorStats(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.EccFixError, err = readErrorStats(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.BadChecksumError, err = readErrorStats(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.CommittedLog, err = l.readU32(); err != nil {
		return nil, wrapIO(err)
	}
	if h.PreviousShadowCopyBackup, err = readBackupInfo(l); err != nil {
		return nil, wrapIO(err)
	}
	if h.PreviousDifferentialBackup, err = readBackupInfo(l); err != nil {
		return nil, wrapIO(err)
	}
	u4, err := l.readBytes(40)
	if err != nil {
		return nil, wrapIO(err)
	}
	copy(h.Unknown4[:], u4)
	if h.NlsMajorVersion, err = l.readU32(); err != nil {
		return nil, wrapIO(err)
	}
	if h.NlsMinorVersion, err = l.readU32(); err != nil {
		return nil, wrapIO(err)
	}
	u5, err := l.readBytes(148)
	if err != nil {
		return nil, wrapIO(err)
	}
	copy(h.Unknown5[:], u5)
	if h.UnknownFlags, err = l.readU32(); err != nil {
		return nil, wrapIO(err)
	}

	return &h, nil
}
