package sync

import (
	"fmt"
	"os"
	"time"

	"github.com/coldsync/coldsync/internal/octet"
	"github.com/coldsync/coldsync/internal/pdb"
)

var archiveMagic = [8]byte{'P', 'a', 'l', 'm', 'A', 'r', 'c', 'h'}

const archiveFormatVersion = 1
const archiveHeaderLen = 8 + 2 + 4 + 32 + 4 + 4
const archiveEntryKindRecord byte = 1
const archiveEntryHeaderLen = 1 + 1 + 4 + 4

// ArchiveWriter appends deleted-with-archive records to a per-database
// archive file, creating it lazily on the first write (spec.md §4.7).
type ArchiveWriter struct {
	path    string
	db      *pdb.Database
	f       *os.File
	wroteHdr bool
}

// NewArchiveWriter returns a writer for db's archive file at path. No file
// is created until the first Append call.
func NewArchiveWriter(path string, db *pdb.Database) *ArchiveWriter {
	return &ArchiveWriter{path: path, db: db}
}

func (w *ArchiveWriter) ensureOpen() error {
	if w.f != nil {
		return nil
	}
	existing, statErr := os.Stat(w.path)
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("sync: open archive %s: %w", w.path, err)
	}
	w.f = f
	w.wroteHdr = statErr == nil && existing.Size() > 0
	if !w.wroteHdr {
		if err := w.writeHeader(); err != nil {
			return err
		}
		w.wroteHdr = true
	}
	return nil
}

func (w *ArchiveWriter) writeHeader() error {
	buf := make([]byte, 0, archiveHeaderLen)
	buf = append(buf, archiveMagic[:]...)
	buf = octet.PutU16(buf, archiveHeaderLen)
	buf = octet.PutU32(buf, archiveFormatVersion)
	nameBuf := make([]byte, 32)
	copy(nameBuf, w.db.Name)
	buf = append(buf, nameBuf...)
	buf = append(buf, w.db.Type[:]...)
	buf = append(buf, w.db.Creator[:]...)
	_, err := w.f.Write(buf)
	return err
}

// Append writes one archived record to the file, creating it if this is
// the first archived record for this database.
func (w *ArchiveWriter) Append(payload []byte, at time.Time) error {
	if err := w.ensureOpen(); err != nil {
		return err
	}
	buf := make([]byte, 0, archiveEntryHeaderLen+len(payload))
	buf = append(buf, archiveEntryKindRecord, archiveEntryHeaderLen)
	buf = octet.PutU32(buf, uint32(len(payload)))
	buf = octet.PutU32(buf, uint32(at.Unix()))
	buf = append(buf, payload...)
	if _, err := w.f.Write(buf); err != nil {
		return fmt.Errorf("sync: append to archive %s: %w", w.path, err)
	}
	return nil
}

// Close closes the underlying file, if one was opened.
func (w *ArchiveWriter) Close() error {
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// ArchiveEntry is one decoded record from an archive file, returned by
// ReadArchive for inspection/testing tools.
type ArchiveEntry struct {
	Data      []byte
	Timestamp time.Time
}

// ReadArchive parses an archive file back into its header fields and
// entries.
func ReadArchive(path string) (dbName string, typ, creator [4]byte, entries []ArchiveEntry, err error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", typ, creator, nil, err
	}
	if len(buf) < archiveHeaderLen {
		return "", typ, creator, nil, fmt.Errorf("sync: archive %s too short", path)
	}
	for i, b := range archiveMagic {
		if buf[i] != b {
			return "", typ, creator, nil, fmt.Errorf("sync: archive %s: bad magic", path)
		}
	}
	n := 0
	for n < 32 && buf[8+6+n] != 0 {
		n++
	}
	dbName = string(buf[8+6 : 8+6+n])
	copy(typ[:], buf[8+6+32:8+6+36])
	copy(creator[:], buf[8+6+36:8+6+40])

	pos := archiveHeaderLen
	for pos < len(buf) {
		if pos+archiveEntryHeaderLen > len(buf) {
			return "", typ, creator, nil, fmt.Errorf("sync: archive %s: truncated entry header", path)
		}
		dataLen := int(octet.GetU32At(buf, pos+2))
		ts := octet.GetU32At(buf, pos+6)
		start := pos + archiveEntryHeaderLen
		end := start + dataLen
		if end > len(buf) {
			return "", typ, creator, nil, fmt.Errorf("sync: archive %s: truncated entry data", path)
		}
		entries = append(entries, ArchiveEntry{
			Data:      append([]byte(nil), buf[start:end]...),
			Timestamp: time.Unix(int64(ts), 0),
		})
		pos = end
	}
	return dbName, typ, creator, entries, nil
}
