// Package pdb reads and writes the Palm database file format: the common
// header shared by record and resource databases, its index, optional
// appinfo/sortinfo blocks, and payloads, plus the download/upload helpers
// that drive a dlp.Client to materialize one in memory.
package pdb

import (
	"time"

	"github.com/coldsync/coldsync/internal/dlp"
)

// Database attribute bits, mirrored from dlp.DBAttr* for convenience since
// callers of this package work with Database, not dlp.DBInfo.
const (
	AttrResDB              uint16 = 0x0001
	AttrReadOnly           uint16 = 0x0002
	AttrAppInfoDirty       uint16 = 0x0004
	AttrBackup             uint16 = 0x0008
	AttrOKToInstallNewer   uint16 = 0x0010
	AttrResetAfterInstall  uint16 = 0x0020
	AttrOpen               uint16 = 0x8000
)

// Record attribute/category byte bits, per spec.md §4.7.
const (
	RecordDeleted byte = 0x80
	RecordDirty   byte = 0x40
	RecordBusy    byte = 0x20
	RecordArchive byte = 0x08
	CategoryMask  byte = 0x0F
)

// Record is one entry of a record database.
type Record struct {
	ID      uint32
	Attrs   byte
	Payload []byte
}

// Category returns the low 4 bits of Attrs.
func (r Record) Category() byte { return r.Attrs & CategoryMask }

// Deleted reports whether the DELETED bit is set.
func (r Record) Deleted() bool { return r.Attrs&RecordDeleted != 0 }

// Dirty reports whether the DIRTY bit is set.
func (r Record) Dirty() bool { return r.Attrs&RecordDirty != 0 }

// Archive reports whether the ARCHIVE bit is set.
func (r Record) Archive() bool { return r.Attrs&RecordArchive != 0 }

// Clean returns a copy of r with every transient flag (DELETED, DIRTY,
// BUSY, ARCHIVE) cleared, keeping only the category.
func (r Record) Clean() Record {
	r.Attrs &= CategoryMask
	return r
}

// Clone deep-copies r, including its payload, per the ownership rule in
// spec.md §3 ("copying a record deep-copies the payload").
func (r Record) Clone() Record {
	cp := make([]byte, len(r.Payload))
	copy(cp, r.Payload)
	return Record{ID: r.ID, Attrs: r.Attrs, Payload: cp}
}

// Resource is one entry of a resource database.
type Resource struct {
	Type [4]byte
	ID   uint16
	Data []byte
}

func (r Resource) Clone() Resource {
	cp := make([]byte, len(r.Data))
	copy(cp, r.Data)
	return Resource{Type: r.Type, ID: r.ID, Data: cp}
}

// Database is an in-memory PDB/PRC image. Exactly one of Records/Resources
// is populated, per the RESDB attribute (spec.md §3 invariant 1).
type Database struct {
	Name       string
	Attributes uint16
	Version    uint16
	CreatedAt  time.Time
	ModifiedAt time.Time
	BackedUpAt time.Time
	ModNum     uint32
	Type       [4]byte
	Creator    [4]byte
	UniqueIDSeed uint32

	AppInfo  []byte
	SortInfo []byte

	Records   []Record
	Resources []Resource
}

// IsResourceDB reports whether the RESDB attribute is set.
func (d *Database) IsResourceDB() bool { return d.Attributes&AttrResDB != 0 }

// Extension returns ".prc" for resource databases, ".pdb" otherwise.
func (d *Database) Extension() string {
	if d.IsResourceDB() {
		return ".prc"
	}
	return ".pdb"
}

// FindRecord returns the record with the given uniqueID, if any.
func (d *Database) FindRecord(id uint32) (Record, bool) {
	for _, r := range d.Records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// RemoveRecord deletes the record with the given uniqueID, if present.
func (d *Database) RemoveRecord(id uint32) {
	for i, r := range d.Records {
		if r.ID == id {
			d.Records = append(d.Records[:i], d.Records[i+1:]...)
			return
		}
	}
}

// ReplaceRecord overwrites the record sharing rec.ID, or appends it if no
// such record exists.
func (d *Database) ReplaceRecord(rec Record) {
	for i, r := range d.Records {
		if r.ID == rec.ID {
			d.Records[i] = rec
			return
		}
	}
	d.Records = append(d.Records, rec)
}

// DatabaseFromInfo converts the DLP wire-level DBInfo into a bare Database
// header with no records/resources populated, the starting point for
// Download and for constructing an ArchiveWriter before a database's
// records have been fetched.
func DatabaseFromInfo(info dlp.DBInfo) *Database {
	return &Database{
		Name:       info.Name,
		Attributes: info.Attributes &^ AttrOpen,
		Version:    info.Version,
		CreatedAt:  info.CreatedAt,
		ModifiedAt: info.ModifiedAt,
		BackedUpAt: info.BackedUpAt,
		ModNum:     info.ModNum,
		Type:       info.Type,
		Creator:    info.Creator,
	}
}
