package pdb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/coldsync/coldsync/internal/octet"
)

const (
	headerLen      = 72
	indexHeaderLen = 6
	recordEntryLen = 8
	resourceEntryLen = 10
	indexPadding   = 2
)

const palmEpochOffset = 2082844800

func encodeHeader(d *Database, appInfoOff, sortInfoOff uint32) []byte {
	buf := make([]byte, 0, headerLen)
	buf = append(buf, nameBytes32(d.Name)...)
	buf = octet.PutU16(buf, d.Attributes&^AttrOpen)
	buf = octet.PutU16(buf, d.Version)
	buf = octet.PutU32(buf, unixToPalm(d.CreatedAt))
	buf = octet.PutU32(buf, unixToPalm(d.ModifiedAt))
	buf = octet.PutU32(buf, unixToPalm(d.BackedUpAt))
	buf = octet.PutU32(buf, d.ModNum)
	buf = octet.PutU32(buf, appInfoOff)
	buf = octet.PutU32(buf, sortInfoOff)
	buf = append(buf, d.Type[:]...)
	buf = append(buf, d.Creator[:]...)
	buf = octet.PutU32(buf, d.UniqueIDSeed)
	return buf
}

func decodeHeader(b []byte) (*Database, uint32, uint32, error) {
	if len(b) < headerLen {
		return nil, 0, 0, fmt.Errorf("pdb: short header: %d bytes", len(b))
	}
	d := &Database{}
	d.Name = nameFromBytes32(b[0:32])
	d.Attributes = octet.GetU16At(b, 32)
	d.Version = octet.GetU16At(b, 34)
	d.CreatedAt = palmToUnix(octet.GetU32At(b, 36))
	d.ModifiedAt = palmToUnix(octet.GetU32At(b, 40))
	d.BackedUpAt = palmToUnix(octet.GetU32At(b, 44))
	d.ModNum = octet.GetU32At(b, 48)
	appInfoOff := octet.GetU32At(b, 52)
	sortInfoOff := octet.GetU32At(b, 56)
	copy(d.Type[:], b[60:64])
	copy(d.Creator[:], b[64:68])
	d.UniqueIDSeed = octet.GetU32At(b, 68)
	return d, appInfoOff, sortInfoOff, nil
}

func nameBytes32(s string) []byte {
	buf := make([]byte, 32)
	copy(buf, s)
	return buf
}

func nameFromBytes32(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func palmToUnix(v uint32) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(int64(v)-palmEpochOffset, 0)
}

func unixToPalm(t time.Time) uint32 {
	if t.IsZero() {
		return 0
	}
	return uint32(t.Unix() + palmEpochOffset)
}

// Read parses a complete PDB/PRC image from buf, per spec.md §4.6: header,
// index-header, index, two bytes of padding, optional appinfo/sortinfo
// (their extents inferred from the next non-zero offset in the chain
// appinfo -> sortinfo -> first payload -> EOF), then payloads in index
// order. The reader tolerates small offset mis-predictions by seeking to
// the stated offset, but not truncation.
func Read(buf []byte) (*Database, error) {
	if len(buf) < headerLen+indexHeaderLen {
		return nil, fmt.Errorf("pdb: file too short: %d bytes", len(buf))
	}
	d, appInfoOff, sortInfoOff, err := decodeHeader(buf[:headerLen])
	if err != nil {
		return nil, err
	}
	numRecs := octet.GetU16At(buf, headerLen+4)
	resourceDB := d.IsResourceDB()
	entryLen := recordEntryLen
	if resourceDB {
		entryLen = resourceEntryLen
	}
	indexStart := headerLen + indexHeaderLen
	indexEnd := indexStart + int(numRecs)*entryLen
	if indexEnd > len(buf) {
		return nil, fmt.Errorf("pdb: index truncated: need %d bytes, have %d", indexEnd, len(buf))
	}

	type entry struct {
		offset uint32
		attrs  byte
		id     uint32
		typ    [4]byte
		rid    uint16
	}
	entries := make([]entry, numRecs)
	for i := 0; i < int(numRecs); i++ {
		e := buf[indexStart+i*entryLen : indexStart+(i+1)*entryLen]
		if resourceDB {
			var ent entry
			copy(ent.typ[:], e[0:4])
			ent.rid = octet.GetU16At(e, 4)
			ent.offset = octet.GetU32At(e, 6)
			entries[i] = ent
		} else {
			ent := entry{offset: octet.GetU32At(e, 0), attrs: e[4]}
			ent.id = uint32(e[5])<<16 | uint32(e[6])<<8 | uint32(e[7])
			entries[i] = ent
		}
	}

	// Determine appinfo/sortinfo extents from the chain of offsets:
	// appinfo -> sortinfo -> first payload (or EOF if no payloads).
	firstPayloadOff := len(buf)
	if numRecs > 0 {
		firstPayloadOff = int(entries[0].offset)
	}

	if appInfoOff != 0 {
		end := firstPayloadOff
		if sortInfoOff != 0 {
			end = int(sortInfoOff)
		}
		if end > len(buf) {
			return nil, fmt.Errorf("pdb: appinfo extends past EOF")
		}
		d.AppInfo = append([]byte(nil), buf[appInfoOff:end]...)
	}
	if sortInfoOff != 0 {
		end := firstPayloadOff
		if end > len(buf) {
			return nil, fmt.Errorf("pdb: sortinfo extends past EOF")
		}
		d.SortInfo = append([]byte(nil), buf[sortInfoOff:end]...)
	}

	for i, e := range entries {
		start := int(e.offset)
		end := len(buf)
		if i+1 < len(entries) {
			end = int(entries[i+1].offset)
		}
		if start > len(buf) || end > len(buf) || start > end {
			return nil, fmt.Errorf("pdb: payload %d offset out of range", i)
		}
		payload := append([]byte(nil), buf[start:end]...)
		if resourceDB {
			d.Resources = append(d.Resources, Resource{Type: e.typ, ID: e.rid, Data: payload})
		} else {
			d.Records = append(d.Records, Record{ID: e.id, Attrs: e.attrs, Payload: payload})
		}
	}

	return d, nil
}

// Write serializes d to the PDB/PRC wire format, computing offsets in the
// same order Read expects them (spec.md §4.6 invariant 2). The OPEN
// attribute is forcibly cleared, matching invariant 5.
func Write(d *Database) []byte {
	resourceDB := d.IsResourceDB()
	entryLen := recordEntryLen
	numEntries := len(d.Records)
	if resourceDB {
		entryLen = resourceEntryLen
		numEntries = len(d.Resources)
	}

	indexStart := headerLen + indexHeaderLen
	indexLen := numEntries * entryLen
	cursor := indexStart + indexLen + indexPadding

	var appInfoOff, sortInfoOff uint32
	if len(d.AppInfo) > 0 {
		appInfoOff = uint32(cursor)
		cursor += len(d.AppInfo)
	}
	if len(d.SortInfo) > 0 {
		sortInfoOff = uint32(cursor)
		cursor += len(d.SortInfo)
	}

	payloadOffsets := make([]uint32, numEntries)
	for i := 0; i < numEntries; i++ {
		payloadOffsets[i] = uint32(cursor)
		if resourceDB {
			cursor += len(d.Resources[i].Data)
		} else {
			cursor += len(d.Records[i].Payload)
		}
	}

	out := make([]byte, 0, cursor)
	out = append(out, encodeHeader(d, appInfoOff, sortInfoOff)...)
	out = octet.PutU32(out, d.UniqueIDSeed)
	out = octet.PutU16(out, uint16(numEntries))

	for i := 0; i < numEntries; i++ {
		if resourceDB {
			r := d.Resources[i]
			out = append(out, r.Type[:]...)
			out = octet.PutU16(out, r.ID)
			out = octet.PutU32(out, payloadOffsets[i])
		} else {
			r := d.Records[i]
			out = octet.PutU32(out, payloadOffsets[i])
			out = append(out, r.Attrs)
			out = append(out, byte(r.ID>>16), byte(r.ID>>8), byte(r.ID))
		}
	}
	out = append(out, 0, 0)
	out = append(out, d.AppInfo...)
	out = append(out, d.SortInfo...)
	for i := 0; i < numEntries; i++ {
		if resourceDB {
			out = append(out, d.Resources[i].Data...)
		} else {
			out = append(out, d.Records[i].Payload...)
		}
	}
	return out
}

// WriteFile serializes d and writes it to path via a staging file that is
// renamed over the final path, so a crash mid-write cannot destroy the
// previous backup (spec.md §4.6, §5).
func WriteFile(path string, d *Database) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pdb-*.tmp")
	if err != nil {
		return fmt.Errorf("pdb: create staging file: %w", err)
	}
	staging := tmp.Name()
	defer os.Remove(staging)

	if _, err := tmp.Write(Write(d)); err != nil {
		tmp.Close()
		return fmt.Errorf("pdb: write staging file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("pdb: close staging file: %w", err)
	}
	if err := os.Rename(staging, path); err != nil {
		return fmt.Errorf("pdb: rename staging file into place: %w", err)
	}
	return nil
}

// ReadFile reads and parses the database image at path.
func ReadFile(path string) (*Database, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pdb: read %s: %w", path, err)
	}
	return Read(buf)
}
