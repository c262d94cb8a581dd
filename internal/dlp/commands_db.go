package dlp

import (
	"context"
	"time"
)

// DBInfo describes one database as enumerated by ReadDBList, or detailed
// by ReadOpenDBInfo. Type/Creator are 4-byte codes, e.g. "DATA"/"memo".
type DBInfo struct {
	Index       uint16
	Name        string
	Attributes  uint16
	Version     uint16
	CreatedAt   time.Time
	ModifiedAt  time.Time
	BackedUpAt  time.Time
	ModNum      uint32
	Type        [4]byte
	Creator     [4]byte
	NumRecords  uint16
}

// Record attribute bits, per spec.md §4.7/§3.
const (
	RecordAttrDeleted byte = 0x80
	RecordAttrDirty   byte = 0x40
	RecordAttrBusy    byte = 0x20
	RecordAttrPrivate byte = 0x10
	RecordAttrArchive byte = 0x08
	RecordCategoryMask byte = 0x0F
)

// Database attribute bits, per spec.md §3.
const (
	DBAttrResDB        uint16 = 0x0001
	DBAttrReadOnly     uint16 = 0x0002
	DBAttrAppInfoDirty uint16 = 0x0004
	DBAttrBackup       uint16 = 0x0008
	DBAttrOKToInstallNewer uint16 = 0x0010
	DBAttrResetAfterInstall uint16 = 0x0020
	DBAttrOpen         uint16 = 0x8000
)

// Record is one record-database entry as transferred over DLP.
type Record struct {
	ID    uint32
	Attrs byte
	Data  []byte
}

// Resource is one resource-database entry as transferred over DLP.
type Resource struct {
	Type [4]byte
	ID   uint16
	Data []byte
}

func encodeType4(t [4]byte) []byte { return t[:] }

func decodeType4(b []byte) [4]byte {
	var t [4]byte
	copy(t[:], b)
	return t
}

// ReadDBList enumerates one page of databases on card matching flags
// (DBListRAM/DBListROM), starting at start. The device signals exhaustion
// with StatusNotFound, which the sync engine's caller treats as
// end-of-enumeration, not an error.
func (c *Client) ReadDBList(ctx context.Context, card byte, flags byte, start uint16) ([]DBInfo, error) {
	req := Request{Opcode: OpReadDBList, Args: []Argument{
		u8arg(ArgDBCard, card),
		u8arg(ArgDBListFlags, flags),
		u16arg(ArgDBListStart, start),
	}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus("ReadDBList", resp.Status); err != nil {
		return nil, err
	}
	var infos []DBInfo
	for _, a := range resp.Args {
		if a.ID != ArgDBInfo {
			continue
		}
		infos = append(infos, decodeDBInfo(a.Bytes))
	}
	return infos, nil
}

func decodeDBInfo(b []byte) DBInfo {
	var info DBInfo
	if len(b) < 62 {
		return info
	}
	info.Index = be16(b[0:2])
	info.Attributes = be16(b[2:4])
	info.Version = be16(b[4:6])
	info.CreatedAt = palmTime(be32(b[6:10]))
	info.ModifiedAt = palmTime(be32(b[10:14]))
	info.BackedUpAt = palmTime(be32(b[14:18]))
	info.ModNum = be32(b[18:22])
	info.Type = decodeType4(b[22:26])
	info.Creator = decodeType4(b[26:30])
	info.Name = DecodeName32(b[30:62])
	return info
}

func be16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }

// OpenDB opens name on card with the given mode bits and returns a handle
// used by every subsequent per-database call.
func (c *Client) OpenDB(ctx context.Context, card byte, name string, mode byte) (byte, error) {
	req := Request{Opcode: OpOpenDB, Args: []Argument{
		u8arg(ArgDBCard, card),
		u8arg(ArgDBMode, mode),
		nameArg(ArgDBName, name),
	}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return 0, err
	}
	if err := checkStatus("OpenDB", resp.Status); err != nil {
		return 0, err
	}
	if a, ok := resp.Arg(ArgDBHandle); ok && len(a.Bytes) >= 1 {
		return a.Bytes[0], nil
	}
	return 0, nil
}

// CreateDB creates a new database and returns its handle.
func (c *Client) CreateDB(ctx context.Context, card byte, name string, creator, typ [4]byte, attributes uint16) (byte, error) {
	req := Request{Opcode: OpCreateDB, Args: []Argument{
		u8arg(ArgDBCard, card),
		nameArg(ArgDBName, name),
		arg(ArgDBCreator, encodeType4(creator)),
		arg(ArgDBType, encodeType4(typ)),
		u16arg(ArgDBAttributes, attributes),
	}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return 0, err
	}
	if err := checkStatus("CreateDB", resp.Status); err != nil {
		return 0, err
	}
	if a, ok := resp.Arg(ArgDBHandle); ok && len(a.Bytes) >= 1 {
		return a.Bytes[0], nil
	}
	return 0, nil
}

// CloseDB closes a previously opened handle.
func (c *Client) CloseDB(ctx context.Context, handle byte) error {
	req := Request{Opcode: OpCloseDB, Args: []Argument{u8arg(ArgDBHandle, handle)}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return err
	}
	return checkStatus("CloseDB", resp.Status)
}

// DeleteDB deletes a database by name, unconditionally (it must not be
// open).
func (c *Client) DeleteDB(ctx context.Context, card byte, name string) error {
	req := Request{Opcode: OpDeleteDB, Args: []Argument{
		u8arg(ArgDBCard, card),
		nameArg(ArgDBName, name),
	}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return err
	}
	return checkStatus("DeleteDB", resp.Status)
}

// ReadOpenDBInfo returns the record count of an opened database.
func (c *Client) ReadOpenDBInfo(ctx context.Context, handle byte) (uint16, error) {
	req := Request{Opcode: OpReadOpenDBInfo, Args: []Argument{u8arg(ArgDBHandle, handle)}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return 0, err
	}
	if err := checkStatus("ReadOpenDBInfo", resp.Status); err != nil {
		return 0, err
	}
	if a, ok := resp.Arg(ArgDBInfo); ok && len(a.Bytes) >= 2 {
		return be16(a.Bytes[:2]), nil
	}
	return 0, nil
}

// ReadAppBlock reads the AppInfo block. Absence is reported as
// StatusNotFound, which is routinely non-fatal (spec.md §4.5).
func (c *Client) ReadAppBlock(ctx context.Context, handle byte) ([]byte, error) {
	req := Request{Opcode: OpReadAppBlock, Args: []Argument{u8arg(ArgDBHandle, handle)}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus("ReadAppBlock", resp.Status); err != nil {
		return nil, err
	}
	if a, ok := resp.Arg(ArgBlockData); ok {
		return a.Bytes, nil
	}
	return nil, nil
}

// WriteAppBlock writes the AppInfo block.
func (c *Client) WriteAppBlock(ctx context.Context, handle byte, data []byte) error {
	req := Request{Opcode: OpWriteAppBlock, Args: []Argument{
		u8arg(ArgDBHandle, handle),
		arg(ArgBlockData, data),
	}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return err
	}
	return checkStatus("WriteAppBlock", resp.Status)
}

// ReadSortBlock reads the sort block, tolerating StatusNotFound the same
// way as ReadAppBlock.
func (c *Client) ReadSortBlock(ctx context.Context, handle byte) ([]byte, error) {
	req := Request{Opcode: OpReadSortBlock, Args: []Argument{u8arg(ArgDBHandle, handle)}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus("ReadSortBlock", resp.Status); err != nil {
		return nil, err
	}
	if a, ok := resp.Arg(ArgBlockData); ok {
		return a.Bytes, nil
	}
	return nil, nil
}

// WriteSortBlock writes the sort block.
func (c *Client) WriteSortBlock(ctx context.Context, handle byte, data []byte) error {
	req := Request{Opcode: OpWriteSortBlock, Args: []Argument{
		u8arg(ArgDBHandle, handle),
		arg(ArgBlockData, data),
	}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return err
	}
	return checkStatus("WriteSortBlock", resp.Status)
}

// ReadRecordByID fetches one record by its uniqueID.
func (c *Client) ReadRecordByID(ctx context.Context, handle byte, id uint32) (Record, error) {
	req := Request{Opcode: OpReadRecordByID, Args: []Argument{
		u8arg(ArgDBHandle, handle),
		arg(ArgRecordID, be24(id)),
	}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return Record{}, err
	}
	if err := checkStatus("ReadRecordByID", resp.Status); err != nil {
		return Record{}, err
	}
	return decodeRecordResponse(id, resp), nil
}

// ReadRecordByIndex fetches one record by its position in the database.
func (c *Client) ReadRecordByIndex(ctx context.Context, handle byte, index uint16) (Record, error) {
	req := Request{Opcode: OpReadRecordByIndex, Args: []Argument{
		u8arg(ArgDBHandle, handle),
		u16arg(ArgRecordIndex, index),
	}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return Record{}, err
	}
	if err := checkStatus("ReadRecordByIndex", resp.Status); err != nil {
		return Record{}, err
	}
	var id uint32
	if a, ok := resp.Arg(ArgRecordID); ok {
		id = decode24(a.Bytes)
	}
	return decodeRecordResponse(id, resp), nil
}

func decodeRecordResponse(id uint32, resp Response) Record {
	rec := Record{ID: id}
	if a, ok := resp.Arg(ArgRecordAttrs); ok && len(a.Bytes) >= 1 {
		rec.Attrs = a.Bytes[0]
	}
	if a, ok := resp.Arg(ArgRecordData); ok {
		rec.Data = a.Bytes
	}
	return rec
}

// ReadRecordIDList returns up to max uniqueIDs starting at start, in
// on-device order.
func (c *Client) ReadRecordIDList(ctx context.Context, handle byte, start, max uint16) ([]uint32, error) {
	req := Request{Opcode: OpReadRecordIDList, Args: []Argument{
		u8arg(ArgDBHandle, handle),
		u16arg(ArgRecordIndex, start),
		u16arg(ArgDBListStart, max),
	}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus("ReadRecordIDList", resp.Status); err != nil {
		return nil, err
	}
	var ids []uint32
	for _, a := range resp.Args {
		if a.ID != ArgRecordID {
			continue
		}
		for off := 0; off+3 <= len(a.Bytes); off += 3 {
			ids = append(ids, decode24(a.Bytes[off:off+3]))
		}
	}
	return ids, nil
}

// ReadNextModifiedRec returns the next record with the DIRTY bit set,
// advancing the device's internal cursor. Exhaustion is reported as
// StatusNotFound (spec.md §4.5), returned here as (Record{}, false, nil).
func (c *Client) ReadNextModifiedRec(ctx context.Context, handle byte) (Record, bool, error) {
	req := Request{Opcode: OpReadNextModifiedRec, Args: []Argument{u8arg(ArgDBHandle, handle)}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return Record{}, false, err
	}
	if resp.Status.NotFound() {
		return Record{}, false, nil
	}
	if err := checkStatus("ReadNextModifiedRec", resp.Status); err != nil {
		return Record{}, false, err
	}
	var id uint32
	if a, ok := resp.Arg(ArgRecordID); ok {
		id = decode24(a.Bytes)
	}
	return decodeRecordResponse(id, resp), true, nil
}

// WriteRecord creates (id == 0) or updates a record. The device may
// assign a new uniqueID, which is always the returned value -- callers
// must update their in-memory record accordingly (spec.md §4.6).
func (c *Client) WriteRecord(ctx context.Context, handle byte, id uint32, attrs byte, data []byte) (uint32, error) {
	req := Request{Opcode: OpWriteRecord, Args: []Argument{
		u8arg(ArgDBHandle, handle),
		arg(ArgRecordID, be24(id)),
		u8arg(ArgRecordAttrs, attrs),
		arg(ArgRecordData, data),
	}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return 0, err
	}
	if err := checkStatus("WriteRecord", resp.Status); err != nil {
		return 0, err
	}
	if a, ok := resp.Arg(ArgNewRecordID); ok {
		return decode24(a.Bytes), nil
	}
	return id, nil
}

// DeleteRecord deletes one record by id, or every record if all is true.
func (c *Client) DeleteRecord(ctx context.Context, handle byte, id uint32, all bool) error {
	args := []Argument{u8arg(ArgDBHandle, handle)}
	if !all {
		args = append(args, arg(ArgRecordID, be24(id)))
	}
	resp, err := c.Call(ctx, Request{Opcode: OpDeleteRecord, Args: args})
	if err != nil {
		return err
	}
	return checkStatus("DeleteRecord", resp.Status)
}

// ReadResourceByIndex fetches one resource by its position.
func (c *Client) ReadResourceByIndex(ctx context.Context, handle byte, index uint16) (Resource, error) {
	req := Request{Opcode: OpReadResourceByIndex, Args: []Argument{
		u8arg(ArgDBHandle, handle),
		u16arg(ArgResourceIndex, index),
	}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return Resource{}, err
	}
	if err := checkStatus("ReadResourceByIndex", resp.Status); err != nil {
		return Resource{}, err
	}
	return decodeResourceResponse(resp), nil
}

// ReadResourceByType fetches one resource by (type, id).
func (c *Client) ReadResourceByType(ctx context.Context, handle byte, typ [4]byte, id uint16) (Resource, error) {
	req := Request{Opcode: OpReadResourceByType, Args: []Argument{
		u8arg(ArgDBHandle, handle),
		arg(ArgResourceType, encodeType4(typ)),
		u16arg(ArgResourceID, id),
	}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return Resource{}, err
	}
	if err := checkStatus("ReadResourceByType", resp.Status); err != nil {
		return Resource{}, err
	}
	return decodeResourceResponse(resp), nil
}

func decodeResourceResponse(resp Response) Resource {
	var res Resource
	if a, ok := resp.Arg(ArgResourceType); ok {
		res.Type = decodeType4(a.Bytes)
	}
	if a, ok := resp.Arg(ArgResourceID); ok && len(a.Bytes) >= 2 {
		res.ID = be16(a.Bytes)
	}
	if a, ok := resp.Arg(ArgResourceData); ok {
		res.Data = a.Bytes
	}
	return res
}

// WriteResource creates or replaces one resource.
func (c *Client) WriteResource(ctx context.Context, handle byte, typ [4]byte, id uint16, data []byte) error {
	req := Request{Opcode: OpWriteResource, Args: []Argument{
		u8arg(ArgDBHandle, handle),
		arg(ArgResourceType, encodeType4(typ)),
		u16arg(ArgResourceID, id),
		arg(ArgResourceData, data),
	}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return err
	}
	return checkStatus("WriteResource", resp.Status)
}

// DeleteResource deletes one resource by (type, id), or every resource if
// all is true.
func (c *Client) DeleteResource(ctx context.Context, handle byte, typ [4]byte, id uint16, all bool) error {
	args := []Argument{u8arg(ArgDBHandle, handle)}
	if !all {
		args = append(args, arg(ArgResourceType, encodeType4(typ)), u16arg(ArgResourceID, id))
	}
	resp, err := c.Call(ctx, Request{Opcode: OpDeleteResource, Args: args})
	if err != nil {
		return err
	}
	return checkStatus("DeleteResource", resp.Status)
}

// CleanUpDatabase removes every record flagged DELETED.
func (c *Client) CleanUpDatabase(ctx context.Context, handle byte) error {
	resp, err := c.Call(ctx, Request{Opcode: OpCleanUpDatabase, Args: []Argument{u8arg(ArgDBHandle, handle)}})
	if err != nil {
		return err
	}
	return checkStatus("CleanUpDatabase", resp.Status)
}

// ResetSyncFlags clears DIRTY on every record in the database.
func (c *Client) ResetSyncFlags(ctx context.Context, handle byte) error {
	resp, err := c.Call(ctx, Request{Opcode: OpResetSyncFlags, Args: []Argument{u8arg(ArgDBHandle, handle)}})
	if err != nil {
		return err
	}
	return checkStatus("ResetSyncFlags", resp.Status)
}

// ResetRecordIndex resets the ReadNextModifiedRec cursor to the start.
func (c *Client) ResetRecordIndex(ctx context.Context, handle byte) error {
	resp, err := c.Call(ctx, Request{Opcode: OpResetRecordIndex, Args: []Argument{u8arg(ArgDBHandle, handle)}})
	if err != nil {
		return err
	}
	return checkStatus("ResetRecordIndex", resp.Status)
}

// MoveCategory moves every record in category from to category to.
func (c *Client) MoveCategory(ctx context.Context, handle byte, from, to byte) error {
	req := Request{Opcode: OpMoveCategory, Args: []Argument{
		u8arg(ArgDBHandle, handle),
		u8arg(ArgCategory, from),
		u8arg(ArgCategory+1, to),
	}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return err
	}
	return checkStatus("MoveCategory", resp.Status)
}

// AddSyncLogEntry appends msg to the session log on the device. Only the
// first call per session is retained by real devices (spec.md §9). Neither
// the sync engine nor cmd/coldsync calls it; no session log is sent.
func (c *Client) AddSyncLogEntry(ctx context.Context, msg string) error {
	req := Request{Opcode: OpAddSyncLogEntry, Args: []Argument{arg(ArgLogMessage, []byte(msg))}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return err
	}
	return checkStatus("AddSyncLogEntry", resp.Status)
}

// ReadFeature reads a single feature value from the device's feature
// table, identified by (creator, number).
func (c *Client) ReadFeature(ctx context.Context, creator [4]byte, num uint16) (uint32, error) {
	req := Request{Opcode: OpReadFeature, Args: []Argument{
		arg(ArgFeatureCreator, encodeType4(creator)),
		u16arg(ArgFeatureNum, num),
	}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return 0, err
	}
	if err := checkStatus("ReadFeature", resp.Status); err != nil {
		return 0, err
	}
	if a, ok := resp.Arg(ArgFeatureValue); ok && len(a.Bytes) >= 4 {
		return be32(a.Bytes), nil
	}
	return 0, nil
}

func palmTime(v uint32) time.Time {
	if v == 0 {
		return time.Time{}
	}
	const palmEpochOffset = 2082844800
	return time.Unix(int64(v)-palmEpochOffset, 0)
}

// be24/decode24 encode/decode the 24-bit uniqueID that DLP carries in the
// low 3 bytes of its on-wire record-id argument.
func be24(v uint32) []byte {
	return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
}

func decode24(b []byte) uint32 {
	if len(b) < 3 {
		return 0
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}
