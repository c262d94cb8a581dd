package dlp

// Opcodes, assigned sequentially from 0x10 in the order spec.md's command
// surface lists them. Real device wire values are a source-level porting
// detail the design spec leaves unspecified ("wire bytes are derived
// mechanically... when porting"); what matters for correctness is that
// request and response share one opcode, with the response's high bit set
// (ResponseOpcodeBit), which Call enforces.
const (
	OpReadUserInfo byte = 0x10 + iota
	OpWriteUserInfo
	OpReadSysInfo
	OpGetSysDateTime
	OpSetSysDateTime
	OpReadStorageInfo
	OpReadNetSyncInfo
	OpOpenConduit
	OpEndOfSync

	OpReadDBList
	OpOpenDB
	OpCreateDB
	OpCloseDB
	OpDeleteDB
	OpReadOpenDBInfo
	OpReadAppBlock
	OpWriteAppBlock
	OpReadSortBlock
	OpWriteSortBlock
	OpReadRecordByID
	OpReadRecordByIndex
	OpReadRecordIDList
	OpReadNextModifiedRec
	OpWriteRecord
	OpDeleteRecord
	OpReadResourceByIndex
	OpReadResourceByType
	OpWriteResource
	OpDeleteResource
	OpCleanUpDatabase
	OpResetSyncFlags
	OpResetRecordIndex
	OpMoveCategory
	OpAddSyncLogEntry
	OpReadFeature
)

// Argument ids used across the command surface. Ids start at 0x20 per
// spec.md §4.5; each command defines its own small id space, reused here
// where the same logical field (name, card, mode, ...) recurs.
const (
	ArgDBName        byte = 0x20
	ArgDBCard        byte = 0x21
	ArgDBMode        byte = 0x22
	ArgDBHandle      byte = 0x23
	ArgDBType        byte = 0x24
	ArgDBCreator     byte = 0x25
	ArgDBAttributes  byte = 0x26
	ArgDBVersion     byte = 0x27
	ArgRecordID      byte = 0x28
	ArgRecordIndex   byte = 0x29
	ArgRecordAttrs   byte = 0x2A
	ArgRecordData    byte = 0x2B
	ArgResourceType  byte = 0x2C
	ArgResourceID    byte = 0x2D
	ArgResourceIndex byte = 0x2E
	ArgResourceData  byte = 0x2F
	ArgBlockData     byte = 0x30
	ArgCategory      byte = 0x31
	ArgUserInfo      byte = 0x32
	ArgUserInfoMask  byte = 0x33
	ArgSysInfo       byte = 0x34
	ArgDateTime      byte = 0x35
	ArgStorageInfo   byte = 0x36
	ArgNetSyncInfo   byte = 0x37
	ArgLogMessage    byte = 0x38
	ArgTermReason    byte = 0x39
	ArgDBListFlags   byte = 0x3A
	ArgDBListStart   byte = 0x3B
	ArgDBInfo        byte = 0x3C
	ArgFeatureCreator byte = 0x3D
	ArgFeatureNum    byte = 0x3E
	ArgFeatureValue  byte = 0x3F
	ArgNewRecordID   byte = 0x41
)

// Open mode flags for OpenDB, per spec.md §4.5.
const (
	ModeRead       byte = 0x80
	ModeWrite      byte = 0x40
	ModeExclusive  byte = 0x20
	ModeShowSecret byte = 0x10
)

// ReadDBList flags.
const (
	DBListRAM byte = 0x80
	DBListROM byte = 0x40
)

// EndOfSync termination reasons.
const (
	TermNormal byte = 0
	TermOther  byte = 3
	TermCancel byte = 4
)
