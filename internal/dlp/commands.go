package dlp

import (
	"context"
	"time"
)

// UserInfo mirrors ReadUserInfo/WriteUserInfo's fields. WriteUserInfo only
// ever modifies the subset named by a bitmask (UserInfoMask*), matching
// spec.md's "partial field modification via a bitmask".
type UserInfo struct {
	UserID             uint32
	ViewerID           uint32
	LastSyncPC         uint32
	LastSuccessfulSync time.Time
	LastSync           time.Time
	Username           string
	Password           []byte
}

// Bits for WriteUserInfo's modification mask.
const (
	UserInfoMaskUserID     byte = 1 << 0
	UserInfoMaskViewerID   byte = 1 << 1
	UserInfoMaskLastSyncPC byte = 1 << 2
	UserInfoMaskLastSync   byte = 1 << 3
	UserInfoMaskUsername   byte = 1 << 4
)

// ReadUserInfo fetches the device's HotSync user identity.
func (c *Client) ReadUserInfo(ctx context.Context) (UserInfo, error) {
	resp, err := c.Call(ctx, Request{Opcode: OpReadUserInfo})
	if err != nil {
		return UserInfo{}, err
	}
	if err := checkStatus("ReadUserInfo", resp.Status); err != nil {
		return UserInfo{}, err
	}
	var info UserInfo
	if a, ok := resp.Arg(ArgUserInfo); ok && len(a.Bytes) >= 20 {
		info.UserID = be32(a.Bytes[0:4])
		info.ViewerID = be32(a.Bytes[4:8])
		info.LastSyncPC = be32(a.Bytes[8:12])
		info.LastSuccessfulSync, _ = DecodeDateTime(a.Bytes[12:20])
	}
	return info, nil
}

// WriteUserInfo updates only the fields named by mask.
func (c *Client) WriteUserInfo(ctx context.Context, info UserInfo, mask byte) error {
	payload := make([]byte, 0, 40)
	payload = append(payload, be32bytes(info.UserID)...)
	payload = append(payload, be32bytes(info.ViewerID)...)
	payload = append(payload, be32bytes(info.LastSyncPC)...)
	payload = append(payload, EncodeDateTime(info.LastSync)...)
	payload = append(payload, EncodeName32(info.Username)...)
	req := Request{Opcode: OpWriteUserInfo, Args: []Argument{
		u8arg(ArgUserInfoMask, mask),
		arg(ArgUserInfo, payload),
	}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return err
	}
	return checkStatus("WriteUserInfo", resp.Status)
}

// SysInfo mirrors ReadSysInfo's fields.
type SysInfo struct {
	ROMVersion uint32
	LocaleID   uint32
	ProductID  string
}

func (c *Client) ReadSysInfo(ctx context.Context) (SysInfo, error) {
	resp, err := c.Call(ctx, Request{Opcode: OpReadSysInfo})
	if err != nil {
		return SysInfo{}, err
	}
	if err := checkStatus("ReadSysInfo", resp.Status); err != nil {
		return SysInfo{}, err
	}
	var info SysInfo
	if a, ok := resp.Arg(ArgSysInfo); ok && len(a.Bytes) >= 8 {
		info.ROMVersion = be32(a.Bytes[0:4])
		info.LocaleID = be32(a.Bytes[4:8])
		info.ProductID = DecodeName32(a.Bytes[8:])
	}
	return info, nil
}

// GetSysDateTime reads the device's clock.
func (c *Client) GetSysDateTime(ctx context.Context) (time.Time, error) {
	resp, err := c.Call(ctx, Request{Opcode: OpGetSysDateTime})
	if err != nil {
		return time.Time{}, err
	}
	if err := checkStatus("GetSysDateTime", resp.Status); err != nil {
		return time.Time{}, err
	}
	if a, ok := resp.Arg(ArgDateTime); ok {
		return DecodeDateTime(a.Bytes)
	}
	return time.Time{}, nil
}

// SetSysDateTime sets the device's clock.
func (c *Client) SetSysDateTime(ctx context.Context, t time.Time) error {
	req := Request{Opcode: OpSetSysDateTime, Args: []Argument{arg(ArgDateTime, EncodeDateTime(t))}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return err
	}
	return checkStatus("SetSysDateTime", resp.Status)
}

// StorageInfo describes one memory card, as enumerated by ReadStorageInfo.
type StorageInfo struct {
	Card byte
	Name string
}

// ReadStorageInfo enumerates memory cards starting at card.
func (c *Client) ReadStorageInfo(ctx context.Context, card byte) (StorageInfo, error) {
	req := Request{Opcode: OpReadStorageInfo, Args: []Argument{u8arg(ArgDBCard, card)}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return StorageInfo{}, err
	}
	if err := checkStatus("ReadStorageInfo", resp.Status); err != nil {
		return StorageInfo{}, err
	}
	info := StorageInfo{Card: card}
	if a, ok := resp.Arg(ArgStorageInfo); ok {
		info.Name = DecodeName32(a.Bytes)
	}
	return info, nil
}

// NetSyncInfo mirrors ReadNetSyncInfo's fields (network sync is out of
// scope to actually perform, per spec.md §1, but the read is part of the
// identification surface every session issues).
type NetSyncInfo struct {
	Enabled  bool
	HostName string
}

func (c *Client) ReadNetSyncInfo(ctx context.Context) (NetSyncInfo, error) {
	resp, err := c.Call(ctx, Request{Opcode: OpReadNetSyncInfo})
	if err != nil {
		return NetSyncInfo{}, err
	}
	if err := checkStatus("ReadNetSyncInfo", resp.Status); err != nil {
		return NetSyncInfo{}, err
	}
	info := NetSyncInfo{}
	if a, ok := resp.Arg(ArgNetSyncInfo); ok && len(a.Bytes) >= 1 {
		info.Enabled = a.Bytes[0] != 0
		info.HostName = DecodeName32(a.Bytes[1:])
	}
	return info, nil
}

// OpenConduit is an advisory heartbeat issued once per database to let the
// device show sync progress; it carries no arguments.
func (c *Client) OpenConduit(ctx context.Context) error {
	resp, err := c.Call(ctx, Request{Opcode: OpOpenConduit})
	if err != nil {
		return err
	}
	return checkStatus("OpenConduit", resp.Status)
}

// EndOfSync terminates the session with reason (TermNormal, TermOther, or
// TermCancel).
func (c *Client) EndOfSync(ctx context.Context, reason byte) error {
	req := Request{Opcode: OpEndOfSync, Args: []Argument{u8arg(ArgTermReason, reason)}}
	resp, err := c.Call(ctx, req)
	if err != nil {
		return err
	}
	return checkStatus("EndOfSync", resp.Status)
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func be32bytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
