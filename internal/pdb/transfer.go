package pdb

import (
	"context"

	"github.com/coldsync/coldsync/internal/dlp"
)

// Download materializes a Database from an already-opened DLP handle,
// per spec.md §4.6: ReadOpenDBInfo, then ReadAppBlock/ReadSortBlock (each
// tolerating NotFound), then either ReadRecordIDList+ReadRecordByID for a
// record database or ReadResourceByIndex for a resource database.
func Download(ctx context.Context, c *dlp.Client, handle byte, info dlp.DBInfo) (*Database, error) {
	d := DatabaseFromInfo(info)

	if _, err := c.ReadOpenDBInfo(ctx, handle); err != nil {
		return nil, err
	}
	if ab, err := c.ReadAppBlock(ctx, handle); err == nil {
		d.AppInfo = ab
	} else if !dlp.IsNotFound(err) {
		return nil, err
	}
	if sb, err := c.ReadSortBlock(ctx, handle); err == nil {
		d.SortInfo = sb
	} else if !dlp.IsNotFound(err) {
		return nil, err
	}

	if d.IsResourceDB() {
		for i := uint16(0); ; i++ {
			res, err := c.ReadResourceByIndex(ctx, handle, i)
			if dlp.IsNotFound(err) {
				break
			}
			if err != nil {
				return nil, err
			}
			d.Resources = append(d.Resources, Resource{Type: res.Type, ID: res.ID, Data: res.Data})
		}
		return d, nil
	}

	ids, err := c.ReadRecordIDList(ctx, handle, 0, 0xffff)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		rec, err := c.ReadRecordByID(ctx, handle, id)
		if err != nil {
			return nil, err
		}
		d.Records = append(d.Records, Record{ID: rec.ID, Attrs: rec.Attrs, Payload: rec.Data})
	}
	return d, nil
}

// Upload installs d onto the device as a brand-new database: delete any
// existing database of the same name (tolerating NotFound -- there may be
// nothing to replace), signal OpenConduit so the device knows a transfer
// is starting, then create the database and write its contents: AppInfo,
// sort block, then every resource or record in order. When the device
// assigns a new uniqueID to a WriteRecord call, d's in-memory record is
// updated in place so any later persistence of d reflects the device's
// authoritative ID (spec.md §4.6, §6 "new databases to upload this
// sync" out of $PALM/install/).
func Upload(ctx context.Context, c *dlp.Client, card byte, d *Database) (byte, error) {
	if err := c.DeleteDB(ctx, card, d.Name); err != nil && !dlp.IsNotFound(err) {
		return 0, err
	}
	if err := c.OpenConduit(ctx); err != nil {
		return 0, err
	}

	handle, err := c.CreateDB(ctx, card, d.Name, d.Creator, d.Type, d.Attributes&^AttrOpen)
	if err != nil {
		return 0, err
	}

	if len(d.AppInfo) > 0 {
		if err := c.WriteAppBlock(ctx, handle, d.AppInfo); err != nil {
			return handle, err
		}
	}
	if len(d.SortInfo) > 0 {
		if err := c.WriteSortBlock(ctx, handle, d.SortInfo); err != nil {
			return handle, err
		}
	}

	if d.IsResourceDB() {
		for _, r := range d.Resources {
			if err := c.WriteResource(ctx, handle, r.Type, r.ID, r.Data); err != nil {
				return handle, err
			}
		}
		return handle, nil
	}

	for i := range d.Records {
		newID, err := c.WriteRecord(ctx, handle, d.Records[i].ID, d.Records[i].Attrs, d.Records[i].Payload)
		if err != nil {
			return handle, err
		}
		d.Records[i].ID = newID
	}
	return handle, nil
}
