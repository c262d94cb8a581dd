package pdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldsync/coldsync/internal/dlp"
	"github.com/coldsync/coldsync/internal/octet"
	"github.com/coldsync/coldsync/internal/padp"
	"github.com/coldsync/coldsync/internal/slp"
)

// fakeDevice answers exactly the requests a test feeds it through respond,
// the same harness shape internal/dlp's own command tests use.
type fakeDevice struct {
	layer *padp.Layer
}

func (d *fakeDevice) respond(t *testing.T, ctx context.Context, build func(dlp.Request) dlp.Response) {
	t.Helper()
	raw, err := d.layer.Read(ctx)
	require.NoError(t, err)
	req, err := decodeRequest(raw)
	require.NoError(t, err)
	resp := build(req)
	require.NoError(t, d.layer.Write(ctx, resp.Encode()))
}

func decodeRequest(buf []byte) (dlp.Request, error) {
	cur := octet.NewCursor(buf)
	opcode, err := cur.GetU8()
	if err != nil {
		return dlp.Request{}, err
	}
	argc, err := cur.GetU8()
	if err != nil {
		return dlp.Request{}, err
	}
	args, err := dlp.DecodeArgs(cur.Bytes()[cur.Pos():], int(argc))
	if err != nil {
		return dlp.Request{}, err
	}
	return dlp.Request{Opcode: opcode, Args: args}, nil
}

func newClientAndDevice(t *testing.T) (*dlp.Client, *fakeDevice) {
	t.Helper()
	portA, portB := octet.NewMemPortPair()
	t.Cleanup(func() { portA.Close(); portB.Close() })

	addr := slp.Address{Protocol: slp.ProtoPADP, Port: 3}
	slpA := slp.New(portA, addr, nil)
	slpB := slp.New(portB, addr, nil)
	clientPADP := padp.New(slpA, addr, nil)
	devicePADP := padp.New(slpB, addr, nil)

	return dlp.New(clientPADP, nil), &fakeDevice{layer: devicePADP}
}

func okResponse(req dlp.Request, args ...dlp.Argument) dlp.Response {
	return dlp.Response{Opcode: req.Opcode | dlp.ResponseOpcodeBit, Status: dlp.StatusNoErr, Args: args}
}

// TestUploadDeletesExistingDatabaseFirst drives Upload against a fake
// device and asserts it replaces any existing database of the same name
// (DeleteDB, tolerating NotFound) and signals OpenConduit before creating
// the new database, mirroring upload.c's UploadDatabase (src/coldsync.c's
// sibling trunk/coldsync/upload.c).
func TestUploadDeletesExistingDatabaseFirst(t *testing.T) {
	client, device := newClientAndDevice(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	db := &Database{
		Name:    "MemoDB",
		Type:    [4]byte{'D', 'A', 'T', 'A'},
		Creator: [4]byte{'m', 'e', 'm', 'o'},
		Records: []Record{
			{ID: 1, Attrs: 0, Payload: []byte("hello")},
		},
	}

	result := make(chan struct {
		handle byte
		err    error
	}, 1)
	go func() {
		handle, err := Upload(ctx, client, 0, db)
		result <- struct {
			handle byte
			err    error
		}{handle, err}
	}()

	device.respond(t, ctx, func(req dlp.Request) dlp.Response {
		assert.Equal(t, dlp.OpDeleteDB, req.Opcode, "delete the existing database before reinstalling")
		return dlp.Response{Opcode: req.Opcode | dlp.ResponseOpcodeBit, Status: dlp.StatusNotFound}
	})
	device.respond(t, ctx, func(req dlp.Request) dlp.Response {
		assert.Equal(t, dlp.OpOpenConduit, req.Opcode, "OpenConduit is signaled before CreateDB")
		return okResponse(req)
	})
	device.respond(t, ctx, func(req dlp.Request) dlp.Response {
		assert.Equal(t, dlp.OpCreateDB, req.Opcode)
		return okResponse(req, dlp.Argument{ID: dlp.ArgDBHandle, Bytes: []byte{7}})
	})
	device.respond(t, ctx, func(req dlp.Request) dlp.Response {
		assert.Equal(t, dlp.OpWriteRecord, req.Opcode)
		return okResponse(req)
	})

	r := <-result
	require.NoError(t, r.err)
	assert.Equal(t, byte(7), r.handle)
}

// TestUploadFailsOnDeleteErrorOtherThanNotFound asserts a DeleteDB error
// that isn't "not found" aborts the upload rather than paving over it.
func TestUploadFailsOnDeleteErrorOtherThanNotFound(t *testing.T) {
	client, device := newClientAndDevice(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	db := &Database{Name: "Locked", Type: [4]byte{'D', 'A', 'T', 'A'}, Creator: [4]byte{'x', 'x', 'x', 'x'}}

	result := make(chan struct {
		handle byte
		err    error
	}, 1)
	go func() {
		handle, err := Upload(ctx, client, 0, db)
		result <- struct {
			handle byte
			err    error
		}{handle, err}
	}()

	device.respond(t, ctx, func(req dlp.Request) dlp.Response {
		assert.Equal(t, dlp.OpDeleteDB, req.Opcode)
		return dlp.Response{Opcode: req.Opcode | dlp.ResponseOpcodeBit, Status: dlp.StatusReadOnly}
	})

	r := <-result
	require.Error(t, r.err)
	assert.False(t, dlp.IsNotFound(r.err))
}
