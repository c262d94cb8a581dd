package dlp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldsync/coldsync/internal/octet"
	"github.com/coldsync/coldsync/internal/padp"
	"github.com/coldsync/coldsync/internal/slp"
)

// fakeDevice answers exactly the requests a test feeds it through respond,
// driving the wire-level PADP layer the way a real handheld would.
type fakeDevice struct {
	layer *padp.Layer
}

func (d *fakeDevice) respond(t *testing.T, ctx context.Context, build func(Request) Response) {
	t.Helper()
	raw, err := d.layer.Read(ctx)
	require.NoError(t, err)
	req, err := decodeRequest(raw)
	require.NoError(t, err)
	resp := build(req)
	require.NoError(t, d.layer.Write(ctx, resp.Encode()))
}

func decodeRequest(buf []byte) (Request, error) {
	cur := octet.NewCursor(buf)
	opcode, err := cur.GetU8()
	if err != nil {
		return Request{}, err
	}
	argc, err := cur.GetU8()
	if err != nil {
		return Request{}, err
	}
	args, err := DecodeArgs(cur.Bytes()[cur.Pos():], int(argc))
	if err != nil {
		return Request{}, err
	}
	return Request{Opcode: opcode, Args: args}, nil
}

func newClientAndDevice(t *testing.T) (*Client, *fakeDevice) {
	t.Helper()
	portA, portB := octet.NewMemPortPair()
	t.Cleanup(func() { portA.Close(); portB.Close() })

	addr := slp.Address{Protocol: slp.ProtoPADP, Port: 3}
	slpA := slp.New(portA, addr, nil)
	slpB := slp.New(portB, addr, nil)
	clientPADP := padp.New(slpA, addr, nil)
	devicePADP := padp.New(slpB, addr, nil)

	return New(clientPADP, nil), &fakeDevice{layer: devicePADP}
}

func TestClientOpenCloseDB(t *testing.T) {
	client, device := newClientAndDevice(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	var handle byte
	go func() {
		var err error
		handle, err = client.OpenDB(ctx, 0, "Datebook", ModeRead)
		errCh <- err
	}()

	device.respond(t, ctx, func(req Request) Response {
		assert.Equal(t, OpOpenDB, req.Opcode)
		return Response{
			Opcode: req.Opcode | ResponseOpcodeBit,
			Status: StatusNoErr,
			Args:   []Argument{{ID: ArgDBHandle, Bytes: []byte{5}}},
		}
	})

	require.NoError(t, <-errCh)
	assert.Equal(t, byte(5), handle)

	go func() {
		errCh <- client.CloseDB(ctx, handle)
	}()
	device.respond(t, ctx, func(req Request) Response {
		assert.Equal(t, OpCloseDB, req.Opcode)
		return Response{Opcode: req.Opcode | ResponseOpcodeBit, Status: StatusNoErr}
	})
	require.NoError(t, <-errCh)
}

func TestClientReadDBListStopsOnNotFound(t *testing.T) {
	client, device := newClientAndDevice(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var infos []DBInfo
	var callErr error
	done := make(chan struct{})
	go func() {
		infos, callErr = client.ReadDBList(ctx, 0, DBListRAM, 0)
		close(done)
	}()

	device.respond(t, ctx, func(req Request) Response {
		assert.Equal(t, OpReadDBList, req.Opcode)
		return Response{
			Opcode: req.Opcode | ResponseOpcodeBit,
			Status: StatusNotFound,
		}
	})

	<-done
	assert.True(t, IsNotFound(callErr))
	assert.Empty(t, infos)
}

func TestClientReadRecordByIDDecodesPayload(t *testing.T) {
	client, device := newClientAndDevice(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var rec Record
	var callErr error
	done := make(chan struct{})
	go func() {
		rec, callErr = client.ReadRecordByID(ctx, 7, 0xBEEF)
		close(done)
	}()

	device.respond(t, ctx, func(req Request) Response {
		assert.Equal(t, OpReadRecordByID, req.Opcode)
		return Response{
			Opcode: req.Opcode | ResponseOpcodeBit,
			Status: StatusNoErr,
			Args: []Argument{
				{ID: ArgRecordAttrs, Bytes: []byte{0x40}},
				{ID: ArgRecordData, Bytes: []byte("payload")},
			},
		}
	})

	<-done
	require.NoError(t, callErr)
	assert.Equal(t, uint32(0xBEEF), rec.ID)
	assert.Equal(t, byte(0x40), rec.Attrs)
	assert.Equal(t, []byte("payload"), rec.Data)
}
