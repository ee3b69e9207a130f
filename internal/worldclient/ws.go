package worldclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"gridstone.dev/internal/protocol"
	"gridstone.dev/internal/spec"
)

// WS speaks the gridstone wire protocol over one websocket connection. One
// reader goroutine routes RES messages to their waiting request and
// BLOCK_CHANGE pushes to the registered callback.
type WS struct {
	conn   *websocket.Conn
	logger *log.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	nextID   uint64
	pending  map[uint64]chan protocol.ResMsg
	changeFn func(Change)
	closed   bool
	readErr  error

	done      chan struct{}
	closeOnce sync.Once

	welcome protocol.WelcomeMsg
}

// Dial connects, performs the HELLO/WELCOME handshake and starts the reader.
func Dial(ctx context.Context, url, clientName string, logger *log.Logger) (*WS, error) {
	if logger == nil {
		logger = log.Default()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      clientName,
	}
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, &TransportError{Op: "hello", Err: err}
	}

	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		_ = conn.Close()
		return nil, &TransportError{Op: "welcome", Err: err}
	}
	if welcome.Type != protocol.TypeWelcome {
		_ = conn.Close()
		return nil, transportf("welcome", "unexpected message type %q", welcome.Type)
	}

	c := &WS{
		conn:    conn,
		logger:  logger,
		pending: map[uint64]chan protocol.ResMsg{},
		done:    make(chan struct{}),
		welcome: welcome,
	}
	go c.readLoop()
	return c, nil
}

// WorldParams returns the parameters announced in the WELCOME message.
func (c *WS) WorldParams() protocol.WorldParams { return c.welcome.WorldParams }

func (c *WS) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		_ = c.conn.Close()
		<-c.done
	})
	return nil
}

func (c *WS) OnBlockChange(fn func(Change)) {
	c.mu.Lock()
	c.changeFn = fn
	c.mu.Unlock()
}

func (c *WS) readLoop() {
	defer close(c.done)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.failAll(err)
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeRes:
			var res protocol.ResMsg
			if err := json.Unmarshal(msg, &res); err != nil {
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[res.ID]
			if ok {
				delete(c.pending, res.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- res
			}

		case protocol.TypeBlockChange:
			var bc protocol.BlockChangeMsg
			if err := json.Unmarshal(msg, &bc); err != nil {
				continue
			}
			c.mu.Lock()
			fn := c.changeFn
			c.mu.Unlock()
			if fn == nil {
				continue
			}
			old, errOld := spec.ParseBlockSpec(bc.Old)
			nw, errNew := spec.ParseBlockSpec(bc.New)
			if errOld != nil || errNew != nil {
				c.logger.Printf("drop malformed BLOCK_CHANGE at %v", bc.Pos)
				continue
			}
			fn(Change{
				Tick: bc.Tick,
				Pos:  spec.Vec3i{X: bc.Pos[0], Y: bc.Pos[1], Z: bc.Pos[2]},
				Old:  old,
				New:  nw,
			})
		}
	}
}

func (c *WS) failAll(err error) {
	c.mu.Lock()
	c.readErr = err
	pending := c.pending
	c.pending = map[uint64]chan protocol.ResMsg{}
	c.mu.Unlock()
	for id, ch := range pending {
		ch <- protocol.ResMsg{
			Type:      protocol.TypeRes,
			ID:        id,
			OK:        false,
			ErrorCode: protocol.ErrInternal,
			Error:     fmt.Sprintf("connection lost: %v", err),
		}
	}
}

func (c *WS) request(ctx context.Context, req protocol.ReqMsg) (protocol.ResMsg, error) {
	ch := make(chan protocol.ResMsg, 1)

	c.mu.Lock()
	if c.closed || c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		if err == nil {
			err = fmt.Errorf("client closed")
		}
		return protocol.ResMsg{}, &TransportError{Op: req.Op, Err: err}
	}
	c.nextID++
	req.ID = c.nextID
	c.pending[req.ID] = ch
	c.mu.Unlock()

	req.Type = protocol.TypeReq
	req.ProtocolVersion = protocol.Version

	c.writeMu.Lock()
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return protocol.ResMsg{}, &TransportError{Op: req.Op, Err: err}
	}

	select {
	case res := <-ch:
		if !res.OK {
			return res, transportf(req.Op, "%s: %s", res.ErrorCode, res.Error)
		}
		return res, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return protocol.ResMsg{}, &TransportError{Op: req.Op, Err: ctx.Err()}
	}
}

func (c *WS) SuspendTime(ctx context.Context) error {
	_, err := c.request(ctx, protocol.ReqMsg{Op: protocol.OpFreeze})
	return err
}

func (c *WS) ResumeTime(ctx context.Context) error {
	_, err := c.request(ctx, protocol.ReqMsg{Op: protocol.OpResume})
	return err
}

func (c *WS) Advance(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := c.request(ctx, protocol.ReqMsg{Op: protocol.OpAdvance, Ticks: n})
	return err
}

func (c *WS) SetBlock(ctx context.Context, pos spec.Vec3i, b spec.BlockSpec) error {
	p := posArr(pos)
	_, err := c.request(ctx, protocol.ReqMsg{
		Op:    protocol.OpSetBlock,
		Pos:   &p,
		Block: b.String(),
	})
	return err
}

func (c *WS) Fill(ctx context.Context, r spec.Region, b spec.BlockSpec) error {
	lo, hi := posArr(r.Min), posArr(r.Max)
	_, err := c.request(ctx, protocol.ReqMsg{
		Op:    protocol.OpFill,
		Min:   &lo,
		Max:   &hi,
		Block: b.String(),
	})
	return err
}

func (c *WS) QueryBlock(ctx context.Context, pos spec.Vec3i) (spec.BlockSpec, error) {
	p := posArr(pos)
	res, err := c.request(ctx, protocol.ReqMsg{Op: protocol.OpQueryBlock, Pos: &p})
	if err != nil {
		return spec.BlockSpec{}, err
	}
	if res.Block == "" {
		return spec.Air, nil
	}
	b, err := spec.ParseBlockSpec(res.Block)
	if err != nil {
		return spec.BlockSpec{}, transportf(protocol.OpQueryBlock, "bad block %q: %v", res.Block, err)
	}
	return b, nil
}

func posArr(v spec.Vec3i) [3]int { return [3]int{v.X, v.Y, v.Z} }
