// Package wire is the binary codec for the order-entry stream. Frames are
// a big-endian uint32 payload length followed by the payload: one type
// byte and a body that is fixed-width except for the login password,
// which carries a one-byte length prefix. Prices travel as float32 bit
// patterns, tickers as fixed eight-byte fields padded with NULs.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/Miloris/stock-exchange-simulation/internal/common"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short")
	ErrFrameTooLarge      = errors.New("frame exceeds maximum size")
)

const (
	frameHeaderLen = 4
	// MaxFrameSize bounds a single payload. The largest legitimate
	// message is a login with a 255-byte password.
	MaxFrameSize = 1024

	tickerFieldLen = 8
)

type MessageType uint8

const (
	// Client to server.
	MsgLogin MessageType = iota + 1
	MsgNewOrder
	MsgCancelOrder

	// Server to client.
	MsgLoginAck MessageType = iota + 13 // 16
	MsgLoginRej
	MsgOrderAck
	MsgOrderRej
	MsgOrderFill
	MsgOrderDead
	MsgCancelRej
)

type Message interface {
	Type() MessageType
}

type Login struct {
	SeqNum   uint32
	Investor uint64
	Password string
}

type NewOrder struct {
	SeqNum uint32
	Ticker string
	Side   common.Side
	Kind   common.OrderKind
	TIF    common.TimeInForce
	Size   uint32
	Price  float32
}

type CancelOrder struct {
	SeqNum  uint32
	OrderID uint64
}

type LoginAck struct {
	SeqNum uint32
}

type LoginRej struct {
	SeqNum uint32
	Reason common.RejectReason
}

type OrderAck struct {
	SeqNum  uint32
	OrderID uint64
}

type OrderRej struct {
	SeqNum uint32
	Reason common.RejectReason
}

type OrderFill struct {
	OrderID uint64
	Price   float32
	Size    uint32
}

type OrderDead struct {
	OrderID uint64
}

type CancelRej struct {
	SeqNum uint32
	Reason common.RejectReason
}

func (Login) Type() MessageType       { return MsgLogin }
func (NewOrder) Type() MessageType    { return MsgNewOrder }
func (CancelOrder) Type() MessageType { return MsgCancelOrder }
func (LoginAck) Type() MessageType    { return MsgLoginAck }
func (LoginRej) Type() MessageType    { return MsgLoginRej }
func (OrderAck) Type() MessageType    { return MsgOrderAck }
func (OrderRej) Type() MessageType    { return MsgOrderRej }
func (OrderFill) Type() MessageType   { return MsgOrderFill }
func (OrderDead) Type() MessageType   { return MsgOrderDead }
func (CancelRej) Type() MessageType   { return MsgCancelRej }

// Encode serializes a message payload (type byte plus body, no frame
// header).
func Encode(m Message) ([]byte, error) {
	var body []byte
	switch msg := m.(type) {
	case Login:
		if len(msg.Password) > 255 {
			return nil, fmt.Errorf("password too long: %d bytes", len(msg.Password))
		}
		body = make([]byte, 4+8+1+len(msg.Password))
		binary.BigEndian.PutUint32(body[0:4], msg.SeqNum)
		binary.BigEndian.PutUint64(body[4:12], msg.Investor)
		body[12] = uint8(len(msg.Password))
		copy(body[13:], msg.Password)

	case NewOrder:
		body = make([]byte, 4+tickerFieldLen+1+1+1+4+4)
		binary.BigEndian.PutUint32(body[0:4], msg.SeqNum)
		copy(body[4:4+tickerFieldLen], msg.Ticker)
		body[12] = byte(msg.Side)
		body[13] = byte(msg.Kind)
		body[14] = byte(msg.TIF)
		binary.BigEndian.PutUint32(body[15:19], msg.Size)
		binary.BigEndian.PutUint32(body[19:23], math.Float32bits(msg.Price))

	case CancelOrder:
		body = make([]byte, 4+8)
		binary.BigEndian.PutUint32(body[0:4], msg.SeqNum)
		binary.BigEndian.PutUint64(body[4:12], msg.OrderID)

	case LoginAck:
		body = make([]byte, 4)
		binary.BigEndian.PutUint32(body[0:4], msg.SeqNum)

	case LoginRej:
		body = make([]byte, 5)
		binary.BigEndian.PutUint32(body[0:4], msg.SeqNum)
		body[4] = byte(msg.Reason)

	case OrderAck:
		body = make([]byte, 4+8)
		binary.BigEndian.PutUint32(body[0:4], msg.SeqNum)
		binary.BigEndian.PutUint64(body[4:12], msg.OrderID)

	case OrderRej:
		body = make([]byte, 5)
		binary.BigEndian.PutUint32(body[0:4], msg.SeqNum)
		body[4] = byte(msg.Reason)

	case OrderFill:
		body = make([]byte, 8+4+4)
		binary.BigEndian.PutUint64(body[0:8], msg.OrderID)
		binary.BigEndian.PutUint32(body[8:12], math.Float32bits(msg.Price))
		binary.BigEndian.PutUint32(body[12:16], msg.Size)

	case OrderDead:
		body = make([]byte, 8)
		binary.BigEndian.PutUint64(body[0:8], msg.OrderID)

	case CancelRej:
		body = make([]byte, 5)
		binary.BigEndian.PutUint32(body[0:4], msg.SeqNum)
		body[4] = byte(msg.Reason)

	default:
		return nil, ErrInvalidMessageType
	}

	payload := make([]byte, 1+len(body))
	payload[0] = byte(m.Type())
	copy(payload[1:], body)
	return payload, nil
}

// Decode parses a payload produced by Encode.
func Decode(payload []byte) (Message, error) {
	if len(payload) < 1 {
		return nil, ErrMessageTooShort
	}
	typ := MessageType(payload[0])
	body := payload[1:]

	switch typ {
	case MsgLogin:
		if len(body) < 13 {
			return nil, ErrMessageTooShort
		}
		passLen := int(body[12])
		if len(body) < 13+passLen {
			return nil, ErrMessageTooShort
		}
		return Login{
			SeqNum:   binary.BigEndian.Uint32(body[0:4]),
			Investor: binary.BigEndian.Uint64(body[4:12]),
			Password: string(body[13 : 13+passLen]),
		}, nil

	case MsgNewOrder:
		if len(body) < 23 {
			return nil, ErrMessageTooShort
		}
		return NewOrder{
			SeqNum: binary.BigEndian.Uint32(body[0:4]),
			Ticker: strings.TrimRight(string(body[4:4+tickerFieldLen]), "\x00"),
			Side:   common.Side(body[12]),
			Kind:   common.OrderKind(body[13]),
			TIF:    common.TimeInForce(body[14]),
			Size:   binary.BigEndian.Uint32(body[15:19]),
			Price:  math.Float32frombits(binary.BigEndian.Uint32(body[19:23])),
		}, nil

	case MsgCancelOrder:
		if len(body) < 12 {
			return nil, ErrMessageTooShort
		}
		return CancelOrder{
			SeqNum:  binary.BigEndian.Uint32(body[0:4]),
			OrderID: binary.BigEndian.Uint64(body[4:12]),
		}, nil

	case MsgLoginAck:
		if len(body) < 4 {
			return nil, ErrMessageTooShort
		}
		return LoginAck{SeqNum: binary.BigEndian.Uint32(body[0:4])}, nil

	case MsgLoginRej:
		if len(body) < 5 {
			return nil, ErrMessageTooShort
		}
		return LoginRej{
			SeqNum: binary.BigEndian.Uint32(body[0:4]),
			Reason: common.RejectReason(body[4]),
		}, nil

	case MsgOrderAck:
		if len(body) < 12 {
			return nil, ErrMessageTooShort
		}
		return OrderAck{
			SeqNum:  binary.BigEndian.Uint32(body[0:4]),
			OrderID: binary.BigEndian.Uint64(body[4:12]),
		}, nil

	case MsgOrderRej:
		if len(body) < 5 {
			return nil, ErrMessageTooShort
		}
		return OrderRej{
			SeqNum: binary.BigEndian.Uint32(body[0:4]),
			Reason: common.RejectReason(body[4]),
		}, nil

	case MsgOrderFill:
		if len(body) < 16 {
			return nil, ErrMessageTooShort
		}
		return OrderFill{
			OrderID: binary.BigEndian.Uint64(body[0:8]),
			Price:   math.Float32frombits(binary.BigEndian.Uint32(body[8:12])),
			Size:    binary.BigEndian.Uint32(body[12:16]),
		}, nil

	case MsgOrderDead:
		if len(body) < 8 {
			return nil, ErrMessageTooShort
		}
		return OrderDead{OrderID: binary.BigEndian.Uint64(body[0:8])}, nil

	case MsgCancelRej:
		if len(body) < 5 {
			return nil, ErrMessageTooShort
		}
		return CancelRej{
			SeqNum: binary.BigEndian.Uint32(body[0:4]),
			Reason: common.RejectReason(body[4]),
		}, nil
	}
	return nil, ErrInvalidMessageType
}

// WriteFrame encodes the message and writes it with its length prefix.
func WriteFrame(w io.Writer, m Message) error {
	payload, err := Encode(m)
	if err != nil {
		return err
	}
	frame := make([]byte, frameHeaderLen+len(payload))
	binary.BigEndian.PutUint32(frame[0:frameHeaderLen], uint32(len(payload)))
	copy(frame[frameHeaderLen:], payload)
	_, err = w.Write(frame)
	return err
}

// ReadFrame reads one length-prefixed payload and decodes it.
func ReadFrame(r io.Reader) (Message, error) {
	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size == 0 {
		return nil, ErrMessageTooShort
	}
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return Decode(payload)
}
