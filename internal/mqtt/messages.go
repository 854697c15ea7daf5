package mqtt

// Message is the polymorphic value produced by Decode and consumed by
// the broker's dispatch switch (see internal/broker.Dispatch). Every
// control packet kind this broker understands implements it.
type Message interface {
	Type() PacketType
	Encode() ([]byte, error)
}

// ConnectPacket is the first packet a client must send on a connection.
type ConnectPacket struct {
	ProtocolName    string
	ProtocolVersion byte

	HasUserName   bool
	HasPassword   bool
	HasWillRetain bool
	WillQoS       byte
	HasWill       bool
	CleanSession  bool

	KeepAlive uint16
	ClientID  string

	WillTopic   string
	WillMessage []byte
	Username    string
	Password    []byte
}

func (p *ConnectPacket) Type() PacketType { return CONNECT }

// wire carries the CONNECT wire layout for both directions: on a
// Read-mode codec it decodes into p's fields; on a Write-mode codec it
// reads p's fields to encode them. This mirrors the fixed header's own
// bidirectional grain and is why CONNECT needs no separate encode/
// decode functions.
func (p *ConnectPacket) wire(c *Codec) error {
	if err := c.String(&p.ProtocolName); err != nil {
		return err
	}
	if err := c.Uint8(&p.ProtocolVersion); err != nil {
		return err
	}
	if err := c.BitBool(&p.HasUserName); err != nil {
		return err
	}
	if err := c.BitBool(&p.HasPassword); err != nil {
		return err
	}
	if err := c.BitBool(&p.HasWillRetain); err != nil {
		return err
	}
	if err := c.Bits(&p.WillQoS, 2); err != nil {
		return err
	}
	if err := c.BitBool(&p.HasWill); err != nil {
		return err
	}
	if err := c.BitBool(&p.CleanSession); err != nil {
		return err
	}
	var reserved bool
	if err := c.BitBool(&reserved); err != nil {
		return err
	}
	if err := c.Uint16(&p.KeepAlive); err != nil {
		return err
	}
	if err := c.String(&p.ClientID); err != nil {
		return err
	}
	if p.HasWill {
		if err := c.String(&p.WillTopic); err != nil {
			return err
		}
		if err := c.LengthPrefixedBytes(&p.WillMessage); err != nil {
			return err
		}
	}
	if p.HasUserName {
		if err := c.String(&p.Username); err != nil {
			return err
		}
	}
	if p.HasPassword {
		if err := c.LengthPrefixedBytes(&p.Password); err != nil {
			return err
		}
	}
	return nil
}

func (p *ConnectPacket) Encode() ([]byte, error) {
	bc := NewEncoder()
	if err := p.wire(bc); err != nil {
		return nil, err
	}
	return buildPacket(FixedHeader{Type: CONNECT}, bc.Bytes())
}

// ConnackPacket acknowledges a CONNECT.
type ConnackPacket struct {
	SessionPresent bool
	ReturnCode     ConnackCode
}

func (p *ConnackPacket) Type() PacketType { return CONNACK }

func (p *ConnackPacket) Encode() ([]byte, error) {
	bc := NewEncoder()
	var flags byte
	if p.SessionPresent {
		flags = 1
	}
	if err := bc.Uint8(&flags); err != nil {
		return nil, err
	}
	rc := byte(p.ReturnCode)
	if err := bc.Uint8(&rc); err != nil {
		return nil, err
	}
	return buildPacket(FixedHeader{Type: CONNACK}, bc.Bytes())
}

func decodeConnack(c *Codec) (*ConnackPacket, error) {
	p := &ConnackPacket{}
	var flags, rc byte
	if err := c.Uint8(&flags); err != nil {
		return nil, err
	}
	if err := c.Uint8(&rc); err != nil {
		return nil, err
	}
	p.SessionPresent = flags&0x01 != 0
	p.ReturnCode = ConnackCode(rc)
	return p, nil
}

// PublishPacket carries application payload on a topic.
type PublishPacket struct {
	Dup      bool
	QoS      byte
	Retain   bool
	Topic    string
	PacketID uint16
	Payload  []byte
}

func (p *PublishPacket) Type() PacketType { return PUBLISH }

func (p *PublishPacket) Encode() ([]byte, error) {
	bc := NewEncoder()
	if err := bc.String(&p.Topic); err != nil {
		return nil, err
	}
	if p.QoS > 0 {
		if err := bc.Uint16(&p.PacketID); err != nil {
			return nil, err
		}
	}
	bc.buf = append(bc.buf, p.Payload...)
	return buildPacket(FixedHeader{Type: PUBLISH, Dup: p.Dup, QoS: p.QoS, Retain: p.Retain}, bc.Bytes())
}

// decodePublish is the one place the codec's read/write asymmetry is
// unavoidable (SPEC_FULL.md §4.1): the payload has no length prefix of
// its own, so its size on read is derived from the header's remaining
// count minus whatever topic/packet-id bytes were just consumed.
func decodePublish(c *Codec, fh FixedHeader) (*PublishPacket, error) {
	p := &PublishPacket{Dup: fh.Dup, QoS: fh.QoS, Retain: fh.Retain}
	start := c.pos
	if err := c.String(&p.Topic); err != nil {
		return nil, err
	}
	if p.QoS > 0 {
		if err := c.Uint16(&p.PacketID); err != nil {
			return nil, err
		}
	}
	consumed := c.pos - start
	payloadLen := int(fh.Remaining) - consumed
	if payloadLen < 0 {
		return nil, ErrUnexpectedEOF
	}
	if err := c.RawBytes(&p.Payload, payloadLen); err != nil {
		return nil, err
	}
	return p, nil
}

// PubackPacket acknowledges a QoS 1 PUBLISH. This broker sends it
// immediately on receipt and does not track it afterward — there is
// no persistent in-flight store (spec.md §1 Non-goals).
type PubackPacket struct {
	PacketID uint16
}

func (p *PubackPacket) Type() PacketType { return PUBACK }

func (p *PubackPacket) Encode() ([]byte, error) {
	bc := NewEncoder()
	if err := bc.Uint16(&p.PacketID); err != nil {
		return nil, err
	}
	return buildPacket(FixedHeader{Type: PUBACK}, bc.Bytes())
}

func decodePuback(c *Codec) (*PubackPacket, error) {
	p := &PubackPacket{}
	if err := c.Uint16(&p.PacketID); err != nil {
		return nil, err
	}
	return p, nil
}

// TopicFilter is one (topic, qos) entry in a SUBSCRIBE packet.
type TopicFilter struct {
	Topic string
	QoS   byte
}

// SubscribePacket requests one or more topic subscriptions.
type SubscribePacket struct {
	PacketID uint16
	Filters  []TopicFilter
}

func (p *SubscribePacket) Type() PacketType { return SUBSCRIBE }

func (p *SubscribePacket) Encode() ([]byte, error) {
	bc := NewEncoder()
	if err := bc.Uint16(&p.PacketID); err != nil {
		return nil, err
	}
	for i := range p.Filters {
		if err := bc.String(&p.Filters[i].Topic); err != nil {
			return nil, err
		}
		if err := bc.Uint8(&p.Filters[i].QoS); err != nil {
			return nil, err
		}
	}
	return buildPacket(FixedHeader{Type: SUBSCRIBE}, bc.Bytes())
}

func decodeSubscribe(c *Codec, fh FixedHeader) (*SubscribePacket, error) {
	p := &SubscribePacket{}
	start := c.pos
	if err := c.Uint16(&p.PacketID); err != nil {
		return nil, err
	}
	for c.pos-start < int(fh.Remaining) {
		var tf TopicFilter
		if err := c.String(&tf.Topic); err != nil {
			return nil, err
		}
		if err := c.Uint8(&tf.QoS); err != nil {
			return nil, err
		}
		p.Filters = append(p.Filters, tf)
	}
	return p, nil
}

// SubackPacket grants (or refuses, 0x80) each requested subscription
// in order.
type SubackPacket struct {
	PacketID    uint16
	ReturnCodes []byte
}

func (p *SubackPacket) Type() PacketType { return SUBACK }

func (p *SubackPacket) Encode() ([]byte, error) {
	bc := NewEncoder()
	if err := bc.Uint16(&p.PacketID); err != nil {
		return nil, err
	}
	bc.buf = append(bc.buf, p.ReturnCodes...)
	return buildPacket(FixedHeader{Type: SUBACK}, bc.Bytes())
}

func decodeSuback(c *Codec, fh FixedHeader) (*SubackPacket, error) {
	p := &SubackPacket{}
	if err := c.Uint16(&p.PacketID); err != nil {
		return nil, err
	}
	n := int(fh.Remaining) - 2
	if err := c.RawBytes(&p.ReturnCodes, n); err != nil {
		return nil, err
	}
	return p, nil
}

// UnsubscribePacket removes one or more topic subscriptions.
type UnsubscribePacket struct {
	PacketID uint16
	Topics   []string
}

func (p *UnsubscribePacket) Type() PacketType { return UNSUBSCRIBE }

func (p *UnsubscribePacket) Encode() ([]byte, error) {
	bc := NewEncoder()
	if err := bc.Uint16(&p.PacketID); err != nil {
		return nil, err
	}
	for i := range p.Topics {
		if err := bc.String(&p.Topics[i]); err != nil {
			return nil, err
		}
	}
	return buildPacket(FixedHeader{Type: UNSUBSCRIBE}, bc.Bytes())
}

func decodeUnsubscribe(c *Codec, fh FixedHeader) (*UnsubscribePacket, error) {
	p := &UnsubscribePacket{}
	start := c.pos
	if err := c.Uint16(&p.PacketID); err != nil {
		return nil, err
	}
	for c.pos-start < int(fh.Remaining) {
		var topic string
		if err := c.String(&topic); err != nil {
			return nil, err
		}
		p.Topics = append(p.Topics, topic)
	}
	return p, nil
}

// UnsubackPacket acknowledges an UNSUBSCRIBE.
type UnsubackPacket struct {
	PacketID uint16
}

func (p *UnsubackPacket) Type() PacketType { return UNSUBACK }

func (p *UnsubackPacket) Encode() ([]byte, error) {
	bc := NewEncoder()
	if err := bc.Uint16(&p.PacketID); err != nil {
		return nil, err
	}
	return buildPacket(FixedHeader{Type: UNSUBACK}, bc.Bytes())
}

func decodeUnsuback(c *Codec) (*UnsubackPacket, error) {
	p := &UnsubackPacket{}
	if err := c.Uint16(&p.PacketID); err != nil {
		return nil, err
	}
	return p, nil
}

// PingreqPacket and PingrespPacket and DisconnectPacket carry no body.
type PingreqPacket struct{}

func (p *PingreqPacket) Type() PacketType        { return PINGREQ }
func (p *PingreqPacket) Encode() ([]byte, error) { return buildPacket(FixedHeader{Type: PINGREQ}, nil) }

type PingrespPacket struct{}

func (p *PingrespPacket) Type() PacketType { return PINGRESP }
func (p *PingrespPacket) Encode() ([]byte, error) {
	return buildPacket(FixedHeader{Type: PINGRESP}, nil)
}

type DisconnectPacket struct{}

func (p *DisconnectPacket) Type() PacketType { return DISCONNECT }
func (p *DisconnectPacket) Encode() ([]byte, error) {
	return buildPacket(FixedHeader{Type: DISCONNECT}, nil)
}

// Decode parses raw — exactly one whole MQTT packet (fixed header plus
// body) — into its typed Message. Unknown or reserved packet types
// return ErrUnknownPacketType so the caller can log and drop the
// packet without tearing down the connection (spec.md §4.2); every
// other decode failure is a MalformedPacket per spec.md §7 and should
// close the connection.
func Decode(raw []byte) (Message, error) {
	c := NewDecoder(raw)
	var fh FixedHeader
	if err := c.FixedHeader(&fh); err != nil {
		return nil, err
	}

	switch fh.Type {
	case CONNECT:
		p := &ConnectPacket{}
		if err := p.wire(c); err != nil {
			return nil, err
		}
		return p, nil
	case CONNACK:
		return decodeConnack(c)
	case PUBLISH:
		return decodePublish(c, fh)
	case PUBACK:
		return decodePuback(c)
	case SUBSCRIBE:
		return decodeSubscribe(c, fh)
	case SUBACK:
		return decodeSuback(c, fh)
	case UNSUBSCRIBE:
		return decodeUnsubscribe(c, fh)
	case UNSUBACK:
		return decodeUnsuback(c)
	case PINGREQ:
		return &PingreqPacket{}, nil
	case PINGRESP:
		return &PingrespPacket{}, nil
	case DISCONNECT:
		return &DisconnectPacket{}, nil
	default:
		return nil, ErrUnknownPacketType
	}
}
