package core

// memberSession implements MemberSession by pairing context + transport.
type memberSession struct {
	ctx  *ConnContext
	conn SignalConnection
}

func NewMemberSession(ctx *ConnContext, conn SignalConnection) MemberSession {
	return &memberSession{ctx: ctx, conn: conn}
}

func (m *memberSession) Context() *ConnContext { return m.ctx }

func (m *memberSession) Signal() SignalConnection { return m.conn }
