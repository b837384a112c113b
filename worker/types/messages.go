package types

type WorkerMessage interface {
	InResponseTo() WorkerMessage
	getId() int64
	setId(id int64)
}

type Message struct {
	inResponseTo WorkerMessage
	id           int64
}

func RespondTo(msg WorkerMessage) Message {
	return Message{
		inResponseTo: msg,
	}
}

func (m Message) InResponseTo() WorkerMessage {
	return m.inResponseTo
}

func (m Message) getId() int64 {
	return m.id
}

func (m *Message) setId(id int64) {
	m.id = id
}

// Feedback carries one partial result of a request to the apply context
type Feedback struct {
	Message
	Payload any
}

// Done is the last message of a request. Err is set when the job failed.
type Done struct {
	Message
	Cancelled bool
	Err       error
}
