package protocol

// NoOpHandler implements MessageHandler with no-op methods.
// Embed this and override only the methods you need.
type NoOpHandler struct{}

func (NoOpHandler) HandleJobTransition(*Envelope, *JobTransition)             {}
func (NoOpHandler) HandleOperatorPresence(*Envelope, *OperatorPresence)       {}
func (NoOpHandler) HandleJobTransitionResult(*Envelope, *JobTransitionResult) {}
func (NoOpHandler) HandleJobDelivered(*Envelope, *JobDelivered)               {}

var _ MessageHandler = NoOpHandler{}
