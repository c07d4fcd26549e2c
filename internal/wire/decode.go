package wire

// Decode turns one frame into a Message. Failures are always *DecodeError
// and never depend on previous frames.
func Decode(f Frame) (Message, error) {
	var (
		msg Message
		err error
	)
	switch f.Kind {
	case FrameBinary:
		msg, err = decodeProto(f.Data)
	case FrameText:
		msg, err = decodeJSON(f.Data)
	default:
		err = ErrUnknownFrame
	}
	if err != nil {
		return Message{}, decodeErr(f.Kind, err)
	}
	return msg, nil
}
