package errors

var (
	// Domain errors used by usecase and repository.
	ErrConversationNotFound = NotFound("conversation not found")
	ErrMessageNotFound      = NotFound("message not found")
	ErrGuestNameRequired    = InvalidArg("guest name is required to start a conversation")
	ErrEmptyMessage         = InvalidArg("message must contain text or at least one attachment")
	ErrAlreadyClaimed       = FailedPrecondition("conversation is already claimed by another agent")
	ErrConversationClosed   = FailedPrecondition("conversation is closed")
	ErrAttachmentType       = InvalidArg("attachment file type is not allowed")
	ErrAttachmentTooLarge   = InvalidArg("attachment exceeds the 10MB size limit")
	ErrTooManyAttachments   = InvalidArg("a message may carry at most 5 attachments")
	ErrAgentRequired        = Forbidden("agent role required")
)

func ErrStartConversationFailed(cause error) error {
	return Wrap(CodeInternal, "failed to start conversation", cause)
}

func ErrSendMessageFailed(cause error) error {
	return Wrap(CodeInternal, "failed to send message", cause)
}
