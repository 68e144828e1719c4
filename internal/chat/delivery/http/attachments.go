package http

import (
	"net/http"

	"github.com/google/uuid"

	"livechat/internal/chat"
	"livechat/pkg/errors"
)

const (
	maxAttachmentSize  = 10 << 20
	maxAttachmentCount = 5
	// Request cap: five attachments plus form overhead.
	maxUploadBody = maxAttachmentCount*maxAttachmentSize + (1 << 20)
)

// sendMessageWithAttachments takes a multipart form: conversation_id,
// message, and up to five "attachments" files. Files go through the
// storage collaborator first; the message then persists atomically with
// its attachment references.
func (h *Handler) sendMessageWithAttachments(w http.ResponseWriter, r *http.Request) {
	ident, err := h.auth.IdentityFor(r)
	if err != nil {
		writeError(w, errors.Unauthorized("invalid credentials"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, errors.InvalidArg("invalid multipart body"))
		return
	}

	conversationID, err := uuid.Parse(r.FormValue("conversation_id"))
	if err != nil {
		writeError(w, errors.InvalidArg("invalid conversation_id"))
		return
	}

	files := r.MultipartForm.File["attachments"]
	if len(files) > maxAttachmentCount {
		writeError(w, errors.ErrTooManyAttachments)
		return
	}

	uploads := make([]chat.AttachmentUpload, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxAttachmentSize {
			writeError(w, errors.ErrAttachmentTooLarge)
			return
		}
		f, err := fh.Open()
		if err != nil {
			writeError(w, errors.Internal("failed to read attachment"))
			return
		}
		stored, err := h.files.Store(r.Context(), fh.Filename, fh.Header.Get("Content-Type"), f)
		f.Close()
		if err != nil {
			h.logger.Error("attachment store failed", "err", err, "file", fh.Filename)
			writeError(w, errors.Internal("failed to store attachment"))
			return
		}
		uploads = append(uploads, chat.AttachmentUpload{
			FileURL:  stored.FileURL,
			FileName: stored.FileName,
			FileType: stored.FileType,
			FileSize: stored.FileSize,
		})
	}

	dto, err := h.uc.SendMessage(r.Context(), chat.SendMessageCommand{
		ConversationID: conversationID,
		SenderType:     senderType(ident),
		SenderID:       senderID(ident),
		Body:           r.FormValue("message"),
		Attachments:    uploads,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, dto)
}
