package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/floorcast/internal/api/response"
	"github.com/kiranshivaraju/floorcast/internal/imagefile"
	"github.com/kiranshivaraju/floorcast/internal/uploads"
)

// UploadFormField is the multipart field holding the image.
const UploadFormField = "file"

// multipart headers and boundaries on top of the image itself
const formOverhead = 64 << 10

// Uploader stores an uploaded room image and returns its ref.
type Uploader interface {
	Save(r io.Reader) (string, error)
}

type uploadResponse struct {
	Ref string `json:"ref"`
}

// NewUploadHandler returns an http.HandlerFunc for POST /api/v1/uploads.
// The body is multipart/form-data with the image in the "file" field.
func NewUploadHandler(u Uploader, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+formOverhead)

		mr, err := r.MultipartReader()
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Expected a multipart/form-data body", nil)
			return
		}

		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				writeUploadError(w, err)
				return
			}
			if part.FormName() != UploadFormField {
				part.Close()
				continue
			}

			ref, err := u.Save(part)
			part.Close()
			if err != nil {
				writeUploadError(w, err)
				return
			}
			slog.Info("upload stored", "ref", ref)
			response.Created(w, uploadResponse{Ref: ref})
			return
		}

		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request",
			[]ValidationError{{Field: UploadFormField, Message: "is required"}})
	}
}

func writeUploadError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, uploads.ErrTooLarge), errors.As(err, &maxErr):
		response.Error(w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE",
			"Upload exceeds the size limit", nil)
	case errors.Is(err, uploads.ErrEmpty):
		response.Error(w, http.StatusBadRequest, "EMPTY_UPLOAD", "Upload is empty", nil)
	case errors.Is(err, imagefile.ErrUnsupportedType):
		response.Error(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE",
			"Only PNG, JPEG and WebP images are accepted", nil)
	default:
		slog.Error("storing upload", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
