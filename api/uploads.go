package api

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/c360studio/taskhub/upload"
)

// multipartOverhead is the allowance for multipart headers and boundaries on
// top of a kind's size limit.
const multipartOverhead = 1 << 20

type uploadResponse struct {
	URL  string       `json:"url"`
	File *upload.File `json:"file"`
}

// handleUpload stores one file from the kind's multipart field. Avatar
// uploads also replace the caller's avatar.
func (s *Server) handleUpload(kind upload.Kind) http.HandlerFunc {
	msg := "Document uploaded successfully"
	if kind == upload.Avatar {
		msg = "Avatar uploaded successfully"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if s.uploads == nil {
			fail(w, http.StatusServiceUnavailable, "Uploads are disabled")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, kind.MaxSize+multipartOverhead)
		if err := r.ParseMultipartForm(multipartOverhead); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				fail(w, http.StatusRequestEntityTooLarge, "File size too large")
				return
			}
			fail(w, http.StatusBadRequest, "No file uploaded")
			return
		}
		defer r.MultipartForm.RemoveAll()

		f, hdr, err := r.FormFile(kind.Field)
		if err != nil {
			fail(w, http.StatusBadRequest, "No file uploaded")
			return
		}
		defer f.Close()

		saved, err := s.uploads.Save(kind, hdr.Filename, hdr.Header.Get("Content-Type"), hdr.Size, f)
		switch {
		case errors.Is(err, upload.ErrTooLarge):
			fail(w, http.StatusRequestEntityTooLarge, "File size too large")
			return
		case errors.Is(err, upload.ErrInvalidType):
			fail(w, http.StatusBadRequest, "Invalid file type")
			return
		case err != nil:
			s.failErr(w, r, err)
			return
		}

		if kind == upload.Avatar {
			u := principal(r).User
			previous := u.Avatar
			u.Avatar = saved.URL
			if err := s.store.UpdateUser(r.Context(), u); err != nil {
				s.removeUpload(saved.Name)
				s.failErr(w, r, err)
				return
			}
			if previous != "" && strings.HasPrefix(previous, "/uploads/") {
				s.removeUpload(path.Base(previous))
			}
		}
		s.logger.Info("File uploaded", "kind", kind.Field, "name", saved.Name, "size", saved.Size)
		respond(w, http.StatusCreated, msg, uploadResponse{URL: saved.URL, File: saved})
	}
}

func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	if s.uploads == nil {
		fail(w, http.StatusNotFound, "File not found")
		return
	}
	err := s.uploads.Delete(chi.URLParam(r, "filename"))
	switch {
	case errors.Is(err, upload.ErrInvalidName):
		fail(w, http.StatusBadRequest, "Invalid file name")
		return
	case errors.Is(err, upload.ErrNotFound):
		fail(w, http.StatusNotFound, "File not found")
		return
	case err != nil:
		s.failErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, "File deleted successfully", nil)
}

func (s *Server) removeUpload(name string) {
	if err := s.uploads.Delete(name); err != nil && !errors.Is(err, upload.ErrNotFound) {
		s.logger.Warn("Failed to remove upload", "name", name, "error", err)
	}
}
