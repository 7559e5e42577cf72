package web

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/vbonduro/partsledger/internal/domain"
	"github.com/vbonduro/partsledger/internal/imagestore"
	"github.com/vbonduro/partsledger/internal/service"
)

const maxImageSize = 10 * 1024 * 1024 // 10 MB

// allowedImageTypes is the set of MIME types accepted for item images.
// net/http.DetectContentType handles JPEG, PNG, and GIF via magic-byte
// sniffing. WebP is detected separately because the WHATWG sniff spec (and
// therefore the stdlib) does not include a WebP signature.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// allowedImageMIME returns the detected MIME type and true if the data is an
// accepted image format, or ("", false) otherwise.
func allowedImageMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

// stockInForm reads a multipart stock-in: the same fields as the JSON body
// as form values, plus an optional "image" file.
func (s *Server) stockInForm(r *http.Request) (service.StockInRequest, error) {
	var req service.StockInRequest
	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		return req, domain.NewValidationError("", "failed to parse form")
	}

	var err error
	if req.ItemID, err = formInt(r, "item_id"); err != nil {
		return req, err
	}
	if req.Quantity, err = formInt(r, "qty"); err != nil {
		return req, err
	}
	req.Name = r.FormValue("name")
	if _, ok := r.MultipartForm.Value["footprint"]; ok {
		fp := r.FormValue("footprint")
		req.Footprint = &fp
	}
	req.PartNumber = r.FormValue("part_number")
	req.Category = r.FormValue("category")
	req.ItemType = r.FormValue("item_type")
	req.Location = r.FormValue("location")
	req.DatasheetURL = r.FormValue("datasheet_url")
	req.ProjectRef = r.FormValue("project_ref")
	req.Notes = r.FormValue("notes")
	req.IsNew, _ = strconv.ParseBool(r.FormValue("is_new"))

	file, _, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return req, domain.NewValidationError("image", "failed to read image")
	}
	defer closeWithLog(file, "upload file", s.logger)

	imageData, err := io.ReadAll(io.LimitReader(file, maxImageSize+1))
	if err != nil {
		return req, err
	}
	if len(imageData) > maxImageSize {
		return req, domain.NewValidationError("image", "image is too large")
	}
	mimeType, ok := allowedImageMIME(imageData)
	if !ok {
		return req, domain.NewValidationError("image", "unsupported image format")
	}
	req.Image = &service.Image{MimeType: mimeType, Data: bytes.NewReader(imageData)}
	return req, nil
}

func formInt(r *http.Request, key string) (int64, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, domain.NewValidationError(key, "must be an integer")
	}
	return n, nil
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	reader, mimeType, err := s.inventory.OpenImage(r.Context(), key)
	if err != nil {
		if !errors.Is(err, imagestore.ErrNotFound) {
			s.logger.Warn("open image failed", "key", key, "error", err)
		}
		http.NotFound(w, r)
		return
	}
	defer closeWithLog(reader, "image reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write image failed", "key", key, "error", err)
	}
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
