package api

import (
	"fmt"
	"mime/multipart"
	"net/http"
)

// maxMultipartMemory bounds the in-memory portion of multipart parsing;
// larger file parts spill to disk before being staged.
const maxMultipartMemory = 32 << 20

// stageFormFile stages the named multipart file part and returns the staged
// path, or "" when the part is absent.
func (h *Handler) stageFormFile(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s upload: %w", field, err)
	}
	defer file.Close()
	return h.stageUpload(file, header)
}

func (h *Handler) stageUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	path, err := h.Staging.Save(file, header.Filename)
	if err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}
	return path, nil
}

// removeStaged deletes any staged files left over when a request bails out
// before reaching the gateway.
func (h *Handler) removeStaged(paths ...string) {
	for _, path := range paths {
		if path != "" {
			h.Staging.Remove(path)
		}
	}
}
