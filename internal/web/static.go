package web

import (
	"net/http"
	"net/url"
	"path/filepath"

	qrcode "github.com/skip2/go-qrcode"

	appLog "zoocal/internal/log"
)

const (
	defaultQRText = "ZOO App!"
	qrSize        = 256
)

// handleDataFile serves a JSON dataset from cfg.DataDir unchanged.
func (s *Server) handleDataFile(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// http.ServeFile answers 404 for a missing file and 500 for others.
		http.ServeFile(w, r, filepath.Join(s.cfg.DataDir, name))
	}
}

// handleQRCode renders ?text= (default "ZOO App!") as a PNG QR code.
func (s *Server) handleQRCode(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if text == "" {
		text = defaultQRText
	}
	png, err := qrcode.Encode(text, qrcode.Medium, qrSize)
	if err != nil {
		appLog.Error("qr encode failed", err, "length", len(text))
		writeError(w, http.StatusBadRequest, "text cannot be encoded as a QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeText(w, "Hello, world!")
}

func (s *Server) handleGreeting(w http.ResponseWriter, r *http.Request) {
	writeText(w, "Hello, "+url.PathEscape(r.PathValue("name"))+"!")
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
