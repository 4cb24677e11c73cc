package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	goahttp "goa.design/goa/v3/http"
	goa "goa.design/goa/v3/pkg"

	"aeroguardian/internal/frame"
	"aeroguardian/internal/mode"
	"aeroguardian/internal/pipeline"
	"aeroguardian/internal/ws"
)

// Console is the part of the command dispatcher the REST surface drives
type Console interface {
	Mode() mode.Mode
	Visibility() mode.Visibility
	SelectMode(ctx context.Context, m mode.Mode) (mode.Visibility, error)
	Scan(ctx context.Context, frame image.Image) (*pipeline.Event, error)
	LiveStats() pipeline.LiveStats
}

// ModePayload is the body of PUT /api/mode
type ModePayload struct {
	Mode string `json:"mode"`
}

// ModeResult is the current mode and which frame-source panel is shown
type ModeResult struct {
	Mode  mode.Mode `json:"mode"`
	Label string    `json:"label"`
	mode.Visibility
}

// ConsoleService implements the mode and scan endpoints
type ConsoleService struct {
	console   Console
	maxUpload int64
	Mounts    []MountPoint
}

// NewConsoleService creates the console service. Uploads larger than
// maxUpload bytes are rejected.
func NewConsoleService(c Console, maxUpload int64) *ConsoleService {
	return &ConsoleService{console: c, maxUpload: maxUpload}
}

// GetMode returns the active input mode
func (s *ConsoleService) GetMode(context.Context) *ModeResult {
	m := s.console.Mode()
	return &ModeResult{Mode: m, Label: m.Label(), Visibility: s.console.Visibility()}
}

// SetMode switches the input mode
func (s *ConsoleService) SetMode(ctx context.Context, p *ModePayload) (*ModeResult, error) {
	m, err := mode.Parse(p.Mode)
	if err != nil {
		return nil, err
	}
	vis, err := s.console.SelectMode(ctx, m)
	if err != nil {
		return nil, err
	}
	return &ModeResult{Mode: m, Label: m.Label(), Visibility: vis}, nil
}

// Scan runs the pipeline on an uploaded still. A nil frame produces the
// NO SIGNAL report.
func (s *ConsoleService) Scan(ctx context.Context, img image.Image) (*ws.ReportMessage, error) {
	event, err := s.console.Scan(ctx, img)
	if err != nil {
		return nil, err
	}
	return ws.NewReportMessage(event, true)
}

// Mount registers the mode and scan routes
func (s *ConsoleService) Mount(mux goahttp.Muxer) {
	s.Mounts = append(s.Mounts,
		mount(mux, "get_mode", http.MethodGet, "/api/mode", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(r.Context(), w, http.StatusOK, s.GetMode(r.Context()))
		}),
		mount(mux, "set_mode", http.MethodPut, "/api/mode", func(w http.ResponseWriter, r *http.Request) {
			var p ModePayload
			if err := decodeJSON(r, &p); err != nil {
				writeError(r.Context(), w, err)
				return
			}
			res, err := s.SetMode(r.Context(), &p)
			if err != nil {
				writeError(r.Context(), w, err)
				return
			}
			writeJSON(r.Context(), w, http.StatusOK, res)
		}),
		mount(mux, "scan", http.MethodPost, "/api/scan", func(w http.ResponseWriter, r *http.Request) {
			img, err := s.readFrame(w, r)
			if err != nil {
				writeError(r.Context(), w, err)
				return
			}
			res, err := s.Scan(r.Context(), img)
			if err != nil {
				writeError(r.Context(), w, err)
				return
			}
			writeJSON(r.Context(), w, http.StatusOK, res)
		}),
	)
}

// readFrame extracts the uploaded image from a multipart "image" field or
// the raw body. An empty upload yields a nil frame.
func (s *ConsoleService) readFrame(w http.ResponseWriter, r *http.Request) (image.Image, error) {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	}

	var data []byte
	var err error
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		data, err = s.readMultipart(r)
	} else {
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, goa.PermanentError(ErrNameTooLarge, "upload exceeds %s", humanize.IBytes(uint64(tooLarge.Limit)))
		}
		return nil, goa.PermanentError(ErrNameBadRequest, "read upload: %s", err.Error())
	}
	if len(data) == 0 {
		return nil, nil
	}
	return frame.DecodeBytes(data)
}

func (s *ConsoleService) readMultipart(r *http.Request) ([]byte, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != "image" {
			_ = part.Close()
			continue
		}
		defer part.Close()
		data, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("read image field: %w", err)
		}
		return data, nil
	}
}
