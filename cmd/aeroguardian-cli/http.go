package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	goahttp "goa.design/goa/v3/http"
)

// client talks to the aeroguardian REST API
type client struct {
	base  string
	token string
	doer  goahttp.Doer
	debug bool
}

func newClient(base, token string, timeout time.Duration, debug bool) *client {
	var doer goahttp.Doer
	{
		doer = &http.Client{Timeout: timeout}
		if debug {
			doer = goahttp.NewDebugDoer(doer)
		}
	}
	return &client{base: strings.TrimRight(base, "/"), token: token, doer: doer, debug: debug}
}

// apiError mirrors the server's error body
type apiError struct {
	Status  int    `json:"-"`
	Name    string `json:"name"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s (%d) [%s]: %s", e.Name, e.Status, e.ID, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Status, e.Message)
}

// call sends a JSON request (body may be nil) and decodes the response into out
func (c *client) call(ctx context.Context, method, path string, body, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		if err := goahttp.RequestEncoder(req).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	return c.do(req, out)
}

// upload posts an image file to /api/scan as the multipart "image" field
func (c *client) upload(ctx context.Context, path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/scan", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}

func (c *client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.doer.Do(req)
	if c.debug {
		if dd, ok := c.doer.(goahttp.DebugDoer); ok {
			dd.Fprint(os.Stderr)
		}
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &apiError{Status: resp.StatusCode}
		if err := goahttp.ResponseDecoder(resp).Decode(apiErr); err != nil || apiErr.Name == "" {
			raw, _ := io.ReadAll(resp.Body)
			apiErr.Name = http.StatusText(resp.StatusCode)
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return goahttp.ResponseDecoder(resp).Decode(out)
}

// saveFrame writes a base64 JPEG to path
func saveFrame(path, encoded string) error {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
