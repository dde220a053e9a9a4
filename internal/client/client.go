// Copyright 2025 Storymig Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package client is the authenticated REST client for the content
// management service: JSON management calls, public CDN downloads, and the
// signed multipart upload handshake.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"storymig/internal/common"
	"storymig/internal/migrate"
)

// Config configures a Client.
type Config struct {
	Token  string
	Region string

	// BaseURL overrides the region-derived management endpoint. Used in
	// tests.
	BaseURL string

	HTTPClient *http.Client
}

// Client talks to the management API of one region. Rate limiting is the
// service's concern; the client only classifies 429 responses so callers
// can retry where the pipeline allows it.
type Client struct {
	http  *http.Client
	token string
	base  string
}

// managementBase maps a region code to its management API endpoint.
func managementBase(region string) string {
	switch strings.ToLower(region) {
	case "", "eu":
		return "https://mapi.storyblok.com/v1"
	case "us":
		return "https://api-us.storyblok.com/v1"
	case "cn":
		return "https://app.storyblokchina.cn/v1"
	default:
		return fmt.Sprintf("https://mapi-%s.storyblok.com/v1", strings.ToLower(region))
	}
}

// New returns a Client for the given token and region.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	base := cfg.BaseURL
	if base == "" {
		base = managementBase(cfg.Region)
	}
	return &Client{http: hc, token: cfg.Token, base: strings.TrimSuffix(base, "/")}
}

// Get issues a management GET and returns the response body and headers.
// The headers carry the Total count used for paging.
func (c *Client) Get(ctx context.Context, p string, query url.Values) (json.RawMessage, http.Header, error) {
	u := c.base + "/" + strings.TrimPrefix(p, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, err
	}
	return c.do(req)
}

// Post issues a management POST with a JSON body.
func (c *Client) Post(ctx context.Context, p string, body any) (json.RawMessage, error) {
	return c.send(ctx, http.MethodPost, p, body)
}

// Put issues a management PUT with a JSON body.
func (c *Client) Put(ctx context.Context, p string, body any) (json.RawMessage, error) {
	return c.send(ctx, http.MethodPut, p, body)
}

func (c *Client) send(ctx context.Context, method, p string, body any) (json.RawMessage, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	u := c.base + "/" + strings.TrimPrefix(p, "/")
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	data, _, err := c.do(req)
	return data, err
}

func (c *Client) do(req *http.Request) (json.RawMessage, http.Header, error) {
	req.Header.Set("Authorization", c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, resp.Header, &common.StatusError{Code: resp.StatusCode, Body: truncate(string(data), 200)}
	}
	return data, resp.Header, nil
}

// Download fetches a public asset URL and streams it to dst. No auth: the
// CDN read scope serves assets publicly.
func (c *Client) Download(ctx context.Context, rawURL string, dst io.Writer) error {
	if strings.HasPrefix(rawURL, "//") {
		rawURL = "https:" + rawURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &common.StatusError{Code: resp.StatusCode}
	}
	_, err = io.Copy(dst, resp.Body)
	return err
}

// SubmitUpload streams the staged bytes as a multipart form to the signed
// destination: required fields first, the file part last, as the
// storage backend demands.
func (c *Client) SubmitUpload(ctx context.Context, up migrate.Upload, src io.Reader) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		var err error
		defer func() { pw.CloseWithError(err) }()
		for k, v := range up.Fields {
			if err = mw.WriteField(k, v); err != nil {
				return
			}
		}
		var part io.Writer
		if part, err = mw.CreateFormFile("file", path.Base(up.Fields["key"])); err != nil {
			return
		}
		if _, err = io.Copy(part, src); err != nil {
			return
		}
		err = mw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, up.PostURL, pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &common.StatusError{Code: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
