package rommclient

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"os"
	"time"

	"github.com/romm-sync/saveport/internal/pathfmt"
)

// uploadGuardWindow is the "too close to the epoch to trust" threshold applied to a
// save's timestamp before pushing it: timestamps under 30 days past the
// epoch usually mean the device's clock reset rather than that the save is
// genuinely ancient.
const uploadGuardWindow = 30 * 24 * time.Hour

// PushSave uploads the file at path as meta's save, named either by format
// (when supplied) or "<name>.<ext>". If meta's timestamp falls inside the
// upload guard window, the push is skipped with a warning logged (this is not an error:
// it is the intended outcome of the guard).
func (c *Client) PushSave(ctx context.Context, path string, meta RommSaveMeta, format *pathfmt.FormatString) error {
	if meta.Meta.Timestamp().Sub(time.Unix(0, 0).UTC()) < uploadGuardWindow {
		c.logger.Warn("rommclient: refusing to push save with suspiciously early timestamp",
			"path", path, "timestamp", meta.Meta.Timestamp())
		return nil
	}

	endpoint := fmt.Sprintf("/api/saves?rom_id=%d", meta.RomID)
	if meta.Meta.Emulator != nil {
		endpoint += "&emulator=" + url.QueryEscape(*meta.Meta.Emulator)
	}

	target := fmt.Sprintf("%s.%s", meta.Meta.Name, meta.Meta.Ext)
	if format != nil {
		target = meta.Meta.OutputTarget(format)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("rommclient: push_save: opening %q: %w", path, err)
	}
	defer f.Close()

	pr, contentType, err := buildSaveUploadBody(target, f)
	if err != nil {
		return fmt.Errorf("rommclient: push_save: %w", err)
	}

	resp, err := c.do(ctx, "POST", endpoint, contentType, pr)
	if err != nil {
		return fmt.Errorf("rommclient: push_save: %w", err)
	}
	defer resp.Body.Close()

	return nil
}

// buildSaveUploadBody streams content into a multipart body, in a single
// "saves" file part named filename, without buffering the whole file in
// memory: the multipart writer runs on a goroutine writing into an
// io.Pipe, and the returned reader is consumed by the HTTP request.
func buildSaveUploadBody(filename string, content io.Reader) (io.Reader, string, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		part, err := writer.CreateFormFile("saves", filename)
		if err != nil {
			pw.CloseWithError(fmt.Errorf("creating form file: %w", err))
			return
		}
		if _, err := io.Copy(part, content); err != nil {
			pw.CloseWithError(fmt.Errorf("streaming file content: %w", err))
			return
		}
		if err := writer.Close(); err != nil {
			pw.CloseWithError(fmt.Errorf("closing multipart writer: %w", err))
			return
		}
		pw.Close()
	}()

	return pr, writer.FormDataContentType(), nil
}

// PullSave downloads meta's remote content to dest via the atomic-write
// helper. meta must have a download path.
func (c *Client) PullSave(ctx context.Context, dest string, meta RommSaveMeta) error {
	if meta.DownloadPath == nil {
		return fmt.Errorf("rommclient: pull_save: %w", ErrNoDownloadPath)
	}

	resp, err := c.do(ctx, "GET", *meta.DownloadPath, "", nil)
	if err != nil {
		return fmt.Errorf("rommclient: pull_save: %w", err)
	}
	defer resp.Body.Close()

	if err := atomicDownload(resp.Body, dest); err != nil {
		return fmt.Errorf("rommclient: pull_save: %w", err)
	}
	return nil
}
