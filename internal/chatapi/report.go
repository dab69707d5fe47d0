package chatapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ErrInvalidFormat is returned for a report format other than pdf or xlsx.
var ErrInvalidFormat = errors.New("report format must be pdf or xlsx")

// Report formats.
const (
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
)

// ReportURL returns the download address of a session report.
func (c *Client) ReportURL(sessionID, format string) (string, error) {
	if format != FormatPDF && format != FormatXLSX {
		return "", ErrInvalidFormat
	}
	return fmt.Sprintf("%s/report/%s?format=%s", c.baseURL, url.PathEscape(sessionID), format), nil
}

// ReportFilename returns the conventional file name for a session report.
func ReportFilename(sessionID, format string) string {
	return fmt.Sprintf("report-%s.%s", sessionID, format)
}

// DownloadReport streams a session report into w and returns the bytes written.
func (c *Client) DownloadReport(ctx context.Context, sessionID, format string, w io.Writer) (int64, error) {
	u, err := c.ReportURL(sessionID, format)
	if err != nil {
		return 0, err
	}

	resp, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("downloading report: %w", err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("writing report: %w", err)
	}
	c.log.Info().Str("session", sessionID).Str("format", format).Int64("bytes", n).Msg("report downloaded")
	return n, nil
}
