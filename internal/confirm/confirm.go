// Package confirm performs confirmed admin deletions.
package confirm

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/cswank/store/internal/navigation"
	apperrors "github.com/cswank/store/pkg/errors"
	"github.com/cswank/store/pkg/httpclient"
)

// DefaultAdminURL is where the admin lands after a deletion.
const DefaultAdminURL = "/admin"

// Deleter deletes admin resources once the user confirmed.
type Deleter struct {
	baseURL  string
	adminURL string
	client   *httpclient.BreakerClient
	nav      navigation.Navigator
	logger   *slog.Logger
}

// NewDeleter returns a Deleter sending requests to the admin API at baseURL.
func NewDeleter(baseURL, adminURL string, client *httpclient.BreakerClient, nav navigation.Navigator, logger *slog.Logger) *Deleter {
	if adminURL == "" {
		adminURL = DefaultAdminURL
	}
	return &Deleter{
		baseURL:  strings.TrimRight(baseURL, "/"),
		adminURL: adminURL,
		client:   client,
		nav:      nav,
		logger:   logger,
	}
}

// Confirm deletes resource, a path relative to the admin API, and sends the
// admin back to the listing.
func (d *Deleter) Confirm(ctx context.Context, resource string) error {
	if err := validResource(resource); err != nil {
		return err
	}

	resp, err := d.client.Delete(ctx, d.baseURL+resource)
	if err != nil {
		d.logger.ErrorContext(ctx, "delete failed", slog.String("resource", resource), slog.String("error", err.Error()))
		return fmt.Errorf("delete %s: %w", resource, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := httpclient.ParseResponseError(resp, "admin api")
		d.logger.WarnContext(ctx, "delete rejected",
			slog.String("resource", resource),
			slog.Int("status", resp.StatusCode),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("delete %s: %w", resource, err)
	}
	_ = resp.Body.Close()

	d.logger.InfoContext(ctx, "resource deleted", slog.String("resource", resource))
	d.nav.Navigate(d.adminURL, navigation.TargetSelf)
	return nil
}

func validResource(resource string) error {
	if resource == "" || !strings.HasPrefix(resource, "/") || strings.HasPrefix(resource, "//") {
		return apperrors.InvalidInput("resource must be a path starting with /")
	}
	u, err := url.Parse(resource)
	if err != nil || u.IsAbs() || u.Host != "" {
		return apperrors.InvalidInput("resource must be a relative path")
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if seg == ".." {
			return apperrors.InvalidInput("resource must not contain ..")
		}
	}
	return nil
}
