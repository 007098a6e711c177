package remote

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/driveview/driveview/internal/auth"
	"github.com/driveview/driveview/internal/models"
	"github.com/driveview/driveview/internal/retry"
)

// mediaQuery restricts the listing to displayable files. Folders are kept so
// the hierarchy can be rebuilt client-side.
const mediaQuery = "trashed = false and (mimeType contains 'image/'" +
	" or mimeType contains 'video/'" +
	" or mimeType = '" + models.MimeTypeFolder + "')"

const listFields = "nextPageToken, files(id, name, mimeType, size, createdTime, modifiedTime, parents)"

// Drive talks to the Google Drive v3 API.
type Drive struct {
	svc      *drive.Service
	pageSize int64
	retryCfg retry.Config
}

// DriveConfig holds Drive adapter configuration.
type DriveConfig struct {
	PageSize    int
	RetryConfig retry.Config
}

// NewDrive builds the adapter over the given token source.
func NewDrive(ctx context.Context, src auth.TokenSource, cfg DriveConfig) (*Drive, error) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	svc, err := drive.NewService(ctx, option.WithTokenSource(tokenAdapter{src}))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Drive{
		svc:      svc,
		pageSize: int64(cfg.PageSize),
		retryCfg: cfg.RetryConfig,
	}, nil
}

// ListChangedSince implements Lister over Files.List.
func (d *Drive) ListChangedSince(ctx context.Context, modifiedAfter time.Time, pageToken string) (*Page, error) {
	query := mediaQuery
	if !modifiedAfter.IsZero() {
		query += fmt.Sprintf(" and modifiedTime > '%s'", modifiedAfter.UTC().Format(time.RFC3339))
	}

	list, err := retry.DoWithResult(ctx, d.retryCfg, func() (*drive.FileList, error) {
		call := d.svc.Files.List().
			Context(ctx).
			Q(query).
			PageSize(d.pageSize).
			Fields(googleapi.Field(listFields)).
			Spaces("drive")
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		result, err := call.Do()
		if err != nil {
			return nil, classify(err)
		}
		return result, nil
	})
	if err != nil {
		return nil, &FetchError{Op: "list", Err: err}
	}

	page := &Page{NextPageToken: list.NextPageToken}
	page.Files = make([]models.FileRecord, 0, len(list.Files))
	for _, f := range list.Files {
		page.Files = append(page.Files, toRecord(f))
	}
	return page, nil
}

// FetchContent implements ContentFetcher over Files.Get alt=media.
func (d *Drive) FetchContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	body, err := retry.DoWithResult(ctx, d.retryCfg, func() (io.ReadCloser, error) {
		resp, err := d.svc.Files.Get(fileID).Context(ctx).Download()
		if err != nil {
			return nil, classify(err)
		}
		return resp.Body, nil
	})
	if err != nil {
		return nil, &FetchError{Op: "content", FileID: fileID, Err: err}
	}
	return body, nil
}

func toRecord(f *drive.File) models.FileRecord {
	return models.FileRecord{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		Size:         f.Size,
		CreatedTime:  parseTime(f.CreatedTime),
		ModifiedTime: parseTime(f.ModifiedTime),
		Parents:      f.Parents,
	}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// classify maps API failures onto the error taxonomy: expired credentials
// become ErrAuthExpired, transient server/throttling failures become
// retryable, everything else passes through.
func classify(err error) error {
	if apiErr, ok := err.(*googleapi.Error); ok {
		switch {
		case apiErr.Code == 401:
			return auth.ErrAuthExpired
		case apiErr.Code == 429 || apiErr.Code >= 500:
			return retry.Retryable(err)
		}
		return err
	}
	// Transport-level failures (reset, timeout, DNS) are worth retrying.
	return retry.Retryable(err)
}

// tokenAdapter bridges the module's TokenSource to oauth2.
type tokenAdapter struct {
	src auth.TokenSource
}

func (a tokenAdapter) Token() (*oauth2.Token, error) {
	tok, err := a.src.Token()
	if err != nil {
		return nil, err
	}
	// Short expiry so any caching wrapper re-asks the source, which is the
	// component that actually tracks token lifetime.
	return &oauth2.Token{AccessToken: tok, Expiry: time.Now().Add(time.Minute)}, nil
}
