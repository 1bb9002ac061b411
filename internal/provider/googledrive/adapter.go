// Package googledrive implements the DriveAdapter capability set (C2) for
// Google Drive, reusing the same OAuth2/retry/error-classification idiom
// as the googleemail adapter.
package googledrive

import (
	"context"
	"io"
	"strings"
	"time"

	creddomain "github.com/syncorch/syncd/internal/credentials/domain"
	credusecase "github.com/syncorch/syncd/internal/credentials/usecase"
	provdomain "github.com/syncorch/syncd/internal/provider/domain"
	"github.com/syncorch/syncd/pkg/errs"
	"github.com/syncorch/syncd/pkg/retry"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	driveapi "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// nativeExportTargets maps Google's native-format MIME types to the
// neutral export format this system requests: PDF for documents,
// spreadsheets and presentations, PNG for drawings, plain text for
// Apps Script.
var nativeExportTargets = map[string]string{
	"application/vnd.google-apps.document":     "application/pdf",
	"application/vnd.google-apps.spreadsheet":  "application/pdf",
	"application/vnd.google-apps.presentation": "application/pdf",
	"application/vnd.google-apps.drawing":      "image/png",
	"application/vnd.google-apps.script":       "text/plain",
}

type Adapter struct {
	userID       string
	clientID     string
	clientSecret string
	store        *credusecase.Store
	retryPolicy  retry.Policy

	authenticated bool
	svc           *driveapi.Service
}

func New(userID, clientID, clientSecret string, store *credusecase.Store, retryPolicy retry.Policy) *Adapter {
	return &Adapter{userID: userID, clientID: clientID, clientSecret: clientSecret, store: store, retryPolicy: retryPolicy}
}

func (a *Adapter) Tag() provdomain.Tag { return provdomain.TagGoogleDrive }

func (a *Adapter) Authenticate(ctx context.Context) (bool, error) {
	result := a.store.Check(ctx, a.userID, creddomain.ProviderGoogle)
	if !result.Authenticated || !result.Valid {
		return false, result.Err
	}
	cred, _, err := a.store.Load(a.userID, creddomain.ProviderGoogle)
	if err != nil {
		return false, err
	}
	token := &oauth2.Token{AccessToken: cred.AccessToken, RefreshToken: cred.RefreshToken, Expiry: cred.Expiry, TokenType: "Bearer"}
	cfg := &oauth2.Config{ClientID: a.clientID, ClientSecret: a.clientSecret, Endpoint: google.Endpoint}
	client := oauth2.NewClient(ctx, cfg.TokenSource(ctx, token))

	svc, err := driveapi.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return false, errs.New(errs.AuthFailed, "unable to create Drive service", err)
	}
	a.svc = svc
	a.authenticated = true
	return true, nil
}

func classifyDriveErr(err error) error {
	if err == nil {
		return nil
	}
	if gerr, ok := err.(*googleapi.Error); ok {
		switch {
		case gerr.Code == 429:
			return errs.New(errs.RateLimited, gerr.Message, err)
		case gerr.Code >= 500:
			return errs.New(errs.TransientUpstream, gerr.Message, err)
		case gerr.Code == 404:
			return errs.New(errs.NotFound, gerr.Message, err)
		case gerr.Code == 401 || gerr.Code == 403:
			return errs.New(errs.AuthFailed, gerr.Message, err)
		case gerr.Code >= 400:
			return errs.New(errs.PermanentUpstream, gerr.Message, err)
		}
	}
	return errs.New(errs.TransientUpstream, "network error", err)
}

func (a *Adapter) ListFiles(ctx context.Context, opts provdomain.ListFilesOptions) ([]provdomain.DriveFile, error) {
	if !a.authenticated {
		return nil, errs.New(errs.AuthFailed, "adapter not authenticated", nil)
	}
	var q []string
	if opts.FolderID != "" {
		q = append(q, "'"+opts.FolderID+"' in parents")
	}
	q = append(q, "trashed = false")
	if opts.Query != "" {
		q = append(q, opts.Query)
	}

	limit := int64(opts.Limit)
	if limit <= 0 {
		limit = 100
	}

	var resp *driveapi.FileList
	err := a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		r, callErr := a.svc.Files.List().
			Q(strings.Join(q, " and ")).
			Fields("files(id,name,mimeType,size,modifiedTime,parents)").
			PageSize(limit).Context(ctx).Do()
		if callErr != nil {
			return classifyDriveErr(callErr)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]provdomain.DriveFile, 0, len(resp.Files))
	for _, f := range resp.Files {
		modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
		_, native := nativeExportTargets[f.MimeType]
		folderID := ""
		if len(f.Parents) > 0 {
			folderID = f.Parents[0]
		}
		out = append(out, provdomain.DriveFile{
			FileID: f.Id, Name: f.Name, MimeType: f.MimeType, Size: f.Size,
			ModifiedAt: modified, FolderID: folderID, IsNative: native,
		})
	}
	return out, nil
}

func (a *Adapter) ListFolders(ctx context.Context, parentFolderID string) ([]provdomain.DriveFile, error) {
	return a.ListFiles(ctx, provdomain.ListFilesOptions{
		FolderID: parentFolderID,
		Query:    "mimeType = 'application/vnd.google-apps.folder'",
	})
}

func (a *Adapter) GetFileContent(ctx context.Context, fileID string) (io.ReadCloser, string, string, error) {
	if !a.authenticated {
		return nil, "", "", errs.New(errs.AuthFailed, "adapter not authenticated", nil)
	}

	var file *driveapi.File
	err := a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		f, callErr := a.svc.Files.Get(fileID).Fields("mimeType", "name").Context(ctx).Do()
		if callErr != nil {
			return classifyDriveErr(callErr)
		}
		file = f
		return nil
	})
	if err != nil {
		return nil, "", "", err
	}

	if exportMIME, isNative := nativeExportTargets[file.MimeType]; isNative {
		var body io.ReadCloser
		err := a.retryPolicy.Do(ctx, func(ctx context.Context) error {
			r, callErr := a.svc.Files.Export(fileID, exportMIME).Context(ctx).Download()
			if callErr != nil {
				return classifyDriveErr(callErr)
			}
			body = r.Body
			return nil
		})
		if err != nil {
			return nil, "", "", err
		}
		ext := extensionForMIME(exportMIME)
		return body, exportMIME, ext, nil
	}

	var body io.ReadCloser
	err = a.retryPolicy.Do(ctx, func(ctx context.Context) error {
		r, callErr := a.svc.Files.Get(fileID).Context(ctx).Download()
		if callErr != nil {
			return classifyDriveErr(callErr)
		}
		body = r.Body
		return nil
	})
	if err != nil {
		return nil, "", "", err
	}
	return body, file.MimeType, extensionForMIME(file.MimeType), nil
}

func extensionForMIME(mimeType string) string {
	switch mimeType {
	case "application/pdf":
		return ".pdf"
	case "text/plain":
		return ".txt"
	case "image/png":
		return ".png"
	default:
		return ""
	}
}

var _ provdomain.DriveAdapter = (*Adapter)(nil)
