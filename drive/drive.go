// Package drive stores room photos in each uploader's own Google Drive and
// fetches them back on behalf of viewers.
package drive

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"

	"photoroom/models"

	"golang.org/x/oauth2"
	driveapi "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// UploadFolderName is the fixed folder every upload lands in.
const UploadFolderName = "Photoroom"

const folderMimeType = "application/vnd.google-apps.folder"

// Client wraps a Credentials store and builds per-owner Drive services.
type Client struct {
	creds *Credentials
	opts  []option.ClientOption // extra options, tests point these at a fake API
}

func NewClient(creds *Credentials, opts ...option.ClientOption) *Client {
	return &Client{creds: creds, opts: opts}
}

func (cl *Client) service(ctx context.Context, owner *models.User) (*driveapi.Service, error) {
	tok, err := cl.creds.Token(ctx, owner)
	if err != nil {
		return nil, err
	}

	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	opts := append([]option.ClientOption{option.WithHTTPClient(hc)}, cl.opts...)
	return driveapi.NewService(ctx, opts...)
}

// Upload stores data as a new file in the owner's upload folder and returns
// the Drive file id that posts reference from then on.
func (cl *Client) Upload(ctx context.Context, owner *models.User, data []byte, filename, mimeType string) (string, error) {
	svc, err := cl.service(ctx, owner)
	if err != nil {
		return "", err
	}

	folderID, err := ResolveUploadFolder(ctx, svc)
	if err != nil {
		return "", err
	}

	return Upload(ctx, svc, folderID, data, filename, mimeType)
}

// Fetch streams the file's content authenticated as its owner. The caller
// owns the response body.
func (cl *Client) Fetch(ctx context.Context, owner *models.User, fileID string) (*http.Response, error) {
	svc, err := cl.service(ctx, owner)
	if err != nil {
		return nil, err
	}
	return svc.Files.Get(fileID).Context(ctx).Download()
}

// ResolveUploadFolder finds the non-trashed upload folder, creating it when
// absent. Sequential calls converge on one folder; two racing first uploads
// by the same user may create a duplicate, which is accepted.
func ResolveUploadFolder(ctx context.Context, svc *driveapi.Service) (string, error) {
	query := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		UploadFolderName, folderMimeType)

	list, err := svc.Files.List().Q(query).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("drive: folder lookup failed: %w", err)
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}

	folder, err := svc.Files.Create(&driveapi.File{
		Name:     UploadFolderName,
		MimeType: folderMimeType,
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("drive: folder creation failed: %w", err)
	}

	return folder.Id, nil
}

// Upload creates the file through the resumable media path, then tries to
// mark it world-readable but not discoverable. The permission step failing is
// logged and swallowed: the file already exists and the CDN proxy always
// authenticates as the owner anyway.
func Upload(ctx context.Context, svc *driveapi.Service, folderID string, data []byte, filename, mimeType string) (string, error) {
	file := &driveapi.File{
		Name:    filename,
		Parents: []string{folderID},
	}

	created, err := svc.Files.Create(file).
		Media(bytes.NewReader(data), googleapi.ContentType(mimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("drive: upload failed: %w", err)
	}

	perm := &driveapi.Permission{
		Role:               "reader",
		Type:               "anyone",
		AllowFileDiscovery: false,
	}
	if _, err := svc.Permissions.Create(created.Id, perm).Context(ctx).Do(); err != nil {
		log.Printf("[Drive] failed to set public permission on %s: %v", created.Id, err)
	}

	return created.Id, nil
}
