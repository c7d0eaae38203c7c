package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// BlobUploader pushes a written ledger to Azure Blob Storage so the change
// set can be reviewed by the whole team, not just the operator's machine.
type BlobUploader struct {
	cred   azcore.TokenCredential
	logger *slog.Logger

	// newClient is swapped in tests.
	newClient func(serviceURL string, cred azcore.TokenCredential) (blobClient, error)
}

type blobClient interface {
	UploadFile(ctx context.Context, containerName, blobName string, file *os.File, o *azblob.UploadFileOptions) (azblob.UploadFileResponse, error)
}

// NewBlobUploader creates an uploader authenticating with cred.
func NewBlobUploader(cred azcore.TokenCredential, logger *slog.Logger) *BlobUploader {
	return &BlobUploader{
		cred:   cred,
		logger: logger,
		newClient: func(serviceURL string, cred azcore.TokenCredential) (blobClient, error) {
			return azblob.NewClient(serviceURL, cred, nil)
		},
	}
}

// Upload copies the file at path to blobURL, which must name a container and
// blob: https://<account>.blob.core.windows.net/<container>/<blob>.
func (u *BlobUploader) Upload(ctx context.Context, blobURL, path string) error {
	serviceURL, container, blobName, err := splitBlobURL(blobURL)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	client, err := u.newClient(serviceURL, u.cred)
	if err != nil {
		return fmt.Errorf("create blob client: %w", err)
	}
	if _, err := client.UploadFile(ctx, container, blobName, f, nil); err != nil {
		return fmt.Errorf("upload ledger to %s: %w", blobURL, err)
	}
	u.logger.Info("ledger uploaded", "url", blobURL)
	return nil
}

// splitBlobURL breaks a full blob URL into service URL, container, and blob
// name components.
func splitBlobURL(blobURL string) (serviceURL, container, blobName string, err error) {
	parsed, err := url.Parse(blobURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", "", "", fmt.Errorf("invalid blob URL %q", blobURL)
	}
	parts := strings.SplitN(strings.TrimPrefix(parsed.Path, "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("blob URL %q must include container and blob name", blobURL)
	}
	return parsed.Scheme + "://" + parsed.Host, parts[0], parts[1], nil
}
