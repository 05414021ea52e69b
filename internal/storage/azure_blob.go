package storage

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

type AzureBlobStorage struct {
	client    *azblob.Client
	container string
}

func NewAzureBlobStorage(endpoint, accountName, accountKey, container string) (*AzureBlobStorage, error) {
	if endpoint == "" || accountName == "" || accountKey == "" {
		return nil, fmt.Errorf("azure blob: missing endpoint or credentials")
	}
	if container == "" {
		return nil, fmt.Errorf("azure blob: container not configured")
	}
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azure blob: credential error: %w", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure blob: client init failed: %w", err)
	}
	return &AzureBlobStorage{client: client, container: container}, nil
}

// EnsureContainer creates the avatar container when it does not exist yet.
func (s *AzureBlobStorage) EnsureContainer(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("azure blob: create container failed: %w", err)
	}
	return nil
}

func (s *AzureBlobStorage) Upload(ctx context.Context, obj *Object) error {
	if err := ValidateObject(obj); err != nil {
		return err
	}

	options := &azblob.UploadStreamOptions{}
	if obj.ContentType != "" {
		options.HTTPHeaders = &blob.HTTPHeaders{
			BlobContentType: &obj.ContentType,
		}
	}

	if _, err := s.client.UploadStream(ctx, s.container, obj.Key, obj.Reader, options); err != nil {
		return fmt.Errorf("azure blob: upload failed: %w", err)
	}
	return nil
}

func (s *AzureBlobStorage) Download(ctx context.Context, key string) (*DownloadResult, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("azure blob: download failed: %w", err)
	}

	contentType := ""
	if resp.ContentType != nil {
		contentType = *resp.ContentType
	}

	size := int64(0)
	if resp.ContentLength != nil {
		size = *resp.ContentLength
	}

	return &DownloadResult{
		Reader:      resp.Body,
		ContentType: contentType,
		Size:        size,
	}, nil
}

func (s *AzureBlobStorage) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if _, err := s.client.DeleteBlob(ctx, s.container, key, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil
		}
		return fmt.Errorf("azure blob: delete failed: %w", err)
	}
	return nil
}
