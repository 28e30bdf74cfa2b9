package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/travelplanner/internal/common"
	sc "github.com/dmitrijs2005/travelplanner/internal/server/config"
	"github.com/dmitrijs2005/travelplanner/internal/server/models"
	"github.com/dmitrijs2005/travelplanner/internal/server/repositories/users"
)

func newAvatarSvc(t *testing.T) (*AvatarService, *users.InMemoryRepository) {
	t.Helper()
	cfg := &sc.Config{
		S3Region:       "us-east-1",
		S3RootUser:     "minioadmin",
		S3RootPassword: "minioadmin",
		S3BaseEndpoint: "http://127.0.0.1:9000",
		S3Bucket:       "avatars",
	}
	repo := users.NewInMemoryRepository()
	return NewAvatarService(repo, cfg), repo
}

// stubS3 replaces the AWS constructors with fakes for the duration of t.
func stubS3(t *testing.T) {
	t.Helper()
	origLoad, origNewS3, origNewPre := loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient
	origPut, origGet := presignPutObject, presignGetObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
		presignPutObject = origPut
		presignGetObject = origGet
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client { return &s3.Client{} }
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient { return &s3.PresignClient{} }
}

func Test_getPresignClient_AppliesConfig(t *testing.T) {
	svc, _ := newAvatarSvc(t)
	stubS3(t)

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		if len(optFns) == 0 {
			t.Fatalf("expected config options")
		}
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			if err := fn(&lo); err != nil {
				t.Fatalf("load options fn error: %v", err)
			}
		}
		if lo.Region != "us-east-1" {
			t.Fatalf("region not applied: %q", lo.Region)
		}
		return aws.Config{}, nil
	}

	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return &s3.Client{}
	}

	pc, err := svc.getPresignClient(context.Background())
	if err != nil {
		t.Fatalf("getPresignClient err: %v", err)
	}
	if pc == nil {
		t.Fatalf("nil presign client")
	}
	if opts.BaseEndpoint == nil || *opts.BaseEndpoint != "http://127.0.0.1:9000" {
		t.Fatalf("BaseEndpoint mismatch: %v", opts.BaseEndpoint)
	}
	if !opts.UsePathStyle {
		t.Fatalf("path-style addressing expected for S3-compatible endpoints")
	}

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}
	if _, err := svc.getPresignClient(context.Background()); err == nil || err.Error() != "load-fail" {
		t.Fatalf("expected load-fail, got %v", err)
	}
}

func TestUploadURL_StoresKeyOnProfile(t *testing.T) {
	svc, repo := newAvatarSvc(t)
	stubS3(t)
	ctx := context.Background()

	u, err := repo.Create(ctx, &models.User{Email: "a@x.com", Name: "Ann", Role: models.RoleUser})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var gotBucket, gotKey string
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		gotBucket, gotKey = *in.Bucket, *in.Key
		return &v4.PresignedHTTPRequest{URL: "http://s3/put?sig", Method: http.MethodPut}, nil
	}

	key, url, err := svc.UploadURL(ctx, u.ID)
	if err != nil {
		t.Fatalf("UploadURL: %v", err)
	}
	if url != "http://s3/put?sig" {
		t.Fatalf("unexpected url %q", url)
	}
	if gotBucket != "avatars" || gotKey != key || !strings.HasPrefix(key, "avatars/"+u.ID+"/") {
		t.Fatalf("unexpected bucket/key: %q %q (returned %q)", gotBucket, gotKey, key)
	}

	stored, err := repo.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.ProfileImage != key || stored.Name != "Ann" {
		t.Fatalf("profile not updated: %+v", stored)
	}
}

func TestUploadURL_Errors(t *testing.T) {
	svc, repo := newAvatarSvc(t)
	stubS3(t)
	ctx := context.Background()

	if _, _, err := svc.UploadURL(ctx, "missing"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want not found, got %v", err)
	}

	u, _ := repo.Create(ctx, &models.User{Email: "a@x.com", Name: "Ann"})
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("presign-put-fail")
	}
	if _, _, err := svc.UploadURL(ctx, u.ID); err == nil || err.Error() != "presign-put-fail" {
		t.Fatalf("want presign-put-fail, got %v", err)
	}

	stored, _ := repo.GetByID(ctx, u.ID)
	if stored.ProfileImage != "" {
		t.Fatalf("failed presign must not touch the profile")
	}
}

func TestDownloadURL(t *testing.T) {
	svc, _ := newAvatarSvc(t)
	stubS3(t)
	ctx := context.Background()

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return &v4.PresignedHTTPRequest{URL: "http://s3/get/" + *in.Key}, nil
	}

	url, err := svc.DownloadURL(ctx, "avatars/u/k")
	if err != nil || url != "http://s3/get/avatars/u/k" {
		t.Fatalf("DownloadURL = %q, %v", url, err)
	}

	if _, err := svc.DownloadURL(ctx, ""); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("presign-get-fail")
	}
	if _, err := svc.DownloadURL(ctx, "k"); err == nil || err.Error() != "presign-get-fail" {
		t.Fatalf("want presign-get-fail, got %v", err)
	}
}
