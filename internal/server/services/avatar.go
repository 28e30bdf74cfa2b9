package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/travelplanner/internal/common"
	sc "github.com/dmitrijs2005/travelplanner/internal/server/config"
	"github.com/dmitrijs2005/travelplanner/internal/server/repositories/users"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// avatarURLExpiry bounds how long a presigned avatar URL stays usable.
const avatarURLExpiry = 15 * time.Minute

// AvatarService hands out presigned S3 URLs for profile images. The object
// key is stored on the user as ProfileImage; bytes never pass through the
// server.
type AvatarService struct {
	users  users.Repository
	config *sc.Config
}

func NewAvatarService(repo users.Repository, config *sc.Config) *AvatarService {
	return &AvatarService{users: repo, config: config}
}

func avatarKey(userID string) string {
	return fmt.Sprintf("avatars/%s/%s", userID, uuid.NewString())
}

// ownsAvatarKey reports whether key is a single object directly under the
// user's own avatars/<userID>/ prefix.
func ownsAvatarKey(userID, key string) bool {
	name, ok := strings.CutPrefix(key, "avatars/"+userID+"/")
	return ok && userID != "" && name != "" && !strings.Contains(name, "/") && name != ".." && name != "."
}

func (s *AvatarService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

// UploadURL returns a fresh object key with a presigned PUT URL for it and
// records the key as the user's profile image.
func (s *AvatarService) UploadURL(ctx context.Context, userID string) (string, string, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", "", err
		}
		return "", "", internalErr(err)
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", "", err
	}

	bucket := s.config.S3Bucket
	key := avatarKey(userID)

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(avatarURLExpiry))
	if err != nil {
		return "", "", err
	}

	if _, err := s.users.UpdateProfile(ctx, userID, u.Name, key); err != nil {
		return "", "", internalErr(err)
	}

	return key, req.URL, nil
}

// DownloadURL returns a presigned GET URL for key.
func (s *AvatarService) DownloadURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", common.ErrValidation)
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket

	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(avatarURLExpiry))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}
