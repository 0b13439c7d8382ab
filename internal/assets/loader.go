package assets

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/natours-dev/natours/internal/cryptoutil"
	"github.com/natours-dev/natours/internal/log"
	"github.com/natours-dev/natours/internal/xerrors"
)

// ObjectAPI and ParameterAPI are the S3 and SSM calls the loader makes.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type ParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Verifier checks a detached signature over the bundle bytes.
type Verifier interface {
	Verify(ctx context.Context, message, sig []byte) error
}

type LoaderOptions struct {
	Logger log.Logger

	// SSMParam holds the active bundle digest, "sha256:<hex>" or bare hex.
	SSMParam string

	// Bundles live at s3://{S3Bucket}/{S3Prefix}/{hex}.tar.gz with an
	// optional detached signature at the same key plus ".sig".
	S3Bucket string
	S3Prefix string

	// KMSKeyID enables signature verification.
	KMSKeyID string

	Limits Limits

	// Clients override the ones built from the default AWS config.
	S3Client  ObjectAPI
	SSMClient ParameterAPI
	Verifier  Verifier
}

type Loader struct {
	opts     LoaderOptions
	s3       ObjectAPI
	ssm      ParameterAPI
	verifier Verifier
	logger   log.Logger
}

func NewLoader(ctx context.Context, opts LoaderOptions) (*Loader, error) {
	if opts.SSMParam == "" {
		return nil, xerrors.New("assets: SSMParam is required")
	}
	if opts.S3Bucket == "" {
		return nil, xerrors.New("assets: S3Bucket is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Limits == (Limits{}) {
		opts.Limits = DefaultLimits
	}

	l := &Loader{
		opts:     opts,
		s3:       opts.S3Client,
		ssm:      opts.SSMClient,
		verifier: opts.Verifier,
		logger:   opts.Logger,
	}
	needAWS := l.s3 == nil || l.ssm == nil || (opts.KMSKeyID != "" && l.verifier == nil)
	if !needAWS {
		return l, nil
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, xerrors.Wrap(err, "load AWS config")
	}
	if l.s3 == nil {
		l.s3 = s3.NewFromConfig(awsCfg)
	}
	if l.ssm == nil {
		l.ssm = ssm.NewFromConfig(awsCfg)
	}
	if opts.KMSKeyID != "" && l.verifier == nil {
		l.verifier = cryptoutil.NewKMSVerifier(kms.NewFromConfig(awsCfg), opts.KMSKeyID)
	}
	return l, nil
}

// CurrentDigest reads the published bundle digest from SSM.
func (l *Loader) CurrentDigest(ctx context.Context) (string, error) {
	out, err := l.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(l.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", l.opts.SSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", l.opts.SSMParam)
	}
	digest, err := cryptoutil.ParseDigest(*out.Parameter.Value)
	if err != nil {
		return "", xerrors.Wrapf(err, "SSM parameter %s", l.opts.SSMParam)
	}
	return digest, nil
}

func (l *Loader) key(digest string) string {
	if p := strings.Trim(l.opts.S3Prefix, "/"); p != "" {
		return p + "/" + digest + ".tar.gz"
	}
	return digest + ".tar.gz"
}

func (l *Loader) fetch(ctx context.Context, key string, max int64) ([]byte, string, error) {
	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.opts.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", xerrors.Wrapf(err, "get s3://%s/%s", l.opts.S3Bucket, key)
	}
	defer out.Body.Close()
	data, sum, err := readWithHash(out.Body, max)
	if err != nil {
		return nil, "", xerrors.Wrapf(err, "read s3://%s/%s", l.opts.S3Bucket, key)
	}
	return data, sum, nil
}

// Load fetches whichever bundle SSM currently names.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	digest, err := l.CurrentDigest(ctx)
	if err != nil {
		return nil, err
	}
	return l.LoadDigest(ctx, digest)
}

// LoadDigest downloads, verifies and extracts one bundle.
func (l *Loader) LoadDigest(ctx context.Context, digest string) (*Snapshot, error) {
	loadedAt := time.Now().UTC()
	key := l.key(digest)

	l.logger.Info(ctx, "downloading asset bundle", "bucket", l.opts.S3Bucket, "key", key)
	data, actual, err := l.fetch(ctx, key, l.opts.Limits.MaxBundle)
	if err != nil {
		return nil, err
	}
	if !cryptoutil.HashEqual(actual, digest) {
		return nil, xerrors.Newf("checksum mismatch for %s: got %s", key, actual)
	}

	signed := false
	if l.verifier != nil {
		sig, _, err := l.fetch(ctx, key+".sig", 4<<10)
		if err != nil {
			return nil, xerrors.Wrap(err, "fetch bundle signature")
		}
		if err := l.verifier.Verify(ctx, data, sig); err != nil {
			return nil, xerrors.Wrapf(err, "verify signature for %s", key)
		}
		signed = true
	}

	fsys, err := extractTarGz(data, l.opts.Limits)
	if err != nil {
		return nil, xerrors.Wrapf(err, "extract %s", key)
	}

	snap := FromFS(fsys, SourceS3)
	snap.Meta.SHA256 = digest
	snap.Meta.Signed = signed
	snap.Meta.VerifiedAt = time.Now().UTC()
	snap.LoadedAt = loadedAt

	l.logger.Info(ctx, "loaded asset bundle",
		"sha256", digest,
		"version", snap.Meta.Version,
		"bytes", len(data),
		"signed", signed,
	)
	return &snap, nil
}
