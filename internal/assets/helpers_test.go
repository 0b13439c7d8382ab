package assets

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/natours-dev/natours/internal/cryptoutil"
	"github.com/natours-dev/natours/internal/log"
)

const (
	testBucket = "natours-assets"
	testPrefix = "public"
	testParam  = "/natours/assets/sha256"
)

// makeTarGz builds a gzip tarball from path -> content.
func makeTarGz(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for name, body := range entries {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func makeTarGzEntry(t *testing.T, hdr *tar.Header, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if body != "" {
		tw.Write([]byte(body))
	}
	tw.Close()
	gw.Close()
	return buf.Bytes()
}

func validBundle(t *testing.T, version string) []byte {
	return makeTarGz(t, map[string]string{
		"css/style.css":      "body{margin:0}",
		"js/index.js":        "console.log('natours')",
		"img/logo-white.svg": "<svg/>",
		VersionFile:          version + "\n",
	})
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok || aws.ToString(in.Bucket) != testBucket {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

type fakeSSM struct {
	mu    sync.Mutex
	value string
	err   error
}

func (f *fakeSSM) set(v string) {
	f.mu.Lock()
	f.value = v
	f.mu.Unlock()
}

func (f *fakeSSM) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if aws.ToString(in.Name) != testParam {
		return nil, errors.New("ParameterNotFound")
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(f.value)}}, nil
}

type fakeVerifier struct{ err error }

func (f fakeVerifier) Verify(context.Context, []byte, []byte) error { return f.err }

// newTestLoader publishes data in the fake bucket and points SSM at it.
func newTestLoader(t *testing.T, data []byte, verifier Verifier) (*Loader, *fakeS3, *fakeSSM, string) {
	t.Helper()
	digest := cryptoutil.SHA256Hex(data)
	s3f := newFakeS3()
	s3f.put(testPrefix+"/"+digest+".tar.gz", data)
	ssmf := &fakeSSM{value: "sha256:" + digest}

	l, err := NewLoader(context.Background(), LoaderOptions{
		Logger:    log.Nop(),
		SSMParam:  testParam,
		S3Bucket:  testBucket,
		S3Prefix:  testPrefix,
		S3Client:  s3f,
		SSMClient: ssmf,
		Verifier:  verifier,
	})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	return l, s3f, ssmf, digest
}
