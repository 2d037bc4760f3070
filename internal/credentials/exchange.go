package credentials

import (
	"fmt"
	"io"
	"strings"

	"go.yaml.in/yaml/v3"
	"gopkg.in/ini.v1"

	"github.com/damacus/iron-explorer/internal/errs"
)

// Document is the portable YAML form of the registry.
type Document struct {
	Version int            `yaml:"version"`
	Current string         `yaml:"current,omitempty"`
	Groups  []BucketGroup  `yaml:"groups"`
	Buckets []BucketConfig `yaml:"buckets"`
}

const documentVersion = 1

// Export writes the registry as YAML. Secret keys are blanked unless
// withSecrets is set.
func (r *Registry) Export(w io.Writer, withSecrets bool) error {
	buckets, err := r.Buckets()
	if err != nil {
		return err
	}
	groups, err := r.Groups()
	if err != nil {
		return err
	}
	current, err := r.CurrentBucketID()
	if err != nil {
		return err
	}

	if !withSecrets {
		for i := range buckets {
			buckets[i].Credentials.SecretAccessKey = ""
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	doc := Document{Version: documentVersion, Current: current, Groups: groups, Buckets: buckets}
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}
	return enc.Close()
}

// Import merges a YAML document into the registry: groups and buckets
// are upserted by id. Buckets without a secret key are skipped. It
// returns the number of buckets imported.
func (r *Registry) Import(rd io.Reader) (int, error) {
	var doc Document
	if err := yaml.NewDecoder(rd).Decode(&doc); err != nil {
		return 0, errs.Wrap(errs.ErrKindInvalidInput, "decoding registry document", err)
	}
	if doc.Version != 0 && doc.Version != documentVersion {
		return 0, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unsupported document version %d", doc.Version))
	}

	for _, g := range doc.Groups {
		if _, err := r.AddGroup(g); err != nil {
			return 0, err
		}
	}

	imported := 0
	for _, b := range doc.Buckets {
		if b.Credentials.Validate() != nil {
			r.log.With().Str("bucket_id", b.ID).Logger().Warn("skipping incomplete bucket")
			continue
		}
		if _, err := r.AddBucket(b); err != nil {
			return imported, err
		}
		imported++
	}

	current, err := r.CurrentBucketID()
	if err != nil {
		return imported, err
	}
	if current == "" && doc.Current != "" {
		if err := r.SetCurrentBucket(doc.Current); err != nil {
			return imported, err
		}
	}
	return imported, nil
}

// ParseS3Cfg reads an s3cmd configuration and returns one connection per
// profile that carries keys. s3cmd profiles are not bound to a bucket, so
// bucket is applied to all of them.
func ParseS3Cfg(src interface{}, bucket string) ([]BucketConfig, error) {
	if bucket == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "bucket is required")
	}
	cfg, err := ini.Load(src)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to load .s3cfg", err)
	}

	var out []BucketConfig
	for _, section := range cfg.Sections() {
		access := section.Key("access_key").String()
		secret := section.Key("secret_key").String()
		if access == "" || secret == "" {
			continue
		}

		scheme := "https"
		if !section.Key("use_https").MustBool(true) {
			scheme = "http"
		}
		host := section.Key("host_base").MustString("s3.amazonaws.com")
		if !strings.Contains(host, "://") {
			host = scheme + "://" + host
		}

		provider := "minio"
		if strings.HasSuffix(strings.TrimSuffix(host, "/"), "amazonaws.com") {
			provider = "s3"
		}

		name := section.Name()
		if name == ini.DefaultSection {
			name = "default"
		}
		out = append(out, BucketConfig{
			ID:   NewBucketID(),
			Name: fmt.Sprintf("%s (%s)", bucket, name),
			Credentials: Credentials{
				Endpoint:        host,
				AccessKeyID:     access,
				SecretAccessKey: secret,
				Bucket:          bucket,
				Region:          section.Key("bucket_location").MustString("us-east-1"),
				Provider:        provider,
			},
		})
	}
	if len(out) == 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, "access_key and secret_key must be specified in .s3cfg")
	}
	return out, nil
}

// ImportS3Cfg adds every profile found in the s3cmd file at path.
func (r *Registry) ImportS3Cfg(path, bucket string) ([]BucketConfig, error) {
	parsed, err := ParseS3Cfg(path, bucket)
	if err != nil {
		return nil, err
	}
	added := make([]BucketConfig, 0, len(parsed))
	for _, b := range parsed {
		stored, err := r.AddBucket(b)
		if err != nil {
			return added, err
		}
		added = append(added, stored)
	}
	return added, nil
}
