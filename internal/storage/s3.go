package storage

import (
    "bytes"
    "context"
    "crypto/aes"
    "crypto/cipher"
    "crypto/sha256"
    "encoding/json"
    "fmt"
    "io"
    "strings"

    "github.com/aws/aws-sdk-go-v2/aws"
    awscfg "github.com/aws/aws-sdk-go-v2/config"
    "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
    "github.com/aws/aws-sdk-go-v2/service/s3"
    "github.com/gabriel-vasile/mimetype"
    "github.com/rs/zerolog/log"
    "golang.org/x/crypto/pbkdf2"

    "github.com/local/layoutengine/internal/element"
)

// PageBatch is the upstream detector/OCR output for one page, stored as a
// JSON object in S3. Batches from the upload service arrive GCM-encrypted;
// batches written by internal tooling are plaintext.
type PageBatch struct {
    JobID      string            `json:"job_id"`
    DocID      string            `json:"doc_id,omitempty"`
    Page       int               `json:"page"`
    PageWidth  float64           `json:"page_width,omitempty"`
    PageHeight float64           `json:"page_height,omitempty"`
    Elements   []element.Element `json:"elements"`
}

// Client wraps the AWS S3 client for batch input and result export.
type Client struct {
    client   *s3.Client
    uploader *manager.Uploader
    inBucket string
    outBucket string
}

// New loads the default AWS config chain and builds the client.
func New(ctx context.Context, region, inBucket, outBucket string) (*Client, error) {
    cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
    if err != nil {
        return nil, fmt.Errorf("load aws config: %w", err)
    }
    cli := s3.NewFromConfig(cfg)
    return &Client{
        client:    cli,
        uploader:  manager.NewUploader(cli),
        inBucket:  inBucket,
        outBucket: outBucket,
    }, nil
}

// FetchBatch downloads one page batch, decrypting when the payload carries
// an encryption magic, and decodes it. Password may be empty for plaintext
// batches.
func (c *Client) FetchBatch(ctx context.Context, key, password string) (PageBatch, error) {
    out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
        Bucket: aws.String(c.inBucket),
        Key:    aws.String(key),
    })
    if err != nil {
        return PageBatch{}, fmt.Errorf("get batch %s: %w", key, err)
    }
    defer out.Body.Close()

    data, err := io.ReadAll(out.Body)
    if err != nil {
        return PageBatch{}, fmt.Errorf("read batch %s: %w", key, err)
    }

    data, err = maybeDecrypt(data, password)
    if err != nil {
        return PageBatch{}, fmt.Errorf("decrypt batch %s: %w", key, err)
    }

    // Sniff by content, not by key suffix: upload services mislabel keys.
    mtype := mimetype.Detect(data)
    if !mtype.Is("application/json") && !strings.HasPrefix(mtype.String(), "text/") {
        return PageBatch{}, fmt.Errorf("batch %s has unsupported content type %s", key, mtype.String())
    }

    var batch PageBatch
    if err := json.Unmarshal(data, &batch); err != nil {
        return PageBatch{}, fmt.Errorf("decode batch %s: %w", key, err)
    }
    log.Debug().
        Str("key", key).
        Str("job_id", batch.JobID).
        Int("page", batch.Page).
        Int("elements", len(batch.Elements)).
        Msg("fetched page batch")
    return batch, nil
}

// PutResult uploads a reconstruction result as JSON to the output bucket.
// The uploader handles multipart transparently for large pages.
func (c *Client) PutResult(ctx context.Context, key string, result any) error {
    payload, err := json.Marshal(result)
    if err != nil {
        return fmt.Errorf("marshal result: %w", err)
    }
    _, err = c.uploader.Upload(ctx, &s3.PutObjectInput{
        Bucket:      aws.String(c.outBucket),
        Key:         aws.String(key),
        Body:        bytes.NewReader(payload),
        ContentType: aws.String("application/json"),
    })
    if err != nil {
        return fmt.Errorf("upload result %s: %w", key, err)
    }
    log.Info().Str("key", key).Int("size", len(payload)).Msg("exported result to S3")
    return nil
}

const gcmMagic = "GCM3NCR0"

// maybeDecrypt decrypts payloads carrying the GCM magic, passes plaintext
// through, and falls back to the headerless legacy layout when a password is
// set but no magic is present and the data does not parse as JSON.
func maybeDecrypt(data []byte, password string) ([]byte, error) {
    if len(data) >= 8 && string(data[:8]) == gcmMagic {
        if password == "" {
            return nil, fmt.Errorf("encrypted payload but no password configured")
        }
        return decryptGCM(data, password)
    }
    if password != "" && !json.Valid(data) {
        // old upload services wrote salt+nonce+ciphertext with no magic
        if out, err := decryptLegacyGCM(data, password); err == nil {
            log.Debug().Msg("decrypted legacy headerless payload")
            return out, nil
        }
    }
    return data, nil
}

// decryptGCM handles the framed format: magic(8) + salt(16) + nonce(12) +
// ciphertext + tag(16). The key derives from the password via PBKDF2.
func decryptGCM(data []byte, password string) ([]byte, error) {
    if len(data) < 8+16+12+16 {
        return nil, fmt.Errorf("gcm payload too short: %d bytes", len(data))
    }
    salt := data[8:24]
    nonce := data[24:36]
    sealed := data[36:]

    gcm, err := newGCM(password, salt)
    if err != nil { return nil, err }
    plaintext, err := gcm.Open(nil, nonce, sealed, nil)
    if err != nil {
        return nil, fmt.Errorf("gcm open: %w", err)
    }
    return plaintext, nil
}

// decryptLegacyGCM handles salt(16) + nonce(12) + ciphertext with no magic.
func decryptLegacyGCM(data []byte, password string) ([]byte, error) {
    if len(data) < 16+12+16 {
        return nil, fmt.Errorf("legacy payload too short: %d bytes", len(data))
    }
    gcm, err := newGCM(password, data[:16])
    if err != nil { return nil, err }
    plaintext, err := gcm.Open(nil, data[16:28], data[28:], nil)
    if err != nil {
        return nil, fmt.Errorf("legacy gcm open: %w", err)
    }
    return plaintext, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
    key := pbkdf2.Key([]byte(password), salt, 100000, 32, sha256.New)
    block, err := aes.NewCipher(key)
    if err != nil {
        return nil, fmt.Errorf("new cipher: %w", err)
    }
    gcm, err := cipher.NewGCM(block)
    if err != nil {
        return nil, fmt.Errorf("new gcm: %w", err)
    }
    return gcm, nil
}
