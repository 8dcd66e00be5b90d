package storage

import (
    "crypto/aes"
    "crypto/cipher"
    "crypto/rand"
    "crypto/sha256"
    "encoding/json"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "golang.org/x/crypto/pbkdf2"
)

func sealGCM(t *testing.T, plaintext []byte, password string) []byte {
    t.Helper()
    salt := make([]byte, 16)
    nonce := make([]byte, 12)
    _, err := rand.Read(salt)
    require.NoError(t, err)
    _, err = rand.Read(nonce)
    require.NoError(t, err)

    key := pbkdf2.Key([]byte(password), salt, 100000, 32, sha256.New)
    block, err := aes.NewCipher(key)
    require.NoError(t, err)
    gcm, err := cipher.NewGCM(block)
    require.NoError(t, err)

    out := []byte(gcmMagic)
    out = append(out, salt...)
    out = append(out, nonce...)
    return gcm.Seal(out, nonce, plaintext, nil)
}

func TestMaybeDecryptPassesPlaintextThrough(t *testing.T) {
    payload := []byte(`{"job_id":"j1","page":1,"elements":[]}`)
    out, err := maybeDecrypt(payload, "")
    require.NoError(t, err)
    assert.Equal(t, payload, out)

    // a configured password must not mangle valid plaintext JSON
    out, err = maybeDecrypt(payload, "secret")
    require.NoError(t, err)
    assert.Equal(t, payload, out)
}

func TestMaybeDecryptFramedGCM(t *testing.T) {
    plaintext := []byte(`{"job_id":"j1","page":3,"elements":[]}`)
    sealed := sealGCM(t, plaintext, "secret")

    out, err := maybeDecrypt(sealed, "secret")
    require.NoError(t, err)
    assert.Equal(t, plaintext, out)

    _, err = maybeDecrypt(sealed, "wrong")
    assert.Error(t, err)

    _, err = maybeDecrypt(sealed, "")
    assert.Error(t, err)
}

func TestPageBatchDecoding(t *testing.T) {
    raw := []byte(`{
        "job_id": "job-7",
        "page": 2,
        "page_width": 1240,
        "page_height": 1754,
        "elements": [
            {"id": "e1", "class": "question_number", "box": {"x1": 40, "y1": 100, "x2": 70, "y2": 130}, "text": "12."},
            {"id": "e2", "class": "text", "box": {"x1": 90, "y1": 100, "x2": 500, "y2": 140}}
        ]
    }`)
    var batch PageBatch
    require.NoError(t, json.Unmarshal(raw, &batch))
    assert.Equal(t, "job-7", batch.JobID)
    assert.Equal(t, 2, batch.Page)
    require.Len(t, batch.Elements, 2)
    assert.Equal(t, "12.", batch.Elements[0].Text)
    assert.True(t, batch.Elements[0].Class.IsAnchor())
}
