// Package avatar computes and compares perceptual hashes of profile images.
package avatar

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/corona10/goimagehash"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	maxImageBytes = 2 << 20 // refuse avatars larger than 2 MiB
	hashCacheSize = 2000
	hashBits      = 64
)

// Hasher downloads avatars and computes 64-bit difference hashes, with a
// bounded URL-keyed cache in front of the downloads.
type Hasher struct {
	httpClient *http.Client
	cache      *lru.Cache[string, string]
}

// NewHasher creates a Hasher with a short request timeout.
func NewHasher() *Hasher {
	cache, _ := lru.New[string, string](hashCacheSize)
	return &Hasher{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		cache:      cache,
	}
}

// FetchHash downloads an image and returns its difference hash as a string.
// Returns an empty string (no error) when the URL does not yield a usable
// image; avatar scoring is strictly best-effort.
func (h *Hasher) FetchHash(ctx context.Context, imageURL string) (string, error) {
	if imageURL == "" {
		return "", nil
	}
	if cached, ok := h.cache.Get(imageURL); ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("avatar download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return "", nil
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", nil
	}

	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return "", fmt.Errorf("failed to hash avatar: %w", err)
	}

	encoded := hash.ToString()
	h.cache.Add(imageURL, encoded)
	return encoded, nil
}

// Similarity returns a 0-100 similarity between two encoded hashes based on
// Hamming distance. Returns 0 when either hash is missing or unparseable.
func Similarity(hashA, hashB string) float64 {
	if hashA == "" || hashB == "" {
		return 0
	}
	a, err := goimagehash.ImageHashFromString(hashA)
	if err != nil {
		return 0
	}
	b, err := goimagehash.ImageHashFromString(hashB)
	if err != nil {
		return 0
	}
	distance, err := a.Distance(b)
	if err != nil {
		return 0
	}
	similarity := (1 - float64(distance)/hashBits) * 100
	if similarity < 0 {
		return 0
	}
	return similarity
}
