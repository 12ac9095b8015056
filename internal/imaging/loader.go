package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder

	"github.com/ironsheep/outfit-tools-mcp/internal/monitoring"
)

// ErrImageLoad is wrapped by every error returned from Loader.Load.
var ErrImageLoad = errors.New("image load failed")

// maxImageSize caps downloaded and local image files.
const maxImageSize = 64 << 20

// Browser-like request headers. Some image hosts refuse the default Go
// user agent.
var fetchHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.5",
	"Referer":         "https://www.google.com/",
}

// SourceKind is where an image came from.
type SourceKind string

const (
	SourceFile SourceKind = "file"
	SourceURL  SourceKind = "url"
	SourceS3   SourceKind = "s3"
)

// Source describes a loaded image.
type Source struct {
	// Input is the string the caller passed to Load.
	Input string `json:"input"`

	// Kind is the input type: "file", "url" or "s3".
	Kind SourceKind `json:"kind"`

	// Resolved is the location the pixels were read from. It differs from
	// Input after redirects or when a Pinterest page was resolved to its image.
	Resolved string `json:"resolved"`

	// Format is the decoded format name, e.g. "jpeg".
	Format string `json:"format"`

	// Width and Height are the image size in pixels after EXIF orientation.
	Width  int `json:"width"`
	Height int `json:"height"`

	// SizeBytes is the size of the encoded image.
	SizeBytes int64 `json:"size_bytes"`
}

type cachedImage struct {
	img image.Image
	src Source
}

// ImageCache provides thread-safe caching of loaded images to avoid redundant
// downloads and decodes.
//
// Entries are keyed by the exact source string passed to Load and stay in
// memory until removed with Evict or Clear.
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]cachedImage
}

// NewImageCache creates and initializes a new empty image cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]cachedImage),
	}
}

func (c *ImageCache) get(key string) (cachedImage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ci, ok := c.images[key]
	return ci, ok
}

func (c *ImageCache) put(key string, ci cachedImage) {
	c.mu.Lock()
	c.images[key] = ci
	c.mu.Unlock()
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Clear removes all images from the cache, freeing the associated memory.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]cachedImage)
	c.mu.Unlock()
}

// Evict removes a specific image from the cache by its source string.
// If the source is not in the cache, this method does nothing.
func (c *ImageCache) Evict(source string) {
	c.mu.Lock()
	delete(c.images, source)
	c.mu.Unlock()
}

// ObjectGetter reads objects from an S3-compatible store.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Loader resolves image sources (local paths, http(s) URLs, Pinterest pages
// and s3:// URLs) to decoded images.
//
// Decoded images are normalized to *image.NRGBA with EXIF orientation
// applied, and cached by source string.
type Loader struct {
	Cache  *ImageCache
	Client *http.Client

	// S3 serves s3:// sources. Nil disables them.
	S3 ObjectGetter
}

// NewLoader returns a Loader with a fresh cache and an HTTP client using
// the given timeout.
func NewLoader(timeout time.Duration, s3 ObjectGetter) *Loader {
	return &Loader{
		Cache:  NewImageCache(),
		Client: &http.Client{Timeout: timeout},
		S3:     s3,
	}
}

// Load retrieves an image from the cache or fetches and decodes it.
//
// Parameters:
//   - ctx: Bounds network requests.
//   - source: A local file path, an http(s) URL pointing at an image or a
//     Pinterest pin, or an s3://bucket/key URL.
//
// Returns:
//   - image.Image: The decoded image as *image.NRGBA.
//   - *Source: Metadata about where the image came from.
//   - error: Wraps ErrImageLoad for every failure.
func (l *Loader) Load(ctx context.Context, source string) (image.Image, *Source, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil, fmt.Errorf("%w: empty source", ErrImageLoad)
	}
	if ci, ok := l.Cache.get(source); ok {
		src := ci.src
		return ci.img, &src, nil
	}

	var (
		data []byte
		src  = Source{Input: source, Resolved: source}
		err  error
	)
	switch {
	case strings.HasPrefix(source, "s3://"):
		src.Kind = SourceS3
		data, err = l.fetchS3(ctx, source)
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		src.Kind = SourceURL
		data, src.Resolved, err = l.fetchHTTP(ctx, source)
	default:
		src.Kind = SourceFile
		data, err = readFile(source)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrImageLoad, source, err)
	}

	img, format, err := decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrImageLoad, source, err)
	}
	src.Format = format
	src.Width = img.Bounds().Dx()
	src.Height = img.Bounds().Dy()
	src.SizeBytes = int64(len(data))

	monitoring.Debugf("loaded %s image %dx%d from %s", format, src.Width, src.Height, src.Resolved)

	l.Cache.put(source, cachedImage{img: img, src: src})
	return img, &src, nil
}

// decode applies EXIF orientation and normalizes to NRGBA.
func decode(data []byte) (image.Image, string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("unrecognized image format: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return imaging.Clone(img), format, nil
}

func readFile(p string) ([]byte, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", p)
	}
	if fi.Size() > maxImageSize {
		return nil, fmt.Errorf("image too large: %d bytes (max %d)", fi.Size(), maxImageSize)
	}
	return os.ReadFile(p)
}

func (l *Loader) fetchS3(ctx context.Context, source string) ([]byte, error) {
	if l.S3 == nil {
		return nil, fmt.Errorf("s3 sources are not configured")
	}
	bucket, key, err := ParseS3URL(source)
	if err != nil {
		return nil, err
	}
	obj, err := l.S3.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer obj.Close()
	return readLimited(obj)
}

// ParseS3URL splits s3://bucket/path/to/object into bucket and key.
func ParseS3URL(s string) (bucket, key string, err error) {
	u, err := url.Parse(s)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid S3 URL scheme %q", u.Scheme)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("S3 URL must be s3://bucket/key, got %q", s)
	}
	return u.Host, key, nil
}

// fetchHTTP downloads an image. A Pinterest page is resolved to the pin's
// image through its og:image meta tag.
func (l *Loader) fetchHTTP(ctx context.Context, source string) ([]byte, string, error) {
	data, contentType, final, err := l.get(ctx, source)
	if err != nil {
		return nil, "", err
	}
	if isImageType(contentType) {
		return data, final, nil
	}

	if !isPinterest(source) && !isPinterest(final) {
		return nil, "", fmt.Errorf("URL does not point to an image (Content-Type %q)", contentType)
	}

	monitoring.Debugf("pinterest page detected: %s", final)
	imageURL, err := extractPinterestImage(bytes.NewReader(data), final)
	if err != nil {
		return nil, "", err
	}
	data, contentType, final, err = l.get(ctx, imageURL)
	if err != nil {
		return nil, "", err
	}
	if !isImageType(contentType) && contentType != "" {
		return nil, "", fmt.Errorf("pinterest image URL %s is not an image (Content-Type %q)", imageURL, contentType)
	}
	return data, final, nil
}

func (l *Loader) get(ctx context.Context, rawURL string) ([]byte, string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", "", err
	}
	for k, v := range fetchHeaders {
		req.Header.Set(k, v)
	}

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", "", fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
	}
	data, err := readLimited(resp.Body)
	if err != nil {
		return nil, "", "", err
	}
	return data, resp.Header.Get("Content-Type"), resp.Request.URL.String(), nil
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxImageSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImageSize {
		return nil, fmt.Errorf("image larger than %d bytes", maxImageSize)
	}
	return data, nil
}

func isImageType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && strings.HasPrefix(mt, "image/")
}

func isPinterest(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "pin.it" || strings.Contains(host, "pinterest.")
}
