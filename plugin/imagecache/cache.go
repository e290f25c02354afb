// Package imagecache holds the latest base image and segmentation mask of a chat session.
package imagecache

import (
	"bytes"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ErrEmpty is returned when an operation needs an image that is not held.
var ErrEmpty = errors.New("image not cached")

// Entry is a cached image together with the key it was fetched by.
type Entry struct {
	Key  string
	Data []byte
}

// Cache holds at most one base image and one mask. Setting a slot replaces its previous value.
// It is safe for concurrent use.
type Cache struct {
	mu   sync.RWMutex
	base *Entry
	mask *Entry

	// maskVisible controls whether Display composites the mask.
	maskVisible bool
}

// New returns an empty cache with the mask shown.
func New() *Cache {
	return &Cache{maskVisible: true}
}

// SetBase replaces the base image. A mask computed for a different base is dropped.
func (c *Cache) SetBase(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.base == nil || c.base.Key != key {
		c.mask = nil
	}
	c.base = &Entry{Key: key, Data: data}
}

// SetMask replaces the mask.
func (c *Cache) SetMask(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mask = &Entry{Key: key, Data: data}
}

// Get returns the cached bytes for key, from either slot.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.mask != nil && c.mask.Key == key {
		return c.mask.Data, true
	}
	if c.base != nil && c.base.Key == key {
		return c.base.Data, true
	}
	return nil, false
}

// Base returns the base image.
func (c *Cache) Base() (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.base == nil {
		return Entry{}, false
	}
	return *c.base, true
}

// Mask returns the current mask.
func (c *Cache) Mask() (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.mask == nil {
		return Entry{}, false
	}
	return *c.mask, true
}

// ClearMask drops the mask and keeps the base image.
func (c *Cache) ClearMask() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mask = nil
}

// Reset drops both slots.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = nil
	c.mask = nil
}

// SetMaskVisible toggles whether Display shows the mask.
func (c *Cache) SetMaskVisible(visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maskVisible = visible
}

// MaskVisible reports whether Display shows the mask.
func (c *Cache) MaskVisible() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maskVisible
}

// Display returns what should be shown: the overlay when a mask is held and visible,
// otherwise the base image as is.
func (c *Cache) Display(opacity float64) ([]byte, error) {
	c.mu.RLock()
	base, mask, visible := c.base, c.mask, c.maskVisible
	c.mu.RUnlock()

	if base == nil {
		return nil, errors.Wrap(ErrEmpty, "no base image")
	}
	if mask == nil || !visible {
		return base.Data, nil
	}
	return Overlay(base.Data, mask.Data, opacity)
}

// Overlay composites mask over base and encodes the result as PNG.
// The mask is stretched to the base image size when they differ.
func Overlay(baseData, maskData []byte, opacity float64) ([]byte, error) {
	if opacity < 0 || opacity > 1 {
		return nil, errors.Errorf("opacity %v out of range [0, 1]", opacity)
	}
	base, err := decode(baseData, "base")
	if err != nil {
		return nil, err
	}
	mask, err := decode(maskData, "mask")
	if err != nil {
		return nil, err
	}

	bounds := base.Bounds()
	if mask.Bounds().Size() != bounds.Size() {
		mask = imaging.Resize(mask, bounds.Dx(), bounds.Dy(), imaging.Linear)
	}
	out := imaging.Overlay(base, mask, image.Pt(0, 0), opacity)
	return encodePNG(out)
}

// Thumbnail scales the base image to fit within width x height, keeping its aspect ratio.
func (c *Cache) Thumbnail(width, height int) ([]byte, error) {
	entry, ok := c.Base()
	if !ok {
		return nil, errors.Wrap(ErrEmpty, "no base image")
	}
	return Thumbnail(entry.Data, width, height)
}

// Thumbnail scales data to fit within width x height and encodes it as PNG.
func Thumbnail(data []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid thumbnail size %dx%d", width, height)
	}
	img, err := decode(data, "thumbnail source")
	if err != nil {
		return nil, err
	}
	return encodePNG(imaging.Fit(img, width, height, imaging.Lanczos))
}

func decode(data []byte, what string) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.Wrapf(ErrEmpty, "%s image is empty", what)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s image", what)
	}
	return img, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, errors.Wrap(err, "failed to encode png")
	}
	return buf.Bytes(), nil
}
