package lease

import "fmt"

const (
	MaxPages     = 10
	MaxPageBytes = 10 * 1024 * 1024
	MaxClauses   = 20
)

// ValidateSelection accepts a batch only if every page fits. There is no
// partial acceptance.
func ValidateSelection(pages []Page) error {
	if len(pages) == 0 {
		return ErrEmptySelection
	}
	if len(pages) > MaxPages {
		return fmt.Errorf("%w: %d (max %d)", ErrTooManyPages, len(pages), MaxPages)
	}
	for _, p := range pages {
		if p.Size > MaxPageBytes {
			return fmt.Errorf("%w: %s is %d bytes", ErrPageTooLarge, p.Name, p.Size)
		}
	}
	return nil
}
