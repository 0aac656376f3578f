package storage

import "fmt"

func errDuplicateCode(code string) error {
	return fmt.Errorf("public code %q already exists", code)
}

func errOrphan(binID int64) error {
	return fmt.Errorf("bin %d does not exist", binID)
}
