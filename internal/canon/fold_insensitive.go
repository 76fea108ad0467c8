//go:build windows || darwin

package canon

// Default NTFS and APFS volumes are case-insensitive.
const caseInsensitive = true
