//go:build !windows && !darwin

package canon

const caseInsensitive = false
