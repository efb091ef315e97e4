package util

import "os"

// IsRunningInDocker reports whether the process runs inside a docker container.
// The sqlite file must be mounted in that case instead of being created in the image
func IsRunningInDocker() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}
