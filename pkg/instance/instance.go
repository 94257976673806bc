// Package instance identifies which worker replica settled a job, mostly for
// log correlation when several workers share one subscription.
package instance

import "os"

const defaultID = "worker-0"

// GetID returns the replica identifier, WORKER_ID in deployment manifests.
func GetID() string {
	id := os.Getenv("WORKER_ID")
	if id == "" {
		return defaultID
	}
	return id
}
