package logger

import (
	"context"
	"log"

	"cloud.google.com/go/compute/metadata"
	"cloud.google.com/go/logging"
)

// New returns a standard logger that writes to Cloud Logging under the
// given log name. Meant for one-shot tools where losing the process on
// a logging setup failure is acceptable.
func New(ctx context.Context, name string) *log.Logger {
	projectID, err := metadata.ProjectIDWithContext(ctx)
	if err != nil {
		log.Fatalf("failed to get project ID: %v", err)
	}
	client, err := logging.NewClient(ctx, projectID)
	if err != nil {
		log.Fatalf("failed to create logging client: %v", err)
	}
	return client.Logger(name).StandardLogger(logging.Info)
}
