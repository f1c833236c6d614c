// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package props

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/awslabs/adg-policy/analysis/adg"
	"github.com/awslabs/adg-policy/analysis/config"
	"google.golang.org/api/option"
)

// bucketLocator returns the location of a bucket
type bucketLocator func(ctx context.Context, bucket string) (string, error)

// GCSLookup resolves the region of Google Cloud Storage buckets by querying the bucket attributes
type GCSLookup struct {
	locate bucketLocator
	logger *config.LogGroup
	close  func() error
}

// NewGCSLookup returns a lookup using a storage client authenticated with the service account key in
// credentialsFile, or with the default credentials when credentialsFile is empty.
func NewGCSLookup(ctx context.Context, credentialsFile string, logger *config.LogGroup) (*GCSLookup, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSLookup{
		locate: func(ctx context.Context, bucket string) (string, error) {
			attrs, err := client.Bucket(bucket).Attrs(ctx)
			if err != nil {
				return "", err
			}
			return attrs.Location, nil
		},
		logger: logger,
		close:  client.Close,
	}, nil
}

// Close releases the storage client
func (l *GCSLookup) Close() error {
	if l.close == nil {
		return nil
	}
	return l.close()
}

// Lookup implements policy.PropertyLookup. Only the ResourceRegion of GCS buckets is resolved. Locations are
// lowercased to match the region names of the runtime.
func (l *GCSLookup) Lookup(ctx context.Context, prop string, node *adg.Node) (string, error) {
	if prop != ResourceRegion || node.Kind != adg.GCPBucket {
		return "", fmt.Errorf("%w: %s of %s is not a bucket location", ErrUnknownProperty, prop, node.Resource)
	}
	bucket := node.Resource.Name
	if node.Attrs.Mapped != nil {
		bucket = node.Attrs.Mapped.PhysicalName()
	}
	loc, err := l.locate(ctx, bucket)
	if err != nil {
		return "", fmt.Errorf("failed to get attributes of bucket %s: %w", bucket, err)
	}
	if l.logger != nil {
		l.logger.Debugf("Bucket %s is located in %s", bucket, loc)
	}
	return strings.ToLower(loc), nil
}
